package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ManuelReschke/ConventionPay/app/models"
)

func TestCanTransition(t *testing.T) {
	states := []models.PaymentState{
		models.PaymentStatePending,
		models.PaymentStateCompleted,
		models.PaymentStateCancelled,
		models.PaymentStateRefunded,
	}
	legal := map[[2]models.PaymentState]bool{
		{models.PaymentStatePending, models.PaymentStateCompleted}:   true,
		{models.PaymentStatePending, models.PaymentStateCancelled}:   true,
		{models.PaymentStateCancelled, models.PaymentStatePending}:   true,
		{models.PaymentStateCompleted, models.PaymentStateRefunded}: true,
	}

	for _, from := range states {
		for _, to := range states {
			want := legal[[2]models.PaymentState{from, to}]
			assert.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)

			err := CheckTransition(from, to)
			if want {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrIllegalTransition)
			}
		}
	}
}

func TestIsValidState(t *testing.T) {
	assert.True(t, IsValidState(models.PaymentStateRefunded))
	assert.False(t, IsValidState(models.PaymentState("VOID")))
}
