package reconciliation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/notify"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/payment"
)

func TestValidateBatch(t *testing.T) {
	f := newFixture(t, "300.00")
	reg, records := f.plan(t, 3, models.PaymentMethodBankTransfer)
	f.attach(t, records[0].ID, "100.00")
	f.attach(t, records[1].ID, "100.00")
	f.attach(t, records[2].ID, "120.00")

	ids := []uint{records[0].ID, records[1].ID, records[2].ID, records[0].ID}
	res, err := f.engine.ValidateBatch(context.Background(), ids, "admin-1")
	require.NoError(t, err)

	assert.NotEmpty(t, res.BatchID)
	assert.Equal(t, []uint{records[0].ID, records[1].ID, records[2].ID}, res.ValidatedIDs)
	assert.Empty(t, res.ConflictedIDs)
	require.Len(t, res.Warnings, 1)
	assert.Equal(t, records[2].ID, res.Warnings[0].PaymentID)
	assert.Equal(t, "20", res.Warnings[0].Variance.String())
	assert.Equal(t, models.RegistrationStateConfirmed, f.regState(t, reg.ID))

	history, err := f.payments.ListAudit(context.Background(), records[1].ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, res.BatchID, history[1].BatchID)
}

func TestValidateBatch_PreflightWritesNothing(t *testing.T) {
	f := newFixture(t, "300.00")
	_, records := f.plan(t, 3, models.PaymentMethodBankTransfer)
	f.attach(t, records[0].ID, "100.00")
	f.attach(t, records[1].ID, "100.00")
	_, err := f.engine.Validate(context.Background(), records[1].ID, "admin-1")
	require.NoError(t, err)

	ids := []uint{records[0].ID, records[1].ID, records[2].ID, 999}
	res, err := f.engine.ValidateBatch(context.Background(), ids, "admin-1")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrBatchPreflight)

	var preflight *BatchPreflightError
	require.ErrorAs(t, err, &preflight)
	assert.Equal(t, []Violation{
		{PaymentID: records[1].ID, Reason: ViolationAlreadyCompleted, State: models.PaymentStateCompleted},
		{PaymentID: records[2].ID, Reason: ViolationMissingProof, State: models.PaymentStatePending},
		{PaymentID: 999, Reason: ViolationNotFound},
	}, preflight.Violations)

	assert.Equal(t, models.PaymentStatePending, f.state(t, records[0].ID))
}

func TestValidateBatch_PreflightReasons(t *testing.T) {
	f := newFixture(t, "400.00")
	_, records := f.plan(t, 4, models.PaymentMethodCash)
	ctx := context.Background()
	_, err := f.engine.Reject(ctx, records[0].ID, "admin-1", "bounced")
	require.NoError(t, err)
	_, err = f.engine.Validate(ctx, records[1].ID, "admin-1")
	require.NoError(t, err)
	_, err = f.engine.Refund(ctx, records[1].ID, "admin-1", "")
	require.NoError(t, err)

	_, err = f.engine.ValidateBatch(ctx, []uint{records[0].ID, records[1].ID, records[2].ID}, "admin-1")
	var preflight *BatchPreflightError
	require.ErrorAs(t, err, &preflight)
	require.Len(t, preflight.Violations, 2)
	assert.Equal(t, ViolationCancelled, preflight.Violations[0].Reason)
	assert.Equal(t, ViolationRefunded, preflight.Violations[1].Reason)
	assert.Equal(t, models.PaymentStatePending, f.state(t, records[2].ID))
}

func TestValidateBatch_Empty(t *testing.T) {
	f := newFixture(t, "100.00")
	_, err := f.engine.ValidateBatch(context.Background(), nil, "admin-1")
	assert.ErrorIs(t, err, ErrEmptyBatch)
}

// racingRepository rejects one payment right after preflight read it.
type racingRepository struct {
	payment.Repository
	engine *Engine
	target uint
	done   bool
}

func (r *racingRepository) ListByIDs(ctx context.Context, ids []uint) ([]models.PaymentRecord, error) {
	records, err := r.Repository.ListByIDs(ctx, ids)
	if err == nil && !r.done {
		r.done = true
		if _, rerr := r.engine.Reject(ctx, r.target, "admin-2", "paid twice"); rerr != nil {
			return nil, rerr
		}
	}
	return records, err
}

func TestValidateBatch_ConflictAfterPreflight(t *testing.T) {
	f := newFixture(t, "200.00")
	_, records := f.plan(t, 2, models.PaymentMethodCash)

	racing := &racingRepository{Repository: f.payments, engine: f.engine, target: records[1].ID}
	engine := f.newEngine(racing, notify.Nop{})

	res, err := engine.ValidateBatch(context.Background(), []uint{records[0].ID, records[1].ID}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, []uint{records[0].ID}, res.ValidatedIDs)
	assert.Equal(t, []uint{records[1].ID}, res.ConflictedIDs)
	assert.Equal(t, models.PaymentStateCancelled, f.state(t, records[1].ID))
}
