package payment

import (
	"errors"
	"fmt"

	"github.com/ManuelReschke/ConventionPay/app/models"
)

var (
	// ErrNotFound is returned when a payment record does not exist.
	ErrNotFound = errors.New("payment record not found")
	// ErrStateConflict is returned when the stored state no longer matches the
	// state the caller observed.
	ErrStateConflict = errors.New("payment record state changed concurrently")
	// ErrIllegalTransition matches every *IllegalTransitionError.
	ErrIllegalTransition = errors.New("illegal payment state transition")
	// ErrPlanExists is returned when a registration already has payment records.
	ErrPlanExists = errors.New("payment plan already exists for registration")
)

// IllegalTransitionError names the rejected transition.
type IllegalTransitionError struct {
	From models.PaymentState
	To   models.PaymentState
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal payment state transition %s -> %s", e.From, e.To)
}

func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}
