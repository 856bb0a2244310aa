package reconciliation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/payment"
)

var (
	ErrNotFound          = payment.ErrNotFound
	ErrStateConflict     = payment.ErrStateConflict
	ErrIllegalTransition = payment.ErrIllegalTransition

	ErrMissingReason  = errors.New("rejection reason is required")
	ErrMissingProof   = errors.New("proof of payment is required")
	ErrMissingActor   = errors.New("actor id is required")
	ErrInvalidAmount  = errors.New("invalid declared amount")
	ErrProofClosed    = errors.New("proof can only be attached while the payment is PENDING")
	ErrEmptyBatch     = errors.New("batch contains no payment ids")
	ErrBatchPreflight = errors.New("batch preflight failed")
	// ErrProjection wraps a failed status projection after the payment
	// decision was already stored.
	ErrProjection = errors.New("registration status projection failed")
)

// IllegalTransitionError names the refused transition.
type IllegalTransitionError = payment.IllegalTransitionError

// ViolationReason says why a payment cannot be part of a batch.
type ViolationReason string

const (
	ViolationNotFound         ViolationReason = "not_found"
	ViolationCancelled        ViolationReason = "cancelled"
	ViolationAlreadyCompleted ViolationReason = "already_completed"
	ViolationRefunded         ViolationReason = "refunded"
	ViolationMissingProof     ViolationReason = "missing_proof"
)

// Violation is one offending payment of a batch.
type Violation struct {
	PaymentID uint                `json:"payment_id"`
	Reason    ViolationReason     `json:"reason"`
	State     models.PaymentState `json:"state,omitempty"`
}

// BatchPreflightError lists every payment that blocked a batch. Nothing was
// written when it is returned.
type BatchPreflightError struct {
	Violations []Violation
}

func (e *BatchPreflightError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = fmt.Sprintf("%d: %s", v.PaymentID, v.Reason)
	}
	return fmt.Sprintf("batch preflight failed for %d payment(s): %s", len(e.Violations), strings.Join(parts, ", "))
}

func (e *BatchPreflightError) Is(target error) bool {
	return target == ErrBatchPreflight
}
