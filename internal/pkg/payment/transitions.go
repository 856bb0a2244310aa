package payment

import "github.com/ManuelReschke/ConventionPay/app/models"

var legalTransitions = map[models.PaymentState]map[models.PaymentState]bool{
	models.PaymentStatePending: {
		models.PaymentStateCompleted: true,
		models.PaymentStateCancelled: true,
	},
	models.PaymentStateCancelled: {
		models.PaymentStatePending: true,
	},
	models.PaymentStateCompleted: {
		models.PaymentStateRefunded: true,
	},
}

// CanTransition reports whether from -> to is one of the legal lifecycle moves.
func CanTransition(from, to models.PaymentState) bool {
	return legalTransitions[from][to]
}

// CheckTransition returns an *IllegalTransitionError for anything CanTransition refuses.
func CheckTransition(from, to models.PaymentState) error {
	if !CanTransition(from, to) {
		return &IllegalTransitionError{From: from, To: to}
	}
	return nil
}

// IsValidState reports whether s is a known payment state.
func IsValidState(s models.PaymentState) bool {
	switch s {
	case models.PaymentStatePending, models.PaymentStateCompleted, models.PaymentStateCancelled, models.PaymentStateRefunded:
		return true
	default:
		return false
	}
}
