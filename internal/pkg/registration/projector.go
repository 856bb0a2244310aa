package registration

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/metrics"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/notify"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/payment"
)

const projectAttempts = 3

// Projector derives a registration's state from its payment records and
// writes it back when it changed.
type Projector struct {
	regs       Repository
	payments   payment.Repository
	dispatcher notify.Dispatcher
}

// NewProjector creates a projector. A nil dispatcher drops events.
func NewProjector(regs Repository, payments payment.Repository, dispatcher notify.Dispatcher) *Projector {
	if dispatcher == nil {
		dispatcher = notify.Nop{}
	}
	return &Projector{regs: regs, payments: payments, dispatcher: dispatcher}
}

// Derive is CONFIRMED iff there is at least one record and every record is
// COMPLETED, PENDING otherwise. Cancellation is not derived.
func Derive(records []models.PaymentRecord) models.RegistrationState {
	if len(records) == 0 {
		return models.RegistrationStatePending
	}
	for _, rec := range records {
		if rec.State != models.PaymentStateCompleted {
			return models.RegistrationStatePending
		}
	}
	return models.RegistrationStateConfirmed
}

// Project recomputes and stores the state of one registration. CANCELLED is
// returned unchanged without touching the row.
func (p *Projector) Project(ctx context.Context, registrationID uint) (models.RegistrationState, error) {
	for attempt := 1; attempt <= projectAttempts; attempt++ {
		reg, err := p.regs.FindByID(ctx, registrationID)
		if err != nil {
			return "", err
		}
		if reg.IsCancelled() {
			return models.RegistrationStateCancelled, nil
		}

		records, err := p.payments.ListByRegistration(ctx, registrationID)
		if err != nil {
			return "", err
		}
		next := Derive(records)
		if next == reg.State {
			return next, nil
		}

		written, err := p.regs.CompareAndSetState(ctx, registrationID, reg.State, next)
		if err != nil {
			return "", err
		}
		if !written {
			// cancelled or projected by someone else meanwhile
			continue
		}

		log.Infof("[Projector] Registration %d %s -> %s", registrationID, reg.State, next)
		metrics.ObserveRegistrationState(string(next))
		if next == models.RegistrationStateConfirmed {
			p.emitConfirmed(ctx, reg)
		}
		return next, nil
	}
	return "", fmt.Errorf("registration %d kept changing while projecting", registrationID)
}

func (p *Projector) emitConfirmed(ctx context.Context, reg *models.Registration) {
	payload := RegistrationPayload(reg)
	payload[notify.KeyState] = string(models.RegistrationStateConfirmed)
	if err := p.dispatcher.Emit(ctx, notify.EventRegistrationConfirmed, payload); err != nil {
		log.Warnf("[Projector] Failed to emit %s for registration %d: %v", notify.EventRegistrationConfirmed, reg.ID, err)
		metrics.ObserveNotification(notify.EventRegistrationConfirmed, "error")
		return
	}
	metrics.ObserveNotification(notify.EventRegistrationConfirmed, "ok")
}

// RegistrationPayload is the common event body describing a registration.
func RegistrationPayload(reg *models.Registration) notify.Payload {
	payload := notify.Payload{
		notify.KeyRegistrationID: reg.ID,
		notify.KeyReferenceCode:  reg.ReferenceCode,
		notify.KeyRecipient:      reg.RegistrantEmail,
		notify.KeyRegistrantName: reg.RegistrantName,
	}
	if reg.Event != nil {
		payload[notify.KeyEventName] = reg.Event.Name
	}
	return payload
}
