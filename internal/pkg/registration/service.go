package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/installment"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/metrics"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/notify"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/payment"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/policy"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/refcode"
)

// EventSource resolves the event a registration belongs to.
type EventSource interface {
	FindEventByID(ctx context.Context, id uint) (*models.Event, error)
}

// RegisterInput is what a registrant or administrator submits.
type RegisterInput struct {
	EventID          uint   `json:"event_id" validate:"required"`
	RegistrantName   string `json:"registrant_name" validate:"required,min=2,max=150"`
	RegistrantEmail  string `json:"registrant_email" validate:"required,email,max=200"`
	RegistrantPhone  string `json:"registrant_phone" validate:"omitempty,max=40"`
	InstallmentCount int    `json:"installment_count" validate:"omitempty,min=1"`
	PaymentMethod    string `json:"payment_method" validate:"required,oneof=bank_transfer gateway cash admin_waiver"`
	Channel          string `json:"channel" validate:"omitempty,oneof=web mobile admin"`
	// DeferPlan creates the registration without payment records; the plan
	// is added later through CreatePlan.
	DeferPlan bool `json:"defer_plan"`
}

// Status is a registration with its projected state and installments.
type Status struct {
	Registration   *models.Registration     `json:"registration"`
	State          models.RegistrationState `json:"state"`
	Payments       []models.PaymentRecord   `json:"payments"`
	CompletedCount int                      `json:"completed_count"`
	TotalExpected  decimal.Decimal          `json:"total_expected"`
	TotalCompleted decimal.Decimal          `json:"total_completed"`
	Outstanding    decimal.Decimal          `json:"outstanding"`
}

// Service manages registrations and their installment plans.
type Service struct {
	db          *gorm.DB
	regs        Repository
	payments    payment.Repository
	events      EventSource
	policy      policy.Source
	projector   *Projector
	dispatcher  notify.Dispatcher
	codeOptions []refcode.Option
	validate    *validator.Validate
}

// NewService wires the registration service. A nil dispatcher drops events.
func NewService(
	db *gorm.DB,
	regs Repository,
	payments payment.Repository,
	events EventSource,
	policySource policy.Source,
	projector *Projector,
	dispatcher notify.Dispatcher,
	codeOptions ...refcode.Option,
) *Service {
	if dispatcher == nil {
		dispatcher = notify.Nop{}
	}
	return &Service{
		db:          db,
		regs:        regs,
		payments:    payments,
		events:      events,
		policy:      policySource,
		projector:   projector,
		dispatcher:  dispatcher,
		codeOptions: codeOptions,
		validate:    validator.New(),
	}
}

// Projector returns the projector used after every mutation.
func (s *Service) Projector() *Projector {
	return s.projector
}

// Register creates a registration, its reference code and, unless deferred,
// its installment plan in one transaction.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Status, error) {
	in.RegistrantName = strings.TrimSpace(in.RegistrantName)
	in.RegistrantEmail = strings.ToLower(strings.TrimSpace(in.RegistrantEmail))
	in.RegistrantPhone = strings.TrimSpace(in.RegistrantPhone)
	in.PaymentMethod = strings.ToLower(strings.TrimSpace(in.PaymentMethod))
	if in.Channel == "" {
		in.Channel = models.ChannelWeb
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	pol := s.policy.Current()
	if in.InstallmentCount == 0 {
		in.InstallmentCount = pol.DefaultInstallments
	}

	event, err := s.findEvent(ctx, in.EventID)
	if err != nil {
		return nil, err
	}
	if !event.IsActive {
		return nil, fmt.Errorf("%w: event %d", ErrEventInactive, event.ID)
	}

	plan, err := installment.BuildPlan(event.Cost, in.InstallmentCount, pol.MaxInstallments)
	if err != nil {
		return nil, err
	}

	reg := &models.Registration{
		EventID:          event.ID,
		RegistrantName:   in.RegistrantName,
		RegistrantEmail:  in.RegistrantEmail,
		RegistrantPhone:  in.RegistrantPhone,
		InstallmentCount: in.InstallmentCount,
		PaymentMethod:    in.PaymentMethod,
		ReferenceCode:    "tmp-" + uuid.NewString(),
		State:            models.RegistrationStatePending,
		Channel:          in.Channel,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		regs := s.regs.WithTx(tx)
		if err := regs.Create(ctx, reg); err != nil {
			return err
		}

		generator := refcode.NewGenerator(refcode.CheckerFunc(regs.ReferenceCodeExists), s.codeOptions...)
		code, err := generator.Generate(ctx, reg.ID, event.Code, event.Year)
		if err != nil {
			return err
		}
		if err := regs.SetReferenceCode(ctx, reg.ID, code); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: %s taken concurrently", refcode.ErrCodeCollision, code)
			}
			return err
		}
		reg.ReferenceCode = code

		if in.DeferPlan {
			return nil
		}
		_, err = s.payments.WithTx(tx).CreatePlan(ctx, reg.ID, plan)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Registration] Created registration %d (%s) for event %d with %d installments via %s",
		reg.ID, reg.ReferenceCode, event.ID, reg.InstallmentCount, reg.Channel)

	reg.Event = event
	payload := RegistrationPayload(reg)
	payload[notify.KeyInstallmentPlan] = reg.InstallmentCount
	s.emit(ctx, notify.EventRegistrationCreated, payload)

	return s.Status(ctx, reg.ID)
}

// CreatePlan adds the installment plan to a registration that has none yet.
// A zero totalCost means the event cost; any other total must equal it, since
// validation recomputes expected amounts from the event cost.
func (s *Service) CreatePlan(ctx context.Context, registrationID uint, totalCost decimal.Decimal, installmentCount int) ([]models.PaymentRecord, error) {
	reg, err := s.regs.FindByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	if reg.IsCancelled() {
		return nil, fmt.Errorf("%w: id %d", ErrCancelled, reg.ID)
	}

	event, err := s.findEvent(ctx, reg.EventID)
	if err != nil {
		return nil, err
	}
	if totalCost.IsZero() {
		totalCost = event.Cost
	} else if !totalCost.Equal(event.Cost) {
		return nil, fmt.Errorf("%w: total cost %s differs from event cost %s",
			installment.ErrInvalidPlan, totalCost.String(), event.Cost.String())
	}

	plan, err := installment.BuildPlan(totalCost, installmentCount, s.policy.Current().MaxInstallments)
	if err != nil {
		return nil, err
	}

	var records []models.PaymentRecord
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		records, err = s.payments.WithTx(tx).CreatePlan(ctx, reg.ID, plan)
		if err != nil {
			return err
		}
		return s.regs.WithTx(tx).SetInstallmentCount(ctx, reg.ID, installmentCount)
	})
	if err != nil {
		return nil, err
	}

	log.Infof("[Registration] Created plan for registration %d: %d installments totalling %s",
		reg.ID, installmentCount, totalCost.StringFixed(installment.MinorUnitPlaces))

	if _, err := s.projector.Project(ctx, reg.ID); err != nil {
		return nil, err
	}
	return records, nil
}

// Cancel marks the registration CANCELLED. Payment records keep their states.
func (s *Service) Cancel(ctx context.Context, registrationID uint, actorID, reason string) (*Status, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingReason
	}
	if err := s.regs.Cancel(ctx, registrationID, actorID, reason); err != nil {
		return nil, err
	}
	log.Infof("[Registration] Registration %d cancelled by %s: %s", registrationID, actorID, reason)

	status, err := s.Status(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	payload := RegistrationPayload(status.Registration)
	payload[notify.KeyActorID] = actorID
	payload[notify.KeyReason] = reason
	s.emit(ctx, notify.EventRegistrationCancelled, payload)
	return status, nil
}

// Reinstate lifts a cancellation and re-derives the state from the payments.
func (s *Service) Reinstate(ctx context.Context, registrationID uint, actorID string) (*Status, error) {
	if err := s.regs.Uncancel(ctx, registrationID); err != nil {
		return nil, err
	}
	log.Infof("[Registration] Registration %d reinstated by %s", registrationID, actorID)

	status, err := s.Status(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	payload := RegistrationPayload(status.Registration)
	payload[notify.KeyActorID] = actorID
	payload[notify.KeyState] = string(status.State)
	s.emit(ctx, notify.EventRegistrationReinstated, payload)
	return status, nil
}

// Status projects the registration and returns it with its installments.
func (s *Service) Status(ctx context.Context, registrationID uint) (*Status, error) {
	state, err := s.projector.Project(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	reg, err := s.regs.FindByID(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	records, err := s.payments.ListByRegistration(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	return buildStatus(reg, state, records), nil
}

// StatusByReference looks a registration up by the code quoted on a transfer.
func (s *Service) StatusByReference(ctx context.Context, code string) (*Status, error) {
	reg, err := s.regs.FindByReferenceCode(ctx, refcode.Normalize(code))
	if err != nil {
		return nil, err
	}
	return s.Status(ctx, reg.ID)
}

func buildStatus(reg *models.Registration, state models.RegistrationState, records []models.PaymentRecord) *Status {
	status := &Status{
		Registration:   reg,
		State:          state,
		Payments:       records,
		TotalExpected:  decimal.Zero,
		TotalCompleted: decimal.Zero,
	}
	for _, rec := range records {
		status.TotalExpected = status.TotalExpected.Add(rec.ExpectedAmount)
		if rec.State == models.PaymentStateCompleted {
			status.CompletedCount++
			status.TotalCompleted = status.TotalCompleted.Add(rec.ExpectedAmount)
		}
	}
	status.Outstanding = status.TotalExpected.Sub(status.TotalCompleted)
	return status
}

func (s *Service) findEvent(ctx context.Context, id uint) (*models.Event, error) {
	event, err := s.events.FindEventByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrEventNotFound, id)
		}
		return nil, err
	}
	return event, nil
}

func (s *Service) emit(ctx context.Context, name string, payload notify.Payload) {
	if err := s.dispatcher.Emit(ctx, name, payload); err != nil {
		log.Warnf("[Registration] Failed to emit %s: %v", name, err)
		metrics.ObserveNotification(name, "error")
		return
	}
	metrics.ObserveNotification(name, "ok")
}
