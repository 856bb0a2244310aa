package reconciliation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/registration"
)

// Operations, also used as audit operation names and metric labels.
const (
	OpValidate    = "validate"
	OpReject      = "reject"
	OpReinstate   = "reinstate"
	OpRefund      = "refund"
	OpAttachProof = "attach_proof"
)

// Result describes one applied decision. It is logged, counted and returned,
// the audit table keeps its persistent trace.
type Result struct {
	PaymentID         uint                     `json:"payment_id"`
	RegistrationID    uint                     `json:"registration_id"`
	Operation         string                   `json:"operation"`
	OldState          models.PaymentState      `json:"old_state"`
	NewState          models.PaymentState      `json:"new_state"`
	ExpectedAmount    decimal.Decimal          `json:"expected_amount"`
	DeclaredAmount    decimal.Decimal          `json:"declared_amount"`
	Variance          decimal.Decimal          `json:"variance"`
	Tolerance         decimal.Decimal          `json:"tolerance"`
	Warning           bool                     `json:"warning"`
	RegistrationState models.RegistrationState `json:"registration_state,omitempty"`
	ActorID           string                   `json:"actor_id"`
	BatchID           string                   `json:"batch_id,omitempty"`
	Timestamp         time.Time                `json:"timestamp"`
}

// Warning is a validated payment whose declared amount was out of tolerance.
type Warning struct {
	PaymentID uint            `json:"payment_id"`
	Variance  decimal.Decimal `json:"variance"`
}

// BatchResult is the outcome of a batch validation that passed preflight.
type BatchResult struct {
	BatchID       string    `json:"batch_id"`
	ValidatedIDs  []uint    `json:"validated_ids"`
	ConflictedIDs []uint    `json:"conflicted_ids"`
	Warnings      []Warning `json:"warnings"`
	Results       []Result  `json:"results"`
}

// ProofInput is a registrant's claim for one installment.
type ProofInput struct {
	ProofRef       string          `json:"proof_ref"`
	DeclaredAmount decimal.Decimal `json:"declared_amount"`
	ProviderRef    string          `json:"provider_ref"`
}

// CostSource supplies the current cost and installment count so expected
// amounts are recomputed instead of trusted from the stored plan.
type CostSource interface {
	GetCost(ctx context.Context, eventID uint) (decimal.Decimal, error)
	GetInstallmentCount(ctx context.Context, registrationID uint) (int, error)
}

type repositoryCostSource struct {
	events registration.EventSource
	regs   registration.Repository
}

// NewCostSource reads costs from events and counts from registrations.
func NewCostSource(events registration.EventSource, regs registration.Repository) CostSource {
	return &repositoryCostSource{events: events, regs: regs}
}

func (s *repositoryCostSource) GetCost(ctx context.Context, eventID uint) (decimal.Decimal, error) {
	event, err := s.events.FindEventByID(ctx, eventID)
	if err != nil {
		return decimal.Zero, err
	}
	return event.Cost, nil
}

func (s *repositoryCostSource) GetInstallmentCount(ctx context.Context, registrationID uint) (int, error) {
	reg, err := s.regs.FindByID(ctx, registrationID)
	if err != nil {
		return 0, err
	}
	return reg.InstallmentCount, nil
}
