// Package reconciliation decides on installment payment claims: validate,
// reject, reinstate, refund and batch validation. Every state change goes
// through payment.Repository.ApplyState, is audited and is followed by a
// synchronous projection of the registration status.
package reconciliation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/installment"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/metrics"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/notify"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/payment"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/policy"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/registration"
)

// Engine applies reconciliation decisions. It holds no per-request state.
type Engine struct {
	payments   payment.Repository
	regs       registration.Repository
	costs      CostSource
	policy     policy.Source
	projector  *registration.Projector
	dispatcher notify.Dispatcher
	now        func() time.Time
}

// NewEngine wires an engine. A nil dispatcher drops events.
func NewEngine(
	payments payment.Repository,
	regs registration.Repository,
	costs CostSource,
	policySource policy.Source,
	projector *registration.Projector,
	dispatcher notify.Dispatcher,
) *Engine {
	if dispatcher == nil {
		dispatcher = notify.Nop{}
	}
	return &Engine{
		payments:   payments,
		regs:       regs,
		costs:      costs,
		policy:     policySource,
		projector:  projector,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Validate confirms a PENDING claim. An amount outside the tolerance only
// sets Result.Warning. If the projection fails after the decision was stored,
// both the result and an ErrProjection error are returned.
func (e *Engine) Validate(ctx context.Context, paymentID uint, actorID string) (*Result, error) {
	res, err := e.validate(ctx, paymentID, actorID, "")
	e.observe(OpValidate, res, err)
	return res, err
}

func (e *Engine) validate(ctx context.Context, paymentID uint, actorID, batchID string) (*Result, error) {
	actorID, err := requireActor(actorID)
	if err != nil {
		return nil, err
	}

	rec, err := e.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := payment.CheckTransition(rec.State, models.PaymentStateCompleted); err != nil {
		return nil, err
	}

	reg, err := e.regs.FindByID(ctx, rec.RegistrationID)
	if err != nil {
		return nil, err
	}
	pol := e.policy.Current()
	if pol.RequiresProof(reg.PaymentMethod) && !rec.HasProof() {
		return nil, fmt.Errorf("%w: payment %d (%s)", ErrMissingProof, rec.ID, reg.PaymentMethod)
	}

	expected, err := e.expectedAmount(ctx, reg, rec)
	if err != nil {
		return nil, err
	}
	variance := rec.DeclaredAmount.Sub(expected)
	tolerance := pol.Tolerance(expected)
	warning := variance.Abs().GreaterThan(tolerance)

	now := e.now()
	audit := &models.PaymentAudit{
		RegistrationID: rec.RegistrationID,
		Operation:      OpValidate,
		ActorID:        actorID,
		ExpectedAmount: expected,
		DeclaredAmount: rec.DeclaredAmount,
		Variance:       variance,
		Warning:        warning,
		BatchID:        batchID,
	}
	fields := payment.Fields{
		"validated_by": actorID,
		"validated_at": &now,
	}
	if err := e.payments.ApplyState(ctx, rec.ID, models.PaymentStatePending, models.PaymentStateCompleted, fields, audit); err != nil {
		return nil, err
	}

	res := &Result{
		PaymentID:      rec.ID,
		RegistrationID: rec.RegistrationID,
		Operation:      OpValidate,
		OldState:       models.PaymentStatePending,
		NewState:       models.PaymentStateCompleted,
		ExpectedAmount: expected,
		DeclaredAmount: rec.DeclaredAmount,
		Variance:       variance,
		Tolerance:      tolerance,
		Warning:        warning,
		ActorID:        actorID,
		BatchID:        batchID,
		Timestamp:      now,
	}
	return e.finish(ctx, notify.EventPaymentValidated, reg, rec, res)
}

// Reject cancels a PENDING claim. The reason is mandatory, the proof is not
// looked at.
func (e *Engine) Reject(ctx context.Context, paymentID uint, actorID, reason string) (*Result, error) {
	res, err := e.reject(ctx, paymentID, actorID, reason)
	e.observe(OpReject, res, err)
	return res, err
}

func (e *Engine) reject(ctx context.Context, paymentID uint, actorID, reason string) (*Result, error) {
	actorID, err := requireActor(actorID)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrMissingReason
	}

	rec, err := e.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := payment.CheckTransition(rec.State, models.PaymentStateCancelled); err != nil {
		return nil, err
	}
	reg, err := e.regs.FindByID(ctx, rec.RegistrationID)
	if err != nil {
		return nil, err
	}

	audit := &models.PaymentAudit{
		RegistrationID: rec.RegistrationID,
		Operation:      OpReject,
		ActorID:        actorID,
		Reason:         reason,
		ExpectedAmount: rec.ExpectedAmount,
		DeclaredAmount: rec.DeclaredAmount,
	}
	fields := payment.Fields{"rejection_reason": reason}
	if err := e.payments.ApplyState(ctx, rec.ID, models.PaymentStatePending, models.PaymentStateCancelled, fields, audit); err != nil {
		return nil, err
	}

	res := e.simpleResult(OpReject, rec, models.PaymentStatePending, models.PaymentStateCancelled, actorID)
	return e.finish(ctx, notify.EventPaymentRejected, reg, rec, res, notify.KeyReason, reason)
}

// Reinstate reopens a CANCELLED claim. The rejection reason, proof, provider
// reference and declared amount are cleared, the registrant must resubmit.
func (e *Engine) Reinstate(ctx context.Context, paymentID uint, actorID string) (*Result, error) {
	res, err := e.reinstate(ctx, paymentID, actorID)
	e.observe(OpReinstate, res, err)
	return res, err
}

func (e *Engine) reinstate(ctx context.Context, paymentID uint, actorID string) (*Result, error) {
	actorID, err := requireActor(actorID)
	if err != nil {
		return nil, err
	}

	rec, err := e.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := payment.CheckTransition(rec.State, models.PaymentStatePending); err != nil {
		return nil, err
	}
	reg, err := e.regs.FindByID(ctx, rec.RegistrationID)
	if err != nil {
		return nil, err
	}

	audit := &models.PaymentAudit{
		RegistrationID: rec.RegistrationID,
		Operation:      OpReinstate,
		ActorID:        actorID,
		Reason:         rec.RejectionReason,
		ExpectedAmount: rec.ExpectedAmount,
		DeclaredAmount: rec.DeclaredAmount,
	}
	fields := payment.Fields{
		"rejection_reason": "",
		"proof_ref":        "",
		"provider_ref":     "",
		"declared_amount":  decimal.Zero,
	}
	if err := e.payments.ApplyState(ctx, rec.ID, models.PaymentStateCancelled, models.PaymentStatePending, fields, audit); err != nil {
		return nil, err
	}

	res := e.simpleResult(OpReinstate, rec, models.PaymentStateCancelled, models.PaymentStatePending, actorID)
	res.DeclaredAmount = decimal.Zero
	return e.finish(ctx, notify.EventPaymentReinstated, reg, rec, res)
}

// Refund marks a COMPLETED installment as paid back. No money is moved here.
func (e *Engine) Refund(ctx context.Context, paymentID uint, actorID, reason string) (*Result, error) {
	res, err := e.refund(ctx, paymentID, actorID, reason)
	e.observe(OpRefund, res, err)
	return res, err
}

func (e *Engine) refund(ctx context.Context, paymentID uint, actorID, reason string) (*Result, error) {
	actorID, err := requireActor(actorID)
	if err != nil {
		return nil, err
	}

	rec, err := e.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if err := payment.CheckTransition(rec.State, models.PaymentStateRefunded); err != nil {
		return nil, err
	}
	reg, err := e.regs.FindByID(ctx, rec.RegistrationID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	reason = strings.TrimSpace(reason)
	audit := &models.PaymentAudit{
		RegistrationID: rec.RegistrationID,
		Operation:      OpRefund,
		ActorID:        actorID,
		Reason:         reason,
		ExpectedAmount: rec.ExpectedAmount,
		DeclaredAmount: rec.DeclaredAmount,
	}
	fields := payment.Fields{
		"refunded_by": actorID,
		"refunded_at": &now,
	}
	if err := e.payments.ApplyState(ctx, rec.ID, models.PaymentStateCompleted, models.PaymentStateRefunded, fields, audit); err != nil {
		return nil, err
	}

	res := e.simpleResult(OpRefund, rec, models.PaymentStateCompleted, models.PaymentStateRefunded, actorID)
	res.Timestamp = now
	return e.finish(ctx, notify.EventPaymentRefunded, reg, rec, res, notify.KeyReason, reason)
}

// CheckDeclaredAmount accepts non-negative amounts in whole minor units.
func CheckDeclaredAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: %s is negative", ErrInvalidAmount, amount.String())
	}
	if !amount.Equal(amount.Truncate(installment.MinorUnitPlaces)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, amount.String(), installment.MinorUnitPlaces)
	}
	return nil
}

// AttachProof stores a claim on a PENDING installment. The write is
// conditioned on PENDING so it cannot race a decision.
func (e *Engine) AttachProof(ctx context.Context, paymentID uint, actorID string, in ProofInput) (*models.PaymentRecord, error) {
	rec, err := e.attachProof(ctx, paymentID, actorID, in)
	outcome := "ok"
	if err != nil {
		outcome = errorKind(err)
	}
	metrics.ObserveDecision(OpAttachProof, outcome)
	return rec, err
}

func (e *Engine) attachProof(ctx context.Context, paymentID uint, actorID string, in ProofInput) (*models.PaymentRecord, error) {
	actorID, err := requireActor(actorID)
	if err != nil {
		return nil, err
	}
	in.ProofRef = strings.TrimSpace(in.ProofRef)
	in.ProviderRef = strings.TrimSpace(in.ProviderRef)
	if in.ProofRef == "" {
		return nil, fmt.Errorf("%w: empty proof reference", ErrMissingProof)
	}
	if err := CheckDeclaredAmount(in.DeclaredAmount); err != nil {
		return nil, err
	}

	rec, err := e.payments.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if rec.State != models.PaymentStatePending {
		return nil, fmt.Errorf("%w: payment %d is %s", ErrProofClosed, rec.ID, rec.State)
	}
	reg, err := e.regs.FindByID(ctx, rec.RegistrationID)
	if err != nil {
		return nil, err
	}

	audit := &models.PaymentAudit{
		RegistrationID: rec.RegistrationID,
		Operation:      OpAttachProof,
		ActorID:        actorID,
		ExpectedAmount: rec.ExpectedAmount,
		DeclaredAmount: in.DeclaredAmount,
		Variance:       in.DeclaredAmount.Sub(rec.ExpectedAmount),
	}
	fields := payment.Fields{
		"proof_ref":       in.ProofRef,
		"provider_ref":    in.ProviderRef,
		"declared_amount": in.DeclaredAmount,
	}
	if err := e.payments.ApplyState(ctx, rec.ID, models.PaymentStatePending, models.PaymentStatePending, fields, audit); err != nil {
		return nil, err
	}

	log.Infof("[Reconciliation] attach_proof payment=%d registration=%d declared=%s actor=%s",
		rec.ID, rec.RegistrationID, in.DeclaredAmount.StringFixed(installment.MinorUnitPlaces), actorID)

	payload := registration.RegistrationPayload(reg)
	payload[notify.KeyPaymentID] = rec.ID
	payload[notify.KeyInstallment] = rec.InstallmentIndex
	payload[notify.KeyDeclaredAmount] = in.DeclaredAmount.StringFixed(installment.MinorUnitPlaces)
	payload[notify.KeyActorID] = actorID
	e.emit(ctx, notify.EventProofAttached, payload)

	return e.payments.FindByID(ctx, rec.ID)
}

// History returns the audit trail of one payment, oldest first.
func (e *Engine) History(ctx context.Context, paymentID uint) ([]models.PaymentAudit, error) {
	if _, err := e.payments.FindByID(ctx, paymentID); err != nil {
		return nil, err
	}
	return e.payments.ListAudit(ctx, paymentID)
}

func (e *Engine) expectedAmount(ctx context.Context, reg *models.Registration, rec *models.PaymentRecord) (decimal.Decimal, error) {
	cost, err := e.costs.GetCost(ctx, reg.EventID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load cost of event %d: %w", reg.EventID, err)
	}
	count, err := e.costs.GetInstallmentCount(ctx, reg.ID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to load installment count of registration %d: %w", reg.ID, err)
	}
	return installment.AmountFor(cost, count, rec.InstallmentIndex)
}

func (e *Engine) simpleResult(op string, rec *models.PaymentRecord, from, to models.PaymentState, actorID string) *Result {
	return &Result{
		PaymentID:      rec.ID,
		RegistrationID: rec.RegistrationID,
		Operation:      op,
		OldState:       from,
		NewState:       to,
		ExpectedAmount: rec.ExpectedAmount,
		DeclaredAmount: rec.DeclaredAmount,
		Variance:       rec.DeclaredAmount.Sub(rec.ExpectedAmount),
		ActorID:        actorID,
		Timestamp:      e.now(),
	}
}

// finish projects the registration, logs the result and emits the event.
// extra are alternating payload keys and values.
func (e *Engine) finish(ctx context.Context, event string, reg *models.Registration, rec *models.PaymentRecord, res *Result, extra ...interface{}) (*Result, error) {
	log.Infof("[Reconciliation] %s payment=%d registration=%d %s->%s expected=%s declared=%s variance=%s tolerance=%s warning=%t actor=%s batch=%s",
		res.Operation, res.PaymentID, res.RegistrationID, res.OldState, res.NewState,
		res.ExpectedAmount.StringFixed(2), res.DeclaredAmount.StringFixed(2), res.Variance.StringFixed(2),
		res.Tolerance.StringFixed(2), res.Warning, res.ActorID, res.BatchID)

	var projErr error
	state, err := e.projector.Project(ctx, rec.RegistrationID)
	if err != nil {
		log.Errorf("[Reconciliation] Projection of registration %d after %s on payment %d failed: %v",
			rec.RegistrationID, res.Operation, rec.ID, err)
		projErr = fmt.Errorf("%w: registration %d: %v", ErrProjection, rec.RegistrationID, err)
	} else {
		res.RegistrationState = state
	}

	payload := registration.RegistrationPayload(reg)
	payload[notify.KeyPaymentID] = res.PaymentID
	payload[notify.KeyInstallment] = rec.InstallmentIndex
	payload[notify.KeyActorID] = res.ActorID
	payload[notify.KeyState] = string(res.NewState)
	payload[notify.KeyPreviousState] = string(res.OldState)
	payload[notify.KeyExpectedAmount] = res.ExpectedAmount.StringFixed(2)
	payload[notify.KeyDeclaredAmount] = res.DeclaredAmount.StringFixed(2)
	payload[notify.KeyVariance] = res.Variance.StringFixed(2)
	payload[notify.KeyWarning] = res.Warning
	if res.BatchID != "" {
		payload[notify.KeyBatchID] = res.BatchID
	}
	for i := 0; i+1 < len(extra); i += 2 {
		if key, ok := extra[i].(string); ok {
			payload[key] = extra[i+1]
		}
	}
	e.emit(ctx, event, payload)

	return res, projErr
}

func (e *Engine) emit(ctx context.Context, name string, payload notify.Payload) {
	if err := e.dispatcher.Emit(ctx, name, payload); err != nil {
		log.Warnf("[Reconciliation] Failed to emit %s: %v", name, err)
		metrics.ObserveNotification(name, "error")
		return
	}
	metrics.ObserveNotification(name, "ok")
}

func (e *Engine) observe(op string, res *Result, err error) {
	if err != nil && res == nil {
		metrics.ObserveDecision(op, errorKind(err))
		return
	}
	metrics.ObserveDecision(op, "ok")
	if res != nil && res.Warning {
		metrics.ObserveAmountWarning()
	}
}

func requireActor(actorID string) (string, error) {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return "", ErrMissingActor
	}
	return actorID, nil
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIllegalTransition), errors.Is(err, ErrProofClosed):
		return "illegal_transition"
	case errors.Is(err, ErrStateConflict):
		return "conflict"
	case errors.Is(err, ErrMissingProof):
		return "missing_proof"
	case errors.Is(err, ErrMissingReason), errors.Is(err, ErrMissingActor), errors.Is(err, ErrInvalidAmount):
		return "invalid_input"
	case errors.Is(err, ErrBatchPreflight):
		return "preflight"
	default:
		return "error"
	}
}

func newBatchID() string {
	return uuid.NewString()
}
