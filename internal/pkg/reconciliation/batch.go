package reconciliation

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/metrics"
)

// ValidateBatch validates several payments under one batch id.
//
// A preflight over every id runs first. If any payment is missing, not
// PENDING or lacks a required proof, a *BatchPreflightError listing all of
// them is returned and nothing is written. After preflight each payment is
// validated on its own; one that changed state in between is reported in
// ConflictedIDs instead of failing the batch.
func (e *Engine) ValidateBatch(ctx context.Context, paymentIDs []uint, actorID string) (*BatchResult, error) {
	actorID, err := requireActor(actorID)
	if err != nil {
		return nil, err
	}
	ids := dedupe(paymentIDs)
	if len(ids) == 0 {
		return nil, ErrEmptyBatch
	}

	if violations, err := e.preflight(ctx, ids); err != nil {
		return nil, err
	} else if len(violations) > 0 {
		metrics.ObserveDecision(OpValidate, "preflight")
		log.Warnf("[Reconciliation] Batch of %d payment(s) refused by preflight: %d violation(s)", len(ids), len(violations))
		return nil, &BatchPreflightError{Violations: violations}
	}

	batch := &BatchResult{
		BatchID:       newBatchID(),
		ValidatedIDs:  []uint{},
		ConflictedIDs: []uint{},
		Warnings:      []Warning{},
		Results:       []Result{},
	}
	metrics.ObserveBatch(len(ids))
	log.Infof("[Reconciliation] Batch %s started with %d payment(s) by %s", batch.BatchID, len(ids), actorID)

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return batch, err
		}

		res, err := e.validate(ctx, id, actorID, batch.BatchID)
		e.observe(OpValidate, res, err)
		if err != nil && res == nil {
			if isBatchConflict(err) {
				log.Warnf("[Reconciliation] Batch %s: payment %d skipped: %v", batch.BatchID, id, err)
				batch.ConflictedIDs = append(batch.ConflictedIDs, id)
				continue
			}
			return batch, fmt.Errorf("batch %s aborted at payment %d: %w", batch.BatchID, id, err)
		}
		if err != nil {
			// decision stored, only the projection failed
			log.Warnf("[Reconciliation] Batch %s: payment %d: %v", batch.BatchID, id, err)
		}

		batch.ValidatedIDs = append(batch.ValidatedIDs, id)
		batch.Results = append(batch.Results, *res)
		if res.Warning {
			batch.Warnings = append(batch.Warnings, Warning{PaymentID: id, Variance: res.Variance})
		}
	}

	log.Infof("[Reconciliation] Batch %s finished: validated=%d conflicted=%d warnings=%d",
		batch.BatchID, len(batch.ValidatedIDs), len(batch.ConflictedIDs), len(batch.Warnings))
	return batch, nil
}

// preflight reports every payment that cannot be validated right now.
func (e *Engine) preflight(ctx context.Context, ids []uint) ([]Violation, error) {
	records, err := e.payments.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]models.PaymentRecord, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	pol := e.policy.Current()
	methods := make(map[uint]string)
	var violations []Violation
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			violations = append(violations, Violation{PaymentID: id, Reason: ViolationNotFound})
			continue
		}
		switch rec.State {
		case models.PaymentStateCancelled:
			violations = append(violations, Violation{PaymentID: id, Reason: ViolationCancelled, State: rec.State})
			continue
		case models.PaymentStateCompleted:
			violations = append(violations, Violation{PaymentID: id, Reason: ViolationAlreadyCompleted, State: rec.State})
			continue
		case models.PaymentStateRefunded:
			violations = append(violations, Violation{PaymentID: id, Reason: ViolationRefunded, State: rec.State})
			continue
		}

		method, ok := methods[rec.RegistrationID]
		if !ok {
			reg, err := e.regs.FindByID(ctx, rec.RegistrationID)
			if err != nil {
				return nil, err
			}
			method = reg.PaymentMethod
			methods[rec.RegistrationID] = method
		}
		if pol.RequiresProof(method) && !rec.HasProof() {
			violations = append(violations, Violation{PaymentID: id, Reason: ViolationMissingProof, State: rec.State})
		}
	}
	return violations, nil
}

func isBatchConflict(err error) bool {
	return errors.Is(err, ErrStateConflict) ||
		errors.Is(err, ErrIllegalTransition) ||
		errors.Is(err, ErrMissingProof) ||
		errors.Is(err, ErrNotFound)
}

func dedupe(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
