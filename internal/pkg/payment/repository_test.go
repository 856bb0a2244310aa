package payment

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/installment"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/testdb"
)

func setupPlan(t *testing.T) (Repository, []models.PaymentRecord) {
	t.Helper()
	db := testdb.Open(t)
	event := testdb.SeedEvent(t, db, "100")
	reg := testdb.SeedRegistration(t, db, event.ID, 3, models.PaymentMethodBankTransfer)

	repo := NewRepository(db)
	plan, err := installment.BuildPlan(event.Cost, 3, 3)
	require.NoError(t, err)
	records, err := repo.CreatePlan(context.Background(), reg.ID, plan)
	require.NoError(t, err)
	return repo, records
}

func TestCreatePlan(t *testing.T) {
	repo, records := setupPlan(t)
	ctx := context.Background()

	require.Len(t, records, 3)
	listed, err := repo.ListByRegistration(ctx, records[0].RegistrationID)
	require.NoError(t, err)
	require.Len(t, listed, 3)

	for i, rec := range listed {
		assert.Equal(t, i+1, rec.InstallmentIndex)
		assert.Equal(t, models.PaymentStatePending, rec.State)
		assert.True(t, rec.DeclaredAmount.IsZero())
	}
	assert.Equal(t, "33.34", listed[2].ExpectedAmount.StringFixed(2))

	count, err := repo.CountByRegistration(ctx, records[0].RegistrationID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestCreatePlan_RefusesSecondPlan(t *testing.T) {
	repo, records := setupPlan(t)

	plan := installment.Split(decimal.NewFromInt(100), 2)
	_, err := repo.CreatePlan(context.Background(), records[0].RegistrationID, plan)
	assert.ErrorIs(t, err, ErrPlanExists)

	count, err := repo.CountByRegistration(context.Background(), records[0].RegistrationID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
}

func TestFindByID_NotFound(t *testing.T) {
	repo, _ := setupPlan(t)

	_, err := repo.FindByID(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFindByIndex(t *testing.T) {
	repo, records := setupPlan(t)
	ctx := context.Background()

	rec, err := repo.FindByIndex(ctx, records[0].RegistrationID, 2)
	require.NoError(t, err)
	assert.Equal(t, records[1].ID, rec.ID)

	_, err = repo.FindByIndex(ctx, records[0].RegistrationID, 4)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListByIDs(t *testing.T) {
	repo, records := setupPlan(t)

	listed, err := repo.ListByIDs(context.Background(), []uint{records[2].ID, records[0].ID, 9999})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, records[0].ID, listed[0].ID)
	assert.Equal(t, records[2].ID, listed[1].ID)
}

func TestApplyState(t *testing.T) {
	repo, records := setupPlan(t)
	ctx := context.Background()
	id := records[0].ID

	err := repo.ApplyState(ctx, id, models.PaymentStatePending, models.PaymentStateCompleted, Fields{"validated_by": "admin-1"}, nil)
	require.NoError(t, err)

	rec, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStateCompleted, rec.State)
	assert.Equal(t, "admin-1", rec.ValidatedBy)
}

func TestApplyState_WritesAudit(t *testing.T) {
	repo, records := setupPlan(t)
	ctx := context.Background()
	id := records[0].ID

	audit := &models.PaymentAudit{RegistrationID: records[0].RegistrationID, Operation: "validate", ActorID: "admin-1"}
	require.NoError(t, repo.ApplyState(ctx, id, models.PaymentStatePending, models.PaymentStateCompleted, nil, audit))

	stale := &models.PaymentAudit{RegistrationID: records[0].RegistrationID, Operation: "validate", ActorID: "admin-2"}
	err := repo.ApplyState(ctx, id, models.PaymentStatePending, models.PaymentStateCompleted, nil, stale)
	require.ErrorIs(t, err, ErrStateConflict)

	entries, err := repo.ListAudit(ctx, id)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "admin-1", entries[0].ActorID)
	assert.Equal(t, models.PaymentStatePending, entries[0].FromState)
	assert.Equal(t, models.PaymentStateCompleted, entries[0].ToState)
}

func TestApplyState_StaleStateConflicts(t *testing.T) {
	repo, records := setupPlan(t)
	ctx := context.Background()
	id := records[0].ID

	require.NoError(t, repo.ApplyState(ctx, id, models.PaymentStatePending, models.PaymentStateCancelled, Fields{"rejection_reason": "blurry"}, nil))

	err := repo.ApplyState(ctx, id, models.PaymentStatePending, models.PaymentStateCompleted, nil, nil)
	assert.ErrorIs(t, err, ErrStateConflict)

	rec, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStateCancelled, rec.State)
}

func TestApplyState_MissingRecord(t *testing.T) {
	repo, _ := setupPlan(t)

	err := repo.ApplyState(context.Background(), 9999, models.PaymentStatePending, models.PaymentStateCompleted, nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyState_IllegalTransition(t *testing.T) {
	repo, records := setupPlan(t)
	ctx := context.Background()

	err := repo.ApplyState(ctx, records[0].ID, models.PaymentStatePending, models.PaymentStateRefunded, nil, nil)
	var illegal *IllegalTransitionError
	require.ErrorAs(t, err, &illegal)
	assert.ErrorIs(t, err, ErrIllegalTransition)
	assert.Equal(t, models.PaymentStatePending, illegal.From)
	assert.Equal(t, models.PaymentStateRefunded, illegal.To)

	rec, err := repo.FindByID(ctx, records[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatePending, rec.State)
}

func TestApplyState_SameStateFieldUpdate(t *testing.T) {
	repo, records := setupPlan(t)
	ctx := context.Background()
	id := records[0].ID

	err := repo.ApplyState(ctx, id, models.PaymentStatePending, models.PaymentStatePending, Fields{
		"proof_ref":       "proofs/receipt.pdf",
		"declared_amount": decimal.RequireFromString("33.33"),
	}, nil)
	require.NoError(t, err)

	rec, err := repo.FindByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "proofs/receipt.pdf", rec.ProofRef)
	assert.Equal(t, "33.33", rec.DeclaredAmount.StringFixed(2))
}
