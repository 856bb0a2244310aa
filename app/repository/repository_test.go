package repository

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/installment"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/policy"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/registration"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/testdb"
)

func TestEventRepository(t *testing.T) {
	db := testdb.Open(t)
	repo := NewEventRepository(db)
	ctx := context.Background()

	event := &models.Event{Code: "EXPO", Name: "Expo 2027", Year: 2027, Cost: decimal.RequireFromString("250.00"), IsActive: true}
	require.NoError(t, repo.Create(ctx, event))

	found, err := repo.FindEventByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, "EXPO", found.Code)

	_, err = repo.FindEventByID(ctx, 999)
	assert.ErrorIs(t, err, registration.ErrEventNotFound)

	require.NoError(t, repo.UpdateCost(ctx, event.ID, "300.50"))
	assert.ErrorIs(t, repo.UpdateCost(ctx, event.ID, "-1"), installment.ErrInvalidPlan)
	assert.ErrorIs(t, repo.UpdateCost(ctx, event.ID, "1.001"), installment.ErrInvalidPlan)

	require.NoError(t, repo.SetActive(ctx, event.ID, false))
	active, err := repo.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := repo.List(ctx, false)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "300.50", all[0].Cost.StringFixed(2))

	assert.ErrorIs(t, repo.SetActive(ctx, 999, true), registration.ErrEventNotFound)
}

func TestEventRepository_CreateValidates(t *testing.T) {
	repo := NewEventRepository(testdb.Open(t))

	err := repo.Create(context.Background(), &models.Event{Code: "X", Name: "Bad", Year: 2027, Cost: decimal.NewFromInt(10)})
	assert.Error(t, err)

	err = repo.Create(context.Background(), &models.Event{Code: "FREE", Name: "Free event", Year: 2027, Cost: decimal.Zero})
	assert.ErrorIs(t, err, installment.ErrInvalidPlan)
}

func TestSettingRepository(t *testing.T) {
	repo := NewSettingRepository(testdb.Open(t))
	ctx := context.Background()

	value, err := repo.GetValue(ctx, policy.KeyMaxInstallments)
	require.NoError(t, err)
	assert.Empty(t, value)

	require.NoError(t, repo.SetValue(ctx, policy.KeyMaxInstallments, "6", "integer"))
	require.NoError(t, repo.SetValue(ctx, policy.KeyMaxInstallments, "4", "integer"))
	assert.Error(t, repo.SetValue(ctx, policy.KeyAmountTolerance, "0.1", "float"))

	value, err = repo.GetValue(ctx, policy.KeyMaxInstallments)
	require.NoError(t, err)
	assert.Equal(t, "4", value)

	settings, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, settings, 1)
}

func TestFactory(t *testing.T) {
	db := testdb.Open(t)
	factory := NewFactory(db)

	assert.Same(t, factory.GetRepositories(), factory.GetRepositories())
	assert.NotNil(t, factory.GetEventRepository())
	assert.NotNil(t, factory.GetPaymentRepository())
	assert.NotNil(t, factory.GetRegistrationRepository())
	assert.Same(t, db, factory.DB())
}
