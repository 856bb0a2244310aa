// Package testdb opens isolated in-memory SQLite databases for tests.
package testdb

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/database"
)

var nameReplacer = strings.NewReplacer("/", "_", " ", "_", "#", "_")

// Open returns a migrated database private to t. A single connection is used
// so concurrent test goroutines are serialized by database/sql.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", nameReplacer.Replace(t.Name()))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

// SeedEvent inserts an active event with the given cost.
func SeedEvent(t *testing.T, db *gorm.DB, cost string) *models.Event {
	t.Helper()

	event := &models.Event{
		Code:     "CNV",
		Name:     "Annual Convention",
		Year:     2026,
		Cost:     decimal.RequireFromString(cost),
		IsActive: true,
	}
	require.NoError(t, db.Create(event).Error)
	return event
}

// SeedRegistration inserts a PENDING registration without payment records.
func SeedRegistration(t *testing.T, db *gorm.DB, eventID uint, count int, method string) *models.Registration {
	t.Helper()

	var n int64
	require.NoError(t, db.Model(&models.Registration{}).Count(&n).Error)

	reg := &models.Registration{
		EventID:          eventID,
		RegistrantName:   "Ana Example",
		RegistrantEmail:  "ana@example.com",
		InstallmentCount: count,
		PaymentMethod:    method,
		ReferenceCode:    fmt.Sprintf("CNV-26-T%04d", n+1),
		State:            models.RegistrationStatePending,
		Channel:          models.ChannelWeb,
	}
	require.NoError(t, db.Create(reg).Error)
	return reg
}
