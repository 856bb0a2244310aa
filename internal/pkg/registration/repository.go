package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ConventionPay/app/models"
)

// Repository persists registrations. The state column is written only by the
// projector and by the explicit cancel/uncancel operations.
type Repository interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByID(ctx context.Context, id uint) (*models.Registration, error)
	FindByReferenceCode(ctx context.Context, code string) (*models.Registration, error)
	ReferenceCodeExists(ctx context.Context, code string) (bool, error)
	SetReferenceCode(ctx context.Context, id uint, code string) error
	SetInstallmentCount(ctx context.Context, id uint, count int) error
	CompareAndSetState(ctx context.Context, id uint, from, to models.RegistrationState) (bool, error)
	Cancel(ctx context.Context, id uint, actorID, reason string) error
	Uncancel(ctx context.Context, id uint) error
	WithTx(tx *gorm.DB) Repository
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a registration repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	return &gormRepository{db: tx}
}

func (r *gormRepository) Create(ctx context.Context, reg *models.Registration) error {
	return r.db.WithContext(ctx).Omit("Event", "PaymentRecords").Create(reg).Error
}

func (r *gormRepository) FindByID(ctx context.Context, id uint) (*models.Registration, error) {
	var reg models.Registration
	if err := r.db.WithContext(ctx).Preload("Event").First(&reg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &reg, nil
}

func (r *gormRepository) FindByReferenceCode(ctx context.Context, code string) (*models.Registration, error) {
	var reg models.Registration
	if err := r.db.WithContext(ctx).Preload("Event").Where("reference_code = ?", code).First(&reg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: reference code %s", ErrNotFound, code)
		}
		return nil, err
	}
	return &reg, nil
}

func (r *gormRepository) ReferenceCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Registration{}).Where("reference_code = ?", code).Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) SetReferenceCode(ctx context.Context, id uint, code string) error {
	return r.updateColumns(ctx, id, map[string]interface{}{"reference_code": code})
}

func (r *gormRepository) SetInstallmentCount(ctx context.Context, id uint, count int) error {
	return r.updateColumns(ctx, id, map[string]interface{}{"installment_count": count})
}

func (r *gormRepository) updateColumns(ctx context.Context, id uint, updates map[string]interface{}) error {
	tx := r.db.WithContext(ctx).Model(&models.Registration{}).Where("id = ?", id).Updates(updates)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// CompareAndSetState moves the registration from -> to and reports whether a
// row was written. A CANCELLED registration is never overwritten.
func (r *gormRepository) CompareAndSetState(ctx context.Context, id uint, from, to models.RegistrationState) (bool, error) {
	tx := r.db.WithContext(ctx).
		Model(&models.Registration{}).
		Where("id = ? AND state = ? AND state <> ?", id, from, models.RegistrationStateCancelled).
		Updates(map[string]interface{}{"state": to, "updated_at": time.Now()})
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *gormRepository) Cancel(ctx context.Context, id uint, actorID, reason string) error {
	now := time.Now()
	tx := r.db.WithContext(ctx).
		Model(&models.Registration{}).
		Where("id = ? AND state <> ?", id, models.RegistrationStateCancelled).
		Updates(map[string]interface{}{
			"state":         models.RegistrationStateCancelled,
			"cancelled_by":  actorID,
			"cancel_reason": reason,
			"cancelled_at":  &now,
			"updated_at":    now,
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected > 0 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: id %d", ErrAlreadyCancelled, id)
}

// Uncancel puts a CANCELLED registration back to PENDING; the projector
// settles the real state afterwards.
func (r *gormRepository) Uncancel(ctx context.Context, id uint) error {
	tx := r.db.WithContext(ctx).
		Model(&models.Registration{}).
		Where("id = ? AND state = ?", id, models.RegistrationStateCancelled).
		Updates(map[string]interface{}{
			"state":         models.RegistrationStatePending,
			"cancelled_by":  "",
			"cancel_reason": "",
			"cancelled_at":  nil,
			"updated_at":    time.Now(),
		})
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected > 0 {
		return nil
	}
	if _, err := r.FindByID(ctx, id); err != nil {
		return err
	}
	return fmt.Errorf("%w: id %d", ErrNotCancelled, id)
}
