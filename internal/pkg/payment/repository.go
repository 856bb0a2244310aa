package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/installment"
)

// Fields are the column updates written together with a state change.
type Fields map[string]interface{}

// Repository is the payment record store. ApplyState is the only way to
// change a stored record.
type Repository interface {
	CreatePlan(ctx context.Context, registrationID uint, plan []installment.Installment) ([]models.PaymentRecord, error)
	FindByID(ctx context.Context, id uint) (*models.PaymentRecord, error)
	FindByIndex(ctx context.Context, registrationID uint, index int) (*models.PaymentRecord, error)
	ListByRegistration(ctx context.Context, registrationID uint) ([]models.PaymentRecord, error)
	ListByIDs(ctx context.Context, ids []uint) ([]models.PaymentRecord, error)
	CountByRegistration(ctx context.Context, registrationID uint) (int64, error)
	ApplyState(ctx context.Context, id uint, from, to models.PaymentState, fields Fields, audit *models.PaymentAudit) error
	ListAudit(ctx context.Context, paymentID uint) ([]models.PaymentAudit, error)
	WithTx(tx *gorm.DB) Repository
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payment record repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithTx(tx *gorm.DB) Repository {
	return &gormRepository{db: tx}
}

func (r *gormRepository) CreatePlan(ctx context.Context, registrationID uint, plan []installment.Installment) ([]models.PaymentRecord, error) {
	if registrationID == 0 {
		return nil, errors.New("registration_id is required")
	}
	if len(plan) == 0 {
		return nil, fmt.Errorf("%w: empty plan", installment.ErrInvalidPlan)
	}

	records := make([]models.PaymentRecord, len(plan))
	for i, inst := range plan {
		records[i] = models.PaymentRecord{
			RegistrationID:   registrationID,
			InstallmentIndex: inst.Index,
			ExpectedAmount:   inst.Amount,
			DeclaredAmount:   decimal.Zero,
			State:            models.PaymentStatePending,
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.PaymentRecord{}).Where("registration_id = ?", registrationID).Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrPlanExists
		}
		return tx.Create(&records).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrPlanExists
		}
		return nil, err
	}
	return records, nil
}

func (r *gormRepository) FindByID(ctx context.Context, id uint) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	if err := r.db.WithContext(ctx).First(&record, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
		}
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) FindByIndex(ctx context.Context, registrationID uint, index int) (*models.PaymentRecord, error) {
	var record models.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("registration_id = ? AND installment_index = ?", registrationID, index).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: registration %d index %d", ErrNotFound, registrationID, index)
		}
		return nil, err
	}
	return &record, nil
}

func (r *gormRepository) ListByRegistration(ctx context.Context, registrationID uint) ([]models.PaymentRecord, error) {
	var records []models.PaymentRecord
	err := r.db.WithContext(ctx).
		Where("registration_id = ?", registrationID).
		Order("installment_index ASC").
		Find(&records).Error
	return records, err
}

func (r *gormRepository) ListByIDs(ctx context.Context, ids []uint) ([]models.PaymentRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var records []models.PaymentRecord
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&records).Error
	return records, err
}

func (r *gormRepository) CountByRegistration(ctx context.Context, registrationID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PaymentRecord{}).Where("registration_id = ?", registrationID).Count(&count).Error
	return count, err
}

func (r *gormRepository) ListAudit(ctx context.Context, paymentID uint) ([]models.PaymentAudit, error) {
	var entries []models.PaymentAudit
	err := r.db.WithContext(ctx).Where("payment_record_id = ?", paymentID).Order("id ASC").Find(&entries).Error
	return entries, err
}

// ApplyState writes to and fields only if the record is still in from, and
// appends audit in the same transaction when it is not nil.
// from == to is allowed for field updates that must not race a decision.
func (r *gormRepository) ApplyState(ctx context.Context, id uint, from, to models.PaymentState, fields Fields, audit *models.PaymentAudit) error {
	if from != to {
		if err := CheckTransition(from, to); err != nil {
			return err
		}
	}

	updates := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		updates[k] = v
	}
	updates["state"] = to
	updates["updated_at"] = time.Now()

	applied := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentRecord{}).
			Where("id = ? AND state = ?", id, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true
		if audit == nil {
			return nil
		}
		audit.PaymentRecordID = id
		audit.FromState = from
		audit.ToState = to
		return tx.Create(audit).Error
	})
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	var count int64
	if err := r.db.WithContext(ctx).Model(&models.PaymentRecord{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return fmt.Errorf("%w: id %d expected %s", ErrStateConflict, id, from)
}
