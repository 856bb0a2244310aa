package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/installment"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/registration"
)

// eventRepository implements the EventRepository interface
type eventRepository struct {
	db *gorm.DB
}

// NewEventRepository creates a new event repository instance
func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

// Create validates and stores a new event
func (r *eventRepository) Create(ctx context.Context, event *models.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := checkCost(event.Cost); err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(event).Error
}

// FindEventByID returns the event or an error wrapping registration.ErrEventNotFound
func (r *eventRepository) FindEventByID(ctx context.Context, id uint) (*models.Event, error) {
	event, err := models.FindEventByID(r.db.WithContext(ctx), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: id %d", registration.ErrEventNotFound, id)
		}
		return nil, err
	}
	return event, nil
}

// List returns events ordered by year and code
func (r *eventRepository) List(ctx context.Context, activeOnly bool) ([]models.Event, error) {
	query := r.db.WithContext(ctx).Order("year DESC, code ASC")
	if activeOnly {
		query = query.Where("is_active = ?", true)
	}
	var events []models.Event
	if err := query.Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

// UpdateCost changes the price used for plans and expected amounts
func (r *eventRepository) UpdateCost(ctx context.Context, id uint, cost string) error {
	amount, err := decimal.NewFromString(cost)
	if err != nil {
		return fmt.Errorf("%w: cost %q", installment.ErrInvalidPlan, cost)
	}
	if err := checkCost(amount); err != nil {
		return err
	}
	return r.update(ctx, id, map[string]interface{}{"cost": amount})
}

// SetActive opens or closes an event for new registrations
func (r *eventRepository) SetActive(ctx context.Context, id uint, active bool) error {
	return r.update(ctx, id, map[string]interface{}{"is_active": active})
}

func (r *eventRepository) update(ctx context.Context, id uint, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.Event{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", registration.ErrEventNotFound, id)
	}
	return nil
}

func checkCost(cost decimal.Decimal) error {
	if !cost.IsPositive() || !cost.Equal(cost.Truncate(installment.MinorUnitPlaces)) {
		return fmt.Errorf("%w: cost %s", installment.ErrInvalidPlan, cost.String())
	}
	return nil
}
