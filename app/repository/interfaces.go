package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/payment"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/registration"
)

// EventRepository defines the interface for convention events
type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	FindEventByID(ctx context.Context, id uint) (*models.Event, error)
	List(ctx context.Context, activeOnly bool) ([]models.Event, error)
	UpdateCost(ctx context.Context, id uint, cost string) error
	SetActive(ctx context.Context, id uint, active bool) error
}

// SettingRepository defines the interface for policy overrides
type SettingRepository interface {
	List(ctx context.Context) ([]models.Setting, error)
	GetValue(ctx context.Context, key string) (string, error)
	SetValue(ctx context.Context, key, value, settingType string) error
}

// NotificationRepository defines the interface for the delivery log
type NotificationRepository interface {
	ListByRegistration(ctx context.Context, registrationID uint) ([]models.Notification, error)
}

// Repositories holds all repository instances
type Repositories struct {
	Event        EventRepository
	Setting      SettingRepository
	Notification NotificationRepository
	Registration registration.Repository
	Payment      payment.Repository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Event:        NewEventRepository(db),
		Setting:      NewSettingRepository(db),
		Notification: NewNotificationRepository(db),
		Registration: registration.NewRepository(db),
		Payment:      payment.NewRepository(db),
	}
}
