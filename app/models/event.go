package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Event is a convention people register for. Cost is the full price of one
// registration, split into installments at registration time.
type Event struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Code      string          `gorm:"type:varchar(8);not null;index" json:"code" validate:"required,alphanum,min=2,max=8"`
	Name      string          `gorm:"type:varchar(200);not null" json:"name" validate:"required,min=3,max=200"`
	Year      int             `gorm:"not null" json:"year" validate:"required,min=2000,max=2999"`
	Cost      decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"cost"`
	IsActive  bool            `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (e *Event) Validate() error {
	v := validator.New()
	return v.Struct(e)
}

func FindEventByID(db *gorm.DB, id uint) (*Event, error) {
	var event Event
	if err := db.First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}
