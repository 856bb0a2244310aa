package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification records one outbound message produced from a domain event.
// Delivery is best effort; failures are stored, never retried by the engine.
type Notification struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	RegistrationID uint       `gorm:"index" json:"registration_id"`
	EventName      string     `gorm:"type:varchar(64);not null;index" json:"event_name"`
	Recipient      string     `gorm:"type:varchar(200);default:''" json:"recipient"`
	Subject        string     `gorm:"type:varchar(255);default:''" json:"subject"`
	JobID          string     `gorm:"type:varchar(64);index" json:"job_id"`
	SentAt         *time.Time `gorm:"default:null" json:"sent_at,omitempty"`
	Error          string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// CreateNotification stores the outcome of a delivery attempt.
func CreateNotification(db *gorm.DB, n *Notification) error {
	return db.Create(n).Error
}
