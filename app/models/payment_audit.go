package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentAudit is an append-only trail entry written together with every
// payment state change.
type PaymentAudit struct {
	ID              uint            `gorm:"primaryKey" json:"id"`
	PaymentRecordID uint            `gorm:"not null;index" json:"payment_record_id"`
	RegistrationID  uint            `gorm:"not null;index" json:"registration_id"`
	Operation       string          `gorm:"type:varchar(32);not null" json:"operation"`
	FromState       PaymentState    `gorm:"type:varchar(16);not null" json:"from_state"`
	ToState         PaymentState    `gorm:"type:varchar(16);not null" json:"to_state"`
	ActorID         string          `gorm:"type:varchar(100);not null" json:"actor_id"`
	Reason          string          `gorm:"type:text" json:"reason,omitempty"`
	ExpectedAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"expected_amount"`
	DeclaredAmount  decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"declared_amount"`
	Variance        decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"variance"`
	Warning         bool            `gorm:"default:false" json:"warning"`
	BatchID         string          `gorm:"type:varchar(64);default:'';index" json:"batch_id,omitempty"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
}
