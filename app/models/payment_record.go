package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentState is the lifecycle state of one installment.
type PaymentState string

const (
	PaymentStatePending   PaymentState = "PENDING"
	PaymentStateCompleted PaymentState = "COMPLETED"
	PaymentStateCancelled PaymentState = "CANCELLED"
	PaymentStateRefunded  PaymentState = "REFUNDED"
)

// PaymentRecord is one scheduled installment of a registration's plan.
// (registration_id, installment_index) is unique.
type PaymentRecord struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	RegistrationID   uint            `gorm:"not null;index:ux_payment_records_registration_index,unique,priority:1" json:"registration_id"`
	InstallmentIndex int             `gorm:"not null;index:ux_payment_records_registration_index,unique,priority:2" json:"installment_index"`
	ExpectedAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"expected_amount"`
	DeclaredAmount   decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"declared_amount"`
	State            PaymentState    `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"state"`
	ProofRef         string          `gorm:"type:varchar(500);default:''" json:"proof_ref"`
	ProviderRef      string          `gorm:"type:varchar(191);default:''" json:"provider_ref"`
	RejectionReason  string          `gorm:"type:text" json:"rejection_reason,omitempty"`
	ValidatedBy      string          `gorm:"type:varchar(100);default:''" json:"validated_by,omitempty"`
	ValidatedAt      *time.Time      `gorm:"default:null" json:"validated_at,omitempty"`
	RefundedBy       string          `gorm:"type:varchar(100);default:''" json:"refunded_by,omitempty"`
	RefundedAt       *time.Time      `gorm:"default:null" json:"refunded_at,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// HasProof reports whether a proof-of-payment reference is attached.
func (p *PaymentRecord) HasProof() bool {
	return strings.TrimSpace(p.ProofRef) != ""
}
