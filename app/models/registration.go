package models

import "time"

// RegistrationState is derived from the payment records of a registration,
// except for CANCELLED which is set by an administrator.
type RegistrationState string

const (
	RegistrationStatePending   RegistrationState = "PENDING"
	RegistrationStateConfirmed RegistrationState = "CONFIRMED"
	RegistrationStateCancelled RegistrationState = "CANCELLED"
)

// Payment methods a registrant can choose. Which of them require a proof of
// payment before validation is decided by policy, not here.
const (
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodGateway      = "gateway"
	PaymentMethodCash         = "cash"
	PaymentMethodAdminWaiver  = "admin_waiver"
)

// Origin channels of a registration.
const (
	ChannelWeb    = "web"
	ChannelMobile = "mobile"
	ChannelAdmin  = "admin"
)

// Registration is one registrant's enrollment in one event.
type Registration struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	EventID          uint              `gorm:"not null;index" json:"event_id"`
	Event            *Event            `gorm:"foreignKey:EventID" json:"event,omitempty"`
	RegistrantName   string            `gorm:"type:varchar(150);not null" json:"registrant_name"`
	RegistrantEmail  string            `gorm:"type:varchar(200);not null;index" json:"registrant_email"`
	RegistrantPhone  string            `gorm:"type:varchar(40);default:''" json:"registrant_phone"`
	InstallmentCount int               `gorm:"not null" json:"installment_count"`
	PaymentMethod    string            `gorm:"type:varchar(32);not null" json:"payment_method"`
	ReferenceCode    string            `gorm:"type:varchar(40);uniqueIndex:ux_registrations_reference_code" json:"reference_code"`
	State            RegistrationState `gorm:"type:varchar(16);not null;default:'PENDING';index" json:"state"`
	Channel          string            `gorm:"type:varchar(16);not null;default:'web'" json:"channel"`
	CancelledBy      string            `gorm:"type:varchar(100);default:''" json:"cancelled_by,omitempty"`
	CancelReason     string            `gorm:"type:text" json:"cancel_reason,omitempty"`
	CancelledAt      *time.Time        `gorm:"default:null" json:"cancelled_at,omitempty"`
	PaymentRecords   []PaymentRecord   `gorm:"foreignKey:RegistrationID;constraint:OnDelete:CASCADE" json:"payment_records,omitempty"`
	CreatedAt        time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsCancelled reports whether an administrator cancelled the registration.
func (r *Registration) IsCancelled() bool {
	return r.State == RegistrationStateCancelled
}
