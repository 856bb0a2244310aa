// Package policy holds the business knobs of installment reconciliation:
// the installment cap, the amount tolerance and which payment methods need
// a proof of payment. Defaults come from the environment and can be
// overridden from the settings table.
package policy

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/env"
)

// Setting keys that override the environment defaults.
const (
	KeyMaxInstallments      = "policy.max_installments"
	KeyDefaultInstallments  = "policy.default_installments"
	KeyAmountTolerance      = "policy.amount_tolerance"
	KeyProofRequiredMethods = "policy.proof_required_methods"
)

// Policy is an immutable snapshot of the reconciliation rules.
type Policy struct {
	MaxInstallments      int             `validate:"min=1,max=24"`
	DefaultInstallments  int             `validate:"min=1,ltefield=MaxInstallments"`
	AmountTolerance      decimal.Decimal `validate:"gte=0,lte=1"`
	ProofRequiredMethods []string        `validate:"dive,oneof=bank_transfer gateway cash admin_waiver"`
}

// Default is the policy used when nothing is configured.
func Default() *Policy {
	return &Policy{
		MaxInstallments:      3,
		DefaultInstallments:  3,
		AmountTolerance:      decimal.RequireFromString("0.05"),
		ProofRequiredMethods: []string{models.PaymentMethodBankTransfer, models.PaymentMethodGateway},
	}
}

// RequiresProof reports whether a payment with this method needs an attached
// proof before it can be validated.
func (p *Policy) RequiresProof(method string) bool {
	method = strings.ToLower(strings.TrimSpace(method))
	for _, m := range p.ProofRequiredMethods {
		if m == method {
			return true
		}
	}
	return false
}

// Tolerance returns the allowed absolute variance for an expected amount.
func (p *Policy) Tolerance(expected decimal.Decimal) decimal.Decimal {
	return expected.Abs().Mul(p.AmountTolerance)
}

// Validate checks the policy bounds.
func (p *Policy) Validate() error {
	v := validator.New()
	v.RegisterCustomTypeFunc(decimalValue, decimal.Decimal{})
	if err := v.Struct(p); err != nil {
		return fmt.Errorf("invalid policy: %w", err)
	}
	return nil
}

func decimalValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(decimal.Decimal); ok {
		f, _ := d.Float64()
		return f
	}
	return nil
}

// FromEnv builds a policy from POLICY_* variables on top of Default.
func FromEnv() (*Policy, error) {
	p := Default()
	values := map[string]string{
		KeyMaxInstallments:      env.GetEnv("POLICY_MAX_INSTALLMENTS", ""),
		KeyDefaultInstallments:  env.GetEnv("POLICY_DEFAULT_INSTALLMENTS", ""),
		KeyAmountTolerance:      env.GetEnv("POLICY_AMOUNT_TOLERANCE", ""),
		KeyProofRequiredMethods: env.GetEnv("POLICY_PROOF_REQUIRED_METHODS", ""),
	}
	if err := p.ApplyOverrides(values); err != nil {
		return nil, err
	}
	return p, p.Validate()
}

// ApplyOverrides sets every known, non-empty key. Unknown keys are ignored.
func (p *Policy) ApplyOverrides(values map[string]string) error {
	if raw := strings.TrimSpace(values[KeyMaxInstallments]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", KeyMaxInstallments, err)
		}
		p.MaxInstallments = n
		if p.DefaultInstallments > n {
			p.DefaultInstallments = n
		}
	}
	if raw := strings.TrimSpace(values[KeyDefaultInstallments]); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", KeyDefaultInstallments, err)
		}
		p.DefaultInstallments = n
	}
	if raw := strings.TrimSpace(values[KeyAmountTolerance]); raw != "" {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", KeyAmountTolerance, err)
		}
		p.AmountTolerance = d
	}
	if raw, ok := values[KeyProofRequiredMethods]; ok && strings.TrimSpace(raw) != "" {
		p.ProofRequiredMethods = splitList(raw)
	}
	return nil
}

// splitList parses a comma separated list; "-" stands for the empty list.
func splitList(raw string) []string {
	if strings.TrimSpace(raw) == "-" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if s := strings.ToLower(strings.TrimSpace(part)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Load reads the environment defaults and applies the settings table.
func Load(db *gorm.DB) (*Policy, error) {
	p, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if db == nil {
		return p, nil
	}
	values, err := models.LoadSettingValues(db)
	if err != nil {
		return nil, err
	}
	if err := p.ApplyOverrides(values); err != nil {
		return nil, err
	}
	return p, p.Validate()
}

// Source hands out the policy in effect.
type Source interface {
	Current() *Policy
}

// Store is a Source that can be swapped at runtime.
type Store struct {
	current atomic.Pointer[Policy]
}

// NewStore returns a store holding p.
func NewStore(p *Policy) *Store {
	s := &Store{}
	s.current.Store(p)
	return s
}

func (s *Store) Current() *Policy {
	return s.current.Load()
}

// Reload re-reads env and settings and swaps the policy if it is valid.
func (s *Store) Reload(db *gorm.DB) error {
	p, err := Load(db)
	if err != nil {
		return err
	}
	s.current.Store(p)
	return nil
}
