package reconciliation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/installment"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/notify"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/payment"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/policy"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/registration"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/testdb"
)

type eventSource struct{ db *gorm.DB }

func (s eventSource) FindEventByID(ctx context.Context, id uint) (*models.Event, error) {
	return models.FindEventByID(s.db.WithContext(ctx), id)
}

type fixture struct {
	db       *gorm.DB
	engine   *Engine
	payments payment.Repository
	regs     registration.Repository
	recorder *notify.Recorder
	event    *models.Event
}

func newFixture(t *testing.T, cost string) *fixture {
	t.Helper()
	db := testdb.Open(t)
	f := &fixture{
		db:       db,
		payments: payment.NewRepository(db),
		regs:     registration.NewRepository(db),
		recorder: &notify.Recorder{},
		event:    testdb.SeedEvent(t, db, cost),
	}
	f.engine = f.newEngine(f.payments, f.recorder)
	return f
}

func (f *fixture) newEngine(payments payment.Repository, dispatcher notify.Dispatcher) *Engine {
	projector := registration.NewProjector(f.regs, payments, dispatcher)
	costs := NewCostSource(eventSource{db: f.db}, f.regs)
	return NewEngine(payments, f.regs, costs, policy.NewStore(policy.Default()), projector, dispatcher)
}

// plan seeds a registration with a fresh installment plan.
func (f *fixture) plan(t *testing.T, count int, method string) (*models.Registration, []models.PaymentRecord) {
	t.Helper()
	reg := testdb.SeedRegistration(t, f.db, f.event.ID, count, method)
	plan, err := installment.BuildPlan(f.event.Cost, count, 12)
	require.NoError(t, err)
	records, err := f.payments.CreatePlan(context.Background(), reg.ID, plan)
	require.NoError(t, err)
	return reg, records
}

func (f *fixture) attach(t *testing.T, id uint, declared string) {
	t.Helper()
	_, err := f.engine.AttachProof(context.Background(), id, "registrant", ProofInput{
		ProofRef:       "receipts/r-1.pdf",
		DeclaredAmount: decimal.RequireFromString(declared),
	})
	require.NoError(t, err)
}

func (f *fixture) state(t *testing.T, id uint) models.PaymentState {
	t.Helper()
	rec, err := f.payments.FindByID(context.Background(), id)
	require.NoError(t, err)
	return rec.State
}

func (f *fixture) regState(t *testing.T, id uint) models.RegistrationState {
	t.Helper()
	reg, err := f.regs.FindByID(context.Background(), id)
	require.NoError(t, err)
	return reg.State
}

func TestValidate_ToleranceBoundary(t *testing.T) {
	tests := []struct {
		declared string
		warning  bool
		variance string
	}{
		{"100.00", false, "0"},
		{"105.00", false, "5"},
		{"95.00", false, "-5"},
		{"105.01", true, "5.01"},
		{"94.99", true, "-5.01"},
		{"0", true, "-100"},
	}

	for _, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			f := newFixture(t, "100.00")
			_, records := f.plan(t, 1, models.PaymentMethodBankTransfer)
			f.attach(t, records[0].ID, tt.declared)

			res, err := f.engine.Validate(context.Background(), records[0].ID, "admin-1")
			require.NoError(t, err)
			assert.Equal(t, tt.warning, res.Warning)
			assert.True(t, decimal.RequireFromString(tt.variance).Equal(res.Variance), "variance %s", res.Variance)
			assert.True(t, decimal.RequireFromString("5").Equal(res.Tolerance))
			assert.Equal(t, models.PaymentStateCompleted, f.state(t, records[0].ID))
		})
	}
}

func TestValidate_ConfirmsRegistrationOnLastInstallment(t *testing.T) {
	f := newFixture(t, "300.00")
	reg, records := f.plan(t, 3, models.PaymentMethodCash)

	for i, rec := range records {
		res, err := f.engine.Validate(context.Background(), rec.ID, "admin-1")
		require.NoError(t, err)
		if i < len(records)-1 {
			assert.Equal(t, models.RegistrationStatePending, res.RegistrationState)
		} else {
			assert.Equal(t, models.RegistrationStateConfirmed, res.RegistrationState)
		}
	}
	assert.Equal(t, models.RegistrationStateConfirmed, f.regState(t, reg.ID))

	names := f.recorder.Names()
	assert.Contains(t, names, notify.EventRegistrationConfirmed)
	assert.Equal(t, 3, countOf(names, notify.EventPaymentValidated))
}

func TestValidate_MissingProof(t *testing.T) {
	f := newFixture(t, "100.00")
	_, records := f.plan(t, 1, models.PaymentMethodBankTransfer)

	_, err := f.engine.Validate(context.Background(), records[0].ID, "admin-1")
	assert.ErrorIs(t, err, ErrMissingProof)
	assert.Equal(t, models.PaymentStatePending, f.state(t, records[0].ID))
}

func TestValidate_CashNeedsNoProof(t *testing.T) {
	f := newFixture(t, "100.00")
	_, records := f.plan(t, 1, models.PaymentMethodCash)

	res, err := f.engine.Validate(context.Background(), records[0].ID, "admin-1")
	require.NoError(t, err)
	// nothing declared, so the variance is the full installment
	assert.True(t, res.Warning)
}

func TestValidate_RequiresActor(t *testing.T) {
	f := newFixture(t, "100.00")
	_, records := f.plan(t, 1, models.PaymentMethodCash)

	_, err := f.engine.Validate(context.Background(), records[0].ID, "  ")
	assert.ErrorIs(t, err, ErrMissingActor)
}

func TestValidate_NotFound(t *testing.T) {
	f := newFixture(t, "100.00")
	_, err := f.engine.Validate(context.Background(), 999, "admin-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidate_UsesCurrentCost(t *testing.T) {
	f := newFixture(t, "100.00")
	_, records := f.plan(t, 2, models.PaymentMethodBankTransfer)
	f.attach(t, records[0].ID, "60.00")

	require.NoError(t, f.db.Model(&models.Event{}).Where("id = ?", f.event.ID).
		Update("cost", decimal.RequireFromString("120.00")).Error)

	res, err := f.engine.Validate(context.Background(), records[0].ID, "admin-1")
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("60").Equal(res.ExpectedAmount))
	assert.False(t, res.Warning)
}

func TestTransitions(t *testing.T) {
	type op func(f *fixture, id uint) error
	validate := func(f *fixture, id uint) error {
		_, err := f.engine.Validate(context.Background(), id, "admin-1")
		return err
	}
	reject := func(f *fixture, id uint) error {
		_, err := f.engine.Reject(context.Background(), id, "admin-1", "wrong amount")
		return err
	}
	reinstate := func(f *fixture, id uint) error {
		_, err := f.engine.Reinstate(context.Background(), id, "admin-1")
		return err
	}
	refund := func(f *fixture, id uint) error {
		_, err := f.engine.Refund(context.Background(), id, "admin-1", "")
		return err
	}

	tests := []struct {
		name  string
		setup []op
		run   op
		legal bool
	}{
		{"validate pending", nil, validate, true},
		{"reject pending", nil, reject, true},
		{"reinstate pending", nil, reinstate, false},
		{"refund pending", nil, refund, false},
		{"validate completed", []op{validate}, validate, false},
		{"reject completed", []op{validate}, reject, false},
		{"reinstate completed", []op{validate}, reinstate, false},
		{"refund completed", []op{validate}, refund, true},
		{"validate cancelled", []op{reject}, validate, false},
		{"reject cancelled", []op{reject}, reject, false},
		{"reinstate cancelled", []op{reject}, reinstate, true},
		{"refund cancelled", []op{reject}, refund, false},
		{"validate refunded", []op{validate, refund}, validate, false},
		{"reject refunded", []op{validate, refund}, reject, false},
		{"reinstate refunded", []op{validate, refund}, reinstate, false},
		{"refund refunded", []op{validate, refund}, refund, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "100.00")
			_, records := f.plan(t, 1, models.PaymentMethodCash)
			id := records[0].ID
			for _, setup := range tt.setup {
				require.NoError(t, setup(f, id))
			}
			before := f.state(t, id)

			err := tt.run(f, id)
			if tt.legal {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrIllegalTransition)
			var illegal *IllegalTransitionError
			require.ErrorAs(t, err, &illegal)
			assert.Equal(t, before, illegal.From)
			assert.Equal(t, before, f.state(t, id))
		})
	}
}

func TestReject_RequiresReason(t *testing.T) {
	f := newFixture(t, "100.00")
	_, records := f.plan(t, 1, models.PaymentMethodCash)

	_, err := f.engine.Reject(context.Background(), records[0].ID, "admin-1", " ")
	assert.ErrorIs(t, err, ErrMissingReason)
	assert.Equal(t, models.PaymentStatePending, f.state(t, records[0].ID))
}

func TestRejectReinstate_RoundTrip(t *testing.T) {
	f := newFixture(t, "100.00")
	_, records := f.plan(t, 1, models.PaymentMethodCash)
	id := records[0].ID
	before, err := f.payments.FindByID(context.Background(), id)
	require.NoError(t, err)

	_, err = f.engine.Reject(context.Background(), id, "admin-1", "duplicate")
	require.NoError(t, err)
	rejected, err := f.payments.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "duplicate", rejected.RejectionReason)

	_, err = f.engine.Reinstate(context.Background(), id, "admin-1")
	require.NoError(t, err)
	after, err := f.payments.FindByID(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, before.State, after.State)
	assert.True(t, before.ExpectedAmount.Equal(after.ExpectedAmount))
	assert.True(t, before.DeclaredAmount.Equal(after.DeclaredAmount))
	assert.Equal(t, before.ProofRef, after.ProofRef)
	assert.Equal(t, before.ProviderRef, after.ProviderRef)
	assert.Equal(t, before.RejectionReason, after.RejectionReason)
	assert.Equal(t, before.ValidatedBy, after.ValidatedBy)
}

func TestReinstate_ClearsProof(t *testing.T) {
	f := newFixture(t, "100.00")
	_, records := f.plan(t, 1, models.PaymentMethodBankTransfer)
	id := records[0].ID
	f.attach(t, id, "100.00")

	_, err := f.engine.Reject(context.Background(), id, "admin-1", "unreadable receipt")
	require.NoError(t, err)
	res, err := f.engine.Reinstate(context.Background(), id, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatePending, res.NewState)

	rec, err := f.payments.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, rec.HasProof())
	assert.True(t, rec.DeclaredAmount.IsZero())

	_, err = f.engine.Validate(context.Background(), id, "admin-1")
	assert.ErrorIs(t, err, ErrMissingProof)
}

func TestRefund_ReopensRegistration(t *testing.T) {
	f := newFixture(t, "100.00")
	reg, records := f.plan(t, 1, models.PaymentMethodCash)
	id := records[0].ID

	_, err := f.engine.Validate(context.Background(), id, "admin-1")
	require.NoError(t, err)
	require.Equal(t, models.RegistrationStateConfirmed, f.regState(t, reg.ID))

	res, err := f.engine.Refund(context.Background(), id, "admin-2", "event moved")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStateRefunded, res.NewState)
	assert.Equal(t, models.RegistrationStatePending, res.RegistrationState)

	rec, err := f.payments.FindByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "admin-2", rec.RefundedBy)
	assert.NotNil(t, rec.RefundedAt)
}

func TestAttachProof(t *testing.T) {
	f := newFixture(t, "100.00")
	_, records := f.plan(t, 1, models.PaymentMethodBankTransfer)
	id := records[0].ID

	rec, err := f.engine.AttachProof(context.Background(), id, "registrant", ProofInput{
		ProofRef:       " receipts/a.png ",
		DeclaredAmount: decimal.RequireFromString("99.50"),
		ProviderRef:    "TX-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "receipts/a.png", rec.ProofRef)
	assert.Equal(t, "TX-1", rec.ProviderRef)
	assert.True(t, decimal.RequireFromString("99.50").Equal(rec.DeclaredAmount))
	assert.Equal(t, models.PaymentStatePending, rec.State)
	assert.Contains(t, f.recorder.Names(), notify.EventProofAttached)
}

func TestAttachProof_InvalidInput(t *testing.T) {
	f := newFixture(t, "100.00")
	_, records := f.plan(t, 1, models.PaymentMethodBankTransfer)
	id := records[0].ID

	tests := []struct {
		name string
		in   ProofInput
		err  error
	}{
		{"no proof", ProofInput{DeclaredAmount: decimal.NewFromInt(100)}, ErrMissingProof},
		{"negative", ProofInput{ProofRef: "r", DeclaredAmount: decimal.NewFromInt(-1)}, ErrInvalidAmount},
		{"sub cent", ProofInput{ProofRef: "r", DeclaredAmount: decimal.RequireFromString("10.005")}, ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.engine.AttachProof(context.Background(), id, "registrant", tt.in)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestAttachProof_OnlyPending(t *testing.T) {
	tests := []struct {
		name   string
		decide func(f *fixture, id uint) error
		state  models.PaymentState
	}{
		{"completed", func(f *fixture, id uint) error {
			_, err := f.engine.Validate(context.Background(), id, "admin-1")
			return err
		}, models.PaymentStateCompleted},
		{"cancelled", func(f *fixture, id uint) error {
			_, err := f.engine.Reject(context.Background(), id, "admin-1", "wrong account")
			return err
		}, models.PaymentStateCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "100.00")
			_, records := f.plan(t, 1, models.PaymentMethodCash)
			id := records[0].ID
			require.NoError(t, tt.decide(f, id))

			_, err := f.engine.AttachProof(context.Background(), id, "registrant", ProofInput{
				ProofRef:       "late.pdf",
				DeclaredAmount: decimal.NewFromInt(100),
			})
			assert.ErrorIs(t, err, ErrProofClosed)
			assert.NotErrorIs(t, err, ErrIllegalTransition)
			assert.Contains(t, err.Error(), string(tt.state))

			rec, err := f.payments.FindByID(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, tt.state, rec.State)
			assert.Empty(t, rec.ProofRef)
		})
	}
}

func TestHistory(t *testing.T) {
	f := newFixture(t, "100.00")
	_, records := f.plan(t, 1, models.PaymentMethodBankTransfer)
	id := records[0].ID
	f.attach(t, id, "100.00")
	_, err := f.engine.Validate(context.Background(), id, "admin-1")
	require.NoError(t, err)

	history, err := f.engine.History(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, OpAttachProof, history[0].Operation)
	assert.Equal(t, OpValidate, history[1].Operation)
	assert.Equal(t, models.PaymentStatePending, history[1].FromState)
	assert.Equal(t, models.PaymentStateCompleted, history[1].ToState)
	assert.Equal(t, "admin-1", history[1].ActorID)

	_, err = f.engine.History(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNotificationFailureDoesNotFailDecision(t *testing.T) {
	f := newFixture(t, "100.00")
	failing := &notify.Recorder{Err: errors.New("smtp down")}
	engine := f.newEngine(f.payments, failing)
	reg, records := f.plan(t, 1, models.PaymentMethodCash)

	res, err := engine.Validate(context.Background(), records[0].ID, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, models.RegistrationStateConfirmed, res.RegistrationState)
	assert.Equal(t, models.RegistrationStateConfirmed, f.regState(t, reg.ID))
	assert.Contains(t, failing.Names(), notify.EventPaymentValidated)
}

// barrierRepository holds every FindByID caller until n of them have read.
type barrierRepository struct {
	payment.Repository
	wg *sync.WaitGroup
}

func (r barrierRepository) FindByID(ctx context.Context, id uint) (*models.PaymentRecord, error) {
	rec, err := r.Repository.FindByID(ctx, id)
	r.wg.Done()
	r.wg.Wait()
	return rec, err
}

func TestValidate_ConcurrentDecisionsOnlyOneWins(t *testing.T) {
	validate := func(e *Engine, id uint) error {
		_, err := e.Validate(context.Background(), id, "admin-2")
		return err
	}
	reject := func(e *Engine, id uint) error {
		_, err := e.Reject(context.Background(), id, "admin-2", "duplicate")
		return err
	}

	tests := []struct {
		name   string
		second func(e *Engine, id uint) error
	}{
		{"validate against reject", reject},
		{"validate against validate", validate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, "100.00")
			_, records := f.plan(t, 2, models.PaymentMethodCash)
			id := records[0].ID

			const workers = 2
			barrier := &sync.WaitGroup{}
			barrier.Add(workers)
			engine := f.newEngine(barrierRepository{Repository: f.payments, wg: barrier}, notify.Nop{})

			errs := make([]error, workers)
			var wg sync.WaitGroup
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					if i == 0 {
						_, errs[i] = engine.Validate(context.Background(), id, "admin-1")
					} else {
						errs[i] = tt.second(engine, id)
					}
				}(i)
			}
			wg.Wait()

			var wins, conflicts int
			for _, err := range errs {
				switch {
				case err == nil:
					wins++
				case errors.Is(err, ErrStateConflict):
					conflicts++
				default:
					t.Fatalf("unexpected error: %v", err)
				}
			}
			assert.Equal(t, 1, wins)
			assert.Equal(t, 1, conflicts)

			history, err := f.payments.ListAudit(context.Background(), id)
			require.NoError(t, err)
			assert.Len(t, history, 1)
		})
	}
}

func countOf(names []string, name string) int {
	n := 0
	for _, v := range names {
		if v == name {
			n++
		}
	}
	return n
}
