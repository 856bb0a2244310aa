package controllers

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/ConventionPay/app/repository"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/cache"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/jobqueue"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/notify"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/policy"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/proofstorage"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/reconciliation"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/registration"
)

// QueueInspector reports the size of the notification queue.
type QueueInspector interface {
	Sizes(ctx context.Context) (jobqueue.QueueSizes, error)
}

// ResponseCache stores replayable responses keyed by idempotency key.
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type redisResponseCache struct{}

func (redisResponseCache) Get(ctx context.Context, key string) (string, error) {
	return cache.Get(ctx, key)
}

func (redisResponseCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return cache.Set(ctx, key, value, expiration)
}

// RedisResponseCache keeps idempotent replies in the shared Redis cache.
func RedisResponseCache() ResponseCache {
	return redisResponseCache{}
}

// Services bundles everything the HTTP handlers work with.
type Services struct {
	DB            *gorm.DB
	Repos         *repository.Repositories
	Policy        *policy.Store
	Registrations *registration.Service
	Engine        *reconciliation.Engine
	Proofs        proofstorage.Store
	Queue         QueueInspector
	Responses     ResponseCache
}

// NewServices wires the registration service and reconciliation engine on
// top of the repositories. Proofs, Queue and Responses are optional.
func NewServices(db *gorm.DB, repos *repository.Repositories, store *policy.Store, dispatcher notify.Dispatcher) *Services {
	if dispatcher == nil {
		dispatcher = notify.Nop{}
	}
	projector := registration.NewProjector(repos.Registration, repos.Payment, dispatcher)
	costs := reconciliation.NewCostSource(repos.Event, repos.Registration)

	return &Services{
		DB:            db,
		Repos:         repos,
		Policy:        store,
		Registrations: registration.NewService(db, repos.Registration, repos.Payment, repos.Event, store, projector, dispatcher),
		Engine:        reconciliation.NewEngine(repos.Payment, repos.Registration, costs, store, projector, dispatcher),
	}
}

// Global controller instances
var (
	registrationController *RegistrationController
	paymentController      *PaymentController
	adminController        *AdminController
)

// InitializeControllers builds the global controllers used by the router.
func InitializeControllers(s *Services) {
	registrationController = NewRegistrationController(s)
	paymentController = NewPaymentController(s)
	adminController = NewAdminController(s)
}

// InitializeServices builds Services from the global repository factory.
func InitializeServices(store *policy.Store, dispatcher notify.Dispatcher, proofs proofstorage.Store, queue QueueInspector) *Services {
	factory := repository.GetGlobalFactory()
	s := NewServices(factory.DB(), factory.GetRepositories(), store, dispatcher)
	s.Proofs = proofs
	s.Queue = queue
	s.Responses = RedisResponseCache()
	return s
}
