// Package metrics exposes Prometheus collectors for reconciliation decisions,
// registration state changes, notification delivery and HTTP traffic.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	reconciliationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conventionpay_reconciliation_decisions_total",
		Help: "Reconciliation operations by operation and outcome",
	}, []string{"operation", "outcome"})

	amountWarnings = promauto.NewCounter(prometheus.CounterOpts{
		Name: "conventionpay_reconciliation_amount_warnings_total",
		Help: "Validations whose declared amount was outside the tolerance",
	})

	batchSize = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "conventionpay_reconciliation_batch_size",
		Help:    "Number of distinct payments per batch validation",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 250},
	})

	registrationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conventionpay_registration_state_transitions_total",
		Help: "Registration state changes by target state",
	}, []string{"state"})

	notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conventionpay_notifications_total",
		Help: "Notification dispatch attempts by event and outcome",
	}, []string{"event", "outcome"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "conventionpay_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "route", "status"})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "conventionpay_http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// ObserveDecision counts one reconciliation operation. outcome is "ok" or an error kind.
func ObserveDecision(operation, outcome string) {
	reconciliationDecisions.WithLabelValues(operation, outcome).Inc()
}

// ObserveAmountWarning counts a validation outside the amount tolerance.
func ObserveAmountWarning() {
	amountWarnings.Inc()
}

// ObserveBatch records the size of a batch validation.
func ObserveBatch(size int) {
	batchSize.Observe(float64(size))
}

// ObserveRegistrationState counts a registration moving into state.
func ObserveRegistrationState(state string) {
	registrationTransitions.WithLabelValues(state).Inc()
}

// ObserveNotification counts a dispatch attempt.
func ObserveNotification(event, outcome string) {
	notifications.WithLabelValues(event, outcome).Inc()
}

// Middleware records request count and latency per route pattern.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			if fe, ok := err.(*fiber.Error); ok {
				status = fe.Code
			} else {
				status = fiber.StatusInternalServerError
			}
		}
		route := c.Route().Path
		httpRequests.WithLabelValues(c.Method(), route, strconv.Itoa(status)).Inc()
		httpDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// Handler serves the default registry in Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
