// Package notify carries domain events to downstream collaborators such as
// mail delivery and credential issuance. Emitting is best effort: callers log
// a failed Emit and carry on.
package notify

import (
	"context"
	"sync"
)

// Event names.
const (
	EventRegistrationCreated    = "registration.created"
	EventRegistrationConfirmed  = "registration.confirmed"
	EventRegistrationCancelled  = "registration.cancelled"
	EventRegistrationReinstated = "registration.reinstated"
	EventProofAttached          = "payment.proof_attached"
	EventPaymentValidated       = "payment.validated"
	EventPaymentRejected        = "payment.rejected"
	EventPaymentReinstated      = "payment.reinstated"
	EventPaymentRefunded        = "payment.refunded"
)

// Payload keys shared by all events.
const (
	KeyRegistrationID  = "registration_id"
	KeyPaymentID       = "payment_id"
	KeyActorID         = "actor_id"
	KeyReferenceCode   = "reference_code"
	KeyRecipient       = "recipient"
	KeyRegistrantName  = "registrant_name"
	KeyEventName       = "event_name"
	KeyInstallment     = "installment_index"
	KeyExpectedAmount  = "expected_amount"
	KeyDeclaredAmount  = "declared_amount"
	KeyVariance        = "variance"
	KeyWarning         = "warning"
	KeyReason          = "reason"
	KeyState           = "state"
	KeyPreviousState   = "previous_state"
	KeyBatchID         = "batch_id"
	KeyInstallmentPlan = "installments"
)

// Payload is a flat, JSON-serializable event body.
type Payload map[string]interface{}

// Dispatcher publishes a named event.
type Dispatcher interface {
	Emit(ctx context.Context, name string, payload Payload) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, name string, payload Payload) error

func (f DispatcherFunc) Emit(ctx context.Context, name string, payload Payload) error {
	return f(ctx, name, payload)
}

// Nop drops every event.
type Nop struct{}

func (Nop) Emit(context.Context, string, Payload) error { return nil }

// Emitted is one event captured by a Recorder.
type Emitted struct {
	Name    string
	Payload Payload
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Emitted
	// Err, when set, is returned from Emit after recording.
	Err error
}

func (r *Recorder) Emit(_ context.Context, name string, payload Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Emitted{Name: name, Payload: payload})
	return r.Err
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Emitted, len(r.events))
	copy(out, r.events)
	return out
}

// Names returns the recorded event names in order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.events))
	for i, e := range r.events {
		names[i] = e.Name
	}
	return names
}

// Multi fans an event out to several dispatchers and returns the first error.
type Multi []Dispatcher

func (m Multi) Emit(ctx context.Context, name string, payload Payload) error {
	var first error
	for _, d := range m {
		if err := d.Emit(ctx, name, payload); err != nil && first == nil {
			first = err
		}
	}
	return first
}
