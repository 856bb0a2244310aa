package jobqueue

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/ConventionPay/internal/pkg/notify"
)

// Dispatcher turns domain events that produce an email into queue jobs.
// Other events are accepted and dropped.
type Dispatcher struct {
	queue *Queue
}

// NewDispatcher returns a notify.Dispatcher backed by q.
func NewDispatcher(q *Queue) *Dispatcher {
	return &Dispatcher{queue: q}
}

func (d *Dispatcher) Emit(ctx context.Context, name string, payload notify.Payload) error {
	if !notify.HasMessage(name) {
		return nil
	}
	job := NotificationJobPayload{Event: name, Data: payload}
	if _, err := d.queue.EnqueueJob(ctx, JobTypeSendNotification, job.ToMap()); err != nil {
		return fmt.Errorf("failed to queue %s: %w", name, err)
	}
	return nil
}
