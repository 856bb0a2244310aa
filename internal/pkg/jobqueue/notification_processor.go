package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/ConventionPay/app/models"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/database"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/mail"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/metrics"
	"github.com/ManuelReschke/ConventionPay/internal/pkg/notify"
)

// sendMail is swapped in tests.
var sendMail = mail.SendMail

// processNotificationJob renders and mails one event and records the
// attempt. A send failure is returned so the queue retries it.
func (q *Queue) processNotificationJob(ctx context.Context, job *Job) error {
	payload, err := NotificationJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid notification payload: %w", err)
	}

	msg, ok, err := notify.Render(payload.Event, notify.Payload(payload.Data))
	if err != nil {
		return err
	}
	if !ok {
		log.Debugf("[Notification] Nothing to send for %s (job %s)", payload.Event, job.ID)
		return nil
	}

	record := &models.Notification{
		RegistrationID: payload.RegistrationID(),
		EventName:      payload.Event,
		Recipient:      msg.To,
		Subject:        msg.Subject,
		JobID:          job.ID,
	}

	sendErr := sendMail(msg.To, msg.Subject, msg.Body)
	if sendErr != nil {
		record.Error = sendErr.Error()
		metrics.ObserveNotification(payload.Event, "failed")
		log.Warnf("[Notification] Sending %s to %s failed: %v", payload.Event, msg.To, sendErr)
	} else {
		now := time.Now()
		record.SentAt = &now
		metrics.ObserveNotification(payload.Event, "sent")
		log.Infof("[Notification] Sent %s to %s", payload.Event, msg.To)
	}

	if db := database.GetDB(); db != nil {
		if err := models.CreateNotification(db.WithContext(ctx), record); err != nil {
			log.Errorf("[Notification] Failed to record delivery of job %s: %v", job.ID, err)
		}
	}
	return sendErr
}
