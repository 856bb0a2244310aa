package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

// Message is a rendered email.
type Message struct {
	To      string
	Subject string
	Body    string
}

type messageTemplate struct {
	subject string
	body    *template.Template
}

var messageTemplates = map[string]messageTemplate{
	EventRegistrationCreated: {
		subject: "Registration received: {{.reference_code}}",
		body: template.Must(template.New("created").Parse(
			`<p>Hello {{.registrant_name}},</p>
<p>we received your registration for {{.event_name}}. Please quote the reference code <strong>{{.reference_code}}</strong> on every bank transfer.</p>`)),
	},
	EventPaymentValidated: {
		subject: "Installment {{.installment_index}} confirmed ({{.reference_code}})",
		body: template.Must(template.New("validated").Parse(
			`<p>Hello {{.registrant_name}},</p>
<p>installment {{.installment_index}} of your registration {{.reference_code}} has been confirmed.</p>`)),
	},
	EventPaymentRejected: {
		subject: "Installment {{.installment_index}} needs attention ({{.reference_code}})",
		body: template.Must(template.New("rejected").Parse(
			`<p>Hello {{.registrant_name}},</p>
<p>we could not confirm installment {{.installment_index}} of your registration {{.reference_code}}.</p>
<p>Reason: {{.reason}}</p>`)),
	},
	EventPaymentReinstated: {
		subject: "Please resubmit installment {{.installment_index}} ({{.reference_code}})",
		body: template.Must(template.New("reinstated").Parse(
			`<p>Hello {{.registrant_name}},</p>
<p>installment {{.installment_index}} of your registration {{.reference_code}} is open again. Please upload a new proof of payment.</p>`)),
	},
	EventPaymentRefunded: {
		subject: "Installment {{.installment_index}} refunded ({{.reference_code}})",
		body: template.Must(template.New("refunded").Parse(
			`<p>Hello {{.registrant_name}},</p>
<p>installment {{.installment_index}} of your registration {{.reference_code}} has been refunded.</p>`)),
	},
	EventRegistrationConfirmed: {
		subject: "Registration confirmed: {{.reference_code}}",
		body: template.Must(template.New("confirmed").Parse(
			`<p>Hello {{.registrant_name}},</p>
<p>all installments are paid. Your registration {{.reference_code}} for {{.event_name}} is confirmed.</p>`)),
	},
	EventRegistrationCancelled: {
		subject: "Registration cancelled: {{.reference_code}}",
		body: template.Must(template.New("cancelled").Parse(
			`<p>Hello {{.registrant_name}},</p>
<p>your registration {{.reference_code}} has been cancelled.</p>`)),
	},
}

// HasMessage reports whether an event produces an email.
func HasMessage(name string) bool {
	_, ok := messageTemplates[name]
	return ok
}

// Render builds the email for an event. ok is false for events that are not mailed
// or whose payload has no recipient.
func Render(name string, payload Payload) (msg Message, ok bool, err error) {
	tpl, found := messageTemplates[name]
	if !found {
		return Message{}, false, nil
	}
	to, _ := payload[KeyRecipient].(string)
	if strings.TrimSpace(to) == "" {
		return Message{}, false, nil
	}

	subject, err := template.New("subject").Parse(tpl.subject)
	if err != nil {
		return Message{}, false, fmt.Errorf("failed to parse subject for %s: %w", name, err)
	}
	var subjectBuf, bodyBuf bytes.Buffer
	if err := subject.Execute(&subjectBuf, map[string]interface{}(payload)); err != nil {
		return Message{}, false, fmt.Errorf("failed to render subject for %s: %w", name, err)
	}
	if err := tpl.body.Execute(&bodyBuf, map[string]interface{}(payload)); err != nil {
		return Message{}, false, fmt.Errorf("failed to render body for %s: %w", name, err)
	}

	return Message{
		To:      to,
		Subject: subjectBuf.String(),
		Body:    bodyBuf.String(),
	}, true, nil
}
