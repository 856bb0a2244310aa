package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	rec := &Recorder{}
	require.NoError(t, rec.Emit(context.Background(), EventPaymentValidated, Payload{KeyPaymentID: uint(1)}))
	require.NoError(t, rec.Emit(context.Background(), EventRegistrationConfirmed, Payload{}))

	assert.Equal(t, []string{EventPaymentValidated, EventRegistrationConfirmed}, rec.Names())
	assert.Equal(t, uint(1), rec.Events()[0].Payload[KeyPaymentID])
}

func TestMulti_ReturnsFirstErrorAndDeliversToAll(t *testing.T) {
	boom := errors.New("queue down")
	failing := &Recorder{Err: boom}
	ok := &Recorder{}

	err := Multi{failing, ok}.Emit(context.Background(), EventPaymentRejected, Payload{})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, ok.Events(), 1)
}

func TestRender(t *testing.T) {
	msg, ok, err := Render(EventPaymentRejected, Payload{
		KeyRecipient:      "ana@example.com",
		KeyRegistrantName: "Ana",
		KeyReferenceCode:  "CNV-26-ABC23",
		KeyInstallment:    2,
		KeyReason:         "amount <missing>",
	})
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "ana@example.com", msg.To)
	assert.Equal(t, "Installment 2 needs attention (CNV-26-ABC23)", msg.Subject)
	assert.Contains(t, msg.Body, "amount &lt;missing&gt;")
}

func TestRender_SkipsUnmailedEventsAndMissingRecipient(t *testing.T) {
	_, ok, err := Render(EventProofAttached, Payload{KeyRecipient: "ana@example.com"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = Render(EventPaymentValidated, Payload{})
	require.NoError(t, err)
	assert.False(t, ok)

	assert.True(t, HasMessage(EventRegistrationConfirmed))
	assert.False(t, HasMessage(EventProofAttached))
}
