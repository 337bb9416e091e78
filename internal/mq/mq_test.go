package mq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedPublish struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakeChannel struct {
	published []recordedPublish
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, recordedPublish{exchange: exchange, key: key, msg: msg})
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_PublishSubmission(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, "compost-logbook.ingest.exchange", zap.NewNop())

	msg := SubmittedMessage{
		RequestID:  "req-1",
		ReceivedAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		Submission: LogSubmission{LocationID: 3, LocationName: "Garden", Activity: "input", WeightKg: 1.5, DeviceID: "d1"},
	}
	require.NoError(t, p.PublishSubmission(context.Background(), msg, "log.submitted"))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	assert.Equal(t, "compost-logbook.ingest.exchange", got.exchange)
	assert.Equal(t, "log.submitted", got.key)
	assert.Equal(t, "req-1", got.msg.MessageId)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "application/json", got.msg.ContentType)

	var decoded SubmittedMessage
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	assert.Equal(t, msg, decoded)
	assert.NotContains(t, string(got.msg.Body), `"email"`)
}

func TestPublisher_PublishAccepted(t *testing.T) {
	ch := &fakeChannel{}
	p := newPublisher(ch, "compost-logbook.events.exchange", zap.NewNop())

	require.NoError(t, p.PublishAccepted(context.Background(), LogAcceptedEvent{LogID: 7, RequestID: "req-2"}, "log.accepted"))

	require.Len(t, ch.published, 1)
	assert.JSONEq(t, `{
		"log_id": 7, "request_id": "req-2", "location_id": 0, "activity": "",
		"weight_kg": 0, "log_date": "", "log_time": "", "has_email": false
	}`, string(ch.published[0].msg.Body))
}

func TestPublisher_Error(t *testing.T) {
	ch := &fakeChannel{err: errors.New("channel closed")}
	p := newPublisher(ch, "x", zap.NewNop())

	err := p.PublishAccepted(context.Background(), LogAcceptedEvent{}, "log.accepted")
	assert.ErrorContains(t, err, "channel closed")

	require.NoError(t, p.Close())
	assert.True(t, ch.closed)
}

type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAck) Ack(bool) error {
	f.acked = true
	return nil
}

func (f *fakeAck) Nack(_ bool, requeue bool) error {
	f.nacked = true
	f.requeue = requeue
	return nil
}

var errPermanent = errors.New("permanent")

func TestConsumer_Settle(t *testing.T) {
	tests := []struct {
		name        string
		handlerErr  error
		redelivered bool
		wantAck     bool
		wantRequeue bool
	}{
		{name: "success acks", wantAck: true},
		{name: "permanent error dead-letters", handlerErr: errPermanent},
		{name: "transient error requeues once", handlerErr: errors.New("db down"), wantRequeue: true},
		{name: "transient error on redelivery dead-letters", handlerErr: errors.New("db down"), redelivered: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Consumer{
				logger:      zap.NewNop(),
				handler:     func(context.Context, []byte) error { return tt.handlerErr },
				isPermanent: func(err error) bool { return errors.Is(err, errPermanent) },
			}
			ack := &fakeAck{}

			c.settle(context.Background(), ack, []byte(`{}`), "log.submitted", tt.redelivered)

			assert.Equal(t, tt.wantAck, ack.acked)
			assert.Equal(t, !tt.wantAck, ack.nacked)
			assert.Equal(t, tt.wantRequeue, ack.requeue)
		})
	}
}
