package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/septivank/compost-logbook/internal/db"
	"github.com/septivank/compost-logbook/internal/mq"
	"github.com/septivank/compost-logbook/internal/privacy"
	"github.com/septivank/compost-logbook/internal/validator"
)

type fakeStore struct {
	inserted []db.LogEntry
	err      error
}

func (f *fakeStore) InsertLog(_ context.Context, log *db.LogEntry) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.inserted = append(f.inserted, *log)
	return int64(len(f.inserted)), nil
}

type fakePublisher struct {
	events []mq.LogAcceptedEvent
	keys   []string
	err    error
}

func (f *fakePublisher) PublishAccepted(_ context.Context, event mq.LogAcceptedEvent, routingKey string) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	f.keys = append(f.keys, routingKey)
	return nil
}

type processorFixture struct {
	store     *fakeStore
	publisher *fakePublisher
	cipher    *privacy.Cipher
	processor *ProcessorService
}

func newFixture(t *testing.T) *processorFixture {
	t.Helper()
	cipher, err := privacy.NewCipher("processor-test-secret")
	require.NoError(t, err)

	loc, err := time.LoadLocation("Europe/Amsterdam")
	if err != nil {
		loc = time.FixedZone("CET", 3600)
	}

	f := &processorFixture{
		store:     &fakeStore{},
		publisher: &fakePublisher{},
		cipher:    cipher,
	}
	f.processor = NewProcessorService(f.store, f.publisher, cipher, loc, "log.accepted", zap.NewNop())
	return f
}

func message(t *testing.T, sub mq.LogSubmission) []byte {
	t.Helper()
	body, err := json.Marshal(mq.SubmittedMessage{
		RequestID:  "req-1",
		ReceivedAt: time.Date(2025, 12, 29, 23, 30, 0, 0, time.UTC),
		Submission: sub,
	})
	require.NoError(t, err)
	return body
}

func validSubmission() mq.LogSubmission {
	return mq.LogSubmission{
		LocationID:   4,
		LocationName: "Community Garden",
		Activity:     "input",
		WeightKg:     2.5,
		DeviceID:     "device-1",
	}
}

func TestProcessMessage_StoresLogInLocalTime(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.processor.ProcessMessage(context.Background(), message(t, validSubmission())))

	require.Len(t, f.store.inserted, 1)
	log := f.store.inserted[0]
	assert.Equal(t, time.Date(2025, 12, 30, 0, 0, 0, 0, time.UTC), log.Date)
	assert.Equal(t, "00:30:00", log.Time)
	assert.Equal(t, db.ActivityInput, log.Activity)
	assert.Empty(t, log.EmailCiphertext)
	assert.Empty(t, log.EmailHash)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "log.accepted", f.publisher.keys[0])
	assert.Equal(t, mq.LogAcceptedEvent{
		LogID:      1,
		RequestID:  "req-1",
		LocationID: 4,
		Activity:   "input",
		WeightKg:   2.5,
		LogDate:    "2025-12-30",
		LogTime:    "00:30:00",
	}, f.publisher.events[0])
}

func TestProcessMessage_EncryptsAndHashesEmail(t *testing.T) {
	f := newFixture(t)
	sub := validSubmission()
	sub.Email = " Jo@Example.com "

	require.NoError(t, f.processor.ProcessMessage(context.Background(), message(t, sub)))

	log := f.store.inserted[0]
	assert.NotContains(t, log.EmailCiphertext, "example")
	assert.Equal(t, privacy.Hash("jo@example.com"), log.EmailHash)

	plain, err := f.cipher.Decrypt(log.EmailCiphertext)
	require.NoError(t, err)
	assert.Equal(t, "jo@example.com", plain)
	assert.True(t, f.publisher.events[0].HasEmail)
}

func TestProcessMessage_Rejections(t *testing.T) {
	f := newFixture(t)

	err := f.processor.ProcessMessage(context.Background(), []byte(`{not json`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
	assert.True(t, IsPermanent(err))

	sub := validSubmission()
	sub.WeightKg = 0
	err = f.processor.ProcessMessage(context.Background(), message(t, sub))
	assert.ErrorIs(t, err, validator.ErrValidation)
	assert.True(t, IsPermanent(err))

	assert.Empty(t, f.store.inserted)
	assert.Empty(t, f.publisher.events)
}

func TestProcessMessage_StoreFailureIsTransient(t *testing.T) {
	f := newFixture(t)
	f.store.err = errors.New("connection refused")

	err := f.processor.ProcessMessage(context.Background(), message(t, validSubmission()))
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
	assert.Empty(t, f.publisher.events)
}

func TestProcessMessage_PublishFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.publisher.err = errors.New("channel closed")

	require.NoError(t, f.processor.ProcessMessage(context.Background(), message(t, validSubmission())))
	assert.Len(t, f.store.inserted, 1)
}

func TestProcessMessage_MissingReceivedAtUsesClock(t *testing.T) {
	f := newFixture(t)
	f.processor.now = func() time.Time { return time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC) }

	body, err := json.Marshal(mq.SubmittedMessage{RequestID: "req-2", Submission: validSubmission()})
	require.NoError(t, err)

	require.NoError(t, f.processor.ProcessMessage(context.Background(), body))
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), f.store.inserted[0].Date)
}
