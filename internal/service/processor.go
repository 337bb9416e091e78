package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/septivank/compost-logbook/internal/db"
	"github.com/septivank/compost-logbook/internal/logging"
	"github.com/septivank/compost-logbook/internal/mq"
	"github.com/septivank/compost-logbook/internal/privacy"
	"github.com/septivank/compost-logbook/internal/validator"
	"github.com/septivank/compost-logbook/tools/timeparser"
)

// ErrMalformedMessage is returned for queue messages that are not valid JSON
var ErrMalformedMessage = errors.New("malformed message")

// LogStore stores accepted logs
type LogStore interface {
	InsertLog(ctx context.Context, log *db.LogEntry) (int64, error)
}

// EventPublisher announces accepted logs
type EventPublisher interface {
	PublishAccepted(ctx context.Context, event mq.LogAcceptedEvent, routingKey string) error
}

// EmailEncrypter seals emails before they are stored
type EmailEncrypter interface {
	Encrypt(plaintext string) (string, error)
}

// ProcessorService turns queued submissions into stored logs
type ProcessorService struct {
	repo       LogStore
	publisher  EventPublisher
	encrypter  EmailEncrypter
	loc        *time.Location
	routingKey string
	now        func() time.Time
	logger     *zap.Logger
}

// NewProcessorService creates a new processor service. Log dates and times
// are stamped in loc; accepted events go out with routingKey.
func NewProcessorService(
	repo LogStore,
	publisher EventPublisher,
	encrypter EmailEncrypter,
	loc *time.Location,
	routingKey string,
	logger *zap.Logger,
) *ProcessorService {
	return &ProcessorService{
		repo:       repo,
		publisher:  publisher,
		encrypter:  encrypter,
		loc:        loc,
		routingKey: routingKey,
		now:        time.Now,
		logger:     logger,
	}
}

// IsPermanent reports whether err means the message can never be processed
func IsPermanent(err error) bool {
	return errors.Is(err, ErrMalformedMessage) || errors.Is(err, validator.ErrValidation)
}

// ProcessMessage processes an incoming log submission message
func (s *ProcessorService) ProcessMessage(ctx context.Context, body []byte) error {
	var msg mq.SubmittedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	reqLogger := logging.WithRequestID(s.logger, msg.RequestID)
	reqLogger.Info("processing log submission",
		zap.Int64("location_id", msg.Submission.LocationID),
		zap.String("activity", msg.Submission.Activity),
	)

	if err := validator.ValidateLog(validator.LogInput(msg.Submission)); err != nil {
		reqLogger.Warn("rejecting invalid submission", zap.Error(err))
		return err
	}

	receivedAt := msg.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = s.now()
	}
	date, clock := timeparser.SplitLocal(receivedAt, s.loc)

	entry := &db.LogEntry{
		Date:         date,
		Time:         clock,
		LocationID:   msg.Submission.LocationID,
		LocationName: msg.Submission.LocationName,
		Activity:     db.Activity(msg.Submission.Activity),
		WeightKg:     msg.Submission.WeightKg,
		DeviceID:     msg.Submission.DeviceID,
	}

	if email := privacy.NormalizeEmail(msg.Submission.Email); email != "" {
		ciphertext, err := s.encrypter.Encrypt(email)
		if err != nil {
			reqLogger.Error("failed to encrypt email", zap.Error(err))
			return fmt.Errorf("failed to encrypt email: %w", err)
		}
		entry.EmailCiphertext = ciphertext
		entry.EmailHash = privacy.Hash(email)
	}

	id, err := s.repo.InsertLog(ctx, entry)
	if err != nil {
		reqLogger.Error("failed to store log", zap.Error(err))
		return fmt.Errorf("failed to store log: %w", err)
	}

	event := mq.LogAcceptedEvent{
		LogID:      id,
		RequestID:  msg.RequestID,
		LocationID: entry.LocationID,
		Activity:   string(entry.Activity),
		WeightKg:   entry.WeightKg,
		LogDate:    timeparser.FormatDate(entry.Date),
		LogTime:    entry.Time,
		HasEmail:   entry.EmailHash != "",
	}
	if err := s.publisher.PublishAccepted(ctx, event, s.routingKey); err != nil {
		// Log error but don't fail: the log is already stored
		reqLogger.Error("failed to publish event",
			zap.Error(err),
			zap.Int64("log_id", id),
		)
	}

	reqLogger.Info("log stored successfully", zap.Int64("log_id", id))
	return nil
}
