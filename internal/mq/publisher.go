package mq

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// publishChannel is the part of *amqp.Channel the publisher uses
type publishChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher handles message publishing to one RabbitMQ exchange
type Publisher struct {
	channel  publishChannel
	exchange string
	logger   *zap.Logger
}

// NewPublisher creates a new RabbitMQ publisher
func NewPublisher(conn *Connection, exchange string, logger *zap.Logger) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	// Declare exchange
	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	return newPublisher(ch, exchange, logger), nil
}

func newPublisher(ch publishChannel, exchange string, logger *zap.Logger) *Publisher {
	return &Publisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger,
	}
}

// PublishSubmission queues a log submission for ingestion
func (p *Publisher) PublishSubmission(ctx context.Context, msg SubmittedMessage, routingKey string) error {
	if err := p.publishJSON(ctx, routingKey, msg.RequestID, msg); err != nil {
		return err
	}

	p.logger.Debug("published log submission",
		zap.String("routing_key", routingKey),
		zap.String("request_id", msg.RequestID),
		zap.Int64("location_id", msg.Submission.LocationID),
	)
	return nil
}

// PublishAccepted announces a stored log
func (p *Publisher) PublishAccepted(ctx context.Context, event LogAcceptedEvent, routingKey string) error {
	if err := p.publishJSON(ctx, routingKey, event.RequestID, event); err != nil {
		return err
	}

	p.logger.Debug("published log accepted event",
		zap.String("routing_key", routingKey),
		zap.Int64("log_id", event.LogID),
	)
	return nil
}

func (p *Publisher) publishJSON(ctx context.Context, routingKey, messageID string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    messageID,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", p.exchange, err)
	}

	return nil
}

// Close closes the publisher channel
func (p *Publisher) Close() error {
	if p.channel != nil {
		return p.channel.Close()
	}
	return nil
}
