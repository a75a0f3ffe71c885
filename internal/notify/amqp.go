// Package notify implements the outbound side channels: the fire-and-forget
// notification emitter invoked on dispatch transitions, and the invoice
// request published when a trip is delivered. Both publish JSON messages to
// RabbitMQ queues consumed by out-of-scope collaborators.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/google/uuid"
)

const (
	notificationsQueue = "dispatch.notifications"
	invoicesQueue      = "billing.invoice_requests"

	publishTimeout = 5 * time.Second
)

// notification is the wire format on the notifications queue.
type notification struct {
	UserID  string         `json:"user_id"`
	Type    string         `json:"type"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
	SentAt  time.Time      `json:"sent_at"`
}

// invoiceRequest is the wire format on the invoice queue. The billing
// consumer is idempotent on trip_id, so redelivery is harmless.
type invoiceRequest struct {
	TripID      string    `json:"trip_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// AMQPEmitter publishes notifications and invoice requests to RabbitMQ.
// It satisfies service.Notifier and service.InvoiceRequester.
type AMQPEmitter struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
}

// NewAMQPEmitter dials RabbitMQ and declares the outbound queues.
func NewAMQPEmitter(url string, logger *slog.Logger) (*AMQPEmitter, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("notify.NewAMQPEmitter: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("notify.NewAMQPEmitter: channel: %w", err)
	}

	for _, queue := range []string{notificationsQueue, invoicesQueue} {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("notify.NewAMQPEmitter: declare %s: %w", queue, err)
		}
	}

	return &AMQPEmitter{conn: conn, ch: ch, logger: logger}, nil
}

// Notify publishes a notification for a user. It is fire-and-forget: the
// dispatch core never consumes a result, so failures are logged here and
// swallowed.
func (e *AMQPEmitter) Notify(ctx context.Context, userID uuid.UUID, typ, title, message string, data map[string]any) {
	msg := notification{
		UserID:  userID.String(),
		Type:    typ,
		Title:   title,
		Message: message,
		Data:    data,
		SentAt:  time.Now().UTC(),
	}

	if err := e.publish(ctx, notificationsQueue, msg); err != nil {
		e.logger.WarnContext(ctx, "notification publish failed",
			"user_id", userID, "type", typ, "error", err)
	}
}

// RequestInvoice asks the billing collaborator to invoice a delivered trip.
func (e *AMQPEmitter) RequestInvoice(ctx context.Context, tripID uuid.UUID) error {
	msg := invoiceRequest{TripID: tripID.String(), RequestedAt: time.Now().UTC()}
	if err := e.publish(ctx, invoicesQueue, msg); err != nil {
		return fmt.Errorf("notify.AMQPEmitter.RequestInvoice: %w", err)
	}
	return nil
}

func (e *AMQPEmitter) publish(ctx context.Context, queue string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return e.ch.PublishWithContext(ctx, "", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Close releases the channel and connection. Called once at shutdown.
func (e *AMQPEmitter) Close() error {
	if err := e.ch.Close(); err != nil {
		e.conn.Close()
		return fmt.Errorf("notify.AMQPEmitter.Close: %w", err)
	}
	return e.conn.Close()
}
