package notify

import (
	"context"

	"github.com/google/uuid"
)

// Nop is a no-op emitter for AMQP-less development and tests.
// It satisfies service.Notifier and service.InvoiceRequester.
type Nop struct{}

func (Nop) Notify(context.Context, uuid.UUID, string, string, string, map[string]any) {}

func (Nop) RequestInvoice(context.Context, uuid.UUID) error { return nil }

func (Nop) Close() error { return nil }
