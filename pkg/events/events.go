package events

import (
	"context"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
)

type Type string

const (
	OrderCreated              Type = "order.created"
	OrderCancelled            Type = "order.cancelled"
	OrderStatusChanged        Type = "order.status_changed"
	OrderPaymentStatusChanged Type = "order.payment_status_changed"
)

// OrderEvent is emitted after an order transaction commits.
type OrderEvent struct {
	Type          Type           `json:"type"`
	OrderID       string         `json:"order_id"`
	OrderNumber   string         `json:"order_number"`
	UserID        string         `json:"user_id"`
	ActorID       string         `json:"actor_id,omitempty"`
	Status        string         `json:"status"`
	PaymentStatus string         `json:"payment_status"`
	Total         string         `json:"total"`
	Data          map[string]any `json:"data,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// NewOrderEvent snapshots an order for publication.
func NewOrderEvent(t Type, o *models.Order, actorID string, data map[string]any) *OrderEvent {
	return &OrderEvent{
		Type:          t,
		OrderID:       o.ID,
		OrderNumber:   o.OrderNumber,
		UserID:        o.UserID,
		ActorID:       actorID,
		Status:        string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		Total:         o.Total.StringFixed(2),
		Data:          data,
		OccurredAt:    time.Now().UTC(),
	}
}

// AuditSink stores audit records; *repository.MongoRepository implements it.
type AuditSink interface {
	CreateAuditLog(ctx context.Context, log *repository.AuditLog) error
}

// Publisher ships events to the outside world.
type Publisher interface {
	Publish(ctx context.Context, evt *OrderEvent) error
}

// Dispatcher accepts events without blocking the caller.
type Dispatcher interface {
	Dispatch(evt *OrderEvent)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Dispatch(*OrderEvent) {}
