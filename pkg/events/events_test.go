package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"
)

type fakeAudit struct {
	mu   sync.Mutex
	logs []*repository.AuditLog
}

func (f *fakeAudit) CreateAuditLog(_ context.Context, log *repository.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, log)
	return nil
}

type fakeWriter struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func testOrder() *models.Order {
	return &models.Order{
		ID: "o1", OrderNumber: "ORD-1", UserID: "u1",
		Status: models.OrderPending, PaymentStatus: models.PaymentPending,
		Total: decimal.RequireFromString("39.99"),
	}
}

func TestActorDispatcherFansOut(t *testing.T) {
	audit := &fakeAudit{}
	writer := &fakeWriter{}
	d, err := NewActorDispatcher(audit, &KafkaPublisher{writer: writer}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewActorDispatcher: %v", err)
	}
	defer d.Stop()

	d.Dispatch(NewOrderEvent(OrderCreated, testOrder(), "u1", map[string]any{"items": 2}))
	d.Dispatch(NewOrderEvent(OrderCancelled, testOrder(), "u1", nil))
	if err := d.Flush(2 * time.Second); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.logs) != 2 {
		t.Fatalf("audit logs = %d, want 2", len(audit.logs))
	}
	first := audit.logs[0]
	if first.Action != string(OrderCreated) || first.EntityID != "o1" || first.Data["items"] != 2 {
		t.Errorf("audit log = %+v", first)
	}

	writer.mu.Lock()
	defer writer.mu.Unlock()
	if len(writer.msgs) != 2 {
		t.Fatalf("kafka messages = %d, want 2", len(writer.msgs))
	}
	if got := string(writer.msgs[1].Key); got != "order-order.cancelled-o1" {
		t.Errorf("key = %q", got)
	}
	var evt OrderEvent
	if err := json.Unmarshal(writer.msgs[0].Value, &evt); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Total != "39.99" || evt.OrderNumber != "ORD-1" {
		t.Errorf("event = %+v", evt)
	}
}

func TestActorSurvivesPublishFailure(t *testing.T) {
	audit := &fakeAudit{}
	d, err := NewActorDispatcher(audit, &KafkaPublisher{writer: &fakeWriter{err: errors.New("broker down")}}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewActorDispatcher: %v", err)
	}
	defer d.Stop()

	d.Dispatch(NewOrderEvent(OrderStatusChanged, testOrder(), "admin", nil))
	d.Dispatch(NewOrderEvent(OrderStatusChanged, testOrder(), "admin", nil))
	if err := d.Flush(2 * time.Second); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	audit.mu.Lock()
	defer audit.mu.Unlock()
	if len(audit.logs) != 2 {
		t.Errorf("audit logs = %d, want 2 despite publish errors", len(audit.logs))
	}
}
