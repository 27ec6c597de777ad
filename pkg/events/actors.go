package events

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/example/storefront/pkg/repository"
	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
)

const serviceName = "storefront"

// OrderEventActor writes each event to the audit log and publishes it.
// Failures are logged; events are never redelivered.
type OrderEventActor struct {
	audit     AuditSink
	publisher Publisher
	logger    *zap.Logger
	timeout   time.Duration
}

type flush struct{}

type flushed struct{}

func (a *OrderEventActor) Receive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *OrderEvent:
		a.handle(msg)

	case *flush:
		ctx.Respond(&flushed{})

	case *actor.Started:
		a.logger.Info("Order event actor started")

	case *actor.Stopping:
		a.logger.Info("Order event actor stopping")
	}
}

func (a *OrderEventActor) handle(evt *OrderEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if a.audit != nil {
		data := bson.M{
			"order_number":   evt.OrderNumber,
			"user_id":        evt.UserID,
			"status":         evt.Status,
			"payment_status": evt.PaymentStatus,
			"total":          evt.Total,
		}
		for k, v := range evt.Data {
			data[k] = v
		}
		err := a.audit.CreateAuditLog(ctx, &repository.AuditLog{
			Service:   serviceName,
			Action:    string(evt.Type),
			EntityID:  evt.OrderID,
			ActorID:   evt.ActorID,
			Data:      data,
			CreatedAt: evt.OccurredAt,
		})
		if err != nil {
			a.logger.Error("Failed to write audit log",
				zap.String("order_id", evt.OrderID),
				zap.String("event", string(evt.Type)),
				zap.Error(err))
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Publish(ctx, evt); err != nil {
			a.logger.Error("Failed to publish order event",
				zap.String("order_id", evt.OrderID),
				zap.String("event", string(evt.Type)),
				zap.Error(err))
		}
	}
}

// ActorDispatcher hands events to an OrderEventActor mailbox.
type ActorDispatcher struct {
	system *actor.ActorSystem
	pid    *actor.PID
	logger *zap.Logger
}

// NewActorDispatcher starts the event actor. audit and publisher may be nil.
func NewActorDispatcher(audit AuditSink, publisher Publisher, logger *zap.Logger) (*ActorDispatcher, error) {
	system := actor.NewActorSystem()

	props := actor.PropsFromProducer(func() actor.Actor {
		return &OrderEventActor{
			audit:     audit,
			publisher: publisher,
			logger:    logger.Named("order-event-actor"),
			timeout:   5 * time.Second,
		}
	})
	pid, err := system.Root.SpawnNamed(props, "order-events")
	if err != nil {
		return nil, fmt.Errorf("failed to spawn order event actor: %w", err)
	}

	return &ActorDispatcher{system: system, pid: pid, logger: logger}, nil
}

func (d *ActorDispatcher) Dispatch(evt *OrderEvent) {
	d.system.Root.Send(d.pid, evt)
}

// Flush waits until every event dispatched before the call was handled.
func (d *ActorDispatcher) Flush(timeout time.Duration) error {
	res, err := d.system.Root.RequestFuture(d.pid, &flush{}, timeout).Result()
	if err != nil {
		return fmt.Errorf("failed to flush order events: %w", err)
	}
	if _, ok := res.(*flushed); !ok {
		return fmt.Errorf("unexpected flush reply %T", res)
	}
	return nil
}

// Stop drains the mailbox and stops the actor.
func (d *ActorDispatcher) Stop() error {
	return d.system.Root.PoisonFuture(d.pid).Wait()
}
