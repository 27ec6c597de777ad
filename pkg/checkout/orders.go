package checkout

import (
	"context"
	"errors"
	"sort"

	"github.com/example/storefront/pkg/apperr"
	"github.com/example/storefront/pkg/events"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

// CancelOrder cancels a pending order on behalf of its owner or an admin
// and puts every tracked unit back in stock.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID string, admin bool) (*models.Order, error) {
	var order *models.Order
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !admin && o.UserID != userID {
			return apperr.Forbidden("you can only cancel your own orders")
		}
		if o.Status != models.OrderPending {
			return apperr.Validation("order cannot be cancelled in status %s", o.Status)
		}
		if err := cancelLocked(ctx, tx, o); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidateOrder(ctx, order.ID)
	s.logger.Info("Order cancelled",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.Bool("admin", admin))
	s.dispatch(events.OrderCancelled, order, userID, nil)
	return order, nil
}

// cancelLocked restores stock and flips the locked order to cancelled.
// Coupon and bundle counters are left as they are.
func cancelLocked(ctx context.Context, tx *repository.Store, o *models.Order) error {
	items := append([]models.OrderItem(nil), o.Items...)
	sort.Slice(items, func(i, j int) bool {
		if items[i].ProductID != items[j].ProductID {
			return items[i].ProductID < items[j].ProductID
		}
		return items[i].VariantID < items[j].VariantID
	})
	for _, item := range items {
		var err error
		if item.VariantID != "" {
			err = tx.RestoreVariantStock(ctx, item.VariantID, item.Quantity)
		} else {
			err = tx.RestoreStock(ctx, item.ProductID, item.Quantity)
		}
		if err != nil {
			return err
		}
	}

	payment := models.PaymentFailed
	if o.PaymentStatus == models.PaymentPaid {
		payment = models.PaymentRefunded
	}
	err := tx.UpdateOrder(ctx, o.ID, map[string]any{
		"status":         models.OrderCancelled,
		"payment_status": payment,
	})
	if err != nil {
		return err
	}
	o.Status = models.OrderCancelled
	o.PaymentStatus = payment
	return nil
}

type StatusUpdate struct {
	Status         models.OrderStatus `json:"status" binding:"required"`
	TrackingNumber string             `json:"tracking_number"`
}

// UpdateOrderStatus moves an order along its lifecycle. Moving to
// cancelled takes the cancellation path so stock is restored.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, in StatusUpdate, actorID string) (*models.Order, error) {
	if !in.Status.Valid() {
		return nil, apperr.Invalid("invalid status", apperr.FieldError{
			Field:   "status",
			Message: "must be one of pending, processing, shipped, delivered, cancelled, refunded",
		})
	}

	var (
		order    *models.Order
		previous models.OrderStatus
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		previous = o.Status
		if !o.Status.CanTransition(in.Status) {
			return apperr.Validation("cannot change order status from %s to %s", o.Status, in.Status)
		}

		if in.Status == models.OrderCancelled && o.Status != models.OrderCancelled {
			if err := cancelLocked(ctx, tx, o); err != nil {
				return err
			}
			order = o
			return nil
		}

		now := s.now()
		fields := map[string]any{"status": in.Status}
		switch in.Status {
		case models.OrderShipped:
			if o.ShippedAt == nil {
				fields["shipped_at"] = now
			}
			if in.TrackingNumber != "" {
				fields["tracking_number"] = in.TrackingNumber
			}
		case models.OrderDelivered:
			if o.ShippedAt == nil {
				fields["shipped_at"] = now
			}
			if o.DeliveredAt == nil {
				fields["delivered_at"] = now
			}
		}
		if err := tx.UpdateOrder(ctx, o.ID, fields); err != nil {
			return err
		}
		order, err = tx.GetOrder(ctx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateOrder(ctx, order.ID)
	if previous == order.Status {
		return order, nil
	}

	s.logger.Info("Order status changed",
		zap.String("order_id", order.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(order.Status)),
		zap.String("actor_id", actorID))

	evt := events.OrderStatusChanged
	if order.Status == models.OrderCancelled {
		evt = events.OrderCancelled
	}
	s.dispatch(evt, order, actorID, map[string]any{"previous_status": string(previous)})
	return order, nil
}

type PaymentUpdate struct {
	PaymentStatus models.PaymentStatus `json:"payment_status" binding:"required"`
}

// UpdatePaymentStatus writes the payment status as given.
func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID string, in PaymentUpdate, actorID string) (*models.Order, error) {
	if !in.PaymentStatus.Valid() {
		return nil, apperr.Invalid("invalid payment status", apperr.FieldError{
			Field:   "payment_status",
			Message: "must be one of pending, paid, failed, refunded",
		})
	}

	var (
		order    *models.Order
		previous models.PaymentStatus
	)
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		o, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		previous = o.PaymentStatus
		if err := tx.UpdateOrder(ctx, o.ID, map[string]any{"payment_status": in.PaymentStatus}); err != nil {
			return err
		}
		order, err = tx.GetOrder(ctx, o.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateOrder(ctx, order.ID)
	if previous != order.PaymentStatus {
		s.logger.Info("Order payment status changed",
			zap.String("order_id", order.ID),
			zap.String("from", string(previous)),
			zap.String("to", string(order.PaymentStatus)),
			zap.String("actor_id", actorID))
		s.dispatch(events.OrderPaymentStatusChanged, order, actorID, map[string]any{"previous_payment_status": string(previous)})
	}
	return order, nil
}

// GetOrder reads through the order cache.
func (s *Service) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if s.cache != nil {
		o, err := s.cache.GetCachedOrder(ctx, id)
		if err == nil {
			return o, nil
		}
		if !errors.Is(err, repository.ErrCacheMiss) {
			s.logger.Warn("Order cache read failed", zap.String("order_id", id), zap.Error(err))
		}
	}

	o, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.CacheOrder(ctx, o, s.opts.OrderTTL); err != nil {
			s.logger.Warn("Failed to cache order", zap.String("order_id", id), zap.Error(err))
		}
	}
	return o, nil
}

// GetMyOrder hides orders of other users behind not found.
func (s *Service) GetMyOrder(ctx context.Context, userID, id string) (*models.Order, error) {
	o, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, apperr.NotFound("order not found")
	}
	return o, nil
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int64 `json:"pages"`
}

type OrderPage struct {
	Orders     []models.Order `json:"orders"`
	Pagination Pagination     `json:"pagination"`
}

func (s *Service) ListOrders(ctx context.Context, f repository.OrderFilter) (*OrderPage, error) {
	f = f.Normalized()
	orders, total, err := s.store.ListOrders(ctx, f)
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []models.Order{}
	}
	pages := total / int64(f.Limit)
	if total%int64(f.Limit) != 0 {
		pages++
	}
	return &OrderPage{
		Orders:     orders,
		Pagination: Pagination{Page: f.Page, Limit: f.Limit, Total: total, Pages: pages},
	}, nil
}

func (s *Service) ListMyOrders(ctx context.Context, userID string, page, limit int) (*OrderPage, error) {
	return s.ListOrders(ctx, repository.OrderFilter{UserID: userID, Page: page, Limit: limit})
}

const recentOrders = 10

func (s *Service) Stats(ctx context.Context) (*repository.OrderStats, error) {
	return s.store.OrderStats(ctx, recentOrders)
}
