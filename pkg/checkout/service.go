package checkout

import (
	"context"
	"time"

	"github.com/example/storefront/pkg/events"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/pricing"
	"github.com/example/storefront/pkg/promotion"
	"github.com/example/storefront/pkg/repository"
	"go.uber.org/zap"
)

// Cache is the subset of *repository.RedisRepository checkout relies on.
type Cache interface {
	GetCachedCoupon(ctx context.Context, code string) (*models.Coupon, error)
	CacheCoupon(ctx context.Context, c *models.Coupon, ttl time.Duration) error
	InvalidateCoupon(ctx context.Context, code string) error

	GetCachedOrder(ctx context.Context, id string) (*models.Order, error)
	CacheOrder(ctx context.Context, o *models.Order, ttl time.Duration) error
	InvalidateOrder(ctx context.Context, id string) error

	ReserveIdempotencyKey(ctx context.Context, userID, key string, ttl time.Duration) (bool, error)
	CompleteIdempotencyKey(ctx context.Context, userID, key, orderID string, ttl time.Duration) error
	IdempotencyResult(ctx context.Context, userID, key string) (string, error)
	ReleaseIdempotencyKey(ctx context.Context, userID, key string) error
}

var _ Cache = (*repository.RedisRepository)(nil)

type Options struct {
	Rates pricing.Rates
	// Cache and Events are optional.
	Cache          Cache
	Events         events.Dispatcher
	IdempotencyTTL time.Duration
	CouponTTL      time.Duration
	OrderTTL       time.Duration
	Now            func() time.Time
}

// Service runs checkout, cancellation and order administration. Every
// operation that touches stock or promotion counters runs in one
// transaction.
type Service struct {
	store     *repository.Store
	evaluator *promotion.Evaluator
	rates     pricing.Rates
	cache     Cache
	events    events.Dispatcher
	opts      Options
	now       func() time.Time
	logger    *zap.Logger
}

func NewService(store *repository.Store, evaluator *promotion.Evaluator, opts Options, logger *zap.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Events == nil {
		opts.Events = events.Discard{}
	}
	if opts.Rates.TaxRate.IsZero() && opts.Rates.ShippingFee.IsZero() {
		opts.Rates = pricing.DefaultRates
	}
	return &Service{
		store:     store,
		evaluator: evaluator.WithClock(opts.Now),
		rates:     opts.Rates,
		cache:     opts.Cache,
		events:    opts.Events,
		opts:      opts,
		now:       opts.Now,
		logger:    logger.Named("checkout"),
	}
}

func (s *Service) dispatch(t events.Type, o *models.Order, actorID string, data map[string]any) {
	s.events.Dispatch(events.NewOrderEvent(t, o, actorID, data))
}

func (s *Service) invalidateOrder(ctx context.Context, id string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateOrder(ctx, id); err != nil {
		s.logger.Warn("Failed to invalidate order cache", zap.String("order_id", id), zap.Error(err))
	}
}

func (s *Service) invalidateCoupon(ctx context.Context, code string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateCoupon(ctx, code); err != nil {
		s.logger.Warn("Failed to invalidate coupon cache", zap.String("coupon_code", code), zap.Error(err))
	}
}
