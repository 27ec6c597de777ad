package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/storefront/pkg/config"
	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/promotion"
	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned by cache reads when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return NewRedisRepositoryFromClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}))
}

func NewRedisRepositoryFromClient(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func couponKey(code string) string {
	return fmt.Sprintf("coupon:%s", promotion.NormalizeCode(code))
}

func orderKey(id string) string {
	return fmt.Sprintf("order:%s", id)
}

func idempotencyKey(userID, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", userID, key)
}

func (r *RedisRepository) CacheCoupon(ctx context.Context, c *models.Coupon, ttl time.Duration) error {
	return r.SetJSON(ctx, couponKey(c.Code), c, ttl)
}

func (r *RedisRepository) GetCachedCoupon(ctx context.Context, code string) (*models.Coupon, error) {
	var c models.Coupon
	if err := r.GetJSON(ctx, couponKey(code), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *RedisRepository) InvalidateCoupon(ctx context.Context, code string) error {
	return r.Del(ctx, couponKey(code))
}

func (r *RedisRepository) CacheOrder(ctx context.Context, o *models.Order, ttl time.Duration) error {
	return r.SetJSON(ctx, orderKey(o.ID), o, ttl)
}

func (r *RedisRepository) GetCachedOrder(ctx context.Context, id string) (*models.Order, error) {
	var o models.Order
	if err := r.GetJSON(ctx, orderKey(id), &o); err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *RedisRepository) InvalidateOrder(ctx context.Context, id string) error {
	return r.Del(ctx, orderKey(id))
}

const idempotencyPending = "pending"

// ReserveIdempotencyKey claims key for userID. It returns false when the key
// is already reserved or completed.
func (r *RedisRepository) ReserveIdempotencyKey(ctx context.Context, userID, key string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, idempotencyKey(userID, key), idempotencyPending, ttl).Result()
}

// CompleteIdempotencyKey records the order created under key.
func (r *RedisRepository) CompleteIdempotencyKey(ctx context.Context, userID, key, orderID string, ttl time.Duration) error {
	return r.client.Set(ctx, idempotencyKey(userID, key), orderID, ttl).Err()
}

// IdempotencyResult returns the order id stored under key, or "" while the
// request is still in flight.
func (r *RedisRepository) IdempotencyResult(ctx context.Context, userID, key string) (string, error) {
	v, err := r.client.Get(ctx, idempotencyKey(userID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", err
	}
	if v == idempotencyPending {
		return "", nil
	}
	return v, nil
}

func (r *RedisRepository) ReleaseIdempotencyKey(ctx context.Context, userID, key string) error {
	return r.Del(ctx, idempotencyKey(userID, key))
}
