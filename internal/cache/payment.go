package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/altpay/payment-pipeline/internal/domain"
)

var ErrMiss = errors.New("cache miss")

// PaymentCache keeps recently read payments in Redis, keyed by id or by
// payment number. Entries expire on a short TTL; state changes are not
// invalidated eagerly, so cached reads may trail the machine by up to the
// TTL.
type PaymentCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPaymentCache(client *redis.Client, ttl time.Duration) *PaymentCache {
	return &PaymentCache{client: client, ttl: ttl}
}

type cachedPayment struct {
	ID            uuid.UUID       `json:"id"`
	PaymentNumber int64           `json:"payment_number"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     time.Time       `json:"timestamp"`
	PayerName     string          `json:"payer_name"`
	State         string          `json:"state"`
}

func (c *PaymentCache) Get(ctx context.Context, key string) (*domain.Payment, error) {
	raw, err := c.client.Get(ctx, prefixed(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("cache.Get: %w", err)
	}

	var cp cachedPayment
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, fmt.Errorf("cache.Get: %w", err)
	}

	return &domain.Payment{
		ID:            cp.ID,
		PaymentNumber: cp.PaymentNumber,
		Amount:        cp.Amount,
		Timestamp:     cp.Timestamp,
		PayerName:     cp.PayerName,
		State:         domain.State(cp.State),
	}, nil
}

func (c *PaymentCache) Set(ctx context.Context, key string, p *domain.Payment) error {
	raw, err := json.Marshal(cachedPayment{
		ID:            p.ID,
		PaymentNumber: p.PaymentNumber,
		Amount:        p.Amount,
		Timestamp:     p.Timestamp,
		PayerName:     p.PayerName,
		State:         string(p.State),
	})
	if err != nil {
		return fmt.Errorf("cache.Set: %w", err)
	}

	if err := c.client.Set(ctx, prefixed(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache.Set: %w", err)
	}
	return nil
}

func prefixed(key string) string {
	return "payments:" + key
}
