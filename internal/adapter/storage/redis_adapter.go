package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/restock-agent/internal/core/domain"
)

const (
	stockKeyPrefix   = "stock:"
	invoiceKeyPrefix = "invoice:"
	proofKeyPrefix   = "proof:"
)

// Floors at zero: a sale larger than the stock takes what is left.
// Returns the units taken.
var decrementStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return 0
end

current = tonumber(current)
local taken = math.min(current, quantity)
if taken <= 0 then
	return 0
end

redis.call('DECRBY', key, taken)
return taken
`)

type RedisAdapter struct {
	client *redis.Client
	// proofRetention bounds how long spent proofs are remembered; zero keeps them forever
	proofRetention time.Duration
}

func NewRedisAdapter(client *redis.Client, proofRetention time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, proofRetention: proofRetention}
}

func (r *RedisAdapter) DecrementStock(ctx context.Context, item string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, nil
	}
	key := stockKeyPrefix + item
	return decrementStockScript.Run(ctx, r.client, []string{key}, quantity).Int()
}

func (r *RedisAdapter) IncrementStock(ctx context.Context, item string, quantity int) (int, error) {
	key := stockKeyPrefix + item
	level, err := r.client.IncrBy(ctx, key, int64(quantity)).Result()
	if err != nil {
		return 0, err
	}
	return int(level), nil
}

func (r *RedisAdapter) Level(ctx context.Context, item string) (int, error) {
	level, err := r.client.Get(ctx, stockKeyPrefix+item).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return level, nil
}

func (r *RedisAdapter) SetStock(ctx context.Context, item string, quantity int) error {
	key := stockKeyPrefix + item
	return r.client.Set(ctx, key, quantity, 0).Err()
}

func (r *RedisAdapter) SaveInvoice(ctx context.Context, inv domain.Invoice, ttl time.Duration) error {
	payload, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("encode invoice: %w", err)
	}
	return r.client.Set(ctx, invoiceKeyPrefix+inv.InvoiceID, payload, ttl).Err()
}

func (r *RedisAdapter) GetInvoice(ctx context.Context, invoiceID string) (*domain.Invoice, error) {
	payload, err := r.client.Get(ctx, invoiceKeyPrefix+invoiceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var inv domain.Invoice
	if err := json.Unmarshal(payload, &inv); err != nil {
		return nil, fmt.Errorf("decode invoice: %w", err)
	}
	return &inv, nil
}

func (r *RedisAdapter) ClaimProof(ctx context.Context, proof string) (bool, error) {
	ok, err := r.client.SetNX(ctx, proofKeyPrefix+proof, 1, r.proofRetention).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseProof(ctx context.Context, proof string) error {
	return r.client.Del(ctx, proofKeyPrefix+proof).Err()
}
