package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/rl1809/bookstore/internal/core/domain"
)

const (
	bookKeyPrefix     = "book:"
	idempotencyKeyTTL = 24 * time.Hour
	bookCacheTTL      = 10 * time.Minute
	idempotencyClaim  = "pending"
)

// Deletes the key only while it is still an unfinished claim, so a late
// release never drops a key that already points at an order.
var releaseIdempotencyScript = redis.NewScript(`
local key = KEYS[1]

local current = redis.call('GET', key)
if current == ARGV[1] then
	redis.call('DEL', key)
	return 1
end

return 0
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, key, idempotencyClaim, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) CompleteIdempotency(ctx context.Context, key string, orderID int64) error {
	return r.client.Set(ctx, key, strconv.FormatInt(orderID, 10), idempotencyKeyTTL).Err()
}

func (r *RedisAdapter) IdempotentOrder(ctx context.Context, key string) (int64, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) || val == idempotencyClaim {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	id, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("decode idempotent order %q: %w", val, err)
	}
	return id, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return releaseIdempotencyScript.Run(ctx, r.client, []string{key}, idempotencyClaim).Err()
}

type cachedBook struct {
	ID            int64           `json:"id"`
	ISBN          string          `json:"isbn"`
	Title         string          `json:"title"`
	Author        string          `json:"author"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity"`
	Featured      bool            `json:"featured"`
	EbookKey      string          `json:"ebook_key"`
	CoverKey      string          `json:"cover_key"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func bookKey(id int64) string {
	return bookKeyPrefix + strconv.FormatInt(id, 10)
}

func (r *RedisAdapter) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	data, err := r.client.Get(ctx, bookKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var c cachedBook
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode cached book: %w", err)
	}
	b := domain.Book(c)
	return &b, nil
}

func (r *RedisAdapter) SetBook(ctx context.Context, book domain.Book) error {
	data, err := json.Marshal(cachedBook(book))
	if err != nil {
		return err
	}
	return r.client.Set(ctx, bookKey(book.ID), data, bookCacheTTL).Err()
}

func (r *RedisAdapter) InvalidateBooks(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = bookKey(id)
	}
	return r.client.Del(ctx, keys...).Err()
}
