package port

import (
	"context"

	"github.com/rl1809/bookstore/internal/core/domain"
)

type CacheRepository interface {
	// SetIdempotency claims a key, returns false if already claimed
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// CompleteIdempotency records the order a claimed key produced
	CompleteIdempotency(ctx context.Context, key string, orderID int64) error

	// IdempotentOrder returns the order a completed key produced, 0 while
	// the key is pending or unknown
	IdempotentOrder(ctx context.Context, key string) (int64, error)

	// ReleaseIdempotency frees a claimed key that never completed
	ReleaseIdempotency(ctx context.Context, key string) error

	// GetBook returns nil, nil on a cache miss
	GetBook(ctx context.Context, id int64) (*domain.Book, error)

	SetBook(ctx context.Context, book domain.Book) error

	InvalidateBooks(ctx context.Context, ids ...int64) error
}
