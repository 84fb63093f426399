package port

import (
	"context"

	"github.com/rl1809/bookstore/internal/core/domain"
)

type Notifier interface {
	// SendConfirmation delivers the order confirmation with eBook attachments
	SendConfirmation(ctx context.Context, order domain.Order, customer domain.Customer) error
}

type EbookStore interface {
	FetchEbook(ctx context.Context, key string) ([]byte, error)
	PutEbook(ctx context.Context, key string, data []byte, contentType string) error
}

type CoverStore interface {
	FetchCover(ctx context.Context, key string) ([]byte, string, error)
	PutCover(ctx context.Context, key string, data []byte, contentType string) error
}

type BookIndex interface {
	IndexBook(ctx context.Context, book domain.Book) error

	// SearchBookIDs returns matching IDs in rank order and the total hit count
	SearchBookIDs(ctx context.Context, q domain.BookQuery) ([]int64, int, error)
}
