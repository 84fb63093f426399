package port

import (
	"context"

	"github.com/rl1809/bookstore/internal/core/domain"
)

type CatalogRepository interface {
	// GetBook returns domain.ErrBookNotFound when the ID is unknown
	GetBook(ctx context.Context, id int64) (*domain.Book, error)

	// GetBooks returns the subset of ids that exist, keyed by ID
	GetBooks(ctx context.Context, ids []int64) (map[int64]domain.Book, error)

	// SearchBooks lists in-stock books matching the query
	SearchBooks(ctx context.Context, q domain.BookQuery) (domain.BookPage, error)

	FeaturedBooks(ctx context.Context, limit int) ([]domain.Book, error)

	// BooksByAuthor lists in-stock books by author, excluding one ID
	BooksByAuthor(ctx context.Context, author string, excludeID int64, limit int) ([]domain.Book, error)

	// SaveBook inserts or updates a book keyed by ISBN and returns the stored row.
	// Stock is only taken on insert; existing stock changes go through AdjustStock.
	SaveBook(ctx context.Context, book domain.Book) (*domain.Book, error)

	// AdjustStock adds delta to stock, refusing to go below zero
	AdjustStock(ctx context.Context, id int64, delta int) (int, error)
}

type CartRepository interface {
	CartEntries(ctx context.Context, userID string) ([]domain.CartEntry, error)

	// GetCartEntry returns domain.ErrCartEntryNotFound when absent
	GetCartEntry(ctx context.Context, userID string, bookID int64) (*domain.CartEntry, error)

	// PutCartEntry creates the entry or overwrites its quantity
	PutCartEntry(ctx context.Context, entry domain.CartEntry) error

	// DeleteCartEntry returns domain.ErrCartEntryNotFound when absent
	DeleteCartEntry(ctx context.Context, userID string, bookID int64) error
}

type OrderRepository interface {
	// GetOrder loads an order with its lines, domain.ErrOrderNotFound when absent
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)

	// ListOrders returns a user's orders newest first
	ListOrders(ctx context.Context, userID string, page, pageSize int) (domain.OrderPage, error)

	MarkNotificationSent(ctx context.Context, id int64) error
}

type ProfileRepository interface {
	// GetProfile returns domain.ErrProfileNotFound when none was saved
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)

	// SaveProfile creates or replaces the profile for its UserID
	SaveProfile(ctx context.Context, profile domain.Profile) (*domain.Profile, error)
}

// Tx is the set of writes that must commit or roll back together.
type Tx interface {
	// CartEntries reads and locks a user's cart
	CartEntries(ctx context.Context, userID string) ([]domain.CartEntry, error)

	// LockBooks row-locks the given books in ascending ID order
	LockBooks(ctx context.Context, ids []int64) (map[int64]domain.Book, error)

	// DecrementStock reports false when stock is below qty
	DecrementStock(ctx context.Context, bookID int64, qty int) (bool, error)

	IncrementStock(ctx context.Context, bookID int64, qty int) error

	// InsertOrder persists the order and lines, assigning order.ID
	InsertOrder(ctx context.Context, order *domain.Order) error

	ClearCart(ctx context.Context, userID string) error

	// LockOrder reads and locks an order with its lines
	LockOrder(ctx context.Context, id int64) (*domain.Order, error)

	SetOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) error
}

type Transactor interface {
	// WithinTx commits when fn returns nil and rolls back otherwise
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Store is a complete persistence backend.
type Store interface {
	CatalogRepository
	CartRepository
	OrderRepository
	ProfileRepository
	Transactor
	Close() error
}
