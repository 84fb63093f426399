package service

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rl1809/bookstore/internal/adapter/storage"
	"github.com/rl1809/bookstore/internal/core/domain"
)

var errMailDown = errors.New("smtp: connection refused")

// Mock Notifier
type mockNotifier struct {
	mu    sync.Mutex
	sent  []domain.Order
	to    []domain.Customer
	fail  bool
	calls int
}

func (m *mockNotifier) SendConfirmation(ctx context.Context, order domain.Order, customer domain.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.fail {
		return errMailDown
	}
	m.sent = append(m.sent, order)
	m.to = append(m.to, customer)
	return nil
}

func (m *mockNotifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Mock CacheRepository
type mockCacheRepo struct {
	mu          sync.Mutex
	keys        map[string]string
	books       map[int64]domain.Book
	invalidated []int64
	bookReads   int
}

func newMockCacheRepo() *mockCacheRepo {
	return &mockCacheRepo{
		keys:  make(map[string]string),
		books: make(map[int64]domain.Book),
	}
}

func (m *mockCacheRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = "pending"
	return true, nil
}

func (m *mockCacheRepo) CompleteIdempotency(ctx context.Context, key string, orderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = strconv.FormatInt(orderID, 10)
	return nil
}

func (m *mockCacheRepo) IdempotentOrder(ctx context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	val, ok := m.keys[key]
	if !ok || val == "pending" {
		return 0, nil
	}
	return strconv.ParseInt(val, 10, 64)
}

func (m *mockCacheRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keys[key] == "pending" {
		delete(m.keys, key)
	}
	return nil
}

func (m *mockCacheRepo) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bookReads++
	b, ok := m.books[id]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *mockCacheRepo) SetBook(ctx context.Context, book domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[book.ID] = book
	return nil
}

func (m *mockCacheRepo) InvalidateBooks(ctx context.Context, ids ...int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.books, id)
	}
	m.invalidated = append(m.invalidated, ids...)
	return nil
}

// Mock BookIndex
type mockBookIndex struct {
	mu        sync.Mutex
	ids       []int64
	total     int
	err       error
	indexed   []int64
	lastStock map[int64]int
}

func (m *mockBookIndex) IndexBook(ctx context.Context, book domain.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexed = append(m.indexed, book.ID)
	if m.lastStock == nil {
		m.lastStock = make(map[int64]int)
	}
	m.lastStock[book.ID] = book.StockQuantity
	return nil
}

func (m *mockBookIndex) SearchBookIDs(ctx context.Context, q domain.BookQuery) ([]int64, int, error) {
	return m.ids, m.total, m.err
}

// Mock CoverStore
type mockCoverStore struct {
	objects map[string][]byte
	types   map[string]string
}

func newMockCoverStore() *mockCoverStore {
	return &mockCoverStore{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockCoverStore) FetchCover(ctx context.Context, key string) ([]byte, string, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, "", domain.ErrCoverNotFound
	}
	return data, m.types[key], nil
}

func (m *mockCoverStore) PutCover(ctx context.Context, key string, data []byte, contentType string) error {
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

// Mock EbookStore
type mockEbookStore struct {
	objects map[string][]byte
}

func (m *mockEbookStore) FetchEbook(ctx context.Context, key string) ([]byte, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (m *mockEbookStore) PutEbook(ctx context.Context, key string, data []byte, contentType string) error {
	m.objects[key] = data
	return nil
}

func seedBook(t *testing.T, store *storage.MemoryAdapter, isbn, title, price string, stock int) domain.Book {
	t.Helper()

	b, err := store.SaveBook(context.Background(), domain.Book{
		ISBN:          isbn,
		Title:         title,
		Author:        "Test Author",
		Description:   "A book about " + title,
		Price:         decimal.RequireFromString(price),
		StockQuantity: stock,
	})
	if err != nil {
		t.Fatalf("seed book failed: %v", err)
	}
	return *b
}

func fillCart(t *testing.T, store *storage.MemoryAdapter, userID string, bookID int64, qty int) {
	t.Helper()

	err := store.PutCartEntry(context.Background(), domain.CartEntry{UserID: userID, BookID: bookID, Quantity: qty})
	if err != nil {
		t.Fatalf("fill cart failed: %v", err)
	}
}

func stockOf(t *testing.T, store *storage.MemoryAdapter, bookID int64) int {
	t.Helper()

	b, err := store.GetBook(context.Background(), bookID)
	if err != nil {
		t.Fatalf("get book failed: %v", err)
	}
	return b.StockQuantity
}

var testShipping = domain.ShippingAddress{
	Address: "742 Evergreen Terrace",
	City:    "Springfield",
	State:   "OR",
	ZipCode: "97403",
}
