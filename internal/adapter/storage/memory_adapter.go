package storage

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/port"
)

type memState struct {
	books     map[int64]domain.Book
	carts     map[string]map[int64]domain.CartEntry
	orders    map[int64]domain.Order
	profiles  map[string]domain.Profile
	nextBook  int64
	nextOrder int64
}

func (s *memState) clone() *memState {
	c := &memState{
		books:     make(map[int64]domain.Book, len(s.books)),
		carts:     make(map[string]map[int64]domain.CartEntry, len(s.carts)),
		orders:    make(map[int64]domain.Order, len(s.orders)),
		profiles:  maps.Clone(s.profiles),
		nextBook:  s.nextBook,
		nextOrder: s.nextOrder,
	}
	for id, b := range s.books {
		c.books[id] = b
	}
	for user, entries := range s.carts {
		m := make(map[int64]domain.CartEntry, len(entries))
		for id, e := range entries {
			m[id] = e
		}
		c.carts[user] = m
	}
	for id, o := range s.orders {
		o.Lines = slices.Clone(o.Lines)
		c.orders[id] = o
	}
	return c
}

// MemoryAdapter keeps everything in process. A transaction holds the store
// mutex for its whole duration and works on a copy that replaces the state
// only on commit.
type MemoryAdapter struct {
	mu    sync.Mutex
	state *memState
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{state: &memState{
		books:    make(map[int64]domain.Book),
		carts:    make(map[string]map[int64]domain.CartEntry),
		orders:   make(map[int64]domain.Order),
		profiles: make(map[string]domain.Profile),
	}}
}

func (m *MemoryAdapter) Close() error { return nil }

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(ctx, &memoryTx{state: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *MemoryAdapter) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.state.books[id]
	if !ok {
		return nil, domain.ErrBookNotFound
	}
	return &b, nil
}

func (m *MemoryAdapter) GetBooks(ctx context.Context, ids []int64) (map[int64]domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[int64]domain.Book, len(ids))
	for _, id := range ids {
		if b, ok := m.state.books[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func (m *MemoryAdapter) SearchBooks(ctx context.Context, q domain.BookQuery) (domain.BookPage, error) {
	q = q.Normalize()
	needle := strings.ToLower(q.Query)

	m.mu.Lock()
	var matched []domain.Book
	for _, b := range m.state.books {
		if !b.InStock() {
			continue
		}
		if needle != "" &&
			!strings.Contains(strings.ToLower(b.Title), needle) &&
			!strings.Contains(strings.ToLower(b.Author), needle) &&
			!strings.Contains(strings.ToLower(b.Description), needle) {
			continue
		}
		matched = append(matched, b)
	}
	m.mu.Unlock()

	sortBooks(matched, q.SortBy)

	page := domain.BookPage{Total: len(matched), Page: q.Page, PageSize: q.PageSize}
	start := min(q.Offset(), len(matched))
	end := min(start+q.PageSize, len(matched))
	page.Books = matched[start:end]
	return page, nil
}

func sortBooks(books []domain.Book, order domain.SortOrder) {
	slices.SortStableFunc(books, func(a, b domain.Book) int {
		var c int
		switch order {
		case domain.SortTitle, domain.SortTitleDesc:
			c = strings.Compare(a.Title, b.Title)
		case domain.SortPrice, domain.SortPriceDesc:
			c = a.Price.Cmp(b.Price)
		case domain.SortCreatedAt, domain.SortCreatedAtDesc:
			c = a.CreatedAt.Compare(b.CreatedAt)
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if strings.HasPrefix(string(order), "-") {
			return -c
		}
		return c
	})
}

func (m *MemoryAdapter) FeaturedBooks(ctx context.Context, limit int) ([]domain.Book, error) {
	m.mu.Lock()
	var books []domain.Book
	for _, b := range m.state.books {
		if b.Featured && b.InStock() {
			books = append(books, b)
		}
	}
	m.mu.Unlock()

	sortBooks(books, domain.SortCreatedAtDesc)
	if len(books) > limit {
		books = books[:limit]
	}
	return books, nil
}

func (m *MemoryAdapter) BooksByAuthor(ctx context.Context, author string, excludeID int64, limit int) ([]domain.Book, error) {
	m.mu.Lock()
	var books []domain.Book
	for _, b := range m.state.books {
		if b.Author == author && b.ID != excludeID && b.InStock() {
			books = append(books, b)
		}
	}
	m.mu.Unlock()

	sortBooks(books, domain.SortTitle)
	if len(books) > limit {
		books = books[:limit]
	}
	return books, nil
}

func (m *MemoryAdapter) SaveBook(ctx context.Context, book domain.Book) (*domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	book.UpdatedAt = now
	for _, existing := range m.state.books {
		if existing.ISBN == book.ISBN {
			book.ID = existing.ID
			book.StockQuantity = existing.StockQuantity
			book.CreatedAt = existing.CreatedAt
			m.state.books[book.ID] = book
			return &book, nil
		}
	}

	m.state.nextBook++
	book.ID = m.state.nextBook
	book.CreatedAt = now
	m.state.books[book.ID] = book
	return &book, nil
}

func (m *MemoryAdapter) AdjustStock(ctx context.Context, id int64, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.state.books[id]
	if !ok {
		return 0, domain.ErrBookNotFound
	}
	if b.StockQuantity+delta < 0 {
		return b.StockQuantity, &domain.InsufficientStockError{
			BookID: id, Title: b.Title, Requested: -delta, Available: b.StockQuantity,
		}
	}
	b.StockQuantity += delta
	b.UpdatedAt = time.Now()
	m.state.books[id] = b
	return b.StockQuantity, nil
}

func (m *MemoryAdapter) CartEntries(ctx context.Context, userID string) ([]domain.CartEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return cartEntries(m.state, userID), nil
}

func cartEntries(s *memState, userID string) []domain.CartEntry {
	entries := make([]domain.CartEntry, 0, len(s.carts[userID]))
	for _, e := range s.carts[userID] {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b domain.CartEntry) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.BookID, b.BookID))
	})
	return entries
}

func (m *MemoryAdapter) GetCartEntry(ctx context.Context, userID string, bookID int64) (*domain.CartEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.state.carts[userID][bookID]
	if !ok {
		return nil, domain.ErrCartEntryNotFound
	}
	return &e, nil
}

func (m *MemoryAdapter) PutCartEntry(ctx context.Context, entry domain.CartEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cart, ok := m.state.carts[entry.UserID]
	if !ok {
		cart = make(map[int64]domain.CartEntry)
		m.state.carts[entry.UserID] = cart
	}
	if existing, ok := cart[entry.BookID]; ok {
		entry.CreatedAt = existing.CreatedAt
	} else if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	cart[entry.BookID] = entry
	return nil
}

func (m *MemoryAdapter) DeleteCartEntry(ctx context.Context, userID string, bookID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.state.carts[userID][bookID]; !ok {
		return domain.ErrCartEntryNotFound
	}
	delete(m.state.carts[userID], bookID)
	return nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.state.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o.Lines = slices.Clone(o.Lines)
	return &o, nil
}

func (m *MemoryAdapter) ListOrders(ctx context.Context, userID string, page, pageSize int) (domain.OrderPage, error) {
	page, pageSize = max(page, 1), max(pageSize, 1)

	m.mu.Lock()
	var orders []domain.Order
	for _, o := range m.state.orders {
		if o.UserID == userID {
			o.Lines = slices.Clone(o.Lines)
			orders = append(orders, o)
		}
	}
	m.mu.Unlock()

	slices.SortFunc(orders, func(a, b domain.Order) int {
		return cmp.Or(b.CreatedAt.Compare(a.CreatedAt), cmp.Compare(b.ID, a.ID))
	})

	result := domain.OrderPage{Total: len(orders), Page: page, PageSize: pageSize}
	start := min((page-1)*pageSize, len(orders))
	end := min(start+pageSize, len(orders))
	result.Orders = orders[start:end]
	return result, nil
}

func (m *MemoryAdapter) MarkNotificationSent(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.state.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.NotificationSent = true
	o.UpdatedAt = time.Now()
	m.state.orders[id] = o
	return nil
}

func (m *MemoryAdapter) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.state.profiles[userID]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	return copyProfile(p), nil
}

func (m *MemoryAdapter) SaveProfile(ctx context.Context, profile domain.Profile) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	profile.UpdatedAt = now
	if existing, ok := m.state.profiles[profile.UserID]; ok {
		profile.CreatedAt = existing.CreatedAt
	} else {
		profile.CreatedAt = now
	}
	profile = *copyProfile(profile)
	m.state.profiles[profile.UserID] = profile
	return copyProfile(profile), nil
}

// copyProfile detaches DateOfBirth from the caller's pointer.
func copyProfile(p domain.Profile) *domain.Profile {
	if p.DateOfBirth != nil {
		dob := *p.DateOfBirth
		p.DateOfBirth = &dob
	}
	return &p
}

type memoryTx struct {
	state *memState
}

func (t *memoryTx) CartEntries(ctx context.Context, userID string) ([]domain.CartEntry, error) {
	return cartEntries(t.state, userID), nil
}

func (t *memoryTx) LockBooks(ctx context.Context, ids []int64) (map[int64]domain.Book, error) {
	out := make(map[int64]domain.Book, len(ids))
	for _, id := range ids {
		if b, ok := t.state.books[id]; ok {
			out[id] = b
		}
	}
	return out, nil
}

func (t *memoryTx) DecrementStock(ctx context.Context, bookID int64, qty int) (bool, error) {
	b, ok := t.state.books[bookID]
	if !ok || b.StockQuantity < qty {
		return false, nil
	}
	b.StockQuantity -= qty
	b.UpdatedAt = time.Now()
	t.state.books[bookID] = b
	return true, nil
}

func (t *memoryTx) IncrementStock(ctx context.Context, bookID int64, qty int) error {
	b, ok := t.state.books[bookID]
	if !ok {
		return domain.ErrBookNotFound
	}
	b.StockQuantity += qty
	b.UpdatedAt = time.Now()
	t.state.books[bookID] = b
	return nil
}

func (t *memoryTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	t.state.nextOrder++
	order.ID = t.state.nextOrder
	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
	}
	stored := *order
	stored.Lines = slices.Clone(order.Lines)
	t.state.orders[order.ID] = stored
	return nil
}

func (t *memoryTx) ClearCart(ctx context.Context, userID string) error {
	delete(t.state.carts, userID)
	return nil
}

func (t *memoryTx) LockOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, ok := t.state.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	o.Lines = slices.Clone(o.Lines)
	return &o, nil
}

func (t *memoryTx) SetOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	o, ok := t.state.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	o.Status = status
	o.UpdatedAt = time.Now()
	t.state.orders[id] = o
	return nil
}
