package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/port"
)

var isbnSeq atomic.Int64

// uniqueISBN keeps suites independent when they share a database.
func uniqueISBN() string {
	return fmt.Sprintf("%013d", (time.Now().UnixNano()+isbnSeq.Add(1))%1e13)
}

func uniqueUser(name string) string {
	return fmt.Sprintf("%s-%d", name, time.Now().UnixNano())
}

func saveTestBook(t *testing.T, store port.Store, title string, stock int) domain.Book {
	t.Helper()

	b, err := store.SaveBook(context.Background(), domain.Book{
		ISBN:          uniqueISBN(),
		Title:         title,
		Author:        "Test Author",
		Description:   "A book about " + title,
		Price:         decimal.RequireFromString("12.50"),
		StockQuantity: stock,
	})
	if err != nil {
		t.Fatalf("SaveBook failed: %v", err)
	}
	return *b
}

func stockOf(t *testing.T, store port.Store, id int64) int {
	t.Helper()

	b, err := store.GetBook(context.Background(), id)
	if err != nil {
		t.Fatalf("GetBook failed: %v", err)
	}
	return b.StockQuantity
}

var testShipping = domain.ShippingAddress{
	Address: "221B Baker Street",
	City:    "Portland",
	State:   "OR",
	ZipCode: "97201",
	Country: domain.DefaultCountry,
}

// placeTestOrder runs the checkout write set against the store's transaction.
func placeTestOrder(ctx context.Context, store port.Store, userID string) (*domain.Order, error) {
	var placed *domain.Order
	err := store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		entries, err := tx.CartEntries(ctx, userID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return domain.ErrEmptyCart
		}

		ids := make([]int64, len(entries))
		for i, e := range entries {
			ids[i] = e.BookID
		}
		books, err := tx.LockBooks(ctx, ids)
		if err != nil {
			return err
		}

		now := time.Now()
		order := &domain.Order{
			UserID: userID, Status: domain.OrderStatusPending, Shipping: testShipping,
			CreatedAt: now, UpdatedAt: now,
		}
		for _, e := range entries {
			b := books[e.BookID]
			order.Lines = append(order.Lines, domain.OrderLine{
				BookID: b.ID, Title: b.Title, Author: b.Author, ISBN: b.ISBN,
				Quantity: e.Quantity, UnitPrice: b.Price,
			})
		}
		order.TotalAmount = domain.SumLines(order.Lines)

		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}
		for _, l := range order.Lines {
			ok, err := tx.DecrementStock(ctx, l.BookID, l.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return &domain.InsufficientStockError{BookID: l.BookID, Title: l.Title, Requested: l.Quantity}
			}
		}
		if err := tx.ClearCart(ctx, userID); err != nil {
			return err
		}
		placed = order
		return nil
	})
	return placed, err
}

func testStore(t *testing.T, store port.Store) {
	t.Run("SaveBookUpsert", func(t *testing.T) { testSaveBookUpsert(t, store) })
	t.Run("AdjustStock", func(t *testing.T) { testAdjustStock(t, store) })
	t.Run("Cart", func(t *testing.T) { testCart(t, store) })
	t.Run("CheckoutCommits", func(t *testing.T) { testCheckoutCommits(t, store) })
	t.Run("CheckoutRollsBack", func(t *testing.T) { testCheckoutRollsBack(t, store) })
	t.Run("OrderStatus", func(t *testing.T) { testOrderStatus(t, store) })
	t.Run("ConcurrentCheckout", func(t *testing.T) { testConcurrentCheckout(t, store) })
	t.Run("Profile", func(t *testing.T) { testProfile(t, store) })
}

func testSaveBookUpsert(t *testing.T, store port.Store) {
	ctx := context.Background()
	book := saveTestBook(t, store, "Upsert", 5)
	if book.ID == 0 {
		t.Fatal("expected an assigned ID")
	}

	book.Title = "Upsert, Revised"
	book.Price = decimal.RequireFromString("15.00")
	book.StockQuantity = 99
	book.CoverKey = "covers/" + book.ISBN + ".jpg"
	again, err := store.SaveBook(ctx, book)
	if err != nil {
		t.Fatalf("SaveBook failed: %v", err)
	}
	if again.ID != book.ID {
		t.Errorf("expected ID %d, got %d", book.ID, again.ID)
	}
	if again.StockQuantity != 5 {
		t.Errorf("expected stock to stay 5, got %d", again.StockQuantity)
	}

	got, err := store.GetBook(ctx, book.ID)
	if err != nil {
		t.Fatalf("GetBook failed: %v", err)
	}
	if got.Title != "Upsert, Revised" || !got.Price.Equal(decimal.RequireFromString("15")) || got.CoverKey != book.CoverKey {
		t.Errorf("update not stored: %+v", got)
	}

	if _, err := store.GetBook(ctx, -1); !errors.Is(err, domain.ErrBookNotFound) {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}

	found, err := store.GetBooks(ctx, []int64{book.ID, -1})
	if err != nil {
		t.Fatalf("GetBooks failed: %v", err)
	}
	if len(found) != 1 {
		t.Errorf("expected 1 book, got %d", len(found))
	}
}

func testAdjustStock(t *testing.T, store port.Store) {
	ctx := context.Background()
	book := saveTestBook(t, store, "Adjust", 3)

	stock, err := store.AdjustStock(ctx, book.ID, 7)
	if err != nil {
		t.Fatalf("AdjustStock failed: %v", err)
	}
	if stock != 10 {
		t.Errorf("expected stock 10, got %d", stock)
	}

	_, err = store.AdjustStock(ctx, book.ID, -11)
	var stockErr *domain.InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if stockErr.Available != 10 {
		t.Errorf("expected available 10, got %d", stockErr.Available)
	}
	if got := stockOf(t, store, book.ID); got != 10 {
		t.Errorf("expected stock unchanged at 10, got %d", got)
	}

	if _, err := store.AdjustStock(ctx, -1, 1); !errors.Is(err, domain.ErrBookNotFound) {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}
}

func testCart(t *testing.T, store port.Store) {
	ctx := context.Background()
	user := uniqueUser("cart")
	first := saveTestBook(t, store, "Cart One", 5)
	second := saveTestBook(t, store, "Cart Two", 5)

	if err := store.PutCartEntry(ctx, domain.CartEntry{UserID: user, BookID: first.ID, Quantity: 1}); err != nil {
		t.Fatalf("PutCartEntry failed: %v", err)
	}
	if err := store.PutCartEntry(ctx, domain.CartEntry{UserID: user, BookID: second.ID, Quantity: 2}); err != nil {
		t.Fatalf("PutCartEntry failed: %v", err)
	}
	if err := store.PutCartEntry(ctx, domain.CartEntry{UserID: user, BookID: first.ID, Quantity: 4}); err != nil {
		t.Fatalf("PutCartEntry failed: %v", err)
	}

	entries, err := store.CartEntries(ctx, user)
	if err != nil {
		t.Fatalf("CartEntries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].BookID != first.ID || entries[0].Quantity != 4 {
		t.Errorf("expected first entry to keep its position with quantity 4, got %+v", entries[0])
	}

	if err := store.DeleteCartEntry(ctx, user, second.ID); err != nil {
		t.Fatalf("DeleteCartEntry failed: %v", err)
	}
	if _, err := store.GetCartEntry(ctx, user, second.ID); !errors.Is(err, domain.ErrCartEntryNotFound) {
		t.Errorf("expected ErrCartEntryNotFound, got %v", err)
	}
	if err := store.DeleteCartEntry(ctx, user, second.ID); !errors.Is(err, domain.ErrCartEntryNotFound) {
		t.Errorf("expected ErrCartEntryNotFound on second delete, got %v", err)
	}
}

func testCheckoutCommits(t *testing.T, store port.Store) {
	ctx := context.Background()
	user := uniqueUser("buyer")
	book := saveTestBook(t, store, "Committed", 5)

	if err := store.PutCartEntry(ctx, domain.CartEntry{UserID: user, BookID: book.ID, Quantity: 2}); err != nil {
		t.Fatalf("PutCartEntry failed: %v", err)
	}

	order, err := placeTestOrder(ctx, store, user)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if order.ID == 0 {
		t.Fatal("expected an assigned order ID")
	}

	if got := stockOf(t, store, book.ID); got != 3 {
		t.Errorf("expected stock 3, got %d", got)
	}
	if entries, _ := store.CartEntries(ctx, user); len(entries) != 0 {
		t.Errorf("expected cart cleared, got %d entries", len(entries))
	}

	stored, err := store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if !stored.TotalAmount.Equal(decimal.RequireFromString("25.00")) {
		t.Errorf("expected total 25.00, got %s", stored.TotalAmount)
	}
	if len(stored.Lines) != 1 || stored.Lines[0].Title != "Committed" || stored.Lines[0].OrderID != order.ID {
		t.Errorf("unexpected lines: %+v", stored.Lines)
	}
	if stored.Shipping.Country != domain.DefaultCountry {
		t.Errorf("expected country %q, got %q", domain.DefaultCountry, stored.Shipping.Country)
	}

	if err := store.MarkNotificationSent(ctx, order.ID); err != nil {
		t.Fatalf("MarkNotificationSent failed: %v", err)
	}
	page, err := store.ListOrders(ctx, user, 1, 10)
	if err != nil {
		t.Fatalf("ListOrders failed: %v", err)
	}
	if page.Total != 1 || len(page.Orders) != 1 {
		t.Fatalf("expected one order, got %+v", page)
	}
	if !page.Orders[0].NotificationSent {
		t.Error("expected notification flag to be stored")
	}
	if len(page.Orders[0].Lines) != 1 {
		t.Errorf("expected listed order to carry its lines, got %d", len(page.Orders[0].Lines))
	}

	if _, err := store.GetOrder(ctx, -1); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func testCheckoutRollsBack(t *testing.T, store port.Store) {
	ctx := context.Background()
	user := uniqueUser("rollback")
	plenty := saveTestBook(t, store, "Plenty", 10)
	scarce := saveTestBook(t, store, "Scarce", 1)

	for _, e := range []domain.CartEntry{
		{UserID: user, BookID: plenty.ID, Quantity: 3},
		{UserID: user, BookID: scarce.ID, Quantity: 2},
	} {
		if err := store.PutCartEntry(ctx, e); err != nil {
			t.Fatalf("PutCartEntry failed: %v", err)
		}
	}

	_, err := placeTestOrder(ctx, store, user)
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	if got := stockOf(t, store, plenty.ID); got != 10 {
		t.Errorf("expected stock 10 after rollback, got %d", got)
	}
	if got := stockOf(t, store, scarce.ID); got != 1 {
		t.Errorf("expected stock 1 after rollback, got %d", got)
	}
	if entries, _ := store.CartEntries(ctx, user); len(entries) != 2 {
		t.Errorf("expected cart kept, got %d entries", len(entries))
	}
	if page, _ := store.ListOrders(ctx, user, 1, 10); page.Total != 0 {
		t.Errorf("expected no orders, got %d", page.Total)
	}
}

func testOrderStatus(t *testing.T, store port.Store) {
	ctx := context.Background()
	user := uniqueUser("status")
	book := saveTestBook(t, store, "Status", 4)

	if err := store.PutCartEntry(ctx, domain.CartEntry{UserID: user, BookID: book.ID, Quantity: 1}); err != nil {
		t.Fatalf("PutCartEntry failed: %v", err)
	}
	order, err := placeTestOrder(ctx, store, user)
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		locked, err := tx.LockOrder(ctx, order.ID)
		if err != nil {
			return err
		}
		if err := tx.SetOrderStatus(ctx, locked.ID, domain.OrderStatusCancelled); err != nil {
			return err
		}
		for _, l := range locked.Lines {
			if err := tx.IncrementStock(ctx, l.BookID, l.Quantity); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	stored, err := store.GetOrder(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetOrder failed: %v", err)
	}
	if stored.Status != domain.OrderStatusCancelled {
		t.Errorf("expected cancelled, got %s", stored.Status)
	}
	if got := stockOf(t, store, book.ID); got != 4 {
		t.Errorf("expected stock restored to 4, got %d", got)
	}

	err = store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		_, err := tx.LockOrder(ctx, -1)
		return err
	})
	if !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got %v", err)
	}
}

func testConcurrentCheckout(t *testing.T, store port.Store) {
	ctx := context.Background()
	const stock, buyers = 5, 20
	book := saveTestBook(t, store, "Contested", stock)

	users := make([]string, buyers)
	for i := range users {
		users[i] = uniqueUser(fmt.Sprintf("race%d", i))
		if err := store.PutCartEntry(ctx, domain.CartEntry{UserID: users[i], BookID: book.ID, Quantity: 1}); err != nil {
			t.Fatalf("PutCartEntry failed: %v", err)
		}
	}

	var successCount, soldOutCount atomic.Int32
	var wg sync.WaitGroup
	for _, user := range users {
		wg.Add(1)
		go func(user string) {
			defer wg.Done()
			_, err := placeTestOrder(ctx, store, user)
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(user)
	}
	wg.Wait()

	if successCount.Load() != stock {
		t.Errorf("expected %d successful checkouts, got %d", stock, successCount.Load())
	}
	if soldOutCount.Load() != buyers-stock {
		t.Errorf("expected %d sold out, got %d", buyers-stock, soldOutCount.Load())
	}
	if got := stockOf(t, store, book.ID); got != 0 {
		t.Errorf("expected stock 0, got %d", got)
	}
}

func testProfile(t *testing.T, store port.Store) {
	ctx := context.Background()
	user := uniqueUser("profile")

	if _, err := store.GetProfile(ctx, user); !errors.Is(err, domain.ErrProfileNotFound) {
		t.Fatalf("expected ErrProfileNotFound, got %v", err)
	}

	born := time.Date(1984, 2, 29, 0, 0, 0, 0, time.UTC)
	saved, err := store.SaveProfile(ctx, domain.Profile{
		UserID:          user,
		FirstName:       "Ada",
		Email:           "ada@example.com",
		DateOfBirth:     &born,
		DefaultShipping: testShipping,
	})
	if err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}
	if saved.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}

	saved.PhoneNumber = "555-0100"
	saved.DateOfBirth = nil
	saved.DefaultShipping.City = "Salem"
	if _, err := store.SaveProfile(ctx, *saved); err != nil {
		t.Fatalf("SaveProfile update failed: %v", err)
	}

	got, err := store.GetProfile(ctx, user)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.FirstName != "Ada" || got.PhoneNumber != "555-0100" {
		t.Errorf("profile not stored: %+v", got)
	}
	if got.DateOfBirth != nil {
		t.Errorf("expected date of birth to be cleared, got %v", got.DateOfBirth)
	}
	if got.DefaultShipping.City != "Salem" || got.DefaultShipping.ZipCode != testShipping.ZipCode {
		t.Errorf("unexpected default shipping: %+v", got.DefaultShipping)
	}
}
