package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rl1809/bookstore/internal/adapter/storage"
	"github.com/rl1809/bookstore/internal/core/domain"
)

func checkoutOne(t *testing.T, store *storage.MemoryAdapter, userID string, bookID int64, qty int) *domain.Order {
	t.Helper()

	fillCart(t, store, userID, bookID, qty)
	order, err := newCheckout(store, &mockNotifier{}).Checkout(context.Background(),
		CheckoutRequest{Customer: customer(userID), Shipping: testShipping})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	return order
}

func TestOrderGet_OwnerOnly(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAdapter()
	svc := NewOrderService(store, store, nil, &mockNotifier{})
	book := seedBook(t, store, "9780441013593", "Dune", "9.99", 10)
	order := checkoutOne(t, store, "user-1", book.ID, 1)

	got, err := svc.Get(ctx, "user-1", order.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Number() != order.Number() {
		t.Errorf("expected %s, got %s", order.Number(), got.Number())
	}

	if _, err := svc.Get(ctx, "user-2", order.ID); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound for other user, got: %v", err)
	}
}

func TestOrderHistory_Paginates(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAdapter()
	svc := NewOrderService(store, store, nil, &mockNotifier{})
	book := seedBook(t, store, "9780441013593", "Dune", "1.00", 50)

	for i := 0; i < 12; i++ {
		checkoutOne(t, store, "user-1", book.ID, 1)
	}
	checkoutOne(t, store, "user-2", book.ID, 1)

	first, err := svc.History(ctx, "user-1", 1)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if first.Total != 12 || len(first.Orders) != domain.DefaultOrderPageSize {
		t.Errorf("expected 12 total with %d on page 1, got %d/%d", domain.DefaultOrderPageSize, first.Total, len(first.Orders))
	}
	if first.Orders[0].ID < first.Orders[1].ID {
		t.Error("expected newest first")
	}

	second, _ := svc.History(ctx, "user-1", 2)
	if len(second.Orders) != 2 {
		t.Errorf("expected 2 orders on page 2, got %d", len(second.Orders))
	}
}

func TestOrderUpdateStatus_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAdapter()
	svc := NewOrderService(store, store, nil, &mockNotifier{})
	book := seedBook(t, store, "9780441013593", "Dune", "9.99", 10)
	order := checkoutOne(t, store, "user-1", book.ID, 1)

	for _, next := range []domain.OrderStatus{
		domain.OrderStatusProcessing, domain.OrderStatusShipped, domain.OrderStatusDelivered,
	} {
		updated, err := svc.UpdateStatus(ctx, order.ID, next)
		if err != nil {
			t.Fatalf("transition to %s failed: %v", next, err)
		}
		if updated.Status != next {
			t.Errorf("expected %s, got %s", next, updated.Status)
		}
	}

	_, err := svc.UpdateStatus(ctx, order.ID, domain.OrderStatusCancelled)
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition from delivered, got: %v", err)
	}
}

func TestOrderUpdateStatus_CancelRestocks(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAdapter()
	cache := newMockCacheRepo()
	index := &mockBookIndex{}
	svc := NewOrderService(store, store, NewCatalogService(store, cache, index, nil, nil), &mockNotifier{})
	book := seedBook(t, store, "9780441013593", "Dune", "9.99", 10)
	order := checkoutOne(t, store, "user-1", book.ID, 4)

	if got := stockOf(t, store, book.ID); got != 6 {
		t.Fatalf("expected stock 6 after checkout, got %d", got)
	}

	if _, err := svc.UpdateStatus(ctx, order.ID, domain.OrderStatusCancelled); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if got := stockOf(t, store, book.ID); got != 10 {
		t.Errorf("expected stock 10 after cancel, got %d", got)
	}
	if len(cache.invalidated) != 1 {
		t.Errorf("expected cache invalidation, got %v", cache.invalidated)
	}
	if len(index.indexed) != 1 || index.indexed[0] != book.ID {
		t.Errorf("expected book %d reindexed after cancel, got %v", book.ID, index.indexed)
	}
	if index.lastStock[book.ID] != 10 {
		t.Errorf("expected index to see stock 10, got %d", index.lastStock[book.ID])
	}

	// Cancelling twice must not restock twice
	if _, err := svc.UpdateStatus(ctx, order.ID, domain.OrderStatusCancelled); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got: %v", err)
	}
	if got := stockOf(t, store, book.ID); got != 10 {
		t.Errorf("expected stock 10, got %d", got)
	}
}

func TestOrderUpdateStatuses_SkipsInvalid(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAdapter()
	svc := NewOrderService(store, store, nil, &mockNotifier{})
	book := seedBook(t, store, "9780441013593", "Dune", "9.99", 10)

	a := checkoutOne(t, store, "user-1", book.ID, 1)
	b := checkoutOne(t, store, "user-1", book.ID, 1)
	svc.UpdateStatus(ctx, b.ID, domain.OrderStatusCancelled)

	n, err := svc.UpdateStatuses(ctx, []int64{a.ID, b.ID, 9999}, domain.OrderStatusProcessing)
	if err != nil {
		t.Fatalf("bulk update failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 updated, got %d", n)
	}
}

func TestOrderResendConfirmation(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryAdapter()
	book := seedBook(t, store, "9780441013593", "Dune", "9.99", 10)

	fillCart(t, store, "user-1", book.ID, 1)
	order, err := newCheckout(store, &mockNotifier{fail: true}).Checkout(ctx,
		CheckoutRequest{Customer: customer("user-1"), Shipping: testShipping})
	if err != nil {
		t.Fatalf("checkout failed: %v", err)
	}
	if order.NotificationSent {
		t.Fatal("expected notification flag false")
	}

	failing := NewOrderService(store, store, nil, &mockNotifier{fail: true})
	if _, err := failing.ResendConfirmation(ctx, order.ID, customer("user-1")); !errors.Is(err, errMailDown) {
		t.Errorf("expected mail error, got: %v", err)
	}

	notifier := &mockNotifier{}
	svc := NewOrderService(store, store, nil, notifier)
	resent, err := svc.ResendConfirmation(ctx, order.ID, customer("user-1"))
	if err != nil {
		t.Fatalf("resend failed: %v", err)
	}
	if !resent.NotificationSent {
		t.Error("expected notification flag true")
	}
	stored, _ := store.GetOrder(ctx, order.ID)
	if !stored.NotificationSent {
		t.Error("expected stored notification flag true")
	}
	if notifier.callCount() != 1 {
		t.Errorf("expected 1 send, got %d", notifier.callCount())
	}

	if _, err := svc.ResendConfirmation(ctx, 9999, customer("user-1")); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected ErrOrderNotFound, got: %v", err)
	}
}

func ExampleOrder_Number() {
	fmt.Println(domain.Order{ID: 7}.Number())
	// Output: ORD-000007
}
