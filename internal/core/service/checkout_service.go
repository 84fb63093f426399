package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/logger"
	"github.com/rl1809/bookstore/internal/port"
)

const notifyTimeout = 30 * time.Second

type CheckoutRequest struct {
	Customer domain.Customer

	// Shipping falls back to the customer's profile default when left empty.
	Shipping domain.ShippingAddress

	// RequestID makes a retried checkout safe when a cache is configured.
	RequestID string
}

type CheckoutService struct {
	tx       port.Transactor
	orders   port.OrderRepository
	profiles port.ProfileRepository
	cache    port.CacheRepository
	catalog  BookRefresher
	notifier port.Notifier
	now      func() time.Time
}

// NewCheckoutService wires the checkout flow. profiles, cache and catalog
// may be nil.
func NewCheckoutService(tx port.Transactor, orders port.OrderRepository, profiles port.ProfileRepository,
	cache port.CacheRepository, catalog BookRefresher, notifier port.Notifier) *CheckoutService {
	return &CheckoutService{
		tx:       tx,
		orders:   orders,
		profiles: profiles,
		cache:    cache,
		catalog:  catalog,
		notifier: notifier,
		now:      time.Now,
	}
}

// Checkout turns the customer's cart into an order. Stock verification,
// order creation, stock decrement and cart clearing commit together or not
// at all. The confirmation is sent after commit and its failure only leaves
// NotificationSent false on the returned order.
func (s *CheckoutService) Checkout(ctx context.Context, req CheckoutRequest) (*domain.Order, error) {
	log := logger.Get()

	shipping, err := s.shippingFor(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := shipping.Validate(); err != nil {
		return nil, err
	}

	var idempotencyKey string
	if req.RequestID != "" && s.cache != nil {
		idempotencyKey = fmt.Sprintf("checkout:%s:%s", req.Customer.ID, req.RequestID)

		ok, err := s.cache.SetIdempotency(ctx, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", err)
		}
		if !ok {
			return s.replay(ctx, idempotencyKey, req.Customer.ID)
		}
	}

	order, err := s.placeOrder(ctx, req.Customer.ID, shipping)
	if err != nil {
		if idempotencyKey != "" {
			if releaseErr := s.cache.ReleaseIdempotency(context.WithoutCancel(ctx), idempotencyKey); releaseErr != nil {
				log.Error().Err(releaseErr).Str("key", idempotencyKey).Msg("release idempotency key failed")
			}
		}
		return nil, err
	}

	log.Info().
		Int64("order_id", order.ID).
		Str("user_id", order.UserID).
		Str("total", order.TotalAmount.StringFixed(2)).
		Int("lines", len(order.Lines)).
		Msg("order placed")

	if idempotencyKey != "" {
		if err := s.cache.CompleteIdempotency(ctx, idempotencyKey, order.ID); err != nil {
			log.Warn().Err(err).Str("key", idempotencyKey).Msg("complete idempotency key failed")
		}
	}

	s.refreshBooks(ctx, order)
	s.notify(ctx, order, req.Customer)

	return order, nil
}

func (s *CheckoutService) placeOrder(ctx context.Context, userID string, shipping domain.ShippingAddress) (*domain.Order, error) {
	var placed *domain.Order

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
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

		lines, err := priceCart(entries, books)
		if err != nil {
			return err
		}

		now := s.now()
		order := &domain.Order{
			UserID:      userID,
			TotalAmount: domain.SumLines(lines),
			Status:      domain.OrderStatusPending,
			Shipping:    shipping,
			Lines:       lines,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return err
		}

		for _, l := range lines {
			ok, err := tx.DecrementStock(ctx, l.BookID, l.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return &domain.InsufficientStockError{
					BookID:    l.BookID,
					Title:     l.Title,
					Requested: l.Quantity,
					Available: books[l.BookID].StockQuantity,
				}
			}
		}

		if err := tx.ClearCart(ctx, userID); err != nil {
			return err
		}

		placed = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return placed, nil
}

// priceCart checks every entry against the locked books and captures the
// commit-time price and book details. Nothing is written here.
func priceCart(entries []domain.CartEntry, books map[int64]domain.Book) ([]domain.OrderLine, error) {
	lines := make([]domain.OrderLine, 0, len(entries))
	for _, e := range entries {
		book, ok := books[e.BookID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", domain.ErrBookNotFound, e.BookID)
		}
		if e.Quantity > book.StockQuantity {
			return nil, &domain.InsufficientStockError{
				BookID:    book.ID,
				Title:     book.Title,
				Requested: e.Quantity,
				Available: book.StockQuantity,
			}
		}
		lines = append(lines, domain.OrderLine{
			BookID:    book.ID,
			Title:     book.Title,
			Author:    book.Author,
			ISBN:      book.ISBN,
			Quantity:  e.Quantity,
			UnitPrice: book.Price.Round(2),
		})
	}
	return lines, nil
}

func (s *CheckoutService) refreshBooks(ctx context.Context, order *domain.Order) {
	if s.catalog == nil {
		return
	}
	ids := make([]int64, len(order.Lines))
	for i, l := range order.Lines {
		ids[i] = l.BookID
	}
	s.catalog.RefreshBooks(ctx, ids...)
}

// shippingFor uses the request address, or the profile default when the
// request carries none.
func (s *CheckoutService) shippingFor(ctx context.Context, req CheckoutRequest) (domain.ShippingAddress, error) {
	if !req.Shipping.IsZero() || s.profiles == nil {
		return req.Shipping.WithDefaults(), nil
	}

	profile, err := s.profiles.GetProfile(ctx, req.Customer.ID)
	if errors.Is(err, domain.ErrProfileNotFound) {
		return req.Shipping, fmt.Errorf("%w: no address given and no default on file", domain.ErrInvalidShipping)
	}
	if err != nil {
		return req.Shipping, err
	}
	return profile.DefaultShipping.WithDefaults(), nil
}

// replay answers a repeated request ID with the order it already produced.
// A request still in flight is reported as a duplicate.
func (s *CheckoutService) replay(ctx context.Context, key, userID string) (*domain.Order, error) {
	orderID, err := s.cache.IdempotentOrder(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency lookup failed: %w", err)
	}
	if orderID == 0 {
		return nil, domain.ErrDuplicateRequest
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrDuplicateRequest
	}

	logger.Get().Info().Int64("order_id", order.ID).Str("key", key).Msg("checkout replayed")
	return order, nil
}

func (s *CheckoutService) notify(ctx context.Context, order *domain.Order, customer domain.Customer) {
	log := logger.Get()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	if err := s.notifier.SendConfirmation(ctx, *order, customer); err != nil {
		log.Warn().Err(err).Str("order", order.Number()).Msg("order confirmation not sent")
		return
	}

	if err := s.orders.MarkNotificationSent(ctx, order.ID); err != nil {
		log.Error().Err(err).Str("order", order.Number()).Msg("confirmation sent but flag not recorded")
		return
	}
	order.NotificationSent = true
}
