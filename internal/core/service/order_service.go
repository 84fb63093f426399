package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/logger"
	"github.com/rl1809/bookstore/internal/port"
)

type OrderService struct {
	orders   port.OrderRepository
	tx       port.Transactor
	catalog  BookRefresher
	notifier port.Notifier
}

// NewOrderService wires order queries and administration. catalog may be nil.
func NewOrderService(orders port.OrderRepository, tx port.Transactor, catalog BookRefresher, notifier port.Notifier) *OrderService {
	return &OrderService{
		orders:   orders,
		tx:       tx,
		catalog:  catalog,
		notifier: notifier,
	}
}

// Get returns an order owned by userID. Other users' orders are reported
// as not found.
func (s *OrderService) Get(ctx context.Context, userID string, orderID int64) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

// Lookup returns any order regardless of owner.
func (s *OrderService) Lookup(ctx context.Context, orderID int64) (*domain.Order, error) {
	return s.orders.GetOrder(ctx, orderID)
}

func (s *OrderService) History(ctx context.Context, userID string, page int) (domain.OrderPage, error) {
	if page < 1 {
		page = 1
	}
	return s.orders.ListOrders(ctx, userID, page, domain.DefaultOrderPageSize)
}

// UpdateStatus moves an order along the status lifecycle. Cancelling
// returns the ordered quantities to stock in the same transaction.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID int64, next domain.OrderStatus) (*domain.Order, error) {
	var updated *domain.Order

	err := s.tx.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		order, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(next) {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, order.Status, next)
		}

		if next == domain.OrderStatusCancelled {
			for _, l := range order.Lines {
				if err := tx.IncrementStock(ctx, l.BookID, l.Quantity); err != nil {
					return err
				}
			}
		}

		if err := tx.SetOrderStatus(ctx, orderID, next); err != nil {
			return err
		}
		order.Status = next
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Get().Info().
		Int64("order_id", orderID).
		Str("status", string(next)).
		Msg("order status updated")

	if next == domain.OrderStatusCancelled && s.catalog != nil {
		ids := make([]int64, len(updated.Lines))
		for i, l := range updated.Lines {
			ids[i] = l.BookID
		}
		s.catalog.RefreshBooks(ctx, ids...)
	}

	return updated, nil
}

// UpdateStatuses applies one status to many orders, each in its own
// transaction. Orders that cannot make the transition are skipped.
func (s *OrderService) UpdateStatuses(ctx context.Context, orderIDs []int64, next domain.OrderStatus) (int, error) {
	log := logger.Get()

	updated := 0
	for _, id := range orderIDs {
		if _, err := s.UpdateStatus(ctx, id, next); err != nil {
			if isSkippable(err) {
				log.Debug().Err(err).Int64("order_id", id).Msg("status update skipped")
				continue
			}
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// ResendConfirmation sends the confirmation for an existing order again
// and records success.
func (s *OrderService) ResendConfirmation(ctx context.Context, orderID int64, customer domain.Customer) (*domain.Order, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.notifier.SendConfirmation(ctx, *order, customer); err != nil {
		return nil, fmt.Errorf("send confirmation: %w", err)
	}
	if err := s.orders.MarkNotificationSent(ctx, orderID); err != nil {
		return nil, err
	}
	order.NotificationSent = true
	return order, nil
}

func isSkippable(err error) bool {
	return errors.Is(err, domain.ErrInvalidTransition) || errors.Is(err, domain.ErrOrderNotFound)
}
