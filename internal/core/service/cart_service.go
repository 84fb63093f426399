package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/port"
)

type CartService struct {
	carts   port.CartRepository
	catalog port.CatalogRepository
}

func NewCartService(carts port.CartRepository, catalog port.CatalogRepository) *CartService {
	return &CartService{carts: carts, catalog: catalog}
}

// Add puts qty copies of a book in the cart, merging with an existing entry.
func (s *CartService) Add(ctx context.Context, userID string, bookID int64, qty int) (*domain.CartEntry, error) {
	if !domain.ValidCartQuantity(qty) {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, qty)
	}

	book, err := s.catalog.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	entry := domain.CartEntry{UserID: userID, BookID: bookID}
	existing, err := s.carts.GetCartEntry(ctx, userID, bookID)
	switch {
	case err == nil:
		entry = *existing
	case !errors.Is(err, domain.ErrCartEntryNotFound):
		return nil, err
	}

	total := entry.Quantity + qty
	if total > book.StockQuantity {
		return nil, &domain.InsufficientStockError{
			BookID: book.ID, Title: book.Title, Requested: total, Available: book.StockQuantity,
		}
	}
	if total > domain.MaxCartQuantity {
		return nil, fmt.Errorf("%w: %d exceeds %d", domain.ErrInvalidQuantity, total, domain.MaxCartQuantity)
	}

	entry.Quantity = total
	if err := s.carts.PutCartEntry(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Update sets the quantity of an existing entry.
func (s *CartService) Update(ctx context.Context, userID string, bookID int64, qty int) (*domain.CartEntry, error) {
	if !domain.ValidCartQuantity(qty) {
		return nil, fmt.Errorf("%w: %d", domain.ErrInvalidQuantity, qty)
	}

	entry, err := s.carts.GetCartEntry(ctx, userID, bookID)
	if err != nil {
		return nil, err
	}

	book, err := s.catalog.GetBook(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if qty > book.StockQuantity {
		return nil, &domain.InsufficientStockError{
			BookID: book.ID, Title: book.Title, Requested: qty, Available: book.StockQuantity,
		}
	}

	entry.Quantity = qty
	if err := s.carts.PutCartEntry(ctx, *entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *CartService) Remove(ctx context.Context, userID string, bookID int64) error {
	return s.carts.DeleteCartEntry(ctx, userID, bookID)
}

// View joins the cart with current catalog data. Entries whose book has
// been removed from the catalog are left out.
func (s *CartService) View(ctx context.Context, userID string) (domain.CartView, error) {
	view := domain.CartView{UserID: userID}

	entries, err := s.carts.CartEntries(ctx, userID)
	if err != nil {
		return view, err
	}
	if len(entries) == 0 {
		return view, nil
	}

	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.BookID
	}
	books, err := s.catalog.GetBooks(ctx, ids)
	if err != nil {
		return view, err
	}

	for _, e := range entries {
		if book, ok := books[e.BookID]; ok {
			view.Lines = append(view.Lines, domain.CartLine{Book: book, Quantity: e.Quantity})
		}
	}
	return view, nil
}

// Count returns the number of distinct books in the cart.
func (s *CartService) Count(ctx context.Context, userID string) (int, error) {
	entries, err := s.carts.CartEntries(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
