package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart         = errors.New("cart is empty")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrBookNotFound      = errors.New("book not found")
	ErrCartEntryNotFound = errors.New("cart entry not found")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrInvalidBook       = errors.New("invalid book")
	ErrInvalidShipping   = errors.New("invalid shipping address")
	ErrInvalidProfile    = errors.New("invalid profile")
	ErrProfileNotFound   = errors.New("profile not found")
	ErrCoverNotFound     = errors.New("cover not found")
)

// InsufficientStockError names the book that could not cover the request.
type InsufficientStockError struct {
	BookID    int64
	Title     string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q (book %d): requested %d, available %d",
		e.Title, e.BookID, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
