package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Book struct {
	ID            int64
	ISBN          string
	Title         string
	Author        string
	Description   string
	Price         decimal.Decimal
	StockQuantity int
	Featured      bool
	EbookKey      string // object storage key of the real eBook file, empty when none
	CoverKey      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (b Book) InStock() bool {
	return b.StockQuantity > 0
}

// Validate checks the catalog constraints enforced on every write.
func (b Book) Validate() error {
	if b.Title == "" || b.Author == "" {
		return fmt.Errorf("%w: title and author are required", ErrInvalidBook)
	}
	if n := len(b.ISBN); n != 10 && n != 13 {
		return fmt.Errorf("%w: isbn must be 10 or 13 characters", ErrInvalidBook)
	}
	if !b.Price.IsPositive() {
		return fmt.Errorf("%w: price must be positive", ErrInvalidBook)
	}
	if b.StockQuantity < 0 {
		return fmt.Errorf("%w: stock cannot be negative", ErrInvalidBook)
	}
	return nil
}

type SortOrder string

const (
	SortTitle         SortOrder = "title"
	SortTitleDesc     SortOrder = "-title"
	SortPrice         SortOrder = "price"
	SortPriceDesc     SortOrder = "-price"
	SortCreatedAt     SortOrder = "created_at"
	SortCreatedAtDesc SortOrder = "-created_at"
)

func (s SortOrder) Valid() bool {
	switch s {
	case SortTitle, SortTitleDesc, SortPrice, SortPriceDesc, SortCreatedAt, SortCreatedAtDesc:
		return true
	}
	return false
}

const DefaultBookPageSize = 12

// BookQuery selects in-stock books whose title, author or description
// contains Query, case-insensitively.
type BookQuery struct {
	Query    string
	SortBy   SortOrder
	Page     int
	PageSize int
}

// Normalize fills defaults so adapters never see a zero page or unknown sort.
func (q BookQuery) Normalize() BookQuery {
	if !q.SortBy.Valid() {
		q.SortBy = SortTitle
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultBookPageSize
	}
	return q
}

func (q BookQuery) Offset() int {
	return (q.Page - 1) * q.PageSize
}

type BookPage struct {
	Books    []Book
	Total    int
	Page     int
	PageSize int
}
