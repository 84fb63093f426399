package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestBook_Validate(t *testing.T) {
	valid := Book{
		ISBN:          "9780441013593",
		Title:         "Dune",
		Author:        "Frank Herbert",
		Price:         decimal.RequireFromString("9.99"),
		StockQuantity: 3,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cases := map[string]func(b *Book){
		"short isbn":     func(b *Book) { b.ISBN = "123" },
		"zero price":     func(b *Book) { b.Price = decimal.Zero },
		"negative stock": func(b *Book) { b.StockQuantity = -1 },
		"missing title":  func(b *Book) { b.Title = "" },
	}
	for name, mutate := range cases {
		b := valid
		mutate(&b)
		if err := b.Validate(); !errors.Is(err, ErrInvalidBook) {
			t.Errorf("%s: expected ErrInvalidBook, got %v", name, err)
		}
	}
}

func TestBookQuery_Normalize(t *testing.T) {
	q := BookQuery{SortBy: "rating", Page: 0}.Normalize()

	if q.SortBy != SortTitle {
		t.Errorf("expected default sort title, got %s", q.SortBy)
	}
	if q.Page != 1 || q.PageSize != DefaultBookPageSize {
		t.Errorf("expected page 1 size %d, got %d/%d", DefaultBookPageSize, q.Page, q.PageSize)
	}

	q = BookQuery{SortBy: SortPriceDesc, Page: 3, PageSize: 5}.Normalize()
	if q.Offset() != 10 {
		t.Errorf("expected offset 10, got %d", q.Offset())
	}
}

func TestCartView_Total(t *testing.T) {
	view := CartView{Lines: []CartLine{
		{Book: Book{Price: decimal.RequireFromString("10.50")}, Quantity: 2},
		{Book: Book{Price: decimal.RequireFromString("0.33")}, Quantity: 3},
	}}

	if !view.Total().Equal(decimal.RequireFromString("21.99")) {
		t.Errorf("expected 21.99, got %s", view.Total())
	}
	if view.ItemCount() != 5 {
		t.Errorf("expected 5 items, got %d", view.ItemCount())
	}
}
