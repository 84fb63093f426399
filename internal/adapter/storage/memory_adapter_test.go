package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/port"
)

func TestMemoryAdapter(t *testing.T) {
	testStore(t, NewMemoryAdapter())
}

func TestMemorySearchBooks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAdapter()

	for _, b := range []domain.Book{
		{ISBN: "9780441013593", Title: "Dune", Author: "Frank Herbert", Price: decimal.RequireFromString("9.99"), StockQuantity: 3},
		{ISBN: "9780441172696", Title: "Dune Messiah", Author: "Frank Herbert", Price: decimal.RequireFromString("8.99"), StockQuantity: 2},
		{ISBN: "9780553293357", Title: "Foundation", Author: "Isaac Asimov", Description: "Psychohistory and a dune of data", Price: decimal.RequireFromString("7.99"), StockQuantity: 1},
		{ISBN: "9780441478125", Title: "The Left Hand of Darkness", Author: "Ursula K. Le Guin", Price: decimal.RequireFromString("11.00"), StockQuantity: 0},
	} {
		if _, err := store.SaveBook(ctx, b); err != nil {
			t.Fatalf("SaveBook failed: %v", err)
		}
	}

	page, err := store.SearchBooks(ctx, domain.BookQuery{Query: "DUNE", SortBy: domain.SortPrice})
	if err != nil {
		t.Fatalf("SearchBooks failed: %v", err)
	}
	if page.Total != 3 {
		t.Fatalf("expected 3 matches, got %d", page.Total)
	}
	if page.Books[0].Title != "Foundation" || page.Books[2].Title != "Dune" {
		t.Errorf("unexpected price order: %s, %s, %s", page.Books[0].Title, page.Books[1].Title, page.Books[2].Title)
	}
	if page.PageSize != domain.DefaultBookPageSize || page.Page != 1 {
		t.Errorf("expected normalized paging, got page %d size %d", page.Page, page.PageSize)
	}

	page, err = store.SearchBooks(ctx, domain.BookQuery{SortBy: domain.SortTitleDesc, Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("SearchBooks failed: %v", err)
	}
	if page.Total != 3 {
		t.Errorf("expected sold-out book excluded, got total %d", page.Total)
	}
	if len(page.Books) != 1 || page.Books[0].Title != "Dune" {
		t.Errorf("expected only Dune on page 2, got %+v", page.Books)
	}

	page, _ = store.SearchBooks(ctx, domain.BookQuery{Page: 9})
	if len(page.Books) != 0 {
		t.Errorf("expected an empty page past the end, got %d", len(page.Books))
	}

	related, err := store.BooksByAuthor(ctx, "Frank Herbert", 1, 5)
	if err != nil {
		t.Fatalf("BooksByAuthor failed: %v", err)
	}
	if len(related) != 1 || related[0].Title != "Dune Messiah" {
		t.Errorf("expected Dune Messiah, got %+v", related)
	}
}

func TestMemoryFeaturedBooks(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAdapter()

	for i, title := range []string{"First", "Second", "Third"} {
		_, err := store.SaveBook(ctx, domain.Book{
			ISBN: uniqueISBN(), Title: title, Author: "A", Price: decimal.NewFromInt(5),
			StockQuantity: 1, Featured: i != 1,
		})
		if err != nil {
			t.Fatalf("SaveBook failed: %v", err)
		}
	}

	books, err := store.FeaturedBooks(ctx, 1)
	if err != nil {
		t.Fatalf("FeaturedBooks failed: %v", err)
	}
	if len(books) != 1 || books[0].Title != "Third" {
		t.Errorf("expected newest featured book, got %+v", books)
	}
}

func TestMemoryTxDiscardsWorkOnError(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAdapter()
	book := saveTestBook(t, store, "Discarded", 2)

	errBoom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx port.Tx) error {
		if ok, err := tx.DecrementStock(ctx, book.ID, 2); !ok || err != nil {
			t.Fatalf("DecrementStock = %v, %v", ok, err)
		}
		if err := tx.InsertOrder(ctx, &domain.Order{UserID: "u"}); err != nil {
			t.Fatalf("InsertOrder failed: %v", err)
		}
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected errBoom, got %v", err)
	}

	if got := stockOf(t, store, book.ID); got != 2 {
		t.Errorf("expected stock 2, got %d", got)
	}
	if _, err := store.GetOrder(ctx, 1); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Errorf("expected no order, got %v", err)
	}
}

func TestMemoryProfileSurvivesCommit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryAdapter()

	if _, err := store.SaveProfile(ctx, domain.Profile{UserID: "user-1", FirstName: "Ada"}); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}
	book := saveTestBook(t, store, "Committed", 2)
	if err := store.PutCartEntry(ctx, domain.CartEntry{UserID: "user-1", BookID: book.ID, Quantity: 1}); err != nil {
		t.Fatalf("PutCartEntry failed: %v", err)
	}
	if _, err := placeTestOrder(ctx, store, "user-1"); err != nil {
		t.Fatalf("checkout failed: %v", err)
	}

	got, err := store.GetProfile(ctx, "user-1")
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if got.FirstName != "Ada" {
		t.Errorf("expected profile to survive, got %+v", got)
	}
}
