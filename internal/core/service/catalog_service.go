package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/logger"
	"github.com/rl1809/bookstore/internal/port"
)

var (
	ErrEbookStorageDisabled = errors.New("ebook storage is not configured")
	ErrCoverStorageDisabled = errors.New("cover storage is not configured")
)

// BookRefresher brings cached and indexed copies of books back in line
// with the repository after their stock changed elsewhere.
type BookRefresher interface {
	RefreshBooks(ctx context.Context, ids ...int64)
}

const (
	DefaultFeaturedLimit = 6
	DefaultRelatedLimit  = 4
)

type CatalogService struct {
	books  port.CatalogRepository
	cache  port.CacheRepository
	index  port.BookIndex
	ebooks port.EbookStore
	covers port.CoverStore
}

// NewCatalogService wires catalog reads and writes. Everything after books
// is optional and may be nil.
func NewCatalogService(books port.CatalogRepository, cache port.CacheRepository, index port.BookIndex, ebooks port.EbookStore, covers port.CoverStore) *CatalogService {
	return &CatalogService{books: books, cache: cache, index: index, ebooks: ebooks, covers: covers}
}

// Search lists in-stock books. It prefers the search index and falls back
// to the repository when the index is absent or failing.
func (s *CatalogService) Search(ctx context.Context, q domain.BookQuery) (domain.BookPage, error) {
	q = q.Normalize()
	if s.index == nil {
		return s.books.SearchBooks(ctx, q)
	}

	ids, total, err := s.index.SearchBookIDs(ctx, q)
	if err != nil {
		logger.Get().Warn().Err(err).Msg("search index unavailable, using repository")
		return s.books.SearchBooks(ctx, q)
	}

	found, err := s.books.GetBooks(ctx, ids)
	if err != nil {
		return domain.BookPage{}, err
	}

	page := domain.BookPage{Page: q.Page, PageSize: q.PageSize}
	var stale []int64
	for _, id := range ids {
		if b, ok := found[id]; ok && b.InStock() {
			page.Books = append(page.Books, b)
		} else {
			stale = append(stale, id)
		}
	}
	// hits the repository no longer sells are not counted
	page.Total = max(total-len(stale), len(page.Books))
	if len(stale) > 0 {
		s.RefreshBooks(ctx, stale...)
	}
	return page, nil
}

// GetBook reads through the cache when one is configured.
func (s *CatalogService) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	log := logger.Get()

	if s.cache != nil {
		cached, err := s.cache.GetBook(ctx, id)
		if err != nil {
			log.Warn().Err(err).Int64("book_id", id).Msg("book cache read failed")
		}
		if cached != nil {
			return cached, nil
		}
	}

	book, err := s.books.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.SetBook(ctx, *book); err != nil {
			log.Warn().Err(err).Int64("book_id", id).Msg("book cache write failed")
		}
	}
	return book, nil
}

func (s *CatalogService) Featured(ctx context.Context, limit int) ([]domain.Book, error) {
	if limit <= 0 {
		limit = DefaultFeaturedLimit
	}
	return s.books.FeaturedBooks(ctx, limit)
}

// Related lists other in-stock books by the same author.
func (s *CatalogService) Related(ctx context.Context, id int64, limit int) ([]domain.Book, error) {
	book, err := s.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRelatedLimit
	}
	return s.books.BooksByAuthor(ctx, book.Author, book.ID, limit)
}

// SaveBook creates or updates a book keyed by ISBN.
func (s *CatalogService) SaveBook(ctx context.Context, book domain.Book) (*domain.Book, error) {
	book.Price = book.Price.Round(2)
	if err := book.Validate(); err != nil {
		return nil, err
	}

	saved, err := s.books.SaveBook(ctx, book)
	if err != nil {
		return nil, err
	}

	s.refresh(ctx, *saved)
	return saved, nil
}

// AdjustStock adds delta to a book's stock. A result below zero is refused
// with an InsufficientStockError.
func (s *CatalogService) AdjustStock(ctx context.Context, id int64, delta int) (int, error) {
	stock, err := s.books.AdjustStock(ctx, id, delta)
	if err != nil {
		return stock, err
	}

	if book, err := s.books.GetBook(ctx, id); err == nil {
		s.refresh(ctx, *book)
	}
	return stock, nil
}

// AttachEbook stores the eBook file and links it to the book.
func (s *CatalogService) AttachEbook(ctx context.Context, id int64, filename string, data []byte, contentType string) (*domain.Book, error) {
	if s.ebooks == nil {
		return nil, ErrEbookStorageDisabled
	}

	book, err := s.books.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s", book.ISBN, path.Base(strings.ReplaceAll(filename, " ", "_")))
	if err := s.ebooks.PutEbook(ctx, key, data, contentType); err != nil {
		return nil, err
	}

	book.EbookKey = key
	return s.SaveBook(ctx, *book)
}

// AttachCover stores a cover image and links it to the book.
func (s *CatalogService) AttachCover(ctx context.Context, id int64, filename string, data []byte, contentType string) (*domain.Book, error) {
	if s.covers == nil {
		return nil, ErrCoverStorageDisabled
	}
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("%w: cover must be an image, got %q", domain.ErrInvalidBook, contentType)
	}

	book, err := s.books.GetBook(ctx, id)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("covers/%s%s", book.ISBN, strings.ToLower(path.Ext(filename)))
	if err := s.covers.PutCover(ctx, key, data, contentType); err != nil {
		return nil, err
	}

	book.CoverKey = key
	return s.SaveBook(ctx, *book)
}

// Cover returns the image bytes and content type of a book's cover.
func (s *CatalogService) Cover(ctx context.Context, id int64) ([]byte, string, error) {
	if s.covers == nil {
		return nil, "", ErrCoverStorageDisabled
	}

	book, err := s.GetBook(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if book.CoverKey == "" {
		return nil, "", domain.ErrCoverNotFound
	}
	return s.covers.FetchCover(ctx, book.CoverKey)
}

// RefreshBooks evicts the given books from the cache and reindexes the
// ones that still exist. Both are best effort.
func (s *CatalogService) RefreshBooks(ctx context.Context, ids ...int64) {
	log := logger.Get()
	if len(ids) == 0 {
		return
	}

	if s.cache != nil {
		if err := s.cache.InvalidateBooks(ctx, ids...); err != nil {
			log.Warn().Err(err).Ints64("book_ids", ids).Msg("invalidate cached books failed")
		}
	}
	if s.index == nil {
		return
	}

	found, err := s.books.GetBooks(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Ints64("book_ids", ids).Msg("reload books for reindex failed")
		return
	}
	for _, id := range ids {
		b, ok := found[id]
		if !ok {
			continue
		}
		if err := s.index.IndexBook(ctx, b); err != nil {
			log.Warn().Err(err).Int64("book_id", id).Msg("index book failed")
		}
	}
}

// refresh drops the cached copy and reindexes. Both are best effort.
func (s *CatalogService) refresh(ctx context.Context, book domain.Book) {
	log := logger.Get()

	if s.cache != nil {
		if err := s.cache.InvalidateBooks(ctx, book.ID); err != nil {
			log.Warn().Err(err).Int64("book_id", book.ID).Msg("invalidate cached book failed")
		}
	}
	if s.index != nil {
		if err := s.index.IndexBook(ctx, book); err != nil {
			log.Warn().Err(err).Int64("book_id", book.ID).Msg("index book failed")
		}
	}
}
