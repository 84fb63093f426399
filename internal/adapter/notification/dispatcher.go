package notification

import (
	"context"
	"errors"
	"mime"
	"path"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/logger"
	"github.com/rl1809/bookstore/internal/port"
)

var ErrNoRecipient = errors.New("customer has no email address")

const (
	contentTypePDF  = "application/pdf"
	contentTypeText = "text/plain; charset=utf-8"
)

// BookSource supplies current catalog data for the attachments.
type BookSource interface {
	GetBooks(ctx context.Context, ids []int64) (map[int64]domain.Book, error)
}

// Dispatcher sends order confirmations with one eBook attachment per line.
type Dispatcher struct {
	sender Sender
	books  BookSource
	ebooks port.EbookStore

	renderPDF func(book domain.Book, quantity int, orderNumber string) ([]byte, error)
}

// NewDispatcher builds a Dispatcher. ebooks may be nil, in which case every
// attachment is a generated placeholder.
func NewDispatcher(sender Sender, books BookSource, ebooks port.EbookStore) *Dispatcher {
	return &Dispatcher{
		sender:    sender,
		books:     books,
		ebooks:    ebooks,
		renderPDF: placeholderPDF,
	}
}

func (d *Dispatcher) SendConfirmation(ctx context.Context, order domain.Order, customer domain.Customer) error {
	if customer.Email == "" {
		return ErrNoRecipient
	}

	html, text, err := renderBodies(order, customer)
	if err != nil {
		return err
	}

	msg := Message{
		To:          customer.Email,
		Subject:     subject(order),
		HTML:        html,
		Text:        text,
		Attachments: d.attachments(ctx, order),
	}
	return d.sender.Send(ctx, msg)
}

func (d *Dispatcher) attachments(ctx context.Context, order domain.Order) []Attachment {
	log := logger.Get()

	ids := make([]int64, len(order.Lines))
	for i, l := range order.Lines {
		ids[i] = l.BookID
	}
	books, err := d.books.GetBooks(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Str("order", order.Number()).Msg("load books for attachments failed")
		books = nil
	}

	out := make([]Attachment, 0, len(order.Lines))
	for _, l := range order.Lines {
		book, ok := books[l.BookID]
		if !ok {
			// Fall back to the snapshot taken at checkout.
			book = domain.Book{ID: l.BookID, Title: l.Title, Author: l.Author, ISBN: l.ISBN}
		}
		out = append(out, d.attachment(ctx, order.Number(), book, l.Quantity))
	}
	return out
}

// attachment tries the stored eBook, then a generated PDF, then plain text.
func (d *Dispatcher) attachment(ctx context.Context, orderNumber string, book domain.Book, quantity int) Attachment {
	log := logger.Get()

	if book.EbookKey != "" && d.ebooks != nil {
		data, err := d.ebooks.FetchEbook(ctx, book.EbookKey)
		if err == nil {
			name := path.Base(book.EbookKey)
			contentType := mime.TypeByExtension(path.Ext(name))
			if contentType == "" {
				contentType = "application/octet-stream"
			}
			return Attachment{Name: name, ContentType: contentType, Data: data}
		}
		log.Warn().Err(err).Str("key", book.EbookKey).Msg("fetch ebook failed, using placeholder")
	}

	data, err := d.renderPDF(book, quantity, orderNumber)
	if err == nil {
		return Attachment{Name: placeholderName(book.Title, "pdf"), ContentType: contentTypePDF, Data: data}
	}
	log.Warn().Err(err).Int64("book_id", book.ID).Msg("placeholder pdf failed, attaching text")

	return Attachment{
		Name:        placeholderName(book.Title, "txt"),
		ContentType: contentTypeText,
		Data:        placeholderText(book, quantity, orderNumber),
	}
}
