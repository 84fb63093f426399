package handler

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/bookstore/internal/core/domain"
)

type AddCartItemRequest struct {
	BookID   int64 `json:"book_id" validate:"required,gt=0"`
	Quantity int   `json:"quantity" validate:"required,min=1,max=99"`
}

type UpdateCartItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=99"`
}

// ShippingRequest may be left empty at checkout to use the profile default,
// so completeness is checked by the domain rather than here.
type ShippingRequest struct {
	Address string `json:"address" validate:"omitempty,max=255"`
	City    string `json:"city" validate:"omitempty,max=100"`
	State   string `json:"state" validate:"omitempty,max=100"`
	ZipCode string `json:"zip_code" validate:"omitempty,min=3,max=20"`
	Country string `json:"country" validate:"omitempty,max=100"`
}

func (r ShippingRequest) toDomain() domain.ShippingAddress {
	return domain.ShippingAddress{
		Address: r.Address,
		City:    r.City,
		State:   r.State,
		ZipCode: r.ZipCode,
		Country: r.Country,
	}
}

const dateLayout = "2006-01-02"

type ProfileRequest struct {
	FirstName       string          `json:"first_name" validate:"max=150"`
	LastName        string          `json:"last_name" validate:"max=150"`
	Email           string          `json:"email" validate:"omitempty,email"`
	PhoneNumber     string          `json:"phone_number" validate:"omitempty,max=20"`
	DateOfBirth     string          `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	DefaultShipping ShippingRequest `json:"default_shipping"`
}

func (r ProfileRequest) toDomain(userID string) domain.Profile {
	p := domain.Profile{
		UserID:          userID,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Email:           r.Email,
		PhoneNumber:     r.PhoneNumber,
		DefaultShipping: r.DefaultShipping.toDomain(),
	}
	if dob, err := time.Parse(dateLayout, r.DateOfBirth); err == nil {
		p.DateOfBirth = &dob
	}
	return p
}

type SaveBookRequest struct {
	ISBN          string          `json:"isbn" validate:"required,min=10,max=13"`
	Title         string          `json:"title" validate:"required,max=200"`
	Author        string          `json:"author" validate:"required,max=100"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	StockQuantity int             `json:"stock_quantity" validate:"min=0"`
	Featured      bool            `json:"is_featured"`
}

type AdjustStockRequest struct {
	Delta int `json:"delta" validate:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending processing shipped delivered cancelled"`
}

type BulkStatusRequest struct {
	OrderIDs []int64 `json:"order_ids" validate:"required,min=1,dive,gt=0"`
	Status   string  `json:"status" validate:"required,oneof=pending processing shipped delivered cancelled"`
}

type ResendRequest struct {
	Email string `json:"email" validate:"required,email"`
	Name  string `json:"name"`
}

type BookResponse struct {
	ID            int64     `json:"id"`
	ISBN          string    `json:"isbn"`
	Title         string    `json:"title"`
	Author        string    `json:"author"`
	Description   string    `json:"description"`
	Price         string    `json:"price"`
	StockQuantity int       `json:"stock_quantity"`
	InStock       bool      `json:"in_stock"`
	Featured      bool      `json:"is_featured"`
	HasEbook      bool      `json:"has_ebook"`
	HasCover      bool      `json:"has_cover"`
	CreatedAt     time.Time `json:"created_at"`
}

func toBookResponse(b domain.Book) BookResponse {
	return BookResponse{
		ID:            b.ID,
		ISBN:          b.ISBN,
		Title:         b.Title,
		Author:        b.Author,
		Description:   b.Description,
		Price:         b.Price.StringFixed(2),
		StockQuantity: b.StockQuantity,
		InStock:       b.InStock(),
		Featured:      b.Featured,
		HasEbook:      b.EbookKey != "",
		HasCover:      b.CoverKey != "",
		CreatedAt:     b.CreatedAt,
	}
}

func toBookResponses(books []domain.Book) []BookResponse {
	out := make([]BookResponse, len(books))
	for i, b := range books {
		out[i] = toBookResponse(b)
	}
	return out
}

type BookPageResponse struct {
	Books    []BookResponse `json:"books"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"page_size"`
}

type CartLineResponse struct {
	Book     BookResponse `json:"book"`
	Quantity int          `json:"quantity"`
	Subtotal string       `json:"subtotal"`
}

type CartResponse struct {
	Lines     []CartLineResponse `json:"lines"`
	ItemCount int                `json:"item_count"`
	Total     string             `json:"total"`
}

func toCartResponse(v domain.CartView) CartResponse {
	resp := CartResponse{
		Lines:     make([]CartLineResponse, len(v.Lines)),
		ItemCount: v.ItemCount(),
		Total:     v.Total().StringFixed(2),
	}
	for i, l := range v.Lines {
		resp.Lines[i] = CartLineResponse{
			Book:     toBookResponse(l.Book),
			Quantity: l.Quantity,
			Subtotal: l.Subtotal().StringFixed(2),
		}
	}
	return resp
}

type OrderLineResponse struct {
	BookID    int64  `json:"book_id"`
	Title     string `json:"title"`
	Author    string `json:"author"`
	ISBN      string `json:"isbn"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	Subtotal  string `json:"subtotal"`
}

type ShippingResponse struct {
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

type ProfileResponse struct {
	UserID             string           `json:"user_id"`
	FirstName          string           `json:"first_name"`
	LastName           string           `json:"last_name"`
	Email              string           `json:"email"`
	PhoneNumber        string           `json:"phone_number"`
	DateOfBirth        string           `json:"date_of_birth,omitempty"`
	DefaultShipping    ShippingResponse `json:"default_shipping"`
	HasDefaultShipping bool             `json:"has_default_shipping"`
}

func toProfileResponse(p domain.Profile) ProfileResponse {
	resp := ProfileResponse{
		UserID:             p.UserID,
		FirstName:          p.FirstName,
		LastName:           p.LastName,
		Email:              p.Email,
		PhoneNumber:        p.PhoneNumber,
		DefaultShipping:    ShippingResponse(p.DefaultShipping),
		HasDefaultShipping: p.HasDefaultShipping(),
	}
	if p.DateOfBirth != nil {
		resp.DateOfBirth = p.DateOfBirth.Format(dateLayout)
	}
	return resp
}

type OrderResponse struct {
	ID               int64               `json:"id"`
	Number           string              `json:"number"`
	Status           string              `json:"status"`
	TotalAmount      string              `json:"total_amount"`
	NotificationSent bool                `json:"notification_sent"`
	Shipping         ShippingResponse    `json:"shipping"`
	Lines            []OrderLineResponse `json:"lines"`
	CreatedAt        time.Time           `json:"created_at"`
}

func toOrderResponse(o domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:               o.ID,
		Number:           o.Number(),
		Status:           string(o.Status),
		TotalAmount:      o.TotalAmount.StringFixed(2),
		NotificationSent: o.NotificationSent,
		Shipping:         ShippingResponse(o.Shipping),
		Lines:            make([]OrderLineResponse, len(o.Lines)),
		CreatedAt:        o.CreatedAt,
	}
	for i, l := range o.Lines {
		resp.Lines[i] = OrderLineResponse{
			BookID:    l.BookID,
			Title:     l.Title,
			Author:    l.Author,
			ISBN:      l.ISBN,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Subtotal:  l.Subtotal().StringFixed(2),
		}
	}
	return resp
}

type OrderPageResponse struct {
	Orders   []OrderResponse `json:"orders"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
}
