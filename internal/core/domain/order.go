package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered},
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, s)
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

type ShippingAddress struct {
	Address string
	City    string
	State   string
	ZipCode string
	Country string
}

const DefaultCountry = "United States"

func (a ShippingAddress) Validate() error {
	if a.Address == "" || a.City == "" || a.State == "" {
		return fmt.Errorf("%w: address, city and state are required", ErrInvalidShipping)
	}
	if len(strings.TrimSpace(a.ZipCode)) < 3 {
		return fmt.Errorf("%w: zip code too short", ErrInvalidShipping)
	}
	return nil
}

// IsZero reports whether no field was filled in.
func (a ShippingAddress) IsZero() bool {
	return a == ShippingAddress{}
}

// WithDefaults returns a copy with an empty country set to DefaultCountry.
func (a ShippingAddress) WithDefaults() ShippingAddress {
	if a.Country == "" {
		a.Country = DefaultCountry
	}
	return a
}

type Order struct {
	ID               int64
	UserID           string
	TotalAmount      decimal.Decimal
	Status           OrderStatus
	Shipping         ShippingAddress
	NotificationSent bool
	Lines            []OrderLine
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Number is the customer-facing order reference.
func (o Order) Number() string {
	return fmt.Sprintf("ORD-%06d", o.ID)
}

// OrderLine holds the price and book details as they were at commit.
type OrderLine struct {
	OrderID   int64
	BookID    int64
	Title     string
	Author    string
	ISBN      string
	Quantity  int
	UnitPrice decimal.Decimal
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
}

func SumLines(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total.Round(2)
}

const DefaultOrderPageSize = 10

type OrderPage struct {
	Orders   []Order
	Total    int
	Page     int
	PageSize int
}

// Customer identifies the buyer and where confirmations go.
type Customer struct {
	ID    string
	Email string
	Name  string
}
