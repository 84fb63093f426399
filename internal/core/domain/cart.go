package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	MinCartQuantity = 1
	MaxCartQuantity = 99
)

type CartEntry struct {
	UserID    string
	BookID    int64
	Quantity  int
	CreatedAt time.Time
}

func ValidCartQuantity(qty int) bool {
	return qty >= MinCartQuantity && qty <= MaxCartQuantity
}

type CartLine struct {
	Book     Book
	Quantity int
}

func (l CartLine) Subtotal() decimal.Decimal {
	return l.Book.Price.Mul(decimal.NewFromInt(int64(l.Quantity))).Round(2)
}

// CartView is a display projection at live prices. Checkout reprices.
type CartView struct {
	UserID string
	Lines  []CartLine
}

func (v CartView) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range v.Lines {
		total = total.Add(l.Subtotal())
	}
	return total.Round(2)
}

func (v CartView) ItemCount() int {
	n := 0
	for _, l := range v.Lines {
		n += l.Quantity
	}
	return n
}
