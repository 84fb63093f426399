package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderNumber(t *testing.T) {
	o := Order{ID: 42}
	if got := o.Number(); got != "ORD-000042" {
		t.Errorf("expected ORD-000042, got %s", got)
	}

	o.ID = 1234567
	if got := o.Number(); got != "ORD-1234567" {
		t.Errorf("expected ORD-1234567, got %s", got)
	}
}

func TestOrderStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		ok       bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusPending, OrderStatusShipped, false},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusShipped, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusPending, false},
		{OrderStatusCancelled, OrderStatusPending, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.ok {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.ok, got)
		}
	}

	if !OrderStatusDelivered.Terminal() || !OrderStatusCancelled.Terminal() {
		t.Error("delivered and cancelled should be terminal")
	}
	if OrderStatusPending.Terminal() {
		t.Error("pending should not be terminal")
	}
}

func TestParseOrderStatus(t *testing.T) {
	st, err := ParseOrderStatus("shipped")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st != OrderStatusShipped {
		t.Errorf("expected shipped, got %s", st)
	}

	_, err = ParseOrderStatus("lost")
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestSumLines_RoundsToCents(t *testing.T) {
	tests := []struct {
		name  string
		lines []OrderLine
		want  string
	}{
		{
			name: "whole cents",
			lines: []OrderLine{
				{Quantity: 3, UnitPrice: decimal.RequireFromString("19.99")},
				{Quantity: 1, UnitPrice: decimal.RequireFromString("5.01")},
			},
			want: "64.98",
		},
		{
			name: "fractional unit price",
			lines: []OrderLine{
				{Quantity: 3, UnitPrice: decimal.RequireFromString("3.335")},
				{Quantity: 2, UnitPrice: decimal.RequireFromString("0.125")},
			},
			want: "10.26",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := SumLines(tt.lines)
			if !total.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("expected %s, got %s", tt.want, total)
			}
		})
	}
}

func TestShippingAddress_Validate(t *testing.T) {
	addr := ShippingAddress{Address: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701"}
	if err := addr.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	addr.ZipCode = "12"
	if err := addr.Validate(); !errors.Is(err, ErrInvalidShipping) {
		t.Errorf("expected ErrInvalidShipping, got %v", err)
	}

	if got := (ShippingAddress{}).WithDefaults().Country; got != DefaultCountry {
		t.Errorf("expected default country, got %q", got)
	}
}

func TestInsufficientStockError_Is(t *testing.T) {
	var err error = &InsufficientStockError{BookID: 7, Title: "Dune", Requested: 3, Available: 1}

	if !errors.Is(err, ErrInsufficientStock) {
		t.Error("expected errors.Is to match ErrInsufficientStock")
	}

	var stockErr *InsufficientStockError
	if !errors.As(err, &stockErr) {
		t.Fatal("expected errors.As to extract InsufficientStockError")
	}
	if stockErr.Available != 1 {
		t.Errorf("expected available 1, got %d", stockErr.Available)
	}
}
