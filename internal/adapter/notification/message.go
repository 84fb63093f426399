package notification

import (
	"bytes"
	"embed"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/rl1809/bookstore/internal/core/domain"
)

//go:embed templates/*
var templateFS embed.FS

var (
	htmlTemplate = htmltemplate.Must(htmltemplate.ParseFS(templateFS, "templates/order_confirmation.html"))
	textTemplate = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/order_confirmation.txt"))
)

// Message is a rendered email ready for a Sender.
type Message struct {
	To          string
	Subject     string
	HTML        string
	Text        string
	Attachments []Attachment
}

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

type lineView struct {
	Title     string
	Author    string
	Quantity  int
	UnitPrice string
	Subtotal  string
}

type confirmationView struct {
	Number   string
	Name     string
	Lines    []lineView
	Total    string
	Shipping domain.ShippingAddress
}

func newConfirmationView(order domain.Order, customer domain.Customer) confirmationView {
	v := confirmationView{
		Number:   order.Number(),
		Name:     customer.Name,
		Total:    order.TotalAmount.StringFixed(2),
		Shipping: order.Shipping,
	}
	for _, l := range order.Lines {
		v.Lines = append(v.Lines, lineView{
			Title:     l.Title,
			Author:    l.Author,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice.StringFixed(2),
			Subtotal:  l.Subtotal().StringFixed(2),
		})
	}
	return v
}

func subject(order domain.Order) string {
	return fmt.Sprintf("Order Confirmation - %s", order.Number())
}

// renderBodies returns the HTML body and its plain-text alternative.
func renderBodies(order domain.Order, customer domain.Customer) (string, string, error) {
	view := newConfirmationView(order, customer)

	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, view); err != nil {
		return "", "", fmt.Errorf("render html body: %w", err)
	}
	if err := textTemplate.Execute(&text, view); err != nil {
		return "", "", fmt.Errorf("render text body: %w", err)
	}
	return html.String(), text.String(), nil
}
