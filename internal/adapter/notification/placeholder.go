package notification

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"

	"github.com/rl1809/bookstore/internal/core/domain"
)

const (
	descriptionWidth    = 70
	descriptionMaxLines = 10
	qrSize              = 128
)

// placeholderName is the attachment name for a generated eBook.
func placeholderName(title, ext string) string {
	return fmt.Sprintf("%s_ebook.%s", strings.ReplaceAll(title, " ", "_"), ext)
}

// wrapDescription breaks text into lines shorter than width characters,
// keeping at most limit lines.
func wrapDescription(text string, width, limit int) []string {
	var lines []string
	var current strings.Builder

	for _, word := range strings.Fields(text) {
		if current.Len() > 0 && current.Len()+1+len(word) >= width {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}

	if len(lines) > limit {
		lines = lines[:limit]
	}
	return lines
}

// placeholderPDF renders a one-page stand-in for an eBook that has no file
// in object storage. The QR code carries the order number and ISBN.
func placeholderPDF(book domain.Book, quantity int, orderNumber string) ([]byte, error) {
	png, err := qrcode.Encode(fmt.Sprintf("%s/%s", orderNumber, book.ISBN), qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr code: %w", err)
	}

	pdf := fpdf.New("P", "pt", "Letter", "")
	pdf.SetTitle(book.Title, true)
	pdf.SetCreator("bookstore", false)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	_, pageHeight := pdf.GetPageSize()
	// Positions are measured from the bottom of the page.
	text := func(y float64, s string) {
		pdf.Text(100, pageHeight-y, tr(s))
	}

	pdf.SetFont("Helvetica", "B", 16)
	text(750, "eBook: "+book.Title)

	pdf.SetFont("Helvetica", "", 12)
	text(720, "Author: "+book.Author)
	text(700, "ISBN: "+book.ISBN)
	text(680, fmt.Sprintf("Quantity: %d", quantity))

	text(640, "Thank you for your purchase!")
	text(620, "This is a placeholder PDF file.")
	text(600, "In a real bookstore, this would be the actual eBook.")

	text(560, "Book Description:")
	y := 540.0
	for _, line := range wrapDescription(book.Description, descriptionWidth, descriptionMaxLines) {
		text(y, line)
		y -= 20
	}

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("qr", 440, pageHeight-770, 100, 100, false, opts, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// placeholderText is the last-resort attachment when no PDF can be produced.
func placeholderText(book domain.Book, quantity int, orderNumber string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "eBook: %s\n", book.Title)
	fmt.Fprintf(&b, "Author: %s\n", book.Author)
	fmt.Fprintf(&b, "ISBN: %s\n", book.ISBN)
	fmt.Fprintf(&b, "Quantity: %d\n", quantity)
	fmt.Fprintf(&b, "Order: %s\n\n", orderNumber)
	b.WriteString("Thank you for your purchase!\n")
	b.WriteString("This is a placeholder file.\n")
	if book.Description != "" {
		b.WriteString("\nBook Description:\n")
		for _, line := range wrapDescription(book.Description, descriptionWidth, descriptionMaxLines) {
			b.WriteString(line + "\n")
		}
	}
	return []byte(b.String())
}
