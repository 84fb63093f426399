package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/port"
)

const bookColumns = `id, isbn, title, author, description, price, stock_quantity,
	is_featured, ebook_key, cover_key, created_at, updated_at`

const profileColumns = `user_id, first_name, last_name, email, phone_number, date_of_birth,
	default_shipping_address, default_shipping_city, default_shipping_state,
	default_shipping_zip_code, default_shipping_country, created_at, updated_at`

const orderColumns = `id, user_id, total_amount, status, shipping_address, shipping_city,
	shipping_state, shipping_zip_code, shipping_country, notification_sent, created_at, updated_at`

var sortClauses = map[domain.SortOrder]string{
	domain.SortTitle:         "title ASC, id ASC",
	domain.SortTitleDesc:     "title DESC, id DESC",
	domain.SortPrice:         "price ASC, id ASC",
	domain.SortPriceDesc:     "price DESC, id DESC",
	domain.SortCreatedAt:     "created_at ASC, id ASC",
	domain.SortCreatedAtDesc: "created_at DESC, id DESC",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (domain.Book, error) {
	var b domain.Book
	err := row.Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &b.Description, &b.Price,
		&b.StockQuantity, &b.Featured, &b.EbookKey, &b.CoverKey, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func scanProfile(row rowScanner) (domain.Profile, error) {
	var p domain.Profile
	var dob sql.NullTime
	err := row.Scan(&p.UserID, &p.FirstName, &p.LastName, &p.Email, &p.PhoneNumber, &dob,
		&p.DefaultShipping.Address, &p.DefaultShipping.City, &p.DefaultShipping.State,
		&p.DefaultShipping.ZipCode, &p.DefaultShipping.Country, &p.CreatedAt, &p.UpdatedAt)
	if dob.Valid {
		p.DateOfBirth = &dob.Time
	}
	return p, err
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var o domain.Order
	var status string
	err := row.Scan(&o.ID, &o.UserID, &o.TotalAmount, &status,
		&o.Shipping.Address, &o.Shipping.City, &o.Shipping.State, &o.Shipping.ZipCode, &o.Shipping.Country,
		&o.NotificationSent, &o.CreatedAt, &o.UpdatedAt)
	o.Status = domain.OrderStatus(status)
	return o, err
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

type sqlQuerier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryBooks(ctx context.Context, q sqlQuerier, query string, args ...any) ([]domain.Book, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

func (m *MySQLAdapter) Close() error {
	return m.db.Close()
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &mysqlTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	b, err := scanBook(m.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query book: %w", err)
	}
	return &b, nil
}

func (m *MySQLAdapter) GetBooks(ctx context.Context, ids []int64) (map[int64]domain.Book, error) {
	out := make(map[int64]domain.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	books, err := queryBooks(ctx, m.db,
		`SELECT `+bookColumns+` FROM books WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}

func (m *MySQLAdapter) SearchBooks(ctx context.Context, q domain.BookQuery) (domain.BookPage, error) {
	q = q.Normalize()
	like := "%" + q.Query + "%"
	where := `stock_quantity > 0 AND (? = '' OR title LIKE ? OR author LIKE ? OR description LIKE ?)`
	args := []any{q.Query, like, like, like}

	page := domain.BookPage{Page: q.Page, PageSize: q.PageSize}
	err := m.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books WHERE `+where, args...).Scan(&page.Total)
	if err != nil {
		return page, fmt.Errorf("count books: %w", err)
	}

	page.Books, err = queryBooks(ctx, m.db,
		`SELECT `+bookColumns+` FROM books WHERE `+where+
			` ORDER BY `+sortClauses[q.SortBy]+` LIMIT ? OFFSET ?`,
		append(args, q.PageSize, q.Offset())...)
	if err != nil {
		return page, fmt.Errorf("search books: %w", err)
	}
	return page, nil
}

func (m *MySQLAdapter) FeaturedBooks(ctx context.Context, limit int) ([]domain.Book, error) {
	books, err := queryBooks(ctx, m.db, `
		SELECT `+bookColumns+` FROM books
		WHERE is_featured = TRUE AND stock_quantity > 0
		ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query featured books: %w", err)
	}
	return books, nil
}

func (m *MySQLAdapter) BooksByAuthor(ctx context.Context, author string, excludeID int64, limit int) ([]domain.Book, error) {
	books, err := queryBooks(ctx, m.db, `
		SELECT `+bookColumns+` FROM books
		WHERE author = ? AND id <> ? AND stock_quantity > 0
		ORDER BY title ASC, id ASC LIMIT ?`, author, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("query books by author: %w", err)
	}
	return books, nil
}

func (m *MySQLAdapter) SaveBook(ctx context.Context, book domain.Book) (*domain.Book, error) {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO books (isbn, title, author, description, price, stock_quantity, is_featured, ebook_key, cover_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			title = VALUES(title), author = VALUES(author), description = VALUES(description),
			price = VALUES(price),
			is_featured = VALUES(is_featured), ebook_key = VALUES(ebook_key), cover_key = VALUES(cover_key),
			updated_at = NOW(6)`,
		book.ISBN, book.Title, book.Author, book.Description, book.Price,
		book.StockQuantity, book.Featured, book.EbookKey, book.CoverKey,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert book: %w", err)
	}

	saved, err := scanBook(m.db.QueryRowContext(ctx,
		`SELECT `+bookColumns+` FROM books WHERE isbn = ?`, book.ISBN))
	if err != nil {
		return nil, fmt.Errorf("reload book: %w", err)
	}
	return &saved, nil
}

func (m *MySQLAdapter) AdjustStock(ctx context.Context, id int64, delta int) (int, error) {
	result, err := m.db.ExecContext(ctx, `
		UPDATE books
		SET stock_quantity = stock_quantity + ?, updated_at = NOW(6)
		WHERE id = ? AND stock_quantity + ? >= 0`,
		delta, id, delta,
	)
	if err != nil {
		return 0, fmt.Errorf("adjust stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	book, err := m.GetBook(ctx, id)
	if err != nil {
		return 0, err
	}
	if rows == 0 && delta != 0 {
		return book.StockQuantity, &domain.InsufficientStockError{
			BookID: id, Title: book.Title, Requested: -delta, Available: book.StockQuantity,
		}
	}
	return book.StockQuantity, nil
}

func (m *MySQLAdapter) CartEntries(ctx context.Context, userID string) ([]domain.CartEntry, error) {
	return queryCartEntries(ctx, m.db, `
		SELECT user_id, book_id, quantity, created_at FROM cart_items
		WHERE user_id = ? ORDER BY created_at, book_id`, userID)
}

func queryCartEntries(ctx context.Context, q sqlQuerier, query string, args ...any) ([]domain.CartEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cart: %w", err)
	}
	defer rows.Close()

	var entries []domain.CartEntry
	for rows.Next() {
		var e domain.CartEntry
		if err := rows.Scan(&e.UserID, &e.BookID, &e.Quantity, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan cart entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (m *MySQLAdapter) GetCartEntry(ctx context.Context, userID string, bookID int64) (*domain.CartEntry, error) {
	var e domain.CartEntry
	err := m.db.QueryRowContext(ctx, `
		SELECT user_id, book_id, quantity, created_at FROM cart_items
		WHERE user_id = ? AND book_id = ?`, userID, bookID,
	).Scan(&e.UserID, &e.BookID, &e.Quantity, &e.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrCartEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart entry: %w", err)
	}
	return &e, nil
}

func (m *MySQLAdapter) PutCartEntry(ctx context.Context, entry domain.CartEntry) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, book_id, quantity) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE quantity = VALUES(quantity)`,
		entry.UserID, entry.BookID, entry.Quantity,
	)
	if err != nil {
		return fmt.Errorf("put cart entry: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) DeleteCartEntry(ctx context.Context, userID string, bookID int64) error {
	result, err := m.db.ExecContext(ctx,
		`DELETE FROM cart_items WHERE user_id = ? AND book_id = ?`, userID, bookID)
	if err != nil {
		return fmt.Errorf("delete cart entry: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrCartEntryNotFound
	}
	return nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(m.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	lines, err := queryOrderLines(ctx, m.db, []int64{id})
	if err != nil {
		return nil, err
	}
	o.Lines = lines[id]
	return &o, nil
}

func queryOrderLines(ctx context.Context, q sqlQuerier, orderIDs []int64) (map[int64][]domain.OrderLine, error) {
	out := make(map[int64][]domain.OrderLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	rows, err := q.QueryContext(ctx, `
		SELECT order_id, book_id, title, author, isbn, quantity, unit_price
		FROM order_items WHERE order_id IN (`+placeholders(len(orderIDs))+`)
		ORDER BY order_id, book_id`, int64Args(orderIDs)...)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.OrderID, &l.BookID, &l.Title, &l.Author, &l.ISBN, &l.Quantity, &l.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, rows.Err()
}

func (m *MySQLAdapter) ListOrders(ctx context.Context, userID string, page, pageSize int) (domain.OrderPage, error) {
	page, pageSize = max(page, 1), max(pageSize, 1)
	result := domain.OrderPage{Page: page, PageSize: pageSize}

	err := m.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = ?`, userID).Scan(&result.Total)
	if err != nil {
		return result, fmt.Errorf("count orders: %w", err)
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE user_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return result, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return result, fmt.Errorf("scan order: %w", err)
		}
		result.Orders = append(result.Orders, o)
		ids = append(ids, o.ID)
	}
	if err := rows.Err(); err != nil {
		return result, err
	}

	lines, err := queryOrderLines(ctx, m.db, ids)
	if err != nil {
		return result, err
	}
	for i := range result.Orders {
		result.Orders[i].Lines = lines[result.Orders[i].ID]
	}
	return result, nil
}

func (m *MySQLAdapter) MarkNotificationSent(ctx context.Context, id int64) error {
	result, err := m.db.ExecContext(ctx,
		`UPDATE orders SET notification_sent = TRUE, updated_at = NOW(6) WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (m *MySQLAdapter) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	p, err := scanProfile(m.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &p, nil
}

func (m *MySQLAdapter) SaveProfile(ctx context.Context, profile domain.Profile) (*domain.Profile, error) {
	var dob sql.NullTime
	if profile.DateOfBirth != nil {
		dob = sql.NullTime{Time: *profile.DateOfBirth, Valid: true}
	}
	ship := profile.DefaultShipping

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, first_name, last_name, email, phone_number, date_of_birth,
			default_shipping_address, default_shipping_city, default_shipping_state,
			default_shipping_zip_code, default_shipping_country)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			first_name = VALUES(first_name), last_name = VALUES(last_name), email = VALUES(email),
			phone_number = VALUES(phone_number), date_of_birth = VALUES(date_of_birth),
			default_shipping_address = VALUES(default_shipping_address),
			default_shipping_city = VALUES(default_shipping_city),
			default_shipping_state = VALUES(default_shipping_state),
			default_shipping_zip_code = VALUES(default_shipping_zip_code),
			default_shipping_country = VALUES(default_shipping_country),
			updated_at = NOW(6)`,
		profile.UserID, profile.FirstName, profile.LastName, profile.Email, profile.PhoneNumber, dob,
		ship.Address, ship.City, ship.State, ship.ZipCode, ship.Country,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return m.GetProfile(ctx, profile.UserID)
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) CartEntries(ctx context.Context, userID string) ([]domain.CartEntry, error) {
	return queryCartEntries(ctx, t.tx, `
		SELECT user_id, book_id, quantity, created_at FROM cart_items
		WHERE user_id = ? ORDER BY created_at, book_id FOR UPDATE`, userID)
}

func (t *mysqlTx) LockBooks(ctx context.Context, ids []int64) (map[int64]domain.Book, error) {
	out := make(map[int64]domain.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	books, err := queryBooks(ctx, t.tx,
		`SELECT `+bookColumns+` FROM books WHERE id IN (`+placeholders(len(sorted))+`)
		ORDER BY id FOR UPDATE`, int64Args(sorted)...)
	if err != nil {
		return nil, fmt.Errorf("lock books: %w", err)
	}
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}

func (t *mysqlTx) DecrementStock(ctx context.Context, bookID int64, qty int) (bool, error) {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE books
		SET stock_quantity = stock_quantity - ?, updated_at = NOW(6)
		WHERE id = ? AND stock_quantity >= ?`,
		qty, bookID, qty,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

func (t *mysqlTx) IncrementStock(ctx context.Context, bookID int64, qty int) error {
	_, err := t.tx.ExecContext(ctx, `
		UPDATE books SET stock_quantity = stock_quantity + ?, updated_at = NOW(6)
		WHERE id = ?`, qty, bookID)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	return nil
}

func (t *mysqlTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (user_id, total_amount, status, shipping_address, shipping_city,
			shipping_state, shipping_zip_code, shipping_country, notification_sent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		order.UserID, order.TotalAmount, string(order.Status),
		order.Shipping.Address, order.Shipping.City, order.Shipping.State,
		order.Shipping.ZipCode, order.Shipping.Country,
		order.NotificationSent, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	order.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("order id: %w", err)
	}

	for i := range order.Lines {
		l := &order.Lines[i]
		l.OrderID = order.ID
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, book_id, title, author, isbn, quantity, unit_price)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			l.OrderID, l.BookID, l.Title, l.Author, l.ISBN, l.Quantity, l.UnitPrice,
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func (t *mysqlTx) ClearCart(ctx context.Context, userID string) error {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (t *mysqlTx) LockOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}

	lines, err := queryOrderLines(ctx, t.tx, []int64{id})
	if err != nil {
		return nil, err
	}
	o.Lines = lines[id]
	return &o, nil
}

func (t *mysqlTx) SetOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = NOW(6) WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}
	return nil
}
