package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/port"
)

// NUMERIC columns travel as text so decimal never goes through float64.
const pgBookColumns = `id, isbn, title, author, description, price::text, stock_quantity,
	is_featured, ebook_key, cover_key, created_at, updated_at`

const pgOrderColumns = `id, user_id, total_amount::text, status, shipping_address, shipping_city,
	shipping_state, shipping_zip_code, shipping_country, notification_sent, created_at, updated_at`

func scanPgBook(row pgx.Row) (domain.Book, error) {
	var b domain.Book
	var price string
	err := row.Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &b.Description, &price,
		&b.StockQuantity, &b.Featured, &b.EbookKey, &b.CoverKey, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return b, err
	}
	b.Price, err = decimal.NewFromString(price)
	return b, err
}

func scanPgProfile(row pgx.Row) (domain.Profile, error) {
	var p domain.Profile
	err := row.Scan(&p.UserID, &p.FirstName, &p.LastName, &p.Email, &p.PhoneNumber, &p.DateOfBirth,
		&p.DefaultShipping.Address, &p.DefaultShipping.City, &p.DefaultShipping.State,
		&p.DefaultShipping.ZipCode, &p.DefaultShipping.Country, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanPgOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var total, status string
	err := row.Scan(&o.ID, &o.UserID, &total, &status,
		&o.Shipping.Address, &o.Shipping.City, &o.Shipping.State, &o.Shipping.ZipCode, &o.Shipping.Country,
		&o.NotificationSent, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return o, err
	}
	o.Status = domain.OrderStatus(status)
	o.TotalAmount, err = decimal.NewFromString(total)
	return o, err
}

type pgQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryPgBooks(ctx context.Context, q pgQuerier, query string, args ...any) ([]domain.Book, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []domain.Book
	for rows.Next() {
		b, err := scanPgBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

type PostgresAdapter struct {
	pool *pgxpool.Pool
}

func NewPostgresAdapter(ctx context.Context, dsn string) (*PostgresAdapter, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	config.MaxConns = 20
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresAdapter{pool: pool}, nil
}

func (p *PostgresAdapter) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &postgresTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) GetBook(ctx context.Context, id int64) (*domain.Book, error) {
	b, err := scanPgBook(p.pool.QueryRow(ctx, `SELECT `+pgBookColumns+` FROM books WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrBookNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query book: %w", err)
	}
	return &b, nil
}

func (p *PostgresAdapter) GetBooks(ctx context.Context, ids []int64) (map[int64]domain.Book, error) {
	out := make(map[int64]domain.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	books, err := queryPgBooks(ctx, p.pool, `SELECT `+pgBookColumns+` FROM books WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query books: %w", err)
	}
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}

func (p *PostgresAdapter) SearchBooks(ctx context.Context, q domain.BookQuery) (domain.BookPage, error) {
	q = q.Normalize()
	where := `stock_quantity > 0 AND ($1 = '' OR title ILIKE $2 OR author ILIKE $2 OR description ILIKE $2)`
	like := "%" + q.Query + "%"

	page := domain.BookPage{Page: q.Page, PageSize: q.PageSize}
	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM books WHERE `+where, q.Query, like).Scan(&page.Total)
	if err != nil {
		return page, fmt.Errorf("count books: %w", err)
	}

	page.Books, err = queryPgBooks(ctx, p.pool,
		`SELECT `+pgBookColumns+` FROM books WHERE `+where+
			` ORDER BY `+sortClauses[q.SortBy]+` LIMIT $3 OFFSET $4`,
		q.Query, like, q.PageSize, q.Offset())
	if err != nil {
		return page, fmt.Errorf("search books: %w", err)
	}
	return page, nil
}

func (p *PostgresAdapter) FeaturedBooks(ctx context.Context, limit int) ([]domain.Book, error) {
	books, err := queryPgBooks(ctx, p.pool, `
		SELECT `+pgBookColumns+` FROM books
		WHERE is_featured AND stock_quantity > 0
		ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query featured books: %w", err)
	}
	return books, nil
}

func (p *PostgresAdapter) BooksByAuthor(ctx context.Context, author string, excludeID int64, limit int) ([]domain.Book, error) {
	books, err := queryPgBooks(ctx, p.pool, `
		SELECT `+pgBookColumns+` FROM books
		WHERE author = $1 AND id <> $2 AND stock_quantity > 0
		ORDER BY title ASC, id ASC LIMIT $3`, author, excludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("query books by author: %w", err)
	}
	return books, nil
}

func (p *PostgresAdapter) SaveBook(ctx context.Context, book domain.Book) (*domain.Book, error) {
	saved, err := scanPgBook(p.pool.QueryRow(ctx, `
		INSERT INTO books (isbn, title, author, description, price, stock_quantity, is_featured, ebook_key, cover_key)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)
		ON CONFLICT (isbn) DO UPDATE SET
			title = EXCLUDED.title, author = EXCLUDED.author, description = EXCLUDED.description,
			price = EXCLUDED.price,
			is_featured = EXCLUDED.is_featured, ebook_key = EXCLUDED.ebook_key, cover_key = EXCLUDED.cover_key,
			updated_at = NOW()
		RETURNING `+pgBookColumns,
		book.ISBN, book.Title, book.Author, book.Description, book.Price.StringFixed(2),
		book.StockQuantity, book.Featured, book.EbookKey, book.CoverKey,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert book: %w", err)
	}
	return &saved, nil
}

func (p *PostgresAdapter) AdjustStock(ctx context.Context, id int64, delta int) (int, error) {
	var stock int
	err := p.pool.QueryRow(ctx, `
		UPDATE books
		SET stock_quantity = stock_quantity + $1, updated_at = NOW()
		WHERE id = $2 AND stock_quantity + $1 >= 0
		RETURNING stock_quantity`, delta, id,
	).Scan(&stock)
	if err == nil {
		return stock, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("adjust stock: %w", err)
	}

	book, err := p.GetBook(ctx, id)
	if err != nil {
		return 0, err
	}
	return book.StockQuantity, &domain.InsufficientStockError{
		BookID: id, Title: book.Title, Requested: -delta, Available: book.StockQuantity,
	}
}

func queryPgCartEntries(ctx context.Context, q pgQuerier, query string, args ...any) ([]domain.CartEntry, error) {
	rows, err := q.Query(ctx, query, args...)
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

func (p *PostgresAdapter) CartEntries(ctx context.Context, userID string) ([]domain.CartEntry, error) {
	return queryPgCartEntries(ctx, p.pool, `
		SELECT user_id, book_id, quantity, created_at FROM cart_items
		WHERE user_id = $1 ORDER BY created_at, book_id`, userID)
}

func (p *PostgresAdapter) GetCartEntry(ctx context.Context, userID string, bookID int64) (*domain.CartEntry, error) {
	var e domain.CartEntry
	err := p.pool.QueryRow(ctx, `
		SELECT user_id, book_id, quantity, created_at FROM cart_items
		WHERE user_id = $1 AND book_id = $2`, userID, bookID,
	).Scan(&e.UserID, &e.BookID, &e.Quantity, &e.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrCartEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cart entry: %w", err)
	}
	return &e, nil
}

func (p *PostgresAdapter) PutCartEntry(ctx context.Context, entry domain.CartEntry) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO cart_items (user_id, book_id, quantity) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, book_id) DO UPDATE SET quantity = EXCLUDED.quantity`,
		entry.UserID, entry.BookID, entry.Quantity,
	)
	if err != nil {
		return fmt.Errorf("put cart entry: %w", err)
	}
	return nil
}

func (p *PostgresAdapter) DeleteCartEntry(ctx context.Context, userID string, bookID int64) error {
	tag, err := p.pool.Exec(ctx,
		`DELETE FROM cart_items WHERE user_id = $1 AND book_id = $2`, userID, bookID)
	if err != nil {
		return fmt.Errorf("delete cart entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCartEntryNotFound
	}
	return nil
}

func queryPgOrderLines(ctx context.Context, q pgQuerier, orderIDs []int64) (map[int64][]domain.OrderLine, error) {
	out := make(map[int64][]domain.OrderLine, len(orderIDs))
	if len(orderIDs) == 0 {
		return out, nil
	}

	rows, err := q.Query(ctx, `
		SELECT order_id, book_id, title, author, isbn, quantity, unit_price::text
		FROM order_items WHERE order_id = ANY($1)
		ORDER BY order_id, book_id`, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.OrderLine
		var price string
		if err := rows.Scan(&l.OrderID, &l.BookID, &l.Title, &l.Author, &l.ISBN, &l.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		if l.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse unit price: %w", err)
		}
		out[l.OrderID] = append(out[l.OrderID], l)
	}
	return out, rows.Err()
}

func (p *PostgresAdapter) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanPgOrder(p.pool.QueryRow(ctx, `SELECT `+pgOrderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	lines, err := queryPgOrderLines(ctx, p.pool, []int64{id})
	if err != nil {
		return nil, err
	}
	o.Lines = lines[id]
	return &o, nil
}

func (p *PostgresAdapter) ListOrders(ctx context.Context, userID string, page, pageSize int) (domain.OrderPage, error) {
	page, pageSize = max(page, 1), max(pageSize, 1)
	result := domain.OrderPage{Page: page, PageSize: pageSize}

	err := p.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&result.Total)
	if err != nil {
		return result, fmt.Errorf("count orders: %w", err)
	}

	rows, err := p.pool.Query(ctx, `
		SELECT `+pgOrderColumns+` FROM orders WHERE user_id = $1
		ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`,
		userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return result, fmt.Errorf("query orders: %w", err)
	}

	var ids []int64
	for rows.Next() {
		o, err := scanPgOrder(rows)
		if err != nil {
			rows.Close()
			return result, fmt.Errorf("scan order: %w", err)
		}
		result.Orders = append(result.Orders, o)
		ids = append(ids, o.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return result, err
	}

	lines, err := queryPgOrderLines(ctx, p.pool, ids)
	if err != nil {
		return result, err
	}
	for i := range result.Orders {
		result.Orders[i].Lines = lines[result.Orders[i].ID]
	}
	return result, nil
}

func (p *PostgresAdapter) MarkNotificationSent(ctx context.Context, id int64) error {
	tag, err := p.pool.Exec(ctx,
		`UPDATE orders SET notification_sent = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark notification sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotFound
	}
	return nil
}

func (p *PostgresAdapter) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	profile, err := scanPgProfile(p.pool.QueryRow(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE user_id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query profile: %w", err)
	}
	return &profile, nil
}

func (p *PostgresAdapter) SaveProfile(ctx context.Context, profile domain.Profile) (*domain.Profile, error) {
	ship := profile.DefaultShipping
	saved, err := scanPgProfile(p.pool.QueryRow(ctx, `
		INSERT INTO user_profiles (user_id, first_name, last_name, email, phone_number, date_of_birth,
			default_shipping_address, default_shipping_city, default_shipping_state,
			default_shipping_zip_code, default_shipping_country)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			first_name = EXCLUDED.first_name, last_name = EXCLUDED.last_name, email = EXCLUDED.email,
			phone_number = EXCLUDED.phone_number, date_of_birth = EXCLUDED.date_of_birth,
			default_shipping_address = EXCLUDED.default_shipping_address,
			default_shipping_city = EXCLUDED.default_shipping_city,
			default_shipping_state = EXCLUDED.default_shipping_state,
			default_shipping_zip_code = EXCLUDED.default_shipping_zip_code,
			default_shipping_country = EXCLUDED.default_shipping_country,
			updated_at = NOW()
		RETURNING `+profileColumns,
		profile.UserID, profile.FirstName, profile.LastName, profile.Email, profile.PhoneNumber, profile.DateOfBirth,
		ship.Address, ship.City, ship.State, ship.ZipCode, ship.Country,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert profile: %w", err)
	}
	return &saved, nil
}

type postgresTx struct {
	tx pgx.Tx
}

func (t *postgresTx) CartEntries(ctx context.Context, userID string) ([]domain.CartEntry, error) {
	return queryPgCartEntries(ctx, t.tx, `
		SELECT user_id, book_id, quantity, created_at FROM cart_items
		WHERE user_id = $1 ORDER BY created_at, book_id FOR UPDATE`, userID)
}

func (t *postgresTx) LockBooks(ctx context.Context, ids []int64) (map[int64]domain.Book, error) {
	out := make(map[int64]domain.Book, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	books, err := queryPgBooks(ctx, t.tx,
		`SELECT `+pgBookColumns+` FROM books WHERE id = ANY($1) ORDER BY id FOR UPDATE`, sorted)
	if err != nil {
		return nil, fmt.Errorf("lock books: %w", err)
	}
	for _, b := range books {
		out[b.ID] = b
	}
	return out, nil
}

func (t *postgresTx) DecrementStock(ctx context.Context, bookID int64, qty int) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE books
		SET stock_quantity = stock_quantity - $1, updated_at = NOW()
		WHERE id = $2 AND stock_quantity >= $1`,
		qty, bookID,
	)
	if err != nil {
		return false, fmt.Errorf("decrement stock: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (t *postgresTx) IncrementStock(ctx context.Context, bookID int64, qty int) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE books SET stock_quantity = stock_quantity + $1, updated_at = NOW()
		WHERE id = $2`, qty, bookID)
	if err != nil {
		return fmt.Errorf("increment stock: %w", err)
	}
	return nil
}

func (t *postgresTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, total_amount, status, shipping_address, shipping_city,
			shipping_state, shipping_zip_code, shipping_country, notification_sent, created_at, updated_at)
		VALUES ($1, $2::numeric, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		order.UserID, order.TotalAmount.StringFixed(2), string(order.Status),
		order.Shipping.Address, order.Shipping.City, order.Shipping.State,
		order.Shipping.ZipCode, order.Shipping.Country,
		order.NotificationSent, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range order.Lines {
		l := &order.Lines[i]
		l.OrderID = order.ID
		batch.Queue(`
			INSERT INTO order_items (order_id, book_id, title, author, isbn, quantity, unit_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7::numeric)`,
			l.OrderID, l.BookID, l.Title, l.Author, l.ISBN, l.Quantity, l.UnitPrice.StringFixed(2))
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order lines: %w", err)
	}
	return nil
}

func (t *postgresTx) ClearCart(ctx context.Context, userID string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (t *postgresTx) LockOrder(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanPgOrder(t.tx.QueryRow(ctx,
		`SELECT `+pgOrderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock order: %w", err)
	}

	lines, err := queryPgOrderLines(ctx, t.tx, []int64{id})
	if err != nil {
		return nil, err
	}
	o.Lines = lines[id]
	return &o, nil
}

func (t *postgresTx) SetOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("set order status: %w", err)
	}
	return nil
}
