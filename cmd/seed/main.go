package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx"

	"github.com/rl1809/bookstore/internal/adapter/search"
	"github.com/rl1809/bookstore/internal/adapter/storage"
	"github.com/rl1809/bookstore/internal/config"
	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/core/service"
	"github.com/rl1809/bookstore/internal/logger"
	"github.com/rl1809/bookstore/internal/port"
)

// Expected sheet columns, in order, after a header row.
var sheetColumns = []string{"ISBN", "Title", "Author", "Description", "Price", "Stock", "Featured"}

var sampleBooks = []domain.Book{
	{ISBN: "9780141439518", Title: "Pride and Prejudice", Author: "Jane Austen", Price: decimal.RequireFromString("9.99"), StockQuantity: 40, Featured: true,
		Description: "Elizabeth Bennet navigates manners, marriage and misjudgement in Regency England."},
	{ISBN: "9780141439587", Title: "Emma", Author: "Jane Austen", Price: decimal.RequireFromString("8.99"), StockQuantity: 25,
		Description: "A well-meaning matchmaker learns that she understands her neighbours less than she thinks."},
	{ISBN: "9780141439600", Title: "A Tale of Two Cities", Author: "Charles Dickens", Price: decimal.RequireFromString("10.50"), StockQuantity: 30, Featured: true,
		Description: "London and Paris on the eve of revolution, and a sacrifice that redeems a wasted life."},
	{ISBN: "9780141439563", Title: "Great Expectations", Author: "Charles Dickens", Price: decimal.RequireFromString("11.25"), StockQuantity: 18,
		Description: "Pip, an orphan raised by his sister, is lifted into fortune by an unknown benefactor."},
	{ISBN: "9780141441146", Title: "Jane Eyre", Author: "Charlotte Bronte", Price: decimal.RequireFromString("9.50"), StockQuantity: 22, Featured: true,
		Description: "A governess with an unbending conscience falls for the master of Thornfield Hall."},
	{ISBN: "9780141439846", Title: "Dracula", Author: "Bram Stoker", Price: decimal.RequireFromString("7.99"), StockQuantity: 35,
		Description: "Letters and diaries trace a count's journey from Transylvania to Whitby."},
	{ISBN: "9780141439471", Title: "Frankenstein", Author: "Mary Shelley", Price: decimal.RequireFromString("7.50"), StockQuantity: 0,
		Description: "A young scientist creates life and abandons it, with consequences for them both."},
}

func main() {
	driver := flag.String("driver", config.DriverMySQL, "storage driver: mysql or postgres")
	dsn := flag.String("db", "", "database connection string")
	migrate := flag.String("m", "", "migrations root, empty to skip")
	file := flag.String("file", "", "xlsx catalog to import, empty for the built-in sample")
	elastic := flag.String("elastic", "", "elasticsearch URL to index into")
	flag.Parse()

	log := logger.Get()
	ctx := context.Background()

	books := sampleBooks
	if *file != "" {
		var err error
		if books, err = readSheet(*file); err != nil {
			log.Fatal().Err(err).Str("file", *file).Msg("read catalog failed")
		}
	}

	if *migrate != "" {
		if err := storage.Migrations(*driver, *dsn, *migrate); err != nil {
			log.Fatal().Err(err).Msg("migrations failed")
		}
	}

	store, err := openStore(ctx, *driver, *dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open store failed")
	}
	defer store.Close()

	var index port.BookIndex
	if *elastic != "" {
		client, err := search.NewClient(*elastic)
		if err != nil {
			log.Fatal().Err(err).Msg("elasticsearch client failed")
		}
		es := search.NewElasticAdapter(client, search.DefaultIndex)
		if err := es.EnsureIndex(ctx); err != nil {
			log.Fatal().Err(err).Msg("create index failed")
		}
		index = es
	}

	catalog := service.NewCatalogService(store, nil, index, nil, nil)
	saved := 0
	for _, b := range books {
		if _, err := catalog.SaveBook(ctx, b); err != nil {
			log.Error().Err(err).Str("isbn", b.ISBN).Msg("save book failed")
			continue
		}
		saved++
	}
	log.Info().Int("saved", saved).Int("total", len(books)).Msg("catalog seeded")
}

func readSheet(path string) ([]domain.Book, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, err
	}
	if len(f.Sheets) == 0 {
		return nil, fmt.Errorf("%s has no sheets", path)
	}
	return parseSheet(f.Sheets[0])
}

// parseSheet reads one book per row, skipping the header and blank rows.
func parseSheet(sheet *xlsx.Sheet) ([]domain.Book, error) {
	var books []domain.Book
	for i, row := range sheet.Rows {
		if i == 0 || row == nil {
			continue
		}
		cell := func(j int) string {
			if j < len(row.Cells) {
				return strings.TrimSpace(row.Cells[j].String())
			}
			return ""
		}
		if cell(0) == "" {
			continue
		}

		price, err := decimal.NewFromString(cell(4))
		if err != nil {
			return nil, fmt.Errorf("row %d: price %q: %w", i+1, cell(4), err)
		}
		stock, err := strconv.Atoi(cell(5))
		if err != nil {
			return nil, fmt.Errorf("row %d: stock %q: %w", i+1, cell(5), err)
		}

		books = append(books, domain.Book{
			ISBN:          cell(0),
			Title:         cell(1),
			Author:        cell(2),
			Description:   cell(3),
			Price:         price,
			StockQuantity: stock,
			Featured:      isTruthy(cell(6)),
		})
	}
	return books, nil
}

func isTruthy(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "y", "x":
		return true
	}
	return false
}

func openStore(ctx context.Context, driver, dsn string) (port.Store, error) {
	switch driver {
	case config.DriverMySQL:
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			return nil, err
		}
		return storage.NewMySQLAdapter(db), nil
	case config.DriverPostgres:
		return storage.NewPostgresAdapter(ctx, dsn)
	}
	return nil, fmt.Errorf("seeding needs a database driver, got %q", driver)
}
