package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"github.com/rl1809/bookstore/internal/adapter/storage"
	"github.com/rl1809/bookstore/internal/config"
	"github.com/rl1809/bookstore/internal/core/domain"
	"github.com/rl1809/bookstore/internal/core/service"
	"github.com/rl1809/bookstore/internal/logger"
	"github.com/rl1809/bookstore/internal/port"
)

type countingNotifier struct {
	sent atomic.Int32
}

func (n *countingNotifier) SendConfirmation(ctx context.Context, order domain.Order, customer domain.Customer) error {
	n.sent.Add(1)
	return nil
}

func main() {
	driver := flag.String("driver", config.DriverMemory, "storage driver: memory, mysql or postgres")
	dsn := flag.String("db", "", "database connection string")
	stock := flag.Int("stock", 20, "initial stock of the contested book")
	users := flag.Int("users", 50, "concurrent buyers")
	qty := flag.Int("qty", 1, "copies each buyer wants")
	flag.Parse()

	log := logger.Get()
	ctx := context.Background()

	store, err := openStore(ctx, *driver, *dsn)
	if err != nil {
		log.Fatal().Err(err).Msg("open store failed")
	}
	defer store.Close()

	book, err := store.SaveBook(ctx, domain.Book{
		ISBN:          fmt.Sprintf("%013d", time.Now().UnixNano()%1e13),
		Title:         "Contested Book",
		Author:        "Stress Test",
		Price:         decimal.RequireFromString("9.99"),
		StockQuantity: *stock,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("seed book failed")
	}

	runID := time.Now().UnixNano()
	userID := func(i int) string { return fmt.Sprintf("stress-%d-%d", runID, i) }
	for i := 0; i < *users; i++ {
		if err := store.PutCartEntry(ctx, domain.CartEntry{UserID: userID(i), BookID: book.ID, Quantity: *qty}); err != nil {
			log.Fatal().Err(err).Msg("fill cart failed")
		}
	}

	notifier := &countingNotifier{}
	checkout := service.NewCheckoutService(store, store, nil, nil, nil, notifier)

	var successCount, soldOutCount, errorCount atomic.Int32
	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < *users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			_, err := checkout.Checkout(ctx, service.CheckoutRequest{
				Customer: domain.Customer{ID: userID(i), Email: userID(i) + "@example.com"},
				Shipping: domain.ShippingAddress{Address: "1 Main St", City: "Springfield", State: "OR", ZipCode: "97403"},
			})
			switch {
			case err == nil:
				successCount.Add(1)
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				errorCount.Add(1)
				log.Error().Err(err).Int("buyer", i).Msg("checkout failed")
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	final, err := store.GetBook(ctx, book.ID)
	if err != nil {
		log.Fatal().Err(err).Msg("reload book failed")
	}

	expected := int32(min(*users, *stock/(*qty)))
	success := successCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Driver:           %s\n", *driver)
	fmt.Printf("Initial Stock:    %d\n", *stock)
	fmt.Printf("Buyers x Qty:     %d x %d\n", *users, *qty)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOutCount.Load())
	fmt.Printf("Errors:           %d\n", errorCount.Load())
	fmt.Printf("Notifications:    %d\n", notifier.sent.Load())
	fmt.Printf("Final Stock:      %d\n", final.StockQuantity)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	failed := false
	if success != expected {
		fmt.Printf("FAIL: expected %d successful checkouts, got %d\n", expected, success)
		failed = true
	}
	if want := *stock - int(success)*(*qty); final.StockQuantity != want {
		fmt.Printf("FAIL: expected final stock %d, got %d\n", want, final.StockQuantity)
		failed = true
	}
	if notifier.sent.Load() != success {
		fmt.Printf("FAIL: expected %d notifications, got %d\n", success, notifier.sent.Load())
		failed = true
	}
	if failed {
		os.Exit(1)
	}
	fmt.Println("PASS: no overselling, every order notified once")
}

func openStore(ctx context.Context, driver, dsn string) (port.Store, error) {
	switch driver {
	case config.DriverMemory:
		return storage.NewMemoryAdapter(), nil
	case config.DriverMySQL:
		db, err := sql.Open("mysql", dsn)
		if err != nil {
			return nil, err
		}
		db.SetMaxOpenConns(50)
		if err := db.PingContext(ctx); err != nil {
			return nil, err
		}
		return storage.NewMySQLAdapter(db), nil
	case config.DriverPostgres:
		return storage.NewPostgresAdapter(ctx, dsn)
	}
	return nil, fmt.Errorf("unknown driver %q", driver)
}
