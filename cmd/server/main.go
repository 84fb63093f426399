package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	stdlog "log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/bookstore/internal/adapter/handler"
	"github.com/rl1809/bookstore/internal/adapter/notification"
	"github.com/rl1809/bookstore/internal/adapter/search"
	"github.com/rl1809/bookstore/internal/adapter/storage"
	"github.com/rl1809/bookstore/internal/config"
	"github.com/rl1809/bookstore/internal/core/service"
	"github.com/rl1809/bookstore/internal/logger"
	"github.com/rl1809/bookstore/internal/port"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg, err := config.ReadConfig(os.Args[1:])
	if err != nil {
		stdlog.Fatal(err)
	}
	log := logger.Get(cfg.Debug)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Get()

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var cache port.CacheRepository
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			PoolSize: 100,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unavailable, running without cache and idempotency keys")
		} else {
			cache = storage.NewRedisAdapter(rdb)
			log.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")
		}
	}

	var index port.BookIndex
	if cfg.ElasticURL != "" {
		if es, err := openIndex(ctx, cfg.ElasticURL); err != nil {
			log.Warn().Err(err).Msg("elasticsearch unavailable, searching the database")
		} else {
			index = es
		}
	}

	var (
		ebooks port.EbookStore
		covers port.CoverStore
	)
	if cfg.MinIOEndpoint != "" {
		m, err := storage.NewMinIOAdapter(ctx, cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOBucket, cfg.MinIOUseSSL)
		if err != nil {
			log.Warn().Err(err).Msg("minio unavailable, ebooks will be placeholders and covers disabled")
		} else {
			ebooks, covers = m, m
		}
	}

	var sender notification.Sender = notification.LogSender{}
	if cfg.SMTPHost != "" {
		s, err := notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
		if err != nil {
			return err
		}
		sender = s
	}
	notifier := notification.NewDispatcher(sender, store, ebooks)

	catalogService := service.NewCatalogService(store, cache, index, ebooks, covers)
	cartService := service.NewCartService(store, store)
	checkoutService := service.NewCheckoutService(store, store, store, cache, catalogService, notifier)
	orderService := service.NewOrderService(store, store, catalogService, notifier)
	profileService := service.NewProfileService(store)
	auth := handler.NewAuth(cfg.JWTSecret)

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	httpHandler := handler.NewHTTPHandler(catalogService, cartService, checkoutService, orderService, profileService, auth)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpHandler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryServerInterceptor))
	handler.RegisterCheckoutServer(grpcServer, handler.NewGRPCHandler(checkoutService, orderService))

	group, gCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		log.Info().Str("addr", cfg.GRPCAddr).Msg("grpc server listening")
		return grpcServer.Serve(lis)
	})
	group.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		grpcServer.GracefulStop()
		return err
	})

	return group.Wait()
}

// openStore connects the configured database and applies migrations. Only
// the memory driver runs without a database.
func openStore(ctx context.Context, cfg *config.Config) (port.Store, error) {
	log := logger.Get()

	var (
		store port.Store
		err   error
	)
	switch cfg.DBDriver {
	case config.DriverMemory:
		log.Info().Msg("using in-memory store")
		return storage.NewMemoryAdapter(), nil
	case config.DriverMySQL:
		store, err = openMySQL(ctx, cfg.DBDsn)
	case config.DriverPostgres:
		store, err = storage.NewPostgresAdapter(ctx, cfg.DBDsn)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", cfg.DBDriver, err)
	}

	if err := storage.Migrations(cfg.DBDriver, cfg.DBDsn, cfg.MigratePath); err != nil {
		store.Close()
		return nil, err
	}
	log.Info().Str("driver", cfg.DBDriver).Msg("connected to database")
	return store, nil
}

func openMySQL(ctx context.Context, dsn string) (*storage.MySQLAdapter, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return storage.NewMySQLAdapter(db), nil
}

func openIndex(ctx context.Context, url string) (*search.ElasticAdapter, error) {
	client, err := search.NewClient(url)
	if err != nil {
		return nil, err
	}
	es := search.NewElasticAdapter(client, search.DefaultIndex)
	if err := es.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	return es, nil
}
