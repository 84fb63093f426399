package config

import (
	"cmp"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	defaultHTTPAddr    = ":8080"
	defaultGRPCAddr    = ":50051"
	defaultDBDriver    = "mysql"
	defaultDBDsn       = "root:root@tcp(localhost:3306)/bookstore?parseTime=true&multiStatements=true"
	defaultMigratePath = "migrations"
	defaultRedisAddr   = "localhost:6379"
	defaultSMTPPort    = 587
	defaultMailFrom    = "orders@bookstore.local"
	defaultMinIOBucket = "ebooks"
)

const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	Debug       bool
	DBDriver    string
	DBDsn       string
	MigratePath string

	RedisAddr     string
	RedisPassword string

	ElasticURL string

	MinIOEndpoint  string
	MinIOAccessKey string
	MinIOSecretKey string
	MinIOBucket    string
	MinIOUseSSL    bool

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	MailFrom     string

	JWTSecret string
}

// ReadConfig loads .env if present, then flags, then environment overrides.
func ReadConfig(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	fs := flag.NewFlagSet("bookstore", flag.ContinueOnError)
	fs.StringVar(&cfg.HTTPAddr, "http", defaultHTTPAddr, "HTTP listen address")
	fs.StringVar(&cfg.GRPCAddr, "grpc", defaultGRPCAddr, "gRPC listen address")
	fs.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	fs.StringVar(&cfg.DBDriver, "driver", defaultDBDriver, "storage driver: mysql, postgres or memory")
	fs.StringVar(&cfg.DBDsn, "db", defaultDBDsn, "database connection string")
	fs.StringVar(&cfg.MigratePath, "m", defaultMigratePath, "path to migrations root")
	fs.StringVar(&cfg.RedisAddr, "redis", defaultRedisAddr, "redis address, empty to disable")
	fs.StringVar(&cfg.ElasticURL, "elastic", "", "elasticsearch URL, empty to disable")
	fs.StringVar(&cfg.MinIOEndpoint, "minio", "", "minio endpoint, empty to disable")
	fs.StringVar(&cfg.SMTPHost, "smtp", "", "smtp host, empty to log mail instead")
	fs.IntVar(&cfg.SMTPPort, "smtp-port", defaultSMTPPort, "smtp port")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.HTTPAddr = cmp.Or(os.Getenv("HTTP_ADDR"), cfg.HTTPAddr)
	cfg.GRPCAddr = cmp.Or(os.Getenv("GRPC_ADDR"), cfg.GRPCAddr)
	cfg.DBDriver = cmp.Or(os.Getenv("DB_DRIVER"), cfg.DBDriver)
	cfg.DBDsn = cmp.Or(os.Getenv("DB_DSN"), cfg.DBDsn)
	cfg.MigratePath = cmp.Or(os.Getenv("MIGRATE_PATH"), cfg.MigratePath)
	cfg.RedisAddr = cmp.Or(os.Getenv("REDIS_ADDR"), cfg.RedisAddr)
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.ElasticURL = cmp.Or(os.Getenv("ELASTIC_URL"), cfg.ElasticURL)
	cfg.MinIOEndpoint = cmp.Or(os.Getenv("MINIO_ENDPOINT"), cfg.MinIOEndpoint)
	cfg.MinIOAccessKey = os.Getenv("MINIO_ACCESS_KEY")
	cfg.MinIOSecretKey = os.Getenv("MINIO_SECRET_KEY")
	cfg.MinIOBucket = cmp.Or(os.Getenv("MINIO_BUCKET"), defaultMinIOBucket)
	cfg.MinIOUseSSL = os.Getenv("MINIO_USE_SSL") == "true"
	cfg.SMTPHost = cmp.Or(os.Getenv("SMTP_HOST"), cfg.SMTPHost)
	cfg.SMTPUser = os.Getenv("SMTP_USER")
	cfg.SMTPPassword = os.Getenv("SMTP_PASSWORD")
	cfg.MailFrom = cmp.Or(os.Getenv("MAIL_FROM"), defaultMailFrom)
	cfg.JWTSecret = os.Getenv("JWT_SECRET")

	if v := os.Getenv("SMTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("SMTP_PORT: %w", err)
		}
		cfg.SMTPPort = port
	}
	if os.Getenv("DEBUG") == "true" {
		cfg.Debug = true
	}

	switch cfg.DBDriver {
	case DriverMySQL, DriverPostgres, DriverMemory:
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.DBDriver)
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	return &cfg, nil
}
