package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/rl1809/bookstore/internal/logger"
)

// Migrations applies <root>/<driver> to the database behind dsn.
func Migrations(driver, dsn, root string) error {
	log := logger.Get()

	m, err := migrate.New(
		fmt.Sprintf("file://%s", filepath.Join(root, driver)),
		migrateURL(driver, dsn),
	)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Str("driver", driver).Msg("no migrations to apply")
			return nil
		}
		return fmt.Errorf("apply migrations: %w", err)
	}
	log.Info().Str("driver", driver).Msg("all migrations applied")
	return nil
}

// migrateURL turns a go-sql-driver DSN into the URL form migrate expects.
func migrateURL(driver, dsn string) string {
	if driver == "mysql" && !strings.HasPrefix(dsn, "mysql://") {
		return "mysql://" + dsn
	}
	return dsn
}
