package store

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	config "example.com/socialwall/internal/init"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// Migrate applies the pending migrations of the configured store driver.
func Migrate(cfg *config.Config) error {
	sourceURL, dbURL, err := migrationURLs(cfg)
	if err != nil {
		return err
	}

	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer m.Close()

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logg.Info("store", "No new migrations to apply")
	} else {
		logg.Info("store", "Migrations applied successfully")
	}
	return nil
}

// migrationURLs returns the golang-migrate source and database URLs for cfg.
func migrationURLs(cfg *config.Config) (string, string, error) {
	dir := cfg.MigrationsDir
	if dir == "" {
		dir = "./migrations"
	}

	switch cfg.StoreDriver {
	case "cassandra":
		sourceURL := "file://" + filepath.ToSlash(filepath.Join(dir, "cassandra"))
		dbURL := fmt.Sprintf(
			"cassandra://%s/%s?x-migrations-table=schema_migrations&x-multi-statement=true",
			cfg.CassandraHost, cfg.CassandraKeyspace,
		)
		return sourceURL, dbURL, nil
	case "postgres":
		sourceURL := "file://" + filepath.ToSlash(filepath.Join(dir, "postgres"))
		u, err := url.Parse(cfg.PostgresDSN)
		if err != nil {
			return "", "", fmt.Errorf("parse postgres dsn: %w", err)
		}
		if !strings.HasPrefix(u.Scheme, "postgres") {
			return "", "", fmt.Errorf("postgres dsn must be a URL, got scheme %q", u.Scheme)
		}
		u.Scheme = "pgx5"
		return sourceURL, u.String(), nil
	default:
		return "", "", fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// Setup prepares the configured driver's database and applies migrations.
// Cassandra needs its keyspace before golang-migrate can connect.
func Setup(cfg *config.Config) error {
	if cfg.StoreDriver == "cassandra" {
		if err := ensureKeyspace(cfg); err != nil {
			return fmt.Errorf("failed to ensure keyspace: %w", err)
		}
	}
	return Migrate(cfg)
}
