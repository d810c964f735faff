package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"github.com/jinzhu/gorm"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"taboon/internal/models"
)

// OrderSequence names the sequence row that hands out order ids
const OrderSequence = "orders"

// SequenceSeed is the counter value before the first order, so the
// first chat-visible id is 1001.
const SequenceSeed int64 = 1000

// Config selects the database driver and connection string
type Config struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	LogQueries   bool   `yaml:"log_queries"`
}

// Open connects to the configured database. Postgres connections go
// through pgx and are handed to gorm as an existing *sql.DB.
func Open(ctx context.Context, cfg Config) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)

	switch cfg.Driver {
	case "sqlite3", "sqlite", "":
		db, err = gorm.Open("sqlite3", cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite database: %w", err)
		}
		// sqlite serializes writers; one connection avoids "database is locked"
		db.DB().SetMaxOpenConns(1)
	case "postgres", "pgx":
		sqlDB, err := connectPostgres(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		db, err = gorm.Open("postgres", sqlDB)
		if err != nil {
			_ = sqlDB.Close()
			return nil, fmt.Errorf("failed to open postgres database: %w", err)
		}
		if cfg.MaxOpenConns > 0 {
			db.DB().SetMaxOpenConns(cfg.MaxOpenConns)
		}
		db.DB().SetMaxIdleConns(10)
		db.DB().SetConnMaxLifetime(time.Hour)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	db.LogMode(cfg.LogQueries)
	return db, nil
}

func connectPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	const (
		maxRetries = 5
		retryDelay = 2 * time.Second
		pingTTL    = 5 * time.Second
	)

	var lastErr error
	for i := 1; i <= maxRetries; i++ {
		sqlDB, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres connection: %w", err)
		}

		pctx, cancel := context.WithTimeout(ctx, pingTTL)
		lastErr = sqlDB.PingContext(pctx)
		cancel()
		if lastErr == nil {
			return sqlDB, nil
		}
		_ = sqlDB.Close()

		select {
		case <-time.After(retryDelay):
		case <-ctx.Done():
			return nil, fmt.Errorf("postgres ping canceled: %w", ctx.Err())
		}
	}
	return nil, fmt.Errorf("postgres unreachable after %d attempts: %w", maxRetries, lastErr)
}

// Migrate creates the schema and makes sure the order sequence exists
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Order{},
		&models.CustomerProfile{},
		&models.Sequence{},
	).Error; err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	seq := models.Sequence{Name: OrderSequence, Value: SequenceSeed}
	if err := db.Where(models.Sequence{Name: OrderSequence}).FirstOrCreate(&seq).Error; err != nil {
		return fmt.Errorf("failed to seed order sequence: %w", err)
	}
	return nil
}
