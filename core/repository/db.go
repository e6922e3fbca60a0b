package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

// DB wraps the Postgres connection pool
type DB struct {
	*sql.DB
}

// NewDB opens and pings a Postgres database
func NewDB(databaseURL string) (*DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{DB: db}, nil
}

// Migrate applies the embedded schema migrations
func (db *DB) Migrate(ctx context.Context) error {
	goose.SetLogger(&gooseLogger{})
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, db.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

type gooseLogger struct{}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	zap.S().Named("migrations").Infof(format, v...)
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	zap.S().Named("migrations").Fatalf(format, v...)
}
