package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/consolemask/internal/logger"
)

const settingsSchema = `
CREATE TABLE IF NOT EXISTS consolemask_settings (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresKV stores settings rows in the consolemask_settings table.
type PostgresKV struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewPostgresKV connects to databaseURL and creates the table if missing.
func NewPostgresKV(ctx context.Context, databaseURL string, log *logger.Logger) (*PostgresKV, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	db, err := sqlx.ConnectContext(connectCtx, "postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.ExecContext(connectCtx, settingsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create settings table: %w", err)
	}

	log.Info("Postgres settings backend connected",
		zap.String("database_url", maskURL(databaseURL)))

	return &PostgresKV{db: db, logger: log}, nil
}

func (p *PostgresKV) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := p.db.GetContext(ctx, &value, `SELECT value FROM consolemask_settings WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (p *PostgresKV) Set(ctx context.Context, key, value string) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO consolemask_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		key, value)
	if err != nil {
		p.logger.Error("Failed to save setting", zap.String("key", key), zap.Error(err))
		return err
	}
	return nil
}

func (p *PostgresKV) Close() error {
	return p.db.Close()
}
