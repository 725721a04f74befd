package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/maltedev/glb-scraper/internal/models"
)

var (
	// ErrLedgerIntegrity means a variant was recorded twice. Callers check
	// Has before Record, so this is a bug, not a runtime condition.
	ErrLedgerIntegrity = errors.New("ledger integrity violation")
	ErrNotFound        = errors.New("record not found")
)

const pgUniqueViolation = "23505"

const schema = `
CREATE TABLE IF NOT EXISTS products (
	url        TEXT PRIMARY KEY,
	name       TEXT,
	color      TEXT,
	glb_url    TEXT,
	downloaded INTEGER
)`

// Ledger is the append-only record of processed variants, keyed by
// variant URL.
type Ledger struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func NewLedger(db *sqlx.DB, logger *slog.Logger) *Ledger {
	return &Ledger{
		db:     db,
		logger: logger.With("component", "ledger"),
	}
}

// Open connects to the configured database and creates the schema.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Ledger, error) {
	db, err := Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}

	ledger := NewLedger(db, logger)
	if err := ledger.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}

	ledger.logger.Info("ledger ready", "driver", cfg.Driver)
	return ledger, nil
}

// Init creates the products table if it does not exist yet.
func (l *Ledger) Init(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (l *Ledger) Has(ctx context.Context, variantURL string) (bool, error) {
	var count int
	query := l.db.Rebind(`SELECT COUNT(1) FROM products WHERE url = ?`)
	if err := l.db.GetContext(ctx, &count, query, variantURL); err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", variantURL, err)
	}
	return count > 0, nil
}

// Record inserts rec and commits before returning. Recording a URL that is
// already present fails with ErrLedgerIntegrity.
func (l *Ledger) Record(ctx context.Context, rec *models.ProductRecord) error {
	query := l.db.Rebind(`
		INSERT INTO products (url, name, color, glb_url, downloaded)
		VALUES (?, ?, ?, ?, ?)`)

	downloaded := 0
	if rec.Downloaded {
		downloaded = 1
	}

	err := WithTx(ctx, l.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, query, rec.URL, rec.Name, rec.Color, rec.AssetURL, downloaded)
		return err
	})
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s already recorded", ErrLedgerIntegrity, rec.URL)
		}
		return fmt.Errorf("failed to record %s: %w", rec.URL, err)
	}

	l.logger.Debug("recorded variant", "url", rec.URL, "downloaded", rec.Downloaded)
	return nil
}

func (l *Ledger) Get(ctx context.Context, variantURL string) (*models.ProductRecord, error) {
	var rec models.ProductRecord
	query := l.db.Rebind(`
		SELECT url, name, color, glb_url, downloaded
		FROM products
		WHERE url = ?`)

	if err := l.db.GetContext(ctx, &rec, query, variantURL); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s: %w", variantURL, err)
	}
	return &rec, nil
}

// List pages through the ledger ordered by URL.
func (l *Ledger) List(ctx context.Context, limit, offset int) ([]models.ProductRecord, error) {
	query := l.db.Rebind(`
		SELECT url, name, color, glb_url, downloaded
		FROM products
		ORDER BY url
		LIMIT ? OFFSET ?`)

	records := []models.ProductRecord{}
	if err := l.db.SelectContext(ctx, &records, query, limit, offset); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return records, nil
}

func (l *Ledger) Stats(ctx context.Context) (*models.LedgerStats, error) {
	var row struct {
		Total      int `db:"total"`
		Downloaded int `db:"downloaded"`
		Missing    int `db:"missing"`
	}

	query := `
		SELECT
			COUNT(1) AS total,
			COALESCE(SUM(downloaded), 0) AS downloaded,
			COALESCE(SUM(CASE WHEN glb_url IS NULL THEN 1 ELSE 0 END), 0) AS missing
		FROM products`

	if err := l.db.GetContext(ctx, &row, query); err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}

	return &models.LedgerStats{
		Total:      row.Total,
		Downloaded: row.Downloaded,
		Missing:    row.Missing,
		CheckedAt:  time.Now().UTC(),
	}, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}

	return false
}
