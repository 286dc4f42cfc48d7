// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/pinharvest/internal/pin"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PinStoreConfig controls the Postgres connection pool used for imports.
type PinStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ImportStats counts the outcome of an import.
type ImportStats struct {
	Inserted int
	Skipped  int
	Failed   int
}

// PinStore writes harvested records into Postgres.
type PinStore struct {
	pool   execCloser
	table  string
	logger *zap.Logger
}

// NewPinStore connects to Postgres using the provided config.
func NewPinStore(ctx context.Context, cfg PinStoreConfig, logger *zap.Logger) (*PinStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewPinStoreWithPool(pool, cfg.Table, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewPinStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewPinStoreWithPool(pool execCloser, table string, logger *zap.Logger) (*PinStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "pins"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PinStore{pool: pool, table: table, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *PinStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the table when it does not exist.
func (s *PinStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	pin_id TEXT PRIMARY KEY,
	pin_name TEXT,
	image_url TEXT,
	series TEXT,
	origin TEXT,
	edition TEXT,
	release_date DATE,
	tags TEXT[] NOT NULL DEFAULT '{}',
	is_collected BOOLEAN NOT NULL DEFAULT FALSE,
	is_mystery BOOLEAN NOT NULL DEFAULT FALSE,
	is_limited_edition BOOLEAN NOT NULL DEFAULT FALSE,
	rarity TEXT,
	year INTEGER,
	pinpop_url TEXT,
	is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s table: %w", s.table, err)
	}
	return nil
}

// InsertRecords inserts records one at a time, skipping identifiers that are
// already present. A failing row is logged and counted; cancellation stops
// the import.
func (s *PinStore) InsertRecords(ctx context.Context, records []pin.Record) (ImportStats, error) {
	var stats ImportStats
	if s == nil || s.pool == nil {
		return stats, fmt.Errorf("pin store is not configured")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	pin_id,
	pin_name,
	image_url,
	series,
	origin,
	edition,
	release_date,
	tags,
	is_collected,
	is_mystery,
	is_limited_edition,
	rarity,
	year,
	pinpop_url
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
ON CONFLICT (pin_id) DO NOTHING`, s.table)

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		tag, err := s.pool.Exec(ctx, query, insertArgs(rec)...)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			stats.Failed++
			s.logger.Warn("failed to import pin", zap.Int("pin_id", rec.ID), zap.Error(err))
			continue
		}
		if tag.RowsAffected() == 0 {
			stats.Skipped++
			continue
		}
		stats.Inserted++
		if stats.Inserted%100 == 0 {
			s.logger.Info("import progress",
				zap.Int("inserted", stats.Inserted),
				zap.Int("skipped", stats.Skipped),
				zap.Int("failed", stats.Failed),
			)
		}
	}
	return stats, nil
}

func insertArgs(rec pin.Record) []any {
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}
	return []any{
		strconv.Itoa(rec.ID),
		rec.Name,
		rec.ImageURL,
		rec.Series,
		rec.Origin,
		rec.Edition,
		releaseDate(rec.ReleaseDate),
		tags,
		rec.IsCollected,
		rec.IsMystery,
		rec.IsLimitedEdition,
		nullable(rec.Rarity),
		nullableYear(rec.Year),
		rec.SourceURL,
	}
}

// releaseDate maps unparseable or placeholder dates to NULL.
func releaseDate(raw string) any {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.EqualFold(raw, "unknown") {
		return nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil
	}
	return t
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableYear(year int) any {
	if year <= 0 {
		return nil
	}
	return year
}
