// Package postgres provides the Postgres-backed crawl queue.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
	"github.com/JakeFAU/taxcrawl/internal/queue"
)

// buildPageSize bounds the number of keys sent in one INSERT.
const buildPageSize = 10_000

const undefinedTable = "42P01"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// Pool is the subset of *pgxpool.Pool the store uses.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// QueueStore implements queue.Store on Postgres.
type QueueStore struct {
	pool Pool
}

var _ queue.Store = (*QueueStore)(nil)

// NewQueueStore connects to Postgres using cfg.
func NewQueueStore(ctx context.Context, cfg Config) (*QueueStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
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
	return &QueueStore{pool: pool}, nil
}

// NewQueueStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewQueueStoreWithPool(pool Pool) (*QueueStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &QueueStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *QueueStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func wrap(op, table string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == undefinedTable {
		return fmt.Errorf("%s %s: %w", op, table, queue.ErrTableNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, table, err)
}

// Build implements queue.Store.
func (s *QueueStore) Build(ctx context.Context, table string, keys []parcel.Key) (err error) {
	if err := queue.ValidateTable(table); err != nil {
		return err
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin build %s: %w", table, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	create := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	key char(10) PRIMARY KEY,
	status boolean,
	error_message text,
	info jsonb
)`, table)
	if _, err = tx.Exec(ctx, create); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}

	insert := fmt.Sprintf(`INSERT INTO %s (key) SELECT unnest($1::text[]) ON CONFLICT (key) DO NOTHING`, table)
	for start := 0; start < len(keys); start += buildPageSize {
		end := min(start+buildPageSize, len(keys))
		page := make([]string, 0, end-start)
		for _, k := range keys[start:end] {
			page = append(page, k.String())
		}
		if _, err = tx.Exec(ctx, insert, page); err != nil {
			return fmt.Errorf("insert keys into %s: %w", table, err)
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit build %s: %w", table, err)
	}
	return nil
}

// FetchUnprocessed implements queue.Store.
func (s *QueueStore) FetchUnprocessed(ctx context.Context, table string, limit int) ([]parcel.Key, error) {
	if err := queue.ValidateTable(table); err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT key FROM %s WHERE status IS NULL ORDER BY key LIMIT $1`, table)
	rows, err := s.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, wrap("fetch unprocessed from", table, err)
	}
	texts, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, wrap("fetch unprocessed from", table, err)
	}
	keys := make([]parcel.Key, 0, len(texts))
	for _, text := range texts {
		k, err := parcel.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("queue %s: %w", table, err)
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func (s *QueueStore) updateRow(ctx context.Context, table, query string, key parcel.Key, args ...any) error {
	tag, err := s.pool.Exec(ctx, query, append([]any{key.String()}, args...)...)
	if err != nil {
		return wrap("update", table, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("parcel %s not in queue %s", key, table)
	}
	return nil
}

// RecordSuccess implements queue.Store.
func (s *QueueStore) RecordSuccess(ctx context.Context, table string, info crawler.PropertyInfo) error {
	if err := queue.ValidateTable(table); err != nil {
		return err
	}
	data, err := queue.EncodeInfo(info)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET status = true, error_message = NULL, info = $2 WHERE key = $1`, table)
	return s.updateRow(ctx, table, query, info.Key, data)
}

// RecordFailure implements queue.Store.
func (s *QueueStore) RecordFailure(ctx context.Context, table string, key parcel.Key, message string) error {
	if err := queue.ValidateTable(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET status = false, error_message = $2, info = NULL WHERE key = $1`, table)
	return s.updateRow(ctx, table, query, key, message)
}

// ClearErrors implements queue.Store.
func (s *QueueStore) ClearErrors(ctx context.Context, table string) (int64, error) {
	if err := queue.ValidateTable(table); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(
		`UPDATE %s SET status = NULL, error_message = NULL WHERE status = false AND error_message NOT LIKE $1`,
		table,
	)
	tag, err := s.pool.Exec(ctx, query, "%"+crawler.PermanentFailurePattern+"%")
	if err != nil {
		return 0, wrap("clear errors in", table, err)
	}
	return tag.RowsAffected(), nil
}

// Counts implements queue.Store.
func (s *QueueStore) Counts(ctx context.Context, table string) (queue.Counts, error) {
	if err := queue.ValidateTable(table); err != nil {
		return queue.Counts{}, err
	}
	query := fmt.Sprintf(`
SELECT
	count(*) FILTER (WHERE status = true),
	count(*) FILTER (WHERE status = false),
	count(*) FILTER (WHERE status IS NULL)
FROM %s`, table)
	var c queue.Counts
	if err := s.pool.QueryRow(ctx, query).Scan(&c.Successful, &c.Unsuccessful, &c.Remaining); err != nil {
		return queue.Counts{}, wrap("count", table, err)
	}
	return c, nil
}

// Iterate implements queue.Store.
func (s *QueueStore) Iterate(ctx context.Context, table string, fn func(queue.Row) error) error {
	if err := queue.ValidateTable(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`SELECT key, status, error_message, info FROM %s ORDER BY key`, table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return wrap("iterate", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key     string
			status  *bool
			message *string
			info    []byte
		)
		if err := rows.Scan(&key, &status, &message, &info); err != nil {
			return fmt.Errorf("scan %s: %w", table, err)
		}
		row, err := queue.DecodeRow(key, status, message, info)
		if err != nil {
			return fmt.Errorf("queue %s: %w", table, err)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return wrap("iterate", table, err)
	}
	return nil
}
