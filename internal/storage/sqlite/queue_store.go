// Package sqlite provides a single-file crawl queue for local runs.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
	"github.com/JakeFAU/taxcrawl/internal/queue"
)

// QueueStore implements queue.Store on SQLite. All access goes through one
// connection, so writes from concurrent workers are serialized.
type QueueStore struct {
	db *sqlx.DB
}

var _ queue.Store = (*QueueStore)(nil)

type record struct {
	Key          string  `db:"key"`
	Status       *bool   `db:"status"`
	ErrorMessage *string `db:"error_message"`
	Info         []byte  `db:"info"`
}

// NewQueueStore opens (creating if needed) the database at dsn, e.g.
// "queue.db" or ":memory:".
func NewQueueStore(ctx context.Context, dsn string) (*QueueStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("configure sqlite: %w", err)
	}
	return &QueueStore{db: db}, nil
}

// Close closes the database.
func (s *QueueStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

func wrap(op, table string, err error) error {
	if strings.Contains(err.Error(), "no such table") {
		return fmt.Errorf("%s %s: %w", op, table, queue.ErrTableNotFound)
	}
	return fmt.Errorf("%s %s: %w", op, table, err)
}

// Build implements queue.Store.
func (s *QueueStore) Build(ctx context.Context, table string, keys []parcel.Key) (err error) {
	if err := queue.ValidateTable(table); err != nil {
		return err
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin build %s: %w", table, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	create := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	key TEXT PRIMARY KEY,
	status BOOLEAN,
	error_message TEXT,
	info TEXT
)`, table)
	if _, err = tx.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("create %s: %w", table, err)
	}

	stmt, err := tx.PreparexContext(ctx, fmt.Sprintf(`INSERT OR IGNORE INTO %s (key) VALUES (?)`, table))
	if err != nil {
		return fmt.Errorf("prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()
	for _, k := range keys {
		if _, err = stmt.ExecContext(ctx, k.String()); err != nil {
			return fmt.Errorf("insert %s into %s: %w", k, table, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit build %s: %w", table, err)
	}
	return nil
}

// FetchUnprocessed implements queue.Store.
func (s *QueueStore) FetchUnprocessed(ctx context.Context, table string, limit int) ([]parcel.Key, error) {
	if err := queue.ValidateTable(table); err != nil {
		return nil, err
	}
	var texts []string
	query := fmt.Sprintf(`SELECT key FROM %s WHERE status IS NULL ORDER BY key LIMIT ?`, table)
	if err := s.db.SelectContext(ctx, &texts, query, limit); err != nil {
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

func (s *QueueStore) updateRow(ctx context.Context, table, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return wrap("update", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	if n == 0 {
		return fmt.Errorf("parcel %s not in queue %s", args[len(args)-1], table)
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
	query := fmt.Sprintf(`UPDATE %s SET status = 1, error_message = NULL, info = ? WHERE key = ?`, table)
	return s.updateRow(ctx, table, query, string(data), info.Key.String())
}

// RecordFailure implements queue.Store.
func (s *QueueStore) RecordFailure(ctx context.Context, table string, key parcel.Key, message string) error {
	if err := queue.ValidateTable(table); err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE %s SET status = 0, error_message = ?, info = NULL WHERE key = ?`, table)
	return s.updateRow(ctx, table, query, message, key.String())
}

// ClearErrors implements queue.Store.
func (s *QueueStore) ClearErrors(ctx context.Context, table string) (int64, error) {
	if err := queue.ValidateTable(table); err != nil {
		return 0, err
	}
	query := fmt.Sprintf(
		`UPDATE %s SET status = NULL, error_message = NULL WHERE status = 0 AND error_message NOT LIKE ?`,
		table,
	)
	res, err := s.db.ExecContext(ctx, query, "%"+crawler.PermanentFailurePattern+"%")
	if err != nil {
		return 0, wrap("clear errors in", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear errors in %s: %w", table, err)
	}
	return n, nil
}

// Counts implements queue.Store.
func (s *QueueStore) Counts(ctx context.Context, table string) (queue.Counts, error) {
	if err := queue.ValidateTable(table); err != nil {
		return queue.Counts{}, err
	}
	query := fmt.Sprintf(`
SELECT
	count(*) FILTER (WHERE status = 1) AS successful,
	count(*) FILTER (WHERE status = 0) AS unsuccessful,
	count(*) FILTER (WHERE status IS NULL) AS remaining
FROM %s`, table)
	var c struct {
		Successful   int64 `db:"successful"`
		Unsuccessful int64 `db:"unsuccessful"`
		Remaining    int64 `db:"remaining"`
	}
	if err := s.db.GetContext(ctx, &c, query); err != nil {
		return queue.Counts{}, wrap("count", table, err)
	}
	return queue.Counts{Successful: c.Successful, Unsuccessful: c.Unsuccessful, Remaining: c.Remaining}, nil
}

// Iterate implements queue.Store. Rows are read before fn is called, so fn
// may use the store.
func (s *QueueStore) Iterate(ctx context.Context, table string, fn func(queue.Row) error) error {
	if err := queue.ValidateTable(table); err != nil {
		return err
	}
	var records []record
	query := fmt.Sprintf(`SELECT key, status, error_message, info FROM %s ORDER BY key`, table)
	if err := s.db.SelectContext(ctx, &records, query); err != nil {
		return wrap("iterate", table, err)
	}
	for _, rec := range records {
		row, err := queue.DecodeRow(rec.Key, rec.Status, rec.ErrorMessage, rec.Info)
		if err != nil {
			return fmt.Errorf("queue %s: %w", table, err)
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}
