// Package memory provides an in-process queue store for tests and one-off runs.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
	"github.com/JakeFAU/taxcrawl/internal/queue"
)

// Store keeps queues in maps guarded by a mutex.
type Store struct {
	mu     sync.Mutex
	tables map[string]map[parcel.Key]*queue.Row
}

var _ queue.Store = (*Store)(nil)

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{tables: make(map[string]map[parcel.Key]*queue.Row)}
}

func (s *Store) table(name string) (map[parcel.Key]*queue.Row, error) {
	if err := queue.ValidateTable(name); err != nil {
		return nil, err
	}
	rows, ok := s.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", queue.ErrTableNotFound, name)
	}
	return rows, nil
}

// sortedKeys returns keys in their padded textual order, matching SQL ORDER BY key.
func sortedKeys(rows map[parcel.Key]*queue.Row) []parcel.Key {
	keys := make([]parcel.Key, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b parcel.Key) int {
		switch sa, sb := a.String(), b.String(); {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	})
	return keys
}

// Build implements queue.Store.
func (s *Store) Build(_ context.Context, table string, keys []parcel.Key) error {
	if err := queue.ValidateTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, ok := s.tables[table]
	if !ok {
		rows = make(map[parcel.Key]*queue.Row, len(keys))
		s.tables[table] = rows
	}
	for _, k := range keys {
		if _, exists := rows[k]; !exists {
			rows[k] = &queue.Row{Key: k}
		}
	}
	return nil
}

// FetchUnprocessed implements queue.Store.
func (s *Store) FetchUnprocessed(_ context.Context, table string, limit int) ([]parcel.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.table(table)
	if err != nil {
		return nil, err
	}
	var out []parcel.Key
	for _, k := range sortedKeys(rows) {
		if len(out) >= limit {
			break
		}
		if rows[k].Status == queue.Unprocessed {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *Store) update(table string, key parcel.Key, fn func(*queue.Row)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.table(table)
	if err != nil {
		return err
	}
	row, ok := rows[key]
	if !ok {
		return fmt.Errorf("parcel %s not in queue %s", key, table)
	}
	fn(row)
	return nil
}

// RecordSuccess implements queue.Store.
func (s *Store) RecordSuccess(_ context.Context, table string, info crawler.PropertyInfo) error {
	return s.update(table, info.Key, func(r *queue.Row) {
		r.Status = queue.Succeeded
		r.ErrorMessage = ""
		r.Info = &info
	})
}

// RecordFailure implements queue.Store.
func (s *Store) RecordFailure(_ context.Context, table string, key parcel.Key, message string) error {
	return s.update(table, key, func(r *queue.Row) {
		r.Status = queue.Failed
		r.ErrorMessage = message
		r.Info = nil
	})
}

// ClearErrors implements queue.Store.
func (s *Store) ClearErrors(_ context.Context, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.table(table)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, r := range rows {
		if r.Status == queue.Failed && !queue.IsPermanentFailure(r.ErrorMessage) {
			r.Status = queue.Unprocessed
			r.ErrorMessage = ""
			n++
		}
	}
	return n, nil
}

// Counts implements queue.Store.
func (s *Store) Counts(_ context.Context, table string) (queue.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.table(table)
	if err != nil {
		return queue.Counts{}, err
	}
	var c queue.Counts
	for _, r := range rows {
		switch r.Status {
		case queue.Succeeded:
			c.Successful++
		case queue.Failed:
			c.Unsuccessful++
		default:
			c.Remaining++
		}
	}
	return c, nil
}

// Iterate implements queue.Store. fn runs on a snapshot, outside the lock.
func (s *Store) Iterate(ctx context.Context, table string, fn func(queue.Row) error) error {
	s.mu.Lock()
	rows, err := s.table(table)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := make([]queue.Row, 0, len(rows))
	for _, k := range sortedKeys(rows) {
		snapshot = append(snapshot, *rows[k])
	}
	s.mu.Unlock()

	for _, r := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
