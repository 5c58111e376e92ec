// Package queue defines the durable crawl queue: one row per parcel with a
// tri-state status.
package queue

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/JakeFAU/taxcrawl/internal/crawler"
	"github.com/JakeFAU/taxcrawl/internal/parcel"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var (
	// ErrInvalidTable is returned for table names that are not plain SQL identifiers.
	ErrInvalidTable = errors.New("invalid table name")
	// ErrTableNotFound is returned when a queue has not been built.
	ErrTableNotFound = errors.New("queue table not found")
)

// Status is the tri-state outcome of a row.
type Status int

const (
	// Unprocessed rows have a NULL status.
	Unprocessed Status = iota
	// Failed rows have status false and an error message.
	Failed
	// Succeeded rows have status true and an info blob.
	Succeeded
)

func (s Status) String() string {
	switch s {
	case Failed:
		return "failure"
	case Succeeded:
		return "success"
	default:
		return "unprocessed"
	}
}

// Row is one queue entry.
type Row struct {
	Key          parcel.Key
	Status       Status
	ErrorMessage string
	Info         *crawler.PropertyInfo
}

// Counts aggregates a queue's rows by status.
type Counts struct {
	Successful   int64 `json:"successful"`
	Unsuccessful int64 `json:"unsuccessful"`
	Remaining    int64 `json:"remaining"`
}

// Total is the number of rows.
func (c Counts) Total() int64 {
	return c.Successful + c.Unsuccessful + c.Remaining
}

// Store persists crawl queues. Every method takes the queue's table name.
type Store interface {
	// Build creates the table if needed and inserts one unprocessed row per
	// key. Keys already present are left alone.
	Build(ctx context.Context, table string, keys []parcel.Key) error
	// FetchUnprocessed returns up to limit unprocessed keys.
	FetchUnprocessed(ctx context.Context, table string, limit int) ([]parcel.Key, error)
	RecordSuccess(ctx context.Context, table string, info crawler.PropertyInfo) error
	RecordFailure(ctx context.Context, table string, key parcel.Key, message string) error
	// ClearErrors resets failed rows to unprocessed, except those whose error
	// message marks a permanent failure. It returns the number of rows reset.
	ClearErrors(ctx context.Context, table string) (int64, error)
	Counts(ctx context.Context, table string) (Counts, error)
	// Iterate calls fn for every row in key order, stopping at the first error.
	Iterate(ctx context.Context, table string, fn func(Row) error) error
	Close() error
}

// ValidateTable rejects names that cannot be safely interpolated into SQL.
func ValidateTable(table string) error {
	if !validTableName.MatchString(table) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return nil
}

// IsPermanentFailure reports whether a recorded error message should survive ClearErrors.
func IsPermanentFailure(message string) bool {
	return strings.Contains(message, crawler.PermanentFailurePattern)
}

// ReadKeys parses one padded parcel key per line. Blank lines and lines
// starting with '#' are skipped; duplicates keep their first position.
func ReadKeys(r io.Reader) ([]parcel.Key, error) {
	var keys []parcel.Key
	seen := make(map[parcel.Key]struct{})
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, err := parcel.Parse(text)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read keys: %w", err)
	}
	return keys, nil
}

// EncodeInfo serializes info for the info column.
func EncodeInfo(info crawler.PropertyInfo) ([]byte, error) {
	data, err := json.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("encode info for parcel %s: %w", info.Key, err)
	}
	return data, nil
}

// DecodeRow builds a Row from the raw column values shared by the SQL stores.
func DecodeRow(key string, status *bool, message *string, info []byte) (Row, error) {
	k, err := parcel.Parse(strings.TrimSpace(key))
	if err != nil {
		return Row{}, err
	}
	row := Row{Key: k}
	switch {
	case status == nil:
		row.Status = Unprocessed
	case *status:
		row.Status = Succeeded
	default:
		row.Status = Failed
	}
	if message != nil {
		row.ErrorMessage = *message
	}
	if len(info) > 0 {
		var pi crawler.PropertyInfo
		if err := json.Unmarshal(info, &pi); err != nil {
			return Row{}, fmt.Errorf("decode info for parcel %s: %w", k, err)
		}
		row.Info = &pi
	}
	return row, nil
}
