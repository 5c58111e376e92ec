package crawler

import (
	"errors"
	"fmt"
)

// PermanentFailurePattern appears in the message of every failure that retrying
// cannot fix. Queue stores match on it when clearing errors, so it must not change.
const PermanentFailurePattern = "does not exist"

var (
	// ErrParcelNotFound means the site reported no records for the parcel.
	ErrParcelNotFound = errors.New("property page " + PermanentFailurePattern)
	// ErrUnexpectedSearchFailure means the search form led somewhere unmodeled.
	ErrUnexpectedSearchFailure = errors.New("unexpected failure to search for parcel")
	// ErrSectionNotFound means a sidebar link was missing from the detail page.
	ErrSectionNotFound = errors.New("sidebar link not found")
	// ErrCorruptedDownload means a PDF converted to empty text.
	ErrCorruptedDownload = errors.New("pdf download was corrupted")
	// ErrDownloadFailure means a document could not be downloaded.
	ErrDownloadFailure = errors.New("download failed")
	// ErrBrowserDisabled is returned when a page is needed but the browser is off.
	ErrBrowserDisabled = errors.New("session is configured to not use a browser")
)

// DownloadError reports a non-success HTTP outcome.
type DownloadError struct {
	URL        string
	StatusCode int
	Reason     string
}

func (e *DownloadError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("download %s: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("download %s: status %d", e.URL, e.StatusCode)
}

// Unwrap lets callers match ErrDownloadFailure.
func (e *DownloadError) Unwrap() error { return ErrDownloadFailure }

// GracefulError is a user-facing failure that should be printed, not logged as a crash.
type GracefulError struct {
	Message string
}

func (e *GracefulError) Error() string { return e.Message }

// NewGracefulError returns a GracefulError with msg.
func NewGracefulError(msg string) error {
	return &GracefulError{Message: msg}
}

// IsGraceful reports whether err is or wraps a GracefulError.
func IsGraceful(err error) bool {
	var g *GracefulError
	return errors.As(err, &g)
}
