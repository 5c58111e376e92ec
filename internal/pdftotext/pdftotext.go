// Package pdftotext shells out to the xpdf pdftotext tool.
package pdftotext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
)

// ExpectedVersion is the pdftotext release whose output the extractors are tuned to.
const ExpectedVersion = "4.05"

// Flag is an extra layout flag understood by pdftotext.
type Flag string

const (
	// Layout maintains the original physical layout.
	Layout Flag = "-layout"
	// Table is like Layout but optimized for tabular content.
	Table Flag = "-table"
)

// ErrVersionMismatch is returned when the executable is not ExpectedVersion.
var ErrVersionMismatch = errors.New("pdftotext version mismatch")

var versionRE = regexp.MustCompile(`pdftotext version ([\d.]+)`)

// Converter runs a validated pdftotext executable.
type Converter struct {
	path string

	once sync.Once
	err  error
}

// New returns a Converter for the executable at path ("pdftotext" when empty).
func New(path string) *Converter {
	if strings.TrimSpace(path) == "" {
		path = "pdftotext"
	}
	return &Converter{path: path}
}

// Path returns the executable the converter runs.
func (c *Converter) Path() string { return c.path }

// Validate checks the executable's version once and caches the outcome.
func (c *Converter) Validate(ctx context.Context) error {
	c.once.Do(func() {
		c.err = c.validate(ctx)
	})
	return c.err
}

func (c *Converter) validate(ctx context.Context) error {
	// #nosec G204 -- the executable path comes from operator configuration.
	cmd := exec.CommandContext(ctx, c.path, "-v")
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	// pdftotext -v exits non-zero on some builds; the output is what matters.
	runErr := cmd.Run()
	version, ok := ParseVersion(out.String())
	if !ok {
		if runErr != nil {
			return fmt.Errorf("run %q -v: %w", c.path, runErr)
		}
		return fmt.Errorf("unable to determine version of %q", c.path)
	}
	if version != ExpectedVersion {
		return fmt.Errorf("%w: %q is version %s but %s is required", ErrVersionMismatch, c.path, version, ExpectedVersion)
	}
	return nil
}

// ParseVersion extracts the version number from `pdftotext -v` output.
func ParseVersion(output string) (string, bool) {
	m := versionRE.FindStringSubmatch(output)
	if m == nil {
		return "", false
	}
	return m[1], true
}

// Convert writes pdf to a temporary file and returns pdftotext's UTF-8 output.
func (c *Converter) Convert(ctx context.Context, pdf []byte, flags ...Flag) (string, error) {
	if err := c.Validate(ctx); err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp("", "taxcrawl-*.pdf")
	if err != nil {
		return "", fmt.Errorf("create temp pdf: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(pdf); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write temp pdf: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp pdf: %w", err)
	}

	// #nosec G204 -- arguments are fixed flags and a temp file we created.
	cmd := exec.CommandContext(ctx, c.path, Args(tmp.Name(), flags...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		// A damaged PDF exits non-zero with little or no output. Whatever was
		// printed is returned so callers can treat empty text as a corrupted
		// download and fetch it again.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return stdout.String(), nil
		}
		return "", fmt.Errorf("pdftotext: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// Args builds the pdftotext argument list for converting file to stdout.
func Args(file string, flags ...Flag) []string {
	args := make([]string, 0, len(flags)+4)
	for _, f := range flags {
		args = append(args, string(f))
	}
	return append(args, "-enc", "UTF-8", file, "-")
}

// CacheKeyTag identifies the converter settings in a text cache key, e.g.
// "pdftotext-4.05-layout". Output from different settings must not share a key.
func CacheKeyTag(flags ...Flag) string {
	var b strings.Builder
	b.WriteString("pdftotext-")
	b.WriteString(ExpectedVersion)
	for _, f := range flags {
		b.WriteString(string(f))
	}
	return b.String()
}
