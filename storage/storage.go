// Package storage persists processed records. Every writer shares the
// Write/Close/Validate contract so the engine can treat outputs uniformly.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"webharvest/models"
)

// RecordWriter is the output contract. Validate runs after Close would be
// too late for CSV flushing, so call it before Close.
type RecordWriter interface {
	Write(records []models.ProcessedRecord) error
	Close() error
	Validate() error
}

// Options select the output destination and its column layout.
type Options struct {
	// Format is csv, json, sqlite, or both.
	Format string
	// Dir receives the generated output files.
	Dir string
	// JobName seeds file and table names.
	JobName string
	// Columns fixes the field order for tabular outputs. Fields missing
	// from a record are written empty.
	Columns []string
}

// New builds the writer for the requested format.
func New(opts Options) (RecordWriter, error) {
	base := outputBase(opts.Dir, opts.JobName)
	switch opts.Format {
	case "", "csv":
		return NewCSVWriter(base+".csv", opts.Columns)
	case "json":
		return NewJSONWriter(base + ".jsonl")
	case "sqlite":
		return NewSQLiteWriter(base+".db", opts.JobName, opts.Columns)
	case "both":
		return NewDualWriter(base+".csv", base+".jsonl", opts.Columns)
	default:
		return nil, fmt.Errorf("unknown output format %q", opts.Format)
	}
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// outputBase builds <dir>/<job>_<timestamp>, with the job name reduced to
// filesystem-safe characters.
func outputBase(dir, jobName string) string {
	name := unsafeNameChars.ReplaceAllString(strings.TrimSpace(jobName), "_")
	if name == "" {
		name = "scrape"
	}
	stamp := time.Now().Format("20060102_150405")
	return filepath.Join(dir, name+"_"+stamp)
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}

// cell renders one field value for tabular output. Unset and nil become
// empty cells.
func cell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		if models.IsUnset(v) {
			return ""
		}
		return fmt.Sprint(t)
	}
}
