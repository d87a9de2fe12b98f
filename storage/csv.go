package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"webharvest/models"
)

// CSVWriter writes records to CSV with a fixed column order.
type CSVWriter struct {
	file    *os.File
	writer  *csv.Writer
	columns []string
	mu      sync.Mutex
}

// NewCSVWriter creates the file and writes the header row.
func NewCSVWriter(filename string, columns []string) (*CSVWriter, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("csv output needs at least one column")
	}
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("create csv file: %w", err)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write(columns); err != nil {
		f.Close()
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		f.Close()
		return nil, fmt.Errorf("flush csv header: %w", err)
	}

	return &CSVWriter{
		file:    f,
		writer:  writer,
		columns: columns,
	}, nil
}

// Write appends one row per record, fields in header order.
func (cw *CSVWriter) Write(records []models.ProcessedRecord) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	row := make([]string, len(cw.columns))
	for _, rec := range records {
		for i, col := range cw.columns {
			row[i] = cell(rec.Fields[col])
		}
		if err := cw.writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}
