package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"webharvest/models"
)

// SQLiteWriter persists records into a per-job table. All columns are TEXT;
// type fidelity lives in the CSV/JSON outputs, the database is for ad hoc
// querying.
type SQLiteWriter struct {
	db      *sql.DB
	table   string
	columns []string
	insert  string
	rows    int64
	mu      sync.Mutex
}

// NewSQLiteWriter opens (or creates) the database file and its job table.
func NewSQLiteWriter(filename, jobName string, columns []string) (*SQLiteWriter, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("sqlite output needs at least one column")
	}
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	table := tableName(jobName)
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col) + " TEXT"
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, %s)",
		quoteIdent(table), strings.Join(quoted, ", "))
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table %s: %w", table, err)
	}

	names := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, col := range columns {
		names[i] = quoteIdent(col)
		marks[i] = "?"
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), strings.Join(marks, ", "))

	return &SQLiteWriter{
		db:      db,
		table:   table,
		columns: columns,
		insert:  insert,
	}, nil
}

// Write inserts records inside one transaction.
func (sw *SQLiteWriter) Write(records []models.ProcessedRecord) error {
	if len(records) == 0 {
		return nil
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	tx, err := sw.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(sw.insert)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(sw.columns))
	for _, rec := range records {
		for i, col := range sw.columns {
			v := rec.Fields[col]
			if v == nil || models.IsUnset(v) {
				args[i] = nil
				continue
			}
			args[i] = cell(v)
		}
		if _, err := stmt.Exec(args...); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	sw.rows += int64(len(records))
	return nil
}

// Close releases the database handle.
func (sw *SQLiteWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.db.Close()
}

// Validate confirms at least one row was written.
func (sw *SQLiteWriter) Validate() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.rows == 0 {
		return fmt.Errorf("table %s is empty", sw.table)
	}
	return nil
}

func tableName(jobName string) string {
	name := unsafeNameChars.ReplaceAllString(strings.TrimSpace(jobName), "_")
	name = strings.Trim(name, "_")
	if name == "" {
		name = "records"
	}
	return strings.ToLower(name)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
