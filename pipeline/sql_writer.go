package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"sync"

	_ "github.com/lib/pq"  // registers the "postgres" driver
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/aluiziolira/speisekarte-scraper/models"
)

// TableName is the table the SQL writer creates and appends to.
const TableName = "restaurants"

// Dialect selects the SQL driver and placeholder style.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

var integerColumns = map[string]bool{"star_count": true, "empfehlungen": true}

// SQLWriter appends records to a restaurants table, one transaction per batch.
type SQLWriter struct {
	db      *sql.DB
	dialect Dialect
	insert  string
	mu      sync.Mutex
	rows    int
}

// NewSQLiteWriter opens (or creates) a SQLite database file.
func NewSQLiteWriter(filename string) (*SQLWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}
	db, err := sql.Open(string(DialectSQLite), filename)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serialises writers on one file
	db.SetMaxOpenConns(1)
	return NewSQLWriter(db, DialectSQLite)
}

// NewPostgresWriter connects to the database at dsn.
func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	db, err := sql.Open(string(DialectPostgres), dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(4)
	return NewSQLWriter(db, DialectPostgres)
}

// NewSQLWriter wraps an open database and ensures the table exists. The
// writer owns db and closes it on Close.
func NewSQLWriter(db *sql.DB, dialect Dialect) (*SQLWriter, error) {
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", dialect, err)
	}
	if _, err := db.ExecContext(ctx, createTableSQL(dialect)); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}
	return &SQLWriter{
		db:      db,
		dialect: dialect,
		insert:  insertSQL(dialect),
	}, nil
}

// Write inserts the batch inside one transaction.
func (sw *SQLWriter) Write(records []*models.Restaurant) (err error) {
	if len(records) == 0 {
		return nil
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()

	ctx := context.Background()
	tx, err := sw.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, sw.insert)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.ExecContext(ctx, values(rec)...); err != nil {
			return fmt.Errorf("insert %s: %w", rec.Key(), err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	sw.rows += len(records)
	return nil
}

// Close closes the database handle.
func (sw *SQLWriter) Close() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.db.Close()
}

// Validate ensures this writer inserted at least one row.
func (sw *SQLWriter) Validate() error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.rows == 0 {
		return fmt.Errorf("%s table %s has no new records", sw.dialect, TableName)
	}
	return nil
}

func createTableSQL(dialect Dialect) string {
	defs := make([]string, 0, len(Columns)+1)
	if dialect == DialectPostgres {
		defs = append(defs, "id BIGSERIAL PRIMARY KEY")
	} else {
		defs = append(defs, "id INTEGER PRIMARY KEY AUTOINCREMENT")
	}
	for _, c := range Columns {
		typ := "TEXT"
		if integerColumns[c] {
			typ = "INTEGER"
		}
		if c == "city" {
			typ += " NOT NULL"
		}
		defs = append(defs, c+" "+typ)
	}
	return "CREATE TABLE IF NOT EXISTS " + TableName + " (" + strings.Join(defs, ", ") + ")"
}

func insertSQL(dialect Dialect) string {
	placeholders := make([]string, len(Columns))
	for i := range Columns {
		if dialect == DialectPostgres {
			placeholders[i] = "$" + strconv.Itoa(i+1)
		} else {
			placeholders[i] = "?"
		}
	}
	return "INSERT INTO " + TableName + " (" + strings.Join(Columns, ", ") + ") VALUES (" + strings.Join(placeholders, ", ") + ")"
}
