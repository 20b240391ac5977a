// Package sqlite implements a SQLite-backed warehouse.Mirror using
// database/sql and the pure-Go modernc.org/sqlite driver. SQLite has no bulk
// load API, so rows go through a prepared INSERT inside the load transaction.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"datalake/internal/schema"
	"datalake/internal/warehouse"
)

// timeLayout stores timestamps as ISO-8601 text at millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z"

var dialect = warehouse.Dialect{
	Quote:       warehouse.QuoteDouble,
	Placeholder: func(int) string { return "?" },
	ColumnType:  columnType,
}

func columnType(c schema.Column) string {
	switch c.Type {
	case schema.TypeInt:
		return "INTEGER"
	case schema.TypeFloat:
		return "REAL"
	default:
		return "TEXT"
	}
}

// newMirror is a test hook that points to Open by default.
var newMirror = Open

func init() {
	warehouse.Register("sqlite", func(ctx context.Context, cfg warehouse.Config) (warehouse.Mirror, error) {
		return newMirror(ctx, cfg.DSN)
	})
}

// Mirror is a SQLite warehouse.
type Mirror struct {
	db *sql.DB
}

var _ warehouse.Mirror = (*Mirror)(nil)

// Open connects to dsn, e.g. "file:datalake.db" or a plain path.
func Open(ctx context.Context, dsn string) (*Mirror, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer at a time; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &Mirror{db: db}, nil
}

func (m *Mirror) Close() { m.db.Close() }

// Load replaces the scoped rows of table in one transaction.
func (m *Mirror) Load(ctx context.Context, table schema.Table, rows [][]any, scope warehouse.Scope) (int64, error) {
	fqn := dialect.FQN("", table.Name)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+dialect.CreateTable(fqn, table)); err != nil {
		return 0, fmt.Errorf("sqlite: create %s: %w", table.Name, err)
	}
	stmts, args := dialect.Delete(fqn, table, scope)
	for i, s := range stmts {
		if _, err := tx.ExecContext(ctx, s, args[i]...); err != nil {
			return 0, fmt.Errorf("sqlite: clear %s: %w", table.Name, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, dialect.Insert(fqn, table))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	for _, row := range rows {
		if len(row) != len(table.Columns) {
			return 0, fmt.Errorf("sqlite: %s: row length %d != columns length %d", table.Name, len(row), len(table.Columns))
		}
		if _, err := stmt.ExecContext(ctx, encode(row)...); err != nil {
			return 0, fmt.Errorf("sqlite: insert %s: %w", table.Name, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit %s: %w", table.Name, err)
	}
	return inserted, nil
}

func encode(row []any) []any {
	out := make([]any, len(row))
	for i, v := range row {
		if t, ok := v.(time.Time); ok {
			out[i] = t.UTC().Format(timeLayout)
			continue
		}
		out[i] = v
	}
	return out
}
