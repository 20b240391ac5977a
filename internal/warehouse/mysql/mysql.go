// Package mysql implements a MySQL-backed warehouse.Mirror on database/sql and
// github.com/go-sql-driver/mysql. Rows are loaded with multi-row INSERT
// statements, batchRows rows at a time.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"datalake/internal/schema"
	"datalake/internal/warehouse"
)

// batchRows bounds one INSERT; 11 columns × 500 rows stays far below the
// 65535 placeholder limit.
const batchRows = 500

func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

var dialect = warehouse.Dialect{
	Quote:       myIdent,
	Placeholder: func(int) string { return "?" },
	ColumnType:  columnType,
}

func columnType(c schema.Column) string {
	switch {
	case c.Type == schema.TypeInt:
		return "BIGINT"
	case c.Type == schema.TypeFloat:
		return "DOUBLE"
	case c.Type == schema.TypeTimestamp:
		return "DATETIME(3)"
	case c.Key:
		// InnoDB index prefixes cap out at 3072 bytes; 255 utf8mb4 chars fit.
		return "VARCHAR(255)"
	default:
		return "TEXT"
	}
}

// newDB is a test hook that points to openDB by default.
var newDB = openDB

func init() {
	warehouse.Register("mysql", func(ctx context.Context, cfg warehouse.Config) (warehouse.Mirror, error) {
		return Open(ctx, cfg)
	})
}

// openDB parses dsn, forces UTC time handling and pings the server.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("mysql: parse DSN: %w", err)
	}
	mc.ParseTime = true
	mc.Loc = time.UTC
	conn, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("mysql: connector: %w", err)
	}
	db := sql.OpenDB(conn)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("mysql: ping: %w", err)
	}
	return db, nil
}

// Mirror is a MySQL warehouse.
type Mirror struct {
	db     *sql.DB
	schema string
}

var _ warehouse.Mirror = (*Mirror)(nil)

// Open connects using cfg.DSN, e.g. "user:pass@tcp(127.0.0.1:3306)/dw".
// cfg.Schema, when set, names the database tables are created in.
func Open(ctx context.Context, cfg warehouse.Config) (*Mirror, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("mysql: DSN must not be empty")
	}
	db, err := newDB(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Mirror{db: db, schema: cfg.Schema}, nil
}

func (m *Mirror) Close() { m.db.Close() }

// insertSQL renders an INSERT of n rows.
func insertSQL(fqn string, t schema.Table, n int) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = myIdent(c.Name)
	}
	tuple := "(" + strings.TrimSuffix(strings.Repeat("?, ", len(t.Columns)), ", ") + ")"
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", fqn, strings.Join(cols, ", "))
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}
	return b.String()
}

// Load replaces the scoped rows of table in one transaction. MySQL commits
// DDL implicitly, so the CREATE runs before the transaction starts.
func (m *Mirror) Load(ctx context.Context, table schema.Table, rows [][]any, scope warehouse.Scope) (int64, error) {
	fqn := dialect.FQN(m.schema, table.Name)
	if _, err := m.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS "+dialect.CreateTable(fqn, table)); err != nil {
		return 0, fmt.Errorf("mysql: create %s: %w", table.Name, err)
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mysql: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	stmts, args := dialect.Delete(fqn, table, scope)
	for i, s := range stmts {
		if _, err := tx.ExecContext(ctx, s, args[i]...); err != nil {
			return 0, fmt.Errorf("mysql: clear %s: %w", table.Name, err)
		}
	}

	var inserted int64
	for start := 0; start < len(rows); start += batchRows {
		end := min(start+batchRows, len(rows))
		flat := make([]any, 0, (end-start)*len(table.Columns))
		for _, row := range rows[start:end] {
			if len(row) != len(table.Columns) {
				return 0, fmt.Errorf("mysql: %s: row length %d != columns length %d", table.Name, len(row), len(table.Columns))
			}
			flat = append(flat, row...)
		}
		res, err := tx.ExecContext(ctx, insertSQL(fqn, table, end-start), flat...)
		if err != nil {
			return 0, fmt.Errorf("mysql: insert %s: %w", table.Name, err)
		}
		n, _ := res.RowsAffected()
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mysql: commit %s: %w", table.Name, err)
	}
	return inserted, nil
}
