// Package mssql implements a Microsoft SQL Server warehouse.Mirror using the
// go-mssqldb bulk copy API.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"datalake/internal/schema"
	"datalake/internal/warehouse"
)

var dialect = warehouse.Dialect{
	Quote:       msIdent,
	Placeholder: func(i int) string { return "@p" + strconv.Itoa(i) },
	ColumnType:  columnType,
}

func columnType(c schema.Column) string {
	switch c.Type {
	case schema.TypeInt:
		return "BIGINT"
	case schema.TypeFloat:
		return "FLOAT"
	case schema.TypeTimestamp:
		return "DATETIME2(3)"
	default:
		// Index keys are limited to 900 bytes.
		if c.Key {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}

// msIdent brackets a SQL Server identifier, escaping closing brackets.
func msIdent(id string) string { return "[" + strings.ReplaceAll(id, "]", "]]") + "]" }

// createSQL renders CREATE TABLE guarded by OBJECT_ID, since SQL Server has
// no CREATE TABLE IF NOT EXISTS.
func createSQL(schemaName string, t schema.Table) string {
	fqn := dialect.FQN(schemaName, t.Name)
	obj := t.Name
	if schemaName != "" {
		obj = schemaName + "." + t.Name
	}
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s",
		strings.ReplaceAll(obj, "'", "''"), dialect.CreateTable(fqn, t))
}

// newDB is a test hook that opens the sqlserver driver by default.
var newDB = func(ctx context.Context, dsn string) (*sql.DB, error) {
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return db, nil
}

func init() {
	warehouse.Register("mssql", Open)
}

// Mirror is a SQL Server warehouse.
type Mirror struct {
	db     *sql.DB
	schema string
}

var _ warehouse.Mirror = (*Mirror)(nil)

// Open connects to cfg.DSN; cfg.Schema defaults to the login's default schema.
func Open(ctx context.Context, cfg warehouse.Config) (warehouse.Mirror, error) {
	db, err := newDB(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Mirror{db: db, schema: cfg.Schema}, nil
}

func (m *Mirror) Close() { _ = m.db.Close() }

// Load replaces the scoped rows of table in one transaction and bulk-copies
// rows into it.
func (m *Mirror) Load(ctx context.Context, table schema.Table, rows [][]any, scope warehouse.Scope) (int64, error) {
	fqn := dialect.FQN(m.schema, table.Name)

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("mssql: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx, createSQL(m.schema, table)); err != nil {
		return 0, fmt.Errorf("mssql: create %s: %w", fqn, err)
	}
	stmts, args := dialect.Delete(fqn, table, scope)
	for i, s := range stmts {
		if _, err := tx.ExecContext(ctx, s, args[i]...); err != nil {
			return 0, fmt.Errorf("mssql: clear %s: %w", fqn, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(fqn, mssql.BulkOptions{}, table.ColumnNames()...))
	if err != nil {
		return 0, fmt.Errorf("mssql: prepare bulk: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if len(row) != len(table.Columns) {
			return 0, fmt.Errorf("mssql: %s: row length %d != columns length %d", table.Name, len(row), len(table.Columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return 0, fmt.Errorf("mssql: bulk add: %w", err)
		}
	}
	res, err := stmt.ExecContext(ctx) // flush
	if err != nil {
		return 0, fmt.Errorf("mssql: bulk flush: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("mssql: rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("mssql: commit %s: %w", fqn, err)
	}
	return n, nil
}
