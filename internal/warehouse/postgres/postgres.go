// Package postgres implements a Postgres warehouse.Mirror using pgx v5. Rows
// are streamed with the COPY protocol inside the load transaction.
package postgres

import (
	"context"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"datalake/internal/schema"
	"datalake/internal/warehouse"
)

var dialect = warehouse.Dialect{
	Quote:       pgIdent,
	Placeholder: func(i int) string { return "$" + strconv.Itoa(i) },
	ColumnType:  columnType,
}

func columnType(c schema.Column) string {
	switch c.Type {
	case schema.TypeInt:
		return "BIGINT"
	case schema.TypeFloat:
		return "DOUBLE PRECISION"
	case schema.TypeTimestamp:
		return "TIMESTAMPTZ"
	default:
		return "TEXT"
	}
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return warehouse.QuoteDouble(id) }

// beginner is the part of *pgxpool.Pool a Mirror uses.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// newPool is a test hook that points to pgxpool.New by default.
var newPool = func(ctx context.Context, dsn string) (beginner, func(), error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	return pool, pool.Close, nil
}

func init() {
	warehouse.Register("postgres", Open)
}

// Mirror is a Postgres warehouse.
type Mirror struct {
	pool    beginner
	closeFn func()
	schema  string
}

var _ warehouse.Mirror = (*Mirror)(nil)

// Open connects to cfg.DSN. Tables are created in cfg.Schema, or in the
// connection's search_path when empty.
func Open(ctx context.Context, cfg warehouse.Config) (warehouse.Mirror, error) {
	pool, closeFn, err := newPool(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &Mirror{pool: pool, closeFn: closeFn, schema: cfg.Schema}, nil
}

func (m *Mirror) Close() {
	if m.closeFn != nil {
		m.closeFn()
	}
}

// identifier is the pgx form of the target table for CopyFrom.
func (m *Mirror) identifier(table string) pgx.Identifier {
	if m.schema == "" {
		return pgx.Identifier{table}
	}
	return pgx.Identifier{m.schema, table}
}

// Load replaces the scoped rows of table in one transaction.
func (m *Mirror) Load(ctx context.Context, table schema.Table, rows [][]any, scope warehouse.Scope) (int64, error) {
	fqn := dialect.FQN(m.schema, table.Name)

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after Commit

	if _, err := tx.Exec(ctx, "CREATE TABLE IF NOT EXISTS "+dialect.CreateTable(fqn, table)); err != nil {
		return 0, fmt.Errorf("postgres: create %s: %w", fqn, err)
	}
	stmts, args := dialect.Delete(fqn, table, scope)
	for i, s := range stmts {
		if _, err := tx.Exec(ctx, s, args[i]...); err != nil {
			return 0, fmt.Errorf("postgres: clear %s: %w", fqn, err)
		}
	}

	n, err := tx.CopyFrom(ctx, m.identifier(table.Name), table.ColumnNames(), pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("postgres: copy %s: %w", fqn, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit %s: %w", fqn, err)
	}
	return n, nil
}
