// Package warehouse mirrors the star-schema tables into a relational database
// after the Parquet write.
//
// A Mirror loads one table per call inside a single transaction: it creates
// the table if needed, removes the rows the load replaces, and bulk-inserts
// the new rows. Backends live in subpackages and register a factory for their
// kind at init time; import warehouse/all to enable every built-in kind:
//
//   - "sqlite"   (warehouse/sqlite):   modernc.org/sqlite, pure Go
//   - "postgres" (warehouse/postgres): pgx v5, COPY protocol
//   - "mssql"    (warehouse/mssql):    go-mssqldb, bulk copy
//   - "mysql"    (warehouse/mysql):    go-sql-driver/mysql, batched INSERT
package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"datalake/internal/schema"
)

// Config selects and configures a Mirror.
type Config struct {
	Kind string
	DSN  string
	// Schema optionally qualifies table names (e.g. "public", "dbo").
	Schema string
}

// Scope says which existing rows a load replaces. A nil Partitions slice
// replaces the whole table; otherwise only rows whose year/month match one of
// the listed partitions are removed.
type Scope struct {
	Partitions []schema.Partition
}

// WholeTable replaces every row.
var WholeTable = Scope{}

// Mirror is implemented by every backend.
type Mirror interface {
	// Load replaces the rows of table selected by scope with rows, which hold
	// column values in table.Columns order. It returns the number of rows
	// inserted.
	Load(ctx context.Context, table schema.Table, rows [][]any, scope Scope) (int64, error)
	Close()
}

// Factory opens a Mirror for cfg.
type Factory func(ctx context.Context, cfg Config) (Mirror, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// ListKinds returns the registered kinds, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens the Mirror registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Mirror, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported warehouse.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// Rows converts typed rows into column-ordered value slices.
func Rows[T schema.Row](rows []T) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		out[i] = r.Values()
	}
	return out
}

// PartitionsOf returns the distinct partitions of rows in ascending order.
// Rows that are not schema.Partitioners contribute nothing.
func PartitionsOf[T any](rows []T) []schema.Partition {
	seen := map[schema.Partition]bool{}
	var out []schema.Partition
	for _, r := range rows {
		pr, ok := any(r).(schema.Partitioner)
		if !ok {
			continue
		}
		p := pr.Partition()
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		return out[i].Month < out[j].Month
	})
	return out
}

// Dialect holds the few things that differ between SQL backends.
type Dialect struct {
	// Quote quotes one identifier segment.
	Quote func(string) string
	// Placeholder renders the i-th (1-based) bind parameter.
	Placeholder func(i int) string
	// ColumnType maps a column to its SQL type.
	ColumnType func(schema.Column) string
}

// FQN quotes name, qualifying it with schemaName when set.
func (d Dialect) FQN(schemaName, name string) string {
	if schemaName == "" {
		return d.Quote(name)
	}
	return d.Quote(schemaName) + "." + d.Quote(name)
}

// CreateTable renders the column list and PRIMARY KEY clause of t. Callers
// wrap it in their dialect's "create if missing" form.
func (d Dialect) CreateTable(fqn string, t schema.Table) string {
	cols := make([]string, 0, len(t.Columns)+1)
	var pks []string
	for _, c := range t.Columns {
		def := d.Quote(c.Name) + " " + d.ColumnType(c)
		if c.Key {
			def += " NOT NULL"
			pks = append(pks, d.Quote(c.Name))
		}
		cols = append(cols, def)
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}
	return fmt.Sprintf("%s (\n  %s\n)", fqn, strings.Join(cols, ",\n  "))
}

// Delete renders the statement that removes the rows scope replaces, with
// its arguments. Partitioned scopes produce one statement per partition.
func (d Dialect) Delete(fqn string, t schema.Table, scope Scope) ([]string, [][]any) {
	if scope.Partitions == nil || !t.Partitioned() {
		return []string{"DELETE FROM " + fqn}, [][]any{nil}
	}
	conds := make([]string, len(t.PartitionBy))
	for i, c := range t.PartitionBy {
		conds[i] = fmt.Sprintf("%s = %s", d.Quote(c), d.Placeholder(i+1))
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s", fqn, strings.Join(conds, " AND "))

	stmts := make([]string, 0, len(scope.Partitions))
	args := make([][]any, 0, len(scope.Partitions))
	for _, p := range scope.Partitions {
		stmts = append(stmts, stmt)
		args = append(args, []any{p.Year, p.Month})
	}
	return stmts, args
}

// Insert renders a single-row INSERT for t.
func (d Dialect) Insert(fqn string, t schema.Table) string {
	cols := make([]string, len(t.Columns))
	ph := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = d.Quote(c.Name)
		ph[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", fqn, strings.Join(cols, ", "), strings.Join(ph, ", "))
}

// QuoteDouble quotes an identifier with ANSI double quotes.
func QuoteDouble(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
