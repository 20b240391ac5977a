// Package schema declares the five output tables of the star schema: their
// ordered columns, semantic types, partition columns, and the typed row
// structs the writer encodes.
//
// The declarations here are the single source of truth for column names. The
// Parquet writer derives its physical schema from the row structs' parquet
// tags, and the SQL mirrors derive DDL and INSERT column lists from Table.
// schema_test.go asserts the two agree.
package schema

import "time"

// Type is the semantic type of a column.
type Type string

const (
	TypeString    Type = "string"
	TypeInt       Type = "int"
	TypeFloat     Type = "float"
	TypeTimestamp Type = "timestamp"
)

// Column is one output column.
type Column struct {
	Name string
	Type Type
	// Key marks a column whose uniqueness the pipeline enforces. Key columns
	// become the PRIMARY KEY of SQL mirrors.
	Key bool
}

// Table describes one output table.
type Table struct {
	Name        string
	Columns     []Column
	PartitionBy []string
}

// Partitioned reports whether the table is written as year=/month= partitions.
func (t Table) Partitioned() bool { return len(t.PartitionBy) > 0 }

// ColumnNames returns the column names in declared order.
func (t Table) ColumnNames() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// KeyColumns returns the names of the natural key columns.
func (t Table) KeyColumns() []string {
	var out []string
	for _, c := range t.Columns {
		if c.Key {
			out = append(out, c.Name)
		}
	}
	return out
}

var (
	Songs = Table{
		Name: "songs",
		Columns: []Column{
			{Name: "song_id", Type: TypeString},
			{Name: "title", Type: TypeString},
			{Name: "artist_id", Type: TypeString},
			{Name: "year", Type: TypeInt},
			{Name: "duration", Type: TypeFloat},
		},
	}

	Artists = Table{
		Name: "artists",
		Columns: []Column{
			{Name: "artist_id", Type: TypeString},
			{Name: "name", Type: TypeString},
			{Name: "location", Type: TypeString},
			{Name: "latitude", Type: TypeFloat},
			{Name: "longitude", Type: TypeFloat},
		},
	}

	Users = Table{
		Name: "users",
		Columns: []Column{
			{Name: "user_id", Type: TypeString, Key: true},
			{Name: "first_name", Type: TypeString},
			{Name: "last_name", Type: TypeString},
			{Name: "gender", Type: TypeString},
			{Name: "level", Type: TypeString},
		},
	}

	Time = Table{
		Name: "time",
		Columns: []Column{
			{Name: "start_time", Type: TypeTimestamp, Key: true},
			{Name: "hour", Type: TypeInt},
			{Name: "day", Type: TypeInt},
			{Name: "week", Type: TypeInt},
			{Name: "month", Type: TypeInt},
			{Name: "year", Type: TypeInt},
			{Name: "weekday", Type: TypeString},
		},
		PartitionBy: []string{"year", "month"},
	}

	Songplays = Table{
		Name: "songplays",
		Columns: []Column{
			{Name: "songplay_id", Type: TypeString, Key: true},
			{Name: "start_time", Type: TypeTimestamp},
			{Name: "user_id", Type: TypeString},
			{Name: "level", Type: TypeString},
			{Name: "song_id", Type: TypeString},
			{Name: "artist_id", Type: TypeString},
			{Name: "session_id", Type: TypeInt},
			{Name: "location", Type: TypeString},
			{Name: "user_agent", Type: TypeString},
			{Name: "year", Type: TypeInt},
			{Name: "month", Type: TypeInt},
		},
		PartitionBy: []string{"year", "month"},
	}
)

// All lists the tables in write order.
func All() []Table { return []Table{Songs, Artists, Users, Time, Songplays} }

// Lookup returns the table with the given name.
func Lookup(name string) (Table, bool) {
	for _, t := range All() {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Row is implemented by every row struct.
type Row interface {
	// Values returns the column values in declared order; nulls are nil.
	Values() []any
	// SortKey orders rows deterministically before encoding.
	SortKey() string
}

// Partition identifies one year=/month= partition.
type Partition struct {
	Year  int64
	Month int64
}

// Partitioner is implemented by rows of partitioned tables.
type Partitioner interface {
	Partition() Partition
}

// Timestamps are stored at millisecond precision in UTC.
func toUTC(t time.Time) time.Time { return t.UTC().Truncate(time.Millisecond) }
