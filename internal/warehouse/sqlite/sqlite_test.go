package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalake/internal/schema"
	"datalake/internal/warehouse"
)

func ptr[T any](v T) *T { return &v }

func openTemp(t *testing.T) *Mirror {
	t.Helper()
	m, err := Open(context.Background(), filepath.Join(t.TempDir(), "dw.db"))
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func count(t *testing.T, m *Mirror, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, m.db.QueryRow(query, args...).Scan(&n))
	return n
}

func plays() []schema.Songplay {
	return []schema.Songplay{
		{SongplayID: "a", StartTime: time.UnixMilli(1541990258796).UTC(), UserID: ptr("10"), SongID: ptr("S1"), Year: 2018, Month: 11},
		{SongplayID: "b", StartTime: time.UnixMilli(1543622400000).UTC(), UserID: ptr("10"), Year: 2018, Month: 12},
	}
}

func TestLoad_CreatesAndReplacesTable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := openTemp(t)

	users := []schema.User{{UserID: "10", FirstName: ptr("Ann")}, {UserID: "11"}}
	n, err := m.Load(ctx, schema.Users, warehouse.Rows(users), warehouse.WholeTable)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = m.Load(ctx, schema.Users, warehouse.Rows(users[:1]), warehouse.WholeTable)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 1, count(t, m, `SELECT COUNT(*) FROM "users"`))

	var first string
	var last *string
	require.NoError(t, m.db.QueryRow(`SELECT "first_name", "last_name" FROM "users" WHERE "user_id" = '10'`).Scan(&first, &last))
	assert.Equal(t, "Ann", first)
	assert.Nil(t, last)
}

func TestLoad_PartitionScope(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := openTemp(t)

	rows := plays()
	_, err := m.Load(ctx, schema.Songplays, warehouse.Rows(rows), warehouse.WholeTable)
	require.NoError(t, err)

	repl := []schema.Songplay{
		{SongplayID: "c", StartTime: time.UnixMilli(1543622401000).UTC(), Year: 2018, Month: 12},
		{SongplayID: "d", StartTime: time.UnixMilli(1543622402000).UTC(), Year: 2018, Month: 12},
	}
	scope := warehouse.Scope{Partitions: warehouse.PartitionsOf(repl)}
	_, err = m.Load(ctx, schema.Songplays, warehouse.Rows(repl), scope)
	require.NoError(t, err)

	assert.Equal(t, 1, count(t, m, `SELECT COUNT(*) FROM "songplays" WHERE "month" = 11`))
	assert.Equal(t, 2, count(t, m, `SELECT COUNT(*) FROM "songplays" WHERE "month" = 12`))
	assert.Equal(t, 0, count(t, m, `SELECT COUNT(*) FROM "songplays" WHERE "songplay_id" = 'b'`))

	var start string
	require.NoError(t, m.db.QueryRow(`SELECT "start_time" FROM "songplays" WHERE "songplay_id" = 'a'`).Scan(&start))
	assert.Equal(t, "2018-11-12T02:37:38.796Z", start)
}

func TestLoad_DuplicateKeyRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := openTemp(t)

	_, err := m.Load(ctx, schema.Users, warehouse.Rows([]schema.User{{UserID: "1"}}), warehouse.WholeTable)
	require.NoError(t, err)

	_, err = m.Load(ctx, schema.Users, warehouse.Rows([]schema.User{{UserID: "2"}, {UserID: "2"}}), warehouse.WholeTable)
	require.Error(t, err)
	assert.Equal(t, 1, count(t, m, `SELECT COUNT(*) FROM "users" WHERE "user_id" = '1'`), "failed load must not clear the table")
}

func TestLoad_RowWidthMismatch(t *testing.T) {
	t.Parallel()
	m := openTemp(t)
	_, err := m.Load(context.Background(), schema.Users, [][]any{{"1", nil}}, warehouse.WholeTable)
	assert.Error(t, err)
}

func TestOpen_EmptyDSN(t *testing.T) {
	t.Parallel()
	_, err := Open(context.Background(), " ")
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	t.Parallel()
	assert.Contains(t, warehouse.ListKinds(), "sqlite")

	m, err := warehouse.New(context.Background(), warehouse.Config{Kind: "sqlite", DSN: filepath.Join(t.TempDir(), "r.db")})
	require.NoError(t, err)
	defer m.Close()
	_, ok := m.(*Mirror)
	assert.True(t, ok)
}
