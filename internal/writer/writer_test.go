package writer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datalake/internal/schema"
	"datalake/internal/storage"
	"datalake/internal/storage/file"
)

func ptr[T any](v T) *T { return &v }

func newWriter(tb testing.TB, dir string, opt Options) *Writer {
	tb.Helper()
	s, err := file.New(dir)
	require.NoError(tb, err)
	if opt.RunID == "" {
		opt.RunID = "run-1"
	}
	w, err := New(s, opt)
	require.NoError(tb, err)
	w.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	return w
}

func listKeys(tb testing.TB, s storage.Store, prefix string) []string {
	tb.Helper()
	objs, err := s.List(context.Background(), prefix)
	require.NoError(tb, err)
	out := make([]string, len(objs))
	for i, o := range objs {
		out[i] = o.Key
	}
	return out
}

func songs() []schema.Song {
	return []schema.Song{
		{SongID: ptr("S2"), Title: ptr("Song B"), ArtistID: ptr("AR2"), Year: ptr(int64(0)), Duration: ptr(1.5)},
		{SongID: ptr("S1"), Title: ptr("Song A"), ArtistID: ptr("AR1")},
		{Title: ptr("no id")},
	}
}

func play(id string, ms int64, year, month int64) schema.Songplay {
	return schema.Songplay{
		SongplayID: id,
		StartTime:  time.UnixMilli(ms).UTC(),
		UserID:     ptr("10"),
		SongID:     ptr("S1"),
		SessionID:  ptr(int64(583)),
		Year:       year,
		Month:      month,
	}
}

func TestWrite_UnpartitionedRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w := newWriter(t, t.TempDir(), Options{})

	res, err := Write(ctx, w, schema.Songs, songs())
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Rows)
	assert.Equal(t, 1, res.Files)
	assert.Equal(t, []string{"songs/_MANIFEST.json", "songs/part-00000.parquet"}, listKeys(t, w.Store(), "songs"))

	got, m, err := ReadTable[schema.Song](ctx, w.Store(), schema.Songs, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", m.RunID)
	assert.Equal(t, "snappy", m.Compression)
	assert.Equal(t, int64(3), m.Rows)
	require.Len(t, got, 3)

	// Sorted by song id, nulls first.
	assert.Nil(t, got[0].SongID)
	assert.Equal(t, "S1", *got[1].SongID)
	assert.Nil(t, got[1].Year)
	assert.Equal(t, "S2", *got[2].SongID)
	assert.Equal(t, int64(0), *got[2].Year)
	assert.InDelta(t, 1.5, *got[2].Duration, 1e-9)
}

func TestWrite_PartitionedLayout(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w := newWriter(t, t.TempDir(), Options{MaxRowsPerFile: 2, Compression: "zstd"})

	rows := []schema.Songplay{
		play("c", 1541990258796, 2018, 11),
		play("a", 1541990258000, 2018, 11),
		play("b", 1541990259000, 2018, 11),
		play("d", 1543622400000, 2018, 12),
	}
	res, err := Write(ctx, w, schema.Songplays, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Partitions)
	assert.Equal(t, 3, res.Files)
	assert.Equal(t, []string{
		"songplays/_MANIFEST.json",
		"songplays/year=2018/month=11/part-00000.parquet",
		"songplays/year=2018/month=11/part-00001.parquet",
		"songplays/year=2018/month=12/part-00000.parquet",
	}, listKeys(t, w.Store(), "songplays"))

	got, m, err := ReadTable[schema.Songplay](ctx, w.Store(), schema.Songplays, "")
	require.NoError(t, err)
	assert.Equal(t, "zstd", m.Compression)
	require.Len(t, got, 4)
	ids := []string{}
	for _, r := range got {
		ids = append(ids, r.SongplayID)
	}
	assert.Equal(t, []string{"a", "c", "b", "d"}, ids)
	assert.Equal(t, int64(1541990258796), got[1].StartTime.UnixMilli())
	assert.Equal(t, int64(583), *got[1].SessionID)
	assert.Nil(t, got[1].Level)
}

func TestWrite_Idempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dirA, dirB := t.TempDir(), t.TempDir()

	rows := []schema.TimeRow{
		{StartTime: time.UnixMilli(1541990258796).UTC(), Hour: 2, Day: 12, Week: 46, Month: 11, Year: 2018, Weekday: "Monday"},
		{StartTime: time.UnixMilli(1541990000000).UTC(), Hour: 2, Day: 12, Week: 46, Month: 11, Year: 2018, Weekday: "Monday"},
	}
	reversed := []schema.TimeRow{rows[1], rows[0]}

	_, err := Write(ctx, newWriter(t, dirA, Options{}), schema.Time, rows)
	require.NoError(t, err)
	_, err = Write(ctx, newWriter(t, dirB, Options{RunID: "run-2"}), schema.Time, reversed)
	require.NoError(t, err)

	rel := filepath.Join("time", "year=2018", "month=11", "part-00000.parquet")
	a, err := os.ReadFile(filepath.Join(dirA, rel))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(dirB, rel))
	require.NoError(t, err)
	assert.Equal(t, a, b, "same rows in any order must encode to the same bytes")
}

func TestWrite_TableOverwriteRemovesStaleFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	w := newWriter(t, dir, Options{})
	_, err := Write(ctx, w, schema.Songplays, []schema.Songplay{play("a", 1541990258796, 2018, 11)})
	require.NoError(t, err)

	w2 := newWriter(t, dir, Options{RunID: "run-2"})
	_, err = Write(ctx, w2, schema.Songplays, []schema.Songplay{play("d", 1543622400000, 2018, 12)})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"songplays/_MANIFEST.json",
		"songplays/year=2018/month=12/part-00000.parquet",
	}, listKeys(t, w2.Store(), "songplays"))
}

func TestWrite_PartitionOverwriteKeepsOtherPartitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	w := newWriter(t, dir, Options{Overwrite: OverwritePartition})
	_, err := Write(ctx, w, schema.Songplays, []schema.Songplay{
		play("a", 1541990258796, 2018, 11),
		play("d", 1543622400000, 2018, 12),
	})
	require.NoError(t, err)

	w2 := newWriter(t, dir, Options{Overwrite: OverwritePartition, RunID: "run-2"})
	_, err = Write(ctx, w2, schema.Songplays, []schema.Songplay{
		play("e", 1543622401000, 2018, 12),
		play("f", 1543622402000, 2018, 12),
	})
	require.NoError(t, err)

	got, m, err := ReadTable[schema.Songplay](ctx, w2.Store(), schema.Songplays, "run-2")
	require.NoError(t, err)
	assert.Equal(t, int64(3), m.Rows)
	ids := []string{}
	for _, r := range got {
		ids = append(ids, r.SongplayID)
	}
	assert.Equal(t, []string{"a", "e", "f"}, ids)
}

func TestWrite_PartitionOverwriteWithoutManifestAdoptsFiles(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()

	w := newWriter(t, dir, Options{Overwrite: OverwritePartition})
	_, err := Write(ctx, w, schema.Songplays, []schema.Songplay{
		play("a", 1541990258796, 2018, 11),
		play("d", 1543622400000, 2018, 12),
	})
	require.NoError(t, err)
	require.NoError(t, os.Remove(filepath.Join(dir, "songplays", ManifestName)))
	junk := filepath.Join(dir, "songplays", "year=2018", "month=10", "part-00000.parquet")
	require.NoError(t, os.MkdirAll(filepath.Dir(junk), 0o755))
	require.NoError(t, os.WriteFile(junk, []byte("not parquet"), 0o644))

	w2 := newWriter(t, dir, Options{Overwrite: OverwritePartition, RunID: "run-2"})
	_, err = Write(ctx, w2, schema.Songplays, []schema.Songplay{
		play("e", 1543622401000, 2018, 12),
	})
	require.NoError(t, err)

	got, m, err := ReadTable[schema.Songplay](ctx, w2.Store(), schema.Songplays, "run-2")
	require.NoError(t, err)
	assert.Equal(t, int64(2), m.Rows)
	paths := []string{}
	for _, f := range m.Files {
		paths = append(paths, f.Path)
	}
	assert.Equal(t, []string{
		"year=2018/month=11/part-00000.parquet",
		"year=2018/month=12/part-00000.parquet",
	}, paths)
	ids := []string{}
	for _, r := range got {
		ids = append(ids, r.SongplayID)
	}
	assert.Equal(t, []string{"a", "e"}, ids)

	_, err = os.Stat(junk)
	assert.NoError(t, err, "unreadable files are left in place")
}

func TestWrite_EmptyTablesCommit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w := newWriter(t, t.TempDir(), Options{})

	_, err := Write(ctx, w, schema.Songplays, []schema.Songplay{})
	require.NoError(t, err)
	got, m, err := ReadTable[schema.Songplay](ctx, w.Store(), schema.Songplays, "run-1")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, m.Files)

	_, err = Write(ctx, w, schema.Users, []schema.User(nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"users/_MANIFEST.json", "users/part-00000.parquet"}, listKeys(t, w.Store(), "users"))
	users, _, err := ReadTable[schema.User](ctx, w.Store(), schema.Users, "run-1")
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestReadTable_StaleAndCorrupt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	w := newWriter(t, dir, Options{})

	_, _, err := ReadTable[schema.Song](ctx, w.Store(), schema.Songs, "")
	assert.True(t, errors.Is(err, ErrStaleTable), "missing table: %v", err)

	_, err = Write(ctx, w, schema.Songs, songs())
	require.NoError(t, err)

	_, err = StoredSongs{Store: w.Store(), RunID: "other-run"}.Songs(ctx)
	assert.True(t, errors.Is(err, ErrStaleTable), "run mismatch: %v", err)

	got, err := StoredSongs{Store: w.Store(), RunID: "run-1"}.Songs(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 3)

	p := filepath.Join(dir, "songs", "part-00000.parquet")
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	b[len(b)/2] ^= 0xff
	require.NoError(t, os.WriteFile(p, b, 0o644))

	_, _, err = ReadTable[schema.Song](ctx, w.Store(), schema.Songs, "run-1")
	assert.True(t, errors.Is(err, ErrChecksum), "corrupt file: %v", err)
}

func TestNew_RejectsBadOptions(t *testing.T) {
	t.Parallel()

	s, err := file.New(t.TempDir())
	require.NoError(t, err)
	_, err = New(s, Options{Compression: "lz5"})
	assert.Error(t, err)
	_, err = New(s, Options{Overwrite: "append"})
	assert.Error(t, err)
	_, err = New(s, Options{MaxRowsPerFile: -1})
	assert.Error(t, err)
}

func TestPartitionDir(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "year=2018/month=1", PartitionDir(schema.Partition{Year: 2018, Month: 1}))
}
