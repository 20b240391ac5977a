package writer

import (
	"bytes"
	"context"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"datalake/internal/schema"
	"datalake/internal/storage"
)

// ReadTable reads a committed table back. When runID is non-empty the
// manifest must carry it, which proves the table was written by that run.
// Every listed file is verified against its size and xxh3 checksum before
// it is decoded.
func ReadTable[T any](ctx context.Context, s storage.Store, table schema.Table, runID string) ([]T, *Manifest, error) {
	m, err := ReadManifest(ctx, s, table.Name)
	if err != nil {
		return nil, nil, err
	}
	if m.Table != table.Name {
		return nil, nil, fmt.Errorf("%w: manifest of %s names table %q", ErrStaleTable, table.Name, m.Table)
	}
	if runID != "" && m.RunID != runID {
		return nil, nil, fmt.Errorf("%w: %s was written by run %s, want %s", ErrStaleTable, table.Name, m.RunID, runID)
	}

	out := make([]T, 0, m.Rows)
	for _, f := range m.Files {
		key := storage.Join(table.Name, f.Path)
		b, err := storage.ReadAll(ctx, s, key)
		if err != nil {
			return nil, nil, fmt.Errorf("writer: read %s: %w", key, err)
		}
		if int64(len(b)) != f.Size || checksum(b) != f.XXH3 {
			return nil, nil, fmt.Errorf("%w: %s (size %d/%d, xxh3 %s/%s)",
				ErrChecksum, key, len(b), f.Size, checksum(b), f.XXH3)
		}
		rows, err := parquet.Read[T](bytes.NewReader(b), int64(len(b)))
		if err != nil {
			return nil, nil, fmt.Errorf("writer: decode %s: %w", key, err)
		}
		out = append(out, rows...)
	}
	return out, m, nil
}

// StoredSongs reads the songs dimension back from storage. It is the
// SongSource used when the joiner must consume what was persisted rather
// than what was computed.
type StoredSongs struct {
	Store storage.Store
	// RunID, when set, must match the songs manifest.
	RunID string
}

func (s StoredSongs) Songs(ctx context.Context) ([]schema.Song, error) {
	songs, _, err := ReadTable[schema.Song](ctx, s.Store, schema.Songs, s.RunID)
	return songs, err
}
