package writer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"

	"datalake/internal/storage"
)

// ManifestName is the commit marker written last into every table directory.
const ManifestName = "_MANIFEST.json"

var (
	// ErrStaleTable means a table has no manifest, or one from another run.
	ErrStaleTable = errors.New("writer: table not committed by this run")
	// ErrChecksum means a data file does not match its manifest entry.
	ErrChecksum = errors.New("writer: checksum mismatch")
)

// Manifest lists the committed files of one table.
type Manifest struct {
	RunID       string         `json:"run_id"`
	Table       string         `json:"table"`
	Rows        int64          `json:"rows"`
	Compression string         `json:"compression"`
	WrittenAt   time.Time      `json:"written_at"`
	Files       []ManifestFile `json:"files"`
}

// ManifestFile is one data file, keyed relative to the table directory.
type ManifestFile struct {
	Path string `json:"path"`
	Rows int64  `json:"rows"`
	Size int64  `json:"size"`
	XXH3 string `json:"xxh3"`
}

func checksum(b []byte) string { return fmt.Sprintf("%016x", xxh3.Hash(b)) }

func manifestKey(table string) string { return storage.Join(table, ManifestName) }

// ReadManifest loads the manifest of table. A missing manifest wraps
// ErrStaleTable.
func ReadManifest(ctx context.Context, s storage.Store, table string) (*Manifest, error) {
	b, err := storage.ReadAll(ctx, s, manifestKey(table))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s has no %s", ErrStaleTable, table, ManifestName)
		}
		return nil, fmt.Errorf("writer: read manifest %s: %w", table, err)
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("writer: decode manifest %s: %w", table, err)
	}
	return &m, nil
}

func writeManifest(ctx context.Context, s storage.Store, m *Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("writer: encode manifest %s: %w", m.Table, err)
	}
	if err := s.Put(ctx, manifestKey(m.Table), bytes.NewReader(b)); err != nil {
		return fmt.Errorf("writer: commit %s: %w", m.Table, err)
	}
	return nil
}
