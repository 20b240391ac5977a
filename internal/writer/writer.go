// Package writer persists star-schema tables as Parquet on a storage.Store.
//
// Layout, per table:
//
//	<root>/<table>/part-00000.parquet                     unpartitioned
//	<root>/<table>/year=2018/month=11/part-00000.parquet  partitioned
//	<root>/<table>/_MANIFEST.json                         commit marker
//
// A write first removes the old manifest, then replaces data files according
// to the overwrite mode, then writes the new manifest. A table whose manifest
// is missing was not fully written and must not be read.
//
// Rows are sorted by their SortKey before encoding, so the same input always
// yields the same bytes.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/parquet-go/parquet-go"
	"github.com/parquet-go/parquet-go/compress"
	"github.com/rs/zerolog"

	"datalake/internal/logging"
	"datalake/internal/schema"
	"datalake/internal/storage"
)

// OverwriteMode controls which existing files a write replaces.
type OverwriteMode string

const (
	// OverwriteTable replaces the whole table directory.
	OverwriteTable OverwriteMode = "table"
	// OverwritePartition replaces only partitions present in the new rows.
	// Unpartitioned tables behave as OverwriteTable.
	OverwritePartition OverwriteMode = "partition"
)

// Options configures a Writer.
type Options struct {
	RunID       string
	Overwrite   OverwriteMode
	Compression string // snappy (default), zstd or none
	// MaxRowsPerFile splits large partitions; 0 means one file per partition.
	MaxRowsPerFile int
}

// Writer writes tables under a store root.
type Writer struct {
	store storage.Store
	opt   Options
	codec compress.Codec
	log   zerolog.Logger
	now   func() time.Time
}

// New validates opt and returns a Writer.
func New(store storage.Store, opt Options) (*Writer, error) {
	switch opt.Overwrite {
	case "":
		opt.Overwrite = OverwriteTable
	case OverwriteTable, OverwritePartition:
	default:
		return nil, fmt.Errorf("writer: unknown overwrite mode %q", opt.Overwrite)
	}
	codec, name, err := codecFor(opt.Compression)
	if err != nil {
		return nil, err
	}
	opt.Compression = name
	if opt.MaxRowsPerFile < 0 {
		return nil, fmt.Errorf("writer: max rows per file must be >= 0, got %d", opt.MaxRowsPerFile)
	}
	return &Writer{
		store: store,
		opt:   opt,
		codec: codec,
		log:   logging.With("writer"),
		now:   time.Now,
	}, nil
}

func codecFor(name string) (compress.Codec, string, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "snappy":
		return &parquet.Snappy, "snappy", nil
	case "zstd":
		return &parquet.Zstd, "zstd", nil
	case "none", "uncompressed":
		return &parquet.Uncompressed, "none", nil
	default:
		return nil, "", fmt.Errorf("writer: unknown compression %q (want snappy, zstd or none)", name)
	}
}

// Store returns the store the writer writes to.
func (w *Writer) Store() storage.Store { return w.store }

// RunID returns the run id stamped into manifests.
func (w *Writer) RunID() string { return w.opt.RunID }

// Result summarizes one committed table.
type Result struct {
	Table      string
	Rows       int64
	Files      int
	Bytes      int64
	Partitions int
}

type group[T any] struct {
	dir  string // relative to the table directory, "" when unpartitioned
	part schema.Partition
	rows []T
}

// Write persists rows as table and commits it with a manifest.
func Write[T schema.Row](ctx context.Context, w *Writer, table schema.Table, rows []T) (Result, error) {
	started := time.Now()
	res := Result{Table: table.Name}

	sorted := make([]T, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].SortKey() < sorted[j].SortKey() })

	groups, err := partitionRows(table, sorted)
	if err != nil {
		return res, err
	}

	mode := w.opt.Overwrite
	if !table.Partitioned() {
		mode = OverwriteTable
	}

	replaced := make(map[string]bool, len(groups))
	for _, g := range groups {
		replaced[g.dir] = true
	}
	var kept []ManifestFile
	if mode == OverwritePartition {
		kept = w.survivingFiles(ctx, table, replaced)
	}

	// Uncommit before touching data files.
	if err := w.store.Delete(ctx, manifestKey(table.Name)); err != nil {
		return res, fmt.Errorf("writer: uncommit %s: %w", table.Name, err)
	}
	if err := w.clear(ctx, table, mode, replaced); err != nil {
		return res, err
	}

	m := &Manifest{
		RunID:       w.opt.RunID,
		Table:       table.Name,
		Compression: w.opt.Compression,
		Files:       kept,
	}
	for _, k := range kept {
		m.Rows += k.Rows
	}

	for _, g := range groups {
		files, err := writeGroup(ctx, w, table, g)
		if err != nil {
			return res, err
		}
		for _, f := range files {
			m.Files = append(m.Files, f)
			m.Rows += f.Rows
			res.Bytes += f.Size
		}
		res.Files += len(files)
	}
	sort.Slice(m.Files, func(i, j int) bool { return m.Files[i].Path < m.Files[j].Path })

	m.WrittenAt = w.now().UTC()
	if err := writeManifest(ctx, w.store, m); err != nil {
		return res, err
	}

	res.Rows = int64(len(rows))
	if table.Partitioned() {
		res.Partitions = len(groups)
	}
	w.log.Info().
		Str("table", table.Name).
		Int64("rows", res.Rows).
		Int("files", res.Files).
		Int("partitions", res.Partitions).
		Str("size", humanize.Bytes(uint64(res.Bytes))).
		Str("mode", string(mode)).
		Dur("elapsed", time.Since(started)).
		Msg("writer: table committed")
	return res, nil
}

func partitionRows[T schema.Row](table schema.Table, rows []T) ([]group[T], error) {
	if !table.Partitioned() {
		// Always emit one (possibly empty) file so the table carries a schema.
		return []group[T]{{rows: rows}}, nil
	}
	byPart := map[schema.Partition]*group[T]{}
	for _, r := range rows {
		p, ok := any(r).(schema.Partitioner)
		if !ok {
			return nil, fmt.Errorf("writer: %s is partitioned but %T has no partition", table.Name, r)
		}
		part := p.Partition()
		g, ok := byPart[part]
		if !ok {
			g = &group[T]{dir: PartitionDir(part), part: part}
			byPart[part] = g
		}
		g.rows = append(g.rows, r)
	}
	out := make([]group[T], 0, len(byPart))
	for _, g := range byPart {
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].part.Year != out[j].part.Year {
			return out[i].part.Year < out[j].part.Year
		}
		return out[i].part.Month < out[j].part.Month
	})
	return out, nil
}

// PartitionDir renders a Hive-style partition directory. Months are not
// zero-padded.
func PartitionDir(p schema.Partition) string {
	return fmt.Sprintf("year=%d/month=%d", p.Year, p.Month)
}

// survivingFiles returns the previous manifest's entries outside the
// partitions about to be replaced. Without a readable previous manifest the
// files found on disk in untouched partitions are adopted instead.
func (w *Writer) survivingFiles(ctx context.Context, table schema.Table, replaced map[string]bool) []ManifestFile {
	prev, err := ReadManifest(ctx, w.store, table.Name)
	if err != nil {
		w.log.Warn().Err(err).Str("table", table.Name).
			Msg("writer: no previous manifest, adopting files of untouched partitions")
		return w.adoptFiles(ctx, table, replaced)
	}
	var kept []ManifestFile
	for _, f := range prev.Files {
		if !replaced[path.Dir(f.Path)] {
			kept = append(kept, f)
		}
	}
	return kept
}

// adoptFiles lists the Parquet files under untouched partition directories and
// describes them for the new manifest, so the manifest matches what a
// directory-globbing reader sees. Files that do not open as Parquet stay on
// disk unlisted and are logged by path.
func (w *Writer) adoptFiles(ctx context.Context, table schema.Table, replaced map[string]bool) []ManifestFile {
	objs, err := w.store.List(ctx, table.Name)
	if err != nil {
		w.log.Warn().Err(err).Str("table", table.Name).Msg("writer: cannot list untouched partitions")
		return nil
	}
	var adopted []ManifestFile
	for _, o := range objs {
		rel := strings.TrimPrefix(o.Key, table.Name+"/")
		if !strings.HasPrefix(rel, "year=") || !strings.HasSuffix(rel, ".parquet") || replaced[path.Dir(rel)] {
			continue
		}
		b, err := storage.ReadAll(ctx, w.store, o.Key)
		if err != nil {
			w.log.Warn().Err(err).Str("table", table.Name).Str("path", rel).Msg("writer: unlisted file left in place")
			continue
		}
		f, err := parquet.OpenFile(bytes.NewReader(b), int64(len(b)))
		if err != nil {
			w.log.Warn().Err(err).Str("table", table.Name).Str("path", rel).Msg("writer: unlisted file left in place")
			continue
		}
		adopted = append(adopted, ManifestFile{Path: rel, Rows: f.NumRows(), Size: int64(len(b)), XXH3: checksum(b)})
		w.log.Info().Str("table", table.Name).Str("path", rel).Int64("rows", f.NumRows()).Msg("writer: adopted file")
	}
	return adopted
}

func (w *Writer) clear(ctx context.Context, table schema.Table, mode OverwriteMode, replaced map[string]bool) error {
	if mode == OverwriteTable {
		if err := w.store.DeletePrefix(ctx, table.Name); err != nil {
			return fmt.Errorf("writer: overwrite %s: %w", table.Name, err)
		}
		return nil
	}
	dirs := make([]string, 0, len(replaced))
	for d := range replaced {
		dirs = append(dirs, d)
	}
	sort.Strings(dirs)
	for _, d := range dirs {
		if err := w.store.DeletePrefix(ctx, storage.Join(table.Name, d)); err != nil {
			return fmt.Errorf("writer: overwrite %s/%s: %w", table.Name, d, err)
		}
	}
	return nil
}

func writeGroup[T schema.Row](ctx context.Context, w *Writer, table schema.Table, g group[T]) ([]ManifestFile, error) {
	per := w.opt.MaxRowsPerFile
	if per <= 0 || per > len(g.rows) {
		per = len(g.rows)
	}

	var files []ManifestFile
	for i, start := 0, 0; start < len(g.rows) || i == 0; i, start = i+1, start+per {
		end := min(start+per, len(g.rows))
		chunk := g.rows[start:end]

		var buf bytes.Buffer
		pw := parquet.NewGenericWriter[T](&buf, parquet.Compression(w.codec))
		if len(chunk) > 0 {
			if _, err := pw.Write(chunk); err != nil {
				return nil, fmt.Errorf("writer: encode %s: %w", table.Name, err)
			}
		}
		if err := pw.Close(); err != nil {
			return nil, fmt.Errorf("writer: encode %s: %w", table.Name, err)
		}

		rel := storage.Join(g.dir, fmt.Sprintf("part-%05d.parquet", i))
		b := buf.Bytes()
		f := ManifestFile{Path: rel, Rows: int64(len(chunk)), Size: int64(len(b)), XXH3: checksum(b)}
		if err := w.store.Put(ctx, storage.Join(table.Name, rel), bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("writer: write %s/%s: %w", table.Name, rel, err)
		}
		w.log.Debug().
			Str("table", table.Name).
			Str("file", rel).
			Int64("rows", f.Rows).
			Str("size", humanize.Bytes(uint64(f.Size))).
			Msg("writer: file written")
		files = append(files, f)

		if per == 0 {
			break
		}
	}
	return files, nil
}
