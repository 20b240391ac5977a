package datasource

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	jsonparser "datalake/internal/parser/json"
)

// Stats aggregates decode statistics across sources.
type Stats struct {
	Files   int
	Lines   int
	Decoded int
	Errors  int
}

// DecodeAll decodes every source as NDJSON into T using up to workers
// goroutines. The result keeps source order, then line order, regardless of
// which worker finished first. onParseErr must be safe for concurrent use.
// The first I/O error cancels the remaining work and is returned.
func DecodeAll[T any](
	ctx context.Context,
	srcs []Source,
	workers int,
	onParseErr func(*jsonparser.ParseError),
) ([]T, Stats, error) {
	if workers < 1 {
		workers = 1
	}
	perFile := make([][]T, len(srcs))
	perStats := make([]jsonparser.Stats, len(srcs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, src := range srcs {
		g.Go(func() error {
			rc, err := src.Open(gctx)
			if err != nil {
				return fmt.Errorf("datasource: %w", err)
			}
			defer rc.Close()

			var rows []T
			st, err := jsonparser.Decode(gctx, rc, src.Name(), func(v T) { rows = append(rows, v) }, onParseErr)
			if err != nil {
				return fmt.Errorf("datasource: decode %s: %w", src.Name(), err)
			}
			perFile[i] = rows
			perStats[i] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, Stats{}, err
	}

	total := Stats{Files: len(srcs)}
	n := 0
	for i := range perFile {
		n += len(perFile[i])
		total.Lines += perStats[i].Lines
		total.Decoded += perStats[i].Decoded
		total.Errors += perStats[i].Errors
	}
	out := make([]T, 0, n)
	for _, rows := range perFile {
		out = append(out, rows...)
	}
	return out, total, nil
}
