// Package pipeline runs one batch over the song catalog and the listening
// logs and commits the five star-schema tables.
//
// Steps run strictly in order and each blocks until done:
//
//	read_catalog → extract_catalog → write_songs → write_artists →
//	read_logs → extract_sessions → write_users → write_time →
//	join → write_songplays
//
// The catalog stage covers the first four steps and the sessions stage the
// rest. A sessions-only run has no songs in memory and joins against the
// committed songs table instead.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"datalake/internal/config"
	"datalake/internal/datasource"
	"datalake/internal/logging"
	"datalake/internal/metrics"
	jsonparser "datalake/internal/parser/json"
	"datalake/internal/records"
	"datalake/internal/schema"
	"datalake/internal/storage"
	"datalake/internal/transformer"
	"datalake/internal/warehouse"
	"datalake/internal/writer"
)

// Stage selects which half of the pipeline runs.
type Stage string

const (
	StageAll      Stage = "all"
	StageCatalog  Stage = "catalog"
	StageSessions Stage = "sessions"
)

// ParseStage normalizes s; "" means StageAll.
func ParseStage(s string) (Stage, error) {
	switch st := Stage(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StageAll, nil
	case StageAll, StageCatalog, StageSessions:
		return st, nil
	default:
		return "", fmt.Errorf("unknown stage %q (want all, catalog or sessions)", s)
	}
}

func (s Stage) catalog() bool  { return s == StageAll || s == StageCatalog }
func (s Stage) sessions() bool { return s == StageAll || s == StageSessions }

// Options are per-invocation settings that do not belong in the config file.
type Options struct {
	Stage Stage
	// RunID stamps every manifest; a random UUID when empty.
	RunID string
}

// ErrTooManyParseErrors is returned when skipped lines exceed
// input.max_parse_errors.
var ErrTooManyParseErrors = errors.New("pipeline: too many malformed input lines")

// Summary reports what a run did.
type Summary struct {
	RunID string
	Stage Stage

	SongRecords     int
	LogEvents       int
	ParseErrors     int
	Plays           int
	MissingTS       int
	UsersMissingKey int
	Unmatched       int

	Tables   []writer.Result
	Mirrored map[string]int64
	Elapsed  time.Duration
}

// Function variables used as test seams.
var (
	openStoreFn = storage.New
	newMirrorFn = warehouse.New
	newRunIDFn  = uuid.NewString
)

// parseErrSampleLimit is how many malformed lines are logged verbatim per input.
const parseErrSampleLimit = 10

type runner struct {
	cfg *config.Config
	opt Options
	log zerolog.Logger

	out    *writer.Writer
	mirror warehouse.Mirror

	loc     *time.Location
	policy  transformer.Policy
	matcher transformer.Matcher

	songErrs *logging.Agg
	logErrs  *logging.Agg
	sum      *Summary

	songRecs []records.SongRecord
	events   []records.LogEvent
	catalog  transformer.Catalog
	sessions transformer.Sessions
	plays    []schema.Songplay
}

// Run executes the configured stage. cfg must have passed config.Validate.
func Run(ctx context.Context, cfg *config.Config, opt Options) (*Summary, error) {
	started := time.Now()
	if opt.Stage == "" {
		opt.Stage = StageAll
	}
	if opt.RunID == "" {
		opt.RunID = newRunIDFn()
	}

	r := &runner{
		cfg:      cfg,
		opt:      opt,
		log:      logging.With("pipeline").With().Str("job", cfg.Job).Str("run_id", opt.RunID).Logger(),
		songErrs: logging.NewAgg(parseErrSampleLimit),
		logErrs:  logging.NewAgg(parseErrSampleLimit),
		sum:      &Summary{RunID: opt.RunID, Stage: opt.Stage, Mirrored: map[string]int64{}},
	}
	if err := r.init(ctx); err != nil {
		return r.sum, err
	}
	if r.mirror != nil {
		defer r.mirror.Close()
	}

	r.log.Info().
		Str("stage", string(opt.Stage)).
		Str("output", r.out.Store().URL()).
		Str("tz", r.loc.String()).
		Str("matcher", r.matcher.Name()).
		Str("songs_source", r.songsSourceName()).
		Msg("pipeline: run started")

	err := r.run(ctx)

	r.songErrs.Log(r.log, "parse errors song_data")
	r.logErrs.Log(r.log, "parse errors log_data")
	r.sum.Elapsed = time.Since(started)
	r.logSummary(err)
	return r.sum, err
}

func (r *runner) init(ctx context.Context) error {
	loc, err := time.LoadLocation(r.cfg.Transform.TimeZone)
	if err != nil {
		return fmt.Errorf("pipeline: time zone: %w", err)
	}
	r.loc = loc
	if r.policy, err = transformer.ParsePolicy(r.cfg.Transform.UsersPolicy); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	if r.matcher, err = transformer.MatcherByName(r.cfg.Join.Matcher); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	store, err := openStoreFn(ctx, r.cfg.StorageConfig(r.cfg.Output.Path))
	if err != nil {
		return fmt.Errorf("pipeline: open output: %w", err)
	}
	r.out, err = writer.New(store, writer.Options{
		RunID:          r.opt.RunID,
		Overwrite:      writer.OverwriteMode(r.cfg.Output.Overwrite),
		Compression:    r.cfg.Output.Compression,
		MaxRowsPerFile: r.cfg.Output.MaxRowsPerFile,
	})
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	if r.cfg.Warehouse.Kind != "" {
		r.mirror, err = newMirrorFn(ctx, warehouse.Config{
			Kind:   r.cfg.Warehouse.Kind,
			DSN:    r.cfg.Warehouse.DSN,
			Schema: r.cfg.Warehouse.Schema,
		})
		if err != nil {
			return fmt.Errorf("pipeline: open warehouse: %w", err)
		}
	}
	return nil
}

func (r *runner) run(ctx context.Context) error {
	type step struct {
		name string
		fn   func(context.Context) error
	}
	var steps []step
	if r.opt.Stage.catalog() {
		steps = append(steps,
			step{"read_catalog", r.readCatalog},
			step{"extract_catalog", r.extractCatalog},
			step{"write_songs", func(ctx context.Context) error { return writeTable(ctx, r, schema.Songs, r.catalog.Songs) }},
			step{"write_artists", func(ctx context.Context) error { return writeTable(ctx, r, schema.Artists, r.catalog.Artists) }},
		)
	}
	if r.opt.Stage.sessions() {
		steps = append(steps,
			step{"read_logs", r.readLogs},
			step{"extract_sessions", r.extractSessions},
			step{"write_users", func(ctx context.Context) error { return writeTable(ctx, r, schema.Users, r.sessions.Users) }},
			step{"write_time", func(ctx context.Context) error { return writeTable(ctx, r, schema.Time, r.sessions.Time) }},
			step{"join", r.join},
			step{"write_songplays", func(ctx context.Context) error { return writeTable(ctx, r, schema.Songplays, r.plays) }},
		)
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline: %s: %w", s.name, err)
		}
		t0 := time.Now()
		err := s.fn(ctx)
		metrics.RecordStep(r.cfg.Job, s.name, err, time.Since(t0))
		if err != nil {
			return fmt.Errorf("pipeline: %s: %w", s.name, err)
		}
		r.log.Debug().Str("step", s.name).Dur("elapsed", time.Since(t0)).Msg("pipeline: step done")
	}
	return nil
}

// readInput expands loc and decodes every matching file as NDJSON.
func readInput[T any](ctx context.Context, r *runner, loc string, agg *logging.Agg) ([]T, datasource.Stats, error) {
	open := func(ctx context.Context, url string) (storage.Store, error) {
		return openStoreFn(ctx, r.cfg.StorageConfig(url))
	}
	srcs, err := datasource.Expand(ctx, loc, open)
	if err != nil {
		return nil, datasource.Stats{}, err
	}
	if len(srcs) == 0 {
		return nil, datasource.Stats{}, fmt.Errorf("no input files match %s", loc)
	}

	onParseErr := func(pe *jsonparser.ParseError) {
		agg.Add(pe.Err.Error(), pe.Error())
	}
	rows, st, err := datasource.DecodeAll[T](ctx, srcs, r.cfg.Runtime.ReaderWorkers, onParseErr)
	if err != nil {
		return nil, st, err
	}

	r.sum.ParseErrors += st.Errors
	metrics.RecordRow(r.cfg.Job, metrics.KindParseErrors, int64(st.Errors))
	r.log.Info().
		Str("input", loc).
		Int("files", st.Files).
		Int("lines", st.Lines).
		Int("decoded", st.Decoded).
		Int("parse_errors", st.Errors).
		Msg("pipeline: input read")

	if limit := r.cfg.Input.MaxParseErrors; limit > 0 && r.sum.ParseErrors > limit {
		return nil, st, fmt.Errorf("%w: %d skipped, limit %d", ErrTooManyParseErrors, r.sum.ParseErrors, limit)
	}
	return rows, st, nil
}

func (r *runner) readCatalog(ctx context.Context) error {
	recs, _, err := readInput[records.SongRecord](ctx, r, r.cfg.Input.SongData, r.songErrs)
	if err != nil {
		return err
	}
	r.sum.SongRecords = len(recs)
	metrics.RecordRow(r.cfg.Job, metrics.KindSongRecords, int64(len(recs)))
	r.songRecs = recs
	return nil
}

func (r *runner) extractCatalog(context.Context) error {
	r.catalog = transformer.ExtractCatalog(r.songRecs)
	r.songRecs = nil
	return nil
}

func (r *runner) readLogs(ctx context.Context) error {
	events, _, err := readInput[records.LogEvent](ctx, r, r.cfg.Input.LogData, r.logErrs)
	if err != nil {
		return err
	}
	r.sum.LogEvents = len(events)
	metrics.RecordRow(r.cfg.Job, metrics.KindLogEvents, int64(len(events)))
	r.events = events
	return nil
}

func (r *runner) extractSessions(context.Context) error {
	r.sessions = transformer.ExtractSessions(r.events, transformer.SessionOptions{
		Location:    r.loc,
		UsersPolicy: r.policy,
	})
	r.events = nil

	s := r.sessions
	r.sum.Plays = len(s.Plays)
	r.sum.MissingTS = s.MissingTS
	r.sum.UsersMissingKey = s.UsersMissingKey
	metrics.RecordRow(r.cfg.Job, metrics.KindPlays, int64(len(s.Plays)))
	metrics.RecordRow(r.cfg.Job, metrics.KindUsers, int64(len(s.Users)))
	metrics.RecordRow(r.cfg.Job, metrics.KindTime, int64(len(s.Time)))
	metrics.RecordRow(r.cfg.Job, metrics.KindMissingTS, int64(s.MissingTS))
	r.log.Info().
		Int("events", s.Events).
		Int("plays", len(s.Plays)).
		Int("users", len(s.Users)).
		Int("time", len(s.Time)).
		Int("missing_ts", s.MissingTS).
		Int("users_missing_key", s.UsersMissingKey).
		Msg("pipeline: sessions extracted")
	return nil
}

// songSource picks where the joiner reads songs from. A sessions-only run
// never computed songs, so it reads whatever catalog is committed; a full
// run in storage mode must read back the catalog it just wrote.
func (r *runner) songSource() transformer.SongSource {
	switch {
	case !r.opt.Stage.catalog():
		return writer.StoredSongs{Store: r.out.Store()}
	case r.cfg.Join.SongsSource == "storage":
		return writer.StoredSongs{Store: r.out.Store(), RunID: r.opt.RunID}
	default:
		return transformer.InMemorySongs(r.catalog.Songs)
	}
}

func (r *runner) songsSourceName() string {
	if _, ok := r.songSource().(writer.StoredSongs); ok {
		return "storage"
	}
	return "memory"
}

func (r *runner) join(ctx context.Context) error {
	songs, err := r.songSource().Songs(ctx)
	if err != nil {
		return err
	}
	plays, st := transformer.Joiner{Matcher: r.matcher}.Join(r.sessions.Plays, songs)
	r.plays = plays
	r.sum.Unmatched = st.Unmatched
	metrics.RecordRow(r.cfg.Job, metrics.KindSongplays, int64(st.Rows))
	metrics.RecordRow(r.cfg.Job, metrics.KindUnmatched, int64(st.Unmatched))
	r.log.Info().
		Int("songs", len(songs)).
		Int("songplays", st.Rows).
		Int("matched", st.Matched).
		Int("unmatched", st.Unmatched).
		Int("no_time", st.NoTime).
		Msg("pipeline: join done")
	return nil
}

// writeTable commits rows as Parquet, then mirrors them when a warehouse is
// configured. The mirror replaces the same scope the writer replaced.
func writeTable[T schema.Row](ctx context.Context, r *runner, table schema.Table, rows []T) error {
	res, err := writer.Write(ctx, r.out, table, rows)
	if err != nil {
		return err
	}
	r.sum.Tables = append(r.sum.Tables, res)
	metrics.RecordRow(r.cfg.Job, metrics.KindWritten, res.Rows)
	metrics.RecordFiles(r.cfg.Job, table.Name, int64(res.Files))

	if r.mirror == nil {
		return nil
	}
	scope := warehouse.WholeTable
	if table.Partitioned() && writer.OverwriteMode(r.cfg.Output.Overwrite) == writer.OverwritePartition {
		scope.Partitions = warehouse.PartitionsOf(rows)
		if scope.Partitions == nil {
			scope.Partitions = []schema.Partition{}
		}
	}
	n, err := r.mirror.Load(ctx, table, warehouse.Rows(rows), scope)
	if err != nil {
		return fmt.Errorf("mirror %s: %w", table.Name, err)
	}
	r.sum.Mirrored[table.Name] = n
	r.log.Info().Str("table", table.Name).Int64("rows", n).Str("warehouse", r.cfg.Warehouse.Kind).
		Msg("pipeline: table mirrored")
	return nil
}

func (r *runner) logSummary(err error) {
	ev := r.log.Info()
	if err != nil {
		ev = r.log.Error().Err(err)
	}
	rows := zerolog.Dict()
	for _, t := range r.sum.Tables {
		rows.Int64(t.Table, t.Rows)
	}
	ev.
		Str("stage", string(r.sum.Stage)).
		Int("song_records", r.sum.SongRecords).
		Int("log_events", r.sum.LogEvents).
		Int("parse_errors", r.sum.ParseErrors).
		Int("plays", r.sum.Plays).
		Int("missing_ts", r.sum.MissingTS).
		Int("unmatched", r.sum.Unmatched).
		Dict("rows", rows).
		Dur("elapsed", r.sum.Elapsed).
		Msg("pipeline: summary")
}
