package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func valid() *Config {
	c := Default()
	c.Input.SongData = "data/song_data/*/*/*/*.json"
	c.Input.LogData = "data/log_data/*/*/*.json"
	c.Output.Path = "out"
	return &c
}

func TestLoad_DefaultsOnly(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), *cfg)
}

func TestLoad_LayerPrecedence(t *testing.T) {
	path := writeFile(t, "datalake.yaml", `
job: sparkify
input:
  song_data: s3://udacity-dend/song_data/*/*/*/*.json
  log_data: s3://udacity-dend/log_data/*/*/*.json
output:
  path: s3://lake/out
  compression: zstd
  max_rows_per_file: 1000
storage:
  s3:
    region: us-west-2
transform:
  time_zone: America/New_York
`)
	t.Setenv("DATALAKE_OUTPUT__COMPRESSION", "none")
	t.Setenv("DATALAKE_RUNTIME__READER_WORKERS", "8")
	t.Setenv("DATALAKE_STORAGE__S3__USE_PATH_STYLE", "true")

	cfg, err := Load(path, map[string]any{"output.path": "/tmp/lake"})
	require.NoError(t, err)

	assert.Equal(t, "sparkify", cfg.Job)
	assert.Equal(t, "s3://udacity-dend/log_data/*/*/*.json", cfg.Input.LogData)
	assert.Equal(t, "/tmp/lake", cfg.Output.Path, "override beats file")
	assert.Equal(t, "none", cfg.Output.Compression, "env beats file")
	assert.Equal(t, 1000, cfg.Output.MaxRowsPerFile)
	assert.Equal(t, 8, cfg.Runtime.ReaderWorkers)
	assert.True(t, cfg.Storage.S3.UsePathStyle)
	assert.Equal(t, "us-west-2", cfg.Storage.S3.Region)
	assert.Equal(t, "America/New_York", cfg.Transform.TimeZone)
	assert.Equal(t, "keep-last", cfg.Transform.UsersPolicy, "default survives")

	sc := cfg.StorageConfig(cfg.Output.Path)
	assert.Equal(t, "/tmp/lake", sc.URL)
	assert.Equal(t, "us-west-2", sc.S3.Region)
}

func TestLoad_JSONFile(t *testing.T) {
	path := writeFile(t, "datalake.json", `{"join": {"matcher": "folded"}, "warehouse": {"kind": "sqlite", "dsn": "dw.db"}}`)
	cfg, err := Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "folded", cfg.Join.Matcher)
	assert.Equal(t, "sqlite", cfg.Warehouse.Kind)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(writeFile(t, "datalake.toml", "job = 1"), nil)
	assert.ErrorContains(t, err, "unsupported extension")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)

	_, err = Load(writeFile(t, "bad.yaml", "job: [unclosed"), nil)
	assert.Error(t, err)
}

func TestValidate_ValidMinimal(t *testing.T) {
	issues := Validate(valid())
	assert.Empty(t, issues)
	assert.NoError(t, Errors(issues))
}

func TestValidate_TagRules(t *testing.T) {
	cfg := valid()
	cfg.Job = ""
	cfg.Input.LogData = ""
	cfg.Output.Compression = "lz4"
	cfg.Output.Overwrite = "append"
	cfg.Runtime.ReaderWorkers = 0
	cfg.Warehouse.Kind = "postgres"
	cfg.Metrics.Backend = "datadog"

	issues := Validate(cfg)
	for _, want := range []struct{ path, msg string }{
		{"job", "must not be empty"},
		{"input.log_data", "must not be empty"},
		{"output.compression", "must be one of: snappy zstd none"},
		{"output.overwrite", `got "append"`},
		{"runtime.reader_workers", "at least 1"},
		{"warehouse.dsn", "required when kind is set"},
		{"metrics.statsd_addr", "required when backend is datadog"},
	} {
		assert.True(t, hasIssue(t, issues, SeverityError, want.path, want.msg), "missing %s: %s in %+v", want.path, want.msg, issues)
	}
	assert.Error(t, Errors(issues))
}

func TestValidate_Semantic(t *testing.T) {
	cfg := valid()
	cfg.Transform.TimeZone = "Mars/Olympus"
	cfg.Input.SongData = "gs://bucket/songs/*.json"
	cfg.Output.Path = "s3://lake"
	cfg.Join.Matcher = "folded"
	cfg.Metrics.Backend = "prometheus"
	cfg.Metrics.PushgatewayURL = "pushgateway:9091"
	cfg.Warehouse = WarehouseConfig{Kind: "sqlite", DSN: "file::memory:"}

	issues := Validate(cfg)
	assert.True(t, hasIssue(t, issues, SeverityError, "transform.time_zone", "unknown time zone"), "%+v", issues)
	assert.True(t, hasIssue(t, issues, SeverityError, "input.song_data", `scheme "gs"`), "%+v", issues)
	assert.True(t, hasIssue(t, issues, SeverityError, "metrics.pushgateway_url", "invalid URL"), "%+v", issues)
	assert.True(t, hasIssue(t, issues, SeverityWarning, "output.path", "bucket root"), "%+v", issues)
	assert.True(t, hasIssue(t, issues, SeverityWarning, "join.matcher", "false matches"), "%+v", issues)
	assert.True(t, hasIssue(t, issues, SeverityWarning, "warehouse.dsn", "discarded"), "%+v", issues)
}

func TestIssueError(t *testing.T) {
	err := Issue{Severity: SeverityError, Path: "output.path", Message: "must not be empty"}
	assert.Equal(t, "error at output.path: must not be empty", err.Error())
}
