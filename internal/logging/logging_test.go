package logging

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Tests in this file reconfigure the global logger and must not run in parallel.

func TestInit_JSONAndLevel(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "warn", Output: &buf})
	defer Init(Config{})

	Info().Msg("hidden")
	l := With("writer")
	l.Warn().Str("table", "songs").Msg("writer: shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"component":"writer"`)
	assert.Contains(t, out, `"table":"songs"`)
	assert.Contains(t, out, `"message":"writer: shown"`)
}

func TestInit_Console(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: "debug", Format: "console", Output: &buf})
	defer Init(Config{})

	Debug().Msg("pipeline: step done")
	assert.Contains(t, buf.String(), "pipeline: step done")
	assert.False(t, strings.HasPrefix(buf.String(), "{"))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warning": zerolog.WarnLevel,
		"off":     zerolog.Disabled,
		"bogus":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestAgg(t *testing.T) {
	a := NewAgg(3)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.Add("bad json", fmt.Sprintf("f.json:%d: bad json", i))
		}(i)
	}
	wg.Wait()
	a.Add("not an object", "g.json:1: not an object")

	require.Equal(t, 11, a.Count())
	assert.Len(t, a.First(), 3)

	var buf bytes.Buffer
	l := zerolog.New(&buf)
	a.Log(l, "parse errors")
	out := buf.String()
	assert.Contains(t, out, `"count":11`)
	assert.Contains(t, out, `"most_common":"bad json"`)
	assert.Equal(t, 4, strings.Count(out, "\n"))

	buf.Reset()
	NewAgg(3).Log(l, "nothing")
	assert.Empty(t, buf.String())
}
