package logging

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Agg aggregates repeated per-row diagnostics: it keeps the first Limit
// messages verbatim and a count per message bucket. Safe for concurrent use.
type Agg struct {
	mu      sync.Mutex
	limit   int
	count   int
	first   []string
	buckets map[string]int
}

// NewAgg returns an Agg that keeps the first limit messages.
func NewAgg(limit int) *Agg {
	return &Agg{limit: limit, buckets: make(map[string]int)}
}

// Add records one occurrence. bucket groups similar messages (e.g. the error
// text without its file:line prefix); msg is the full message.
func (a *Agg) Add(bucket, msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buckets[bucket]++
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
}

// Count returns the total number of occurrences.
func (a *Agg) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// First returns a copy of the retained messages.
func (a *Agg) First() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.first...)
}

// Log writes one summary line and the retained messages at warn level. It is
// a no-op when nothing was recorded.
func (a *Agg) Log(l zerolog.Logger, what string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.count == 0 {
		return
	}
	keys := make([]string, 0, len(a.buckets))
	for k := range a.buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return a.buckets[keys[i]] > a.buckets[keys[j]] })
	top := keys[0]

	l.Warn().
		Int("count", a.count).
		Int("kinds", len(a.buckets)).
		Str("most_common", top).
		Int("most_common_count", a.buckets[top]).
		Msgf("%s: summary", what)
	for _, m := range a.first {
		l.Warn().Msgf("%s: %s", what, m)
	}
}
