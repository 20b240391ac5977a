package transformer

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/zeebo/xxh3"
	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"datalake/internal/schema"
)

// Matcher maps a title to the key the join compares. Two titles match when
// their keys are equal.
//
// Title is the only link between a log event and a catalog song: the logs
// carry no song_id. Any matcher other than the exact one trades precision
// for recall.
type Matcher interface {
	Name() string
	Key(title string) string
}

type exactMatcher struct{}

func (exactMatcher) Name() string            { return "exact" }
func (exactMatcher) Key(title string) string { return title }

// MatchBySongTitle is the default matcher: case-sensitive, whole-string
// equality. "Song A" and "song a" do not match.
var MatchBySongTitle Matcher = exactMatcher{}

type foldedMatcher struct{}

func (foldedMatcher) Name() string { return "folded" }

// Key strips diacritics, case-folds and collapses whitespace, so
// "  Café  del Mar" and "cafe del mar" share a key.
func (foldedMatcher) Key(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	s, _, err := transform.String(t, title)
	if err != nil {
		s = title
	}
	s = cases.Fold().String(s)
	return strings.Join(strings.Fields(s), " ")
}

// FoldedTitle matches titles that differ only in case, accents or spacing.
var FoldedTitle Matcher = foldedMatcher{}

// MatcherByName returns the matcher registered under name ("" = exact).
func MatcherByName(name string) (Matcher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "exact":
		return MatchBySongTitle, nil
	case "folded":
		return FoldedTitle, nil
	default:
		return nil, fmt.Errorf("unknown join matcher %q (want exact or folded)", name)
	}
}

// SongSource supplies the songs dimension to the joiner.
type SongSource interface {
	Songs(ctx context.Context) ([]schema.Song, error)
}

// InMemorySongs serves songs computed earlier in the same run.
type InMemorySongs []schema.Song

func (s InMemorySongs) Songs(context.Context) ([]schema.Song, error) { return s, nil }

// JoinStats counts what the join did with its input plays.
type JoinStats struct {
	Rows      int // songplays emitted
	Matched   int // plays with at least one catalog match
	Unmatched int // plays with a title but no match, or no title
	NoTime    int // plays skipped for lacking a timestamp
}

// Joiner builds the songplays fact table.
type Joiner struct {
	Matcher Matcher
}

// Join inner-joins plays to songs on title under j.Matcher. A play matching
// several songs (duplicate titles) yields one row per song. Plays without a
// timestamp are skipped since songplays is partitioned by it.
func (j Joiner) Join(plays []Play, songs []schema.Song) ([]schema.Songplay, JoinStats) {
	m := j.Matcher
	if m == nil {
		m = MatchBySongTitle
	}

	index := make(map[string][]int, len(songs))
	for i, s := range songs {
		if s.Title == nil {
			continue
		}
		k := m.Key(*s.Title)
		index[k] = append(index[k], i)
	}

	var (
		out []schema.Songplay
		st  JoinStats
	)
	for _, p := range plays {
		if p.When == nil {
			st.NoTime++
			continue
		}
		if !p.Event.Song.Valid {
			st.Unmatched++
			continue
		}
		hits := index[m.Key(p.Event.Song.Value)]
		if len(hits) == 0 {
			st.Unmatched++
			continue
		}
		st.Matched++

		seen := make(map[string]int, len(hits))
		for _, si := range hits {
			s := songs[si]
			sid := ""
			if s.SongID != nil {
				sid = *s.SongID
			}
			out = append(out, schema.Songplay{
				SongplayID: SongplayID(p.Ordinal, sid, seen[sid]),
				StartTime:  p.When.Start,
				UserID:     userRef(p),
				Level:      p.Event.Level.Ptr(),
				SongID:     s.SongID,
				ArtistID:   s.ArtistID,
				SessionID:  p.Event.SessionID.Ptr(),
				Location:   p.Event.Location.Ptr(),
				UserAgent:  p.Event.UserAgent.Ptr(),
				Year:       p.When.Year,
				Month:      p.When.Month,
			})
			seen[sid]++
		}
	}
	st.Rows = len(out)
	return out, st
}

// SongplayID is the surrogate key of a fact row: a hash of the event's input
// position and the matched song id. dup separates repeated matches against
// catalog rows sharing one song id.
func SongplayID(ordinal int, songID string, dup int) string {
	key := fmt.Sprintf("%d\x1f%s", ordinal, songID)
	if dup > 0 {
		key = fmt.Sprintf("%s\x1f%d", key, dup)
	}
	return fmt.Sprintf("%016x", xxh3.HashString(key))
}
