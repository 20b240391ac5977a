package transformer

import (
	"strings"
	"time"

	"datalake/internal/records"
	"datalake/internal/schema"
)

// PageNextSong is the page value that marks a song being played. Every
// other page (Home, Login, Logout, Settings, ...) is navigation noise.
const PageNextSong = "NextSong"

// When is a decomposed event timestamp. It is computed once per play and
// shared by the time dimension and the songplays partition keys.
type When struct {
	Start   time.Time // UTC, millisecond precision
	Hour    int64
	Day     int64
	Week    int64 // ISO 8601 week of year
	Month   int64
	Year    int64
	Weekday string
}

// Decompose converts epoch milliseconds into calendar fields observed in loc
// (UTC when nil).
func Decompose(tsMillis int64, loc *time.Location) When {
	if loc == nil {
		loc = time.UTC
	}
	t := time.UnixMilli(tsMillis).In(loc)
	_, week := t.ISOWeek()
	return When{
		Start:   time.UnixMilli(tsMillis).UTC(),
		Hour:    int64(t.Hour()),
		Day:     int64(t.Day()),
		Week:    int64(week),
		Month:   int64(t.Month()),
		Year:    int64(t.Year()),
		Weekday: t.Weekday().String(),
	}
}

// Play is a NextSong event with its decomposed timestamp.
type Play struct {
	// Ordinal is the event's position among all decoded log events.
	Ordinal int
	Event   records.LogEvent
	// When is nil if the event carries no usable ts.
	When *When
}

// FilterPlays keeps NextSong events and decomposes their timestamps.
func FilterPlays(events []records.LogEvent, loc *time.Location) []Play {
	var out []Play
	for i, e := range events {
		if !e.Page.Valid || e.Page.Value != PageNextSong {
			continue
		}
		p := Play{Ordinal: i, Event: e}
		if e.TS.Valid {
			w := Decompose(e.TS.Value, loc)
			p.When = &w
		}
		out = append(out, p)
	}
	return out
}

// userKey is the dedup key of a play; blank user ids are logged-out traffic.
// users.user_id and songplays.user_id both come from here so the fact table
// always joins back to the dimension.
func userKey(p Play) (string, bool) {
	id := strings.TrimSpace(p.Event.UserID.Value)
	if !p.Event.UserID.Valid || id == "" {
		return "", false
	}
	return id, true
}

// userRef is the songplays projection of userKey; nil when the play has no user.
func userRef(p Play) *string {
	id, ok := userKey(p)
	if !ok {
		return nil
	}
	return &id
}

func userScore(p Play) int {
	n := 0
	for _, f := range []records.OptString{p.Event.FirstName, p.Event.LastName, p.Event.Gender, p.Event.Level} {
		if f.Valid && f.Value != "" {
			n++
		}
	}
	return n
}

// ExtractUsers projects one user row per distinct userId under policy. The
// second result counts plays without a userId.
func ExtractUsers(plays []Play, policy Policy) ([]schema.User, int) {
	d := DeDup[Play]{Key: userKey, Score: userScore, Policy: policy}
	winners, unkeyed := d.Apply(plays)

	out := make([]schema.User, 0, len(winners))
	for _, p := range winners {
		id, _ := userKey(p)
		out = append(out, schema.User{
			UserID:    id,
			FirstName: p.Event.FirstName.Ptr(),
			LastName:  p.Event.LastName.Ptr(),
			Gender:    p.Event.Gender.Ptr(),
			Level:     p.Event.Level.Ptr(),
		})
	}
	return out, unkeyed
}

// ExtractTime emits one row per distinct start_time, first occurrence wins.
// Plays without a timestamp contribute nothing.
func ExtractTime(plays []Play) []schema.TimeRow {
	seen := make(map[int64]struct{}, len(plays))
	var out []schema.TimeRow
	for _, p := range plays {
		if p.When == nil {
			continue
		}
		ms := p.When.Start.UnixMilli()
		if _, dup := seen[ms]; dup {
			continue
		}
		seen[ms] = struct{}{}
		out = append(out, schema.TimeRow{
			StartTime: p.When.Start,
			Hour:      p.When.Hour,
			Day:       p.When.Day,
			Week:      p.When.Week,
			Month:     p.When.Month,
			Year:      p.When.Year,
			Weekday:   p.When.Weekday,
		})
	}
	return out
}

// Sessions is the output of ExtractSessions.
type Sessions struct {
	Plays []Play
	Users []schema.User
	Time  []schema.TimeRow

	Events          int
	MissingTS       int
	UsersMissingKey int
}

// SessionOptions configures ExtractSessions.
type SessionOptions struct {
	Location    *time.Location
	UsersPolicy Policy
}

// ExtractSessions runs the session-log steps in order: filter, users, time.
func ExtractSessions(events []records.LogEvent, opt SessionOptions) Sessions {
	plays := FilterPlays(events, opt.Location)
	users, unkeyed := ExtractUsers(plays, opt.UsersPolicy)

	missing := 0
	for _, p := range plays {
		if p.When == nil {
			missing++
		}
	}
	return Sessions{
		Plays:           plays,
		Users:           users,
		Time:            ExtractTime(plays),
		Events:          len(events),
		MissingTS:       missing,
		UsersMissingKey: unkeyed,
	}
}
