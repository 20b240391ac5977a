package schema

import (
	"fmt"
	"time"
)

// Song is a row of the songs dimension.
type Song struct {
	SongID   *string  `parquet:"song_id,optional"`
	Title    *string  `parquet:"title,optional"`
	ArtistID *string  `parquet:"artist_id,optional"`
	Year     *int64   `parquet:"year,optional"`
	Duration *float64 `parquet:"duration,optional"`
}

func (r Song) Values() []any {
	return []any{val(r.SongID), val(r.Title), val(r.ArtistID), val(r.Year), val(r.Duration)}
}

func (r Song) SortKey() string { return key(r.SongID, r.Title, r.ArtistID) }

// Artist is a row of the artists dimension.
type Artist struct {
	ArtistID  *string  `parquet:"artist_id,optional"`
	Name      *string  `parquet:"name,optional"`
	Location  *string  `parquet:"location,optional"`
	Latitude  *float64 `parquet:"latitude,optional"`
	Longitude *float64 `parquet:"longitude,optional"`
}

func (r Artist) Values() []any {
	return []any{val(r.ArtistID), val(r.Name), val(r.Location), val(r.Latitude), val(r.Longitude)}
}

func (r Artist) SortKey() string { return key(r.ArtistID, r.Name, r.Location) }

// User is a row of the users dimension.
type User struct {
	UserID    string  `parquet:"user_id"`
	FirstName *string `parquet:"first_name,optional"`
	LastName  *string `parquet:"last_name,optional"`
	Gender    *string `parquet:"gender,optional"`
	Level     *string `parquet:"level,optional"`
}

func (r User) Values() []any {
	return []any{r.UserID, val(r.FirstName), val(r.LastName), val(r.Gender), val(r.Level)}
}

func (r User) SortKey() string { return r.UserID }

// TimeRow is a row of the time dimension.
type TimeRow struct {
	StartTime time.Time `parquet:"start_time,timestamp(millisecond)"`
	Hour      int64     `parquet:"hour"`
	Day       int64     `parquet:"day"`
	Week      int64     `parquet:"week"`
	Month     int64     `parquet:"month"`
	Year      int64     `parquet:"year"`
	Weekday   string    `parquet:"weekday"`
}

func (r TimeRow) Values() []any {
	return []any{toUTC(r.StartTime), r.Hour, r.Day, r.Week, r.Month, r.Year, r.Weekday}
}

func (r TimeRow) SortKey() string { return fmt.Sprintf("%020d", r.StartTime.UnixMilli()) }

func (r TimeRow) Partition() Partition { return Partition{Year: r.Year, Month: r.Month} }

// Songplay is a row of the songplays fact table.
type Songplay struct {
	SongplayID string    `parquet:"songplay_id"`
	StartTime  time.Time `parquet:"start_time,timestamp(millisecond)"`
	UserID     *string   `parquet:"user_id,optional"`
	Level      *string   `parquet:"level,optional"`
	SongID     *string   `parquet:"song_id,optional"`
	ArtistID   *string   `parquet:"artist_id,optional"`
	SessionID  *int64    `parquet:"session_id,optional"`
	Location   *string   `parquet:"location,optional"`
	UserAgent  *string   `parquet:"user_agent,optional"`
	Year       int64     `parquet:"year"`
	Month      int64     `parquet:"month"`
}

func (r Songplay) Values() []any {
	return []any{
		r.SongplayID, toUTC(r.StartTime), val(r.UserID), val(r.Level), val(r.SongID),
		val(r.ArtistID), val(r.SessionID), val(r.Location), val(r.UserAgent), r.Year, r.Month,
	}
}

func (r Songplay) SortKey() string {
	return fmt.Sprintf("%020d\x1f%s", r.StartTime.UnixMilli(), r.SongplayID)
}

func (r Songplay) Partition() Partition { return Partition{Year: r.Year, Month: r.Month} }

func val[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func key(parts ...*string) string {
	var b []byte
	for i, p := range parts {
		if i > 0 {
			b = append(b, '\x1f')
		}
		if p == nil {
			b = append(b, '\x00')
			continue
		}
		b = append(b, *p...)
	}
	return string(b)
}
