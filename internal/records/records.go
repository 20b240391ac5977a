package records

// SongRecord is one line of the song catalog (song_data).
type SongRecord struct {
	SongID          OptString  `json:"song_id"`
	Title           OptString  `json:"title"`
	ArtistID        OptString  `json:"artist_id"`
	ArtistName      OptString  `json:"artist_name"`
	ArtistLocation  OptString  `json:"artist_location"`
	ArtistLatitude  OptFloat64 `json:"artist_latitude"`
	ArtistLongitude OptFloat64 `json:"artist_longitude"`
	Year            OptInt64   `json:"year"`
	Duration        OptFloat64 `json:"duration"`
}

// LogEvent is one line of the session logs (log_data). Fields the pipeline
// does not project (artist, auth, itemInSession, ...) are ignored on decode.
type LogEvent struct {
	Page      OptString `json:"page"`
	TS        OptInt64  `json:"ts"`
	UserID    OptString `json:"userId"`
	FirstName OptString `json:"firstName"`
	LastName  OptString `json:"lastName"`
	Gender    OptString `json:"gender"`
	Level     OptString `json:"level"`
	Song      OptString `json:"song"`
	SessionID OptInt64  `json:"sessionId"`
	Location  OptString `json:"location"`
	UserAgent OptString `json:"userAgent"`
}
