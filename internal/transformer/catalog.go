// Package transformer holds the pure, in-memory transformations that turn
// decoded input records into star-schema rows:
//
//   - ExtractCatalog projects the songs and artists dimensions from the song
//     catalog.
//   - FilterPlays, ExtractUsers and ExtractTime derive the users and time
//     dimensions from the session logs.
//   - Joiner reconstructs the songplays fact table by matching play events
//     to catalog songs on title.
//
// Nothing in this package performs I/O; every function is deterministic in
// its input order.
package transformer

import (
	"datalake/internal/records"
	"datalake/internal/schema"
)

// Catalog is the output of ExtractCatalog.
type Catalog struct {
	Songs   []schema.Song
	Artists []schema.Artist
}

// ExtractCatalog emits exactly one Song and one Artist per input record, in
// input order. Missing fields become nulls; nothing is filtered or deduped.
func ExtractCatalog(recs []records.SongRecord) Catalog {
	c := Catalog{
		Songs:   make([]schema.Song, 0, len(recs)),
		Artists: make([]schema.Artist, 0, len(recs)),
	}
	for _, r := range recs {
		c.Songs = append(c.Songs, schema.Song{
			SongID:   r.SongID.Ptr(),
			Title:    r.Title.Ptr(),
			ArtistID: r.ArtistID.Ptr(),
			Year:     r.Year.Ptr(),
			Duration: r.Duration.Ptr(),
		})
		c.Artists = append(c.Artists, schema.Artist{
			ArtistID:  r.ArtistID.Ptr(),
			Name:      r.ArtistName.Ptr(),
			Location:  r.ArtistLocation.Ptr(),
			Latitude:  r.ArtistLatitude.Ptr(),
			Longitude: r.ArtistLongitude.Ptr(),
		})
	}
	return c
}
