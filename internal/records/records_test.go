package records

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogEvent_MixedShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		line string
		want LogEvent
	}{
		{
			name: "numeric user id and string ts",
			line: `{"page":"NextSong","userId":10,"ts":"1541990258796","sessionId":"583"}`,
			want: LogEvent{
				Page:      String("NextSong"),
				UserID:    String("10"),
				TS:        Int64(1541990258796),
				SessionID: Int64(583),
			},
		},
		{
			name: "string user id and numeric ts",
			line: `{"page":"NextSong","userId":"10","ts":1541990258796,"sessionId":583}`,
			want: LogEvent{
				Page:      String("NextSong"),
				UserID:    String("10"),
				TS:        Int64(1541990258796),
				SessionID: Int64(583),
			},
		},
		{
			name: "nulls and blanks",
			line: `{"page":"Home","userId":"","ts":null,"song":null,"sessionId":""}`,
			want: LogEvent{
				Page:   String("Home"),
				UserID: String(""),
			},
		},
		{
			name: "float-encoded ts",
			line: `{"ts":1541990258796.0}`,
			want: LogEvent{TS: Int64(1541990258796)},
		},
		{
			name: "unusable shapes",
			line: `{"ts":"soon","song":{"a":1},"level":true}`,
			want: LogEvent{Level: String("true")},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var got LogEvent
			require.NoError(t, json.Unmarshal([]byte(tt.line), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSongRecord_Decode(t *testing.T) {
	t.Parallel()

	line := `{"num_songs":1,"artist_id":"ARD7TVE1187B99BFB1","artist_latitude":null,` +
		`"artist_longitude":-118.5,"artist_location":"California - LA","artist_name":"Casual",` +
		`"song_id":"SOMZWCG12A8C13C480","title":"I Didn't Mean To","duration":218.93179,"year":0}`

	var got SongRecord
	require.NoError(t, json.Unmarshal([]byte(line), &got))

	assert.Equal(t, String("SOMZWCG12A8C13C480"), got.SongID)
	assert.Equal(t, String("I Didn't Mean To"), got.Title)
	assert.False(t, got.ArtistLatitude.Valid)
	assert.Equal(t, Float64(-118.5), got.ArtistLongitude)
	assert.Equal(t, Int64(0), got.Year)
	assert.Nil(t, got.ArtistLatitude.Ptr())
	require.NotNil(t, got.Duration.Ptr())
	assert.InDelta(t, 218.93179, *got.Duration.Ptr(), 1e-9)
}
