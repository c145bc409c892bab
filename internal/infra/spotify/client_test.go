package spotify

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zmb3/spotify/v2"

	"github.com/osa030/musicbucket/internal/app/resolver"
)

func TestConvertArtist(t *testing.T) {
	a := &spotify.FullArtist{}
	a.ID = "4Z8W4fKeB5YxbusRsdQVPb"
	a.Name = "Radiohead"
	a.URI = "spotify:artist:4Z8W4fKeB5YxbusRsdQVPb"
	a.Popularity = 79
	a.Genres = []string{"alternative rock", "art rock"}
	a.Images = []spotify.Image{{URL: "https://i.scdn.co/image/large"}, {URL: "https://i.scdn.co/image/small"}}

	got := convertArtist(a)

	assert.Equal(t, "4Z8W4fKeB5YxbusRsdQVPb", got.ID)
	assert.Equal(t, "Radiohead", got.Name)
	assert.Equal(t, 79, got.Popularity)
	assert.Equal(t, "https://i.scdn.co/image/large", got.Image)
	assert.Equal(t, "https://open.spotify.com/artist/4Z8W4fKeB5YxbusRsdQVPb", got.URL)
	assert.Equal(t, []string{"alternative rock", "art rock"}, got.Genres)
	assert.NoError(t, resolver.Validate(got))
}

func TestConvertAlbum_KeepsArtistOrder(t *testing.T) {
	a := &spotify.FullAlbum{}
	a.ID = "AL1"
	a.Name = "Collab"
	a.AlbumType = "album"
	a.ReleaseDate = "2020"
	a.ReleaseDatePrecision = "year"
	a.ExternalURLs = map[string]string{"spotify": "https://open.spotify.com/album/AL1"}
	a.Artists = []spotify.SimpleArtist{{ID: "B", Name: "Second Listed First"}, {ID: "A", Name: "Other"}}

	got := convertAlbum(a)

	require.Len(t, got.Artists, 2)
	assert.Equal(t, "B", got.Artists[0].ID)
	assert.Equal(t, "A", got.Artists[1].ID)
	assert.Equal(t, "2020", got.ReleaseDate)
	assert.Equal(t, "year", got.ReleaseDatePrecision)
	assert.Equal(t, "https://open.spotify.com/album/AL1", got.URL)
	assert.Empty(t, got.Image)
	assert.NoError(t, resolver.Validate(got))
}

func TestConvertTrack(t *testing.T) {
	tr := &spotify.FullTrack{}
	tr.ID = "T1"
	tr.Name = "Song"
	tr.TrackNumber = 3
	tr.Duration = 215000
	tr.Explicit = true
	tr.PreviewURL = "https://p.scdn.co/mp3-preview/x"
	tr.Popularity = 55
	tr.Album.ID = "AL1"
	tr.Album.Name = "Album"
	tr.Album.ReleaseDate = "2019-11"
	tr.Album.ReleaseDatePrecision = "month"
	tr.Artists = []spotify.SimpleArtist{{ID: "A", Name: "Artist"}}

	got := convertTrack(tr)

	assert.Equal(t, "T1", got.ID)
	assert.Equal(t, 3, got.TrackNumber)
	assert.Equal(t, 215000, got.DurationMs)
	assert.True(t, got.Explicit)
	assert.Equal(t, 55, got.Popularity)
	assert.Equal(t, "AL1", got.Album.ID)
	assert.Equal(t, "2019-11", got.Album.ReleaseDate)
	assert.Equal(t, "https://open.spotify.com/track/T1", got.URL)
	require.Len(t, got.Artists, 1)
	assert.Equal(t, "A", got.Artists[0].ID)
	assert.NoError(t, resolver.Validate(got))
}

func TestParseAlbumGroups(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []spotify.AlbumType
	}{
		{
			name:     "default groups",
			input:    nil,
			expected: []spotify.AlbumType{spotify.AlbumTypeAlbum, spotify.AlbumTypeSingle},
		},
		{
			name:     "all groups",
			input:    []string{"album", "single", "appears_on", "compilation"},
			expected: []spotify.AlbumType{spotify.AlbumTypeAlbum, spotify.AlbumTypeSingle, spotify.AlbumTypeAppearsOn, spotify.AlbumTypeCompilation},
		},
		{
			name:     "unknown groups ignored",
			input:    []string{"Album", "mixtape"},
			expected: []spotify.AlbumType{spotify.AlbumTypeAlbum},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseAlbumGroups(tt.input))
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil error", err: nil, expected: false},
		{name: "api rate limit", err: spotify.Error{Status: 429, Message: "API rate limit exceeded"}, expected: true},
		{name: "api server error", err: spotify.Error{Status: 502, Message: "Bad gateway"}, expected: true},
		{name: "api not found", err: spotify.Error{Status: 404, Message: "non existing id"}, expected: false},
		{name: "plain 503 text", err: errors.New("503 Service Unavailable"), expected: true},
		{name: "plain invalid id", err: errors.New("invalid id"), expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isRetryable(tt.err))
		})
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(t.Context(), Config{ClientID: "id"})
	assert.Error(t, err)
}
