// Package catalog provides the music catalog domain entities.
package catalog

import (
	"time"

	"gorm.io/datatypes"
)

// LinkType is the kind of catalog entity a link points at.
type LinkType string

const (
	LinkTypeArtist LinkType = "artist"
	LinkTypeAlbum  LinkType = "album"
	LinkTypeTrack  LinkType = "track"
)

// Valid reports whether t is one of the known link types.
func (t LinkType) Valid() bool {
	switch t {
	case LinkTypeArtist, LinkTypeAlbum, LinkTypeTrack:
		return true
	}
	return false
}

// StreamingService identifies the provider a link belongs to.
type StreamingService string

const (
	StreamingServiceSpotify StreamingService = "spotify"
)

// Genre is identified by its name.
type Genre struct {
	Name string `gorm:"primaryKey"`
}

// Artist is a provider artist. Rows are never refreshed after creation.
type Artist struct {
	ID         string `gorm:"primaryKey"` // Provider artist ID
	Name       string `gorm:"not null"`
	Image      string
	Popularity int
	URL        string // Canonical provider URL
	URI        string
	CreatedAt  time.Time

	Genres []string `gorm:"-"`
}

// Album is a provider album, single or compilation.
type Album struct {
	ID                   string `gorm:"primaryKey"` // Provider album ID
	Name                 string `gorm:"not null"`
	Label                string
	Image                string
	Popularity           int
	AlbumType            string
	URL                  string
	URI                  string
	ReleaseDate          datatypes.Date
	ReleaseDatePrecision ReleasePrecision
	CreatedAt            time.Time

	// Artists are ordered by credit position. Index 0 is the primary artist.
	Artists []Artist `gorm:"-"`
	Genres  []string `gorm:"-"`
}

// PrimaryArtist returns the first credited artist, or nil when the album has none loaded.
func (a *Album) PrimaryArtist() *Artist {
	if len(a.Artists) == 0 {
		return nil
	}
	return &a.Artists[0]
}

// Released returns the release date as a UTC time at midnight.
func (a *Album) Released() time.Time {
	return time.Time(a.ReleaseDate).UTC()
}

// Track is a provider track. Every track belongs to exactly one album.
type Track struct {
	ID          string `gorm:"primaryKey"` // Provider track ID
	Name        string `gorm:"not null"`
	TrackNumber int
	DurationMs  int
	Explicit    bool
	Popularity  int
	PreviewURL  string
	URL         string
	URI         string
	AlbumID     string `gorm:"index;not null"`
	CreatedAt   time.Time

	Album   *Album   `gorm:"-"`
	Artists []Artist `gorm:"-"`
}

// Duration returns the track length.
func (t *Track) Duration() time.Duration {
	return time.Duration(t.DurationMs) * time.Millisecond
}

// ArtistGenre attaches a genre to an artist.
type ArtistGenre struct {
	ArtistID  string `gorm:"primaryKey"`
	GenreName string `gorm:"primaryKey"`
}

// AlbumGenre attaches a genre to an album.
type AlbumGenre struct {
	AlbumID   string `gorm:"primaryKey"`
	GenreName string `gorm:"primaryKey"`
}

// AlbumArtist credits an artist on an album at a position.
type AlbumArtist struct {
	AlbumID  string `gorm:"primaryKey"`
	ArtistID string `gorm:"primaryKey"`
	Position int    `gorm:"not null"`
}

// TrackArtist credits an artist on a track at a position.
type TrackArtist struct {
	TrackID  string `gorm:"primaryKey"`
	ArtistID string `gorm:"primaryKey"`
	Position int    `gorm:"not null"`
}

// Link is a canonical provider URL bound to exactly one catalog entity.
// Links are immutable once created.
type Link struct {
	ID               uint             `gorm:"primaryKey"`
	URL              string           `gorm:"uniqueIndex;not null"`
	LinkType         LinkType         `gorm:"not null"`
	StreamingService StreamingService `gorm:"not null;default:spotify"`
	ArtistID         *string          `gorm:"index"`
	AlbumID          *string          `gorm:"index"`
	TrackID          *string          `gorm:"index"`
	CreatedAt        time.Time
}

// EntityID returns the ID of the entity referenced by the link.
func (l *Link) EntityID() string {
	var id *string
	switch l.LinkType {
	case LinkTypeArtist:
		id = l.ArtistID
	case LinkTypeAlbum:
		id = l.AlbumID
	case LinkTypeTrack:
		id = l.TrackID
	}
	if id == nil {
		return ""
	}
	return *id
}

// NewLink builds an unsaved link of the given type referencing entityID.
func NewLink(url string, linkType LinkType, service StreamingService, entityID string) *Link {
	l := &Link{
		URL:              url,
		LinkType:         linkType,
		StreamingService: service,
	}
	ref := entityID
	switch linkType {
	case LinkTypeArtist:
		l.ArtistID = &ref
	case LinkTypeAlbum:
		l.AlbumID = &ref
	case LinkTypeTrack:
		l.TrackID = &ref
	}
	return l
}
