// Package resolver defines the typed boundary to the metadata provider.
package resolver

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/go-playground/validator/v10"
)

// ErrResolutionFailed marks any failure to obtain or accept provider metadata.
var ErrResolutionFailed = errors.New("resolution failed")

// Resolver fetches provider metadata, one call per entity.
// Implementations do not cache and leave retry policy to their transport.
type Resolver interface {
	Artist(ctx context.Context, id string) (*ArtistPayload, error)
	Album(ctx context.Context, id string) (*AlbumPayload, error)
	Track(ctx context.Context, id string) (*TrackPayload, error)
	// ArtistAlbums returns the artist's discography as album references.
	ArtistAlbums(ctx context.Context, id string) ([]AlbumRef, error)
}

// ArtistRef references an artist nested in another payload.
type ArtistRef struct {
	ID   string `validate:"required"`
	Name string
}

// AlbumRef references an album nested in another payload or a discography.
type AlbumRef struct {
	ID                   string `validate:"required"`
	Name                 string
	AlbumType            string
	ReleaseDate          string
	ReleaseDatePrecision string
}

// ArtistPayload is a full provider artist.
type ArtistPayload struct {
	ID         string `validate:"required"`
	Name       string `validate:"required"`
	Image      string
	Popularity int `validate:"gte=0,lte=100"`
	URL        string
	URI        string
	Genres     []string `validate:"dive,required"`
}

// AlbumPayload is a full provider album. Artists are in credit order.
type AlbumPayload struct {
	ID                   string `validate:"required"`
	Name                 string `validate:"required"`
	Label                string
	Image                string
	Popularity           int `validate:"gte=0,lte=100"`
	AlbumType            string
	URL                  string
	URI                  string
	ReleaseDate          string      `validate:"required"`
	ReleaseDatePrecision string      `validate:"omitempty,oneof=day month year"`
	Genres               []string    `validate:"dive,required"`
	Artists              []ArtistRef `validate:"min=1,dive"`
}

// TrackPayload is a full provider track. Artists are in credit order.
type TrackPayload struct {
	ID          string `validate:"required"`
	Name        string `validate:"required"`
	TrackNumber int    `validate:"gte=0"`
	DurationMs  int    `validate:"gte=0"`
	Explicit    bool
	Popularity  int `validate:"gte=0,lte=100"`
	PreviewURL  string
	URL         string
	URI         string
	Album       AlbumRef
	Artists     []ArtistRef `validate:"min=1,dive"`
}

var validate = validator.New()

// Validate rejects a malformed payload with ErrResolutionFailed.
func Validate(payload any) error {
	if err := validate.Struct(payload); err != nil {
		return errors.Mark(errors.Wrap(err, "malformed provider payload"), ErrResolutionFailed)
	}
	return nil
}

// Failed wraps err and marks it as ErrResolutionFailed.
func Failed(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrResolutionFailed)
}
