// Package resolvertest provides an in-memory resolver for tests.
package resolvertest

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osa030/musicbucket/internal/app/resolver"
)

// ErrUnknown is returned for IDs the fake has no payload for.
var ErrUnknown = errors.New("404 non existing id")

// Resolver serves payloads from maps and counts calls per "kind:id" key.
type Resolver struct {
	mu          sync.Mutex
	artists     map[string]resolver.ArtistPayload
	albums      map[string]resolver.AlbumPayload
	tracks      map[string]resolver.TrackPayload
	discography map[string][]resolver.AlbumRef
	failures    map[string]error
	calls       map[string]int

	// OnFetch, when set, runs before every fetch with the call key.
	OnFetch func(key string)
}

var _ resolver.Resolver = (*Resolver)(nil)

// New creates an empty fake resolver.
func New() *Resolver {
	return &Resolver{
		artists:     make(map[string]resolver.ArtistPayload),
		albums:      make(map[string]resolver.AlbumPayload),
		tracks:      make(map[string]resolver.TrackPayload),
		discography: make(map[string][]resolver.AlbumRef),
		failures:    make(map[string]error),
		calls:       make(map[string]int),
	}
}

// AddArtist registers an artist payload.
func (r *Resolver) AddArtist(p resolver.ArtistPayload) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.artists[p.ID] = p
	return r
}

// AddAlbum registers an album payload.
func (r *Resolver) AddAlbum(p resolver.AlbumPayload) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.albums[p.ID] = p
	return r
}

// AddTrack registers a track payload.
func (r *Resolver) AddTrack(p resolver.TrackPayload) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tracks[p.ID] = p
	return r
}

// SetDiscography sets the albums returned for an artist.
func (r *Resolver) SetDiscography(artistID string, refs ...resolver.AlbumRef) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discography[artistID] = refs
	return r
}

// Fail makes calls for key ("artist:ID", "album:ID", "track:ID", "albums:ID") return err.
// A nil err clears the failure.
func (r *Resolver) Fail(key string, err error) *Resolver {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failures, key)
	} else {
		r.failures[key] = err
	}
	return r
}

// Calls returns how many times key was fetched.
func (r *Resolver) Calls(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[key]
}

// TotalCalls returns the number of fetches of any kind.
func (r *Resolver) TotalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

func (r *Resolver) begin(key string) error {
	r.mu.Lock()
	r.calls[key]++
	hook := r.OnFetch
	err := r.failures[key]
	r.mu.Unlock()

	if hook != nil {
		hook(key)
	}
	return err
}

// Artist implements resolver.Resolver.
func (r *Resolver) Artist(ctx context.Context, id string) (*resolver.ArtistPayload, error) {
	if err := r.begin("artist:" + id); err != nil {
		return nil, resolver.Failed(err, "failed to get artist %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.artists[id]
	if !ok {
		return nil, resolver.Failed(ErrUnknown, "failed to get artist %s", id)
	}
	return &p, nil
}

// Album implements resolver.Resolver.
func (r *Resolver) Album(ctx context.Context, id string) (*resolver.AlbumPayload, error) {
	if err := r.begin("album:" + id); err != nil {
		return nil, resolver.Failed(err, "failed to get album %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.albums[id]
	if !ok {
		return nil, resolver.Failed(ErrUnknown, "failed to get album %s", id)
	}
	return &p, nil
}

// Track implements resolver.Resolver.
func (r *Resolver) Track(ctx context.Context, id string) (*resolver.TrackPayload, error) {
	if err := r.begin("track:" + id); err != nil {
		return nil, resolver.Failed(err, "failed to get track %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.tracks[id]
	if !ok {
		return nil, resolver.Failed(ErrUnknown, "failed to get track %s", id)
	}
	return &p, nil
}

// ArtistAlbums implements resolver.Resolver.
func (r *Resolver) ArtistAlbums(ctx context.Context, id string) ([]resolver.AlbumRef, error) {
	if err := r.begin("albums:" + id); err != nil {
		return nil, resolver.Failed(err, "failed to get albums of artist %s", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]resolver.AlbumRef(nil), r.discography[id]...), nil
}

// Fixture registers a small catalog: artists A (rock) and B (pop),
// album AL1 credited [B, A] released 2020 at year precision, and track T1 on AL1 by A.
func Fixture() *Resolver {
	return New().
		AddArtist(resolver.ArtistPayload{ID: "A", Name: "Artist A", Popularity: 40, Genres: []string{"rock"}}).
		AddArtist(resolver.ArtistPayload{ID: "B", Name: "Artist B", Popularity: 60, Genres: []string{"pop"}}).
		AddAlbum(resolver.AlbumPayload{
			ID: "AL1", Name: "Album One", Label: "Label", AlbumType: "album",
			ReleaseDate: "2020", ReleaseDatePrecision: "year",
			Genres:  []string{"pop"},
			Artists: []resolver.ArtistRef{{ID: "B", Name: "Artist B"}, {ID: "A", Name: "Artist A"}},
		}).
		AddTrack(resolver.TrackPayload{
			ID: "T1", Name: "Track One", TrackNumber: 1, DurationMs: 200000,
			Album:   resolver.AlbumRef{ID: "AL1", Name: "Album One"},
			Artists: []resolver.ArtistRef{{ID: "A", Name: "Artist A"}},
		})
}
