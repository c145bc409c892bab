// Package reconcile creates or gets catalog entities from provider metadata.
//
// Creating an entity is done in two phases. The plan phase looks up every
// entity the request transitively needs and fetches provider payloads for
// the missing ones, outside any transaction. The commit phase then writes all
// planned rows in a single transaction. A failed fetch therefore writes
// nothing, and an entity that already exists is returned unchanged.
package reconcile

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"github.com/osa030/musicbucket/internal/app/resolver"
	"github.com/osa030/musicbucket/internal/domain/catalog"
	"github.com/osa030/musicbucket/internal/infra/store"
)

// sharedTimeout bounds one collapsed create-or-get, provider retries included.
const sharedTimeout = 2 * time.Minute

// Service reconciles provider entities into the catalog.
type Service struct {
	store    *store.Store
	resolver resolver.Resolver
	group    singleflight.Group
}

// New creates a reconciliation service.
func New(st *store.Store, r resolver.Resolver) *Service {
	return &Service{store: st, resolver: r}
}

// Artist returns the stored artist, creating it from the provider if absent.
func (s *Service) Artist(ctx context.Context, id string) (*catalog.Artist, error) {
	v, err := s.once(ctx, "artist:"+id, func(ctx context.Context) (any, error) {
		if a, err := s.store.FindArtist(ctx, id); !errors.Is(err, store.ErrNotFound) {
			return a, err
		}
		p := newPlan()
		if err := s.planArtist(ctx, p, id); err != nil {
			return nil, err
		}
		if err := s.commit(ctx, p); err != nil {
			return nil, err
		}
		return s.store.FindArtist(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*catalog.Artist), nil
}

// Album returns the stored album, creating it and its artists if absent.
func (s *Service) Album(ctx context.Context, id string) (*catalog.Album, error) {
	v, err := s.once(ctx, "album:"+id, func(ctx context.Context) (any, error) {
		if a, err := s.store.FindAlbum(ctx, id); !errors.Is(err, store.ErrNotFound) {
			return a, err
		}
		p := newPlan()
		if err := s.planAlbum(ctx, p, id); err != nil {
			return nil, err
		}
		if err := s.commit(ctx, p); err != nil {
			return nil, err
		}
		return s.store.FindAlbum(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*catalog.Album), nil
}

// Track returns the stored track, creating it, its album and its artists if absent.
func (s *Service) Track(ctx context.Context, id string) (*catalog.Track, error) {
	v, err := s.once(ctx, "track:"+id, func(ctx context.Context) (any, error) {
		if t, err := s.store.FindTrack(ctx, id); !errors.Is(err, store.ErrNotFound) {
			return t, err
		}
		p := newPlan()
		if err := s.planTrack(ctx, p, id); err != nil {
			return nil, err
		}
		if err := s.commit(ctx, p); err != nil {
			return nil, err
		}
		return s.store.FindTrack(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*catalog.Track), nil
}

// Entity creates or gets the entity of the given type.
func (s *Service) Entity(ctx context.Context, linkType catalog.LinkType, id string) error {
	var err error
	switch linkType {
	case catalog.LinkTypeArtist:
		_, err = s.Artist(ctx, id)
	case catalog.LinkTypeAlbum:
		_, err = s.Album(ctx, id)
	case catalog.LinkTypeTrack:
		_, err = s.Track(ctx, id)
	default:
		err = errors.Newf("unsupported link type: %s", linkType)
	}
	return err
}

// Link returns the link stored under url, creating its entity and the link if absent.
// A found link is returned untouched.
func (s *Service) Link(ctx context.Context, url string, linkType catalog.LinkType, service catalog.StreamingService, entityID string) (*catalog.Link, error) {
	v, err := s.once(ctx, "link:"+url, func(ctx context.Context) (any, error) {
		if l, err := s.store.FindLinkByURL(ctx, url); !errors.Is(err, store.ErrNotFound) {
			return l, err
		}
		if err := s.Entity(ctx, linkType, entityID); err != nil {
			return nil, err
		}

		link := catalog.NewLink(url, linkType, service, entityID)
		err := s.store.InsertLink(ctx, link)
		switch {
		case err == nil:
			zlog.Debug().Msgf("created link: url=%s type=%s", url, linkType)
			return link, nil
		case errors.Is(err, store.ErrDuplicateKey):
			return s.store.FindLinkByURL(ctx, url)
		default:
			return nil, err
		}
	})
	if err != nil {
		return nil, err
	}
	return v.(*catalog.Link), nil
}

// once collapses concurrent calls for the same key within this process.
// Across processes the unique keys of the catalog tables arbitrate.
//
// The shared work runs detached from the caller that started it, so a
// canceled caller only abandons its own wait. It is bounded by sharedTimeout.
func (s *Service) once(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := s.group.DoChan(key, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedTimeout)
		defer cancel()
		return fn(shared)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

// plan collects the rows a top-level creation needs, in dependency order.
type plan struct {
	seen    map[string]bool
	artists []*catalog.Artist
	albums  []*catalog.Album
	tracks  []*catalog.Track
}

func newPlan() *plan {
	return &plan{seen: make(map[string]bool)}
}

// visit reports whether key is new to the plan and marks it.
func (p *plan) visit(key string) bool {
	if p.seen[key] {
		return false
	}
	p.seen[key] = true
	return true
}

func (s *Service) planArtist(ctx context.Context, p *plan, id string) error {
	if !p.visit("artist:" + id) {
		return nil
	}
	if _, err := s.store.FindArtist(ctx, id); !errors.Is(err, store.ErrNotFound) {
		return err
	}

	payload, err := s.resolver.Artist(ctx, id)
	if err != nil {
		return resolver.Failed(err, "failed to resolve artist %s", id)
	}
	p.artists = append(p.artists, artistFromPayload(payload))
	return nil
}

func (s *Service) planAlbum(ctx context.Context, p *plan, id string) error {
	if !p.visit("album:" + id) {
		return nil
	}
	if _, err := s.store.FindAlbum(ctx, id); !errors.Is(err, store.ErrNotFound) {
		return err
	}

	payload, err := s.resolver.Album(ctx, id)
	if err != nil {
		return resolver.Failed(err, "failed to resolve album %s", id)
	}
	album, err := albumFromPayload(payload)
	if err != nil {
		return err
	}
	for _, ref := range payload.Artists {
		if err := s.planArtist(ctx, p, ref.ID); err != nil {
			return err
		}
	}
	p.albums = append(p.albums, album)
	return nil
}

func (s *Service) planTrack(ctx context.Context, p *plan, id string) error {
	if !p.visit("track:" + id) {
		return nil
	}

	payload, err := s.resolver.Track(ctx, id)
	if err != nil {
		return resolver.Failed(err, "failed to resolve track %s", id)
	}
	if err := s.planAlbum(ctx, p, payload.Album.ID); err != nil {
		return err
	}
	for _, ref := range payload.Artists {
		if err := s.planArtist(ctx, p, ref.ID); err != nil {
			return err
		}
	}
	p.tracks = append(p.tracks, trackFromPayload(payload))
	return nil
}

// commit writes the plan in one transaction. Rows another writer created in
// the meantime are kept as they are, together with their relations.
func (s *Service) commit(ctx context.Context, p *plan) error {
	return s.store.Transaction(ctx, func(tx *store.Store) error {
		for _, a := range p.artists {
			created, err := inserted(tx.InsertArtist(ctx, a))
			if err != nil {
				return err
			}
			if created {
				zlog.Debug().Msgf("created artist: id=%s name=%s", a.ID, a.Name)
			}
		}
		for _, a := range p.albums {
			created, err := inserted(tx.InsertAlbum(ctx, a))
			if err != nil {
				return err
			}
			if created {
				zlog.Debug().Msgf("created album: id=%s name=%s", a.ID, a.Name)
			}
		}
		for _, t := range p.tracks {
			created, err := inserted(tx.InsertTrack(ctx, t))
			if err != nil {
				return err
			}
			if created {
				zlog.Debug().Msgf("created track: id=%s name=%s", t.ID, t.Name)
			}
		}
		return nil
	})
}

// inserted treats a lost insert race as success without creation.
func inserted(err error) (bool, error) {
	if errors.Is(err, store.ErrDuplicateKey) {
		return false, nil
	}
	return err == nil, err
}

func artistFromPayload(p *resolver.ArtistPayload) *catalog.Artist {
	return &catalog.Artist{
		ID:         p.ID,
		Name:       p.Name,
		Image:      p.Image,
		Popularity: p.Popularity,
		URL:        p.URL,
		URI:        p.URI,
		Genres:     dedupe(p.Genres),
	}
}

func albumFromPayload(p *resolver.AlbumPayload) (*catalog.Album, error) {
	released, precision, err := catalog.ParseReleaseDate(p.ReleaseDate, catalog.ReleasePrecision(p.ReleaseDatePrecision))
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "album %s", p.ID), resolver.ErrResolutionFailed)
	}

	artists := make([]catalog.Artist, 0, len(p.Artists))
	seen := make(map[string]bool, len(p.Artists))
	for _, ref := range p.Artists {
		if seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		artists = append(artists, catalog.Artist{ID: ref.ID, Name: ref.Name})
	}

	return &catalog.Album{
		ID:                   p.ID,
		Name:                 p.Name,
		Label:                p.Label,
		Image:                p.Image,
		Popularity:           p.Popularity,
		AlbumType:            p.AlbumType,
		URL:                  p.URL,
		URI:                  p.URI,
		ReleaseDate:          datatypes.Date(released),
		ReleaseDatePrecision: precision,
		Artists:              artists,
		Genres:               dedupe(p.Genres),
	}, nil
}

func trackFromPayload(p *resolver.TrackPayload) *catalog.Track {
	artists := make([]catalog.Artist, 0, len(p.Artists))
	seen := make(map[string]bool, len(p.Artists))
	for _, ref := range p.Artists {
		if seen[ref.ID] {
			continue
		}
		seen[ref.ID] = true
		artists = append(artists, catalog.Artist{ID: ref.ID, Name: ref.Name})
	}

	return &catalog.Track{
		ID:          p.ID,
		Name:        p.Name,
		TrackNumber: p.TrackNumber,
		DurationMs:  p.DurationMs,
		Explicit:    p.Explicit,
		Popularity:  p.Popularity,
		PreviewURL:  p.PreviewURL,
		URL:         p.URL,
		URI:         p.URI,
		AlbumID:     p.Album.ID,
		Artists:     artists,
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
