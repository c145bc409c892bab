// Package releases detects albums released since a follower last looked.
package releases

import (
	"context"
	"slices"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/musicbucket/internal/app/reconcile"
	"github.com/osa030/musicbucket/internal/app/resolver"
	domain "github.com/osa030/musicbucket/internal/domain/activity"
	"github.com/osa030/musicbucket/internal/domain/catalog"
	"github.com/osa030/musicbucket/internal/infra/store"
)

// Report is the outcome of a release check, keyed by artist ID.
type Report struct {
	NewReleases map[string][]catalog.Album
	Failed      map[string]error
}

func newReport() *Report {
	return &Report{
		NewReleases: make(map[string][]catalog.Album),
		Failed:      make(map[string]error),
	}
}

// Count returns the number of new albums in the report.
func (r *Report) Count() int {
	n := 0
	for _, albums := range r.NewReleases {
		n += len(albums)
	}
	return n
}

// Differ compares followed artists' discographies against their watermarks.
type Differ struct {
	resolver  resolver.Resolver
	reconcile *reconcile.Service
	store     *store.Store
	now       func() time.Time
}

// NewDiffer creates a differ. A nil clock means time.Now.
func NewDiffer(r resolver.Resolver, rc *reconcile.Service, st *store.Store, now func() time.Time) *Differ {
	if now == nil {
		now = time.Now
	}
	return &Differ{resolver: r, reconcile: rc, store: st, now: now}
}

// discographies caches refreshed discographies for the duration of one sweep.
type discographies map[string][]catalog.Album

// CheckNewReleases refreshes the discography of every followed artist and reports
// the albums released on or after the day of the follow's last lookup.
// The first check of a follow only sets its watermark. A failing artist keeps
// its watermark, is reported in Failed, and the check moves on.
// A canceled context stops the check and returns the partial report.
func (d *Differ) CheckNewReleases(ctx context.Context, follows []domain.FollowedArtist) (*Report, error) {
	return d.check(ctx, follows, make(discographies))
}

func (d *Differ) check(ctx context.Context, follows []domain.FollowedArtist, cache discographies) (*Report, error) {
	report := newReport()
	for _, follow := range follows {
		if err := ctx.Err(); err != nil {
			return report, errors.Wrap(err, "release check interrupted")
		}

		albums, err := d.discography(ctx, follow.ArtistID, cache)
		if err != nil {
			zlog.Warn().Msgf("failed to refresh discography of artist %s: %v", follow.ArtistID, err)
			report.Failed[follow.ArtistID] = err
			continue
		}

		fresh := newSince(albums, follow.LastLookup)
		if err := d.store.TouchFollow(ctx, follow.ID, d.now().UTC()); err != nil {
			zlog.Warn().Msgf("failed to advance watermark of artist %s: %v", follow.ArtistID, err)
			report.Failed[follow.ArtistID] = err
			continue
		}
		report.NewReleases[follow.ArtistID] = fresh
		if len(fresh) > 0 {
			zlog.Info().Msgf("artist %s has %d new releases for user %d", follow.ArtistID, len(fresh), follow.UserID)
		}
	}
	return report, nil
}

// discography creates or gets every album the provider lists for the artist.
func (d *Differ) discography(ctx context.Context, artistID string, cache discographies) ([]catalog.Album, error) {
	if albums, ok := cache[artistID]; ok {
		return albums, nil
	}

	refs, err := d.resolver.ArtistAlbums(ctx, artistID)
	if err != nil {
		return nil, resolver.Failed(err, "failed to list albums of artist %s", artistID)
	}

	albums := make([]catalog.Album, 0, len(refs))
	for _, ref := range refs {
		album, err := d.reconcile.Album(ctx, ref.ID)
		if err != nil {
			return nil, err
		}
		albums = append(albums, *album)
	}
	cache[artistID] = albums
	return albums, nil
}

// newSince returns the albums released on or after the day of lastLookup,
// newest first. A nil lastLookup means nothing is new.
func newSince(albums []catalog.Album, lastLookup *time.Time) []catalog.Album {
	fresh := []catalog.Album{}
	if lastLookup == nil {
		return fresh
	}
	since := catalog.DateOf(*lastLookup)
	for _, a := range albums {
		if !a.Released().Before(since) {
			fresh = append(fresh, a)
		}
	}
	slices.SortStableFunc(fresh, func(a, b catalog.Album) int {
		return b.Released().Compare(a.Released())
	})
	return fresh
}

// Sweeper runs the differ over stored follows.
type Sweeper struct {
	store  *store.Store
	differ *Differ
}

// NewSweeper creates a sweeper.
func NewSweeper(st *store.Store, differ *Differ) *Sweeper {
	return &Sweeper{store: st, differ: differ}
}

// CheckUser checks the follows of one user.
func (s *Sweeper) CheckUser(ctx context.Context, userID int64) (*Report, error) {
	follows, err := s.store.ListFollows(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.differ.CheckNewReleases(ctx, follows)
}

// SweepAll checks every stored follow, grouped by user. Discographies are
// fetched once per artist across all users.
func (s *Sweeper) SweepAll(ctx context.Context) (map[int64]*Report, error) {
	follows, err := s.store.ListAllFollows(ctx)
	if err != nil {
		return nil, err
	}

	var order []int64
	byUser := make(map[int64][]domain.FollowedArtist)
	for _, f := range follows {
		if _, ok := byUser[f.UserID]; !ok {
			order = append(order, f.UserID)
		}
		byUser[f.UserID] = append(byUser[f.UserID], f)
	}

	zlog.Info().Msgf("sweeping releases: users=%d follows=%d", len(order), len(follows))
	cache := make(discographies)
	reports := make(map[int64]*Report, len(order))
	for _, userID := range order {
		report, err := s.differ.check(ctx, byUser[userID], cache)
		reports[userID] = report
		if err != nil {
			return reports, err
		}
	}
	return reports, nil
}
