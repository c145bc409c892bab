package releases

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/musicbucket/internal/app/reconcile"
	"github.com/osa030/musicbucket/internal/app/resolver"
	"github.com/osa030/musicbucket/internal/app/resolver/resolvertest"
	domain "github.com/osa030/musicbucket/internal/domain/activity"
	"github.com/osa030/musicbucket/internal/domain/catalog"
	"github.com/osa030/musicbucket/internal/infra/database/dbtest"
	"github.com/osa030/musicbucket/internal/infra/store"
)

type fixture struct {
	fake    *resolvertest.Resolver
	store   *store.Store
	differ  *Differ
	sweeper *Sweeper
	now     time.Time
}

func setup(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		fake:  resolvertest.Fixture(),
		store: store.New(dbtest.Open(t)),
		now:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	f.fake.SetDiscography("A", resolver.AlbumRef{ID: "AL1"})
	rc := reconcile.New(f.store, f.fake)
	f.differ = NewDiffer(f.fake, rc, f.store, func() time.Time { return f.now })
	f.sweeper = NewSweeper(f.store, f.differ)

	_, err := rc.Artist(context.Background(), "A")
	require.NoError(t, err)
	return f
}

func (f *fixture) follow(t *testing.T, userID int64, artistID string) {
	t.Helper()
	require.NoError(t, f.store.InsertFollow(context.Background(), &domain.FollowedArtist{
		UserID: userID, ArtistID: artistID, FollowedAt: f.now,
	}))
}

func (f *fixture) release(id, date string) {
	f.fake.AddAlbum(resolver.AlbumPayload{
		ID: id, Name: "Album " + id, ReleaseDate: date, ReleaseDatePrecision: "day",
		Artists: []resolver.ArtistRef{{ID: "A"}},
	})
}

func albumIDs(albums []catalog.Album) []string {
	ids := make([]string, 0, len(albums))
	for _, a := range albums {
		ids = append(ids, a.ID)
	}
	return ids
}

func TestSweeper_FirstCheckOnlySetsWatermark(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	refs := []resolver.AlbumRef{{ID: "AL1"}}
	for id, date := range map[string]string{
		"OLD": "2019-05-10",
		"DAY": "2024-03-01",
		"NXT": "2024-03-02",
		"FUT": "2024-06-30",
	} {
		f.release(id, date)
		refs = append(refs, resolver.AlbumRef{ID: id})
	}
	f.fake.SetDiscography("A", refs...)
	f.follow(t, 1, "A")

	report, err := f.sweeper.CheckUser(ctx, 1)
	require.NoError(t, err)
	require.Contains(t, report.NewReleases, "A")
	assert.Empty(t, report.NewReleases["A"])
	assert.Empty(t, report.Failed)
	assert.Equal(t, 1, f.fake.Calls("albums:A"))

	follow, err := f.store.FindFollow(ctx, 1, "A")
	require.NoError(t, err)
	require.NotNil(t, follow.LastLookup)
	assert.True(t, follow.LastLookup.Equal(f.now))
}

func TestSweeper_DetectsNewReleases(t *testing.T) {
	tests := []struct {
		name     string
		releases map[string]string
		expected []string
	}{
		{
			name:     "released after last lookup",
			releases: map[string]string{"AL2": "2024-03-05"},
			expected: []string{"AL2"},
		},
		{
			name:     "released on the day of last lookup",
			releases: map[string]string{"AL2": "2024-03-01"},
			expected: []string{"AL2"},
		},
		{
			name:     "released the day before last lookup",
			releases: map[string]string{"AL2": "2024-02-29"},
			expected: []string{},
		},
		{
			name:     "newest first",
			releases: map[string]string{"AL2": "2024-03-02", "AL3": "2024-03-04"},
			expected: []string{"AL3", "AL2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := setup(t)
			f.follow(t, 1, "A")

			_, err := f.sweeper.CheckUser(ctx, 1)
			require.NoError(t, err)

			refs := []resolver.AlbumRef{{ID: "AL1"}}
			for id, date := range tt.releases {
				f.release(id, date)
				refs = append(refs, resolver.AlbumRef{ID: id})
			}
			f.fake.SetDiscography("A", refs...)
			f.now = time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC)

			report, err := f.sweeper.CheckUser(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, albumIDs(report.NewReleases["A"]))

			follow, err := f.store.FindFollow(ctx, 1, "A")
			require.NoError(t, err)
			assert.True(t, follow.LastLookup.Equal(f.now))
		})
	}
}

func TestSweeper_ZeroAlbums(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.fake.SetDiscography("A")
	f.follow(t, 1, "A")

	_, err := f.sweeper.CheckUser(ctx, 1)
	require.NoError(t, err)
	report, err := f.sweeper.CheckUser(ctx, 1)
	require.NoError(t, err)
	require.Contains(t, report.NewReleases, "A")
	assert.Empty(t, report.NewReleases["A"])
	assert.Equal(t, 0, report.Count())
}

func TestSweeper_FailureKeepsWatermark(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.follow(t, 1, "A")

	_, err := f.sweeper.CheckUser(ctx, 1)
	require.NoError(t, err)
	watermark := f.now

	f.fake.Fail("albums:A", errors.New("503 service unavailable"))
	f.now = f.now.Add(48 * time.Hour)

	report, err := f.sweeper.CheckUser(ctx, 1)
	require.NoError(t, err)
	require.Contains(t, report.Failed, "A")
	assert.True(t, errors.Is(report.Failed["A"], resolver.ErrResolutionFailed))
	assert.NotContains(t, report.NewReleases, "A")

	follow, err := f.store.FindFollow(ctx, 1, "A")
	require.NoError(t, err)
	assert.True(t, follow.LastLookup.Equal(watermark))
}

func TestSweeper_FailingArtistDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	_, err := reconcile.New(f.store, f.fake).Artist(ctx, "B")
	require.NoError(t, err)
	f.follow(t, 1, "A")
	f.follow(t, 1, "B")
	f.fake.Fail("albums:A", errors.New("boom"))

	report, err := f.sweeper.CheckUser(ctx, 1)
	require.NoError(t, err)
	assert.Contains(t, report.Failed, "A")
	assert.Contains(t, report.NewReleases, "B")
}

func TestSweeper_SweepAllFetchesArtistOnce(t *testing.T) {
	ctx := context.Background()
	f := setup(t)
	f.follow(t, 1, "A")
	f.follow(t, 2, "A")

	reports, err := f.sweeper.SweepAll(ctx)
	require.NoError(t, err)
	assert.Len(t, reports, 2)
	assert.Contains(t, reports[1].NewReleases, "A")
	assert.Contains(t, reports[2].NewReleases, "A")
	assert.Equal(t, 1, f.fake.Calls("albums:A"))
}

func TestDiffer_CanceledContext(t *testing.T) {
	f := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := f.differ.CheckNewReleases(ctx, []domain.FollowedArtist{{ID: 1, UserID: 1, ArtistID: "A"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, report.NewReleases)
	assert.Equal(t, 0, f.fake.Calls("albums:A"))
}
