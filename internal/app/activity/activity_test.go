package activity

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/osa030/musicbucket/internal/domain/activity"
	"github.com/osa030/musicbucket/internal/domain/catalog"
	"github.com/osa030/musicbucket/internal/infra/database/dbtest"
	"github.com/osa030/musicbucket/internal/infra/store"
)

// clock is a settable time source.
type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func setup(t *testing.T) (*Service, *store.Store, *clock) {
	t.Helper()
	st := store.New(dbtest.Open(t))
	c := &clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	return New(st, c.Now), st, c
}

func seedLink(t *testing.T, st *store.Store) *catalog.Link {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.InsertArtist(ctx, &catalog.Artist{ID: "A", Name: "Artist A"}))
	link := catalog.NewLink("https://open.spotify.com/artist/A", catalog.LinkTypeArtist, catalog.StreamingServiceSpotify, "A")
	require.NoError(t, st.InsertLink(ctx, link))
	return link
}

func TestService_EnsureUserKeepsFirstSeenRow(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setup(t)

	first, err := svc.EnsureUser(ctx, domain.User{ID: 7, Username: "alice", FirstName: "Alice"})
	require.NoError(t, err)
	assert.Equal(t, "alice", first.Username)

	second, err := svc.EnsureUser(ctx, domain.User{ID: 7, Username: "alice2", FirstName: "Al"})
	require.NoError(t, err)
	assert.Equal(t, "alice", second.Username)

	chat, err := svc.EnsureChat(ctx, domain.Chat{ID: -100, Name: "music"})
	require.NoError(t, err)
	assert.Equal(t, "music", chat.Name)
}

func TestService_RecordSendAlwaysInserts(t *testing.T) {
	ctx := context.Background()
	svc, st, c := setup(t)
	link := seedLink(t, st)

	first, err := svc.RecordSend(ctx, link.ID, 1, 10, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, c.now, first.SentAt)
	assert.Len(t, first.ID, 36)

	second, err := svc.RecordSend(ctx, link.ID, 1, 10, c.now.Add(time.Minute))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)

	n, err := st.CountSentLinks(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestService_RecordSendRequiresLink(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.RecordSend(context.Background(), 999, 1, 10, time.Time{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestService_SaveLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, st, c := setup(t)
	link := seedLink(t, st)

	saved, err := svc.Save(ctx, 1, link.ID)
	require.NoError(t, err)
	firstSavedAt := saved.SavedAt

	// Saving again is a no-op.
	c.Advance(time.Hour)
	again, err := svc.Save(ctx, 1, link.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, again.ID)
	assert.True(t, again.SavedAt.Equal(firstSavedAt))

	views, err := svc.SavedLinks(ctx, 1)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, "Artist A", views[0].Title)

	require.NoError(t, svc.Unsave(ctx, 1, link.ID))
	require.NoError(t, svc.Unsave(ctx, 1, link.ID))
	views, err = svc.SavedLinks(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, views)

	// Saving a removed bookmark revives the same row.
	c.Advance(time.Hour)
	revived, err := svc.Save(ctx, 1, link.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, revived.ID)
	assert.True(t, revived.Active())
	assert.True(t, revived.SavedAt.Equal(c.now))

	stored, err := st.FindSavedLink(ctx, 1, link.ID)
	require.NoError(t, err)
	assert.True(t, stored.Active())
}

func TestService_UnsaveWithoutSave(t *testing.T) {
	svc, st, _ := setup(t)
	link := seedLink(t, st)

	assert.NoError(t, svc.Unsave(context.Background(), 1, link.ID))
}

func TestService_FollowResults(t *testing.T) {
	ctx := context.Background()
	svc, st, _ := setup(t)
	seedLink(t, st)

	tests := []struct {
		name     string
		op       func() (Result, error)
		expected Result
	}{
		{
			name:     "first follow",
			op:       func() (Result, error) { return svc.Follow(ctx, 1, "A") },
			expected: Done(),
		},
		{
			name:     "follow again",
			op:       func() (Result, error) { return svc.Follow(ctx, 1, "A") },
			expected: Refuse(CodeAlreadyFollowing),
		},
		{
			name:     "unfollow",
			op:       func() (Result, error) { return svc.Unfollow(ctx, 1, "A") },
			expected: Done(),
		},
		{
			name:     "unfollow again",
			op:       func() (Result, error) { return svc.Unfollow(ctx, 1, "A") },
			expected: Refuse(CodeNotFollowing),
		},
	}

	// Steps depend on each other and run in order.
	for _, tt := range tests {
		got, err := tt.op()
		require.NoError(t, err, tt.name)
		assert.Equal(t, tt.expected, got, tt.name)
	}
}

func TestService_FollowUnknownArtist(t *testing.T) {
	svc, _, _ := setup(t)

	_, err := svc.Follow(context.Background(), 1, "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestService_FollowedArtists(t *testing.T) {
	ctx := context.Background()
	svc, st, c := setup(t)
	seedLink(t, st)
	require.NoError(t, st.InsertArtist(ctx, &catalog.Artist{ID: "B", Name: "Another"}))

	_, err := svc.Follow(ctx, 1, "A")
	require.NoError(t, err)
	_, err = svc.Follow(ctx, 1, "B")
	require.NoError(t, err)

	views, err := svc.FollowedArtists(ctx, 1)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "Another", views[0].ArtistName)
	assert.Equal(t, "Artist A", views[1].ArtistName)
	assert.Nil(t, views[0].LastLookup)
	assert.True(t, views[0].FollowedAt.Equal(c.now))
}
