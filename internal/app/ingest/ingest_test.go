package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/osa030/musicbucket/internal/app/activity"
	"github.com/osa030/musicbucket/internal/app/classifier"
	"github.com/osa030/musicbucket/internal/app/reconcile"
	"github.com/osa030/musicbucket/internal/app/resolver"
	"github.com/osa030/musicbucket/internal/app/resolver/resolvertest"
	domain "github.com/osa030/musicbucket/internal/domain/activity"
	"github.com/osa030/musicbucket/internal/domain/catalog"
	"github.com/osa030/musicbucket/internal/infra/database/dbtest"
	"github.com/osa030/musicbucket/internal/infra/store"
)

type env struct {
	pipeline *Pipeline
	fake     *resolvertest.Resolver
	store    *store.Store
	db       *gorm.DB
}

func setup(t *testing.T) *env {
	t.Helper()
	db := dbtest.Open(t)
	st := store.New(db)
	fake := resolvertest.Fixture()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := New(
		classifier.New(nil, nil),
		reconcile.New(st, fake),
		activity.New(st, func() time.Time { return now }),
	)
	return &env{pipeline: p, fake: fake, store: st, db: db}
}

func (e *env) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(model).Count(&n).Error)
	return n
}

func TestPipeline_IngestScenario(t *testing.T) {
	ctx := context.Background()
	e := setup(t)

	first, err := e.pipeline.Ingest(ctx, Message{
		Text:     "listen to this https://open.spotify.com/track/T1?si=abc",
		UserID:   1,
		Username: "alice",
		ChatID:   100,
		ChatName: "music",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://open.spotify.com/track/T1", first.Link.URL)
	assert.Equal(t, catalog.LinkTypeTrack, first.Link.LinkType)
	assert.Equal(t, int64(1), first.Sent.UserID)

	assert.Equal(t, int64(1), e.count(t, &catalog.Track{}))
	assert.Equal(t, int64(1), e.count(t, &catalog.Album{}))
	assert.Equal(t, int64(2), e.count(t, &catalog.Artist{}))
	assert.Equal(t, int64(1), e.count(t, &catalog.Link{}))
	assert.Equal(t, int64(1), e.count(t, &domain.User{}))
	assert.Equal(t, int64(1), e.count(t, &domain.Chat{}))
	calls := e.fake.TotalCalls()

	second, err := e.pipeline.Ingest(ctx, Message{
		Text:      "https://open.spotify.com/track/T1?si=other",
		UserID:    2,
		FirstName: "Bob",
		ChatID:    100,
		ChatName:  "music",
	})
	require.NoError(t, err)
	assert.Equal(t, first.Link.ID, second.Link.ID)
	assert.NotEqual(t, first.Sent.ID, second.Sent.ID)

	assert.Equal(t, int64(2), e.count(t, &domain.SentLink{}))
	assert.Equal(t, int64(2), e.count(t, &domain.User{}))
	assert.Equal(t, int64(1), e.count(t, &catalog.Track{}))
	assert.Equal(t, int64(1), e.count(t, &catalog.Album{}))
	assert.Equal(t, int64(2), e.count(t, &catalog.Artist{}))
	assert.Equal(t, int64(1), e.count(t, &catalog.Link{}))
	assert.Equal(t, calls, e.fake.TotalCalls())
}

func TestPipeline_IngestInvalid(t *testing.T) {
	e := setup(t)

	tests := []struct {
		name string
		text string
	}{
		{name: "no url", text: "good morning"},
		{name: "playlist", text: "https://open.spotify.com/playlist/P1"},
		{name: "other provider", text: "https://www.youtube.com/watch?v=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.pipeline.Ingest(context.Background(), Message{Text: tt.text, UserID: 1, ChatID: 100})
			assert.True(t, errors.Is(err, ErrInvalidLink))
		})
	}
	assert.Equal(t, int64(0), e.count(t, &domain.SentLink{}))
	assert.Equal(t, 0, e.fake.TotalCalls())
}

func TestPipeline_IngestResolutionFailure(t *testing.T) {
	e := setup(t)
	e.fake.Fail("track:T1", errors.New("503"))

	_, err := e.pipeline.Ingest(context.Background(), Message{
		Text: "https://open.spotify.com/track/T1", UserID: 1, ChatID: 100,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, resolver.ErrResolutionFailed))
	assert.Equal(t, int64(0), e.count(t, &catalog.Link{}))
	assert.Equal(t, int64(0), e.count(t, &domain.SentLink{}))
}

func TestPipeline_SaveURL(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	bob := domain.User{ID: 2, FirstName: "Bob"}

	saved, err := e.pipeline.SaveURL(ctx, bob, "https://open.spotify.com/album/AL1")
	require.NoError(t, err)
	again, err := e.pipeline.SaveURL(ctx, bob, "https://open.spotify.com/album/AL1?si=x")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, again.ID)
	assert.Equal(t, int64(1), e.count(t, &domain.SavedLink{}))

	user, err := e.store.FindUser(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Bob", user.FirstName)

	_, err = e.pipeline.SaveURL(ctx, domain.User{ID: 3}, "not a link")
	assert.True(t, errors.Is(err, ErrInvalidLink))
	_, err = e.store.FindUser(ctx, 3)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestPipeline_FollowURL(t *testing.T) {
	ctx := context.Background()
	e := setup(t)
	alice := domain.User{ID: 1, Username: "alice"}

	res, artist, err := e.pipeline.FollowURL(ctx, alice, "https://open.spotify.com/artist/A")
	require.NoError(t, err)
	assert.Equal(t, activity.Done(), res)
	assert.Equal(t, "Artist A", artist.Name)

	user, err := e.store.FindUser(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)

	res, _, err = e.pipeline.FollowURL(ctx, alice, "https://open.spotify.com/artist/A")
	require.NoError(t, err)
	assert.Equal(t, activity.Refuse(activity.CodeAlreadyFollowing), res)

	_, _, err = e.pipeline.FollowURL(ctx, alice, "https://open.spotify.com/album/AL1")
	assert.True(t, errors.Is(err, ErrNotArtist))

	_, _, err = e.pipeline.FollowURL(ctx, alice, "not a link")
	assert.True(t, errors.Is(err, ErrInvalidLink))
}
