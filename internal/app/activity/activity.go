// Package activity records what users do with links: sends, saves and follows.
package activity

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"

	domain "github.com/osa030/musicbucket/internal/domain/activity"
	"github.com/osa030/musicbucket/internal/infra/store"
)

// Result codes of follow operations.
const (
	CodeAlreadyFollowing = "already_following"
	CodeNotFollowing     = "not_following"
)

// Result is the outcome of an operation that can be refused without failing.
type Result struct {
	OK   bool
	Code string // e.g., "already_following", "not_following"
}

// Done returns a successful result.
func Done() Result {
	return Result{OK: true}
}

// Refuse returns a refused result with the given code.
func Refuse(code string) Result {
	return Result{OK: false, Code: code}
}

// Service records user activity.
type Service struct {
	store *store.Store
	now   func() time.Time
}

// New creates an activity service. A nil clock means time.Now.
func New(st *store.Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, now: now}
}

// EnsureUser stores the user on first sight. Known users are returned as stored.
func (s *Service) EnsureUser(ctx context.Context, user domain.User) (*domain.User, error) {
	return s.store.GetOrCreateUser(ctx, user)
}

// EnsureChat stores the chat on first sight. Known chats are returned as stored.
func (s *Service) EnsureChat(ctx context.Context, chat domain.Chat) (*domain.Chat, error) {
	return s.store.GetOrCreateChat(ctx, chat)
}

// RecordSend records that a user sent a link to a chat. Every call inserts a new row.
// A zero sentAt means now.
func (s *Service) RecordSend(ctx context.Context, linkID uint, userID, chatID int64, sentAt time.Time) (*domain.SentLink, error) {
	if _, err := s.store.FindLink(ctx, linkID); err != nil {
		return nil, errors.Wrap(err, "cannot record send")
	}
	if sentAt.IsZero() {
		sentAt = s.now()
	}

	sent := &domain.SentLink{
		ID:     uuid.NewString(),
		SentAt: sentAt.UTC(),
		ChatID: chatID,
		UserID: userID,
		LinkID: linkID,
	}
	if err := s.store.InsertSentLink(ctx, sent); err != nil {
		return nil, err
	}
	zlog.Debug().Msgf("recorded send: id=%s link=%d user=%d chat=%d", sent.ID, linkID, userID, chatID)
	return sent, nil
}

// Save bookmarks a link for a user. Saving an active bookmark does nothing;
// saving a removed one revives it with a fresh saved time.
func (s *Service) Save(ctx context.Context, userID int64, linkID uint) (*domain.SavedLink, error) {
	if _, err := s.store.FindLink(ctx, linkID); err != nil {
		return nil, errors.Wrap(err, "cannot save link")
	}

	saved, err := s.store.FindSavedLink(ctx, userID, linkID)
	if errors.Is(err, store.ErrNotFound) {
		saved = &domain.SavedLink{UserID: userID, LinkID: linkID, SavedAt: s.now().UTC()}
		err = s.store.InsertSavedLink(ctx, saved)
		if err == nil {
			zlog.Debug().Msgf("saved link: user=%d link=%d", userID, linkID)
			return saved, nil
		}
		if !errors.Is(err, store.ErrDuplicateKey) {
			return nil, err
		}
		// A concurrent save won.
		saved, err = s.store.FindSavedLink(ctx, userID, linkID)
	}
	if err != nil {
		return nil, err
	}

	if saved.Active() {
		return saved, nil
	}
	savedAt := s.now().UTC()
	if err := s.store.ReviveSavedLink(ctx, saved.ID, savedAt); err != nil {
		return nil, err
	}
	saved.SavedAt = savedAt
	saved.DeletedAt = nil
	zlog.Debug().Msgf("revived saved link: user=%d link=%d", userID, linkID)
	return saved, nil
}

// Unsave removes a bookmark. Removing an absent or removed bookmark is not an error.
func (s *Service) Unsave(ctx context.Context, userID int64, linkID uint) error {
	removed, err := s.store.DeleteSavedLink(ctx, userID, linkID, s.now().UTC())
	if err != nil {
		return err
	}
	if removed {
		zlog.Debug().Msgf("unsaved link: user=%d link=%d", userID, linkID)
	}
	return nil
}

// SavedLinks returns the active bookmarks of a user, newest first.
func (s *Service) SavedLinks(ctx context.Context, userID int64) ([]store.SavedLinkView, error) {
	return s.store.ListSavedLinks(ctx, userID)
}

// Follow subscribes a user to an artist that already exists in the catalog.
func (s *Service) Follow(ctx context.Context, userID int64, artistID string) (Result, error) {
	if _, err := s.store.FindArtist(ctx, artistID); err != nil {
		return Result{}, errors.Wrap(err, "cannot follow artist")
	}

	follow := &domain.FollowedArtist{UserID: userID, ArtistID: artistID, FollowedAt: s.now().UTC()}
	err := s.store.InsertFollow(ctx, follow)
	switch {
	case err == nil:
		zlog.Info().Msgf("user %d follows artist %s", userID, artistID)
		return Done(), nil
	case errors.Is(err, store.ErrDuplicateKey):
		return Refuse(CodeAlreadyFollowing), nil
	default:
		return Result{}, err
	}
}

// Unfollow removes a user's follow on an artist.
func (s *Service) Unfollow(ctx context.Context, userID int64, artistID string) (Result, error) {
	removed, err := s.store.DeleteFollow(ctx, userID, artistID)
	if err != nil {
		return Result{}, err
	}
	if !removed {
		return Refuse(CodeNotFollowing), nil
	}
	zlog.Info().Msgf("user %d unfollowed artist %s", userID, artistID)
	return Done(), nil
}

// FollowedArtists returns the follows of a user ordered by artist name.
func (s *Service) FollowedArtists(ctx context.Context, userID int64) ([]store.FollowView, error) {
	return s.store.ListFollowViews(ctx, userID)
}
