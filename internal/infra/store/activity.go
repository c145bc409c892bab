package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/musicbucket/internal/domain/activity"
	"github.com/osa030/musicbucket/internal/domain/catalog"
)

// GetOrCreateUser stores the user on first sight and returns the stored row.
func (s *Store) GetOrCreateUser(ctx context.Context, user activity.User) (*activity.User, error) {
	if err := s.insert(ctx, &user); err != nil && !errors.Is(err, ErrDuplicateKey) {
		return nil, errors.Wrapf(err, "failed to insert user %d", user.ID)
	}
	var stored activity.User
	if err := s.take(ctx, &stored, "id = ?", user.ID); err != nil {
		return nil, errors.Wrapf(err, "user %d", user.ID)
	}
	return &stored, nil
}

// FindUser loads a user by ID.
func (s *Store) FindUser(ctx context.Context, id int64) (*activity.User, error) {
	var user activity.User
	if err := s.take(ctx, &user, "id = ?", id); err != nil {
		return nil, errors.Wrapf(err, "user %d", id)
	}
	return &user, nil
}

// GetOrCreateChat stores the chat on first sight and returns the stored row.
func (s *Store) GetOrCreateChat(ctx context.Context, chat activity.Chat) (*activity.Chat, error) {
	if err := s.insert(ctx, &chat); err != nil && !errors.Is(err, ErrDuplicateKey) {
		return nil, errors.Wrapf(err, "failed to insert chat %d", chat.ID)
	}
	var stored activity.Chat
	if err := s.take(ctx, &stored, "id = ?", chat.ID); err != nil {
		return nil, errors.Wrapf(err, "chat %d", chat.ID)
	}
	return &stored, nil
}

// InsertSentLink records a send.
func (s *Store) InsertSentLink(ctx context.Context, sent *activity.SentLink) error {
	if err := s.db.WithContext(ctx).Create(sent).Error; err != nil {
		return errors.Wrapf(err, "failed to insert sent link for link %d", sent.LinkID)
	}
	return nil
}

// CountSentLinks returns the number of sends of a link.
func (s *Store) CountSentLinks(ctx context.Context, linkID uint) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&activity.SentLink{}).Where("link_id = ?", linkID).Count(&n).Error
	return n, errors.Wrapf(err, "failed to count sends of link %d", linkID)
}

// FindSavedLink loads the saved link of a user for a link, active or not.
func (s *Store) FindSavedLink(ctx context.Context, userID int64, linkID uint) (*activity.SavedLink, error) {
	var saved activity.SavedLink
	if err := s.take(ctx, &saved, "user_id = ? AND link_id = ?", userID, linkID); err != nil {
		return nil, errors.Wrapf(err, "saved link %d of user %d", linkID, userID)
	}
	return &saved, nil
}

// InsertSavedLink inserts a saved link. It returns ErrDuplicateKey when the pair exists.
func (s *Store) InsertSavedLink(ctx context.Context, saved *activity.SavedLink) error {
	return errors.Wrapf(s.insert(ctx, saved), "failed to insert saved link %d of user %d", saved.LinkID, saved.UserID)
}

// ReviveSavedLink clears the deletion mark and refreshes saved_at.
func (s *Store) ReviveSavedLink(ctx context.Context, id uint, savedAt time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&activity.SavedLink{}).
		Where("id = ?", id).
		Updates(map[string]any{"deleted_at": nil, "saved_at": savedAt}).Error
	return errors.Wrapf(err, "failed to revive saved link %d", id)
}

// DeleteSavedLink marks the active saved link of a user as deleted.
// It reports whether an active row was changed.
func (s *Store) DeleteSavedLink(ctx context.Context, userID int64, linkID uint, deletedAt time.Time) (bool, error) {
	result := s.db.WithContext(ctx).
		Model(&activity.SavedLink{}).
		Where("user_id = ? AND link_id = ? AND deleted_at IS NULL", userID, linkID).
		Update("deleted_at", deletedAt)
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "failed to delete saved link %d of user %d", linkID, userID)
	}
	return result.RowsAffected > 0, nil
}

// SavedLinkView is an active saved link joined with its link.
type SavedLinkView struct {
	ID       uint
	SavedAt  time.Time
	LinkID   uint
	URL      string
	LinkType catalog.LinkType
	Title    string
}

// ListSavedLinks returns the active saved links of a user, newest first.
func (s *Store) ListSavedLinks(ctx context.Context, userID int64) ([]SavedLinkView, error) {
	var views []SavedLinkView
	err := s.db.WithContext(ctx).
		Table("saved_links AS sv").
		Select("sv.id, sv.saved_at, l.id AS link_id, l.url, l.link_type, "+titleColumn+" AS title").
		Joins("JOIN links l ON l.id = sv.link_id").
		Joins(entityJoins).
		Where("sv.user_id = ? AND sv.deleted_at IS NULL", userID).
		Order("sv.saved_at DESC, sv.id DESC").
		Scan(&views).Error
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list saved links of user %d", userID)
	}
	return views, nil
}

// FindFollow loads the follow of a user on an artist.
func (s *Store) FindFollow(ctx context.Context, userID int64, artistID string) (*activity.FollowedArtist, error) {
	var follow activity.FollowedArtist
	if err := s.take(ctx, &follow, "user_id = ? AND artist_id = ?", userID, artistID); err != nil {
		return nil, errors.Wrapf(err, "follow of artist %s by user %d", artistID, userID)
	}
	return &follow, nil
}

// InsertFollow inserts a follow. It returns ErrDuplicateKey when the user already follows the artist.
func (s *Store) InsertFollow(ctx context.Context, follow *activity.FollowedArtist) error {
	return errors.Wrapf(s.insert(ctx, follow), "failed to insert follow of artist %s by user %d", follow.ArtistID, follow.UserID)
}

// DeleteFollow removes a follow and reports whether one existed.
func (s *Store) DeleteFollow(ctx context.Context, userID int64, artistID string) (bool, error) {
	result := s.db.WithContext(ctx).
		Where("user_id = ? AND artist_id = ?", userID, artistID).
		Delete(&activity.FollowedArtist{})
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "failed to delete follow of artist %s by user %d", artistID, userID)
	}
	return result.RowsAffected > 0, nil
}

// ListFollows returns the follows of a user ordered by follow time.
func (s *Store) ListFollows(ctx context.Context, userID int64) ([]activity.FollowedArtist, error) {
	var follows []activity.FollowedArtist
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("followed_at, id").
		Find(&follows).Error
	return follows, errors.Wrapf(err, "failed to list follows of user %d", userID)
}

// ListAllFollows returns every follow ordered by user.
func (s *Store) ListAllFollows(ctx context.Context) ([]activity.FollowedArtist, error) {
	var follows []activity.FollowedArtist
	err := s.db.WithContext(ctx).Order("user_id, followed_at, id").Find(&follows).Error
	return follows, errors.Wrap(err, "failed to list follows")
}

// FollowView is a follow joined with the artist name.
type FollowView struct {
	ID         uint
	ArtistID   string
	ArtistName string
	FollowedAt time.Time
	LastLookup *time.Time
}

// ListFollowViews returns the follows of a user with artist names, ordered by name.
func (s *Store) ListFollowViews(ctx context.Context, userID int64) ([]FollowView, error) {
	var views []FollowView
	err := s.db.WithContext(ctx).
		Table("followed_artists AS f").
		Select("f.id, f.artist_id, a.name AS artist_name, f.followed_at, f.last_lookup").
		Joins("JOIN artists a ON a.id = f.artist_id").
		Where("f.user_id = ?", userID).
		Order("a.name, f.id").
		Scan(&views).Error
	return views, errors.Wrapf(err, "failed to list follows of user %d", userID)
}

// TouchFollow sets the last lookup time of a follow.
func (s *Store) TouchFollow(ctx context.Context, id uint, at time.Time) error {
	err := s.db.WithContext(ctx).
		Model(&activity.FollowedArtist{}).
		Where("id = ?", id).
		Update("last_lookup", at).Error
	return errors.Wrapf(err, "failed to update last lookup of follow %d", id)
}
