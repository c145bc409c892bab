package store

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/musicbucket/internal/domain/catalog"
)

// entityJoins resolves the entity of link l and its primary artist pa.
// Artist links are their own primary artist; albums and tracks use position 0.
const entityJoins = `LEFT JOIN artists ar ON ar.id = l.artist_id
LEFT JOIN albums al ON al.id = l.album_id
LEFT JOIN tracks tr ON tr.id = l.track_id
LEFT JOIN album_artists aa ON aa.album_id = l.album_id AND aa.position = 0
LEFT JOIN track_artists ta ON ta.track_id = l.track_id AND ta.position = 0
LEFT JOIN artists pa ON pa.id = COALESCE(l.artist_id, aa.artist_id, ta.artist_id)`

const titleColumn = "COALESCE(ar.name, al.name, tr.name, '')"

// SentLinkView is a send joined with its sender, chat and link entity.
type SentLinkView struct {
	ID         string
	SentAt     time.Time
	ChatID     int64
	ChatName   string
	UserID     int64
	Username   string
	FirstName  string
	LinkID     uint
	URL        string
	LinkType   catalog.LinkType
	Title      string
	ArtistName string
}

// Sender returns the sender's username, falling back to the first name.
func (v *SentLinkView) Sender() string {
	if v.Username != "" {
		return v.Username
	}
	return v.FirstName
}

// SentLinkFilter selects sends. Zero fields do not filter.
type SentLinkFilter struct {
	ChatID   int64
	UserID   int64
	Username string
	Since    time.Time
}

// ListSentLinks returns matching sends oldest first.
func (s *Store) ListSentLinks(ctx context.Context, f SentLinkFilter) ([]SentLinkView, error) {
	q := s.db.WithContext(ctx).
		Table("sent_links AS sl").
		Select("sl.id, sl.sent_at, sl.chat_id, c.name AS chat_name, sl.user_id, u.username, u.first_name, " +
			"l.id AS link_id, l.url, l.link_type, " + titleColumn + " AS title, COALESCE(pa.name, '') AS artist_name").
		Joins("JOIN users u ON u.id = sl.user_id").
		Joins("JOIN chats c ON c.id = sl.chat_id").
		Joins("JOIN links l ON l.id = sl.link_id").
		Joins(entityJoins)

	if f.ChatID != 0 {
		q = q.Where("sl.chat_id = ?", f.ChatID)
	}
	if f.UserID != 0 {
		q = q.Where("sl.user_id = ?", f.UserID)
	}
	if f.Username != "" {
		q = q.Where("u.username = ?", f.Username)
	}
	if !f.Since.IsZero() {
		q = q.Where("sl.sent_at >= ?", f.Since.UTC())
	}

	var views []SentLinkView
	if err := q.Order("sl.sent_at, sl.id").Scan(&views).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list sent links")
	}
	return views, nil
}

// UserSends is the number of sends by one user.
type UserSends struct {
	UserID    int64
	Username  string
	FirstName string
	Sends     int64
}

// CountSendsByUser returns per-user send counts in a chat, highest first.
func (s *Store) CountSendsByUser(ctx context.Context, chatID int64) ([]UserSends, error) {
	var counts []UserSends
	err := s.db.WithContext(ctx).
		Table("sent_links AS sl").
		Select("u.id AS user_id, u.username, u.first_name, COUNT(*) AS sends").
		Joins("JOIN users u ON u.id = sl.user_id").
		Where("sl.chat_id = ?", chatID).
		Group("u.id, u.username, u.first_name").
		Order("sends DESC, u.id").
		Scan(&counts).Error
	return counts, errors.Wrapf(err, "failed to count sends in chat %d", chatID)
}

// GenreSends is the number of sends attributed to one genre.
type GenreSends struct {
	Genre string
	Sends int64
}

// CountSendsByGenre returns the most sent genres of a chat.
// A send counts once for every genre of its link's primary artist.
func (s *Store) CountSendsByGenre(ctx context.Context, chatID int64, limit int) ([]GenreSends, error) {
	var counts []GenreSends
	err := s.db.WithContext(ctx).
		Table("sent_links AS sl").
		Select("ag.genre_name AS genre, COUNT(*) AS sends").
		Joins("JOIN links l ON l.id = sl.link_id").
		Joins("LEFT JOIN album_artists aa ON aa.album_id = l.album_id AND aa.position = 0").
		Joins("LEFT JOIN track_artists ta ON ta.track_id = l.track_id AND ta.position = 0").
		Joins("JOIN artist_genres ag ON ag.artist_id = COALESCE(l.artist_id, aa.artist_id, ta.artist_id)").
		Where("sl.chat_id = ?", chatID).
		Group("ag.genre_name").
		Order("sends DESC, ag.genre_name").
		Limit(limit).
		Scan(&counts).Error
	return counts, errors.Wrapf(err, "failed to count genres in chat %d", chatID)
}
