// Package queries answers read-only questions about what was sent to chats.
package queries

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/osa030/musicbucket/internal/infra/config"
	"github.com/osa030/musicbucket/internal/infra/store"
)

// ErrUsernameRequired is returned when a per-user query has no username.
var ErrUsernameRequired = errors.New("username required")

// SenderLinks groups the sends of one sender.
type SenderLinks struct {
	Sender string
	Links  []store.SentLinkView
}

// Stats summarizes the activity of a chat.
type Stats struct {
	Users  []store.UserSends
	Genres []store.GenreSends
}

// Service runs chat queries.
type Service struct {
	store     *store.Store
	window    time.Duration
	topGenres int
	now       func() time.Time
}

// New creates a query service. A nil clock means time.Now.
func New(st *store.Store, cfg config.QueriesConfig, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, window: cfg.Window, topGenres: cfg.TopGenres, now: now}
}

// RecentLinks returns the links sent to a chat within the configured window,
// grouped by sender in order of each sender's first send.
func (s *Service) RecentLinks(ctx context.Context, chatID int64) ([]SenderLinks, error) {
	views, err := s.store.ListSentLinks(ctx, store.SentLinkFilter{
		ChatID: chatID,
		Since:  s.now().Add(-s.window),
	})
	if err != nil {
		return nil, err
	}
	return groupBySender(views), nil
}

// UserLinks returns every link a user sent to a chat. A leading "@" in the
// username is ignored.
func (s *Service) UserLinks(ctx context.Context, chatID int64, username string) ([]store.SentLinkView, error) {
	username = strings.TrimPrefix(strings.TrimSpace(username), "@")
	if username == "" {
		return nil, ErrUsernameRequired
	}
	return s.store.ListSentLinks(ctx, store.SentLinkFilter{ChatID: chatID, Username: username})
}

// History returns the links a user sent across all chats, newest first.
func (s *Service) History(ctx context.Context, userID int64) ([]store.SentLinkView, error) {
	views, err := s.store.ListSentLinks(ctx, store.SentLinkFilter{UserID: userID})
	if err != nil {
		return nil, err
	}
	slices.Reverse(views)
	return views, nil
}

// Stats returns per-user send counts and the most sent genres of a chat.
func (s *Service) Stats(ctx context.Context, chatID int64) (*Stats, error) {
	users, err := s.store.CountSendsByUser(ctx, chatID)
	if err != nil {
		return nil, err
	}
	genres, err := s.store.CountSendsByGenre(ctx, chatID, s.topGenres)
	if err != nil {
		return nil, err
	}
	return &Stats{Users: users, Genres: genres}, nil
}

func groupBySender(views []store.SentLinkView) []SenderLinks {
	var groups []SenderLinks
	index := make(map[int64]int)
	for _, v := range views {
		i, ok := index[v.UserID]
		if !ok {
			i = len(groups)
			index[v.UserID] = i
			groups = append(groups, SenderLinks{Sender: v.Sender()})
		}
		groups[i].Links = append(groups[i].Links, v)
	}
	return groups
}
