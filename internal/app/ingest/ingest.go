// Package ingest turns chat messages into catalog links and recorded sends.
package ingest

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/musicbucket/internal/app/activity"
	"github.com/osa030/musicbucket/internal/app/classifier"
	"github.com/osa030/musicbucket/internal/app/reconcile"
	domain "github.com/osa030/musicbucket/internal/domain/activity"
	"github.com/osa030/musicbucket/internal/domain/catalog"
)

var (
	// ErrInvalidLink is returned when a message carries no supported entity link.
	ErrInvalidLink = errors.New("invalid link")
	// ErrNotArtist is returned when following a link that is not an artist.
	ErrNotArtist = errors.New("link is not an artist")
)

// Message is a chat message handed over by the transport.
type Message struct {
	Text      string
	UserID    int64
	Username  string
	FirstName string
	ChatID    int64
	ChatName  string
	SentAt    time.Time // zero means now
}

// Result is the outcome of ingesting a message.
type Result struct {
	Link *catalog.Link
	Sent *domain.SentLink
}

// Pipeline wires the classifier, the reconciliation engine and the activity recorder.
type Pipeline struct {
	classifier *classifier.Classifier
	reconcile  *reconcile.Service
	activity   *activity.Service
}

// New creates an ingestion pipeline.
func New(c *classifier.Classifier, rc *reconcile.Service, act *activity.Service) *Pipeline {
	return &Pipeline{classifier: c, reconcile: rc, activity: act}
}

// Ingest records the first supported link in a message as sent by its author.
// Sending a known link records a new send and creates no catalog rows.
func (p *Pipeline) Ingest(ctx context.Context, msg Message) (*Result, error) {
	raw := classifier.ExtractURL(msg.Text)
	if raw == "" {
		zlog.Info().Msgf("no link in message: user=%d chat=%d", msg.UserID, msg.ChatID)
		return nil, ErrInvalidLink
	}

	link, err := p.ResolveURL(ctx, raw)
	if err != nil {
		return nil, err
	}

	if _, err := p.activity.EnsureUser(ctx, domain.User{ID: msg.UserID, Username: msg.Username, FirstName: msg.FirstName}); err != nil {
		return nil, err
	}
	if _, err := p.activity.EnsureChat(ctx, domain.Chat{ID: msg.ChatID, Name: msg.ChatName}); err != nil {
		return nil, err
	}

	sent, err := p.activity.RecordSend(ctx, link.ID, msg.UserID, msg.ChatID, msg.SentAt)
	if err != nil {
		return nil, err
	}
	zlog.Info().Msgf("link sent: url=%s type=%s user=%d chat=%d", link.URL, link.LinkType, msg.UserID, msg.ChatID)
	return &Result{Link: link, Sent: sent}, nil
}

// ResolveURL classifies a URL and creates or gets its link and entity.
func (p *Pipeline) ResolveURL(ctx context.Context, raw string) (*catalog.Link, error) {
	c := p.classifier.Classify(ctx, raw)
	if !c.Valid {
		zlog.Info().Msgf("ignoring unsupported link: %s", raw)
		return nil, errors.Wrapf(ErrInvalidLink, "%s", raw)
	}

	link, err := p.reconcile.Link(ctx, c.CanonicalURL, c.Type, c.Service, c.EntityID)
	if err != nil {
		zlog.Warn().Msgf("failed to resolve %s %s: %v", c.Type, c.EntityID, err)
		return nil, err
	}
	return link, nil
}

// SaveURL bookmarks the link behind a URL for a user, registering the user on first sight.
func (p *Pipeline) SaveURL(ctx context.Context, user domain.User, raw string) (*domain.SavedLink, error) {
	link, err := p.ResolveURL(ctx, raw)
	if err != nil {
		return nil, err
	}
	if _, err := p.activity.EnsureUser(ctx, user); err != nil {
		return nil, err
	}
	return p.activity.Save(ctx, user.ID, link.ID)
}

// FollowURL follows the artist behind a URL, registering the user on first sight.
func (p *Pipeline) FollowURL(ctx context.Context, user domain.User, raw string) (activity.Result, *catalog.Artist, error) {
	c := p.classifier.Classify(ctx, raw)
	if !c.Valid {
		return activity.Result{}, nil, errors.Wrapf(ErrInvalidLink, "%s", raw)
	}
	if c.Type != catalog.LinkTypeArtist {
		return activity.Result{}, nil, errors.Wrapf(ErrNotArtist, "%s", c.Type)
	}

	artist, err := p.reconcile.Artist(ctx, c.EntityID)
	if err != nil {
		return activity.Result{}, nil, err
	}
	if _, err := p.activity.EnsureUser(ctx, user); err != nil {
		return activity.Result{}, nil, err
	}
	res, err := p.activity.Follow(ctx, user.ID, artist.ID)
	return res, artist, err
}
