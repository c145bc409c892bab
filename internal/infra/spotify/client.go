// Package spotify provides a metadata resolver backed by the Spotify Web API.
package spotify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/osa030/musicbucket/internal/app/resolver"
)

const pageLimit = 50

// Client is a Spotify API client implementing resolver.Resolver.
type Client struct {
	client        *spotify.Client
	market        string
	includeGroups []spotify.AlbumType
	maxRetries    int
	retryDelay    time.Duration
}

var _ resolver.Resolver = (*Client)(nil)

// Config represents Spotify client configuration.
type Config struct {
	ClientID      string
	ClientSecret  string
	Market        string
	IncludeGroups []string // discography groups: album, single, appears_on, compilation
	MaxRetries    int
	RetryDelay    time.Duration
}

// New creates a Spotify client authenticated with the client credentials flow.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("spotify credentials are required")
	}

	creds := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	// The token source refreshes itself when the access token expires.
	httpClient := creds.Client(ctx)

	return newClient(spotify.New(httpClient), cfg), nil
}

func newClient(api *spotify.Client, cfg Config) *Client {
	market := cfg.Market
	if market == "" {
		market = "JP"
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	return &Client{
		client:        api,
		market:        market,
		includeGroups: parseAlbumGroups(cfg.IncludeGroups),
		maxRetries:    maxRetries,
		retryDelay:    retryDelay,
	}
}

// Artist retrieves a full artist.
func (c *Client) Artist(ctx context.Context, id string) (*resolver.ArtistPayload, error) {
	var result *spotify.FullArtist
	err := c.retry(ctx, func() error {
		a, err := c.client.GetArtist(ctx, spotify.ID(id))
		if err != nil {
			return err
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, resolver.Failed(err, "failed to get artist %s", id)
	}

	payload := convertArtist(result)
	if err := resolver.Validate(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Album retrieves a full album.
func (c *Client) Album(ctx context.Context, id string) (*resolver.AlbumPayload, error) {
	var result *spotify.FullAlbum
	err := c.retry(ctx, func() error {
		a, err := c.client.GetAlbum(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, resolver.Failed(err, "failed to get album %s", id)
	}

	payload := convertAlbum(result)
	if err := resolver.Validate(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// Track retrieves a full track.
func (c *Client) Track(ctx context.Context, id string) (*resolver.TrackPayload, error) {
	var result *spotify.FullTrack
	err := c.retry(ctx, func() error {
		t, err := c.client.GetTrack(ctx, spotify.ID(id), spotify.Market(c.market))
		if err != nil {
			return err
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, resolver.Failed(err, "failed to get track %s", id)
	}

	payload := convertTrack(result)
	if err := resolver.Validate(payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// ArtistAlbums retrieves the artist's discography for the configured groups.
func (c *Client) ArtistAlbums(ctx context.Context, id string) ([]resolver.AlbumRef, error) {
	var refs []resolver.AlbumRef
	offset := 0

	for {
		var page *spotify.SimpleAlbumPage
		err := c.retry(ctx, func() error {
			p, err := c.client.GetArtistAlbums(ctx, spotify.ID(id), c.includeGroups,
				spotify.Limit(pageLimit),
				spotify.Offset(offset),
				spotify.Market(c.market),
			)
			if err != nil {
				return err
			}
			page = p
			return nil
		})
		if err != nil {
			return nil, resolver.Failed(err, "failed to get albums of artist %s", id)
		}

		for _, a := range page.Albums {
			if a.ID == "" {
				continue
			}
			refs = append(refs, convertAlbumRef(&a))
		}

		if len(page.Albums) < pageLimit {
			break
		}
		offset += pageLimit
	}

	zlog.Debug().Msgf("fetched discography: artist=%s albums=%d", id, len(refs))
	return refs, nil
}

// convertArtist converts a Spotify FullArtist to a resolver payload.
func convertArtist(a *spotify.FullArtist) *resolver.ArtistPayload {
	return &resolver.ArtistPayload{
		ID:         string(a.ID),
		Name:       a.Name,
		Image:      firstImage(a.Images),
		Popularity: int(a.Popularity),
		URL:        externalURL(a.ExternalURLs, "artist", string(a.ID)),
		URI:        string(a.URI),
		Genres:     a.Genres,
	}
}

// convertAlbum converts a Spotify FullAlbum to a resolver payload.
// The library's album model carries no record label, so Label stays empty.
func convertAlbum(a *spotify.FullAlbum) *resolver.AlbumPayload {
	return &resolver.AlbumPayload{
		ID:                   string(a.ID),
		Name:                 a.Name,
		Image:                firstImage(a.Images),
		Popularity:           int(a.Popularity),
		AlbumType:            a.AlbumType,
		URL:                  externalURL(a.ExternalURLs, "album", string(a.ID)),
		URI:                  string(a.URI),
		ReleaseDate:          a.ReleaseDate,
		ReleaseDatePrecision: a.ReleaseDatePrecision,
		Genres:               a.Genres,
		Artists:              convertArtistRefs(a.Artists),
	}
}

// convertTrack converts a Spotify FullTrack to a resolver payload.
func convertTrack(t *spotify.FullTrack) *resolver.TrackPayload {
	return &resolver.TrackPayload{
		ID:          string(t.ID),
		Name:        t.Name,
		TrackNumber: int(t.TrackNumber),
		DurationMs:  int(t.Duration),
		Explicit:    t.Explicit,
		Popularity:  int(t.Popularity),
		PreviewURL:  t.PreviewURL,
		URL:         externalURL(t.ExternalURLs, "track", string(t.ID)),
		URI:         string(t.URI),
		Album:       convertAlbumRef(&t.Album),
		Artists:     convertArtistRefs(t.Artists),
	}
}

func convertAlbumRef(a *spotify.SimpleAlbum) resolver.AlbumRef {
	return resolver.AlbumRef{
		ID:                   string(a.ID),
		Name:                 a.Name,
		AlbumType:            a.AlbumType,
		ReleaseDate:          a.ReleaseDate,
		ReleaseDatePrecision: a.ReleaseDatePrecision,
	}
}

func convertArtistRefs(artists []spotify.SimpleArtist) []resolver.ArtistRef {
	refs := make([]resolver.ArtistRef, len(artists))
	for i, a := range artists {
		refs[i] = resolver.ArtistRef{ID: string(a.ID), Name: a.Name}
	}
	return refs
}

func firstImage(images []spotify.Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}

// externalURL returns the canonical open.spotify.com URL of an entity.
func externalURL(urls map[string]string, kind, id string) string {
	if u, ok := urls["spotify"]; ok && u != "" {
		return u
	}
	return fmt.Sprintf("https://open.spotify.com/%s/%s", kind, id)
}

// parseAlbumGroups maps group names to Spotify album types. Unknown names are ignored.
func parseAlbumGroups(groups []string) []spotify.AlbumType {
	if len(groups) == 0 {
		groups = []string{"album", "single"}
	}
	var types []spotify.AlbumType
	for _, g := range groups {
		switch strings.ToLower(g) {
		case "album":
			types = append(types, spotify.AlbumTypeAlbum)
		case "single":
			types = append(types, spotify.AlbumTypeSingle)
		case "appears_on":
			types = append(types, spotify.AlbumTypeAppearsOn)
		case "compilation":
			types = append(types, spotify.AlbumTypeCompilation)
		}
	}
	return types
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			zlog.Debug().Msgf("retrying spotify request (attempt %d/%d): %v", i+1, c.maxRetries, err)
			select {
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), "retry canceled")
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable checks if an error is retryable.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == 429 || apiErr.Status >= 500
	}
	// Rate limit errors and server errors are retryable
	errStr := err.Error()
	return strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "429") ||
		strings.Contains(errStr, "500") ||
		strings.Contains(errStr, "502") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "504")
}
