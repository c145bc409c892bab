// Package classifier recognizes provider links and normalizes them to canonical URLs.
package classifier

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"

	"github.com/osa030/musicbucket/internal/domain/catalog"
)

// Classification is the outcome of classifying a URL.
// Valid is false for anything that is not an actionable artist, album or track link.
type Classification struct {
	Valid        bool
	Type         catalog.LinkType
	EntityID     string
	CanonicalURL string
	Service      catalog.StreamingService
}

// Redirector resolves a shortcut URL one hop to its target.
type Redirector interface {
	Resolve(ctx context.Context, rawURL string) (string, error)
}

// Provider describes the hosts of one streaming service.
type Provider struct {
	Service       catalog.StreamingService
	Hosts         []string // content hosts, matched exactly
	ShortHosts    []string // shortcut domains, matched with their subdomains
	CanonicalHost string
}

// DefaultProviders returns the built-in provider set.
func DefaultProviders() []Provider {
	return []Provider{{
		Service:       catalog.StreamingServiceSpotify,
		Hosts:         []string{"open.spotify.com", "play.spotify.com"},
		ShortHosts:    []string{"spotify.link", "spoti.fi"},
		CanonicalHost: "open.spotify.com",
	}}
}

// Classifier classifies URLs. It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	providers  []Provider
	redirector Redirector
}

// New creates a classifier. A nil redirector disables shortcut resolution.
func New(providers []Provider, redirector Redirector) *Classifier {
	if len(providers) == 0 {
		providers = DefaultProviders()
	}
	return &Classifier{providers: providers, redirector: redirector}
}

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// ExtractURL returns the first http(s) URL in text, or "" if there is none.
func ExtractURL(text string) string {
	return urlPattern.FindString(text)
}

// Classify classifies raw. It never returns an error: unrecognized input,
// unsupported entity kinds and failed shortcut hops all yield Valid=false.
func (c *Classifier) Classify(ctx context.Context, raw string) Classification {
	u, err := parse(raw)
	if err != nil {
		return Classification{}
	}

	if p := c.shortcutProvider(u.Host); p != nil {
		if c.redirector == nil {
			return Classification{}
		}
		target, err := c.redirector.Resolve(ctx, u.String())
		if err != nil {
			zlog.Info().Msgf("failed to resolve shortcut link %s: %v", raw, err)
			return Classification{}
		}
		// Exactly one hop: a shortcut resolving to another shortcut is not followed.
		u, err = parse(target)
		if err != nil {
			return Classification{}
		}
	}

	p := c.contentProvider(u.Host)
	if p == nil {
		return Classification{}
	}

	linkType, id, ok := entityFromPath(u.Path)
	if !ok {
		return Classification{}
	}

	return Classification{
		Valid:        true,
		Type:         linkType,
		EntityID:     id,
		CanonicalURL: fmt.Sprintf("https://%s/%s/%s", p.CanonicalHost, linkType, id),
		Service:      p.Service,
	}
}

func parse(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Newf("unsupported scheme %q", u.Scheme)
	}
	u.Host = strings.ToLower(u.Hostname())
	u.RawQuery = ""
	u.Fragment = ""
	return u, nil
}

func (c *Classifier) contentProvider(host string) *Provider {
	for i := range c.providers {
		for _, h := range c.providers[i].Hosts {
			if host == h {
				return &c.providers[i]
			}
		}
	}
	return nil
}

func (c *Classifier) shortcutProvider(host string) *Provider {
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		domain = host
	}
	for i := range c.providers {
		for _, h := range c.providers[i].ShortHosts {
			if host == h || domain == h {
				return &c.providers[i]
			}
		}
	}
	return nil
}

// entityFromPath finds the type token and ID in a path such as
// /track/ID, /intl-es/album/ID or /embed/artist/ID.
func entityFromPath(path string) (catalog.LinkType, string, bool) {
	segments := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	for i, seg := range segments {
		t := catalog.LinkType(seg)
		if t.Valid() {
			if i+1 >= len(segments) || segments[i+1] == "" {
				return "", "", false
			}
			return t, segments[i+1], true
		}
		if !strings.HasPrefix(seg, "intl-") && seg != "embed" {
			return "", "", false
		}
	}
	return "", "", false
}
