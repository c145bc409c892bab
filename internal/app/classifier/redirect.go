package classifier

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
)

// HTTPRedirector resolves a shortcut with a single request.
// A 3xx response yields its Location. Shortcut services that answer with an
// HTML interstitial instead are read for their og:url or canonical link.
type HTTPRedirector struct {
	client *http.Client
}

// NewHTTPRedirector creates a redirector that never follows more than one hop.
func NewHTTPRedirector(timeout time.Duration) *HTTPRedirector {
	return &HTTPRedirector{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Resolve implements Redirector.
func (r *HTTPRedirector) Resolve(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", errors.Wrap(err, "failed to build request")
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "error fetching '%s'", rawURL)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		loc, err := resp.Location()
		if err != nil {
			return "", errors.Wrapf(err, "redirect from '%s' without location", rawURL)
		}
		return loc.String(), nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			return "", errors.Newf("expected an html response at '%s', but got '%s'", rawURL, ct)
		}
		doc, err := goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return "", errors.Wrapf(err, "error parsing html from '%s'", rawURL)
		}
		target := targetFromDocument(doc)
		if target == "" {
			return "", errors.Newf("no target link in page '%s'", rawURL)
		}
		ref, err := url.Parse(target)
		if err != nil {
			return "", errors.Wrapf(err, "invalid target link '%s'", target)
		}
		return req.URL.ResolveReference(ref).String(), nil

	default:
		return "", errors.Newf("unexpected status %d from '%s'", resp.StatusCode, rawURL)
	}
}

func targetFromDocument(doc *goquery.Document) string {
	if v, ok := doc.Find(`meta[property="og:url"]`).First().Attr("content"); ok && v != "" {
		return v
	}
	if v, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok && v != "" {
		return v
	}
	return ""
}
