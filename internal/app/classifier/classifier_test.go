package classifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/musicbucket/internal/domain/catalog"
	"github.com/osa030/musicbucket/internal/infra/config"
)

// mockRedirector resolves shortcuts from a fixed table and counts hops.
type mockRedirector struct {
	mu      sync.Mutex
	targets map[string]string
	calls   int
}

func (m *mockRedirector) Resolve(ctx context.Context, rawURL string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if target, ok := m.targets[rawURL]; ok {
		return target, nil
	}
	return "", errors.New("unreachable")
}

func TestClassify(t *testing.T) {
	redirector := &mockRedirector{targets: map[string]string{
		"https://spotify.link/abc":     "https://open.spotify.com/track/T9?si=share",
		"https://spotify.link/loop":    "https://spotify.link/abc",
		"https://spotify.link/list":    "https://open.spotify.com/playlist/P1",
		"https://xyz.spotify.link/sub": "https://open.spotify.com/album/AL9",
	}}
	c := New(nil, redirector)

	tests := []struct {
		name     string
		input    string
		expected Classification
	}{
		{
			name:  "track with tracking parameters",
			input: "https://open.spotify.com/track/T1?si=abc",
			expected: Classification{
				Valid: true, Type: catalog.LinkTypeTrack, EntityID: "T1",
				CanonicalURL: "https://open.spotify.com/track/T1", Service: catalog.StreamingServiceSpotify,
			},
		},
		{
			name:  "album with fragment",
			input: "https://open.spotify.com/album/AL1#top",
			expected: Classification{
				Valid: true, Type: catalog.LinkTypeAlbum, EntityID: "AL1",
				CanonicalURL: "https://open.spotify.com/album/AL1", Service: catalog.StreamingServiceSpotify,
			},
		},
		{
			name:  "artist with locale prefix and trailing slash",
			input: "https://open.spotify.com/intl-es/artist/AR1/",
			expected: Classification{
				Valid: true, Type: catalog.LinkTypeArtist, EntityID: "AR1",
				CanonicalURL: "https://open.spotify.com/artist/AR1", Service: catalog.StreamingServiceSpotify,
			},
		},
		{
			name:  "uppercase host and http scheme",
			input: "http://OPEN.SPOTIFY.COM/track/T2",
			expected: Classification{
				Valid: true, Type: catalog.LinkTypeTrack, EntityID: "T2",
				CanonicalURL: "https://open.spotify.com/track/T2", Service: catalog.StreamingServiceSpotify,
			},
		},
		{
			name:  "shortcut resolved one hop",
			input: "https://spotify.link/abc",
			expected: Classification{
				Valid: true, Type: catalog.LinkTypeTrack, EntityID: "T9",
				CanonicalURL: "https://open.spotify.com/track/T9", Service: catalog.StreamingServiceSpotify,
			},
		},
		{
			name:  "shortcut subdomain",
			input: "https://xyz.spotify.link/sub",
			expected: Classification{
				Valid: true, Type: catalog.LinkTypeAlbum, EntityID: "AL9",
				CanonicalURL: "https://open.spotify.com/album/AL9", Service: catalog.StreamingServiceSpotify,
			},
		},
		{name: "shortcut to shortcut is not followed", input: "https://spotify.link/loop"},
		{name: "shortcut to playlist", input: "https://spotify.link/list"},
		{name: "unresolvable shortcut", input: "https://spotify.link/missing"},
		{name: "playlist", input: "https://open.spotify.com/playlist/37i9dQZF1DXcBWIGoYBM5M"},
		{name: "show", input: "https://open.spotify.com/show/S1"},
		{name: "type without id", input: "https://open.spotify.com/track/"},
		{name: "other provider", input: "https://music.apple.com/album/AL1"},
		{name: "lookalike host", input: "https://open.spotify.com.evil.example/track/T1"},
		{name: "spotify URI scheme", input: "spotify:track:T1"},
		{name: "not a url", input: "hello there"},
		{name: "empty", input: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, c.Classify(context.Background(), tt.input))
		})
	}
}

func TestClassify_ShortcutOneHop(t *testing.T) {
	redirector := &mockRedirector{targets: map[string]string{
		"https://spotify.link/loop": "https://spotify.link/abc",
		"https://spotify.link/abc":  "https://open.spotify.com/track/T9",
	}}
	c := New(nil, redirector)

	got := c.Classify(context.Background(), "https://spotify.link/loop")
	assert.False(t, got.Valid)
	assert.Equal(t, 1, redirector.calls)
}

func TestClassify_NoRedirector(t *testing.T) {
	c := New(nil, nil)
	assert.False(t, c.Classify(context.Background(), "https://spotify.link/abc").Valid)
}

func TestClassify_Concurrent(t *testing.T) {
	c := New(nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := c.Classify(context.Background(), "https://open.spotify.com/track/T1?si=x")
			assert.True(t, got.Valid)
		}()
	}
	wg.Wait()
}

func TestExtractURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "url inside text",
			input:    "check this out https://open.spotify.com/track/T1?si=abc so good",
			expected: "https://open.spotify.com/track/T1?si=abc",
		},
		{
			name:     "first of several",
			input:    "http://a.example/1 https://b.example/2",
			expected: "http://a.example/1",
		},
		{
			name:     "no url",
			input:    "no links here",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractURL(tt.input))
		})
	}
}

func TestHTTPRedirector(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/redirect", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "https://open.spotify.com/album/AL1?si=x", http.StatusFound)
	})
	mux.HandleFunc("/relative", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/landing", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/interstitial", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head>
<meta property="og:url" content="https://open.spotify.com/track/T1">
</head><body>Opening Spotify...</body></html>`))
	})
	mux.HandleFunc("/app/interstitial", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><link rel="canonical" href="../track/T2"></head></html>`))
	})
	mux.HandleFunc("/blank", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body>nothing</body></html>`))
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	r := NewHTTPRedirector(5 * time.Second)
	ctx := context.Background()

	got, err := r.Resolve(ctx, server.URL+"/redirect")
	require.NoError(t, err)
	assert.Equal(t, "https://open.spotify.com/album/AL1?si=x", got)

	got, err = r.Resolve(ctx, server.URL+"/relative")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/landing", got)

	got, err = r.Resolve(ctx, server.URL+"/interstitial")
	require.NoError(t, err)
	assert.Equal(t, "https://open.spotify.com/track/T1", got)

	got, err = r.Resolve(ctx, server.URL+"/app/interstitial")
	require.NoError(t, err)
	assert.Equal(t, server.URL+"/track/T2", got)

	_, err = r.Resolve(ctx, server.URL+"/blank")
	assert.Error(t, err)

	_, err = r.Resolve(ctx, "https://[::1")
	assert.Error(t, err)

	_, err = r.Resolve(ctx, server.URL+"/json")
	assert.Error(t, err)

	_, err = r.Resolve(ctx, server.URL+"/missing")
	assert.Error(t, err)
}

func TestProvidersFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfgs    []config.ProviderConfig
		want    []Provider
		wantErr bool
	}{
		{
			name: "no providers uses defaults",
			cfgs: nil,
			want: DefaultProviders(),
		},
		{
			name: "spotify with defaults",
			cfgs: []config.ProviderConfig{{Type: "spotify"}},
			want: DefaultProviders(),
		},
		{
			name: "spotify with custom short hosts",
			cfgs: []config.ProviderConfig{{
				Type:     "spotify",
				Settings: map[string]any{"short_hosts": []any{"spotify.link"}},
			}},
			want: []Provider{{
				Service:       catalog.StreamingServiceSpotify,
				Hosts:         []string{"open.spotify.com", "play.spotify.com"},
				ShortHosts:    []string{"spotify.link"},
				CanonicalHost: "open.spotify.com",
			}},
		},
		{
			name:    "unsupported type",
			cfgs:    []config.ProviderConfig{{Type: "deezer"}},
			wantErr: true,
		},
		{
			name: "invalid canonical host",
			cfgs: []config.ProviderConfig{{
				Type:     "spotify",
				Settings: map[string]any{"canonical_host": "not a host"},
			}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ProvidersFromConfig(tt.cfgs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
