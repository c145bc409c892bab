package classifier

import (
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/musicbucket/internal/domain/catalog"
	"github.com/osa030/musicbucket/internal/infra/config"
)

// SpotifyProviderConfig holds the settings of a "spotify" provider entry.
type SpotifyProviderConfig struct {
	Hosts         []string `mapstructure:"hosts" default:"[\"open.spotify.com\",\"play.spotify.com\"]" validate:"min=1,dive,hostname"`
	ShortHosts    []string `mapstructure:"short_hosts" default:"[\"spotify.link\",\"spoti.fi\"]" validate:"dive,hostname"`
	CanonicalHost string   `mapstructure:"canonical_host" default:"open.spotify.com" validate:"required,hostname"`
}

// ProvidersFromConfig builds the provider set from configuration.
// No configured providers means the built-in defaults.
func ProvidersFromConfig(cfgs []config.ProviderConfig) ([]Provider, error) {
	if len(cfgs) == 0 {
		return DefaultProviders(), nil
	}

	providers := make([]Provider, 0, len(cfgs))
	for i, pcfg := range cfgs {
		zlog.Debug().Msgf("creating link provider: index=%d type=%s settings=%+v", i+1, pcfg.Type, pcfg.Settings)
		switch pcfg.Type {
		case string(catalog.StreamingServiceSpotify):
			p, err := newSpotifyProvider(pcfg.Settings)
			if err != nil {
				return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
			}
			providers = append(providers, p)
		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}
	}
	return providers, nil
}

func newSpotifyProvider(settings map[string]any) (Provider, error) {
	var cfg SpotifyProviderConfig
	if err := mapstructure.Decode(settings, &cfg); err != nil {
		return Provider{}, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&cfg); err != nil {
		return Provider{}, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Provider{}, errors.Wrap(err, "validation failed")
	}
	return Provider{
		Service:       catalog.StreamingServiceSpotify,
		Hosts:         cfg.Hosts,
		ShortHosts:    cfg.ShortHosts,
		CanonicalHost: cfg.CanonicalHost,
	}, nil
}
