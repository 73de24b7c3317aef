package media

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/croquis/internal/domain/item"
	"github.com/osa030/croquis/internal/infra/config"
)

// Deps holds the clients sources may need. Nil clients are only an error
// when a source of that type is configured.
type Deps struct {
	Spotify   SpotifyClient
	NewLastFm func(apiKey string) (LastFmClient, error)
}

// SourceTypes returns the supported source type names.
func SourceTypes() []string {
	return []string{
		string(item.SourceTypeDirectory),
		string(item.SourceTypeSpotify),
		string(item.SourceTypeLastFm),
	}
}

// NewChainFromConfig creates the source chain of one lane.
func NewChainFromConfig(lane config.LaneConfig, deps Deps) (*Chain, error) {
	if len(lane.Sources) == 0 {
		return nil, errors.New("no sources configured")
	}

	var sources []SourceWithMetadata
	for i, scfg := range lane.Sources {
		var (
			src Source
			err error
		)
		zlog.Debug().Msgf("creating source: index=%d type=%s settings=%+v", i+1, scfg.Type, redact(scfg.Settings))

		switch item.SourceType(scfg.Type) {
		case item.SourceTypeDirectory:
			src, err = NewDirectorySource(scfg.Settings)
		case item.SourceTypeSpotify:
			src, err = NewSpotifySource(deps.Spotify, scfg.Settings)
		case item.SourceTypeLastFm:
			src, err = NewLastFmSource(scfg.Settings, deps.NewLastFm)
		default:
			return nil, errors.Newf("unsupported source type: %s (source index %d)", scfg.Type, i)
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create source (index %d, type %s)", i, scfg.Type)
		}

		name := scfg.DisplayName
		if name == "" {
			name = fmt.Sprintf("%s#%d", scfg.Type, i+1)
		}
		sources = append(sources, SourceWithMetadata{Source: src, DisplayName: name})
		zlog.Info().Msgf("registered source: index=%d type=%s display_name=%s", i+1, scfg.Type, name)
	}

	return NewChain(sources), nil
}

// decodeSettings decodes a settings map into out, applies defaults and
// validates the result.
func decodeSettings(settings map[string]any, out any) error {
	if err := mapstructure.Decode(settings, out); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(out); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(out); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}

// redact hides secrets before settings are logged.
func redact(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, v := range settings {
		if k == "api_key" {
			v = "***"
		}
		out[k] = v
	}
	return out
}
