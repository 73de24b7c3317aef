package media

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/croquis/internal/domain/item"
	"github.com/osa030/croquis/internal/infra/lastfm"
)

type LastFmSourceConfig struct {
	APIKey string `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	Tag    string `yaml:"tag" mapstructure:"tag" validate:"required_without=Artist"`
	Artist string `yaml:"artist" mapstructure:"artist" validate:"required_without=Tag"`
	Limit  int    `yaml:"limit" mapstructure:"limit" default:"50" validate:"gte=1,lte=100"`
}

// LastFmSource provides top-album covers for a Last.fm tag or artist.
type LastFmSource struct {
	lastfm LastFmClient
	config *LastFmSourceConfig
}

// NewLastFmSource creates a new LastFmSource. The client is built from the
// api_key setting when newClient is nil.
func NewLastFmSource(settings map[string]any, newClient func(apiKey string) (LastFmClient, error)) (*LastFmSource, error) {
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}

	var config LastFmSourceConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}

	if newClient == nil {
		newClient = func(apiKey string) (LastFmClient, error) {
			return lastfm.New(lastfm.Config{APIKey: apiKey})
		}
	}
	client, err := newClient(config.APIKey)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}

	return &LastFmSource{lastfm: client, config: &config}, nil
}

// Name returns the source name.
func (s *LastFmSource) Name() string {
	return string(item.SourceTypeLastFm)
}

// Load fetches album covers. A tag takes precedence over an artist.
func (s *LastFmSource) Load(ctx context.Context) ([]item.Item, error) {
	var (
		albums []lastfm.Album
		err    error
	)
	if s.config.Tag != "" {
		albums, err = s.lastfm.GetTagTopAlbums(ctx, s.config.Tag, s.config.Limit)
	} else {
		albums, err = s.lastfm.GetArtistTopAlbums(ctx, s.config.Artist, s.config.Limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch last.fm albums")
	}

	items := make([]item.Item, 0, len(albums))
	for _, a := range albums {
		// Albums without artwork are useless here
		if a.ImageURL == "" {
			continue
		}
		it := item.New(a.Name, a.ImageURL, item.SourceTypeLastFm)
		it.Caption = a.Artist
		items = append(items, it)
	}

	zlog.Debug().Msgf("last.fm source loaded: covers=%d skipped=%d", len(items), len(albums)-len(items))
	return items, nil
}
