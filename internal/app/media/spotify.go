package media

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/croquis/internal/domain/item"
	"github.com/osa030/croquis/internal/infra/spotify"
)

type SpotifySourceConfig struct {
	PlaylistURL string `yaml:"playlist_url" mapstructure:"playlist_url" validate:"required_without=Query"`
	Query       string `yaml:"query" mapstructure:"query" validate:"required_without=PlaylistURL"`
	Limit       int    `yaml:"limit" mapstructure:"limit" default:"50" validate:"gte=1,lte=50"`
}

// SpotifySource provides album covers from a Spotify playlist or album search.
type SpotifySource struct {
	spotify SpotifyClient
	config  *SpotifySourceConfig
}

// NewSpotifySource creates a new SpotifySource.
func NewSpotifySource(client SpotifyClient, settings map[string]any) (*SpotifySource, error) {
	if client == nil {
		return nil, errors.New("spotify client is required")
	}

	var config SpotifySourceConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	return &SpotifySource{spotify: client, config: &config}, nil
}

// Name returns the source name.
func (s *SpotifySource) Name() string {
	return string(item.SourceTypeSpotify)
}

// Load fetches the covers. A playlist takes precedence over a query.
func (s *SpotifySource) Load(ctx context.Context) ([]item.Item, error) {
	var (
		artworks []spotify.Artwork
		err      error
	)
	if s.config.PlaylistURL != "" {
		artworks, err = s.spotify.GetPlaylistArtwork(ctx, s.config.PlaylistURL)
	} else {
		artworks, err = s.spotify.SearchAlbumArtwork(ctx, s.config.Query, s.config.Limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch spotify artwork")
	}

	items := make([]item.Item, 0, len(artworks))
	for _, art := range artworks {
		if art.ImageURL == "" {
			continue
		}
		it := item.New(art.Album, art.ImageURL, item.SourceTypeSpotify)
		it.Caption = strings.Join(art.Artists, ", ")
		items = append(items, it)
	}

	zlog.Debug().Msgf("spotify source loaded: covers=%d", len(items))
	return items, nil
}
