// Package media provides the sources that fill playlists with items.
package media

import (
	"context"

	"github.com/osa030/croquis/internal/domain/item"
	"github.com/osa030/croquis/internal/infra/lastfm"
	"github.com/osa030/croquis/internal/infra/spotify"
)

// Source is the interface for item sources.
// Different implementations find visual references in different places
// (e.g., a local directory, album covers of a Spotify playlist).
type Source interface {
	// Load returns every item the source currently offers.
	Load(ctx context.Context) ([]item.Item, error)

	// Name returns the source type name (used in config).
	Name() string
}

// ChangeKind describes what happened to an item.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeRemoved
)

// String returns the string representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Change is a single item change reported by a watching source.
type Change struct {
	Kind ChangeKind
	Item item.Item
}

// Watcher is implemented by sources that can report changes after Load.
// Watch returns once watching has started; it stops when ctx is done.
type Watcher interface {
	Watch(ctx context.Context, onChange func(Change)) error
}

// SpotifyClient defines the Spotify operations needed by sources.
type SpotifyClient interface {
	GetPlaylistArtwork(ctx context.Context, playlistURL string) ([]spotify.Artwork, error)
	SearchAlbumArtwork(ctx context.Context, query string, limit int) ([]spotify.Artwork, error)
}

// LastFmClient defines the Last.fm operations needed by sources.
type LastFmClient interface {
	GetTagTopAlbums(ctx context.Context, tagName string, limit int) ([]lastfm.Album, error)
	GetArtistTopAlbums(ctx context.Context, artistName string, limit int) ([]lastfm.Album, error)
}
