package media

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/croquis/internal/domain/item"
	"github.com/osa030/croquis/internal/infra/config"
	"github.com/osa030/croquis/internal/infra/lastfm"
	"github.com/osa030/croquis/internal/infra/spotify"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
}

func TestDirectorySource_Load(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.png"))
	touch(t, filepath.Join(dir, "a.JPG"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, ".hidden.png"))
	touch(t, filepath.Join(dir, "poses", "c.webp"))
	touch(t, filepath.Join(dir, ".cache", "d.png"))

	tests := []struct {
		name      string
		recursive bool
		want      []string
	}{
		{name: "flat", recursive: false, want: []string{"a", "b"}},
		{name: "recursive", recursive: true, want: []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src, err := NewDirectorySource(map[string]any{"path": dir, "recursive": tt.recursive})
			require.NoError(t, err)

			items, err := src.Load(context.Background())
			require.NoError(t, err)

			names := make([]string, len(items))
			for i, it := range items {
				names[i] = it.Name
				assert.Equal(t, item.SourceTypeDirectory, it.Source)
				assert.Equal(t, item.NewID(it.DisplayRef), it.ID)
			}
			assert.Equal(t, tt.want, names)
			if tt.recursive {
				assert.Equal(t, "poses", items[2].Caption)
			}
		})
	}
}

func TestDirectorySource_Extensions(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "a.png"))
	touch(t, filepath.Join(dir, "b.tiff"))

	src, err := NewDirectorySource(map[string]any{"path": dir, "extensions": []any{"TIFF"}})
	require.NoError(t, err)

	items, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "b", items[0].Name)
}

func TestDirectorySource_Errors(t *testing.T) {
	_, err := NewDirectorySource(map[string]any{})
	assert.Error(t, err, "path is required")

	src, err := NewDirectorySource(map[string]any{"path": filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)
	_, err = src.Load(context.Background())
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file.png")
	touch(t, file)
	src, err = NewDirectorySource(map[string]any{"path": file})
	require.NoError(t, err)
	_, err = src.Load(context.Background())
	assert.Error(t, err)
}

type changeRecorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *changeRecorder) add(c Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *changeRecorder) has(kind ChangeKind, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.changes {
		if c.Kind == kind && c.Item.Name == name {
			return true
		}
	}
	return false
}

func TestDirectorySource_Watch(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "old.png")
	touch(t, existing)

	src, err := NewDirectorySource(map[string]any{"path": dir, "settle_ms": 10})
	require.NoError(t, err)
	items, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	rec := &changeRecorder{}
	require.NoError(t, src.Watch(ctx, rec.add))

	touch(t, filepath.Join(dir, "new.png"))
	touch(t, filepath.Join(dir, "ignored.txt"))
	require.NoError(t, os.Remove(existing))

	assert.Eventually(t, func() bool {
		return rec.has(ChangeAdded, "new") && rec.has(ChangeRemoved, "old")
	}, 5*time.Second, 20*time.Millisecond)

	// Removal maps back to the loaded item
	rec.mu.Lock()
	for _, c := range rec.changes {
		if c.Kind == ChangeRemoved {
			assert.Equal(t, items[0].ID, c.Item.ID)
		}
		assert.NotEqual(t, "ignored", c.Item.Name)
	}
	rec.mu.Unlock()
}

func TestDirectorySource_WatchDisabled(t *testing.T) {
	src, err := NewDirectorySource(map[string]any{"path": t.TempDir(), "watch": false})
	require.NoError(t, err)
	assert.NoError(t, src.Watch(context.Background(), func(Change) {
		t.Error("unexpected change")
	}))
}

type fakeSpotify struct {
	playlist []spotify.Artwork
	search   []spotify.Artwork
	err      error
	query    string
}

func (f *fakeSpotify) GetPlaylistArtwork(_ context.Context, _ string) ([]spotify.Artwork, error) {
	return f.playlist, f.err
}

func (f *fakeSpotify) SearchAlbumArtwork(_ context.Context, query string, _ int) ([]spotify.Artwork, error) {
	f.query = query
	return f.search, f.err
}

func TestSpotifySource(t *testing.T) {
	client := &fakeSpotify{
		playlist: []spotify.Artwork{
			{AlbumID: "1", Album: "One", Artists: []string{"A", "B"}, ImageURL: "https://i.scdn.co/1"},
			{AlbumID: "2", Album: "Two", ImageURL: ""},
		},
		search: []spotify.Artwork{{AlbumID: "3", Album: "Three", ImageURL: "https://i.scdn.co/3"}},
	}

	src, err := NewSpotifySource(client, map[string]any{"playlist_url": "spotify:playlist:x"})
	require.NoError(t, err)
	items, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "One", items[0].Name)
	assert.Equal(t, "A, B", items[0].Caption)
	assert.True(t, items[0].IsRemote())

	src, err = NewSpotifySource(client, map[string]any{"query": "figure drawing"})
	require.NoError(t, err)
	items, err = src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "figure drawing", client.query)

	_, err = NewSpotifySource(client, map[string]any{})
	assert.Error(t, err, "playlist or query required")
	_, err = NewSpotifySource(nil, map[string]any{"query": "x"})
	assert.Error(t, err)

	client.err = errors.New("boom")
	_, err = src.Load(context.Background())
	assert.Error(t, err)
}

type fakeLastFm struct {
	albums []lastfm.Album
	tag    string
	artist string
}

func (f *fakeLastFm) GetTagTopAlbums(_ context.Context, tag string, _ int) ([]lastfm.Album, error) {
	f.tag = tag
	return f.albums, nil
}

func (f *fakeLastFm) GetArtistTopAlbums(_ context.Context, artist string, _ int) ([]lastfm.Album, error) {
	f.artist = artist
	return f.albums, nil
}

func TestLastFmSource(t *testing.T) {
	client := &fakeLastFm{albums: []lastfm.Album{
		{Name: "Cover", Artist: "Someone", ImageURL: "https://lastfm/img.png"},
		{Name: "Blank", Artist: "Nobody"},
	}}
	var gotKey string
	newClient := func(apiKey string) (LastFmClient, error) {
		gotKey = apiKey
		return client, nil
	}

	src, err := NewLastFmSource(map[string]any{"api_key": "k", "tag": "portrait"}, newClient)
	require.NoError(t, err)
	assert.Equal(t, "k", gotKey)

	items, err := src.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Cover", items[0].Name)
	assert.Equal(t, "Someone", items[0].Caption)
	assert.Equal(t, item.SourceTypeLastFm, items[0].Source)
	assert.Equal(t, "portrait", client.tag)

	src, err = NewLastFmSource(map[string]any{"api_key": "k", "artist": "Someone"}, newClient)
	require.NoError(t, err)
	_, err = src.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Someone", client.artist)

	_, err = NewLastFmSource(map[string]any{"api_key": "k"}, newClient)
	assert.Error(t, err, "tag or artist required")
	_, err = NewLastFmSource(map[string]any{"tag": "x"}, newClient)
	assert.Error(t, err, "api key required")
	_, err = NewLastFmSource(nil, newClient)
	assert.Error(t, err)
}

type staticSource struct {
	name  string
	items []item.Item
	err   error
}

func (s *staticSource) Load(context.Context) ([]item.Item, error) { return s.items, s.err }
func (s *staticSource) Name() string                              { return s.name }

func TestChain_Load(t *testing.T) {
	a := item.New("a", "/a.png", item.SourceTypeDirectory)
	b := item.New("b", "/b.png", item.SourceTypeDirectory)
	c := item.New("c", "https://x/c.png", item.SourceTypeSpotify)

	t.Run("merges and skips duplicates and failures", func(t *testing.T) {
		chain := NewChain([]SourceWithMetadata{
			{Source: &staticSource{name: "directory", items: []item.Item{a, b}}, DisplayName: "local"},
			{Source: &staticSource{name: "lastfm", err: errors.New("offline")}, DisplayName: "lastfm"},
			{Source: &staticSource{name: "spotify", items: []item.Item{b, c}}, DisplayName: "spotify"},
		})
		items, err := chain.Load(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []string{a.ID, b.ID, c.ID}, item.IDs(items))
		assert.Equal(t, 3, chain.Len())
	})

	t.Run("empty sources are not an error", func(t *testing.T) {
		chain := NewChain([]SourceWithMetadata{{Source: &staticSource{name: "directory"}, DisplayName: "empty"}})
		items, err := chain.Load(context.Background())
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})

	t.Run("all failed", func(t *testing.T) {
		chain := NewChain([]SourceWithMetadata{
			{Source: &staticSource{name: "spotify", err: errors.New("401")}, DisplayName: "s"},
		})
		_, err := chain.Load(context.Background())
		assert.Error(t, err)
	})
}

func TestNewChainFromConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("directory and lastfm", func(t *testing.T) {
		lane := config.LaneConfig{Sources: []config.SourceConfig{
			{Type: "directory", Settings: map[string]any{"path": dir}},
			{Type: "lastfm", DisplayName: "covers", Settings: map[string]any{"api_key": "k", "tag": "jazz"}},
		}}
		chain, err := NewChainFromConfig(lane, Deps{NewLastFm: func(string) (LastFmClient, error) {
			return &fakeLastFm{}, nil
		}})
		require.NoError(t, err)
		require.Equal(t, 2, chain.Len())
		assert.Equal(t, "directory#1", chain.sources[0].DisplayName)
		assert.Equal(t, "covers", chain.sources[1].DisplayName)
	})

	t.Run("spotify without client", func(t *testing.T) {
		lane := config.LaneConfig{Sources: []config.SourceConfig{
			{Type: "spotify", Settings: map[string]any{"query": "x"}},
		}}
		_, err := NewChainFromConfig(lane, Deps{})
		assert.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		lane := config.LaneConfig{Sources: []config.SourceConfig{{Type: "ftp"}}}
		_, err := NewChainFromConfig(lane, Deps{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported source type")
	})

	t.Run("no sources", func(t *testing.T) {
		_, err := NewChainFromConfig(config.LaneConfig{}, Deps{})
		assert.Error(t, err)
	})
}

func TestRedact(t *testing.T) {
	out := redact(map[string]any{"api_key": "secret", "tag": "jazz"})
	assert.Equal(t, "***", out["api_key"])
	assert.Equal(t, "jazz", out["tag"])
}

func TestSourceTypes(t *testing.T) {
	assert.Equal(t, []string{"directory", "spotify", "lastfm"}, SourceTypes())
}
