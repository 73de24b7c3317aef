// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	// Cache for album lists keyed by method and subject
	albumCache map[string][]Album
	cacheMu    sync.RWMutex
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey string
}

// Album represents an album with its cover image.
type Album struct {
	Name     string
	Artist   string
	ImageURL string // Largest non-empty image, may be empty
}

// imageSizes orders Last.fm image sizes from smallest to largest.
var imageSizes = map[string]int{
	"small":      1,
	"medium":     2,
	"large":      3,
	"extralarge": 4,
	"mega":       5,
}

type albumJSON struct {
	Name   string `json:"name"`
	Artist struct {
		Name string `json:"name"`
	} `json:"artist"`
	Image []struct {
		URL  string `json:"#text"`
		Size string `json:"size"`
	} `json:"image"`
}

// GetTagTopAlbumsResponse represents the response from tag.getTopAlbums API.
type GetTagTopAlbumsResponse struct {
	Albums struct {
		Album []albumJSON `json:"album"`
	} `json:"albums"`
}

// GetArtistTopAlbumsResponse represents the response from artist.getTopAlbums API.
type GetArtistTopAlbumsResponse struct {
	TopAlbums struct {
		Album []albumJSON `json:"album"`
	} `json:"topalbums"`
}

// LastFMError represents an error response from Last.fm API.
type LastFMError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    "https://ws.audioscrobbler.com/2.0/",
		httpClient: &http.Client{Timeout: 10 * time.Second},
		albumCache: make(map[string][]Album),
	}, nil
}

// GetTagTopAlbums retrieves the top albums for a tag.
// Reference: https://www.last.fm/api/show/tag.getTopAlbums
func (c *Client) GetTagTopAlbums(ctx context.Context, tagName string, limit int) ([]Album, error) {
	if tagName == "" {
		return nil, errors.New("tag name is required")
	}
	limit = clampLimit(limit)

	cacheKey := fmt.Sprintf("tagalbums:%s:%d", tagName, limit)
	if albums, ok := c.cached(cacheKey); ok {
		zlog.Debug().Msgf("using cached top albums for tag: %s", tagName)
		return albums, nil
	}

	params := url.Values{}
	params.Set("method", "tag.getTopAlbums")
	params.Set("tag", tagName)
	params.Set("limit", fmt.Sprintf("%d", limit))

	var response GetTagTopAlbumsResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}

	albums := convertAlbums(response.Albums.Album)
	c.store(cacheKey, albums)
	zlog.Debug().Msgf("cached top albums for tag: %s (count: %d)", tagName, len(albums))
	return albums, nil
}

// GetArtistTopAlbums retrieves the top albums of an artist.
// Reference: https://www.last.fm/api/show/artist.getTopAlbums
func (c *Client) GetArtistTopAlbums(ctx context.Context, artistName string, limit int) ([]Album, error) {
	if artistName == "" {
		return nil, errors.New("artist name is required")
	}
	limit = clampLimit(limit)

	cacheKey := fmt.Sprintf("artistalbums:%s:%d", artistName, limit)
	if albums, ok := c.cached(cacheKey); ok {
		zlog.Debug().Msgf("using cached top albums for artist: %s", artistName)
		return albums, nil
	}

	params := url.Values{}
	params.Set("method", "artist.getTopAlbums")
	params.Set("artist", artistName)
	params.Set("limit", fmt.Sprintf("%d", limit))
	params.Set("autocorrect", "1")

	var response GetArtistTopAlbumsResponse
	if err := c.call(ctx, params, &response); err != nil {
		return nil, err
	}

	albums := convertAlbums(response.TopAlbums.Album)
	c.store(cacheKey, albums)
	return albums, nil
}

// call performs a GET request and decodes the JSON response into out.
func (c *Client) call(ctx context.Context, params url.Values, out any) error {
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")
	reqURL := c.baseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	// Last.fm reports API errors in the body, sometimes with a 200 status
	var apiError LastFMError
	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != 0 {
		return errors.Errorf("last.fm API error %d: %s", apiError.Error, apiError.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return errors.Newf("last.fm returned status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

func (c *Client) cached(key string) ([]Album, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()
	albums, ok := c.albumCache[key]
	return albums, ok
}

func (c *Client) store(key string, albums []Album) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	c.albumCache[key] = albums
}

func convertAlbums(in []albumJSON) []Album {
	albums := make([]Album, 0, len(in))
	for _, a := range in {
		albums = append(albums, Album{
			Name:     a.Name,
			Artist:   a.Artist.Name,
			ImageURL: largestImage(a),
		})
	}
	return albums
}

func largestImage(a albumJSON) string {
	best, bestRank := "", 0
	for _, img := range a.Image {
		if img.URL == "" {
			continue
		}
		if rank := imageSizes[img.Size]; rank >= bestRank {
			best, bestRank = img.URL, rank
		}
	}
	return best
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 100 {
		return 100
	}
	return limit
}
