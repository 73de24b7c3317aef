package lastfm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetTagTopAlbums(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "tag.getTopAlbums", r.URL.Query().Get("method"))
		assert.Equal(t, "portrait", r.URL.Query().Get("tag"))
		assert.Equal(t, "test_key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))

		response := `{
			"albums": {
				"album": [
					{
						"name": "Album 1",
						"artist": {"name": "Artist 1"},
						"image": [
							{"#text": "https://img/s1.png", "size": "small"},
							{"#text": "https://img/xl1.png", "size": "extralarge"},
							{"#text": "https://img/m1.png", "size": "medium"}
						]
					},
					{
						"name": "Album 2",
						"artist": {"name": "Artist 2"},
						"image": [
							{"#text": "", "size": "extralarge"}
						]
					}
				]
			}
		}`
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, response)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "test_key"})
	require.NoError(t, err)
	client.baseURL = server.URL + "/"

	ctx := context.Background()
	albums, err := client.GetTagTopAlbums(ctx, "portrait", 10)
	require.NoError(t, err)
	require.Len(t, albums, 2)
	assert.Equal(t, "Album 1", albums[0].Name)
	assert.Equal(t, "Artist 1", albums[0].Artist)
	assert.Equal(t, "https://img/xl1.png", albums[0].ImageURL)
	assert.Empty(t, albums[1].ImageURL)

	// Cached
	again, err := client.GetTagTopAlbums(ctx, "portrait", 10)
	require.NoError(t, err)
	assert.Equal(t, albums, again)
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetArtistTopAlbums(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "artist.getTopAlbums", r.URL.Query().Get("method"))
		assert.Equal(t, "Artist 1", r.URL.Query().Get("artist"))
		fmt.Fprint(w, `{"topalbums": {"album": [
			{"name": "Only", "artist": {"name": "Artist 1"}, "image": [{"#text": "https://img/l.png", "size": "large"}]}
		]}}`)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "test_key"})
	require.NoError(t, err)
	client.baseURL = server.URL + "/"

	albums, err := client.GetArtistTopAlbums(context.Background(), "Artist 1", 0)
	require.NoError(t, err)
	require.Len(t, albums, 1)
	assert.Equal(t, "https://img/l.png", albums[0].ImageURL)
}

func TestClient_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": 6, "message": "Tag not found"}`)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "test_key"})
	require.NoError(t, err)
	client.baseURL = server.URL + "/"

	_, err = client.GetTagTopAlbums(context.Background(), "nope", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tag not found")
}

func TestClient_HTTPStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client, err := New(Config{APIKey: "test_key"})
	require.NoError(t, err)
	client.baseURL = server.URL + "/"

	_, err = client.GetTagTopAlbums(context.Background(), "portrait", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNew_RequiresKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	client, err := New(Config{APIKey: "k"})
	require.NoError(t, err)

	_, err = client.GetTagTopAlbums(context.Background(), "", 5)
	assert.Error(t, err)
	_, err = client.GetArtistTopAlbums(context.Background(), "", 5)
	assert.Error(t, err)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 50, clampLimit(0))
	assert.Equal(t, 7, clampLimit(7))
	assert.Equal(t, 100, clampLimit(500))
}

func TestClient_ContextCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	client, err := New(Config{APIKey: "test_key"})
	require.NoError(t, err)
	client.baseURL = server.URL + "/"

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err = client.GetTagTopAlbums(ctx, "gesture", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), 5*time.Second)
}
