// Package main provides the Spotify authentication tool.
package main

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"

	"github.com/osa030/croquis/internal/infra/logger"
)

var (
	app          = kingpin.New("croquis-auth", "Spotify authentication tool for croquis playlist sources")
	clientID     = app.Flag("client-id", "Spotify Client ID").Envar("SPOTIFY_CLIENT_ID").Required().String()
	clientSecret = app.Flag("client-secret", "Spotify Client Secret").Envar("SPOTIFY_CLIENT_SECRET").Required().String()
	port         = app.Flag("port", "Callback server port").Default("8888").Int()
)

var donePage = template.Must(template.New("done").Parse(`<!DOCTYPE html>
<html>
<head><title>croquis - {{.Title}}</title></head>
<body style="font-family: sans-serif; text-align: center; padding-top: 20vh">
  <h1>{{.Title}}</h1>
  <p>{{.Message}}</p>
</body>
</html>
`))

// callback receives the authorization redirect.
type callback struct {
	auth  *spotifyauth.Authenticator
	state string
	ch    chan *oauth2.Token
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse flags
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logCloser, err := logger.Init(logger.Config{Output: "stdout", Level: "info"})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	token, err := authorize(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logCloser.Close()
		os.Exit(1)
	}

	// Print token
	fmt.Println("")
	fmt.Println("=== Authorization Successful ===")
	fmt.Println("")
	fmt.Println("Add this to your croquis config.yaml:")
	fmt.Println("")
	fmt.Println("spotify:")
	fmt.Printf("  client_id: \"%s\"\n", *clientID)
	fmt.Printf("  refresh_token: \"%s\"\n", token.RefreshToken)
	fmt.Println("")
	fmt.Println("Or set as environment variable:")
	fmt.Printf("export SPOTIFY_REFRESH_TOKEN=\"%s\"\n", token.RefreshToken)
}

// authorize runs the authorization code flow and waits for the callback.
func authorize(ctx context.Context) (*oauth2.Token, error) {
	cb := &callback{
		auth: spotifyauth.New(
			spotifyauth.WithRedirectURL(fmt.Sprintf("http://127.0.0.1:%d/callback", *port)),
			spotifyauth.WithClientID(*clientID),
			spotifyauth.WithClientSecret(*clientSecret),
			// Playlist sources only read artwork
			spotifyauth.WithScopes(spotifyauth.ScopePlaylistReadPrivate),
		),
		state: uuid.NewString(),
		ch:    make(chan *oauth2.Token, 1),
	}

	mux := http.NewServeMux()
	mux.Handle("GET /callback", cb)
	server := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", *port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zlog.Warn().Msgf("Failed to shutdown callback server: %v", err)
		}
	}()

	fmt.Println("Please visit the following URL to authorize croquis:")
	fmt.Println("")
	fmt.Println(cb.auth.AuthURL(cb.state))
	fmt.Println("")
	fmt.Println("Waiting for authorization...")

	select {
	case token := <-cb.ch:
		return token, nil
	case err := <-serverErrCh:
		return nil, fmt.Errorf("callback server failed: %w", err)
	case <-ctx.Done():
		return nil, fmt.Errorf("authorization cancelled")
	}
}

func (cb *callback) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if st := r.FormValue("state"); st != cb.state {
		zlog.Warn().Msgf("State mismatch: %s", st)
		cb.render(w, http.StatusForbidden, "Authorization Failed", "State mismatch. Start the tool again.")
		return
	}

	token, err := cb.auth.Token(r.Context(), cb.state, r)
	if err != nil {
		zlog.Error().Msgf("Failed to get token: %v", err)
		cb.render(w, http.StatusForbidden, "Authorization Failed", "Spotify did not issue a token.")
		return
	}

	cb.render(w, http.StatusOK, "Authorization Complete", "You can close this window and return to the terminal.")
	select {
	case cb.ch <- token:
	default:
	}
}

func (cb *callback) render(w http.ResponseWriter, code int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	if err := donePage.Execute(w, map[string]string{"Title": title, "Message": message}); err != nil {
		zlog.Debug().Msgf("Failed to render page: %v", err)
	}
}
