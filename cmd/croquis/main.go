// Package main provides the croquis entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	apiconnect "github.com/osa030/croquis/internal/api/connect"
	"github.com/osa030/croquis/internal/app/filter"
	"github.com/osa030/croquis/internal/app/media"
	"github.com/osa030/croquis/internal/app/notification"
	"github.com/osa030/croquis/internal/app/session"
	"github.com/osa030/croquis/internal/domain/item"
	"github.com/osa030/croquis/internal/infra/audio"
	"github.com/osa030/croquis/internal/infra/config"
	"github.com/osa030/croquis/internal/infra/logger"
	"github.com/osa030/croquis/internal/infra/spotify"
	"github.com/osa030/croquis/internal/tui"
)

var (
	app        = kingpin.New("croquis", "Timed reference image presenter")
	configPath = app.Flag("config", "Path to config file").Default(config.DefaultPath()).String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout, or croquis.log with --tui)").String()

	// run command (default)
	runCmd    = app.Command("run", "Run the presenter (default)").Default()
	useTUI    = runCmd.Flag("tui", "Present the session in the terminal").Bool()
	autoStart = runCmd.Flag("start", "Start a session as soon as the playlists are loaded").Bool()

	// list commands
	listSourcesCmd = app.Command("list-sources", "List available source types and exit")
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	switch command {
	case listSourcesCmd.FullCommand():
		printSources()
		return
	case listFiltersCmd.FullCommand():
		printFilters()
		return
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *useTUI {
		// The terminal belongs to the presenter
		loggerConfig.Output = "file"
		loggerConfig.File = logger.DefaultFile
	}
	if *logfile != "" {
		loggerConfig.Output = "file"
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Error().Msgf("Failed to load config: %v", err)
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Run (defer ensures cleanup runs before exit)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("croquis error: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		logCloser.Close()
		os.Exit(1)
	}
}

// run executes the main logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Validate filter config
	if err := validateFilterConfig(cfg); err != nil {
		return fmt.Errorf("invalid filter config: %w", err)
	}

	// Create Spotify client only when a lane needs it
	var deps media.Deps
	if cfg.HasSourceType(string(item.SourceTypeSpotify)) {
		spotifyClient, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			RefreshToken: cfg.Spotify.RefreshToken,
			Market:       cfg.Spotify.Market,
		})
		if err != nil {
			return fmt.Errorf("failed to create Spotify client: %w", err)
		}
		if err := validatePlaylists(ctx, cfg, spotifyClient); err != nil {
			return fmt.Errorf("playlist validation failed: %w", err)
		}
		deps.Spotify = spotifyClient
	}

	// Create cue player; the session still runs without sound
	opts := []session.Option{}
	player, err := audio.NewPlayer(audio.Config{
		CueSound:    cfg.Cue.Sound,
		FinishSound: cfg.Cue.FinishSound,
		Volume:      cfg.CueVolume(),
	})
	if err != nil {
		zlog.Warn().Msgf("Audio cues disabled: %v", err)
	} else {
		opts = append(opts, session.WithCuePlayer(player))
	}

	// Create session manager
	sessionMgr, err := session.NewManager(cfg, deps, opts...)
	if err != nil {
		return fmt.Errorf("failed to create session manager: %w", err)
	}
	defer sessionMgr.Close()

	if err := sessionMgr.Start(ctx); err != nil {
		return fmt.Errorf("failed to start session manager: %w", err)
	}
	go runFinishHooks(ctx, sessionMgr.GetNotificationManager(), cfg.Server.Hooks.OnFinished)

	// Create control service
	controlService := apiconnect.NewControlService(sessionMgr)

	// Create HTTP mux
	mux := http.NewServeMux()

	// Register control service with auth interceptor
	authInterceptor := apiconnect.NewAuthInterceptor(cfg.Server.Token)
	controlPath, controlHandler := apiconnect.NewControlServiceHandler(
		controlService,
		connect.WithInterceptors(authInterceptor),
	)
	mux.Handle(controlPath, controlHandler)

	// Create HTTP server with h2c for HTTP/2 without TLS
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	server := apiconnect.NewServer(baseCtx, cfg.Server.Addr, mux)

	serverErrCh := make(chan error, 1)
	go func() {
		zlog.Info().Msgf("Starting control server: addr=%s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- err
		}
	}()

	// Execute startup hook
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	if *autoStart {
		if err := sessionMgr.StartSession(); err != nil {
			zlog.Warn().Msgf("Failed to start session: %v", err)
		}
	}

	var runErr error
	if *useTUI {
		tuiErr := make(chan error, 1)
		go func() { tuiErr <- tui.Run(ctx, sessionMgr) }()
		select {
		case runErr = <-tuiErr:
		case err := <-serverErrCh:
			cancel()
			<-tuiErr
			runErr = fmt.Errorf("server error: %w", err)
		}
	} else {
		select {
		case <-ctx.Done():
			zlog.Info().Msg("Received shutdown signal...")
		case err := <-serverErrCh:
			runErr = fmt.Errorf("server error: %w", err)
		}
	}

	// Graceful shutdown: end event streams first
	cancelBase()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	sessionMgr.Close()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error().Msgf("Failed to shutdown server: %v", err)
	}
	zlog.Info().Msg("croquis stopped")

	// Execute shutdown hook
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return runErr
}

// runFinishHooks runs the on_finished hooks whenever a bounded session finishes.
func runFinishHooks(ctx context.Context, notifManager *notification.Manager, hooks []string) {
	if len(hooks) == 0 {
		return
	}
	stream := notification.NewChannelStream(16)
	id := notifManager.Subscribe(stream)
	defer notifManager.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-stream.C():
			if n.Type == notification.TypeFinished {
				executeHooks(hooks, "on_finished")
			}
		}
	}
}

// printSources prints available source types.
func printSources() {
	fmt.Println("Available Sources:")
	for _, name := range media.SourceTypes() {
		fmt.Printf("  %s\n", name)
	}
}

// printFilters prints available filters.
func printFilters() {
	fmt.Println("Available Filters:")
	registered := filter.GetRegistered()
	for _, name := range filter.Names() {
		f := registered[name]()
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-24s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// validateFilterConfig validates filter configurations.
func validateFilterConfig(cfg *config.Config) error {
	registry := filter.GetRegistered()

	names := make([]string, 0, len(cfg.Filters))
	for name := range cfg.Filters {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, filterName := range names {
		filterCfg := cfg.Filters[filterName]
		if !filterCfg.Enabled {
			continue
		}

		factory, exists := registry[filterName]
		if !exists {
			return fmt.Errorf("unknown filter %s", filterName)
		}

		f := factory()
		if err := f.ValidateConfig(filterCfg.Settings); err != nil {
			return fmt.Errorf("filter %s: %w", filterName, err)
		}
	}

	return nil
}

// validatePlaylists validates that configured playlists exist on Spotify.
// It includes retry logic to handle transient errors during startup.
func validatePlaylists(ctx context.Context, cfg *config.Config, spotifyClient *spotify.Client) error {
	maxRetries := 5
	baseDelay := 1 * time.Second

	var errs []string

	// Helper function to validate a single playlist with retry
	validate := func(name, url string) error {
		zlog.Info().Msgf("Validating playlist %s: url=%s", name, url)

		var lastErr error
		for i := 0; i < maxRetries; i++ {
			if i > 0 {
				delay := baseDelay * time.Duration(1<<uint(i-1))
				zlog.Info().Msgf("Retrying playlist %s validation in %v...", name, delay)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}

			if err := spotifyClient.CheckPlaylistExists(ctx, url); err != nil {
				lastErr = err
				zlog.Warn().Msgf("Failed to validate playlist %s (attempt %d/%d): %v", name, i+1, maxRetries, err)
				continue
			}

			zlog.Info().Msgf("Playlist %s validated successfully", name)
			return nil
		}
		return fmt.Errorf("failed after %d attempts: %v", maxRetries, lastErr)
	}

	for laneIdx, lane := range cfg.Lanes {
		for srcIdx, src := range lane.Sources {
			if src.Type != string(item.SourceTypeSpotify) {
				continue
			}
			url, _ := src.Settings["playlist_url"].(string)
			if url == "" {
				continue
			}
			name := src.DisplayName
			if name == "" {
				name = fmt.Sprintf("lane%d/%s#%d", laneIdx+1, src.Type, srcIdx+1)
			}
			if err := validate(name, url); err != nil {
				errs = append(errs, fmt.Sprintf("%s (%s): %v", name, url, err))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("playlist validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = io.Discard
		if !*useTUI {
			cmd.Stdout = os.Stdout
		}
		cmd.Stderr = cmd.Stdout

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
