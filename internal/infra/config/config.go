// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FallbackPath is used when no config file exists in the XDG config dirs.
const FallbackPath = "config/croquis.yaml"

// Config represents the application configuration.
type Config struct {
	Server  ServerConfig            `yaml:"server"`
	Session SessionConfig           `yaml:"session"`
	Cue     CueConfig               `yaml:"cue"`
	Finish  FinishConfig            `yaml:"finish"`
	Layout  string                  `yaml:"layout" default:"single" validate:"oneof=single dual"`
	Lanes   []LaneConfig            `yaml:"lanes" validate:"required,min=1,max=2,dive"`
	Filters map[string]FilterConfig `yaml:"filters"`
	Spotify SpotifyConfig           `yaml:"spotify"`
}

// ServerConfig represents control server configuration.
type ServerConfig struct {
	Addr   string      `yaml:"addr" default:"127.0.0.1:8719"`
	Token  string      `yaml:"token"` // Empty disables token checks
	TickMs int         `yaml:"tick_ms" default:"100" validate:"gte=10,lte=1000"`
	Hooks  HooksConfig `yaml:"hooks"`
}

// HooksConfig holds shell commands run on lifecycle events.
type HooksConfig struct {
	OnStarted  []string `yaml:"on_started"`
	OnFinished []string `yaml:"on_finished"`
	OnStopped  []string `yaml:"on_stopped"`
}

// SessionConfig represents the initial session settings.
type SessionConfig struct {
	IntervalSec int   `yaml:"interval_sec" default:"60" validate:"gte=1,lte=86400"`
	TargetCount int   `yaml:"target_count" validate:"gte=0"`
	Shuffle     *bool `yaml:"shuffle" default:"true"`
}

// CueConfig represents audio cue configuration.
type CueConfig struct {
	Enabled     *bool    `yaml:"enabled" default:"true"`
	Mode        string   `yaml:"mode" default:"every" validate:"oneof=every last"`
	Volume      *float64 `yaml:"volume" default:"0.5" validate:"required,gte=0,lte=1"`
	Sound       string   `yaml:"sound"`        // Audio file, empty = built-in tone
	FinishSound string   `yaml:"finish_sound"` // Audio file for the session finish cue
}

// FinishConfig represents what presenters show when a session finishes.
type FinishConfig struct {
	Image   string `yaml:"image"`
	Message string `yaml:"message" default:"Session complete"`
}

// LaneConfig represents one playlist and the sources that fill it.
type LaneConfig struct {
	Name    string         `yaml:"name"`
	Sources []SourceConfig `yaml:"sources" validate:"required,min=1,dive"`
}

// SourceConfig represents a single media source configuration.
type SourceConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name"`
	Settings    map[string]any `yaml:"settings"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// SpotifyConfig represents Spotify API configuration.
// Credentials are only required when a spotify source is configured.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
	Market       string `yaml:"market" validate:"omitempty,len=2" default:"JP"`
}

// DefaultPath returns $XDG_CONFIG_HOME/croquis/config.yaml (or the first
// match in the XDG config dirs), falling back to FallbackPath.
func DefaultPath() string {
	if p, err := xdg.SearchConfigFile(filepath.Join("croquis", "config.yaml")); err == nil {
		return p
	}
	return FallbackPath
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, then applies environment
// overrides, defaults and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Lanes {
			for j := range c.Lanes[i].Sources {
				src := &c.Lanes[i].Sources[j]
				if src.Type != "lastfm" {
					continue
				}
				if src.Settings == nil {
					src.Settings = map[string]any{}
				}
				src.Settings["api_key"] = v
			}
		}
	}
	if v := os.Getenv("CROQUIS_TOKEN"); v != "" {
		c.Server.Token = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Layout == "single" && len(c.Lanes) > 1 {
		return errors.Newf("single layout takes one lane, got %d", len(c.Lanes))
	}

	if c.HasSourceType("spotify") {
		if c.Spotify.ClientID == "" || c.Spotify.ClientSecret == "" || c.Spotify.RefreshToken == "" {
			return errors.New("spotify source configured but spotify credentials are missing")
		}
	}

	return nil
}

// HasSourceType reports whether any lane uses a source of the given type.
func (c *Config) HasSourceType(sourceType string) bool {
	for _, lane := range c.Lanes {
		for _, src := range lane.Sources {
			if src.Type == sourceType {
				return true
			}
		}
	}
	return false
}

// Interval returns the configured display duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Session.IntervalSec) * time.Second
}

// TickInterval returns the clock tick period.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Server.TickMs) * time.Millisecond
}

// ShuffleEnabled reports the initial shuffle setting.
func (c *Config) ShuffleEnabled() bool {
	return c.Session.Shuffle == nil || *c.Session.Shuffle
}

// CueEnabled reports the initial cue setting.
func (c *Config) CueEnabled() bool {
	return c.Cue.Enabled == nil || *c.Cue.Enabled
}

// CueVolume returns the initial cue volume.
func (c *Config) CueVolume() float64 {
	if c.Cue.Volume == nil {
		return 0.5
	}
	return *c.Cue.Volume
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// FilterSettings returns the settings for a filter.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}
