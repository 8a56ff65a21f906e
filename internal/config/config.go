// Package config provides configuration loading and defaults for the chatbubble
// daemon.
//
// Configuration is loaded from a TOML file in the data directory. It covers
// font sources, bubble geometry and colors, profile lookups, the title store,
// rendering limits, the HTTP listener and logging.
package config

//go:generate go run ../../cmd/genconfig

import (
	"bytes"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/bmatcuk/doublestar/v4"
	"tools.zach/dev/chatbubble/internal/atomicfile"
	"tools.zach/dev/chatbubble/internal/bubble"
	"tools.zach/dev/chatbubble/internal/fetch"
	"tools.zach/dev/chatbubble/internal/paths"
	"tools.zach/dev/chatbubble/internal/profile"
	"tools.zach/dev/chatbubble/internal/titles"
)

// CurrentVersion is the config schema version written by this build.
const CurrentVersion = 1

// ///////////////////////////////////////////////
// Configuration Types
// ///////////////////////////////////////////////

// Config represents the top-level application configuration.
type Config struct {
	// Version is the config schema version.
	Version int `toml:"version"`
	// Fonts holds font source settings.
	Fonts FontsConfig `toml:"fonts"`
	// Layout holds bubble geometry and colors.
	Layout LayoutConfig `toml:"layout"`
	// Profile holds nickname and avatar lookup settings.
	Profile ProfileConfig `toml:"profile"`
	// Titles holds title store settings.
	Titles TitlesConfig `toml:"titles"`
	// Render holds rendering limits and access control.
	Render RenderConfig `toml:"render"`
	// Server holds HTTP listener settings.
	Server ServerConfig `toml:"server"`
	// Log holds logging settings.
	Log LogConfig `toml:"log"`
}

// FontsConfig holds font source settings. A source is a file path, a glob
// matched under Dir, or "google:Family:Weight". Empty sources use the
// built-in Go fonts.
type FontsConfig struct {
	// Dir is the font search directory and Google Fonts cache.
	Dir string `toml:"dir,omitempty"`
	// Bubble is the font source for message text.
	Bubble string `toml:"bubble,omitempty"`
	// Nickname is the font source for display names.
	Nickname string `toml:"nickname,omitempty"`
	// Title is the font source for title badges.
	Title string `toml:"title,omitempty"`
}

// LayoutConfig holds the configurable part of the bubble geometry.
type LayoutConfig struct {
	// BubbleFontSize is the message text size.
	BubbleFontSize float64 `toml:"bubble_font_size"`
	// NicknameFontSize is the display name size.
	NicknameFontSize float64 `toml:"nickname_font_size"`
	// TitleFontSize is the badge text size.
	TitleFontSize float64 `toml:"title_font_size"`
	// BubblePadding is the inner bubble padding.
	BubblePadding int `toml:"bubble_padding"`
	// CornerRadius is the bubble corner radius.
	CornerRadius int `toml:"corner_radius"`
	// AvatarSize is the side of the avatar square.
	AvatarSize int `toml:"avatar_size"`
	// MaxWidth is the widest a bubble may grow.
	MaxWidth int `toml:"max_width"`
	// ImageScale shrinks embedded images before fitting.
	ImageScale float64 `toml:"image_scale"`
	// Background is the canvas color as #RRGGBB.
	Background string `toml:"background"`
	// BubbleFill is the bubble color as #RRGGBB.
	BubbleFill string `toml:"bubble_fill"`
	// BubbleFillAlpha is the bubble opacity, 0 to 255.
	BubbleFillAlpha int `toml:"bubble_fill_alpha"`
	// BubbleOutline is the bubble border color as #RRGGBB.
	BubbleOutline string `toml:"bubble_outline"`
	// TextColor is the message and name color as #RRGGBB.
	TextColor string `toml:"text_color"`
	// TitleTextColor is the badge text color as #RRGGBB.
	TitleTextColor string `toml:"title_text_color"`
}

// ProfileConfig holds nickname and avatar lookup settings.
type ProfileConfig struct {
	// AvatarDir is the avatar cache directory, relative to the data directory.
	AvatarDir string `toml:"avatar_dir"`
	// NicknameAPIs are tried in order; "{id}" is replaced by the user id.
	NicknameAPIs []string `toml:"nickname_apis"`
	// AvatarURL is the avatar download URL; "{id}" is replaced by the user id.
	AvatarURL string `toml:"avatar_url"`
	// TimeoutSeconds bounds each outbound request.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// RetryMax is the number of retries for failed requests.
	RetryMax int `toml:"retry_max"`
	// MaxAvatarMB caps the size of a downloaded avatar.
	MaxAvatarMB int `toml:"max_avatar_mb"`
}

// TitlesConfig holds title store settings.
type TitlesConfig struct {
	// File is the JSON title store, relative to the data directory.
	File string `toml:"file"`
	// DefaultTitle is the badge text for records created by a color change.
	DefaultTitle string `toml:"default_title"`
	// Watch reloads the store when the file is edited externally.
	Watch bool `toml:"watch"`
	// PollIntervalSeconds is the stat interval when file events are unavailable.
	PollIntervalSeconds int `toml:"poll_interval_seconds"`
}

// RenderConfig holds rendering limits and access control.
type RenderConfig struct {
	// Workers is the number of concurrent compositions.
	Workers int `toml:"workers"`
	// TimeoutSeconds bounds one echo request, including profile lookup.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// MaxCanvasPixels bounds every raster allocation.
	MaxCanvasPixels int `toml:"max_canvas_pixels"`
	// BlockedIDs are glob patterns of user ids that may not use commands.
	BlockedIDs []string `toml:"blocked_ids"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	// Listen is "host:port", "tcp:host:port", "unix:/path" or "pipe:\\.\pipe\name".
	Listen string `toml:"listen"`
	// MaxBodyMB caps request bodies.
	MaxBodyMB int `toml:"max_body_mb"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `toml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation.
	MaxSizeMB int `toml:"max_size_mb"`
}

// ///////////////////////////////////////////////
// Default Configuration
// ///////////////////////////////////////////////

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	l := bubble.DefaultLayout()
	return &Config{
		Version: CurrentVersion,
		Layout: LayoutConfig{
			BubbleFontSize:   l.BubbleFontSize,
			NicknameFontSize: l.NicknameFontSize,
			TitleFontSize:    l.TitleFontSize,
			BubblePadding:    l.BubblePadding,
			CornerRadius:     l.CornerRadius,
			AvatarSize:       l.AvatarSize,
			MaxWidth:         l.MaxWidth,
			ImageScale:       l.ImageScale,
			Background:       "#F0F0F2",
			BubbleFill:       "#FFFFFF",
			BubbleFillAlpha:  int(l.BubbleFill.A),
			BubbleOutline:    "#E6E6E6",
			TextColor:        "#000000",
			TitleTextColor:   "#FFFFFF",
		},
		Profile: ProfileConfig{
			AvatarDir:      paths.AvatarsDir,
			NicknameAPIs:   append([]string(nil), profile.DefaultNicknameAPIs...),
			AvatarURL:      profile.DefaultAvatarURL,
			TimeoutSeconds: 10,
			RetryMax:       2,
			MaxAvatarMB:    8,
		},
		Titles: TitlesConfig{
			File:                filepath.Join(paths.AvatarsDir, paths.TitlesFile),
			DefaultTitle:        titles.DefaultTitle,
			Watch:               true,
			PollIntervalSeconds: 2,
		},
		Render: RenderConfig{
			Workers:         4,
			TimeoutSeconds:  30,
			MaxCanvasPixels: l.MaxCanvasPixels,
			BlockedIDs:      []string{},
		},
		Server: ServerConfig{
			Listen:    "127.0.0.1:5701",
			MaxBodyMB: 16,
		},
		Log: LogConfig{
			Level:     "info",
			MaxSizeMB: 10,
		},
	}
}

// ///////////////////////////////////////////////
// Example Configuration
// ///////////////////////////////////////////////

// ExampleConfig returns a Config suitable for generating config.default.toml.
// For this project all defaults are good examples.
func ExampleConfig() *Config {
	return DefaultConfig()
}

// ///////////////////////////////////////////////
// PeekVersion
// ///////////////////////////////////////////////

// PeekVersion reads just the version field from raw TOML bytes.
// Returns 1 if the version field is missing or zero.
func PeekVersion(data []byte) int {
	var v struct {
		Version int `toml:"version"`
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return 1
	}
	if v.Version == 0 {
		return 1
	}
	return v.Version
}

// ///////////////////////////////////////////////
// Loading and Saving
// ///////////////////////////////////////////////

// Load reads and parses the configuration file from dataDir/config.toml.
// If the file doesn't exist, returns DefaultConfig.
func Load(dataDir string) (*Config, error) {
	path := filepath.Join(dataDir, paths.ConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if v := PeekVersion(data); v > CurrentVersion {
		return nil, fmt.Errorf("config version %d is newer than supported version %d", v, CurrentVersion)
	}

	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Version = CurrentVersion

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Save writes the config to disk as TOML using atomic file write.
func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	enc := toml.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return atomicfile.Write(path, buf.Bytes(), 0o644)
}

// ///////////////////////////////////////////////
// Validation
// ///////////////////////////////////////////////

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"trace": true, "debug": true, "info": true, "warn": true, "error": true,
}

// Validate checks that all configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if !validLogLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("invalid log.level %q: must be trace, debug, info, warn, or error", c.Log.Level)
	}

	if c.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.max_size_mb must be > 0, got %d", c.Log.MaxSizeMB)
	}

	if _, err := c.BubbleLayout(); err != nil {
		return err
	}

	if c.Layout.BubbleFillAlpha < 0 || c.Layout.BubbleFillAlpha > 255 {
		return fmt.Errorf("layout.bubble_fill_alpha must be between 0 and 255, got %d", c.Layout.BubbleFillAlpha)
	}

	for _, api := range c.Profile.NicknameAPIs {
		if !strings.Contains(api, "{id}") {
			return fmt.Errorf("invalid profile.nickname_apis entry %q: must contain {id}", api)
		}
	}

	if c.Profile.AvatarURL != "" && !strings.Contains(c.Profile.AvatarURL, "{id}") {
		return fmt.Errorf("invalid profile.avatar_url %q: must contain {id}", c.Profile.AvatarURL)
	}

	if c.Profile.TimeoutSeconds <= 0 {
		return fmt.Errorf("profile.timeout_seconds must be > 0, got %d", c.Profile.TimeoutSeconds)
	}

	if c.Profile.RetryMax < 0 {
		return fmt.Errorf("profile.retry_max must be >= 0, got %d", c.Profile.RetryMax)
	}

	if c.Profile.MaxAvatarMB <= 0 {
		return fmt.Errorf("profile.max_avatar_mb must be > 0, got %d", c.Profile.MaxAvatarMB)
	}

	if c.Titles.File == "" {
		return fmt.Errorf("titles.file must not be empty")
	}

	if c.Titles.PollIntervalSeconds <= 0 {
		return fmt.Errorf("titles.poll_interval_seconds must be > 0, got %d", c.Titles.PollIntervalSeconds)
	}

	if c.Render.Workers <= 0 {
		return fmt.Errorf("render.workers must be > 0, got %d", c.Render.Workers)
	}

	if c.Render.TimeoutSeconds <= 0 {
		return fmt.Errorf("render.timeout_seconds must be > 0, got %d", c.Render.TimeoutSeconds)
	}

	for _, pattern := range c.Render.BlockedIDs {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("invalid render.blocked_ids pattern %q", pattern)
		}
	}

	switch {
	case c.Server.Listen == "":
		return fmt.Errorf("server.listen must not be empty")
	case strings.HasPrefix(c.Server.Listen, "unix:") && len(c.Server.Listen) == len("unix:"):
		return fmt.Errorf("server.listen %q is missing a socket path", c.Server.Listen)
	case strings.HasPrefix(c.Server.Listen, "pipe:") && len(c.Server.Listen) == len("pipe:"):
		return fmt.Errorf("server.listen %q is missing a pipe name", c.Server.Listen)
	}

	if c.Server.MaxBodyMB <= 0 {
		return fmt.Errorf("server.max_body_mb must be > 0, got %d", c.Server.MaxBodyMB)
	}

	return nil
}

// ///////////////////////////////////////////////
// Component Settings
// ///////////////////////////////////////////////

// BubbleLayout builds the compositor layout from the defaults and the
// configured overrides.
func (c *Config) BubbleLayout() (bubble.Layout, error) {
	l := bubble.DefaultLayout()
	lc := c.Layout

	l.BubbleFontSize = lc.BubbleFontSize
	l.NicknameFontSize = lc.NicknameFontSize
	l.TitleFontSize = lc.TitleFontSize
	l.BubblePadding = lc.BubblePadding
	l.CornerRadius = lc.CornerRadius
	l.AvatarSize = lc.AvatarSize
	l.MaxWidth = lc.MaxWidth
	l.ImageScale = lc.ImageScale
	l.MaxCanvasPixels = c.Render.MaxCanvasPixels

	colors := []struct {
		key string
		hex string
		dst *color.NRGBA
	}{
		{"layout.background", lc.Background, &l.Background},
		{"layout.bubble_fill", lc.BubbleFill, &l.BubbleFill},
		{"layout.bubble_outline", lc.BubbleOutline, &l.BubbleOutline},
		{"layout.text_color", lc.TextColor, &l.TextColor},
		{"layout.title_text_color", lc.TitleTextColor, &l.TitleTextColor},
	}
	for _, col := range colors {
		parsed, err := bubble.ParseHexColor(col.hex)
		if err != nil {
			return bubble.Layout{}, fmt.Errorf("invalid %s: %w", col.key, err)
		}
		// Keep the default alpha; only the RGB part is configurable.
		parsed.A = col.dst.A
		*col.dst = parsed
	}
	l.BubbleFill.A = uint8(min(max(lc.BubbleFillAlpha, 0), 255))

	if err := l.Validate(); err != nil {
		return bubble.Layout{}, fmt.Errorf("invalid layout: %w", err)
	}
	return l, nil
}

// FetchOptions returns the outbound HTTP client settings.
func (c *Config) FetchOptions(userAgent string) fetch.Options {
	return fetch.Options{
		Timeout:   time.Duration(c.Profile.TimeoutSeconds) * time.Second,
		RetryMax:  c.Profile.RetryMax,
		UserAgent: userAgent,
	}
}

// ProfileOptions returns the profile resolver settings with directories
// resolved against dataDir.
func (c *Config) ProfileOptions(dataDir string) profile.Options {
	d := paths.DataDir{Root: dataDir}
	return profile.Options{
		AvatarDir:       d.Resolve(c.Profile.AvatarDir, d.Avatars()),
		NicknameAPIs:    c.Profile.NicknameAPIs,
		AvatarURL:       c.Profile.AvatarURL,
		MaxAvatarBytes:  int64(c.Profile.MaxAvatarMB) << 20,
		MaxAvatarPixels: c.Render.MaxCanvasPixels,
	}
}

// TitlesPath returns the title store path resolved against dataDir.
func (c *Config) TitlesPath(dataDir string) string {
	d := paths.DataDir{Root: dataDir}
	return d.Resolve(c.Titles.File, d.Titles())
}

// FontsDir returns the font directory resolved against dataDir.
func (c *Config) FontsDir(dataDir string) string {
	d := paths.DataDir{Root: dataDir}
	return d.Resolve(c.Fonts.Dir, d.Fonts())
}

// PollInterval returns the title store polling interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Titles.PollIntervalSeconds) * time.Second
}

// RenderTimeout returns the per-request render timeout.
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.Render.TimeoutSeconds) * time.Second
}
