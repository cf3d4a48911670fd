// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cryptoradar/radarshot/internal/radar"
)

// History backends.
const (
	HistoryBackendFile     = "file"
	HistoryBackendPostgres = "postgres"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	Logging    LoggingConfig           `mapstructure:"logging"`
	Workdir    WorkdirConfig           `mapstructure:"workdir"`
	Lock       LockConfig              `mapstructure:"lock"`
	History    HistoryConfig           `mapstructure:"history"`
	Schedule   ScheduleConfig          `mapstructure:"schedule"`
	Capture    CaptureConfig           `mapstructure:"capture"`
	Image      ImageConfig             `mapstructure:"image"`
	Telegram   TelegramConfig          `mapstructure:"telegram"`
	Twitter    TwitterConfig           `mapstructure:"twitter"`
	Commentary CommentaryConfig        `mapstructure:"commentary"`
	Sources    map[string]SourceConfig `mapstructure:"sources"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// WorkdirConfig sets the scratch directory for capture artifacts.
type WorkdirConfig struct {
	Path          string `mapstructure:"path"`
	PurgeAgeHours int    `mapstructure:"purge_age_hours"`
}

// LockConfig locates the single-instance lock file.
type LockConfig struct {
	Path string `mapstructure:"path"`
}

// HistoryConfig selects and configures the publication history backend.
type HistoryConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

// ScheduleConfig defines the reference timezone, duplicate-suppression
// window and the ordered slot table.
type ScheduleConfig struct {
	Timezone        string       `mapstructure:"timezone"`
	CooldownMinutes int          `mapstructure:"cooldown_minutes"`
	Slots           []SlotConfig `mapstructure:"slots"`
}

// SlotConfig is one schedule window in fractional hours of the reference
// timezone.
type SlotConfig struct {
	Name       string   `mapstructure:"name"`
	Start      float64  `mapstructure:"start"`
	End        float64  `mapstructure:"end"`
	Candidates []string `mapstructure:"candidates"`
	Policy     string   `mapstructure:"policy"`
}

// CaptureConfig governs the headless browser session.
type CaptureConfig struct {
	ViewportWidth     int    `mapstructure:"viewport_width"`
	ViewportHeight    int    `mapstructure:"viewport_height"`
	UserAgent         string `mapstructure:"user_agent"`
	NavTimeoutSec     int    `mapstructure:"nav_timeout_seconds"`
	BaseDelaySec      int    `mapstructure:"base_delay_seconds"`
	WaitForTimeoutSec int    `mapstructure:"wait_for_timeout_seconds"`
	RegionPadding     int    `mapstructure:"region_padding"`
	MaxAttempts       int    `mapstructure:"max_attempts"`
	RetryDelaySec     int    `mapstructure:"retry_delay_seconds"`
}

// ImageConfig bounds the normalized artifact.
type ImageConfig struct {
	MaxWidth  int `mapstructure:"max_width"`
	MaxHeight int `mapstructure:"max_height"`
	Quality   int `mapstructure:"quality"`
}

// TelegramConfig holds the Bot API credentials and destination chat.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"`
	ChatID  int64  `mapstructure:"chat_id"`
}

// TwitterConfig holds the OAuth 1.0a user-context credentials.
type TwitterConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	APIKey       string `mapstructure:"api_key"`
	APISecret    string `mapstructure:"api_secret"`
	AccessToken  string `mapstructure:"access_token"`
	AccessSecret string `mapstructure:"access_secret"`
}

// CommentaryConfig configures optional AI caption enrichment.
type CommentaryConfig struct {
	Enabled   bool              `mapstructure:"enabled"`
	APIKey    string            `mapstructure:"api_key"`
	Model     string            `mapstructure:"model"`
	MaxTokens int               `mapstructure:"max_tokens"`
	Prompts   map[string]string `mapstructure:"prompts"`
}

// SourceConfig is the per-source capture and presentation definition.
// Enabled is a pointer so an omitted key defaults to enabled; only an
// explicit `enabled: false` disables a source.
type SourceConfig struct {
	Name           string      `mapstructure:"name"`
	URL            string      `mapstructure:"url"`
	Selector       string      `mapstructure:"selector"`
	WaitFor        string      `mapstructure:"wait_for"`
	ExtraDelaySec  int         `mapstructure:"extra_delay_seconds"`
	Crop           *CropConfig `mapstructure:"crop"`
	ScalePercent   int         `mapstructure:"scale_percent"`
	PadToWidth     int         `mapstructure:"pad_to_width"`
	HidePatterns   []string    `mapstructure:"hide_patterns"`
	FullPage       bool        `mapstructure:"full_page"`
	Enabled        *bool       `mapstructure:"enabled"`
	TelegramTitle  string      `mapstructure:"telegram_title"`
	Hashtags       string      `mapstructure:"hashtags"`
	SkipCommentary bool        `mapstructure:"skip_commentary"`
}

// CropConfig removes fixed pixel insets from the capture edges.
type CropConfig struct {
	Top    int `mapstructure:"top"`
	Right  int `mapstructure:"right"`
	Bottom int `mapstructure:"bottom"`
	Left   int `mapstructure:"left"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("RADAR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("workdir.path", "screenshots")
	v.SetDefault("workdir.purge_age_hours", 24)
	v.SetDefault("lock.path", "/tmp/radarshot.lock")
	v.SetDefault("history.backend", HistoryBackendFile)
	v.SetDefault("history.path", "publication_history.json")
	v.SetDefault("schedule.timezone", "Europe/Moscow")
	v.SetDefault("schedule.cooldown_minutes", 30)
	v.SetDefault("capture.viewport_width", 1920)
	v.SetDefault("capture.viewport_height", 1080)
	v.SetDefault("capture.nav_timeout_seconds", 30)
	v.SetDefault("capture.base_delay_seconds", 5)
	v.SetDefault("capture.wait_for_timeout_seconds", 15)
	v.SetDefault("capture.region_padding", 20)
	v.SetDefault("capture.max_attempts", 3)
	v.SetDefault("capture.retry_delay_seconds", 5)
	v.SetDefault("image.max_width", 1280)
	v.SetDefault("image.max_height", 1280)
	v.SetDefault("image.quality", 85)
	v.SetDefault("commentary.max_tokens", 200)
}

// Validate enforces required values and schedule/source consistency.
func (c Config) Validate() error {
	switch c.History.Backend {
	case HistoryBackendFile:
		if c.History.Path == "" {
			return fmt.Errorf("history.path must be set for the file backend")
		}
	case HistoryBackendPostgres:
		if c.History.DSN == "" {
			return fmt.Errorf("history.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("history.backend must be %q or %q", HistoryBackendFile, HistoryBackendPostgres)
	}

	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}
	if len(c.Schedule.Slots) == 0 {
		return fmt.Errorf("schedule.slots must not be empty")
	}
	for _, slot := range c.Schedule.Slots {
		if slot.Start >= slot.End {
			return fmt.Errorf("slot %q: start %.2f must be before end %.2f", slot.Name, slot.Start, slot.End)
		}
		if len(slot.Candidates) == 0 {
			return fmt.Errorf("slot %q: candidates must not be empty", slot.Name)
		}
		switch radar.SelectionPolicy(slot.Policy) {
		case radar.PolicyFixed:
			if len(slot.Candidates) != 1 {
				return fmt.Errorf("slot %q: fixed policy requires exactly one candidate", slot.Name)
			}
		case radar.PolicyRandom, radar.PolicyConditional:
		default:
			return fmt.Errorf("slot %q: unknown policy %q", slot.Name, slot.Policy)
		}
		for _, id := range slot.Candidates {
			if _, ok := c.Sources[id]; !ok {
				return fmt.Errorf("slot %q: unknown source %q", slot.Name, id)
			}
		}
	}

	for id, src := range c.Sources {
		if src.URL == "" {
			return fmt.Errorf("source %q: url is required", id)
		}
	}

	if !c.Telegram.Enabled && !c.Twitter.Enabled {
		return fmt.Errorf("at least one publish channel must be enabled")
	}
	if c.Telegram.Enabled {
		if c.Telegram.Token == "" {
			return fmt.Errorf("telegram.token must be set when telegram is enabled")
		}
		if c.Telegram.ChatID == 0 {
			return fmt.Errorf("telegram.chat_id must be set when telegram is enabled")
		}
	}
	if c.Twitter.Enabled {
		if c.Twitter.APIKey == "" || c.Twitter.APISecret == "" ||
			c.Twitter.AccessToken == "" || c.Twitter.AccessSecret == "" {
			return fmt.Errorf("twitter requires api_key, api_secret, access_token and access_secret")
		}
	}
	if c.Commentary.Enabled && c.Commentary.APIKey == "" {
		return fmt.Errorf("commentary.api_key must be set when commentary is enabled")
	}
	return nil
}

// SourceDescriptors converts the source table into the immutable runtime
// descriptors keyed by source ID.
func (c Config) SourceDescriptors() map[string]radar.SourceDescriptor {
	out := make(map[string]radar.SourceDescriptor, len(c.Sources))
	for id, src := range c.Sources {
		desc := radar.SourceDescriptor{
			ID:             id,
			Name:           src.Name,
			URL:            src.URL,
			Selector:       src.Selector,
			WaitFor:        src.WaitFor,
			ExtraDelay:     time.Duration(src.ExtraDelaySec) * time.Second,
			ScalePercent:   src.ScalePercent,
			PadToWidth:     src.PadToWidth,
			HidePatterns:   src.HidePatterns,
			FullPage:       src.FullPage,
			Enabled:        src.Enabled == nil || *src.Enabled,
			TelegramTitle:  src.TelegramTitle,
			Hashtags:       src.Hashtags,
			SkipCommentary: src.SkipCommentary,
		}
		if desc.Name == "" {
			desc.Name = id
		}
		if desc.TelegramTitle == "" {
			desc.TelegramTitle = desc.Name
		}
		if src.Crop != nil {
			desc.Crop = &radar.CropInsets{
				Top:    src.Crop.Top,
				Right:  src.Crop.Right,
				Bottom: src.Crop.Bottom,
				Left:   src.Crop.Left,
			}
		}
		out[id] = desc
	}
	return out
}

// ScheduleSlots converts the slot table, preserving declaration order.
func (c Config) ScheduleSlots() []radar.ScheduleSlot {
	out := make([]radar.ScheduleSlot, 0, len(c.Schedule.Slots))
	for _, slot := range c.Schedule.Slots {
		out = append(out, radar.ScheduleSlot{
			Name:       slot.Name,
			Start:      slot.Start,
			End:        slot.End,
			Candidates: slot.Candidates,
			Policy:     radar.SelectionPolicy(slot.Policy),
		})
	}
	return out
}

// Cooldown returns the duplicate-suppression window.
func (c Config) Cooldown() time.Duration {
	return time.Duration(c.Schedule.CooldownMinutes) * time.Minute
}

// PurgeAge returns the scratch-file retention window.
func (c Config) PurgeAge() time.Duration {
	return time.Duration(c.Workdir.PurgeAgeHours) * time.Hour
}
