// Package config loads the autoposter settings from a YAML file, a .env file
// and AUTOPOSTER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/blackmichael/bsky-autoposter/internal/activitylog"
	"github.com/blackmichael/bsky-autoposter/internal/domain"
)

// EnvPrefix prefixes every environment variable, e.g. AUTOPOSTER_BLUESKY_HANDLE.
const EnvPrefix = "AUTOPOSTER"

var handlePattern = regexp.MustCompile(`^([a-zA-Z0-9.-]+|did:[a-zA-Z0-9:]+)$`)

// Config holds all configuration for the application.
type Config struct {
	Bluesky      BlueskyConfig      `mapstructure:"bluesky"`
	Post         PostConfig         `mapstructure:"post"`
	LinkTracking LinkTrackingConfig `mapstructure:"link_tracking"`
	Log          LogConfig          `mapstructure:"log"`
	Publish      PublishConfig      `mapstructure:"publish"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Server       ServerConfig       `mapstructure:"server"`
	Events       EventsConfig       `mapstructure:"events"`
}

// BlueskyConfig identifies the account posts are published to.
type BlueskyConfig struct {
	// Handle is the account handle or DID. A leading "@" is removed.
	Handle string `mapstructure:"handle"`

	// AppPassword is an app password, not the account password.
	AppPassword string `mapstructure:"app_password"`

	// PDS is the XRPC host.
	PDS string `mapstructure:"pds"`
}

// PostConfig shapes the post text.
type PostConfig struct {
	Template       string `mapstructure:"template"`
	FallbackText   string `mapstructure:"fallback_text"`
	InlineHashtags bool   `mapstructure:"inline_hashtags"`
	BaseURL        string `mapstructure:"base_url"`
	UseSEOMetadata bool   `mapstructure:"use_seo_metadata"`
	Language       string `mapstructure:"language"`
}

// LinkTrackingConfig holds the UTM parameters appended to links.
type LinkTrackingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	UTMSource   string `mapstructure:"utm_source"`
	UTMMedium   string `mapstructure:"utm_medium"`
	UTMCampaign string `mapstructure:"utm_campaign"`
	UTMTerm     string `mapstructure:"utm_term"`
	UTMContent  string `mapstructure:"utm_content"`
}

// LogConfig configures the activity log.
type LogConfig struct {
	// Level is the minimum level written: debug, success, warning or error.
	Level     string `mapstructure:"level"`
	File      string `mapstructure:"file"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
}

// PublishConfig is the submission retry policy.
type PublishConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	RetryDelay  time.Duration `mapstructure:"retry_delay"`
}

// DatabaseConfig locates the SQLite state file.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`

	// SessionSecret, when set, seals the stored session tokens.
	SessionSecret string `mapstructure:"session_secret"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port int `mapstructure:"port"`

	// WebhookToken, when set, must be sent in X-Webhook-Token.
	WebhookToken string `mapstructure:"webhook_token"`
}

// EventsConfig configures the optional WebSocket event stream.
type EventsConfig struct {
	URL string `mapstructure:"url"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bluesky.handle", "")
	v.SetDefault("bluesky.app_password", "")
	v.SetDefault("bluesky.pds", "https://bsky.social")

	v.SetDefault("post.template", domain.DefaultPostTemplate)
	v.SetDefault("post.fallback_text", "")
	v.SetDefault("post.inline_hashtags", false)
	v.SetDefault("post.base_url", "")
	v.SetDefault("post.use_seo_metadata", false)
	v.SetDefault("post.language", "en_US")

	v.SetDefault("link_tracking.enabled", false)
	v.SetDefault("link_tracking.utm_source", "")
	v.SetDefault("link_tracking.utm_medium", "")
	v.SetDefault("link_tracking.utm_campaign", "")
	v.SetDefault("link_tracking.utm_term", "")
	v.SetDefault("link_tracking.utm_content", "")

	v.SetDefault("log.level", "error")
	v.SetDefault("log.file", activitylog.DefaultFileName)
	v.SetDefault("log.max_size_mb", 10)

	v.SetDefault("publish.max_attempts", domain.DefaultMaxAttempts)
	v.SetDefault("publish.retry_delay", domain.DefaultRetryDelay)

	v.SetDefault("database.path", "autoposter.db")
	v.SetDefault("database.session_secret", "")

	v.SetDefault("server.port", 3000)
	v.SetDefault("server.webhook_token", "")

	v.SetDefault("events.url", "")
}

// Load reads configuration. A .env file in the working directory is loaded
// into the environment first. If path is empty, autoposter.yaml is looked up
// in the working directory and /etc/bsky-autoposter, and a missing file is
// not an error. Environment variables override file values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("autoposter")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/bsky-autoposter")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalises the configuration in place and reports every invalid
// field.
func (c *Config) Validate() error {
	var errs []error

	c.Bluesky.Handle = strings.TrimLeft(strings.TrimSpace(c.Bluesky.Handle), "@")
	if c.Bluesky.Handle != "" && !handlePattern.MatchString(c.Bluesky.Handle) {
		errs = append(errs, fmt.Errorf("bluesky.handle %q: invalid handle format, expected e.g. username.bsky.social or a DID", c.Bluesky.Handle))
	}
	c.Bluesky.AppPassword = strings.TrimSpace(c.Bluesky.AppPassword)

	if strings.TrimSpace(c.Post.Template) == "" {
		c.Post.Template = domain.DefaultPostTemplate
	}

	if base := strings.TrimSpace(c.Post.BaseURL); base != "" {
		u, err := url.Parse(base)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs = append(errs, fmt.Errorf("post.base_url %q: must be a valid URL including http:// or https://", base))
		}
		c.Post.BaseURL = strings.TrimRight(base, "/")
	}

	if _, err := activitylog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}

	if c.Publish.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("publish.max_attempts must be at least 1, got %d", c.Publish.MaxAttempts))
	}
	if c.Publish.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("publish.retry_delay must not be negative, got %s", c.Publish.RetryDelay))
	}

	if c.Database.Path == "" {
		errs = append(errs, errors.New("database.path is required"))
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	return errors.Join(errs...)
}

// LogLevel returns the configured activity log level.
func (c *Config) LogLevel() slog.Level {
	level, _ := activitylog.ParseLevel(c.Log.Level)
	return level
}

// Settings returns the publisher's view of the configuration.
func (c *Config) Settings() domain.Settings {
	return domain.Settings{
		Handle:         c.Bluesky.Handle,
		AppPassword:    c.Bluesky.AppPassword,
		PostTemplate:   c.Post.Template,
		FallbackText:   c.Post.FallbackText,
		InlineHashtags: c.Post.InlineHashtags,
		UseSEOMetadata: c.Post.UseSEOMetadata,
		BaseURL:        c.Post.BaseURL,
		LinkTracking:   c.LinkTracking.Enabled,
		UTM: domain.UTM{
			Source:   c.LinkTracking.UTMSource,
			Medium:   c.LinkTracking.UTMMedium,
			Campaign: c.LinkTracking.UTMCampaign,
			Term:     c.LinkTracking.UTMTerm,
			Content:  c.LinkTracking.UTMContent,
		},
		Language:    c.Post.Language,
		MaxAttempts: c.Publish.MaxAttempts,
		RetryDelay:  c.Publish.RetryDelay,
	}
}
