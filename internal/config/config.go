// Package config reads the bot configuration from the environment, with an
// optional .env file in the working directory.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var ErrMissingToken = errors.New("DISCORD_TOKEN is not set")

type Config struct {
	DiscordToken   string   `env:"DISCORD_TOKEN"`
	GuildBlacklist []string `env:"DISCORD_GUILD_BLACKLIST" envSeparator:","`

	Schedule  Schedule  `envPrefix:"SCHEDULE_"`
	Connect   Connect   `envPrefix:"CONNECT_"`
	Media     Library   `envPrefix:"MEDIA_"`
	Images    Library   `envPrefix:"IMAGE_"`
	Keepalive Keepalive `envPrefix:"KEEPALIVE_"`
	Log       Log       `envPrefix:"LOG_"`

	PlaybackPoll time.Duration `env:"PLAYBACK_POLL" envDefault:"1s"`
	Denylist     []string      `env:"DENYLIST" envSeparator:","`
	KickEnabled  bool          `env:"KICK_ENABLED" envDefault:"false"`
	KickMemberID string        `env:"KICK_MEMBER_ID"`
	MentionRate  float64       `env:"MENTION_RATE" envDefault:"0"`
}

type Schedule struct {
	Enabled    bool          `env:"ENABLED" envDefault:"true"`
	Interval   time.Duration `env:"INTERVAL" envDefault:"30m"`
	RunOnStart bool          `env:"RUN_ON_START" envDefault:"true"`
	StartDelay time.Duration `env:"START_DELAY" envDefault:"0s"`
	Workers    int           `env:"WORKERS" envDefault:"0"`
}

type Connect struct {
	Retries     int           `env:"RETRIES" envDefault:"3"`
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"15s"`
	Backoff     time.Duration `env:"BACKOFF" envDefault:"5s"`
	BackoffMode string        `env:"BACKOFF_MODE" envDefault:"linear"`
	Pacing      bool          `env:"PACING" envDefault:"true"`
}

// Library describes where a media.Library is loaded from. Defaults are the
// audio ones; images override them in defaults().
type Library struct {
	Source     string   `env:"SOURCE" envDefault:"scan"`
	Dir        string   `env:"DIR"`
	Files      []string `env:"FILES" envSeparator:","`
	Extensions []string `env:"EXTENSIONS" envSeparator:","`
}

type Keepalive struct {
	Enabled bool   `env:"ENABLED" envDefault:"true"`
	Addr    string `env:"ADDR" envDefault:":8080"`
}

type Log struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"console"`
	File   string `env:"FILE"`
}

var (
	defaultAudio = Library{
		Dir:        "./assets/audio",
		Files:      []string{"duplicate_indian.mp3", "leftra.mp3", "sleeper.mp3", "okaybuzzy.mp4.wav"},
		Extensions: []string{".mp3", ".wav", ".ogg", ".opus", ".m4a", ".flac"},
	}
	defaultImages = Library{
		Dir:        "./assets/images",
		Extensions: []string{".png", ".jpg", ".jpeg", ".gif", ".webp"},
	}
)

// Load reads .env if present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, falling back to system environment variables")
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return finish(&cfg)
}

// LoadFrom reads the configuration from vars only.
func LoadFrom(vars map[string]string) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.Media.fill(defaultAudio)
	cfg.Images.fill(defaultImages)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Library) fill(def Library) {
	if l.Dir == "" {
		l.Dir = def.Dir
	}
	if len(l.Files) == 0 {
		l.Files = def.Files
	}
	if len(l.Extensions) == 0 {
		l.Extensions = def.Extensions
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return ErrMissingToken
	}
	switch {
	case c.Schedule.Interval <= 0:
		return fmt.Errorf("SCHEDULE_INTERVAL must be positive, got %s", c.Schedule.Interval)
	case c.Schedule.StartDelay < 0:
		return fmt.Errorf("SCHEDULE_START_DELAY must not be negative, got %s", c.Schedule.StartDelay)
	case c.Schedule.Workers < 0:
		return fmt.Errorf("SCHEDULE_WORKERS must not be negative, got %d", c.Schedule.Workers)
	case c.Connect.Retries < 1:
		return fmt.Errorf("CONNECT_RETRIES must be at least 1, got %d", c.Connect.Retries)
	case c.Connect.Timeout <= 0:
		return fmt.Errorf("CONNECT_TIMEOUT must be positive, got %s", c.Connect.Timeout)
	case c.Connect.Backoff < 0:
		return fmt.Errorf("CONNECT_BACKOFF must not be negative, got %s", c.Connect.Backoff)
	case c.Connect.BackoffMode != "linear" && c.Connect.BackoffMode != "constant":
		return fmt.Errorf("CONNECT_BACKOFF_MODE must be linear or constant, got %q", c.Connect.BackoffMode)
	case c.PlaybackPoll <= 0:
		return fmt.Errorf("PLAYBACK_POLL must be positive, got %s", c.PlaybackPoll)
	case c.KickEnabled && c.KickMemberID == "":
		return errors.New("KICK_MEMBER_ID is required when KICK_ENABLED is set")
	case c.MentionRate < 0:
		return fmt.Errorf("MENTION_RATE must not be negative, got %v", c.MentionRate)
	}
	for name, src := range map[string]string{"MEDIA_SOURCE": c.Media.Source, "IMAGE_SOURCE": c.Images.Source} {
		if src != "scan" && src != "static" {
			return fmt.Errorf("%s must be scan or static, got %q", name, src)
		}
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.Log.Format)
	}
	return nil
}
