package config

import (
	"errors"
	"slices"
	"strings"
	"testing"
	"time"
)

func TestLoadFromDefaults(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{"DISCORD_TOKEN": "abc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Schedule.Interval != 30*time.Minute || !cfg.Schedule.Enabled || !cfg.Schedule.RunOnStart {
		t.Errorf("unexpected schedule defaults: %+v", cfg.Schedule)
	}
	if cfg.Connect.Retries != 3 || cfg.Connect.Timeout != 15*time.Second || cfg.Connect.Backoff != 5*time.Second {
		t.Errorf("unexpected connect defaults: %+v", cfg.Connect)
	}
	if cfg.Connect.BackoffMode != "linear" || !cfg.Connect.Pacing {
		t.Errorf("unexpected connect defaults: %+v", cfg.Connect)
	}
	if cfg.PlaybackPoll != time.Second {
		t.Errorf("expected 1s poll, got %s", cfg.PlaybackPoll)
	}
	if cfg.Media.Source != "scan" || cfg.Media.Dir != "./assets/audio" {
		t.Errorf("unexpected media defaults: %+v", cfg.Media)
	}
	wantFiles := []string{"duplicate_indian.mp3", "leftra.mp3", "sleeper.mp3", "okaybuzzy.mp4.wav"}
	if !slices.Equal(cfg.Media.Files, wantFiles) {
		t.Errorf("expected files %v, got %v", wantFiles, cfg.Media.Files)
	}
	if cfg.Images.Dir != "./assets/images" || !slices.Contains(cfg.Images.Extensions, ".png") {
		t.Errorf("unexpected image defaults: %+v", cfg.Images)
	}
	if cfg.KickEnabled {
		t.Error("kick must be off by default")
	}
	if !cfg.Keepalive.Enabled || cfg.Keepalive.Addr != ":8080" {
		t.Errorf("unexpected keepalive defaults: %+v", cfg.Keepalive)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "console" {
		t.Errorf("unexpected log defaults: %+v", cfg.Log)
	}
}

func TestLoadFromOverrides(t *testing.T) {
	cfg, err := LoadFrom(map[string]string{
		"DISCORD_TOKEN":           "abc",
		"DISCORD_GUILD_BLACKLIST": "1,2",
		"SCHEDULE_INTERVAL":       "5m",
		"SCHEDULE_RUN_ON_START":   "false",
		"CONNECT_RETRIES":         "5",
		"CONNECT_BACKOFF_MODE":    "constant",
		"MEDIA_SOURCE":            "static",
		"MEDIA_FILES":             "a.mp3,b.mp3",
		"DENYLIST":                "42",
		"KICK_ENABLED":            "true",
		"KICK_MEMBER_ID":          "368387023914008598",
		"MENTION_RATE":            "0.5",
		"LOG_FORMAT":              "json",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(cfg.GuildBlacklist, []string{"1", "2"}) {
		t.Errorf("unexpected blacklist %v", cfg.GuildBlacklist)
	}
	if cfg.Schedule.Interval != 5*time.Minute || cfg.Schedule.RunOnStart {
		t.Errorf("unexpected schedule %+v", cfg.Schedule)
	}
	if cfg.Connect.Retries != 5 || cfg.Connect.BackoffMode != "constant" {
		t.Errorf("unexpected connect %+v", cfg.Connect)
	}
	if cfg.Media.Source != "static" || !slices.Equal(cfg.Media.Files, []string{"a.mp3", "b.mp3"}) {
		t.Errorf("unexpected media %+v", cfg.Media)
	}
	if !cfg.KickEnabled || cfg.KickMemberID != "368387023914008598" {
		t.Errorf("unexpected kick settings")
	}
	if cfg.MentionRate != 0.5 {
		t.Errorf("expected mention rate 0.5, got %v", cfg.MentionRate)
	}
}

func TestLoadFromMissingToken(t *testing.T) {
	_, err := LoadFrom(map[string]string{})
	if !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestLoadFromInvalid(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"zero interval", map[string]string{"SCHEDULE_INTERVAL": "0s"}, "SCHEDULE_INTERVAL"},
		{"no retries", map[string]string{"CONNECT_RETRIES": "0"}, "CONNECT_RETRIES"},
		{"backoff mode", map[string]string{"CONNECT_BACKOFF_MODE": "expo"}, "CONNECT_BACKOFF_MODE"},
		{"zero poll", map[string]string{"PLAYBACK_POLL": "0s"}, "PLAYBACK_POLL"},
		{"kick without member", map[string]string{"KICK_ENABLED": "true"}, "KICK_MEMBER_ID"},
		{"media source", map[string]string{"MEDIA_SOURCE": "cloud"}, "MEDIA_SOURCE"},
		{"log format", map[string]string{"LOG_FORMAT": "xml"}, "LOG_FORMAT"},
		{"bad duration", map[string]string{"CONNECT_TIMEOUT": "soon"}, "parse environment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.vars["DISCORD_TOKEN"] = "abc"
			_, err := LoadFrom(tt.vars)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}
