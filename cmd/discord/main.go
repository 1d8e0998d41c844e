// cmd/discord/main.go
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"voice-ambush/internal/ambush"
	"voice-ambush/internal/audio"
	"voice-ambush/internal/config"
	"voice-ambush/internal/discord"
	"voice-ambush/internal/keepalive"
	"voice-ambush/internal/logging"
	"voice-ambush/internal/media"
	"voice-ambush/internal/mention"
	v "voice-ambush/internal/version"
	"voice-ambush/internal/voice"
	"voice-ambush/pkg/retrylimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger, logFile, err := logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid logging configuration")
	}
	defer logFile.Close()

	logger.Info().Str("version", v.Version).Msgf("Starting %v bot...", v.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clips := loadLibrary("audio", cfg.Media)
	images := loadLibrary("image", cfg.Images)

	dg, err := discord.NewSession(cfg.DiscordToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Discord session")
	}
	gateway := discord.NewGateway(dg, &audio.Player{}, &logger)

	connector := voice.NewConnector(gateway)
	connector.Retries = cfg.Connect.Retries
	connector.Timeout = cfg.Connect.Timeout
	connector.Log = &logger
	if cfg.Connect.BackoffMode == "constant" {
		connector.Backoff = retrylimit.Constant(cfg.Connect.Backoff)
	} else {
		connector.Backoff = retrylimit.Linear(cfg.Connect.Backoff)
	}
	if cfg.Connect.Pacing {
		connector.Limiter = retrylimit.NewAdaptiveLimiter(2, 1, 5, 1, 0.5)
	}

	processor := &ambush.Processor{
		Connector:    connector,
		Media:        clips,
		Denylist:     cfg.Denylist,
		PollInterval: cfg.PlaybackPoll,
		Kick: ambush.Kick{
			Enabled:  cfg.KickEnabled,
			MemberID: cfg.KickMemberID,
			Mover:    gateway,
		},
		Log: &logger,
	}

	scheduler := ambush.NewScheduler(gateway, processor)
	scheduler.Interval = cfg.Schedule.Interval
	scheduler.Enabled = cfg.Schedule.Enabled
	scheduler.RunOnStart = cfg.Schedule.RunOnStart
	scheduler.StartDelay = cfg.Schedule.StartDelay
	scheduler.Workers = cfg.Schedule.Workers
	scheduler.Log = &logger

	if cfg.Keepalive.Enabled {
		srv := &keepalive.Server{Jobs: scheduler.Jobs, Log: &logger}
		go srv.Run(ctx, cfg.Keepalive.Addr) //nolint:errcheck
	}

	bot := discord.New(dg, discord.Options{
		GuildBlacklist: cfg.GuildBlacklist,
		Scheduler:      scheduler,
		Mentions: &mention.Responder{
			Sender: dg,
			Images: images,
			Rate:   cfg.MentionRate,
			Log:    &logger,
		},
		Log: &logger,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := bot.Run(ctx); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Info().Str("signal", s.String()).Msg("Shutting down...")
		cancel()
		if err := <-errCh; err != nil {
			logger.Error().Err(err).Msg("Discord bot error")
		}
	case err, ok := <-errCh:
		cancel()
		if ok && err != nil {
			logFile.Close()
			log.Fatal().Err(err).Msg("Discord bot error")
		}
	}

	logger.Info().Msg("Discord bot exited cleanly")
}

// loadLibrary never fails: a missing folder leaves the library empty and
// every pick reports the file as missing.
func loadLibrary(kind string, c config.Library) *media.Library {
	lib, err := media.Load(media.Source(c.Source), c.Dir, c.Files, c.Extensions)
	if err != nil {
		log.Warn().Err(err).Str("kind", kind).Msg("Media library unavailable, starting empty")
		return media.Static(c.Dir, nil)
	}
	log.Info().Str("kind", kind).Str("dir", lib.Dir()).Int("files", lib.Len()).Msg("Media library loaded")
	return lib
}
