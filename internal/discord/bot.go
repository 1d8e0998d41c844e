// Package discord binds the voice drop and mention features to a discordgo
// session.
package discord

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-ambush/internal/mention"
)

// Intents the bot identifies with: guild and channel lists, voice states,
// the member cache for bot flags, and message content for mentions.
const Intents = discordgo.IntentsGuilds |
	discordgo.IntentsGuildVoiceStates |
	discordgo.IntentsGuildMembers |
	discordgo.IntentsGuildMessages |
	discordgo.IntentsMessageContent

// NewSession creates a discordgo session with state tracking for channels,
// members and voice states.
func NewSession(token string) (*discordgo.Session, error) {
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	dg.Identify.Intents = Intents
	dg.StateEnabled = true
	dg.State.TrackChannels = true
	dg.State.TrackMembers = true
	dg.State.TrackVoice = true
	return dg, nil
}

// Scheduler is started once the gateway is ready.
type Scheduler interface {
	Run(ctx context.Context) error
}

type guildLeaver interface {
	GuildLeave(guildID string, options ...discordgo.RequestOption) error
}

// Bot owns the gateway connection and its event handlers.
type Bot struct {
	dg        *discordgo.Session
	leaver    guildLeaver
	blacklist []string
	scheduler Scheduler
	mentions  *mention.Responder
	log       *zerolog.Logger

	ctx       context.Context
	startOnce sync.Once
	wg        sync.WaitGroup
}

type Options struct {
	GuildBlacklist []string
	Scheduler      Scheduler          // optional
	Mentions       *mention.Responder // optional
	Log            *zerolog.Logger
}

func New(dg *discordgo.Session, opts Options) *Bot {
	logger := opts.Log
	if logger == nil {
		logger = &log.Logger
	}
	return &Bot{
		dg:        dg,
		leaver:    dg,
		blacklist: opts.GuildBlacklist,
		scheduler: opts.Scheduler,
		mentions:  opts.Mentions,
		log:       logger,
		ctx:       context.Background(),
	}
}

// Run opens the gateway and blocks until ctx is done. The scheduler, if
// any, runs under ctx and Run waits for it before closing the gateway.
func (b *Bot) Run(ctx context.Context) error {
	b.ctx = ctx

	b.dg.AddHandler(b.onReady)
	b.dg.AddHandler(b.onGuildCreate)
	b.dg.AddHandler(b.onMessageCreate)

	if err := b.dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}
	defer b.dg.Close()

	<-ctx.Done()
	b.log.Info().Msg("Shutdown signal received. Cleaning up...")
	b.startOnce.Do(func() {}) // too late to start now
	b.wg.Wait()
	return nil
}

// onReady fires after every gateway (re)connect. The scheduler starts on
// the first one only.
func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		b.log.Info().Str("user", r.User.Username).Str("user_id", r.User.ID).
			Int("guilds", len(r.Guilds)).Msgf("Logged in as %s", r.User.Username)
	}

	for _, g := range r.Guilds {
		b.leaveIfBlacklisted(g.ID, g.Name)
	}

	b.startScheduler()
}

func (b *Bot) onGuildCreate(s *discordgo.Session, g *discordgo.GuildCreate) {
	if g.Guild == nil {
		return
	}
	if b.leaveIfBlacklisted(g.ID, g.Name) {
		return
	}
	b.log.Debug().Str("guild_id", g.ID).Msgf("Guild available: %s", g.Name)
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if b.mentions == nil || m.Message == nil || s.State == nil || s.State.User == nil {
		return
	}
	if _, err := b.mentions.Handle(s.State.User.ID, m.Message); err != nil {
		b.log.Error().Err(err).Str("guild_id", m.GuildID).Msg("Failed to answer mention")
	}
}

func (b *Bot) startScheduler() {
	if b.scheduler == nil {
		return
	}
	b.startOnce.Do(func() {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			if err := b.scheduler.Run(b.ctx); err != nil {
				b.log.Error().Err(err).Msg("Scheduler exited with error")
			}
		}()
	})
}

func (b *Bot) leaveIfBlacklisted(guildID, name string) bool {
	if !slices.Contains(b.blacklist, guildID) {
		return false
	}
	b.log.Info().Str("guild_id", guildID).Msgf("Leaving blacklisted guild: %s", name)
	if err := b.leaver.GuildLeave(guildID); err != nil {
		b.log.Error().Err(err).Str("guild_id", guildID).Msg("Failed to leave guild")
	}
	return true
}
