package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-ambush/internal/audio"
	"voice-ambush/internal/voice"
)

// API is the REST part of *discordgo.Session the gateway uses.
type API interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberMove(guildID string, userID string, channelID *string, options ...discordgo.RequestOption) error
}

// voiceConn is a joined voice connection. Disconnect leaves voice for the
// whole guild; Close only shuts this connection's sockets.
type voiceConn interface {
	audio.Sink
	Disconnect() error
	Close()
}

type vcConn struct {
	audio.Sink
	vc *discordgo.VoiceConnection
}

func (c vcConn) Disconnect() error { return c.vc.Disconnect() }
func (c vcConn) Close()            { c.vc.Close() }

// Gateway exposes guild snapshots, voice joins and member moves built on
// the session state cache.
type Gateway struct {
	api    API
	state  *discordgo.State
	player *audio.Player
	log    *zerolog.Logger

	join   func(guildID, channelID string) (voiceConn, error)
	lookup func(guildID string) (voiceConn, string)
}

func NewGateway(dg *discordgo.Session, player *audio.Player, logger *zerolog.Logger) *Gateway {
	if logger == nil {
		logger = &log.Logger
	}
	if player == nil {
		player = &audio.Player{}
	}
	return &Gateway{
		api:    dg,
		state:  dg.State,
		player: player,
		log:    logger,
		join: func(guildID, channelID string) (voiceConn, error) {
			vc, err := dg.ChannelVoiceJoin(guildID, channelID, false, true)
			if err != nil {
				return nil, err
			}
			return vcConn{Sink: audio.Voice(vc), vc: vc}, nil
		},
		lookup: func(guildID string) (voiceConn, string) {
			dg.RLock()
			vc, ok := dg.VoiceConnections[guildID]
			dg.RUnlock()
			if !ok || vc == nil {
				return nil, ""
			}
			vc.RLock()
			channelID := vc.ChannelID
			vc.RUnlock()
			return vcConn{Sink: audio.Voice(vc), vc: vc}, channelID
		},
	}
}

// Guilds snapshots every guild in the state cache. Voice channel members
// come from voice states; the bot flag is read from the member cache and
// fetched over REST when the member is not cached.
func (g *Gateway) Guilds() []voice.Guild {
	var out []voice.Guild
	uncached := make(map[string]map[string]bool) // guild id -> user ids

	g.state.RLock()
	for _, guild := range g.state.Guilds {
		members := make(map[string]*discordgo.Member, len(guild.Members))
		for _, m := range guild.Members {
			if m.User != nil {
				members[m.User.ID] = m
			}
		}

		inChannel := make(map[string][]voice.Member)
		for _, vs := range guild.VoiceStates {
			if vs.ChannelID == "" {
				continue
			}
			m := vs.Member
			if m == nil || m.User == nil {
				m = members[vs.UserID]
			}
			vm := voice.Member{ID: vs.UserID}
			if m != nil && m.User != nil {
				vm.Name = displayName(m)
				vm.Bot = m.User.Bot
			} else {
				if uncached[guild.ID] == nil {
					uncached[guild.ID] = make(map[string]bool)
				}
				uncached[guild.ID][vs.UserID] = true
			}
			inChannel[vs.ChannelID] = append(inChannel[vs.ChannelID], vm)
		}

		snap := voice.Guild{ID: guild.ID, Name: guild.Name}
		for _, ch := range guild.Channels {
			snap.Channels = append(snap.Channels, voice.Channel{
				ID:       ch.ID,
				GuildID:  guild.ID,
				Name:     ch.Name,
				Kind:     channelKind(ch.Type),
				Position: ch.Position,
				Members:  inChannel[ch.ID],
			})
		}
		out = append(out, snap)
	}
	g.state.RUnlock()

	// REST calls happen outside the state lock.
	for gi := range out {
		users := uncached[out[gi].ID]
		if len(users) == 0 {
			continue
		}
		for ci := range out[gi].Channels {
			for mi := range out[gi].Channels[ci].Members {
				m := &out[gi].Channels[ci].Members[mi]
				if users[m.ID] {
					g.resolve(out[gi].ID, m)
				}
			}
		}
	}
	return out
}

// resolve fills m from REST. On failure m stays a human.
func (g *Gateway) resolve(guildID string, m *voice.Member) {
	member, err := g.api.GuildMember(guildID, m.ID)
	if err != nil || member == nil || member.User == nil {
		g.log.Warn().Err(err).Str("guild_id", guildID).Str("user_id", m.ID).
			Msg("Failed to fetch voice member, treating as human")
		return
	}
	m.Name = displayName(member)
	m.Bot = member.User.Bot
}

// Existing returns the guild's current voice connection, or nil.
func (g *Gateway) Existing(guildID string) voice.Session {
	conn, channelID := g.lookup(guildID)
	if conn == nil {
		return nil
	}
	return g.session(conn, guildID, channelID)
}

type joinResult struct {
	conn voiceConn
	err  error
}

// Join connects to a voice channel. When ctx ends first the join keeps
// going in the background and whatever it produces is disconnected.
func (g *Gateway) Join(ctx context.Context, guildID, channelID string) (voice.Session, error) {
	res := make(chan joinResult, 1)
	go func() {
		conn, err := g.join(guildID, channelID)
		res <- joinResult{conn, err}
	}()

	select {
	case r := <-res:
		if r.err != nil {
			return nil, fmt.Errorf("join voice channel: %w", r.err)
		}
		return g.session(r.conn, guildID, channelID), nil
	case <-ctx.Done():
		go func() {
			if r := <-res; r.conn != nil {
				g.dropLate(guildID, r.conn)
			}
		}()
		return nil, ctx.Err()
	}
}

// dropLate tears down a join that finished after its deadline. The guild
// only leaves voice while conn is still its registered connection; when a
// newer join owns the guild, conn just closes its own sockets.
func (g *Gateway) dropLate(guildID string, conn voiceConn) {
	if cur, _ := g.lookup(guildID); cur != conn {
		conn.Close()
		return
	}
	if err := conn.Disconnect(); err != nil {
		g.log.Warn().Err(err).Str("guild_id", guildID).Msg("Failed to drop late voice connection")
	}
}

// MemberInVoice reports whether userID sits in any voice channel of guildID.
func (g *Gateway) MemberInVoice(guildID, userID string) bool {
	vs, err := g.state.VoiceState(guildID, userID)
	return err == nil && vs.ChannelID != ""
}

// MoveMember moves userID to channelID, or out of voice when channelID is nil.
func (g *Gateway) MoveMember(ctx context.Context, guildID, userID string, channelID *string) error {
	if err := g.api.GuildMemberMove(guildID, userID, channelID, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("move member %s: %w", userID, err)
	}
	return nil
}

func (g *Gateway) session(conn voiceConn, guildID, channelID string) *voiceSession {
	return &voiceSession{
		guildID:   guildID,
		channelID: channelID,
		conn:      conn,
		player:    g.player,
	}
}

func channelKind(t discordgo.ChannelType) voice.ChannelKind {
	switch t {
	case discordgo.ChannelTypeGuildVoice:
		return voice.KindVoice
	case discordgo.ChannelTypeGuildStageVoice:
		return voice.KindStage
	default:
		return voice.KindOther
	}
}

func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}
