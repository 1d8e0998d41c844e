// Package voice holds the platform-neutral view of guilds and voice channels
// and the connection retrier that acquires voice sessions.
package voice

import (
	"cmp"
	"context"
	"slices"
)

type ChannelKind int

const (
	KindOther ChannelKind = iota
	KindVoice
	KindStage
)

type Member struct {
	ID   string
	Name string
	Bot  bool
}

type Channel struct {
	ID       string
	GuildID  string
	Name     string
	Kind     ChannelKind
	Position int
	Members  []Member
}

// Humans returns the non-bot members of the channel.
func (c Channel) Humans() []Member {
	var out []Member
	for _, m := range c.Members {
		if !m.Bot {
			out = append(out, m)
		}
	}
	return out
}

// Guild is a snapshot of one guild taken at the start of a tick.
type Guild struct {
	ID       string
	Name     string
	Channels []Channel
}

// VoiceChannels returns the guild's plain voice channels ordered by
// position, then id. Stage channels are left out.
func (g Guild) VoiceChannels() []Channel {
	var out []Channel
	for _, c := range g.Channels {
		if c.Kind == KindVoice {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b Channel) int {
		if n := cmp.Compare(a.Position, b.Position); n != 0 {
			return n
		}
		return compareSnowflakes(a.ID, b.ID)
	})
	return out
}

// compareSnowflakes orders numeric ids without parsing them.
func compareSnowflakes(a, b string) int {
	if n := cmp.Compare(len(a), len(b)); n != 0 {
		return n
	}
	return cmp.Compare(a, b)
}

// Playback is one clip being played on a session.
type Playback interface {
	// Done is closed when playback ends for any reason.
	Done() <-chan struct{}
	Playing() bool
	// Err reports why playback ended. nil for a clip played to the end.
	Err() error
}

// Session is a live voice connection owned by whoever acquired it.
type Session interface {
	GuildID() string
	ChannelID() string
	Play(ctx context.Context, path string) (Playback, error)
	Disconnect(ctx context.Context) error
}

// Platform is the part of the chat platform the connector needs.
type Platform interface {
	// Existing returns the guild's current voice session, or nil.
	Existing(guildID string) Session
	// Join connects to a voice channel, giving up when ctx ends.
	Join(ctx context.Context, guildID, channelID string) (Session, error)
}
