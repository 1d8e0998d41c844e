package discord

import (
	"context"
	"fmt"
	"sync"

	"voice-ambush/internal/audio"
	"voice-ambush/internal/voice"
)

// voiceSession is one joined voice channel. Disconnect stops any playback
// it started.
type voiceSession struct {
	guildID   string
	channelID string
	conn      voiceConn
	player    *audio.Player

	mu       sync.Mutex
	playback *audio.Playback
}

func (s *voiceSession) GuildID() string   { return s.guildID }
func (s *voiceSession) ChannelID() string { return s.channelID }

func (s *voiceSession) Play(ctx context.Context, path string) (voice.Playback, error) {
	pb, err := s.player.Play(ctx, s.conn, path)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.playback = pb
	s.mu.Unlock()
	return pb, nil
}

func (s *voiceSession) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	pb := s.playback
	s.playback = nil
	s.mu.Unlock()
	if pb != nil {
		pb.Stop()
	}

	done := make(chan error, 1)
	go func() { done <- s.conn.Disconnect() }()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("disconnect from %s: %w", s.channelID, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
