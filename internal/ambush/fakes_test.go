package ambush

import (
	"context"
	"sync"

	"voice-ambush/internal/voice"
)

type fakePlayback struct {
	done    chan struct{}
	mu      sync.Mutex
	playing bool
	polls   int
	err     error
}

// finishedPlayback signals completion through Done.
func finishedPlayback() *fakePlayback {
	pb := &fakePlayback{done: make(chan struct{})}
	close(pb.done)
	return pb
}

// pollOnlyPlayback has no completion signal and reports playing for n polls.
func pollOnlyPlayback(n int) *fakePlayback {
	return &fakePlayback{playing: true, polls: n}
}

func (p *fakePlayback) Done() <-chan struct{} { return p.done }

func (p *fakePlayback) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.polls > 0 {
		p.polls--
		return true
	}
	return false
}

func (p *fakePlayback) Err() error { return p.err }

type fakeSession struct {
	mu          sync.Mutex
	guildID     string
	channelID   string
	playback    voice.Playback
	playErr     error
	played      []string
	disconnects int
}

func (s *fakeSession) GuildID() string   { return s.guildID }
func (s *fakeSession) ChannelID() string { return s.channelID }

func (s *fakeSession) Play(ctx context.Context, path string) (voice.Playback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, path)
	if s.playErr != nil {
		return nil, s.playErr
	}
	if s.playback == nil {
		return finishedPlayback(), nil
	}
	return s.playback, nil
}

func (s *fakeSession) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnects++
	return nil
}

type fakeConnector struct {
	mu       sync.Mutex
	session  *fakeSession
	err      error
	fail     bool // return (nil, nil)
	channels []voice.Channel
}

func (c *fakeConnector) Connect(ctx context.Context, ch voice.Channel) (voice.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels = append(c.channels, ch)
	if c.err != nil {
		return nil, c.err
	}
	if c.fail {
		return nil, nil
	}
	if c.session == nil {
		c.session = &fakeSession{}
	}
	c.session.guildID = ch.GuildID
	c.session.channelID = ch.ID
	return c.session, nil
}

type moveCall struct {
	guildID, userID string
	channelID       *string
}

type fakeMover struct {
	inVoice map[string]bool
	moves   []moveCall
}

func (m *fakeMover) MemberInVoice(guildID, userID string) bool {
	return m.inVoice[userID]
}

func (m *fakeMover) MoveMember(ctx context.Context, guildID, userID string, channelID *string) error {
	m.moves = append(m.moves, moveCall{guildID, userID, channelID})
	return nil
}
