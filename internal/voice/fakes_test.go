package voice

import (
	"context"
	"sync"
	"time"
)

type fakeSession struct {
	platform    *fakePlatform
	guildID     string
	channelID   string
	disconnects int
}

func (s *fakeSession) GuildID() string   { return s.guildID }
func (s *fakeSession) ChannelID() string { return s.channelID }

func (s *fakeSession) Play(ctx context.Context, path string) (Playback, error) {
	return nil, nil
}

func (s *fakeSession) Disconnect(ctx context.Context) error {
	s.platform.mu.Lock()
	defer s.platform.mu.Unlock()
	s.disconnects++
	if s.platform.current == s {
		s.platform.current = nil
	}
	return nil
}

// fakePlatform fails the first len(errs) joins with the scripted errors
// (nil entries succeed) and succeeds afterwards.
type fakePlatform struct {
	mu      sync.Mutex
	errs    []error
	block   bool
	joins   int
	current *fakeSession
}

func (p *fakePlatform) Existing(guildID string) Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	return p.current
}

func (p *fakePlatform) Join(ctx context.Context, guildID, channelID string) (Session, error) {
	p.mu.Lock()
	p.joins++
	n := p.joins
	block := p.block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if n <= len(p.errs) && p.errs[n-1] != nil {
		return nil, p.errs[n-1]
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = &fakeSession{platform: p, guildID: guildID, channelID: channelID}
	return p.current, nil
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.waits = append(r.waits, d)
	r.mu.Unlock()
	return ctx.Err()
}
