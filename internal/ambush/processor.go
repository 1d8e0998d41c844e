// Package ambush drops into busy voice channels on a schedule, plays one
// clip and leaves.
package ambush

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-ambush/internal/media"
	"voice-ambush/internal/voice"
	"voice-ambush/pkg/retrylimit"
)

const (
	DefaultPollInterval = time.Second
	DefaultKickSettle   = time.Second
	releaseTimeout      = 10 * time.Second
)

// Connector acquires a voice session; *voice.Connector implements it.
type Connector interface {
	Connect(ctx context.Context, ch voice.Channel) (voice.Session, error)
}

// Mover moves members between voice channels. A nil channel disconnects.
type Mover interface {
	MemberInVoice(guildID, userID string) bool
	MoveMember(ctx context.Context, guildID, userID string, channelID *string) error
}

// Kick moves one member out of voice after playback. Off unless Enabled.
type Kick struct {
	Enabled  bool
	MemberID string
	Settle   time.Duration
	Mover    Mover
}

// Processor runs one voice drop for one guild.
type Processor struct {
	Connector    Connector
	Media        *media.Library
	Rand         media.Rand
	Denylist     []string
	PollInterval time.Duration
	Kick         Kick

	// Exists and Sleep are swapped in tests.
	Exists func(path string) bool
	Sleep  func(ctx context.Context, d time.Duration) error
	Log    *zerolog.Logger
}

// Process picks the first voice channel with a human in it, joins, plays a
// random clip to the end and leaves. Missing preconditions are logged and
// return nil. A session that was acquired is always released exactly once.
func (p *Processor) Process(ctx context.Context, g voice.Guild) error {
	logger := p.logger().With().Str("guild_id", g.ID).Logger()

	active, ok := firstActiveChannel(g)
	if !ok {
		logger.Info().Msgf("No active VC with users in %s", g.Name)
		return nil
	}
	logger.Info().Str("channel_id", active.ID).Msgf("Found users in '%s' - Server: %s", active.Name, g.Name)

	if len(p.validUsers(active)) == 0 {
		logger.Info().Msgf("No valid users in %s", active.Name)
		return nil
	}

	sess, err := p.Connector.Connect(ctx, active)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", active.Name, err)
	}
	if sess == nil {
		logger.Warn().Msgf("Skipping %s due to voice failure.", g.Name)
		return nil
	}

	var completed bool
	func() {
		defer p.release(ctx, sess, &logger)
		completed, err = p.perform(ctx, g, active, sess, &logger)
	}()
	if err != nil {
		return err
	}
	if completed {
		logger.Info().Msgf("Completed action in %s", g.Name)
	}
	return nil
}

// perform plays one clip on an acquired session. completed is false when the
// clip was missing.
func (p *Processor) perform(ctx context.Context, g voice.Guild, ch voice.Channel, sess voice.Session, logger *zerolog.Logger) (completed bool, err error) {
	path, ok := p.Media.Pick(p.rand())
	if !ok {
		logger.Warn().Str("dir", p.Media.Dir()).Msg("No audio clips configured")
		return false, nil
	}
	if !p.exists(path) {
		logger.Warn().Msgf("Audio file missing: %s", path)
		return false, nil
	}

	logger.Info().Msgf("Playing %s in %s", path, ch.Name)
	pb, err := sess.Play(ctx, path)
	if err != nil {
		return false, fmt.Errorf("play %s: %w", path, err)
	}
	if err := p.waitPlayback(ctx, pb); err != nil {
		return false, err
	}
	if err := pb.Err(); err != nil {
		logger.Warn().Err(err).Msgf("Playback of %s ended early", path)
	}

	if err := p.kick(ctx, g, ch, logger); err != nil {
		return false, err
	}
	return true, nil
}

// waitPlayback blocks until the playback signals completion. When the
// playback has no completion signal it polls Playing every PollInterval.
func (p *Processor) waitPlayback(ctx context.Context, pb voice.Playback) error {
	interval := p.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-pb.Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !pb.Playing() {
				return nil
			}
		}
	}
}

func (p *Processor) kick(ctx context.Context, g voice.Guild, ch voice.Channel, logger *zerolog.Logger) error {
	k := p.Kick
	if !k.Enabled || k.MemberID == "" || k.Mover == nil {
		return nil
	}
	if !k.Mover.MemberInVoice(g.ID, k.MemberID) {
		return nil
	}

	logger.Info().Str("member_id", k.MemberID).Msgf("Kicking %s from %s", memberName(ch, k.MemberID), ch.Name)
	if err := k.Mover.MoveMember(ctx, g.ID, k.MemberID, nil); err != nil {
		logger.Warn().Err(err).Str("member_id", k.MemberID).Msg("Failed to move member out of voice")
		return nil
	}

	settle := k.Settle
	if settle <= 0 {
		settle = DefaultKickSettle
	}
	return p.sleep(ctx, settle)
}

// release disconnects even when ctx is already cancelled.
func (p *Processor) release(ctx context.Context, sess voice.Session, logger *zerolog.Logger) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := sess.Disconnect(rctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to disconnect voice session")
	}
}

func (p *Processor) validUsers(ch voice.Channel) []string {
	var ids []string
	for _, m := range ch.Humans() {
		if !slices.Contains(p.Denylist, m.ID) {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func firstActiveChannel(g voice.Guild) (voice.Channel, bool) {
	for _, ch := range g.VoiceChannels() {
		if len(ch.Humans()) > 0 {
			return ch, true
		}
	}
	return voice.Channel{}, false
}

func memberName(ch voice.Channel, id string) string {
	for _, m := range ch.Members {
		if m.ID == id && m.Name != "" {
			return m.Name
		}
	}
	return id
}

func (p *Processor) rand() media.Rand {
	if p.Rand != nil {
		return p.Rand
	}
	return media.DefaultRand
}

func (p *Processor) exists(path string) bool {
	if p.Exists != nil {
		return p.Exists(path)
	}
	return media.Exists(path)
}

func (p *Processor) sleep(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
	}
	return retrylimit.Sleep(ctx, d)
}

func (p *Processor) logger() *zerolog.Logger {
	if p.Log != nil {
		return p.Log
	}
	return &log.Logger
}
