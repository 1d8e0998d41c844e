package voice

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-ambush/pkg/retrylimit"
)

const (
	DefaultRetries     = 3
	DefaultTimeout     = 15 * time.Second
	DefaultBackoffBase = 5 * time.Second
)

// Connector joins voice channels with bounded retries.
type Connector struct {
	Platform Platform
	Retries  int
	Timeout  time.Duration // per attempt
	Backoff  retrylimit.Backoff

	// Limiter paces joins across all guilds of a tick. Optional.
	Limiter *retrylimit.AdaptiveLimiter
	// Sleep is swapped in tests. nil waits on a timer.
	Sleep func(ctx context.Context, d time.Duration) error
	Log   *zerolog.Logger
}

// NewConnector returns a Connector with 3 attempts, a 15s attempt timeout and
// a linear 5s backoff.
func NewConnector(p Platform) *Connector {
	return &Connector{
		Platform: p,
		Retries:  DefaultRetries,
		Timeout:  DefaultTimeout,
		Backoff:  retrylimit.Linear(DefaultBackoffBase),
	}
}

// Connect joins ch. Any session the guild already has is force-disconnected
// before every attempt.
//
// It returns (nil, nil) once all attempts failed with transient errors. A
// fatal close is returned right away as a *retrylimit.FatalError wrapping a
// *ConnectError, without retrying.
func (c *Connector) Connect(ctx context.Context, ch Channel) (Session, error) {
	logger := c.logger().With().Str("guild_id", ch.GuildID).Str("channel", ch.Name).Logger()

	var sess Session
	err := retrylimit.Do(ctx, retrylimit.Config{
		MaxAttempts: c.Retries,
		Backoff:     c.Backoff,
		Limiter:     c.Limiter,
		Sleep:       c.Sleep,
		Retryable: func(err error) bool {
			return Classify(err) == Transient
		},
		OnRetry: func(attempt int, err error, wait time.Duration) {
			if code, ok := CloseCode(err); ok {
				logger.Warn().Int("code", code).
					Msgf("[Attempt %d] Voice WS closed (%d). Retrying in %s...", attempt, code, wait)
				return
			}
			logger.Warn().Err(err).
				Msgf("[Attempt %d] Unexpected connect error. Retrying in %s...", attempt, wait)
		},
	}, func(ctx context.Context, attempt int) error {
		if existing := c.Platform.Existing(ch.GuildID); existing != nil {
			if err := existing.Disconnect(ctx); err != nil {
				logger.Warn().Err(err).Msg("Failed to drop stale voice session")
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout())
		defer cancel()

		s, err := c.Platform.Join(attemptCtx, ch.GuildID, ch.ID)
		if err != nil {
			code, _ := CloseCode(err)
			ce := &ConnectError{Class: Classify(err), Code: code, Attempt: attempt, Err: err}
			if ce.Class == Fatal {
				return &retrylimit.FatalError{Err: ce}
			}
			return ce
		}
		sess = s
		return nil
	})

	switch {
	case err == nil:
		return sess, nil
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, retrylimit.ErrExhausted):
		logger.Error().Err(err).Msg("Voice connect failed after all retries.")
		return nil, nil
	default:
		return nil, err
	}
}

func (c *Connector) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c *Connector) logger() *zerolog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return &log.Logger
}
