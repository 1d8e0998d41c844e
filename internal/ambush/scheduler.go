package ambush

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"voice-ambush/internal/voice"
	"voice-ambush/pkg/jobmgr"
	"voice-ambush/pkg/retrylimit"
	"voice-ambush/pkg/util"
)

const (
	DefaultInterval = 30 * time.Minute
	tickJob         = "voice-drop"
)

// GuildSource lists the guilds the bot is currently in.
type GuildSource interface {
	Guilds() []voice.Guild
}

// GuildProcessor handles one guild per tick; *Processor implements it.
type GuildProcessor interface {
	Process(ctx context.Context, g voice.Guild) error
}

// Outcome is the result of one guild in a tick.
type Outcome struct {
	Guild voice.Guild
	Err   error
}

// Scheduler fans the processor out over every guild on a fixed interval.
type Scheduler struct {
	Source     GuildSource
	Processor  GuildProcessor
	Interval   time.Duration
	Enabled    bool
	RunOnStart bool
	StartDelay time.Duration
	Workers    int // 0 runs every guild at once

	Jobs *jobmgr.Manager
	Log  *zerolog.Logger
}

// NewScheduler returns an enabled scheduler that ticks every 30 minutes,
// starting right away.
func NewScheduler(src GuildSource, proc GuildProcessor) *Scheduler {
	s := &Scheduler{
		Source:     src,
		Processor:  proc,
		Interval:   DefaultInterval,
		Enabled:    true,
		RunOnStart: true,
	}
	s.Jobs = jobmgr.NewManager(func(msg string) {
		s.logger().Debug().Str("job", msg).Msg("Tick job status")
	})
	return s
}

// Run triggers ticks until ctx is done, then waits for an in-flight tick.
// A trigger that fires while the previous tick is still running is skipped.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := s.logger()
	if !s.Enabled {
		logger.Info().Msg("Scheduled voice drops are disabled")
		return nil
	}
	if s.Interval <= 0 {
		s.Interval = DefaultInterval
	}
	if s.Jobs == nil {
		s.Jobs = jobmgr.NewManager(nil)
	}
	defer s.Jobs.Wait()

	if s.StartDelay > 0 {
		logger.Info().Dur("delay", s.StartDelay).Msg("Delaying scheduler start")
		if err := retrylimit.Sleep(ctx, s.StartDelay); err != nil {
			return nil
		}
	}

	logger.Info().Dur("interval", s.Interval).Msg("Scheduler started")
	if s.RunOnStart {
		s.trigger(ctx)
	}

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := s.Jobs.Stop(tickJob); err == nil {
				logger.Info().Msg("Waiting for the running tick to wind down")
			}
			logger.Info().Msg("Scheduler stopped")
			return nil
		case <-ticker.C:
			s.trigger(ctx)
		}
	}
}

func (s *Scheduler) trigger(ctx context.Context) {
	err := s.Jobs.StartAsync(ctx, tickJob, func(ctx context.Context) error {
		s.Tick(ctx)
		return nil
	})
	if errors.Is(err, jobmgr.ErrRunning) {
		s.logger().Warn().Msg("Previous tick still running, skipping this one")
	}
}

// Tick processes every known guild concurrently and waits for all of them.
// Failures are logged per guild and never affect the other guilds.
func (s *Scheduler) Tick(ctx context.Context) []Outcome {
	logger := s.logger()
	logger.Info().Msg("Scheduled task triggered...")

	guilds := s.Source.Guilds()
	errs := util.Gather(ctx, guilds, s.Workers, s.Processor.Process)

	outcomes := make([]Outcome, len(guilds))
	for i, g := range guilds {
		outcomes[i] = Outcome{Guild: g, Err: errs[i]}

		err := errs[i]
		if err == nil {
			logger.Info().Str("guild_id", g.ID).Msgf("Finished processing %s", g.Name)
			continue
		}

		ev := logger.Error().Str("guild_id", g.ID)
		var pe *util.PanicError
		if errors.As(err, &pe) {
			ev = ev.Str("stack", string(pe.Stack))
		}
		ev.Msgf("Failed to process %s: %v", g.Name, err)
	}
	return outcomes
}

func (s *Scheduler) logger() *zerolog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return &log.Logger
}
