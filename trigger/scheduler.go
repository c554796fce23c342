package trigger

import (
	"context"
	"time"
)

const DefaultInterval = time.Hour

// Scheduler pre-stages tomorrow's media at a fixed interval.
type Scheduler struct {
	Trigger  *Trigger
	Interval time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Run pre-stages once immediately and then on every tick, until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	now := s.Now
	if now == nil {
		now = time.Now
	}
	s.Trigger.log.Info().Msgf("Starting pre-staging loop with interval %s", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.Trigger.PrestageTomorrow(ctx, now())
		select {
		case <-ctx.Done():
			s.Trigger.log.Info().Msg("Stopping pre-staging loop")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
