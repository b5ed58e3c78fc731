package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// Schedule starts a scheduler that sweeps every interval. A slow sweep is
// never overlapped by the next one. The caller shuts the scheduler down.
func Schedule(ctx context.Context, s *Sweeper, interval time.Duration, clock clockwork.Clock) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}
	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() { s.Run(ctx) }),
		gocron.WithName("reconcile"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		sched.Shutdown()
		return nil, fmt.Errorf("schedule sweep: %w", err)
	}
	sched.Start()
	return sched, nil
}
