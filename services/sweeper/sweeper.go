package sweeper

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/pkg/errors"

	"github.com/trezcool/podium/core"
	"github.com/trezcool/podium/core/achievement"
)

type (
	Evaluator interface {
		Evaluate(ctx context.Context, userID string) ([]achievement.UserAchievement, error)
	}

	// Sweeper periodically evaluates the users whose stats changed since its previous run,
	// so that activity recorded by other services is awarded without waiting for a recheck.
	Sweeper struct {
		evaluator Evaluator
		stats     achievement.StatsSource
		logger    core.Logger
		interval  time.Duration
		scheduler *gocron.Scheduler

		mu        sync.Mutex
		lastSweep time.Time // zero: every user with stats
		now       func() time.Time
	}
)

func New(evaluator Evaluator, stats achievement.StatsSource, logger core.Logger, conf *core.Config) *Sweeper {
	return &Sweeper{
		evaluator: evaluator,
		stats:     stats,
		logger:    logger,
		interval:  conf.Achievements.SweepInterval,
		scheduler: gocron.NewScheduler(time.UTC),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start runs Sweep every interval in the background, starting now. A zero interval disables the sweeper.
func (sw *Sweeper) Start(ctx context.Context) error {
	if sw.interval <= 0 {
		sw.logger.Info("achievements sweeper disabled")
		return nil
	}
	_, err := sw.scheduler.Every(sw.interval).SingletonMode().Do(func() {
		if _, err := sw.Sweep(ctx); err != nil && ctx.Err() == nil {
			sw.logger.Error("sweeping achievements", err)
		}
	})
	if err != nil {
		return errors.Wrap(err, "scheduling achievements sweeper")
	}
	sw.scheduler.StartAsync()
	return nil
}

func (sw *Sweeper) Stop() {
	sw.scheduler.Stop()
}

// Sweep evaluates the users updated since the previous successful sweep and returns how many achievements were awarded.
// When an evaluation fails, the next sweep goes over the same window again.
func (sw *Sweeper) Sweep(ctx context.Context) (int, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	start := sw.now()
	userIDs, err := sw.stats.UpdatedSince(ctx, sw.lastSweep)
	if err != nil {
		return 0, errors.Wrap(err, "listing updated users")
	}

	var (
		awarded int
		failed  int
	)
	for _, id := range userIDs {
		if err := ctx.Err(); err != nil {
			return awarded, err
		}
		achs, err := sw.evaluator.Evaluate(ctx, id)
		if err != nil {
			sw.logger.Error("evaluating achievements", err, core.UserID(id))
			failed++
			continue
		}
		awarded += len(achs)
	}

	if failed > 0 {
		return awarded, errors.Errorf("%d of %d evaluations failed", failed, len(userIDs))
	}
	sw.lastSweep = start
	return awarded, nil
}
