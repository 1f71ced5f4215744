package achievement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kat-co/vala"
	"github.com/pkg/errors"

	"github.com/trezcool/podium/core"
)

type Effect string

const (
	EffectStandard    Effect = "standard"
	EffectCelebration Effect = "celebration"
)

type (
	// Presentation is one notification of a staggered batch.
	Presentation struct {
		Achievement    UserAchievement `json:"achievement"`
		Index          int             `json:"index"`
		Delay          time.Duration   `json:"-"`
		DelayMS        int64           `json:"delay_ms"`
		At             time.Time       `json:"at"`
		Effect         Effect          `json:"effect"`
		Particles      int             `json:"particles"`
		Persistent     bool            `json:"persistent"`
		DismissAfterMS int64           `json:"dismiss_after_ms,omitempty"`
	}

	// DeliveryChannel shows a presentation to the user.
	DeliveryChannel interface {
		Present(ctx context.Context, p Presentation) error
	}

	// Marker records that an achievement was shown.
	Marker interface {
		MarkDisplayed(ctx context.Context, userID, achievementID string) error
	}

	Scheduler struct {
		interval          time.Duration
		autoDismiss       time.Duration
		goldParticles     int
		platinumParticles int
		marker            Marker
		logger            core.Logger

		now   func() time.Time
		after func(d time.Duration) <-chan time.Time
	}

	// MarkError lists the achievements shown to the user that could not be flagged as displayed.
	// They will show up again on the next poll.
	MarkError struct {
		AchievementIDs []string
		Err            error
	}
)

func (err *MarkError) Error() string {
	return fmt.Sprintf("marking displayed [%s]: %v", strings.Join(err.AchievementIDs, ", "), err.Err)
}

func NewScheduler(marker Marker, logger core.Logger, conf *core.Config) (*Scheduler, error) {
	ac := conf.Achievements
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(marker, "marker"),
		vala.IsNotNil(logger, "logger"),
		vala.GreaterThan(int(ac.StaggerInterval), -1, "StaggerInterval"),
		vala.GreaterThan(int(ac.AutoDismissAfter), 0, "AutoDismissAfter"),
		vala.GreaterThan(ac.GoldParticles, 0, "GoldParticles"),
		vala.GreaterThan(ac.PlatinumParticles, ac.GoldParticles, "PlatinumParticles"),
	).Check()
	if err != nil {
		return nil, errors.Wrap(err, "creating scheduler")
	}

	return &Scheduler{
		interval:          ac.StaggerInterval,
		autoDismiss:       ac.AutoDismissAfter,
		goldParticles:     ac.GoldParticles,
		platinumParticles: ac.PlatinumParticles,
		marker:            marker,
		logger:            logger,
		now:               nowFunc,
		after:             time.After,
	}, nil
}

// Schedule lays out a batch of achievements as one presentation every interval, starting at t0.
// The batch order is kept as is.
func (s *Scheduler) Schedule(batch []UserAchievement, t0 time.Time) []Presentation {
	plan := make([]Presentation, 0, len(batch))
	for i, ach := range batch {
		delay := time.Duration(i) * s.interval
		p := Presentation{
			Achievement: ach,
			Index:       i,
			Delay:       delay,
			DelayMS:     delay.Milliseconds(),
			At:          t0.Add(delay),
		}
		s.applyEffect(&p)
		plan = append(plan, p)
	}
	return plan
}

func (s *Scheduler) applyEffect(p *Presentation) {
	switch p.Achievement.Achievement.Tier {
	case TierPlatinum:
		p.Effect = EffectCelebration
		p.Particles = s.platinumParticles
		p.Persistent = true
	case TierGold:
		p.Effect = EffectCelebration
		p.Particles = s.goldParticles
		p.Persistent = true
	default:
		p.Effect = EffectStandard
		p.DismissAfterMS = s.autoDismiss.Milliseconds()
	}
}

// Deliver presents the batch one at a time on the channel, marking each achievement displayed
// right after it was presented.
// It stops as soon as ctx is done or the channel fails: what was not presented stays pending.
// Marking failures do not stop the delivery; they are returned as a *MarkError once the batch is done.
func (s *Scheduler) Deliver(ctx context.Context, userID string, batch []UserAchievement, ch DeliveryChannel) error {
	var (
		unmarked []string
		markErr  error
	)

	for _, p := range s.Schedule(batch, s.now()) {
		if wait := p.At.Sub(s.now()); wait > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-s.after(wait):
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		achID := p.Achievement.AchievementID
		if err := ch.Present(ctx, p); err != nil {
			return errors.Wrapf(err, "presenting achievement %s", achID)
		}
		if err := s.marker.MarkDisplayed(ctx, userID, achID); err != nil {
			s.logger.Warn(
				"marking achievement displayed",
				err, map[string]interface{}{"achievement": achID}, core.UserID(userID),
			)
			unmarked = append(unmarked, achID)
			markErr = err
		}
	}

	if len(unmarked) > 0 {
		return &MarkError{AchievementIDs: unmarked, Err: markErr}
	}
	return nil
}
