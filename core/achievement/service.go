package achievement

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/trezcool/podium/core"
)

var (
	// errors
	ErrNotFound  = errors.New("achievement not found")
	ErrDuplicate = errors.New("achievement already earned")

	errInvalidOrdering = errors.New("invalid ordering")

	nowFunc = func() time.Time { return time.Now().UTC() } // mockable
)

type (
	Repository interface {
		// CreateUserAchievement returns ErrDuplicate when the user already holds the achievement.
		CreateUserAchievement(ctx context.Context, rec Record) (Record, error)
		// QueryUserAchievements returns the user's records in creation order.
		QueryUserAchievements(ctx context.Context, filter QueryFilter) ([]Record, error)
		GetUserAchievement(ctx context.Context, userID, achievementID string) (Record, error)
		// MarkDisplayed flags the record as displayed. Marking an already displayed record is a no-op.
		MarkDisplayed(ctx context.Context, userID, achievementID string, at time.Time) error
	}

	StatsSource interface {
		// GetUserStats returns zeroed stats for users without recorded activity.
		GetUserStats(ctx context.Context, userID string) (Stats, error)
		// UpdatedSince lists the users whose stats changed after t.
		UpdatedSince(ctx context.Context, t time.Time) ([]string, error)
	}

	Service struct {
		catalog       *Catalog
		repo          Repository
		stats         StatsSource
		logger        core.Logger
		defaultSeason string
	}
)

func NewService(catalog *Catalog, repo Repository, stats StatsSource, logger core.Logger, conf *core.Config) *Service {
	for _, def := range catalog.defs {
		if !def.Category.Known() {
			logger.Warn(fmt.Sprintf("achievement %q has unknown category %q and will never be awarded", def.ID, def.Category))
		} else if !def.Type.Known() {
			logger.Warn(fmt.Sprintf("achievement %q has unknown type %q and will never be awarded", def.ID, def.Type))
		}
	}
	return &Service{
		catalog:       catalog,
		repo:          repo,
		stats:         stats,
		logger:        logger,
		defaultSeason: conf.Achievements.DefaultSeason,
	}
}

func (svc *Service) Catalog() *Catalog {
	return svc.catalog
}

// Evaluate awards every achievement the user qualifies for and does not hold yet.
// Only the records created by this call are returned, in catalog order.
// A failure to persist one achievement is logged and does not prevent the others;
// the next evaluation retries it.
func (svc *Service) Evaluate(ctx context.Context, userID string) ([]UserAchievement, error) {
	stats, err := svc.stats.GetUserStats(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "loading user stats")
	}
	records, err := svc.repo.QueryUserAchievements(ctx, QueryFilter{UserID: userID})
	if err != nil {
		return nil, errors.Wrap(err, "loading user achievements")
	}
	held := lo.KeyBy(records, func(rec Record) string { return rec.AchievementID })

	season := stats.Season
	if season == "" {
		season = svc.defaultSeason
	}

	created := make([]UserAchievement, 0)
	for _, def := range svc.catalog.defs {
		if _, ok := held[def.ID]; ok || !def.Category.Known() {
			continue
		}
		if !ComputeProgress(def, stats).Earned {
			continue
		}
		if err := ctx.Err(); err != nil {
			return created, err
		}

		rec, err := svc.repo.CreateUserAchievement(ctx, Record{
			UserID:        userID,
			AchievementID: def.ID,
			EarnedAt:      nowFunc(),
			Progress:      def.Threshold,
			SeasonEarned:  season,
		})
		if err != nil {
			if errors.Cause(err) != ErrDuplicate { // a concurrent evaluation already awarded it
				svc.logger.Error(
					"awarding achievement",
					err, map[string]interface{}{"achievement": def.ID}, core.UserID(userID),
				)
			}
			continue
		}
		created = append(created, UserAchievement{Record: rec, Achievement: def})
	}
	return created, nil
}

// NewAchievements returns the achievements earned but not displayed yet, oldest first.
func (svc *Service) NewAchievements(ctx context.Context, userID string) ([]UserAchievement, error) {
	records, err := svc.repo.QueryUserAchievements(ctx, QueryFilter{UserID: userID, PendingOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "loading new achievements")
	}
	return svc.join(records), nil
}

// UserAchievements returns every achievement the user holds.
// Supported ordering fields: id, earned_at, achievement_id, name, tier, points.
func (svc *Service) UserAchievements(ctx context.Context, userID string, orderings ...core.DBOrdering) ([]UserAchievement, error) {
	if err := validateOrderings(orderings); err != nil {
		return nil, err
	}
	records, err := svc.repo.QueryUserAchievements(ctx, QueryFilter{UserID: userID})
	if err != nil {
		return nil, errors.Wrap(err, "loading user achievements")
	}
	achs := svc.join(records)
	if len(orderings) > 0 {
		sort.SliceStable(achs, func(i, j int) bool { return lessUserAchievement(achs[i], achs[j], orderings) })
	}
	return achs, nil
}

// MarkDisplayed records that the user has seen the achievement. It is idempotent.
// It returns ErrNotFound when the user does not hold the achievement. Records of definitions
// removed from the catalog can still be marked.
func (svc *Service) MarkDisplayed(ctx context.Context, userID, achievementID string) error {
	return svc.repo.MarkDisplayed(ctx, userID, achievementID, nowFunc())
}

// Progress reports the user's standing against every visible definition.
// Hidden definitions are only listed once earned.
func (svc *Service) Progress(ctx context.Context, userID string) ([]AchievementProgress, error) {
	stats, err := svc.stats.GetUserStats(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "loading user stats")
	}
	records, err := svc.repo.QueryUserAchievements(ctx, QueryFilter{UserID: userID})
	if err != nil {
		return nil, errors.Wrap(err, "loading user achievements")
	}
	held := lo.KeyBy(records, func(rec Record) string { return rec.AchievementID })

	progress := make([]AchievementProgress, 0, len(svc.catalog.defs))
	for _, def := range svc.catalog.defs {
		if rec, ok := held[def.ID]; ok {
			earnedAt := rec.EarnedAt
			progress = append(progress, AchievementProgress{
				Achievement: def,
				Progress:    rec.Progress,
				Ratio:       1,
				Earned:      true,
				EarnedAt:    &earnedAt,
			})
			continue
		}
		if def.IsHidden || !def.Category.Known() {
			continue
		}
		p := ComputeProgress(def, stats)
		progress = append(progress, AchievementProgress{
			Achievement: def,
			Progress:    p.Value,
			Ratio:       p.Ratio(def.Threshold),
		})
	}
	return progress, nil
}

func (svc *Service) Summary(ctx context.Context, userID string) (Summary, error) {
	records, err := svc.repo.QueryUserAchievements(ctx, QueryFilter{UserID: userID})
	if err != nil {
		return Summary{}, errors.Wrap(err, "loading user achievements")
	}

	sum := Summary{
		UserID: userID,
		Available: lo.CountBy(svc.catalog.defs, func(def Definition) bool {
			return def.Category.Known() && def.Type.Known()
		}),
		ByTier: make(map[string]int, len(tierNames)),
	}
	for _, name := range tierNames {
		sum.ByTier[name] = 0
	}
	for _, ach := range svc.join(records) {
		sum.Earned++
		sum.TotalPoints += ach.Achievement.Points
		if ach.Achievement.Tier.Valid() {
			sum.ByTier[ach.Achievement.Tier.String()]++
		}
	}
	return sum, nil
}

// join attaches definitions to records. Records of definitions removed from the catalog
// are kept with a bare definition: earning is irreversible.
func (svc *Service) join(records []Record) []UserAchievement {
	return lo.Map(records, func(rec Record, _ int) UserAchievement {
		def, ok := svc.catalog.Get(rec.AchievementID)
		if !ok {
			def = Definition{ID: rec.AchievementID, Name: rec.AchievementID, Category: CategoryGeneral}
		}
		return UserAchievement{Record: rec, Achievement: def}
	})
}

var orderingFields = []string{"id", "earned_at", "achievement_id", "name", "tier", "points"}

func validateOrderings(orderings []core.DBOrdering) error {
	var fieldErrs []core.FieldError
	for _, ord := range orderings {
		if !lo.Contains(orderingFields, ord.Field) {
			fieldErrs = append(fieldErrs, core.FieldError{
				Field: "ordering",
				Error: fmt.Sprintf("cannot order by %q, allowed fields: %s", ord.Field, strings.Join(orderingFields, ", ")),
			})
		}
	}
	if len(fieldErrs) > 0 {
		return core.NewValidationError(errInvalidOrdering, fieldErrs...)
	}
	return nil
}

func lessUserAchievement(a, b UserAchievement, orderings []core.DBOrdering) bool {
	for _, ord := range orderings {
		var cmp int
		switch ord.Field {
		case "id":
			cmp = compare(a.ID, b.ID)
		case "earned_at":
			cmp = compare(a.EarnedAt.UnixNano(), b.EarnedAt.UnixNano())
		case "achievement_id":
			cmp = strings.Compare(a.AchievementID, b.AchievementID)
		case "name":
			cmp = strings.Compare(strings.ToLower(a.Achievement.Name), strings.ToLower(b.Achievement.Name))
		case "tier":
			cmp = compare(int64(a.Achievement.Tier), int64(b.Achievement.Tier))
		case "points":
			cmp = compare(int64(a.Achievement.Points), int64(b.Achievement.Points))
		}
		if cmp == 0 {
			continue
		}
		if ord.Ascending {
			return cmp < 0
		}
		return cmp > 0
	}
	return false
}

func compare(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
