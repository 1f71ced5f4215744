package achievement_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/podium/core"
	"github.com/trezcool/podium/core/achievement"
	"github.com/trezcool/podium/storage/database/dummy"
	"github.com/trezcool/podium/tests"
)

const testCatalog = `
achievements:
  - {id: roleplay_first, name: Opening Act, category: Performance, type: roleplay_complete, threshold: 1, points: 10, tier: bronze}
  - {id: roleplay_5, name: Rising Presenter, category: Performance, type: roleplay_complete, threshold: 5, points: 25, tier: silver}
  - {id: roleplay_25, name: Seasoned Presenter, category: Performance, type: roleplay_complete, threshold: 25, points: 100, tier: gold}
  - {id: test_10, name: Exam Regular, category: Mastery, type: test_score, threshold: 10, points: 40, tier: silver}
  - {id: test_score_90, name: Honor Roll, category: Mastery, type: test_score, threshold: 90, points: 100, tier: gold}
  - {id: streak_100, name: Centurion, category: Consistency, type: streak, threshold: 100, points: 300, tier: platinum}
  - {id: mystery, name: Mystery, category: Bonus, type: streak, threshold: 0, points: 5, tier: bronze}
  - {id: karaoke, name: Karaoke, category: Special, type: karaoke, threshold: 0, points: 5, tier: bronze}
  - {id: secret_streak, name: Secret Streak, category: Special, type: streak, threshold: 365, points: 999, tier: platinum, hidden: true}
`

type serviceFixture struct {
	svc    *achievement.Service
	repo   achievement.Repository
	stats  *dummydb.StatsSource
	logger *testutil.Logger
}

func newServiceFixture(t *testing.T, wrap ...func(achievement.Repository) achievement.Repository) serviceFixture {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)

	repo := dummydb.NewAchievementRepository(db)
	for _, w := range wrap {
		repo = w(repo)
	}
	fx := serviceFixture{
		repo:   repo,
		stats:  dummydb.NewStatsSource(db),
		logger: &testutil.Logger{},
	}
	fx.svc = achievement.NewService(testutil.LoadCatalog(t, testCatalog), fx.repo, fx.stats, fx.logger, testutil.NewConfig())
	return fx
}

func achievementIDs(achs []achievement.UserAchievement) []string {
	ids := make([]string, 0, len(achs))
	for _, a := range achs {
		ids = append(ids, a.AchievementID)
	}
	return ids
}

// flakyRepository fails the creation of the given achievements.
type flakyRepository struct {
	achievement.Repository
	failing map[string]bool
}

func (repo *flakyRepository) CreateUserAchievement(ctx context.Context, rec achievement.Record) (achievement.Record, error) {
	if repo.failing[rec.AchievementID] {
		return achievement.Record{}, errors.New("connection reset by peer")
	}
	return repo.Repository.CreateUserAchievement(ctx, rec)
}

func TestNewService_logsUnusableDefinitions(t *testing.T) {
	fx := newServiceFixture(t)

	warnings := fx.logger.Entries("warn")
	require.Len(t, warnings, 2)
	assert.Contains(t, warnings[0].Msg, `"mystery"`)
	assert.Contains(t, warnings[1].Msg, `"karaoke"`)
}

func TestService_Evaluate(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
	defer achievement.SetNow(func() time.Time { return now })()

	t.Run("roleplay scenario", func(t *testing.T) {
		fx := newServiceFixture(t)
		testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", RoleplayCount: 5})

		got, err := fx.svc.Evaluate(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"roleplay_first", "roleplay_5"}, achievementIDs(got))

		rp5 := got[1]
		assert.Equal(t, "u1", rp5.UserID)
		assert.Equal(t, 5.0, rp5.Progress)
		assert.Equal(t, now, rp5.EarnedAt)
		assert.False(t, rp5.IsDisplayed)
		assert.Nil(t, rp5.DisplayedAt)
		assert.Equal(t, "2026-2027", rp5.SeasonEarned, "falls back to the configured season")
		assert.Equal(t, "Rising Presenter", rp5.Achievement.Name)
	})

	t.Run("test score scenario", func(t *testing.T) {
		fx := newServiceFixture(t)
		testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", TestCount: 3, HighestTestScore: 92, Season: "2025-2026"})

		got, err := fx.svc.Evaluate(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"test_score_90"}, achievementIDs(got), "test_10 reads the attempt count")
		assert.Equal(t, "2025-2026", got[0].SeasonEarned)

		testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", TestCount: 10, HighestTestScore: 92})
		got, err = fx.svc.Evaluate(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"test_10"}, achievementIDs(got))
	})

	t.Run("idempotent", func(t *testing.T) {
		fx := newServiceFixture(t)
		testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", RoleplayCount: 30})

		first, err := fx.svc.Evaluate(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, first, 3)

		second, err := fx.svc.Evaluate(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, second)

		all, err := fx.svc.UserAchievements(ctx, "u1")
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("no regression on stats decrease", func(t *testing.T) {
		fx := newServiceFixture(t)
		testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", RoleplayCount: 5})
		_, err := fx.svc.Evaluate(ctx, "u1")
		require.NoError(t, err)

		testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", RoleplayCount: 0})
		got, err := fx.svc.Evaluate(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, got)

		all, err := fx.svc.UserAchievements(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"roleplay_first", "roleplay_5"}, achievementIDs(all))
	})

	t.Run("unknown category or type never awarded", func(t *testing.T) {
		fx := newServiceFixture(t)
		testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1"})

		got, err := fx.svc.Evaluate(ctx, "u1")
		require.NoError(t, err)
		assert.Empty(t, got, "mystery and karaoke have a zero threshold")
	})

	t.Run("new user", func(t *testing.T) {
		fx := newServiceFixture(t)
		got, err := fx.svc.Evaluate(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("users are independent", func(t *testing.T) {
		fx := newServiceFixture(t)
		testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", RoleplayCount: 1})
		testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u2", RoleplayCount: 1})

		for _, id := range []string{"u1", "u2"} {
			got, err := fx.svc.Evaluate(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, []string{"roleplay_first"}, achievementIDs(got), id)
		}
	})

	t.Run("failures are isolated and retried", func(t *testing.T) {
		flaky := &flakyRepository{failing: map[string]bool{"roleplay_first": true}}
		fx := newServiceFixture(t, func(repo achievement.Repository) achievement.Repository {
			flaky.Repository = repo
			return flaky
		})
		testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", RoleplayCount: 5})

		got, err := fx.svc.Evaluate(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"roleplay_5"}, achievementIDs(got))

		errs := fx.logger.Entries("error")
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0].Args, core.UserID("u1"))

		delete(flaky.failing, "roleplay_first")
		got, err = fx.svc.Evaluate(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, []string{"roleplay_first"}, achievementIDs(got))
	})

	t.Run("canceled context", func(t *testing.T) {
		fx := newServiceFixture(t)
		testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", RoleplayCount: 5})

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		got, err := fx.svc.Evaluate(cctx, "u1")
		assert.Equal(t, context.Canceled, errors.Cause(err))
		assert.Empty(t, got)
	})
}

func TestService_Evaluate_concurrent(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)
	testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", RoleplayCount: 30, HighestTestScore: 95})

	const workers = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created []string
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := fx.svc.Evaluate(ctx, "u1")
			assert.NoError(t, err)
			mu.Lock()
			created = append(created, achievementIDs(got)...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	want := []string{"roleplay_first", "roleplay_5", "roleplay_25", "test_score_90"}
	assert.ElementsMatch(t, want, created, "each achievement is reported by exactly one evaluation")

	all, err := fx.svc.UserAchievements(ctx, "u1")
	require.NoError(t, err)
	assert.ElementsMatch(t, want, achievementIDs(all))
	assert.Empty(t, fx.logger.Entries("error"), "races are not errors")
}

func TestService_MarkDisplayed(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)
	testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", RoleplayCount: 5})
	_, err := fx.svc.Evaluate(ctx, "u1")
	require.NoError(t, err)

	pending, err := fx.svc.NewAchievements(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"roleplay_first", "roleplay_5"}, achievementIDs(pending))

	require.NoError(t, fx.svc.MarkDisplayed(ctx, "u1", "roleplay_first"))
	require.NoError(t, fx.svc.MarkDisplayed(ctx, "u1", "roleplay_first"), "idempotent")

	rec, err := fx.repo.GetUserAchievement(ctx, "u1", "roleplay_first")
	require.NoError(t, err)
	assert.True(t, rec.IsDisplayed)
	require.NotNil(t, rec.DisplayedAt)
	firstDisplay := *rec.DisplayedAt

	require.NoError(t, fx.svc.MarkDisplayed(ctx, "u1", "roleplay_first"))
	rec, err = fx.repo.GetUserAchievement(ctx, "u1", "roleplay_first")
	require.NoError(t, err)
	assert.Equal(t, firstDisplay, *rec.DisplayedAt, "first display time is kept")

	pending, err = fx.svc.NewAchievements(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"roleplay_5"}, achievementIDs(pending))

	assert.Equal(t, achievement.ErrNotFound, errors.Cause(fx.svc.MarkDisplayed(ctx, "u1", "no_such_achievement")))
	assert.Equal(t, achievement.ErrNotFound, errors.Cause(fx.svc.MarkDisplayed(ctx, "u1", "roleplay_25")), "not earned")
	assert.Equal(t, achievement.ErrNotFound, errors.Cause(fx.svc.MarkDisplayed(ctx, "u2", "roleplay_5")), "other user")

	// displayed records are never awarded again
	got, err := fx.svc.Evaluate(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestService_UserAchievements_ordering(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)
	testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", RoleplayCount: 25, TestCount: 10})
	_, err := fx.svc.Evaluate(ctx, "u1")
	require.NoError(t, err)

	tests := []struct {
		name      string
		orderings []core.DBOrdering
		want      []string
		wantErr   bool
	}{
		{name: "creation order", want: []string{"roleplay_first", "roleplay_5", "roleplay_25", "test_10"}},
		{
			name:      "points desc",
			orderings: []core.DBOrdering{{Field: "points"}},
			want:      []string{"roleplay_25", "test_10", "roleplay_5", "roleplay_first"},
		},
		{
			name:      "tier asc then name desc",
			orderings: []core.DBOrdering{{Field: "tier", Ascending: true}, {Field: "name"}},
			want:      []string{"roleplay_first", "roleplay_5", "test_10", "roleplay_25"},
		},
		{name: "unknown field", orderings: []core.DBOrdering{{Field: "password"}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fx.svc.UserAchievements(ctx, "u1", tt.orderings...)
			if tt.wantErr {
				var verr *core.ValidationError
				assert.True(t, errors.As(err, &verr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, achievementIDs(got))
		})
	}
}

func TestService_Progress(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)
	testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", RoleplayCount: 5, StreakDays: 50})
	_, err := fx.svc.Evaluate(ctx, "u1")
	require.NoError(t, err)

	// stats drop after a correction: earned progress is frozen
	testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", RoleplayCount: 2, StreakDays: 50})

	progress, err := fx.svc.Progress(ctx, "u1")
	require.NoError(t, err)

	byID := make(map[string]achievement.AchievementProgress)
	for _, p := range progress {
		byID[p.Achievement.ID] = p
	}
	assert.NotContains(t, byID, "secret_streak", "hidden until earned")
	assert.NotContains(t, byID, "mystery", "unknown category")

	rp5 := byID["roleplay_5"]
	assert.True(t, rp5.Earned)
	assert.Equal(t, 5.0, rp5.Progress)
	assert.Equal(t, 1.0, rp5.Ratio)
	assert.NotNil(t, rp5.EarnedAt)

	rp25 := byID["roleplay_25"]
	assert.False(t, rp25.Earned)
	assert.Equal(t, 2.0, rp25.Progress)
	assert.InDelta(t, 0.08, rp25.Ratio, 1e-9)

	streak := byID["streak_100"]
	assert.InDelta(t, 0.5, streak.Ratio, 1e-9)

	karaoke := byID["karaoke"]
	assert.False(t, karaoke.Earned)
	assert.Zero(t, karaoke.Ratio)
}

func TestService_Summary(t *testing.T) {
	ctx := context.Background()
	fx := newServiceFixture(t)
	testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", RoleplayCount: 25})
	_, err := fx.svc.Evaluate(ctx, "u1")
	require.NoError(t, err)

	sum, err := fx.svc.Summary(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, achievement.Summary{
		UserID:      "u1",
		TotalPoints: 135,
		Earned:      3,
		Available:   7,
		ByTier:      map[string]int{"bronze": 1, "silver": 1, "gold": 1, "platinum": 0},
	}, sum)
}

func TestService_retiredDefinition(t *testing.T) {
	ctx := context.Background()
	earnedAt := time.Date(2025, 9, 1, 8, 0, 0, 0, time.UTC)

	// earned while "retired" was still in the catalog
	seed := func(t *testing.T, fx serviceFixture) {
		t.Helper()
		_, err := fx.repo.CreateUserAchievement(ctx, achievement.Record{
			UserID:        "u1",
			AchievementID: "retired",
			EarnedAt:      earnedAt,
			Progress:      3,
			SeasonEarned:  "2025-2026",
		})
		require.NoError(t, err)
		testutil.SetStats(t, fx.stats, achievement.Stats{UserID: "u1", RoleplayCount: 1})
		_, err = fx.svc.Evaluate(ctx, "u1")
		require.NoError(t, err)
	}
	bare := achievement.Definition{ID: "retired", Name: "retired", Category: achievement.CategoryGeneral}

	tests := []struct {
		name  string
		check func(t *testing.T, fx serviceFixture)
	}{
		{
			name: "kept with a bare definition",
			check: func(t *testing.T, fx serviceFixture) {
				achs, err := fx.svc.UserAchievements(ctx, "u1")
				require.NoError(t, err)
				require.Equal(t, []string{"retired", "roleplay_first"}, achievementIDs(achs))
				assert.Equal(t, bare, achs[0].Achievement)
				assert.Equal(t, earnedAt, achs[0].EarnedAt)
			},
		},
		{
			name: "pending until displayed",
			check: func(t *testing.T, fx serviceFixture) {
				pending, err := fx.svc.NewAchievements(ctx, "u1")
				require.NoError(t, err)
				require.Equal(t, []string{"retired", "roleplay_first"}, achievementIDs(pending))
				assert.Equal(t, bare, pending[0].Achievement)

				require.NoError(t, fx.svc.MarkDisplayed(ctx, "u1", "retired"))
				require.NoError(t, fx.svc.MarkDisplayed(ctx, "u1", "retired"), "idempotent")

				pending, err = fx.svc.NewAchievements(ctx, "u1")
				require.NoError(t, err)
				assert.Equal(t, []string{"roleplay_first"}, achievementIDs(pending))

				rec, err := fx.repo.GetUserAchievement(ctx, "u1", "retired")
				require.NoError(t, err)
				assert.True(t, rec.IsDisplayed)
				assert.NotNil(t, rec.DisplayedAt)

				assert.Equal(t, achievement.ErrNotFound, errors.Cause(fx.svc.MarkDisplayed(ctx, "u2", "retired")), "other user")
			},
		},
		{
			name: "counted as earned",
			check: func(t *testing.T, fx serviceFixture) {
				sum, err := fx.svc.Summary(ctx, "u1")
				require.NoError(t, err)
				assert.Equal(t, 2, sum.Earned)
				assert.Equal(t, 10, sum.TotalPoints)
				assert.Equal(t, map[string]int{"bronze": 1, "silver": 0, "gold": 0, "platinum": 0}, sum.ByTier)
			},
		},
		{
			name: "absent from progress",
			check: func(t *testing.T, fx serviceFixture) {
				progress, err := fx.svc.Progress(ctx, "u1")
				require.NoError(t, err)
				for _, p := range progress {
					assert.NotEqual(t, "retired", p.Achievement.ID)
				}
			},
		},
		{
			name: "never awarded again",
			check: func(t *testing.T, fx serviceFixture) {
				got, err := fx.svc.Evaluate(ctx, "u1")
				require.NoError(t, err)
				assert.Empty(t, got)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newServiceFixture(t)
			seed(t, fx)
			tt.check(t, fx)
		})
	}
}
