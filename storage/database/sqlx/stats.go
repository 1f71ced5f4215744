package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/trezcool/podium/core"
	"github.com/trezcool/podium/core/achievement"
)

const statsColumns = `user_id, streak_days, roleplay_count, test_count, highest_test_score,
	performance_indicator_count, written_event_count, daily_challenge_count, season, updated_at`

// StatsSource reads the activity counters maintained by the activity services.
type StatsSource struct {
	exec core.DBExecutor
}

var _ achievement.StatsSource = (*StatsSource)(nil) // interface compliance check

func NewStatsSource(exec core.DBExecutor) *StatsSource {
	return &StatsSource{exec: exec}
}

func (src StatsSource) GetUserStats(ctx context.Context, userID string) (achievement.Stats, error) {
	q := `SELECT ` + statsColumns + ` FROM user_stats WHERE user_id = $1`

	var stats achievement.Stats
	if err := src.exec.GetContext(ctx, &stats, q, userID); err != nil {
		if err == sql.ErrNoRows {
			return achievement.Stats{UserID: userID}, nil
		}
		return achievement.Stats{}, wrapErr(err, "getting user stats")
	}
	stats.UpdatedAt = stats.UpdatedAt.UTC()
	return stats, nil
}

func (src StatsSource) UpdatedSince(ctx context.Context, t time.Time) ([]string, error) {
	q := `SELECT user_id FROM user_stats WHERE updated_at > $1 ORDER BY updated_at`

	ids := make([]string, 0)
	if err := src.exec.SelectContext(ctx, &ids, q, t.UTC()); err != nil {
		return nil, wrapErr(err, "querying updated user stats")
	}
	return ids, nil
}

// SetUserStats creates or replaces the user's stats. A zero UpdatedAt is stamped with the current time.
func (src StatsSource) SetUserStats(ctx context.Context, stats achievement.Stats) error {
	q := `INSERT INTO user_stats (` + statsColumns + `)
		VALUES (:user_id, :streak_days, :roleplay_count, :test_count, :highest_test_score,
			:performance_indicator_count, :written_event_count, :daily_challenge_count, :season, :updated_at)
		ON CONFLICT (user_id) DO UPDATE SET
			streak_days = excluded.streak_days,
			roleplay_count = excluded.roleplay_count,
			test_count = excluded.test_count,
			highest_test_score = excluded.highest_test_score,
			performance_indicator_count = excluded.performance_indicator_count,
			written_event_count = excluded.written_event_count,
			daily_challenge_count = excluded.daily_challenge_count,
			season = excluded.season,
			updated_at = excluded.updated_at`

	if stats.UpdatedAt.IsZero() {
		stats.UpdatedAt = time.Now()
	}
	stats.UpdatedAt = stats.UpdatedAt.UTC()

	if _, err := sqlx.NamedExecContext(ctx, src.exec, q, stats); err != nil {
		return wrapErr(err, "saving user stats")
	}
	return nil
}
