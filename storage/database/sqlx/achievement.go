package sqlxrepos

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/podium/core"
	"github.com/trezcool/podium/core/achievement"
)

const (
	pqUniqueViolation = pq.ErrorCode("23505")
	errDBClosedMsg    = "sql: database is closed" // unexported by database/sql

	achievementColumns = `id, user_id, achievement_id, earned_at, is_displayed, displayed_at, progress, season_earned`
)

type (
	achievementRepository struct {
		exec core.DBExecutor
	}

	achievementRow struct {
		ID            int64     `db:"id"`
		UserID        string    `db:"user_id"`
		AchievementID string    `db:"achievement_id"`
		EarnedAt      time.Time `db:"earned_at"`
		IsDisplayed   bool      `db:"is_displayed"`
		DisplayedAt   null.Time `db:"displayed_at"`
		Progress      float64   `db:"progress"`
		SeasonEarned  string    `db:"season_earned"`
	}
)

var _ achievement.Repository = (*achievementRepository)(nil) // interface compliance check

func NewAchievementRepository(exec core.DBExecutor) *achievementRepository {
	return &achievementRepository{exec: exec}
}

func (row achievementRow) record() achievement.Record {
	return achievement.Record{
		ID:            row.ID,
		UserID:        row.UserID,
		AchievementID: row.AchievementID,
		EarnedAt:      row.EarnedAt.UTC(),
		IsDisplayed:   row.IsDisplayed,
		DisplayedAt:   utcPtr(row.DisplayedAt),
		Progress:      row.Progress,
		SeasonEarned:  row.SeasonEarned,
	}
}

func utcPtr(t null.Time) *time.Time {
	if !t.Valid {
		return nil
	}
	utc := t.Time.UTC()
	return &utc
}

// trapNoRowsErr maps "no rows" err to achievement.ErrNotFound
func trapNoRowsErr(err error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return achievement.ErrNotFound
	}
	return wrapErr(err, msg)
}

// wrapErr wraps err with msg. Once the pool is closed nothing can be served anymore:
// the error becomes a shutdown error.
func wrapErr(err error, msg string) error {
	if errors.Is(err, sql.ErrConnDone) || strings.Contains(err.Error(), errDBClosedMsg) {
		return core.NewShutdownError(msg + ": " + err.Error())
	}
	return errors.Wrap(err, msg)
}

// isUniqueViolation reports whether err is a unique constraint violation, on postgres or sqlite.
func isUniqueViolation(err error) bool {
	switch e := errors.Cause(err).(type) {
	case *pq.Error:
		return e.Code == pqUniqueViolation
	case sqlite3.Error:
		return e.ExtendedCode == sqlite3.ErrConstraintUnique || e.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func (repo achievementRepository) CreateUserAchievement(ctx context.Context, rec achievement.Record) (achievement.Record, error) {
	q := `INSERT INTO user_achievements (user_id, achievement_id, earned_at, is_displayed, progress, season_earned)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
		RETURNING id`

	rec.EarnedAt = rec.EarnedAt.UTC()
	rec.IsDisplayed = false
	rec.DisplayedAt = nil

	err := repo.exec.GetContext(ctx, &rec.ID, q,
		rec.UserID, rec.AchievementID, rec.EarnedAt, false, rec.Progress, rec.SeasonEarned,
	)
	if err != nil {
		if err == sql.ErrNoRows || isUniqueViolation(err) {
			return achievement.Record{}, achievement.ErrDuplicate
		}
		return achievement.Record{}, wrapErr(err, "inserting user achievement")
	}
	return rec, nil
}

func (repo achievementRepository) QueryUserAchievements(ctx context.Context, filter achievement.QueryFilter) ([]achievement.Record, error) {
	q := `SELECT ` + achievementColumns + ` FROM user_achievements WHERE user_id = $1`
	args := []interface{}{filter.UserID}
	if filter.PendingOnly {
		q += ` AND is_displayed = $2`
		args = append(args, false)
	}
	q += ` ORDER BY id`

	var rows []achievementRow
	if err := repo.exec.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, wrapErr(err, "querying user achievements")
	}
	recs := make([]achievement.Record, 0, len(rows))
	for _, row := range rows {
		recs = append(recs, row.record())
	}
	return recs, nil
}

func (repo achievementRepository) GetUserAchievement(ctx context.Context, userID, achievementID string) (achievement.Record, error) {
	q := `SELECT ` + achievementColumns + ` FROM user_achievements WHERE user_id = $1 AND achievement_id = $2`

	var row achievementRow
	if err := repo.exec.GetContext(ctx, &row, q, userID, achievementID); err != nil {
		return achievement.Record{}, trapNoRowsErr(err, "getting user achievement")
	}
	return row.record(), nil
}

func (repo achievementRepository) MarkDisplayed(ctx context.Context, userID, achievementID string, at time.Time) error {
	q := `UPDATE user_achievements SET is_displayed = $1, displayed_at = $2
		WHERE user_id = $3 AND achievement_id = $4 AND is_displayed = $5`

	res, err := repo.exec.ExecContext(ctx, q, true, null.TimeFrom(at.UTC()), userID, achievementID, false)
	if err != nil {
		return wrapErr(err, "marking user achievement displayed")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(err, "marking user achievement displayed")
	}
	if n > 0 {
		return nil
	}

	// already displayed, or never earned
	_, err = repo.GetUserAchievement(ctx, userID, achievementID)
	return err
}
