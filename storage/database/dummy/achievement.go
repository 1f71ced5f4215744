package dummydb

import (
	"context"
	"time"

	"github.com/trezcool/podium/core/achievement"
)

type achievementRepository struct {
	db *achievementTable
}

var _ achievement.Repository = (*achievementRepository)(nil) // interface compliance check

func NewAchievementRepository(db *DB) achievement.Repository {
	return &achievementRepository{db: db.achievement}
}

func (repo *achievementRepository) CreateUserAchievement(ctx context.Context, rec achievement.Record) (achievement.Record, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	key := achievementKey{userID: rec.UserID, achievementID: rec.AchievementID}
	if _, exists := repo.db.index[key]; exists {
		return achievement.Record{}, achievement.ErrDuplicate
	}

	repo.db.pkCount++
	rec.ID = repo.db.pkCount
	rec.EarnedAt = rec.EarnedAt.UTC()
	rec.IsDisplayed = false
	rec.DisplayedAt = nil

	row := rec
	repo.db.rows = append(repo.db.rows, &row)
	repo.db.index[key] = &row
	return rec, nil
}

func (repo *achievementRepository) QueryUserAchievements(ctx context.Context, filter achievement.QueryFilter) ([]achievement.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	recs := make([]achievement.Record, 0)
	for _, row := range repo.db.rows {
		if row.UserID != filter.UserID {
			continue
		}
		if filter.PendingOnly && row.IsDisplayed {
			continue
		}
		recs = append(recs, copyRecord(row))
	}
	return recs, nil
}

func (repo *achievementRepository) GetUserAchievement(ctx context.Context, userID, achievementID string) (achievement.Record, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if row, ok := repo.db.index[achievementKey{userID: userID, achievementID: achievementID}]; ok {
		return copyRecord(row), nil
	}
	return achievement.Record{}, achievement.ErrNotFound
}

func (repo *achievementRepository) MarkDisplayed(ctx context.Context, userID, achievementID string, at time.Time) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	row, ok := repo.db.index[achievementKey{userID: userID, achievementID: achievementID}]
	if !ok {
		return achievement.ErrNotFound
	}
	if row.IsDisplayed {
		return nil
	}
	at = at.UTC()
	row.IsDisplayed = true
	row.DisplayedAt = &at
	return nil
}

func copyRecord(row *achievement.Record) achievement.Record {
	rec := *row
	if row.DisplayedAt != nil {
		at := *row.DisplayedAt
		rec.DisplayedAt = &at
	}
	return rec
}
