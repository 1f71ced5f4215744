package dummydb

import (
	"context"
	"time"

	"github.com/trezcool/podium/core/achievement"
)

type StatsSource struct {
	db *statsTable
}

var _ achievement.StatsSource = (*StatsSource)(nil) // interface compliance check

func NewStatsSource(db *DB) *StatsSource {
	return &StatsSource{db: db.stats}
}

func (src *StatsSource) GetUserStats(ctx context.Context, userID string) (achievement.Stats, error) {
	src.db.RLock()
	defer src.db.RUnlock()

	if stats, ok := src.db.table[userID]; ok {
		return *stats, nil
	}
	return achievement.Stats{UserID: userID}, nil
}

func (src *StatsSource) UpdatedSince(ctx context.Context, t time.Time) ([]string, error) {
	src.db.RLock()
	defer src.db.RUnlock()

	ids := make([]string, 0)
	for id, stats := range src.db.table {
		if stats.UpdatedAt.After(t) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// SetUserStats replaces the user's stats. A zero UpdatedAt is stamped with the current time.
func (src *StatsSource) SetUserStats(ctx context.Context, stats achievement.Stats) error {
	src.db.Lock()
	defer src.db.Unlock()

	if stats.UpdatedAt.IsZero() {
		stats.UpdatedAt = time.Now()
	}
	stats.UpdatedAt = stats.UpdatedAt.UTC()
	src.db.table[stats.UserID] = &stats
	return nil
}
