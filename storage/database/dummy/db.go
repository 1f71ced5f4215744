package dummydb

import (
	"sync"

	"github.com/trezcool/podium/core/achievement"
)

type (
	DB struct {
		achievement *achievementTable
		stats       *statsTable
	}

	achievementKey struct {
		userID        string
		achievementID string
	}

	achievementTable struct {
		sync.RWMutex
		pkCount int64
		rows    []*achievement.Record // creation order
		index   map[achievementKey]*achievement.Record
	}

	statsTable struct {
		sync.RWMutex
		table map[string]*achievement.Stats
	}
)

func Open() (*DB, error) {
	db := &DB{
		achievement: &achievementTable{index: make(map[achievementKey]*achievement.Record)},
		stats:       &statsTable{table: make(map[string]*achievement.Stats)},
	}
	return db, nil
}
