package achievement

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Tier ranks an achievement; it drives the celebration effect and the notification persistence.
type Tier int

const (
	TierBronze Tier = iota + 1
	TierSilver
	TierGold
	TierPlatinum
)

var tierNames = map[Tier]string{
	TierBronze:   "bronze",
	TierSilver:   "silver",
	TierGold:     "gold",
	TierPlatinum: "platinum",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "tier(" + strconv.Itoa(int(t)) + ")"
}

func (t Tier) Valid() bool {
	return t >= TierBronze && t <= TierPlatinum
}

// ParseTier accepts either the ordinal ("3") or the name ("gold").
func ParseTier(s string) (Tier, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		return Tier(n), nil
	}
	for t, name := range tierNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown tier %q", s)
}

// UnmarshalYAML lets catalog files spell tiers by name or by ordinal.
func (t *Tier) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: tier must be a scalar", node.Line)
	}
	tier, err := ParseTier(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: %v", node.Line, err)
	}
	*t = tier
	return nil
}

// Category groups related achievements in the gallery.
type Category string

const (
	CategoryPerformance Category = "Performance"
	CategoryConsistency Category = "Consistency"
	CategoryMastery     Category = "Mastery"
	CategorySpecial     Category = "Special"
	CategoryGeneral     Category = "General"
)

var Categories = []Category{CategoryPerformance, CategoryConsistency, CategoryMastery, CategorySpecial, CategoryGeneral}

func (c Category) Known() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// Type selects the stat counter an achievement is measured against.
type Type string

const (
	TypeStreak               Type = "streak"
	TypeRoleplayComplete     Type = "roleplay_complete"
	TypeTestScore            Type = "test_score"
	TypePerformanceIndicator Type = "performance_indicator"
	TypeWrittenEvent         Type = "written_event"
	TypeDailyChallenge       Type = "daily_challenge"
)

var Types = []Type{
	TypeStreak, TypeRoleplayComplete, TypeTestScore,
	TypePerformanceIndicator, TypeWrittenEvent, TypeDailyChallenge,
}

func (t Type) Known() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Definition describes a single unlockable achievement. It is immutable once the catalog is loaded.
type Definition struct {
	ID          string   `json:"id" yaml:"id" validate:"required,slug"`
	Name        string   `json:"name" yaml:"name" validate:"required"`
	Description string   `json:"description" yaml:"description"`
	Category    Category `json:"category" yaml:"category" validate:"required"`
	Type        Type     `json:"type" yaml:"type" validate:"required"`
	Threshold   float64  `json:"threshold" yaml:"threshold" validate:"gte=0"`
	Points      int      `json:"points" yaml:"points" validate:"gte=0"`
	Tier        Tier     `json:"tier" yaml:"tier" validate:"min=1,max=4"`
	IsHidden    bool     `json:"is_hidden" yaml:"hidden"`
}

// Stats is a snapshot of a user's cumulative activity counters.
// Counters are expected to grow but may decrease after a data correction.
type Stats struct {
	UserID                    string    `json:"user_id" db:"user_id"`
	StreakDays                int       `json:"streak_days" db:"streak_days"`
	RoleplayCount             int       `json:"roleplay_count" db:"roleplay_count"`
	TestCount                 int       `json:"test_count" db:"test_count"`
	HighestTestScore          float64   `json:"highest_test_score" db:"highest_test_score"`
	PerformanceIndicatorCount int       `json:"performance_indicator_count" db:"performance_indicator_count"`
	WrittenEventCount         int       `json:"written_event_count" db:"written_event_count"`
	DailyChallengeCount       int       `json:"daily_challenge_count" db:"daily_challenge_count"`
	Season                    string    `json:"season" db:"season"`
	UpdatedAt                 time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// Record is the persisted proof that a user earned an achievement.
// Its creation is the earning event; afterwards only IsDisplayed/DisplayedAt may change.
type Record struct {
	ID            int64      `json:"id"`
	UserID        string     `json:"user_id"`
	AchievementID string     `json:"achievement_id"`
	EarnedAt      time.Time  `json:"earned_at"` // UTC
	IsDisplayed   bool       `json:"is_displayed"`
	DisplayedAt   *time.Time `json:"displayed_at,omitempty"` // UTC
	Progress      float64    `json:"progress"`
	SeasonEarned  string     `json:"season_earned"`
}

// UserAchievement is an earned Record together with its Definition.
type UserAchievement struct {
	Record
	Achievement Definition `json:"achievement"`
}

// AchievementProgress is a user's standing against one definition.
type AchievementProgress struct {
	Achievement Definition `json:"achievement"`
	Progress    float64    `json:"progress"`
	Ratio       float64    `json:"ratio"` // 0..1
	Earned      bool       `json:"earned"`
	EarnedAt    *time.Time `json:"earned_at,omitempty"`
}

type Summary struct {
	UserID      string         `json:"user_id"`
	TotalPoints int            `json:"total_points"`
	Earned      int            `json:"earned"`
	Available   int            `json:"available"`
	ByTier      map[string]int `json:"by_tier"`
}

// QueryFilter narrows down a user's records.
type QueryFilter struct {
	UserID      string
	PendingOnly bool // only records not displayed yet
}
