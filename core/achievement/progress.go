package achievement

// TestAttemptBand is the highest test_score threshold that counts attempts instead of scores.
// Below or at this value the definition reads Stats.TestCount, above it Stats.HighestTestScore.
const TestAttemptBand = 50.0

type Progress struct {
	Value  float64 `json:"progress"`
	Earned bool    `json:"earned"`
}

// Ratio returns the completion ratio against the threshold, capped to 1.
func (p Progress) Ratio(threshold float64) float64 {
	if threshold <= 0 {
		if p.Earned {
			return 1
		}
		return 0
	}
	r := p.Value / threshold
	if r > 1 {
		return 1
	}
	if r < 0 {
		return 0
	}
	return r
}

// ComputeProgress measures stats against a definition. It has no side effects.
// Definitions of unknown type never earn.
func ComputeProgress(def Definition, stats Stats) Progress {
	value, ok := statValue(def, stats)
	if !ok {
		return Progress{}
	}
	return Progress{Value: value, Earned: value >= def.Threshold}
}

func statValue(def Definition, stats Stats) (float64, bool) {
	switch def.Type {
	case TypeStreak:
		return float64(stats.StreakDays), true
	case TypeRoleplayComplete:
		return float64(stats.RoleplayCount), true
	case TypeTestScore:
		if def.Threshold <= TestAttemptBand {
			return float64(stats.TestCount), true
		}
		return stats.HighestTestScore, true
	case TypePerformanceIndicator:
		return float64(stats.PerformanceIndicatorCount), true
	case TypeWrittenEvent:
		return float64(stats.WrittenEventCount), true
	case TypeDailyChallenge:
		return float64(stats.DailyChallengeCount), true
	default:
		return 0, false
	}
}
