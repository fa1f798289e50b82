package scoring

import (
	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// SensitivityScenario is one alternate weight split and the rank order it
// produces. Purely derived, never persisted as authoritative state.
type SensitivityScenario struct {
	Split         values.WeightSplit `json:"split"`
	LeaderBidID   uuid.UUID          `json:"leader_bid_id"`
	MatchesActual bool               `json:"matches_actual"`
	RankOrder     []uuid.UUID        `json:"rank_order"`
}

// SensitivityReport sweeps the plausible weight range around the tender's
// actual split and flags whether each alternate leader matches the actual
// one. A stability signal for the approver, not a decision input.
type SensitivityReport struct {
	ActualSplit  values.WeightSplit    `json:"actual_split"`
	ActualLeader uuid.UUID             `json:"actual_leader"`
	Stable       bool                  `json:"stable"`
	Scenarios    []SensitivityScenario `json:"scenarios"`
}

// sensitivitySplits enumerates technical weights from 90 down to 10 in the
// given step, always including the actual split.
func sensitivitySplits(actual values.WeightSplit, step int) []values.WeightSplit {
	if step <= 0 {
		step = 10
	}
	var splits []values.WeightSplit
	seen := false
	for tech := 90; tech >= 10; tech -= step {
		s := values.MustNewWeightSplit(tech, 100-tech)
		if s.Equal(actual) {
			seen = true
		}
		splits = append(splits, s)
	}
	if !seen {
		splits = append(splits, actual)
	}
	return splits
}

// Analyze recomputes the ranking across the sweep of alternate splits.
// Inputs are the same per-bid score streams the combined ranking consumes.
func Analyze(inputs []RankingInput, actual values.WeightSplit, step int) SensitivityReport {
	actualEntries := Rank(inputs, actual)
	actualLeader := Leader(actualEntries)

	report := SensitivityReport{
		ActualSplit:  actual,
		ActualLeader: actualLeader,
		Stable:       true,
	}

	for _, split := range sensitivitySplits(actual, step) {
		entries := Rank(inputs, split)
		leader := Leader(entries)

		rankOrder := make([]uuid.UUID, len(entries))
		for i, e := range entries {
			rankOrder[i] = e.BidID
		}

		matches := leader == actualLeader
		if !matches {
			report.Stable = false
		}
		report.Scenarios = append(report.Scenarios, SensitivityScenario{
			Split:         split,
			LeaderBidID:   leader,
			MatchesActual: matches,
			RankOrder:     rankOrder,
		})
	}
	return report
}
