package scoring

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// RankingInput carries everything the ranking needs for one bid: both
// score streams plus the tie-break attributes.
type RankingInput struct {
	BidID           uuid.UUID
	TechnicalScore  decimal.Decimal
	CommercialScore decimal.Decimal
	ComparableTotal values.Money
	SubmittedAt     time.Time
}

// CombinedScoreEntry is one row of the ranked result set. TiedWith is
// non-empty only when every tie-break was exhausted; such ties are
// surfaced for manual adjudication, never silently resolved.
type CombinedScoreEntry struct {
	BidID           uuid.UUID       `json:"bid_id"`
	TechnicalScore  decimal.Decimal `json:"technical_score"`
	CommercialScore decimal.Decimal `json:"commercial_score"`
	CombinedScore   decimal.Decimal `json:"combined_score"`
	Rank            int             `json:"rank"`
	TiedWith        []uuid.UUID     `json:"tied_with,omitempty"`
}

// Rank merges the two score streams under the given split and produces a
// deterministic total order. Tie-breaks, in order: higher technical score,
// lower comparable price, earlier submission. Bids equal on all of them
// share a rank.
func Rank(inputs []RankingInput, split values.WeightSplit) []CombinedScoreEntry {
	techWeight := decimal.NewFromInt(int64(split.Technical())).Div(hundred)
	commWeight := decimal.NewFromInt(int64(split.Commercial())).Div(hundred)

	entries := make([]CombinedScoreEntry, len(inputs))
	order := make([]RankingInput, len(inputs))
	copy(order, inputs)

	combined := func(in RankingInput) decimal.Decimal {
		return in.TechnicalScore.Mul(techWeight).Add(in.CommercialScore.Mul(commWeight)).Round(4)
	}

	sort.SliceStable(order, func(i, j int) bool {
		ci, cj := combined(order[i]), combined(order[j])
		if !ci.Equal(cj) {
			return ci.GreaterThan(cj)
		}
		if !order[i].TechnicalScore.Equal(order[j].TechnicalScore) {
			return order[i].TechnicalScore.GreaterThan(order[j].TechnicalScore)
		}
		if cmp, err := order[i].ComparableTotal.Compare(order[j].ComparableTotal); err == nil && cmp != 0 {
			return cmp < 0
		}
		return order[i].SubmittedAt.Before(order[j].SubmittedAt)
	})

	fullyTied := func(a, b RankingInput) bool {
		if !combined(a).Equal(combined(b)) {
			return false
		}
		if !a.TechnicalScore.Equal(b.TechnicalScore) {
			return false
		}
		if cmp, err := a.ComparableTotal.Compare(b.ComparableTotal); err != nil || cmp != 0 {
			return false
		}
		return a.SubmittedAt.Equal(b.SubmittedAt)
	}

	rank := 0
	for i, in := range order {
		if i == 0 || !fullyTied(order[i-1], in) {
			rank = i + 1
		}
		entries[i] = CombinedScoreEntry{
			BidID:           in.BidID,
			TechnicalScore:  in.TechnicalScore.Round(4),
			CommercialScore: in.CommercialScore.Round(4),
			CombinedScore:   combined(in),
			Rank:            rank,
		}
	}

	// Surface unresolved ties both ways.
	for i := range entries {
		for j := range entries {
			if i != j && entries[i].Rank == entries[j].Rank {
				entries[i].TiedWith = append(entries[i].TiedWith, entries[j].BidID)
			}
		}
	}
	return entries
}

// Leader returns the bid id ranked first, or uuid.Nil for an empty set.
func Leader(entries []CombinedScoreEntry) uuid.UUID {
	for _, e := range entries {
		if e.Rank == 1 {
			return e.BidID
		}
	}
	return uuid.Nil
}
