package scoring

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/bid"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/errors"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// CommercialFlags select which optional price components enter the
// comparable total. One setting applies to every bid in a calculation.
type CommercialFlags struct {
	IncludeProvisionalSums bool `json:"include_provisional_sums"`
	IncludeAlternates      bool `json:"include_alternates"`
}

// CommercialScore is the price-derived score for one bid. It is a cached
// projection, recomputable from bid prices at any time.
type CommercialScore struct {
	BidID           uuid.UUID       `json:"bid_id"`
	ComparableTotal values.Money    `json:"comparable_total"`
	Score           decimal.Decimal `json:"score"`
	CalculatedAt    time.Time       `json:"calculated_at"`
}

var hundred = decimal.NewFromInt(100)

// CalculateCommercialScores scores every opened bid against the lowest
// comparable total: score = lowest/this * 100, clamped to [0,100]. The
// lowest-price bid scores exactly 100; price ties score identically.
// Disqualified and unopened bids are excluded.
func CalculateCommercialScores(bids []*bid.Bid, flags CommercialFlags, now time.Time) ([]CommercialScore, error) {
	type priced struct {
		id    uuid.UUID
		total values.Money
	}

	var opened []priced
	for _, b := range bids {
		if !b.IsOpened() {
			continue
		}
		total, err := b.ComparableTotal(flags.IncludeProvisionalSums, flags.IncludeAlternates)
		if err != nil {
			return nil, errors.NewInternalError("failed to build comparable total").WithCause(err)
		}
		opened = append(opened, priced{id: b.ID, total: total})
	}
	if len(opened) == 0 {
		return nil, errors.NewNoOpenedBidsError("no bid has been opened for this tender")
	}

	lowest := opened[0].total
	for _, p := range opened[1:] {
		cmp, err := p.total.Compare(lowest)
		if err != nil {
			return nil, errors.NewInternalError("bids are not price-comparable").WithCause(err)
		}
		if cmp < 0 {
			lowest = p.total
		}
	}

	scores := make([]CommercialScore, 0, len(opened))
	for _, p := range opened {
		ratio, err := lowest.Ratio(p.total)
		if err != nil {
			return nil, errors.NewInternalError("failed to compute price ratio").WithCause(err)
		}
		score := ratio.Mul(hundred)
		if score.GreaterThan(hundred) {
			score = hundred
		}
		if score.IsNegative() {
			score = decimal.Zero
		}
		scores = append(scores, CommercialScore{
			BidID:           p.id,
			ComparableTotal: p.total,
			Score:           score.Round(4),
			CalculatedAt:    now,
		})
	}
	return scores, nil
}
