package scoring

import (
	"time"

	"github.com/google/uuid"
)

// CommercialResult is the cached commercial calculation for a tender,
// remembering which flag settings produced it. Recomputation from bid
// prices must always agree with the cached rows.
type CommercialResult struct {
	TenderID     uuid.UUID         `json:"tender_id"`
	Flags        CommercialFlags   `json:"flags"`
	Scores       []CommercialScore `json:"scores"`
	CalculatedAt time.Time         `json:"calculated_at"`
}

// ScoreFor returns the commercial score for a bid, if present.
func (r *CommercialResult) ScoreFor(bidID uuid.UUID) (CommercialScore, bool) {
	for _, s := range r.Scores {
		if s.BidID == bidID {
			return s, true
		}
	}
	return CommercialScore{}, false
}

// CombinedResult is the cached ranking for a tender. It is recomputed on
// every score-changing write until an approval workflow starts, at which
// point it is frozen and becomes the basis of the award recommendation.
type CombinedResult struct {
	TenderID     uuid.UUID            `json:"tender_id"`
	Entries      []CombinedScoreEntry `json:"entries"`
	Frozen       bool                 `json:"frozen"`
	CalculatedAt time.Time            `json:"calculated_at"`
}

// HasUnresolvedTies reports whether any rank is shared, which requires
// manual adjudication before approval can start.
func (r *CombinedResult) HasUnresolvedTies() bool {
	for _, e := range r.Entries {
		if len(e.TiedWith) > 0 {
			return true
		}
	}
	return false
}
