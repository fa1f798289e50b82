package scoring

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/errors"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/tender"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// TechnicalScoreEntry is one evaluator's mark for one criterion on one bid.
// Entries are partitioned by (bid, criterion, evaluator) so concurrent
// evaluators never write the same row; an entry is mutable only by its
// owning evaluator until the tender-wide lock.
type TechnicalScoreEntry struct {
	ID            uuid.UUID    `json:"id"`
	TenderID      uuid.UUID    `json:"tender_id"`
	BidID         uuid.UUID    `json:"bid_id"`
	CriterionID   uuid.UUID    `json:"criterion_id"`
	EvaluatorID   uuid.UUID    `json:"evaluator_id"`
	Score         values.Score `json:"score"`
	Justification string       `json:"justification,omitempty"`
	IsFinal       bool         `json:"is_final"`
	SubmittedAt   time.Time    `json:"submitted_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// EntryKey is the composite partition key for ledger storage.
type EntryKey struct {
	BidID       uuid.UUID
	CriterionID uuid.UUID
	EvaluatorID uuid.UUID
}

// NewTechnicalScoreEntry validates and builds a ledger entry. Marks outside
// the safe band must carry a justification comment.
func NewTechnicalScoreEntry(tenderID, bidID, criterionID, evaluatorID uuid.UUID, score values.Score, justification string, isFinal bool, now time.Time) (*TechnicalScoreEntry, error) {
	if score.RequiresJustification() && justification == "" {
		return nil, errors.NewMissingJustificationError(
			fmt.Sprintf("score %s is outside the safe band [%v, %v] and requires a justification",
				score, values.SafeBandLow, values.SafeBandHigh))
	}
	return &TechnicalScoreEntry{
		ID:            uuid.New(),
		TenderID:      tenderID,
		BidID:         bidID,
		CriterionID:   criterionID,
		EvaluatorID:   evaluatorID,
		Score:         score,
		Justification: justification,
		IsFinal:       isFinal,
		SubmittedAt:   now,
		UpdatedAt:     now,
	}, nil
}

// Key returns the composite partition key.
func (e *TechnicalScoreEntry) Key() EntryKey {
	return EntryKey{BidID: e.BidID, CriterionID: e.CriterionID, EvaluatorID: e.EvaluatorID}
}

// Revise overwrites the mark in place, preserving identity and ownership.
func (e *TechnicalScoreEntry) Revise(score values.Score, justification string, isFinal bool, now time.Time) error {
	if score.RequiresJustification() && justification == "" {
		return errors.NewMissingJustificationError(
			fmt.Sprintf("score %s is outside the safe band [%v, %v] and requires a justification",
				score, values.SafeBandLow, values.SafeBandHigh))
	}
	e.Score = score
	e.Justification = justification
	e.IsFinal = isFinal
	e.UpdatedAt = now
	return nil
}

// Normalization factor taking a 0-10 evaluator mark onto the 0-100 scale.
var normalization = decimal.NewFromInt(10)

// AggregateTechnical folds final entries for one bid into its weighted
// technical score on a 0-100 scale: per criterion, the mean of all final
// evaluator marks, normalized by 10, weighted by the criterion percentage.
// Entries that are not final are ignored.
func AggregateTechnical(entries []*TechnicalScoreEntry, criteria []tender.EvaluationCriterion) decimal.Decimal {
	byCriterion := make(map[uuid.UUID][]decimal.Decimal)
	for _, e := range entries {
		if !e.IsFinal {
			continue
		}
		byCriterion[e.CriterionID] = append(byCriterion[e.CriterionID], e.Score.Value())
	}

	total := decimal.Zero
	for _, c := range criteria {
		marks := byCriterion[c.ID]
		if len(marks) == 0 {
			continue
		}
		sum := decimal.Zero
		for _, m := range marks {
			sum = sum.Add(m)
		}
		mean := sum.Div(decimal.NewFromInt(int64(len(marks))))
		weighted := mean.Mul(normalization).
			Mul(decimal.NewFromInt(int64(c.WeightPercentage))).
			Div(decimal.NewFromInt(100))
		total = total.Add(weighted)
	}
	return total
}

// MissingFinalEntries reports every (bid, criterion, evaluator) cell that
// lacks a final entry. An empty result means the ledger is complete and
// eligible for locking.
func MissingFinalEntries(bidIDs []uuid.UUID, criteria []tender.EvaluationCriterion, evaluatorIDs []uuid.UUID, entries []*TechnicalScoreEntry) []EntryKey {
	final := make(map[EntryKey]bool, len(entries))
	for _, e := range entries {
		if e.IsFinal {
			final[e.Key()] = true
		}
	}

	var missing []EntryKey
	for _, bidID := range bidIDs {
		for _, c := range criteria {
			for _, evID := range evaluatorIDs {
				k := EntryKey{BidID: bidID, CriterionID: c.ID, EvaluatorID: evID}
				if !final[k] {
					missing = append(missing, k)
				}
			}
		}
	}
	return missing
}
