package scoring

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/errors"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/tender"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

var entryTime = time.Date(2026, 3, 20, 10, 0, 0, 0, time.UTC)

func finalEntry(t *testing.T, bidID, criterionID, evaluatorID uuid.UUID, mark float64) *TechnicalScoreEntry {
	t.Helper()
	justification := ""
	score := values.MustNewScore(mark)
	if score.RequiresJustification() {
		justification = "exceptional case, see notes"
	}
	e, err := NewTechnicalScoreEntry(uuid.New(), bidID, criterionID, evaluatorID, score, justification, true, entryTime)
	require.NoError(t, err)
	return e
}

func TestNewTechnicalScoreEntry_Justification(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}

	// A mark inside the safe band needs no comment.
	_, err := NewTechnicalScoreEntry(ids[0], ids[1], ids[2], ids[3],
		values.MustNewScore(5), "", true, entryTime)
	assert.NoError(t, err)

	// Outside the band a comment is mandatory.
	_, err = NewTechnicalScoreEntry(ids[0], ids[1], ids[2], ids[3],
		values.MustNewScore(9.5), "", true, entryTime)
	assert.True(t, errors.IsCode(err, "MISSING_JUSTIFICATION"))

	_, err = NewTechnicalScoreEntry(ids[0], ids[1], ids[2], ids[3],
		values.MustNewScore(9.5), "outstanding methodology", true, entryTime)
	assert.NoError(t, err)
}

func TestTechnicalScoreEntry_Revise(t *testing.T) {
	bidID, criterionID, evaluatorID := uuid.New(), uuid.New(), uuid.New()
	e := finalEntry(t, bidID, criterionID, evaluatorID, 6)
	originalID := e.ID

	later := entryTime.Add(time.Hour)
	require.NoError(t, e.Revise(values.MustNewScore(7), "", false, later))
	assert.Equal(t, originalID, e.ID, "revision preserves identity")
	assert.Equal(t, 7.0, e.Score.Float64())
	assert.False(t, e.IsFinal)
	assert.Equal(t, later, e.UpdatedAt)

	// Revising to a mark outside the band still requires a comment.
	err := e.Revise(values.MustNewScore(1.5), "", true, later)
	assert.True(t, errors.IsCode(err, "MISSING_JUSTIFICATION"))
}

func TestAggregateTechnical_SingleCriterion(t *testing.T) {
	criterion := tender.EvaluationCriterion{ID: uuid.New(), Name: "Methodology", WeightPercentage: 100}
	bidID := uuid.New()
	ev1, ev2 := uuid.New(), uuid.New()

	entries := []*TechnicalScoreEntry{
		finalEntry(t, bidID, criterion.ID, ev1, 8),
		finalEntry(t, bidID, criterion.ID, ev2, 6),
	}

	// Mean of 8 and 6 is 7, normalized onto the 0-100 scale.
	total := AggregateTechnical(entries, []tender.EvaluationCriterion{criterion})
	assert.True(t, total.Equal(decimal.NewFromInt(70)), "got %s", total)
}

func TestAggregateTechnical_WeightedCriteria(t *testing.T) {
	methodology := tender.EvaluationCriterion{ID: uuid.New(), Name: "Methodology", WeightPercentage: 60}
	experience := tender.EvaluationCriterion{ID: uuid.New(), Name: "Experience", WeightPercentage: 40}
	bidID := uuid.New()
	evaluator := uuid.New()

	entries := []*TechnicalScoreEntry{
		finalEntry(t, bidID, methodology.ID, evaluator, 8),
		finalEntry(t, bidID, experience.ID, evaluator, 5),
	}

	// 8*10*0.6 + 5*10*0.4 = 48 + 20 = 68
	total := AggregateTechnical(entries, []tender.EvaluationCriterion{methodology, experience})
	assert.True(t, total.Equal(decimal.NewFromInt(68)), "got %s", total)
}

func TestAggregateTechnical_IgnoresDraftEntries(t *testing.T) {
	criterion := tender.EvaluationCriterion{ID: uuid.New(), Name: "Methodology", WeightPercentage: 100}
	bidID := uuid.New()

	final := finalEntry(t, bidID, criterion.ID, uuid.New(), 8)
	draft := finalEntry(t, bidID, criterion.ID, uuid.New(), 2)
	draft.IsFinal = false

	total := AggregateTechnical([]*TechnicalScoreEntry{final, draft}, []tender.EvaluationCriterion{criterion})
	assert.True(t, total.Equal(decimal.NewFromInt(80)), "draft marks must not dilute the mean, got %s", total)
}

func TestMissingFinalEntries(t *testing.T) {
	criteria := []tender.EvaluationCriterion{
		{ID: uuid.New(), Name: "Methodology", WeightPercentage: 60},
		{ID: uuid.New(), Name: "Experience", WeightPercentage: 40},
	}
	bids := []uuid.UUID{uuid.New(), uuid.New()}
	evaluators := []uuid.UUID{uuid.New(), uuid.New()}

	// Empty ledger: every cell of the 2x2x2 grid is missing.
	missing := MissingFinalEntries(bids, criteria, evaluators, nil)
	assert.Len(t, missing, 8)

	// Fill everything except one evaluator's marks on the second bid.
	var entries []*TechnicalScoreEntry
	for _, bidID := range bids {
		for _, c := range criteria {
			for _, evID := range evaluators {
				if bidID == bids[1] && evID == evaluators[1] {
					continue
				}
				entries = append(entries, finalEntry(t, bidID, c.ID, evID, 7))
			}
		}
	}
	missing = MissingFinalEntries(bids, criteria, evaluators, entries)
	require.Len(t, missing, 2)
	for _, k := range missing {
		assert.Equal(t, bids[1], k.BidID)
		assert.Equal(t, evaluators[1], k.EvaluatorID)
	}

	// A draft entry does not satisfy its cell.
	entries = append(entries, finalEntry(t, bids[1], criteria[0].ID, evaluators[1], 7))
	entries[len(entries)-1].IsFinal = false
	assert.Len(t, MissingFinalEntries(bids, criteria, evaluators, entries), 2)
}
