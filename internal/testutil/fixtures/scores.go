package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/scoring"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// FinalScoreEntry builds a final ledger entry, supplying a justification
// automatically when the mark falls outside the safe band.
func FinalScoreEntry(t *testing.T, tenderID, bidID, criterionID, evaluatorID uuid.UUID, mark float64, at time.Time) *scoring.TechnicalScoreEntry {
	t.Helper()
	score := values.MustNewScore(mark)
	justification := ""
	if score.RequiresJustification() {
		justification = "mark outside the usual range, see evaluation notes"
	}
	entry, err := scoring.NewTechnicalScoreEntry(tenderID, bidID, criterionID, evaluatorID, score, justification, true, at)
	require.NoError(t, err)
	return entry
}
