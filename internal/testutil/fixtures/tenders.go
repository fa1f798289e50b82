package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/tender"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// TenderBuilder builds test Tender aggregates
type TenderBuilder struct {
	t                  *testing.T
	id                 uuid.UUID
	reference          string
	title              string
	status             tender.Status
	currency           string
	weights            values.WeightSplit
	schedule           tender.Schedule
	criteria           []tender.EvaluationCriterion
	mandatoryDocuments []string
	evaluatorIDs       []uuid.UUID
	scoresLockedAt     *time.Time
	createdAt          time.Time
}

// NewTenderBuilder creates a new TenderBuilder with defaults: a draft
// tender weighted 70/30 whose deadline chain starts at the given base time.
func NewTenderBuilder(t *testing.T, base time.Time) *TenderBuilder {
	t.Helper()
	return &TenderBuilder{
		t:         t,
		id:        uuid.New(),
		reference: "TEN-2026-0001",
		title:     "Supply and installation of network equipment",
		status:    tender.StatusDraft,
		currency:  values.USD,
		weights:   values.MustNewWeightSplit(70, 30),
		schedule: tender.Schedule{
			IssueDate:             base,
			ClarificationDeadline: base.Add(7 * 24 * time.Hour),
			SubmissionDeadline:    base.Add(14 * 24 * time.Hour),
			OpeningDate:           base.Add(15 * 24 * time.Hour),
		},
		createdAt: base,
	}
}

// WithID sets the tender ID
func (b *TenderBuilder) WithID(id uuid.UUID) *TenderBuilder {
	b.id = id
	return b
}

// WithReference sets the tender reference
func (b *TenderBuilder) WithReference(reference string) *TenderBuilder {
	b.reference = reference
	return b
}

// WithStatus sets the tender status
func (b *TenderBuilder) WithStatus(status tender.Status) *TenderBuilder {
	b.status = status
	return b
}

// WithCurrency sets the tender currency
func (b *TenderBuilder) WithCurrency(currency string) *TenderBuilder {
	b.currency = currency
	return b
}

// WithWeights sets the technical/commercial split
func (b *TenderBuilder) WithWeights(technical, commercial int) *TenderBuilder {
	b.weights = values.MustNewWeightSplit(technical, commercial)
	return b
}

// WithSchedule sets the deadline chain
func (b *TenderBuilder) WithSchedule(schedule tender.Schedule) *TenderBuilder {
	b.schedule = schedule
	return b
}

// WithCriterion appends a scoring criterion and returns its generated ID
// through the out parameter when non-nil.
func (b *TenderBuilder) WithCriterion(name string, weightPercentage int, out *uuid.UUID) *TenderBuilder {
	c := tender.EvaluationCriterion{
		ID:               uuid.New(),
		Name:             name,
		WeightPercentage: weightPercentage,
	}
	if out != nil {
		*out = c.ID
	}
	b.criteria = append(b.criteria, c)
	return b
}

// WithMandatoryDocuments sets the required document types
func (b *TenderBuilder) WithMandatoryDocuments(types ...string) *TenderBuilder {
	b.mandatoryDocuments = types
	return b
}

// WithEvaluators sets the invited evaluation panel
func (b *TenderBuilder) WithEvaluators(ids ...uuid.UUID) *TenderBuilder {
	b.evaluatorIDs = ids
	return b
}

// WithScoresLocked marks the technical ledger as locked at the given time
func (b *TenderBuilder) WithScoresLocked(at time.Time) *TenderBuilder {
	b.scoresLockedAt = &at
	return b
}

// Build creates the Tender aggregate
func (b *TenderBuilder) Build() *tender.Tender {
	t := &tender.Tender{
		ID:                 b.id,
		Reference:          b.reference,
		Title:              b.title,
		Status:             b.status,
		Currency:           b.currency,
		Weights:            b.weights,
		Schedule:           b.schedule,
		Criteria:           b.criteria,
		MandatoryDocuments: b.mandatoryDocuments,
		EvaluatorIDs:       b.evaluatorIDs,
		CreatedAt:          b.createdAt,
		UpdatedAt:          b.createdAt,
	}
	if b.status != tender.StatusDraft {
		publishedAt := b.schedule.IssueDate
		t.PublishedAt = &publishedAt
	}
	if b.scoresLockedAt != nil {
		t.RestoreLockState(true, b.scoresLockedAt)
	}
	return t
}
