package tender

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/errors"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// Tender is the root aggregate. Criteria are owned by the tender and never
// shared; the weight split and criterion weights are immutable once any
// score exists against them.
type Tender struct {
	ID          uuid.UUID          `json:"id"`
	Reference   string             `json:"reference"`
	Title       string             `json:"title"`
	Status      Status             `json:"status"`
	Currency    string             `json:"currency"`
	Weights     values.WeightSplit `json:"weights"`
	Schedule    Schedule           `json:"schedule"`
	Criteria    []EvaluationCriterion `json:"criteria"`

	// Document types every bid must upload before submission counts.
	MandatoryDocuments []string `json:"mandatory_documents"`

	// Evaluators invited to score this tender's bids.
	EvaluatorIDs []uuid.UUID `json:"evaluator_ids"`

	// 0 or 1, transitioned once via compare-and-set. The lock freezes
	// technical scoring tender-wide and is never released.
	scoreLock      int32
	ScoresLockedAt *time.Time `json:"scores_locked_at,omitempty"`

	PublishedAt *time.Time `json:"published_at,omitempty"`
	AwardedAt   *time.Time `json:"awarded_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Status int

const (
	StatusDraft Status = iota
	StatusActive
	StatusEvaluation
	StatusAwarded
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusDraft:
		return "draft"
	case StatusActive:
		return "active"
	case StatusEvaluation:
		return "evaluation"
	case StatusAwarded:
		return "awarded"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusAwarded || s == StatusCancelled
}

// StatusFromString parses a stored status string.
func StatusFromString(s string) (Status, error) {
	switch s {
	case "draft":
		return StatusDraft, nil
	case "active":
		return StatusActive, nil
	case "evaluation":
		return StatusEvaluation, nil
	case "awarded":
		return StatusAwarded, nil
	case "cancelled":
		return StatusCancelled, nil
	default:
		return StatusDraft, fmt.Errorf("unknown tender status %q", s)
	}
}

// Schedule holds the tender's deadline chain. Publication requires
// issue < clarification < submission < opening, all in the future.
type Schedule struct {
	IssueDate             time.Time `json:"issue_date"`
	ClarificationDeadline time.Time `json:"clarification_deadline"`
	SubmissionDeadline    time.Time `json:"submission_deadline"`
	OpeningDate           time.Time `json:"opening_date"`
}

// EvaluationCriterion is one row of the tender's technical scoring grid.
type EvaluationCriterion struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	WeightPercentage int       `json:"weight_percentage"`
}

// NewTender creates a draft tender.
func NewTender(reference, title, currency string, weights values.WeightSplit, schedule Schedule) *Tender {
	now := time.Now()
	return &Tender{
		ID:        uuid.New(),
		Reference: reference,
		Title:     title,
		Status:    StatusDraft,
		Currency:  currency,
		Weights:   weights,
		Schedule:  schedule,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AddCriterion appends a scoring criterion. Only permitted while drafting.
func (t *Tender) AddCriterion(name string, weightPercentage int) error {
	if t.Status != StatusDraft {
		return errors.NewSequencingError("TENDER_NOT_DRAFT", "criteria can only be changed while the tender is a draft").
			WithCurrentState(t.Status.String())
	}
	t.Criteria = append(t.Criteria, EvaluationCriterion{
		ID:               uuid.New(),
		Name:             name,
		WeightPercentage: weightPercentage,
	})
	t.UpdatedAt = time.Now()
	return nil
}

// CriterionByID looks up a criterion owned by this tender.
func (t *Tender) CriterionByID(id uuid.UUID) (EvaluationCriterion, bool) {
	for _, c := range t.Criteria {
		if c.ID == id {
			return c, true
		}
	}
	return EvaluationCriterion{}, false
}

// HasEvaluator reports whether the given identity is on the invited panel.
func (t *Tender) HasEvaluator(id uuid.UUID) bool {
	for _, e := range t.EvaluatorIDs {
		if e == id {
			return true
		}
	}
	return false
}

// ValidateForPublish is the pure validation gate consulted before the
// Draft -> Active transition. minClarificationGap is the minimum time that
// must separate the clarification and submission deadlines.
func (t *Tender) ValidateForPublish(now time.Time, minClarificationGap time.Duration) error {
	sum := 0
	for _, c := range t.Criteria {
		if c.WeightPercentage <= 0 {
			return errors.NewInvalidWeightsError(
				fmt.Sprintf("criterion %q has non-positive weight %d", c.Name, c.WeightPercentage))
		}
		sum += c.WeightPercentage
	}
	if len(t.Criteria) == 0 {
		return errors.NewInvalidWeightsError("tender has no evaluation criteria")
	}
	if sum != 100 {
		return errors.NewInvalidWeightsError(
			fmt.Sprintf("criterion weights sum to %d, expected exactly 100", sum))
	}

	s := t.Schedule
	ordered := s.IssueDate.Before(s.ClarificationDeadline) &&
		s.ClarificationDeadline.Before(s.SubmissionDeadline) &&
		s.SubmissionDeadline.Before(s.OpeningDate)
	if !ordered {
		return errors.NewInvalidScheduleError(
			"deadlines must satisfy issue < clarification < submission < opening")
	}
	if !s.ClarificationDeadline.After(now) || !s.SubmissionDeadline.After(now) || !s.OpeningDate.After(now) {
		return errors.NewInvalidScheduleError("all deadlines must be in the future at publish time")
	}
	if s.SubmissionDeadline.Sub(s.ClarificationDeadline) < minClarificationGap {
		return errors.NewInvalidScheduleError(
			fmt.Sprintf("submission deadline must be at least %s after the clarification deadline", minClarificationGap))
	}
	return nil
}

// Publish transitions Draft -> Active. Validation is the caller's duty via
// ValidateForPublish; Publish only enforces the status edge.
func (t *Tender) Publish(now time.Time) error {
	if t.Status != StatusDraft {
		return errors.NewSequencingError("TENDER_NOT_DRAFT", "only draft tenders can be published").
			WithCurrentState(t.Status.String())
	}
	t.Status = StatusActive
	t.PublishedAt = &now
	t.UpdatedAt = now
	return nil
}

// BeginEvaluation transitions Active -> Evaluation when the bids are opened.
func (t *Tender) BeginEvaluation(now time.Time) error {
	if t.Status != StatusActive {
		return errors.NewSequencingError("TENDER_NOT_ACTIVE", "only active tenders can move to evaluation").
			WithCurrentState(t.Status.String())
	}
	t.Status = StatusEvaluation
	t.UpdatedAt = now
	return nil
}

// Award transitions Evaluation -> Awarded once the approval chain completes.
func (t *Tender) Award(now time.Time) error {
	if t.Status != StatusEvaluation {
		return errors.NewSequencingError("TENDER_NOT_IN_EVALUATION", "only tenders under evaluation can be awarded").
			WithCurrentState(t.Status.String())
	}
	t.Status = StatusAwarded
	t.AwardedAt = &now
	t.UpdatedAt = now
	return nil
}

// Cancel is permitted from any non-terminal state.
func (t *Tender) Cancel(now time.Time) error {
	if t.Status.IsTerminal() {
		return errors.NewSequencingError("TENDER_TERMINAL", "tender is already in a terminal state").
			WithCurrentState(t.Status.String())
	}
	t.Status = StatusCancelled
	t.CancelledAt = &now
	t.UpdatedAt = now
	return nil
}

// TryLockScores applies the one-way tender-wide scoring lock. Exactly one
// caller wins the compare-and-set; every later call observes false.
func (t *Tender) TryLockScores(now time.Time) bool {
	if !atomic.CompareAndSwapInt32(&t.scoreLock, 0, 1) {
		return false
	}
	t.ScoresLockedAt = &now
	t.UpdatedAt = now
	return true
}

// ScoresLocked reports whether the scoring lock has been applied.
func (t *Tender) ScoresLocked() bool {
	return atomic.LoadInt32(&t.scoreLock) == 1
}

// RestoreLockState rehydrates the lock flag from storage. Repository use only.
func (t *Tender) RestoreLockState(locked bool, at *time.Time) {
	if locked {
		atomic.StoreInt32(&t.scoreLock, 1)
		t.ScoresLockedAt = at
	}
}
