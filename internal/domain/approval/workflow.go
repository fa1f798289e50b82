package approval

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/errors"
)

// Decision is an approver's verdict on their level.
type Decision int

const (
	DecisionApprove Decision = iota
	DecisionReturn
	DecisionReject
)

func (d Decision) String() string {
	switch d {
	case DecisionApprove:
		return "approve"
	case DecisionReturn:
		return "return"
	case DecisionReject:
		return "reject"
	default:
		return "unknown"
	}
}

// DecisionFromString parses a decision submitted over the wire.
func DecisionFromString(s string) (Decision, error) {
	switch s {
	case "approve":
		return DecisionApprove, nil
	case "return":
		return DecisionReturn, nil
	case "reject":
		return DecisionReject, nil
	default:
		return DecisionApprove, fmt.Errorf("unknown decision %q", s)
	}
}

// LevelStatus is the per-level state: Pending until decided, then terminal.
type LevelStatus int

const (
	LevelPending LevelStatus = iota
	LevelApproved
	LevelReturned
	LevelRejected
)

func (s LevelStatus) String() string {
	switch s {
	case LevelPending:
		return "pending"
	case LevelApproved:
		return "approved"
	case LevelReturned:
		return "returned"
	case LevelRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// WorkflowStatus is the whole-instance state.
type WorkflowStatus int

const (
	WorkflowInProgress WorkflowStatus = iota
	WorkflowCompleted
	WorkflowReturned
	WorkflowRejected
)

func (s WorkflowStatus) String() string {
	switch s {
	case WorkflowInProgress:
		return "in_progress"
	case WorkflowCompleted:
		return "completed"
	case WorkflowReturned:
		return "returned"
	case WorkflowRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Level is one sign-off step bound to exactly one approver. Decided levels
// are append-only history and never reopened.
type Level struct {
	Index      int         `json:"index"`
	ApproverID uuid.UUID   `json:"approver_id"`
	Deadline   time.Time   `json:"deadline"`
	Status     LevelStatus `json:"status"`
	Comment    string      `json:"comment,omitempty"`
	DecidedAt  *time.Time  `json:"decided_at,omitempty"`
}

// Workflow is one approval attempt over a finalized ranking: an ordered
// chain of levels with a single active index. A workflow is terminal once
// any level is rejected or returned, or the last level is approved; a
// fresh instance is required to retry after a return.
type Workflow struct {
	ID           uuid.UUID      `json:"id"`
	TenderID     uuid.UUID      `json:"tender_id"`
	Status       WorkflowStatus `json:"status"`
	Levels       []Level        `json:"levels"`
	CurrentIndex int            `json:"current_index"`
	InitiatedBy  uuid.UUID      `json:"initiated_by"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`

	// Guards the Pending->terminal edge of the active level so a racing
	// duplicate observes ALREADY_DECIDED instead of corrupting state.
	mu sync.Mutex
}

// NewWorkflow validates the approver chain and creates levels 1..N, all
// pending, with level 0 (index zero) as the active decision point.
func NewWorkflow(tenderID, initiatedBy uuid.UUID, approverIDs []uuid.UUID, deadlines []time.Time, now time.Time) (*Workflow, error) {
	if len(approverIDs) == 0 {
		return nil, errors.NewValidationError("NO_APPROVERS", "an approval workflow needs at least one level")
	}
	if len(deadlines) != len(approverIDs) {
		return nil, errors.NewValidationError("DEADLINE_MISMATCH",
			fmt.Sprintf("%d approvers but %d deadlines", len(approverIDs), len(deadlines)))
	}
	seen := make(map[uuid.UUID]bool, len(approverIDs))
	for _, id := range approverIDs {
		if seen[id] {
			return nil, errors.NewDuplicateApproversError(
				fmt.Sprintf("approver %s is bound to more than one level", id))
		}
		seen[id] = true
	}

	levels := make([]Level, len(approverIDs))
	for i, id := range approverIDs {
		levels[i] = Level{
			Index:      i,
			ApproverID: id,
			Deadline:   deadlines[i],
			Status:     LevelPending,
		}
	}

	return &Workflow{
		ID:           uuid.New(),
		TenderID:     tenderID,
		Status:       WorkflowInProgress,
		Levels:       levels,
		CurrentIndex: 0,
		InitiatedBy:  initiatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ActiveLevel returns the level currently awaiting a decision, or nil if
// the workflow is terminal.
func (w *Workflow) ActiveLevel() *Level {
	if w.Status != WorkflowInProgress {
		return nil
	}
	if w.CurrentIndex < 0 || w.CurrentIndex >= len(w.Levels) {
		return nil
	}
	return &w.Levels[w.CurrentIndex]
}

// IsTerminal reports whether this instance can accept no further decision.
func (w *Workflow) IsTerminal() bool {
	return w.Status != WorkflowInProgress
}

// Decide applies one approver's verdict to the active level. The level
// transition Pending -> terminal happens at most once; a duplicate or
// racing submission gets ALREADY_DECIDED. Returns true when the workflow
// completed (last level approved) so the caller can award the tender.
func (w *Workflow) Decide(approverID uuid.UUID, decision Decision, comment string, now time.Time) (completed bool, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.Status != WorkflowInProgress {
		return false, errors.NewAlreadyDecidedError("workflow is no longer in progress").
			WithCurrentState(w.Status.String())
	}

	level := &w.Levels[w.CurrentIndex]
	if level.ApproverID != approverID {
		return false, errors.NewNotYourTurnError(
			fmt.Sprintf("level %d is bound to a different approver", level.Index+1))
	}
	if level.Status != LevelPending {
		return false, errors.NewAlreadyDecidedError(
			fmt.Sprintf("level %d has already been decided", level.Index+1)).
			WithCurrentState(level.Status.String())
	}

	if decision != DecisionApprove && decision != DecisionReturn && decision != DecisionReject {
		return false, errors.NewValidationError("INVALID_DECISION", "decision must be approve, return, or reject")
	}

	level.Comment = comment
	level.DecidedAt = &now
	w.UpdatedAt = now

	switch decision {
	case DecisionApprove:
		level.Status = LevelApproved
		if w.CurrentIndex == len(w.Levels)-1 {
			w.Status = WorkflowCompleted
			return true, nil
		}
		w.CurrentIndex++
		return false, nil
	case DecisionReturn:
		level.Status = LevelReturned
		w.Status = WorkflowReturned
		return false, nil
	default:
		level.Status = LevelRejected
		w.Status = WorkflowRejected
		return false, nil
	}
}

// Invalidate terminates an in-progress workflow when its tender is
// cancelled. Decided levels keep their history.
func (w *Workflow) Invalidate(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.Status == WorkflowInProgress {
		w.Status = WorkflowRejected
		w.UpdatedAt = now
	}
}
