package approval

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/approval"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/identity"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/scoring"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/tender"
)

// Service drives the sequential multi-level sign-off over a finalized
// ranking.
type Service interface {
	// Initiate creates a new workflow instance over the frozen ranking.
	Initiate(ctx context.Context, caller identity.Caller, req *InitiateRequest) (*approval.Workflow, error)
	// Decide applies the caller's verdict to the active level.
	Decide(ctx context.Context, caller identity.Caller, req *DecideRequest) (*approval.Workflow, error)
	// GetActive returns the tender's in-progress workflow, if any.
	GetActive(ctx context.Context, tenderID uuid.UUID) (*approval.Workflow, error)
	// InvalidateActive voids the tender's in-progress workflow when the
	// tender is cancelled.
	InvalidateActive(ctx context.Context, tenderID uuid.UUID, now time.Time) error
}

// InitiateRequest creates an approval chain: one approver and deadline per
// level, in decision order.
type InitiateRequest struct {
	TenderID    uuid.UUID
	ApproverIDs []uuid.UUID
	Deadlines   []time.Time
}

// DecideRequest is one approver's verdict on the active level.
type DecideRequest struct {
	TenderID uuid.UUID
	Decision approval.Decision
	Comment  string
}

// WorkflowRepository stores approval workflow instances. Level history is
// append-only; decided levels are never overwritten.
type WorkflowRepository interface {
	// Create stores a new workflow instance
	Create(ctx context.Context, w *approval.Workflow) error
	// Update persists a level decision
	Update(ctx context.Context, w *approval.Workflow) error
	// GetActiveByTender returns the tender's in-progress workflow, or
	// nil when there is none
	GetActiveByTender(ctx context.Context, tenderID uuid.UUID) (*approval.Workflow, error)
}

// TenderRepository defines the tender storage surface the workflow needs.
type TenderRepository interface {
	// GetByID retrieves a tender by ID
	GetByID(ctx context.Context, id uuid.UUID) (*tender.Tender, error)
	// Update modifies an existing tender
	Update(ctx context.Context, t *tender.Tender) error
}

// RankingProvider exposes the stored combined ranking and its freeze flag.
type RankingProvider interface {
	// GetCombined returns the stored ranking
	GetCombined(ctx context.Context, tenderID uuid.UUID) (*scoring.CombinedResult, error)
	// FreezeCombined marks the ranking immutable
	FreezeCombined(ctx context.Context, tenderID uuid.UUID) error
}
