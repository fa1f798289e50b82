package approval

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/approval"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/errors"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/event"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/identity"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/tender"
)

// service implements the Service interface
type service struct {
	workflowRepo WorkflowRepository
	tenderRepo   TenderRepository
	rankings     RankingProvider
	publisher    event.Publisher
	clock        tender.Clock
	logger       *slog.Logger
}

// NewService creates the approval workflow engine
func NewService(
	workflowRepo WorkflowRepository,
	tenderRepo TenderRepository,
	rankings RankingProvider,
	publisher event.Publisher,
	clock tender.Clock,
	logger *slog.Logger,
) Service {
	if clock == nil {
		clock = tender.RealClock{}
	}
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	return &service{
		workflowRepo: workflowRepo,
		tenderRepo:   tenderRepo,
		rankings:     rankings,
		publisher:    publisher,
		clock:        clock,
		logger:       logger,
	}
}

// Initiate creates a new workflow over the finalized ranking. The ranking
// is frozen from this point; a tender carries at most one in-progress
// workflow at a time.
func (s *service) Initiate(ctx context.Context, caller identity.Caller, req *InitiateRequest) (*approval.Workflow, error) {
	if !caller.Is(identity.RoleProcurementOfficer) {
		return nil, errors.NewForbiddenError("ROLE_REQUIRED", "only a procurement officer can initiate approval")
	}

	t, err := s.tenderRepo.GetByID(ctx, req.TenderID)
	if err != nil {
		return nil, errors.NewNotFoundError("tender").WithCause(err)
	}
	if t.Status != tender.StatusEvaluation {
		return nil, errors.NewPrerequisiteNotMetError("tender is not under evaluation").
			WithCurrentState(t.Status.String())
	}

	ranking, err := s.rankings.GetCombined(ctx, req.TenderID)
	if err != nil || ranking == nil || len(ranking.Entries) == 0 {
		return nil, errors.NewPrerequisiteNotMetError("combined scoring has not been finalized")
	}
	if ranking.HasUnresolvedTies() {
		return nil, errors.NewPrerequisiteNotMetError(
			"the ranking contains an unresolved tie that requires manual adjudication")
	}

	if active, err := s.workflowRepo.GetActiveByTender(ctx, req.TenderID); err == nil && active != nil {
		return nil, errors.NewConflictError("WORKFLOW_IN_PROGRESS",
			"an approval workflow is already in progress for this tender")
	}

	now := s.clock.Now()
	w, err := approval.NewWorkflow(req.TenderID, caller.ID, req.ApproverIDs, req.Deadlines, now)
	if err != nil {
		return nil, err
	}

	if err := s.rankings.FreezeCombined(ctx, req.TenderID); err != nil {
		return nil, errors.NewInternalError("failed to freeze ranking").WithCause(err)
	}
	if err := s.workflowRepo.Create(ctx, w); err != nil {
		return nil, errors.NewInternalError("failed to store workflow").WithCause(err)
	}

	s.logger.InfoContext(ctx, "approval workflow initiated",
		"tender_id", t.ID, "workflow_id", w.ID, "levels", len(w.Levels))
	return w, nil
}

// Decide applies the caller's verdict to the active level of the tender's
// in-progress workflow. Approving the final level awards the tender.
func (s *service) Decide(ctx context.Context, caller identity.Caller, req *DecideRequest) (*approval.Workflow, error) {
	if !caller.Is(identity.RoleApprover) {
		return nil, errors.NewForbiddenError("ROLE_REQUIRED", "only an approver can decide a level")
	}

	w, err := s.workflowRepo.GetActiveByTender(ctx, req.TenderID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load workflow").WithCause(err)
	}
	if w == nil {
		return nil, errors.NewNotFoundError("approval workflow")
	}

	now := s.clock.Now()
	decidedLevel := w.CurrentIndex
	completed, err := w.Decide(caller.ID, req.Decision, req.Comment, now)
	if err != nil {
		return nil, err
	}
	if err := s.workflowRepo.Update(ctx, w); err != nil {
		return nil, errors.NewInternalError("failed to store workflow").WithCause(err)
	}

	s.publisher.Publish(event.New(event.TypeApprovalLevelDecided, req.TenderID, caller.ID, map[string]interface{}{
		"workflow_id": w.ID,
		"level":       decidedLevel + 1,
		"decision":    req.Decision.String(),
	}))

	switch {
	case completed:
		if err := s.awardTender(ctx, caller.ID, req.TenderID, now); err != nil {
			return nil, err
		}
	case w.Status == approval.WorkflowReturned:
		// Tender stays in Evaluation; a fresh instance is required to retry.
		s.publisher.Publish(event.New(event.TypeWorkflowReturned, req.TenderID, caller.ID, map[string]interface{}{
			"workflow_id": w.ID,
		}))
	case w.Status == approval.WorkflowRejected:
		s.publisher.Publish(event.New(event.TypeWorkflowRejected, req.TenderID, caller.ID, map[string]interface{}{
			"workflow_id": w.ID,
		}))
	}

	s.logger.InfoContext(ctx, "approval level decided",
		"tender_id", req.TenderID, "workflow_id", w.ID,
		"level", decidedLevel+1, "decision", req.Decision.String(), "workflow_status", w.Status.String())
	return w, nil
}

// GetActive returns the tender's in-progress workflow.
func (s *service) GetActive(ctx context.Context, tenderID uuid.UUID) (*approval.Workflow, error) {
	w, err := s.workflowRepo.GetActiveByTender(ctx, tenderID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load workflow").WithCause(err)
	}
	if w == nil {
		return nil, errors.NewNotFoundError("approval workflow")
	}
	return w, nil
}

func (s *service) awardTender(ctx context.Context, actorID, tenderID uuid.UUID, now time.Time) error {
	t, err := s.tenderRepo.GetByID(ctx, tenderID)
	if err != nil {
		return errors.NewNotFoundError("tender").WithCause(err)
	}
	if err := t.Award(now); err != nil {
		return err
	}
	if err := s.tenderRepo.Update(ctx, t); err != nil {
		return errors.NewInternalError("failed to store tender").WithCause(err)
	}
	s.publisher.Publish(event.New(event.TypeTenderAwarded, tenderID, actorID, nil))
	s.logger.InfoContext(ctx, "tender awarded", "tender_id", tenderID)
	return nil
}

// InvalidateActive voids the tender's in-progress workflow. Used by the
// lifecycle service when a tender is cancelled.
func (s *service) InvalidateActive(ctx context.Context, tenderID uuid.UUID, now time.Time) error {
	w, err := s.workflowRepo.GetActiveByTender(ctx, tenderID)
	if err != nil || w == nil {
		return err
	}
	w.Invalidate(now)
	return s.workflowRepo.Update(ctx, w)
}
