package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/approval"
)

// WorkflowRepository stores approval workflow instances in PostgreSQL.
// The level chain lives as JSONB on the workflow row; decided levels are
// append-only history carried forward on every update. A partial unique
// index on (tender_id) WHERE status = 'in_progress' enforces at most one
// live workflow per tender.
type WorkflowRepository struct {
	db *pgxpool.Pool
}

// NewWorkflowRepository creates a new workflow repository
func NewWorkflowRepository(db *pgxpool.Pool) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create stores a new workflow instance
func (r *WorkflowRepository) Create(ctx context.Context, w *approval.Workflow) error {
	levelsJSON, err := json.Marshal(w.Levels)
	if err != nil {
		return fmt.Errorf("failed to marshal levels: %w", err)
	}

	query := `
		INSERT INTO approval_workflows (
			id, tender_id, status, levels, current_index,
			initiated_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = r.db.Exec(ctx, query,
		w.ID, w.TenderID, w.Status.String(), levelsJSON, w.CurrentIndex,
		w.InitiatedBy, w.CreatedAt, w.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return fmt.Errorf("active workflow for tender %s: %w", w.TenderID, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	return nil
}

// Update persists a level decision
func (r *WorkflowRepository) Update(ctx context.Context, w *approval.Workflow) error {
	levelsJSON, err := json.Marshal(w.Levels)
	if err != nil {
		return fmt.Errorf("failed to marshal levels: %w", err)
	}

	query := `
		UPDATE approval_workflows SET
			status = $2, levels = $3, current_index = $4, updated_at = $5
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		w.ID, w.Status.String(), levelsJSON, w.CurrentIndex, w.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update workflow: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("workflow %s: %w", w.ID, ErrNotFound)
	}
	return nil
}

// GetActiveByTender returns the tender's in-progress workflow, or nil when
// there is none.
func (r *WorkflowRepository) GetActiveByTender(ctx context.Context, tenderID uuid.UUID) (*approval.Workflow, error) {
	query := `
		SELECT id, tender_id, status, levels, current_index,
		       initiated_by, created_at, updated_at
		FROM approval_workflows
		WHERE tender_id = $1 AND status = 'in_progress'
	`

	var (
		w          approval.Workflow
		status     string
		levelsJSON []byte
	)

	err := r.db.QueryRow(ctx, query, tenderID).Scan(
		&w.ID, &w.TenderID, &status, &levelsJSON, &w.CurrentIndex,
		&w.InitiatedBy, &w.CreatedAt, &w.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query active workflow: %w", err)
	}

	w.Status, err = workflowStatusFromString(status)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(levelsJSON, &w.Levels); err != nil {
		return nil, fmt.Errorf("failed to unmarshal levels: %w", err)
	}

	return &w, nil
}

func workflowStatusFromString(s string) (approval.WorkflowStatus, error) {
	switch s {
	case "in_progress":
		return approval.WorkflowInProgress, nil
	case "completed":
		return approval.WorkflowCompleted, nil
	case "returned":
		return approval.WorkflowReturned, nil
	case "rejected":
		return approval.WorkflowRejected, nil
	default:
		return approval.WorkflowInProgress, fmt.Errorf("unknown workflow status %q", s)
	}
}
