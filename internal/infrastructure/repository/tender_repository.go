package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/tender"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// TenderRepository implements tender storage using PostgreSQL. Criteria,
// mandatory documents, and the evaluator panel live as JSONB on the tender
// row because they are owned by the aggregate and never queried alone.
type TenderRepository struct {
	db *pgxpool.Pool
}

// NewTenderRepository creates a new tender repository
func NewTenderRepository(db *pgxpool.Pool) *TenderRepository {
	return &TenderRepository{db: db}
}

// Create stores a new tender
func (r *TenderRepository) Create(ctx context.Context, t *tender.Tender) error {
	criteriaJSON, mandatoryJSON, evaluatorsJSON, err := marshalTenderFields(t)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tenders (
			id, reference, title, status, currency,
			weight_technical, weight_commercial,
			issue_date, clarification_deadline, submission_deadline, opening_date,
			criteria, mandatory_documents, evaluator_ids,
			scores_locked, scores_locked_at,
			published_at, awarded_at, cancelled_at, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15, $16, $17, $18, $19, $20, $21
		)
	`

	_, err = r.db.Exec(ctx, query,
		t.ID, t.Reference, t.Title, t.Status.String(), t.Currency,
		t.Weights.Technical(), t.Weights.Commercial(),
		t.Schedule.IssueDate, t.Schedule.ClarificationDeadline,
		t.Schedule.SubmissionDeadline, t.Schedule.OpeningDate,
		criteriaJSON, mandatoryJSON, evaluatorsJSON,
		t.ScoresLocked(), t.ScoresLockedAt,
		t.PublishedAt, t.AwardedAt, t.CancelledAt, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return fmt.Errorf("tender %s: %w", t.Reference, ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create tender: %w", err)
	}
	return nil
}

// GetByID retrieves a tender by ID
func (r *TenderRepository) GetByID(ctx context.Context, id uuid.UUID) (*tender.Tender, error) {
	query := `
		SELECT id, reference, title, status, currency,
		       weight_technical, weight_commercial,
		       issue_date, clarification_deadline, submission_deadline, opening_date,
		       criteria, mandatory_documents, evaluator_ids,
		       scores_locked, scores_locked_at,
		       published_at, awarded_at, cancelled_at, created_at, updated_at
		FROM tenders
		WHERE id = $1
	`
	return r.scanTender(r.db.QueryRow(ctx, query, id))
}

// Update modifies an existing tender, guarded by updated_at so a stale
// aggregate never overwrites a newer row.
func (r *TenderRepository) Update(ctx context.Context, t *tender.Tender) error {
	criteriaJSON, mandatoryJSON, evaluatorsJSON, err := marshalTenderFields(t)
	if err != nil {
		return err
	}

	previousUpdatedAt := t.UpdatedAt
	t.UpdatedAt = time.Now()

	query := `
		UPDATE tenders SET
			title = $2, status = $3,
			criteria = $4, mandatory_documents = $5, evaluator_ids = $6,
			scores_locked = $7, scores_locked_at = $8,
			published_at = $9, awarded_at = $10, cancelled_at = $11,
			updated_at = $12
		WHERE id = $1 AND updated_at = $13
	`

	tag, err := r.db.Exec(ctx, query,
		t.ID, t.Title, t.Status.String(),
		criteriaJSON, mandatoryJSON, evaluatorsJSON,
		t.ScoresLocked(), t.ScoresLockedAt,
		t.PublishedAt, t.AwardedAt, t.CancelledAt,
		t.UpdatedAt, previousUpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update tender: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tender %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

func (r *TenderRepository) scanTender(row pgx.Row) (*tender.Tender, error) {
	var (
		t              tender.Tender
		status         string
		weightTech     int
		weightComm     int
		criteriaJSON   []byte
		mandatoryJSON  []byte
		evaluatorsJSON []byte
		scoresLocked   bool
	)

	err := row.Scan(
		&t.ID, &t.Reference, &t.Title, &status, &t.Currency,
		&weightTech, &weightComm,
		&t.Schedule.IssueDate, &t.Schedule.ClarificationDeadline,
		&t.Schedule.SubmissionDeadline, &t.Schedule.OpeningDate,
		&criteriaJSON, &mandatoryJSON, &evaluatorsJSON,
		&scoresLocked, &t.ScoresLockedAt,
		&t.PublishedAt, &t.AwardedAt, &t.CancelledAt, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tender: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan tender: %w", err)
	}

	t.Status, err = tender.StatusFromString(status)
	if err != nil {
		return nil, err
	}
	t.Weights, err = values.NewWeightSplit(weightTech, weightComm)
	if err != nil {
		return nil, fmt.Errorf("stored weight split invalid: %w", err)
	}
	if err := json.Unmarshal(criteriaJSON, &t.Criteria); err != nil {
		return nil, fmt.Errorf("failed to unmarshal criteria: %w", err)
	}
	if err := json.Unmarshal(mandatoryJSON, &t.MandatoryDocuments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal mandatory documents: %w", err)
	}
	if err := json.Unmarshal(evaluatorsJSON, &t.EvaluatorIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal evaluator panel: %w", err)
	}
	t.RestoreLockState(scoresLocked, t.ScoresLockedAt)

	return &t, nil
}

func marshalTenderFields(t *tender.Tender) (criteria, mandatory, evaluators []byte, err error) {
	criteria, err = json.Marshal(t.Criteria)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal criteria: %w", err)
	}
	mandatory, err = json.Marshal(t.MandatoryDocuments)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal mandatory documents: %w", err)
	}
	evaluators, err = json.Marshal(t.EvaluatorIDs)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal evaluator panel: %w", err)
	}
	return criteria, mandatory, evaluators, nil
}
