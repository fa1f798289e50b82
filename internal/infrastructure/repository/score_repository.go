package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/scoring"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// ScoreRepository stores the technical score ledger in PostgreSQL. The
// unique index on (bid_id, criterion_id, evaluator_id) is the composite
// partition key: one evaluator, one criterion, one bid, one row.
type ScoreRepository struct {
	db *pgxpool.Pool
}

// NewScoreRepository creates a new score repository
func NewScoreRepository(db *pgxpool.Pool) *ScoreRepository {
	return &ScoreRepository{db: db}
}

const scoreColumns = `
	id, tender_id, bid_id, criterion_id, evaluator_id,
	score, justification, is_final, submitted_at, updated_at`

// Upsert writes an entry, replacing the evaluator's previous mark for the
// same (bid, criterion) cell.
func (r *ScoreRepository) Upsert(ctx context.Context, entry *scoring.TechnicalScoreEntry) error {
	query := `
		INSERT INTO technical_scores (` + scoreColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (bid_id, criterion_id, evaluator_id) DO UPDATE SET
			score = EXCLUDED.score,
			justification = EXCLUDED.justification,
			is_final = EXCLUDED.is_final,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Exec(ctx, query,
		entry.ID, entry.TenderID, entry.BidID, entry.CriterionID, entry.EvaluatorID,
		entry.Score.Value(), entry.Justification, entry.IsFinal,
		entry.SubmittedAt, entry.UpdatedAt,
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("bid %s: %w", entry.BidID, ErrForeignKey)
		}
		return fmt.Errorf("failed to upsert technical score: %w", err)
	}
	return nil
}

// GetByTender returns every entry for a tender
func (r *ScoreRepository) GetByTender(ctx context.Context, tenderID uuid.UUID) ([]*scoring.TechnicalScoreEntry, error) {
	query := `SELECT ` + scoreColumns + ` FROM technical_scores WHERE tender_id = $1`
	return r.queryEntries(ctx, query, tenderID)
}

// GetByBid returns every entry for one bid
func (r *ScoreRepository) GetByBid(ctx context.Context, bidID uuid.UUID) ([]*scoring.TechnicalScoreEntry, error) {
	query := `SELECT ` + scoreColumns + ` FROM technical_scores WHERE bid_id = $1`
	return r.queryEntries(ctx, query, bidID)
}

// GetByBidEvaluator returns one evaluator's entries for one bid
func (r *ScoreRepository) GetByBidEvaluator(ctx context.Context, bidID, evaluatorID uuid.UUID) ([]*scoring.TechnicalScoreEntry, error) {
	query := `SELECT ` + scoreColumns + ` FROM technical_scores WHERE bid_id = $1 AND evaluator_id = $2`
	return r.queryEntries(ctx, query, bidID, evaluatorID)
}

func (r *ScoreRepository) queryEntries(ctx context.Context, query string, args ...any) ([]*scoring.TechnicalScoreEntry, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query technical scores: %w", err)
	}
	defer rows.Close()

	var entries []*scoring.TechnicalScoreEntry
	for rows.Next() {
		e, err := scanScoreEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanScoreEntry(row pgx.Row) (*scoring.TechnicalScoreEntry, error) {
	var (
		e     scoring.TechnicalScoreEntry
		score float64
	)

	err := row.Scan(
		&e.ID, &e.TenderID, &e.BidID, &e.CriterionID, &e.EvaluatorID,
		&score, &e.Justification, &e.IsFinal, &e.SubmittedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan technical score: %w", err)
	}

	e.Score, err = values.NewScore(score)
	if err != nil {
		return nil, fmt.Errorf("stored score invalid: %w", err)
	}
	return &e, nil
}
