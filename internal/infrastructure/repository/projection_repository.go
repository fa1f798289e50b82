package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/scoring"
)

// ProjectionRepository stores the derived commercial and combined results
// as one JSONB document per tender. Projections are recomputable from the
// ledger and bid prices; the rows exist so the prerequisite chain and the
// approval freeze survive restarts.
type ProjectionRepository struct {
	db *pgxpool.Pool
}

// NewProjectionRepository creates a new projection repository
func NewProjectionRepository(db *pgxpool.Pool) *ProjectionRepository {
	return &ProjectionRepository{db: db}
}

// SaveCommercial stores the commercial calculation for a tender
func (r *ProjectionRepository) SaveCommercial(ctx context.Context, result *scoring.CommercialResult) error {
	return r.save(ctx, "commercial", result.TenderID, result, false)
}

// GetCommercial returns the stored commercial calculation
func (r *ProjectionRepository) GetCommercial(ctx context.Context, tenderID uuid.UUID) (*scoring.CommercialResult, error) {
	var result scoring.CommercialResult
	if err := r.load(ctx, "commercial", tenderID, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SaveCombined stores the ranking for a tender. A frozen ranking refuses
// further writes at the storage layer as a final backstop.
func (r *ProjectionRepository) SaveCombined(ctx context.Context, result *scoring.CombinedResult) error {
	return r.save(ctx, "combined", result.TenderID, result, result.Frozen)
}

// GetCombined returns the stored ranking
func (r *ProjectionRepository) GetCombined(ctx context.Context, tenderID uuid.UUID) (*scoring.CombinedResult, error) {
	var result scoring.CombinedResult
	if err := r.load(ctx, "combined", tenderID, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// FreezeCombined marks the ranking immutable once approval starts.
func (r *ProjectionRepository) FreezeCombined(ctx context.Context, tenderID uuid.UUID) error {
	query := `
		UPDATE score_projections
		SET frozen = TRUE,
		    body = jsonb_set(body, '{frozen}', 'true'),
		    updated_at = NOW()
		WHERE tender_id = $1 AND kind = 'combined'
	`
	tag, err := r.db.Exec(ctx, query, tenderID)
	if err != nil {
		return fmt.Errorf("failed to freeze ranking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("ranking for tender %s: %w", tenderID, ErrNotFound)
	}
	return nil
}

func (r *ProjectionRepository) save(ctx context.Context, kind string, tenderID uuid.UUID, body any, frozen bool) error {
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal %s projection: %w", kind, err)
	}

	// An already-frozen combined row is never overwritten.
	query := `
		INSERT INTO score_projections (tender_id, kind, body, frozen, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (tender_id, kind) DO UPDATE SET
			body = EXCLUDED.body,
			frozen = EXCLUDED.frozen,
			updated_at = NOW()
		WHERE score_projections.frozen = FALSE
	`

	tag, err := r.db.Exec(ctx, query, tenderID, kind, bodyJSON, frozen)
	if err != nil {
		return fmt.Errorf("failed to save %s projection: %w", kind, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s projection for tender %s is frozen", kind, tenderID)
	}
	return nil
}

func (r *ProjectionRepository) load(ctx context.Context, kind string, tenderID uuid.UUID, dst any) error {
	var bodyJSON []byte
	err := r.db.QueryRow(ctx,
		`SELECT body FROM score_projections WHERE tender_id = $1 AND kind = $2`,
		tenderID, kind,
	).Scan(&bodyJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%s projection: %w", kind, ErrNotFound)
		}
		return fmt.Errorf("failed to load %s projection: %w", kind, err)
	}
	if err := json.Unmarshal(bodyJSON, dst); err != nil {
		return fmt.Errorf("failed to unmarshal %s projection: %w", kind, err)
	}
	return nil
}
