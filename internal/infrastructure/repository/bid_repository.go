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
	"github.com/shopspring/decimal"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/bid"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// BidRepository implements bid storage using PostgreSQL. All three price
// components share the bid's currency column.
type BidRepository struct {
	db *pgxpool.Pool
}

// NewBidRepository creates a new bid repository
func NewBidRepository(db *pgxpool.Pool) *BidRepository {
	return &BidRepository{db: db}
}

const bidColumns = `
	id, tender_id, participant_id, status, currency,
	total_amount, provisional_sums, alternates,
	documents, late,
	submitted_at, opened_at, disqualified_at, disqualify_reason,
	created_at, updated_at`

// Create stores a new bid
func (r *BidRepository) Create(ctx context.Context, b *bid.Bid) error {
	documentsJSON, err := json.Marshal(b.Documents)
	if err != nil {
		return fmt.Errorf("failed to marshal documents: %w", err)
	}

	query := `
		INSERT INTO bids (` + bidColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.Exec(ctx, query,
		b.ID, b.TenderID, b.ParticipantID, b.Status.String(), b.TotalAmount.Currency(),
		b.TotalAmount.Amount(), b.ProvisionalSums.Amount(), b.Alternates.Amount(),
		documentsJSON, b.Late,
		b.SubmittedAt, b.OpenedAt, b.DisqualifiedAt, b.DisqualifyReason,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if IsDuplicateKeyViolation(err) {
			return fmt.Errorf("bid by participant %s on tender %s: %w",
				b.ParticipantID, b.TenderID, ErrDuplicateKey)
		}
		if IsForeignKeyViolation(err) {
			return fmt.Errorf("tender %s: %w", b.TenderID, ErrForeignKey)
		}
		return fmt.Errorf("failed to create bid: %w", err)
	}
	return nil
}

// GetByID retrieves a bid by ID
func (r *BidRepository) GetByID(ctx context.Context, id uuid.UUID) (*bid.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE id = $1`
	b, err := scanBid(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetByTender returns every bid on a tender
func (r *BidRepository) GetByTender(ctx context.Context, tenderID uuid.UUID) ([]*bid.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids WHERE tender_id = $1 ORDER BY submitted_at`
	rows, err := r.db.Query(ctx, query, tenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query bids: %w", err)
	}
	defer rows.Close()

	var bids []*bid.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// Update modifies an existing bid
func (r *BidRepository) Update(ctx context.Context, b *bid.Bid) error {
	documentsJSON, err := json.Marshal(b.Documents)
	if err != nil {
		return fmt.Errorf("failed to marshal documents: %w", err)
	}

	b.UpdatedAt = time.Now()

	query := `
		UPDATE bids SET
			status = $2, documents = $3, late = $4,
			opened_at = $5, disqualified_at = $6, disqualify_reason = $7,
			updated_at = $8
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		b.ID, b.Status.String(), documentsJSON, b.Late,
		b.OpenedAt, b.DisqualifiedAt, b.DisqualifyReason, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update bid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("bid %s: %w", b.ID, ErrNotFound)
	}
	return nil
}

// OpenAll flips every submitted bid on the tender to opened in a single
// transaction, so the opening event is all-or-nothing, and returns the
// opened set. Calling it again when nothing is submitted returns the bids
// already opened, which makes the opening event idempotent.
func (r *BidRepository) OpenAll(ctx context.Context, tenderID uuid.UUID, openedAt time.Time) ([]*bid.Bid, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE bids SET status = 'opened', opened_at = $2, updated_at = $2
		WHERE tender_id = $1 AND status = 'submitted'
	`, tenderID, openedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to open bids: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT `+bidColumns+`
		FROM bids
		WHERE tender_id = $1 AND status IN ('opened', 'scored')
		ORDER BY submitted_at
	`, tenderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query opened bids: %w", err)
	}

	var opened []*bid.Bid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		opened = append(opened, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit bid opening: %w", err)
	}
	return opened, nil
}

func scanBid(row pgx.Row) (*bid.Bid, error) {
	var (
		b             bid.Bid
		status        string
		currency      string
		total         decimal.Decimal
		provisional   decimal.Decimal
		alternates    decimal.Decimal
		documentsJSON []byte
	)

	err := row.Scan(
		&b.ID, &b.TenderID, &b.ParticipantID, &status, &currency,
		&total, &provisional, &alternates,
		&documentsJSON, &b.Late,
		&b.SubmittedAt, &b.OpenedAt, &b.DisqualifiedAt, &b.DisqualifyReason,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("bid: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to scan bid: %w", err)
	}

	b.Status, err = bid.StatusFromString(status)
	if err != nil {
		return nil, err
	}
	if b.TotalAmount, err = values.NewMoney(total, currency); err != nil {
		return nil, fmt.Errorf("stored total amount invalid: %w", err)
	}
	if b.ProvisionalSums, err = values.NewMoney(provisional, currency); err != nil {
		return nil, fmt.Errorf("stored provisional sums invalid: %w", err)
	}
	if b.Alternates, err = values.NewMoney(alternates, currency); err != nil {
		return nil, fmt.Errorf("stored alternates invalid: %w", err)
	}
	if err := json.Unmarshal(documentsJSON, &b.Documents); err != nil {
		return nil, fmt.Errorf("failed to unmarshal documents: %w", err)
	}

	return &b, nil
}
