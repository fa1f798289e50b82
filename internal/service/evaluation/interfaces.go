package evaluation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/bid"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/identity"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/scoring"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/tender"
)

// Service is the scoring pipeline: the technical ledger and its lock, the
// commercial engine, the combined ranking, and the sensitivity sweep.
type Service interface {
	// SubmitScores upserts one evaluator's marks for one bid.
	SubmitScores(ctx context.Context, caller identity.Caller, req *SubmitScoresRequest) ([]*scoring.TechnicalScoreEntry, error)
	// LockScores irreversibly freezes the ledger tender-wide.
	LockScores(ctx context.Context, caller identity.Caller, tenderID uuid.UUID) (*tender.Tender, error)
	// CalculateCommercial scores every opened bid from its price.
	CalculateCommercial(ctx context.Context, caller identity.Caller, tenderID uuid.UUID, flags scoring.CommercialFlags) (*scoring.CommercialResult, error)
	// CalculateCombined merges the two score streams into the ranking.
	CalculateCombined(ctx context.Context, caller identity.Caller, tenderID uuid.UUID) (*scoring.CombinedResult, error)
	// AnalyzeSensitivity reruns the ranking across alternate weight splits.
	AnalyzeSensitivity(ctx context.Context, caller identity.Caller, tenderID uuid.UUID) (*scoring.SensitivityReport, error)
	// GetRanking returns the stored combined ranking.
	GetRanking(ctx context.Context, tenderID uuid.UUID) (*scoring.CombinedResult, error)
}

// SubmitScoresRequest carries one evaluator's marks for one bid. The
// evaluator may revise their own entries until the tender-wide lock.
type SubmitScoresRequest struct {
	TenderID          uuid.UUID
	BidID             uuid.UUID
	Entries           []ScoreEntryInput
	IsFinalSubmission bool
}

// ScoreEntryInput is one (criterion, mark) pair.
type ScoreEntryInput struct {
	CriterionID   uuid.UUID
	Score         float64
	Justification string
}

// TenderRepository defines the tender storage surface the pipeline needs.
type TenderRepository interface {
	// GetByID retrieves a tender by ID
	GetByID(ctx context.Context, id uuid.UUID) (*tender.Tender, error)
	// Update modifies an existing tender
	Update(ctx context.Context, t *tender.Tender) error
}

// BidRepository defines the bid storage surface the pipeline needs.
type BidRepository interface {
	// GetByID retrieves a bid by ID
	GetByID(ctx context.Context, id uuid.UUID) (*bid.Bid, error)
	// GetByTender returns every bid on a tender
	GetByTender(ctx context.Context, tenderID uuid.UUID) ([]*bid.Bid, error)
	// Update modifies an existing bid
	Update(ctx context.Context, b *bid.Bid) error
}

// ScoreRepository stores technical ledger entries partitioned by the
// (bid, criterion, evaluator) composite key.
type ScoreRepository interface {
	// Upsert writes an entry, replacing the evaluator's previous mark
	// for the same (bid, criterion) cell
	Upsert(ctx context.Context, entry *scoring.TechnicalScoreEntry) error
	// GetByTender returns every entry for a tender
	GetByTender(ctx context.Context, tenderID uuid.UUID) ([]*scoring.TechnicalScoreEntry, error)
	// GetByBid returns every entry for one bid
	GetByBid(ctx context.Context, bidID uuid.UUID) ([]*scoring.TechnicalScoreEntry, error)
	// GetByBidEvaluator returns one evaluator's entries for one bid
	GetByBidEvaluator(ctx context.Context, bidID, evaluatorID uuid.UUID) ([]*scoring.TechnicalScoreEntry, error)
}

// ProjectionRepository stores the derived commercial and combined results.
// Projections are cached, recomputable, and never the source of truth.
type ProjectionRepository interface {
	// SaveCommercial stores the commercial calculation for a tender
	SaveCommercial(ctx context.Context, result *scoring.CommercialResult) error
	// GetCommercial returns the stored commercial calculation
	GetCommercial(ctx context.Context, tenderID uuid.UUID) (*scoring.CommercialResult, error)
	// SaveCombined stores the ranking for a tender
	SaveCombined(ctx context.Context, result *scoring.CombinedResult) error
	// GetCombined returns the stored ranking
	GetCombined(ctx context.Context, tenderID uuid.UUID) (*scoring.CombinedResult, error)
	// FreezeCombined marks the ranking immutable once approval starts
	FreezeCombined(ctx context.Context, tenderID uuid.UUID) error
}

// ReportCache is a read-side cache for derived reports.
type ReportCache interface {
	// Get returns a cached report body
	Get(ctx context.Context, key string) ([]byte, bool)
	// Set stores a report body with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	// Invalidate drops cached reports
	Invalidate(ctx context.Context, keys ...string)
}
