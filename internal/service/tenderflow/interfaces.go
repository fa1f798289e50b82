package tenderflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/bid"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/identity"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/tender"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// Service drives the tender lifecycle and the bid submission/opening gate.
type Service interface {
	// CreateTender drafts a new tender with its criteria and panel.
	CreateTender(ctx context.Context, caller identity.Caller, req *CreateTenderRequest) (*tender.Tender, error)
	// Publish validates weights and schedule, then moves Draft -> Active.
	Publish(ctx context.Context, caller identity.Caller, tenderID uuid.UUID) (*tender.Tender, error)
	// SubmitBid records a bid while the submission window is open.
	SubmitBid(ctx context.Context, caller identity.Caller, req *SubmitBidRequest) (*bid.Bid, error)
	// OpenBids atomically reveals every submitted bid once the deadline
	// has passed and advances the tender to Evaluation. Idempotent.
	OpenBids(ctx context.Context, caller identity.Caller, tenderID uuid.UUID) ([]*bid.Bid, error)
	// DisqualifyBid removes a bid from scoring.
	DisqualifyBid(ctx context.Context, caller identity.Caller, tenderID, bidID uuid.UUID, reason string) (*bid.Bid, error)
	// Cancel terminates the tender from any non-terminal state.
	Cancel(ctx context.Context, caller identity.Caller, tenderID uuid.UUID) (*tender.Tender, error)
	// GetTender returns a tender by id.
	GetTender(ctx context.Context, tenderID uuid.UUID) (*tender.Tender, error)
}

// CreateTenderRequest drafts a tender.
type CreateTenderRequest struct {
	Reference          string
	Title              string
	Currency           string
	TechnicalWeight    int
	CommercialWeight   int
	Schedule           tender.Schedule
	Criteria           []CriterionRequest
	MandatoryDocuments []string
	EvaluatorIDs       []uuid.UUID
}

// CriterionRequest is one scoring criterion in a draft.
type CriterionRequest struct {
	Name             string
	WeightPercentage int
}

// SubmitBidRequest carries one participant's offer.
type SubmitBidRequest struct {
	TenderID        uuid.UUID
	ParticipantID   uuid.UUID
	TotalAmount     values.Money
	ProvisionalSums values.Money
	Alternates      values.Money
	Documents       map[string][]byte
}

// TenderRepository defines the interface for tender storage.
type TenderRepository interface {
	// Create stores a new tender
	Create(ctx context.Context, t *tender.Tender) error
	// GetByID retrieves a tender by ID
	GetByID(ctx context.Context, id uuid.UUID) (*tender.Tender, error)
	// Update modifies an existing tender
	Update(ctx context.Context, t *tender.Tender) error
}

// BidRepository defines the interface for bid storage.
type BidRepository interface {
	// Create stores a new bid
	Create(ctx context.Context, b *bid.Bid) error
	// GetByID retrieves a bid by ID
	GetByID(ctx context.Context, id uuid.UUID) (*bid.Bid, error)
	// Update modifies an existing bid
	Update(ctx context.Context, b *bid.Bid) error
	// GetByTender returns every bid on a tender
	GetByTender(ctx context.Context, tenderID uuid.UUID) ([]*bid.Bid, error)
	// OpenAll flips every submitted bid on the tender to opened as one
	// atomic set and returns the opened bids
	OpenAll(ctx context.Context, tenderID uuid.UUID, openedAt time.Time) ([]*bid.Bid, error)
}

// WorkflowInvalidator terminates any in-progress approval workflow when
// the tender is cancelled.
type WorkflowInvalidator interface {
	// InvalidateActive voids the tender's in-progress workflow, if any
	InvalidateActive(ctx context.Context, tenderID uuid.UUID, now time.Time) error
}

// DocumentStore is the external storage collaborator. The engine stores
// uploads and checks presence of required types, never content.
type DocumentStore interface {
	// Store persists bytes and returns an opaque reference
	Store(ctx context.Context, bidID uuid.UUID, documentType string, data []byte) (string, error)
	// Fetch retrieves previously stored bytes
	Fetch(ctx context.Context, reference string) ([]byte, error)
}
