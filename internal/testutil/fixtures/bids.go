package fixtures

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/bid"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// BidBuilder builds test Bid entities
type BidBuilder struct {
	t               *testing.T
	id              uuid.UUID
	tenderID        uuid.UUID
	participantID   uuid.UUID
	status          bid.Status
	totalAmount     values.Money
	provisionalSums values.Money
	alternates      values.Money
	documents       []string
	late            bool
	submittedAt     time.Time
}

// NewBidBuilder creates a new BidBuilder with defaults: a submitted bid of
// 100000 USD on a fresh tender.
func NewBidBuilder(t *testing.T, submittedAt time.Time) *BidBuilder {
	t.Helper()
	return &BidBuilder{
		t:             t,
		id:            uuid.New(),
		tenderID:      uuid.New(),
		participantID: uuid.New(),
		status:        bid.StatusSubmitted,
		totalAmount:   values.MustNewMoneyFromFloat(100000, values.USD),
		submittedAt:   submittedAt,
	}
}

// WithID sets the bid ID
func (b *BidBuilder) WithID(id uuid.UUID) *BidBuilder {
	b.id = id
	return b
}

// WithTenderID sets the owning tender
func (b *BidBuilder) WithTenderID(tenderID uuid.UUID) *BidBuilder {
	b.tenderID = tenderID
	return b
}

// WithParticipantID sets the submitting participant
func (b *BidBuilder) WithParticipantID(participantID uuid.UUID) *BidBuilder {
	b.participantID = participantID
	return b
}

// WithStatus sets the bid status
func (b *BidBuilder) WithStatus(status bid.Status) *BidBuilder {
	b.status = status
	return b
}

// WithTotal sets the base price
func (b *BidBuilder) WithTotal(amount float64, currency string) *BidBuilder {
	b.totalAmount = values.MustNewMoneyFromFloat(amount, currency)
	return b
}

// WithProvisionalSums sets the provisional sums component
func (b *BidBuilder) WithProvisionalSums(amount float64, currency string) *BidBuilder {
	b.provisionalSums = values.MustNewMoneyFromFloat(amount, currency)
	return b
}

// WithAlternates sets the alternates component
func (b *BidBuilder) WithAlternates(amount float64, currency string) *BidBuilder {
	b.alternates = values.MustNewMoneyFromFloat(amount, currency)
	return b
}

// WithDocuments attaches a stored reference for each document type
func (b *BidBuilder) WithDocuments(types ...string) *BidBuilder {
	b.documents = types
	return b
}

// WithLate flags the bid as a late submission
func (b *BidBuilder) WithLate() *BidBuilder {
	b.late = true
	return b
}

// WithSubmittedAt sets the submission timestamp
func (b *BidBuilder) WithSubmittedAt(at time.Time) *BidBuilder {
	b.submittedAt = at
	return b
}

// Build creates the Bid entity
func (b *BidBuilder) Build() *bid.Bid {
	built := &bid.Bid{
		ID:              b.id,
		TenderID:        b.tenderID,
		ParticipantID:   b.participantID,
		Status:          b.status,
		TotalAmount:     b.totalAmount,
		ProvisionalSums: b.provisionalSums,
		Alternates:      b.alternates,
		Documents:       make(map[string]bid.DocumentRef, len(b.documents)),
		Late:            b.late,
		SubmittedAt:     b.submittedAt,
		CreatedAt:       b.submittedAt,
		UpdatedAt:       b.submittedAt,
	}
	for _, dt := range b.documents {
		built.Documents[dt] = bid.DocumentRef{
			Reference:  b.id.String() + "/" + dt,
			UploadedAt: b.submittedAt,
		}
	}
	if b.status == bid.StatusOpened || b.status == bid.StatusScored {
		openedAt := b.submittedAt.Add(time.Hour)
		built.OpenedAt = &openedAt
	}
	return built
}
