package bid

import (
	"time"

	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/errors"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// Bid is one participant's offer on a tender. Its price is invisible to
// every actor until the tender-wide opening event.
type Bid struct {
	ID            uuid.UUID `json:"id"`
	TenderID      uuid.UUID `json:"tender_id"`
	ParticipantID uuid.UUID `json:"participant_id"`
	Status        Status    `json:"status"`

	// Price in the bidder's native currency. Base amount plus the
	// optional components folded in by the commercial scoring flags.
	TotalAmount     values.Money `json:"total_amount"`
	ProvisionalSums values.Money `json:"provisional_sums"`
	Alternates      values.Money `json:"alternates"`

	// Storage references keyed by document type; the engine checks
	// presence only, never content.
	Documents map[string]DocumentRef `json:"documents"`

	// Late submissions are accepted but flagged, never silently dropped.
	Late bool `json:"late"`

	SubmittedAt   time.Time  `json:"submitted_at"`
	OpenedAt      *time.Time `json:"opened_at,omitempty"`
	DisqualifiedAt *time.Time `json:"disqualified_at,omitempty"`
	DisqualifyReason string   `json:"disqualify_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// DocumentRef points at an uploaded bid document in external storage.
type DocumentRef struct {
	Reference  string    `json:"reference"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Status int

const (
	StatusSubmitted Status = iota
	StatusOpened
	StatusScored
	StatusDisqualified
)

func (s Status) String() string {
	switch s {
	case StatusSubmitted:
		return "submitted"
	case StatusOpened:
		return "opened"
	case StatusScored:
		return "scored"
	case StatusDisqualified:
		return "disqualified"
	default:
		return "unknown"
	}
}

// StatusFromString parses a stored status string.
func StatusFromString(s string) (Status, error) {
	switch s {
	case "submitted":
		return StatusSubmitted, nil
	case "opened":
		return StatusOpened, nil
	case "scored":
		return StatusScored, nil
	case "disqualified":
		return StatusDisqualified, nil
	default:
		return StatusSubmitted, errors.NewInternalError("unknown bid status " + s)
	}
}

// NewBid creates a submitted bid.
func NewBid(tenderID, participantID uuid.UUID, total values.Money, submittedAt time.Time) *Bid {
	return &Bid{
		ID:            uuid.New(),
		TenderID:      tenderID,
		ParticipantID: participantID,
		Status:        StatusSubmitted,
		TotalAmount:   total,
		Documents:     make(map[string]DocumentRef),
		SubmittedAt:   submittedAt,
		CreatedAt:     submittedAt,
		UpdatedAt:     submittedAt,
	}
}

// AttachDocument records an uploaded document reference.
func (b *Bid) AttachDocument(docType string, ref DocumentRef) {
	if b.Documents == nil {
		b.Documents = make(map[string]DocumentRef)
	}
	b.Documents[docType] = ref
	b.UpdatedAt = time.Now()
}

// MissingDocuments returns the mandatory document types not yet uploaded.
func (b *Bid) MissingDocuments(mandatory []string) []string {
	var missing []string
	for _, dt := range mandatory {
		if _, ok := b.Documents[dt]; !ok {
			missing = append(missing, dt)
		}
	}
	return missing
}

// Open reveals the bid as part of the tender-wide opening event.
func (b *Bid) Open(now time.Time) error {
	if b.Status != StatusSubmitted {
		return errors.NewSequencingError("BID_NOT_SUBMITTED", "only submitted bids can be opened").
			WithCurrentState(b.Status.String())
	}
	b.Status = StatusOpened
	b.OpenedAt = &now
	b.UpdatedAt = now
	return nil
}

// MarkScored flags the bid once it carries a finalized technical score.
func (b *Bid) MarkScored(now time.Time) error {
	if b.Status != StatusOpened {
		return errors.NewSequencingError("BID_NOT_OPENED", "only opened bids can be marked scored").
			WithCurrentState(b.Status.String())
	}
	b.Status = StatusScored
	b.UpdatedAt = now
	return nil
}

// Disqualify removes the bid from scoring. Terminal for the bid.
func (b *Bid) Disqualify(reason string, now time.Time) error {
	if b.Status == StatusDisqualified {
		return errors.NewConflictError("BID_ALREADY_DISQUALIFIED", "bid is already disqualified")
	}
	b.Status = StatusDisqualified
	b.DisqualifiedAt = &now
	b.DisqualifyReason = reason
	b.UpdatedAt = now
	return nil
}

// IsOpened reports whether the bid's price has been revealed. Scored bids
// remain opened for price purposes.
func (b *Bid) IsOpened() bool {
	return b.Status == StatusOpened || b.Status == StatusScored
}

// ComparableTotal builds the figure used for commercial comparison. All
// bids in one tender must be compared with the same flag settings.
func (b *Bid) ComparableTotal(includeProvisionalSums, includeAlternates bool) (values.Money, error) {
	total := b.TotalAmount
	var err error
	if includeProvisionalSums && !b.ProvisionalSums.IsZero() {
		total, err = total.Add(b.ProvisionalSums)
		if err != nil {
			return values.Money{}, err
		}
	}
	if includeAlternates && !b.Alternates.IsZero() {
		total, err = total.Add(b.Alternates)
		if err != nil {
			return values.Money{}, err
		}
	}
	return total, nil
}
