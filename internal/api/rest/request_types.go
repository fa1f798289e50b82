package rest

import (
	"time"

	"github.com/google/uuid"
)

// createTenderRequest drafts a tender.
type createTenderRequest struct {
	Reference          string             `json:"reference" validate:"required,min=3,max=64"`
	Title              string             `json:"title" validate:"required,min=3,max=255"`
	Currency           string             `json:"currency" validate:"required,len=3"`
	TechnicalWeight    int                `json:"technical_weight" validate:"min=0,max=100"`
	CommercialWeight   int                `json:"commercial_weight" validate:"min=0,max=100"`
	Schedule           scheduleRequest    `json:"schedule" validate:"required"`
	Criteria           []criterionRequest `json:"criteria" validate:"required,min=1,dive"`
	MandatoryDocuments []string           `json:"mandatory_documents"`
	EvaluatorIDs       []uuid.UUID        `json:"evaluator_ids" validate:"required,min=1"`
}

type scheduleRequest struct {
	IssueDate             time.Time `json:"issue_date" validate:"required"`
	ClarificationDeadline time.Time `json:"clarification_deadline" validate:"required"`
	SubmissionDeadline    time.Time `json:"submission_deadline" validate:"required"`
	OpeningDate           time.Time `json:"opening_date" validate:"required"`
}

type criterionRequest struct {
	Name             string `json:"name" validate:"required,min=2,max=255"`
	WeightPercentage int    `json:"weight_percentage" validate:"required,min=1,max=100"`
}

// submitBidRequest carries one participant's offer. Document content is
// base64 in JSON, keyed by document type.
type submitBidRequest struct {
	TotalAmount     string            `json:"total_amount" validate:"required"`
	ProvisionalSums string            `json:"provisional_sums,omitempty"`
	Alternates      string            `json:"alternates,omitempty"`
	Documents       map[string][]byte `json:"documents"`
}

type disqualifyBidRequest struct {
	Reason string `json:"reason" validate:"required,min=3,max=1024"`
}

// submitScoresRequest carries one evaluator's marks for one bid.
type submitScoresRequest struct {
	BidID             uuid.UUID         `json:"bid_id" validate:"required"`
	Entries           []scoreEntryInput `json:"entries" validate:"required,min=1,dive"`
	IsFinalSubmission bool              `json:"is_final_submission"`
}

type scoreEntryInput struct {
	CriterionID   uuid.UUID `json:"criterion_id" validate:"required"`
	Score         float64   `json:"score" validate:"min=0,max=10"`
	Justification string    `json:"justification,omitempty" validate:"max=2048"`
}

type calculateCommercialRequest struct {
	IncludeProvisionalSums bool `json:"include_provisional_sums"`
	IncludeAlternates      bool `json:"include_alternates"`
}

// initiateApprovalRequest creates an approval chain, one level per entry,
// in decision order.
type initiateApprovalRequest struct {
	Levels []approvalLevelRequest `json:"levels" validate:"required,min=1,dive"`
}

type approvalLevelRequest struct {
	ApproverID uuid.UUID `json:"approver_id" validate:"required"`
	Deadline   time.Time `json:"deadline" validate:"required"`
}

type decideRequest struct {
	Decision string `json:"decision" validate:"required,oneof=approve return reject"`
	Comment  string `json:"comment,omitempty" validate:"max=2048"`
}
