package tenderflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/bid"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/errors"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/event"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/identity"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/tender"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// service implements the Service interface
type service struct {
	tenderRepo TenderRepository
	bidRepo    BidRepository
	documents  DocumentStore
	workflows  WorkflowInvalidator
	publisher  event.Publisher
	clock      tender.Clock
	logger     *slog.Logger

	// Minimum gap between clarification and submission deadlines.
	minClarificationGap time.Duration
}

// NewService creates a new tender lifecycle service
func NewService(
	tenderRepo TenderRepository,
	bidRepo BidRepository,
	documents DocumentStore,
	workflows WorkflowInvalidator,
	publisher event.Publisher,
	clock tender.Clock,
	logger *slog.Logger,
	minClarificationGap time.Duration,
) Service {
	if clock == nil {
		clock = tender.RealClock{}
	}
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	if minClarificationGap <= 0 {
		minClarificationGap = 5 * 24 * time.Hour
	}
	return &service{
		tenderRepo:          tenderRepo,
		bidRepo:             bidRepo,
		documents:           documents,
		workflows:           workflows,
		publisher:           publisher,
		clock:               clock,
		logger:              logger,
		minClarificationGap: minClarificationGap,
	}
}

// CreateTender drafts a new tender with its criteria and evaluator panel.
func (s *service) CreateTender(ctx context.Context, caller identity.Caller, req *CreateTenderRequest) (*tender.Tender, error) {
	if !caller.Is(identity.RoleProcurementOfficer) {
		return nil, errors.NewForbiddenError("ROLE_REQUIRED", "only a procurement officer can draft a tender")
	}

	weights, err := values.NewWeightSplit(req.TechnicalWeight, req.CommercialWeight)
	if err != nil {
		return nil, errors.NewInvalidWeightsError(err.Error())
	}

	t := tender.NewTender(req.Reference, req.Title, req.Currency, weights, req.Schedule)
	t.MandatoryDocuments = req.MandatoryDocuments
	t.EvaluatorIDs = req.EvaluatorIDs
	for _, c := range req.Criteria {
		if err := t.AddCriterion(c.Name, c.WeightPercentage); err != nil {
			return nil, err
		}
	}

	if err := s.tenderRepo.Create(ctx, t); err != nil {
		return nil, errors.NewInternalError("failed to store tender").WithCause(err)
	}

	s.logger.InfoContext(ctx, "tender drafted",
		"tender_id", t.ID, "reference", t.Reference, "criteria", len(t.Criteria))
	return t, nil
}

// Publish runs the validation gate and moves the tender Draft -> Active.
func (s *service) Publish(ctx context.Context, caller identity.Caller, tenderID uuid.UUID) (*tender.Tender, error) {
	if !caller.Is(identity.RoleProcurementOfficer) {
		return nil, errors.NewForbiddenError("ROLE_REQUIRED", "only a procurement officer can publish a tender")
	}

	t, err := s.tenderRepo.GetByID(ctx, tenderID)
	if err != nil {
		return nil, errors.NewNotFoundError("tender").WithCause(err)
	}

	now := s.clock.Now()
	if err := t.ValidateForPublish(now, s.minClarificationGap); err != nil {
		return nil, err
	}
	if err := t.Publish(now); err != nil {
		return nil, err
	}
	if err := s.tenderRepo.Update(ctx, t); err != nil {
		return nil, errors.NewInternalError("failed to store tender").WithCause(err)
	}

	s.publisher.Publish(event.New(event.TypeTenderPublished, t.ID, caller.ID, map[string]interface{}{
		"reference":           t.Reference,
		"submission_deadline": t.Schedule.SubmissionDeadline,
	}))
	s.logger.InfoContext(ctx, "tender published", "tender_id", t.ID, "reference", t.Reference)
	return t, nil
}

// SubmitBid records a bid. Submissions after the deadline are accepted but
// flagged late to preserve an auditable record; a bid missing mandatory
// documents is rejected.
func (s *service) SubmitBid(ctx context.Context, caller identity.Caller, req *SubmitBidRequest) (*bid.Bid, error) {
	if !caller.Is(identity.RoleBidder) {
		return nil, errors.NewForbiddenError("ROLE_REQUIRED", "only a bidder can submit a bid")
	}

	t, err := s.tenderRepo.GetByID(ctx, req.TenderID)
	if err != nil {
		return nil, errors.NewNotFoundError("tender").WithCause(err)
	}
	if t.Status != tender.StatusActive {
		return nil, errors.NewWindowClosedError("tender is not accepting bids").
			WithCurrentState(t.Status.String())
	}

	now := s.clock.Now()
	// Bids arriving after opening has become possible are refused outright;
	// between the submission deadline and opening they are flagged late.
	if !now.Before(t.Schedule.OpeningDate) {
		return nil, errors.NewWindowClosedError("the opening date has passed").
			WithCurrentState(t.Status.String())
	}

	var missing []string
	for _, dt := range t.MandatoryDocuments {
		if _, ok := req.Documents[dt]; !ok {
			missing = append(missing, dt)
		}
	}
	if len(missing) > 0 {
		return nil, errors.NewIncompleteSubmissionError(
			fmt.Sprintf("missing mandatory documents: %v", missing)).
			WithDetails(map[string]interface{}{"missing_documents": missing})
	}

	b := bid.NewBid(t.ID, req.ParticipantID, req.TotalAmount, now)
	b.ProvisionalSums = req.ProvisionalSums
	b.Alternates = req.Alternates
	b.Late = now.After(t.Schedule.SubmissionDeadline)

	for docType, data := range req.Documents {
		ref, err := s.documents.Store(ctx, b.ID, docType, data)
		if err != nil {
			return nil, errors.NewExternalError("document storage", err.Error()).WithCause(err)
		}
		b.AttachDocument(docType, bid.DocumentRef{Reference: ref, UploadedAt: now})
	}

	if err := s.bidRepo.Create(ctx, b); err != nil {
		return nil, errors.NewInternalError("failed to store bid").WithCause(err)
	}

	s.publisher.Publish(event.New(event.TypeBidSubmitted, t.ID, caller.ID, map[string]interface{}{
		"bid_id": b.ID,
		"late":   b.Late,
	}))
	s.logger.InfoContext(ctx, "bid submitted",
		"tender_id", t.ID, "bid_id", b.ID, "participant_id", b.ParticipantID, "late", b.Late)
	return b, nil
}

// OpenBids reveals every submitted bid as one atomic set and advances the
// tender to Evaluation. Calling it again on an already-opened tender is a
// no-op returning the existing opened set, to tolerate client retries.
func (s *service) OpenBids(ctx context.Context, caller identity.Caller, tenderID uuid.UUID) ([]*bid.Bid, error) {
	if !caller.Is(identity.RoleProcurementOfficer) {
		return nil, errors.NewForbiddenError("ROLE_REQUIRED", "only a procurement officer can open bids")
	}

	t, err := s.tenderRepo.GetByID(ctx, tenderID)
	if err != nil {
		return nil, errors.NewNotFoundError("tender").WithCause(err)
	}

	if t.Status == tender.StatusEvaluation {
		return s.openedBids(ctx, tenderID)
	}
	if t.Status != tender.StatusActive {
		return nil, errors.NewSequencingError("TENDER_NOT_ACTIVE", "bids can only be opened on an active tender").
			WithCurrentState(t.Status.String())
	}

	now := s.clock.Now()
	if now.Before(t.Schedule.SubmissionDeadline) {
		return nil, errors.NewTooEarlyError("submission deadline has not elapsed").
			WithDetails(map[string]interface{}{"submission_deadline": t.Schedule.SubmissionDeadline})
	}

	opened, err := s.bidRepo.OpenAll(ctx, tenderID, now)
	if err != nil {
		return nil, errors.NewInternalError("failed to open bids").WithCause(err)
	}

	if err := t.BeginEvaluation(now); err != nil {
		return nil, err
	}
	if err := s.tenderRepo.Update(ctx, t); err != nil {
		return nil, errors.NewInternalError("failed to store tender").WithCause(err)
	}

	s.publisher.Publish(event.New(event.TypeBidsOpened, t.ID, caller.ID, map[string]interface{}{
		"opened_count": len(opened),
	}))
	s.logger.InfoContext(ctx, "bids opened", "tender_id", t.ID, "count", len(opened))
	return opened, nil
}

func (s *service) openedBids(ctx context.Context, tenderID uuid.UUID) ([]*bid.Bid, error) {
	bids, err := s.bidRepo.GetByTender(ctx, tenderID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load bids").WithCause(err)
	}
	var opened []*bid.Bid
	for _, b := range bids {
		if b.IsOpened() {
			opened = append(opened, b)
		}
	}
	return opened, nil
}

// DisqualifyBid removes a bid from scoring.
func (s *service) DisqualifyBid(ctx context.Context, caller identity.Caller, tenderID, bidID uuid.UUID, reason string) (*bid.Bid, error) {
	if !caller.Is(identity.RoleProcurementOfficer) {
		return nil, errors.NewForbiddenError("ROLE_REQUIRED", "only a procurement officer can disqualify a bid")
	}

	b, err := s.bidRepo.GetByID(ctx, bidID)
	if err != nil {
		return nil, errors.NewNotFoundError("bid").WithCause(err)
	}
	if b.TenderID != tenderID {
		return nil, errors.NewNotFoundError("bid")
	}

	now := s.clock.Now()
	if err := b.Disqualify(reason, now); err != nil {
		return nil, err
	}
	if err := s.bidRepo.Update(ctx, b); err != nil {
		return nil, errors.NewInternalError("failed to store bid").WithCause(err)
	}

	s.publisher.Publish(event.New(event.TypeBidDisqualified, tenderID, caller.ID, map[string]interface{}{
		"bid_id": b.ID,
		"reason": reason,
	}))
	s.logger.InfoContext(ctx, "bid disqualified", "tender_id", tenderID, "bid_id", b.ID, "reason", reason)
	return b, nil
}

// Cancel terminates the tender. Permitted from any non-terminal state.
func (s *service) Cancel(ctx context.Context, caller identity.Caller, tenderID uuid.UUID) (*tender.Tender, error) {
	if !caller.Is(identity.RoleProcurementOfficer) {
		return nil, errors.NewForbiddenError("ROLE_REQUIRED", "only a procurement officer can cancel a tender")
	}

	t, err := s.tenderRepo.GetByID(ctx, tenderID)
	if err != nil {
		return nil, errors.NewNotFoundError("tender").WithCause(err)
	}

	now := s.clock.Now()
	if err := t.Cancel(now); err != nil {
		return nil, err
	}
	if err := s.tenderRepo.Update(ctx, t); err != nil {
		return nil, errors.NewInternalError("failed to store tender").WithCause(err)
	}

	// A cancelled tender voids any in-progress approval workflow.
	if s.workflows != nil {
		if err := s.workflows.InvalidateActive(ctx, t.ID, now); err != nil {
			s.logger.WarnContext(ctx, "failed to invalidate approval workflow",
				"tender_id", t.ID, "error", err)
		}
	}

	s.publisher.Publish(event.New(event.TypeTenderCancelled, t.ID, caller.ID, nil))
	s.logger.InfoContext(ctx, "tender cancelled", "tender_id", t.ID)
	return t, nil
}

// GetTender returns a tender by id.
func (s *service) GetTender(ctx context.Context, tenderID uuid.UUID) (*tender.Tender, error) {
	t, err := s.tenderRepo.GetByID(ctx, tenderID)
	if err != nil {
		return nil, errors.NewNotFoundError("tender").WithCause(err)
	}
	return t, nil
}
