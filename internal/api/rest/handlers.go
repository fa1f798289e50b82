package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	domainApproval "github.com/procuredesk/tender-evaluation-backend/internal/domain/approval"
	domainErrors "github.com/procuredesk/tender-evaluation-backend/internal/domain/errors"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/identity"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/scoring"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/tender"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
	"github.com/procuredesk/tender-evaluation-backend/internal/service/approval"
	"github.com/procuredesk/tender-evaluation-backend/internal/service/evaluation"
	"github.com/procuredesk/tender-evaluation-backend/internal/service/tenderflow"
)

// Services holds the service layer the REST API fronts.
type Services struct {
	Tenders    tenderflow.Service
	Evaluation evaluation.Service
	Approval   approval.Service
}

// Handler routes HTTP requests to the service layer.
type Handler struct {
	services Services
	logger   *slog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

// NewHandler creates the API handler.
func NewHandler(services Services, logger *slog.Logger) *Handler {
	return &Handler{
		services: services,
		logger:   logger,
		validate: validator.New(),
		tracer:   otel.Tracer("api.rest"),
	}
}

// RegisterRoutes wires every operation into the mux. Authentication is
// applied by the server around the whole API subtree.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/tenders", h.handleCreateTender)
	mux.HandleFunc("GET /api/v1/tenders/{id}", h.handleGetTender)
	mux.HandleFunc("POST /api/v1/tenders/{id}/publish", h.handlePublishTender)
	mux.HandleFunc("POST /api/v1/tenders/{id}/cancel", h.handleCancelTender)

	mux.HandleFunc("POST /api/v1/tenders/{id}/bids", h.handleSubmitBid)
	mux.HandleFunc("POST /api/v1/tenders/{id}/bids/open", h.handleOpenBids)
	mux.HandleFunc("POST /api/v1/tenders/{id}/bids/{bidID}/disqualify", h.handleDisqualifyBid)

	mux.HandleFunc("POST /api/v1/tenders/{id}/scores", h.handleSubmitScores)
	mux.HandleFunc("POST /api/v1/tenders/{id}/scores/lock", h.handleLockScores)
	mux.HandleFunc("POST /api/v1/tenders/{id}/commercial", h.handleCalculateCommercial)
	mux.HandleFunc("POST /api/v1/tenders/{id}/ranking", h.handleCalculateCombined)
	mux.HandleFunc("GET /api/v1/tenders/{id}/ranking", h.handleGetRanking)
	mux.HandleFunc("GET /api/v1/tenders/{id}/sensitivity", h.handleSensitivity)

	mux.HandleFunc("POST /api/v1/tenders/{id}/approval", h.handleInitiateApproval)
	mux.HandleFunc("POST /api/v1/tenders/{id}/approval/decision", h.handleDecide)
	mux.HandleFunc("GET /api/v1/tenders/{id}/approval", h.handleGetApproval)
}

func (h *Handler) handleCreateTender(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.create_tender")
	defer span.End()
	r = r.WithContext(ctx)

	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, domainErrors.NewForbiddenError("UNAUTHENTICATED", "authentication required"))
		return
	}

	var req createTenderRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	criteria := make([]tenderflow.CriterionRequest, len(req.Criteria))
	for i, c := range req.Criteria {
		criteria[i] = tenderflow.CriterionRequest{Name: c.Name, WeightPercentage: c.WeightPercentage}
	}

	t, err := h.services.Tenders.CreateTender(r.Context(), caller, &tenderflow.CreateTenderRequest{
		Reference:        req.Reference,
		Title:            req.Title,
		Currency:         req.Currency,
		TechnicalWeight:  req.TechnicalWeight,
		CommercialWeight: req.CommercialWeight,
		Schedule: tender.Schedule{
			IssueDate:             req.Schedule.IssueDate,
			ClarificationDeadline: req.Schedule.ClarificationDeadline,
			SubmissionDeadline:    req.Schedule.SubmissionDeadline,
			OpeningDate:           req.Schedule.OpeningDate,
		},
		Criteria:           criteria,
		MandatoryDocuments: req.MandatoryDocuments,
		EvaluatorIDs:       req.EvaluatorIDs,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *Handler) handleGetTender(w http.ResponseWriter, r *http.Request) {
	tenderID, err := h.pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.services.Tenders.GetTender(r.Context(), tenderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handlePublishTender(w http.ResponseWriter, r *http.Request) {
	h.tenderAction(w, r, h.services.Tenders.Publish)
}

func (h *Handler) handleCancelTender(w http.ResponseWriter, r *http.Request) {
	h.tenderAction(w, r, h.services.Tenders.Cancel)
}

func (h *Handler) handleSubmitBid(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.submit_bid")
	defer span.End()
	r = r.WithContext(ctx)

	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, domainErrors.NewForbiddenError("UNAUTHENTICATED", "authentication required"))
		return
	}
	tenderID, err := h.pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req submitBidRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	// Prices arrive as bare decimal strings in the tender's currency.
	t, err := h.services.Tenders.GetTender(r.Context(), tenderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	svcReq := &tenderflow.SubmitBidRequest{
		TenderID:      tenderID,
		ParticipantID: caller.ID,
		Documents:     req.Documents,
	}
	if svcReq.TotalAmount, err = values.NewMoneyFromString(req.TotalAmount, t.Currency); err != nil {
		writeError(w, r, h.logger, domainErrors.NewValidationError("INVALID_AMOUNT", err.Error()))
		return
	}
	if svcReq.ProvisionalSums, err = optionalMoney(req.ProvisionalSums, t.Currency); err != nil {
		writeError(w, r, h.logger, domainErrors.NewValidationError("INVALID_AMOUNT", err.Error()))
		return
	}
	if svcReq.Alternates, err = optionalMoney(req.Alternates, t.Currency); err != nil {
		writeError(w, r, h.logger, domainErrors.NewValidationError("INVALID_AMOUNT", err.Error()))
		return
	}

	b, err := h.services.Tenders.SubmitBid(r.Context(), caller, svcReq)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) handleOpenBids(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, domainErrors.NewForbiddenError("UNAUTHENTICATED", "authentication required"))
		return
	}
	tenderID, err := h.pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	bids, err := h.services.Tenders.OpenBids(r.Context(), caller, tenderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"bids": bids})
}

func (h *Handler) handleDisqualifyBid(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, domainErrors.NewForbiddenError("UNAUTHENTICATED", "authentication required"))
		return
	}
	tenderID, err := h.pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	bidID, err := h.pathUUID(r, "bidID")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req disqualifyBidRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	b, err := h.services.Tenders.DisqualifyBid(r.Context(), caller, tenderID, bidID, req.Reason)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *Handler) handleSubmitScores(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, domainErrors.NewForbiddenError("UNAUTHENTICATED", "authentication required"))
		return
	}
	tenderID, err := h.pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req submitScoresRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	entries := make([]evaluation.ScoreEntryInput, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = evaluation.ScoreEntryInput{
			CriterionID:   e.CriterionID,
			Score:         e.Score,
			Justification: e.Justification,
		}
	}

	saved, err := h.services.Evaluation.SubmitScores(r.Context(), caller, &evaluation.SubmitScoresRequest{
		TenderID:          tenderID,
		BidID:             req.BidID,
		Entries:           entries,
		IsFinalSubmission: req.IsFinalSubmission,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": saved})
}

func (h *Handler) handleLockScores(w http.ResponseWriter, r *http.Request) {
	h.tenderAction(w, r, h.services.Evaluation.LockScores)
}

func (h *Handler) handleCalculateCommercial(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, domainErrors.NewForbiddenError("UNAUTHENTICATED", "authentication required"))
		return
	}
	tenderID, err := h.pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req calculateCommercialRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	result, err := h.services.Evaluation.CalculateCommercial(r.Context(), caller, tenderID, scoring.CommercialFlags{
		IncludeProvisionalSums: req.IncludeProvisionalSums,
		IncludeAlternates:      req.IncludeAlternates,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleCalculateCombined(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, domainErrors.NewForbiddenError("UNAUTHENTICATED", "authentication required"))
		return
	}
	tenderID, err := h.pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.services.Evaluation.CalculateCombined(r.Context(), caller, tenderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleGetRanking(w http.ResponseWriter, r *http.Request) {
	tenderID, err := h.pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	result, err := h.services.Evaluation.GetRanking(r.Context(), tenderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleSensitivity(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, domainErrors.NewForbiddenError("UNAUTHENTICATED", "authentication required"))
		return
	}
	tenderID, err := h.pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	report, err := h.services.Evaluation.AnalyzeSensitivity(r.Context(), caller, tenderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) handleInitiateApproval(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, domainErrors.NewForbiddenError("UNAUTHENTICATED", "authentication required"))
		return
	}
	tenderID, err := h.pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req initiateApprovalRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	svcReq := &approval.InitiateRequest{TenderID: tenderID}
	for _, lvl := range req.Levels {
		svcReq.ApproverIDs = append(svcReq.ApproverIDs, lvl.ApproverID)
		svcReq.Deadlines = append(svcReq.Deadlines, lvl.Deadline)
	}

	wf, err := h.services.Approval.Initiate(r.Context(), caller, svcReq)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, domainErrors.NewForbiddenError("UNAUTHENTICATED", "authentication required"))
		return
	}
	tenderID, err := h.pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	var req decideRequest
	if err := h.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	decision, err := domainApproval.DecisionFromString(req.Decision)
	if err != nil {
		writeError(w, r, h.logger, domainErrors.NewValidationError("INVALID_DECISION", err.Error()))
		return
	}

	wf, err := h.services.Approval.Decide(r.Context(), caller, &approval.DecideRequest{
		TenderID: tenderID,
		Decision: decision,
		Comment:  req.Comment,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (h *Handler) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	tenderID, err := h.pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	wf, err := h.services.Approval.GetActive(r.Context(), tenderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if wf == nil {
		writeError(w, r, h.logger, domainErrors.NewNotFoundError("active approval workflow"))
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// tenderAction handles the lifecycle endpoints that take only a tender ID
// and return the updated tender.
func (h *Handler) tenderAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, caller identity.Caller, tenderID uuid.UUID) (*tender.Tender, error)) {
	caller, ok := CallerFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, domainErrors.NewForbiddenError("UNAUTHENTICATED", "authentication required"))
		return
	}
	tenderID, err := h.pathUUID(r, "id")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := action(r.Context(), caller, tenderID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) decodeAndValidate(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return domainErrors.NewValidationError("INVALID_BODY", "request body is not valid JSON")
	}
	if err := h.validate.Struct(dst); err != nil {
		return domainErrors.NewValidationError("INVALID_BODY", err.Error())
	}
	return nil
}

func (h *Handler) pathUUID(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(r.PathValue(name))
	if err != nil {
		return uuid.Nil, domainErrors.NewValidationError("INVALID_ID",
			fmt.Sprintf("path parameter %q is not a valid UUID", name))
	}
	return id, nil
}

func optionalMoney(amount, currency string) (values.Money, error) {
	if amount == "" {
		return values.Zero(currency), nil
	}
	return values.NewMoneyFromString(amount, currency)
}
