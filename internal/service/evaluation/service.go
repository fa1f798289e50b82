package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/bid"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/errors"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/event"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/identity"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/scoring"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/tender"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
)

// service implements the Service interface
type service struct {
	tenderRepo  TenderRepository
	bidRepo     BidRepository
	scoreRepo   ScoreRepository
	projections ProjectionRepository
	cache       ReportCache
	publisher   event.Publisher
	clock       tender.Clock
	logger      *slog.Logger

	sensitivityStep int
	reportTTL       time.Duration
}

// NewService creates the scoring pipeline service
func NewService(
	tenderRepo TenderRepository,
	bidRepo BidRepository,
	scoreRepo ScoreRepository,
	projections ProjectionRepository,
	cache ReportCache,
	publisher event.Publisher,
	clock tender.Clock,
	logger *slog.Logger,
	opts ...Option,
) Service {
	if clock == nil {
		clock = tender.RealClock{}
	}
	if publisher == nil {
		publisher = event.NopPublisher{}
	}
	if cache == nil {
		cache = nopCache{}
	}
	s := &service{
		tenderRepo:      tenderRepo,
		bidRepo:         bidRepo,
		scoreRepo:       scoreRepo,
		projections:     projections,
		cache:           cache,
		publisher:       publisher,
		clock:           clock,
		logger:          logger,
		sensitivityStep: 10,
		reportTTL:       10 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Option tunes the scoring pipeline.
type Option func(*service)

// WithSensitivityStep sets the percentage-point step between sensitivity
// weight splits.
func WithSensitivityStep(step int) Option {
	return func(s *service) {
		if step > 0 {
			s.sensitivityStep = step
		}
	}
}

// WithReportTTL sets the TTL for cached ranking and sensitivity reports.
func WithReportTTL(ttl time.Duration) Option {
	return func(s *service) {
		if ttl > 0 {
			s.reportTTL = ttl
		}
	}
}

// nopCache disables report caching.
type nopCache struct{}

func (nopCache) Get(context.Context, string) ([]byte, bool)            { return nil, false }
func (nopCache) Set(context.Context, string, []byte, time.Duration)    {}
func (nopCache) Invalidate(context.Context, ...string)                 {}

func rankingCacheKey(tenderID uuid.UUID) string {
	return "ranking:" + tenderID.String()
}

func sensitivityCacheKey(tenderID uuid.UUID) string {
	return "sensitivity:" + tenderID.String()
}

// SubmitScores upserts the caller's marks for one bid. Writes are
// partitioned by evaluator, so concurrent panelists never contend; the
// tender-wide lock check makes a submission racing the lock either land
// fully before it or fail with ALREADY_LOCKED after it.
func (s *service) SubmitScores(ctx context.Context, caller identity.Caller, req *SubmitScoresRequest) ([]*scoring.TechnicalScoreEntry, error) {
	if !caller.Is(identity.RoleEvaluator) {
		return nil, errors.NewForbiddenError("ROLE_REQUIRED", "only an evaluator can submit scores")
	}

	t, err := s.tenderRepo.GetByID(ctx, req.TenderID)
	if err != nil {
		return nil, errors.NewNotFoundError("tender").WithCause(err)
	}
	if !t.HasEvaluator(caller.ID) {
		return nil, errors.NewForbiddenError("NOT_ON_PANEL", "caller is not on this tender's evaluation panel")
	}
	if t.ScoresLocked() {
		return nil, errors.NewAlreadyLockedError("technical scoring has been locked for this tender").
			WithCurrentState(t.Status.String())
	}

	b, err := s.bidRepo.GetByID(ctx, req.BidID)
	if err != nil {
		return nil, errors.NewNotFoundError("bid").WithCause(err)
	}
	if b.TenderID != t.ID {
		return nil, errors.NewNotFoundError("bid")
	}
	if !b.IsOpened() {
		return nil, errors.NewNotYetOpenedError("bid has not been opened yet").
			WithCurrentState(b.Status.String())
	}

	existing, err := s.scoreRepo.GetByBidEvaluator(ctx, b.ID, caller.ID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load existing scores").WithCause(err)
	}
	byCriterion := make(map[uuid.UUID]*scoring.TechnicalScoreEntry, len(existing))
	for _, e := range existing {
		byCriterion[e.CriterionID] = e
	}

	now := s.clock.Now()
	written := make([]*scoring.TechnicalScoreEntry, 0, len(req.Entries))
	for _, in := range req.Entries {
		if _, ok := t.CriterionByID(in.CriterionID); !ok {
			return nil, errors.NewUnknownCriterionError(
				fmt.Sprintf("criterion %s is not on this tender", in.CriterionID))
		}
		mark, err := values.NewScore(in.Score)
		if err != nil {
			return nil, errors.NewValidationError("SCORE_OUT_OF_RANGE", err.Error())
		}

		entry, ok := byCriterion[in.CriterionID]
		if ok {
			if err := entry.Revise(mark, in.Justification, req.IsFinalSubmission, now); err != nil {
				return nil, err
			}
		} else {
			entry, err = scoring.NewTechnicalScoreEntry(
				t.ID, b.ID, in.CriterionID, caller.ID, mark, in.Justification, req.IsFinalSubmission, now)
			if err != nil {
				return nil, err
			}
		}
		written = append(written, entry)
	}

	// Re-check the lock immediately before writing so a LockScores racing
	// this submission rejects it rather than interleaving partial rows.
	if t.ScoresLocked() {
		return nil, errors.NewAlreadyLockedError("technical scoring has been locked for this tender")
	}
	for _, entry := range written {
		if err := s.scoreRepo.Upsert(ctx, entry); err != nil {
			return nil, errors.NewInternalError("failed to store score entry").WithCause(err)
		}
	}

	s.cache.Invalidate(ctx, rankingCacheKey(t.ID), sensitivityCacheKey(t.ID))
	s.logger.InfoContext(ctx, "scores submitted",
		"tender_id", t.ID, "bid_id", b.ID, "evaluator_id", caller.ID,
		"entries", len(written), "final", req.IsFinalSubmission)
	return written, nil
}

// LockScores applies the irreversible tender-wide scoring lock. Every
// invited evaluator must have a final entry for every (bid, criterion)
// cell over the opened bids; otherwise INCOMPLETE_SCORING.
func (s *service) LockScores(ctx context.Context, caller identity.Caller, tenderID uuid.UUID) (*tender.Tender, error) {
	if !caller.Is(identity.RoleProcurementOfficer) {
		return nil, errors.NewForbiddenError("ROLE_REQUIRED", "only a procurement officer can lock scores")
	}

	t, err := s.tenderRepo.GetByID(ctx, tenderID)
	if err != nil {
		return nil, errors.NewNotFoundError("tender").WithCause(err)
	}
	if t.Status != tender.StatusEvaluation {
		return nil, errors.NewSequencingError("TENDER_NOT_IN_EVALUATION", "scores can only be locked during evaluation").
			WithCurrentState(t.Status.String())
	}

	bids, err := s.bidRepo.GetByTender(ctx, tenderID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load bids").WithCause(err)
	}
	var scorable []uuid.UUID
	for _, b := range bids {
		if b.IsOpened() {
			scorable = append(scorable, b.ID)
		}
	}
	if len(scorable) == 0 {
		return nil, errors.NewNoOpenedBidsError("no bid has been opened for this tender")
	}

	entries, err := s.scoreRepo.GetByTender(ctx, tenderID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load score entries").WithCause(err)
	}
	missing := scoring.MissingFinalEntries(scorable, t.Criteria, t.EvaluatorIDs, entries)
	if len(missing) > 0 {
		return nil, errors.NewIncompleteScoringError(
			fmt.Sprintf("%d (bid, criterion, evaluator) cells lack a final score", len(missing))).
			WithDetails(map[string]interface{}{"missing_cells": len(missing)})
	}

	now := s.clock.Now()
	if !t.TryLockScores(now) {
		return nil, errors.NewAlreadyLockedError("technical scoring has already been locked")
	}
	if err := s.tenderRepo.Update(ctx, t); err != nil {
		return nil, errors.NewInternalError("failed to store tender").WithCause(err)
	}

	// Opened bids now carry a finalized technical score.
	for _, b := range bids {
		if b.Status == bid.StatusOpened {
			if err := b.MarkScored(now); err == nil {
				if err := s.bidRepo.Update(ctx, b); err != nil {
					s.logger.WarnContext(ctx, "failed to mark bid scored", "bid_id", b.ID, "error", err)
				}
			}
		}
	}

	s.publisher.Publish(event.New(event.TypeScoresLocked, t.ID, caller.ID, map[string]interface{}{
		"bids": len(scorable),
	}))
	s.cache.Invalidate(ctx, rankingCacheKey(t.ID), sensitivityCacheKey(t.ID))
	s.logger.InfoContext(ctx, "scores locked", "tender_id", t.ID, "bids", len(scorable))
	return t, nil
}

// CalculateCommercial derives price scores for every opened bid. One flag
// setting applies to every bid in the tender.
func (s *service) CalculateCommercial(ctx context.Context, caller identity.Caller, tenderID uuid.UUID, flags scoring.CommercialFlags) (*scoring.CommercialResult, error) {
	if !caller.Is(identity.RoleProcurementOfficer) {
		return nil, errors.NewForbiddenError("ROLE_REQUIRED", "only a procurement officer can calculate commercial scores")
	}

	t, err := s.tenderRepo.GetByID(ctx, tenderID)
	if err != nil {
		return nil, errors.NewNotFoundError("tender").WithCause(err)
	}
	if frozen, err := s.rankingFrozen(ctx, tenderID); err != nil {
		return nil, err
	} else if frozen {
		return nil, errors.NewSequencingError("RANKING_FROZEN", "the ranking is frozen by an approval workflow")
	}

	bids, err := s.bidRepo.GetByTender(ctx, tenderID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load bids").WithCause(err)
	}

	now := s.clock.Now()
	scores, err := scoring.CalculateCommercialScores(bids, flags, now)
	if err != nil {
		return nil, err
	}

	result := &scoring.CommercialResult{
		TenderID:     t.ID,
		Flags:        flags,
		Scores:       scores,
		CalculatedAt: now,
	}
	if err := s.projections.SaveCommercial(ctx, result); err != nil {
		return nil, errors.NewInternalError("failed to store commercial scores").WithCause(err)
	}

	// A commercial recalculation stales any unfrozen ranking.
	if existing, err := s.projections.GetCombined(ctx, tenderID); err == nil && existing != nil && !existing.Frozen {
		if _, err := s.computeAndSaveCombined(ctx, t, result); err != nil {
			s.logger.WarnContext(ctx, "failed to refresh combined ranking", "tender_id", t.ID, "error", err)
		}
	}

	s.cache.Invalidate(ctx, rankingCacheKey(t.ID), sensitivityCacheKey(t.ID))
	s.logger.InfoContext(ctx, "commercial scores calculated",
		"tender_id", t.ID, "bids", len(scores),
		"provisional_sums", flags.IncludeProvisionalSums, "alternates", flags.IncludeAlternates)
	return result, nil
}

// CalculateCombined merges the locked technical aggregate with the stored
// commercial scores and ranks the bids.
func (s *service) CalculateCombined(ctx context.Context, caller identity.Caller, tenderID uuid.UUID) (*scoring.CombinedResult, error) {
	if !caller.Is(identity.RoleProcurementOfficer) {
		return nil, errors.NewForbiddenError("ROLE_REQUIRED", "only a procurement officer can calculate the ranking")
	}

	t, commercial, err := s.combinedPrerequisites(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	if frozen, err := s.rankingFrozen(ctx, tenderID); err != nil {
		return nil, err
	} else if frozen {
		return nil, errors.NewSequencingError("RANKING_FROZEN", "the ranking is frozen by an approval workflow")
	}

	result, err := s.computeAndSaveCombined(ctx, t, commercial)
	if err != nil {
		return nil, err
	}

	s.cache.Invalidate(ctx, rankingCacheKey(t.ID), sensitivityCacheKey(t.ID))
	s.logger.InfoContext(ctx, "combined ranking calculated", "tender_id", t.ID, "bids", len(result.Entries))
	return result, nil
}

// AnalyzeSensitivity reruns the ranking across the weight sweep. Purely
// derived and read-only; served from cache when fresh.
func (s *service) AnalyzeSensitivity(ctx context.Context, caller identity.Caller, tenderID uuid.UUID) (*scoring.SensitivityReport, error) {
	if !caller.Is(identity.RoleProcurementOfficer) && !caller.Is(identity.RoleApprover) {
		return nil, errors.NewForbiddenError("ROLE_REQUIRED", "only a procurement officer or approver can view the sensitivity report")
	}

	if body, ok := s.cache.Get(ctx, sensitivityCacheKey(tenderID)); ok {
		var report scoring.SensitivityReport
		if err := json.Unmarshal(body, &report); err == nil {
			return &report, nil
		}
	}

	t, commercial, err := s.combinedPrerequisites(ctx, tenderID)
	if err != nil {
		return nil, err
	}
	inputs, err := s.rankingInputs(ctx, t, commercial)
	if err != nil {
		return nil, err
	}

	report := scoring.Analyze(inputs, t.Weights, s.sensitivityStep)
	if body, err := json.Marshal(&report); err == nil {
		s.cache.Set(ctx, sensitivityCacheKey(tenderID), body, s.reportTTL)
	}

	s.logger.InfoContext(ctx, "sensitivity report computed",
		"tender_id", t.ID, "scenarios", len(report.Scenarios), "stable", report.Stable)
	return &report, nil
}

// GetRanking returns the stored combined ranking.
func (s *service) GetRanking(ctx context.Context, tenderID uuid.UUID) (*scoring.CombinedResult, error) {
	result, err := s.projections.GetCombined(ctx, tenderID)
	if err != nil {
		return nil, errors.NewNotFoundError("ranking").WithCause(err)
	}
	if result == nil {
		return nil, errors.NewNotFoundError("ranking")
	}
	return result, nil
}

// combinedPrerequisites enforces: technical scores locked and commercial
// scores calculated.
func (s *service) combinedPrerequisites(ctx context.Context, tenderID uuid.UUID) (*tender.Tender, *scoring.CommercialResult, error) {
	t, err := s.tenderRepo.GetByID(ctx, tenderID)
	if err != nil {
		return nil, nil, errors.NewNotFoundError("tender").WithCause(err)
	}
	if !t.ScoresLocked() {
		return nil, nil, errors.NewPrerequisiteNotMetError("technical scores are not locked").
			WithCurrentState(t.Status.String())
	}
	commercial, err := s.projections.GetCommercial(ctx, tenderID)
	if err != nil || commercial == nil {
		return nil, nil, errors.NewPrerequisiteNotMetError("commercial scores have not been calculated")
	}
	return t, commercial, nil
}

func (s *service) rankingFrozen(ctx context.Context, tenderID uuid.UUID) (bool, error) {
	existing, err := s.projections.GetCombined(ctx, tenderID)
	if err != nil || existing == nil {
		return false, nil
	}
	return existing.Frozen, nil
}

// rankingInputs assembles the per-bid streams the ranking and the
// sensitivity sweep both consume.
func (s *service) rankingInputs(ctx context.Context, t *tender.Tender, commercial *scoring.CommercialResult) ([]scoring.RankingInput, error) {
	bids, err := s.bidRepo.GetByTender(ctx, t.ID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load bids").WithCause(err)
	}
	entries, err := s.scoreRepo.GetByTender(ctx, t.ID)
	if err != nil {
		return nil, errors.NewInternalError("failed to load score entries").WithCause(err)
	}
	byBid := make(map[uuid.UUID][]*scoring.TechnicalScoreEntry)
	for _, e := range entries {
		byBid[e.BidID] = append(byBid[e.BidID], e)
	}

	var inputs []scoring.RankingInput
	for _, b := range bids {
		if !b.IsOpened() {
			continue
		}
		commScore, ok := commercial.ScoreFor(b.ID)
		if !ok {
			return nil, errors.NewPrerequisiteNotMetError(
				fmt.Sprintf("bid %s has no commercial score; recalculate commercial scores", b.ID))
		}
		inputs = append(inputs, scoring.RankingInput{
			BidID:           b.ID,
			TechnicalScore:  scoring.AggregateTechnical(byBid[b.ID], t.Criteria),
			CommercialScore: commScore.Score,
			ComparableTotal: commScore.ComparableTotal,
			SubmittedAt:     b.SubmittedAt,
		})
	}
	return inputs, nil
}

func (s *service) computeAndSaveCombined(ctx context.Context, t *tender.Tender, commercial *scoring.CommercialResult) (*scoring.CombinedResult, error) {
	inputs, err := s.rankingInputs(ctx, t, commercial)
	if err != nil {
		return nil, err
	}

	result := &scoring.CombinedResult{
		TenderID:     t.ID,
		Entries:      scoring.Rank(inputs, t.Weights),
		CalculatedAt: s.clock.Now(),
	}
	if err := s.projections.SaveCombined(ctx, result); err != nil {
		return nil, errors.NewInternalError("failed to store combined ranking").WithCause(err)
	}
	return result, nil
}
