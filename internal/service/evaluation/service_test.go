package evaluation

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/bid"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/errors"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/event"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/identity"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/scoring"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/tender"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
	"github.com/procuredesk/tender-evaluation-backend/internal/testutil"
	"github.com/procuredesk/tender-evaluation-backend/internal/testutil/fixtures"
)

var evalNow = time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)

type pipelineEnv struct {
	svc         Service
	tenders     *testutil.TenderStore
	bids        *testutil.BidStore
	scores      *testutil.ScoreStore
	projections *testutil.ProjectionStore
	cache       *testutil.MemoryCache
	publisher   *testutil.CapturePublisher
	clock       *tender.MockClock

	tender     *tender.Tender
	evaluator  identity.Caller
	criteria   [2]uuid.UUID
	openedBids [3]*bid.Bid
}

// newPipelineEnv seeds a tender under evaluation with two criteria
// weighted 60/40, one invited evaluator, and three opened bids priced
// 100000, 120000, and 150000 USD.
func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()

	env := &pipelineEnv{
		scores:      testutil.NewScoreStore(),
		projections: testutil.NewProjectionStore(),
		cache:       testutil.NewMemoryCache(),
		publisher:   testutil.NewCapturePublisher(),
		clock:       &tender.MockClock{CurrentTime: evalNow},
		evaluator:   identity.Caller{ID: uuid.New(), Role: identity.RoleEvaluator},
	}

	env.tender = fixtures.NewTenderBuilder(t, evalNow.Add(-20*24*time.Hour)).
		WithStatus(tender.StatusEvaluation).
		WithWeights(70, 30).
		WithCriterion("Methodology", 60, &env.criteria[0]).
		WithCriterion("Team experience", 40, &env.criteria[1]).
		WithEvaluators(env.evaluator.ID).
		Build()
	env.tenders = testutil.NewTenderStore(env.tender)

	prices := []float64{100000, 120000, 150000}
	var seeded []*bid.Bid
	for i, price := range prices {
		b := fixtures.NewBidBuilder(t, evalNow.Add(time.Duration(i-6)*24*time.Hour)).
			WithTenderID(env.tender.ID).
			WithStatus(bid.StatusOpened).
			WithTotal(price, "USD").
			Build()
		env.openedBids[i] = b
		seeded = append(seeded, b)
	}
	env.bids = testutil.NewBidStore(seeded...)

	env.svc = NewService(env.tenders, env.bids, env.scores, env.projections,
		env.cache, env.publisher, env.clock,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return env
}

func scoringOfficer() identity.Caller {
	return identity.Caller{ID: uuid.New(), Role: identity.RoleProcurementOfficer}
}

// scoreBid submits the same final mark on both criteria for one bid.
func (env *pipelineEnv) scoreBid(t *testing.T, b *bid.Bid, mark float64) {
	t.Helper()
	justification := ""
	if mark < 3 || mark > 8 {
		justification = "exceptional submission, see panel notes"
	}
	_, err := env.svc.SubmitScores(context.Background(), env.evaluator, &SubmitScoresRequest{
		TenderID: env.tender.ID,
		BidID:    b.ID,
		Entries: []ScoreEntryInput{
			{CriterionID: env.criteria[0], Score: mark, Justification: justification},
			{CriterionID: env.criteria[1], Score: mark, Justification: justification},
		},
		IsFinalSubmission: true,
	})
	require.NoError(t, err)
}

// scoreAndLock completes the ledger with marks 8, 9, 6 and applies the lock.
func (env *pipelineEnv) scoreAndLock(t *testing.T) {
	t.Helper()
	env.scoreBid(t, env.openedBids[0], 8)
	env.scoreBid(t, env.openedBids[1], 9)
	env.scoreBid(t, env.openedBids[2], 6)
	_, err := env.svc.LockScores(context.Background(), scoringOfficer(), env.tender.ID)
	require.NoError(t, err)
}

func TestSubmitScores(t *testing.T) {
	t.Run("guard rails", func(t *testing.T) {
		env := newPipelineEnv(t)
		target := env.openedBids[0]

		validEntries := []ScoreEntryInput{{CriterionID: env.criteria[0], Score: 7}}

		tests := []struct {
			name     string
			caller   identity.Caller
			req      *SubmitScoresRequest
			wantCode string
		}{
			{
				name:     "officer cannot score",
				caller:   scoringOfficer(),
				req:      &SubmitScoresRequest{TenderID: env.tender.ID, BidID: target.ID, Entries: validEntries},
				wantCode: "ROLE_REQUIRED",
			},
			{
				name:     "uninvited evaluator",
				caller:   identity.Caller{ID: uuid.New(), Role: identity.RoleEvaluator},
				req:      &SubmitScoresRequest{TenderID: env.tender.ID, BidID: target.ID, Entries: validEntries},
				wantCode: "NOT_ON_PANEL",
			},
			{
				name:   "unknown criterion",
				caller: env.evaluator,
				req: &SubmitScoresRequest{TenderID: env.tender.ID, BidID: target.ID,
					Entries: []ScoreEntryInput{{CriterionID: uuid.New(), Score: 7}}},
				wantCode: "UNKNOWN_CRITERION",
			},
			{
				name:   "mark out of range",
				caller: env.evaluator,
				req: &SubmitScoresRequest{TenderID: env.tender.ID, BidID: target.ID,
					Entries: []ScoreEntryInput{{CriterionID: env.criteria[0], Score: 10.5}}},
				wantCode: "SCORE_OUT_OF_RANGE",
			},
			{
				name:   "outside the safe band without justification",
				caller: env.evaluator,
				req: &SubmitScoresRequest{TenderID: env.tender.ID, BidID: target.ID,
					Entries: []ScoreEntryInput{{CriterionID: env.criteria[0], Score: 9.5}}},
				wantCode: "MISSING_JUSTIFICATION",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := env.svc.SubmitScores(context.Background(), tt.caller, tt.req)
				assert.True(t, errors.IsCode(err, tt.wantCode), "expected %s, got %v", tt.wantCode, err)
			})
		}
	})

	t.Run("unopened bid", func(t *testing.T) {
		env := newPipelineEnv(t)
		sealed := fixtures.NewBidBuilder(t, evalNow.Add(-time.Hour)).
			WithTenderID(env.tender.ID).
			Build()
		require.NoError(t, env.bids.Create(context.Background(), sealed))

		_, err := env.svc.SubmitScores(context.Background(), env.evaluator, &SubmitScoresRequest{
			TenderID: env.tender.ID,
			BidID:    sealed.ID,
			Entries:  []ScoreEntryInput{{CriterionID: env.criteria[0], Score: 7}},
		})
		assert.True(t, errors.IsCode(err, "NOT_YET_OPENED"))
	})

	t.Run("revision replaces the evaluator's own entry", func(t *testing.T) {
		env := newPipelineEnv(t)
		target := env.openedBids[0]

		first, err := env.svc.SubmitScores(context.Background(), env.evaluator, &SubmitScoresRequest{
			TenderID: env.tender.ID,
			BidID:    target.ID,
			Entries:  []ScoreEntryInput{{CriterionID: env.criteria[0], Score: 6}},
		})
		require.NoError(t, err)
		require.Len(t, first, 1)

		revised, err := env.svc.SubmitScores(context.Background(), env.evaluator, &SubmitScoresRequest{
			TenderID:          env.tender.ID,
			BidID:             target.ID,
			Entries:           []ScoreEntryInput{{CriterionID: env.criteria[0], Score: 7.5}},
			IsFinalSubmission: true,
		})
		require.NoError(t, err)
		require.Len(t, revised, 1)
		assert.Equal(t, first[0].ID, revised[0].ID, "revision keeps the entry's identity")

		stored, err := env.scores.GetByBidEvaluator(context.Background(), target.ID, env.evaluator.ID)
		require.NoError(t, err)
		require.Len(t, stored, 1)
		assert.Equal(t, 7.5, stored[0].Score.Float64())
		assert.True(t, stored[0].IsFinal)
	})

	t.Run("locked tender rejects submissions", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.scoreAndLock(t)

		_, err := env.svc.SubmitScores(context.Background(), env.evaluator, &SubmitScoresRequest{
			TenderID: env.tender.ID,
			BidID:    env.openedBids[0].ID,
			Entries:  []ScoreEntryInput{{CriterionID: env.criteria[0], Score: 5}},
		})
		assert.True(t, errors.IsCode(err, "ALREADY_LOCKED"))
	})

	t.Run("invalidates cached reports", func(t *testing.T) {
		env := newPipelineEnv(t)
		key := "ranking:" + env.tender.ID.String()
		env.cache.Set(context.Background(), key, []byte("stale"), time.Minute)

		env.scoreBid(t, env.openedBids[0], 7)

		_, ok := env.cache.Get(context.Background(), key)
		assert.False(t, ok, "a score write must drop derived reports")
	})
}

func TestLockScores(t *testing.T) {
	t.Run("evaluator cannot lock", func(t *testing.T) {
		env := newPipelineEnv(t)
		_, err := env.svc.LockScores(context.Background(), env.evaluator, env.tender.ID)
		assert.True(t, errors.IsCode(err, "ROLE_REQUIRED"))
	})

	t.Run("tender must be under evaluation", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.tender.Status = tender.StatusActive

		_, err := env.svc.LockScores(context.Background(), scoringOfficer(), env.tender.ID)
		assert.True(t, errors.IsCode(err, "TENDER_NOT_IN_EVALUATION"))
	})

	t.Run("incomplete ledger", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.scoreBid(t, env.openedBids[0], 8)
		env.scoreBid(t, env.openedBids[1], 9)
		// The third bid has no marks at all.

		_, err := env.svc.LockScores(context.Background(), scoringOfficer(), env.tender.ID)
		require.True(t, errors.IsCode(err, "INCOMPLETE_SCORING"))
		var appErr *errors.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, 2, appErr.Details["missing_cells"])
	})

	t.Run("draft marks do not satisfy the ledger", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.scoreBid(t, env.openedBids[0], 8)
		env.scoreBid(t, env.openedBids[1], 9)
		_, err := env.svc.SubmitScores(context.Background(), env.evaluator, &SubmitScoresRequest{
			TenderID: env.tender.ID,
			BidID:    env.openedBids[2].ID,
			Entries: []ScoreEntryInput{
				{CriterionID: env.criteria[0], Score: 6},
				{CriterionID: env.criteria[1], Score: 6},
			},
			IsFinalSubmission: false,
		})
		require.NoError(t, err)

		_, err = env.svc.LockScores(context.Background(), scoringOfficer(), env.tender.ID)
		assert.True(t, errors.IsCode(err, "INCOMPLETE_SCORING"))
	})

	t.Run("complete ledger locks and marks bids scored", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.scoreAndLock(t)

		stored, err := env.tenders.GetByID(context.Background(), env.tender.ID)
		require.NoError(t, err)
		assert.True(t, stored.ScoresLocked())
		require.NotNil(t, stored.ScoresLockedAt)

		bids, err := env.bids.GetByTender(context.Background(), env.tender.ID)
		require.NoError(t, err)
		for _, b := range bids {
			assert.Equal(t, bid.StatusScored, b.Status)
		}

		events := env.publisher.EventsOfType(event.TypeScoresLocked)
		require.Len(t, events, 1)
		assert.Equal(t, 3, events[0].Payload["bids"])
	})

	t.Run("second lock fails", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.scoreAndLock(t)

		_, err := env.svc.LockScores(context.Background(), scoringOfficer(), env.tender.ID)
		assert.True(t, errors.IsCode(err, "ALREADY_LOCKED"))
	})

	t.Run("no opened bids", func(t *testing.T) {
		env := newPipelineEnv(t)
		for _, b := range env.openedBids {
			require.NoError(t, b.Disqualify("withdrawn", evalNow))
			require.NoError(t, env.bids.Update(context.Background(), b))
		}

		_, err := env.svc.LockScores(context.Background(), scoringOfficer(), env.tender.ID)
		assert.True(t, errors.IsCode(err, "NO_OPENED_BIDS"))
	})
}

func TestCalculateCommercial(t *testing.T) {
	t.Run("scores track the lowest comparable total", func(t *testing.T) {
		env := newPipelineEnv(t)

		result, err := env.svc.CalculateCommercial(context.Background(), scoringOfficer(),
			env.tender.ID, scoring.CommercialFlags{})
		require.NoError(t, err)
		require.Len(t, result.Scores, 3)

		byBid := make(map[uuid.UUID]decimal.Decimal)
		for _, s := range result.Scores {
			byBid[s.BidID] = s.Score
		}
		assert.True(t, byBid[env.openedBids[0].ID].Equal(decimal.NewFromInt(100)))
		assert.True(t, byBid[env.openedBids[1].ID].Equal(decimal.RequireFromString("83.3333")))
		assert.True(t, byBid[env.openedBids[2].ID].Equal(decimal.RequireFromString("66.6667")))

		stored, err := env.projections.GetCommercial(context.Background(), env.tender.ID)
		require.NoError(t, err)
		require.NotNil(t, stored)
	})

	t.Run("recomputation is deterministic", func(t *testing.T) {
		env := newPipelineEnv(t)

		first, err := env.svc.CalculateCommercial(context.Background(), scoringOfficer(),
			env.tender.ID, scoring.CommercialFlags{})
		require.NoError(t, err)
		second, err := env.svc.CalculateCommercial(context.Background(), scoringOfficer(),
			env.tender.ID, scoring.CommercialFlags{})
		require.NoError(t, err)

		require.Len(t, second.Scores, len(first.Scores))
		for i := range first.Scores {
			assert.True(t, first.Scores[i].Score.Equal(second.Scores[i].Score))
		}
	})

	t.Run("frozen ranking blocks recalculation", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.scoreAndLock(t)
		_, err := env.svc.CalculateCommercial(context.Background(), scoringOfficer(),
			env.tender.ID, scoring.CommercialFlags{})
		require.NoError(t, err)
		_, err = env.svc.CalculateCombined(context.Background(), scoringOfficer(), env.tender.ID)
		require.NoError(t, err)
		require.NoError(t, env.projections.FreezeCombined(context.Background(), env.tender.ID))

		_, err = env.svc.CalculateCommercial(context.Background(), scoringOfficer(),
			env.tender.ID, scoring.CommercialFlags{})
		assert.True(t, errors.IsCode(err, "RANKING_FROZEN"))
	})

	t.Run("refreshes an unfrozen ranking", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.scoreAndLock(t)
		_, err := env.svc.CalculateCommercial(context.Background(), scoringOfficer(),
			env.tender.ID, scoring.CommercialFlags{})
		require.NoError(t, err)
		_, err = env.svc.CalculateCombined(context.Background(), scoringOfficer(), env.tender.ID)
		require.NoError(t, err)

		firstRanking, err := env.projections.GetCombined(context.Background(), env.tender.ID)
		require.NoError(t, err)

		env.clock.Advance(time.Hour)
		_, err = env.svc.CalculateCommercial(context.Background(), scoringOfficer(),
			env.tender.ID, scoring.CommercialFlags{})
		require.NoError(t, err)

		refreshed, err := env.projections.GetCombined(context.Background(), env.tender.ID)
		require.NoError(t, err)
		assert.True(t, refreshed.CalculatedAt.After(firstRanking.CalculatedAt),
			"a commercial recalculation must refresh the stale ranking")
	})
}

func TestCalculateCombined(t *testing.T) {
	t.Run("requires the technical lock", func(t *testing.T) {
		env := newPipelineEnv(t)
		_, err := env.svc.CalculateCombined(context.Background(), scoringOfficer(), env.tender.ID)
		assert.True(t, errors.IsCode(err, "PREREQUISITE_NOT_MET"))
	})

	t.Run("requires commercial scores", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.scoreAndLock(t)

		_, err := env.svc.CalculateCombined(context.Background(), scoringOfficer(), env.tender.ID)
		assert.True(t, errors.IsCode(err, "PREREQUISITE_NOT_MET"))
	})

	t.Run("ranks the full pipeline", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.scoreAndLock(t)
		_, err := env.svc.CalculateCommercial(context.Background(), scoringOfficer(),
			env.tender.ID, scoring.CommercialFlags{})
		require.NoError(t, err)

		result, err := env.svc.CalculateCombined(context.Background(), scoringOfficer(), env.tender.ID)
		require.NoError(t, err)
		require.Len(t, result.Entries, 3)

		// Marks 8/9/6 against prices 100k/120k/150k under a 70/30 split:
		// bid0: 80*0.7 + 100*0.3     = 86
		// bid1: 90*0.7 + 83.3333*0.3 = 88
		// bid2: 60*0.7 + 66.6667*0.3 = 62
		byBid := make(map[uuid.UUID]scoring.CombinedScoreEntry)
		for _, e := range result.Entries {
			byBid[e.BidID] = e
		}
		assert.True(t, byBid[env.openedBids[1].ID].CombinedScore.Equal(decimal.NewFromInt(88)),
			"got %s", byBid[env.openedBids[1].ID].CombinedScore)
		assert.True(t, byBid[env.openedBids[0].ID].CombinedScore.Equal(decimal.NewFromInt(86)))
		assert.True(t, byBid[env.openedBids[2].ID].CombinedScore.Equal(decimal.NewFromInt(62)))
		assert.Equal(t, 1, byBid[env.openedBids[1].ID].Rank)
		assert.Equal(t, 2, byBid[env.openedBids[0].ID].Rank)
		assert.Equal(t, 3, byBid[env.openedBids[2].ID].Rank)

		ranking, err := env.svc.GetRanking(context.Background(), env.tender.ID)
		require.NoError(t, err)
		assert.Equal(t, env.openedBids[1].ID, scoring.Leader(ranking.Entries))
	})

	t.Run("frozen ranking refuses recomputation", func(t *testing.T) {
		env := newPipelineEnv(t)
		env.scoreAndLock(t)
		_, err := env.svc.CalculateCommercial(context.Background(), scoringOfficer(),
			env.tender.ID, scoring.CommercialFlags{})
		require.NoError(t, err)
		_, err = env.svc.CalculateCombined(context.Background(), scoringOfficer(), env.tender.ID)
		require.NoError(t, err)
		require.NoError(t, env.projections.FreezeCombined(context.Background(), env.tender.ID))

		_, err = env.svc.CalculateCombined(context.Background(), scoringOfficer(), env.tender.ID)
		assert.True(t, errors.IsCode(err, "RANKING_FROZEN"))
	})
}

func TestAnalyzeSensitivity(t *testing.T) {
	prepared := func(t *testing.T) *pipelineEnv {
		t.Helper()
		env := newPipelineEnv(t)
		env.scoreAndLock(t)
		_, err := env.svc.CalculateCommercial(context.Background(), scoringOfficer(),
			env.tender.ID, scoring.CommercialFlags{})
		require.NoError(t, err)
		return env
	}

	t.Run("bidder cannot view", func(t *testing.T) {
		env := prepared(t)
		_, err := env.svc.AnalyzeSensitivity(context.Background(),
			identity.Caller{ID: uuid.New(), Role: identity.RoleBidder}, env.tender.ID)
		assert.True(t, errors.IsCode(err, "ROLE_REQUIRED"))
	})

	t.Run("approver sweeps the weight grid", func(t *testing.T) {
		env := prepared(t)
		approver := identity.Caller{ID: uuid.New(), Role: identity.RoleApprover}

		report, err := env.svc.AnalyzeSensitivity(context.Background(), approver, env.tender.ID)
		require.NoError(t, err)
		assert.Len(t, report.Scenarios, 9)
		assert.True(t, report.ActualSplit.Equal(env.tender.Weights))
		assert.Equal(t, env.openedBids[1].ID, report.ActualLeader)

		_, ok := env.cache.Get(context.Background(), "sensitivity:"+env.tender.ID.String())
		assert.True(t, ok, "the computed report must be cached")
	})

	t.Run("serves a cached report", func(t *testing.T) {
		env := prepared(t)
		marker := uuid.New()
		cached := scoring.SensitivityReport{
			ActualSplit:  values.MustNewWeightSplit(50, 50),
			ActualLeader: marker,
			Stable:       true,
		}
		body, err := json.Marshal(&cached)
		require.NoError(t, err)
		env.cache.Set(context.Background(), "sensitivity:"+env.tender.ID.String(), body, time.Minute)

		report, err := env.svc.AnalyzeSensitivity(context.Background(), scoringOfficer(), env.tender.ID)
		require.NoError(t, err)
		assert.Equal(t, marker, report.ActualLeader)
	})
}

func TestGetRanking_NotFound(t *testing.T) {
	env := newPipelineEnv(t)
	_, err := env.svc.GetRanking(context.Background(), env.tender.ID)
	assert.True(t, errors.IsCode(err, "RESOURCE_NOT_FOUND"))
}
