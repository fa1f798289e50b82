package approval

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/approval"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/errors"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/event"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/identity"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/scoring"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/tender"
	"github.com/procuredesk/tender-evaluation-backend/internal/domain/values"
	"github.com/procuredesk/tender-evaluation-backend/internal/testutil"
	"github.com/procuredesk/tender-evaluation-backend/internal/testutil/fixtures"
)

var approvalNow = time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC)

type approvalEnv struct {
	svc         Service
	workflows   *testutil.WorkflowStore
	tenders     *testutil.TenderStore
	projections *testutil.ProjectionStore
	publisher   *testutil.CapturePublisher
	clock       *tender.MockClock

	tender    *tender.Tender
	approvers []identity.Caller
}

// newApprovalEnv seeds a tender under evaluation with a stored, unfrozen
// ranking of two bids and a three-person approver chain.
func newApprovalEnv(t *testing.T) *approvalEnv {
	t.Helper()

	env := &approvalEnv{
		workflows:   testutil.NewWorkflowStore(),
		projections: testutil.NewProjectionStore(),
		publisher:   testutil.NewCapturePublisher(),
		clock:       &tender.MockClock{CurrentTime: approvalNow},
	}
	env.tender = fixtures.NewTenderBuilder(t, approvalNow.Add(-30*24*time.Hour)).
		WithStatus(tender.StatusEvaluation).
		WithScoresLocked(approvalNow.Add(-24 * time.Hour)).
		Build()
	env.tenders = testutil.NewTenderStore(env.tender)

	for i := 0; i < 3; i++ {
		env.approvers = append(env.approvers, identity.Caller{ID: uuid.New(), Role: identity.RoleApprover})
	}

	entries := scoring.Rank([]scoring.RankingInput{
		{
			BidID:           uuid.New(),
			TechnicalScore:  decimal.NewFromInt(85),
			CommercialScore: decimal.NewFromInt(100),
			ComparableTotal: values.MustNewMoneyFromFloat(100000, values.USD),
			SubmittedAt:     approvalNow.Add(-10 * 24 * time.Hour),
		},
		{
			BidID:           uuid.New(),
			TechnicalScore:  decimal.NewFromInt(70),
			CommercialScore: decimal.NewFromInt(80),
			ComparableTotal: values.MustNewMoneyFromFloat(125000, values.USD),
			SubmittedAt:     approvalNow.Add(-9 * 24 * time.Hour),
		},
	}, env.tender.Weights)
	require.NoError(t, env.projections.SaveCombined(context.Background(), &scoring.CombinedResult{
		TenderID:     env.tender.ID,
		Entries:      entries,
		CalculatedAt: approvalNow.Add(-time.Hour),
	}))

	env.svc = NewService(env.workflows, env.tenders, env.projections,
		env.publisher, env.clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return env
}

func approvalOfficer() identity.Caller {
	return identity.Caller{ID: uuid.New(), Role: identity.RoleProcurementOfficer}
}

func (env *approvalEnv) initiateRequest() *InitiateRequest {
	req := &InitiateRequest{TenderID: env.tender.ID}
	for i, a := range env.approvers {
		req.ApproverIDs = append(req.ApproverIDs, a.ID)
		req.Deadlines = append(req.Deadlines, approvalNow.Add(time.Duration(i+1)*48*time.Hour))
	}
	return req
}

func (env *approvalEnv) initiate(t *testing.T) *approval.Workflow {
	t.Helper()
	w, err := env.svc.Initiate(context.Background(), approvalOfficer(), env.initiateRequest())
	require.NoError(t, err)
	return w
}

func TestInitiate(t *testing.T) {
	t.Run("freezes the ranking and creates the chain", func(t *testing.T) {
		env := newApprovalEnv(t)

		w := env.initiate(t)
		assert.Equal(t, approval.WorkflowInProgress, w.Status)
		require.Len(t, w.Levels, 3)
		assert.Equal(t, env.approvers[0].ID, w.Levels[0].ApproverID)

		ranking, err := env.projections.GetCombined(context.Background(), env.tender.ID)
		require.NoError(t, err)
		assert.True(t, ranking.Frozen, "initiation must freeze the ranking")
	})

	t.Run("approver cannot initiate", func(t *testing.T) {
		env := newApprovalEnv(t)
		_, err := env.svc.Initiate(context.Background(), env.approvers[0], env.initiateRequest())
		assert.True(t, errors.IsCode(err, "ROLE_REQUIRED"))
	})

	t.Run("tender not under evaluation", func(t *testing.T) {
		env := newApprovalEnv(t)
		env.tender.Status = tender.StatusActive

		_, err := env.svc.Initiate(context.Background(), approvalOfficer(), env.initiateRequest())
		assert.True(t, errors.IsCode(err, "PREREQUISITE_NOT_MET"))
	})

	t.Run("no finalized ranking", func(t *testing.T) {
		env := newApprovalEnv(t)
		fresh := fixtures.NewTenderBuilder(t, approvalNow.Add(-30*24*time.Hour)).
			WithStatus(tender.StatusEvaluation).
			Build()
		require.NoError(t, env.tenders.Create(context.Background(), fresh))

		req := env.initiateRequest()
		req.TenderID = fresh.ID
		_, err := env.svc.Initiate(context.Background(), approvalOfficer(), req)
		assert.True(t, errors.IsCode(err, "PREREQUISITE_NOT_MET"))
	})

	t.Run("unresolved tie blocks initiation", func(t *testing.T) {
		env := newApprovalEnv(t)
		tied := scoring.Rank([]scoring.RankingInput{
			{
				BidID:           uuid.New(),
				TechnicalScore:  decimal.NewFromInt(80),
				CommercialScore: decimal.NewFromInt(90),
				ComparableTotal: values.MustNewMoneyFromFloat(100000, values.USD),
				SubmittedAt:     approvalNow,
			},
			{
				BidID:           uuid.New(),
				TechnicalScore:  decimal.NewFromInt(80),
				CommercialScore: decimal.NewFromInt(90),
				ComparableTotal: values.MustNewMoneyFromFloat(100000, values.USD),
				SubmittedAt:     approvalNow,
			},
		}, env.tender.Weights)
		require.NoError(t, env.projections.SaveCombined(context.Background(), &scoring.CombinedResult{
			TenderID: env.tender.ID,
			Entries:  tied,
		}))

		_, err := env.svc.Initiate(context.Background(), approvalOfficer(), env.initiateRequest())
		require.True(t, errors.IsCode(err, "PREREQUISITE_NOT_MET"))
		assert.ErrorContains(t, err, "tie")
	})

	t.Run("one in-progress workflow per tender", func(t *testing.T) {
		env := newApprovalEnv(t)
		env.initiate(t)

		_, err := env.svc.Initiate(context.Background(), approvalOfficer(), env.initiateRequest())
		assert.True(t, errors.IsCode(err, "WORKFLOW_IN_PROGRESS"))
	})

	t.Run("duplicate approvers rejected before any freeze", func(t *testing.T) {
		env := newApprovalEnv(t)
		req := env.initiateRequest()
		req.ApproverIDs[1] = req.ApproverIDs[0]

		_, err := env.svc.Initiate(context.Background(), approvalOfficer(), req)
		assert.True(t, errors.IsCode(err, "DUPLICATE_APPROVERS"))

		ranking, err := env.projections.GetCombined(context.Background(), env.tender.ID)
		require.NoError(t, err)
		assert.False(t, ranking.Frozen)
	})
}

func TestDecide(t *testing.T) {
	decide := func(env *approvalEnv, caller identity.Caller, d approval.Decision, comment string) (*approval.Workflow, error) {
		return env.svc.Decide(context.Background(), caller, &DecideRequest{
			TenderID: env.tender.ID,
			Decision: d,
			Comment:  comment,
		})
	}

	t.Run("full approval chain awards the tender", func(t *testing.T) {
		env := newApprovalEnv(t)
		env.initiate(t)

		for i, approver := range env.approvers {
			w, err := decide(env, approver, approval.DecisionApprove, "")
			require.NoError(t, err)
			if i < len(env.approvers)-1 {
				assert.Equal(t, approval.WorkflowInProgress, w.Status)
				assert.Equal(t, i+1, w.CurrentIndex)
			} else {
				assert.Equal(t, approval.WorkflowCompleted, w.Status)
			}
		}

		stored, err := env.tenders.GetByID(context.Background(), env.tender.ID)
		require.NoError(t, err)
		assert.Equal(t, tender.StatusAwarded, stored.Status)

		decisions := env.publisher.EventsOfType(event.TypeApprovalLevelDecided)
		require.Len(t, decisions, 3)
		assert.Equal(t, 1, decisions[0].Payload["level"])
		assert.Equal(t, "approve", decisions[0].Payload["decision"])
		assert.Len(t, env.publisher.EventsOfType(event.TypeTenderAwarded), 1)
	})

	t.Run("out-of-turn approver", func(t *testing.T) {
		env := newApprovalEnv(t)
		env.initiate(t)

		_, err := decide(env, env.approvers[2], approval.DecisionApprove, "")
		assert.True(t, errors.IsCode(err, "NOT_YOUR_TURN"))
	})

	t.Run("reject terminates the chain", func(t *testing.T) {
		env := newApprovalEnv(t)
		env.initiate(t)

		w, err := decide(env, env.approvers[0], approval.DecisionReject, "budget ceiling exceeded")
		require.NoError(t, err)
		assert.Equal(t, approval.WorkflowRejected, w.Status)
		assert.Len(t, env.publisher.EventsOfType(event.TypeWorkflowRejected), 1)

		stored, err := env.tenders.GetByID(context.Background(), env.tender.ID)
		require.NoError(t, err)
		assert.Equal(t, tender.StatusEvaluation, stored.Status, "a rejection never awards")

		_, err = env.svc.GetActive(context.Background(), env.tender.ID)
		assert.True(t, errors.IsCode(err, "RESOURCE_NOT_FOUND"))
	})

	t.Run("return ends the instance and permits a fresh one", func(t *testing.T) {
		env := newApprovalEnv(t)
		env.initiate(t)

		w, err := decide(env, env.approvers[0], approval.DecisionReturn, "clarify the price breakdown")
		require.NoError(t, err)
		assert.Equal(t, approval.WorkflowReturned, w.Status)
		assert.Len(t, env.publisher.EventsOfType(event.TypeWorkflowReturned), 1)

		// The same instance is dead; retrying means a new workflow.
		second := env.initiate(t)
		assert.NotEqual(t, w.ID, second.ID)
		assert.Equal(t, approval.WorkflowInProgress, second.Status)
	})

	t.Run("no active workflow", func(t *testing.T) {
		env := newApprovalEnv(t)
		_, err := decide(env, env.approvers[0], approval.DecisionApprove, "")
		assert.True(t, errors.IsCode(err, "RESOURCE_NOT_FOUND"))
	})

	t.Run("officer cannot decide", func(t *testing.T) {
		env := newApprovalEnv(t)
		env.initiate(t)

		_, err := env.svc.Decide(context.Background(), approvalOfficer(), &DecideRequest{
			TenderID: env.tender.ID,
			Decision: approval.DecisionApprove,
		})
		assert.True(t, errors.IsCode(err, "ROLE_REQUIRED"))
	})
}

func TestInvalidateActive(t *testing.T) {
	env := newApprovalEnv(t)
	w := env.initiate(t)

	require.NoError(t, env.svc.InvalidateActive(context.Background(), env.tender.ID, approvalNow))
	assert.Equal(t, approval.WorkflowRejected, w.Status)

	// With nothing in progress the call is a no-op.
	require.NoError(t, env.svc.InvalidateActive(context.Background(), env.tender.ID, approvalNow))
}

func TestGetActive(t *testing.T) {
	env := newApprovalEnv(t)
	created := env.initiate(t)

	active, err := env.svc.GetActive(context.Background(), env.tender.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, active.ID)
}
