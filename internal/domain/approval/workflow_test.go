package approval

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procuredesk/tender-evaluation-backend/internal/domain/errors"
)

var workflowTime = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

func approverChain(n int) ([]uuid.UUID, []time.Time) {
	approvers := make([]uuid.UUID, n)
	deadlines := make([]time.Time, n)
	for i := range approvers {
		approvers[i] = uuid.New()
		deadlines[i] = workflowTime.Add(time.Duration(i+1) * 48 * time.Hour)
	}
	return approvers, deadlines
}

func TestNewWorkflow(t *testing.T) {
	approvers, deadlines := approverChain(3)

	w, err := NewWorkflow(uuid.New(), uuid.New(), approvers, deadlines, workflowTime)
	require.NoError(t, err)
	assert.Equal(t, WorkflowInProgress, w.Status)
	assert.Equal(t, 0, w.CurrentIndex)
	require.Len(t, w.Levels, 3)
	for i, level := range w.Levels {
		assert.Equal(t, i, level.Index)
		assert.Equal(t, approvers[i], level.ApproverID)
		assert.Equal(t, LevelPending, level.Status)
	}
	require.NotNil(t, w.ActiveLevel())
	assert.Equal(t, approvers[0], w.ActiveLevel().ApproverID)
}

func TestNewWorkflow_Validation(t *testing.T) {
	approvers, deadlines := approverChain(2)

	_, err := NewWorkflow(uuid.New(), uuid.New(), nil, nil, workflowTime)
	assert.True(t, errors.IsCode(err, "NO_APPROVERS"))

	_, err = NewWorkflow(uuid.New(), uuid.New(), approvers, deadlines[:1], workflowTime)
	assert.True(t, errors.IsCode(err, "DEADLINE_MISMATCH"))

	_, err = NewWorkflow(uuid.New(), uuid.New(),
		[]uuid.UUID{approvers[0], approvers[0]}, deadlines, workflowTime)
	assert.True(t, errors.IsCode(err, "DUPLICATE_APPROVERS"))
}

func TestWorkflow_ApproveChain(t *testing.T) {
	approvers, deadlines := approverChain(3)
	w, err := NewWorkflow(uuid.New(), uuid.New(), approvers, deadlines, workflowTime)
	require.NoError(t, err)

	completed, err := w.Decide(approvers[0], DecisionApprove, "", workflowTime)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, 1, w.CurrentIndex)
	assert.Equal(t, LevelApproved, w.Levels[0].Status)

	completed, err = w.Decide(approvers[1], DecisionApprove, "within budget", workflowTime)
	require.NoError(t, err)
	assert.False(t, completed)

	completed, err = w.Decide(approvers[2], DecisionApprove, "", workflowTime)
	require.NoError(t, err)
	assert.True(t, completed, "approving the last level completes the workflow")
	assert.Equal(t, WorkflowCompleted, w.Status)
	assert.True(t, w.IsTerminal())
	assert.Nil(t, w.ActiveLevel())
}

func TestWorkflow_DecideOutOfTurn(t *testing.T) {
	approvers, deadlines := approverChain(3)
	w, err := NewWorkflow(uuid.New(), uuid.New(), approvers, deadlines, workflowTime)
	require.NoError(t, err)

	// A later-level approver cannot decide before their level activates.
	_, err = w.Decide(approvers[2], DecisionApprove, "", workflowTime)
	assert.True(t, errors.IsCode(err, "NOT_YOUR_TURN"))

	// Strangers are indistinguishable from out-of-turn approvers.
	_, err = w.Decide(uuid.New(), DecisionApprove, "", workflowTime)
	assert.True(t, errors.IsCode(err, "NOT_YOUR_TURN"))
}

func TestWorkflow_RejectStopsChain(t *testing.T) {
	approvers, deadlines := approverChain(3)
	w, err := NewWorkflow(uuid.New(), uuid.New(), approvers, deadlines, workflowTime)
	require.NoError(t, err)

	_, err = w.Decide(approvers[0], DecisionApprove, "", workflowTime)
	require.NoError(t, err)

	completed, err := w.Decide(approvers[1], DecisionReject, "budget exceeded", workflowTime)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, WorkflowRejected, w.Status)
	assert.Equal(t, LevelRejected, w.Levels[1].Status)
	assert.Equal(t, "budget exceeded", w.Levels[1].Comment)

	// The third level never activates.
	assert.Equal(t, LevelPending, w.Levels[2].Status)
	_, err = w.Decide(approvers[2], DecisionApprove, "", workflowTime)
	assert.True(t, errors.IsCode(err, "ALREADY_DECIDED"))
}

func TestWorkflow_ReturnIsTerminal(t *testing.T) {
	approvers, deadlines := approverChain(2)
	w, err := NewWorkflow(uuid.New(), uuid.New(), approvers, deadlines, workflowTime)
	require.NoError(t, err)

	completed, err := w.Decide(approvers[0], DecisionReturn, "clarify pricing assumptions", workflowTime)
	require.NoError(t, err)
	assert.False(t, completed)
	assert.Equal(t, WorkflowReturned, w.Status)
	assert.True(t, w.IsTerminal())

	// This instance accepts nothing further; retrying needs a new one.
	_, err = w.Decide(approvers[0], DecisionApprove, "", workflowTime)
	assert.True(t, errors.IsCode(err, "ALREADY_DECIDED"))
	_, err = w.Decide(approvers[1], DecisionApprove, "", workflowTime)
	assert.True(t, errors.IsCode(err, "ALREADY_DECIDED"))
}

func TestWorkflow_ConcurrentDecide(t *testing.T) {
	approvers, deadlines := approverChain(1)
	w, err := NewWorkflow(uuid.New(), uuid.New(), approvers, deadlines, workflowTime)
	require.NoError(t, err)

	const racers = 16
	var wg sync.WaitGroup
	results := make(chan error, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.Decide(approvers[0], DecisionApprove, "", workflowTime)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, alreadyDecided := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.IsCode(err, "ALREADY_DECIDED"):
			alreadyDecided++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one duplicate submission lands")
	assert.Equal(t, racers-1, alreadyDecided)
	assert.Equal(t, WorkflowCompleted, w.Status)
}

func TestWorkflow_Invalidate(t *testing.T) {
	approvers, deadlines := approverChain(2)
	w, err := NewWorkflow(uuid.New(), uuid.New(), approvers, deadlines, workflowTime)
	require.NoError(t, err)

	_, err = w.Decide(approvers[0], DecisionApprove, "", workflowTime)
	require.NoError(t, err)

	w.Invalidate(workflowTime.Add(time.Hour))
	assert.Equal(t, WorkflowRejected, w.Status)
	// Decided levels keep their history.
	assert.Equal(t, LevelApproved, w.Levels[0].Status)

	// Invalidating a terminal workflow is a no-op.
	before := w.UpdatedAt
	w.Invalidate(workflowTime.Add(2 * time.Hour))
	assert.Equal(t, before, w.UpdatedAt)
}

func TestDecisionFromString(t *testing.T) {
	for _, d := range []Decision{DecisionApprove, DecisionReturn, DecisionReject} {
		parsed, err := DecisionFromString(d.String())
		require.NoError(t, err)
		assert.Equal(t, d, parsed)
	}
	_, err := DecisionFromString("escalate")
	assert.Error(t, err)
}
