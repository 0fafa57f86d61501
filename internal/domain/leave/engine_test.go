package leave

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testTenant   = "tenant-1"
	testEmployee = "emp-1"
	testManager  = "mgr-user-1"
)

func newTestEngine(allotment int) (*Engine, *MemoryStore) {
	store := NewMemoryStore()
	store.Seed(testTenant, testEmployee, allotment)
	engine := NewEngine(store)
	engine.now = func() time.Time { return date(2025, 6, 2) }
	return engine, store
}

func submitDays(t *testing.T, engine *Engine, kind Kind, days int) Request {
	t.Helper()
	start := date(2025, 6, 9)
	req, err := engine.Submit(context.Background(), testTenant, SubmitParams{
		EmployeeID: testEmployee,
		Kind:       kind,
		StartDate:  start,
		EndDate:    start.AddDate(0, 0, days-1),
		Reason:     "test",
	})
	require.NoError(t, err)
	require.Equal(t, days, req.DayCount)
	require.Equal(t, StatusPending, req.Status)
	return req
}

func balance(t *testing.T, store *MemoryStore) int {
	t.Helper()
	value, ok := store.Balance(testTenant, testEmployee)
	require.True(t, ok)
	return value
}

func TestApproveDebitsAndReversalRestores(t *testing.T) {
	engine, store := newTestEngine(10)
	ctx := context.Background()

	req := submitDays(t, engine, KindAnnual, 5)
	assert.False(t, req.BalanceWarning)
	assert.Equal(t, 10, balance(t, store))

	require.NoError(t, engine.Decide(ctx, testTenant, req.ID, OutcomeApprove, testManager))
	assert.Equal(t, 5, balance(t, store))
	stored, ok := store.Request(testTenant, req.ID)
	require.True(t, ok)
	assert.Equal(t, StatusApproved, stored.Status)

	require.NoError(t, engine.Decide(ctx, testTenant, req.ID, OutcomeReject, testManager))
	assert.Equal(t, 10, balance(t, store))
	stored, ok = store.Request(testTenant, req.ID)
	require.True(t, ok)
	assert.Equal(t, StatusRejected, stored.Status)
}

func TestSubmitOverBalanceIsAdvisoryOnly(t *testing.T) {
	engine, store := newTestEngine(3)
	ctx := context.Background()

	req := submitDays(t, engine, KindAnnual, 5)
	assert.True(t, req.BalanceWarning)
	assert.Equal(t, 3, balance(t, store))

	err := engine.Decide(ctx, testTenant, req.ID, OutcomeApprove, testManager)
	var balanceErr *InsufficientBalanceError
	require.ErrorAs(t, err, &balanceErr)
	assert.Equal(t, 3, balanceErr.Available)
	assert.Equal(t, 5, balanceErr.Requested)

	assert.Equal(t, 3, balance(t, store))
	stored, ok := store.Request(testTenant, req.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, stored.Status, "failed approval must not move the status")
}

func TestSecondApprovalFailsWhenBalanceDrained(t *testing.T) {
	engine, store := newTestEngine(10)
	ctx := context.Background()

	first := submitDays(t, engine, KindAnnual, 6)
	second := submitDays(t, engine, KindAnnual, 6)

	require.NoError(t, engine.Decide(ctx, testTenant, first.ID, OutcomeApprove, testManager))
	assert.Equal(t, 4, balance(t, store))

	err := engine.Decide(ctx, testTenant, second.ID, OutcomeApprove, testManager)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 4, balance(t, store))
	stored, ok := store.Request(testTenant, second.ID)
	require.True(t, ok)
	assert.Equal(t, StatusPending, stored.Status)
}

func TestCancelPendingDeletesWithoutBalanceEffect(t *testing.T) {
	engine, store := newTestEngine(10)
	ctx := context.Background()

	req := submitDays(t, engine, KindAnnual, 3)
	require.NoError(t, engine.Cancel(ctx, testTenant, req.ID, testEmployee))

	_, ok := store.Request(testTenant, req.ID)
	assert.False(t, ok, "cancelled request must be removed")
	assert.Equal(t, 10, balance(t, store))
}

func TestCancelRequiresOwner(t *testing.T) {
	engine, store := newTestEngine(10)
	ctx := context.Background()

	req := submitDays(t, engine, KindAnnual, 3)
	err := engine.Cancel(ctx, testTenant, req.ID, "someone-else")
	require.ErrorIs(t, err, ErrForbidden)

	_, ok := store.Request(testTenant, req.ID)
	assert.True(t, ok)
}

func TestCancelApprovedFails(t *testing.T) {
	engine, store := newTestEngine(10)
	ctx := context.Background()

	req := submitDays(t, engine, KindAnnual, 3)
	require.NoError(t, engine.Decide(ctx, testTenant, req.ID, OutcomeApprove, testManager))

	err := engine.Cancel(ctx, testTenant, req.ID, testEmployee)
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, 7, balance(t, store))
}

func TestWithdrawApprovedCreditsBack(t *testing.T) {
	engine, store := newTestEngine(10)
	ctx := context.Background()

	req := submitDays(t, engine, KindAnnual, 4)
	require.NoError(t, engine.Decide(ctx, testTenant, req.ID, OutcomeApprove, testManager))
	assert.Equal(t, 6, balance(t, store))

	require.NoError(t, engine.WithdrawApproved(ctx, testTenant, req.ID, testEmployee))
	assert.Equal(t, 10, balance(t, store))
	_, ok := store.Request(testTenant, req.ID)
	assert.False(t, ok)
}

func TestWithdrawPendingFails(t *testing.T) {
	engine, _ := newTestEngine(10)
	ctx := context.Background()

	req := submitDays(t, engine, KindAnnual, 4)
	err := engine.WithdrawApproved(ctx, testTenant, req.ID, testEmployee)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestNonAnnualKindsNeverTouchBalance(t *testing.T) {
	engine, store := newTestEngine(10)
	ctx := context.Background()

	for _, kind := range []Kind{KindSick, KindExceptional, KindUnpaid} {
		req := submitDays(t, engine, kind, 7)
		assert.False(t, req.BalanceWarning)
		require.NoError(t, engine.Decide(ctx, testTenant, req.ID, OutcomeApprove, testManager))
		assert.Equal(t, 10, balance(t, store), "kind %s must not debit", kind)

		require.NoError(t, engine.Decide(ctx, testTenant, req.ID, OutcomeReject, testManager))
		assert.Equal(t, 10, balance(t, store), "kind %s reversal must not credit", kind)
	}
}

func TestDecideTwiceSecondCallFails(t *testing.T) {
	engine, store := newTestEngine(10)
	ctx := context.Background()

	req := submitDays(t, engine, KindAnnual, 5)
	require.NoError(t, engine.Decide(ctx, testTenant, req.ID, OutcomeApprove, testManager))
	assert.Equal(t, 5, balance(t, store))

	err := engine.Decide(ctx, testTenant, req.ID, OutcomeApprove, testManager)
	var transitionErr *TransitionError
	require.ErrorAs(t, err, &transitionErr)
	assert.Equal(t, StatusApproved, transitionErr.From)
	assert.Equal(t, 5, balance(t, store), "balance must reflect a single debit")
}

func TestRejectedIsTerminal(t *testing.T) {
	engine, store := newTestEngine(10)
	ctx := context.Background()

	req := submitDays(t, engine, KindAnnual, 5)
	require.NoError(t, engine.Decide(ctx, testTenant, req.ID, OutcomeApprove, testManager))
	require.NoError(t, engine.Decide(ctx, testTenant, req.ID, OutcomeReject, testManager))
	assert.Equal(t, 10, balance(t, store))

	require.ErrorIs(t, engine.Decide(ctx, testTenant, req.ID, OutcomeReject, testManager), ErrInvalidTransition)
	require.ErrorIs(t, engine.Decide(ctx, testTenant, req.ID, OutcomeApprove, testManager), ErrInvalidTransition)
	assert.Equal(t, 10, balance(t, store), "re-deciding a rejected request must not move the balance")
}

func TestReversalCreditsStoredDayCount(t *testing.T) {
	engine, store := newTestEngine(20)
	ctx := context.Background()

	req := submitDays(t, engine, KindAnnual, 5)
	require.NoError(t, engine.Decide(ctx, testTenant, req.ID, OutcomeApprove, testManager))
	assert.Equal(t, 15, balance(t, store))

	// A long time passes; the reversal must credit the stored count, not a
	// recomputed span.
	engine.now = func() time.Time { return date(2026, 1, 15) }
	require.NoError(t, engine.Decide(ctx, testTenant, req.ID, OutcomeReject, testManager))
	assert.Equal(t, 20, balance(t, store))
}

func TestDecideRecordsActorAndTimestamp(t *testing.T) {
	engine, store := newTestEngine(10)
	ctx := context.Background()

	approvedAt := date(2025, 6, 2)
	req := submitDays(t, engine, KindAnnual, 2)
	require.NoError(t, engine.Decide(ctx, testTenant, req.ID, OutcomeApprove, testManager))

	stored, ok := store.Request(testTenant, req.ID)
	require.True(t, ok)
	assert.Equal(t, testManager, stored.DecidedBy)
	require.NotNil(t, stored.DecidedAt)
	assert.Equal(t, approvedAt, *stored.DecidedAt)

	reversedAt := date(2025, 7, 1)
	engine.now = func() time.Time { return reversedAt }
	require.NoError(t, engine.Decide(ctx, testTenant, req.ID, OutcomeReject, "hr-user-1"))

	stored, ok = store.Request(testTenant, req.ID)
	require.True(t, ok)
	assert.Equal(t, "hr-user-1", stored.DecidedBy)
	require.NotNil(t, stored.DecidedAt)
	assert.Equal(t, reversedAt, *stored.DecidedAt, "reversal overwrites the decision timestamp")
}

func TestSubmitUnknownEmployee(t *testing.T) {
	engine, _ := newTestEngine(10)
	_, err := engine.Submit(context.Background(), testTenant, SubmitParams{
		EmployeeID: "ghost",
		Kind:       KindAnnual,
		StartDate:  date(2025, 6, 9),
		EndDate:    date(2025, 6, 10),
	})
	require.ErrorIs(t, err, ErrEmployeeNotFound)
}

func TestDecideUnknownRequest(t *testing.T) {
	engine, _ := newTestEngine(10)
	err := engine.Decide(context.Background(), testTenant, "missing", OutcomeApprove, testManager)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitInvalidRange(t *testing.T) {
	engine, store := newTestEngine(10)
	_, err := engine.Submit(context.Background(), testTenant, SubmitParams{
		EmployeeID: testEmployee,
		Kind:       KindAnnual,
		StartDate:  date(2025, 6, 10),
		EndDate:    date(2025, 6, 9),
	})
	require.ErrorIs(t, err, ErrInvalidRange)
	assert.Equal(t, 10, balance(t, store))
}

func TestConcurrentApprovalsExactlyOneFails(t *testing.T) {
	engine, store := newTestEngine(10)
	ctx := context.Background()

	first := submitDays(t, engine, KindAnnual, 6)
	second := submitDays(t, engine, KindAnnual, 6)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{first.ID, second.ID} {
		wg.Add(1)
		go func(slot int, requestID string) {
			defer wg.Done()
			errs[slot] = engine.Decide(ctx, testTenant, requestID, OutcomeApprove, testManager)
		}(i, id)
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			require.ErrorIs(t, err, ErrInsufficientBalance)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one of two oversubscribing approvals must fail")
	assert.Equal(t, 4, balance(t, store))
}

// TestBalanceConservation drives the engine with random operation sequences
// and asserts after every step that the balance equals the allotment minus
// the day counts of currently approved annual requests.
func TestBalanceConservation(t *testing.T) {
	const allotment = 30
	engine, store := newTestEngine(allotment)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	kinds := []Kind{KindAnnual, KindAnnual, KindSick, KindUnpaid}

	type tracked struct {
		id     string
		kind   Kind
		days   int
		status Status
	}
	var live []*tracked

	pick := func(want func(*tracked) bool) *tracked {
		var candidates []*tracked
		for _, req := range live {
			if want(req) {
				candidates = append(candidates, req)
			}
		}
		if len(candidates) == 0 {
			return nil
		}
		return candidates[rng.Intn(len(candidates))]
	}

	expected := allotment
	for step := 0; step < 400; step++ {
		switch rng.Intn(4) {
		case 0:
			days := rng.Intn(6) + 1
			kind := kinds[rng.Intn(len(kinds))]
			start := date(2025, 6, 2).AddDate(0, 0, rng.Intn(200))
			req, err := engine.Submit(ctx, testTenant, SubmitParams{
				EmployeeID: testEmployee,
				Kind:       kind,
				StartDate:  start,
				EndDate:    start.AddDate(0, 0, days-1),
			})
			require.NoError(t, err)
			live = append(live, &tracked{id: req.ID, kind: kind, days: days, status: StatusPending})
		case 1:
			req := pick(func(r *tracked) bool { return r.status == StatusPending })
			if req == nil {
				continue
			}
			err := engine.Decide(ctx, testTenant, req.id, OutcomeApprove, testManager)
			if err != nil {
				require.ErrorIs(t, err, ErrInsufficientBalance)
				continue
			}
			req.status = StatusApproved
			if req.kind.ConsumesBalance() {
				expected -= req.days
			}
		case 2:
			req := pick(func(r *tracked) bool { return r.status != StatusRejected })
			if req == nil {
				continue
			}
			wasApproved := req.status == StatusApproved
			require.NoError(t, engine.Decide(ctx, testTenant, req.id, OutcomeReject, testManager))
			req.status = StatusRejected
			if wasApproved && req.kind.ConsumesBalance() {
				expected += req.days
			}
		case 3:
			req := pick(func(r *tracked) bool { return r.status == StatusPending })
			if req == nil {
				continue
			}
			require.NoError(t, engine.Cancel(ctx, testTenant, req.id, testEmployee))
			for i, candidate := range live {
				if candidate == req {
					live = append(live[:i], live[i+1:]...)
					break
				}
			}
		}

		require.Equal(t, expected, balance(t, store), "conservation violated at step %d", step)
		require.GreaterOrEqual(t, balance(t, store), 0)
	}
}

func TestMemoryStoreRollsBackFailedTransaction(t *testing.T) {
	store := NewMemoryStore()
	store.Seed(testTenant, testEmployee, 10)

	sentinel := errors.New("boom")
	err := store.InTx(context.Background(), func(s Accessor) error {
		if err := s.SetBalance(context.Background(), testTenant, testEmployee, 0); err != nil {
			return err
		}
		return sentinel
	})
	require.ErrorIs(t, err, sentinel)

	value, ok := store.Balance(testTenant, testEmployee)
	require.True(t, ok)
	assert.Equal(t, 10, value, "aborted transaction must leave no visible effect")
}
