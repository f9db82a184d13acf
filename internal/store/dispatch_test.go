package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/model"
)

func TestDispatchFromQueueSelectsLowestKey(t *testing.T) {
	s, _, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	for workerID := int64(1); workerID <= 3; workerID++ {
		_, err := s.Register(ctx, workerID, book.ID)
		require.NoError(t, err)
	}

	req := mustCreateRequest(t, s, book.ID, nil)
	disp, err := s.DispatchFromQueue(ctx, req.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, disp.WorkerID, "first registrant must be dispatched first")
	assert.Equal(t, model.DispatchMethodQueue, disp.Method)

	// Two sequential requests drain the queue in order.
	req2 := mustCreateRequest(t, s, book.ID, nil)
	disp2, err := s.DispatchFromQueue(ctx, req2.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, disp2.WorkerID)
}

func TestDispatchNeverOverfillsRequest(t *testing.T) {
	s, _, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	for workerID := int64(1); workerID <= 4; workerID++ {
		_, err := s.Register(ctx, workerID, book.ID)
		require.NoError(t, err)
	}

	req := mustCreateRequest(t, s, book.ID, func(p *CreateRequestParams) {
		p.Requested = 2
	})

	first, err := s.DispatchFromQueue(ctx, req.ID)
	require.NoError(t, err)
	second, err := s.DispatchFromQueue(ctx, req.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.WorkerID, second.WorkerID)

	after, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusFilled, after.Status)
	assert.Equal(t, 2, after.Filled)

	// A third call hits the filled request's atomic check.
	_, err = s.DispatchFromQueue(ctx, req.ID)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)

	final, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, final.Filled, final.Requested)
}

func TestConcurrentDispatchNeverOverfills(t *testing.T) {
	s, _, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	const callers = 4
	for workerID := int64(1); workerID <= callers; workerID++ {
		_, err := s.Register(ctx, workerID, book.ID)
		require.NoError(t, err)
	}
	req := mustCreateRequest(t, s, book.ID, func(p *CreateRequestParams) {
		p.Requested = 2
	})

	// The request row lock serializes concurrent fills: exactly two
	// succeed, the rest hit the filled request's atomic check.
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, errs[n] = s.DispatchFromQueue(ctx, req.ID)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		var conflict *ConflictError
		require.ErrorAs(t, err, &conflict)
	}
	assert.Equal(t, req.Requested, successes)

	after, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusFilled, after.Status)
	assert.Equal(t, req.Requested, after.Filled)
}

func TestDispatchSkipsExemptAndSuspendedWorkers(t *testing.T) {
	s, _, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	lowest, err := s.Register(ctx, 1, book.ID)
	require.NoError(t, err)
	middle, err := s.Register(ctx, 2, book.ID)
	require.NoError(t, err)
	_, err = s.Register(ctx, 3, book.ID)
	require.NoError(t, err)

	_, err = s.GrantExemption(ctx, lowest.ID, "medical", nil)
	require.NoError(t, err)
	_, err = s.SuspendRegistration(ctx, middle.ID, "pending hall review")
	require.NoError(t, err)

	req := mustCreateRequest(t, s, book.ID, nil)
	disp, err := s.DispatchFromQueue(ctx, req.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 3, disp.WorkerID, "exempt and suspended workers must never be selected")
}

func TestShortCallTerminationRestoresOriginalPriorityKey(t *testing.T) {
	s, clk, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	reg, err := s.Register(ctx, 1, book.ID)
	require.NoError(t, err)
	_, err = s.Register(ctx, 2, book.ID)
	require.NoError(t, err)

	req := mustCreateRequest(t, s, book.ID, func(p *CreateRequestParams) {
		p.ShortCall = true
	})
	disp, err := s.DispatchFromQueue(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, disp.ShortCall)

	// Eight hours on a short call, well under the book threshold.
	clk.Advance(8 * time.Hour)
	terminated, err := s.TerminateDispatch(ctx, disp.ID, model.TermReasonShortCallEnd)
	require.NoError(t, err)
	assert.Equal(t, model.DispatchStatusCompleted, terminated.Status)

	restored, err := s.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RegStatusRegistered, restored.Status)
	assert.True(t, restored.PriorityKey.Equal(reg.PriorityKey),
		"short call must restore the exact original key, got %s want %s",
		restored.PriorityKey, reg.PriorityKey)

	// Back at the head of the queue.
	snapshot, _, err := s.QueueSnapshot(ctx, book.ID, false, Page{})
	require.NoError(t, err)
	require.NotEmpty(t, snapshot)
	assert.EqualValues(t, 1, snapshot[0].WorkerID)
}

func TestLongCallConsumesQueuePosition(t *testing.T) {
	s, clk, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	reg, err := s.Register(ctx, 1, book.ID)
	require.NoError(t, err)

	req := mustCreateRequest(t, s, book.ID, func(p *CreateRequestParams) {
		p.ShortCall = true
	})
	disp, err := s.DispatchFromQueue(ctx, req.ID)
	require.NoError(t, err)

	// Past the short-call threshold the position is consumed.
	clk.Advance(time.Duration(book.ShortCallHours+10) * time.Hour)
	_, err = s.TerminateDispatch(ctx, disp.ID, model.TermReasonShortCallEnd)
	require.NoError(t, err)

	after, err := s.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RegStatusExpired, after.Status)
}

func TestShortCallThresholdUsesExactDuration(t *testing.T) {
	s, clk, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	atLimit, err := s.Register(ctx, 1, book.ID)
	require.NoError(t, err)
	overLimit, err := s.Register(ctx, 2, book.ID)
	require.NoError(t, err)

	threshold := time.Duration(book.ShortCallHours) * time.Hour

	// Exactly at the threshold the position is restored.
	reqA := mustCreateRequest(t, s, book.ID, func(p *CreateRequestParams) { p.ShortCall = true })
	dispA, err := s.DispatchFromQueue(ctx, reqA.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, dispA.WorkerID)

	reqB := mustCreateRequest(t, s, book.ID, func(p *CreateRequestParams) { p.ShortCall = true })
	dispB, err := s.DispatchFromQueue(ctx, reqB.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, dispB.WorkerID)

	clk.Advance(threshold)
	_, err = s.TerminateDispatch(ctx, dispA.ID, model.TermReasonShortCallEnd)
	require.NoError(t, err)
	restored, err := s.GetRegistration(ctx, atLimit.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RegStatusRegistered, restored.Status)

	// Thirty minutes over is a long call even though the reported hours
	// truncate back to the threshold.
	clk.Advance(30 * time.Minute)
	terminated, err := s.TerminateDispatch(ctx, dispB.ID, model.TermReasonShortCallEnd)
	require.NoError(t, err)
	assert.Equal(t, book.ShortCallHours, terminated.HoursWorked)

	consumed, err := s.GetRegistration(ctx, overLimit.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RegStatusExpired, consumed.Status)
}

func TestNamedDispatchHonorsRequestedTarget(t *testing.T) {
	s, _, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	_, err := s.Register(ctx, 5, book.ID)
	require.NoError(t, err)
	_, err = s.Register(ctx, 7, book.ID)
	require.NoError(t, err)

	target := int64(5)
	req := mustCreateRequest(t, s, book.ID, func(p *CreateRequestParams) {
		p.ByNameWorkerID = &target
	})

	_, err = s.DispatchByName(ctx, req.ID, 7)
	var validation *ValidationError
	require.ErrorAs(t, err, &validation, "a different worker than the request names must be refused")

	disp, err := s.DispatchByName(ctx, req.ID, 5)
	require.NoError(t, err)
	assert.EqualValues(t, 5, disp.WorkerID)
}

func TestEmergencyDispatchBypassesQueueOrder(t *testing.T) {
	s, _, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	_, err := s.Register(ctx, 1, book.ID)
	require.NoError(t, err)
	_, err = s.Register(ctx, 2, book.ID)
	require.NoError(t, err)

	req := mustCreateRequest(t, s, book.ID, nil)
	disp, err := s.DispatchEmergency(ctx, req.ID, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 2, disp.WorkerID)
	assert.Equal(t, model.DispatchMethodEmergency, disp.Method)
}

func TestEmergencyDispatchCountsTowardCollusionFrequency(t *testing.T) {
	s, _, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	// Two emergency calls plus one by-name for the same pairing cross
	// the threshold: emergency calls are not a loophole around the flag.
	dispatch := []func(context.Context, int64, int64) (*model.Dispatch, error){
		s.DispatchEmergency,
		s.DispatchEmergency,
		s.DispatchByName,
	}
	for round, method := range dispatch {
		_, err := s.Register(ctx, 7, book.ID)
		require.NoError(t, err)

		req := mustCreateRequest(t, s, book.ID, nil)
		disp, err := method(ctx, req.ID, 7)
		require.NoError(t, err)
		assert.Equal(t, round == len(dispatch)-1, disp.CollusionFlagged,
			"round %d flag state", round+1)

		_, err = s.TerminateDispatch(ctx, disp.ID, model.TermReasonLayoff)
		require.NoError(t, err)
	}
}

func TestStartWorkRequiresCheckIn(t *testing.T) {
	s, _, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	_, err := s.Register(ctx, 1, book.ID)
	require.NoError(t, err)
	req := mustCreateRequest(t, s, book.ID, nil)
	disp, err := s.DispatchFromQueue(ctx, req.ID)
	require.NoError(t, err)

	_, err = s.StartWork(ctx, disp.ID)
	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict, "start-work before check-in must be refused")

	_, err = s.CheckIn(ctx, disp.ID)
	require.NoError(t, err)
	working, err := s.StartWork(ctx, disp.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DispatchStatusWorking, working.Status)

	// WORKING is still an active status; termination proceeds normally.
	done, err := s.TerminateDispatch(ctx, disp.ID, model.TermReasonLayoff)
	require.NoError(t, err)
	assert.Equal(t, model.DispatchStatusCompleted, done.Status)
}

func TestQuitRollsOffAllBooksAndOpensBlackout(t *testing.T) {
	s, _, _ := newTestStore(t)
	bookA := mustCreateBook(t, s, "Book 1 Wireman")
	bookB, err := s.CreateBook(context.Background(), CreateBookParams{
		Name:           "Book 2 Wireman",
		Classification: "wireman",
		Region:         "district-7",
		Tier:           model.TierTraveler,
	})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Register(ctx, 1, bookA.ID)
	require.NoError(t, err)
	_, err = s.Register(ctx, 1, bookB.ID)
	require.NoError(t, err)
	_, err = s.Register(ctx, 2, bookA.ID)
	require.NoError(t, err)

	req := mustCreateRequest(t, s, bookA.ID, nil)
	disp, err := s.DispatchFromQueue(ctx, req.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, disp.WorkerID)

	_, err = s.TerminateDispatch(ctx, disp.ID, model.TermReasonQuit)
	require.NoError(t, err)

	// Every registration the worker held is rolled off.
	regs, _, err := s.ListRegistrations(ctx, RegistrationFilter{WorkerID: 1}, Page{})
	require.NoError(t, err)
	for _, reg := range regs {
		assert.Equal(t, model.RegStatusRolledOff, reg.Status)
		assert.Equal(t, model.RollOffQuit, reg.RollOffReason)
	}

	// The blackout blocks dispatch by any method. Worker 1 re-registers
	// but cannot be reached until the blackout lapses.
	_, err = s.Register(ctx, 1, bookA.ID)
	require.NoError(t, err)

	req2 := mustCreateRequest(t, s, bookA.ID, nil)
	byQueue, err := s.DispatchFromQueue(ctx, req2.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, byQueue.WorkerID, "blacked-out worker must be skipped in queue order")

	req3 := mustCreateRequest(t, s, bookA.ID, nil)
	_, err = s.DispatchByName(ctx, req3.ID, 1)
	var notEligible *NotEligibleError
	assert.ErrorAs(t, err, &notEligible)
}

func TestNoShowTerminationCostsCheckMark(t *testing.T) {
	s, _, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	reg, err := s.Register(ctx, 1, book.ID)
	require.NoError(t, err)

	req := mustCreateRequest(t, s, book.ID, nil)
	disp, err := s.DispatchFromQueue(ctx, req.ID)
	require.NoError(t, err)

	terminated, err := s.TerminateDispatch(ctx, disp.ID, model.TermReasonNoShow)
	require.NoError(t, err)
	assert.Equal(t, model.DispatchStatusNoShow, terminated.Status)

	after, err := s.GetRegistration(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RegStatusRegistered, after.Status)
	assert.Equal(t, 1, after.CheckMarks)
}

func TestDispatchByNameFlagsRecurringPairings(t *testing.T) {
	s, _, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	// Threshold is 3 by-name dispatches inside the rolling window.
	for round := 1; round <= 3; round++ {
		_, err := s.Register(ctx, 7, book.ID)
		require.NoError(t, err)

		req := mustCreateRequest(t, s, book.ID, nil)
		disp, err := s.DispatchByName(ctx, req.ID, 7)
		require.NoError(t, err)

		if round < 3 {
			assert.False(t, disp.CollusionFlagged, "round %d must not be flagged", round)
		} else {
			assert.True(t, disp.CollusionFlagged, "round %d must be flagged", round)
		}

		_, err = s.TerminateDispatch(ctx, disp.ID, model.TermReasonLayoff)
		require.NoError(t, err)
	}
}

func TestMatchCandidatesAnnotatesCheckMarkExceptions(t *testing.T) {
	s, _, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	_, err := s.Register(ctx, 1, book.ID)
	require.NoError(t, err)

	plain := mustCreateRequest(t, s, book.ID, nil)
	candidates, err := s.MatchCandidates(ctx, plain.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.True(t, candidates[0].WouldIncurCheckMark)

	specialty := mustCreateRequest(t, s, book.ID, func(p *CreateRequestParams) {
		p.SpecialtySkill = "certified welder"
	})
	candidates, err = s.MatchCandidates(ctx, specialty.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.False(t, candidates[0].WouldIncurCheckMark)
	assert.Equal(t, ExemptionSpecialtySkill, candidates[0].CheckMarkExemption)

	earlyStart := mustCreateRequest(t, s, book.ID, func(p *CreateRequestParams) {
		p.StartAt = time.Date(2025, 6, 3, 5, 0, 0, 0, time.UTC)
	})
	candidates, err = s.MatchCandidates(ctx, earlyStart.ID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.False(t, candidates[0].WouldIncurCheckMark)
	assert.Equal(t, ExemptionEarlyStart, candidates[0].CheckMarkExemption)
}

func TestCancelRequestExpiresPendingBids(t *testing.T) {
	s, clk, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	_, err := s.Register(ctx, 1, book.ID)
	require.NoError(t, err)
	req := mustCreateRequest(t, s, book.ID, nil)

	// Enter the evening bidding window to place the bid.
	clk.Set(time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC))
	bid, err := s.PlaceBid(ctx, 1, req.ID)
	require.NoError(t, err)

	cancelled, err := s.CancelRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RequestStatusCancelled, cancelled.Status)

	bids, _, err := s.ListBids(ctx, BidFilter{RequestID: req.ID}, Page{})
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, model.BidStatusExpired, bids[0].Status)
	assert.Equal(t, bid.ID, bids[0].ID)
}

func TestRequestWindowStatusBoundaries(t *testing.T) {
	s, clk, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()
	req := mustCreateRequest(t, s, book.ID, nil)

	// Midday: closed, cutoff passed.
	clk.Set(time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC))
	ws, err := s.RequestWindowStatus(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, ws.BiddingOpen)
	assert.True(t, ws.PastMorningCutoff)

	// The instant the window opens.
	clk.Set(time.Date(2025, 6, 2, 18, 0, 0, 0, time.UTC))
	ws, err = s.RequestWindowStatus(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, ws.BiddingOpen)

	// Early morning, before the close.
	clk.Set(time.Date(2025, 6, 3, 5, 59, 0, 0, time.UTC))
	ws, err = s.RequestWindowStatus(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, ws.BiddingOpen)
	assert.False(t, ws.PastMorningCutoff)

	// The instant it closes.
	clk.Set(time.Date(2025, 6, 3, 6, 0, 0, 0, time.UTC))
	ws, err = s.RequestWindowStatus(ctx, req.ID)
	require.NoError(t, err)
	assert.False(t, ws.BiddingOpen)
}
