package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/model"
)

// biddingWindow is an instant inside the overnight window.
var biddingWindow = time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)

func TestPlaceBidRejectedOutsideWindow(t *testing.T) {
	s, _, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	_, err := s.Register(ctx, 1, book.ID)
	require.NoError(t, err)
	req := mustCreateRequest(t, s, book.ID, nil)

	// testInstant is mid-morning, after the close.
	_, err = s.PlaceBid(ctx, 1, req.ID)
	var notEligible *NotEligibleError
	assert.ErrorAs(t, err, &notEligible)
}

func TestPlaceBidRequiresDispatchableRegistration(t *testing.T) {
	s, clk, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()
	req := mustCreateRequest(t, s, book.ID, nil)

	clk.Set(biddingWindow)
	_, err := s.PlaceBid(ctx, 99, req.ID)
	var notEligible *NotEligibleError
	require.ErrorAs(t, err, &notEligible)

	// A duplicate pending bid is a conflict, not ineligibility.
	_, err = s.Register(ctx, 1, book.ID)
	require.NoError(t, err)
	_, err = s.PlaceBid(ctx, 1, req.ID)
	require.NoError(t, err)
	_, err = s.PlaceBid(ctx, 1, req.ID)
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
}

func TestProcessBidsResolvesInPriorityOrder(t *testing.T) {
	s, clk, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	for workerID := int64(1); workerID <= 3; workerID++ {
		_, err := s.Register(ctx, workerID, book.ID)
		require.NoError(t, err)
	}
	req := mustCreateRequest(t, s, book.ID, nil)

	// Bids arrive out of queue order.
	clk.Set(biddingWindow)
	for _, workerID := range []int64{3, 1, 2} {
		_, err := s.PlaceBid(ctx, workerID, req.ID)
		require.NoError(t, err)
	}

	resolved, err := s.ProcessBids(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, resolved, 3)

	// One opening: the lowest key wins, the rest are rejected.
	byWorker := make(map[int64]string, 3)
	for _, bid := range resolved {
		byWorker[bid.WorkerID] = bid.Status
		require.NotNil(t, bid.ResolvedAt)
	}
	assert.Equal(t, model.BidStatusAccepted, byWorker[1])
	assert.Equal(t, model.BidStatusRejected, byWorker[2])
	assert.Equal(t, model.BidStatusRejected, byWorker[3])

	dispatches, _, err := s.ListActiveDispatches(ctx, DispatchFilter{BookID: book.ID}, Page{})
	require.NoError(t, err)
	require.Len(t, dispatches, 1)
	assert.EqualValues(t, 1, dispatches[0].WorkerID)
	assert.Equal(t, model.DispatchMethodBid, dispatches[0].Method)
	require.NotNil(t, dispatches[0].BidID)
}

func TestBidRejectionsSuspendFurtherBidding(t *testing.T) {
	s, clk, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	_, err := s.Register(ctx, 9, book.ID)
	require.NoError(t, err)

	// Each round the worker bids, then takes a short call before the bids
	// are processed, so the bid finds the registration undispatchable and
	// is rejected.
	for round := 0; round < 2; round++ {
		clk.Set(biddingWindow.AddDate(0, 0, round))

		bidReq := mustCreateRequest(t, s, book.ID, nil)
		_, err = s.PlaceBid(ctx, 9, bidReq.ID)
		require.NoError(t, err)

		callReq := mustCreateRequest(t, s, book.ID, func(p *CreateRequestParams) {
			p.ShortCall = true
		})
		disp, err := s.DispatchFromQueue(ctx, callReq.ID)
		require.NoError(t, err)

		_, err = s.ProcessBids(ctx, bidReq.ID)
		require.NoError(t, err)

		clk.Advance(2 * time.Hour)
		_, err = s.TerminateDispatch(ctx, disp.ID, model.TermReasonShortCallEnd)
		require.NoError(t, err)
	}

	status, err := s.BidSuspensionStatus(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 2, status.Rejections)
	assert.True(t, status.Suspended)
	require.NotNil(t, status.OldestExpiry)

	// The third bid is refused while the suspension stands.
	req := mustCreateRequest(t, s, book.ID, nil)
	clk.Set(biddingWindow.AddDate(0, 0, 2))
	_, err = s.PlaceBid(ctx, 9, req.ID)
	var notEligible *NotEligibleError
	require.ErrorAs(t, err, &notEligible)

	// Once the oldest rejection ages out of the window the worker may bid
	// again. The expiry instant falls inside the evening window.
	clk.Set(status.OldestExpiry.Add(time.Hour))
	_, err = s.PlaceBid(ctx, 9, req.ID)
	assert.NoError(t, err)
}

func TestProcessBidsSurfacesStorageFailures(t *testing.T) {
	s, clk, gormDB := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	_, err := s.Register(ctx, 1, book.ID)
	require.NoError(t, err)
	req := mustCreateRequest(t, s, book.ID, nil)

	clk.Set(biddingWindow)
	bid, err := s.PlaceBid(ctx, 1, req.ID)
	require.NoError(t, err)

	// A storage failure during resolution must abort the whole
	// operation, not silently penalize the bidder with a rejection.
	require.NoError(t, gormDB.Exec("DROP TABLE blackouts").Error)

	_, err = s.ProcessBids(ctx, req.ID)
	require.Error(t, err)
	var notEligible *NotEligibleError
	assert.NotErrorAs(t, err, &notEligible)

	bids, _, err := s.ListBids(ctx, BidFilter{RequestID: req.ID}, Page{})
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, model.BidStatusPending, bids[0].Status, "the bid must survive the rollback untouched")
	assert.EqualValues(t, bid.ID, bids[0].ID)

	status, err := s.BidSuspensionStatus(ctx, 1)
	require.NoError(t, err)
	assert.Zero(t, status.Rejections)
}

func TestWithdrawBidOnlyWhilePending(t *testing.T) {
	s, clk, _ := newTestStore(t)
	book := mustCreateBook(t, s, "Book 1 Wireman")
	ctx := context.Background()

	_, err := s.Register(ctx, 1, book.ID)
	require.NoError(t, err)
	req := mustCreateRequest(t, s, book.ID, nil)

	clk.Set(biddingWindow)
	bid, err := s.PlaceBid(ctx, 1, req.ID)
	require.NoError(t, err)

	withdrawn, err := s.WithdrawBid(ctx, bid.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BidStatusWithdrawn, withdrawn.Status)

	_, err = s.WithdrawBid(ctx, bid.ID)
	var conflict *ConflictError
	assert.ErrorAs(t, err, &conflict)
}
