package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/metrics"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/model"
)

// PlaceBid records a worker's interest in a request. Bids are admitted
// only inside the overnight bidding window, only from workers holding a
// dispatchable registration on the request's book, and never from
// workers under a rejection suspension.
func (s *gormStore) PlaceBid(ctx context.Context, workerID, requestID int64) (*model.Bid, error) {
	now := s.now()
	if ws := s.windowStatus(now); !ws.BiddingOpen {
		return nil, notEligibleErr("bidding window is closed; opens at %s", ws.BiddingOpensAt.Format("15:04"))
	}

	var bid model.Bid
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := s.lockOpenRequest(tx, requestID)
		if err != nil {
			return err
		}

		var book model.Book
		if err := tx.First(&book, req.BookID).Error; err != nil {
			return fmt.Errorf("failed to load book %d: %w", req.BookID, err)
		}
		if !book.BiddingEnabled {
			return notEligibleErr("book %d does not take bids", book.ID)
		}

		suspension, err := s.bidSuspension(tx, workerID, now)
		if err != nil {
			return err
		}
		if suspension.Suspended {
			return notEligibleErr("worker %d is suspended from bidding (%d rejections in window)",
				workerID, suspension.Rejections)
		}

		var reg model.Registration
		err = tx.Where("worker_id = ? AND book_id = ? AND status = ?",
			workerID, req.BookID, model.RegStatusRegistered).First(&reg).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notEligibleErr("worker %d holds no dispatchable registration on book %d", workerID, req.BookID)
			}
			return err
		}

		var pending int64
		if err := tx.Model(&model.Bid{}).
			Where("worker_id = ? AND request_id = ? AND status = ?", workerID, requestID, model.BidStatusPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return conflictErr("worker %d already has a pending bid on request %d", workerID, requestID)
		}

		bid = model.Bid{
			WorkerID:       workerID,
			RequestID:      requestID,
			RegistrationID: reg.ID,
			Status:         model.BidStatusPending,
			PlacedAt:       now,
		}
		if err := tx.Create(&bid).Error; err != nil {
			return fmt.Errorf("failed to place bid: %w", err)
		}
		return s.recordActivity(tx, model.EntityBid, bid.ID, "BID_PLACED", bid)
	})
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// WithdrawBid withdraws a pending bid.
func (s *gormStore) WithdrawBid(ctx context.Context, bidID int64) (*model.Bid, error) {
	now := s.now()
	var bid model.Bid
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&bid, bidID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("bid", bidID)
			}
			return err
		}
		if bid.Status != model.BidStatusPending {
			return conflictErr("bid %d is already %s", bidID, bid.Status)
		}
		bid.Status = model.BidStatusWithdrawn
		bid.ResolvedAt = &now
		if err := tx.Save(&bid).Error; err != nil {
			return fmt.Errorf("failed to withdraw bid %d: %w", bidID, err)
		}
		return s.recordActivity(tx, model.EntityBid, bid.ID, "BID_WITHDRAWN", bid)
	})
	if err != nil {
		return nil, err
	}
	return &bid, nil
}

// ProcessBids resolves every pending bid on a request in priority-key
// order: bids are accepted and dispatched while capacity remains, the
// rest are rejected (or expired when the request itself no longer takes
// dispatches).
func (s *gormStore) ProcessBids(ctx context.Context, requestID int64) ([]model.Bid, error) {
	now := s.now()
	var resolved []model.Bid
	accepted := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var req model.LaborRequest
		if err := lockForUpdate(tx).First(&req, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("request", requestID)
			}
			return err
		}

		var bids []model.Bid
		if err := tx.
			Joins("JOIN registrations ON registrations.id = bids.registration_id").
			Where("bids.request_id = ? AND bids.status = ?", requestID, model.BidStatusPending).
			Order("registrations.priority_key ASC").
			Find(&bids).Error; err != nil {
			return fmt.Errorf("failed to load pending bids: %w", err)
		}

		outcomes := make(map[int64]string, len(bids))
		for i := range bids {
			bid := &bids[i]
			if req.Open() {
				var reg model.Registration
				if err := lockForUpdate(tx).First(&reg, bid.RegistrationID).Error; err != nil {
					return err
				}
				if reg.Status == model.RegStatusRegistered {
					if err := s.checkBlackout(tx, bid.WorkerID, now); err != nil {
						// Only a rule rejection penalizes the bidder; an
						// infrastructure failure aborts the whole resolution.
						var notEligible *NotEligibleError
						if !errors.As(err, &notEligible) {
							return err
						}
						bid.Status = model.BidStatusRejected
					} else {
						if _, err := s.createDispatch(tx, &req, &reg, model.DispatchMethodBid, &bid.ID, now); err != nil {
							return err
						}
						bid.Status = model.BidStatusAccepted
						accepted++
					}
				} else {
					bid.Status = model.BidStatusRejected
				}
			} else if req.Status == model.RequestStatusExpired || req.Status == model.RequestStatusCancelled {
				bid.Status = model.BidStatusExpired
			} else {
				bid.Status = model.BidStatusRejected
			}

			bid.ResolvedAt = &now
			if err := tx.Save(bid).Error; err != nil {
				return fmt.Errorf("failed to resolve bid %d: %w", bid.ID, err)
			}
			outcomes[bid.ID] = bid.Status
		}
		resolved = bids

		if len(bids) == 0 {
			return nil
		}
		return s.recordActivity(tx, model.EntityRequest, requestID, "BIDS_PROCESSED", outcomes)
	})
	if err != nil {
		return nil, err
	}
	for i := 0; i < accepted; i++ {
		metrics.DispatchesTotal.WithLabelValues(model.DispatchMethodBid).Inc()
	}
	return resolved, nil
}

// ListBids returns bids matching the filter, oldest first.
func (s *gormStore) ListBids(ctx context.Context, f BidFilter, page Page) ([]model.Bid, int64, error) {
	page = page.Normalize()
	q := s.db.WithContext(ctx).Model(&model.Bid{})
	if f.RequestID != 0 {
		q = q.Where("request_id = ?", f.RequestID)
	}
	if f.WorkerID != 0 {
		q = q.Where("worker_id = ?", f.WorkerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var bids []model.Bid
	if err := q.Order("placed_at ASC, id ASC").Limit(page.PerPage).Offset(page.offset()).Find(&bids).Error; err != nil {
		return nil, 0, err
	}
	return bids, total, nil
}

// BidSuspensionStatus reports a worker's standing under the
// bid-rejection rule.
func (s *gormStore) BidSuspensionStatus(ctx context.Context, workerID int64) (*BidSuspension, error) {
	return s.bidSuspension(s.db.WithContext(ctx), workerID, s.now())
}

// bidSuspension counts rejections inside the rolling window. At the
// configured limit the worker cannot bid until the oldest rejection ages
// out.
func (s *gormStore) bidSuspension(tx *gorm.DB, workerID int64, now time.Time) (*BidSuspension, error) {
	windowStart := now.AddDate(0, 0, -s.rules.BidRejectionWindowDays)

	var rejections []model.Bid
	if err := tx.Session(&gorm.Session{NewDB: true}).
		Where("worker_id = ? AND status = ? AND resolved_at >= ?",
			workerID, model.BidStatusRejected, windowStart).
		Order("resolved_at ASC").
		Find(&rejections).Error; err != nil {
		return nil, fmt.Errorf("failed to count bid rejections: %w", err)
	}

	status := &BidSuspension{
		WorkerID:       workerID,
		Rejections:     len(rejections),
		Limit:          s.rules.BidRejectionLimit,
		Suspended:      len(rejections) >= s.rules.BidRejectionLimit,
		WindowStartsAt: windowStart,
	}
	if status.Suspended && rejections[0].ResolvedAt != nil {
		expiry := rejections[0].ResolvedAt.AddDate(0, 0, s.rules.BidRejectionWindowDays)
		status.OldestExpiry = &expiry
	}
	return status, nil
}
