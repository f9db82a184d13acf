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

// Check-mark exemption reasons reported by MatchCandidates.
const (
	ExemptionSpecialtySkill    = "SPECIALTY_SKILL"
	ExemptionMOUJobsite        = "MOU_JOBSITE"
	ExemptionEarlyStart        = "EARLY_START"
	ExemptionUnderScale        = "UNDER_SCALE"
	ExemptionShortCallBackfill = "SHORT_CALL_BACKFILL"
	ExemptionPriorRejection    = "PRIOR_EMPLOYER_REJECTION"
)

// CreateRequest opens a new labor request on a book.
func (s *gormStore) CreateRequest(ctx context.Context, p CreateRequestParams) (*model.LaborRequest, error) {
	if p.EmployerID <= 0 {
		return nil, validationErr("employerId", "must be a positive identifier")
	}
	if p.Requested < 1 {
		return nil, validationErr("requested", "must ask for at least one worker")
	}
	switch p.AgreementType {
	case model.AgreementInside, model.AgreementMOU, model.AgreementPortable:
	default:
		return nil, validationErr("agreementType", fmt.Sprintf("unknown agreement type %q", p.AgreementType))
	}

	var req model.LaborRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book model.Book
		if err := tx.First(&book, p.BookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("book", p.BookID)
			}
			return err
		}
		if !book.Active {
			return notEligibleErr("book %d is not accepting requests", p.BookID)
		}
		if p.Classification != "" && p.Classification != book.Classification {
			return validationErr("classification", fmt.Sprintf("book %d covers %s", p.BookID, book.Classification))
		}

		req = model.LaborRequest{
			EmployerID:     p.EmployerID,
			BookID:         p.BookID,
			Classification: book.Classification,
			AgreementType:  p.AgreementType,
			Requested:      p.Requested,
			StartAt:        p.StartAt,
			ExpiresAt:      p.ExpiresAt,
			ByNameWorkerID: p.ByNameWorkerID,
			SpecialtySkill: p.SpecialtySkill,
			MOUJobsite:     p.MOUJobsite,
			UnderScale:     p.UnderScale,
			ShortCall:      p.ShortCall,
			Backfill:       p.Backfill,
			Status:         model.RequestStatusOpen,
		}
		if err := tx.Create(&req).Error; err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		return s.recordActivity(tx, model.EntityRequest, req.ID, "REQUEST_CREATED", req)
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// GetRequest fetches a labor request by ID.
func (s *gormStore) GetRequest(ctx context.Context, id int64) (*model.LaborRequest, error) {
	var req model.LaborRequest
	if err := s.db.WithContext(ctx).First(&req, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("request", id)
		}
		return nil, err
	}
	return &req, nil
}

// ListRequests returns labor requests matching the filter.
func (s *gormStore) ListRequests(ctx context.Context, f RequestFilter, page Page) ([]model.LaborRequest, int64, error) {
	page = page.Normalize()
	q := s.db.WithContext(ctx).Model(&model.LaborRequest{})
	if f.BookID != 0 {
		q = q.Where("book_id = ?", f.BookID)
	}
	if f.EmployerID != 0 {
		q = q.Where("employer_id = ?", f.EmployerID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("start_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("start_at < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var reqs []model.LaborRequest
	if err := q.Order("start_at ASC, id ASC").Limit(page.PerPage).Offset(page.offset()).Find(&reqs).Error; err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}

// MorningOrder lists the open requests on a book in the order the hall
// works them during morning processing: earliest start first, then
// creation order.
func (s *gormStore) MorningOrder(ctx context.Context, bookID int64) ([]model.LaborRequest, error) {
	var reqs []model.LaborRequest
	err := s.db.WithContext(ctx).
		Where("book_id = ? AND status IN ?", bookID,
			[]string{model.RequestStatusOpen, model.RequestStatusPartiallyFilled}).
		Order("start_at ASC, created_at ASC, id ASC").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	return reqs, nil
}

// CancelRequest closes an open request and expires its pending bids.
func (s *gormStore) CancelRequest(ctx context.Context, id int64) (*model.LaborRequest, error) {
	return s.closeRequest(ctx, id, model.RequestStatusCancelled, "REQUEST_CANCELLED")
}

// ExpireRequest closes a request whose validity window has passed.
func (s *gormStore) ExpireRequest(ctx context.Context, id int64) (*model.LaborRequest, error) {
	return s.closeRequest(ctx, id, model.RequestStatusExpired, "REQUEST_EXPIRED")
}

func (s *gormStore) closeRequest(ctx context.Context, id int64, status, action string) (*model.LaborRequest, error) {
	now := s.now()
	var req model.LaborRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&req, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("request", id)
			}
			return err
		}
		if !req.Open() {
			return conflictErr("request %d is already %s", id, req.Status)
		}
		req.Status = status
		if err := tx.Save(&req).Error; err != nil {
			return fmt.Errorf("failed to close request %d: %w", id, err)
		}
		if err := tx.Model(&model.Bid{}).
			Where("request_id = ? AND status = ?", id, model.BidStatusPending).
			Updates(map[string]any{"status": model.BidStatusExpired, "resolved_at": now}).Error; err != nil {
			return fmt.Errorf("failed to expire pending bids on request %d: %w", id, err)
		}
		return s.recordActivity(tx, model.EntityRequest, req.ID, action, req)
	})
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// RequestWindowStatus exposes the time gates on a request as explicit
// booleans and boundary timestamps, evaluated against the current clock.
func (s *gormStore) RequestWindowStatus(ctx context.Context, id int64) (*WindowStatus, error) {
	if _, err := s.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	ws := s.windowStatus(s.now())
	return &ws, nil
}

// windowStatus computes the bidding window and morning cutoff around the
// given instant. The window opens in the evening and closes the next
// morning, so it crosses midnight.
func (s *gormStore) windowStatus(now time.Time) WindowStatus {
	openHour := s.rules.BidWindowOpenHour
	closeHour := s.rules.BidWindowCloseHour
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	var ws WindowStatus
	switch {
	case now.Hour() >= openHour:
		// Evening side of tonight's window.
		ws.BiddingOpen = true
		ws.BiddingOpensAt = midnight.Add(time.Duration(openHour) * time.Hour)
		ws.BiddingClosesAt = midnight.AddDate(0, 0, 1).Add(time.Duration(closeHour) * time.Hour)
	case now.Hour() < closeHour:
		// Morning side of last night's window.
		ws.BiddingOpen = true
		ws.BiddingOpensAt = midnight.AddDate(0, 0, -1).Add(time.Duration(openHour) * time.Hour)
		ws.BiddingClosesAt = midnight.Add(time.Duration(closeHour) * time.Hour)
	default:
		ws.BiddingOpen = false
		ws.BiddingOpensAt = midnight.Add(time.Duration(openHour) * time.Hour)
		ws.BiddingClosesAt = midnight.AddDate(0, 0, 1).Add(time.Duration(closeHour) * time.Hour)
	}

	ws.MorningCutoffAt = midnight.Add(time.Duration(s.rules.MorningCutoffHour) * time.Hour)
	ws.PastMorningCutoff = !now.Before(ws.MorningCutoffAt)
	return ws
}

// MatchCandidates returns the queue snapshot filtered to registrations
// eligible for the request, annotated with whether declining the call
// would cost each worker a check mark.
func (s *gormStore) MatchCandidates(ctx context.Context, requestID int64) ([]Candidate, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}

	regs, err := s.eligibleRegistrations(s.db.WithContext(ctx), req)
	if err != nil {
		return nil, err
	}

	exempt, reason := requestCheckMarkExemption(req, s.rules.EarlyStartCheckMarkHour)
	candidates := make([]Candidate, 0, len(regs))
	for _, reg := range regs {
		c := Candidate{Registration: reg, WouldIncurCheckMark: !exempt, CheckMarkExemption: reason}
		if !exempt {
			rejected, err := s.priorEmployerRejection(ctx, req.EmployerID, reg.WorkerID)
			if err != nil {
				return nil, err
			}
			if rejected {
				c.WouldIncurCheckMark = false
				c.CheckMarkExemption = ExemptionPriorRejection
			}
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// requestCheckMarkExemption evaluates the request-level exceptions under
// which a decline costs no check mark.
func requestCheckMarkExemption(req *model.LaborRequest, earlyStartHour int) (bool, string) {
	switch {
	case req.SpecialtySkill != "":
		return true, ExemptionSpecialtySkill
	case req.MOUJobsite || req.AgreementType == model.AgreementMOU:
		return true, ExemptionMOUJobsite
	case req.StartAt.Hour() < earlyStartHour:
		return true, ExemptionEarlyStart
	case req.UnderScale:
		return true, ExemptionUnderScale
	case req.ShortCall && req.Backfill:
		return true, ExemptionShortCallBackfill
	}
	return false, ""
}

// priorEmployerRejection reports whether this employer has previously
// rejected this worker.
func (s *gormStore) priorEmployerRejection(ctx context.Context, employerID, workerID int64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Dispatch{}).
		Joins("JOIN labor_requests ON labor_requests.id = dispatches.request_id").
		Where("labor_requests.employer_id = ? AND dispatches.worker_id = ? AND dispatches.status = ?",
			employerID, workerID, model.DispatchStatusRejected).
		Count(&count).Error
	return count > 0, err
}

// eligibleRegistrations returns the REGISTERED queue for the request's
// book in priority order, excluding blacked-out workers. Exempt and
// suspended registrations are never candidates.
func (s *gormStore) eligibleRegistrations(tx *gorm.DB, req *model.LaborRequest) ([]model.Registration, error) {
	blackedOut := tx.Session(&gorm.Session{NewDB: true}).
		Model(&model.Blackout{}).
		Select("worker_id").
		Where("active = ? AND ends_at > ?", true, s.now())

	var regs []model.Registration
	err := tx.
		Where("book_id = ? AND status = ?", req.BookID, model.RegStatusRegistered).
		Where("worker_id NOT IN (?)", blackedOut).
		Order("priority_key ASC").
		Find(&regs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible registrations: %w", err)
	}
	return regs, nil
}

// DispatchFromQueue dispatches the lowest-priority-key eligible worker to
// the request. The request row is locked for the whole operation so
// concurrent calls can never over-fill it.
func (s *gormStore) DispatchFromQueue(ctx context.Context, requestID int64) (*model.Dispatch, error) {
	now := s.now()
	var disp model.Dispatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := s.lockOpenRequest(tx, requestID)
		if err != nil {
			return err
		}

		regs, err := s.eligibleRegistrations(tx, req)
		if err != nil {
			return err
		}
		if len(regs) == 0 {
			return notEligibleErr("no eligible candidates on book %d", req.BookID)
		}

		// Lock the top candidate and re-check its status; a concurrent
		// dispatch may have taken it between the snapshot and the lock.
		var reg model.Registration
		found := false
		for _, candidate := range regs {
			if err := lockForUpdate(tx).First(&reg, candidate.ID).Error; err != nil {
				return err
			}
			if reg.Status == model.RegStatusRegistered {
				found = true
				break
			}
		}
		if !found {
			return notEligibleErr("no eligible candidates on book %d", req.BookID)
		}

		disp, err = s.createDispatch(tx, req, &reg, model.DispatchMethodQueue, nil, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.DispatchesTotal.WithLabelValues(model.DispatchMethodQueue).Inc()
	return &disp, nil
}

// DispatchByName dispatches a named worker, bypassing queue order. The
// dispatch is flagged for anti-collusion review when the employer/worker
// pairing recurs above the configured frequency inside the rolling
// window; flagging applies to this and future dispatches only.
func (s *gormStore) DispatchByName(ctx context.Context, requestID, workerID int64) (*model.Dispatch, error) {
	return s.dispatchNamed(ctx, requestID, workerID, model.DispatchMethodByName)
}

// DispatchEmergency dispatches a named worker for an urgent call. Same
// path as by-name — queue order is bypassed, blackouts still apply, and
// the pairing counts toward the anti-collusion frequency so emergency
// calls are not a loophole around the flag.
func (s *gormStore) DispatchEmergency(ctx context.Context, requestID, workerID int64) (*model.Dispatch, error) {
	return s.dispatchNamed(ctx, requestID, workerID, model.DispatchMethodEmergency)
}

// namedDispatchMethods are the methods that bypass queue order; both
// count toward the anti-collusion frequency.
var namedDispatchMethods = []string{model.DispatchMethodByName, model.DispatchMethodEmergency}

func (s *gormStore) dispatchNamed(ctx context.Context, requestID, workerID int64, method string) (*model.Dispatch, error) {
	now := s.now()
	var disp model.Dispatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		req, err := s.lockOpenRequest(tx, requestID)
		if err != nil {
			return err
		}
		if req.ByNameWorkerID != nil && *req.ByNameWorkerID != workerID {
			return validationErr("workerId",
				fmt.Sprintf("request %d names worker %d", requestID, *req.ByNameWorkerID))
		}

		if err := s.checkBlackout(tx, workerID, now); err != nil {
			return err
		}

		var reg model.Registration
		err = lockForUpdate(tx).
			Where("worker_id = ? AND book_id = ? AND status = ?", workerID, req.BookID, model.RegStatusRegistered).
			First(&reg).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notEligibleErr("worker %d holds no dispatchable registration on book %d", workerID, req.BookID)
			}
			return err
		}

		disp, err = s.createDispatch(tx, req, &reg, method, nil, now)
		if err != nil {
			return err
		}

		windowStart := now.AddDate(0, 0, -s.rules.CollusionWindowDays)
		var priorNamed int64
		if err := tx.Model(&model.Dispatch{}).
			Joins("JOIN labor_requests ON labor_requests.id = dispatches.request_id").
			Where("labor_requests.employer_id = ? AND dispatches.worker_id = ?", req.EmployerID, workerID).
			Where("dispatches.method IN ? AND dispatches.dispatched_at >= ? AND dispatches.id <> ?",
				namedDispatchMethods, windowStart, disp.ID).
			Count(&priorNamed).Error; err != nil {
			return err
		}
		if int(priorNamed)+1 >= s.rules.CollusionThreshold {
			disp.CollusionFlagged = true
			if err := tx.Model(&disp).Update("collusion_flagged", true).Error; err != nil {
				return fmt.Errorf("failed to flag dispatch %d: %w", disp.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.DispatchesTotal.WithLabelValues(method).Inc()
	return &disp, nil
}

// lockOpenRequest loads a request under a write lock and verifies it can
// still take dispatches.
func (s *gormStore) lockOpenRequest(tx *gorm.DB, requestID int64) (*model.LaborRequest, error) {
	var req model.LaborRequest
	if err := lockForUpdate(tx).First(&req, requestID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("request", requestID)
		}
		return nil, err
	}
	if !req.Open() {
		return nil, conflictErr("request %d is %s", requestID, req.Status)
	}
	return &req, nil
}

// checkBlackout rejects when the worker is inside an active blackout.
func (s *gormStore) checkBlackout(tx *gorm.DB, workerID int64, now time.Time) error {
	var count int64
	if err := tx.Model(&model.Blackout{}).
		Where("worker_id = ? AND active = ? AND ends_at > ?", workerID, true, now).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return notEligibleErr("worker %d is under a dispatch blackout", workerID)
	}
	return nil
}

// createDispatch performs the shared dispatch bookkeeping: mark the
// registration dispatched, create the dispatch record, advance the
// request's fill count, and ledger the event. Caller holds the request
// and registration row locks.
func (s *gormStore) createDispatch(tx *gorm.DB, req *model.LaborRequest, reg *model.Registration, method string, bidID *int64, now time.Time) (model.Dispatch, error) {
	reg.Status = model.RegStatusDispatched
	if err := tx.Save(reg).Error; err != nil {
		return model.Dispatch{}, fmt.Errorf("failed to mark registration %d dispatched: %w", reg.ID, err)
	}

	disp := model.Dispatch{
		WorkerID:       reg.WorkerID,
		RequestID:      req.ID,
		RegistrationID: reg.ID,
		BidID:          bidID,
		Method:         method,
		Status:         model.DispatchStatusDispatched,
		DispatchedAt:   now,
		ShortCall:      req.ShortCall,
	}
	if err := tx.Create(&disp).Error; err != nil {
		return model.Dispatch{}, fmt.Errorf("failed to create dispatch: %w", err)
	}

	req.Filled++
	if req.Filled >= req.Requested {
		req.Status = model.RequestStatusFilled
	} else {
		req.Status = model.RequestStatusPartiallyFilled
	}
	if err := tx.Save(req).Error; err != nil {
		return model.Dispatch{}, fmt.Errorf("failed to advance fill count on request %d: %w", req.ID, err)
	}

	if err := s.recordActivity(tx, model.EntityDispatch, disp.ID, "DISPATCHED_"+method, disp); err != nil {
		return model.Dispatch{}, err
	}
	return disp, nil
}

// CheckIn records the worker reporting to the jobsite.
func (s *gormStore) CheckIn(ctx context.Context, dispatchID int64) (*model.Dispatch, error) {
	now := s.now()
	var disp model.Dispatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&disp, dispatchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("dispatch", dispatchID)
			}
			return err
		}
		if disp.Status != model.DispatchStatusDispatched {
			return conflictErr("dispatch %d is %s and cannot check in", dispatchID, disp.Status)
		}
		disp.Status = model.DispatchStatusCheckedIn
		disp.CheckedInAt = &now
		if err := tx.Save(&disp).Error; err != nil {
			return fmt.Errorf("failed to check in dispatch %d: %w", dispatchID, err)
		}
		return s.recordActivity(tx, model.EntityDispatch, disp.ID, "CHECKED_IN", disp)
	})
	if err != nil {
		return nil, err
	}
	return &disp, nil
}

// StartWork records the checked-in worker actually starting on the job.
func (s *gormStore) StartWork(ctx context.Context, dispatchID int64) (*model.Dispatch, error) {
	var disp model.Dispatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&disp, dispatchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("dispatch", dispatchID)
			}
			return err
		}
		if disp.Status != model.DispatchStatusCheckedIn {
			return conflictErr("dispatch %d is %s and cannot start work", dispatchID, disp.Status)
		}
		disp.Status = model.DispatchStatusWorking
		if err := tx.Save(&disp).Error; err != nil {
			return fmt.Errorf("failed to start work on dispatch %d: %w", dispatchID, err)
		}
		return s.recordActivity(tx, model.EntityDispatch, disp.ID, "WORK_STARTED", disp)
	})
	if err != nil {
		return nil, err
	}
	return &disp, nil
}

// TerminateDispatch closes an active dispatch. The reason drives the
// registration consequences: a short-call end at or under the book's
// threshold restores the worker's original queue position; a quit or
// discharge rolls the worker off every book and opens a blackout; a
// no-show costs a check mark.
func (s *gormStore) TerminateDispatch(ctx context.Context, dispatchID int64, reason string) (*model.Dispatch, error) {
	switch reason {
	case model.TermReasonShortCallEnd, model.TermReasonQuit, model.TermReasonFired,
		model.TermReasonLayoff, model.TermReasonNoShow:
	default:
		return nil, validationErr("reason", fmt.Sprintf("unknown termination reason %q", reason))
	}

	now := s.now()
	var disp model.Dispatch
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&disp, dispatchID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("dispatch", dispatchID)
			}
			return err
		}
		active := false
		for _, st := range model.ActiveDispatchStatuses {
			if disp.Status == st {
				active = true
			}
		}
		if !active {
			return conflictErr("dispatch %d is already %s", dispatchID, disp.Status)
		}

		var reg model.Registration
		if err := s.lockRegistration(tx, disp.RegistrationID, &reg); err != nil {
			return err
		}

		onJob := now.Sub(disp.DispatchedAt)
		hours := int(onJob.Hours())
		disp.TermReason = reason
		disp.TerminatedAt = &now
		disp.HoursWorked = hours
		disp.DaysWorked = hours / 8

		switch reason {
		case model.TermReasonShortCallEnd:
			disp.Status = model.DispatchStatusCompleted
			// Compare the full duration: 80h30m on an 80-hour book is a
			// long call even though it truncates to 80 reported hours.
			if onJob <= time.Duration(reg.Book.ShortCallHours)*time.Hour {
				// Short call: the original priority key is untouched, so
				// the worker resumes their exact queue position.
				reg.Status = model.RegStatusRegistered
			} else {
				reg.Status = model.RegStatusExpired
			}
			if err := tx.Save(&reg).Error; err != nil {
				return fmt.Errorf("failed to restore registration %d: %w", reg.ID, err)
			}
			if err := s.recordActivity(tx, model.EntityRegistration, reg.ID, "SHORT_CALL_RETURNED", reg); err != nil {
				return err
			}

		case model.TermReasonLayoff:
			disp.Status = model.DispatchStatusCompleted
			reg.Status = model.RegStatusExpired
			if err := tx.Save(&reg).Error; err != nil {
				return fmt.Errorf("failed to close registration %d: %w", reg.ID, err)
			}
			if err := s.recordActivity(tx, model.EntityRegistration, reg.ID, "POSITION_CONSUMED", reg); err != nil {
				return err
			}

		case model.TermReasonQuit, model.TermReasonFired:
			disp.Status = model.DispatchStatusTerminated
			if err := s.rollOffAllBooks(tx, disp.WorkerID, reason, now); err != nil {
				return err
			}

		case model.TermReasonNoShow:
			disp.Status = model.DispatchStatusNoShow
			reg.Status = model.RegStatusRegistered
			if err := s.applyCheckMark(tx, &reg); err != nil {
				return err
			}
		}

		if err := tx.Save(&disp).Error; err != nil {
			return fmt.Errorf("failed to terminate dispatch %d: %w", dispatchID, err)
		}
		return s.recordActivity(tx, model.EntityDispatch, disp.ID, "TERMINATED_"+reason, disp)
	})
	if err != nil {
		return nil, err
	}
	return &disp, nil
}

// rollOffAllBooks rolls the worker off every active registration and
// opens the fixed-duration blackout that follows a quit or discharge.
func (s *gormStore) rollOffAllBooks(tx *gorm.DB, workerID int64, reason string, now time.Time) error {
	rollReason := model.RollOffQuit
	blackoutReason := model.BlackoutReasonQuit
	if reason == model.TermReasonFired {
		rollReason = model.RollOffFired
		blackoutReason = model.BlackoutReasonFired
	}

	var regs []model.Registration
	if err := lockForUpdate(tx).
		Where("worker_id = ? AND status IN ?", workerID, model.ActiveRegStatuses).
		Find(&regs).Error; err != nil {
		return fmt.Errorf("failed to load registrations for worker %d: %w", workerID, err)
	}
	for i := range regs {
		regs[i].Status = model.RegStatusRolledOff
		regs[i].RollOffReason = rollReason
		if err := tx.Save(&regs[i]).Error; err != nil {
			return fmt.Errorf("failed to roll off registration %d: %w", regs[i].ID, err)
		}
		if err := s.recordActivity(tx, model.EntityRegistration, regs[i].ID, "ROLLED_OFF_"+rollReason, regs[i]); err != nil {
			return err
		}
	}

	blackout := model.Blackout{
		WorkerID: workerID,
		Reason:   blackoutReason,
		StartsAt: now,
		EndsAt:   now.AddDate(0, 0, s.rules.BlackoutDays),
		Active:   true,
	}
	if err := tx.Create(&blackout).Error; err != nil {
		return fmt.Errorf("failed to open blackout for worker %d: %w", workerID, err)
	}
	return s.recordActivity(tx, model.EntityBlackout, blackout.ID, "BLACKOUT_OPENED", blackout)
}

// ListActiveDispatches returns dispatches still on the job.
func (s *gormStore) ListActiveDispatches(ctx context.Context, f DispatchFilter, page Page) ([]model.Dispatch, int64, error) {
	page = page.Normalize()
	q := s.db.WithContext(ctx).Model(&model.Dispatch{}).
		Where("dispatches.status IN ?", model.ActiveDispatchStatuses)
	if f.WorkerID != 0 {
		q = q.Where("dispatches.worker_id = ?", f.WorkerID)
	}
	if f.BookID != 0 || f.EmployerID != 0 {
		q = q.Joins("JOIN labor_requests ON labor_requests.id = dispatches.request_id")
		if f.BookID != 0 {
			q = q.Where("labor_requests.book_id = ?", f.BookID)
		}
		if f.EmployerID != 0 {
			q = q.Where("labor_requests.employer_id = ?", f.EmployerID)
		}
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var dispatches []model.Dispatch
	if err := q.Order("dispatches.dispatched_at DESC").
		Limit(page.PerPage).Offset(page.offset()).
		Find(&dispatches).Error; err != nil {
		return nil, 0, err
	}
	return dispatches, total, nil
}

// BookDispatchStats aggregates the per-book dispatch statistics.
func (s *gormStore) BookDispatchStats(ctx context.Context, bookID int64) (*BookStats, error) {
	if _, err := s.GetBook(ctx, bookID); err != nil {
		return nil, err
	}

	stats := BookStats{BookID: bookID}
	var err error
	if stats.QueueDepth, err = s.QueueDepth(ctx, bookID); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&model.Dispatch{}).
		Joins("JOIN labor_requests ON labor_requests.id = dispatches.request_id").
		Where("labor_requests.book_id = ? AND dispatches.status IN ?", bookID, model.ActiveDispatchStatuses).
		Count(&stats.ActiveDispatches).Error; err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(&model.Dispatch{}).
		Joins("JOIN labor_requests ON labor_requests.id = dispatches.request_id").
		Where("labor_requests.book_id = ?", bookID).
		Count(&stats.DispatchesTotal).Error; err != nil {
		return nil, err
	}
	if stats.DispatchRate, err = s.DispatchRate(ctx, bookID, 0); err != nil {
		return nil, err
	}
	return &stats, nil
}
