package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/metrics"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/model"
)

// keyEpoch anchors the day-ordinal integer part of priority keys.
var keyEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// keyStep is the intra-day sequence increment (two fractional digits).
var keyStep = decimal.New(1, -2)

// CreateBook creates a new registration book. Zero-valued rule fields
// fall back to the hall-wide defaults.
func (s *gormStore) CreateBook(ctx context.Context, p CreateBookParams) (*model.Book, error) {
	if p.Name == "" {
		return nil, validationErr("name", "must not be empty")
	}
	if p.Classification == "" {
		return nil, validationErr("classification", "must not be empty")
	}
	if p.Tier < 1 {
		p.Tier = model.TierLocal
	}

	book := model.Book{
		Name:               p.Name,
		Classification:     p.Classification,
		Region:             p.Region,
		Tier:               p.Tier,
		ReSignIntervalDays: orDefault(p.ReSignIntervalDays, s.rules.ReSignIntervalDays),
		GraceDays:          orDefault(p.GraceDays, s.rules.GraceDays),
		MaxCheckMarks:      orDefault(p.MaxCheckMarks, s.rules.MaxCheckMarks),
		MaxExemptionDays:   orDefault(p.MaxExemptionDays, s.rules.MaxExemptionDays),
		ShortCallHours:     orDefault(p.ShortCallHours, s.rules.ShortCallHours),
		BiddingEnabled:     true,
		Active:             true,
	}
	if p.BiddingEnabled != nil {
		book.BiddingEnabled = *p.BiddingEnabled
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&book).Error; err != nil {
			return fmt.Errorf("failed to create book: %w", err)
		}
		return s.recordActivity(tx, model.EntityBook, book.ID, "BOOK_CREATED", book)
	})
	if err != nil {
		return nil, err
	}
	return &book, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// GetBook fetches a book by ID.
func (s *gormStore) GetBook(ctx context.Context, id int64) (*model.Book, error) {
	var book model.Book
	if err := s.db.WithContext(ctx).First(&book, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("book", id)
		}
		return nil, err
	}
	return &book, nil
}

// ListBooks returns books matching the filter.
func (s *gormStore) ListBooks(ctx context.Context, f BookFilter, page Page) ([]model.Book, int64, error) {
	page = page.Normalize()
	q := s.db.WithContext(ctx).Model(&model.Book{})
	if f.Classification != "" {
		q = q.Where("classification = ?", f.Classification)
	}
	if f.Region != "" {
		q = q.Where("region = ?", f.Region)
	}
	if f.Tier != 0 {
		q = q.Where("tier = ?", f.Tier)
	}
	if f.ActiveOnly {
		q = q.Where("active = ?", true)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var books []model.Book
	if err := q.Order("tier ASC, name ASC").Limit(page.PerPage).Offset(page.offset()).Find(&books).Error; err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

// SetBookActive activates or deactivates a book. Books are never deleted.
func (s *gormStore) SetBookActive(ctx context.Context, id int64, active bool) (*model.Book, error) {
	var book model.Book
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockForUpdate(tx).First(&book, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("book", id)
			}
			return err
		}
		if book.Active == active {
			return nil
		}
		book.Active = active
		if err := tx.Save(&book).Error; err != nil {
			return fmt.Errorf("failed to update book %d: %w", id, err)
		}
		action := "BOOK_DEACTIVATED"
		if active {
			action = "BOOK_ACTIVATED"
		}
		return s.recordActivity(tx, model.EntityBook, book.ID, action, book)
	})
	if err != nil {
		return nil, err
	}
	return &book, nil
}

// Register signs a worker onto a book at the bottom of the queue. The
// book row is locked for the key computation so two concurrent
// registrations can never receive the same priority key.
func (s *gormStore) Register(ctx context.Context, workerID, bookID int64) (*model.Registration, error) {
	if workerID <= 0 {
		return nil, validationErr("workerId", "must be a positive identifier")
	}

	now := s.now()
	var reg model.Registration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var book model.Book
		if err := lockForUpdate(tx).First(&book, bookID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundErr("book", bookID)
			}
			return err
		}
		if !book.Active {
			return notEligibleErr("book %d is not accepting registrations", bookID)
		}

		var existing int64
		if err := tx.Model(&model.Registration{}).
			Where("worker_id = ? AND book_id = ? AND status IN ?", workerID, bookID, model.ActiveRegStatuses).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return conflictErr("worker %d is already registered on book %d", workerID, bookID)
		}

		key, err := s.nextPriorityKey(tx, bookID, now)
		if err != nil {
			return err
		}

		reg = model.Registration{
			WorkerID:       workerID,
			BookID:         bookID,
			PriorityKey:    key,
			Status:         model.RegStatusRegistered,
			LastReSignedAt: now,
			ReSignDeadline: now.AddDate(0, 0, book.ReSignIntervalDays),
		}
		if err := tx.Create(&reg).Error; err != nil {
			return fmt.Errorf("failed to create registration: %w", err)
		}
		return s.recordActivity(tx, model.EntityRegistration, reg.ID, "REGISTERED", reg)
	})
	if err != nil {
		return nil, err
	}
	metrics.RegistrationsTotal.Inc()
	return &reg, nil
}

// nextPriorityKey computes the next key for a book: the registration
// day's ordinal plus an intra-day sequence in the two fractional digits.
// Keys are monotonically non-decreasing in creation order across the
// whole life of the book, so terminal registrations never free a key for
// reuse. Caller must hold the book row lock.
func (s *gormStore) nextPriorityKey(tx *gorm.DB, bookID int64, now time.Time) (decimal.Decimal, error) {
	dayOrdinal := int64(now.Sub(keyEpoch) / (24 * time.Hour))
	base := decimal.NewFromInt(dayOrdinal)

	var row struct {
		Max decimal.NullDecimal
	}
	if err := tx.Model(&model.Registration{}).
		Select("MAX(priority_key) AS max").
		Where("book_id = ?", bookID).
		Scan(&row).Error; err != nil {
		return decimal.Zero, fmt.Errorf("failed to read max priority key: %w", err)
	}

	if row.Max.Valid && row.Max.Decimal.GreaterThanOrEqual(base) {
		return row.Max.Decimal.Add(keyStep), nil
	}
	return base.Add(keyStep), nil
}

// ReSign extends a registration's re-sign deadline by the book's
// interval. Past the grace period the worker is no longer eligible; the
// enforcement sweep handles the expiry instead.
func (s *gormStore) ReSign(ctx context.Context, registrationID int64) (*model.Registration, error) {
	now := s.now()
	var reg model.Registration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockRegistration(tx, registrationID, &reg); err != nil {
			return err
		}
		if reg.Status != model.RegStatusRegistered && reg.Status != model.RegStatusExempt {
			return notEligibleErr("registration %d is %s and cannot re-sign", registrationID, reg.Status)
		}
		grace := time.Duration(reg.Book.GraceDays) * 24 * time.Hour
		if now.After(reg.ReSignDeadline.Add(grace)) {
			return notEligibleErr("re-sign period for registration %d has lapsed", registrationID)
		}

		reg.LastReSignedAt = now
		reg.ReSignDeadline = now.AddDate(0, 0, reg.Book.ReSignIntervalDays)
		if err := tx.Save(&reg).Error; err != nil {
			return fmt.Errorf("failed to re-sign registration %d: %w", registrationID, err)
		}
		return s.recordActivity(tx, model.EntityRegistration, reg.ID, "RE_SIGNED", reg)
	})
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// Resign voluntarily removes a worker from the book. The record is kept
// in RESIGNED status for history.
func (s *gormStore) Resign(ctx context.Context, registrationID int64) (*model.Registration, error) {
	var reg model.Registration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockRegistration(tx, registrationID, &reg); err != nil {
			return err
		}
		if reg.Terminal() {
			return conflictErr("registration %d is already closed", registrationID)
		}
		if reg.Status == model.RegStatusDispatched {
			return notEligibleErr("registration %d is on dispatch; terminate the dispatch first", registrationID)
		}
		reg.Status = model.RegStatusResigned
		if err := tx.Save(&reg).Error; err != nil {
			return fmt.Errorf("failed to resign registration %d: %w", registrationID, err)
		}
		return s.recordActivity(tx, model.EntityRegistration, reg.ID, "RESIGNED", reg)
	})
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GrantExemption places a registration in EXEMPT status with a reason and
// an optional end date capped by the book's maximum exemption duration.
// Exempt registrations keep their priority key but are skipped by
// dispatch.
func (s *gormStore) GrantExemption(ctx context.Context, registrationID int64, reason string, until *time.Time) (*model.Registration, error) {
	if reason == "" {
		return nil, validationErr("reason", "must not be empty")
	}
	now := s.now()
	var reg model.Registration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockRegistration(tx, registrationID, &reg); err != nil {
			return err
		}
		if reg.Status != model.RegStatusRegistered {
			return notEligibleErr("registration %d is %s and cannot be exempted", registrationID, reg.Status)
		}
		if until != nil {
			maxUntil := now.AddDate(0, 0, reg.Book.MaxExemptionDays)
			if until.After(maxUntil) {
				return notEligibleErr("exemption may not extend past %s", maxUntil.Format(time.RFC3339))
			}
		}

		reg.Status = model.RegStatusExempt
		reg.ExemptReason = reason
		reg.ExemptUntil = until
		if err := tx.Save(&reg).Error; err != nil {
			return fmt.Errorf("failed to exempt registration %d: %w", registrationID, err)
		}
		return s.recordActivity(tx, model.EntityRegistration, reg.ID, "EXEMPTION_GRANTED", reg)
	})
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// RevokeExemption returns an exempt registration to the queue.
func (s *gormStore) RevokeExemption(ctx context.Context, registrationID int64) (*model.Registration, error) {
	var reg model.Registration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockRegistration(tx, registrationID, &reg); err != nil {
			return err
		}
		if reg.Status != model.RegStatusExempt {
			return conflictErr("registration %d is not exempt", registrationID)
		}
		reg.Status = model.RegStatusRegistered
		reg.ExemptReason = ""
		reg.ExemptUntil = nil
		if err := tx.Save(&reg).Error; err != nil {
			return fmt.Errorf("failed to revoke exemption on registration %d: %w", registrationID, err)
		}
		return s.recordActivity(tx, model.EntityRegistration, reg.ID, "EXEMPTION_REVOKED", reg)
	})
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// SuspendRegistration places a registration in SUSPENDED status, a
// disciplinary hold pending hall review. The priority key is kept, but
// the worker is skipped by dispatch and cannot bid until reinstated.
func (s *gormStore) SuspendRegistration(ctx context.Context, registrationID int64, reason string) (*model.Registration, error) {
	if reason == "" {
		return nil, validationErr("reason", "must not be empty")
	}
	var reg model.Registration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockRegistration(tx, registrationID, &reg); err != nil {
			return err
		}
		if reg.Status != model.RegStatusRegistered {
			return notEligibleErr("registration %d is %s and cannot be suspended", registrationID, reg.Status)
		}
		reg.Status = model.RegStatusSuspended
		reg.SuspendReason = reason
		if err := tx.Save(&reg).Error; err != nil {
			return fmt.Errorf("failed to suspend registration %d: %w", registrationID, err)
		}
		return s.recordActivity(tx, model.EntityRegistration, reg.ID, "SUSPENDED", reg)
	})
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// ReinstateRegistration returns a suspended registration to the queue at
// its original position.
func (s *gormStore) ReinstateRegistration(ctx context.Context, registrationID int64) (*model.Registration, error) {
	var reg model.Registration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockRegistration(tx, registrationID, &reg); err != nil {
			return err
		}
		if reg.Status != model.RegStatusSuspended {
			return conflictErr("registration %d is not suspended", registrationID)
		}
		reg.Status = model.RegStatusRegistered
		reg.SuspendReason = ""
		if err := tx.Save(&reg).Error; err != nil {
			return fmt.Errorf("failed to reinstate registration %d: %w", registrationID, err)
		}
		return s.recordActivity(tx, model.EntityRegistration, reg.ID, "REINSTATED", reg)
	})
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// RecordCheckMark increments the check-mark count under a row lock and,
// at the book's maximum, rolls the registration off in the same
// transaction. Two concurrent check marks therefore cannot both observe
// the pre-threshold count.
func (s *gormStore) RecordCheckMark(ctx context.Context, registrationID int64) (*model.Registration, error) {
	var reg model.Registration
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.lockRegistration(tx, registrationID, &reg); err != nil {
			return err
		}
		return s.applyCheckMark(tx, &reg)
	})
	if err != nil {
		return nil, err
	}
	metrics.CheckMarksTotal.Inc()
	return &reg, nil
}

// applyCheckMark performs the locked increment-and-maybe-roll-off. The
// caller must hold the registration row lock with Book preloaded.
func (s *gormStore) applyCheckMark(tx *gorm.DB, reg *model.Registration) error {
	if reg.Status != model.RegStatusRegistered {
		return notEligibleErr("registration %d is %s and cannot take a check mark", reg.ID, reg.Status)
	}

	reg.CheckMarks++
	action := "CHECK_MARK_RECORDED"
	if reg.CheckMarks >= reg.Book.MaxCheckMarks {
		reg.Status = model.RegStatusRolledOff
		reg.RollOffReason = model.RollOffCheckMarks
		action = "ROLLED_OFF_CHECK_MARKS"
	}
	if err := tx.Save(reg).Error; err != nil {
		return fmt.Errorf("failed to record check mark on registration %d: %w", reg.ID, err)
	}
	return s.recordActivity(tx, model.EntityRegistration, reg.ID, action, reg)
}

// GetRegistration fetches a registration by ID.
func (s *gormStore) GetRegistration(ctx context.Context, id int64) (*model.Registration, error) {
	var reg model.Registration
	if err := s.db.WithContext(ctx).Preload("Book").First(&reg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("registration", id)
		}
		return nil, err
	}
	return &reg, nil
}

// ListRegistrations returns registrations matching the filter, queue
// order within each book.
func (s *gormStore) ListRegistrations(ctx context.Context, f RegistrationFilter, page Page) ([]model.Registration, int64, error) {
	page = page.Normalize()
	q := s.db.WithContext(ctx).Model(&model.Registration{})
	if f.WorkerID != 0 {
		q = q.Where("worker_id = ?", f.WorkerID)
	}
	if f.BookID != 0 {
		q = q.Where("book_id = ?", f.BookID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var regs []model.Registration
	if err := q.Order("book_id ASC, priority_key ASC").
		Limit(page.PerPage).Offset(page.offset()).
		Find(&regs).Error; err != nil {
		return nil, 0, err
	}
	return regs, total, nil
}

// QueueSnapshot returns the book's queue in ascending priority-key
// order. This ordering is the single source of truth for dispatch
// eligibility.
func (s *gormStore) QueueSnapshot(ctx context.Context, bookID int64, includeExempt bool, page Page) ([]model.Registration, int64, error) {
	page = page.Normalize()
	statuses := []string{model.RegStatusRegistered}
	if includeExempt {
		statuses = append(statuses, model.RegStatusExempt)
	}

	q := s.db.WithContext(ctx).Model(&model.Registration{}).
		Where("book_id = ? AND status IN ?", bookID, statuses)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var regs []model.Registration
	if err := q.Order("priority_key ASC").
		Limit(page.PerPage).Offset(page.offset()).
		Find(&regs).Error; err != nil {
		return nil, 0, err
	}
	return regs, total, nil
}

// QueueDepth counts the dispatchable registrations on a book.
func (s *gormStore) QueueDepth(ctx context.Context, bookID int64) (int64, error) {
	var depth int64
	err := s.db.WithContext(ctx).Model(&model.Registration{}).
		Where("book_id = ? AND status = ?", bookID, model.RegStatusRegistered).
		Count(&depth).Error
	if err != nil {
		return 0, err
	}
	metrics.QueueDepth.WithLabelValues(fmt.Sprint(bookID)).Set(float64(depth))
	return depth, nil
}

// DispatchRate returns dispatches per day on a book over the window.
func (s *gormStore) DispatchRate(ctx context.Context, bookID int64, window time.Duration) (float64, error) {
	if window <= 0 {
		window = 30 * 24 * time.Hour
	}
	since := s.now().Add(-window)
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Dispatch{}).
		Joins("JOIN labor_requests ON labor_requests.id = dispatches.request_id").
		Where("labor_requests.book_id = ? AND dispatches.dispatched_at >= ?", bookID, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	days := window.Hours() / 24
	return float64(count) / days, nil
}

// lockRegistration loads a registration with its book under a row-level
// write lock.
func (s *gormStore) lockRegistration(tx *gorm.DB, id int64, reg *model.Registration) error {
	if err := lockForUpdate(tx).First(reg, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return notFoundErr("registration", id)
		}
		return err
	}
	if err := tx.First(&reg.Book, reg.BookID).Error; err != nil {
		return fmt.Errorf("failed to load book %d: %w", reg.BookID, err)
	}
	return nil
}
