package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/metrics"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/model"
)

// Sweep names reported in results and metrics.
const (
	SweepReSign    = "re_sign_deadlines"
	SweepExemption = "exemptions"
	SweepBlackout  = "blackouts"
)

// SweepReSignDeadlines expires every REGISTERED registration past its
// re-sign deadline plus the book's grace period. Idempotent: a second
// run finds nothing to transition and writes nothing to the ledger.
func (s *gormStore) SweepReSignDeadlines(ctx context.Context, apply bool) (*SweepResult, error) {
	now := s.now()
	result := &SweepResult{Sweep: SweepReSign, Applied: apply}

	// Cheap prefilter; the per-book grace period is applied below.
	var regs []model.Registration
	err := s.db.WithContext(ctx).Preload("Book").
		Where("status = ? AND re_sign_deadline < ?", model.RegStatusRegistered, now).
		Find(&regs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan re-sign deadlines: %w", err)
	}

	for _, reg := range regs {
		grace := time.Duration(reg.Book.GraceDays) * 24 * time.Hour
		if !now.After(reg.ReSignDeadline.Add(grace)) {
			continue
		}
		result.Examined++
		if !apply {
			result.Transitioned++
			result.EntityIDs = append(result.EntityIDs, reg.ID)
			continue
		}
		if err := s.expireRegistration(ctx, reg.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("registration %d: %v", reg.ID, err))
			continue
		}
		result.Transitioned++
		result.EntityIDs = append(result.EntityIDs, reg.ID)
	}

	if apply {
		metrics.SweepTransitionsTotal.WithLabelValues(SweepReSign).Add(float64(result.Transitioned))
	}
	return result, nil
}

// expireRegistration applies one re-sign expiry in its own transaction,
// re-checking both the status and the deadline under the row lock: a
// dispatch or a re-sign that committed after the scan wins and the sweep
// skips the row.
func (s *gormStore) expireRegistration(ctx context.Context, regID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reg model.Registration
		if err := s.lockRegistration(tx, regID, &reg); err != nil {
			return err
		}
		if reg.Status != model.RegStatusRegistered {
			return nil
		}
		grace := time.Duration(reg.Book.GraceDays) * 24 * time.Hour
		if !s.now().After(reg.ReSignDeadline.Add(grace)) {
			return nil
		}
		reg.Status = model.RegStatusExpired
		if err := tx.Save(&reg).Error; err != nil {
			return fmt.Errorf("save: %w", err)
		}
		return s.recordActivity(tx, model.EntityRegistration, reg.ID, "EXPIRED_RE_SIGN", reg)
	})
}

// SweepExemptions returns exempt registrations whose window has closed
// back to the queue with a fresh re-sign cycle.
func (s *gormStore) SweepExemptions(ctx context.Context, apply bool) (*SweepResult, error) {
	now := s.now()
	result := &SweepResult{Sweep: SweepExemption, Applied: apply}

	var regs []model.Registration
	err := s.db.WithContext(ctx).
		Where("status = ? AND exempt_until IS NOT NULL AND exempt_until < ?", model.RegStatusExempt, now).
		Find(&regs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan exemptions: %w", err)
	}

	for _, reg := range regs {
		result.Examined++
		if !apply {
			result.Transitioned++
			result.EntityIDs = append(result.EntityIDs, reg.ID)
			continue
		}
		if err := s.restoreExempt(ctx, reg.ID, now); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("registration %d: %v", reg.ID, err))
			continue
		}
		result.Transitioned++
		result.EntityIDs = append(result.EntityIDs, reg.ID)
	}

	if apply {
		metrics.SweepTransitionsTotal.WithLabelValues(SweepExemption).Add(float64(result.Transitioned))
	}
	return result, nil
}

func (s *gormStore) restoreExempt(ctx context.Context, regID int64, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var reg model.Registration
		if err := s.lockRegistration(tx, regID, &reg); err != nil {
			return err
		}
		if reg.Status != model.RegStatusExempt || reg.ExemptUntil == nil || !reg.ExemptUntil.Before(now) {
			return nil
		}
		reg.Status = model.RegStatusRegistered
		reg.ExemptReason = ""
		reg.ExemptUntil = nil
		reg.ReSignDeadline = now.AddDate(0, 0, reg.Book.ReSignIntervalDays)
		if err := tx.Save(&reg).Error; err != nil {
			return fmt.Errorf("save: %w", err)
		}
		return s.recordActivity(tx, model.EntityRegistration, reg.ID, "EXEMPTION_ELAPSED", reg)
	})
}

// SweepBlackouts deactivates blackouts whose end date has passed.
func (s *gormStore) SweepBlackouts(ctx context.Context, apply bool) (*SweepResult, error) {
	now := s.now()
	result := &SweepResult{Sweep: SweepBlackout, Applied: apply}

	var blackouts []model.Blackout
	err := s.db.WithContext(ctx).
		Where("active = ? AND ends_at <= ?", true, now).
		Find(&blackouts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to scan blackouts: %w", err)
	}

	for _, b := range blackouts {
		result.Examined++
		if !apply {
			result.Transitioned++
			result.EntityIDs = append(result.EntityIDs, b.ID)
			continue
		}
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var blackout model.Blackout
			if err := lockForUpdate(tx).First(&blackout, b.ID).Error; err != nil {
				return err
			}
			if !blackout.Active {
				return nil
			}
			blackout.Active = false
			if err := tx.Save(&blackout).Error; err != nil {
				return fmt.Errorf("save: %w", err)
			}
			return s.recordActivity(tx, model.EntityBlackout, blackout.ID, "BLACKOUT_EXPIRED", blackout)
		})
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("blackout %d: %v", b.ID, err))
			continue
		}
		result.Transitioned++
		result.EntityIDs = append(result.EntityIDs, b.ID)
	}

	if apply {
		metrics.SweepTransitionsTotal.WithLabelValues(SweepBlackout).Add(float64(result.Transitioned))
	}
	return result, nil
}

// EnforcementPending reports how many records each sweep would touch.
func (s *gormStore) EnforcementPending(ctx context.Context) (map[string]int, error) {
	pending := make(map[string]int, 3)

	reSign, err := s.SweepReSignDeadlines(ctx, false)
	if err != nil {
		return nil, err
	}
	pending[SweepReSign] = reSign.Transitioned

	exemptions, err := s.SweepExemptions(ctx, false)
	if err != nil {
		return nil, err
	}
	pending[SweepExemption] = exemptions.Transitioned

	blackouts, err := s.SweepBlackouts(ctx, false)
	if err != nil {
		return nil, err
	}
	pending[SweepBlackout] = blackouts.Transitioned

	return pending, nil
}
