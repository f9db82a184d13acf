package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/model"
)

// recordActivity appends the dual audit trail for one state transition:
// the queryable activity record plus the stricter compliance record. It
// must be called inside the transaction performing the mutation; if
// either write fails the caller's transaction rolls back, so no mutation
// ever lands without its audit trail.
func (s *gormStore) recordActivity(tx *gorm.DB, entityType string, entityID int64, action string, detail any) error {
	payload, err := json.Marshal(detail)
	if err != nil {
		return fmt.Errorf("failed to encode ledger detail: %w", err)
	}

	now := s.now()
	activity := model.ActivityRecord{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Detail:     string(payload),
		RecordedAt: now,
	}
	if err := tx.Create(&activity).Error; err != nil {
		return fmt.Errorf("failed to write activity record: %w", err)
	}

	sum := sha256.Sum256(payload)
	compliance := model.ComplianceRecord{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Digest:     hex.EncodeToString(sum[:]),
		RecordedAt: now,
	}
	if err := tx.Create(&compliance).Error; err != nil {
		return fmt.Errorf("failed to write compliance record: %w", err)
	}
	return nil
}

// ListActivity returns ledger entries, newest first.
func (s *gormStore) ListActivity(ctx context.Context, f ActivityFilter, page Page) ([]model.ActivityRecord, int64, error) {
	page = page.Normalize()
	q := s.db.WithContext(ctx).Model(&model.ActivityRecord{})
	if f.EntityType != "" {
		q = q.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != 0 {
		q = q.Where("entity_id = ?", f.EntityID)
	}
	if f.From != nil {
		q = q.Where("recorded_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("recorded_at < ?", *f.To)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var records []model.ActivityRecord
	if err := q.Order("recorded_at DESC, id DESC").
		Limit(page.PerPage).Offset(page.offset()).
		Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
