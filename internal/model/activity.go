package model

import "time"

// Ledger entity types.
const (
	EntityBook         = "BOOK"
	EntityRegistration = "REGISTRATION"
	EntityRequest      = "REQUEST"
	EntityBid          = "BID"
	EntityDispatch     = "DISPATCH"
	EntityBlackout     = "BLACKOUT"
)

// ActivityRecord is the operational audit ledger: one append-only entry
// per state transition, written in the same transaction as the mutation
// it records. There is no code path that updates or deletes a row.
type ActivityRecord struct {
	ID         string    `gorm:"primaryKey;size:36" json:"id"`
	EntityType string    `gorm:"size:16;index:idx_activity_entity;not null" json:"entityType"`
	EntityID   int64     `gorm:"index:idx_activity_entity;not null" json:"entityId"`
	Action     string    `gorm:"size:48;not null" json:"action"`
	Detail     string    `gorm:"type:text" json:"detail"`
	ActorID    int64     `json:"actorId"`
	RecordedAt time.Time `gorm:"index;not null" json:"recordedAt"`
}

// ComplianceRecord is the stricter retention ledger behind the activity
// ledger. It carries only the facts retention requires plus a digest of
// the detail payload; the storage layer itself rejects UPDATE and DELETE
// on this table through triggers installed at migration time.
type ComplianceRecord struct {
	ID         string    `gorm:"primaryKey;size:36"`
	EntityType string    `gorm:"size:16;not null"`
	EntityID   int64     `gorm:"not null"`
	Action     string    `gorm:"size:48;not null"`
	Digest     string    `gorm:"size:64;not null"`
	RecordedAt time.Time `gorm:"not null"`
}
