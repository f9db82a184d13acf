package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Registration lifecycle statuses.
const (
	RegStatusRegistered = "REGISTERED"
	RegStatusDispatched = "DISPATCHED"
	RegStatusExempt     = "EXEMPT"
	RegStatusSuspended  = "SUSPENDED"
	RegStatusResigned   = "RESIGNED"
	RegStatusRolledOff  = "ROLLED_OFF"
	RegStatusExpired    = "EXPIRED"
)

// Roll-off reasons.
const (
	RollOffCheckMarks = "CHECK_MARKS"
	RollOffQuit       = "QUIT"
	RollOffFired      = "FIRED"
)

// ActiveRegStatuses are the non-terminal statuses. A worker may hold at
// most one registration in any of these per book.
var ActiveRegStatuses = []string{
	RegStatusRegistered,
	RegStatusDispatched,
	RegStatusExempt,
	RegStatusSuspended,
}

// Registration is a worker's position on one book. The priority key is an
// exact decimal: the integer part is the day ordinal of the registration
// day and the two fractional digits are the intra-day sequence, so queue
// order is strict FIFO even among same-day sign-ins. Terminal
// registrations are retained for history, never deleted.
type Registration struct {
	ID          int64           `gorm:"primaryKey" json:"id"`
	WorkerID    int64           `gorm:"index;not null" json:"workerId"`
	BookID      int64           `gorm:"index;not null" json:"bookId"`
	PriorityKey decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"priorityKey"`
	Status      string          `gorm:"size:16;index;not null" json:"status"`

	CheckMarks    int        `gorm:"not null;default:0" json:"checkMarks"`
	RollOffReason string     `gorm:"size:32" json:"rollOffReason,omitempty"`
	ExemptReason  string     `gorm:"size:128" json:"exemptReason,omitempty"`
	ExemptUntil   *time.Time `json:"exemptUntil,omitempty"`
	SuspendReason string     `gorm:"size:128" json:"suspendReason,omitempty"`

	LastReSignedAt time.Time `gorm:"not null" json:"lastReSignedAt"`
	ReSignDeadline time.Time `gorm:"index;not null" json:"reSignDeadline"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Associations
	Book Book `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}

// Terminal reports whether the registration has left the queue for good.
func (r *Registration) Terminal() bool {
	switch r.Status {
	case RegStatusResigned, RegStatusRolledOff, RegStatusExpired:
		return true
	}
	return false
}
