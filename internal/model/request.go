package model

import "time"

// Labor request statuses.
const (
	RequestStatusOpen            = "OPEN"
	RequestStatusPartiallyFilled = "PARTIALLY_FILLED"
	RequestStatusFilled          = "FILLED"
	RequestStatusCancelled       = "CANCELLED"
	RequestStatusExpired         = "EXPIRED"
)

// Agreement types carried on a request. The agreement type affects which
// declines incur a check mark.
const (
	AgreementInside   = "INSIDE"
	AgreementMOU      = "MOU"
	AgreementPortable = "PORTABLE"
)

// LaborRequest is an employer's ask for N workers of a classification on
// a book. The flags mirror the referral-procedure exceptions under which
// declining the call costs the worker no check mark.
type LaborRequest struct {
	ID             int64  `gorm:"primaryKey" json:"id"`
	EmployerID     int64  `gorm:"index;not null" json:"employerId"`
	BookID         int64  `gorm:"index;not null" json:"bookId"`
	Classification string `gorm:"size:64;not null" json:"classification"`
	AgreementType  string `gorm:"size:16;not null" json:"agreementType"`

	Requested int `gorm:"not null" json:"requested"`
	Filled    int `gorm:"not null;default:0" json:"filled"`

	StartAt        time.Time  `gorm:"not null" json:"startAt"`
	ExpiresAt      *time.Time `json:"expiresAt,omitempty"`
	ByNameWorkerID *int64     `json:"byNameWorkerId,omitempty"`

	SpecialtySkill string `gorm:"size:64" json:"specialtySkill,omitempty"`
	MOUJobsite     bool   `gorm:"not null;default:false" json:"mouJobsite"`
	UnderScale     bool   `gorm:"not null;default:false" json:"underScale"`
	ShortCall      bool   `gorm:"not null;default:false" json:"shortCall"`
	Backfill       bool   `gorm:"not null;default:false" json:"backfill"`

	Status string `gorm:"size:20;index;not null" json:"status"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Associations
	Book Book `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}

// Open reports whether the request can still take dispatches.
func (r *LaborRequest) Open() bool {
	return r.Status == RequestStatusOpen || r.Status == RequestStatusPartiallyFilled
}

// Remaining is the number of unfilled slots.
func (r *LaborRequest) Remaining() int {
	return r.Requested - r.Filled
}
