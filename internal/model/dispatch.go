package model

import "time"

// Dispatch methods.
const (
	DispatchMethodQueue     = "QUEUE"
	DispatchMethodByName    = "BY_NAME"
	DispatchMethodBid       = "BID"
	DispatchMethodEmergency = "EMERGENCY"
)

// Dispatch statuses.
const (
	DispatchStatusDispatched = "DISPATCHED"
	DispatchStatusCheckedIn  = "CHECKED_IN"
	DispatchStatusWorking    = "WORKING"
	DispatchStatusCompleted  = "COMPLETED"
	DispatchStatusTerminated = "TERMINATED"
	DispatchStatusNoShow     = "NO_SHOW"
	DispatchStatusRejected   = "REJECTED"
)

// Termination reasons. The reason drives what happens to the worker's
// registrations: a short-call end restores the original queue position, a
// quit or discharge rolls the worker off every book and opens a blackout.
const (
	TermReasonShortCallEnd = "SHORT_CALL_END"
	TermReasonQuit         = "QUIT"
	TermReasonFired        = "FIRED"
	TermReasonLayoff       = "LAYOFF"
	TermReasonNoShow       = "NO_SHOW"
)

// Dispatch is the result of matching a registration to a labor request,
// directly from the queue, by name, or through an accepted bid.
type Dispatch struct {
	ID             int64  `gorm:"primaryKey" json:"id"`
	WorkerID       int64  `gorm:"index;not null" json:"workerId"`
	RequestID      int64  `gorm:"index;not null" json:"requestId"`
	RegistrationID int64  `gorm:"index;not null" json:"registrationId"`
	BidID          *int64 `json:"bidId,omitempty"`

	Method string `gorm:"size:16;not null" json:"method"`
	Status string `gorm:"size:16;index;not null" json:"status"`

	TermReason       string     `gorm:"size:20" json:"termReason,omitempty"`
	DispatchedAt     time.Time  `gorm:"not null" json:"dispatchedAt"`
	CheckedInAt      *time.Time `json:"checkedInAt,omitempty"`
	TerminatedAt     *time.Time `json:"terminatedAt,omitempty"`
	DaysWorked       int        `gorm:"not null;default:0" json:"daysWorked"`
	HoursWorked      int        `gorm:"not null;default:0" json:"hoursWorked"`
	ShortCall        bool       `gorm:"not null;default:false" json:"shortCall"`
	CollusionFlagged bool       `gorm:"not null;default:false" json:"collusionFlagged"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Associations
	Request      LaborRequest `gorm:"foreignKey:RequestID;constraint:OnDelete:RESTRICT" json:"-"`
	Registration Registration `gorm:"foreignKey:RegistrationID;constraint:OnDelete:RESTRICT" json:"-"`
}

// ActiveDispatchStatuses are the statuses of a dispatch still on the job.
var ActiveDispatchStatuses = []string{
	DispatchStatusDispatched,
	DispatchStatusCheckedIn,
	DispatchStatusWorking,
}
