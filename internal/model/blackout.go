package model

import "time"

// Blackout reasons.
const (
	BlackoutReasonQuit  = "QUIT"
	BlackoutReasonFired = "FIRED"
)

// Blackout is a fixed-duration hold preventing a worker from being
// dispatched by any method after a quit or discharge.
type Blackout struct {
	ID       int64     `gorm:"primaryKey" json:"id"`
	WorkerID int64     `gorm:"index;not null" json:"workerId"`
	Reason   string    `gorm:"size:16;not null" json:"reason"`
	StartsAt time.Time `gorm:"not null" json:"startsAt"`
	EndsAt   time.Time `gorm:"index;not null" json:"endsAt"`
	Active   bool      `gorm:"index;not null;default:true" json:"active"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
