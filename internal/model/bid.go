package model

import "time"

// Bid statuses.
const (
	BidStatusPending   = "PENDING"
	BidStatusAccepted  = "ACCEPTED"
	BidStatusRejected  = "REJECTED"
	BidStatusWithdrawn = "WITHDRAWN"
	BidStatusExpired   = "EXPIRED"
)

// Bid is a worker's expression of interest in a labor request, placed
// only inside the configured overnight bidding window.
type Bid struct {
	ID             int64      `gorm:"primaryKey" json:"id"`
	WorkerID       int64      `gorm:"index;not null" json:"workerId"`
	RequestID      int64      `gorm:"index;not null" json:"requestId"`
	RegistrationID int64      `gorm:"not null" json:"registrationId"`
	Status         string     `gorm:"size:16;index;not null" json:"status"`
	PlacedAt       time.Time  `gorm:"not null" json:"placedAt"`
	ResolvedAt     *time.Time `json:"resolvedAt,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Associations
	Request      LaborRequest `gorm:"foreignKey:RequestID;constraint:OnDelete:RESTRICT" json:"-"`
	Registration Registration `gorm:"foreignKey:RegistrationID;constraint:OnDelete:RESTRICT" json:"-"`
}
