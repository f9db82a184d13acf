package model

import "time"

// Book tiers. Tier 1 is the local members' book, tier 2 the travelers'
// book; higher tiers cover everyone else.
const (
	TierLocal    = 1
	TierTraveler = 2
)

// Book is an out-of-work registration queue scoped by trade
// classification, region, and tier. Identity is immutable once created;
// books are deactivated, never deleted.
type Book struct {
	ID             int64  `gorm:"primaryKey" json:"id"`
	Name           string `gorm:"uniqueIndex;size:128;not null" json:"name"`
	Classification string `gorm:"size:64;index;not null" json:"classification"`
	Region         string `gorm:"size:64;not null" json:"region"`
	Tier           int    `gorm:"not null;default:1" json:"tier"`

	ReSignIntervalDays int  `gorm:"not null" json:"reSignIntervalDays"`
	GraceDays          int  `gorm:"not null" json:"graceDays"`
	MaxCheckMarks      int  `gorm:"not null" json:"maxCheckMarks"`
	MaxExemptionDays   int  `gorm:"not null" json:"maxExemptionDays"`
	ShortCallHours     int  `gorm:"not null" json:"shortCallHours"`
	BiddingEnabled     bool `gorm:"not null;default:true" json:"biddingEnabled"`
	Active             bool `gorm:"not null;default:true" json:"active"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
