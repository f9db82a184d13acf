package store

import (
	"time"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/model"
)

// Page is the pagination request common to all list operations.
type Page struct {
	Number  int
	PerPage int
}

// Normalize clamps the page to sane bounds.
func (p Page) Normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.PerPage < 1 {
		p.PerPage = 50
	}
	if p.PerPage > 200 {
		p.PerPage = 200
	}
	return p
}

func (p Page) offset() int { return (p.Number - 1) * p.PerPage }

// CreateBookParams carries the fields for a new book. Zero rule fields
// fall back to the hall-wide defaults from configuration.
type CreateBookParams struct {
	Name               string
	Classification     string
	Region             string
	Tier               int
	ReSignIntervalDays int
	GraceDays          int
	MaxCheckMarks      int
	MaxExemptionDays   int
	ShortCallHours     int
	BiddingEnabled     *bool
}

// BookFilter narrows book listings.
type BookFilter struct {
	Classification string
	Region         string
	Tier           int
	ActiveOnly     bool
}

// RegistrationFilter narrows registration listings.
type RegistrationFilter struct {
	WorkerID int64
	BookID   int64
	Status   string
}

// CreateRequestParams carries the fields for a new labor request.
type CreateRequestParams struct {
	EmployerID     int64
	BookID         int64
	Classification string
	AgreementType  string
	Requested      int
	StartAt        time.Time
	ExpiresAt      *time.Time
	ByNameWorkerID *int64
	SpecialtySkill string
	MOUJobsite     bool
	UnderScale     bool
	ShortCall      bool
	Backfill       bool
}

// RequestFilter narrows labor-request listings.
type RequestFilter struct {
	BookID     int64
	EmployerID int64
	Status     string
	From       *time.Time
	To         *time.Time
}

// BidFilter narrows bid listings.
type BidFilter struct {
	RequestID int64
	WorkerID  int64
	Status    string
}

// DispatchFilter narrows dispatch listings.
type DispatchFilter struct {
	BookID     int64
	EmployerID int64
	WorkerID   int64
}

// ActivityFilter narrows ledger listings.
type ActivityFilter struct {
	EntityType string
	EntityID   int64
	From       *time.Time
	To         *time.Time
}

// Candidate is one row of a match result: a registration annotated with
// whether declining this particular call would cost the worker a check
// mark.
type Candidate struct {
	Registration        model.Registration `json:"registration"`
	WouldIncurCheckMark bool               `json:"wouldIncurCheckMark"`
	CheckMarkExemption  string             `json:"checkMarkExemption,omitempty"`
}

// WindowStatus exposes the time gates on a request as explicit booleans
// and boundaries so callers never re-derive them from raw configuration.
type WindowStatus struct {
	BiddingOpen       bool      `json:"biddingOpen"`
	BiddingOpensAt    time.Time `json:"biddingOpensAt"`
	BiddingClosesAt   time.Time `json:"biddingClosesAt"`
	PastMorningCutoff bool      `json:"pastMorningCutoff"`
	MorningCutoffAt   time.Time `json:"morningCutoffAt"`
}

// BidSuspension reports a worker's standing in the bid-rejection rule.
type BidSuspension struct {
	WorkerID       int64      `json:"workerId"`
	Rejections     int        `json:"rejections"`
	Limit          int        `json:"limit"`
	Suspended      bool       `json:"suspended"`
	WindowStartsAt time.Time  `json:"windowStartsAt"`
	OldestExpiry   *time.Time `json:"oldestExpiry,omitempty"`
}

// SweepResult summarizes one enforcement sweep. Per-record failures land
// in Errors rather than aborting the sweep.
type SweepResult struct {
	Sweep        string   `json:"sweep"`
	Applied      bool     `json:"applied"`
	Examined     int      `json:"examined"`
	Transitioned int      `json:"transitioned"`
	EntityIDs    []int64  `json:"entityIds,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// BookStats is the per-book dispatch statistics summary.
type BookStats struct {
	BookID           int64   `json:"bookId"`
	QueueDepth       int64   `json:"queueDepth"`
	ActiveDispatches int64   `json:"activeDispatches"`
	DispatchesTotal  int64   `json:"dispatchesTotal"`
	DispatchRate     float64 `json:"dispatchRatePerDay"`
}
