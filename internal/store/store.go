package store

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/theace26/IP2A-Database-v2-sub006/config"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/clock"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/model"
)

// Store defines the referral engine's persistence operations, grouped by
// component: queue manager, dispatch engine, enforcement processor, and
// the audit ledger reads. Every mutating method writes its ledger entries
// inside the same transaction as the domain mutation.
type Store interface {
	// Books
	CreateBook(ctx context.Context, p CreateBookParams) (*model.Book, error)
	GetBook(ctx context.Context, id int64) (*model.Book, error)
	ListBooks(ctx context.Context, f BookFilter, page Page) ([]model.Book, int64, error)
	SetBookActive(ctx context.Context, id int64, active bool) (*model.Book, error)

	// Registration queue
	Register(ctx context.Context, workerID, bookID int64) (*model.Registration, error)
	ReSign(ctx context.Context, registrationID int64) (*model.Registration, error)
	Resign(ctx context.Context, registrationID int64) (*model.Registration, error)
	GrantExemption(ctx context.Context, registrationID int64, reason string, until *time.Time) (*model.Registration, error)
	RevokeExemption(ctx context.Context, registrationID int64) (*model.Registration, error)
	SuspendRegistration(ctx context.Context, registrationID int64, reason string) (*model.Registration, error)
	ReinstateRegistration(ctx context.Context, registrationID int64) (*model.Registration, error)
	RecordCheckMark(ctx context.Context, registrationID int64) (*model.Registration, error)
	GetRegistration(ctx context.Context, id int64) (*model.Registration, error)
	ListRegistrations(ctx context.Context, f RegistrationFilter, page Page) ([]model.Registration, int64, error)
	QueueSnapshot(ctx context.Context, bookID int64, includeExempt bool, page Page) ([]model.Registration, int64, error)
	QueueDepth(ctx context.Context, bookID int64) (int64, error)
	DispatchRate(ctx context.Context, bookID int64, window time.Duration) (float64, error)

	// Labor requests
	CreateRequest(ctx context.Context, p CreateRequestParams) (*model.LaborRequest, error)
	GetRequest(ctx context.Context, id int64) (*model.LaborRequest, error)
	ListRequests(ctx context.Context, f RequestFilter, page Page) ([]model.LaborRequest, int64, error)
	MorningOrder(ctx context.Context, bookID int64) ([]model.LaborRequest, error)
	CancelRequest(ctx context.Context, id int64) (*model.LaborRequest, error)
	ExpireRequest(ctx context.Context, id int64) (*model.LaborRequest, error)
	RequestWindowStatus(ctx context.Context, id int64) (*WindowStatus, error)

	// Dispatch
	MatchCandidates(ctx context.Context, requestID int64) ([]Candidate, error)
	DispatchFromQueue(ctx context.Context, requestID int64) (*model.Dispatch, error)
	DispatchByName(ctx context.Context, requestID, workerID int64) (*model.Dispatch, error)
	DispatchEmergency(ctx context.Context, requestID, workerID int64) (*model.Dispatch, error)
	CheckIn(ctx context.Context, dispatchID int64) (*model.Dispatch, error)
	StartWork(ctx context.Context, dispatchID int64) (*model.Dispatch, error)
	TerminateDispatch(ctx context.Context, dispatchID int64, reason string) (*model.Dispatch, error)
	ListActiveDispatches(ctx context.Context, f DispatchFilter, page Page) ([]model.Dispatch, int64, error)
	BookDispatchStats(ctx context.Context, bookID int64) (*BookStats, error)

	// Bids
	PlaceBid(ctx context.Context, workerID, requestID int64) (*model.Bid, error)
	WithdrawBid(ctx context.Context, bidID int64) (*model.Bid, error)
	ProcessBids(ctx context.Context, requestID int64) ([]model.Bid, error)
	ListBids(ctx context.Context, f BidFilter, page Page) ([]model.Bid, int64, error)
	BidSuspensionStatus(ctx context.Context, workerID int64) (*BidSuspension, error)

	// Enforcement
	SweepReSignDeadlines(ctx context.Context, apply bool) (*SweepResult, error)
	SweepExemptions(ctx context.Context, apply bool) (*SweepResult, error)
	SweepBlackouts(ctx context.Context, apply bool) (*SweepResult, error)
	EnforcementPending(ctx context.Context) (map[string]int, error)

	// Ledger
	ListActivity(ctx context.Context, f ActivityFilter, page Page) ([]model.ActivityRecord, int64, error)
}

// gormStore implements Store using GORM.
type gormStore struct {
	db    *gorm.DB
	rules *config.ReferralConfig
	clock clock.Clock
}

// NewGormStore creates a new GORM-backed store. The rules carry the
// hall-wide defaults; the clock gates every time-sensitive check.
func NewGormStore(db *gorm.DB, rules *config.ReferralConfig, clk clock.Clock) Store {
	return &gormStore{db: db, rules: rules, clock: clk}
}

func (s *gormStore) now() time.Time { return s.clock.Now().UTC() }

var lockingUpdate = clause.Locking{Strength: "UPDATE"}

// lockForUpdate adds a row-level write lock on databases that support
// it. SQLite has no FOR UPDATE syntax but serializes writers at the
// database level, which gives the same read-then-write atomicity.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(lockingUpdate)
}
