package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/theace26/IP2A-Database-v2-sub006/config"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/clock"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/db"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/model"
)

// testInstant is a Monday morning after the cutoff, outside the bidding
// window.
var testInstant = time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)

// newTestStore builds a store over a fresh in-memory SQLite database
// with a fake clock pinned at testInstant.
func newTestStore(t *testing.T) (Store, *clock.Fake, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	// SQLite serializes writers at the database level; a single pooled
	// connection keeps concurrent transactions queued instead of failing
	// with lock errors.
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB, "sqlite"))

	clk := clock.NewFake(testInstant)
	rules := config.Default().Referral
	return NewGormStore(gormDB, &rules, clk), clk, gormDB
}

// mustCreateBook creates a book with the hall defaults.
func mustCreateBook(t *testing.T, s Store, name string) *model.Book {
	t.Helper()
	book, err := s.CreateBook(context.Background(), CreateBookParams{
		Name:           name,
		Classification: "wireman",
		Region:         "district-7",
	})
	require.NoError(t, err)
	return book
}

// mustCreateRequest opens a one-worker request on the book.
func mustCreateRequest(t *testing.T, s Store, bookID int64, mutate func(*CreateRequestParams)) *model.LaborRequest {
	t.Helper()
	params := CreateRequestParams{
		EmployerID:    501,
		BookID:        bookID,
		AgreementType: model.AgreementInside,
		Requested:     1,
		StartAt:       testInstant.Add(24 * time.Hour),
	}
	if mutate != nil {
		mutate(&params)
	}
	req, err := s.CreateRequest(context.Background(), params)
	require.NoError(t, err)
	return req
}

// activityCount returns the number of ledger entries for an entity.
func activityCount(t *testing.T, gormDB *gorm.DB, entityType string, entityID int64) int64 {
	t.Helper()
	var count int64
	require.NoError(t, gormDB.Model(&model.ActivityRecord{}).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Count(&count).Error)
	return count
}
