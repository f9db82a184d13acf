package internal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/theace26/IP2A-Database-v2-sub006/config"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/api"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/clock"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/db"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/enforcement"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/model"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/store"
)

// newTestRouter wires a full API stack over an in-memory database.
func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	testDB, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := testDB.DB()
		sqlDB.Close()
	})
	require.NoError(t, db.Migrate(testDB, "sqlite"))

	cfg := config.Default()
	cfg.Server.RateLimitPerSec = 1000
	cfg.Server.RateLimitBurst = 1000

	hallStore := store.NewGormStore(testDB, &cfg.Referral, clock.Real())
	runner := enforcement.NewRunner(hallStore, cfg.Enforcement.Schedule)
	return api.NewRouter(hallStore, runner, &cfg.Server)
}

// do issues one request against the router and decodes the JSON reply.
func do(t *testing.T, r *gin.Engine, method, path string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if out != nil && w.Code < 300 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), "body: %s", w.Body.String())
	}
	return w.Code
}

// TestReferralLifecycle walks the whole referral flow through the HTTP
// surface: open a book, sign workers on, take labor requests, dispatch
// in queue order, and verify the consequences of a quit.
func TestReferralLifecycle(t *testing.T) {
	r := newTestRouter(t)

	var book model.Book
	code := do(t, r, http.MethodPost, "/api/books", gin.H{
		"name":           "Book 1 Inside Wireman",
		"classification": "wireman",
		"region":         "district-7",
	}, &book)
	require.Equal(t, http.StatusCreated, code)
	require.NotZero(t, book.ID)

	// --- Workers sign the book in order ---
	var first, second model.Registration
	code = do(t, r, http.MethodPost, "/api/registrations", gin.H{"workerId": 11, "bookId": book.ID}, &first)
	require.Equal(t, http.StatusCreated, code)
	code = do(t, r, http.MethodPost, "/api/registrations", gin.H{"workerId": 12, "bookId": book.ID}, &second)
	require.Equal(t, http.StatusCreated, code)

	// Duplicate sign-on is refused.
	code = do(t, r, http.MethodPost, "/api/registrations", gin.H{"workerId": 11, "bookId": book.ID}, nil)
	assert.Equal(t, http.StatusConflict, code)

	// --- Two single-worker requests arrive ---
	startAt := time.Now().UTC().Add(24 * time.Hour).Format(time.RFC3339)
	newRequest := func() model.LaborRequest {
		var req model.LaborRequest
		code := do(t, r, http.MethodPost, "/api/requests", gin.H{
			"employerId":    501,
			"bookId":        book.ID,
			"agreementType": model.AgreementInside,
			"requested":     1,
			"startAt":       startAt,
		}, &req)
		require.Equal(t, http.StatusCreated, code)
		return req
	}
	reqA, reqB := newRequest(), newRequest()

	// --- Queue-order dispatch: first-signed worker goes out first ---
	var dispA, dispB model.Dispatch
	code = do(t, r, http.MethodPost, fmt.Sprintf("/api/requests/%d/dispatch", reqA.ID), nil, &dispA)
	require.Equal(t, http.StatusCreated, code)
	assert.EqualValues(t, 11, dispA.WorkerID)

	code = do(t, r, http.MethodPost, fmt.Sprintf("/api/requests/%d/dispatch", reqB.ID), nil, &dispB)
	require.Equal(t, http.StatusCreated, code)
	assert.EqualValues(t, 12, dispB.WorkerID)

	// The filled request takes no further dispatches.
	code = do(t, r, http.MethodPost, fmt.Sprintf("/api/requests/%d/dispatch", reqA.ID), nil, nil)
	assert.Equal(t, http.StatusConflict, code)

	// --- On-the-job lifecycle ---
	var checkedIn model.Dispatch
	code = do(t, r, http.MethodPost, fmt.Sprintf("/api/dispatches/%d/check-in", dispA.ID), nil, &checkedIn)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.DispatchStatusCheckedIn, checkedIn.Status)

	var quit model.Dispatch
	code = do(t, r, http.MethodPost, fmt.Sprintf("/api/dispatches/%d/terminate", dispA.ID),
		gin.H{"reason": model.TermReasonQuit}, &quit)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, model.DispatchStatusTerminated, quit.Status)

	// The quit rolled the worker off and opened a blackout: a fresh
	// sign-on succeeds but by-name dispatch is refused.
	var reRegistered model.Registration
	code = do(t, r, http.MethodPost, "/api/registrations", gin.H{"workerId": 11, "bookId": book.ID}, &reRegistered)
	require.Equal(t, http.StatusCreated, code)

	reqC := newRequest()
	code = do(t, r, http.MethodPost, fmt.Sprintf("/api/requests/%d/dispatch-by-name", reqC.ID),
		gin.H{"workerId": 11}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)

	// --- Queue and ledger surfaces ---
	var queue struct {
		Items []model.Registration `json:"items"`
		Total int64                `json:"total"`
	}
	code = do(t, r, http.MethodGet, fmt.Sprintf("/api/books/%d/queue", book.ID), nil, &queue)
	require.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, queue.Total, "only the re-registered worker remains on the book")

	var activity struct {
		Items []model.ActivityRecord `json:"items"`
		Total int64                  `json:"total"`
	}
	path := fmt.Sprintf("/api/activity?entity_type=%s&entity_id=%d", model.EntityDispatch, dispA.ID)
	code = do(t, r, http.MethodGet, path, nil, &activity)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, activity.Items, 3, "dispatch, check-in, and termination must each be ledgered")
	// Newest first.
	assert.Equal(t, "TERMINATED_"+model.TermReasonQuit, activity.Items[0].Action)
}

// TestEnforcementEndpoints exercises the sweep surface end to end.
func TestEnforcementEndpoints(t *testing.T) {
	r := newTestRouter(t)

	var book model.Book
	code := do(t, r, http.MethodPost, "/api/books", gin.H{
		"name":           "Book 1 Inside Wireman",
		"classification": "wireman",
	}, &book)
	require.Equal(t, http.StatusCreated, code)

	var pending map[string]int
	code = do(t, r, http.MethodGet, "/api/enforcement/pending", nil, &pending)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, pending[store.SweepReSign])

	var preview struct {
		Applied bool                `json:"applied"`
		Sweeps  []store.SweepResult `json:"sweeps"`
	}
	code = do(t, r, http.MethodPost, "/api/enforcement/preview", nil, &preview)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, preview.Applied)
	require.Len(t, preview.Sweeps, 3)
	for _, result := range preview.Sweeps {
		assert.False(t, result.Applied)
		assert.Zero(t, result.Transitioned)
	}

	var applied struct {
		Applied bool                `json:"applied"`
		Sweeps  []store.SweepResult `json:"sweeps"`
	}
	code = do(t, r, http.MethodPost, "/api/enforcement/apply", nil, &applied)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, applied.Sweeps, 3)
	for _, result := range applied.Sweeps {
		assert.True(t, result.Applied)
	}
}
