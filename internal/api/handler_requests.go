package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/store"
)

type createRequestRequest struct {
	EmployerID     int64      `json:"employerId" binding:"required"`
	BookID         int64      `json:"bookId" binding:"required"`
	Classification string     `json:"classification"`
	AgreementType  string     `json:"agreementType" binding:"required"`
	Requested      int        `json:"requested" binding:"required"`
	StartAt        time.Time  `json:"startAt" binding:"required"`
	ExpiresAt      *time.Time `json:"expiresAt"`
	ByNameWorkerID *int64     `json:"byNameWorkerId"`
	SpecialtySkill string     `json:"specialtySkill"`
	MOUJobsite     bool       `json:"mouJobsite"`
	UnderScale     bool       `json:"underScale"`
	ShortCall      bool       `json:"shortCall"`
	Backfill       bool       `json:"backfill"`
}

// CreateRequest handles POST /api/requests.
func (h *Handler) CreateRequest(c *gin.Context) {
	var req createRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	created, err := h.store.CreateRequest(c.Request.Context(), store.CreateRequestParams{
		EmployerID:     req.EmployerID,
		BookID:         req.BookID,
		Classification: req.Classification,
		AgreementType:  req.AgreementType,
		Requested:      req.Requested,
		StartAt:        req.StartAt,
		ExpiresAt:      req.ExpiresAt,
		ByNameWorkerID: req.ByNameWorkerID,
		SpecialtySkill: req.SpecialtySkill,
		MOUJobsite:     req.MOUJobsite,
		UnderScale:     req.UnderScale,
		ShortCall:      req.ShortCall,
		Backfill:       req.Backfill,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// ListRequests handles GET /api/requests.
func (h *Handler) ListRequests(c *gin.Context) {
	filter := store.RequestFilter{
		BookID:     queryInt64(c, "book_id"),
		EmployerID: queryInt64(c, "employer_id"),
		Status:     c.Query("status"),
	}
	if from, err := time.Parse(time.RFC3339, c.Query("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("to")); err == nil {
		filter.To = &to
	}
	page := pagination(c)

	reqs, total, err := h.store.ListRequests(c.Request.Context(), filter, page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: reqs, Total: total, Page: page.Number, PerPage: page.PerPage})
}

// MorningOrder handles GET /api/books/:id/morning-order: the open
// requests on a book in morning-processing order.
func (h *Handler) MorningOrder(c *gin.Context) {
	bookID, ok := pathID(c, "id")
	if !ok {
		return
	}
	reqs, err := h.store.MorningOrder(c.Request.Context(), bookID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reqs)
}

// CancelRequest handles POST /api/requests/:id/cancel.
func (h *Handler) CancelRequest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	req, err := h.store.CancelRequest(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// ExpireRequest handles POST /api/requests/:id/expire.
func (h *Handler) ExpireRequest(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	req, err := h.store.ExpireRequest(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// RequestWindow handles GET /api/requests/:id/window.
func (h *Handler) RequestWindow(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	ws, err := h.store.RequestWindowStatus(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ws)
}
