package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/store"
)

type registerRequest struct {
	WorkerID int64 `json:"workerId" binding:"required"`
	BookID   int64 `json:"bookId" binding:"required"`
}

// Register handles POST /api/registrations.
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reg, err := h.store.Register(c.Request.Context(), req.WorkerID, req.BookID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, reg)
}

// ListRegistrations handles GET /api/registrations.
func (h *Handler) ListRegistrations(c *gin.Context) {
	filter := store.RegistrationFilter{
		WorkerID: queryInt64(c, "worker_id"),
		BookID:   queryInt64(c, "book_id"),
		Status:   c.Query("status"),
	}
	page := pagination(c)

	regs, total, err := h.store.ListRegistrations(c.Request.Context(), filter, page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: regs, Total: total, Page: page.Number, PerPage: page.PerPage})
}

// ReSign handles POST /api/registrations/:id/resign.
func (h *Handler) ReSign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	reg, err := h.store.ReSign(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

// Resign handles POST /api/registrations/:id/quit (voluntary removal).
func (h *Handler) Resign(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	reg, err := h.store.Resign(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

type exemptRequest struct {
	Reason string     `json:"reason" binding:"required"`
	Until  *time.Time `json:"until"`
}

// GrantExemption handles POST /api/registrations/:id/exempt.
func (h *Handler) GrantExemption(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req exemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reg, err := h.store.GrantExemption(c.Request.Context(), id, req.Reason, req.Until)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

// RevokeExemption handles POST /api/registrations/:id/exempt/revoke.
func (h *Handler) RevokeExemption(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	reg, err := h.store.RevokeExemption(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

type suspendRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// SuspendRegistration handles POST /api/registrations/:id/suspend.
func (h *Handler) SuspendRegistration(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req suspendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reg, err := h.store.SuspendRegistration(c.Request.Context(), id, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

// ReinstateRegistration handles POST /api/registrations/:id/reinstate.
func (h *Handler) ReinstateRegistration(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	reg, err := h.store.ReinstateRegistration(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}

// RecordCheckMark handles POST /api/registrations/:id/check-mark.
func (h *Handler) RecordCheckMark(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	reg, err := h.store.RecordCheckMark(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reg)
}
