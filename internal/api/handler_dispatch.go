package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/store"
)

// MatchCandidates handles GET /api/requests/:id/candidates.
func (h *Handler) MatchCandidates(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	candidates, err := h.store.MatchCandidates(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, candidates)
}

// DispatchFromQueue handles POST /api/requests/:id/dispatch.
func (h *Handler) DispatchFromQueue(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	disp, err := h.store.DispatchFromQueue(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, disp)
}

type dispatchByNameRequest struct {
	WorkerID int64 `json:"workerId" binding:"required"`
}

// DispatchByName handles POST /api/requests/:id/dispatch-by-name.
func (h *Handler) DispatchByName(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dispatchByNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	disp, err := h.store.DispatchByName(c.Request.Context(), id, req.WorkerID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, disp)
}

// DispatchEmergency handles POST /api/requests/:id/dispatch-emergency.
func (h *Handler) DispatchEmergency(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dispatchByNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	disp, err := h.store.DispatchEmergency(c.Request.Context(), id, req.WorkerID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, disp)
}

// CheckIn handles POST /api/dispatches/:id/check-in.
func (h *Handler) CheckIn(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	disp, err := h.store.CheckIn(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, disp)
}

// StartWork handles POST /api/dispatches/:id/start-work.
func (h *Handler) StartWork(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	disp, err := h.store.StartWork(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, disp)
}

type terminateRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// TerminateDispatch handles POST /api/dispatches/:id/terminate.
func (h *Handler) TerminateDispatch(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req terminateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	disp, err := h.store.TerminateDispatch(c.Request.Context(), id, req.Reason)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, disp)
}

// ListActiveDispatches handles GET /api/dispatches.
func (h *Handler) ListActiveDispatches(c *gin.Context) {
	filter := store.DispatchFilter{
		BookID:     queryInt64(c, "book_id"),
		EmployerID: queryInt64(c, "employer_id"),
		WorkerID:   queryInt64(c, "worker_id"),
	}
	page := pagination(c)

	dispatches, total, err := h.store.ListActiveDispatches(c.Request.Context(), filter, page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: dispatches, Total: total, Page: page.Number, PerPage: page.PerPage})
}
