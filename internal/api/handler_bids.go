package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/store"
)

type placeBidRequest struct {
	WorkerID  int64 `json:"workerId" binding:"required"`
	RequestID int64 `json:"requestId" binding:"required"`
}

// PlaceBid handles POST /api/bids.
func (h *Handler) PlaceBid(c *gin.Context) {
	var req placeBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	bid, err := h.store.PlaceBid(c.Request.Context(), req.WorkerID, req.RequestID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, bid)
}

// WithdrawBid handles POST /api/bids/:id/withdraw.
func (h *Handler) WithdrawBid(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	bid, err := h.store.WithdrawBid(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bid)
}

// ProcessBids handles POST /api/requests/:id/process-bids.
func (h *Handler) ProcessBids(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	bids, err := h.store.ProcessBids(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, bids)
}

// ListBids handles GET /api/bids.
func (h *Handler) ListBids(c *gin.Context) {
	filter := store.BidFilter{
		RequestID: queryInt64(c, "request_id"),
		WorkerID:  queryInt64(c, "worker_id"),
		Status:    c.Query("status"),
	}
	page := pagination(c)

	bids, total, err := h.store.ListBids(c.Request.Context(), filter, page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: bids, Total: total, Page: page.Number, PerPage: page.PerPage})
}

// BidSuspension handles GET /api/workers/:id/bid-suspension.
func (h *Handler) BidSuspension(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	status, err := h.store.BidSuspensionStatus(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
