package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// QueueSnapshot handles GET /api/books/:id/queue.
func (h *Handler) QueueSnapshot(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	includeExempt := c.Query("include_exempt") == "true"
	page := pagination(c)

	regs, total, err := h.store.QueueSnapshot(c.Request.Context(), id, includeExempt, page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: regs, Total: total, Page: page.Number, PerPage: page.PerPage})
}

// QueueDepth handles GET /api/books/:id/queue/depth.
func (h *Handler) QueueDepth(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	depth, err := h.store.QueueDepth(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookId": id, "depth": depth})
}

// DispatchRate handles GET /api/books/:id/queue/dispatch-rate.
func (h *Handler) DispatchRate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	days := queryInt64(c, "window_days")
	window := time.Duration(days) * 24 * time.Hour

	rate, err := h.store.DispatchRate(c.Request.Context(), id, window)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bookId": id, "dispatchRatePerDay": rate})
}

// BookStats handles GET /api/books/:id/dispatch-stats.
func (h *Handler) BookStats(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	stats, err := h.store.BookDispatchStats(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
