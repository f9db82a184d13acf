package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/store"
)

// EnforcementPreview handles POST /api/enforcement/preview: compute
// every sweep without applying anything.
func (h *Handler) EnforcementPreview(c *gin.Context) {
	results := h.runner.PreviewAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"applied": false, "sweeps": results})
}

// EnforcementApply handles POST /api/enforcement/apply: the on-demand
// trigger for the scheduled sweeps.
func (h *Handler) EnforcementApply(c *gin.Context) {
	results := h.runner.RunAll(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"applied": true, "sweeps": results})
}

// EnforcementPending handles GET /api/enforcement/pending.
func (h *Handler) EnforcementPending(c *gin.Context) {
	pending, err := h.store.EnforcementPending(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, pending)
}

// ListActivity handles GET /api/activity.
func (h *Handler) ListActivity(c *gin.Context) {
	filter := store.ActivityFilter{
		EntityType: c.Query("entity_type"),
		EntityID:   queryInt64(c, "entity_id"),
	}
	if from, err := time.Parse(time.RFC3339, c.Query("from")); err == nil {
		filter.From = &from
	}
	if to, err := time.Parse(time.RFC3339, c.Query("to")); err == nil {
		filter.To = &to
	}
	page := pagination(c)

	records, total, err := h.store.ListActivity(c.Request.Context(), filter, page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: records, Total: total, Page: page.Number, PerPage: page.PerPage})
}
