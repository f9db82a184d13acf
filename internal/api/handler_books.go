package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/store"
)

type createBookRequest struct {
	Name               string `json:"name" binding:"required"`
	Classification     string `json:"classification" binding:"required"`
	Region             string `json:"region"`
	Tier               int    `json:"tier"`
	ReSignIntervalDays int    `json:"reSignIntervalDays"`
	GraceDays          int    `json:"graceDays"`
	MaxCheckMarks      int    `json:"maxCheckMarks"`
	MaxExemptionDays   int    `json:"maxExemptionDays"`
	ShortCallHours     int    `json:"shortCallHours"`
	BiddingEnabled     *bool  `json:"biddingEnabled"`
}

// CreateBook handles POST /api/books.
func (h *Handler) CreateBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, err := h.store.CreateBook(c.Request.Context(), store.CreateBookParams{
		Name:               req.Name,
		Classification:     req.Classification,
		Region:             req.Region,
		Tier:               req.Tier,
		ReSignIntervalDays: req.ReSignIntervalDays,
		GraceDays:          req.GraceDays,
		MaxCheckMarks:      req.MaxCheckMarks,
		MaxExemptionDays:   req.MaxExemptionDays,
		ShortCallHours:     req.ShortCallHours,
		BiddingEnabled:     req.BiddingEnabled,
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, book)
}

// ListBooks handles GET /api/books.
func (h *Handler) ListBooks(c *gin.Context) {
	filter := store.BookFilter{
		Classification: c.Query("classification"),
		Region:         c.Query("region"),
		Tier:           int(queryInt64(c, "tier")),
		ActiveOnly:     c.Query("active") == "true",
	}
	page := pagination(c)

	books, total, err := h.store.ListBooks(c.Request.Context(), filter, page)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: books, Total: total, Page: page.Number, PerPage: page.PerPage})
}

// ActivateBook handles POST /api/books/:id/activate.
func (h *Handler) ActivateBook(c *gin.Context) {
	h.setBookActive(c, true)
}

// DeactivateBook handles POST /api/books/:id/deactivate.
func (h *Handler) DeactivateBook(c *gin.Context) {
	h.setBookActive(c, false)
}

func (h *Handler) setBookActive(c *gin.Context, active bool) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	book, err := h.store.SetBookActive(c.Request.Context(), id, active)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}
