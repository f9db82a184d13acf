package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/theace26/IP2A-Database-v2-sub006/internal/enforcement"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store  store.Store
	runner *enforcement.Runner
}

// NewHandler creates a new API handler.
func NewHandler(s store.Store, runner *enforcement.Runner) *Handler {
	return &Handler{store: s, runner: runner}
}

// listResponse is the envelope for paginated listings.
type listResponse struct {
	Items   any   `json:"items"`
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	PerPage int   `json:"perPage"`
}

// fail maps the store's error taxonomy onto HTTP statuses.
func fail(c *gin.Context, err error) {
	var (
		validation  *store.ValidationError
		conflict    *store.ConflictError
		notEligible *store.NotEligibleError
		notFound    *store.NotFoundError
	)
	switch {
	case errors.As(err, &validation):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validation.Error()})
	case errors.As(err, &conflict):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": conflict.Error()})
	case errors.As(err, &notEligible):
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": notEligible.Error()})
	case errors.As(err, &notFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": notFound.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// pathID parses the named path parameter as an int64 ID.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// pagination reads the page/per_page query parameters.
func pagination(c *gin.Context) store.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
	return store.Page{Number: page, PerPage: perPage}.Normalize()
}

// queryInt64 reads an optional int64 query parameter, 0 when absent.
func queryInt64(c *gin.Context, name string) int64 {
	v, _ := strconv.ParseInt(c.Query(name), 10, 64)
	return v
}
