package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/theace26/IP2A-Database-v2-sub006/config"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/enforcement"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/metrics"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/mw"
	"github.com/theace26/IP2A-Database-v2-sub006/internal/store"
)

// NewRouter creates and configures the Gin router.
func NewRouter(s store.Store, runner *enforcement.Runner, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()
	h := NewHandler(s, runner)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.POST("/books", h.CreateBook)
		api.GET("/books", h.ListBooks)
		api.POST("/books/:id/activate", h.ActivateBook)
		api.POST("/books/:id/deactivate", h.DeactivateBook)

		api.POST("/registrations", h.Register)
		api.GET("/registrations", h.ListRegistrations)
		api.POST("/registrations/:id/resign", h.ReSign)
		api.POST("/registrations/:id/quit", h.Resign)
		api.POST("/registrations/:id/exempt", h.GrantExemption)
		api.POST("/registrations/:id/exempt/revoke", h.RevokeExemption)
		api.POST("/registrations/:id/suspend", h.SuspendRegistration)
		api.POST("/registrations/:id/reinstate", h.ReinstateRegistration)
		api.POST("/registrations/:id/check-mark", h.RecordCheckMark)

		api.POST("/requests", h.CreateRequest)
		api.GET("/requests", h.ListRequests)
		api.POST("/requests/:id/cancel", h.CancelRequest)
		api.POST("/requests/:id/expire", h.ExpireRequest)
		api.GET("/requests/:id/window", h.RequestWindow)
		api.GET("/requests/:id/candidates", h.MatchCandidates)
		api.POST("/requests/:id/dispatch", h.DispatchFromQueue)
		api.POST("/requests/:id/dispatch-by-name", h.DispatchByName)
		api.POST("/requests/:id/dispatch-emergency", h.DispatchEmergency)
		api.POST("/requests/:id/process-bids", h.ProcessBids)

		api.POST("/bids", h.PlaceBid)
		api.GET("/bids", h.ListBids)
		api.POST("/bids/:id/withdraw", h.WithdrawBid)
		api.GET("/workers/:id/bid-suspension", h.BidSuspension)

		api.POST("/dispatches/:id/check-in", h.CheckIn)
		api.POST("/dispatches/:id/start-work", h.StartWork)
		api.POST("/dispatches/:id/terminate", h.TerminateDispatch)
		api.GET("/dispatches", h.ListActiveDispatches)

		api.GET("/books/:id/morning-order", h.MorningOrder)
		api.GET("/books/:id/queue", caching, h.QueueSnapshot)
		api.GET("/books/:id/queue/depth", h.QueueDepth)
		api.GET("/books/:id/queue/dispatch-rate", caching, h.DispatchRate)
		api.GET("/books/:id/dispatch-stats", caching, h.BookStats)

		api.POST("/enforcement/preview", h.EnforcementPreview)
		api.POST("/enforcement/apply", h.EnforcementApply)
		api.GET("/enforcement/pending", h.EnforcementPending)

		api.GET("/activity", h.ListActivity)
	}

	return r
}
