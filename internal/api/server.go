// Package api exposes the operator HTTP API.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"smm_boost/internal/accounts"
	"smm_boost/internal/history"
	"smm_boost/internal/model"
	"smm_boost/internal/poller"
	"smm_boost/internal/rates"
	"smm_boost/internal/scheduler"
)

// APIKeyHeader carries the operator key.
const APIKeyHeader = "X-API-Key"

// Scheduler controls the poll loop.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
	TriggerOnce(ctx context.Context) (poller.PollSummary, error)
	Status() scheduler.Status
}

// Accounts manages accounts and actions.
type Accounts interface {
	List(ctx context.Context) ([]model.Account, error)
	Get(ctx context.Context, id int64) (*accounts.Detail, error)
	CreateAccount(ctx context.Context, platform, username, displayName string) (*model.Account, error)
	DeleteAccount(ctx context.Context, id int64) error
	RetryFeedProvisioning(ctx context.Context, id int64) (*model.Account, error)
	EstablishBaseline(ctx context.Context, id int64) (poller.Baseline, error)
	AddAction(ctx context.Context, accountID int64, action *model.Action) (accounts.AddActionResult, error)
	RemoveAction(ctx context.Context, id int64) (bool, error)
}

// History reads and refreshes executions.
type History interface {
	List(ctx context.Context, f model.ExecutionFilter) ([]model.ExecutionRecord, error)
	Stats(ctx context.Context) (model.ExecutionStats, error)
	Refresh(ctx context.Context, id int64) (history.RefreshResult, error)
}

// Screenshots reports on and prunes screenshots.
type Screenshots interface {
	Stats(ctx context.Context) (model.ScreenshotStats, error)
	CleanupOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// Catalog lists the SMM panel services.
type Catalog interface {
	Services(ctx context.Context) ([]rates.Service, error)
}

// Store is the read-only persistence the API queries directly.
type Store interface {
	ListScreenshots(ctx context.Context, executionID int64) ([]model.Screenshot, error)
	ListPollLogs(ctx context.Context, feedID int64, limit int) ([]model.PollLogEntry, error)
	PollStatsSince(ctx context.Context, since time.Time) (model.PollStats, error)
}

// Deps groups the services behind the API.
type Deps struct {
	Scheduler   Scheduler
	Accounts    Accounts
	History     History
	Screenshots Screenshots
	Catalog     Catalog
	Store       Store
}

// Handler serves the API routes.
type Handler struct {
	deps Deps
	// base outlives requests; the scheduler loop is started on it.
	base context.Context
	log  *slog.Logger
}

// NewHandler creates a Handler. base is the daemon context.
func NewHandler(base context.Context, deps Deps, log *slog.Logger) *Handler {
	return &Handler{deps: deps, base: base, log: log}
}

// NewServer creates the gin engine with every route behind the API key.
func NewServer(h *Handler, apiKey string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(h.log))
	r.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", APIKeyHeader},
		MaxAge:          12 * time.Hour,
	}))

	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.Use(RequireAPIKey(apiKey))
	{
		api.GET("/poller", h.PollerStatus)
		api.POST("/poller/start", h.StartPoller)
		api.POST("/poller/stop", h.StopPoller)
		api.POST("/poller/poll", h.PollNow)

		api.GET("/accounts", h.ListAccounts)
		api.POST("/accounts", h.CreateAccount)
		api.GET("/accounts/:id", h.GetAccount)
		api.DELETE("/accounts/:id", h.DeleteAccount)
		api.POST("/accounts/:id/baseline", h.EstablishBaseline)
		api.POST("/accounts/:id/provision", h.RetryProvisioning)
		api.POST("/accounts/:id/actions", h.AddAction)
		api.DELETE("/actions/:id", h.RemoveAction)

		api.GET("/services", h.ListServices)

		api.GET("/history", h.ListHistory)
		api.GET("/history/stats", h.HistoryStats)
		api.POST("/history/:id/refresh", h.RefreshExecution)
		api.GET("/history/:id/screenshots", h.ListScreenshots)

		api.GET("/feeds/:id/logs", h.FeedLogs)
		api.GET("/poll-stats", h.PollStats)

		api.GET("/screenshots/stats", h.ScreenshotStats)
		api.POST("/screenshots/cleanup", h.CleanupScreenshots)
	}
	return r
}

// RequireAPIKey rejects requests without the operator key.
func RequireAPIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(APIKeyHeader)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		)
	}
}
