package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"smm_boost/internal/accounts"
	"smm_boost/internal/clients"
	"smm_boost/internal/filter"
	"smm_boost/internal/history"
	"smm_boost/internal/model"
	"smm_boost/internal/poller"
	"smm_boost/internal/scheduler"
	"smm_boost/internal/storage"
)

// DefaultScreenshotRetention is the cleanup age used when the request names none.
const DefaultScreenshotRetention = 30 * 24 * time.Hour

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

// PollerStatus reports the scheduler state.
func (h *Handler) PollerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, newSchedulerView(h.deps.Scheduler.Status()))
}

// StartPoller starts the scheduled loop.
func (h *Handler) StartPoller(c *gin.Context) {
	if err := h.deps.Scheduler.Start(h.base); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSchedulerView(h.deps.Scheduler.Status()))
}

// StopPoller stops the scheduled loop.
func (h *Handler) StopPoller(c *gin.Context) {
	if err := h.deps.Scheduler.Stop(); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSchedulerView(h.deps.Scheduler.Status()))
}

// PollNow runs one cycle and returns its summary.
func (h *Handler) PollNow(c *gin.Context) {
	sum, err := h.deps.Scheduler.TriggerOnce(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newSummaryView(sum))
}

// ListAccounts returns every account.
func (h *Handler) ListAccounts(c *gin.Context) {
	list, err := h.deps.Accounts.List(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]accountView, 0, len(list))
	for _, a := range list {
		out = append(out, newAccountView(a))
	}
	c.JSON(http.StatusOK, out)
}

type createAccountRequest struct {
	Platform    string `json:"platform" binding:"required"`
	Username    string `json:"username" binding:"required"`
	DisplayName string `json:"display_name"`
}

// CreateAccount adds an account and provisions its feed.
func (h *Handler) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	acc, err := h.deps.Accounts.CreateAccount(c.Request.Context(), req.Platform, req.Username, req.DisplayName)
	if acc == nil {
		h.fail(c, err)
		return
	}
	resp := gin.H{"account": newAccountView(*acc)}
	if err != nil {
		resp["warning"] = err.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

// GetAccount returns an account with its feed and actions.
func (h *Handler) GetAccount(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	d, err := h.deps.Accounts.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newAccountDetailView(d))
}

// DeleteAccount removes an account.
func (h *Handler) DeleteAccount(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.deps.Accounts.DeleteAccount(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EstablishBaseline re-runs the baseline of an account.
func (h *Handler) EstablishBaseline(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	b, err := h.deps.Accounts.EstablishBaseline(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"latest_post_date": b.LatestPostDate, "posts_count": b.PostsCount})
}

// RetryProvisioning provisions the feed of an account whose earlier attempt failed.
func (h *Handler) RetryProvisioning(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	acc, err := h.deps.Accounts.RetryFeedProvisioning(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, newAccountView(*acc))
}

// ListServices returns the cached SMM service catalogue.
func (h *Handler) ListServices(c *gin.Context) {
	list, err := h.deps.Catalog.Services(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(list))
	for _, s := range list {
		out = append(out, gin.H{
			"service_id":  s.ID,
			"name":        s.Name,
			"category":    s.Category,
			"rate":        s.Rate,
			"min":         s.Min,
			"max":         s.Max,
			"platform":    s.Platform,
			"action_type": s.ActionType,
		})
	}
	c.JSON(http.StatusOK, out)
}

type addActionRequest struct {
	ServiceID   int64              `json:"service_id" binding:"required"`
	ServiceName string             `json:"service_name"`
	ActionType  string             `json:"action_type"`
	Parameters  model.ActionParams `json:"parameters"`
}

// AddAction attaches an action to an account.
func (h *Handler) AddAction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req addActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	action := &model.Action{
		ServiceID:   req.ServiceID,
		ServiceName: req.ServiceName,
		ActionType:  req.ActionType,
		Params:      req.Parameters,
	}
	res, err := h.deps.Accounts.AddAction(c.Request.Context(), id, action)
	if res.Action == nil {
		h.fail(c, err)
		return
	}
	resp := gin.H{"action": newActionView(*res.Action), "first": res.First}
	if res.Baseline != nil {
		resp["baseline"] = gin.H{"latest_post_date": res.Baseline.LatestPostDate, "posts_count": res.Baseline.PostsCount}
	}
	if err != nil {
		resp["baseline_error"] = err.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

// RemoveAction deletes an action.
func (h *Handler) RemoveAction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	last, err := h.deps.Accounts.RemoveAction(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id, "account_disabled": last})
}

// ListHistory returns executions, filtered by the type, status, account_id,
// limit and offset query parameters.
func (h *Handler) ListHistory(c *gin.Context) {
	f := model.ExecutionFilter{
		Type:   model.ExecutionType(c.Query("type")),
		Status: model.ExecutionStatus(c.Query("status")),
		Limit:  queryInt(c, "limit", 50),
		Offset: queryInt(c, "offset", 0),
	}
	if v := c.Query("account_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account_id"})
			return
		}
		f.AccountID = id
	}
	list, err := h.deps.History.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]executionView, 0, len(list))
	for _, r := range list {
		out = append(out, newExecutionView(r))
	}
	c.JSON(http.StatusOK, out)
}

// HistoryStats returns execution counts and total cost.
func (h *Handler) HistoryStats(c *gin.Context) {
	st, err := h.deps.History.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": st.Total, "by_status": st.ByStatus, "total_cost": st.TotalCost})
}

// RefreshExecution pulls the latest order status from the panel.
func (h *Handler) RefreshExecution(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	res, err := h.deps.History.Refresh(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"execution": newExecutionView(*res.Execution),
		"previous":  res.Previous,
		"changed":   res.Changed,
	})
}

// ListScreenshots returns the screenshots of an execution.
func (h *Handler) ListScreenshots(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	shots, err := h.deps.Store.ListScreenshots(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]screenshotView, 0, len(shots))
	for _, s := range shots {
		out = append(out, newScreenshotView(s))
	}
	c.JSON(http.StatusOK, out)
}

// FeedLogs returns recent poll log entries of a feed.
func (h *Handler) FeedLogs(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	logs, err := h.deps.Store.ListPollLogs(c.Request.Context(), id, queryInt(c, "limit", 50))
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(logs))
	for _, l := range logs {
		out = append(out, gin.H{
			"id":                l.ID,
			"polled_at":         l.PolledAt,
			"posts_found":       l.PostsFound,
			"new_posts":         l.NewPosts,
			"actions_triggered": l.ActionsTriggered,
			"status":            l.Status,
			"error_message":     l.ErrorMessage,
		})
	}
	c.JSON(http.StatusOK, out)
}

// PollStats aggregates the poll log of the last hour.
func (h *Handler) PollStats(c *gin.Context) {
	st, err := h.deps.Store.PollStatsSince(c.Request.Context(), time.Now().Add(-time.Hour))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"polls":             st.Polls,
		"errors":            st.Errors,
		"new_posts":         st.NewPosts,
		"actions_triggered": st.ActionsTriggered,
	})
}

// ScreenshotStats returns screenshot counts.
func (h *Handler) ScreenshotStats(c *gin.Context) {
	st, err := h.deps.Screenshots.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": st.Total, "by_status": st.ByStatus, "by_type": st.ByType})
}

// CleanupScreenshots deletes screenshots older than the days query parameter (30 by default).
func (h *Handler) CleanupScreenshots(c *gin.Context) {
	age := DefaultScreenshotRetention
	if days := queryInt(c, "days", 0); days > 0 {
		age = time.Duration(days) * 24 * time.Hour
	}
	n, err := h.deps.Screenshots.CleanupOlderThan(c.Request.Context(), age)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("api request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInvalidParams), errors.Is(err, filter.ErrInvalidFilter), errors.Is(err, accounts.ErrInvalidAccount):
		return http.StatusBadRequest
	case errors.Is(err, accounts.ErrInvalidState),
		errors.Is(err, history.ErrNotRefreshable),
		errors.Is(err, scheduler.ErrAlreadyRunning),
		errors.Is(err, scheduler.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, poller.ErrFeedUnavailable), errors.Is(err, accounts.ErrProvisioning):
		return http.StatusBadGateway
	case errors.Is(err, clients.ErrNotConfigured):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
