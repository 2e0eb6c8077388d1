package api

import (
	"time"

	"smm_boost/internal/accounts"
	"smm_boost/internal/model"
	"smm_boost/internal/poller"
	"smm_boost/internal/scheduler"
)

type accountView struct {
	ID          int64      `json:"id"`
	Platform    string     `json:"platform"`
	Username    string     `json:"username"`
	DisplayName string     `json:"display_name,omitempty"`
	URL         string     `json:"url"`
	Enabled     bool       `json:"enabled"`
	RSSStatus   string     `json:"rss_status"`
	LastCheckAt *time.Time `json:"last_check_at"`
	LastPostAt  *time.Time `json:"last_post_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func newAccountView(a model.Account) accountView {
	return accountView{
		ID:          a.ID,
		Platform:    string(a.Platform),
		Username:    a.Username,
		DisplayName: a.DisplayName,
		URL:         a.URL,
		Enabled:     a.Enabled,
		RSSStatus:   string(a.RSSStatus),
		LastCheckAt: a.LastCheckAt,
		LastPostAt:  a.LastPostAt,
		CreatedAt:   a.CreatedAt,
	}
}

type feedView struct {
	ID          int64      `json:"id"`
	ExternalID  string     `json:"external_id,omitempty"`
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	IsActive    bool       `json:"is_active"`
	LastCheckAt *time.Time `json:"last_check_at"`
	LastPostAt  *time.Time `json:"last_post_at"`
}

type actionView struct {
	ID          int64              `json:"id"`
	AccountID   int64              `json:"account_id"`
	ActionType  string             `json:"action_type"`
	ServiceID   int64              `json:"service_id"`
	ServiceName string             `json:"service_name"`
	Parameters  model.ActionParams `json:"parameters"`
	IsActive    bool               `json:"is_active"`
	CreatedAt   time.Time          `json:"created_at"`
}

func newActionView(a model.Action) actionView {
	return actionView{
		ID:          a.ID,
		AccountID:   a.AccountID,
		ActionType:  a.ActionType,
		ServiceID:   a.ServiceID,
		ServiceName: a.ServiceName,
		Parameters:  a.Params,
		IsActive:    a.IsActive,
		CreatedAt:   a.CreatedAt,
	}
}

type accountDetailView struct {
	accountView
	Feed    *feedView    `json:"feed"`
	Actions []actionView `json:"actions"`
}

func newAccountDetailView(d *accounts.Detail) accountDetailView {
	v := accountDetailView{accountView: newAccountView(d.Account), Actions: []actionView{}}
	if f := d.Feed; f != nil {
		v.Feed = &feedView{
			ID:          f.ID,
			ExternalID:  f.ExternalID,
			Title:       f.Title,
			URL:         f.URL,
			IsActive:    f.IsActive,
			LastCheckAt: f.LastCheckAt,
			LastPostAt:  f.LastPostAt,
		}
	}
	for _, a := range d.Actions {
		v.Actions = append(v.Actions, newActionView(a))
	}
	return v
}

type executionView struct {
	ID              int64                 `json:"id"`
	OrderID         string                `json:"order_id"`
	ExecutionType   string                `json:"execution_type"`
	Platform        string                `json:"platform"`
	TargetURL       string                `json:"target_url"`
	ServiceID       int64                 `json:"service_id"`
	ServiceName     string                `json:"service_name"`
	Quantity        int                   `json:"quantity"`
	Cost            *float64              `json:"cost"`
	Status          string                `json:"status"`
	AccountID       *int64                `json:"account_id"`
	AccountUsername string                `json:"account_username,omitempty"`
	Parameters      model.ExecutionParams `json:"parameters"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
}

func newExecutionView(r model.ExecutionRecord) executionView {
	return executionView{
		ID:              r.ID,
		OrderID:         r.OrderID,
		ExecutionType:   string(r.Type),
		Platform:        string(r.Platform),
		TargetURL:       r.TargetURL,
		ServiceID:       r.ServiceID,
		ServiceName:     r.ServiceName,
		Quantity:        r.Quantity,
		Cost:            r.Cost,
		Status:          string(r.Status),
		AccountID:       r.AccountID,
		AccountUsername: r.AccountUsername,
		Parameters:      r.Params,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type screenshotView struct {
	ID           int64      `json:"id"`
	ExecutionID  int64      `json:"execution_id"`
	Type         string     `json:"screenshot_type"`
	URL          string     `json:"url"`
	Platform     string     `json:"platform"`
	Status       string     `json:"status"`
	Data         string     `json:"data,omitempty"`
	Width        int        `json:"width"`
	Height       int        `json:"height"`
	DurationMS   int64      `json:"duration_ms"`
	RetryCount   int        `json:"retry_count"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CapturedAt   *time.Time `json:"captured_at"`
}

func newScreenshotView(s model.Screenshot) screenshotView {
	return screenshotView{
		ID:           s.ID,
		ExecutionID:  s.ExecutionID,
		Type:         string(s.Type),
		URL:          s.URL,
		Platform:     string(s.Platform),
		Status:       string(s.Status),
		Data:         s.Data,
		Width:        s.Width,
		Height:       s.Height,
		DurationMS:   s.DurationMS,
		RetryCount:   s.RetryCount,
		ErrorMessage: s.ErrorMessage,
		CapturedAt:   s.CapturedAt,
	}
}

type feedErrorView struct {
	FeedID  int64  `json:"feed_id"`
	Title   string `json:"title"`
	Message string `json:"message"`
}

type summaryView struct {
	CycleID          string          `json:"cycle_id"`
	StartedAt        time.Time       `json:"started_at"`
	DurationMS       int64           `json:"duration_ms"`
	FeedsEligible    int             `json:"feeds_eligible"`
	FeedsProcessed   int             `json:"feeds_processed"`
	NewPosts         int             `json:"new_posts"`
	ActionsTriggered int             `json:"actions_triggered"`
	Errors           []feedErrorView `json:"errors"`
}

func newSummaryView(s poller.PollSummary) summaryView {
	v := summaryView{
		CycleID:          s.CycleID,
		StartedAt:        s.StartedAt,
		DurationMS:       s.Duration.Milliseconds(),
		FeedsEligible:    s.FeedsEligible,
		FeedsProcessed:   s.FeedsProcessed,
		NewPosts:         s.NewPosts,
		ActionsTriggered: s.ActionsTriggered,
		Errors:           []feedErrorView{},
	}
	for _, e := range s.Errors {
		v.Errors = append(v.Errors, feedErrorView{FeedID: e.FeedID, Title: e.Title, Message: e.Message})
	}
	return v
}

type schedulerView struct {
	Running     bool         `json:"running"`
	LastRun     *time.Time   `json:"last_run"`
	NextRun     *time.Time   `json:"next_run"`
	LastError   string       `json:"last_error,omitempty"`
	LastSummary *summaryView `json:"last_summary"`
}

func newSchedulerView(st scheduler.Status) schedulerView {
	v := schedulerView{Running: st.Running, LastRun: st.LastRun, NextRun: st.NextRun, LastError: st.LastError}
	if st.LastSummary != nil {
		s := newSummaryView(*st.LastSummary)
		v.LastSummary = &s
	}
	return v
}
