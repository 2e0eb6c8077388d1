package model

import (
	"fmt"
	"strings"
	"time"
)

// ExecutionType tells how a purchase was initiated.
type ExecutionType string

// Execution types.
const (
	ExecutionInstant    ExecutionType = "instant"
	ExecutionRSSTrigger ExecutionType = "rss_trigger"
	ExecutionPackage    ExecutionType = "package"
)

// ExecutionStatus is the lifecycle state of a purchase.
type ExecutionStatus string

// Execution states.
const (
	StatusPreparing  ExecutionStatus = "preparing"
	StatusPending    ExecutionStatus = "pending"
	StatusInProgress ExecutionStatus = "in_progress"
	StatusCompleted  ExecutionStatus = "completed"
	StatusPartial    ExecutionStatus = "partial"
	StatusCanceled   ExecutionStatus = "canceled"
	StatusFailed     ExecutionStatus = "failed"
)

// ParseOrderStatus maps a panel status string onto an ExecutionStatus.
func ParseOrderStatus(s string) (ExecutionStatus, error) {
	norm := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), " ", "_")
	switch norm {
	case "pending":
		return StatusPending, nil
	case "in_progress", "processing":
		return StatusInProgress, nil
	case "completed":
		return StatusCompleted, nil
	case "partial":
		return StatusPartial, nil
	case "canceled", "cancelled":
		return StatusCanceled, nil
	case "failed":
		return StatusFailed, nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// FailedOrderPrefix marks executions whose order was never accepted.
const FailedOrderPrefix = "FAILED_"

// FailedOrderID returns the sentinel order id recorded for a rejected order.
func FailedOrderID(at time.Time) string {
	return fmt.Sprintf("%s%d", FailedOrderPrefix, at.Unix())
}

// ExecutionParams is the snapshot stored alongside an execution.
type ExecutionParams struct {
	ActionID      int64  `json:"action_id,omitempty"`
	QuantityMode  string `json:"quantity_mode,omitempty"`
	FeedID        int64  `json:"feed_id,omitempty"`
	PostGUID      string `json:"post_guid,omitempty"`
	PostURL       string `json:"post_url,omitempty"`
	PostTitle     string `json:"post_title,omitempty"`
	CommentCount  int    `json:"comment_count,omitempty"`
	LLMGenerated  bool   `json:"llm_generated,omitempty"`
	LLMDirectives string `json:"llm_directives,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ExecutionRecord is one purchase attempt.
type ExecutionRecord struct {
	ID              int64
	OrderID         string
	Type            ExecutionType
	Platform        Platform
	TargetURL       string
	ServiceID       int64
	ServiceName     string
	Quantity        int
	Cost            *float64
	Status          ExecutionStatus
	AccountID       *int64
	AccountUsername string
	Params          ExecutionParams
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Refreshable reports whether the record has an order that can be queried.
func (r *ExecutionRecord) Refreshable() bool {
	return r.OrderID != "" && !strings.HasPrefix(r.OrderID, FailedOrderPrefix)
}

// ExecutionFilter narrows execution listings. Zero values mean "any".
type ExecutionFilter struct {
	Type      ExecutionType
	Status    ExecutionStatus
	AccountID int64
	Limit     int
	Offset    int
}

// ExecutionStats aggregates the execution history.
type ExecutionStats struct {
	Total     int
	ByStatus  map[ExecutionStatus]int
	TotalCost float64
}

// ScreenshotType is the position of a screenshot around an order.
type ScreenshotType string

// Screenshot types.
const (
	ShotBefore ScreenshotType = "before"
	ShotAfter  ScreenshotType = "after"
)

// ScreenshotStatus is the capture lifecycle state.
type ScreenshotStatus string

// Screenshot states.
const (
	ShotPending   ScreenshotStatus = "pending"
	ShotCapturing ScreenshotStatus = "capturing"
	ShotCompleted ScreenshotStatus = "completed"
	ShotFailed    ScreenshotStatus = "failed"
)

// Screenshot is a capture attached to an execution.
type Screenshot struct {
	ID           int64
	ExecutionID  int64
	Type         ScreenshotType
	URL          string
	Platform     Platform
	ProfileID    string
	Data         string
	Width        int
	Height       int
	DurationMS   int64
	Status       ScreenshotStatus
	ErrorMessage string
	RetryCount   int
	CapturedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ScreenshotStats aggregates screenshot rows.
type ScreenshotStats struct {
	Total    int
	ByStatus map[ScreenshotStatus]int
	ByType   map[ScreenshotType]int
}
