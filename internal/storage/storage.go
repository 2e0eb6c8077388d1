// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"smm_boost/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// AccountStore persists accounts, their actions and action filters.
type AccountStore interface {
	CreateAccount(ctx context.Context, a *model.Account) error
	GetAccount(ctx context.Context, id int64) (*model.Account, error)
	ListAccounts(ctx context.Context) ([]model.Account, error)
	SetAccountEnabled(ctx context.Context, id int64, enabled bool) error
	SetAccountFeedStatus(ctx context.Context, id int64, status model.FeedStatus) error
	DeleteAccount(ctx context.Context, id int64) error

	// CreateAction inserts an action and enables the account when it becomes
	// the account's first active action. first reports that transition.
	CreateAction(ctx context.Context, a *model.Action) (first bool, err error)
	GetAction(ctx context.Context, id int64) (*model.Action, error)
	ListActions(ctx context.Context, accountID int64) ([]model.Action, error)
	ListActiveActions(ctx context.Context, accountID int64) ([]model.Action, error)
	// DeleteAction removes an action and disables the account when no active
	// actions remain. last reports that transition.
	DeleteAction(ctx context.Context, id int64) (last bool, err error)

	CreateFilter(ctx context.Context, f *model.Filter) error
	ListFilters(ctx context.Context, actionID int64) ([]model.Filter, error)
	GetFilter(ctx context.Context, id int64) (*model.Filter, error)
	DeleteFilter(ctx context.Context, id int64) error
}

// FeedStore persists feeds, the processed-post ledger and the poll log.
type FeedStore interface {
	CreateFeed(ctx context.Context, f *model.Feed) error
	GetFeed(ctx context.Context, id int64) (*model.Feed, error)
	GetFeedByAccount(ctx context.Context, accountID int64) (*model.Feed, error)
	ListEligibleFeeds(ctx context.Context) ([]model.Feed, error)
	// RecordFeedCheck stamps last_check_at on the feed and its account and,
	// when watermark is non-nil, advances last_post_at without ever moving it back.
	RecordFeedCheck(ctx context.Context, feedID int64, checkedAt time.Time, watermark *time.Time) error
	SetBaseline(ctx context.Context, feedID int64, watermark time.Time) error

	// ClaimPost inserts a ledger row. It returns false when the item was already claimed.
	ClaimPost(ctx context.Context, p *model.ProcessedPost) (bool, error)
	SetPostActions(ctx context.Context, feedID int64, guid string, n int) error
	CountProcessedPosts(ctx context.Context, feedID int64) (int, error)

	InsertPollLog(ctx context.Context, e *model.PollLogEntry) error
	ListPollLogs(ctx context.Context, feedID int64, limit int) ([]model.PollLogEntry, error)
	PollStatsSince(ctx context.Context, since time.Time) (model.PollStats, error)
}

// HistoryStore persists the execution history.
type HistoryStore interface {
	CreateExecution(ctx context.Context, r *model.ExecutionRecord) error
	SetExecutionOrder(ctx context.Context, id int64, orderID string, status model.ExecutionStatus, cost *float64) error
	// UpdateExecutionStatus writes a new status and returns the previous one atomically.
	UpdateExecutionStatus(ctx context.Context, id int64, status model.ExecutionStatus, cost *float64) (model.ExecutionStatus, error)
	GetExecution(ctx context.Context, id int64) (*model.ExecutionRecord, error)
	GetExecutionByOrderID(ctx context.Context, orderID string) (*model.ExecutionRecord, error)
	ListExecutions(ctx context.Context, f model.ExecutionFilter) ([]model.ExecutionRecord, error)
	HasRecentExecution(ctx context.Context, accountID, serviceID int64, targetURL string, since time.Time) (bool, error)
	ExecutionStats(ctx context.Context) (model.ExecutionStats, error)
}

// ScreenshotStore persists screenshot rows.
type ScreenshotStore interface {
	// ClaimScreenshot creates the (execution, type) row or resets a failed one,
	// or one left pending or capturing since before staleBefore, to pending.
	// It returns false when the row is completed or still being captured.
	ClaimScreenshot(ctx context.Context, s *model.Screenshot, staleBefore time.Time) (bool, error)
	MarkScreenshotCapturing(ctx context.Context, id int64) error
	MarkScreenshotRetry(ctx context.Context, id int64, retryCount int, errMsg string) error
	CompleteScreenshot(ctx context.Context, s *model.Screenshot) error
	FailScreenshot(ctx context.Context, id int64, retryCount int, errMsg string) error
	HasCompletedScreenshot(ctx context.Context, executionID int64, typ model.ScreenshotType) (bool, error)
	ListScreenshots(ctx context.Context, executionID int64) ([]model.Screenshot, error)
	ScreenshotStats(ctx context.Context) (model.ScreenshotStats, error)
	DeleteScreenshotsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Storage is the interface for all persistence operations.
type Storage interface {
	AccountStore
	FeedStore
	HistoryStore
	ScreenshotStore

	Close() error
}
