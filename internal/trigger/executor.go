// Package trigger turns one feed post and one action into an SMM order.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"smm_boost/internal/clients"
	"smm_boost/internal/fetcher"
	"smm_boost/internal/model"
	"smm_boost/internal/screenshot"
	"smm_boost/internal/storage"
)

// DuplicateWindow is how far back an equal execution suppresses a new one.
const DuplicateWindow = 24 * time.Hour

var (
	// ErrDuplicateExecution is reported when the same order was placed within DuplicateWindow.
	ErrDuplicateExecution = errors.New("duplicate execution")
	// ErrCommentGeneration is reported when LLM comments could not be produced.
	ErrCommentGeneration = errors.New("comment generation failed")
)

// Collaborators yields the external services the executor calls.
type Collaborators interface {
	Orders() (clients.OrderService, error)
	Comments() (clients.CommentGenerator, error)
}

// CostEstimator prices an order.
type CostEstimator interface {
	Estimate(ctx context.Context, serviceID int64, quantity int) float64
}

// Capturer takes a screenshot tied to an execution.
type Capturer interface {
	Capture(ctx context.Context, url string, platform model.Platform, executionID int64, typ model.ScreenshotType) screenshot.Result
}

// Result is the outcome of one Execute call.
type Result struct {
	Success     bool
	Skipped     bool
	OrderID     string
	ExecutionID int64
	Err         error
}

// Executor places orders for feed posts.
type Executor struct {
	store  storage.HistoryStore
	collab Collaborators
	costs  CostEstimator
	shots  Capturer
	log    *slog.Logger

	now  func() time.Time
	intn func(n int) int
}

// New creates an Executor. shots may be nil to disable before screenshots.
func New(store storage.HistoryStore, collab Collaborators, costs CostEstimator, shots Capturer, log *slog.Logger) *Executor {
	return &Executor{
		store:  store,
		collab: collab,
		costs:  costs,
		shots:  shots,
		log:    log,
		now:    time.Now,
		intn:   rand.IntN,
	}
}

// Execute runs action for post. feedID is recorded in the execution snapshot.
func (e *Executor) Execute(ctx context.Context, account *model.Account, action *model.Action, post model.Post, feedID int64) Result {
	log := e.log.With("account_id", account.ID, "action_id", action.ID, "post_guid", post.GUID)

	target := TargetURL(account, post)
	if target == "" {
		return Result{Err: fmt.Errorf("no target url for account %d", account.ID)}
	}

	dup, err := e.store.HasRecentExecution(ctx, account.ID, action.ServiceID, target, e.now().Add(-DuplicateWindow))
	if err != nil {
		return Result{Err: fmt.Errorf("check duplicate: %w", err)}
	}
	if dup {
		log.Info("duplicate execution skipped", "target", target, "service_id", action.ServiceID)
		return Result{Skipped: true, Err: ErrDuplicateExecution}
	}

	orders, err := e.collab.Orders()
	if err != nil {
		return Result{Err: err}
	}

	quantity := action.Params.Quantity.Resolve(e.intn)
	snapshot := model.ExecutionParams{
		ActionID:     action.ID,
		QuantityMode: string(action.Params.Quantity.Kind),
		FeedID:       feedID,
		PostGUID:     post.GUID,
		PostURL:      post.Link,
		PostTitle:    post.Title,
	}

	var comments []string
	switch {
	case action.IsCommentService() && action.Params.Comments.Mode == model.CommentsLLM:
		comments, err = e.generateComments(ctx, account, action, post, quantity)
		if err != nil {
			log.Warn("comment generation failed", "error", err)
			return Result{Skipped: true, Err: err}
		}
		quantity = len(comments)
		snapshot.LLMGenerated = true
		snapshot.LLMDirectives = action.Params.Comments.Directives
	case action.Params.Comments.Mode == model.CommentsLiteral:
		// The configured quantity is submitted as is; the panel draws from the list.
		comments = action.Params.Comments.Literal
	}
	snapshot.CommentCount = len(comments)

	accountID := account.ID
	rec := &model.ExecutionRecord{
		Type:            model.ExecutionRSSTrigger,
		Platform:        account.Platform,
		TargetURL:       target,
		ServiceID:       action.ServiceID,
		ServiceName:     action.ServiceName,
		Quantity:        quantity,
		Status:          model.StatusPreparing,
		AccountID:       &accountID,
		AccountUsername: account.Username,
		Params:          snapshot,
	}
	if err := e.store.CreateExecution(ctx, rec); err != nil {
		return Result{Err: fmt.Errorf("create execution: %w", err)}
	}
	log = log.With("execution_id", rec.ID)

	if e.shots != nil {
		if res := e.shots.Capture(ctx, target, account.Platform, rec.ID, model.ShotBefore); res.Err != nil {
			log.Warn("before screenshot failed", "error", res.Err)
		}
	}

	orderID, err := orders.CreateOrder(ctx, clients.Order{
		ServiceID: action.ServiceID,
		Link:      target,
		Quantity:  quantity,
		Comments:  comments,
	})
	if err != nil {
		failedID := model.FailedOrderID(e.now())
		if uerr := e.store.SetExecutionOrder(context.WithoutCancel(ctx), rec.ID, failedID, model.StatusFailed, nil); uerr != nil {
			log.Error("record failed order", "error", uerr)
		}
		log.Error("order failed", "service_id", action.ServiceID, "error", err)
		return Result{ExecutionID: rec.ID, OrderID: failedID, Err: fmt.Errorf("create order: %w", err)}
	}

	cost := e.costs.Estimate(ctx, action.ServiceID, quantity)
	if err := e.store.SetExecutionOrder(context.WithoutCancel(ctx), rec.ID, orderID, model.StatusPending, &cost); err != nil {
		log.Error("record order", "order_id", orderID, "error", err)
		return Result{Success: true, OrderID: orderID, ExecutionID: rec.ID, Err: err}
	}

	log.Info("order placed", "order_id", orderID, "service_id", action.ServiceID, "quantity", quantity, "cost", cost)
	return Result{Success: true, OrderID: orderID, ExecutionID: rec.ID}
}

func (e *Executor) generateComments(ctx context.Context, account *model.Account, action *model.Action, post model.Post, count int) ([]string, error) {
	gen, err := e.collab.Comments()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCommentGeneration, err)
	}
	c := action.Params.Comments
	comments, err := gen.GenerateComments(ctx, clients.CommentRequest{
		Content:     PostContent(account, post),
		Count:       count,
		Directives:  c.Directives,
		UseHashtags: c.UseHashtags,
		UseEmojis:   c.UseEmojis,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCommentGeneration, err)
	}
	if len(comments) == 0 {
		return nil, fmt.Errorf("%w: no comments returned", ErrCommentGeneration)
	}
	return comments, nil
}

// TargetURL picks the order link: the post link, else the account URL, else
// the platform's profile URL for the username.
func TargetURL(account *model.Account, post model.Post) string {
	if post.Link != "" {
		return post.Link
	}
	if account.URL != "" {
		return account.URL
	}
	return account.Platform.ProfileURL(account.Username)
}

// PostContent is the text given to the comment generator.
func PostContent(account *model.Account, post model.Post) string {
	text := strings.TrimSpace(post.Title)
	if desc := fetcher.PlainText(post.Description); desc != "" && desc != text {
		if text != "" {
			text += "\n\n"
		}
		text += desc
	}
	if text == "" {
		text = fmt.Sprintf("New post from @%s on %s", account.Username, account.Platform)
	}
	return text
}
