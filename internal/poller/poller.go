// Package poller checks account feeds for new posts and fires their actions.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"smm_boost/internal/clients"
	"smm_boost/internal/filter"
	"smm_boost/internal/model"
	"smm_boost/internal/storage"
	"smm_boost/internal/trigger"
)

var (
	// ErrFeedUnavailable is returned when an account's feed cannot be fetched or parsed.
	ErrFeedUnavailable = errors.New("feed unavailable")
	// ErrInterrupted is returned when the stop signal ends a cycle before every feed was processed.
	ErrInterrupted = errors.New("poll cycle interrupted")
)

// Store is the persistence the poller needs.
type Store interface {
	storage.AccountStore
	storage.FeedStore
}

// FeedResolver yields the current feed source.
type FeedResolver interface {
	Feeds() (clients.FeedSource, error)
}

// Executor runs one action for one post.
type Executor interface {
	Execute(ctx context.Context, account *model.Account, action *model.Action, post model.Post, feedID int64) trigger.Result
}

// FeedError is a per-feed failure within a cycle.
type FeedError struct {
	FeedID  int64
	Title   string
	Message string
}

// PollSummary describes one poll cycle.
type PollSummary struct {
	CycleID          string
	StartedAt        time.Time
	Duration         time.Duration
	FeedsEligible    int
	FeedsProcessed   int
	NewPosts         int
	ActionsTriggered int
	Errors           []FeedError
}

// Poller runs poll cycles.
type Poller struct {
	store   Store
	feeds   FeedResolver
	exec    Executor
	log     *slog.Logger
	dbRetry storage.RetryPolicy
	now     func() time.Time
}

// New creates a Poller.
func New(store Store, feeds FeedResolver, exec Executor, log *slog.Logger) *Poller {
	return &Poller{
		store:   store,
		feeds:   feeds,
		exec:    exec,
		log:     log,
		dbRetry: storage.DefaultRetry,
		now:     time.Now,
	}
}

// PollAll checks every eligible feed once, oldest checked first. A failing feed
// is recorded in the summary and the remaining feeds are still processed. The
// returned error is reserved for failures that prevent the cycle from running.
//
// stop is checked between feeds and between posts. A claimed post always gets
// all of its actions, and calls already running are never cut short by stop;
// ctx bounds them. A nil stop never fires.
func (p *Poller) PollAll(ctx context.Context, stop <-chan struct{}) (PollSummary, error) {
	sum := PollSummary{CycleID: uuid.NewString(), StartedAt: p.now().UTC()}
	log := p.log.With("cycle_id", sum.CycleID)
	defer func() { sum.Duration = p.now().Sub(sum.StartedAt) }()

	src, err := p.feeds.Feeds()
	if err != nil {
		return sum, err
	}
	feeds, err := p.store.ListEligibleFeeds(ctx)
	if err != nil {
		return sum, fmt.Errorf("list eligible feeds: %w", err)
	}
	sum.FeedsEligible = len(feeds)
	log.Debug("poll cycle started", "feeds", len(feeds))

	var interrupted bool
	for _, feed := range feeds {
		if stopped(stop) {
			interrupted = true
			break
		}
		out, err := p.processFeed(ctx, log, src, feed, stop)
		sum.FeedsProcessed++
		sum.NewPosts += out.newPosts
		sum.ActionsTriggered += out.actions
		if errors.Is(err, ErrInterrupted) {
			interrupted = true
			break
		}
		if err != nil {
			log.Error("poll feed", "feed_id", feed.ID, "url", feed.URL, "error", err)
			sum.Errors = append(sum.Errors, FeedError{FeedID: feed.ID, Title: feed.Title, Message: err.Error()})
		}
	}

	sum.Duration = p.now().Sub(sum.StartedAt)
	log.Info("poll cycle finished",
		"feeds", sum.FeedsProcessed,
		"new_posts", sum.NewPosts,
		"actions", sum.ActionsTriggered,
		"errors", len(sum.Errors),
		"duration", sum.Duration,
		"interrupted", interrupted,
	)
	if interrupted {
		return sum, ErrInterrupted
	}
	return sum, ctx.Err()
}

func stopped(stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	default:
		return false
	}
}

type feedOutcome struct {
	found    int
	newPosts int
	actions  int
}

func (p *Poller) processFeed(ctx context.Context, log *slog.Logger, src clients.FeedSource, feed model.Feed, stop <-chan struct{}) (out feedOutcome, err error) {
	log = log.With("feed_id", feed.ID)
	var watermark *time.Time

	defer func() {
		entry := &model.PollLogEntry{
			FeedID:           feed.ID,
			PolledAt:         p.now().UTC(),
			PostsFound:       out.found,
			NewPosts:         out.newPosts,
			ActionsTriggered: out.actions,
			Status:           model.PollNoNewPosts,
		}
		switch {
		case err != nil:
			entry.Status = model.PollError
			entry.ErrorMessage = err.Error()
		case out.newPosts > 0:
			entry.Status = model.PollSuccess
		}
		// The check stamp and the log entry are written even when ctx was cancelled mid-feed.
		bg := context.WithoutCancel(ctx)
		if rerr := storage.Retry(bg, p.dbRetry, func() error {
			return p.store.RecordFeedCheck(bg, feed.ID, entry.PolledAt, watermark)
		}); rerr != nil {
			log.Error("record feed check", "error", rerr)
		}
		if lerr := storage.Retry(bg, p.dbRetry, func() error { return p.store.InsertPollLog(bg, entry) }); lerr != nil {
			log.Error("insert poll log", "error", lerr)
		}
	}()

	if feed.LastPostAt == nil {
		return out, fmt.Errorf("feed %d has no baseline", feed.ID)
	}
	account, err := p.store.GetAccount(ctx, feed.AccountID)
	if err != nil {
		return out, fmt.Errorf("get account: %w", err)
	}
	actions, err := p.store.ListActiveActions(ctx, account.ID)
	if err != nil {
		return out, fmt.Errorf("list actions: %w", err)
	}
	sets := make(map[int64]*filter.Set, len(actions))
	for _, a := range actions {
		filters, err := p.store.ListFilters(ctx, a.ID)
		if err != nil {
			return out, fmt.Errorf("list filters: %w", err)
		}
		set, err := filter.Compile(filters)
		if err != nil {
			log.Warn("invalid action filters ignored", "action_id", a.ID, "error", err)
			set = nil
		}
		sets[a.ID] = set
	}

	listing, err := src.ListNewItems(ctx, feed.URL, *feed.LastPostAt)
	if err != nil {
		return out, fmt.Errorf("%w: %w", ErrFeedUnavailable, err)
	}
	out.found = listing.Total

	var latest time.Time
	// Items are sorted oldest first. An interrupted feed keeps its watermark and
	// the ledger skips the posts already claimed on the next cycle.
	for i, post := range listing.Items {
		if stopped(stop) {
			log.Info("feed interrupted", "posts", out.newPosts, "remaining", len(listing.Items)-i)
			return out, ErrInterrupted
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		claimed, err := p.claim(ctx, feed.ID, post)
		if err != nil {
			return out, err
		}
		if !claimed {
			log.Debug("post already processed", "guid", post.GUID)
			continue
		}
		out.newPosts++
		if post.PublishedAt.After(latest) {
			latest = *post.PublishedAt
		}

		n := p.runActions(ctx, log, account, actions, sets, feed.ID, post)
		out.actions += n
		if n > 0 {
			if err := storage.Retry(ctx, p.dbRetry, func() error {
				return p.store.SetPostActions(ctx, feed.ID, post.GUID, n)
			}); err != nil {
				log.Warn("record post actions", "guid", post.GUID, "error", err)
			}
		}
	}

	if out.newPosts > 0 {
		wm := storage.CeilSecond(latest).Add(time.Second)
		watermark = &wm
		log.Info("new posts processed", "posts", out.newPosts, "actions", out.actions, "watermark", wm)
	}
	return out, nil
}

func (p *Poller) claim(ctx context.Context, feedID int64, post model.Post) (bool, error) {
	var claimed bool
	err := storage.Retry(ctx, p.dbRetry, func() error {
		var err error
		claimed, err = p.store.ClaimPost(ctx, &model.ProcessedPost{
			FeedID:      feedID,
			PostGUID:    post.GUID,
			PostURL:     post.Link,
			PostTitle:   post.Title,
			PublishedAt: post.PublishedAt,
		})
		return err
	})
	if err != nil {
		return false, fmt.Errorf("claim post %s: %w", post.GUID, err)
	}
	return claimed, nil
}

// runActions fires every action whose filters allow post and returns how many
// placed an order. A failing action does not stop the others.
func (p *Poller) runActions(ctx context.Context, log *slog.Logger, account *model.Account, actions []model.Action, sets map[int64]*filter.Set, feedID int64, post model.Post) int {
	triggered := 0
	for i := range actions {
		action := &actions[i]
		if !sets[action.ID].Allows(post) {
			log.Debug("post filtered out", "action_id", action.ID, "guid", post.GUID)
			continue
		}
		res := p.exec.Execute(ctx, account, action, post, feedID)
		switch {
		case res.Success:
			triggered++
		case res.Skipped:
			log.Info("action skipped", "action_id", action.ID, "guid", post.GUID, "reason", res.Err)
		default:
			log.Warn("action failed", "action_id", action.ID, "guid", post.GUID, "error", res.Err)
		}
	}
	return triggered
}
