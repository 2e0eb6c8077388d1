// Package scheduler runs poll cycles on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"smm_boost/internal/poller"
)

var (
	// ErrAlreadyRunning is returned by Start when the loop is active.
	ErrAlreadyRunning = errors.New("scheduler already running")
	// ErrNotRunning is returned by Stop when the loop is not active.
	ErrNotRunning = errors.New("scheduler not running")
	// ErrStopTimeout is returned by Stop when the in-flight cycle outlives StopTimeout.
	ErrStopTimeout = errors.New("scheduler did not stop in time")
)

// Sender is the interface for sending Telegram messages.
type Sender interface {
	SendMessage(chatID int64, text string)
}

// Poller runs one poll cycle. stop ends the cycle between feeds; ctx bounds the work in flight.
type Poller interface {
	PollAll(ctx context.Context, stop <-chan struct{}) (poller.PollSummary, error)
}

// Options configures the loop.
type Options struct {
	Interval      time.Duration
	ErrorCooldown time.Duration
	StopTimeout   time.Duration
	// NotifyChatID receives cycle summaries. Zero disables notifications.
	NotifyChatID int64
}

// DefaultOptions polls every 15 minutes and backs off 5 minutes after a failed cycle.
var DefaultOptions = Options{Interval: 15 * time.Minute, ErrorCooldown: 5 * time.Minute, StopTimeout: 10 * time.Second}

// Status is a snapshot of the scheduler state.
type Status struct {
	Running     bool
	LastRun     *time.Time
	LastSummary *poller.PollSummary
	LastError   string
	NextRun     *time.Time
}

// Scheduler periodically runs poll cycles and reports them to the operator.
type Scheduler struct {
	poller Poller
	sender Sender
	log    *slog.Logger
	opts   Options

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun *time.Time
	lastSum *poller.PollSummary
	lastErr string
	nextRun *time.Time
}

// New creates a Scheduler. sender may be nil.
func New(p Poller, sender Sender, log *slog.Logger, opts Options) *Scheduler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultOptions.Interval
	}
	if opts.ErrorCooldown <= 0 {
		opts.ErrorCooldown = DefaultOptions.ErrorCooldown
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultOptions.StopTimeout
	}
	return &Scheduler{poller: p, sender: sender, log: log, opts: opts}
}

// Start launches the loop. It polls immediately and then every Interval until
// Stop is called or ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(loopCtx, s.done)
	s.log.Info("scheduler started", "interval", s.opts.Interval)
	return nil
}

// Stop signals the loop and waits up to StopTimeout for the running cycle to
// end. The cycle finishes the feed it is on; its external calls are cancelled
// only once StopTimeout has passed.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return ErrNotRunning
	}
	cancel()

	select {
	case <-done:
		s.log.Info("scheduler stopped")
		return nil
	case <-time.After(s.opts.StopTimeout):
		return ErrStopTimeout
	}
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// TriggerOnce runs one cycle synchronously, outside the loop. Cancelling ctx
// stops the cycle the same way Stop does.
func (s *Scheduler) TriggerOnce(ctx context.Context) (poller.PollSummary, error) {
	return s.cycle(ctx)
}

// Status returns the current state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Running:     s.cancel != nil,
		LastRun:     s.lastRun,
		LastSummary: s.lastSum,
		LastError:   s.lastErr,
		NextRun:     s.nextRun,
	}
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer func() {
		s.mu.Lock()
		s.cancel = nil
		s.nextRun = nil
		s.mu.Unlock()
		close(done)
	}()

	for {
		wait := s.opts.Interval
		if _, err := s.cycle(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			wait = s.opts.ErrorCooldown
		}

		next := time.Now().Add(wait)
		s.mu.Lock()
		s.nextRun = &next
		s.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (s *Scheduler) cycle(ctx context.Context) (sum poller.PollSummary, err error) {
	work, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	release := context.AfterFunc(ctx, func() { time.AfterFunc(s.opts.StopTimeout, cancel) })
	defer release()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll cycle panicked: %v", r)
		}
		now := time.Now().UTC()
		s.mu.Lock()
		s.lastRun = &now
		s.lastErr = ""
		if err != nil {
			s.lastErr = err.Error()
		}
		if sum.CycleID != "" {
			cp := sum
			s.lastSum = &cp
		}
		s.mu.Unlock()

		if err != nil && ctx.Err() == nil && !errors.Is(err, poller.ErrInterrupted) {
			s.log.Error("poll cycle", "error", err)
		}
		s.notify(sum, err)
	}()
	return s.poller.PollAll(work, ctx.Done())
}

func (s *Scheduler) notify(sum poller.PollSummary, err error) {
	if s.sender == nil || s.opts.NotifyChatID == 0 {
		return
	}
	if err == nil && sum.ActionsTriggered == 0 && len(sum.Errors) == 0 {
		return
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, poller.ErrInterrupted) {
		return
	}
	s.sender.SendMessage(s.opts.NotifyChatID, FormatSummary(sum, err))
}

// FormatSummary renders a cycle summary for the operator chat.
func FormatSummary(sum poller.PollSummary, err error) string {
	var b strings.Builder
	if err != nil {
		fmt.Fprintf(&b, "Poll cycle failed: %v\n", err)
	} else {
		b.WriteString("Poll cycle finished\n")
	}
	fmt.Fprintf(&b, "Feeds: %d/%d\n", sum.FeedsProcessed, sum.FeedsEligible)
	fmt.Fprintf(&b, "New posts: %d\n", sum.NewPosts)
	fmt.Fprintf(&b, "Actions triggered: %d\n", sum.ActionsTriggered)
	if sum.Duration > 0 {
		fmt.Fprintf(&b, "Duration: %s\n", sum.Duration.Round(time.Millisecond))
	}
	if len(sum.Errors) > 0 {
		fmt.Fprintf(&b, "\nErrors (%d):\n", len(sum.Errors))
		for _, e := range sum.Errors {
			title := e.Title
			if title == "" {
				title = fmt.Sprintf("feed #%d", e.FeedID)
			}
			fmt.Fprintf(&b, "  %s: %s\n", title, e.Message)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
