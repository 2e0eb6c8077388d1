// Package screenshot captures before/after evidence around SMM orders.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"smm_boost/internal/clients"
	"smm_boost/internal/model"
	"smm_boost/internal/storage"
)

// ErrNoProfile is returned when no browser profile is configured for a platform.
var ErrNoProfile = errors.New("no screenshot profile for platform")

// SnapshotResolver yields the current snapshotter.
type SnapshotResolver interface {
	Snapshots() (clients.Snapshotter, error)
}

// Options tunes capture retries.
type Options struct {
	Attempts  int
	BaseDelay time.Duration
	DBRetry   storage.RetryPolicy
	// StaleAfter is how long a pending or capturing row may sit untouched
	// before another capture takes it over.
	StaleAfter time.Duration
}

// DefaultOptions makes three attempts, waiting 5s then 10s between them.
var DefaultOptions = Options{Attempts: 3, BaseDelay: 5 * time.Second, DBRetry: storage.DefaultRetry, StaleAfter: 10 * time.Minute}

// Result is the outcome of one Capture call.
type Result struct {
	Success      bool
	Skipped      bool
	ScreenshotID int64
	Shot         *model.Screenshot
	Err          error
}

// Bracket captures screenshots and tracks them in the screenshots table.
type Bracket struct {
	store storage.ScreenshotStore
	snaps SnapshotResolver
	opts  Options
	log   *slog.Logger
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.RWMutex
	profiles map[model.Platform]string
}

// New creates a Bracket.
func New(store storage.ScreenshotStore, snaps SnapshotResolver, profiles map[model.Platform]string, opts Options, log *slog.Logger) *Bracket {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultOptions.Attempts
	}
	if opts.DBRetry.Attempts <= 0 {
		opts.DBRetry = storage.DefaultRetry
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultOptions.StaleAfter
	}
	b := &Bracket{
		store: store,
		snaps: snaps,
		opts:  opts,
		log:   log,
		sleep: sleepCtx,
	}
	b.SetProfiles(profiles)
	return b
}

// SetProfiles replaces the platform to profile map.
func (b *Bracket) SetProfiles(profiles map[model.Platform]string) {
	cp := make(map[model.Platform]string, len(profiles))
	for k, v := range profiles {
		cp[k] = v
	}
	b.mu.Lock()
	b.profiles = cp
	b.mu.Unlock()
}

func (b *Bracket) profileFor(platform model.Platform) (string, error) {
	p, err := model.ParsePlatform(string(platform))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoProfile, err)
	}
	b.mu.RLock()
	id := b.profiles[p]
	b.mu.RUnlock()
	if id == "" {
		return "", fmt.Errorf("%w: %s", ErrNoProfile, p)
	}
	return id, nil
}

// Capture takes a screenshot of url for an execution. A completed screenshot
// of the same type is never replaced and a capture already in progress is
// left alone; both report Skipped. Once claimed, the row always ends completed
// or failed, even when ctx is cancelled.
func (b *Bracket) Capture(ctx context.Context, url string, platform model.Platform, executionID int64, typ model.ScreenshotType) Result {
	log := b.log.With("execution_id", executionID, "type", typ)

	profileID, err := b.profileFor(platform)
	if err != nil {
		log.Warn("screenshot skipped", "error", err)
		return Result{Err: err}
	}
	snapper, err := b.snaps.Snapshots()
	if err != nil {
		return Result{Err: err}
	}

	shot := &model.Screenshot{
		ExecutionID: executionID,
		Type:        typ,
		URL:         url,
		Platform:    platform,
		ProfileID:   profileID,
	}
	var claimed bool
	err = storage.Retry(ctx, b.opts.DBRetry, func() error {
		var err error
		claimed, err = b.store.ClaimScreenshot(ctx, shot, time.Now().Add(-b.opts.StaleAfter))
		return err
	})
	if err != nil {
		return Result{Err: fmt.Errorf("claim screenshot: %w", err)}
	}
	if !claimed {
		log.Debug("screenshot already present", "status", shot.Status)
		return Result{Skipped: true, ScreenshotID: shot.ID}
	}

	retries, err := b.attempts(ctx, log, snapper, shot, profileID)
	if err == nil {
		return Result{Success: true, ScreenshotID: shot.ID, Shot: shot}
	}

	bg := context.WithoutCancel(ctx)
	if ferr := b.mutate(bg, func() error { return b.store.FailScreenshot(bg, shot.ID, retries, err.Error()) }); ferr != nil {
		log.Error("record screenshot failure", "screenshot_id", shot.ID, "error", ferr)
	}
	if retries > 0 {
		err = fmt.Errorf("failed after %d attempts: %w", retries, err)
	}
	return Result{ScreenshotID: shot.ID, Err: err}
}

// attempts runs the capture loop on a claimed row. It returns the number of
// captures tried and, on failure, the last error.
func (b *Bracket) attempts(ctx context.Context, log *slog.Logger, snapper clients.Snapshotter, shot *model.Screenshot, profileID string) (int, error) {
	var lastErr error
	for attempt := 1; attempt <= b.opts.Attempts; attempt++ {
		if err := b.mutate(ctx, func() error { return b.store.MarkScreenshotCapturing(ctx, shot.ID) }); err != nil {
			return attempt - 1, err
		}

		start := time.Now()
		got, err := snapper.Capture(ctx, shot.URL, profileID)
		if err == nil {
			shot.Data = got.Data
			shot.Width = got.Width
			shot.Height = got.Height
			shot.DurationMS = time.Since(start).Milliseconds()
			shot.RetryCount = attempt - 1
			captured := time.Now().UTC()
			if got.Timestamp != nil {
				captured = *got.Timestamp
			}
			shot.CapturedAt = &captured
			if err := b.mutate(ctx, func() error { return b.store.CompleteScreenshot(ctx, shot) }); err != nil {
				return attempt, err
			}
			log.Info("screenshot captured", "screenshot_id", shot.ID, "attempt", attempt, "duration_ms", shot.DurationMS)
			return attempt, nil
		}

		lastErr = err
		log.Warn("screenshot attempt failed", "attempt", attempt, "error", err)
		if attempt == b.opts.Attempts {
			break
		}
		msg := err.Error()
		if err := b.mutate(ctx, func() error { return b.store.MarkScreenshotRetry(ctx, shot.ID, attempt, msg) }); err != nil {
			return attempt, err
		}
		if err := b.sleep(ctx, time.Duration(attempt)*b.opts.BaseDelay); err != nil {
			return attempt, err
		}
	}
	return b.opts.Attempts, lastErr
}

// Stats returns screenshot counts by status and type.
func (b *Bracket) Stats(ctx context.Context) (model.ScreenshotStats, error) {
	return b.store.ScreenshotStats(ctx)
}

// CleanupOlderThan deletes screenshots created more than age ago.
func (b *Bracket) CleanupOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	var n int64
	err := b.mutate(ctx, func() error {
		var err error
		n, err = b.store.DeleteScreenshotsBefore(ctx, time.Now().Add(-age))
		return err
	})
	if err != nil {
		return 0, err
	}
	b.log.Info("old screenshots removed", "deleted", n, "older_than", age)
	return n, nil
}

func (b *Bracket) mutate(ctx context.Context, fn func() error) error {
	return storage.Retry(ctx, b.opts.DBRetry, fn)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
