package screenshot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"smm_boost/internal/clients"
	"smm_boost/internal/model"
	"smm_boost/internal/storage"
)

type fakeSnapper struct {
	mu    sync.Mutex
	errs  []error
	calls int
	// during runs inside every Capture call.
	during func()
}

func (f *fakeSnapper) Snapshots() (clients.Snapshotter, error) { return f, nil }

func (f *fakeSnapper) Capture(_ context.Context, _, _ string) (clients.Shot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.during != nil {
		f.during()
	}
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return clients.Shot{}, err
		}
	}
	return clients.Shot{Data: "aGVsbG8=", Width: 1920, Height: 1080}, nil
}

func newStore(t *testing.T) *storage.SQLite {
	t.Helper()
	s, err := storage.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("new sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newBracket(t *testing.T, store storage.ScreenshotStore, snaps SnapshotResolver) (*Bracket, *[]time.Duration) {
	t.Helper()
	profiles := map[model.Platform]string{model.PlatformInstagram: "ig-profile", model.PlatformX: "x-profile"}
	b := New(store, snaps, profiles, Options{Attempts: 3, BaseDelay: 5 * time.Second}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	var slept []time.Duration
	b.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	return b, &slept
}

func TestCaptureSuccess(t *testing.T) {
	store := newStore(t)
	b, slept := newBracket(t, store, &fakeSnapper{})

	res := b.Capture(context.Background(), "https://x.com/bird", "twitter", 1, model.ShotBefore)
	if !res.Success || res.Err != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(*slept) != 0 {
		t.Errorf("slept %v on success", *slept)
	}

	shots, err := store.ListScreenshots(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(shots) != 1 {
		t.Fatalf("got %d rows, want 1", len(shots))
	}
	got := shots[0]
	if got.Status != model.ShotCompleted || got.ProfileID != "x-profile" || got.Width != 1920 || got.CapturedAt == nil {
		t.Errorf("unexpected row: %+v", got)
	}
}

func TestCaptureRetriesThenSucceeds(t *testing.T) {
	store := newStore(t)
	snap := &fakeSnapper{errs: []error{errors.New("timeout"), nil}}
	b, slept := newBracket(t, store, snap)

	res := b.Capture(context.Background(), "https://instagram.com/p/1", model.PlatformInstagram, 2, model.ShotAfter)
	if !res.Success {
		t.Fatalf("unexpected result: %+v", res)
	}
	if diff := cmp.Diff([]time.Duration{5 * time.Second}, *slept); diff != "" {
		t.Errorf("delays mismatch (-want +got):\n%s", diff)
	}
	shots, _ := store.ListScreenshots(context.Background(), 2)
	if shots[0].RetryCount != 1 {
		t.Errorf("retry count = %d, want 1", shots[0].RetryCount)
	}
}

func TestCaptureExhaustsAttempts(t *testing.T) {
	store := newStore(t)
	boom := errors.New("profile locked")
	snap := &fakeSnapper{errs: []error{boom, boom, boom}}
	b, slept := newBracket(t, store, snap)

	res := b.Capture(context.Background(), "https://instagram.com/p/1", model.PlatformInstagram, 3, model.ShotBefore)
	if res.Success || !errors.Is(res.Err, boom) {
		t.Fatalf("unexpected result: %+v", res)
	}
	if snap.calls != 3 {
		t.Errorf("capture called %d times, want 3", snap.calls)
	}
	if diff := cmp.Diff([]time.Duration{5 * time.Second, 10 * time.Second}, *slept); diff != "" {
		t.Errorf("delays mismatch (-want +got):\n%s", diff)
	}

	shots, _ := store.ListScreenshots(context.Background(), 3)
	if shots[0].Status != model.ShotFailed || shots[0].RetryCount != 3 || shots[0].ErrorMessage != "profile locked" {
		t.Errorf("unexpected row: %+v", shots[0])
	}

	// A failed row may be claimed again.
	snap.errs = nil
	res = b.Capture(context.Background(), "https://instagram.com/p/1", model.PlatformInstagram, 3, model.ShotBefore)
	if !res.Success {
		t.Fatalf("retry after failure: %+v", res)
	}
}

func TestCaptureSkipsCompleted(t *testing.T) {
	store := newStore(t)
	snap := &fakeSnapper{}
	b, _ := newBracket(t, store, snap)

	ctx := context.Background()
	if res := b.Capture(ctx, "u", model.PlatformInstagram, 4, model.ShotAfter); !res.Success {
		t.Fatalf("first capture: %+v", res)
	}
	res := b.Capture(ctx, "u", model.PlatformInstagram, 4, model.ShotAfter)
	if !res.Skipped || res.Success {
		t.Fatalf("second capture: %+v", res)
	}
	if snap.calls != 1 {
		t.Errorf("capture called %d times, want 1", snap.calls)
	}
}

func TestCaptureNoProfile(t *testing.T) {
	store := newStore(t)
	b, _ := newBracket(t, store, &fakeSnapper{})

	res := b.Capture(context.Background(), "u", model.PlatformTikTok, 5, model.ShotBefore)
	if !errors.Is(res.Err, ErrNoProfile) {
		t.Fatalf("expected ErrNoProfile, got %+v", res)
	}
	shots, _ := store.ListScreenshots(context.Background(), 5)
	if len(shots) != 0 {
		t.Errorf("row written without a profile: %+v", shots)
	}
}

func TestCaptureCancelledDuringBackoff(t *testing.T) {
	store := newStore(t)
	snap := &fakeSnapper{errs: []error{errors.New("timeout")}}
	b, _ := newBracket(t, store, snap)
	ctx, cancel := context.WithCancel(context.Background())
	b.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}

	res := b.Capture(ctx, "u", model.PlatformInstagram, 6, model.ShotBefore)
	if !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %+v", res)
	}
	shots, _ := store.ListScreenshots(context.Background(), 6)
	if shots[0].Status != model.ShotFailed {
		t.Errorf("status = %s, want failed", shots[0].Status)
	}
}

func TestCaptureCancelledMidAttemptCanBeRetried(t *testing.T) {
	store := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	snap := &fakeSnapper{errs: []error{context.Canceled}, during: cancel}
	b, _ := newBracket(t, store, snap)

	res := b.Capture(ctx, "u", model.PlatformInstagram, 8, model.ShotAfter)
	if res.Success || !errors.Is(res.Err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %+v", res)
	}
	shots, _ := store.ListScreenshots(context.Background(), 8)
	if len(shots) != 1 || shots[0].Status != model.ShotFailed {
		t.Fatalf("interrupted capture left row: %+v", shots)
	}

	snap.during = nil
	res = b.Capture(context.Background(), "u", model.PlatformInstagram, 8, model.ShotAfter)
	if !res.Success || res.ScreenshotID != shots[0].ID {
		t.Fatalf("second capture: %+v", res)
	}
	if snap.calls != 2 {
		t.Errorf("capture called %d times, want 2", snap.calls)
	}
}

func TestStatsAndCleanup(t *testing.T) {
	store := newStore(t)
	b, _ := newBracket(t, store, &fakeSnapper{})
	ctx := context.Background()
	b.Capture(ctx, "u", model.PlatformInstagram, 7, model.ShotBefore)
	b.Capture(ctx, "u", model.PlatformInstagram, 7, model.ShotAfter)

	st, err := b.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Total != 2 || st.ByType[model.ShotBefore] != 1 || st.ByStatus[model.ShotCompleted] != 2 {
		t.Errorf("unexpected stats: %+v", st)
	}

	n, err := b.CleanupOlderThan(ctx, 30*24*time.Hour)
	if err != nil || n != 0 {
		t.Errorf("cleanup of recent rows = %d, %v", n, err)
	}
	n, err = b.CleanupOlderThan(ctx, -time.Hour)
	if err != nil || n != 2 {
		t.Errorf("cleanup of all rows = %d, %v", n, err)
	}
}
