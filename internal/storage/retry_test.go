package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"smm_boost/internal/model"
)

var errLocked = errors.New("database is locked (5) (SQLITE_BUSY)")

func newMockStore(t *testing.T) (*SQLite, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return &SQLite{db: db}, mock
}

func TestRetryAbsorbsContention(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("UPDATE screenshots SET status = 'capturing'").WillReturnError(errLocked)
	mock.ExpectExec("UPDATE screenshots SET status = 'capturing'").WillReturnError(errLocked)
	mock.ExpectExec("UPDATE screenshots SET status = 'capturing'").WillReturnResult(sqlmock.NewResult(0, 1))

	p := RetryPolicy{Attempts: 3, Delay: time.Millisecond}
	err := Retry(context.Background(), p, func() error {
		return s.MarkScreenshotCapturing(context.Background(), 1)
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRetryGivesUpAfterAttempts(t *testing.T) {
	s, mock := newMockStore(t)
	for i := 0; i < 3; i++ {
		mock.ExpectExec("UPDATE screenshots SET status = 'failed'").WillReturnError(errLocked)
	}

	p := RetryPolicy{Attempts: 3, Delay: time.Millisecond}
	err := Retry(context.Background(), p, func() error {
		return s.FailScreenshot(context.Background(), 1, 3, "boom")
	})
	if !IsBusy(err) {
		t.Fatalf("expected contention error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestRetrySkipsOtherErrors(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO processed_posts").WillReturnError(errors.New("no such table: processed_posts"))

	calls := 0
	err := Retry(context.Background(), RetryPolicy{Attempts: 3, Delay: time.Millisecond}, func() error {
		calls++
		_, err := s.ClaimPost(context.Background(), &model.ProcessedPost{FeedID: 1, PostGUID: "x"})
		return err
	})
	if err == nil || IsBusy(err) {
		t.Fatalf("expected non-contention error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errLocked, true},
		{errors.New("constraint failed"), false},
	}
	for _, tt := range tests {
		if got := IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
