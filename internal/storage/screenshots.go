package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"smm_boost/internal/model"
)

// ClaimScreenshot creates the screenshot row for (execution, type). A failed
// row, or a pending or capturing row not touched since staleBefore, is reset to
// pending and reused. Any other existing row is left alone and the claim is refused.
func (s *SQLite) ClaimScreenshot(ctx context.Context, sh *model.Screenshot, staleBefore time.Time) (bool, error) {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO screenshots (execution_id, screenshot_type, url, platform, profile_id, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, 'pending', ?, ?)
		 ON CONFLICT (execution_id, screenshot_type) DO UPDATE SET
		   url = excluded.url,
		   platform = excluded.platform,
		   profile_id = excluded.profile_id,
		   status = 'pending',
		   error_message = '',
		   retry_count = 0,
		   updated_at = excluded.updated_at
		 WHERE screenshots.status = 'failed'
		    OR (screenshots.status IN ('pending', 'capturing') AND screenshots.updated_at < ?)`,
		sh.ExecutionID, string(sh.Type), sh.URL, string(sh.Platform), sh.ProfileID, now, now, formatTime(staleBefore),
	)
	if err != nil {
		return false, fmt.Errorf("claim screenshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}

	var status string
	err = s.db.QueryRowContext(ctx,
		`SELECT id, status FROM screenshots WHERE execution_id = ? AND screenshot_type = ?`,
		sh.ExecutionID, string(sh.Type),
	).Scan(&sh.ID, &status)
	if err != nil {
		return false, fmt.Errorf("get screenshot: %w", err)
	}
	sh.Status = model.ScreenshotStatus(status)
	return n == 1, nil
}

// MarkScreenshotCapturing moves a screenshot into the capturing state.
func (s *SQLite) MarkScreenshotCapturing(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE screenshots SET status = 'capturing', updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("mark screenshot capturing: %w", err)
	}
	return nil
}

// MarkScreenshotRetry records a failed attempt that will be retried.
func (s *SQLite) MarkScreenshotRetry(ctx context.Context, id int64, retryCount int, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE screenshots SET status = 'pending', retry_count = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		retryCount, errMsg, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("mark screenshot retry: %w", err)
	}
	return nil
}

// CompleteScreenshot stores the captured image and its metadata.
func (s *SQLite) CompleteScreenshot(ctx context.Context, sh *model.Screenshot) error {
	captured := time.Now()
	if sh.CapturedAt != nil {
		captured = *sh.CapturedAt
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE screenshots SET status = 'completed', data = ?, width = ?, height = ?, duration_ms = ?,
		   retry_count = ?, error_message = '', captured_at = ?, updated_at = ?
		 WHERE id = ?`,
		sh.Data, sh.Width, sh.Height, sh.DurationMS, sh.RetryCount, formatTime(captured), formatTime(time.Now()), sh.ID,
	)
	if err != nil {
		return fmt.Errorf("complete screenshot: %w", err)
	}
	sh.Status = model.ShotCompleted
	return nil
}

// FailScreenshot marks a screenshot as failed after its last attempt.
func (s *SQLite) FailScreenshot(ctx context.Context, id int64, retryCount int, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE screenshots SET status = 'failed', retry_count = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		retryCount, errMsg, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("fail screenshot: %w", err)
	}
	return nil
}

// HasCompletedScreenshot reports whether a completed screenshot of typ exists for an execution.
func (s *SQLite) HasCompletedScreenshot(ctx context.Context, executionID int64, typ model.ScreenshotType) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM screenshots WHERE execution_id = ? AND screenshot_type = ? AND status = 'completed'`,
		executionID, string(typ),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check screenshot: %w", err)
	}
	return n > 0, nil
}

// ListScreenshots returns the screenshots of an execution, before first.
func (s *SQLite) ListScreenshots(ctx context.Context, executionID int64) ([]model.Screenshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, execution_id, screenshot_type, url, platform, profile_id, data, width, height, duration_ms,
		        status, error_message, retry_count, captured_at, created_at, updated_at
		 FROM screenshots WHERE execution_id = ?
		 ORDER BY CASE screenshot_type WHEN 'before' THEN 0 ELSE 1 END`,
		executionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query screenshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Screenshot
	for rows.Next() {
		var sh model.Screenshot
		var typ, platform, status, created, updated string
		var captured sql.NullString
		if err := rows.Scan(&sh.ID, &sh.ExecutionID, &typ, &sh.URL, &platform, &sh.ProfileID, &sh.Data,
			&sh.Width, &sh.Height, &sh.DurationMS, &status, &sh.ErrorMessage, &sh.RetryCount,
			&captured, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan screenshot: %w", err)
		}
		sh.Type = model.ScreenshotType(typ)
		sh.Platform = model.Platform(platform)
		sh.Status = model.ScreenshotStatus(status)
		sh.CapturedAt = parseNullTime(captured)
		sh.CreatedAt = parseTime(created)
		sh.UpdatedAt = parseTime(updated)
		out = append(out, sh)
	}
	return out, rows.Err()
}

// ScreenshotStats counts screenshots by status and type.
func (s *SQLite) ScreenshotStats(ctx context.Context) (model.ScreenshotStats, error) {
	st := model.ScreenshotStats{
		ByStatus: map[model.ScreenshotStatus]int{},
		ByType:   map[model.ScreenshotType]int{},
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT screenshot_type, status, COUNT(*) FROM screenshots GROUP BY screenshot_type, status`)
	if err != nil {
		return st, fmt.Errorf("query screenshot stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var typ, status string
		var n int
		if err := rows.Scan(&typ, &status, &n); err != nil {
			return st, fmt.Errorf("scan screenshot stats: %w", err)
		}
		st.ByType[model.ScreenshotType(typ)] += n
		st.ByStatus[model.ScreenshotStatus(status)] += n
		st.Total += n
	}
	return st, rows.Err()
}

// DeleteScreenshotsBefore removes screenshots created before cutoff.
func (s *SQLite) DeleteScreenshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM screenshots WHERE created_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete screenshots: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
