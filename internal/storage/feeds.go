package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"smm_boost/internal/model"
)

const feedColumns = `f.id, f.account_id, f.external_id, f.title, f.source_url, f.url, f.is_active,
	f.last_check_at, f.last_post_at, f.created_at`

// CreateFeed inserts a new feed and populates its ID and CreatedAt.
func (s *SQLite) CreateFeed(ctx context.Context, f *model.Feed) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO feeds (account_id, external_id, title, source_url, url, is_active, last_post_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		f.AccountID, f.ExternalID, f.Title, f.SourceURL, f.URL, boolToInt(f.IsActive), nullableTime(f.LastPostAt), now,
	)
	if err != nil {
		return fmt.Errorf("insert feed: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	f.CreatedAt = parseTime(now)
	return nil
}

// GetFeed returns a single feed by its ID.
func (s *SQLite) GetFeed(ctx context.Context, id int64) (*model.Feed, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds f WHERE f.id = ?`, id)
	f, err := scanFeed(row)
	if err != nil {
		return nil, fmt.Errorf("get feed %d: %w", id, err)
	}
	return f, nil
}

// GetFeedByAccount returns the feed bound to an account.
func (s *SQLite) GetFeedByAccount(ctx context.Context, accountID int64) (*model.Feed, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+feedColumns+` FROM feeds f WHERE f.account_id = ?`, accountID)
	f, err := scanFeed(row)
	if err != nil {
		return nil, fmt.Errorf("get feed for account %d: %w", accountID, err)
	}
	return f, nil
}

// ListEligibleFeeds returns feeds that may be polled: the account's feed binding is
// active, the account is enabled, a baseline exists and at least one action is active.
// Feeds that were never checked come first, then the least recently checked.
func (s *SQLite) ListEligibleFeeds(ctx context.Context) ([]model.Feed, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+feedColumns+`
		 FROM feeds f
		 JOIN accounts a ON a.id = f.account_id
		 WHERE f.is_active = 1
		   AND a.rss_status = 'active'
		   AND a.enabled = 1
		   AND f.last_post_at IS NOT NULL
		   AND EXISTS (SELECT 1 FROM actions x WHERE x.account_id = a.id AND x.is_active = 1)
		 ORDER BY f.last_check_at IS NOT NULL, f.last_check_at, f.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query eligible feeds: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var feeds []model.Feed
	for rows.Next() {
		f, err := scanFeed(rows)
		if err != nil {
			return nil, err
		}
		feeds = append(feeds, *f)
	}
	return feeds, rows.Err()
}

// RecordFeedCheck stamps the check time and optionally advances the watermark.
func (s *SQLite) RecordFeedCheck(ctx context.Context, feedID int64, checkedAt time.Time, watermark *time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		accountID, err := feedAccount(ctx, tx, feedID)
		if err != nil {
			return err
		}
		checked := formatTime(checkedAt)
		if _, err := tx.ExecContext(ctx, `UPDATE feeds SET last_check_at = ? WHERE id = ?`, checked, feedID); err != nil {
			return fmt.Errorf("update feed check: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE accounts SET last_check_at = ? WHERE id = ?`, checked, accountID); err != nil {
			return fmt.Errorf("update account check: %w", err)
		}
		if watermark == nil {
			return nil
		}
		return advanceWatermark(ctx, tx, feedID, accountID, *watermark)
	})
}

// SetBaseline stores the initial watermark on the feed and its account.
func (s *SQLite) SetBaseline(ctx context.Context, feedID int64, watermark time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		accountID, err := feedAccount(ctx, tx, feedID)
		if err != nil {
			return err
		}
		return advanceWatermark(ctx, tx, feedID, accountID, watermark)
	})
}

func feedAccount(ctx context.Context, tx *sql.Tx, feedID int64) (int64, error) {
	var accountID int64
	if err := tx.QueryRowContext(ctx, `SELECT account_id FROM feeds WHERE id = ?`, feedID).Scan(&accountID); err != nil {
		return 0, fmt.Errorf("get feed %d: %w", feedID, notFound(err))
	}
	return accountID, nil
}

// advanceWatermark moves last_post_at forward only; an older value is ignored.
func advanceWatermark(ctx context.Context, tx *sql.Tx, feedID, accountID int64, watermark time.Time) error {
	wm := formatTime(watermark)
	if _, err := tx.ExecContext(ctx,
		`UPDATE feeds SET last_post_at = ? WHERE id = ? AND (last_post_at IS NULL OR last_post_at < ?)`,
		wm, feedID, wm,
	); err != nil {
		return fmt.Errorf("advance feed watermark: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE accounts SET last_post_at = ? WHERE id = ? AND (last_post_at IS NULL OR last_post_at < ?)`,
		wm, accountID, wm,
	); err != nil {
		return fmt.Errorf("advance account watermark: %w", err)
	}
	return nil
}

// ClaimPost records a feed item in the ledger. The insert is the claim: exactly
// one concurrent caller sees a new row.
func (s *SQLite) ClaimPost(ctx context.Context, p *model.ProcessedPost) (bool, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_posts (feed_id, post_guid, post_url, post_title, published_at, processed_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (feed_id, post_guid) DO NOTHING`,
		p.FeedID, p.PostGUID, p.PostURL, p.PostTitle, nullableTime(p.PublishedAt), formatTime(now),
	)
	if err != nil {
		return false, fmt.Errorf("claim post: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		p.ProcessedAt = now.UTC().Truncate(time.Second)
	}
	return n == 1, nil
}

// SetPostActions records how many actions a claimed post triggered.
func (s *SQLite) SetPostActions(ctx context.Context, feedID int64, guid string, n int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE processed_posts SET actions_triggered = ? WHERE feed_id = ? AND post_guid = ?`,
		n, feedID, guid,
	)
	if err != nil {
		return fmt.Errorf("update post actions: %w", err)
	}
	return nil
}

// CountProcessedPosts returns the number of ledger rows of a feed.
func (s *SQLite) CountProcessedPosts(ctx context.Context, feedID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM processed_posts WHERE feed_id = ?`, feedID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count processed posts: %w", err)
	}
	return n, nil
}

// InsertPollLog appends a poll log entry.
func (s *SQLite) InsertPollLog(ctx context.Context, e *model.PollLogEntry) error {
	if e.PolledAt.IsZero() {
		e.PolledAt = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO poll_log (feed_id, polled_at, posts_found, new_posts, actions_triggered, status, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.FeedID, formatTime(e.PolledAt), e.PostsFound, e.NewPosts, e.ActionsTriggered, string(e.Status), e.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("insert poll log: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	return nil
}

// ListPollLogs returns the most recent poll log entries of a feed, newest first.
func (s *SQLite) ListPollLogs(ctx context.Context, feedID int64, limit int) ([]model.PollLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, feed_id, polled_at, posts_found, new_posts, actions_triggered, status, error_message
		 FROM poll_log WHERE feed_id = ? ORDER BY polled_at DESC, id DESC LIMIT ?`,
		feedID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query poll log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.PollLogEntry
	for rows.Next() {
		var e model.PollLogEntry
		var polled, status string
		if err := rows.Scan(&e.ID, &e.FeedID, &polled, &e.PostsFound, &e.NewPosts, &e.ActionsTriggered,
			&status, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan poll log: %w", err)
		}
		e.PolledAt = parseTime(polled)
		e.Status = model.PollStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}

// PollStatsSince aggregates the poll log from since onwards.
func (s *SQLite) PollStatsSince(ctx context.Context, since time.Time) (model.PollStats, error) {
	var st model.PollStats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN status = 'error' THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(new_posts), 0),
		        COALESCE(SUM(actions_triggered), 0)
		 FROM poll_log WHERE polled_at >= ?`,
		formatTime(since),
	).Scan(&st.Polls, &st.Errors, &st.NewPosts, &st.ActionsTriggered)
	if err != nil {
		return st, fmt.Errorf("poll stats: %w", err)
	}
	return st, nil
}

func scanFeed(row scannable) (*model.Feed, error) {
	var f model.Feed
	var isActive int
	var lastCheck, lastPost sql.NullString
	var created string
	err := row.Scan(&f.ID, &f.AccountID, &f.ExternalID, &f.Title, &f.SourceURL, &f.URL, &isActive,
		&lastCheck, &lastPost, &created)
	if err != nil {
		return nil, fmt.Errorf("scan feed: %w", notFound(err))
	}
	f.IsActive = isActive == 1
	f.LastCheckAt = parseNullTime(lastCheck)
	f.LastPostAt = parseNullTime(lastPost)
	f.CreatedAt = parseTime(created)
	return &f, nil
}
