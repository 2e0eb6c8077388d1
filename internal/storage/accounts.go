package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"smm_boost/internal/model"
)

const accountColumns = `id, platform, username, display_name, url, enabled, rss_status,
	last_check_at, last_post_at, created_at`

// CreateAccount inserts a new account and populates its ID and CreatedAt.
func (s *SQLite) CreateAccount(ctx context.Context, a *model.Account) error {
	now := formatTime(time.Now())
	if a.RSSStatus == "" {
		a.RSSStatus = model.FeedPending
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (platform, username, display_name, url, enabled, rss_status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(a.Platform), a.Username, a.DisplayName, a.URL, boolToInt(a.Enabled), string(a.RSSStatus), now,
	)
	if err != nil {
		return fmt.Errorf("insert account: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	a.ID = id
	a.CreatedAt = parseTime(now)
	return nil
}

// GetAccount returns a single account by its ID.
func (s *SQLite) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	a, err := scanAccount(row)
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	return a, nil
}

// ListAccounts returns all accounts ordered by ID.
func (s *SQLite) ListAccounts(ctx context.Context) ([]model.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// SetAccountEnabled pauses or resumes an account.
func (s *SQLite) SetAccountEnabled(ctx context.Context, id int64, enabled bool) error {
	return s.updateAccount(ctx, id, `UPDATE accounts SET enabled = ? WHERE id = ?`, boolToInt(enabled), id)
}

// SetAccountFeedStatus records the feed binding state of an account.
func (s *SQLite) SetAccountFeedStatus(ctx context.Context, id int64, status model.FeedStatus) error {
	return s.updateAccount(ctx, id, `UPDATE accounts SET rss_status = ? WHERE id = ?`, string(status), id)
}

func (s *SQLite) updateAccount(ctx context.Context, id int64, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update account %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteAccount removes an account with its actions, filters, feed, ledger and poll log.
// Execution history is kept for auditing.
func (s *SQLite) DeleteAccount(ctx context.Context, id int64) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmts := []struct {
			what  string
			query string
		}{
			{"processed_posts", `DELETE FROM processed_posts WHERE feed_id IN (SELECT id FROM feeds WHERE account_id = ?)`},
			{"poll_log", `DELETE FROM poll_log WHERE feed_id IN (SELECT id FROM feeds WHERE account_id = ?)`},
			{"action_filters", `DELETE FROM action_filters WHERE action_id IN (SELECT id FROM actions WHERE account_id = ?)`},
			{"actions", `DELETE FROM actions WHERE account_id = ?`},
			{"feeds", `DELETE FROM feeds WHERE account_id = ?`},
		}
		for _, st := range stmts {
			if _, err := tx.ExecContext(ctx, st.query, id); err != nil {
				return fmt.Errorf("delete %s: %w", st.what, err)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM accounts WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete account: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("delete account %d: %w", id, ErrNotFound)
		}
		return nil
	})
}

// CreateAction inserts an action after validating its parameters.
func (s *SQLite) CreateAction(ctx context.Context, a *model.Action) (bool, error) {
	if err := a.Params.Validate(); err != nil {
		return false, err
	}
	params, err := json.Marshal(a.Params)
	if err != nil {
		return false, fmt.Errorf("encode parameters: %w", err)
	}

	now := formatTime(time.Now())
	var first bool
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE id = ?`, a.AccountID).Scan(&exists); err != nil {
			return fmt.Errorf("check account: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("account %d: %w", a.AccountID, ErrNotFound)
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO actions (account_id, action_type, service_id, service_name, parameters, is_active, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			a.AccountID, a.ActionType, a.ServiceID, a.ServiceName, string(params), boolToInt(a.IsActive), now,
		)
		if err != nil {
			return fmt.Errorf("insert action: %w", err)
		}
		if a.ID, err = res.LastInsertId(); err != nil {
			return fmt.Errorf("last insert id: %w", err)
		}

		active, err := countActiveActions(ctx, tx, a.AccountID)
		if err != nil {
			return err
		}
		if a.IsActive && active == 1 {
			first = true
			if _, err := tx.ExecContext(ctx, `UPDATE accounts SET enabled = 1 WHERE id = ?`, a.AccountID); err != nil {
				return fmt.Errorf("enable account: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	a.CreatedAt = parseTime(now)
	return first, nil
}

// GetAction returns a single action by its ID.
func (s *SQLite) GetAction(ctx context.Context, id int64) (*model.Action, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, account_id, action_type, service_id, service_name, parameters, is_active, created_at
		 FROM actions WHERE id = ?`, id,
	)
	a, err := scanAction(row)
	if err != nil {
		return nil, fmt.Errorf("get action %d: %w", id, err)
	}
	return a, nil
}

// ListActions returns all actions of an account.
func (s *SQLite) ListActions(ctx context.Context, accountID int64) ([]model.Action, error) {
	return s.queryActions(ctx,
		`SELECT id, account_id, action_type, service_id, service_name, parameters, is_active, created_at
		 FROM actions WHERE account_id = ? ORDER BY id`, accountID)
}

// ListActiveActions returns the active actions of an account.
func (s *SQLite) ListActiveActions(ctx context.Context, accountID int64) ([]model.Action, error) {
	return s.queryActions(ctx,
		`SELECT id, account_id, action_type, service_id, service_name, parameters, is_active, created_at
		 FROM actions WHERE account_id = ? AND is_active = 1 ORDER BY id`, accountID)
}

func (s *SQLite) queryActions(ctx context.Context, query string, args ...any) ([]model.Action, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query actions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// DeleteAction removes an action and its filters.
func (s *SQLite) DeleteAction(ctx context.Context, id int64) (bool, error) {
	var last bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var accountID int64
		err := tx.QueryRowContext(ctx, `SELECT account_id FROM actions WHERE id = ?`, id).Scan(&accountID)
		if err != nil {
			return fmt.Errorf("get action %d: %w", id, notFound(err))
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM action_filters WHERE action_id = ?`, id); err != nil {
			return fmt.Errorf("delete action_filters: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM actions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete action: %w", err)
		}

		active, err := countActiveActions(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if active == 0 {
			last = true
			if _, err := tx.ExecContext(ctx, `UPDATE accounts SET enabled = 0 WHERE id = ?`, accountID); err != nil {
				return fmt.Errorf("disable account: %w", err)
			}
		}
		return nil
	})
	return last, err
}

func countActiveActions(ctx context.Context, tx *sql.Tx, accountID int64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM actions WHERE account_id = ? AND is_active = 1`, accountID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active actions: %w", err)
	}
	return n, nil
}

// CreateFilter inserts a new action filter and populates its ID and CreatedAt.
func (s *SQLite) CreateFilter(ctx context.Context, f *model.Filter) error {
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO action_filters (action_id, kind, scope, value, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.ActionID, string(f.Kind), string(f.Scope), f.Value, now,
	)
	if err != nil {
		return fmt.Errorf("insert filter: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	f.ID = id
	f.CreatedAt = parseTime(now)
	return nil
}

// ListFilters returns all filters for the given action.
func (s *SQLite) ListFilters(ctx context.Context, actionID int64) ([]model.Filter, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, action_id, kind, scope, value, created_at FROM action_filters WHERE action_id = ? ORDER BY id`,
		actionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query filters: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var filters []model.Filter
	for rows.Next() {
		f, err := scanFilter(rows)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)
	}
	return filters, rows.Err()
}

// GetFilter returns a single filter by its ID.
func (s *SQLite) GetFilter(ctx context.Context, id int64) (*model.Filter, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, action_id, kind, scope, value, created_at FROM action_filters WHERE id = ?`, id,
	)
	f, err := scanFilter(row)
	if err != nil {
		return nil, fmt.Errorf("get filter %d: %w", id, err)
	}
	return &f, nil
}

// DeleteFilter removes a filter by its ID.
func (s *SQLite) DeleteFilter(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM action_filters WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete filter: %w", err)
	}
	return nil
}

func scanAccount(row scannable) (*model.Account, error) {
	var a model.Account
	var platform, status, created string
	var enabled int
	var lastCheck, lastPost sql.NullString
	err := row.Scan(&a.ID, &platform, &a.Username, &a.DisplayName, &a.URL, &enabled, &status,
		&lastCheck, &lastPost, &created)
	if err != nil {
		return nil, fmt.Errorf("scan account: %w", notFound(err))
	}
	a.Platform = model.Platform(platform)
	a.RSSStatus = model.FeedStatus(status)
	a.Enabled = enabled == 1
	a.LastCheckAt = parseNullTime(lastCheck)
	a.LastPostAt = parseNullTime(lastPost)
	a.CreatedAt = parseTime(created)
	return &a, nil
}

func scanAction(row scannable) (*model.Action, error) {
	var a model.Action
	var params, created string
	var active int
	err := row.Scan(&a.ID, &a.AccountID, &a.ActionType, &a.ServiceID, &a.ServiceName, &params, &active, &created)
	if err != nil {
		return nil, fmt.Errorf("scan action: %w", notFound(err))
	}
	if err := json.Unmarshal([]byte(params), &a.Params); err != nil {
		return nil, fmt.Errorf("decode action %d parameters: %w", a.ID, err)
	}
	a.IsActive = active == 1
	a.CreatedAt = parseTime(created)
	return &a, nil
}

func scanFilter(row scannable) (model.Filter, error) {
	var f model.Filter
	var kindStr, scopeStr, createdStr string
	err := row.Scan(&f.ID, &f.ActionID, &kindStr, &scopeStr, &f.Value, &createdStr)
	if err != nil {
		return f, fmt.Errorf("scan filter: %w", notFound(err))
	}
	f.Kind = model.FilterKind(kindStr)
	f.Scope = model.FilterScope(scopeStr)
	f.CreatedAt = parseTime(createdStr)
	return f, nil
}
