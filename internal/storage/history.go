package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"smm_boost/internal/model"
)

const executionColumns = `id, order_id, execution_type, platform, target_url, service_id, service_name,
	quantity, cost, status, account_id, account_username, parameters, created_at, updated_at`

// CreateExecution inserts an execution record and populates its ID and timestamps.
func (s *SQLite) CreateExecution(ctx context.Context, r *model.ExecutionRecord) error {
	params, err := json.Marshal(r.Params)
	if err != nil {
		return fmt.Errorf("encode execution parameters: %w", err)
	}
	now := formatTime(time.Now())
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_history (order_id, execution_type, platform, target_url, service_id, service_name,
		   quantity, cost, status, account_id, account_username, parameters, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.OrderID, string(r.Type), string(r.Platform), r.TargetURL, r.ServiceID, r.ServiceName,
		r.Quantity, r.Cost, string(r.Status), r.AccountID, r.AccountUsername, string(params), now, now,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	if r.ID, err = res.LastInsertId(); err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	r.CreatedAt = parseTime(now)
	r.UpdatedAt = r.CreatedAt
	return nil
}

// SetExecutionOrder records the outcome of the order submission of a prepared execution.
func (s *SQLite) SetExecutionOrder(ctx context.Context, id int64, orderID string, status model.ExecutionStatus, cost *float64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE execution_history SET order_id = ?, status = ?, cost = COALESCE(?, cost), updated_at = ?
		 WHERE id = ?`,
		orderID, string(status), cost, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update execution order: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update execution %d: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateExecutionStatus writes a refreshed status and returns the status it replaced.
func (s *SQLite) UpdateExecutionStatus(ctx context.Context, id int64, status model.ExecutionStatus, cost *float64) (model.ExecutionStatus, error) {
	var prev string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx, `SELECT status FROM execution_history WHERE id = ?`, id).Scan(&prev); err != nil {
			return fmt.Errorf("get execution %d: %w", id, notFound(err))
		}
		_, err := tx.ExecContext(ctx,
			`UPDATE execution_history SET status = ?, cost = COALESCE(?, cost), updated_at = ? WHERE id = ?`,
			string(status), cost, formatTime(time.Now()), id,
		)
		if err != nil {
			return fmt.Errorf("update execution status: %w", err)
		}
		return nil
	})
	return model.ExecutionStatus(prev), err
}

// GetExecution returns a single execution record by its ID.
func (s *SQLite) GetExecution(ctx context.Context, id int64) (*model.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+executionColumns+` FROM execution_history WHERE id = ?`, id)
	r, err := scanExecution(row)
	if err != nil {
		return nil, fmt.Errorf("get execution %d: %w", id, err)
	}
	return r, nil
}

// GetExecutionByOrderID returns the newest execution record carrying an order id.
func (s *SQLite) GetExecutionByOrderID(ctx context.Context, orderID string) (*model.ExecutionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionColumns+` FROM execution_history WHERE order_id = ? ORDER BY id DESC LIMIT 1`, orderID)
	r, err := scanExecution(row)
	if err != nil {
		return nil, fmt.Errorf("get execution for order %s: %w", orderID, err)
	}
	return r, nil
}

// ListExecutions returns execution records matching f, newest first.
func (s *SQLite) ListExecutions(ctx context.Context, f model.ExecutionFilter) ([]model.ExecutionRecord, error) {
	var where []string
	var args []any
	if f.Type != "" {
		where = append(where, "execution_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.AccountID != 0 {
		where = append(where, "account_id = ?")
		args = append(args, f.AccountID)
	}

	query := `SELECT ` + executionColumns + ` FROM execution_history`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?"
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ExecutionRecord
	for rows.Next() {
		r, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// HasRecentExecution reports whether a non-failed execution for the same account,
// service and target exists at or after since.
func (s *SQLite) HasRecentExecution(ctx context.Context, accountID, serviceID int64, targetURL string, since time.Time) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM execution_history
		 WHERE account_id = ? AND service_id = ? AND target_url = ? AND status <> 'failed' AND created_at >= ?`,
		accountID, serviceID, targetURL, formatTime(since),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check recent execution: %w", err)
	}
	return n > 0, nil
}

// ExecutionStats counts executions by status and sums their cost.
func (s *SQLite) ExecutionStats(ctx context.Context) (model.ExecutionStats, error) {
	st := model.ExecutionStats{ByStatus: map[model.ExecutionStatus]int{}}
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*), COALESCE(SUM(cost), 0) FROM execution_history GROUP BY status`)
	if err != nil {
		return st, fmt.Errorf("query execution stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var status string
		var n int
		var cost float64
		if err := rows.Scan(&status, &n, &cost); err != nil {
			return st, fmt.Errorf("scan execution stats: %w", err)
		}
		st.ByStatus[model.ExecutionStatus(status)] = n
		st.Total += n
		st.TotalCost += cost
	}
	return st, rows.Err()
}

func scanExecution(row scannable) (*model.ExecutionRecord, error) {
	var r model.ExecutionRecord
	var typ, platform, status, params, created, updated string
	var cost sql.NullFloat64
	var accountID sql.NullInt64
	err := row.Scan(&r.ID, &r.OrderID, &typ, &platform, &r.TargetURL, &r.ServiceID, &r.ServiceName,
		&r.Quantity, &cost, &status, &accountID, &r.AccountUsername, &params, &created, &updated)
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", notFound(err))
	}
	r.Type = model.ExecutionType(typ)
	r.Platform = model.Platform(platform)
	r.Status = model.ExecutionStatus(status)
	if cost.Valid {
		r.Cost = &cost.Float64
	}
	if accountID.Valid {
		r.AccountID = &accountID.Int64
	}
	if err := json.Unmarshal([]byte(params), &r.Params); err != nil {
		return nil, fmt.Errorf("decode execution %d parameters: %w", r.ID, err)
	}
	r.CreatedAt = parseTime(created)
	r.UpdatedAt = parseTime(updated)
	return &r, nil
}
