package repo

import (
	"context"
	"database/sql"

	"labelline/internal/domain"
)

type UserSessionStats struct {
	Completed   int
	InProgress  int
	Abandoned   int
	TotalTimeMS int64
}

func (r Repo) UserSessionStats(ctx context.Context, userID string) (UserSessionStats, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*), COALESCE(SUM(time_spent_ms),0) FROM sessions WHERE user_id=? GROUP BY status`, userID)
	if err != nil {
		return UserSessionStats{}, err
	}
	defer rows.Close()
	var s UserSessionStats
	for rows.Next() {
		var status string
		var count int
		var total int64
		if err := rows.Scan(&status, &count, &total); err != nil {
			return UserSessionStats{}, err
		}
		switch status {
		case domain.SessionCompleted:
			s.Completed = count
			s.TotalTimeMS += total
		case domain.SessionInProgress:
			s.InProgress = count
		case domain.SessionAbandoned:
			s.Abandoned = count
			s.TotalTimeMS += total
		}
	}
	return s, rows.Err()
}

func (r Repo) CountAnnotationsByUser(ctx context.Context, userID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM annotations WHERE user_id=? AND is_deleted=0`, userID).Scan(&n)
	return n, err
}

func (r Repo) CountAssetsByStatus(ctx context.Context, project string) (map[string]int, error) {
	query := `SELECT status, count(*) FROM assets GROUP BY status`
	var args []any
	if project != "" {
		query = `SELECT status, count(*) FROM assets WHERE project=? GROUP BY status`
		args = append(args, project)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

func (r Repo) CountAnnotations(ctx context.Context, project string) (int, error) {
	var n int
	if project == "" {
		err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM annotations WHERE is_deleted=0`).Scan(&n)
		return n, err
	}
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM annotations a JOIN assets s ON s.id=a.asset_id WHERE a.is_deleted=0 AND s.project=?`, project).Scan(&n)
	return n, err
}

func (r Repo) CountActiveUsers(ctx context.Context) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE is_active=1`).Scan(&n)
	return n, err
}

// TopAnnotators returns the highest-output users by completed work.
func (r Repo) TopAnnotators(ctx context.Context, limit int) ([]domain.User, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE is_active=1 ORDER BY tasks_completed DESC, annotations_created DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}

// AvgCompletionTimeMS averages session time over completed sessions,
// optionally scoped to one project's assets.
func (r Repo) AvgCompletionTimeMS(ctx context.Context, project string) (int64, error) {
	var avg sql.NullFloat64
	var err error
	if project == "" {
		err = r.DB.QueryRowContext(ctx, `SELECT AVG(time_spent_ms) FROM sessions WHERE status=?`, domain.SessionCompleted).Scan(&avg)
	} else {
		err = r.DB.QueryRowContext(ctx, `SELECT AVG(s.time_spent_ms) FROM sessions s JOIN assets a ON a.id=s.asset_id WHERE s.status=? AND a.project=?`, domain.SessionCompleted, project).Scan(&avg)
	}
	if err != nil {
		return 0, err
	}
	if !avg.Valid {
		return 0, nil
	}
	return int64(avg.Float64), nil
}
