package repo

import (
	"context"
	"database/sql"
	"strings"

	"labelline/internal/domain"
)

const sessionColumns = `id,asset_id,user_id,status,started_at,completed_at,abandoned_at,time_spent_ms`

func scanSession(scan func(dest ...any) error) (domain.Session, error) {
	var s domain.Session
	var completedAt, abandonedAt sql.NullString
	err := scan(&s.ID, &s.AssetID, &s.UserID, &s.Status, &s.StartedAt, &completedAt, &abandonedAt, &s.TimeSpentMS)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.CompletedAt = optionalString(completedAt)
	s.AbandonedAt = optionalString(abandonedAt)
	return s, nil
}

func (r Repo) InsertSession(ctx context.Context, tx *sql.Tx, s domain.Session) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO sessions(id,asset_id,user_id,status,started_at,time_spent_ms) VALUES (?,?,?,?,?,?)`,
		s.ID, s.AssetID, s.UserID, s.Status, s.StartedAt, s.TimeSpentMS)
	return err
}

// OpenSessionTx finds the in-progress session for (asset,user); the partial
// unique index guarantees at most one exists.
func (r Repo) OpenSessionTx(ctx context.Context, tx *sql.Tx, assetID, userID string) (domain.Session, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE asset_id=? AND user_id=? AND status=?`,
		assetID, userID, domain.SessionInProgress)
	return scanSession(row.Scan)
}

func (r Repo) CompleteSession(ctx context.Context, tx *sql.Tx, id, now string, timeSpentMS int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE sessions SET status=?, completed_at=?, time_spent_ms=? WHERE id=? AND status=?`,
		domain.SessionCompleted, now, timeSpentMS, id, domain.SessionInProgress)
	return err
}

func (r Repo) AbandonSession(ctx context.Context, tx *sql.Tx, id, now string, timeSpentMS int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE sessions SET status=?, abandoned_at=?, time_spent_ms=? WHERE id=? AND status=?`,
		domain.SessionAbandoned, now, timeSpentMS, id, domain.SessionInProgress)
	return err
}

type SessionFilters struct {
	AssetID string
	UserID  string
	Status  string
	Limit   int
}

func (r Repo) ListSessions(ctx context.Context, f SessionFilters) ([]domain.Session, error) {
	var clauses []string
	var args []any
	if f.AssetID != "" {
		clauses = append(clauses, "asset_id=?")
		args = append(args, f.AssetID)
	}
	if f.UserID != "" {
		clauses = append(clauses, "user_id=?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + sessionColumns + ` FROM sessions ` + where + ` ORDER BY started_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Session
	for rows.Next() {
		s, err := scanSession(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
