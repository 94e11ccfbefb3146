package repo

import (
	"context"
	"database/sql"

	"labelline/internal/domain"
)

const userColumns = `id,name,email,role,is_active,tasks_completed,annotations_created,total_time_ms,created_at`

func scanUser(scan func(dest ...any) error) (domain.User, error) {
	var u domain.User
	var active int
	err := scan(&u.ID, &u.Name, &u.Email, &u.Role, &active, &u.TasksCompleted, &u.AnnotationsCreated, &u.TotalTimeMS, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.IsActive = active != 0
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, u domain.User) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO users(id,name,email,role,is_active,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Name, u.Email, u.Role, boolInt(u.IsActive), u.CreatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id)
	return scanUser(row.Scan)
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at ASC, id ASC`)
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

// BumpUserCompletion moves the user's aggregate counters on a successful
// completion. Missing user rows are tolerated: identity may live elsewhere.
func (r Repo) BumpUserCompletion(ctx context.Context, tx *sql.Tx, userID string, timeSpentMS int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE users SET tasks_completed=tasks_completed+1, total_time_ms=total_time_ms+? WHERE id=?`,
		timeSpentMS, userID)
	return err
}

func (r Repo) BumpUserAnnotations(ctx context.Context, tx *sql.Tx, userID string) error {
	_, err := tx.ExecContext(ctx, `UPDATE users SET annotations_created=annotations_created+1 WHERE id=?`, userID)
	return err
}
