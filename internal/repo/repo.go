package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"labelline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const assetColumns = `id,kind,url,content,title,description,project,tags_json,priority,status,claimed_by,claimed_at,completed_by,completed_at,created_at,updated_at`

func scanAsset(scan func(dest ...any) error) (domain.Asset, error) {
	var a domain.Asset
	var tagsJSON string
	var claimedBy, claimedAt, completedBy, completedAt sql.NullString
	err := scan(&a.ID, &a.Kind, &a.URL, &a.Content, &a.Title, &a.Description, &a.Project, &tagsJSON, &a.Priority,
		&a.Status, &claimedBy, &claimedAt, &completedBy, &completedAt, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if tagsJSON != "" {
		if err := json.Unmarshal([]byte(tagsJSON), &a.Tags); err != nil {
			return a, fmt.Errorf("decode asset tags: %w", err)
		}
	}
	if claimedBy.Valid {
		a.ClaimedBy = &claimedBy.String
	}
	if claimedAt.Valid {
		a.ClaimedAt = &claimedAt.String
	}
	if completedBy.Valid {
		a.CompletedBy = &completedBy.String
	}
	if completedAt.Valid {
		a.CompletedAt = &completedAt.String
	}
	return a, nil
}

func (r Repo) InsertAsset(ctx context.Context, tx *sql.Tx, a domain.Asset) error {
	tags := a.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO assets(id,kind,url,content,title,description,project,tags_json,priority,status,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.Kind, a.URL, a.Content, a.Title, a.Description, a.Project, string(tagsJSON), a.Priority, a.Status, a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAsset(ctx context.Context, id string) (domain.Asset, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=?`, id)
	return scanAsset(row.Scan)
}

func (r Repo) GetAssetTx(ctx context.Context, tx *sql.Tx, id string) (domain.Asset, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM assets WHERE id=?`, id)
	return scanAsset(row.Scan)
}

type AssetFilters struct {
	Project         string
	Status          string
	ClaimedBy       string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

func (r Repo) ListAssets(ctx context.Context, f AssetFilters) ([]domain.Asset, error) {
	var clauses []string
	var args []any
	if f.Project != "" {
		clauses = append(clauses, "project=?")
		args = append(args, f.Project)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.ClaimedBy != "" {
		clauses = append(clauses, "claimed_by=?")
		args = append(args, f.ClaimedBy)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + assetColumns + ` FROM assets ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.queryAssets(ctx, query, args...)
}

// QueueAssets returns available assets in pickup order: highest priority
// first, oldest first within a priority.
func (r Repo) QueueAssets(ctx context.Context, project string, limit int) ([]domain.Asset, error) {
	clauses := []string{"status=?"}
	args := []any{domain.AssetAvailable}
	if project != "" {
		clauses = append(clauses, "project=?")
		args = append(args, project)
	}
	query := `SELECT ` + assetColumns + ` FROM assets WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY priority DESC, created_at ASC, id ASC`
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return r.queryAssets(ctx, query, args...)
}

// ClaimedBefore returns claimed assets whose claim predates the cutoff.
func (r Repo) ClaimedBefore(ctx context.Context, cutoff string) ([]domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE status=? AND claimed_at < ? ORDER BY claimed_at ASC`
	return r.queryAssets(ctx, query, domain.AssetClaimed, cutoff)
}

// ClaimedByUser returns every asset currently claimed by the user.
func (r Repo) ClaimedByUser(ctx context.Context, userID string) ([]domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE status=? AND claimed_by=? ORDER BY claimed_at ASC`
	return r.queryAssets(ctx, query, domain.AssetClaimed, userID)
}

func (r Repo) queryAssets(ctx context.Context, query string, args ...any) ([]domain.Asset, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// ClaimAsset flips an available asset to claimed. Returns false when the
// asset was not available (or does not exist); the caller disambiguates
// with a follow-up read.
func (r Repo) ClaimAsset(ctx context.Context, tx *sql.Tx, assetID, userID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE assets SET status=?, claimed_by=?, claimed_at=?, updated_at=? WHERE id=? AND status=?`,
		domain.AssetClaimed, userID, now, now, assetID, domain.AssetAvailable)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseAsset flips a claimed asset back to available. When ownerID is
// non-empty the release only succeeds if that user holds the claim.
func (r Repo) ReleaseAsset(ctx context.Context, tx *sql.Tx, assetID, ownerID, now string) (bool, error) {
	query := `UPDATE assets SET status=?, claimed_by=NULL, claimed_at=NULL, updated_at=? WHERE id=? AND status=?`
	args := []any{domain.AssetAvailable, now, assetID, domain.AssetClaimed}
	if ownerID != "" {
		query += ` AND claimed_by=?`
		args = append(args, ownerID)
	}
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// CompleteAsset finishes a claimed asset; only the claim holder matches.
func (r Repo) CompleteAsset(ctx context.Context, tx *sql.Tx, assetID, ownerID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE assets SET status=?, completed_by=?, completed_at=?, claimed_by=NULL, claimed_at=NULL, updated_at=? WHERE id=? AND status=? AND claimed_by=?`,
		domain.AssetCompleted, ownerID, now, now, assetID, domain.AssetClaimed, ownerID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func optionalString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
