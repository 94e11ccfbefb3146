package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"labelline/internal/domain"
)

const annotationColumns = `id,asset_id,user_id,type,label,geometry_json,confidence,notes,version,last_modified_by,is_deleted,created_at,updated_at`

func scanAnnotation(scan func(dest ...any) error) (domain.Annotation, error) {
	var a domain.Annotation
	var geometryJSON string
	var lastModifiedBy sql.NullString
	var deleted int
	err := scan(&a.ID, &a.AssetID, &a.UserID, &a.Type, &a.Label, &geometryJSON, &a.Confidence, &a.Notes,
		&a.Version, &lastModifiedBy, &deleted, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return a, ErrNotFound
	}
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal([]byte(geometryJSON), &a.Geometry); err != nil {
		return a, fmt.Errorf("decode annotation geometry: %w", err)
	}
	a.LastModifiedBy = optionalString(lastModifiedBy)
	a.IsDeleted = deleted != 0
	return a, nil
}

func (r Repo) InsertAnnotation(ctx context.Context, tx *sql.Tx, a domain.Annotation) error {
	geometryJSON, err := json.Marshal(a.Geometry)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO annotations(id,asset_id,user_id,type,label,geometry_json,confidence,notes,version,last_modified_by,is_deleted,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		a.ID, a.AssetID, a.UserID, a.Type, a.Label, string(geometryJSON), a.Confidence, a.Notes,
		a.Version, nullable(a.UserID), boolInt(a.IsDeleted), a.CreatedAt, a.UpdatedAt)
	return err
}

func (r Repo) GetAnnotation(ctx context.Context, id string) (domain.Annotation, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+annotationColumns+` FROM annotations WHERE id=?`, id)
	return scanAnnotation(row.Scan)
}

func (r Repo) GetAnnotationTx(ctx context.Context, tx *sql.Tx, id string) (domain.Annotation, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+annotationColumns+` FROM annotations WHERE id=?`, id)
	return scanAnnotation(row.Scan)
}

// UpdateAnnotationVersion writes new content if and only if the stored
// version still matches expectedVersion. Returns false when the row moved on.
func (r Repo) UpdateAnnotationVersion(ctx context.Context, tx *sql.Tx, a domain.Annotation, expectedVersion int) (bool, error) {
	geometryJSON, err := json.Marshal(a.Geometry)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `UPDATE annotations SET label=?, geometry_json=?, confidence=?, notes=?, version=version+1, last_modified_by=?, updated_at=? WHERE id=? AND version=? AND is_deleted=0`,
		a.Label, string(geometryJSON), a.Confidence, a.Notes, nullableStringPtr(a.LastModifiedBy), a.UpdatedAt, a.ID, expectedVersion)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SoftDeleteAnnotation marks the annotation deleted; the row and its
// history survive for audit reads.
func (r Repo) SoftDeleteAnnotation(ctx context.Context, tx *sql.Tx, id, actorID, now string) (bool, error) {
	res, err := tx.ExecContext(ctx, `UPDATE annotations SET is_deleted=1, version=version+1, last_modified_by=?, updated_at=? WHERE id=? AND is_deleted=0`,
		actorID, now, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

type AnnotationFilters struct {
	AssetID        string
	UserID         string
	Type           string
	Label          string
	IncludeDeleted bool
	Limit          int
}

func (r Repo) ListAnnotations(ctx context.Context, f AnnotationFilters) ([]domain.Annotation, error) {
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
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.Label != "" {
		clauses = append(clauses, "label=?")
		args = append(args, f.Label)
	}
	if !f.IncludeDeleted {
		clauses = append(clauses, "is_deleted=0")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + annotationColumns + ` FROM annotations ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Annotation
	for rows.Next() {
		a, err := scanAnnotation(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) InsertHistory(ctx context.Context, tx *sql.Tx, annotationID, actorID, action, ts, changesJSON string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO annotation_history(annotation_id,actor_id,action,ts,changes_json) VALUES (?,?,?,?,?)`,
		annotationID, actorID, action, ts, changesJSON)
	return err
}

// ListHistory returns the annotation's audit trail oldest-first.
func (r Repo) ListHistory(ctx context.Context, annotationID string) ([]domain.HistoryEntry, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,actor_id,action,ts,changes_json FROM annotation_history WHERE annotation_id=? ORDER BY id ASC`, annotationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		if err := rows.Scan(&h.ID, &h.ActorID, &h.Action, &h.TS, &h.Changes); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
