package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"labelline/internal/domain"
	"labelline/internal/events"
)

// AnnotationCreateOptions are parameters for adding an annotation.
type AnnotationCreateOptions struct {
	ID         string
	AssetID    string
	Type       string
	Label      string
	Geometry   domain.Geometry
	Confidence float64
	Notes      string
	ActorID    string
}

// CreateAnnotation records a new annotation on an asset the actor currently
// holds. The first history entry is written in the same transaction.
func (e Engine) CreateAnnotation(ctx context.Context, opts AnnotationCreateOptions) (domain.Annotation, error) {
	if opts.Label == "" {
		return domain.Annotation{}, errors.New("label is required")
	}
	if err := opts.Geometry.Validate(opts.Type); err != nil {
		return domain.Annotation{}, err
	}
	if opts.Confidence == 0 {
		opts.Confidence = 1
	}
	if opts.Confidence < 0 || opts.Confidence > 1 {
		return domain.Annotation{}, fmt.Errorf("confidence must be within [0,1], got %v", opts.Confidence)
	}
	a, err := e.Repo.GetAsset(ctx, opts.AssetID)
	if err != nil {
		return domain.Annotation{}, err
	}
	if a.Status != domain.AssetClaimed || a.ClaimedBy == nil || *a.ClaimedBy != opts.ActorID {
		return domain.Annotation{}, ForbiddenError{Reason: "annotating requires holding the asset's claim"}
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	ann := domain.Annotation{
		ID:         id,
		AssetID:    opts.AssetID,
		UserID:     opts.ActorID,
		Type:       opts.Type,
		Label:      opts.Label,
		Geometry:   opts.Geometry,
		Confidence: opts.Confidence,
		Notes:      opts.Notes,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Annotation{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAnnotation(ctx, tx, ann); err != nil {
		return domain.Annotation{}, err
	}
	if err := e.Repo.InsertHistory(ctx, tx, ann.ID, opts.ActorID, domain.ActionCreated, now, ""); err != nil {
		return domain.Annotation{}, err
	}
	if err := e.Repo.BumpUserAnnotations(ctx, tx, opts.ActorID); err != nil {
		return domain.Annotation{}, err
	}
	if err := e.Events.Append(ctx, tx, "annotation.created", a.Project, "annotation", ann.ID, opts.ActorID, events.EventPayload{
		"asset_id": ann.AssetID,
		"label":    ann.Label,
		"type":     ann.Type,
	}); err != nil {
		return domain.Annotation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Annotation{}, err
	}
	if e.Notify != nil {
		e.Notify.AnnotationAdded(ann, opts.ActorID)
	}
	return ann, nil
}

// AnnotationUpdateOptions carries a full replacement of the mutable fields
// plus the version the caller based its edit on.
type AnnotationUpdateOptions struct {
	ID              string
	ExpectedVersion int
	Label           string
	Geometry        domain.Geometry
	Confidence      float64
	Notes           string
	ActorID         string
}

// UpdateAnnotation applies an optimistically-concurrent edit. A stale
// ExpectedVersion is rejected with the authoritative record attached.
func (e Engine) UpdateAnnotation(ctx context.Context, opts AnnotationUpdateOptions) (domain.Annotation, error) {
	if opts.ExpectedVersion < 1 {
		return domain.Annotation{}, errors.New("expected_version is required")
	}
	if opts.Label == "" {
		return domain.Annotation{}, errors.New("label is required")
	}
	if opts.Confidence == 0 {
		opts.Confidence = 1
	}
	if opts.Confidence < 0 || opts.Confidence > 1 {
		return domain.Annotation{}, fmt.Errorf("confidence must be within [0,1], got %v", opts.Confidence)
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Annotation{}, err
	}
	defer tx.Rollback()

	cur, err := e.Repo.GetAnnotationTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Annotation{}, err
	}
	if cur.IsDeleted {
		return domain.Annotation{}, InvalidStateError{Reason: "annotation is deleted"}
	}
	a, err := e.Repo.GetAssetTx(ctx, tx, cur.AssetID)
	if err != nil {
		return domain.Annotation{}, err
	}
	if a.Status != domain.AssetClaimed || a.ClaimedBy == nil || *a.ClaimedBy != opts.ActorID {
		return domain.Annotation{}, ForbiddenError{Reason: "editing annotations requires holding the asset's claim"}
	}
	if err := opts.Geometry.Validate(cur.Type); err != nil {
		return domain.Annotation{}, err
	}
	if cur.Version != opts.ExpectedVersion {
		return domain.Annotation{}, VersionConflictError{CurrentVersion: cur.Version, Current: cur}
	}
	now := e.now().UTC().Format(time.RFC3339)
	next := cur
	next.Label = opts.Label
	next.Geometry = opts.Geometry
	next.Confidence = opts.Confidence
	next.Notes = opts.Notes
	next.LastModifiedBy = &opts.ActorID
	next.UpdatedAt = now
	won, err := e.Repo.UpdateAnnotationVersion(ctx, tx, next, opts.ExpectedVersion)
	if err != nil {
		return domain.Annotation{}, err
	}
	if !won {
		// Lost a same-instant race after the read; report the row as it
		// stands now.
		latest, err := e.Repo.GetAnnotationTx(ctx, tx, opts.ID)
		if err != nil {
			return domain.Annotation{}, err
		}
		return domain.Annotation{}, VersionConflictError{CurrentVersion: latest.Version, Current: latest}
	}
	next.Version = cur.Version + 1
	changes, err := diffAnnotations(cur, next)
	if err != nil {
		return domain.Annotation{}, err
	}
	if err := e.Repo.InsertHistory(ctx, tx, next.ID, opts.ActorID, domain.ActionUpdated, now, changes); err != nil {
		return domain.Annotation{}, err
	}
	if err := e.Events.Append(ctx, tx, "annotation.updated", a.Project, "annotation", next.ID, opts.ActorID, events.EventPayload{
		"asset_id": next.AssetID,
		"version":  next.Version,
	}); err != nil {
		return domain.Annotation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Annotation{}, err
	}
	if e.Notify != nil {
		e.Notify.AnnotationChanged(next, opts.ActorID)
	}
	return next, nil
}

// DeleteAnnotation soft-deletes; the row and its history remain readable.
// Only the asset's current claim holder or a privileged actor may delete.
func (e Engine) DeleteAnnotation(ctx context.Context, id, actorID string, privileged bool) (domain.Annotation, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Annotation{}, err
	}
	defer tx.Rollback()

	cur, err := e.Repo.GetAnnotationTx(ctx, tx, id)
	if err != nil {
		return domain.Annotation{}, err
	}
	if cur.IsDeleted {
		return domain.Annotation{}, InvalidStateError{Reason: "annotation is already deleted"}
	}
	a, err := e.Repo.GetAssetTx(ctx, tx, cur.AssetID)
	if err != nil {
		return domain.Annotation{}, err
	}
	holds := a.Status == domain.AssetClaimed && a.ClaimedBy != nil && *a.ClaimedBy == actorID
	if !holds && !privileged {
		return domain.Annotation{}, ForbiddenError{Reason: "removing an annotation requires holding the asset's claim"}
	}
	now := e.now().UTC().Format(time.RFC3339)
	won, err := e.Repo.SoftDeleteAnnotation(ctx, tx, id, actorID, now)
	if err != nil {
		return domain.Annotation{}, err
	}
	if !won {
		return domain.Annotation{}, ConflictError{Reason: "annotation changed concurrently"}
	}
	if err := e.Repo.InsertHistory(ctx, tx, id, actorID, domain.ActionDeleted, now, ""); err != nil {
		return domain.Annotation{}, err
	}
	if err := e.Events.Append(ctx, tx, "annotation.deleted", a.Project, "annotation", id, actorID, events.EventPayload{"asset_id": cur.AssetID}); err != nil {
		return domain.Annotation{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Annotation{}, err
	}
	cur.IsDeleted = true
	cur.Version++
	cur.LastModifiedBy = &actorID
	cur.UpdatedAt = now
	if e.Notify != nil {
		e.Notify.AnnotationRemoved(cur, actorID)
	}
	return cur, nil
}

// GetAnnotation returns the annotation, optionally with its full history.
func (e Engine) GetAnnotation(ctx context.Context, id string, withHistory bool) (domain.Annotation, error) {
	ann, err := e.Repo.GetAnnotation(ctx, id)
	if err != nil {
		return domain.Annotation{}, err
	}
	if withHistory {
		h, err := e.Repo.ListHistory(ctx, id)
		if err != nil {
			return domain.Annotation{}, err
		}
		ann.History = h
	}
	return ann, nil
}

type fieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// diffAnnotations records which mutable fields moved, old and new.
func diffAnnotations(old, next domain.Annotation) (string, error) {
	changes := map[string]fieldChange{}
	if old.Label != next.Label {
		changes["label"] = fieldChange{From: old.Label, To: next.Label}
	}
	oldGeom, err := json.Marshal(old.Geometry)
	if err != nil {
		return "", err
	}
	nextGeom, err := json.Marshal(next.Geometry)
	if err != nil {
		return "", err
	}
	if string(oldGeom) != string(nextGeom) {
		changes["geometry"] = fieldChange{From: json.RawMessage(oldGeom), To: json.RawMessage(nextGeom)}
	}
	if old.Confidence != next.Confidence {
		changes["confidence"] = fieldChange{From: old.Confidence, To: next.Confidence}
	}
	if old.Notes != next.Notes {
		changes["notes"] = fieldChange{From: old.Notes, To: next.Notes}
	}
	if len(changes) == 0 {
		return "", nil
	}
	data, err := json.Marshal(changes)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
