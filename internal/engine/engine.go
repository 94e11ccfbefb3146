package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"labelline/internal/config"
	"labelline/internal/domain"
	"labelline/internal/events"
	"labelline/internal/repo"
)

// Notifier receives committed mutations for real-time fan-out. Calls happen
// after the transaction commits, never inside it.
type Notifier interface {
	AssetAvailable(a domain.Asset, actorID string)
	AssetUnavailable(a domain.Asset, actorID string)
	AssetCompleted(a domain.Asset, actorID string)
	AnnotationAdded(ann domain.Annotation, actorID string)
	AnnotationChanged(ann domain.Annotation, actorID string)
	AnnotationRemoved(ann domain.Annotation, actorID string)
}

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	Notify Notifier
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) project() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Project.ID
}

// AssetCreateOptions are parameters for registering a new asset.
type AssetCreateOptions struct {
	ID          string
	Kind        string
	URL         string
	Content     string
	Title       string
	Description string
	Project     string
	Tags        []string
	Priority    int
	ActorID     string
	ActorRole   string
}

func (e Engine) CreateAsset(ctx context.Context, opts AssetCreateOptions) (domain.Asset, error) {
	if opts.ActorRole != "admin" {
		return domain.Asset{}, ForbiddenError{Reason: "only admins can register assets"}
	}
	if opts.Title == "" {
		return domain.Asset{}, errors.New("title is required")
	}
	switch opts.Kind {
	case "image":
		if opts.URL == "" {
			return domain.Asset{}, errors.New("url is required for image assets")
		}
	case "text":
		if opts.Content == "" {
			return domain.Asset{}, errors.New("content is required for text assets")
		}
	default:
		return domain.Asset{}, fmt.Errorf("unknown asset kind %q", opts.Kind)
	}
	if opts.Project == "" {
		opts.Project = e.project()
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.now().UTC().Format(time.RFC3339)
	a := domain.Asset{
		ID:          id,
		Kind:        opts.Kind,
		URL:         opts.URL,
		Content:     opts.Content,
		Title:       opts.Title,
		Description: opts.Description,
		Project:     opts.Project,
		Tags:        opts.Tags,
		Priority:    opts.Priority,
		Status:      domain.AssetAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Asset{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertAsset(ctx, tx, a); err != nil {
		return domain.Asset{}, err
	}
	if err := e.Events.Append(ctx, tx, "asset.created", a.Project, "asset", a.ID, opts.ActorID, events.EventPayload{"title": a.Title, "kind": a.Kind}); err != nil {
		return domain.Asset{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, err
	}
	if e.Notify != nil {
		e.Notify.AssetAvailable(a, opts.ActorID)
	}
	return a, nil
}

// ClaimAsset grants the caller an exclusive lease on an available asset and
// opens a work session. Claiming an asset that is already claimed or
// completed yields ConflictError.
func (e Engine) ClaimAsset(ctx context.Context, assetID, userID string) (domain.Asset, domain.Session, error) {
	if userID == "" {
		return domain.Asset{}, domain.Session{}, errors.New("user required")
	}
	if e.Config != nil && e.Config.Leases.MaxClaimsPerUser > 0 {
		held, err := e.Repo.ClaimedByUser(ctx, userID)
		if err != nil {
			return domain.Asset{}, domain.Session{}, err
		}
		if len(held) >= e.Config.Leases.MaxClaimsPerUser {
			return domain.Asset{}, domain.Session{}, InvalidStateError{Reason: fmt.Sprintf("user already holds %d claims", len(held))}
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Asset{}, domain.Session{}, err
	}
	defer tx.Rollback()

	now := e.now().UTC().Format(time.RFC3339)
	won, err := e.Repo.ClaimAsset(ctx, tx, assetID, userID, now)
	if err != nil {
		return domain.Asset{}, domain.Session{}, err
	}
	if !won {
		// The conditional update touched nothing: either the asset is gone
		// or someone else holds it. A follow-up read tells which.
		a, err := e.Repo.GetAssetTx(ctx, tx, assetID)
		if err != nil {
			return domain.Asset{}, domain.Session{}, err
		}
		if a.Status == domain.AssetCompleted {
			return domain.Asset{}, domain.Session{}, ConflictError{Reason: "asset is already completed"}
		}
		return domain.Asset{}, domain.Session{}, ConflictError{Reason: "asset is not available"}
	}
	s := domain.Session{
		ID:        uuid.New().String(),
		AssetID:   assetID,
		UserID:    userID,
		Status:    domain.SessionInProgress,
		StartedAt: now,
	}
	if err := e.Repo.InsertSession(ctx, tx, s); err != nil {
		return domain.Asset{}, domain.Session{}, err
	}
	a, err := e.Repo.GetAssetTx(ctx, tx, assetID)
	if err != nil {
		return domain.Asset{}, domain.Session{}, err
	}
	if err := e.Events.Append(ctx, tx, "asset.claimed", a.Project, "asset", a.ID, userID, events.EventPayload{"session_id": s.ID}); err != nil {
		return domain.Asset{}, domain.Session{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, domain.Session{}, err
	}
	if e.Notify != nil {
		e.Notify.AssetUnavailable(a, userID)
	}
	return a, s, nil
}

// ReleaseAsset returns a claimed asset to the pool and abandons the open
// session. Privileged callers may release claims they do not hold.
func (e Engine) ReleaseAsset(ctx context.Context, assetID, actorID string, privileged bool) (domain.Asset, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Asset{}, err
	}
	defer tx.Rollback()

	prev, err := e.Repo.GetAssetTx(ctx, tx, assetID)
	if err != nil {
		return domain.Asset{}, err
	}
	owner := actorID
	if privileged {
		owner = ""
	}
	now := e.now().UTC().Format(time.RFC3339)
	won, err := e.Repo.ReleaseAsset(ctx, tx, assetID, owner, now)
	if err != nil {
		return domain.Asset{}, err
	}
	if !won {
		if prev.Status != domain.AssetClaimed {
			return domain.Asset{}, InvalidStateError{Reason: "asset is not claimed"}
		}
		return domain.Asset{}, ForbiddenError{Reason: "asset is claimed by another user"}
	}
	holder := actorID
	if prev.ClaimedBy != nil {
		holder = *prev.ClaimedBy
	}
	if err := e.abandonOpenSession(ctx, tx, assetID, holder, now); err != nil {
		return domain.Asset{}, err
	}
	if err := e.Events.Append(ctx, tx, "asset.released", prev.Project, "asset", assetID, actorID, events.EventPayload{
		"holder":     holder,
		"privileged": privileged,
	}); err != nil {
		return domain.Asset{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, err
	}
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return domain.Asset{}, err
	}
	if e.Notify != nil {
		e.Notify.AssetAvailable(a, actorID)
	}
	return a, nil
}

// CompleteAsset finishes the caller's claim, closes the session and moves
// the user's aggregate counters.
func (e Engine) CompleteAsset(ctx context.Context, assetID, userID string) (domain.Asset, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Asset{}, err
	}
	defer tx.Rollback()

	prev, err := e.Repo.GetAssetTx(ctx, tx, assetID)
	if err != nil {
		return domain.Asset{}, err
	}
	now := e.now().UTC().Format(time.RFC3339)
	won, err := e.Repo.CompleteAsset(ctx, tx, assetID, userID, now)
	if err != nil {
		return domain.Asset{}, err
	}
	if !won {
		if prev.Status != domain.AssetClaimed {
			return domain.Asset{}, InvalidStateError{Reason: "asset is not claimed"}
		}
		return domain.Asset{}, ForbiddenError{Reason: "only the claim holder can complete an asset"}
	}
	spent, err := e.closeOpenSession(ctx, tx, assetID, userID, now, true)
	if err != nil {
		return domain.Asset{}, err
	}
	if err := e.Repo.BumpUserCompletion(ctx, tx, userID, spent); err != nil {
		return domain.Asset{}, err
	}
	if err := e.Events.Append(ctx, tx, "asset.completed", prev.Project, "asset", assetID, userID, events.EventPayload{"time_spent_ms": spent}); err != nil {
		return domain.Asset{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Asset{}, err
	}
	a, err := e.Repo.GetAsset(ctx, assetID)
	if err != nil {
		return domain.Asset{}, err
	}
	if e.Notify != nil {
		e.Notify.AssetCompleted(a, userID)
	}
	return a, nil
}

func (e Engine) abandonOpenSession(ctx context.Context, tx *sql.Tx, assetID, userID, now string) error {
	_, err := e.closeOpenSession(ctx, tx, assetID, userID, now, false)
	return err
}

// closeOpenSession finishes the in-progress session for (asset,user) and
// returns the time spent. A missing session is tolerated: claims can
// predate session tracking.
func (e Engine) closeOpenSession(ctx context.Context, tx *sql.Tx, assetID, userID, now string, completed bool) (int64, error) {
	s, err := e.Repo.OpenSessionTx(ctx, tx, assetID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	spent := sessionTimeSpent(s.StartedAt, now)
	if completed {
		return spent, e.Repo.CompleteSession(ctx, tx, s.ID, now, spent)
	}
	return spent, e.Repo.AbandonSession(ctx, tx, s.ID, now, spent)
}

func sessionTimeSpent(startedAt, now string) int64 {
	started, err := time.Parse(time.RFC3339, startedAt)
	if err != nil {
		return 0
	}
	ended, err := time.Parse(time.RFC3339, now)
	if err != nil {
		return 0
	}
	spent := ended.Sub(started).Milliseconds()
	if spent < 0 {
		return 0
	}
	return spent
}

// SweepStale reclaims claims older than staleAfter. Per-asset failures are
// logged and skipped so one bad row never stalls the sweep.
func (e Engine) SweepStale(ctx context.Context, staleAfter time.Duration) ([]domain.Asset, error) {
	cutoff := e.now().UTC().Add(-staleAfter).Format(time.RFC3339)
	stale, err := e.Repo.ClaimedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	var reclaimed []domain.Asset
	for _, a := range stale {
		released, err := e.ReleaseAsset(ctx, a.ID, "system:reaper", true)
		if err != nil {
			log.Printf("sweep: release asset %s failed: %v", a.ID, err)
			continue
		}
		reclaimed = append(reclaimed, released)
	}
	return reclaimed, nil
}

// ReleaseUserAssets abandons every claim the user holds; used when their
// last connection drops. Failures are logged and the cleanup continues.
func (e Engine) ReleaseUserAssets(ctx context.Context, userID string) ([]domain.Asset, error) {
	held, err := e.Repo.ClaimedByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	var released []domain.Asset
	for _, a := range held {
		r, err := e.ReleaseAsset(ctx, a.ID, userID, false)
		if err != nil {
			log.Printf("disconnect: release asset %s for %s failed: %v", a.ID, userID, err)
			continue
		}
		released = append(released, r)
	}
	return released, nil
}

// CreateUser registers a user record for stats and role lookups.
func (e Engine) CreateUser(ctx context.Context, id, name, email, role string) (domain.User, error) {
	if id == "" {
		id = uuid.New().String()
	}
	if name == "" {
		return domain.User{}, errors.New("name is required")
	}
	switch role {
	case "":
		role = "annotator"
	case "annotator", "manager", "admin":
	default:
		return domain.User{}, fmt.Errorf("unknown role %q", role)
	}
	u := domain.User{
		ID:        id,
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  true,
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertUser(ctx, u); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// CreateAPIKey mints a key for a user and stores only its hash.
func (e Engine) CreateAPIKey(ctx context.Context, userID, name string) (domain.APIKey, string, error) {
	if userID == "" {
		return domain.APIKey{}, "", errors.New("user required")
	}
	secret := uuid.New().String() + uuid.New().String()
	key := domain.APIKey{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.now().UTC().Format(time.RFC3339),
	}
	if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

// ListAPIKeys returns stored keys, optionally scoped to one user. The
// hash column stays server-side.
func (e Engine) ListAPIKeys(ctx context.Context, userID string) ([]domain.APIKey, error) {
	keys, err := e.Repo.ListAPIKeys(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range keys {
		keys[i].KeyHash = ""
	}
	return keys, nil
}

// RevokeAPIKey removes a key. Requests carrying the revoked secret fail
// auth on their next use.
func (e Engine) RevokeAPIKey(ctx context.Context, id string) error {
	if _, err := e.Repo.GetAPIKeyByID(ctx, id); err != nil {
		return err
	}
	return e.Repo.DeleteAPIKey(ctx, id)
}
