package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"labelline/internal/config"
	"labelline/internal/db"
	"labelline/internal/domain"
	"labelline/internal/engine"
	"labelline/internal/migrate"
	"labelline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context

	mu  sync.Mutex
	now time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	// One connection keeps sqlite writes serialized under concurrent claims.
	conn.SetMaxOpenConns(1)
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("proj-1")
	env := &testEnv{Ctx: context.Background(), now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	eng := engine.New(conn, cfg)
	eng.Now = func() time.Time {
		env.mu.Lock()
		defer env.mu.Unlock()
		return env.now
	}
	env.Engine = eng
	return env
}

func (env *testEnv) advance(d time.Duration) {
	env.mu.Lock()
	env.now = env.now.Add(d)
	env.mu.Unlock()
}

func (env *testEnv) seedUser(t *testing.T, id, role string) domain.User {
	t.Helper()
	u, err := env.Engine.CreateUser(env.Ctx, id, id, "", role)
	if err != nil {
		t.Fatalf("seed user %s: %v", id, err)
	}
	return u
}

func (env *testEnv) seedAsset(t *testing.T, title string) domain.Asset {
	t.Helper()
	a, err := env.Engine.CreateAsset(env.Ctx, engine.AssetCreateOptions{
		Kind:      "image",
		URL:       "https://example.com/" + title + ".png",
		Title:     title,
		ActorID:   "admin-1",
		ActorRole: "admin",
	})
	if err != nil {
		t.Fatalf("seed asset %s: %v", title, err)
	}
	return a
}

func boxGeometry() domain.Geometry {
	return domain.Geometry{Box: &domain.BoxGeometry{X: 10, Y: 20, Width: 100, Height: 50}}
}

func TestClaimLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "annotator")
	a := env.seedAsset(t, "street-01")

	claimed, s, err := env.Engine.ClaimAsset(env.Ctx, a.ID, "alice")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.Status != domain.AssetClaimed || claimed.ClaimedBy == nil || *claimed.ClaimedBy != "alice" {
		t.Fatalf("claim did not mark holder: %+v", claimed)
	}
	if s.Status != domain.SessionInProgress {
		t.Fatalf("expected in_progress session, got %s", s.Status)
	}

	released, err := env.Engine.ReleaseAsset(env.Ctx, a.ID, "alice", false)
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Status != domain.AssetAvailable || released.ClaimedBy != nil {
		t.Fatalf("release did not reset asset: %+v", released)
	}
	sessions, err := env.Engine.Repo.ListSessions(env.Ctx, repo.SessionFilters{AssetID: a.ID})
	if err != nil {
		t.Fatalf("list sessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].Status != domain.SessionAbandoned {
		t.Fatalf("expected one abandoned session, got %+v", sessions)
	}

	if _, _, err := env.Engine.ClaimAsset(env.Ctx, a.ID, "alice"); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	env.advance(5 * time.Minute)
	completed, err := env.Engine.CompleteAsset(env.Ctx, a.ID, "alice")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if completed.Status != domain.AssetCompleted || completed.CompletedBy == nil || *completed.CompletedBy != "alice" {
		t.Fatalf("complete did not finish asset: %+v", completed)
	}
	u, err := env.Engine.Repo.GetUser(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.TasksCompleted != 1 {
		t.Fatalf("expected 1 completed task, got %d", u.TasksCompleted)
	}
	if u.TotalTimeMS != (5 * time.Minute).Milliseconds() {
		t.Fatalf("expected 5m of tracked time, got %dms", u.TotalTimeMS)
	}
}

func TestClaimSingleWinner(t *testing.T) {
	env := newTestEnv(t)
	a := env.seedAsset(t, "contested")
	users := []string{"u1", "u2", "u3", "u4"}
	for _, u := range users {
		env.seedUser(t, u, "annotator")
	}

	var wg sync.WaitGroup
	errs := make([]error, len(users))
	for i, u := range users {
		wg.Add(1)
		go func(i int, u string) {
			defer wg.Done()
			_, _, errs[i] = env.Engine.ClaimAsset(env.Ctx, a.ID, u)
		}(i, u)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		var ce engine.ConflictError
		if !errors.As(err, &ce) {
			t.Fatalf("loser got %v, want conflict", err)
		}
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winner, got %d", wins)
	}
}

func TestClaimCompletedAsset(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "annotator")
	env.seedUser(t, "bob", "annotator")
	a := env.seedAsset(t, "done-already")
	if _, _, err := env.Engine.ClaimAsset(env.Ctx, a.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.CompleteAsset(env.Ctx, a.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	_, _, err := env.Engine.ClaimAsset(env.Ctx, a.ID, "bob")
	var ce engine.ConflictError
	if !errors.As(err, &ce) {
		t.Fatalf("expected conflict on completed asset, got %v", err)
	}
}

func TestReleasePermissions(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "annotator")
	env.seedUser(t, "bob", "annotator")
	a := env.seedAsset(t, "guarded")
	if _, _, err := env.Engine.ClaimAsset(env.Ctx, a.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	_, err := env.Engine.ReleaseAsset(env.Ctx, a.ID, "bob", false)
	var fe engine.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden for non-holder, got %v", err)
	}

	released, err := env.Engine.ReleaseAsset(env.Ctx, a.ID, "manager-1", true)
	if err != nil {
		t.Fatalf("privileged release: %v", err)
	}
	if released.Status != domain.AssetAvailable {
		t.Fatalf("asset not returned to pool: %+v", released)
	}

	_, err = env.Engine.ReleaseAsset(env.Ctx, a.ID, "alice", false)
	var ise engine.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected invalid state releasing an unclaimed asset, got %v", err)
	}
}

func TestCompleteRequiresHolder(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "annotator")
	env.seedUser(t, "bob", "annotator")
	a := env.seedAsset(t, "owned")
	if _, _, err := env.Engine.ClaimAsset(env.Ctx, a.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	_, err := env.Engine.CompleteAsset(env.Ctx, a.ID, "bob")
	var fe engine.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden for non-holder, got %v", err)
	}
}

func TestMaxClaimsPerUser(t *testing.T) {
	env := newTestEnv(t)
	env.Engine.Config.Leases.MaxClaimsPerUser = 1
	env.seedUser(t, "alice", "annotator")
	a1 := env.seedAsset(t, "first")
	a2 := env.seedAsset(t, "second")
	if _, _, err := env.Engine.ClaimAsset(env.Ctx, a1.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	_, _, err := env.Engine.ClaimAsset(env.Ctx, a2.ID, "alice")
	var ise engine.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected invalid state over the claim cap, got %v", err)
	}
}

func TestAnnotationVersioning(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "annotator")
	a := env.seedAsset(t, "boxes")
	if _, _, err := env.Engine.ClaimAsset(env.Ctx, a.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	ann, err := env.Engine.CreateAnnotation(env.Ctx, engine.AnnotationCreateOptions{
		AssetID:  a.ID,
		Type:     domain.TypeBoundingBox,
		Label:    "car",
		Geometry: boxGeometry(),
		ActorID:  "alice",
	})
	if err != nil {
		t.Fatalf("create annotation: %v", err)
	}
	if ann.Version != 1 || ann.Confidence != 1 {
		t.Fatalf("unexpected initial annotation: %+v", ann)
	}

	updated, err := env.Engine.UpdateAnnotation(env.Ctx, engine.AnnotationUpdateOptions{
		ID:              ann.ID,
		ExpectedVersion: 1,
		Label:           "truck",
		Geometry:        boxGeometry(),
		ActorID:         "alice",
	})
	if err != nil {
		t.Fatalf("update annotation: %v", err)
	}
	if updated.Version != 2 || updated.Label != "truck" {
		t.Fatalf("update did not bump version: %+v", updated)
	}

	// A second writer editing from the stale version gets the current copy.
	_, err = env.Engine.UpdateAnnotation(env.Ctx, engine.AnnotationUpdateOptions{
		ID:              ann.ID,
		ExpectedVersion: 1,
		Label:           "bus",
		Geometry:        boxGeometry(),
		ActorID:         "alice",
	})
	var vc engine.VersionConflictError
	if !errors.As(err, &vc) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if vc.CurrentVersion != 2 || vc.Current.Label != "truck" {
		t.Fatalf("conflict did not carry the authoritative record: %+v", vc)
	}

	full, err := env.Engine.GetAnnotation(env.Ctx, ann.ID, true)
	if err != nil {
		t.Fatalf("get annotation: %v", err)
	}
	if len(full.History) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(full.History))
	}
	if full.History[0].Action != domain.ActionCreated || full.History[1].Action != domain.ActionUpdated {
		t.Fatalf("history out of order: %+v", full.History)
	}
	if full.History[1].Changes == "" {
		t.Fatalf("update history entry is missing its change set")
	}
}

func TestAnnotationRequiresClaim(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "annotator")
	env.seedUser(t, "bob", "annotator")
	a := env.seedAsset(t, "unclaimed")

	_, err := env.Engine.CreateAnnotation(env.Ctx, engine.AnnotationCreateOptions{
		AssetID:  a.ID,
		Type:     domain.TypeBoundingBox,
		Label:    "car",
		Geometry: boxGeometry(),
		ActorID:  "alice",
	})
	var fe engine.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden without a claim, got %v", err)
	}

	if _, _, err := env.Engine.ClaimAsset(env.Ctx, a.ID, "bob"); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.CreateAnnotation(env.Ctx, engine.AnnotationCreateOptions{
		AssetID:  a.ID,
		Type:     domain.TypeBoundingBox,
		Label:    "car",
		Geometry: boxGeometry(),
		ActorID:  "alice",
	})
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden on another user's claim, got %v", err)
	}
}

func TestAnnotationSoftDelete(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "annotator")
	env.seedUser(t, "bob", "annotator")
	a := env.seedAsset(t, "deletable")
	if _, _, err := env.Engine.ClaimAsset(env.Ctx, a.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	ann, err := env.Engine.CreateAnnotation(env.Ctx, engine.AnnotationCreateOptions{
		AssetID:  a.ID,
		Type:     domain.TypePoint,
		Label:    "landmark",
		Geometry: domain.Geometry{Point: &domain.PointGeometry{X: 3, Y: 4}},
		ActorID:  "alice",
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.Engine.DeleteAnnotation(env.Ctx, ann.ID, "bob", false)
	var fe engine.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden for non-holder, got %v", err)
	}

	deleted, err := env.Engine.DeleteAnnotation(env.Ctx, ann.ID, "alice", false)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted.IsDeleted {
		t.Fatalf("annotation not marked deleted: %+v", deleted)
	}

	visible, err := env.Engine.Repo.ListAnnotations(env.Ctx, repo.AnnotationFilters{AssetID: a.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(visible) != 0 {
		t.Fatalf("deleted annotation still listed: %+v", visible)
	}
	all, err := env.Engine.Repo.ListAnnotations(env.Ctx, repo.AnnotationFilters{AssetID: a.ID, IncludeDeleted: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("expected deleted annotation with include_deleted, got %+v", all)
	}

	_, err = env.Engine.DeleteAnnotation(env.Ctx, ann.ID, "alice", false)
	var ise engine.InvalidStateError
	if !errors.As(err, &ise) {
		t.Fatalf("expected invalid state on double delete, got %v", err)
	}

	// Authorship does not survive the lease: once alice lets the claim go,
	// only a privileged actor can remove her remaining annotation.
	ann2, err := env.Engine.CreateAnnotation(env.Ctx, engine.AnnotationCreateOptions{
		AssetID:  a.ID,
		Type:     domain.TypePoint,
		Label:    "second",
		Geometry: domain.Geometry{Point: &domain.PointGeometry{X: 5, Y: 6}},
		ActorID:  "alice",
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ReleaseAsset(env.Ctx, a.ID, "alice", false); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.DeleteAnnotation(env.Ctx, ann2.ID, "alice", false)
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden for author without the claim, got %v", err)
	}
	if _, err := env.Engine.DeleteAnnotation(env.Ctx, ann2.ID, "manager-1", true); err != nil {
		t.Fatalf("privileged delete: %v", err)
	}
}

func TestSweepStale(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "annotator")
	env.seedUser(t, "bob", "annotator")
	stale := env.seedAsset(t, "stale")
	fresh := env.seedAsset(t, "fresh")

	if _, _, err := env.Engine.ClaimAsset(env.Ctx, stale.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	env.advance(31 * time.Minute)
	if _, _, err := env.Engine.ClaimAsset(env.Ctx, fresh.ID, "bob"); err != nil {
		t.Fatal(err)
	}

	reclaimed, err := env.Engine.SweepStale(env.Ctx, 30*time.Minute)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(reclaimed) != 1 || reclaimed[0].ID != stale.ID {
		t.Fatalf("expected only the stale claim reclaimed, got %+v", reclaimed)
	}
	a, err := env.Engine.Repo.GetAsset(env.Ctx, stale.ID)
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != domain.AssetAvailable {
		t.Fatalf("reclaimed asset not available: %+v", a)
	}
	b, err := env.Engine.Repo.GetAsset(env.Ctx, fresh.ID)
	if err != nil {
		t.Fatal(err)
	}
	if b.Status != domain.AssetClaimed {
		t.Fatalf("fresh claim was swept: %+v", b)
	}
	sessions, err := env.Engine.Repo.ListSessions(env.Ctx, repo.SessionFilters{AssetID: stale.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].Status != domain.SessionAbandoned {
		t.Fatalf("stale session not abandoned: %+v", sessions)
	}
}

func TestReleaseUserAssets(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "annotator")
	a1 := env.seedAsset(t, "one")
	a2 := env.seedAsset(t, "two")
	if _, _, err := env.Engine.ClaimAsset(env.Ctx, a1.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.ClaimAsset(env.Ctx, a2.ID, "alice"); err != nil {
		t.Fatal(err)
	}

	released, err := env.Engine.ReleaseUserAssets(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("release user assets: %v", err)
	}
	if len(released) != 2 {
		t.Fatalf("expected 2 releases, got %d", len(released))
	}
	held, err := env.Engine.Repo.ClaimedByUser(env.Ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(held) != 0 {
		t.Fatalf("user still holds claims: %+v", held)
	}
}

func TestUserMetrics(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "annotator")
	a1 := env.seedAsset(t, "m1")
	a2 := env.seedAsset(t, "m2")

	if _, _, err := env.Engine.ClaimAsset(env.Ctx, a1.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	env.advance(10 * time.Minute)
	if _, err := env.Engine.CompleteAsset(env.Ctx, a1.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := env.Engine.ClaimAsset(env.Ctx, a2.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	env.advance(2 * time.Minute)
	if _, err := env.Engine.ReleaseAsset(env.Ctx, a2.ID, "alice", false); err != nil {
		t.Fatal(err)
	}

	m, err := env.Engine.UserMetrics(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("user metrics: %v", err)
	}
	if m.TasksCompleted != 1 || m.TasksAbandoned != 1 {
		t.Fatalf("unexpected session counts: %+v", m)
	}
	if m.CompletionRate != 0.5 {
		t.Fatalf("expected completion rate 0.5, got %v", m.CompletionRate)
	}
	if m.TotalTimeMS != (12 * time.Minute).Milliseconds() {
		t.Fatalf("expected 12m of tracked time, got %dms", m.TotalTimeMS)
	}
}

func TestAPIKeyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "annotator")

	key, secret, err := env.Engine.CreateAPIKey(env.Ctx, "alice", "ci")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if secret == "" || key.KeyHash == "" {
		t.Fatal("expected a secret and a stored hash")
	}
	if _, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(secret)); err != nil {
		t.Fatalf("lookup by hash: %v", err)
	}

	keys, err := env.Engine.ListAPIKeys(env.Ctx, "alice")
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if len(keys) != 1 || keys[0].ID != key.ID {
		t.Fatalf("unexpected key list: %+v", keys)
	}
	if keys[0].KeyHash != "" {
		t.Fatal("list leaked the key hash")
	}

	if err := env.Engine.RevokeAPIKey(env.Ctx, key.ID); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(secret)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("revoked key still resolves: %v", err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, key.ID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found on double revoke, got %v", err)
	}
}

func TestAnnotationUpdateRequiresClaim(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "annotator")
	env.seedUser(t, "bob", "annotator")
	a := env.seedAsset(t, "guarded-edit")
	if _, _, err := env.Engine.ClaimAsset(env.Ctx, a.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	ann, err := env.Engine.CreateAnnotation(env.Ctx, engine.AnnotationCreateOptions{
		AssetID:  a.ID,
		Type:     domain.TypeBoundingBox,
		Label:    "car",
		Geometry: boxGeometry(),
		ActorID:  "alice",
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = env.Engine.UpdateAnnotation(env.Ctx, engine.AnnotationUpdateOptions{
		ID:              ann.ID,
		ExpectedVersion: 1,
		Label:           "truck",
		Geometry:        boxGeometry(),
		ActorID:         "bob",
	})
	var fe engine.ForbiddenError
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden for a non-holder edit, got %v", err)
	}

	kept, err := env.Engine.GetAnnotation(env.Ctx, ann.ID, false)
	if err != nil {
		t.Fatal(err)
	}
	if kept.Version != 1 || kept.Label != "car" {
		t.Fatalf("rejected edit changed the record: %+v", kept)
	}

	// Even the author loses edit rights once the claim is gone.
	if _, err := env.Engine.ReleaseAsset(env.Ctx, a.ID, "alice", false); err != nil {
		t.Fatal(err)
	}
	_, err = env.Engine.UpdateAnnotation(env.Ctx, engine.AnnotationUpdateOptions{
		ID:              ann.ID,
		ExpectedVersion: 1,
		Label:           "truck",
		Geometry:        boxGeometry(),
		ActorID:         "alice",
	})
	if !errors.As(err, &fe) {
		t.Fatalf("expected forbidden after releasing the claim, got %v", err)
	}
}

func TestAnnotationListNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", "annotator")
	a := env.seedAsset(t, "ordered")
	if _, _, err := env.Engine.ClaimAsset(env.Ctx, a.ID, "alice"); err != nil {
		t.Fatal(err)
	}
	first, err := env.Engine.CreateAnnotation(env.Ctx, engine.AnnotationCreateOptions{
		AssetID:  a.ID,
		Type:     domain.TypeBoundingBox,
		Label:    "older",
		Geometry: boxGeometry(),
		ActorID:  "alice",
	})
	if err != nil {
		t.Fatal(err)
	}
	env.advance(time.Minute)
	second, err := env.Engine.CreateAnnotation(env.Ctx, engine.AnnotationCreateOptions{
		AssetID:  a.ID,
		Type:     domain.TypeBoundingBox,
		Label:    "newer",
		Geometry: boxGeometry(),
		ActorID:  "alice",
	})
	if err != nil {
		t.Fatal(err)
	}

	items, err := env.Engine.Repo.ListAnnotations(env.Ctx, repo.AnnotationFilters{AssetID: a.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].ID != second.ID || items[1].ID != first.ID {
		t.Fatalf("expected newest-first order, got %+v", items)
	}
}
