package hub_test

import (
	"context"
	"sync"
	"testing"

	"labelline/internal/config"
	"labelline/internal/db"
	"labelline/internal/domain"
	"labelline/internal/engine"
	"labelline/internal/hub"
	"labelline/internal/migrate"
)

type fakeConn struct {
	id       string
	userID   string
	userName string

	mu     sync.Mutex
	events []string
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, userID: userID, userName: "name-" + userID}
}

func (c *fakeConn) ID() string       { return c.id }
func (c *fakeConn) UserID() string   { return c.userID }
func (c *fakeConn) UserName() string { return c.userName }

func (c *fakeConn) Emit(event string, payload any) {
	c.mu.Lock()
	c.events = append(c.events, event)
	c.mu.Unlock()
}

func (c *fakeConn) received(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e == event {
			n++
		}
	}
	return n
}

type fakeReleaser struct {
	mu    sync.Mutex
	users []string
}

func (r *fakeReleaser) ReleaseUserAssets(ctx context.Context, userID string) ([]domain.Asset, error) {
	r.mu.Lock()
	r.users = append(r.users, userID)
	r.mu.Unlock()
	return nil, nil
}

func (r *fakeReleaser) released() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.users...)
}

func TestOnlineOfflineAnnouncements(t *testing.T) {
	rel := &fakeReleaser{}
	h := hub.New(rel)

	alice := newFakeConn("c1", "alice")
	h.Register(alice)
	bob := newFakeConn("c2", "bob")
	h.Register(bob)

	if n := alice.received("user_online"); n != 1 {
		t.Fatalf("alice saw %d user_online, want 1", n)
	}
	if n := bob.received("user_online"); n != 0 {
		t.Fatalf("bob should not see his own arrival, saw %d", n)
	}

	// A second connection for bob is not a new arrival.
	bob2 := newFakeConn("c3", "bob")
	h.Register(bob2)
	if n := alice.received("user_online"); n != 1 {
		t.Fatalf("second connection announced again: %d", n)
	}

	h.Disconnect("c2")
	if n := alice.received("user_offline"); n != 0 {
		t.Fatalf("offline announced while a connection remains: %d", n)
	}
	if got := rel.released(); len(got) != 0 {
		t.Fatalf("claims released while a connection remains: %v", got)
	}

	h.Disconnect("c3")
	if n := alice.received("user_offline"); n != 1 {
		t.Fatalf("alice saw %d user_offline, want 1", n)
	}
	got := rel.released()
	if len(got) != 1 || got[0] != "bob" {
		t.Fatalf("expected bob's claims released, got %v", got)
	}
}

func TestRoomScopedFanout(t *testing.T) {
	h := hub.New(nil)
	alice := newFakeConn("c1", "alice")
	bob := newFakeConn("c2", "bob")
	carol := newFakeConn("c3", "carol")
	h.Register(alice)
	h.Register(bob)
	h.Register(carol)

	if _, ok := h.JoinRoom("c1", "asset-1"); !ok {
		t.Fatal("join failed")
	}
	viewers, ok := h.JoinRoom("c2", "asset-1")
	if !ok {
		t.Fatal("join failed")
	}
	if len(viewers) != 2 {
		t.Fatalf("expected 2 viewers, got %+v", viewers)
	}
	if n := alice.received("user_joined_asset"); n != 1 {
		t.Fatalf("alice saw %d joins, want 1", n)
	}

	ann := domain.Annotation{ID: "ann-1", AssetID: "asset-1"}
	h.AnnotationAdded(ann, "alice")
	if n := bob.received("annotation_added"); n != 1 {
		t.Fatalf("room member missed annotation: %d", n)
	}
	if n := carol.received("annotation_added"); n != 0 {
		t.Fatalf("non-member received room traffic: %d", n)
	}

	// Asset lifecycle reaches everyone, room or not.
	h.AssetAvailable(domain.Asset{ID: "asset-2"}, "system:reaper")
	for _, c := range []*fakeConn{alice, bob, carol} {
		if n := c.received("asset_available"); n != 1 {
			t.Fatalf("%s saw %d asset_available, want 1", c.userID, n)
		}
	}

	h.LeaveRoom("c2", "asset-1")
	if n := alice.received("user_left_asset"); n != 1 {
		t.Fatalf("alice saw %d departures, want 1", n)
	}
	h.AnnotationChanged(ann, "alice")
	if n := bob.received("annotation_changed"); n != 0 {
		t.Fatalf("departed member received room traffic: %d", n)
	}
}

func TestCursorRelay(t *testing.T) {
	h := hub.New(nil)
	alice := newFakeConn("c1", "alice")
	bob := newFakeConn("c2", "bob")
	h.Register(alice)
	h.Register(bob)
	h.JoinRoom("c1", "asset-1")
	h.JoinRoom("c2", "asset-1")

	h.Cursor("c1", "asset-1", 0.4, 0.6)
	if n := bob.received("user_cursor"); n != 1 {
		t.Fatalf("bob saw %d cursor events, want 1", n)
	}
	if n := alice.received("user_cursor"); n != 0 {
		t.Fatalf("cursor echoed to sender: %d", n)
	}

	// Cursor outside a joined room is dropped.
	h.Cursor("c1", "asset-2", 0.1, 0.1)
	if n := bob.received("user_cursor"); n != 1 {
		t.Fatalf("cursor leaked across rooms: %d", n)
	}
}

func TestDisconnectLeavesRooms(t *testing.T) {
	h := hub.New(nil)
	alice := newFakeConn("c1", "alice")
	bob := newFakeConn("c2", "bob")
	h.Register(alice)
	h.Register(bob)
	h.JoinRoom("c1", "asset-1")
	h.JoinRoom("c2", "asset-1")

	h.Disconnect("c2")
	if n := alice.received("user_left_asset"); n != 1 {
		t.Fatalf("alice saw %d departures, want 1", n)
	}
	viewers := h.RoomViewers("asset-1")
	if len(viewers) != 1 || viewers[0].UserID != "alice" {
		t.Fatalf("unexpected viewers after disconnect: %+v", viewers)
	}
}

func TestOwner(t *testing.T) {
	h := hub.New(nil)
	h.Register(newFakeConn("c1", "alice"))
	owner, ok := h.Owner("c1")
	if !ok || owner != "alice" {
		t.Fatalf("owner lookup failed: %s %v", owner, ok)
	}
	if _, ok := h.Owner("nope"); ok {
		t.Fatal("unknown connection reported an owner")
	}
}

// Wires a real lease manager the way serve does: the hub releases through
// it, and its notifier re-enters the hub to broadcast each release.
func TestDisconnectReleaseBroadcast(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetMaxOpenConns(1)
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default("proj-1"))
	h := hub.New(&e)
	e.Notify = h

	ctx := context.Background()
	a, err := e.CreateAsset(ctx, engine.AssetCreateOptions{
		Kind:      "image",
		URL:       "https://example.com/held.png",
		Title:     "held",
		ActorID:   "admin-1",
		ActorRole: "admin",
	})
	if err != nil {
		t.Fatalf("create asset: %v", err)
	}

	alice := newFakeConn("c1", "alice")
	bob := newFakeConn("c2", "bob")
	h.Register(alice)
	h.Register(bob)

	if _, _, err := e.ClaimAsset(ctx, a.ID, "alice"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if n := bob.received("asset_unavailable"); n != 1 {
		t.Fatalf("bob saw %d asset_unavailable, want 1", n)
	}

	h.Disconnect("c1")
	if n := bob.received("asset_available"); n != 1 {
		t.Fatalf("bob saw %d asset_available after the disconnect release, want 1", n)
	}
	got, err := e.Repo.GetAsset(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.AssetAvailable || got.ClaimedBy != nil {
		t.Fatalf("claim not released on disconnect: %+v", got)
	}
}
