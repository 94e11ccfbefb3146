package hub

import (
	"context"
	"log"
	"sort"
	"sync"

	"labelline/internal/domain"
)

// Conn is one live client connection. Emit must never block: transports
// buffer and drop rather than stall the hub.
type Conn interface {
	ID() string
	UserID() string
	UserName() string
	Emit(event string, payload any)
}

// Releaser abandons every claim a user holds; wired to the lease manager.
type Releaser interface {
	ReleaseUserAssets(ctx context.Context, userID string) ([]domain.Asset, error)
}

// Presence identifies one online user.
type Presence struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// Hub owns all presence state behind one mutex: who is connected, which
// connections each user has, and who is viewing which asset. The lock is
// never held across Emit calls or engine calls, so committed-mutation
// notifications may re-enter freely.
type Hub struct {
	releaser Releaser

	mu        sync.Mutex
	conns     map[string]Conn            // conn id -> conn
	userConns map[string]map[string]Conn // user id -> conn id -> conn
	rooms     map[string]map[string]Conn // asset id -> conn id -> conn
	connRooms map[string]map[string]bool // conn id -> asset ids joined
}

func New(releaser Releaser) *Hub {
	return &Hub{
		releaser:  releaser,
		conns:     map[string]Conn{},
		userConns: map[string]map[string]Conn{},
		rooms:     map[string]map[string]Conn{},
		connRooms: map[string]map[string]bool{},
	}
}

// Register adds a connection. The user's first connection announces them
// online to everyone else.
func (h *Hub) Register(c Conn) {
	h.mu.Lock()
	h.conns[c.ID()] = c
	set := h.userConns[c.UserID()]
	if set == nil {
		set = map[string]Conn{}
		h.userConns[c.UserID()] = set
	}
	first := len(set) == 0
	set[c.ID()] = c
	targets := h.allExceptLocked(c.ID())
	h.mu.Unlock()

	if first {
		emitAll(targets, "user_online", Presence{UserID: c.UserID(), UserName: c.UserName()})
	}
}

// Disconnect removes a connection. When it was the user's last one, the
// user goes offline and every claim they hold is released; each release is
// broadcast by the lease manager's notifier re-entering this hub.
func (h *Hub) Disconnect(connID string) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, connID)
	userID, userName := c.UserID(), c.UserName()

	var leftRooms []roomDeparture
	for assetID := range h.connRooms[connID] {
		leftRooms = append(leftRooms, h.leaveRoomLocked(connID, assetID))
	}
	delete(h.connRooms, connID)

	set := h.userConns[userID]
	delete(set, connID)
	last := len(set) == 0
	if last {
		delete(h.userConns, userID)
	}
	targets := h.allExceptLocked(connID)
	h.mu.Unlock()

	for _, d := range leftRooms {
		d.announce(userID, userName)
	}
	if !last {
		return
	}
	emitAll(targets, "user_offline", Presence{UserID: userID, UserName: userName})
	if h.releaser == nil {
		return
	}
	if _, err := h.releaser.ReleaseUserAssets(context.Background(), userID); err != nil {
		log.Printf("hub: release claims for %s on disconnect: %v", userID, err)
	}
}

// JoinRoom subscribes the connection to one asset's annotation traffic and
// returns the current viewers.
func (h *Hub) JoinRoom(connID, assetID string) ([]Presence, bool) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return nil, false
	}
	room := h.rooms[assetID]
	if room == nil {
		room = map[string]Conn{}
		h.rooms[assetID] = room
	}
	firstOfUser := !roomHasUserLocked(room, c.UserID(), connID)
	room[connID] = c
	joined := h.connRooms[connID]
	if joined == nil {
		joined = map[string]bool{}
		h.connRooms[connID] = joined
	}
	joined[assetID] = true
	viewers := roomViewersLocked(room)
	targets := roomExceptLocked(room, connID)
	h.mu.Unlock()

	if firstOfUser {
		emitAll(targets, "user_joined_asset", map[string]any{
			"asset_id":  assetID,
			"user_id":   c.UserID(),
			"user_name": c.UserName(),
		})
	}
	return viewers, true
}

// LeaveRoom unsubscribes the connection from the asset's room.
func (h *Hub) LeaveRoom(connID, assetID string) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if !ok {
		h.mu.Unlock()
		return
	}
	d := h.leaveRoomLocked(connID, assetID)
	delete(h.connRooms[connID], assetID)
	h.mu.Unlock()

	d.announce(c.UserID(), c.UserName())
}

// roomDeparture captures who to tell, decided under the lock, announced
// outside it.
type roomDeparture struct {
	assetID    string
	lastOfUser bool
	targets    []Conn
}

func (d roomDeparture) announce(userID, userName string) {
	if !d.lastOfUser {
		return
	}
	emitAll(d.targets, "user_left_asset", map[string]any{
		"asset_id":  d.assetID,
		"user_id":   userID,
		"user_name": userName,
	})
}

func (h *Hub) leaveRoomLocked(connID, assetID string) roomDeparture {
	room := h.rooms[assetID]
	c, inRoom := room[connID]
	if !inRoom {
		return roomDeparture{}
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(h.rooms, assetID)
	}
	return roomDeparture{
		assetID:    assetID,
		lastOfUser: !roomHasUserLocked(room, c.UserID(), ""),
		targets:    roomExceptLocked(room, connID),
	}
}

// Cursor relays a pointer position to the other viewers of an asset.
// Best-effort only; nothing is stored.
func (h *Hub) Cursor(connID, assetID string, x, y float64) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	if !ok || !h.connRooms[connID][assetID] {
		h.mu.Unlock()
		return
	}
	targets := roomExceptLocked(h.rooms[assetID], connID)
	h.mu.Unlock()

	emitAll(targets, "user_cursor", map[string]any{
		"asset_id":  assetID,
		"user_id":   c.UserID(),
		"user_name": c.UserName(),
		"x":         x,
		"y":         y,
	})
}

// Owner reports which user holds a connection id.
func (h *Hub) Owner(connID string) (string, bool) {
	h.mu.Lock()
	c, ok := h.conns[connID]
	h.mu.Unlock()
	if !ok {
		return "", false
	}
	return c.UserID(), true
}

// ActiveUsers returns everyone with at least one live connection.
func (h *Hub) ActiveUsers() []Presence {
	h.mu.Lock()
	res := make([]Presence, 0, len(h.userConns))
	for _, set := range h.userConns {
		for _, c := range set {
			res = append(res, Presence{UserID: c.UserID(), UserName: c.UserName()})
			break
		}
	}
	h.mu.Unlock()
	sort.Slice(res, func(i, j int) bool { return res[i].UserID < res[j].UserID })
	return res
}

// RoomViewers returns the users currently viewing an asset.
func (h *Hub) RoomViewers(assetID string) []Presence {
	h.mu.Lock()
	res := roomViewersLocked(h.rooms[assetID])
	h.mu.Unlock()
	return res
}

// Asset lifecycle changes concern every client; annotation changes only
// the asset's room. These satisfy the lease manager's notifier contract.

func (h *Hub) AssetAvailable(a domain.Asset, actorID string) {
	h.broadcastAll("asset_available", map[string]any{"asset": a, "by": actorID})
}

func (h *Hub) AssetUnavailable(a domain.Asset, actorID string) {
	h.broadcastAll("asset_unavailable", map[string]any{"asset": a, "by": actorID})
}

func (h *Hub) AssetCompleted(a domain.Asset, actorID string) {
	h.broadcastAll("asset_completed", map[string]any{"asset": a, "by": actorID})
}

func (h *Hub) AnnotationAdded(ann domain.Annotation, actorID string) {
	h.broadcastRoom(ann.AssetID, "annotation_added", map[string]any{"annotation": ann, "by": actorID})
}

func (h *Hub) AnnotationChanged(ann domain.Annotation, actorID string) {
	h.broadcastRoom(ann.AssetID, "annotation_changed", map[string]any{"annotation": ann, "by": actorID})
}

func (h *Hub) AnnotationRemoved(ann domain.Annotation, actorID string) {
	h.broadcastRoom(ann.AssetID, "annotation_removed", map[string]any{"annotation": ann, "by": actorID})
}

func (h *Hub) broadcastAll(event string, payload any) {
	h.mu.Lock()
	targets := h.allExceptLocked("")
	h.mu.Unlock()
	emitAll(targets, event, payload)
}

func (h *Hub) broadcastRoom(assetID, event string, payload any) {
	h.mu.Lock()
	targets := roomExceptLocked(h.rooms[assetID], "")
	h.mu.Unlock()
	emitAll(targets, event, payload)
}

func (h *Hub) allExceptLocked(connID string) []Conn {
	res := make([]Conn, 0, len(h.conns))
	for id, c := range h.conns {
		if id == connID {
			continue
		}
		res = append(res, c)
	}
	return res
}

func roomExceptLocked(room map[string]Conn, connID string) []Conn {
	res := make([]Conn, 0, len(room))
	for id, c := range room {
		if id == connID {
			continue
		}
		res = append(res, c)
	}
	return res
}

func roomHasUserLocked(room map[string]Conn, userID, exceptConnID string) bool {
	for id, c := range room {
		if id == exceptConnID {
			continue
		}
		if c.UserID() == userID {
			return true
		}
	}
	return false
}

func roomViewersLocked(room map[string]Conn) []Presence {
	seen := map[string]bool{}
	var res []Presence
	for _, c := range room {
		if seen[c.UserID()] {
			continue
		}
		seen[c.UserID()] = true
		res = append(res, Presence{UserID: c.UserID(), UserName: c.UserName()})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UserID < res[j].UserID })
	return res
}

func emitAll(targets []Conn, event string, payload any) {
	for _, c := range targets {
		c.Emit(event, payload)
	}
}
