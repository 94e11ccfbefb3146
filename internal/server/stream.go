package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"labelline/internal/hub"
)

const (
	streamBuffer    = 64
	streamHeartbeat = 25 * time.Second
)

type sseFrame struct {
	event   string
	payload any
}

// sseConn adapts one Server-Sent Events response to the hub's Conn
// interface. Emit never blocks: frames beyond the buffer are dropped,
// slow readers lose events rather than stalling broadcasts.
type sseConn struct {
	id       string
	userID   string
	userName string

	frames chan sseFrame
	once   sync.Once
	done   chan struct{}
}

func newSSEConn(userID, userName string) *sseConn {
	return &sseConn{
		id:       uuid.NewString(),
		userID:   userID,
		userName: userName,
		frames:   make(chan sseFrame, streamBuffer),
		done:     make(chan struct{}),
	}
}

func (c *sseConn) ID() string       { return c.id }
func (c *sseConn) UserID() string   { return c.userID }
func (c *sseConn) UserName() string { return c.userName }

func (c *sseConn) Emit(event string, payload any) {
	select {
	case c.frames <- sseFrame{event: event, payload: payload}:
	case <-c.done:
	default:
		// Buffer full; drop.
	}
}

func (c *sseConn) close() {
	c.once.Do(func() { close(c.done) })
}

func writeSSE(w http.ResponseWriter, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}

// registerStream mounts the SSE endpoint on the raw router: Huma's typed
// operations cannot hold a response open.
func registerStream(r chi.Router, h *hub.Hub, basePath string) {
	r.Get(path.Join(basePath, "stream"), func(w http.ResponseWriter, req *http.Request) {
		principal, ok := principalFromContext(req.Context())
		if !ok || principal.UserID == "" {
			respondStatusError(w, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil))
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			respondStatusError(w, newAPIError(http.StatusInternalServerError, "internal_error", "streaming unsupported", nil))
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		conn := newSSEConn(principal.UserID, principal.Name)
		defer conn.close()

		// First frame tells the client its connection id for the
		// join/leave/cursor endpoints.
		if err := writeSSE(w, "connected", map[string]string{"connection_id": conn.id}); err != nil {
			return
		}
		flusher.Flush()

		h.Register(conn)
		defer h.Disconnect(conn.id)

		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-req.Context().Done():
				return
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
			case f := <-conn.frames:
				if err := writeSSE(w, f.event, f.payload); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	})
}

// connForPrincipal checks that the connection id exists and belongs to the
// calling principal.
func connForPrincipal(h *hub.Hub, connID string, p Principal) huma.StatusError {
	owner, ok := h.Owner(connID)
	if !ok {
		return newAPIError(http.StatusNotFound, "not_found", "unknown connection", nil)
	}
	if owner != p.UserID {
		return newAPIError(http.StatusForbidden, "forbidden", "connection belongs to another user", nil)
	}
	return nil
}

func registerPresence(api huma.API, h *hub.Hub) {
	huma.Register(api, huma.Operation{
		OperationID: "list-presence",
		Method:      http.MethodGet,
		Path:        "/presence",
		Summary:     "Users currently online",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PresenceResponse `json:"body"`
	}, error) {
		return &struct {
			Body PresenceResponse `json:"body"`
		}{Body: PresenceResponse{Users: nonNilPresence(h.ActiveUsers())}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "asset-presence",
		Method:      http.MethodGet,
		Path:        "/assets/{asset_id}/presence",
		Summary:     "Users currently viewing an asset",
	}, func(ctx context.Context, input *struct {
		AssetID string `path:"asset_id"`
	}) (*struct {
		Body PresenceResponse `json:"body"`
	}, error) {
		return &struct {
			Body PresenceResponse `json:"body"`
		}{Body: PresenceResponse{Users: nonNilPresence(h.RoomViewers(input.AssetID))}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "join-asset-room",
		Method:      http.MethodPost,
		Path:        "/stream/{connection_id}/join",
		Summary:     "Subscribe a connection to an asset's annotation traffic",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ConnectionID string          `path:"connection_id"`
		Body         JoinRoomRequest `json:"body"`
	}) (*struct {
		Body PresenceResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := connForPrincipal(h, input.ConnectionID, principal); err != nil {
			return nil, err
		}
		viewers, ok := h.JoinRoom(input.ConnectionID, input.Body.AssetID)
		if !ok {
			return nil, newAPIError(http.StatusNotFound, "not_found", "unknown connection", nil)
		}
		return &struct {
			Body PresenceResponse `json:"body"`
		}{Body: PresenceResponse{Users: nonNilPresence(viewers)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "leave-asset-room",
		Method:      http.MethodPost,
		Path:        "/stream/{connection_id}/leave",
		Summary:     "Unsubscribe a connection from an asset's room",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ConnectionID string          `path:"connection_id"`
		Body         JoinRoomRequest `json:"body"`
	}) (*struct {
		Body struct {
			Status string `json:"status"`
		} `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := connForPrincipal(h, input.ConnectionID, principal); err != nil {
			return nil, err
		}
		h.LeaveRoom(input.ConnectionID, input.Body.AssetID)
		out := &struct {
			Body struct {
				Status string `json:"status"`
			} `json:"body"`
		}{}
		out.Body.Status = "ok"
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cursor-update",
		Method:      http.MethodPost,
		Path:        "/stream/{connection_id}/cursor",
		Summary:     "Relay a cursor position to an asset's viewers",
		Errors: []int{
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ConnectionID string        `path:"connection_id"`
		Body         CursorRequest `json:"body"`
	}) (*struct {
		Body struct {
			Status string `json:"status"`
		} `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := connForPrincipal(h, input.ConnectionID, principal); err != nil {
			return nil, err
		}
		h.Cursor(input.ConnectionID, input.Body.AssetID, input.Body.X, input.Body.Y)
		out := &struct {
			Body struct {
				Status string `json:"status"`
			} `json:"body"`
		}{}
		out.Body.Status = "ok"
		return out, nil
	})
}
