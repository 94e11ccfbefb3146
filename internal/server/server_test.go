package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"labelline/internal/config"
	"labelline/internal/db"
	"labelline/internal/engine"
	"labelline/internal/hub"
	"labelline/internal/migrate"
	"labelline/internal/server"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	Client *http.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	conn.SetMaxOpenConns(1)
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("proj-1")
	e := engine.New(conn, cfg)
	h := hub.New(&e)
	e.Notify = h
	handler, err := server.New(server.Config{
		Engine:   e,
		Hub:      h,
		BasePath: "/api/v1",
		Auth:     server.AuthConfig{JWTSecret: "test-secret", TokenTTLHours: 1},
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{URL: srv.URL, Engine: e, Client: srv.Client()}
}

func (ts *testServer) login(t *testing.T, userID, role string) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"user_id": userID, "role": role})
	resp, err := ts.Client.Post(ts.URL+"/api/v1/auth/dev/login", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("dev login: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("dev login status %d", resp.StatusCode)
	}
	var out struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	return out.Token
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (ts *testServer) createAsset(t *testing.T, adminToken, title string) string {
	t.Helper()
	resp := ts.do(t, http.MethodPost, "/api/v1/assets", adminToken, map[string]any{
		"kind":  "image",
		"url":   "https://example.com/" + title + ".png",
		"title": title,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create asset status %d", resp.StatusCode)
	}
	var a struct {
		ID string `json:"id"`
	}
	decodeBody(t, resp, &a)
	return a.ID
}

func TestHealthIsOpen(t *testing.T) {
	ts := newTestServer(t)
	resp, err := ts.Client.Get(ts.URL + "/api/v1/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("health status %d", resp.StatusCode)
	}
}

func TestRequiresAuth(t *testing.T) {
	ts := newTestServer(t)
	resp, err := ts.Client.Get(ts.URL + "/api/v1/assets")
	if err != nil {
		t.Fatal(err)
	}
	var env errorEnvelope
	decodeBody(t, resp, &env)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status %d, want 401", resp.StatusCode)
	}
	if env.Error.Code != "unauthorized" {
		t.Fatalf("code %q, want unauthorized", env.Error.Code)
	}
}

func TestAssetCreateRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "alice", "annotator")
	resp := ts.do(t, http.MethodPost, "/api/v1/assets", token, map[string]any{
		"kind":  "image",
		"url":   "https://example.com/x.png",
		"title": "x",
	})
	var env errorEnvelope
	decodeBody(t, resp, &env)
	if resp.StatusCode != http.StatusForbidden || env.Error.Code != "forbidden" {
		t.Fatalf("status %d code %q, want 403 forbidden", resp.StatusCode, env.Error.Code)
	}
}

func TestClaimConflictOverWire(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "root", "admin")
	alice := ts.login(t, "alice", "annotator")
	bob := ts.login(t, "bob", "annotator")
	assetID := ts.createAsset(t, admin, "contested")

	resp := ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/assets/%s/claim", assetID), alice, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("first claim status %d", resp.StatusCode)
	}
	var claim struct {
		Asset struct {
			Status    string  `json:"status"`
			ClaimedBy *string `json:"claimed_by"`
		} `json:"asset"`
		Session struct {
			Status string `json:"status"`
		} `json:"session"`
	}
	decodeBody(t, resp, &claim)
	if claim.Asset.Status != "claimed" || claim.Session.Status != "in_progress" {
		t.Fatalf("unexpected claim response: %+v", claim)
	}

	resp = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/assets/%s/claim", assetID), bob, nil)
	var env errorEnvelope
	decodeBody(t, resp, &env)
	if resp.StatusCode != http.StatusConflict || env.Error.Code != "conflict" {
		t.Fatalf("status %d code %q, want 409 conflict", resp.StatusCode, env.Error.Code)
	}
}

func TestVersionConflictEnvelope(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "root", "admin")
	alice := ts.login(t, "alice", "annotator")
	assetID := ts.createAsset(t, admin, "boxes")

	resp := ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/assets/%s/claim", assetID), alice, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim status %d", resp.StatusCode)
	}

	geometry := map[string]any{"box": map[string]float64{"x": 1, "y": 2, "width": 30, "height": 40}}
	resp = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/assets/%s/annotations", assetID), alice, map[string]any{
		"type":     "bounding_box",
		"label":    "car",
		"geometry": geometry,
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create annotation status %d", resp.StatusCode)
	}
	var ann struct {
		ID      string `json:"id"`
		Version int    `json:"version"`
	}
	decodeBody(t, resp, &ann)
	if ann.Version != 1 {
		t.Fatalf("expected version 1, got %d", ann.Version)
	}

	resp = ts.do(t, http.MethodPut, "/api/v1/annotations/"+ann.ID, alice, map[string]any{
		"expected_version": 1,
		"label":            "truck",
		"geometry":         geometry,
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update status %d", resp.StatusCode)
	}

	// Editing from the stale version returns the authoritative copy.
	resp = ts.do(t, http.MethodPut, "/api/v1/annotations/"+ann.ID, alice, map[string]any{
		"expected_version": 1,
		"label":            "bus",
		"geometry":         geometry,
	})
	var env errorEnvelope
	decodeBody(t, resp, &env)
	if resp.StatusCode != http.StatusConflict || env.Error.Code != "version_conflict" {
		t.Fatalf("status %d code %q, want 409 version_conflict", resp.StatusCode, env.Error.Code)
	}
	if env.Error.Details["current_version"] != float64(2) {
		t.Fatalf("details missing current_version: %+v", env.Error.Details)
	}
	current, ok := env.Error.Details["current"].(map[string]any)
	if !ok || current["label"] != "truck" {
		t.Fatalf("details missing current record: %+v", env.Error.Details)
	}
}

func TestAnnotateWithoutClaimIsForbidden(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "root", "admin")
	alice := ts.login(t, "alice", "annotator")
	assetID := ts.createAsset(t, admin, "unclaimed")

	resp := ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/assets/%s/annotations", assetID), alice, map[string]any{
		"type":     "point",
		"label":    "landmark",
		"geometry": map[string]any{"point": map[string]float64{"x": 1, "y": 2}},
	})
	var env errorEnvelope
	decodeBody(t, resp, &env)
	if resp.StatusCode != http.StatusForbidden || env.Error.Code != "forbidden" {
		t.Fatalf("status %d code %q, want 403 forbidden", resp.StatusCode, env.Error.Code)
	}
}

func TestEventsRequirePrivilege(t *testing.T) {
	ts := newTestServer(t)
	alice := ts.login(t, "alice", "annotator")
	resp := ts.do(t, http.MethodGet, "/api/v1/events", alice, nil)
	var env errorEnvelope
	decodeBody(t, resp, &env)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status %d, want 403", resp.StatusCode)
	}

	manager := ts.login(t, "lead", "manager")
	resp = ts.do(t, http.MethodGet, "/api/v1/events", manager, nil)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("manager status %d, want 200", resp.StatusCode)
	}
}

func TestMeReflectsPrincipal(t *testing.T) {
	ts := newTestServer(t)
	token := ts.login(t, "alice", "manager")
	resp := ts.do(t, http.MethodGet, "/api/v1/me", token, nil)
	var me struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
		Source string `json:"source"`
	}
	decodeBody(t, resp, &me)
	if me.UserID != "alice" || me.Role != "manager" || me.Source != "jwt" {
		t.Fatalf("unexpected principal: %+v", me)
	}
}

func TestReleaseByManager(t *testing.T) {
	ts := newTestServer(t)
	admin := ts.login(t, "root", "admin")
	alice := ts.login(t, "alice", "annotator")
	manager := ts.login(t, "lead", "manager")
	assetID := ts.createAsset(t, admin, "guarded")

	resp := ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/assets/%s/claim", assetID), alice, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("claim status %d", resp.StatusCode)
	}

	resp = ts.do(t, http.MethodPost, fmt.Sprintf("/api/v1/assets/%s/release", assetID), manager, nil)
	var asset struct {
		Status string `json:"status"`
	}
	decodeBody(t, resp, &asset)
	if resp.StatusCode != http.StatusOK || asset.Status != "available" {
		t.Fatalf("manager release failed: status %d asset %+v", resp.StatusCode, asset)
	}
}
