package mcp_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"roomdex/internal/mcp"
	"roomdex/internal/ops"
	"roomdex/internal/tuning"
)

const serverSnapshot = `{
  "roomItems": {
    "1": {"prefabName":"SpawnPoint","pos":{"x":0,"y":0,"z":0},"parentItemID":"0"},
    "2": {"prefabName":"ResizableCube","pos":{"x":5,"y":0,"z":5}}
  },
  "logic": {},
  "quests": {},
  "roomTasks": {"Tasks": []},
  "settings": {}
}`

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dataDir := t.TempDir()
	roomDir := filepath.Join(dataDir, "demo")
	if err := os.MkdirAll(roomDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(roomDir, "snapshot.json"), []byte(serverSnapshot), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	srv, err := mcp.NewServer(mcp.Config{
		DataDir: dataDir,
		Service: ops.New(tuning.Default()),
	})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		srv.Close()
	})
	return ts, roomDir
}

func rpc(t *testing.T, ts *httptest.Server, method string, params any) map[string]any {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, _ := json.Marshal(req)
	resp, err := http.Post(ts.URL+"/mcp", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestInitializeAndListTools(t *testing.T) {
	ts, _ := newTestServer(t)

	out := rpc(t, ts, "initialize", nil)
	result, _ := out["result"].(map[string]any)
	if result["protocolVersion"] != "2024-11-05" {
		t.Fatalf("initialize = %v", out)
	}

	out = rpc(t, ts, "list_tools", nil)
	result, _ = out["result"].(map[string]any)
	tools, _ := result["tools"].([]any)
	if len(tools) != 5 {
		t.Fatalf("tools = %v", tools)
	}
	names := map[string]bool{}
	for _, tl := range tools {
		m := tl.(map[string]any)
		names[m["name"].(string)] = true
	}
	for _, want := range []string{"room.index", "room.query", "room.merge", "room.validate", "room.history"} {
		if !names[want] {
			t.Fatalf("missing tool %s in %v", want, names)
		}
	}
}

func TestCallToolQuery(t *testing.T) {
	ts, _ := newTestServer(t)

	out := rpc(t, ts, "call_tool", map[string]any{
		"name": "room.query",
		"arguments": map[string]any{
			"room":  "demo",
			"types": []string{"ResizableCube"},
		},
	})
	if out["error"] != nil {
		t.Fatalf("error = %v", out["error"])
	}
	result, _ := out["result"].(map[string]any)
	matches, _ := result["matches"].([]any)
	if len(matches) != 1 {
		t.Fatalf("matches = %v", matches)
	}
	m := matches[0].(map[string]any)
	if m["id"] != "2" {
		t.Fatalf("match = %v", m)
	}
}

func TestCallToolMergeAndIndex(t *testing.T) {
	ts, roomDir := newTestServer(t)

	out := rpc(t, ts, "call_tool", map[string]any{
		"name": "room.merge",
		"arguments": map[string]any{
			"room": "demo",
			"patch": map[string]any{
				"add_items": map[string]any{
					"3": map[string]any{"prefabName": "WorldText", "pos": map[string]any{"x": 1, "y": 1, "z": 1}},
				},
			},
		},
	})
	if out["error"] != nil {
		t.Fatalf("error = %v", out["error"])
	}
	result, _ := out["result"].(map[string]any)
	if result["applied"] != true {
		t.Fatalf("merge result = %v", result)
	}

	if _, err := os.Stat(filepath.Join(roomDir, "room_index.md")); err != nil {
		t.Fatalf("index not regenerated: %v", err)
	}

	out = rpc(t, ts, "call_tool", map[string]any{
		"name":      "room.index",
		"arguments": map[string]any{"room": "demo"},
	})
	if out["error"] != nil {
		t.Fatalf("error = %v", out["error"])
	}
	result, _ = out["result"].(map[string]any)
	if result["items"] != float64(3) {
		t.Fatalf("index result = %v", result)
	}
}

func TestCallToolErrors(t *testing.T) {
	ts, _ := newTestServer(t)

	out := rpc(t, ts, "call_tool", map[string]any{"name": "room.nope", "arguments": map[string]any{}})
	errObj, _ := out["error"].(map[string]any)
	if errObj == nil || errObj["code"] != float64(-32601) {
		t.Fatalf("unknown tool error = %v", out)
	}

	// Path escapes are rejected before touching the filesystem.
	out = rpc(t, ts, "call_tool", map[string]any{
		"name":      "room.validate",
		"arguments": map[string]any{"room": "../demo"},
	})
	errObj, _ = out["error"].(map[string]any)
	if errObj == nil || errObj["code"] != float64(-32000) {
		t.Fatalf("path escape error = %v", out)
	}

	out = rpc(t, ts, "unknown_method", nil)
	errObj, _ = out["error"].(map[string]any)
	if errObj == nil || errObj["code"] != float64(-32601) {
		t.Fatalf("unknown method error = %v", out)
	}
}

func TestMCPRejectsGet(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/mcp")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}
