package mcp_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"roomdex/internal/ops"
)

func TestWatchStreamsMergeEvents(t *testing.T) {
	ts, _ := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/watch"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to register the subscription.
	time.Sleep(50 * time.Millisecond)

	out := rpc(t, ts, "call_tool", map[string]any{
		"name": "room.merge",
		"arguments": map[string]any{
			"room": "demo",
			"patch": map[string]any{
				"modify_settings": map[string]any{"skybox": "dawn"},
			},
		},
	})
	if out["error"] != nil {
		t.Fatalf("merge error = %v", out["error"])
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var e ops.Event
		if err := json.Unmarshal(msg, &e); err != nil {
			t.Fatalf("decode %s: %v", msg, err)
		}
		if e.Op == "merge" {
			if e.RoomID != "demo" {
				t.Fatalf("event = %+v", e)
			}
			return
		}
	}
}
