// Package mcp exposes the room operations as MCP tools over JSON-RPC, plus
// a websocket feed that pushes change events to watching agents.
package mcp

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"roomdex/internal/ops"
	"roomdex/internal/query"
)

type Config struct {
	// DataDir holds one directory per room, each with a snapshot.json.
	DataDir string
	Service *ops.Service
}

type Server struct {
	dataDir string
	svc     *ops.Service
	hub     *hub
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("nil service")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("empty data dir")
	}
	s := &Server{
		dataDir: cfg.DataDir,
		svc:     cfg.Service,
		hub:     newHub(),
	}
	// Chain any caller-supplied notify func behind the watch feed.
	prev := cfg.Service.Notify
	cfg.Service.Notify = func(e ops.Event) {
		s.hub.broadcast(e)
		if prev != nil {
			prev(e)
		}
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/mcp", s.handleMCP)
	mux.HandleFunc("/watch", s.handleWatch)
	return mux
}

// Close shuts down the watch hub.
func (s *Server) Close() {
	s.hub.close()
}

func (s *Server) handleMCP(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 16<<20))
	if err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		_, _ = rw.Write([]byte("bad body"))
		return
	}
	_ = r.Body.Close()

	req, err := parseRPCRequest(body)
	if err != nil {
		rw.WriteHeader(http.StatusBadRequest)
		_, _ = rw.Write([]byte("bad jsonrpc request"))
		return
	}

	resp := s.dispatch(req)
	rw.Header().Set("content-type", "application/json")
	enc := json.NewEncoder(rw)
	_ = enc.Encode(resp)
}

func (s *Server) dispatch(req rpcRequest) rpcResponse {
	switch req.Method {
	case "initialize":
		return rpcOK(req.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
		})

	case "list_tools":
		return rpcOK(req.ID, map[string]any{"tools": toolsList()})

	case "call_tool":
		name, args, err := req.callParams()
		if err != nil {
			return rpcErr(req.ID, codeBadParams, err.Error(), nil)
		}
		if !isKnownTool(name) {
			return rpcErr(req.ID, codeMethodNotFound, "tool not found", map[string]any{"name": name})
		}
		out, err := s.callTool(name, args)
		if err != nil {
			return rpcOpErr(req.ID, err)
		}
		return rpcOK(req.ID, out)

	default:
		return rpcErr(req.ID, codeMethodNotFound, "method not found", nil)
	}
}

// roomDir resolves a room id to its directory, rejecting path escapes.
func (s *Server) roomDir(roomID string) (string, error) {
	if roomID == "" {
		return "", fmt.Errorf("missing room")
	}
	if strings.ContainsAny(roomID, `/\`) || roomID == "." || roomID == ".." {
		return "", fmt.Errorf("invalid room id %q", roomID)
	}
	return filepath.Join(s.dataDir, roomID), nil
}

func toolsList() []map[string]any {
	roomProp := map[string]any{"type": "string", "description": "Room id (directory name under the data dir)."}
	return []map[string]any{
		{
			"name":        "room.index",
			"description": "Regenerate the compact room_index.md summary for a room snapshot.",
			"inputSchema": map[string]any{
				"type":       "object",
				"properties": map[string]any{"room": roomProp},
				"required":   []string{"room"},
			},
		},
		{
			"name":        "room.query",
			"description": "Query room items with AND-combined filters. Results come back in ascending id order.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"room":         roomProp,
					"ids":          map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"types":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
					"center":       map[string]any{"type": "object"},
					"radius":       map[string]any{"type": "number"},
					"has_triggers": map[string]any{"type": "boolean"},
					"has_effects":  map[string]any{"type": "boolean"},
					"quest":        map[string]any{"type": "string"},
					"parent":       map[string]any{"type": "string"},
					"search":       map[string]any{"type": "string"},
				},
				"required": []string{"room"},
			},
		},
		{
			"name":        "room.merge",
			"description": "Validate and apply a structured patch to a room snapshot. Rejections leave the snapshot untouched.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"room":    roomProp,
					"patch":   map[string]any{"type": "object"},
					"dry_run": map[string]any{"type": "boolean"},
				},
				"required": []string{"room", "patch"},
			},
		},
		{
			"name":        "room.validate",
			"description": "Check a room snapshot's referential invariants and report findings.",
			"inputSchema": map[string]any{
				"type":       "object",
				"properties": map[string]any{"room": roomProp},
				"required":   []string{"room"},
			},
		},
		{
			"name":        "room.history",
			"description": "List recent merges for a room, newest first.",
			"inputSchema": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"room":  roomProp,
					"limit": map[string]any{"type": "integer"},
				},
				"required": []string{"room"},
			},
		},
	}
}

func (s *Server) callTool(name string, args json.RawMessage) (any, error) {
	switch name {
	case "room.index":
		var p struct {
			Room string `json:"room"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("bad arguments: %w", err)
		}
		dir, err := s.roomDir(p.Room)
		if err != nil {
			return nil, err
		}
		return s.svc.Index(dir)

	case "room.query":
		var p struct {
			Room string `json:"room"`
			query.Filters
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("bad arguments: %w", err)
		}
		dir, err := s.roomDir(p.Room)
		if err != nil {
			return nil, err
		}
		return s.svc.Query(dir, p.Filters)

	case "room.merge":
		var p struct {
			Room   string          `json:"room"`
			Patch  json.RawMessage `json:"patch"`
			DryRun bool            `json:"dry_run"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("bad arguments: %w", err)
		}
		if len(p.Patch) == 0 {
			return nil, fmt.Errorf("missing patch")
		}
		dir, err := s.roomDir(p.Room)
		if err != nil {
			return nil, err
		}
		return s.svc.Merge(dir, p.Patch, p.DryRun)

	case "room.validate":
		var p struct {
			Room string `json:"room"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("bad arguments: %w", err)
		}
		dir, err := s.roomDir(p.Room)
		if err != nil {
			return nil, err
		}
		return s.svc.Validate(dir)

	case "room.history":
		var p struct {
			Room  string `json:"room"`
			Limit int    `json:"limit"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return nil, fmt.Errorf("bad arguments: %w", err)
		}
		dir, err := s.roomDir(p.Room)
		if err != nil {
			return nil, err
		}
		recs, err := s.svc.History(dir, p.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"merges": recs}, nil

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

func isKnownTool(name string) bool {
	switch name {
	case "room.index", "room.query", "room.merge", "room.validate", "room.history":
		return true
	default:
		return false
	}
}
