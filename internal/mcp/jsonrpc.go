package mcp

import (
	"encoding/json"
	"errors"
	"fmt"

	"roomdex/internal/protocol"
)

// JSON-RPC 2.0 error codes this server emits. codeOpFailed covers room
// operation failures and carries the protocol issues in the error data.
const (
	codeMethodNotFound = -32601
	codeBadParams      = -32602
	codeOpFailed       = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// callParams decodes the params of a call_tool request. Both the decode
// error and a missing tool name come back as one bad-params error.
func (r *rpcRequest) callParams() (name string, args json.RawMessage, err error) {
	if len(r.Params) == 0 {
		return "", nil, fmt.Errorf("missing params")
	}
	var p struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(r.Params, &p); err != nil {
		return "", nil, err
	}
	if p.Name == "" {
		return "", nil, fmt.Errorf("missing tool name")
	}
	return p.Name, p.Arguments, nil
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func rpcOK(id json.RawMessage, result any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func rpcErr(id json.RawMessage, code int, msg string, data any) rpcResponse {
	return rpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &rpcError{Code: code, Message: msg, Data: data},
	}
}

// rpcOpErr wraps a failed room operation. Structured findings ride along in
// the error data so agent clients can branch on codes instead of parsing the
// message.
func rpcOpErr(id json.RawMessage, err error) rpcResponse {
	var ie *protocol.IssueError
	if errors.As(err, &ie) {
		return rpcErr(id, codeOpFailed, err.Error(), map[string]any{"issues": ie.Issues})
	}
	return rpcErr(id, codeOpFailed, err.Error(), nil)
}

func parseRPCRequest(body []byte) (rpcRequest, error) {
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return rpcRequest{}, fmt.Errorf("decode request: %w", err)
	}
	if req.JSONRPC != "" && req.JSONRPC != "2.0" {
		return rpcRequest{}, fmt.Errorf("unsupported jsonrpc version %q", req.JSONRPC)
	}
	if req.Method == "" {
		return rpcRequest{}, fmt.Errorf("missing method")
	}
	return req, nil
}
