// Package mcp serves the assistant's tools over the Model Context Protocol
// (JSON-RPC 2.0, one message per line on stdin/stdout).
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/diane-assistant/filevault/internal/formatter"
	"github.com/diane-assistant/filevault/mcp/tools"
)

// Version is set at build time via ldflags
var Version = "dev"

// ProtocolVersion is the MCP revision spoken by the server.
const ProtocolVersion = "2024-11-05"

// DefaultSessionID scopes pending deletions for stdio clients, which have a
// single conversation per process.
const DefaultSessionID = "mcp-stdio"

type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeToolError      = -1
)

// Server dispatches MCP requests to tool providers.
type Server struct {
	providers []tools.ToolProvider
	sessionID string
}

// NewServer creates a server over providers.
func NewServer(providers ...tools.ToolProvider) *Server {
	return &Server{providers: providers, sessionID: DefaultSessionID}
}

// Serve reads requests from r and writes responses to w until r is
// exhausted or ctx is done. Notifications (requests without an id) get no
// response.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	decoder := json.NewDecoder(r)
	encoder := json.NewEncoder(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		var req MCPRequest
		if err := decoder.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			slog.Error("Failed to decode request", "error", err)
			_ = encoder.Encode(MCPResponse{JSONRPC: "2.0", Error: &MCPError{Code: codeParseError, Message: err.Error()}})
			return fmt.Errorf("decode request: %w", err)
		}
		if req.ID == nil {
			slog.Debug("Ignoring notification", "method", req.Method)
			continue
		}

		resp := s.HandleRequest(ctx, req)
		resp.JSONRPC = "2.0"
		resp.ID = req.ID
		if err := encoder.Encode(resp); err != nil {
			return fmt.Errorf("encode response: %w", err)
		}
	}
}

// HandleRequest answers one request in the default session.
func (s *Server) HandleRequest(ctx context.Context, req MCPRequest) MCPResponse {
	return s.HandleSessionRequest(ctx, s.sessionID, req)
}

// HandleSessionRequest answers one request; sessionID scopes pending
// deletions between find_files_to_delete and delete_files.
func (s *Server) HandleSessionRequest(ctx context.Context, sessionID string, req MCPRequest) MCPResponse {
	switch req.Method {
	case "initialize":
		return s.initialize()
	case "ping":
		return MCPResponse{Result: map[string]interface{}{}}
	case "tools/list":
		return s.listTools()
	case "tools/call":
		return s.callTool(ctx, sessionID, req.Params)
	default:
		return MCPResponse{
			Error: &MCPError{
				Code:    codeMethodNotFound,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

func (s *Server) initialize() MCPResponse {
	return MCPResponse{
		Result: map[string]interface{}{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{
					"listChanged": false,
				},
			},
			"serverInfo": map[string]interface{}{
				"name":    "filevault",
				"version": Version,
			},
		},
	}
}

func (s *Server) listTools() MCPResponse {
	var all []tools.Tool
	for _, p := range s.providers {
		all = append(all, p.Tools()...)
	}
	return MCPResponse{Result: map[string]interface{}{"tools": all}}
}

func (s *Server) callTool(ctx context.Context, sessionID string, params json.RawMessage) MCPResponse {
	var call struct {
		Name      string                 `json:"name"`
		Arguments map[string]interface{} `json:"arguments"`
	}
	if err := json.Unmarshal(params, &call); err != nil {
		return MCPResponse{
			Error: &MCPError{
				Code:    codeInvalidParams,
				Message: fmt.Sprintf("Invalid params: %v", err),
			},
		}
	}

	for _, p := range s.providers {
		if !p.HasTool(call.Name) {
			continue
		}
		result, err := p.Call(ctx, sessionID, call.Name, call.Arguments)
		if err != nil {
			code := codeToolError
			if tools.KindOf(err) == tools.KindInvalidArgs {
				code = codeInvalidParams
			}
			return MCPResponse{
				Error: &MCPError{
					Code:    code,
					Message: formatter.FormatError(err),
				},
			}
		}
		return MCPResponse{Result: tools.TextContent(formatter.Format(call.Name, result))}
	}

	return MCPResponse{
		Error: &MCPError{
			Code:    codeMethodNotFound,
			Message: fmt.Sprintf("Tool not found: %s", call.Name),
		},
	}
}
