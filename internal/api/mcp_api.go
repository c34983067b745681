package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"

	"github.com/diane-assistant/filevault/mcp"
)

// mcpSessionTTL is how long an idle MCP HTTP session is kept.
const mcpSessionTTL = time.Hour

// mcpSessions tracks initialized MCP-over-HTTP clients. The session id
// also scopes pending deletions.
type mcpSessions struct {
	mu       sync.Mutex
	sessions map[string]time.Time // id -> last seen
}

func newMCPSessions() *mcpSessions {
	return &mcpSessions{sessions: make(map[string]time.Time)}
}

// create registers a new session, dropping expired ones.
func (m *mcpSessions) create() string {
	id := uuid.NewString()
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	for sid, seen := range m.sessions {
		if now.Sub(seen) > mcpSessionTTL {
			delete(m.sessions, sid)
		}
	}
	m.sessions[id] = now
	return id
}

// touch reports whether id is a live session and refreshes it.
func (m *mcpSessions) touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen, ok := m.sessions[id]
	if !ok || time.Since(seen) > mcpSessionTTL {
		delete(m.sessions, id)
		return false
	}
	m.sessions[id] = time.Now()
	return true
}

// handleMCP handles POST /mcp, the streamable HTTP MCP transport
func (s *Server) handleMCP(c *echo.Context) error {
	var req mcp.MCPRequest
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		return mcpError(c, nil, -32700, "Parse error")
	}

	sessionID := c.Request().Header.Get("MCP-Session-Id")
	if req.Method == "initialize" {
		if sessionID == "" || !s.mcpSession.touch(sessionID) {
			sessionID = s.mcpSession.create()
		}
		c.Response().Header().Set("MCP-Session-Id", sessionID)
	} else if sessionID == "" || !s.mcpSession.touch(sessionID) {
		return mcpError(c, req.ID, -32600, "Session not found or not initialized")
	}

	if req.ID == nil {
		return c.NoContent(http.StatusAccepted)
	}

	resp := s.opts.MCP.HandleSessionRequest(c.Request().Context(), sessionID, req)
	resp.JSONRPC = "2.0"
	resp.ID = req.ID
	return c.JSON(http.StatusOK, resp)
}

func mcpError(c *echo.Context, id any, code int, msg string) error {
	return c.JSON(http.StatusOK, mcp.MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &mcp.MCPError{Code: code, Message: msg},
	})
}
