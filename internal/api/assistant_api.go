package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v5"

	"github.com/diane-assistant/filevault/internal/logger"
	"github.com/diane-assistant/filevault/internal/orchestrator"
)

// assistantError is the body of a failed assistant request. It carries a
// displayable response so chat clients can render it like a reply.
type assistantError struct {
	Error    string `json:"error"`
	Type     string `json:"type"`
	Response string `json:"response"`
}

func newAssistantError(err error) assistantError {
	return assistantError{
		Error:    "Error processing request: " + err.Error(),
		Type:     "text",
		Response: "Sorry, I encountered an error: " + err.Error(),
	}
}

var upgrader = websocket.Upgrader{
	// Local clients only; the TCP listener is guarded by the API key
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleAssistant handles POST /api/assistant
func (s *Server) handleAssistant(c *echo.Context) error {
	var req orchestrator.Request
	if err := json.NewDecoder(c.Request().Body).Decode(&req); err != nil {
		if errors.Is(err, orchestrator.ErrInvalidAttachments) {
			return errorJSON(c, http.StatusBadRequest, err.Error())
		}
		return errorJSON(c, http.StatusBadRequest, "invalid request body: "+err.Error())
	}

	resp, err := s.opts.Assistant.ProcessMessage(c.Request().Context(), req)
	if err != nil {
		slog.Error("Assistant request failed", "session_id", req.SessionID, "error", err)
		return c.JSON(http.StatusInternalServerError, newAssistantError(err))
	}
	return c.JSON(http.StatusOK, resp)
}

// handleAssistantWS handles GET /api/assistant/ws. Each text frame holds one
// request and is answered by one response frame, in order.
func (s *Server) handleAssistantWS(c *echo.Context) error {
	log := logger.WithComponent("assistant-ws")
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Warn("WebSocket upgrade failed", "error", err)
		return nil
	}
	defer conn.Close()

	ctx := c.Request().Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("WebSocket read error", "error", err)
			}
			return nil
		}

		var req orchestrator.Request
		if err := json.Unmarshal(data, &req); err != nil {
			if werr := conn.WriteJSON(map[string]string{"error": err.Error()}); werr != nil {
				return nil
			}
			continue
		}

		var out any
		resp, err := s.opts.Assistant.ProcessMessage(ctx, req)
		if err != nil {
			log.Error("Assistant request failed", "session_id", req.SessionID, "error", err)
			out = newAssistantError(err)
		} else {
			out = resp
		}
		if err := conn.WriteJSON(out); err != nil {
			log.Warn("WebSocket write error", "error", err)
			return nil
		}
	}
}
