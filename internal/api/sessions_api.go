package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/diane-assistant/filevault/internal/db"
	"github.com/diane-assistant/filevault/internal/orchestrator"
)

// SessionResponse represents a chat session in API responses
type SessionResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MessageResponse represents one stored chat message
type MessageResponse struct {
	ID              string    `json:"id"`
	Role            string    `json:"role"`
	Content         string    `json:"content"`
	FileAttachments []string  `json:"file_attachments"`
	Timestamp       time.Time `json:"timestamp"`
}

// SessionDetailResponse is a session with its messages
type SessionDetailResponse struct {
	SessionResponse
	Messages []MessageResponse `json:"messages"`
}

type sessionRequest struct {
	Title string `json:"title"`
}

func toSessionResponse(s *db.ChatSession) SessionResponse {
	return SessionResponse{ID: s.ID, Title: s.Title, CreatedAt: s.CreatedAt, UpdatedAt: s.UpdatedAt}
}

// listSessions handles GET /api/sessions
func (s *Server) listSessions(c *echo.Context) error {
	sessions, err := s.opts.Assistant.ListSessions(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	resp := make([]SessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, toSessionResponse(sess))
	}
	return c.JSON(http.StatusOK, resp)
}

// createSession handles POST /api/sessions
func (s *Server) createSession(c *echo.Context) error {
	var req sessionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return errorJSON(c, http.StatusBadRequest, "invalid request body")
		}
	}
	sess, err := s.opts.Assistant.CreateSession(c.Request().Context(), req.Title)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, toSessionResponse(sess))
}

// getSession handles GET /api/sessions/:id
func (s *Server) getSession(c *echo.Context) error {
	detail, err := s.opts.Assistant.GetSession(c.Request().Context(), c.Param("id"))
	if errors.Is(err, orchestrator.ErrSessionNotFound) {
		return errorJSON(c, http.StatusNotFound, "session not found")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	resp := SessionDetailResponse{
		SessionResponse: toSessionResponse(detail.ChatSession),
		Messages:        make([]MessageResponse, 0, len(detail.Messages)),
	}
	for _, m := range detail.Messages {
		attachments := m.FileAttachments
		if attachments == nil {
			attachments = []string{}
		}
		resp.Messages = append(resp.Messages, MessageResponse{
			ID:              m.ID,
			Role:            m.Role,
			Content:         m.Content,
			FileAttachments: attachments,
			Timestamp:       m.Timestamp,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

// renameSession handles PATCH /api/sessions/:id
func (s *Server) renameSession(c *echo.Context) error {
	var req sessionRequest
	if err := c.Bind(&req); err != nil || req.Title == "" {
		return errorJSON(c, http.StatusBadRequest, "title required")
	}
	id := c.Param("id")
	err := s.opts.Assistant.RenameSession(c.Request().Context(), id, req.Title)
	if errors.Is(err, orchestrator.ErrSessionNotFound) {
		return errorJSON(c, http.StatusNotFound, "session not found")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id, "title": req.Title})
}

// deleteSession handles DELETE /api/sessions/:id
func (s *Server) deleteSession(c *echo.Context) error {
	err := s.opts.Assistant.DeleteSession(c.Request().Context(), c.Param("id"))
	if errors.Is(err, orchestrator.ErrSessionNotFound) {
		return errorJSON(c, http.StatusNotFound, "session not found")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
