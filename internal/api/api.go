// Package api serves the filevault HTTP API on a unix socket and,
// optionally, a TCP port guarded by an API key.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/diane-assistant/filevault/internal/config"
	"github.com/diane-assistant/filevault/internal/contentstore"
	"github.com/diane-assistant/filevault/internal/orchestrator"
	"github.com/diane-assistant/filevault/mcp"
)

// Version is reported by GET /health.
var Version = "dev"

// Options configures a Server.
type Options struct {
	Store     *contentstore.Store
	Assistant *orchestrator.Orchestrator

	// MCP, when set, is served on POST /mcp.
	MCP *mcp.Server

	// SocketPath defaults to config.SocketPath().
	SocketPath string

	// HTTPAddr enables the TCP listener (e.g. ":8080").
	HTTPAddr string

	// APIKey, when set, is required as a bearer token on the TCP listener.
	APIKey string
}

// Server is the filevault HTTP API server
type Server struct {
	opts      Options
	echo      *echo.Echo
	startedAt time.Time

	listener   net.Listener
	server     *http.Server
	tcpServer  *http.Server
	mcpSession *mcpSessions
}

// NewServer creates a new API server and registers its routes.
func NewServer(opts Options) *Server {
	if opts.SocketPath == "" {
		opts.SocketPath = config.SocketPath()
	}
	s := &Server{
		opts:       opts,
		echo:       echo.New(),
		startedAt:  time.Now(),
		mcpSession: newMCPSessions(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo
	e.GET("/health", s.handleHealth)

	files := e.Group("/api/files")
	files.POST("", s.uploadFile)
	files.GET("", s.listFiles)
	files.GET("/stats", s.fileStats)
	files.GET("/search", s.searchFiles)
	files.GET("/by-type/:type", s.filesByType)
	files.GET("/small", s.smallFiles)
	files.GET("/:id", s.getFile)
	files.GET("/:id/content", s.fileContent)
	files.DELETE("/:id", s.deleteFile)

	e.POST("/api/assistant", s.handleAssistant)
	e.GET("/api/assistant/ws", s.handleAssistantWS)

	sessions := e.Group("/api/sessions")
	sessions.GET("", s.listSessions)
	sessions.POST("", s.createSession)
	sessions.GET("/:id", s.getSession)
	sessions.PATCH("/:id", s.renameSession)
	sessions.DELETE("/:id", s.deleteSession)

	if s.opts.MCP != nil {
		e.POST("/mcp", s.handleMCP)
	}
}

// Handler returns the routed handler without listener-specific middleware.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// TCPHandler returns the handler served on the TCP listener.
func (s *Server) TCPHandler() http.Handler {
	return s.requireAPIKey(s.echo)
}

// Start starts the API server
func (s *Server) Start() error {
	// Remove a stale socket left by a previous run
	if err := os.Remove(s.opts.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", s.opts.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}
	s.listener = listener

	// Set socket permissions to be readable/writable by owner only
	if err := os.Chmod(s.opts.SocketPath, 0600); err != nil {
		slog.Warn("Failed to set socket permissions", "error", err)
	}

	s.server = &http.Server{Handler: s.echo, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		slog.Info("API server listening", "socket", s.opts.SocketPath)
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server error", "error", err)
		}
	}()

	if s.opts.HTTPAddr != "" {
		s.tcpServer = &http.Server{
			Addr:              s.opts.HTTPAddr,
			Handler:           s.TCPHandler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
		if s.opts.APIKey == "" {
			slog.Warn("TCP listener has no API key configured", "addr", s.opts.HTTPAddr)
		}
		go func() {
			slog.Info("HTTP API listening", "addr", s.opts.HTTPAddr)
			if err := s.tcpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("HTTP API error", "error", err)
			}
		}()
	}

	return nil
}

// Stop stops the API server
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if s.tcpServer != nil {
		errs = append(errs, s.tcpServer.Shutdown(ctx))
	}
	if s.server != nil {
		errs = append(errs, s.server.Shutdown(ctx))
	}
	if s.listener != nil {
		s.listener.Close()
	}
	os.Remove(s.opts.SocketPath)
	return errors.Join(errs...)
}

// requireAPIKey rejects requests without the configured bearer token.
// /health stays open for probes.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.APIKey == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.APIKey)) != 1 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":"unauthorized"}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth returns a simple health check response
func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        Version,
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

func errorJSON(c *echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}
