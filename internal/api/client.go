package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/diane-assistant/filevault/internal/config"
	"github.com/diane-assistant/filevault/internal/contentstore"
	"github.com/diane-assistant/filevault/internal/orchestrator"
)

// Client is a client for the filevault API
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a client that talks to the local daemon over its unix socket
func NewClient() *Client {
	return NewSocketClient(config.SocketPath())
}

// NewSocketClient creates a client for the daemon listening on socketPath
func NewSocketClient(socketPath string) *Client {
	return &Client{
		baseURL: "http://unix",
		httpClient: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
			// Assistant calls may retry the model once
			Timeout: 3 * time.Minute,
		},
	}
}

// NewRemoteClient creates a client for a TCP listener such as "http://host:8080"
func NewRemoteClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 3 * time.Minute},
	}
}

// apiError is returned for non-2xx responses
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed: status %d", e.Status)
	}
	return fmt.Sprintf("request failed: %s (status %d)", e.Message, e.Status)
}

// IsNotFound reports whether err is a 404 from the API
func IsNotFound(err error) bool {
	var e *apiError
	return errors.As(err, &e) && e.Status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&errResp)
		return &apiError{Status: resp.StatusCode, Message: errResp.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, "", out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, bytes.NewReader(data), "application/json", out)
}

// Health checks if the API server is responding
func (c *Client) Health(ctx context.Context) error {
	return c.getJSON(ctx, "/health", nil)
}

// IsRunning checks if the daemon is running by attempting to connect
func (c *Client) IsRunning(ctx context.Context) bool {
	return c.Health(ctx) == nil
}

// Stats returns storage statistics
func (c *Client) Stats(ctx context.Context) (*contentstore.Stats, error) {
	var st contentstore.Stats
	if err := c.getJSON(ctx, "/api/files/stats", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// ListFiles returns every stored file
func (c *Client) ListFiles(ctx context.Context) ([]FileResponse, error) {
	var files []FileResponse
	err := c.getJSON(ctx, "/api/files", &files)
	return files, err
}

// SearchFiles returns files whose name contains query
func (c *Client) SearchFiles(ctx context.Context, query string) ([]FileResponse, error) {
	var files []FileResponse
	err := c.getJSON(ctx, "/api/files/search?q="+url.QueryEscape(query), &files)
	return files, err
}

// FilesByType returns files matching a type category such as "image"
func (c *Client) FilesByType(ctx context.Context, category string) ([]FileResponse, error) {
	var files []FileResponse
	err := c.getJSON(ctx, "/api/files/by-type/"+url.PathEscape(category), &files)
	return files, err
}

// SmallFiles returns files of at most maxMB megabytes, smallest first
func (c *Client) SmallFiles(ctx context.Context, maxMB float64) ([]FileResponse, error) {
	var files []FileResponse
	err := c.getJSON(ctx, "/api/files/small?max_mb="+strconv.FormatFloat(maxMB, 'f', -1, 64), &files)
	return files, err
}

// GetFile returns one file's metadata
func (c *Client) GetFile(ctx context.Context, id string) (*FileResponse, error) {
	var f FileResponse
	if err := c.getJSON(ctx, "/api/files/"+url.PathEscape(id), &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteFile deletes a file by id
func (c *Client) DeleteFile(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(id), nil, "", nil)
}

// UploadFile uploads the file at path
func (c *Client) UploadFile(ctx context.Context, path, mediaType string) (*UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path))}
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	header["Content-Type"] = []string{mediaType}
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var resp UploadResponse
	if err := c.do(ctx, http.MethodPost, "/api/files", &body, mw.FormDataContentType(), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Chat sends one message to the assistant
func (c *Client) Chat(ctx context.Context, req orchestrator.Request) (*orchestrator.Response, error) {
	var resp orchestrator.Response
	if err := c.sendJSON(ctx, http.MethodPost, "/api/assistant", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListSessions returns chat sessions, most recent first
func (c *Client) ListSessions(ctx context.Context) ([]SessionResponse, error) {
	var sessions []SessionResponse
	err := c.getJSON(ctx, "/api/sessions", &sessions)
	return sessions, err
}

// GetSession returns a session with its messages
func (c *Client) GetSession(ctx context.Context, id string) (*SessionDetailResponse, error) {
	var detail SessionDetailResponse
	if err := c.getJSON(ctx, "/api/sessions/"+url.PathEscape(id), &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreateSession starts a new chat session
func (c *Client) CreateSession(ctx context.Context, title string) (*SessionResponse, error) {
	var sess SessionResponse
	if err := c.sendJSON(ctx, http.MethodPost, "/api/sessions", sessionRequest{Title: title}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// RenameSession changes a session title
func (c *Client) RenameSession(ctx context.Context, id, title string) error {
	return c.sendJSON(ctx, http.MethodPatch, "/api/sessions/"+url.PathEscape(id), sessionRequest{Title: title}, nil)
}

// DeleteSession deletes a session and its messages
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/sessions/"+url.PathEscape(id), nil, "", nil)
}
