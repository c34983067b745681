package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/diane-assistant/filevault/internal/contentstore"
	"github.com/diane-assistant/filevault/internal/db"
)

// FileResponse represents a stored file in API responses
type FileResponse struct {
	ID               string    `json:"id"`
	OriginalFilename string    `json:"original_filename"`
	FileType         string    `json:"file_type"`
	Size             int64     `json:"size"`
	Hash             string    `json:"hash"`
	ReferenceCount   int       `json:"reference_count"`
	UploadedAt       time.Time `json:"uploaded_at"`
}

// UploadResponse is returned by POST /api/files.
type UploadResponse struct {
	FileResponse
	IsDuplicate bool `json:"is_duplicate"`
}

func toFileResponse(f *db.File) FileResponse {
	return FileResponse{
		ID:               f.ID,
		OriginalFilename: f.OriginalFilename,
		FileType:         f.FileType,
		Size:             f.Size,
		Hash:             f.Hash,
		ReferenceCount:   f.ReferenceCount,
		UploadedAt:       f.UploadedAt,
	}
}

func toFileResponses(files []*db.File) []FileResponse {
	out := make([]FileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, toFileResponse(f))
	}
	return out
}

// uploadFile handles POST /api/files (multipart field "file")
func (s *Server) uploadFile(c *echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "multipart field \"file\" is required")
	}
	src, err := fh.Open()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	defer src.Close()

	mediaType := fh.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}

	f, dup, err := s.opts.Store.Upload(c.Request().Context(), src, fh.Filename, mediaType, fh.Size)
	if err != nil {
		slog.Error("Upload failed", "filename", fh.Filename, "error", err)
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	code := http.StatusCreated
	if dup {
		code = http.StatusOK
	}
	return c.JSON(code, UploadResponse{FileResponse: toFileResponse(f), IsDuplicate: dup})
}

// listFiles handles GET /api/files
func (s *Server) listFiles(c *echo.Context) error {
	files, err := s.opts.Store.List(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toFileResponses(files))
}

// fileStats handles GET /api/files/stats
func (s *Server) fileStats(c *echo.Context) error {
	st, err := s.opts.Store.Stats(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, st)
}

// searchFiles handles GET /api/files/search?q=, matching names case-insensitively
func (s *Server) searchFiles(c *echo.Context) error {
	q := strings.ToLower(strings.TrimSpace(c.QueryParam("q")))
	if q == "" {
		return errorJSON(c, http.StatusBadRequest, "query parameter q is required")
	}
	files, err := s.opts.Store.List(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	var matched []*db.File
	for _, f := range files {
		if strings.Contains(strings.ToLower(f.OriginalFilename), q) {
			matched = append(matched, f)
		}
	}
	return c.JSON(http.StatusOK, toFileResponses(matched))
}

// filesByType handles GET /api/files/by-type/:type
func (s *Server) filesByType(c *echo.Context) error {
	files, err := s.opts.Store.ListByCategory(c.Request().Context(), c.Param("type"))
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toFileResponses(files))
}

// smallFiles handles GET /api/files/small?max_mb=, defaulting to 10 MB.
// Results are smallest first.
func (s *Server) smallFiles(c *echo.Context) error {
	maxMB := 10.0
	if v := c.QueryParam("max_mb"); v != "" {
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil || parsed < 0 {
			return errorJSON(c, http.StatusBadRequest, "max_mb must be a non-negative number")
		}
		maxMB = parsed
	}
	files, err := s.opts.Store.SmallFiles(c.Request().Context(), int64(maxMB*1024*1024))
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toFileResponses(files))
}

// getFile handles GET /api/files/:id
func (s *Server) getFile(c *echo.Context) error {
	f, err := s.opts.Store.Get(c.Request().Context(), c.Param("id"))
	if errors.Is(err, contentstore.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "file not found")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, toFileResponse(f))
}

// fileContent handles GET /api/files/:id/content
func (s *Server) fileContent(c *echo.Context) error {
	f, rc, err := s.opts.Store.Open(c.Request().Context(), c.Param("id"))
	if errors.Is(err, contentstore.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "file not found")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	defer rc.Close()

	w := c.Response()
	w.Header().Set("Content-Type", f.FileType)
	w.Header().Set("Content-Length", strconv.FormatInt(f.Size, 10))
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(f.OriginalFilename))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		slog.Warn("Failed to stream file", "id", f.ID, "error", err)
	}
	return nil
}

// deleteFile handles DELETE /api/files/:id
func (s *Server) deleteFile(c *echo.Context) error {
	id := c.Param("id")
	ok, err := s.opts.Store.Delete(c.Request().Context(), id)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	if !ok {
		return errorJSON(c, http.StatusNotFound, "file not found")
	}
	return c.JSON(http.StatusOK, map[string]any{"id": id, "deleted": true})
}
