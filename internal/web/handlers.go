package web

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/JonMunkholm/csvimport/internal/core"
	"github.com/JonMunkholm/csvimport/internal/logging"
)

// maxFieldSize bounds a non-file multipart field.
const maxFieldSize = 64 << 10

type healthResponse struct {
	Status   string             `json:"status"`
	Database string             `json:"database"`
	Tables   int                `json:"tables"`
	Imports  core.LimiterStatus `json:"imports"`
}

// handleHealth reports whether the backend is reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:   "ok",
		Database: "ok",
		Tables:   core.TableCount(),
		Imports:  s.service.Limiter().Status(),
	}

	if err := s.service.Backend().Ping(r.Context()); err != nil {
		logging.FromContext(r.Context()).Error("health check failed", "error", err)
		resp.Status = "degraded"
		resp.Database = "unreachable"
		render.Status(r, http.StatusServiceUnavailable)
	}
	render.JSON(w, r, resp)
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.service.ListTables())
}

func (s *Server) handleGetTable(w http.ResponseWriter, r *http.Request) {
	tableKey := chi.URLParam(r, "tableKey")
	info, ok := s.service.Table(tableKey)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownTable, tableKey), http.StatusNotFound)
		return
	}
	render.JSON(w, r, info)
}

// handleDownloadTemplate returns a CSV holding just the table's header row.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	tableKey := chi.URLParam(r, "tableKey")
	info, ok := s.service.Table(tableKey)
	if !ok {
		s.respondError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownTable, tableKey), http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s_template.csv"`, tableKey))

	cw := csv.NewWriter(w)
	if err := cw.Write(info.Columns); err != nil {
		logging.FromContext(r.Context()).Error("write template", "error", err)
		return
	}
	cw.Flush()
}

func (s *Server) handleImportStatus(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, s.service.Limiter().Status())
}

// importResponse is the body of a finished import.
type importResponse struct {
	core.ImportOutcome
	DurationMS int64 `json:"duration_ms"`
}

// handleImport streams the request's CSV into a table.
//
// The CSV is either the raw request body or the multipart field "file".
// Options come from the query string (validate_only, extra.<column>) or
// from multipart fields sent before the file.
//
// 200: every row imported (or validated). 422: rows failed, nothing saved.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	tableKey := chi.URLParam(r, "tableKey")
	if _, ok := s.service.Table(tableKey); !ok {
		s.respondError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownTable, tableKey), http.StatusNotFound)
		return
	}

	var req core.ImportRequest
	for key, vals := range r.URL.Query() {
		if err := applyOption(&req, key, vals[len(vals)-1]); err != nil {
			s.respondError(w, r, err, http.StatusBadRequest)
			return
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxFileSize)
	body, err := importBody(r, &req)
	if err != nil {
		s.respondError(w, r, err, statusFor(err))
		return
	}

	out, err := s.service.Import(r.Context(), tableKey, body, req)
	if err != nil {
		if errors.Is(err, core.ErrTooManyImports) {
			w.Header().Set("Retry-After", "5")
		}
		s.respondError(w, r, err, statusFor(err))
		return
	}

	status := http.StatusOK
	if !out.Result.Succeeded() {
		status = http.StatusUnprocessableEntity
	}
	logging.WithFields(r.Context(), "table", tableKey, "import_id", out.ID).Info("import request finished",
		"status", status,
		"error_count", out.Result.ErrorCount(),
		"validate_only", out.ValidateOnly,
	)
	render.Status(r, status)
	render.JSON(w, r, importResponse{ImportOutcome: out, DurationMS: out.Duration.Milliseconds()})
}

// importBody returns the CSV stream of r. Multipart requests are read part
// by part so the file is never buffered; fields before the file part are
// applied to req.
func importBody(r *http.Request, req *core.ImportRequest) (io.Reader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		if r.ContentLength == 0 {
			return nil, core.ErrNoFile
		}
		req.SizeHint = max(r.ContentLength, 0)
		return r.Body, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidRequest, err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, core.ErrNoFile
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart: %w", err)
		}

		name := part.FormName()
		if name == "file" {
			return part, nil
		}

		val, err := io.ReadAll(io.LimitReader(part, maxFieldSize))
		if err != nil {
			return nil, fmt.Errorf("read multipart field %q: %w", name, err)
		}
		if err := applyOption(req, name, string(val)); err != nil {
			return nil, err
		}
	}
}

// applyOption sets one request option. Unknown keys are ignored.
func applyOption(req *core.ImportRequest, key, value string) error {
	switch {
	case key == "validate_only":
		v, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("%w: validate_only=%q", core.ErrInvalidRequest, value)
		}
		req.ValidateOnly = v
	case strings.HasPrefix(key, "extra."):
		col := strings.TrimPrefix(key, "extra.")
		if col == "" {
			return fmt.Errorf("%w: empty extra column name", core.ErrInvalidRequest)
		}
		if req.Extra == nil {
			req.Extra = make(map[string]any)
		}
		req.Extra[col] = value
	}
	return nil
}
