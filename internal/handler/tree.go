package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"tabularium/internal/domain"
	"tabularium/internal/service"
)

// TreeHandler handles path-addressed API requests. Path operations only
// work when the archive runs on the tree backend; on other backends they
// fail with the unsupported error.
type TreeHandler struct {
	svc    *service.ArchiveService
	logger *slog.Logger
}

// NewTreeHandler creates a new tree handler
func NewTreeHandler(svc *service.ArchiveService, logger *slog.Logger) *TreeHandler {
	return &TreeHandler{svc: svc, logger: logger}
}

// Register installs the tree routes on mux
func (h *TreeHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/tree/{path...}", h.StoreAtPath)
	mux.HandleFunc("GET /api/tree/{path...}", h.QueryPath)
}

// StoreAtPath writes the request body under the given path. The body may
// be any JSON value; objects and arrays decompose into subtrees, scalars
// become the terminal leaf. With overwrite=false a repeated key gains a
// new sibling instead of replacing the old value.
func (h *TreeHandler) StoreAtPath(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.PathValue("path"), "/")
	if path == "" {
		h.writeError(w, "Invalid path", "Path is required", http.StatusBadRequest)
		return
	}

	overwrite := true
	if raw := r.URL.Query().Get("overwrite"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			h.writeError(w, "Invalid overwrite flag", err.Error(), http.StatusBadRequest)
			return
		}
		overwrite = parsed
	}

	decoder := json.NewDecoder(r.Body)
	decoder.UseNumber()
	var value any
	if err := decoder.Decode(&value); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.StoreAtPath(r.Context(), path, value, overwrite); err != nil {
		h.logger.Error("failed to store at path", "path", path, "error", err)
		h.writeError(w, "Failed to store at path", err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, map[string]string{"status": "stored", "path": path}, http.StatusCreated)
}

// QueryPath pages over the children of the given path
func (h *TreeHandler) QueryPath(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(r.PathValue("path"), "/")
	if path == "" {
		h.writeError(w, "Invalid path", "Path is required", http.StatusBadRequest)
		return
	}

	query := domain.PathQuery{
		Path:      path,
		SortKey:   domain.SortKey(r.URL.Query().Get("sort_key")),
		SortOrder: domain.SortOrder(r.URL.Query().Get("sort_order")),
	}

	var err error
	if query.Page, err = intParam(r, "page"); err != nil {
		h.writeError(w, "Invalid page", err.Error(), http.StatusBadRequest)
		return
	}
	if query.PageSize, err = intParam(r, "page_size"); err != nil {
		h.writeError(w, "Invalid page size", err.Error(), http.StatusBadRequest)
		return
	}
	if query.MaxDepth, err = intParam(r, "max_depth"); err != nil {
		h.writeError(w, "Invalid depth", err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := h.svc.QueryByPath(r.Context(), query)
	if err != nil {
		h.writeError(w, "Query failed", err.Error(), statusFor(err))
		return
	}

	if entries == nil {
		entries = []domain.PathEntry{}
	}
	h.writeJSON(w, entries, http.StatusOK)
}

// intParam reads an optional integer query parameter, zero when absent
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

// writeJSON writes a JSON response
func (h *TreeHandler) writeJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *TreeHandler) writeError(w http.ResponseWriter, message, details string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message, Details: details}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}
