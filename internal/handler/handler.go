package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"tabularium/internal/codec"
	"tabularium/internal/domain"
	"tabularium/internal/service"
)

// ErrorResponse is the JSON body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ArchiveHandler handles document archive API requests
type ArchiveHandler struct {
	svc    *service.ArchiveService
	logger *slog.Logger
}

// NewArchiveHandler creates a new archive handler
func NewArchiveHandler(svc *service.ArchiveService, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{svc: svc, logger: logger}
}

// Register installs the archive routes on mux
func (h *ArchiveHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents/{structure...}", h.StoreDocument)
	mux.HandleFunc("GET /api/documents/{structure...}", h.LoadDocument)
	mux.HandleFunc("GET /api/structures", h.ListStructures)
	mux.HandleFunc("GET /api/search", h.Search)
	mux.HandleFunc("POST /api/sweep", h.Sweep)
	mux.HandleFunc("GET /api/health", h.Health)
}

// StoreDocument decomposes the request body into the named structure
func (h *ArchiveHandler) StoreDocument(w http.ResponseWriter, r *http.Request) {
	structure := structureFromPath(r.PathValue("structure"))
	if structure == "" {
		h.writeError(w, "Invalid structure name", "Structure name is required", http.StatusBadRequest)
		return
	}

	doc, err := codec.NewJSONCodec().Parse(r.Body)
	if err != nil {
		if errors.Is(err, domain.ErrNotAnObject) {
			h.writeError(w, "Invalid document", err.Error(), http.StatusBadRequest)
			return
		}
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.svc.StoreDocument(r.Context(), structure, doc); err != nil {
		h.logger.Error("failed to store document", "structure", structure, "error", err)
		h.writeError(w, "Failed to store document", err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, map[string]string{"status": "stored", "structure": structure}, http.StatusCreated)
}

// LoadDocument reconstructs the latest document of the named structure.
// A format query parameter of yaml streams the document as YAML instead
// of JSON.
func (h *ArchiveHandler) LoadDocument(w http.ResponseWriter, r *http.Request) {
	structure := structureFromPath(r.PathValue("structure"))
	if structure == "" {
		h.writeError(w, "Invalid structure name", "Structure name is required", http.StatusBadRequest)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
	case "yaml", "yml":
		w.Header().Set("Content-Type", "application/x-yaml")
		if err := h.svc.ExportDocument(r.Context(), structure, codec.NewYAMLCodec(), w); err != nil {
			h.logger.Error("failed to export document", "structure", structure, "error", err)
			// Headers are already out, the stream just ends short.
			return
		}
		return
	default:
		h.writeError(w, "Unknown format", "Supported formats: json, yaml", http.StatusBadRequest)
		return
	}

	doc, err := h.svc.LoadDocument(r.Context(), structure)
	if err != nil {
		h.logger.Error("failed to load document", "structure", structure, "error", err)
		h.writeError(w, "Failed to load document", err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, doc, http.StatusOK)
}

// ListStructures returns the known structures with record counts
func (h *ArchiveHandler) ListStructures(w http.ResponseWriter, r *http.Request) {
	structures, err := h.svc.Structures(r.Context())
	if err != nil {
		h.logger.Error("failed to list structures", "error", err)
		h.writeError(w, "Failed to list structures", err.Error(), statusFor(err))
		return
	}

	if structures == nil {
		structures = []domain.StructureInfo{}
	}
	h.writeJSON(w, structures, http.StatusOK)
}

// Search returns the documents whose key carries the value
func (h *ArchiveHandler) Search(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	value := r.URL.Query().Get("value")

	docs, err := h.svc.FindByAttribute(r.Context(), key, value)
	if err != nil {
		h.writeError(w, "Search failed", err.Error(), statusFor(err))
		return
	}

	if docs == nil {
		docs = []domain.Document{}
	}
	h.writeJSON(w, docs, http.StatusOK)
}

// SweepRequest is the request body for a retention sweep
type SweepRequest struct {
	Root       string `json:"root"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Sweep deletes records older than the age bound from the named root
func (h *ArchiveHandler) Sweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}
	if req.Root == "" {
		h.writeError(w, "Root is required", "", http.StatusBadRequest)
		return
	}
	if req.MaxAgeDays < 0 {
		h.writeError(w, "Invalid age bound", "max_age_days must not be negative", http.StatusBadRequest)
		return
	}

	result, err := h.svc.Sweep(r.Context(), req.Root, req.MaxAgeDays)
	if err != nil && result == nil {
		h.logger.Error("sweep failed", "root", req.Root, "error", err)
		h.writeError(w, "Sweep failed", err.Error(), statusFor(err))
		return
	}

	// Partial failures still carry a result; the caller sees both.
	reply := map[string]any{"result": result}
	if err != nil {
		reply["errors"] = strings.Split(err.Error(), "\n")
	}
	h.writeJSON(w, reply, http.StatusOK)
}

// Health reports liveness and the active backend configuration
func (h *ArchiveHandler) Health(w http.ResponseWriter, r *http.Request) {
	status := h.svc.Describe()
	status["status"] = "ok"
	h.writeJSON(w, status, http.StatusOK)
}

// Helper methods

func (h *ArchiveHandler) writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *ArchiveHandler) writeError(w http.ResponseWriter, message, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message, Details: details}); err != nil {
		h.logger.Error("failed to encode error response", "error", err)
	}
}

// structureFromPath turns the wildcard remainder of a documents URL into
// a structure name. Slashes become underscores, so /api/documents/fleet/hosts
// addresses the structure fleet_hosts.
func structureFromPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return ""
	}
	return strings.ReplaceAll(trimmed, "/", "_")
}

// statusFor maps store errors onto HTTP status codes
func statusFor(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrNotAnObject):
		return http.StatusBadRequest
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPathNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
