package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"tabularium/internal/secrets"
)

// SecretLister defines the interface for secret listings
type SecretLister interface {
	List() []secrets.Summary
}

// SecretsHandler handles secrets API requests. Only summaries leave the
// process; secret data stays with the collectors.
type SecretsHandler struct {
	store  SecretLister
	logger *slog.Logger
}

// NewSecretsHandler creates a new secrets handler
func NewSecretsHandler(store SecretLister, logger *slog.Logger) *SecretsHandler {
	return &SecretsHandler{store: store, logger: logger}
}

// Register installs the secrets routes on mux
func (h *SecretsHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/secrets", h.ListSecrets)
}

// ListSecrets returns all secret summaries
func (h *SecretsHandler) ListSecrets(w http.ResponseWriter, r *http.Request) {
	summaries := h.store.List()
	if summaries == nil {
		summaries = []secrets.Summary{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(summaries); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}
