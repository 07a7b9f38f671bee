package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/catalogsearch/internal/service"
	"github.com/utafrali/catalogsearch/pkg/httputil"
)

// AdminHandler exposes index maintenance operations.
type AdminHandler struct {
	service *service.CatalogService
	logger  *slog.Logger
}

// NewAdminHandler creates a new admin HTTP handler.
func NewAdminHandler(svc *service.CatalogService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		service: svc,
		logger:  logger,
	}
}

// Reindex handles POST /api/v1/admin/reindex
// It runs a full rebuild synchronously and returns the report.
func (h *AdminHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.RebuildAll(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: report})
}

// ReindexProduct handles POST /api/v1/admin/reindex/{id}
func (h *AdminHandler) ReindexProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	if err := h.service.Reconcile(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{"id": id, "status": "reconciled"}})
}
