package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/service"
	"github.com/utafrali/catalogsearch/pkg/httputil"
)

// NoResultsMessage accompanies a successful search that matched nothing.
const NoResultsMessage = "No products found matching your search criteria"

// SearchHandler handles HTTP requests for search and autocomplete.
type SearchHandler struct {
	service *service.QueryService
	logger  *slog.Logger
}

// NewSearchHandler creates a new search HTTP handler.
func NewSearchHandler(svc *service.QueryService, logger *slog.Logger) *SearchHandler {
	return &SearchHandler{
		service: svc,
		logger:  logger,
	}
}

// Search handles GET /api/v1/products/search?query=&category=
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var category *string
	if v := q.Get("category"); v != "" {
		category = &v
	}

	products, err := h.service.Search(r.Context(), q.Get("query"), category)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	resp := httputil.Response{Data: products}
	if len(products) == 0 {
		resp.Data = []domain.Product{}
		resp.Message = NoResultsMessage
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Autocomplete handles GET /api/v1/products/autocomplete?query=
func (h *SearchHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Autocomplete(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: products})
}
