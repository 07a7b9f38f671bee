package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/service"
	"github.com/utafrali/catalogsearch/pkg/httputil"
	"github.com/utafrali/catalogsearch/pkg/pagination"
	"github.com/utafrali/catalogsearch/pkg/validator"
)

// ProductHandler handles HTTP requests for catalog mutation and lookup.
type ProductHandler struct {
	service *service.CatalogService
	logger  *slog.Logger
}

// NewProductHandler creates a new product HTTP handler.
func NewProductHandler(svc *service.CatalogService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// ProductRequest is the JSON body for creating or fully replacing a product.
// Identity and timestamps are never taken from the request.
type ProductRequest struct {
	Title       string  `json:"title" validate:"notblank,max=500"`
	Description string  `json:"description" validate:"max=10000"`
	Category    string  `json:"category" validate:"max=200"`
	Price       float64 `json:"price" validate:"gte=0"`
	ImageURL    string  `json:"image_url" validate:"omitempty,max=2048"`
}

func (req ProductRequest) input() domain.ProductInput {
	return domain.ProductInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Price:       req.Price,
		ImageURL:    req.ImageURL,
	}
}

// --- Handlers ---

// ListProducts handles GET /api/v1/products
// Without page/per_page the whole catalog is returned.
func (h *ProductHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	params, paged, err := pagination.FromRequest(r)
	if err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_PARAMETER", Message: err.Error()},
		})
		return
	}

	products, err := h.service.List(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	if paged {
		httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: pagination.Slice(products, params)})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: products})
}

// GetProduct handles GET /api/v1/products/{id}
func (h *ProductHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: product})
}

// CreateProduct handles POST /api/v1/products
func (h *ProductHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	product, err := h.service.Create(r.Context(), req.input())
	h.writeMutation(w, r, http.StatusCreated, product, err)
}

// UpdateProduct handles PUT /api/v1/products/{id}
func (h *ProductHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	var req ProductRequest
	if err := validator.DecodeAndValidate(w, r, &req); err != nil {
		// A missing product is reported before an invalid body.
		var verr *validator.ValidationError
		if errors.As(err, &verr) {
			if _, getErr := h.service.Get(r.Context(), id); getErr != nil {
				httputil.WriteError(w, r, getErr, h.logger)
				return
			}
		}
		httputil.WriteValidationError(w, err)
		return
	}

	product, err := h.service.Update(r.Context(), id, req.input())
	h.writeMutation(w, r, http.StatusOK, product, err)
}

// DeleteProduct handles DELETE /api/v1/products/{id}
// A stale index after delete is reported through the header only, since a
// 204 response carries no body.
func (h *ProductHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, ok := productID(w, r)
	if !ok {
		return
	}

	err := h.service.Delete(r.Context(), id)
	if err != nil {
		if _, stale := service.IsPropagationError(err); !stale {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
		w.Header().Set(httputil.IndexStatusHeader, "stale")
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeMutation writes the result of a create or update. A propagation
// failure still means the record was saved, so the success status is kept.
func (h *ProductHandler) writeMutation(w http.ResponseWriter, r *http.Request, status int, product *domain.Product, err error) {
	if err != nil {
		if perr, stale := service.IsPropagationError(err); stale && product != nil {
			httputil.WriteStale(w, status, product, perr.Warning())
			return
		}
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, status, httputil.Response{Data: product})
}

func productID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "product id is required"},
		})
		return "", false
	}
	return id, true
}
