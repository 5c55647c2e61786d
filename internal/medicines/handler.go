package medicines

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pharmatrade/pharmatrade/internal/platform/httpx"
	"github.com/pharmatrade/pharmatrade/internal/shared"
)

// Handler exposes catalog endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.search)
	r.Get("/barcode/{barcode}", h.getByBarcode)
	r.Get("/{id}", h.get)
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	page := shared.ParsePagination(r)
	q := r.URL.Query().Get("search")
	category := r.URL.Query().Get("category")
	items, total, err := h.service.Search(r.Context(), q, category, page)
	if err != nil {
		h.logger.Error("medicine search failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"medicines":  items,
		"pagination": shared.NewPageMeta(page, len(items), total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	medicine, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, medicine)
}

func (h *Handler) getByBarcode(w http.ResponseWriter, r *http.Request) {
	medicine, err := h.service.GetByBarcode(r.Context(), chi.URLParam(r, "barcode"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, medicine)
}
