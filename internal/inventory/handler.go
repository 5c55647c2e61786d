package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/pharmatrade/pharmatrade/internal/platform/httpx"
	"github.com/pharmatrade/pharmatrade/internal/shared"
)

// Handler exposes inventory ledger endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.restock)
	r.Get("/search", h.searchAvailable)
	r.Get("/{id}", h.get)
	r.Put("/{id}", h.updateLevels)
	r.Delete("/{id}", h.remove)
}

type restockRequest struct {
	MedicineID    int64   `json:"medicineId" validate:"required,gt=0"`
	Quantity      int     `json:"quantity" validate:"required,gt=0"`
	MinStockLevel int     `json:"minStockLevel" validate:"gte=0"`
	MaxStockLevel int     `json:"maxStockLevel" validate:"gte=0"`
	UnitPrice     float64 `json:"unitPrice" validate:"gte=0"`
	Currency      string  `json:"currency"`
	BatchNumber   string  `json:"batchNumber"`
	ExpiryDate    string  `json:"expiryDate"`
}

func (h *Handler) restock(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	var req restockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var expiry time.Time
	if req.ExpiryDate != "" {
		var err error
		expiry, err = time.Parse(time.RFC3339, req.ExpiryDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expiryDate must be RFC3339")
			return
		}
	}
	currency := req.Currency
	if currency == "" {
		currency = "TRY"
	}
	rec, err := h.service.Restock(r.Context(), actor, RestockInput{
		MedicineID:    req.MedicineID,
		Quantity:      req.Quantity,
		MinStockLevel: req.MinStockLevel,
		MaxStockLevel: req.MaxStockLevel,
		UnitPrice:     req.UnitPrice,
		Currency:      currency,
		BatchNumber:   req.BatchNumber,
		ExpiryDate:    expiry,
	})
	if err != nil {
		h.logger.Error("restock failed", slog.Int64("medicine_id", req.MedicineID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rec)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	page := shared.ParsePagination(r)
	filter := Filter{Status: r.URL.Query().Get("status")}
	if raw := r.URL.Query().Get("medicineId"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, shared.ErrValidation)
			return
		}
		filter.MedicineID = id
	}
	records, total, err := h.service.List(r.Context(), actor, filter, page)
	if err != nil {
		h.logger.Error("list inventory failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"inventory":  records,
		"pagination": shared.NewPageMeta(page, len(records), total),
	})
}

func (h *Handler) searchAvailable(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	medicineID, err := strconv.ParseInt(r.URL.Query().Get("medicineId"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "medicineId query parameter is required")
		return
	}
	page := shared.ParsePagination(r)
	records, total, err := h.service.SearchAvailable(r.Context(), actor, medicineID, page)
	if err != nil {
		h.logger.Error("search inventory failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"offers":     records,
		"pagination": shared.NewPageMeta(page, len(records), total),
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	rec, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

type updateLevelsRequest struct {
	MinStockLevel *int     `json:"minStockLevel"`
	MaxStockLevel *int     `json:"maxStockLevel"`
	UnitPrice     *float64 `json:"unitPrice"`
}

func (h *Handler) updateLevels(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	var req updateLevelsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	rec, err := h.service.UpdateLevels(r.Context(), actor, id, UpdateLevelsInput{
		MinStockLevel: req.MinStockLevel,
		MaxStockLevel: req.MaxStockLevel,
		UnitPrice:     req.UnitPrice,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rec)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, shared.ErrValidation)
		return
	}
	if err := h.service.Remove(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
