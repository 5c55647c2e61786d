package trading

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

// Handler exposes trade transaction endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transaction routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Get("/stats", h.stats)
	r.Get("/{id}", h.get)
	r.Put("/{id}/status", h.updateStatus)
	r.Put("/{id}/confirm", h.confirm)
	r.Put("/{id}/reject", h.reject)
	r.Post("/{id}/rate", h.rate)
}

type itemRequest struct {
	MedicineID  int64   `json:"medicineId" validate:"required,gt=0"`
	Quantity    int     `json:"quantity" validate:"required,gt=0"`
	UnitPrice   float64 `json:"unitPrice" validate:"gte=0"`
	BatchNumber string  `json:"batchNumber"`
	ExpiryDate  string  `json:"expiryDate"`
}

type createRequest struct {
	BuyerPharmacyID int64         `json:"buyerPharmacyId" validate:"required,gt=0"`
	Items           []itemRequest `json:"items" validate:"required,min=1,dive"`
	Currency        string        `json:"currency"`
	PaymentMethod   string        `json:"paymentMethod"`
	Notes           string        `json:"notes"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	in := CreateInput{
		BuyerPharmacyID: req.BuyerPharmacyID,
		Currency:        req.Currency,
		PaymentMethod:   req.PaymentMethod,
		Notes:           req.Notes,
	}
	for _, item := range req.Items {
		var expiry time.Time
		if item.ExpiryDate != "" {
			var err error
			expiry, err = time.Parse(time.RFC3339, item.ExpiryDate)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item expiryDate must be RFC3339")
				return
			}
		}
		in.Items = append(in.Items, ItemInput{
			MedicineID:  item.MedicineID,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
			BatchNumber: item.BatchNumber,
			ExpiryDate:  expiry,
		})
	}
	txn, err := h.service.Create(r.Context(), actor, in)
	if err != nil {
		h.logger.Error("create transaction failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, txn)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	page := shared.ParsePagination(r)
	filter := Filter{
		Role:   r.URL.Query().Get("role"),
		Status: r.URL.Query().Get("status"),
	}
	items, total, err := h.service.List(r.Context(), actor, filter, page)
	if err != nil {
		h.logger.Error("list transactions failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"transactions": items,
		"pagination":   shared.NewPageMeta(page, len(items), total),
	})
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	stats, err := h.service.GetStats(r.Context(), actor)
	if err != nil {
		h.logger.Error("trade stats failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
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
	txn, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed in_transit delivered completed cancelled refunded"`
	Note   string `json:"note"`
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
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
	var req statusRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	txn, err := h.service.Transition(r.Context(), actor, id, req.Status, req.Note)
	if err != nil {
		h.logger.Warn("status transition rejected",
			slog.Int64("transaction_id", id),
			slog.String("target", req.Status),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) confirm(w http.ResponseWriter, r *http.Request) {
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
	var req struct {
		Note string `json:"note"`
	}
	_ = httpx.DecodeJSON(r, &req)
	txn, err := h.service.Confirm(r.Context(), actor, id, req.Note)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
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
	var req struct {
		Reason string `json:"reason"`
	}
	_ = httpx.DecodeJSON(r, &req)
	txn, err := h.service.Reject(r.Context(), actor, id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}

type rateRequest struct {
	RatingType string `json:"ratingType" validate:"required,oneof=seller buyer"`
	Score      int    `json:"score" validate:"required,min=1,max=5"`
	Comment    string `json:"comment"`
}

func (h *Handler) rate(w http.ResponseWriter, r *http.Request) {
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
	var req rateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON payload")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	txn, err := h.service.Rate(r.Context(), actor, id, RateInput{
		RatingType: req.RatingType,
		Score:      req.Score,
		Comment:    req.Comment,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, txn)
}
