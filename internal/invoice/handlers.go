package invoice

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-detailing/internal/common"
	"github.com/noah-isme/backend-detailing/internal/obs"
)

// Handler exposes the invoice endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a Handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Draft handles POST /api/invoice/draft.
func (h *Handler) Draft(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if !decode(w, r, &req) {
		return
	}
	draft, err := h.service.Draft(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, draft)
}

// Items handles POST /api/invoice/items.
func (h *Handler) Items(w http.ResponseWriter, r *http.Request) {
	var req ItemsRequest
	if !decode(w, r, &req) {
		return
	}
	draft, err := h.service.ApplyItems(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, draft)
}

// Totals handles POST /api/invoice/totals.
func (h *Handler) Totals(w http.ResponseWriter, r *http.Request) {
	var req TotalsRequest
	if !decode(w, r, &req) {
		return
	}
	quote, err := h.service.Preview(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, quote)
}

// Send handles POST /api/dashboard/send-invoice.
func (h *Handler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendRequest
	if !decode(w, r, &req) {
		return
	}
	result, err := h.service.Send(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.JSON(w, http.StatusCreated, result)
}

// Get handles GET /api/invoices/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	common.Data(w, http.StatusOK, inv)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := common.DecodeJSON(r, dst); err != nil {
		common.WriteError(w, err)
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if !common.IsAppError(err) {
		obs.Logger(r.Context()).Error().Err(err).Msg("invoice request failed")
	}
	common.WriteError(w, err)
}
