package loyalty

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-detailing/internal/common"
)

// Handler exposes the loyalty endpoints.
type Handler struct {
	Service *Service
}

// Award handles POST /api/invoice/award-loyalty-points.
func (h *Handler) Award(w http.ResponseWriter, r *http.Request) {
	var req AwardRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	result, err := h.Service.Award(r.Context(), req)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, result)
}

// Balance handles GET /api/loyalty/{phone}.
func (h *Handler) Balance(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Service.Balance(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, acct)
}
