package settings

import (
	"net/http"

	"github.com/noah-isme/backend-detailing/internal/common"
)

// Handler serves the invoice settings endpoints.
type Handler struct {
	Service *Service
}

// Get handles GET /api/invoice/settings.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Service.Current(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, cfg)
}

// Put handles PUT /api/invoice/settings.
func (h *Handler) Put(w http.ResponseWriter, r *http.Request) {
	var in Update
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	cfg, err := h.Service.Save(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, cfg)
}
