package catalog

import (
	"net/http"

	"github.com/noah-isme/backend-detailing/internal/common"
	"github.com/noah-isme/backend-detailing/internal/obs"
)

// Handler exposes public catalog endpoints.
type Handler struct {
	service *Service
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service}
}

// List handles GET /api/services.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "catalog service not configured", nil)
		return
	}
	items, err := h.service.List(r.Context())
	if err != nil {
		obs.Logger(r.Context()).Error().Err(err).Msg("list services failed")
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, items)
}
