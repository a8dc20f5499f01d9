package decision

import (
	"encoding/json"
	"net/http"

	"github.com/frahmantamala/authz/internal/transport"
	"github.com/frahmantamala/authz/pkg/logger"
	"github.com/go-chi/chi"
)

type Handler struct {
	*transport.BaseHandler
	Service *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(logger.LoggerWrapper()),
		Service:     svc,
	}
}

func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	var dto DecideDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		status, body := err.ToHTTPResponse()
		h.WriteJSON(w, status, body)
		return
	}

	decision := h.Service.Decide(r.Context(), dto.UserID, dto.Resource, dto.Action, dto.OrganizationID)
	h.WriteJSON(w, http.StatusOK, decision)
}

func (h *Handler) DecideAny(w http.ResponseWriter, r *http.Request) {
	var dto DecideAnyDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := dto.Validate(); err != nil {
		status, body := err.ToHTTPResponse()
		h.WriteJSON(w, status, body)
		return
	}

	decision := h.Service.DecideAny(r.Context(), dto.UserID, dto.Permissions, dto.OrganizationID)
	h.WriteJSON(w, http.StatusOK, decision)
}

func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		h.WriteError(w, http.StatusBadRequest, "userID is required")
		return
	}

	perms, err := h.Service.ListEffectivePermissions(r.Context(), userID)
	if err != nil {
		h.Logger.Error("failed to list effective permissions", "error", err, "user_id", userID)
		h.WriteError(w, http.StatusServiceUnavailable, "permission store unavailable")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"permissions": perms})
}
