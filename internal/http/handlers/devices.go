package handlers

import (
	"net/http"

	apierrors "github.com/pribylovaa/auth-core/internal/errors"
	"github.com/pribylovaa/auth-core/internal/http/middleware"
	"github.com/pribylovaa/auth-core/internal/service"
)

func (h *Handlers) ListDevices(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.UserFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrInvalidCredentials)
		return
	}

	devices, err := h.devices.DevicesByUserID(r.Context(), actor.ID)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, devicesFromModel(devices))
}

// RevokeDevice удаляет устройство текущего пользователя вместе с его refresh-токенами.
func (h *Handlers) RevokeDevice(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.UserFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrInvalidCredentials)
		return
	}

	id, ok := pathUUID(r, "id")
	if !ok {
		apierrors.WriteError(w, r, service.ErrDeviceNotFound)
		return
	}

	if err := h.devices.RevokeDevice(r.Context(), actor.ID, id); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
