package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/pribylovaa/auth-core/internal/errors"
	"github.com/pribylovaa/auth-core/internal/http/middleware"
	"github.com/pribylovaa/auth-core/internal/service"
)

// ListUsers — GET /users?limit=&offset=, только для администраторов.
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.UserFrom(r.Context())

	limit, err := queryInt(r, "limit")
	if err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	users, err := h.users.List(r.Context(), actor, limit, offset)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	out := make([]userResponse, 0, len(users))
	for i := range users {
		out = append(out, userFromModel(&users[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handlers) CurrentUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.UserFrom(r.Context())
	if !ok {
		apierrors.WriteError(w, r, service.ErrInvalidCredentials)
		return
	}

	writeJSON(w, http.StatusOK, userFromModel(actor))
}

func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		apierrors.WriteError(w, r, service.ErrUserNotFound)
		return
	}
	actor, _ := middleware.UserFrom(r.Context())

	user, err := h.users.Get(r.Context(), id, actor)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userFromModel(user))
}

func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		apierrors.WriteError(w, r, service.ErrUserNotFound)
		return
	}

	var in updateUserRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}
	actor, _ := middleware.UserFrom(r.Context())

	user, err := h.users.Update(r.Context(), id, service.UserPatch{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  in.Password,
		Role:      in.Role,
	}, actor)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, userFromModel(user))
}

func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(r, "id")
	if !ok {
		apierrors.WriteError(w, r, service.ErrUserNotFound)
		return
	}
	actor, _ := middleware.UserFrom(r.Context())

	if err := h.users.Delete(r.Context(), id, actor); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// pathUUID разбирает UUID из параметра пути.
// Невалидный id неотличим от несуществующего.
func pathUUID(r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, false
	}

	return id, true
}

// queryInt читает необязательный целочисленный query-параметр; отсутствие даёт 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}

	return strconv.Atoi(raw)
}
