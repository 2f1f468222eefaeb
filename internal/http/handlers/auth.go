package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/pribylovaa/auth-core/internal/errors"
	"github.com/pribylovaa/auth-core/internal/models"
	"github.com/pribylovaa/auth-core/internal/service"
)

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in registerRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	// Роль при регистрации не назначается: администраторов создаёт администратор.
	if in.Role != nil && models.Role(*in.Role) != models.RoleUser {
		apierrors.WriteError(w, r, service.ErrUserRoleNotAllowed)
		return
	}

	user, err := h.auth.Register(r.Context(), service.CreateUserInput{
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Email:     in.Email,
		Password:  in.Password,
	})
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, registerResponse{Message: msgRegistered, User: userFromModel(user)})
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	sess, err := h.auth.Login(r.Context(), clientInfo(r), in.Email, in.Password)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.setRefreshCookie(w, sess.Tokens.RefreshToken, sess.Tokens.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, sessionFromModel(sess, msgLoggedIn))
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	token := refreshFromCookie(r)
	if token == "" {
		apierrors.WriteError(w, r, service.ErrTokenNotFound)
		return
	}

	sess, err := h.auth.RefreshAccessToken(r.Context(), token)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.setRefreshCookie(w, sess.Tokens.RefreshToken, sess.Tokens.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, sessionFromModel(sess, msgRefreshed))
}

// Logout вызывается под Authenticate: активный access-токен плюс refresh-cookie.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	token := refreshFromCookie(r)
	if token == "" {
		apierrors.WriteError(w, r, service.ErrTokenNotFound)
		return
	}

	if err := h.auth.Logout(r.Context(), token); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, messageResponse{Message: msgLoggedOut})
}

func (h *Handlers) ActivateAccount(w http.ResponseWriter, r *http.Request) {
	res, err := h.auth.ActivateAccount(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: res.Message()})
}

func (h *Handlers) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var in emailRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), in.Email); err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: msgResetRequested})
}

// ResetPassword обслуживает и GET, и POST: тело {password, confirm_password} в обоих случаях.
func (h *Handlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in passwordResetRequest
	if err := decodeStrict(w, r, &in); err != nil {
		apierrors.WriteError(w, r, apierrors.ErrBadRequest)
		return
	}

	res, err := h.auth.ResetPassword(r.Context(), chi.URLParam(r, "token"), in.Password, in.ConfirmPassword)
	if err != nil {
		apierrors.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: res.Message()})
}
