// errors стандартизирует ответы об ошибках HTTP-слоя.
// На вход принимает ошибку сервисного слоя, на выход даёт:
//   - корректный HTTP-статус;
//   - стабильный машиночитаемый error_code и безопасное message без утечки деталей.
//
// Источник истинности по маппингу: sentinel-ошибки пакета service.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/pribylovaa/auth-core/internal/service"
)

// Нестандартный код часто используемый для "клиент закрыл соединение".
const StatusClientClosedRequest = 499

// ErrBadRequest — тело или параметры запроса не разобраны транспортом.
var ErrBadRequest = errors.New("bad request")

// APIError — единый плоский формат ответа об ошибке для фронта.
// Message — безопасное человекочитаемое описание.
// ErrorCode — короткий стабильный код для машиночитаемой обработки на FE.
// RequestID — прокидывается из X-Request-Id, если есть (для трассировки).
type APIError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
	RequestID string `json:"request_id,omitempty"`
}

type mapping struct {
	err     error
	status  int
	code    string
	message string
}

// registry — таблица соответствия ошибок сервиса ответам.
// Порядок важен: проверяется первое совпадение по errors.Is.
var registry = []mapping{
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials",
		"Provided credentials are invalid, please provide a valid access token"},
	{service.ErrInvalidVerificationToken, http.StatusBadRequest, "invalid_verification_token",
		"Provided verification token is invalid"},
	{service.ErrInvalidRefreshToken, http.StatusUnauthorized, "invalid_refresh_token",
		"Provided refresh token is invalid"},
	{service.ErrTokenExpired, http.StatusUnauthorized, "token_expired",
		"Provided token has expired"},
	{service.ErrEmailNotVerified, http.StatusForbidden, "email_not_verified",
		"Please verify your email address to activate your account."},
	{service.ErrTokenNotCreated, http.StatusBadRequest, "token_creation_failed",
		"Token could not be created"},
	{service.ErrTokenNotFound, http.StatusNotFound, "token_not_found",
		"Token could not be found"},
	{service.ErrDeviceNotFound, http.StatusNotFound, "device_not_found",
		"Device could not be found"},
	{service.ErrDeviceNotCreated, http.StatusBadRequest, "device_creation_failed",
		"Device could not be created"},
	{service.ErrUserNotFound, http.StatusNotFound, "user_not_found",
		"The user associated with the provided email or id was not found"},
	{service.ErrUserAlreadyExists, http.StatusBadRequest, "user_already_exists",
		"The user associated with the provided email already exists"},
	{service.ErrUserRoleNotAllowed, http.StatusForbidden, "user_role_not_allowed",
		"Only admins are allowed to access this route."},
	{service.ErrUserNotCreated, http.StatusBadRequest, "user_not_created",
		"The user could not be created"},
	{service.ErrInvalidEmail, http.StatusBadRequest, "invalid_argument",
		"Provided email address is invalid"},
	{service.ErrWeakPassword, http.StatusBadRequest, "invalid_argument",
		"Password must be at least 8 characters and at most 72 bytes long"},
	{service.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument", "invalid argument"},
	{ErrBadRequest, http.StatusBadRequest, "invalid_argument", "invalid argument"},
	{context.Canceled, StatusClientClosedRequest, "canceled", "canceled"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "deadline_exceeded", "deadline exceeded"},
}

// ToHTTP конвертирует ошибку сервиса в HTTP-статус и унифицированный ответ.
//
// Поведение:
//   - err == nil — программная ошибка вызова: 500/internal, чтобы не маскировать баг;
//   - известная ошибка — статус и error_code из registry;
//   - прочее — 500/internal (без утечки деталей).
func ToHTTP(err error) (int, APIError) {
	if err != nil {
		for _, m := range registry {
			if errors.Is(err, m.err) {
				return m.status, APIError{Message: m.message, ErrorCode: m.code}
			}
		}
	}

	return http.StatusInternalServerError, APIError{
		Message:   "internal error",
		ErrorCode: "internal",
	}
}

// WriteError — хелпер для HTTP-хендлеров.
// Пишет статус и тело, добавляет request_id из заголовка, а для 401
// по access-токену — WWW-Authenticate: Bearer.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := ToHTTP(err)

	if rid := r.Header.Get("X-Request-Id"); rid != "" {
		resp.RequestID = rid
	}

	if resp.ErrorCode == "invalid_credentials" {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
