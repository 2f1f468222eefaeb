package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apierrors "github.com/pribylovaa/auth-core/internal/errors"
	"github.com/pribylovaa/auth-core/internal/models"
	logctx "github.com/pribylovaa/auth-core/internal/pkg/log"
	"github.com/pribylovaa/auth-core/internal/service"
)

// Resolver определяет пользователя по access-токену.
type Resolver interface {
	Resolve(ctx context.Context, accessToken string) (*models.User, error)
	ResolveActive(ctx context.Context, accessToken string) (*models.User, error)
}

// Authenticate извлекает Bearer-токен из Authorization, определяет пользователя
// и кладёт его в контекст (UserFrom). Без валидного токена отвечает 401.
// requireActive дополнительно требует подтверждённый e-mail (иначе 403).
func Authenticate(res Resolver, requireActive bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok {
				apierrors.WriteError(w, r, service.ErrInvalidCredentials)
				return
			}

			resolve := res.Resolve
			if requireActive {
				resolve = res.ResolveActive
			}

			user, err := resolve(r.Context(), token)
			if err != nil {
				apierrors.WriteError(w, r, err)
				return
			}

			ctx := WithUser(r.Context(), user)
			ctx = logctx.With(ctx, slog.String("user_id", user.ID.String()))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken возвращает токен из заголовка "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")

	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}

	token := strings.TrimSpace(auth[len(prefix):])
	return token, token != ""
}
