package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/pribylovaa/auth-core/internal/errors"
	logctx "github.com/pribylovaa/auth-core/internal/pkg/log"
)

// Timeout ограничивает время обработки запроса; существующий deadline не продлевается.
// Если обработчик упёрся в deadline и ничего не ответил, клиент получает 504
// в едином формате ошибок. Значение <=0 делает мидлвар no-op.
func Timeout(d time.Duration) Middleware {
	return func(next http.Handler) http.Handler {
		if d <= 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if _, ok := ctx.Deadline(); !ok {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, d)
				defer cancel()
				r = r.WithContext(ctx)
			}

			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			if sw.status == 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
				logctx.From(ctx).Warn("request_timeout",
					slog.String("path", r.URL.Path),
					slog.Duration("limit", d),
				)
				apierrors.WriteError(sw, r, context.DeadlineExceeded)
			}
		})
	}
}
