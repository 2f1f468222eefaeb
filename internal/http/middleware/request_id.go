package middleware

import (
	"context"
	"net/http"

	"github.com/oklog/ulid/v2"
)

const (
	headerRequestID = "X-Request-Id"
	// maxRequestIDLen ограничивает длину принятого от клиента id.
	maxRequestIDLen = 128
)

// RequestID обеспечивает наличие X-Request-Id.
// Id клиента принимается, если он не длиннее maxRequestIDLen и состоит из
// [A-Za-z0-9._:-]; иначе генерируется ULID (сортируется по времени, как jti).
// Id попадает в заголовок ответа, в заголовок запроса (его читает
// apierrors.WriteError) и в контекст (RequestIDFrom).
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(headerRequestID)
			if !validRequestID(id) {
				id = ulid.Make().String()
				r.Header.Set(headerRequestID, id)
			}
			w.Header().Set(headerRequestID, id)

			ctx := context.WithValue(r.Context(), ctxRequestID, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validRequestID не пропускает в логи и ответы управляющие символы и пробелы.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}

	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '-', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}

	return true
}
