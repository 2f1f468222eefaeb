package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pribylovaa/auth-core/internal/http/handlers"
	"github.com/pribylovaa/auth-core/internal/http/middleware"
)

// Options — параметры сборки HTTP-роутера.
type Options struct {
	Logger   *slog.Logger
	Timeout  time.Duration
	BasePath string // например, "/api/v1"; если пустой — роуты регистрируются на корне.

	// AllowedOrigins — origin, которым разрешён CORS; пусто — CORS выключен.
	AllowedOrigins []string
	// TrustProxy — брать IP клиента из X-Forwarded-For/X-Real-IP.
	TrustProxy bool
	// Metrics — HTTP-метрики; nil — без инструментирования.
	Metrics *middleware.Metrics
}

// NewRouter собирает http.Handler с chi и подключёнными middleware/роутами.
func NewRouter(h *handlers.Handlers, res middleware.Resolver, opts Options) http.Handler {
	root := chi.NewRouter()

	// Middleware (внешний -> внутренний).
	root.Use(
		middleware.Recover(),
		middleware.RequestID(), // до логирования!
	)
	if opts.TrustProxy {
		root.Use(chimw.RealIP)
	}
	root.Use(
		middleware.Logging(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		opts.Metrics.Middleware(),
	)
	if opts.Timeout > 0 {
		root.Use(middleware.Timeout(opts.Timeout))
	}

	if opts.BasePath != "" {
		sub := chi.NewRouter()
		registerRoutes(sub, h, res)
		root.Mount(opts.BasePath, sub)
		return root
	}

	registerRoutes(root, h, res)
	return root
}

// registerRoutes — единая точка регистрации всех REST-эндпойнтов.
func registerRoutes(r chi.Router, h *handlers.Handlers, res middleware.Resolver) {
	r.Get("/health", h.Health)

	// auth
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)
	r.Get("/auth/refresh", h.Refresh)
	r.Post("/auth/refresh", h.Refresh)
	r.Get("/auth/account-activation/{token}", h.ActivateAccount)
	r.Post("/auth/reset-password-request", h.RequestPasswordReset)
	r.Get("/auth/reset-password/{token}", h.ResetPassword)
	r.Post("/auth/reset-password/{token}", h.ResetPassword)

	// Только для аутентифицированных пользователей с подтверждённым e-mail.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(res, true))

		r.Get("/auth/logout", h.Logout)
		r.Get("/auth/devices", h.ListDevices)
		r.Delete("/auth/devices/{id}", h.RevokeDevice)

		r.Get("/users", h.ListUsers)
		r.Get("/users/me", h.CurrentUser)
		r.Get("/users/{id}", h.GetUser)
		r.Patch("/users/{id}", h.UpdateUser)
		r.Delete("/users/{id}", h.DeleteUser)
	})
}
