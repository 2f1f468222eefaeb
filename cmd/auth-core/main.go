package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/pribylovaa/auth-core/internal/cache"
	"github.com/pribylovaa/auth-core/internal/codec"
	"github.com/pribylovaa/auth-core/internal/config"
	httpapi "github.com/pribylovaa/auth-core/internal/http"
	"github.com/pribylovaa/auth-core/internal/http/handlers"
	"github.com/pribylovaa/auth-core/internal/http/middleware"
	"github.com/pribylovaa/auth-core/internal/mail"
	logctx "github.com/pribylovaa/auth-core/internal/pkg/log"
	"github.com/pribylovaa/auth-core/internal/pkg/password"
	"github.com/pribylovaa/auth-core/internal/service"
	"github.com/pribylovaa/auth-core/internal/storage"
	"github.com/pribylovaa/auth-core/internal/storage/memory"
	"github.com/pribylovaa/auth-core/internal/storage/postgres"
)

// Константы для определения окружения.
const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to config file")
	flag.Parse()

	cfg := config.MustLoad(configPath)

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)
	log.Info("starting application", "env", cfg.Env)

	if err := run(cfg, log); err != nil {
		log.Error("service_failed", logctx.Err(err))
		os.Exit(1)
	}

	log.Info("service_stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	// Корневой контекст по сигналам.
	rootCtx, rootCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCancel()

	str, err := openStorage(rootCtx, cfg.DB, log)
	if err != nil {
		return err
	}
	defer str.Close()

	cacheCtx, cacheCancel := context.WithTimeout(rootCtx, 10*time.Second)
	cc, err := cache.New(cacheCtx, cache.Config{
		Driver:     cfg.Cache.Driver,
		RedisURL:   cfg.Cache.RedisURL,
		Prefix:     cfg.Cache.Prefix,
		DefaultTTL: cfg.Cache.TTL,
	})
	cacheCancel()
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	defer func() { _ = cc.Close() }()
	log.Info("cache_connected", slog.String("driver", cfg.Cache.Driver))

	cd, err := codec.New(cfg.Auth.Secret, cfg.Auth.Algorithm)
	if err != nil {
		return err
	}

	renderer, err := mail.NewRenderer()
	if err != nil {
		return err
	}

	queue := mail.NewQueue(newSender(cfg.Mail, log), cfg.Mail.QueueSize, cfg.Mail.Workers, log)
	queue.Start()

	// Сервисы.
	hasher := password.New(cfg.Auth.BcryptCost)
	tokens := service.NewTokenManager(str, cd, service.TokenTTL{
		Access:        cfg.Auth.AccessTokenTTL,
		Refresh:       cfg.Auth.RefreshTokenTTL,
		Verification:  cfg.Auth.VerificationTokenTTL,
		PasswordReset: cfg.Auth.PasswordResetTokenTTL,
	})
	users := service.NewUserDirectory(str, cc, hasher)
	devices := service.NewDeviceRegistry(str)
	principals := service.NewPrincipals(tokens, str, cc, cfg.Cache.TTL)
	auth := service.NewAuthService(users, tokens, devices, hasher, renderer, queue, service.Links{
		DomainURL: cfg.App.DomainURL,
		APIPrefix: cfg.HTTP.APIPrefix,
	})
	log.Info("service_initialized")

	metrics, err := middleware.NewMetrics(prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}

	h := handlers.New(handlers.Options{
		Auth:       auth,
		Users:      users,
		Devices:    devices,
		DB:         str,
		Cache:      cc,
		App:        handlers.AppInfo{Name: cfg.App.Name, Version: cfg.App.Version, Environment: cfg.Env},
		CookiePath: cfg.HTTP.APIPrefix + "/auth",
	})

	apiSrv := &http.Server{
		Addr: cfg.HTTP.Addr(),
		Handler: httpapi.NewRouter(h, principals, httpapi.Options{
			Logger:         log,
			Timeout:        cfg.Timeouts.Service,
			BasePath:       cfg.HTTP.APIPrefix,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			TrustProxy:     cfg.HTTP.TrustProxy,
			Metrics:        metrics,
		}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var ready atomic.Bool
	opsSrv := &http.Server{
		Addr:              cfg.Ops.Addr(),
		Handler:           opsMux(&ready),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(rootCtx)

	g.Go(func() error { return serve(apiSrv, "api", log) })
	g.Go(func() error { return serve(opsSrv, "ops", log) })
	g.Go(func() error {
		runRefreshJanitor(gctx, tokens, log, cfg.Janitor.Period)
		return nil
	})

	ready.Store(true)

	// Ожидание сигнала завершения или фатальной ошибки сервера.
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown_requested")
		ready.Store(false)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
		defer cancel()

		if err := apiSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("api_force_stop", logctx.Err(err))
		}
		if err := queue.Close(shutdownCtx); err != nil {
			log.Warn("mail_queue_drain_timeout", logctx.Err(err))
		}
		if err := opsSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("ops_force_stop", logctx.Err(err))
		}

		return nil
	})

	return g.Wait()
}

// openStorage подключает хранилище по драйверу и при необходимости применяет миграции.
func openStorage(ctx context.Context, cfg config.DBConfig, log *slog.Logger) (storage.Storage, error) {
	if cfg.Driver == "memory" {
		log.Warn("storage_in_memory", slog.String("hint", "data is lost on restart"))
		return memory.New(), nil
	}

	// Подключение к БД c таймаутом.
	dbCtx, dbCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dbCancel()

	str, err := postgres.New(dbCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Info("postgres_connected")

	if cfg.MigrateOnStart {
		if err := str.Migrate(ctx); err != nil {
			str.Close()
			return nil, err
		}
		log.Info("postgres_migrated")
	}

	return str, nil
}

func newSender(cfg config.MailConfig, log *slog.Logger) mail.Sender {
	if cfg.Driver == "smtp" {
		return mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			Username: cfg.Username,
			Password: cfg.Password,
			From:     cfg.From,
			FromName: cfg.FromName,
			TLSMode:  cfg.TLSMode,
		})
	}

	return mail.NewLogSender(log)
}

// opsMux — служебные эндпойнты: liveness, readiness и метрики.
func opsMux(ready *atomic.Bool) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/livez", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if ready.Load() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		http.Error(w, "not ready", http.StatusServiceUnavailable)
	})

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func serve(srv *http.Server, name string, log *slog.Logger) error {
	log.Info("http_listen_start", slog.String("server", name), slog.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s server: %w", name, err)
	}

	return nil
}

// setupLogger настраивает slog по окружению.
func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	}

	return log
}

// runRefreshJanitor периодически удаляет просроченные refresh-токены.
// period <= 0 отключает очистку. Блокирует до отмены ctx.
func runRefreshJanitor(ctx context.Context, tokens *service.TokenManager, log *slog.Logger, period time.Duration) {
	if period <= 0 {
		return
	}

	t := time.NewTicker(period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := tokens.PurgeExpiredRefreshTokens(ctx)
			if err != nil {
				log.Error("refresh_janitor_failed", logctx.Err(err))
				continue
			}
			log.Debug("refresh_janitor_done", slog.Int64("deleted", n))
		}
	}
}
