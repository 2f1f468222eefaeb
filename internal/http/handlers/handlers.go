package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/auth-core/internal/models"
	"github.com/pribylovaa/auth-core/internal/service"
)

// AuthService — сценарии аутентификации, которые обслуживает HTTP-слой.
type AuthService interface {
	Register(ctx context.Context, in service.CreateUserInput) (*models.User, error)
	Login(ctx context.Context, client models.ClientInfo, email, password string) (*models.Session, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*models.Session, error)
	Logout(ctx context.Context, refreshToken string) error
	ActivateAccount(ctx context.Context, token string) (models.FlowResult, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, password, confirm string) (models.FlowResult, error)
}

// UserDirectory — управление пользователями с проверкой прав actor.
type UserDirectory interface {
	List(ctx context.Context, actor *models.User, limit, offset int) ([]models.User, error)
	Get(ctx context.Context, id uuid.UUID, actor *models.User) (*models.User, error)
	Update(ctx context.Context, id uuid.UUID, patch service.UserPatch, actor *models.User) (*models.User, error)
	Delete(ctx context.Context, id uuid.UUID, actor *models.User) error
}

// DeviceRegistry — устройства пользователя.
type DeviceRegistry interface {
	DevicesByUserID(ctx context.Context, userID uuid.UUID) ([]models.Device, error)
	RevokeDevice(ctx context.Context, userID, deviceID uuid.UUID) error
}

// Pinger — зависимость, доступность которой показывает /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// AppInfo — сведения о сервисе для /health.
type AppInfo struct {
	Name        string
	Version     string
	Environment string
}

// Options — зависимости хендлеров.
type Options struct {
	Auth    AuthService
	Users   UserDirectory
	Devices DeviceRegistry
	DB      Pinger
	Cache   Pinger
	App     AppInfo

	// CookiePath — путь refresh-cookie, обычно "<api_prefix>/auth".
	CookiePath string
	// Stats — источник загрузки системы; nil — gopsutil.
	Stats StatsFunc
}

// Handlers агрегирует зависимости HTTP-слоя.
type Handlers struct {
	auth       AuthService
	users      UserDirectory
	devices    DeviceRegistry
	db         Pinger
	cache      Pinger
	app        AppInfo
	cookiePath string
	stats      StatsFunc
	now        func() time.Time
}

func New(opts Options) *Handlers {
	h := &Handlers{
		auth:       opts.Auth,
		users:      opts.Users,
		devices:    opts.Devices,
		db:         opts.DB,
		cache:      opts.Cache,
		app:        opts.App,
		cookiePath: opts.CookiePath,
		stats:      opts.Stats,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if h.cookiePath == "" {
		h.cookiePath = "/"
	}
	if h.stats == nil {
		h.stats = SystemStats
	}

	return h
}

// maxBodyBytes ограничивает размер JSON-тела запроса.
const maxBodyBytes = 1 << 20

// writeJSON — единый ответ JSON с нужным Content-Type.
// Ошибки выводим через apierrors.WriteError.
func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

// decodeStrict — строгий JSON-декодер: запрещаем неизвестные поля и хвост после объекта.
func decodeStrict(w http.ResponseWriter, r *http.Request, value any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(value); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after json object")
	}

	return nil
}

// clientInfo извлекает user-agent и IP клиента.
// При trust_proxy RemoteAddr уже переписан chi RealIP и может не содержать порт.
func clientInfo(r *http.Request) models.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}

	return models.ClientInfo{UserAgent: r.UserAgent(), IP: ip}
}

type messageResponse struct {
	Message string `json:"message"`
}
