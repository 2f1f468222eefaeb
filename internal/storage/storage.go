// storage описывает контракты хранилища пользователей, токенов и устройств.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/pribylovaa/auth-core/internal/models"
)

//go:generate mockgen -source=storage.go -destination=../../mocks/storage.go -package=mocks

var (
	// ErrNotFound — запись не найдена (пользователь/токен/устройство).
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists — нарушение уникальности (email/jti/token/устройство).
	ErrAlreadyExists = errors.New("already exists")
)

// UserUpdate — частичное обновление пользователя.
// Записываются только непустые pointer-поля; updated_at сдвигается всегда.
type UserUpdate struct {
	FirstName    *string
	LastName     *string
	Email        *string
	PasswordHash *string
	Role         *models.Role
	VerifiedAt   *time.Time
}

// Empty сообщает, что обновлять нечего.
func (u UserUpdate) Empty() bool {
	return u.FirstName == nil && u.LastName == nil && u.Email == nil &&
		u.PasswordHash == nil && u.Role == nil && u.VerifiedAt == nil
}

// UserStorage выполняет операции над пользователями.
type UserStorage interface {
	// SaveUser создаёт нового пользователя.
	SaveUser(ctx context.Context, user *models.User) error
	// UserByEmail находит пользователя по email (без учёта регистра).
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	// UserByID находит пользователя по ID.
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	// ListUsers возвращает пользователей, упорядоченных по created_at.
	ListUsers(ctx context.Context, limit, offset int) ([]models.User, error)
	// UpdateUser применяет частичное обновление и возвращает новую версию.
	UpdateUser(ctx context.Context, id uuid.UUID, update UserUpdate) (*models.User, error)
	// DeleteUser удаляет пользователя вместе с его токенами и устройствами.
	DeleteUser(ctx context.Context, id uuid.UUID) error
}

// RefreshTokenStorage выполняет операции над refresh-токенами.
type RefreshTokenStorage interface {
	// SaveRefreshToken сохраняет новый refresh-токен.
	SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error
	// RefreshTokenByJTI находит refresh-токен по jti.
	RefreshTokenByJTI(ctx context.Context, jti string) (*models.RefreshToken, error)
	// DeleteRefreshToken удаляет refresh-токен; ErrNotFound, если его нет.
	DeleteRefreshToken(ctx context.Context, jti string) error
	// RotateRefreshToken в одной транзакции сохраняет next и удаляет oldJTI.
	// Если oldJTI уже удалён, ничего не меняет и возвращает ErrNotFound.
	RotateRefreshToken(ctx context.Context, oldJTI string, next *models.RefreshToken) error
	// DeleteExpiredTokens удаляет все просроченные refresh-токены.
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)
}

// ValidationTokenStorage выполняет операции над одноразовыми токенами.
type ValidationTokenStorage interface {
	// ReplaceValidationToken атомарно сохраняет token и удаляет прочие токены
	// того же пользователя и типа. Совпадение значения с чужим токеном — ErrAlreadyExists,
	// отсутствующий пользователь — ErrNotFound.
	ReplaceValidationToken(ctx context.Context, token *models.ValidationToken) error
	// ValidationTokenByToken находит токен по его значению.
	ValidationTokenByToken(ctx context.Context, token string) (*models.ValidationToken, error)
	// ValidationTokenByUser находит токен пользователя заданного типа.
	ValidationTokenByUser(ctx context.Context, userID uuid.UUID, typ models.ValidationTokenType) (*models.ValidationToken, error)
	// DeleteValidationToken удаляет токен; ErrNotFound, если его нет.
	DeleteValidationToken(ctx context.Context, token string) error
}

// DeviceStorage выполняет операции над устройствами.
type DeviceStorage interface {
	// DeviceByFingerprint находит устройство по (user-agent, ip, user).
	DeviceByFingerprint(ctx context.Context, userAgent, ip string, userID uuid.UUID) (*models.Device, error)
	// DeviceByID находит устройство по ID.
	DeviceByID(ctx context.Context, id uuid.UUID) (*models.Device, error)
	// SaveDevice сохраняет новое устройство.
	SaveDevice(ctx context.Context, device *models.Device) error
	// TouchDevice обновляет last_seen.
	TouchDevice(ctx context.Context, id uuid.UUID, lastSeen time.Time) error
	// DevicesByUser возвращает устройства пользователя, свежие первыми.
	DevicesByUser(ctx context.Context, userID uuid.UUID) ([]models.Device, error)
	// DeleteDevice удаляет устройство и привязанные к нему refresh-токены.
	DeleteDevice(ctx context.Context, id uuid.UUID) error
}

// Storage задаёт контракт работы с БД.
type Storage interface {
	UserStorage
	RefreshTokenStorage
	ValidationTokenStorage
	DeviceStorage
	Ping(ctx context.Context) error
	Close()
}
