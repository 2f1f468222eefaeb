package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/pribylovaa/auth-core/internal/codec"
	"github.com/pribylovaa/auth-core/internal/models"
	"github.com/pribylovaa/auth-core/internal/pkg/log"
	"github.com/pribylovaa/auth-core/internal/pkg/redact"
	"github.com/pribylovaa/auth-core/internal/storage"
)

// maxTokenAttempts — число попыток сгенерировать уникальный jti/токен.
const maxTokenAttempts = 5

// Значения claim typ: один секрет подписывает оба вида токенов.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AccessClaims — полезная нагрузка access-токена.
type AccessClaims struct {
	Type string      `json:"typ"`
	Role models.Role `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims — полезная нагрузка refresh-токена; jti хранится в ID.
type RefreshClaims struct {
	Type     string `json:"typ"`
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// TokenStore — часть хранилища, нужная менеджеру токенов.
type TokenStore interface {
	storage.RefreshTokenStorage
	storage.ValidationTokenStorage
	UserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// TokenTTL — сроки жизни токенов.
type TokenTTL struct {
	Access        time.Duration
	Refresh       time.Duration
	Verification  time.Duration
	PasswordReset time.Duration
}

// TokenManager выпускает, проверяет, ротирует и отзывает токены.
type TokenManager struct {
	store TokenStore
	codec *codec.Codec
	ttl   TokenTTL

	now    func() time.Time
	newJTI func() string
}

// NewTokenManager создаёт менеджер токенов.
func NewTokenManager(store TokenStore, c *codec.Codec, ttl TokenTTL) *TokenManager {
	return &TokenManager{
		store:  store,
		codec:  c,
		ttl:    ttl,
		now:    utcNow,
		newJTI: func() string { return ulid.Make().String() },
	}
}

// CreateAccessToken подписывает access-токен для пользователя.
func (m *TokenManager) CreateAccessToken(ctx context.Context, userID uuid.UUID, role models.Role) (string, time.Time, error) {
	const op = "service.tokens.CreateAccessToken"

	now := m.now()
	exp := now.Add(m.ttl.Access)

	signed, err := m.codec.Sign(AccessClaims{
		Type: tokenTypeAccess,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	if err != nil {
		log.From(ctx).Error("access_token_sign_failed",
			slog.String("op", op),
			log.Err(err),
		)
		return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
	}

	return signed, exp, nil
}

// VerifyAccessToken проверяет access-токен и возвращает его claims.
// Любая ошибка (подпись, срок, формат, typ, subject) — ErrInvalidCredentials.
func (m *TokenManager) VerifyAccessToken(token string) (*AccessClaims, uuid.UUID, error) {
	const op = "service.tokens.VerifyAccessToken"

	var claims AccessClaims
	if err := m.codec.Verify(token, &claims); err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}
	if claims.Type != tokenTypeAccess {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, uuid.Nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	return &claims, userID, nil
}

// CreateRefreshToken сохраняет запись refresh-токена и подписывает JWT с её jti.
// Запись сохраняется до подписи: предъявленный токен всегда имеет запись.
func (m *TokenManager) CreateRefreshToken(ctx context.Context, userID, deviceID uuid.UUID) (string, time.Time, error) {
	const op = "service.tokens.CreateRefreshToken"

	lg := log.From(ctx)

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		row := &models.RefreshToken{
			JTI:       m.newJTI(),
			UserID:    userID,
			DeviceID:  deviceID,
			ExpiresAt: m.now().Add(m.ttl.Refresh),
		}

		if err := m.store.SaveRefreshToken(ctx, row); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				continue
			}
			if errors.Is(err, storage.ErrNotFound) {
				lg.Warn("refresh_token_owner_missing",
					slog.String("op", op),
					slog.String("user_id", userID.String()),
				)
				return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrTokenNotCreated)
			}

			lg.Error("save_refresh_token_failed",
				slog.String("op", op),
				log.Err(err),
			)
			return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
		}

		signed, err := m.signRefresh(row)
		if err != nil {
			lg.Error("refresh_token_sign_failed",
				slog.String("op", op),
				log.Err(err),
			)
			return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
		}

		return signed, row.ExpiresAt, nil
	}

	lg.Error("refresh_collision_exceeded", slog.String("op", op))

	return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrTokenCollision)
}

// VerifyRefreshToken разбирает refresh-токен и находит его запись.
//
// Порядок проверок: подпись и срок JWT, typ, наличие jti, наличие записи,
// срок записи.
func (m *TokenManager) VerifyRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	const op = "service.tokens.VerifyRefreshToken"

	lg := log.From(ctx)

	var claims RefreshClaims
	if err := m.codec.Verify(token, &claims); err != nil {
		if errors.Is(err, codec.ErrExpired) {
			return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
		}

		lg.Warn("refresh_decode_failed",
			slog.String("op", op),
			log.Err(err),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
	}

	if claims.Type != tokenTypeRefresh || claims.ID == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidRefreshToken)
	}

	row, err := m.store.RefreshTokenByJTI(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			lg.Warn("refresh_lookup_not_found",
				slog.String("op", op),
				slog.String("jti", redact.ID(claims.ID)),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
		}

		lg.Error("refresh_lookup_failed",
			slog.String("op", op),
			log.Err(err),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if row.Expired(m.now()) {
		lg.Warn("refresh_expired",
			slog.String("op", op),
			slog.String("user_id", row.UserID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrTokenExpired)
	}

	return row, nil
}

// InvalidateRefreshToken удаляет запись refresh-токена.
func (m *TokenManager) InvalidateRefreshToken(ctx context.Context, jti string) error {
	const op = "service.tokens.InvalidateRefreshToken"

	if err := m.store.DeleteRefreshToken(ctx, jti); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrTokenNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// RotateRefreshToken атомарно заменяет запись old новой и подписывает
// новый refresh-токен для того же устройства. Из конкурирующих ротаций
// одного токена успешна ровно одна, остальные получают ErrTokenNotFound.
func (m *TokenManager) RotateRefreshToken(ctx context.Context, old *models.RefreshToken) (string, time.Time, error) {
	const op = "service.tokens.RotateRefreshToken"

	lg := log.From(ctx)

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		next := &models.RefreshToken{
			JTI:       m.newJTI(),
			UserID:    old.UserID,
			DeviceID:  old.DeviceID,
			ExpiresAt: m.now().Add(m.ttl.Refresh),
		}

		if err := m.store.RotateRefreshToken(ctx, old.JTI, next); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				continue
			}
			if errors.Is(err, storage.ErrNotFound) {
				lg.Warn("refresh_rotate_lost",
					slog.String("op", op),
					slog.String("user_id", old.UserID.String()),
					slog.String("jti", redact.ID(old.JTI)),
				)
				return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
			}

			lg.Error("refresh_rotate_failed",
				slog.String("op", op),
				log.Err(err),
			)
			return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
		}

		signed, err := m.signRefresh(next)
		if err != nil {
			lg.Error("refresh_token_sign_failed",
				slog.String("op", op),
				log.Err(err),
			)
			return "", time.Time{}, fmt.Errorf("%s: %w", op, err)
		}

		return signed, next.ExpiresAt, nil
	}

	lg.Error("refresh_collision_exceeded", slog.String("op", op))

	return "", time.Time{}, fmt.Errorf("%s: %w", op, ErrTokenCollision)
}

// PurgeExpiredRefreshTokens удаляет просроченные записи refresh-токенов.
func (m *TokenManager) PurgeExpiredRefreshTokens(ctx context.Context) (int64, error) {
	const op = "service.tokens.PurgeExpiredRefreshTokens"

	n, err := m.store.DeleteExpiredTokens(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return n, nil
}

func (m *TokenManager) signRefresh(row *models.RefreshToken) (string, error) {
	return m.codec.Sign(RefreshClaims{
		Type:     tokenTypeRefresh,
		DeviceID: row.DeviceID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        row.JTI,
			Subject:   row.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(m.now()),
			ExpiresAt: jwt.NewNumericDate(row.ExpiresAt),
		},
	})
}

// CreateValidationToken выпускает одноразовый токен типа typ.
// Хранилище атомарно заменяет им прежний токен того же типа у пользователя.
func (m *TokenManager) CreateValidationToken(ctx context.Context, userID uuid.UUID, typ models.ValidationTokenType) (*models.ValidationToken, error) {
	const op = "service.tokens.CreateValidationToken"

	lg := log.From(ctx)

	if !typ.Valid() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	ttl := m.ttl.Verification
	if typ == models.ValidationPasswordReset {
		ttl = m.ttl.PasswordReset
	}

	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		value, err := randomToken()
		if err != nil {
			lg.Error("validation_rand_failed",
				slog.String("op", op),
				log.Err(err),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		vt := &models.ValidationToken{
			UserID:    userID,
			Token:     value,
			Type:      typ,
			ExpiresAt: m.now().Add(ttl),
		}

		if err := m.store.ReplaceValidationToken(ctx, vt); err != nil {
			if errors.Is(err, storage.ErrAlreadyExists) {
				continue
			}
			if errors.Is(err, storage.ErrNotFound) {
				return nil, fmt.Errorf("%s: %w", op, ErrTokenNotCreated)
			}

			lg.Error("save_validation_token_failed",
				slog.String("op", op),
				log.Err(err),
			)
			return nil, fmt.Errorf("%s: %w", op, err)
		}

		return vt, nil
	}

	lg.Error("validation_collision_exceeded", slog.String("op", op))

	return nil, fmt.Errorf("%s: %w", op, ErrTokenCollision)
}

// VerifyValidationToken находит одноразовый токен и его владельца.
// Срок действия не проверяется: это решает вызывающий сценарий.
func (m *TokenManager) VerifyValidationToken(ctx context.Context, token string) (*models.ValidationToken, *models.User, error) {
	const op = "service.tokens.VerifyValidationToken"

	if token == "" {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidVerificationToken)
	}

	vt, err := m.store.ValidationTokenByToken(ctx, token)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidVerificationToken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := m.store.UserByID(ctx, vt.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidVerificationToken)
		}

		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	return vt, user, nil
}

// InvalidateValidationToken удаляет одноразовый токен.
func (m *TokenManager) InvalidateValidationToken(ctx context.Context, token string) error {
	const op = "service.tokens.InvalidateValidationToken"

	if err := m.store.DeleteValidationToken(ctx, token); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrInvalidVerificationToken)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// randomToken — 32 случайных байта в base64url без паддинга.
func randomToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
