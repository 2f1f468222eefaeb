package models

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken — серверная запись refresh-токена.
// Сам токен (подписанный JWT) не хранится: запись адресуется по JTI.
type RefreshToken struct {
	JTI       string
	UserID    uuid.UUID
	DeviceID  uuid.UUID
	ExpiresAt time.Time
}

// Expired сообщает, истёк ли токен к моменту now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// ValidationTokenType — назначение одноразового токена.
type ValidationTokenType string

const (
	ValidationVerification  ValidationTokenType = "verification"
	ValidationPasswordReset ValidationTokenType = "password_reset"
)

// Valid сообщает, известен ли тип.
func (t ValidationTokenType) Valid() bool {
	return t == ValidationVerification || t == ValidationPasswordReset
}

// ValidationToken — одноразовый токен подтверждения e-mail или сброса пароля.
// На пользователя приходится не более одного токена каждого типа.
type ValidationToken struct {
	UserID    uuid.UUID
	Token     string
	Type      ValidationTokenType
	ExpiresAt time.Time
}

// Expired сообщает, истёк ли токен к моменту now.
func (t *ValidationToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// TokenPair — пара токенов, выдаваемая при входе и обновлении.
//
// Описание:
//   - AccessToken — короткоживущий JWT для доступа к API;
//   - RefreshToken — подписанный JWT, привязанный к устройству; клиент получает
//     его в HTTP-only cookie;
//   - *ExpiresAt — моменты истечения (UTC).
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Session — результат входа или обновления токенов.
type Session struct {
	Tokens TokenPair
	User   *User
}
