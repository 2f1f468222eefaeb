// service содержит бизнес-логику аутентификации и управления сессиями:
// выпуск и проверку токенов, реестр устройств, каталог пользователей
// с кэшем сессий и сценарии входа/регистрации/сброса пароля.
//
// Основные аспекты:
//   - Компоненты не хранят состояние запроса; экземпляры безопасны для
//     конкурентного использования при потокобезопасных хранилище и кэше.
//   - Ошибки возвращаются как sentinel-значения ниже, обёрнутые через %w;
//     транспорт маппит их в HTTP-статусы (см. комментарии к переменным).
//   - Штатные исходы одноразовых ссылок (ссылка истекла, пароли не совпали)
//     возвращаются как models.FlowResult, а не ошибкой.
package service

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials — неверная пара email/пароль или невалидный access-токен.
	// Транспорт: HTTP 401 + WWW-Authenticate: Bearer.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidVerificationToken — одноразовый токен не найден, чужого типа
	// или его владелец удалён. Транспорт: HTTP 400.
	ErrInvalidVerificationToken = errors.New("invalid verification token")

	// ErrInvalidRefreshToken — refresh-токен не разбирается, подпись неверна или нет jti.
	// Транспорт: HTTP 401.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrTokenExpired — срок действия refresh-токена истёк. Транспорт: HTTP 401.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenNotFound — refresh-токен не предъявлен или уже отозван. Транспорт: HTTP 404.
	ErrTokenNotFound = errors.New("token not found")

	// ErrTokenNotCreated — токен не удалось сохранить. Транспорт: HTTP 400.
	ErrTokenNotCreated = errors.New("token not created")

	// ErrTokenCollision — исчерпаны попытки сгенерировать уникальный идентификатор
	// токена. Транспорт: HTTP 500.
	ErrTokenCollision = errors.New("token collision")

	// ErrEmailNotVerified — e-mail пользователя не подтверждён. Транспорт: HTTP 403.
	ErrEmailNotVerified = errors.New("email not verified")

	// ErrDeviceNotFound — устройство не найдено или принадлежит другому пользователю.
	// Транспорт: HTTP 404.
	ErrDeviceNotFound = errors.New("device not found")

	// ErrDeviceNotCreated — устройство не удалось сохранить. Транспорт: HTTP 400.
	ErrDeviceNotCreated = errors.New("device not created")

	// ErrUserNotFound — пользователь не найден. Транспорт: HTTP 404.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists — e-mail уже занят. Транспорт: HTTP 400.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrUserNotCreated — пользователя не удалось создать. Транспорт: HTTP 400.
	ErrUserNotCreated = errors.New("user not created")

	// ErrUserRoleNotAllowed — действие доступно только администратору (или владельцу).
	// Транспорт: HTTP 403.
	ErrUserRoleNotAllowed = errors.New("user role not allowed")

	// ErrInvalidEmail — e-mail имеет некорректный формат. Транспорт: HTTP 400.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword — пароль пустой, короче минимальной длины или длиннее,
	// чем принимает bcrypt. Транспорт: HTTP 400.
	ErrWeakPassword = errors.New("password is too weak")

	// ErrInvalidArgument — прочие некорректные входные данные. Транспорт: HTTP 400.
	ErrInvalidArgument = errors.New("invalid argument")
)

const (
	// minPasswordLen — минимальная длина пароля в рунах.
	minPasswordLen = 8
	// maxPasswordBytes — предел bcrypt: более длинный пароль GenerateFromPassword отвергает.
	maxPasswordBytes = 72
)

func utcNow() time.Time { return time.Now().UTC() }
