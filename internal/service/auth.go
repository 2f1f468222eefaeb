package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pribylovaa/auth-core/internal/mail"
	"github.com/pribylovaa/auth-core/internal/models"
	"github.com/pribylovaa/auth-core/internal/pkg/log"
	"github.com/pribylovaa/auth-core/internal/pkg/password"
	"github.com/pribylovaa/auth-core/internal/pkg/redact"
	"github.com/pribylovaa/auth-core/internal/storage"
)

// Outbox принимает письма на фоновую отправку.
type Outbox interface {
	Enqueue(msg mail.Message) error
}

// Links строит ссылки из писем.
type Links struct {
	DomainURL string
	APIPrefix string
}

// For возвращает ссылку для одноразового токена.
func (l Links) For(typ models.ValidationTokenType, token string) string {
	path := "account-activation"
	if typ == models.ValidationPasswordReset {
		path = "reset-password"
	}

	host := strings.TrimSuffix(l.DomainURL, "/")
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "https://" + host
	}

	return fmt.Sprintf("%s%s/auth/%s/%s", host, l.APIPrefix, path, token)
}

// AuthService реализует сценарии регистрации, входа, обновления токенов,
// выхода, активации аккаунта и сброса пароля.
type AuthService struct {
	users    *UserDirectory
	tokens   *TokenManager
	devices  *DeviceRegistry
	hasher   *password.Hasher
	renderer *mail.Renderer
	outbox   Outbox
	links    Links
	now      func() time.Time
}

// NewAuthService собирает оркестратор из компонентов.
func NewAuthService(
	users *UserDirectory,
	tokens *TokenManager,
	devices *DeviceRegistry,
	hasher *password.Hasher,
	renderer *mail.Renderer,
	outbox Outbox,
	links Links,
) *AuthService {
	return &AuthService{
		users:    users,
		tokens:   tokens,
		devices:  devices,
		hasher:   hasher,
		renderer: renderer,
		outbox:   outbox,
		links:    links,
		now:      utcNow,
	}
}

// Register создаёт пользователя и ставит в очередь письмо подтверждения.
// Пользователь уже сохранён, поэтому сбой отправки письма только логируется.
func (s *AuthService) Register(ctx context.Context, in CreateUserInput) (*models.User, error) {
	const op = "service.auth.Register"

	user, err := s.users.Create(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sendValidationEmail(ctx, user, models.ValidationVerification); err != nil {
		log.From(ctx).Error("verification_mail_failed",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
			log.Err(err),
		)
	}

	return user, nil
}

// Login проверяет учётные данные, регистрирует устройство и выдаёт пару токенов.
func (s *AuthService) Login(ctx context.Context, client models.ClientInfo, email, pw string) (*models.Session, error) {
	const op = "service.auth.Login"

	lg := log.From(ctx)

	user, err := s.users.ByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			lg.Warn("login_unknown_email",
				slog.String("op", op),
				slog.String("email", redact.Email(email)),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !s.hasher.Verify(user.PasswordHash, pw) {
		lg.Warn("login_wrong_password",
			slog.String("op", op),
			slog.String("user_id", user.ID.String()),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	if !user.IsVerified() {
		return nil, fmt.Errorf("%s: %w", op, ErrEmailNotVerified)
	}

	deviceID, err := s.devices.ParseUserDevice(ctx, client, user.ID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	session, err := s.issueSession(ctx, user, func() (string, time.Time, error) {
		return s.tokens.CreateRefreshToken(ctx, user.ID, deviceID)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("user_logged_in",
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
		slog.String("device_id", deviceID.String()),
	)

	return session, nil
}

// RefreshAccessToken ротирует refresh-токен и выдаёт новую пару.
// Повторное предъявление уже ротированного токена — ErrTokenNotFound.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (*models.Session, error) {
	const op = "service.auth.RefreshAccessToken"

	if refreshToken == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}

	row, err := s.tokens.VerifyRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := s.users.ByID(ctx, row.UserID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	session, err := s.issueSession(ctx, user, func() (string, time.Time, error) {
		return s.tokens.RotateRefreshToken(ctx, row)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return session, nil
}

func (s *AuthService) issueSession(ctx context.Context, user *models.User, refresh func() (string, time.Time, error)) (*models.Session, error) {
	rt, rtExp, err := refresh()
	if err != nil {
		return nil, err
	}

	at, atExp, err := s.tokens.CreateAccessToken(ctx, user.ID, user.Role)
	if err != nil {
		return nil, err
	}

	return &models.Session{
		Tokens: models.TokenPair{
			AccessToken:      at,
			AccessExpiresAt:  atExp,
			RefreshToken:     rt,
			RefreshExpiresAt: rtExp,
		},
		User: user,
	}, nil
}

// Logout отзывает refresh-токен.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	const op = "service.auth.Logout"

	if refreshToken == "" {
		return fmt.Errorf("%s: %w", op, ErrTokenNotFound)
	}

	row, err := s.tokens.VerifyRefreshToken(ctx, refreshToken)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.tokens.InvalidateRefreshToken(ctx, row.JTI); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("user_logged_out",
		slog.String("op", op),
		slog.String("user_id", row.UserID.String()),
	)

	return nil
}

// ActivateAccount подтверждает e-mail по токену из письма.
// Просроченный токен заменяется новым, письмо отправляется повторно.
func (s *AuthService) ActivateAccount(ctx context.Context, token string) (models.FlowResult, error) {
	const op = "service.auth.ActivateAccount"

	vt, user, err := s.tokens.VerifyValidationToken(ctx, token)
	if err != nil {
		return models.FlowResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if vt.Type != models.ValidationVerification {
		return models.FlowResult{}, fmt.Errorf("%s: %w", op, ErrInvalidVerificationToken)
	}

	if vt.Expired(s.now()) {
		if err := s.sendValidationEmail(ctx, user, models.ValidationVerification); err != nil {
			return models.FlowResult{}, fmt.Errorf("%s: %w", op, err)
		}

		return models.FlowResult{Status: models.FlowActivationLinkResent}, nil
	}

	if !user.IsVerified() {
		now := s.now()
		if _, err := s.users.apply(ctx, user.ID, storage.UserUpdate{VerifiedAt: &now}); err != nil {
			return models.FlowResult{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	if err := s.tokens.InvalidateValidationToken(ctx, vt.Token); err != nil {
		return models.FlowResult{}, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("account_activated",
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
	)

	return models.FlowResult{Status: models.FlowAccountActivated}, nil
}

// RequestPasswordReset ставит в очередь письмо со ссылкой сброса пароля.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "service.auth.RequestPasswordReset"

	user, err := s.users.ByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.sendValidationEmail(ctx, user, models.ValidationPasswordReset); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// ResetPassword устанавливает новый пароль по токену из письма.
// Просроченный токен удаляется; при несовпадении паролей токен сохраняется.
func (s *AuthService) ResetPassword(ctx context.Context, token, pw, confirm string) (models.FlowResult, error) {
	const op = "service.auth.ResetPassword"

	vt, user, err := s.tokens.VerifyValidationToken(ctx, token)
	if err != nil {
		return models.FlowResult{}, fmt.Errorf("%s: %w", op, err)
	}
	if vt.Type != models.ValidationPasswordReset {
		return models.FlowResult{}, fmt.Errorf("%s: %w", op, ErrInvalidVerificationToken)
	}

	if vt.Expired(s.now()) {
		if err := s.tokens.InvalidateValidationToken(ctx, vt.Token); err != nil {
			return models.FlowResult{}, fmt.Errorf("%s: %w", op, err)
		}

		return models.FlowResult{Status: models.FlowResetLinkExpired}, nil
	}

	if pw != confirm {
		return models.FlowResult{Status: models.FlowPasswordMismatch}, nil
	}

	if err := validatePassword(pw); err != nil {
		return models.FlowResult{}, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := s.hasher.Hash(pw)
	if err != nil {
		return models.FlowResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if _, err := s.users.apply(ctx, user.ID, storage.UserUpdate{PasswordHash: &hash}); err != nil {
		return models.FlowResult{}, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.tokens.InvalidateValidationToken(ctx, vt.Token); err != nil {
		return models.FlowResult{}, fmt.Errorf("%s: %w", op, err)
	}

	log.From(ctx).Info("password_reset",
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
	)

	return models.FlowResult{Status: models.FlowPasswordReset}, nil
}

// sendValidationEmail выпускает одноразовый токен и ставит письмо в очередь.
// Переполнение очереди не считается ошибкой сценария.
func (s *AuthService) sendValidationEmail(ctx context.Context, user *models.User, typ models.ValidationTokenType) error {
	const op = "service.auth.sendValidationEmail"

	lg := log.From(ctx)

	vt, err := s.tokens.CreateValidationToken(ctx, user.ID, typ)
	if err != nil {
		return err
	}

	kind := mail.KindVerification
	if typ == models.ValidationPasswordReset {
		kind = mail.KindPasswordReset
	}

	msg, err := s.renderer.Render(kind, user.Email, mail.LinkData{
		FirstName: user.FirstName,
		Link:      s.links.For(typ, vt.Token),
	})
	if err != nil {
		lg.Error("mail_render_failed",
			slog.String("op", op),
			log.Err(err),
		)
		return err
	}

	if err := s.outbox.Enqueue(msg); err != nil {
		lg.Warn("mail_enqueue_failed",
			slog.String("op", op),
			slog.String("kind", string(kind)),
			slog.String("to", redact.Email(user.Email)),
			log.Err(err),
		)
	}

	return nil
}
