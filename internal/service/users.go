package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/pribylovaa/auth-core/internal/cache"
	"github.com/pribylovaa/auth-core/internal/models"
	"github.com/pribylovaa/auth-core/internal/pkg/log"
	"github.com/pribylovaa/auth-core/internal/pkg/password"
	"github.com/pribylovaa/auth-core/internal/pkg/redact"
	"github.com/pribylovaa/auth-core/internal/storage"
)

// Лимиты постраничной выдачи пользователей.
const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// CreateUserInput — данные регистрации.
type CreateUserInput struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
}

// UserPatch — частичное изменение пользователя через API.
// Role может менять только администратор.
type UserPatch struct {
	FirstName *string
	LastName  *string
	Email     *string
	Password  *string
	Role      *models.Role
}

// UserDirectory — каталог пользователей: создание, поиск, изменение и удаление
// с проверкой прав и инвалидацией кэша сессий.
type UserDirectory struct {
	store  storage.UserStorage
	cache  cache.Client
	hasher *password.Hasher
	now    func() time.Time
}

// NewUserDirectory создаёт каталог пользователей.
func NewUserDirectory(store storage.UserStorage, c cache.Client, hasher *password.Hasher) *UserDirectory {
	return &UserDirectory{store: store, cache: c, hasher: hasher, now: utcNow}
}

// Create регистрирует пользователя с ролью user и неподтверждённым e-mail.
func (d *UserDirectory) Create(ctx context.Context, in CreateUserInput) (*models.User, error) {
	const op = "service.users.Create"

	lg := log.From(ctx)

	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := validatePassword(in.Password); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	hash, err := d.hasher.Hash(in.Password)
	if err != nil {
		lg.Error("password_hash_failed",
			slog.String("op", op),
			log.Err(err),
		)
		return nil, fmt.Errorf("%s: %w", op, ErrUserNotCreated)
	}

	now := d.now()
	user := &models.User{
		ID:           uuid.New(),
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := d.store.SaveUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			lg.Warn("register_email_taken",
				slog.String("op", op),
				slog.String("email", redact.Email(email)),
			)
			return nil, fmt.Errorf("%s: %w", op, ErrUserAlreadyExists)
		}

		lg.Error("save_user_failed",
			slog.String("op", op),
			log.Err(err),
		)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	lg.Info("user_created",
		slog.String("op", op),
		slog.String("user_id", user.ID.String()),
	)

	return user, nil
}

// ByID возвращает пользователя по ID.
func (d *UserDirectory) ByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	const op = "service.users.ByID"

	user, err := d.store.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// ByEmail возвращает пользователя по e-mail (без учёта регистра).
func (d *UserDirectory) ByEmail(ctx context.Context, email string) (*models.User, error) {
	const op = "service.users.ByEmail"

	user, err := d.store.UserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// List возвращает страницу пользователей; доступно только администратору.
func (d *UserDirectory) List(ctx context.Context, actor *models.User, limit, offset int) ([]models.User, error) {
	const op = "service.users.List"

	if !actor.IsAdmin() {
		return nil, fmt.Errorf("%s: %w", op, ErrUserRoleNotAllowed)
	}

	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}

	users, err := d.store.ListUsers(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return users, nil
}

// Get возвращает пользователя id; доступно владельцу и администратору.
func (d *UserDirectory) Get(ctx context.Context, id uuid.UUID, actor *models.User) (*models.User, error) {
	const op = "service.users.Get"

	if err := authorize(actor, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := d.ByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// Update применяет patch к пользователю id; доступно владельцу и администратору.
func (d *UserDirectory) Update(ctx context.Context, id uuid.UUID, patch UserPatch, actor *models.User) (*models.User, error) {
	const op = "service.users.Update"

	if err := authorize(actor, id); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if patch.Role != nil && !actor.IsAdmin() {
		return nil, fmt.Errorf("%s: %w", op, ErrUserRoleNotAllowed)
	}

	upd, err := d.buildUpdate(patch)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if upd.Empty() {
		return d.Get(ctx, id, actor)
	}

	user, err := d.apply(ctx, id, upd)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

func (d *UserDirectory) buildUpdate(patch UserPatch) (storage.UserUpdate, error) {
	var upd storage.UserUpdate

	if patch.FirstName != nil {
		v := strings.TrimSpace(*patch.FirstName)
		upd.FirstName = &v
	}
	if patch.LastName != nil {
		v := strings.TrimSpace(*patch.LastName)
		upd.LastName = &v
	}
	if patch.Email != nil {
		email, err := normalizeEmail(*patch.Email)
		if err != nil {
			return upd, err
		}
		upd.Email = &email
	}
	if patch.Password != nil {
		if err := validatePassword(*patch.Password); err != nil {
			return upd, err
		}
		hash, err := d.hasher.Hash(*patch.Password)
		if err != nil {
			return upd, err
		}
		upd.PasswordHash = &hash
	}
	if patch.Role != nil {
		if !patch.Role.Valid() {
			return upd, ErrInvalidArgument
		}
		role := *patch.Role
		upd.Role = &role
	}

	return upd, nil
}

// Delete удаляет пользователя id; доступно владельцу и администратору.
func (d *UserDirectory) Delete(ctx context.Context, id uuid.UUID, actor *models.User) error {
	const op = "service.users.Delete"

	if err := authorize(actor, id); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := d.store.DeleteUser(ctx, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("%s: %w", op, ErrUserNotFound)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	d.invalidate(ctx, id)

	log.From(ctx).Info("user_deleted",
		slog.String("op", op),
		slog.String("user_id", id.String()),
		slog.String("actor_id", actor.ID.String()),
	)

	return nil
}

// apply записывает изменение без проверки прав и сбрасывает кэш пользователя.
func (d *UserDirectory) apply(ctx context.Context, id uuid.UUID, upd storage.UserUpdate) (*models.User, error) {
	user, err := d.store.UpdateUser(ctx, id, upd)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			return nil, ErrUserNotFound
		case errors.Is(err, storage.ErrAlreadyExists):
			return nil, ErrUserAlreadyExists
		default:
			return nil, err
		}
	}

	d.invalidate(ctx, id)

	return user, nil
}

func (d *UserDirectory) invalidate(ctx context.Context, id uuid.UUID) {
	if err := d.cache.Delete(ctx, userCacheKey(id)); err != nil {
		log.From(ctx).Error("cache_invalidate_failed",
			slog.String("op", "service.users.invalidate"),
			slog.String("user_id", id.String()),
			log.Err(err),
		)
	}
}

// authorize пропускает администратора и владельца записи.
func authorize(actor *models.User, id uuid.UUID) error {
	if actor == nil {
		return ErrInvalidCredentials
	}
	if actor.IsAdmin() || actor.ID == id {
		return nil
	}

	return ErrUserRoleNotAllowed
}

// normalizeEmail проверяет формат e-mail и приводит его к нижнему регистру.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}

	return email, nil
}

// validatePassword проверяет длину пароля: не меньше minPasswordLen рун
// и не больше maxPasswordBytes байт.
func validatePassword(pw string) error {
	if strings.TrimSpace(pw) == "" || utf8.RuneCountInString(pw) < minPasswordLen {
		return ErrWeakPassword
	}
	if len(pw) > maxPasswordBytes {
		return ErrWeakPassword
	}

	return nil
}
