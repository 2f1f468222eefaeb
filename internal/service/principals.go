package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/pribylovaa/auth-core/internal/cache"
	"github.com/pribylovaa/auth-core/internal/models"
	"github.com/pribylovaa/auth-core/internal/pkg/log"
	"github.com/pribylovaa/auth-core/internal/storage"
)

func userCacheKey(id uuid.UUID) string {
	return "user_id:" + id.String()
}

// Principals определяет пользователя по access-токену через кэш сессий.
//
// Особенности:
//   - cache-aside: промах или ошибка кэша ведут в хранилище, найденный
//     пользователь кладётся в кэш на ttl;
//   - одновременные промахи по одному пользователю схлопываются в один запрос к хранилищу;
//   - отсутствие пользователя не кэшируется;
//   - сброс ключа выполняет UserDirectory при изменении и удалении.
type Principals struct {
	tokens *TokenManager
	users  storage.UserStorage
	cache  cache.Client
	ttl    time.Duration
	fill   singleflight.Group
}

// NewPrincipals создаёт резолвер пользователей.
func NewPrincipals(tokens *TokenManager, users storage.UserStorage, c cache.Client, ttl time.Duration) *Principals {
	return &Principals{tokens: tokens, users: users, cache: c, ttl: ttl}
}

// Resolve возвращает пользователя, которому выдан access-токен.
// Невалидный токен и удалённый пользователь — ErrInvalidCredentials.
func (p *Principals) Resolve(ctx context.Context, accessToken string) (*models.User, error) {
	const op = "service.principals.Resolve"

	_, userID, err := p.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	user, err := p.lookup(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return user, nil
}

// ResolveActive как Resolve, но дополнительно требует подтверждённый e-mail.
func (p *Principals) ResolveActive(ctx context.Context, accessToken string) (*models.User, error) {
	const op = "service.principals.ResolveActive"

	user, err := p.Resolve(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if !user.IsVerified() {
		return nil, fmt.Errorf("%s: %w", op, ErrEmailNotVerified)
	}

	return user, nil
}

func (p *Principals) lookup(ctx context.Context, id uuid.UUID) (*models.User, error) {
	lg := log.From(ctx)
	key := userCacheKey(id)

	raw, err := p.cache.Get(ctx, key)
	switch {
	case err == nil:
		var user models.User
		if err := json.Unmarshal(raw, &user); err == nil {
			return &user, nil
		}
		lg.Warn("cache_entry_corrupted", slog.String("key", key))
	case !errors.Is(err, cache.ErrNotFound):
		lg.Warn("cache_get_failed",
			slog.String("key", key),
			log.Err(err),
		)
	}

	// Заполнение разделяется между вызовами и не зависит от отмены первого из них.
	fillCtx := context.WithoutCancel(ctx)

	ch := p.fill.DoChan(key, func() (any, error) {
		user, err := p.users.UserByID(fillCtx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrInvalidCredentials
			}

			return nil, err
		}

		if b, err := json.Marshal(user); err == nil {
			if err := p.cache.Set(fillCtx, key, b, p.ttl); err != nil {
				lg.Warn("cache_set_failed",
					slog.String("key", key),
					log.Err(err),
				)
			}
		}

		return user, nil
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}
	if res.Err != nil {
		return nil, res.Err
	}

	// Результат разделяется между ожидающими: каждому своя копия.
	user := *res.Val.(*models.User)
	return &user, nil
}
