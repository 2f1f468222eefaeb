// cache — клиент кэша сессий с двумя бэкендами: Redis и память процесса.
//
// Клиент создаётся один раз при старте, передаётся потребителям явно
// и закрывается при остановке сервиса.
package cache

import (
	"context"
	"errors"
	"time"
)

//go:generate mockgen -source=cache.go -destination=../../mocks/cache.go -package=mocks

// ErrNotFound — ключа нет в кэше (или он истёк).
var ErrNotFound = errors.New("cache: key not found")

// Client — минимальный контракт кэша.
type Client interface {
	// Get возвращает значение; ErrNotFound, если ключа нет.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set сохраняет значение с TTL; ttl <= 0 означает TTL по умолчанию клиента.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete удаляет ключ; отсутствие ключа ошибкой не считается.
	Delete(ctx context.Context, key string) error
	// Ping проверяет доступность бэкенда.
	Ping(ctx context.Context) error
	// Close освобождает соединения.
	Close() error
}

// Config — параметры создания клиента.
type Config struct {
	Driver     string // "redis" | "memory"
	RedisURL   string
	Prefix     string
	DefaultTTL time.Duration
}

// New создаёт клиент по конфигурации.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedis(ctx, cfg.RedisURL, cfg.Prefix, cfg.DefaultTTL)
	case "memory", "":
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	default:
		return nil, errors.New("cache: unknown driver " + cfg.Driver)
	}
}

func prefixed(prefix, key string) string {
	if prefix == "" {
		return key
	}

	return prefix + ":" + key
}
