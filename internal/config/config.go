// config предоставляет структуру конфигурации сервиса и функции
// загрузки из файла/переменных окружения с предсказуемым приоритетом.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config — корневая конфигурация сервиса.
// Источники значений (по убыванию приоритета):
//  1. явный путь через флаг --config;
//  2. путь в переменной окружения CONFIG_PATH;
//  3. файл local.yaml из рабочей директории;
//  4. переменные окружения (cleanenv).
type Config struct {
	Env      string        `yaml:"env" env:"ENV" env-default:"local"`
	App      AppConfig     `yaml:"app"`
	HTTP     HTTPConfig    `yaml:"http"`
	Ops      OpsConfig     `yaml:"ops"`
	Auth     AuthConfig    `yaml:"auth"`
	DB       DBConfig      `yaml:"db"`
	Cache    CacheConfig   `yaml:"cache"`
	Mail     MailConfig    `yaml:"mail"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Janitor  JanitorConfig `yaml:"janitor"`
}

// AppConfig — сведения о сервисе для health-эндпойнта и ссылок в письмах.
type AppConfig struct {
	Name      string `yaml:"name" env:"APP_NAME" env-default:"auth-core"`
	Version   string `yaml:"version" env:"APP_VERSION" env-default:"0.1.0"`
	DomainURL string `yaml:"domain_url" env:"DOMAIN_URL" env-default:"localhost:8080"`
}

// TimeoutConfig — таймауты сервиса.
type TimeoutConfig struct {
	Service  time.Duration `yaml:"service" env:"SERVICE_TIMEOUT" env-default:"5s"`
	Shutdown time.Duration `yaml:"shutdown" env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// HTTPConfig — сетевые настройки публичного HTTP API.
type HTTPConfig struct {
	Host           string   `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port           string   `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	APIPrefix      string   `yaml:"api_prefix" env:"API_PREFIX" env-default:"/api/v1"`
	TrustProxy     bool     `yaml:"trust_proxy" env:"HTTP_TRUST_PROXY" env-default:"false"`
	AllowedOrigins []string `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-separator:","`
}

// OpsConfig — служебный HTTP-сервер (livez/healthz/metrics).
type OpsConfig struct {
	Host string `yaml:"host" env:"OPS_HOST" env-default:"0.0.0.0"`
	Port string `yaml:"port" env:"OPS_PORT" env-default:"9090"`
}

// Addr возвращает адрес в формате host:port.
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

// Addr возвращает адрес в формате host:port.
func (o OpsConfig) Addr() string {
	return net.JoinHostPort(o.Host, o.Port)
}

// AuthConfig содержит параметры выпуска и валидации токенов.
type AuthConfig struct {
	Secret                string        `yaml:"secret" env:"AUTH_SECRET" env-required:"true"`
	Algorithm             string        `yaml:"algorithm" env:"AUTH_ALGORITHM" env-default:"HS256"`
	AccessTokenTTL        time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"15m"`
	RefreshTokenTTL       time.Duration `yaml:"refresh_token_ttl" env:"REFRESH_TOKEN_TTL" env-default:"168h"`
	VerificationTokenTTL  time.Duration `yaml:"verification_token_ttl" env:"VERIFICATION_TOKEN_TTL" env-default:"24h"`
	PasswordResetTokenTTL time.Duration `yaml:"password_reset_token_ttl" env:"PASSWORD_RESET_TOKEN_TTL" env-default:"1h"`
	BcryptCost            int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10"`
}

// DBConfig — настройки подключения к базе данных.
// Driver: "postgres" или "memory" (только для локального запуска).
type DBConfig struct {
	Driver         string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	DatabaseURL    string `yaml:"db_url" env:"DATABASE_URL"`
	MigrateOnStart bool   `yaml:"migrate_on_start" env:"DB_MIGRATE_ON_START" env-default:"true"`
}

// CacheConfig — настройки кэша сессий.
// Driver: "redis" или "memory".
type CacheConfig struct {
	Driver   string        `yaml:"driver" env:"CACHE_DRIVER" env-default:"redis"`
	RedisURL string        `yaml:"redis_url" env:"REDIS_URL" env-default:"redis://localhost:6379/0"`
	Prefix   string        `yaml:"prefix" env:"CACHE_PREFIX" env-default:"auth"`
	TTL      time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"1h"`
}

// MailConfig — настройки отправки писем.
// Driver: "smtp" или "log" (письма только пишутся в лог).
type MailConfig struct {
	Driver    string `yaml:"driver" env:"MAIL_DRIVER" env-default:"log"`
	Host      string `yaml:"host" env:"MAIL_SERVER" env-default:"localhost"`
	Port      int    `yaml:"port" env:"MAIL_PORT" env-default:"587"`
	Username  string `yaml:"username" env:"MAIL_USERNAME"`
	Password  string `yaml:"password" env:"MAIL_PASSWORD"`
	From      string `yaml:"from" env:"MAIL_FROM" env-default:"no-reply@localhost"`
	FromName  string `yaml:"from_name" env:"MAIL_FROM_NAME" env-default:"auth-core"`
	TLSMode   string `yaml:"tls_mode" env:"MAIL_TLS_MODE" env-default:"auto"`
	Workers   int    `yaml:"workers" env:"MAIL_WORKERS" env-default:"2"`
	QueueSize int    `yaml:"queue_size" env:"MAIL_QUEUE_SIZE" env-default:"100"`
}

// JanitorConfig — периодическая очистка просроченных refresh-токенов.
// Period == 0 отключает очистку: просрочка проверяется лениво при верификации.
type JanitorConfig struct {
	Period time.Duration `yaml:"period" env:"JANITOR_PERIOD" env-default:"0s"`
}

// MustLoad — обёртка над Load с panic при ошибке.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}

	return cfg
}

// Load загружает конфигурацию по приоритету:
// 1) явный путь; 2) CONFIG_PATH; 3) ./local.yaml; 4) ENV.
// После чтения файла ENV-переменные накладываются поверх значений из YAML.
func Load(path string) (*Config, error) {
	var cfg Config

	read := func(p string) (*Config, error) {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("config file %q stat failed: %w", p, err)
		}

		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}

		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to overlay env: %w", err)
		}

		return &cfg, cfg.validate()
	}

	if path != "" {
		return read(path)
	}

	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		return read(envPath)
	}

	if _, err := os.Stat("local.yaml"); err == nil {
		return read("local.yaml")
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
	}

	return &cfg, cfg.validate()
}

// validate проверяет согласованность значений, которые cleanenv проверить не может.
// Пустой AUTH_SECRET проходит env-required: переменная задана, хоть и пуста.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Auth.Secret) == "" {
		return fmt.Errorf("auth.secret is required: set AUTH_SECRET or auth.secret")
	}

	switch c.DB.Driver {
	case "postgres":
		if c.DB.DatabaseURL == "" {
			return fmt.Errorf("db.db_url is required for postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown db driver %q", c.DB.Driver)
	}

	switch c.Cache.Driver {
	case "redis", "memory":
	default:
		return fmt.Errorf("unknown cache driver %q", c.Cache.Driver)
	}

	switch c.Mail.Driver {
	case "smtp", "log":
	default:
		return fmt.Errorf("unknown mail driver %q", c.Mail.Driver)
	}

	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive")
	}

	return nil
}
