package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config — корневая структура конфигурации всей платформы.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Guard    GuardConfig    `mapstructure:"guard"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP-сервера.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// Ingress-лимитер на /guard/validate_action (защита самого движка,
	// не путать с Anomaly Detector — тот работает per-identity).
	RateLimit int `mapstructure:"rate_limit"`
	RateBurst int `mapstructure:"rate_burst"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub сигналы).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам для операторских токенов.
// Если ключи не заданы — approval-эндпоинты работают без аутентификации
// (режим для локальной разработки и демо).
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

// GuardConfig содержит специфичные настройки движка принятия решений.
type GuardConfig struct {
	// Identity Store
	DefaultTTLSeconds int64 `mapstructure:"default_ttl_seconds"`

	// Anomaly Detector: порог запросов в скользящем окне
	AnomalyWindow    time.Duration `mapstructure:"anomaly_window"`
	AnomalyThreshold int           `mapstructure:"anomaly_threshold"`

	// Context Governor
	TruncateOverflow bool `mapstructure:"truncate_overflow"`

	// Circuit Breaker (HITL): авто-отклонение зависших PENDING тикетов.
	// 0 — тикеты живут до решения человека (поведение по умолчанию).
	ApprovalAutoDenyAfter time.Duration `mapstructure:"approval_auto_deny_after"`

	// Audit Ledger: асинхронная персистентность
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`

	// Надежность записи в хранилище (retry + circuit breaker)
	StorageCBTimeout  time.Duration `mapstructure:"storage_cb_timeout"`
	StorageCBFailures uint32        `mapstructure:"storage_cb_failures"`

	// Переопределения таблицы рисков: действие -> LOW|MEDIUM|HIGH
	RiskOverrides map[string]string `mapstructure:"risk_overrides"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// ENV перекрывает файл: GUARD_ANOMALY_THRESHOLD=25 -> guard.anomaly_threshold
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Файла нет — работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// PEM-ключи: либо напрямую из ENV (Docker/K8s), либо файл по пути
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 10*time.Second)
	v.SetDefault("server.rate_limit", 200)
	v.SetDefault("server.rate_burst", 50)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("auth.token_ttl", 24*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("guard.default_ttl_seconds", 3600)
	v.SetDefault("guard.anomaly_window", 60*time.Second)
	v.SetDefault("guard.anomaly_threshold", 20)
	v.SetDefault("guard.audit_buffer_size", 10000)
	v.SetDefault("guard.audit_flush_interval", 500*time.Millisecond)
	v.SetDefault("guard.storage_cb_timeout", 30*time.Second)
	v.SetDefault("guard.storage_cb_failures", 5)
}

// loadKeyResource — ключ либо лежит целиком в ENV, либо читается с диска.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
