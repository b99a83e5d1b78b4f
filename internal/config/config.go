// Package config загружает конфигурацию бота из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры,
// а godotenv подтягивает локальный .env, если он есть.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Discord ---
	DiscordBotToken string `envconfig:"DISCORD_BOT_TOKEN" required:"true"`

	// --- Database ---
	// В Docker внутри контейнера "localhost" почти всегда неправильно.
	// Дефолт ставим "postgres" (имя сервиса в docker-compose), а для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"botuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"autorole"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`

	// --- Bot runtime ---
	// Сколько событий шлюза обрабатываем параллельно. Иначе "go на каждое событие" = утечка памяти при флуде реакций.
	BotMaxInflight   int    `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	BotCommandPrefix string `envconfig:"BOT_COMMAND_PREFIX" default:"!"`

	// Ограничение команд и «спасибо» на пользователя: не больше N за окно.
	RateLimitRequests int           `envconfig:"BOT_RATE_LIMIT_REQUESTS" default:"5"`
	RateLimitWindow   time.Duration `envconfig:"BOT_RATE_LIMIT_WINDOW" default:"10s"`

	// --- Autorole ---
	FeatureAutoroleEnabled bool     `envconfig:"FEATURE_AUTOROLE_ENABLED" default:"true"`
	AutoroleGuildIDsRaw    string   `envconfig:"AUTOROLE_GUILD_IDS"`
	AutoroleGuildIDs       []string `envconfig:"-"` // заполним вручную

	ExpirySweepInterval    time.Duration `envconfig:"AUTOROLE_EXPIRY_SWEEP_INTERVAL" default:"1m"`
	AntiquitySweepInterval time.Duration `envconfig:"AUTOROLE_ANTIQUITY_SWEEP_INTERVAL" default:"1h"`
	SweepTimeout           time.Duration `envconfig:"AUTOROLE_SWEEP_TIMEOUT" default:"5m"`
	ExpiryBatchSize        int           `envconfig:"AUTOROLE_EXPIRY_BATCH_SIZE" default:"500"`

	// --- Admin ---
	AdminConfirmTTL time.Duration `envconfig:"ADMIN_CONFIRM_TTL" default:"2m"`

	// --- Reputation ---
	FeatureReputationEnabled bool `envconfig:"FEATURE_REPUTATION_ENABLED" default:"true"`
	ReputationDailyLimit     int  `envconfig:"REPUTATION_DAILY_LIMIT" default:"3"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Validate проверяет значения, которые envconfig проверить не может.
func (c *Config) Validate() error {
	// required:"true" пропускает заданную, но пустую переменную
	if strings.TrimSpace(c.DiscordBotToken) == "" {
		return fmt.Errorf("DISCORD_BOT_TOKEN не может быть пустым")
	}
	if c.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD не может быть пустым")
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotCommandPrefix == "" {
		return fmt.Errorf("BOT_COMMAND_PREFIX не может быть пустым")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("BOT_RATE_LIMIT_REQUESTS и BOT_RATE_LIMIT_WINDOW должны быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.ExpirySweepInterval < time.Second || c.AntiquitySweepInterval < time.Second {
		return fmt.Errorf("интервалы проверок должны быть не меньше секунды")
	}
	if c.SweepTimeout <= 0 {
		return fmt.Errorf("AUTOROLE_SWEEP_TIMEOUT должен быть > 0")
	}
	if c.ExpiryBatchSize <= 0 {
		return fmt.Errorf("AUTOROLE_EXPIRY_BATCH_SIZE должен быть > 0")
	}
	if c.AdminConfirmTTL <= 0 {
		return fmt.Errorf("ADMIN_CONFIRM_TTL должен быть > 0")
	}
	if c.ReputationDailyLimit <= 0 {
		return fmt.Errorf("REPUTATION_DAILY_LIMIT должен быть > 0")
	}
	return nil
}

// Load читает .env (если есть) и переменные окружения, заполняет структуру Config.
func Load() (*Config, error) {
	// Переменные окружения важнее .env: godotenv.Load не перезаписывает уже заданные.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("не удалось прочитать .env: %w", err)
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	cfg.AutoroleGuildIDs = parseCSV(cfg.AutoroleGuildIDsRaw)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseCSV(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
