package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/anonto42/reviewinn/backend/pkg/logging"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	JWT      JWTConfig
	SMTP     SMTPConfig
	AI       AIConfig
	Log      LogConfig
	Jobs     JobsConfig

	FirebaseCredentialsPath string `env:"FIREBASE_CREDENTIALS_PATH"`
	MetricsEnabled          bool   `env:"METRICS_ENABLED" env-default:"true"`
}

type ServerConfig struct {
	Host        string   `env:"HOST" env-default:"0.0.0.0"`
	Port        string   `env:"PORT" env-default:"8080"`
	Env         string   `env:"ENV" env-default:"development"`
	MaxBodySize string   `env:"MAX_BODY_SIZE" env-default:"10M"`
	CORSOrigins []string `env:"CORS_ORIGINS" env-separator:"," env-default:"*"`
	FrontendURL string   `env:"FRONTEND_URL" env-default:"http://localhost:3000"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string { return s.Host + ":" + s.Port }

// IsProduction reports whether the server runs with ENV=production.
func (s ServerConfig) IsProduction() bool { return strings.EqualFold(s.Env, "production") }

type DatabaseConfig struct {
	URL           string `env:"DATABASE_URL" env-default:"host=localhost user=postgres password=postgres dbname=reviewinn port=5432 sslmode=disable"`
	MongoURI      string `env:"MONGO_URI"`
	MongoDatabase string `env:"MONGO_DATABASE" env-default:"reviewinn"`
	// RedisURL is read for deployments that swap the in-memory limiter for a keyed store.
	RedisURL string `env:"REDIS_URL"`
}

type JWTConfig struct {
	Secret          string        `env:"JWT_SECRET" env-default:"change-me-in-production-please-32b"`
	Issuer          string        `env:"JWT_ISSUER" env-default:"reviewinn-api"`
	Audience        string        `env:"JWT_AUDIENCE" env-default:"reviewinn-frontend"`
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL" env-default:"60m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" env-default:"720h"`
	ResetTokenTTL   time.Duration `env:"RESET_TOKEN_TTL" env-default:"60m"`
	BcryptCost      int           `env:"BCRYPT_COST" env-default:"12"`
}

type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT" env-default:"587"`
	User     string `env:"SMTP_USER"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"SMTP_FROM" env-default:"no-reply@reviewinn.com"`
}

// Enabled reports whether outbound mail is configured.
func (s SMTPConfig) Enabled() bool { return s.Host != "" }

type AIConfig struct {
	APIKey  string        `env:"AI_API_KEY"`
	BaseURL string        `env:"AI_BASE_URL" env-default:"https://api.openai.com/v1"`
	Model   string        `env:"AI_MODEL" env-default:"gpt-4o-mini"`
	Timeout time.Duration `env:"AI_TIMEOUT" env-default:"5s"`
}

// Enabled reports whether the AI category fallback may be called.
func (a AIConfig) Enabled() bool { return a.APIKey != "" }

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"json"`
}

type JobsConfig struct {
	NotificationCleanupInterval time.Duration `env:"NOTIFICATION_CLEANUP_INTERVAL" env-default:"1h"`
	CounterRepairInterval       time.Duration `env:"COUNTER_REPAIR_INTERVAL" env-default:"24h"`
	SweepInterval               time.Duration `env:"SWEEP_INTERVAL" env-default:"5m"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logging.Debug().Msg("no .env file found, using process environment")
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations that are unsafe to run.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return errors.New("config: PORT must not be empty")
	}
	if c.Server.IsProduction() && len(c.JWT.Secret) < 32 {
		return errors.New("config: JWT_SECRET must be at least 32 bytes in production")
	}
	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= 0 || c.JWT.ResetTokenTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.JWT.BcryptCost < 4 || c.JWT.BcryptCost > 31 {
		return fmt.Errorf("config: BCRYPT_COST %d out of range", c.JWT.BcryptCost)
	}
	return nil
}
