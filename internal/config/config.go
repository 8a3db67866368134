package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	RunMigrations   bool          `env:"RUN_MIGRATIONS" envDefault:"true"`
	JWTSecret       string        `env:"JWT_SECRET,required"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"720h"`
	GoogleClientID  string        `env:"GOOGLE_CLIENT_ID"`
	AllowOrigins    []string      `env:"ALLOW_ORIGINS" envDefault:"*" envSeparator:","`
	BrandName       string        `env:"BRAND_NAME" envDefault:"Upay2Home"`
	DBTimeout       time.Duration `env:"DB_TIMEOUT" envDefault:"5s"`
	MailTimeout     time.Duration `env:"MAIL_TIMEOUT" envDefault:"15s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	// BaseURL is the origin used in reset links. Load fills it from the
	// first non-empty of APP_BASE_URL, NEXTAUTH_URL, NEXT_PUBLIC_BASE_URL and
	// VERCEL_URL.
	BaseURL        string `env:"APP_BASE_URL"`
	NextAuthURL    string `env:"NEXTAUTH_URL"`
	NextPublicBase string `env:"NEXT_PUBLIC_BASE_URL"`
	VercelURL      string `env:"VERCEL_URL"`

	SMTPHost     string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPUseTLS   bool   `env:"SMTP_USE_TLS" envDefault:"false"`

	LogLevel        string `env:"LOG_LEVEL" envDefault:"info"`
	LogstashTCPAddr string `env:"LOGSTASH_TCP_ADDR"`
	OTelEndpoint    string `env:"OTEL_ENDPOINT"`

	MinIOEndpoint      string `env:"MINIO_ENDPOINT"`
	MinIOAccessKey     string `env:"MINIO_ACCESS_KEY"`
	MinIOSecretKey     string `env:"MINIO_SECRET_KEY"`
	MinIOUseSSL        bool   `env:"MINIO_USE_SSL" envDefault:"false"`
	MinIOBucketAvatars string `env:"MINIO_BUCKET_AVATARS" envDefault:"upay2home-avatars"`
	MinIOPublicURL     string `env:"MINIO_PUBLIC_URL"`

	RedisURL             string        `env:"REDIS_URL"`
	ResetRequestCooldown time.Duration `env:"RESET_REQUEST_COOLDOWN" envDefault:"0s"`
}

func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found: %v", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.AllowOrigins = splitAndTrim(cfg.AllowOrigins)
	cfg.BaseURL = firstNonEmpty(cfg.BaseURL, cfg.NextAuthURL, cfg.NextPublicBase, vercelOrigin(cfg.VercelURL))
	if strings.TrimSpace(cfg.SMTPFrom) == "" {
		cfg.SMTPFrom = cfg.SMTPUsername
	}
	return cfg, nil
}

// MailerConfigured reports whether enough SMTP settings exist to send mail.
func (c Config) MailerConfigured() bool {
	return c.SMTPHost != "" && c.SMTPPort != "" && c.SMTPFrom != ""
}

func (c Config) MinIOConfigured() bool {
	return c.MinIOEndpoint != "" && c.MinIOAccessKey != "" && c.MinIOSecretKey != ""
}

func splitAndTrim(parts []string) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

func vercelOrigin(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}
	return "https://" + host
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
