package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	APNs     APNsConfig
	AWS      AWSConfig
	Session  SessionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds JWT signing and validation settings.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// APNsConfig holds Apple push notification provider credentials.
// PrivateKey is the base64-encoded .p8 signing key for the provider token.
type APNsConfig struct {
	TeamID     string
	KeyID      string
	PrivateKey string
	BundleID   string
	Host       string // api.push.apple.com or api.sandbox.push.apple.com
}

// AWSConfig holds AWS credentials and the option-images bucket.
type AWSConfig struct {
	Region               string
	AccessKeyID          string
	SecretAccessKey      string
	ImagesBucket         string
	PresignExpireMinutes int
}

// SessionConfig holds session policy: quorum bounds and roster capacity.
type SessionConfig struct {
	MinQuorum int
	MaxQuorum int
	Capacity  int
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (DATABASE_URL env), it is used as-is.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Enabled reports whether APNs delivery is configured.
func (c APNsConfig) Enabled() bool {
	return c.TeamID != "" && c.KeyID != "" && c.PrivateKey != "" && c.BundleID != ""
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout:       getEnvInt("WRITE_TIMEOUT_SEC", 30),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "*"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "agreet"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 720),
		},
		APNs: APNsConfig{
			TeamID:     getEnv("APPLE_TEAM_ID", ""),
			KeyID:      getEnv("APNS_KEY_ID", ""),
			PrivateKey: getEnv("APNS_P8_KEY", ""),
			BundleID:   getEnv("APPLE_BUNDLE_ID", ""),
			Host:       getEnv("APNS_HOST", "https://api.push.apple.com"),
		},
		AWS: AWSConfig{
			Region:               getEnv("AWS_REGION", ""),
			AccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
			ImagesBucket:         getEnv("AWS_S3_IMAGES_BUCKET", "agreet-option-images"),
			PresignExpireMinutes: getEnvInt("AWS_PRESIGN_EXPIRE_MINUTES", 60),
		},
		Session: SessionConfig{
			MinQuorum: getEnvInt("SESSION_MIN_QUORUM", 2),
			MaxQuorum: getEnvInt("SESSION_MAX_QUORUM", 5),
			Capacity:  getEnvInt("SESSION_CAPACITY", 16),
		},
	}

	if cfg.Session.MinQuorum < 2 {
		return nil, fmt.Errorf("SESSION_MIN_QUORUM must be at least 2, got %d", cfg.Session.MinQuorum)
	}
	if cfg.Session.MaxQuorum < cfg.Session.MinQuorum {
		return nil, fmt.Errorf("SESSION_MAX_QUORUM %d below SESSION_MIN_QUORUM %d", cfg.Session.MaxQuorum, cfg.Session.MinQuorum)
	}
	if cfg.Session.Capacity < cfg.Session.MaxQuorum {
		return nil, fmt.Errorf("SESSION_CAPACITY %d below SESSION_MAX_QUORUM %d", cfg.Session.Capacity, cfg.Session.MaxQuorum)
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// SplitTrim splits s on sep, trimming whitespace and dropping empties.
func SplitTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, v := range strings.Split(s, sep) {
		if t := strings.TrimSpace(v); t != "" {
			out = append(out, t)
		}
	}
	return out
}
