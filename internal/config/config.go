package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers understood by Load.
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Password hashers understood by Load.
const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// Config aggregates runtime configuration for the VideoTube API.
type Config struct {
	Server   ServerConfig
	Store    StoreConfig
	Mongo    MongoConfig
	Postgres PostgresConfig
	MinIO    MinIOConfig
	Media    MediaConfig
	Auth     AuthConfig
	Metrics  MetricsConfig
	LogLevel string
}

// ServerConfig parameterizes the HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Address returns the listen address in host:port form.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Driver string
}

// MongoConfig contains MongoDB connection details.
type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

// PostgresConfig contains PostgreSQL connection details.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// DSN returns the PostgreSQL DSN string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// MinIOConfig carries MinIO connection and bucket information.
type MinIOConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UseSSL          bool
	Region          string
}

// MediaConfig controls how uploaded images are staged and published.
type MediaConfig struct {
	PublicBaseURL  string
	TempDir        string
	MaxUploadBytes int64
}

// AuthConfig groups authentication-related settings.
type AuthConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
	PasswordHasher     string
	BcryptCost         int
}

// MetricsConfig groups observability settings.
type MetricsConfig struct {
	PrometheusPath string
}

// Load reads configuration from the environment (and an optional .env file), applying defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := Config{
		Server: ServerConfig{
			Host:         v.GetString("HOST"),
			Port:         v.GetInt("PORT"),
			ReadTimeout:  v.GetDuration("HTTP_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("HTTP_WRITE_TIMEOUT"),
			IdleTimeout:  v.GetDuration("HTTP_IDLE_TIMEOUT"),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
		},
		Mongo: MongoConfig{
			URI:            v.GetString("MONGODB_URI"),
			Database:       v.GetString("MONGODB_DATABASE"),
			ConnectTimeout: v.GetDuration("MONGODB_CONNECT_TIMEOUT"),
		},
		Postgres: PostgresConfig{
			Host:     v.GetString("POSTGRES_HOST"),
			Port:     v.GetInt("POSTGRES_PORT"),
			User:     v.GetString("POSTGRES_USER"),
			Password: v.GetString("POSTGRES_PASSWORD"),
			Database: v.GetString("POSTGRES_DB"),
			SSLMode:  strings.ToLower(v.GetString("POSTGRES_SSL_MODE")),
		},
		MinIO: MinIOConfig{
			Endpoint:        v.GetString("MINIO_ENDPOINT"),
			AccessKeyID:     v.GetString("MINIO_ACCESS_KEY"),
			SecretAccessKey: v.GetString("MINIO_SECRET_KEY"),
			Bucket:          v.GetString("MINIO_BUCKET"),
			UseSSL:          v.GetBool("MINIO_USE_SSL"),
			Region:          v.GetString("MINIO_REGION"),
		},
		Media: MediaConfig{
			PublicBaseURL:  strings.TrimRight(v.GetString("MEDIA_PUBLIC_BASE_URL"), "/"),
			TempDir:        v.GetString("MEDIA_TEMP_DIR"),
			MaxUploadBytes: v.GetInt64("MEDIA_MAX_UPLOAD_BYTES"),
		},
		Auth:     loadAuthConfig(v),
		Metrics:  MetricsConfig{PrometheusPath: v.GetString("METRICS_PATH")},
		LogLevel: v.GetString("LOG_LEVEL"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("HOST", "0.0.0.0")
	v.SetDefault("PORT", 8000)
	v.SetDefault("HTTP_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_WRITE_TIMEOUT", 30*time.Second)
	v.SetDefault("HTTP_IDLE_TIMEOUT", 60*time.Second)

	v.SetDefault("STORE_DRIVER", StoreMongo)
	v.SetDefault("MONGODB_URI", "mongodb://localhost:27017")
	v.SetDefault("MONGODB_DATABASE", "videotube")
	v.SetDefault("MONGODB_CONNECT_TIMEOUT", 10*time.Second)

	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "videotube")
	v.SetDefault("POSTGRES_PASSWORD", "change-me")
	v.SetDefault("POSTGRES_DB", "videotube")
	v.SetDefault("POSTGRES_SSL_MODE", "disable")

	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "videotube")
	v.SetDefault("MINIO_SECRET_KEY", "change-me-strong-password")
	v.SetDefault("MINIO_BUCKET", "videotube-media")
	v.SetDefault("MINIO_USE_SSL", false)
	v.SetDefault("MINIO_REGION", "")

	v.SetDefault("MEDIA_PUBLIC_BASE_URL", "http://localhost:9000")
	v.SetDefault("MEDIA_TEMP_DIR", "./public/temp")
	v.SetDefault("MEDIA_MAX_UPLOAD_BYTES", 10<<20)

	v.SetDefault("ACCESS_TOKEN_SECRET", "change-me-access-secret")
	v.SetDefault("REFRESH_TOKEN_SECRET", "change-me-refresh-secret")
	v.SetDefault("ACCESS_TOKEN_EXPIRY", 15*time.Minute)
	v.SetDefault("REFRESH_TOKEN_EXPIRY", 240*time.Hour)
	v.SetDefault("PASSWORD_HASHER", HasherBcrypt)
	v.SetDefault("BCRYPT_COST", 12)

	v.SetDefault("METRICS_PATH", "/metrics")
	v.SetDefault("LOG_LEVEL", "info")
}

func loadAuthConfig(v *viper.Viper) AuthConfig {
	cost := v.GetInt("BCRYPT_COST")
	if cost < 4 || cost > 31 {
		cost = 12
	}

	return AuthConfig{
		AccessTokenSecret:  v.GetString("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: v.GetString("REFRESH_TOKEN_SECRET"),
		AccessTokenTTL:     v.GetDuration("ACCESS_TOKEN_EXPIRY"),
		RefreshTokenTTL:    v.GetDuration("REFRESH_TOKEN_EXPIRY"),
		PasswordHasher:     strings.ToLower(strings.TrimSpace(v.GetString("PASSWORD_HASHER"))),
		BcryptCost:         cost,
	}
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case StoreMongo, StorePostgres, StoreMemory:
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}

	switch c.Auth.PasswordHasher {
	case HasherBcrypt, HasherArgon2id:
	default:
		return fmt.Errorf("unknown PASSWORD_HASHER %q", c.Auth.PasswordHasher)
	}

	if c.Auth.AccessTokenSecret == "" || c.Auth.RefreshTokenSecret == "" {
		return errors.New("access and refresh token secrets are required")
	}
	if c.Auth.AccessTokenSecret == c.Auth.RefreshTokenSecret {
		return errors.New("access and refresh token secrets must differ")
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= 0 {
		return errors.New("token lifetimes must be positive")
	}
	return nil
}
