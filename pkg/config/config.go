package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	devSessionSecret = "dev_session_secret"
	devUploadsSecret = "dev_uploads_secret"
	minSecretLength  = 32
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	CORS      CORSConfig
	Log       LogConfig
	Uploads   UploadsConfig
	Bootstrap BootstrapConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// SessionConfig governs the cookie session issued on login.
type SessionConfig struct {
	Secret               string
	CookieName           string
	CookieDomain         string
	Secure               bool
	Expiration           time.Duration
	PersistentExpiration time.Duration
	Issuer               string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UploadsConfig controls profile picture storage.
type UploadsConfig struct {
	Dir             string
	MaxFileSize     int64
	MaxDimension    int
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// BootstrapConfig seeds the first administrator account on start-up.
type BootstrapConfig struct {
	AdminUsername string
	AdminPassword string
	AdminEmail    string
	AdminFullName string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that are unsafe outside development. In production
// both signing secrets must be set, differ from the built-in defaults and be at
// least 32 bytes long.
func (c *Config) Validate() error {
	if c.Env != EnvProduction {
		return nil
	}

	var errs []error
	errs = append(errs, checkSecret("SESSION_SECRET", c.Session.Secret, devSessionSecret))
	errs = append(errs, checkSecret("UPLOADS_SIGNED_URL_SECRET", c.Uploads.SignedURLSecret, devUploadsSecret))
	return errors.Join(errs...)
}

func checkSecret(key, value, devDefault string) error {
	switch {
	case value == "" || value == devDefault:
		return fmt.Errorf("%s must be set in production", key)
	case len(value) < minSecretLength:
		return fmt.Errorf("%s must be at least %d bytes in production", key, minSecretLength)
	}
	return nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Session = SessionConfig{
		Secret:               v.GetString("SESSION_SECRET"),
		CookieName:           v.GetString("SESSION_COOKIE_NAME"),
		CookieDomain:         v.GetString("SESSION_COOKIE_DOMAIN"),
		Secure:               v.GetBool("SESSION_COOKIE_SECURE"),
		Expiration:           parseDuration(v.GetString("SESSION_EXPIRATION"), 2*time.Hour),
		PersistentExpiration: parseDuration(v.GetString("SESSION_PERSISTENT_EXPIRATION"), 30*24*time.Hour),
		Issuer:               v.GetString("SESSION_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxUpload := v.GetInt64("UPLOADS_MAX_FILE_SIZE")
	if maxUpload <= 0 {
		maxUpload = 5 * 1024 * 1024
	}
	cfg.Uploads = UploadsConfig{
		Dir:             v.GetString("UPLOADS_DIR"),
		MaxFileSize:     maxUpload,
		MaxDimension:    v.GetInt("UPLOADS_MAX_DIMENSION"),
		SignedURLSecret: v.GetString("UPLOADS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("UPLOADS_SIGNED_URL_TTL"), time.Hour),
	}

	cfg.Bootstrap = BootstrapConfig{
		AdminUsername: v.GetString("BOOTSTRAP_ADMIN_USERNAME"),
		AdminPassword: v.GetString("BOOTSTRAP_ADMIN_PASSWORD"),
		AdminEmail:    v.GetString("BOOTSTRAP_ADMIN_EMAIL"),
		AdminFullName: v.GetString("BOOTSTRAP_ADMIN_FULL_NAME"),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "student_tracker")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SESSION_SECRET", devSessionSecret)
	v.SetDefault("SESSION_COOKIE_NAME", "spt_session")
	v.SetDefault("SESSION_COOKIE_DOMAIN", "")
	v.SetDefault("SESSION_COOKIE_SECURE", false)
	v.SetDefault("SESSION_EXPIRATION", "2h")
	v.SetDefault("SESSION_PERSISTENT_EXPIRATION", "720h")
	v.SetDefault("SESSION_ISSUER", "student-tracker")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("UPLOADS_DIR", "./uploads")
	v.SetDefault("UPLOADS_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("UPLOADS_MAX_DIMENSION", 512)
	v.SetDefault("UPLOADS_SIGNED_URL_SECRET", devUploadsSecret)
	v.SetDefault("UPLOADS_SIGNED_URL_TTL", "1h")

	v.SetDefault("BOOTSTRAP_ADMIN_USERNAME", "")
	v.SetDefault("BOOTSTRAP_ADMIN_PASSWORD", "")
	v.SetDefault("BOOTSTRAP_ADMIN_EMAIL", "")
	v.SetDefault("BOOTSTRAP_ADMIN_FULL_NAME", "System Administrator")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
