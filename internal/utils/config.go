package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

var (
	ErrMissingAccessSecret  = errors.New("ACCESS_TOKEN_SECRET is required")
	ErrMissingRefreshSecret = errors.New("REFRESH_TOKEN_SECRET is required")
	ErrSharedTokenSecret    = errors.New("access and refresh token secrets must differ")
	ErrInvalidTokenTTL      = errors.New("token ttl must be positive")
)

type DatabaseConfig struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	SSLMode          string
}

func (c *DatabaseConfig) DSN() string {
	return "host=" + c.PostgresHost +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" port=" + c.PostgresPort +
		" sslmode=" + c.SSLMode +
		" TimeZone=UTC"
}

type ServerConfig struct {
	Port            string
	Env             string
	ShutdownTimeout time.Duration
}

// IsProduction reports whether cookies must be marked Secure.
func (c *ServerConfig) IsProduction() bool {
	return c.Env == EnvProduction
}

type AdminConfig struct {
	Username string
	Password string
}

type TokenConfig struct {
	AccessTokenSecret  string
	RefreshTokenSecret string
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
}

type CookieConfig struct {
	Name   string
	Path   string
	Domain string
}

type SecurityConfig struct {
	BcryptCost         int
	AuthRateLimit      float64
	TokenPurgeInterval time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type Config struct {
	Database *DatabaseConfig
	Server   *ServerConfig
	Admin    *AdminConfig
	Token    *TokenConfig
	Cookie   *CookieConfig
	Security *SecurityConfig
	CORS     *CORSConfig
}

// LoadConfig reads dotenvPath (if present) into the environment and builds the
// service configuration from it. Variables already set in the environment win.
func LoadConfig(dotenvPath string) (*Config, error) {
	if err := godotenv.Load(dotenvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", dotenvPath, err)
	}
	return configFromEnv()
}

func configFromEnv() (*Config, error) {
	accessTTL, err := getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	refreshTTL, err := getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, err
	}
	shutdown, err := getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, err
	}
	purge, err := getEnvDuration("TOKEN_PURGE_INTERVAL", time.Hour)
	if err != nil {
		return nil, err
	}
	cost, err := getEnvInt("BCRYPT_COST", DefaultBcryptCost)
	if err != nil {
		return nil, err
	}
	rate, err := getEnvFloat("AUTH_RATE_LIMIT", 5)
	if err != nil {
		return nil, err
	}

	dbCfg := &DatabaseConfig{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     os.Getenv("POSTGRES_USER"),
		PostgresPassword: os.Getenv("POSTGRES_PASSWORD"),
		PostgresDB:       os.Getenv("POSTGRES_DB"),
		SSLMode:          getEnv("POSTGRES_SSLMODE", "disable"),
	}
	serverCfg := &ServerConfig{
		Port:            getEnv("SERVER_PORT", "8080"),
		Env:             getEnv("APP_ENV", EnvDevelopment),
		ShutdownTimeout: shutdown,
	}
	adminCfg := &AdminConfig{
		Username: os.Getenv("ADMIN_USERNAME"),
		Password: os.Getenv("ADMIN_PASSWORD"),
	}
	tokenCfg := &TokenConfig{
		AccessTokenSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
		RefreshTokenSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
	}
	cookieCfg := &CookieConfig{
		Name:   getEnv("REFRESH_COOKIE_NAME", "refreshToken"),
		Path:   getEnv("REFRESH_COOKIE_PATH", "/auth"),
		Domain: os.Getenv("COOKIE_DOMAIN"),
	}
	securityCfg := &SecurityConfig{
		BcryptCost:         cost,
		AuthRateLimit:      rate,
		TokenPurgeInterval: purge,
	}
	corsCfg := &CORSConfig{
		AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
	}

	cfg := &Config{dbCfg, serverCfg, adminCfg, tokenCfg, cookieCfg, securityCfg, corsCfg}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Token.AccessTokenSecret == "" {
		return ErrMissingAccessSecret
	}
	if c.Token.RefreshTokenSecret == "" {
		return ErrMissingRefreshSecret
	}
	if c.Token.AccessTokenSecret == c.Token.RefreshTokenSecret {
		return ErrSharedTokenSecret
	}
	if c.Token.AccessTokenTTL <= 0 || c.Token.RefreshTokenTTL <= 0 {
		return ErrInvalidTokenTTL
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
