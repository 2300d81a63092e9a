package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Tenant     TenantConfig
	Cache      CacheConfig
	Encryption EncryptionConfig
	RateLimit  RateLimitConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret           string
	AccessTTLMinutes int
	RefreshTTLDays   int
}

type TenantConfig struct {
	// PlatformHost is the bare platform root, e.g. "schoolyard.app".
	// School subdomains hang off it; the root itself is platform-admin-only.
	PlatformHost       string
	ResolverTTLMinutes int
	ResolverCacheSize  int
}

type CacheConfig struct {
	LocalTTLSeconds  int
	LocalSize        int
	SharedTTLMinutes int
}

type EncryptionConfig struct {
	Key string
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

type WorkerConfig struct {
	Concurrency int
	// PurgeSchedule is a cron expression for the refresh-token purge job.
	PurgeSchedule      string
	PurgeRetentionDays int
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) AccessTTL() time.Duration {
	return time.Duration(j.AccessTTLMinutes) * time.Minute
}

func (j *JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(j.RefreshTTLDays) * 24 * time.Hour
}

func (t *TenantConfig) ResolverTTL() time.Duration {
	return time.Duration(t.ResolverTTLMinutes) * time.Minute
}

func (c *CacheConfig) LocalTTL() time.Duration {
	return time.Duration(c.LocalTTLSeconds) * time.Second
}

func (c *CacheConfig) SharedTTL() time.Duration {
	return time.Duration(c.SharedTTLMinutes) * time.Minute
}

func (w *WorkerConfig) PurgeRetention() time.Duration {
	return time.Duration(w.PurgeRetentionDays) * 24 * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "schoolyard")
	v.SetDefault("DATABASE_PASSWORD", "schoolyard_secret")
	v.SetDefault("DATABASE_NAME", "schoolyard")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_ACCESS_TTL_MINUTES", 15)
	v.SetDefault("JWT_REFRESH_TTL_DAYS", 14)
	v.SetDefault("PLATFORM_HOST", "schoolyard.localhost")
	v.SetDefault("TENANT_RESOLVER_TTL_MINUTES", 5)
	v.SetDefault("TENANT_RESOLVER_CACHE_SIZE", 4096)
	v.SetDefault("CACHE_LOCAL_TTL_SECONDS", 10)
	v.SetDefault("CACHE_LOCAL_SIZE", 8192)
	v.SetDefault("CACHE_SHARED_TTL_MINUTES", 5)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("WORKER_PURGE_SCHEDULE", "30 3 * * *")
	v.SetDefault("WORKER_PURGE_RETENTION_DAYS", 30)

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
			Env:  v.GetString("SERVER_ENV"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:           v.GetString("JWT_SECRET"),
			AccessTTLMinutes: v.GetInt("JWT_ACCESS_TTL_MINUTES"),
			RefreshTTLDays:   v.GetInt("JWT_REFRESH_TTL_DAYS"),
		},
		Tenant: TenantConfig{
			PlatformHost:       v.GetString("PLATFORM_HOST"),
			ResolverTTLMinutes: v.GetInt("TENANT_RESOLVER_TTL_MINUTES"),
			ResolverCacheSize:  v.GetInt("TENANT_RESOLVER_CACHE_SIZE"),
		},
		Cache: CacheConfig{
			LocalTTLSeconds:  v.GetInt("CACHE_LOCAL_TTL_SECONDS"),
			LocalSize:        v.GetInt("CACHE_LOCAL_SIZE"),
			SharedTTLMinutes: v.GetInt("CACHE_SHARED_TTL_MINUTES"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Worker: WorkerConfig{
			Concurrency:        v.GetInt("WORKER_CONCURRENCY"),
			PurgeSchedule:      v.GetString("WORKER_PURGE_SCHEDULE"),
			PurgeRetentionDays: v.GetInt("WORKER_PURGE_RETENTION_DAYS"),
		},
	}

	return cfg, nil
}
