// internal/common/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the main application configuration struct.
type Config struct {
	App       AppConfig         `mapstructure:"app"`
	Server    ServerConfig      `mapstructure:"server"`
	Store     StoreConfig       `mapstructure:"store"`
	Database  DatabaseConfig    `mapstructure:"database"`
	Supabase  SupabaseConfig    `mapstructure:"supabase"`
	Scoring   ScoringConfig     `mapstructure:"scoring"`
	Batch     BatchConfig       `mapstructure:"batch"`
	Reviewers map[string]string `mapstructure:"reviewers"` // username -> bcrypt hash
	Logging   LoggingConfig     `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string `mapstructure:"address"`
	ReadTimeout     int    `mapstructure:"read_timeout"`     // milliseconds
	WriteTimeout    int    `mapstructure:"write_timeout"`    // milliseconds
	ShutdownTimeout int    `mapstructure:"shutdown_timeout"` // milliseconds
	SubmitRateLimit int    `mapstructure:"submit_rate_limit"` // submissions per client per minute, negative disables
}

// Store drivers.
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
	StoreDriverSupabase = "supabase"
)

type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	Table         string `mapstructure:"table"`
	AutoMigrate   bool   `mapstructure:"auto_migrate"`
	LookupTimeout int    `mapstructure:"lookup_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig is optional; an empty address disables the batch lock.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SupabaseConfig struct {
	URL     string `mapstructure:"url"`
	APIKey  string `mapstructure:"api_key"`
	Timeout int    `mapstructure:"timeout"` // milliseconds
}

// Scoring providers.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// ScoringConfig configures the external model used for evaluation.
type ScoringConfig struct {
	Provider        string  `mapstructure:"provider"`
	BaseURL         string  `mapstructure:"base_url"`
	APIKey          string  `mapstructure:"api_key"`
	Model           string  `mapstructure:"model"`
	Temperature     *float64 `mapstructure:"temperature"` // nil takes the default; 0 is valid
	MaxOutputTokens int     `mapstructure:"max_output_tokens"`
	Timeout         int     `mapstructure:"timeout"` // milliseconds
	MaxRetries      int     `mapstructure:"max_retries"`
}

type BatchConfig struct {
	Delay    int    `mapstructure:"delay"`    // milliseconds between model calls
	LockTTL  int    `mapstructure:"lock_ttl"` // milliseconds
	LockKey  string `mapstructure:"lock_key"`
	Schedule string `mapstructure:"schedule"` // cron spec, empty disables
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GetDuration converts a millisecond setting.
func GetDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
