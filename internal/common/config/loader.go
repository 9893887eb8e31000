// internal/common/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml, merges config.<APP_ENVIRONMENT>.yaml on
// top of it and applies environment overrides.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // optional

	return finish(v)
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	paths := []string{".env", "../.env", "../../.env"}
	if root := findProjectRoot(); root != "" {
		paths = append(paths, filepath.Join(root, ".env"))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars resolves ${VAR} placeholders in string values. Bare $VAR is
// left alone: reviewer bcrypt hashes start with "$2a$".
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") {
			if expanded := os.ExpandEnv(strVal); expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideEmptyConfig fills secrets from well-known variables when the yaml
// left them blank.
func overrideEmptyConfig(cfg *Config) {
	setIfEmpty(&cfg.Scoring.APIKey, "GEMINI_API_KEY", "SCORING_API_KEY", "OPENAI_API_KEY")
	setIfEmpty(&cfg.Supabase.URL, "SUPABASE_URL")
	setIfEmpty(&cfg.Supabase.APIKey, "SUPABASE_SERVICE_KEY", "SUPABASE_ANON_KEY")
	setIfEmpty(&cfg.Database.Postgres.User, "DB_USER")
	setIfEmpty(&cfg.Database.Postgres.Password, "DB_PASSWORD")
	setIfEmpty(&cfg.Database.Redis.Address, "REDIS_ADDRESS")
}

func setIfEmpty(dst *string, envKeys ...string) {
	if *dst != "" {
		return
	}
	for _, key := range envKeys {
		if val := os.Getenv(key); val != "" {
			*dst = val
			return
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "induction-portal"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120000
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30000
	}
	if cfg.Server.SubmitRateLimit == 0 {
		cfg.Server.SubmitRateLimit = 20
	}

	if cfg.Store.Driver == "" {
		cfg.Store.Driver = StoreDriverMemory
	}
	if cfg.Store.Table == "" {
		cfg.Store.Table = "applications"
	}
	if cfg.Store.LookupTimeout == 0 {
		cfg.Store.LookupTimeout = 3000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.Supabase.Timeout == 0 {
		cfg.Supabase.Timeout = 30000
	}

	if cfg.Scoring.Provider == "" {
		cfg.Scoring.Provider = ProviderGemini
	}
	if cfg.Scoring.Model == "" && cfg.Scoring.Provider == ProviderGemini {
		cfg.Scoring.Model = "gemini-2.5-flash"
	}
	if cfg.Scoring.Temperature == nil {
		temperature := 0.7
		cfg.Scoring.Temperature = &temperature
	}
	if cfg.Scoring.MaxOutputTokens == 0 {
		cfg.Scoring.MaxOutputTokens = 2048
	}
	if cfg.Scoring.Timeout == 0 {
		cfg.Scoring.Timeout = 60000
	}
	if cfg.Scoring.MaxRetries == 0 {
		cfg.Scoring.MaxRetries = 2
	}

	if cfg.Batch.Delay == 0 {
		cfg.Batch.Delay = 1000
	}
	if cfg.Batch.LockTTL == 0 {
		cfg.Batch.LockTTL = 30 * 60 * 1000
	}
	if cfg.Batch.LockKey == "" {
		cfg.Batch.LockKey = "induction-portal:batch-evaluation"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if cfg.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if cfg.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if cfg.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case StoreDriverSupabase:
		if cfg.Supabase.URL == "" || cfg.Supabase.APIKey == "" {
			return fmt.Errorf("supabase.url and supabase.api_key are required")
		}
	default:
		return fmt.Errorf("store.driver %q is not supported", cfg.Store.Driver)
	}

	switch cfg.Scoring.Provider {
	case ProviderGemini, ProviderOpenAI:
	default:
		return fmt.Errorf("scoring.provider %q is not supported", cfg.Scoring.Provider)
	}
	if cfg.Scoring.Provider == ProviderOpenAI && cfg.Scoring.Model == "" {
		return fmt.Errorf("scoring.model is required for the openai provider")
	}
	if t := cfg.Scoring.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("scoring.temperature must be between 0 and 2")
	}

	return nil
}
