package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the FHIRSpective server.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	FHIR       FHIRConfig
	Assessment AssessmentConfig
	Databricks DatabricksConfig
}

type ServerConfig struct {
	Port            int
	Env             string
	AuthDisabled    bool
	AllowedOrigins  []string
	RateLimitPerMin int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// FHIRConfig sets defaults applied to registered FHIR servers.
type FHIRConfig struct {
	DefaultTimeout time.Duration
	SampleCacheTTL time.Duration
}

type AssessmentConfig struct {
	// RunTimeout bounds a single assessment run end to end.
	RunTimeout time.Duration
	// MaxSampleSize caps the per-resource-type sample a client may request.
	MaxSampleSize int
}

// DatabricksConfig points at an optional ~/.databrickscfg profile used as a
// fallback when a tenant has not stored a workspace connection.
type DatabricksConfig struct {
	ConfigFile string
	Profile    string
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            envInt("FHIRSPECTIVE_PORT", 8080),
			Env:             envString("FHIRSPECTIVE_ENV", "development"),
			AuthDisabled:    envBool("FHIRSPECTIVE_AUTH_DISABLED", false),
			AllowedOrigins:  envList("CORS_ALLOWED_ORIGINS", []string{"*"}),
			RateLimitPerMin: envInt("RATE_LIMIT_PER_MIN", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		FHIR: FHIRConfig{
			DefaultTimeout: envDuration("FHIR_DEFAULT_TIMEOUT", 30*time.Second),
			SampleCacheTTL: envDuration("FHIR_SAMPLE_CACHE_TTL", 10*time.Minute),
		},
		Assessment: AssessmentConfig{
			RunTimeout:    envDuration("ASSESSMENT_RUN_TIMEOUT", 10*time.Minute),
			MaxSampleSize: envInt("ASSESSMENT_MAX_SAMPLE_SIZE", 1000),
		},
		Databricks: DatabricksConfig{
			ConfigFile: envString("DATABRICKS_CONFIG_FILE", ""),
			Profile:    envString("DATABRICKS_CONFIG_PROFILE", "DEFAULT"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("FHIRSPECTIVE_PORT must be in 1..65535, got %d", c.Server.Port)
	}

	if c.Assessment.MaxSampleSize < 1 {
		return fmt.Errorf("ASSESSMENT_MAX_SAMPLE_SIZE must be positive, got %d", c.Assessment.MaxSampleSize)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}
