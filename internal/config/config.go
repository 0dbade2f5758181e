package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`
	JWTSecret   string   `mapstructure:"JWT_SECRET"`

	// Alert stream fan-out. Disabled when REDIS_URL is empty.
	RedisURL    string `mapstructure:"REDIS_URL"`
	AlertStream string `mapstructure:"ALERT_STREAM"`

	// External collaborators.
	OCRURL          string `mapstructure:"OCR_URL"`
	OCRTimeoutMS    int    `mapstructure:"OCR_TIMEOUT_MS"`
	ChatURL         string `mapstructure:"CHAT_URL"`
	ChatTimeoutMS   int    `mapstructure:"CHAT_TIMEOUT_MS"`
	UpstreamRetries int    `mapstructure:"UPSTREAM_RETRIES"`

	// Pipeline tuning.
	RiskWindowDays      int     `mapstructure:"RISK_WINDOW_DAYS"`
	AnomalyDeviationPct float64 `mapstructure:"ANOMALY_DEVIATION_PCT"`
	MatchThreshold      float64 `mapstructure:"MATCH_THRESHOLD"`
	VocabCSV            string  `mapstructure:"VOCAB_CSV"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("ALERT_STREAM", "carepulse:alerts")
	v.SetDefault("OCR_TIMEOUT_MS", 15000)
	v.SetDefault("CHAT_TIMEOUT_MS", 10000)
	v.SetDefault("UPSTREAM_RETRIES", 2)
	v.SetDefault("RISK_WINDOW_DAYS", 7)
	v.SetDefault("ANOMALY_DEVIATION_PCT", 20)
	v.SetDefault("MATCH_THRESHOLD", 0.8)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("REDIS_URL")
	v.BindEnv("ALERT_STREAM")
	v.BindEnv("OCR_URL")
	v.BindEnv("OCR_TIMEOUT_MS")
	v.BindEnv("CHAT_URL")
	v.BindEnv("CHAT_TIMEOUT_MS")
	v.BindEnv("UPSTREAM_RETRIES")
	v.BindEnv("RISK_WINDOW_DAYS")
	v.BindEnv("ANOMALY_DEVIATION_PCT")
	v.BindEnv("MATCH_THRESHOLD")
	v.BindEnv("VOCAB_CSV")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() && cfg.JWTSecret == "" {
		cfg.JWTSecret = "carepulse-dev-secret"
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: JWT_SECRET is unset; using an insecure built-in dev secret.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// OCRTimeout returns the per-request deadline for the OCR collaborator.
func (c *Config) OCRTimeout() time.Duration {
	return time.Duration(c.OCRTimeoutMS) * time.Millisecond
}

// ChatTimeout returns the per-request deadline for the chat collaborator.
func (c *Config) ChatTimeout() time.Duration {
	return time.Duration(c.ChatTimeoutMS) * time.Millisecond
}

// Validate checks that the configuration is safe to run. Production
// requires a real JWT secret; the pipeline knobs must stay inside the
// ranges the scoring and matching code assumes.
func (c *Config) Validate() error {
	if c.IsProduction() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("MATCH_THRESHOLD must be in (0,1], got %v", c.MatchThreshold)
	}
	if c.AnomalyDeviationPct <= 0 {
		return fmt.Errorf("ANOMALY_DEVIATION_PCT must be positive, got %v", c.AnomalyDeviationPct)
	}
	if c.RiskWindowDays < 1 {
		return fmt.Errorf("RISK_WINDOW_DAYS must be at least 1, got %d", c.RiskWindowDays)
	}
	if c.UpstreamRetries < 0 {
		return fmt.Errorf("UPSTREAM_RETRIES must not be negative, got %d", c.UpstreamRetries)
	}
	return nil
}
