package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	Auth          AuthConfig
	CORS          CORSConfig
	Log           LogConfig
	Workflow      WorkflowConfig
	Sweeper       SweeperConfig
	Notifications NotificationsConfig
	Slips         SlipsConfig
	Aggregation   AggregationConfig
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
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// AuthConfig verifies bearer tokens minted by the institutional SSO gateway.
// The service never issues tokens of its own.
type AuthConfig struct {
	JWTSecret string
	Issuer    string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// WorkflowConfig carries the borrowing workflow knobs.
type WorkflowConfig struct {
	RequestExpiryDays         int
	ResponseFormValidityHours int
	MaxItemsPerRequest        int
}

// RequestExpiry returns the overall request lifetime.
func (w WorkflowConfig) RequestExpiry() time.Duration {
	return time.Duration(w.RequestExpiryDays) * 24 * time.Hour
}

// ResponseFormValidity returns the lifetime of building response tokens.
func (w WorkflowConfig) ResponseFormValidity() time.Duration {
	return time.Duration(w.ResponseFormValidityHours) * time.Hour
}

// SweeperConfig controls the background expiry sweep.
type SweeperConfig struct {
	Enabled  bool
	Interval time.Duration
}

// NotificationsConfig configures the outbound notification channels.
type NotificationsConfig struct {
	EmailEnabled      bool
	LineEnabled       bool
	SendgridAPIKey    string
	SenderEmail       string
	SenderName        string
	LineChannelToken  string
	LinePushEndpoint  string
	FormBaseURL       string
	SlipBaseURL       string
	WorkerConcurrency int
	WorkerRetries     int
}

// SlipsConfig controls borrow-slip storage and download links.
type SlipsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

// AggregationConfig tunes the cached availability projection.
type AggregationConfig struct {
	CacheTTL time.Duration
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
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

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
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Auth = AuthConfig{
		JWTSecret: v.GetString("SSO_JWT_SECRET"),
		Issuer:    v.GetString("SSO_JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Workflow = WorkflowConfig{
		RequestExpiryDays:         v.GetInt("REQUEST_EXPIRY_DAYS"),
		ResponseFormValidityHours: v.GetInt("RESPONSE_FORM_VALIDITY_HOURS"),
		MaxItemsPerRequest:        v.GetInt("MAX_ITEMS_PER_REQUEST"),
	}

	cfg.Sweeper = SweeperConfig{
		Enabled:  v.GetBool("ENABLE_SWEEPER"),
		Interval: parseDuration(v.GetString("SWEEP_INTERVAL"), 5*time.Minute),
	}

	cfg.Notifications = NotificationsConfig{
		EmailEnabled:      v.GetBool("ENABLE_EMAIL_NOTIFICATIONS"),
		LineEnabled:       v.GetBool("ENABLE_LINE_NOTIFICATIONS"),
		SendgridAPIKey:    v.GetString("SENDGRID_API_KEY"),
		SenderEmail:       v.GetString("SENDER_EMAIL"),
		SenderName:        v.GetString("SENDER_NAME"),
		LineChannelToken:  v.GetString("LINE_CHANNEL_ACCESS_TOKEN"),
		LinePushEndpoint:  v.GetString("LINE_PUSH_ENDPOINT"),
		FormBaseURL:       v.GetString("RESPONSE_FORM_BASE_URL"),
		SlipBaseURL:       v.GetString("SLIP_BASE_URL"),
		WorkerConcurrency: v.GetInt("NOTIFY_WORKER_CONCURRENCY"),
		WorkerRetries:     v.GetInt("NOTIFY_WORKER_RETRIES"),
	}

	cfg.Slips = SlipsConfig{
		StorageDir:      v.GetString("SLIPS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("SLIPS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("SLIPS_SIGNED_URL_TTL"), 7*24*time.Hour),
	}

	cfg.Aggregation = AggregationConfig{
		CacheTTL: parseDuration(v.GetString("AGGREGATION_CACHE_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "equiloan")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SSO_JWT_SECRET", "dev_secret")
	v.SetDefault("SSO_JWT_ISSUER", "campus-sso")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("REQUEST_EXPIRY_DAYS", 30)
	v.SetDefault("RESPONSE_FORM_VALIDITY_HOURS", 48)
	v.SetDefault("MAX_ITEMS_PER_REQUEST", 10)

	v.SetDefault("ENABLE_SWEEPER", true)
	v.SetDefault("SWEEP_INTERVAL", "5m")

	v.SetDefault("ENABLE_EMAIL_NOTIFICATIONS", false)
	v.SetDefault("ENABLE_LINE_NOTIFICATIONS", false)
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("SENDER_EMAIL", "equipment@campus.example")
	v.SetDefault("SENDER_NAME", "Equipment Loan Office")
	v.SetDefault("LINE_CHANNEL_ACCESS_TOKEN", "")
	v.SetDefault("LINE_PUSH_ENDPOINT", "https://api.line.me/v2/bot/message/push")
	v.SetDefault("RESPONSE_FORM_BASE_URL", "http://localhost:3000/response-forms")
	v.SetDefault("SLIP_BASE_URL", "http://localhost:8080/api/v1/slips")
	v.SetDefault("NOTIFY_WORKER_CONCURRENCY", 2)
	v.SetDefault("NOTIFY_WORKER_RETRIES", 3)

	v.SetDefault("SLIPS_STORAGE_DIR", "./slips")
	v.SetDefault("SLIPS_SIGNED_URL_SECRET", "dev_slips_secret")
	v.SetDefault("SLIPS_SIGNED_URL_TTL", "168h")

	v.SetDefault("AGGREGATION_CACHE_TTL", "5m")
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
