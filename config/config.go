package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	ServerPort int
	// ClientURL is the public frontend origin used to build email links.
	ClientURL    string
	CookieSecure bool
	LogLevel     string

	Database  DatabaseConfig
	JWT       JWTConfig
	Redis     RedisConfig
	MQ        MQConfig
	Storage   StorageConfig
	SMTP      SMTPConfig
	Google    GoogleOAuthConfig
	RateLimit RateLimitConfig

	// RefreshTokenBackend selects where refresh tokens live: "postgres" or "redis".
	RefreshTokenBackend string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// TokenConfig holds the secret and lifetime of one token kind.
type TokenConfig struct {
	Secret string
	TTL    time.Duration
}

type JWTConfig struct {
	Access         TokenConfig
	Refresh        TokenConfig
	EmailVerify    TokenConfig
	ForgotPassword TokenConfig
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type MQConfig struct {
	// Backend is one of "", "rabbitmq", "pubsub".
	Backend  string
	RabbitMQ RabbitMQConfig
	PubSub   PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	PrefetchCount   int
	QueueDurable    bool
	QueueAutoDelete bool
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type StorageConfig struct {
	// Backend is one of "", "minio", "gcs", "s3".
	Backend string
	// PublicBaseURL prefixes object keys when building cover photo URLs.
	PublicBaseURL string
	Minio         MinioConfig
	GCS           GCSConfig
	S3            S3Config
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

// Enabled reports whether an SMTP host was configured.
func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	// ClientCallbackURL is where the browser lands after a successful OAuth login.
	ClientCallbackURL string
}

// Enabled reports whether Google OAuth credentials were configured.
func (c GoogleOAuthConfig) Enabled() bool {
	return strings.TrimSpace(c.ClientID) != "" && strings.TrimSpace(c.ClientSecret) != ""
}

// RateLimitConfig bounds login and email-sending attempts. It only takes
// effect when Redis is configured.
type RateLimitConfig struct {
	MaxAttempts int
	// AccountMaxAttempts bounds login attempts per email across all
	// client addresses.
	AccountMaxAttempts int
	Window             time.Duration
}

func LoadConfig() Config {
	env := getEnv("ENV", "production")
	if env == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "boardsync"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "boardsync_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	jwtConfig := JWTConfig{
		Access: TokenConfig{
			Secret: getEnv("JWT_SECRET_ACCESS_TOKEN", ""),
			TTL:    getEnvDuration("ACCESS_TOKEN_EXPIRES_IN", 15*time.Minute),
		},
		Refresh: TokenConfig{
			Secret: getEnv("JWT_SECRET_REFRESH_TOKEN", ""),
			TTL:    getEnvDuration("REFRESH_TOKEN_EXPIRES_IN", 7*24*time.Hour),
		},
		EmailVerify: TokenConfig{
			Secret: getEnv("JWT_SECRET_EMAIL_VERIFY_TOKEN", ""),
			TTL:    getEnvDuration("EMAIL_VERIFY_TOKEN_EXPIRES_IN", 7*24*time.Hour),
		},
		ForgotPassword: TokenConfig{
			Secret: getEnv("JWT_SECRET_FORGOT_PASSWORD_TOKEN", ""),
			TTL:    getEnvDuration("FORGOT_PASSWORD_TOKEN_EXPIRES_IN", 7*24*time.Hour),
		},
	}

	return Config{
		Env:                 env,
		ServerPort:          getEnvInt("SERVER_PORT", 8080),
		ClientURL:           getEnv("CLIENT_URL", "http://localhost:3000"),
		CookieSecure:        getEnvBool("COOKIE_SECURE", true),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		Database:            dbConfig,
		JWT:                 jwtConfig,
		RefreshTokenBackend: getEnv("REFRESH_TOKEN_BACKEND", "postgres"),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		MQ: MQConfig{
			Backend: getEnv("MQ_BACKEND", ""),
			RabbitMQ: RabbitMQConfig{
				URL:             getEnv("RABBITMQ_URL", ""),
				PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
				QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
				QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			},
			PubSub: PubSubConfig{
				ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
				CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
				SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
			},
		},
		Storage: StorageConfig{
			Backend:       getEnv("STORAGE_BACKEND", ""),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", ""),
			Minio: MinioConfig{
				Endpoint:  getEnv("MINIO_ENDPOINT", ""),
				AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
				SecretKey: getEnv("MINIO_SECRET_KEY", ""),
				Bucket:    getEnv("MINIO_BUCKET", "board-covers"),
				UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			},
			GCS: GCSConfig{
				Bucket:          getEnv("GCS_BUCKET", ""),
				ProjectID:       getEnv("GCS_PROJECT_ID", ""),
				CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
			},
			S3: S3Config{
				Endpoint:  getEnv("S3_ENDPOINT", ""),
				Region:    getEnv("S3_REGION", "auto"),
				AccessKey: getEnv("S3_ACCESS_KEY", ""),
				SecretKey: getEnv("S3_SECRET_KEY", ""),
				Bucket:    getEnv("S3_BUCKET", ""),
			},
		},
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			User:     getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@boardsync.local"),
		},
		Google: GoogleOAuthConfig{
			ClientID:          getEnv("GOOGLE_CLIENT_ID", ""),
			ClientSecret:      getEnv("GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:       getEnv("GOOGLE_REDIRECT_URI", ""),
			ClientCallbackURL: getEnv("CLIENT_REDIRECT_CALLBACK", ""),
		},
		RateLimit: RateLimitConfig{
			MaxAttempts:        getEnvInt("RATE_LIMIT_MAX_ATTEMPTS", 5),
			AccountMaxAttempts: getEnvInt("RATE_LIMIT_ACCOUNT_MAX_ATTEMPTS", 20),
			Window:             getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
	}
}

// Validate reports configuration that would make the server unusable.
func (c Config) Validate() error {
	var errs []error
	secrets := map[string]string{
		"JWT_SECRET_ACCESS_TOKEN":          c.JWT.Access.Secret,
		"JWT_SECRET_REFRESH_TOKEN":         c.JWT.Refresh.Secret,
		"JWT_SECRET_EMAIL_VERIFY_TOKEN":    c.JWT.EmailVerify.Secret,
		"JWT_SECRET_FORGOT_PASSWORD_TOKEN": c.JWT.ForgotPassword.Secret,
	}
	for _, name := range []string{
		"JWT_SECRET_ACCESS_TOKEN",
		"JWT_SECRET_REFRESH_TOKEN",
		"JWT_SECRET_EMAIL_VERIFY_TOKEN",
		"JWT_SECRET_FORGOT_PASSWORD_TOKEN",
	} {
		if strings.TrimSpace(secrets[name]) == "" {
			errs = append(errs, fmt.Errorf("%s is required", name))
		}
	}
	for name, tc := range map[string]TokenConfig{
		"access":          c.JWT.Access,
		"refresh":         c.JWT.Refresh,
		"email verify":    c.JWT.EmailVerify,
		"forgot password": c.JWT.ForgotPassword,
	} {
		if tc.TTL <= 0 {
			errs = append(errs, fmt.Errorf("%s token ttl must be positive", name))
		}
	}
	switch c.RefreshTokenBackend {
	case "postgres":
	case "redis":
		if !c.Redis.Enabled() {
			errs = append(errs, errors.New("REDIS_ADDR is required when REFRESH_TOKEN_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown refresh token backend %q", c.RefreshTokenBackend))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("15m") and the "7d" day shorthand.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	valueStr = strings.TrimSpace(valueStr)
	if days, ok := strings.CutSuffix(valueStr, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return defaultValue
		}
		return time.Duration(n) * 24 * time.Hour
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
