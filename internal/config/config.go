package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type ServerConfig struct {
	Host         string
	Port         int
	TLSPort      int
	EnableTLS    bool
	AutoCert     bool
	Domain       string
	CertFile     string
	KeyFile      string
	AutoCertDir  string
	Email        string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	AllowOrigins []string
}

type RedisConfig struct {
	URL         string
	Password    string
	DB          int
	PoolSize    int
	TLSCAFile   string
	TLSCertFile string
	TLSKeyFile  string
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type ScyllaConfig struct {
	Nodes    []string
	Keyspace string
	Username string
	Password string
	CAFile   string
}

type KafkaConfig struct {
	Brokers            []string
	NotificationTopic  string
	PurchaseEventTopic string
	ConsumerGroup      string
}

type ClickhouseConfig struct {
	URL      string
	Username string
	Password string
	Database string
	CAFile   string
}

type KMSConfig struct {
	Enabled bool
	KeyID   string
	Region  string
}

type BucketingConfig struct {
	UserBuckets  int
	EventBuckets int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// AuthConfig drives the signup/OTP flow and token issuance.
type AuthConfig struct {
	OTPTTL                  time.Duration
	PendingSignupTTL        time.Duration
	OTPSendLimit            int
	OTPSendWindow           time.Duration
	OTPPepper               string
	PendingSignupEncryption bool
	LocalDataKeySecret      string

	JWTPrivateKey   string
	JWTPublicKey    string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type WalletConfig struct {
	ReferralBonus decimal.Decimal
}

// IdentityConfig points at the external identity provider's admin API.
type IdentityConfig struct {
	URL            string
	ServiceRoleKey string
	Timeout        time.Duration
}

type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

type Config struct {
	Environment string
	Server      ServerConfig
	Redis       RedisConfig
	Postgres    PostgresConfig
	Scylla      ScyllaConfig
	Kafka       KafkaConfig
	Clickhouse  ClickhouseConfig
	KMS         KMSConfig
	Bucketing   BucketingConfig
	Logging     LoggingConfig
	Auth        AuthConfig
	Wallet      WalletConfig
	Identity    IdentityConfig
	Mail        MailConfig
}

// LoadConfig reads the environment (and a .env file when present).
func LoadConfig() *Config {
	_ = godotenv.Load()

	env := getEnv("APP_ENV", "development")
	return &Config{
		Environment: env,
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			TLSPort:      getEnvInt("SERVER_TLS_PORT", 8443),
			EnableTLS:    getEnvBool("SERVER_ENABLE_TLS", false),
			AutoCert:     getEnvBool("SERVER_AUTO_CERT", false),
			Domain:       getEnv("SERVER_DOMAIN", "localhost"),
			CertFile:     getEnv("SERVER_CERT_FILE", ""),
			KeyFile:      getEnv("SERVER_KEY_FILE", ""),
			AutoCertDir:  getEnv("SERVER_AUTO_CERT_DIR", "./certs"),
			Email:        getEnv("SERVER_ACME_EMAIL", ""),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:  getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			AllowOrigins: getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"https://*"}),
		},
		Redis: RedisConfig{
			URL:         getEnv("REDIS_URL", ""),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvInt("REDIS_DB", 0),
			PoolSize:    getEnvInt("REDIS_POOL_SIZE", 50),
			TLSCAFile:   getEnv("REDIS_TLS_CA_FILE", "/app/certs/ca.crt"),
			TLSCertFile: getEnv("REDIS_TLS_CERT_FILE", "/app/certs/redis.crt"),
			TLSKeyFile:  getEnv("REDIS_TLS_KEY_FILE", "/app/certs/redis.key"),
		},
		Postgres: PostgresConfig{
			DSN:             getEnv("DATABASE_URL", ""),
			MaxOpenConns:    getEnvInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Scylla: ScyllaConfig{
			Nodes:    getEnvSlice("SCYLLA_NODES", nil),
			Keyspace: getEnv("SCYLLA_KEYSPACE", "cashback"),
			Username: getEnv("SCYLLA_USERNAME", ""),
			Password: getEnv("SCYLLA_PASSWORD", ""),
			CAFile:   getEnv("SCYLLA_TLS_CA_FILE", ""),
		},
		Kafka: KafkaConfig{
			Brokers:            getEnvSlice("KAFKA_BROKERS", nil),
			NotificationTopic:  getEnv("KAFKA_NOTIFICATION_TOPIC", "notifications.email"),
			PurchaseEventTopic: getEnv("KAFKA_PURCHASE_TOPIC", "orders.purchase-events"),
			ConsumerGroup:      getEnv("KAFKA_CONSUMER_GROUP", "cashback-worker"),
		},
		Clickhouse: ClickhouseConfig{
			URL:      getEnv("CLICKHOUSE_URL", ""),
			Username: getEnv("CLICKHOUSE_USERNAME", "default"),
			Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			Database: getEnv("CLICKHOUSE_DATABASE", "default"),
			CAFile:   getEnv("CLICKHOUSE_CA_FILE", ""),
		},
		KMS: KMSConfig{
			Enabled: getEnvBool("KMS_ENABLED", false),
			KeyID:   getEnv("KMS_KEY_ID", ""),
			Region:  getEnv("AWS_REGION", "ap-south-1"),
		},
		Bucketing: BucketingConfig{
			UserBuckets:  getEnvInt("USER_BUCKETS", 64),
			EventBuckets: getEnvInt("EVENT_BUCKETS", 16),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", defaultLogFormat(env)),
		},
		Auth: AuthConfig{
			OTPTTL:                  getEnvDuration("OTP_TTL", 10*time.Minute),
			PendingSignupTTL:        getEnvDuration("PENDING_SIGNUP_TTL", 30*time.Minute),
			OTPSendLimit:            getEnvInt("OTP_SEND_LIMIT", 5),
			OTPSendWindow:           getEnvDuration("OTP_SEND_WINDOW", 15*time.Minute),
			OTPPepper:               getEnv("OTP_PEPPER", ""),
			PendingSignupEncryption: getEnvBool("PENDING_SIGNUP_ENCRYPTION", false),
			LocalDataKeySecret:      getEnv("LOCAL_DATA_KEY_SECRET", ""),
			JWTPrivateKey:           getEnv("JWT_PRIVATE_KEY", ""),
			JWTPublicKey:            getEnv("JWT_PUBLIC_KEY", ""),
			JWTIssuer:               getEnv("JWT_ISSUER", "cashback-service"),
			JWTAudience:             getEnv("JWT_AUDIENCE", "cashback-app"),
			AccessTokenTTL:          getEnvDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshTokenTTL:         getEnvDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),
		},
		Wallet: WalletConfig{
			ReferralBonus: getEnvDecimal("REFERRAL_BONUS_AMOUNT", decimal.NewFromInt(50)),
		},
		Identity: IdentityConfig{
			URL:            getEnv("IDENTITY_URL", ""),
			ServiceRoleKey: getEnv("IDENTITY_SERVICE_ROLE_KEY", ""),
			Timeout:        getEnvDuration("IDENTITY_TIMEOUT", 10*time.Second),
		},
		Mail: MailConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("MAIL_FROM", "no-reply@localhost"),
			Timeout:  getEnvDuration("MAIL_TIMEOUT", 15*time.Second),
		},
	}
}

// Validate reports settings the process cannot run without. Production is
// stricter: every secret must be explicit.
func (c *Config) Validate() error {
	var errs []error
	if c.Postgres.DSN == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.Auth.JWTPrivateKey == "" || c.Auth.JWTPublicKey == "" {
		errs = append(errs, errors.New("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required"))
	}
	if c.Identity.URL == "" {
		errs = append(errs, errors.New("IDENTITY_URL is required"))
	}
	if c.Auth.OTPSendLimit <= 0 {
		errs = append(errs, errors.New("OTP_SEND_LIMIT must be positive"))
	}
	if c.Auth.OTPTTL <= 0 || c.Auth.PendingSignupTTL <= 0 {
		errs = append(errs, errors.New("OTP_TTL and PENDING_SIGNUP_TTL must be positive"))
	}
	if c.Wallet.ReferralBonus.IsNegative() {
		errs = append(errs, errors.New("REFERRAL_BONUS_AMOUNT must not be negative"))
	}
	if c.IsProduction() {
		if c.Redis.URL == "" {
			errs = append(errs, errors.New("REDIS_URL is required in production"))
		}
		if c.Auth.OTPPepper == "" {
			errs = append(errs, errors.New("OTP_PEPPER is required in production"))
		}
		if c.Mail.Host == "" {
			errs = append(errs, errors.New("SMTP_HOST is required in production"))
		}
		if c.Auth.PendingSignupEncryption && !c.KMS.Enabled && c.Auth.LocalDataKeySecret == "" {
			errs = append(errs, errors.New("LOCAL_DATA_KEY_SECRET or KMS is required for pending signup encryption"))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func defaultLogFormat(env string) string {
	if env == "production" {
		return "json"
	}
	return "console"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}
