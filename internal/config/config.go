package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/durantgrace/phoneotp/internal/sms"
	"golang.org/x/crypto/bcrypt"
)

const (
	StoreRedis    = "redis"
	StoreDynamoDB = "dynamodb"

	ProviderSemaphore = "semaphore"
	ProviderSNS       = "sns"
	ProviderConsole   = "console"

	CodeSourceLocal  = "local"
	CodeSourceVendor = "vendor"

	CodeMatchStripLeadingZeros = "strip-leading-zeros"
	CodeMatchExact             = "exact"

	// CodePlaceholder is substituted with the code in SMS templates.
	CodePlaceholder = sms.Placeholder

	defaultTemplate = "DURANTGRACE: Pakigamit ang OTP {otp} to confirm your order."
)

type Config struct {
	Server   ServerConfig
	Log      LogConfig
	Store    StoreConfig
	Redis    RedisConfig
	DynamoDB DynamoDBConfig
	SMS      SMSConfig
	OTP      OTPConfig
	JWT      JWTConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type LogConfig struct {
	Level  string
	Format string
}

type StoreConfig struct {
	Backend string
}

type RedisConfig struct {
	URL             string
	Endpoint        string
	Password        string
	DB              int
	TLS             bool
	DialTimeout     time.Duration
	MaxRetries      int
	MinRetryBackoff time.Duration
	MaxRetryBackoff time.Duration
}

type DynamoDBConfig struct {
	Endpoint  string
	Region    string
	TableName string
}

type SMSConfig struct {
	Provider         string
	SenderName       string
	Template         string
	SendTimeout      time.Duration
	SemaphoreAPIKey  string
	SemaphoreBaseURL string
	SNSRegion        string
}

type OTPConfig struct {
	CodeSource    string
	CodeMatch     string
	Expiry        time.Duration
	MaxIssuances  int
	IssueWindow   time.Duration
	MaxAttempts   int
	AttemptWindow time.Duration
	MarkVerified  bool
	VerifiedTTL   time.Duration
	HashCost      int
	StoreTimeout  time.Duration
}

type JWTConfig struct {
	SecretKey          string
	VerificationExpiry time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "10000"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("LOG_FORMAT", "json")),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(getEnv("STORE_BACKEND", StoreRedis)),
		},
		Redis: RedisConfig{
			URL:             getEnv("REDIS_URL", ""),
			Endpoint:        getEnv("REDIS_ENDPOINT", "localhost:6379"),
			Password:        getEnv("REDIS_PASSWORD", ""),
			DB:              getEnvAsInt("REDIS_DB", 0),
			TLS:             getEnvAsBool("REDIS_TLS", false),
			DialTimeout:     getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			MaxRetries:      getEnvAsInt("REDIS_MAX_RETRIES", 3),
			MinRetryBackoff: getEnvAsDuration("REDIS_MIN_RETRY_BACKOFF", 50*time.Millisecond),
			MaxRetryBackoff: getEnvAsDuration("REDIS_MAX_RETRY_BACKOFF", 2*time.Second),
		},
		DynamoDB: DynamoDBConfig{
			Endpoint:  getEnv("DYNAMODB_ENDPOINT", ""),
			Region:    getEnv("DYNAMODB_REGION", "ap-southeast-1"),
			TableName: getEnv("DYNAMODB_TABLE_NAME", "OTPStore"),
		},
		SMS: SMSConfig{
			Provider:         strings.ToLower(getEnv("SMS_PROVIDER", ProviderConsole)),
			SenderName:       getEnv("SMS_SENDER_NAME", ""),
			Template:         getEnv("SMS_MESSAGE_TEMPLATE", defaultTemplate),
			SendTimeout:      getEnvAsDuration("SMS_SEND_TIMEOUT", 10*time.Second),
			SemaphoreAPIKey:  getEnv("SEMAPHORE_API_KEY", ""),
			SemaphoreBaseURL: getEnv("SEMAPHORE_BASE_URL", "https://api.semaphore.co/api/v4"),
			SNSRegion:        getEnv("SNS_REGION", "ap-southeast-1"),
		},
		OTP: OTPConfig{
			CodeSource:    strings.ToLower(getEnv("OTP_CODE_SOURCE", CodeSourceLocal)),
			CodeMatch:     strings.ToLower(getEnv("OTP_CODE_MATCH", CodeMatchStripLeadingZeros)),
			Expiry:        getEnvAsDuration("OTP_EXPIRY", 5*time.Minute),
			MaxIssuances:  getEnvAsInt("OTP_MAX_ISSUANCES", 3),
			IssueWindow:   getEnvAsDuration("OTP_ISSUE_WINDOW", 24*time.Hour),
			MaxAttempts:   getEnvAsInt("OTP_MAX_ATTEMPTS", 5),
			AttemptWindow: getEnvAsDuration("OTP_ATTEMPT_WINDOW", 5*time.Minute),
			MarkVerified:  getEnvAsBool("OTP_MARK_VERIFIED", true),
			VerifiedTTL:   getEnvAsDuration("OTP_VERIFIED_TTL", 5*time.Minute),
			HashCost:      getEnvAsInt("OTP_HASH_COST", bcrypt.DefaultCost),
			StoreTimeout:  getEnvAsDuration("OTP_STORE_TIMEOUT", 3*time.Second),
		},
		JWT: JWTConfig{
			SecretKey:          getEnv("JWT_SECRET_KEY", ""),
			VerificationExpiry: getEnvAsDuration("JWT_VERIFICATION_EXPIRY", 5*time.Minute),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that env parsing alone cannot.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreRedis, StoreDynamoDB:
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreRedis, StoreDynamoDB, c.Store.Backend)
	}

	switch c.SMS.Provider {
	case ProviderSemaphore:
		if c.SMS.SemaphoreAPIKey == "" {
			return fmt.Errorf("SEMAPHORE_API_KEY environment variable is required for the semaphore provider")
		}
	case ProviderSNS, ProviderConsole:
	default:
		return fmt.Errorf("SMS_PROVIDER must be one of semaphore, sns, console, got %q", c.SMS.Provider)
	}

	if n := strings.Count(c.SMS.Template, CodePlaceholder); n != 1 {
		return fmt.Errorf("SMS_MESSAGE_TEMPLATE must contain %s exactly once, found %d", CodePlaceholder, n)
	}

	switch c.OTP.CodeSource {
	case CodeSourceLocal:
	case CodeSourceVendor:
		if c.SMS.Provider != ProviderSemaphore {
			return fmt.Errorf("OTP_CODE_SOURCE=vendor requires SMS_PROVIDER=semaphore")
		}
	default:
		return fmt.Errorf("OTP_CODE_SOURCE must be %q or %q, got %q", CodeSourceLocal, CodeSourceVendor, c.OTP.CodeSource)
	}

	switch c.OTP.CodeMatch {
	case CodeMatchStripLeadingZeros, CodeMatchExact:
	default:
		return fmt.Errorf("OTP_CODE_MATCH must be %q or %q, got %q", CodeMatchStripLeadingZeros, CodeMatchExact, c.OTP.CodeMatch)
	}

	if c.OTP.MaxIssuances < 1 || c.OTP.MaxAttempts < 1 {
		return fmt.Errorf("OTP_MAX_ISSUANCES and OTP_MAX_ATTEMPTS must be positive")
	}

	if c.OTP.HashCost < bcrypt.MinCost || c.OTP.HashCost > bcrypt.MaxCost {
		return fmt.Errorf("OTP_HASH_COST must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	if c.JWT.SecretKey != "" && len(c.JWT.SecretKey) < 32 {
		return fmt.Errorf("JWT_SECRET_KEY must be at least 32 bytes (256 bits)")
	}

	return nil
}

// Address returns the listen address for http.Server.
func (c ServerConfig) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return ":" + c.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
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
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
