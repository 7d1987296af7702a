package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string
	JWTLeeway     time.Duration
	DatabaseURL   string
	LogLevel      string
	LogFormat     string

	Redis     RedisConfig
	LLM       LLMConfig
	RateLimit RateLimitConfig
	Kafka     KafkaConfig

	// MinNecessaryPolicyFile optionally overrides the built-in minimum-necessary
	// field sets (YAML).
	MinNecessaryPolicyFile string
	ShutdownTimeout        time.Duration
}

// RedisConfig configures the optional shared rate-limit counter.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LLMConfig points the assistant at an OpenAI-compatible chat completions API.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds one conversational turn, both provider requests and all
	// tool execution included.
	Timeout time.Duration
}

type RateLimitConfig struct {
	Disabled       bool
	RequestsPerMin int
	Window         time.Duration
}

// KafkaConfig enables the audit outbox relay when Brokers is non-empty.
type KafkaConfig struct {
	Brokers    []string
	AuditTopic string
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// development default, override in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	return Server{
		Addr:                   getEnv("CAREPILOT_ADDR", ":8080"),
		JWTSigningKey:          jwtSigningKey,
		JWTIssuer:              getEnv("JWT_ISSUER", "carepilot"),
		JWTAudience:            getEnv("JWT_AUDIENCE", "carepilot-api"),
		JWTLeeway:              getDuration("JWT_LEEWAY", 30*time.Second),
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		LogLevel:               getEnv("LOG_LEVEL", "info"),
		LogFormat:              getEnv("LOG_FORMAT", "json"),
		MinNecessaryPolicyFile: os.Getenv("MIN_NECESSARY_POLICY_FILE"),
		ShutdownTimeout:        getDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     getInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		LLM: LLMConfig{
			BaseURL: getEnv("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  os.Getenv("LLM_API_KEY"),
			Model:   getEnv("LLM_MODEL", "gpt-4o-mini"),
			Timeout: getDuration("ASSISTANT_TIMEOUT", 60*time.Second),
		},
		RateLimit: RateLimitConfig{
			Disabled:       os.Getenv("RATE_LIMIT_DISABLED") == "true",
			RequestsPerMin: getInt("RATE_LIMIT_PER_MINUTE", 30),
			Window:         getDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:    splitList(os.Getenv("KAFKA_BROKERS")),
			AuditTopic: getEnv("KAFKA_AUDIT_TOPIC", "carepilot.audit"),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
