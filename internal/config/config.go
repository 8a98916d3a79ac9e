package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "RESOURCE_SELECTOR_"

const (
	FeedbackBackendMemory   = "memory"
	FeedbackBackendPostgres = "postgres"
	FeedbackBackendRedis    = "redis"

	FailModeOpen   = "open"
	FailModeClosed = "closed"
)

type Config struct {
	Addr        string
	DatabaseURL string
	CatalogFile string
	LogLevel    string
	DevLogging  bool

	SentinelURL        string
	SentinelTimeout    time.Duration
	SentinelRetries    int
	SentinelFailMode   string
	SentinelPolicyExpr string
	SentinelDenyList   []string

	FeedbackBackend        string
	RedisAddr              string
	RedisPassword          string
	RedisDB                int
	KafkaBrokers           []string
	KafkaTopic             string
	S3Bucket               string
	S3Prefix               string
	FeedbackRetention      int
	FeedbackRotateInterval time.Duration

	BatchConcurrency int

	JWTPublicKeyFile string
	AllowDebugToken  bool
	DebugToken       string

	OTLPEndpoint    string
	OTLPInsecure    bool
	TraceSampleRate float64
}

const (
	defaultAddr             = ":8070"
	defaultSentinelTimeout  = 5 * time.Second
	defaultSentinelRetries  = 2
	defaultKafkaTopic       = "resource-selector.feedback"
	defaultS3Prefix         = "resource-selector"
	defaultRetention        = 1000
	defaultRotateInterval   = 5 * time.Minute
	defaultBatchConcurrency = 8
	defaultLogLevel         = "info"
)

// Load reads the service configuration from the environment.
func Load() (Config, error) {
	cfg := Config{
		Addr:        getEnv("ADDR", defaultAddr),
		DatabaseURL: firstNonEmpty(os.Getenv(envPrefix+"DATABASE_URL"), os.Getenv("DATABASE_URL")),
		CatalogFile: os.Getenv(envPrefix + "CATALOG_FILE"),
		LogLevel:    getEnv("LOG_LEVEL", defaultLogLevel),
		DevLogging:  getBool("DEV_LOGGING", false),

		SentinelURL:        os.Getenv(envPrefix + "SENTINEL_URL"),
		SentinelTimeout:    getDuration("SENTINEL_TIMEOUT", defaultSentinelTimeout),
		SentinelRetries:    getInt("SENTINEL_RETRIES", defaultSentinelRetries),
		SentinelFailMode:   strings.ToLower(getEnv("SENTINEL_FAIL_MODE", FailModeOpen)),
		SentinelPolicyExpr: os.Getenv(envPrefix + "SENTINEL_POLICY_EXPR"),
		SentinelDenyList:   parseCSV(os.Getenv(envPrefix + "SENTINEL_DENY_ACTIONS")),

		FeedbackBackend:        strings.ToLower(getEnv("FEEDBACK_BACKEND", FeedbackBackendMemory)),
		RedisAddr:              os.Getenv(envPrefix + "REDIS_ADDR"),
		RedisPassword:          os.Getenv(envPrefix + "REDIS_PASSWORD"),
		RedisDB:                getInt("REDIS_DB", 0),
		KafkaBrokers:           parseCSV(os.Getenv(envPrefix + "KAFKA_BROKERS")),
		KafkaTopic:             getEnv("KAFKA_TOPIC", defaultKafkaTopic),
		S3Bucket:               os.Getenv(envPrefix + "S3_BUCKET"),
		S3Prefix:               getEnv("S3_PREFIX", defaultS3Prefix),
		FeedbackRetention:      getInt("FEEDBACK_RETENTION", defaultRetention),
		FeedbackRotateInterval: getDuration("FEEDBACK_ROTATE_INTERVAL", defaultRotateInterval),

		BatchConcurrency: getInt("BATCH_CONCURRENCY", defaultBatchConcurrency),

		JWTPublicKeyFile: os.Getenv(envPrefix + "JWT_PUBLIC_KEY_FILE"),
		AllowDebugToken:  getBool("ALLOW_DEBUG_TOKEN", false),
		DebugToken:       os.Getenv(envPrefix + "DEBUG_TOKEN"),

		OTLPEndpoint:    firstNonEmpty(os.Getenv(envPrefix+"OTLP_ENDPOINT"), os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		OTLPInsecure:    getBool("OTLP_INSECURE", true),
		TraceSampleRate: getFloat("TRACE_SAMPLE_RATE", 1),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.FeedbackBackend {
	case FeedbackBackendMemory:
	case FeedbackBackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL or %sDATABASE_URL required for postgres feedback backend", envPrefix)
		}
	case FeedbackBackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%sREDIS_ADDR required for redis feedback backend", envPrefix)
		}
	default:
		return fmt.Errorf("unknown feedback backend %q", c.FeedbackBackend)
	}
	if c.SentinelFailMode != FailModeOpen && c.SentinelFailMode != FailModeClosed {
		return fmt.Errorf("%sSENTINEL_FAIL_MODE must be %q or %q", envPrefix, FailModeOpen, FailModeClosed)
	}
	if c.BatchConcurrency <= 0 {
		return fmt.Errorf("%sBATCH_CONCURRENCY must be positive", envPrefix)
	}
	if c.FeedbackRetention <= 0 {
		return fmt.Errorf("%sFEEDBACK_RETENTION must be positive", envPrefix)
	}
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("%sTRACE_SAMPLE_RATE must be within [0,1]", envPrefix)
	}
	if c.AllowDebugToken && c.DebugToken == "" {
		return fmt.Errorf("%sDEBUG_TOKEN required when debug token is allowed", envPrefix)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if v := os.Getenv(envPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getDuration accepts Go duration strings or a bare number of milliseconds.
func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(envPrefix + key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return fallback
}

func parseCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
