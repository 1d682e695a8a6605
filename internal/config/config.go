package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const devJWTSecret = "dev-secret-change-me"

type Config struct {
	Env  string
	Port int

	// "postgres" or "memory"
	StoreDriver string
	DBURL       string

	JWTSecret    string
	JWTAccessTTL time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisChannel  string

	// S3 compatible object store. Empty endpoint means images go to UploadDir.
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
	S3UseSSL    bool
	S3PublicURL string
	UploadDir   string
	UploadURL   string
	MaxUploadMB int

	ClassifierURL     string
	ClassifierToken   string
	ClassifierLabels  []string
	ClassifierTimeout time.Duration
	UploadTimeout     time.Duration

	// zero-shot confidence below this leaves the category unset
	ClassifierMinScore float64

	CORSOrigins []string

	AdminEmail    string
	AdminPassword string
	AdminName     string
	AdminRole     string

	OTLPEndpoint     string
	TraceSampleRatio float64
	WorkerPort       int
}

// Load reads the process environment once. A .env file in the working
// directory is applied first when present.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		Env:  getEnv("APP_ENV", "dev"),
		Port: getEnvInt("PORT", 8080),

		StoreDriver: strings.ToLower(getEnv("STORE_DRIVER", "postgres")),
		DBURL:       getEnv("DATABASE_URL", buildDBURL()),

		JWTSecret:    getEnv("JWT_SECRET", devJWTSecret),
		JWTAccessTTL: getEnvDuration("JWT_ACCESS_TTL", 7*24*time.Hour),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisChannel:  getEnv("REDIS_CHANNEL", "civichub:issues:events"),

		S3Endpoint:  getEnv("S3_ENDPOINT", ""),
		S3AccessKey: getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey: getEnv("S3_SECRET_KEY", ""),
		S3Bucket:    getEnv("S3_BUCKET", "civichub-issues"),
		S3UseSSL:    getEnvBool("S3_USE_SSL", true),
		S3PublicURL: getEnv("S3_PUBLIC_URL", ""),
		UploadDir:   getEnv("UPLOAD_DIR", "./uploads"),
		UploadURL:   getEnv("UPLOAD_URL", "/uploads"),
		MaxUploadMB: getEnvInt("MAX_UPLOAD_MB", 5),

		ClassifierURL:     getEnv("CLASSIFIER_URL", ""),
		ClassifierToken:   getEnv("CLASSIFIER_TOKEN", ""),
		ClassifierLabels:  getEnvList("CLASSIFIER_LABELS", []string{"road", "water", "sanitation", "electricity", "safety", "other"}),
		ClassifierTimeout: getEnvDuration("CLASSIFIER_TIMEOUT", 3*time.Second),
		UploadTimeout:     getEnvDuration("UPLOAD_TIMEOUT", 10*time.Second),

		ClassifierMinScore: getEnvFloat("CLASSIFIER_MIN_SCORE", 0.3),

		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"http://localhost:5173"}),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "admin"),
		AdminRole:     getEnv("ADMIN_ROLE", "admin"),

		OTLPEndpoint:     getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TraceSampleRatio: getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
		WorkerPort:       getEnvInt("WORKER_PORT", 8081),
	}

	if cfg.Env == "prod" && cfg.JWTSecret == devJWTSecret {
		slog.Error("JWT_SECRET must be set in prod")
		os.Exit(1)
	}

	return cfg
}

func buildDBURL() string {
	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "civichub")
	pass := getEnv("DB_PASSWORD", "civichub")
	name := getEnv("DB_NAME", "civichub")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func (c Config) UsesMemoryStore() bool {
	return c.StoreDriver == "memory"
}

func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env value, using default", "key", key, "value", v)
			return fallback
		}

		return num
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			slog.Warn("invalid float env value, using default", "key", key, "value", v)
			return fallback
		}
		return f
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			slog.Warn("invalid duration env value, using default", "key", key, "value", v)
			return fallback
		}
		return d
	}
	return fallback
}

// comma separated, blanks dropped
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
