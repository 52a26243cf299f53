package config

import (
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
)

type Config struct {
	Origin    OriginConfig
	Source    StoreConfig
	Cache     StoreConfig
	Transform TransformConfig
	Queue     QueueConfig
	Worker    WorkerConfig
	Database  DatabaseConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Trace     TraceConfig
}

type OriginConfig struct {
	Addr string
}

// StoreConfig addresses one S3-compatible bucket, either through a regional
// endpoint or a multi-region access alias.
type StoreConfig struct {
	Endpoint    string
	AccessKey   string
	SecretKey   string
	Bucket      string
	GlobalAlias string
	UseSSL      bool
}

type TransformConfig struct {
	CacheTTLSeconds int
	DefaultQuality  int
	Region          string
}

type QueueConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Name          string
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency   int
	MaxActiveJobs int
	MetricsAddr   string
}

type DatabaseConfig struct {
	DSN string
}

type RateLimitConfig struct {
	PrewarmCapacity int
	PrewarmWindow   time.Duration
}

type WebhookConfig struct {
	SigningSecret string
}

type TraceConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

func Load() Config {
	defaultWorkerSlots := max(1, runtime.NumCPU()/2)

	return Config{
		Origin: OriginConfig{
			Addr: env("PIXELGATE_ADDR", ":8080"),
		},
		Source: StoreConfig{
			Endpoint:    env("S3_ENDPOINT", "localhost:9000"),
			AccessKey:   env("S3_ACCESS_KEY", "minioadmin"),
			SecretKey:   env("S3_SECRET_KEY", "minioadmin"),
			Bucket:      env("SOURCE_BUCKET", "pixelgate-sources"),
			GlobalAlias: env("SOURCE_MRAP_ALIAS", ""),
			UseSSL:      envBool("S3_USE_SSL", false),
		},
		Cache: StoreConfig{
			Endpoint:    env("S3_ENDPOINT", "localhost:9000"),
			AccessKey:   env("S3_ACCESS_KEY", "minioadmin"),
			SecretKey:   env("S3_SECRET_KEY", "minioadmin"),
			Bucket:      env("DERIVATIVE_BUCKET", ""),
			GlobalAlias: env("DERIVATIVE_MRAP_ALIAS", ""),
			UseSSL:      envBool("S3_USE_SSL", false),
		},
		Transform: TransformConfig{
			CacheTTLSeconds: envInt("CACHE_TTL_SECONDS", 31536000),
			DefaultQuality:  envInt("DEFAULT_QUALITY", 75),
			Region:          env("TRANSFORM_REGION", "us-east-1"),
		},
		Queue: QueueConfig{
			RedisAddr:     env("REDIS_ADDR", "localhost:6379"),
			RedisPassword: env("REDIS_PASSWORD", ""),
			RedisDB:       envInt("REDIS_DB", 0),
			Name:          env("ASYNC_QUEUE", "default"),
		},
		Worker: WorkerConfig{
			Concurrency:   envInt("WORKER_CONCURRENCY", max(2, runtime.NumCPU())),
			MaxActiveJobs: envInt("WORKER_MAX_ACTIVE_JOBS", defaultWorkerSlots),
			MetricsAddr:   env("WORKER_METRICS_ADDR", ":9090"),
		},
		Database: DatabaseConfig{
			DSN: env("POSTGRES_DSN", ""),
		},
		RateLimit: RateLimitConfig{
			PrewarmCapacity: envInt("PREWARM_RATE_LIMIT", 30),
			PrewarmWindow:   time.Duration(envInt("PREWARM_RATE_WINDOW_SECONDS", 60)) * time.Second,
		},
		Webhook: WebhookConfig{
			SigningSecret: env("WEBHOOK_SIGNING_SECRET", ""),
		},
		Trace: TraceConfig{
			Exporter:     env("TRACE_EXPORTER", ""),
			OTLPEndpoint: env("OTLP_ENDPOINT", ""),
			OTLPInsecure: envBool("OTLP_INSECURE", false),
		},
	}
}

// CachingEnabled reports whether derivatives should be written back to a
// cache bucket at all.
func (c Config) CachingEnabled() bool {
	return c.Cache.Bucket != "" || c.Cache.GlobalAlias != ""
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
