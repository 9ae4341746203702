// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config holds settings for both the API server and the render worker.
type Config struct {
	HTTPPort    string `env:"HTTP_PORT" env-default:"8080"`
	DatabaseURL string `env:"DATABASE_URL" env-required:"true"`
	RedisAddr   string `env:"REDIS_ADDR" env-required:"true"`
	RedisPass   string `env:"REDIS_PASSWORD" env-default:""`

	QueueName          string        `env:"RENDER_QUEUE_NAME" env-default:"recap:render"`
	QueueMaxAttempts   int           `env:"RENDER_QUEUE_MAX_ATTEMPTS" env-default:"3"`
	QueueBackoffBase   time.Duration `env:"RENDER_QUEUE_BACKOFF_BASE" env-default:"5s"`
	QueueVisibility    time.Duration `env:"RENDER_QUEUE_VISIBILITY_TIMEOUT" env-default:"15m"`
	QueueDeadRetention int64         `env:"RENDER_QUEUE_DEAD_RETENTION" env-default:"50"`

	WorkerConcurrency int `env:"WORKER_CONCURRENCY" env-default:"2"`
	// RenderTimeout bounds a single engine call. Zero means unbounded, which
	// matches the render engine's own lack of a deadline.
	RenderTimeout time.Duration `env:"RENDER_TIMEOUT" env-default:"0"`

	RendererBaseURL string `env:"RENDERER_HTTP_BASEURL" env-default:"http://localhost:3100"`
	RenderScratch   string `env:"RENDER_SCRATCH_DIR" env-default:"/tmp/recap-renders"`

	StorageProvider    string        `env:"STORAGE_PROVIDER" env-default:"localfs"`
	StorageLocalRoot   string        `env:"STORAGE_LOCAL_ROOT" env-default:"/data"`
	GDriveClientID     string        `env:"GDRIVE_CLIENT_ID" env-default:""`
	GDriveClientSecret string        `env:"GDRIVE_CLIENT_SECRET" env-default:""`
	GDriveRefreshToken string        `env:"GDRIVE_REFRESH_TOKEN" env-default:""`
	GDriveFolderID     string        `env:"GDRIVE_FOLDER_ID" env-default:""`
	SignedURLBase      string        `env:"SIGNED_URL_BASE" env-default:"http://localhost:8080/artifacts"`
	SignedURLSecret    string        `env:"SIGNED_URL_SECRET" env-default:""`
	SignedURLTTL       time.Duration `env:"SIGNED_URL_TTL" env-default:"1h"`

	CORSOrigins []string `env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:5173"`

	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	LogFormat string `env:"LOG_FORMAT" env-default:"json"`
}

// Load reads .env if present, then populates Config from the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.WorkerConcurrency < 1 {
		cfg.WorkerConcurrency = 1
	}
	if cfg.QueueMaxAttempts < 1 {
		cfg.QueueMaxAttempts = 1
	}
	return cfg, nil
}
