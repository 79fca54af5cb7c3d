package config

import (
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	TZ          string `envconfig:"TZ" default:"America/Los_Angeles"`
	Port        int    `envconfig:"PORT" default:"8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`
	APIToken    string `envconfig:"API_TOKEN"`
	RandSeed    uint64 `envconfig:"RAND_SEED"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Locks struct {
		Store      string `envconfig:"LOCK_STORE" default:"postgres"`
		SQLitePath string `envconfig:"SQLITE_PATH" default:"./data/locks.db"`
	} `envconfig:""`

	Engine struct {
		BaseURL string        `envconfig:"ENGINE_BASE_URL"`
		Token   string        `envconfig:"ENGINE_TOKEN"`
		Timeout time.Duration `envconfig:"ENGINE_TIMEOUT" default:"15s"`
	} `envconfig:""`

	Batch struct {
		MaxConcurrency int           `envconfig:"BATCH_MAX_CONCURRENCY" default:"10"`
		MaxAttempts    int           `envconfig:"BATCH_MAX_ATTEMPTS" default:"3"`
		BackoffBase    time.Duration `envconfig:"BATCH_BACKOFF_BASE" default:"2s"`
		BackoffMax     time.Duration `envconfig:"BATCH_BACKOFF_MAX" default:"30s"`
		RunWeekday     string        `envconfig:"BATCH_RUN_WEEKDAY" default:"friday"`
		RunHour        int           `envconfig:"BATCH_RUN_HOUR" default:"18"`
		Manifest       string        `envconfig:"BATCH_MANIFEST"`
	} `envconfig:""`

	Queues struct {
		Backend     string `envconfig:"QUEUE_BACKEND" default:"redis"`
		Build       string `envconfig:"BUILD_QUEUE_KEY" default:"schedule_build_jobs"`
		RabbitURL   string `envconfig:"RABBITMQ_URL"`
		WorkerCount int    `envconfig:"WORKER_CONCURRENCY" default:"4"`
	} `envconfig:""`

	Telegram struct {
		Token        string `envconfig:"TG_BOT_TOKEN"`
		ReportChatID int64  `envconfig:"TG_REPORT_CHAT_ID"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения. Переменные из .env подхватываются,
// если файл есть; уже заданные в окружении значения не перезаписываются.
func Load() AppConfig {
	_ = godotenv.Load()
	cfg, err := Parse()
	if err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Parse читает конфиг из окружения без загрузки .env.
func Parse() (AppConfig, error) {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
