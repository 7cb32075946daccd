package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервиса напоминаний.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Amsterdam"`
	Port   int    `envconfig:"PORT" default:"8080"`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Slack struct {
		BaseURL       string        `envconfig:"SLACK_API_BASE_URL" default:"https://slack.com/api"`
		SigningSecret string        `envconfig:"SLACK_SIGNING_SECRET"`
		Timeout       time.Duration `envconfig:"SLACK_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Nudge struct {
		CronSpec        string `envconfig:"NUDGE_CRON" default:"0 * * * *"`
		Workers         int    `envconfig:"NUDGE_WORKERS" default:"8"`
		MaxDigestTasks  int    `envconfig:"NUDGE_MAX_DIGEST_TASKS" default:"5"`
		WindowTolerance int    `envconfig:"NUDGE_WINDOW_TOLERANCE_HOURS" default:"1"`
		SessionLinkBase string `envconfig:"SESSION_LINK_BASE" default:"https://portal.example.com"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
