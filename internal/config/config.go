// Package config loads chronosched's environment-variable configuration,
// following the teacher's own godotenv-plus-validator pattern.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Env string `validate:"required,oneof=dev prod"`

	Scheduler struct {
		Name           string        `validate:"required"`
		CycleInterval  time.Duration `validate:"required"`
		DefaultTimeout time.Duration
		LaunchSpacing  time.Duration
		ShutdownGrace  time.Duration
	}

	Sink struct {
		Driver string `validate:"required,oneof=memory sqlite postgres"`
		DSN    string
	}

	Inspector struct {
		Addr string `validate:"required"`
	}

	Telegram struct {
		Token  string
		ChatID int64
	}

	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")

	c.Scheduler.Name = getenv("SCHEDULER_NAME", "chronosched")
	c.Scheduler.CycleInterval = getDuration("SCHEDULER_CYCLE_INTERVAL", time.Second)
	c.Scheduler.DefaultTimeout = getDuration("SCHEDULER_DEFAULT_TIMEOUT", 0)
	c.Scheduler.LaunchSpacing = getDuration("SCHEDULER_LAUNCH_SPACING", 0)
	c.Scheduler.ShutdownGrace = getDuration("SCHEDULER_SHUTDOWN_GRACE", 2*time.Second)

	c.Sink.Driver = getenv("SINK_DRIVER", "memory")
	c.Sink.DSN = os.Getenv("SINK_DSN")

	c.Inspector.Addr = getenv("INSPECTOR_ADDR", ":8080")

	c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	c.Telegram.ChatID = getInt64("TELEGRAM_CHAT_ID", 0)

	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/chronosched.log")

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func getInt64(k string, def int64) int64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
