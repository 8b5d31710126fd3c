package env

import (
	envparse "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/nantokaworks/spin-overlay/internal/shared/logger"
	"go.uber.org/zap"
)

// ServerConfig holds all runtime configuration. Optional values are pointers
// so "unset" is distinguishable from the zero value.
type ServerConfig struct {
	BotToken    *string `env:"TELEGRAM_BOT_TOKEN"`
	BotUsername *string `env:"TELEGRAM_BOT_USERNAME"`
	AppURL      *string `env:"APP_URL"`

	ServerPort int    `env:"SERVER_PORT" envDefault:"8080"`
	DBPath     string `env:"DB_PATH"`
	DebugMode  bool   `env:"DEBUG_MODE"`

	SessionTTLSeconds   int `env:"SESSION_TTL_SECONDS" envDefault:"300"`
	ExpiredGraceSeconds int `env:"EXPIRED_GRACE_SECONDS" envDefault:"60"`
	StreamPollMs        int `env:"STREAM_POLL_MS" envDefault:"500"`
	StreamMaxWaitMs     int `env:"STREAM_MAX_WAIT_MS" envDefault:"60000"`
	SpinRemoteWaitMs    int `env:"SPIN_REMOTE_WAIT_MS" envDefault:"5000"`
}

var Value ServerConfig

// LoadEnv reads .env (if present) and parses the process environment into Value.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		logger.Debug("No .env file loaded", zap.Error(err))
	}

	if err := envparse.Parse(&Value); err != nil {
		logger.Fatal("Failed to parse environment", zap.Error(err))
	}
}
