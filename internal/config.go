package internal

import (
	"fmt"
	"time"
)

// Config is the server-side environment configuration, shared by cmd/server
// and the integration tests.
type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	JWTSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	// AuthRequired locks down the chat endpoint: anonymous connections are
	// rejected and the resolved identity must be one of the room-key tokens.
	AuthRequired   bool     `env:"AUTH_REQUIRED,default=false"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS"`
	// Permissive marks a development deployment: the origin check is
	// skipped even when an allow-list is configured. An empty allow-list
	// already skips the check on its own.
	Permissive bool `env:"PERMISSIVE,default=false"`

	PersistQueueSize int `env:"PERSIST_QUEUE_SIZE,default=1024"`
	PersistWorkers   int `env:"PERSIST_WORKERS,default=4"`
	IndexQueueSize   int `env:"INDEX_QUEUE_SIZE,default=1024"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	DeliveryTimeout      time.Duration `env:"DELIVERY_TIMEOUT,default=3s"`
	MaxMessageSize       int64         `env:"MAX_MESSAGE_SIZE,default=4096"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PongTimeout          time.Duration `env:"PONG_TIMEOUT,default=60s"`

	MetricInterval  time.Duration `env:"METRIC_INTERVAL,default=30s"`
	RestartInterval time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=5s"`

	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`
	LimitMessages   *int   `env:"LIMIT_MESSAGES"`
	MaxAvatarBytes  int64  `env:"MAX_AVATAR_BYTES,default=1048576"`
}

// CharacterRune validates that the censor replacement is a single character.
func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
