package internal

import (
	"campus-relay/infrastructure/websocket"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,default=8080"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	DebugPort            int           `env:"DEBUG_PORT,default=8081"`
	LimitMessages        *int          `env:"LIMIT_MESSAGES"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	StoreTimeout         time.Duration `env:"STORE_TIMEOUT,default=5s"`
	IdleTimeout          time.Duration `env:"IDLE_TIMEOUT,default=2m"`
	ReapInterval         time.Duration `env:"REAP_INTERVAL,default=30s"`
	RateLimit            float64       `env:"RATE_LIMIT,default=20"`
	RateBurst            int           `env:"RATE_BURST,default=40"`
	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=2000"`
	CharReplacement      string        `env:"CHARACTER_REPLACEMENT,default=*"`
	EnableModeration     bool          `env:"ENABLE_MODERATION,default=true"`
	AuthSecret           string        `env:"AUTH_SECRET"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS"`
	NatsURL              string        `env:"NATS_URL"`
	NatsEmbedded         bool          `env:"NATS_EMBEDDED,default=false"`
	NatsSubject          string        `env:"NATS_SUBJECT,default=relay.deliver"`
	BreakerFailures      uint32        `env:"BREAKER_FAILURES,default=5"`
	BreakerOpenTimeout   time.Duration `env:"BREAKER_OPEN_TIMEOUT,default=30s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
	SearchFilepath       string        `env:"SEARCH_FILEPATH"`
	MetricInterval       time.Duration `env:"METRIC_INTERVAL,default=15s"`
}

// Validate checks the combinations env tags cannot express.
func (c Config) Validate() error {
	if c.IdleTimeout <= c.ReapInterval {
		return fmt.Errorf("IDLE_TIMEOUT (%s) must exceed REAP_INTERVAL (%s)", c.IdleTimeout, c.ReapInterval)
	}
	if c.IdleTimeout <= websocket.PongWait {
		return fmt.Errorf("IDLE_TIMEOUT (%s) must exceed the pong wait (%s)", c.IdleTimeout, websocket.PongWait)
	}
	if c.LimitMessages != nil && *c.LimitMessages <= 0 {
		return fmt.Errorf("LIMIT_MESSAGES must be positive, got %d", *c.LimitMessages)
	}
	if c.NatsEmbedded && c.NatsURL != "" {
		return fmt.Errorf("NATS_EMBEDDED and NATS_URL are exclusive")
	}
	if _, err := CharacterRune(c.CharReplacement); err != nil {
		return err
	}
	return nil
}

func (c Config) Origins() []string {
	var origins []string
	for _, origin := range strings.Split(c.AllowedOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			origins = append(origins, origin)
		}
	}
	return origins
}

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
