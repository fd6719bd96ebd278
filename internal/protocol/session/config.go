package session

import (
	"errors"
	"fmt"
	"time"
)

// DefaultPort is the UDP port used when a destination carries none.
const DefaultPort = 4991

// BackoffConfig defines the pause between resends.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines transport reliability settings.
type Config struct {
	Port int
	// AckTimeout bounds the wait for a correlated reply after each send.
	AckTimeout time.Duration
	// MaxRetries is the number of resends after the first send.
	MaxRetries    int
	ReceiveBuffer int
	Backoff       BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		Port:          DefaultPort,
		AckTimeout:    2 * time.Second,
		MaxRetries:    2,
		ReceiveBuffer: 4096,
		Backoff: BackoffConfig{
			InitialDelay: 50 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     500 * time.Millisecond,
			Jitter:       true,
		},
	}
}

// WithDefaults fills zero values from DefaultConfig. MaxRetries is kept as
// given; negative values are clamped to zero.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.Port <= 0 {
		c.Port = def.Port
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = def.AckTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.ReceiveBuffer <= 0 {
		c.ReceiveBuffer = def.ReceiveBuffer
	}
	if c.Backoff == (BackoffConfig{}) {
		c.Backoff = def.Backoff
	}
	return c
}

var ErrInvalidConfig = errors.New("session: invalid config")

func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Port)
	}
	if c.AckTimeout <= 0 {
		return fmt.Errorf("%w: ack timeout must be positive", ErrInvalidConfig)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative", ErrInvalidConfig)
	}
	if c.ReceiveBuffer < 64 {
		return fmt.Errorf("%w: receive buffer %d too small", ErrInvalidConfig, c.ReceiveBuffer)
	}
	return nil
}
