package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

var ErrInvalid = errors.New("config: invalid")

// RangeConfig is an inclusive band in Hz.
type RangeConfig struct {
	MinHz float64 `toml:"min_hz"`
	MaxHz float64 `toml:"max_hz"`
}

// SimConfig is the vrtsim config file.
type SimConfig struct {
	Name          string      `toml:"name"`
	ListenAddr    string      `toml:"listen_addr"`
	AdminAddr     string      `toml:"admin_addr"`
	CorsOrigins   []string    `toml:"cors_origins"`
	ReceiveBuffer int         `toml:"receive_buffer"`
	Bandwidth     RangeConfig `toml:"bandwidth"`
	Frequency     RangeConfig `toml:"frequency"`
}

// ClientConfig is the vrtctl config file. Command-line flags override it.
type ClientConfig struct {
	Destination  string  `toml:"destination"`
	StreamID     *uint32 `toml:"stream_id"`
	ControlleeID *uint32 `toml:"controllee_id"`
	ControllerID *uint32 `toml:"controller_id"`
	Port         int     `toml:"port"`
	AckTimeout   string  `toml:"ack_timeout"`
	MaxRetries   *int    `toml:"max_retries"`
	Journal      string  `toml:"journal"`
}

func LoadSimConfig(path string) (SimConfig, error) {
	var cfg SimConfig
	if err := loadToml(path, &cfg); err != nil {
		return SimConfig{}, err
	}
	if cfg.Name == "" {
		cfg.Name = "vrtsim"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":4991"
	}
	if cfg.ReceiveBuffer == 0 {
		cfg.ReceiveBuffer = 4096
	}
	if err := ValidateSimConfig(cfg); err != nil {
		return SimConfig{}, err
	}
	return cfg, nil
}

func LoadClientConfig(path string) (ClientConfig, error) {
	var cfg ClientConfig
	if err := loadToml(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := ValidateClientConfig(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// loadToml rejects keys the target struct does not declare.
func loadToml(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("config parse failed (%s): %w: %s", path, ErrInvalid, strict.String())
		}
		return fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return nil
}

func ValidateSimConfig(cfg SimConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("%w: vrtsim config missing name", ErrInvalid)
	}
	if strings.TrimSpace(cfg.ListenAddr) == "" {
		return fmt.Errorf("%w: vrtsim config missing listen_addr", ErrInvalid)
	}
	if err := validateRange("bandwidth", cfg.Bandwidth); err != nil {
		return err
	}
	return validateRange("frequency", cfg.Frequency)
}

func validateRange(label string, r RangeConfig) error {
	if r.MinHz < 0 || r.MaxHz < r.MinHz {
		return fmt.Errorf("%w: %s range [%g, %g]", ErrInvalid, label, r.MinHz, r.MaxHz)
	}
	if r.MaxHz == 0 {
		return fmt.Errorf("%w: %s range missing max_hz", ErrInvalid, label)
	}
	return nil
}

func ValidateClientConfig(cfg ClientConfig) error {
	if cfg.Port < 0 || cfg.Port > 0xFFFF {
		return fmt.Errorf("%w: port %d", ErrInvalid, cfg.Port)
	}
	if cfg.MaxRetries != nil && *cfg.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries %d", ErrInvalid, *cfg.MaxRetries)
	}
	if cfg.AckTimeout != "" {
		d, err := time.ParseDuration(strings.TrimSpace(cfg.AckTimeout))
		if err != nil {
			return fmt.Errorf("%w: ack_timeout: %v", ErrInvalid, err)
		}
		if d <= 0 {
			return fmt.Errorf("%w: ack_timeout must be positive", ErrInvalid)
		}
	}
	return nil
}
