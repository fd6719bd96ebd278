package controllee

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/vrtctl/internal/protocol/session"
)

var ErrInvalidConfig = errors.New("controllee: invalid config")

// Range is an inclusive band of accepted values in Hz.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) String() string {
	return fmt.Sprintf("[%g, %g]", r.Min, r.Max)
}

// Config configures the endpoint simulator.
type Config struct {
	Name string
	// ListenAddr is the UDP address command packets arrive on.
	ListenAddr string
	// AdminAddr enables the HTTP admin API when set.
	AdminAddr     string
	CorsOrigins   []string
	Bandwidth     Range
	Frequency     Range
	ReceiveBuffer int
}

func DefaultConfig() Config {
	return Config{
		Name:          "vrtsim",
		ListenAddr:    fmt.Sprintf(":%d", session.DefaultPort),
		CorsOrigins:   []string{"http://localhost:3000"},
		Bandwidth:     Range{Min: 1e3, Max: 200e6},
		Frequency:     Range{Min: 2e6, Max: 6e9},
		ReceiveBuffer: 4096,
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfig)
	}
	if strings.TrimSpace(c.ListenAddr) == "" {
		return fmt.Errorf("%w: listen addr is required", ErrInvalidConfig)
	}
	for _, r := range []struct {
		label string
		r     Range
	}{{"bandwidth", c.Bandwidth}, {"frequency", c.Frequency}} {
		if r.r.Min < 0 || r.r.Max < r.r.Min {
			return fmt.Errorf("%w: %s range %s", ErrInvalidConfig, r.label, r.r)
		}
	}
	if c.ReceiveBuffer < 64 {
		return fmt.Errorf("%w: receive buffer %d too small", ErrInvalidConfig, c.ReceiveBuffer)
	}
	return nil
}
