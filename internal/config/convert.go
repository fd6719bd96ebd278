package config

import (
	"strings"
	"time"

	"github.com/danmuck/vrtctl/internal/controllee"
	"github.com/danmuck/vrtctl/internal/controller"
)

// Controllee maps a vrtsim file onto the simulator config.
func (c SimConfig) Controllee() controllee.Config {
	out := controllee.DefaultConfig()
	out.Name = c.Name
	out.ListenAddr = c.ListenAddr
	out.AdminAddr = strings.TrimSpace(c.AdminAddr)
	if len(c.CorsOrigins) > 0 {
		out.CorsOrigins = c.CorsOrigins
	}
	if c.ReceiveBuffer > 0 {
		out.ReceiveBuffer = c.ReceiveBuffer
	}
	out.Bandwidth = controllee.Range{Min: c.Bandwidth.MinHz, Max: c.Bandwidth.MaxHz}
	out.Frequency = controllee.Range{Min: c.Frequency.MinHz, Max: c.Frequency.MaxHz}
	return out
}

// Apply overlays the file onto a client config. The file is assumed valid.
func (c ClientConfig) Apply(cfg *controller.Config) {
	if d := strings.TrimSpace(c.Destination); d != "" {
		cfg.Destination = d
	}
	if c.StreamID != nil {
		cfg.StreamID = c.StreamID
	}
	if c.ControlleeID != nil {
		cfg.ControlleeID = c.ControlleeID
	}
	if c.ControllerID != nil {
		cfg.ControllerID = c.ControllerID
	}
	if c.Port > 0 {
		cfg.Session.Port = c.Port
	}
	if d, err := time.ParseDuration(strings.TrimSpace(c.AckTimeout)); err == nil && d > 0 {
		cfg.Session.AckTimeout = d
	}
	if c.MaxRetries != nil {
		cfg.Session.MaxRetries = *c.MaxRetries
	}
	if j := strings.TrimSpace(c.Journal); j != "" {
		cfg.JournalPath = j
	}
}
