package controller

import (
	"errors"
	"strings"

	"github.com/danmuck/vrtctl/internal/protocol/session"
)

var (
	ErrDestinationRequired = errors.New("controller: destination required")
	ErrClientClosed        = errors.New("controller: client closed")
)

// Config describes the controllee a Client commands.
type Config struct {
	Destination  string
	StreamID     *uint32
	ControlleeID *uint32
	ControllerID *uint32
	Session      session.Config
	// JournalPath enables the sqlite command journal when set.
	JournalPath string
}

func DefaultConfig() Config {
	return Config{
		Session: session.DefaultConfig(),
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Destination) == "" {
		return ErrDestinationRequired
	}
	return c.Session.WithDefaults().Validate()
}
