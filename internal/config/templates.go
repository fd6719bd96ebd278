package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "vrtsim", "sim":
		return simTemplate, nil
	case "vrtctl", "client":
		return clientTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const simTemplate = `name = "vrtsim"
listen_addr = ":4991"
admin_addr = "127.0.0.1:9491"
cors_origins = ["http://localhost:3000"]
receive_buffer = 4096

[bandwidth]
min_hz = 1e3
max_hz = 200e6

[frequency]
min_hz = 2e6
max_hz = 6e9
`

const clientTemplate = `destination = "127.0.0.1:4991"
stream_id = 1
ack_timeout = "2s"
max_retries = 2
journal = ""
`
