package main

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/vrtctl/internal/config"
	"github.com/danmuck/vrtctl/internal/controller"
)

func loadClientConfig(path string) (controller.Config, error) {
	cfg := controller.DefaultConfig()

	var raw config.ClientConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return controller.Config{}, fmt.Errorf("load vrtctl config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return controller.Config{}, fmt.Errorf("load vrtctl config: unknown key %q", undecoded[0].String())
	}
	if err := config.ValidateClientConfig(raw); err != nil {
		return controller.Config{}, fmt.Errorf("load vrtctl config: %w", err)
	}
	raw.Apply(&cfg)
	return cfg, nil
}
