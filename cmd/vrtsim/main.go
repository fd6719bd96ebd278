package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/vrtctl/internal/config"
	"github.com/danmuck/vrtctl/internal/controllee"
	"github.com/danmuck/vrtctl/internal/observability"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := flag.String("config", "", "vrtsim TOML config")
	listen := flag.String("listen", "", "UDP listen address (overrides config)")
	admin := flag.String("admin", "", "admin HTTP address (overrides config)")
	flag.Parse()

	observability.InitLogger("vrtsim")
	observability.RegisterMetrics()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vrtsim: %v\n", err)
		os.Exit(2)
	}
	if *listen != "" {
		cfg.ListenAddr = *listen
	}
	if *admin != "" {
		cfg.AdminAddr = *admin
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "vrtsim: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (controllee.Config, error) {
	if path == "" {
		return controllee.DefaultConfig(), nil
	}
	file, err := config.LoadSimConfig(path)
	if err != nil {
		return controllee.Config{}, err
	}
	return file.Controllee(), nil
}

// serve runs the UDP endpoint and, when configured, the admin API until ctx
// ends or either fails.
func serve(ctx context.Context, cfg controllee.Config) error {
	ep, err := controllee.NewEndpoint(cfg)
	if err != nil {
		return err
	}
	if err := ep.Listen(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	running := 1
	go func() { errs <- ep.Serve(ctx) }()
	if cfg.AdminAddr != "" {
		running++
		go func() { errs <- controllee.ServeAdmin(ctx, cfg.AdminAddr, ep) }()
	}

	var first error
	for ; running > 0; running-- {
		if err := <-errs; err != nil && first == nil {
			first = err
		}
		cancel()
	}
	st := ep.State()
	log.Info().Uint64("packets", st.Packets).Uint64("acks", st.Acks).Uint64("malformed", st.Malformed).Msg("vrtsim stopped")
	return first
}
