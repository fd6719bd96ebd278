package main

import (
	"flag"
	"log"

	"github.com/danmuck/vrtctl/internal/config"
)

func main() {
	kind := flag.String("kind", "vrtsim", "config kind: vrtsim|vrtctl")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to per-kind cmd path)")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath(*kind)
		}
		if err := validateFile(*kind, path); err != nil {
			log.Fatal(err)
		}
		log.Printf("Validated %s config at %s", *kind, path)
		return
	}

	target := *output
	if target == "" {
		target = defaultPath(*kind)
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal(err)
	}
	log.Printf("Wrote %s config template to %s", *kind, target)
}

func defaultPath(kind string) string {
	switch kind {
	case "vrtsim":
		return "cmd/vrtsim/config.toml"
	case "vrtctl":
		return "cmd/vrtctl/config.toml"
	default:
		log.Fatalf("unknown kind: %s", kind)
		return ""
	}
}

func validateFile(kind, path string) error {
	switch kind {
	case "vrtsim":
		cfg, err := config.LoadSimConfig(path)
		if err != nil {
			return err
		}
		return cfg.Controllee().Validate()
	case "vrtctl":
		_, err := config.LoadClientConfig(path)
		return err
	default:
		log.Fatalf("unknown kind: %s", kind)
		return nil
	}
}
