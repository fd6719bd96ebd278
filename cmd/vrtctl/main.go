package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/vrtctl/internal/controller"
	"github.com/danmuck/vrtctl/internal/observability"
	"github.com/danmuck/vrtctl/internal/protocol/command"
	"github.com/danmuck/vrtctl/internal/protocol/session"
)

const (
	exitOK       = 0
	exitRejected = 1
	exitUsage    = 2
	exitFault    = 3
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("vrtctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		bandwidth, frequency                 optionalFloat
		streamID, controlleeID, controllerID optionalUint32
	)
	configPath := fs.String("config", "", "optional vrtctl TOML config")
	destination := fs.String("destination", "", "controllee address (host or host:port)")
	fs.Var(&streamID, "stream-id", "stream identifier")
	fs.Var(&bandwidth, "bandwidth-hz", "bandwidth to set in Hz")
	fs.Var(&frequency, "frequency-hz", "RF reference frequency to set in Hz")
	fs.Var(&controlleeID, "controllee-id", "32-bit controllee identifier")
	fs.Var(&controllerID, "controller-id", "32-bit controller identifier")
	dryRun := fs.Bool("dry-run", false, "ask for validation only")
	journal := fs.String("journal", "", "sqlite command journal path")
	timeout := fs.Duration("timeout", 0, "ack timeout per attempt")
	retries := fs.Int("retries", -1, "resends after a timeout")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if err := command.ValidateTuning(bandwidth.ptr(), frequency.ptr()); err != nil {
		fmt.Fprintf(stderr, "vrtctl: %v\n", err)
		fs.Usage()
		return exitUsage
	}

	observability.InitLogger("vrtctl")

	cfg := controller.DefaultConfig()
	if *configPath != "" {
		loaded, err := loadClientConfig(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "vrtctl: %v\n", err)
			return exitUsage
		}
		cfg = loaded
	}
	if d := strings.TrimSpace(*destination); d != "" {
		cfg.Destination = d
	}
	if p := streamID.ptr(); p != nil {
		cfg.StreamID = p
	}
	if p := controlleeID.ptr(); p != nil {
		cfg.ControlleeID = p
	}
	if p := controllerID.ptr(); p != nil {
		cfg.ControllerID = p
	}
	if *journal != "" {
		cfg.JournalPath = *journal
	}
	if *timeout > 0 {
		cfg.Session.AckTimeout = *timeout
	}
	if *retries >= 0 {
		cfg.Session.MaxRetries = *retries
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "vrtctl: %v\n", err)
		return exitUsage
	}

	client, err := controller.NewClient(ctx, cfg)
	if err != nil {
		fmt.Fprintf(stderr, "vrtctl: %v\n", err)
		return exitFault
	}
	defer client.Close()

	res, err := client.SendCommand(ctx, controller.CommandRequest{
		BandwidthHz: bandwidth.ptr(),
		FrequencyHz: frequency.ptr(),
		DryRun:      *dryRun,
	})
	if err != nil {
		fmt.Fprintf(stderr, "vrtctl: %s\n", describeFault(err, cfg.Session))
		return exitFault
	}
	printSummary(stdout, client.Destination(), res)
	if !res.Accepted {
		return exitRejected
	}
	return exitOK
}

func describeFault(err error, cfg session.Config) string {
	if errors.Is(err, session.ErrTimeout) {
		cfg = cfg.WithDefaults()
		total := cfg.AckTimeout * time.Duration(cfg.MaxRetries+1)
		return fmt.Sprintf("no acknowledgement after %d attempts (%s): %v", cfg.MaxRetries+1, total, err)
	}
	return err.Error()
}

func printSummary(w io.Writer, dest string, res controller.AckResult) {
	fmt.Fprintf(w, "ok=%t dest=%s seq=%d msg_id=%d ack=%s attempts=%d elapsed=%s\n",
		res.Accepted, dest, res.Sequence, res.MessageID, res.Kind, res.Attempts, res.Elapsed.Round(time.Microsecond))
	for _, f := range res.Fields {
		fmt.Fprintf(w, "  %-7s %s\n", f.Level, f.Detail())
	}
	if !res.Accepted && len(res.Fields) == 0 {
		for _, d := range res.Details {
			fmt.Fprintf(w, "  error   %s\n", d)
		}
	}
	if res.Partial {
		fmt.Fprintln(w, "  partial: some fields were not applied")
	}
	for _, field := range slices.Sorted(maps.Keys(res.Applied)) {
		fmt.Fprintf(w, "  applied %s=%g Hz\n", field, res.Applied[field])
	}
}
