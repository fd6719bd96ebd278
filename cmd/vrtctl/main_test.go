package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/vrtctl/internal/controllee"
	"github.com/danmuck/vrtctl/internal/testutil/testlog"
)

func startSim(t *testing.T) string {
	t.Helper()
	cfg := controllee.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	ep, err := controllee.NewEndpoint(cfg)
	if err != nil {
		t.Fatalf("new endpoint: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := ep.Listen(ctx); err != nil {
		t.Fatalf("listen: %v", err)
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ep.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ep.Addr()
}

func TestRunWithoutTuningIsUsageError(t *testing.T) {
	testlog.Start(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--destination", "127.0.0.1"}, &stdout, &stderr)
	if code != exitUsage {
		t.Fatalf("expected usage exit, got %d", code)
	}
	if !strings.Contains(stderr.String(), "at least one of bandwidth or frequency") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}
	if stdout.Len() != 0 {
		t.Fatalf("nothing should be printed on stdout: %s", stdout.String())
	}
}

func TestRunRejectsBadFlagValues(t *testing.T) {
	testlog.Start(t)
	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"--frequency-hz", "fast"}, &stdout, &stderr); code != exitUsage {
		t.Fatalf("expected usage exit for bad float, got %d", code)
	}
	if code := run(context.Background(), []string{"--frequency-hz", "1e9", "--stream-id", "-4"}, &stdout, &stderr); code != exitUsage {
		t.Fatalf("expected usage exit for bad stream id, got %d", code)
	}
	if code := run(context.Background(), []string{"--frequency-hz", "1e9"}, &stdout, &stderr); code != exitUsage {
		t.Fatalf("expected usage exit without destination, got %d", code)
	}
}

func TestRunAgainstSimulator(t *testing.T) {
	testlog.Start(t)
	addr := startSim(t)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--destination", addr, "--stream-id", "0x10", "--frequency-hz", "1.5e9"}, &stdout, &stderr)
	if code != exitOK {
		t.Fatalf("expected accepted exit, got %d stderr=%s", code, stderr.String())
	}
	if !strings.HasPrefix(stdout.String(), "ok=true ") {
		t.Fatalf("unexpected summary: %s", stdout.String())
	}

	stdout.Reset()
	code = run(context.Background(), []string{"--destination", addr, "--bandwidth-hz", "20e9", "--frequency-hz", "2.4e9"}, &stdout, &stderr)
	if code != exitRejected {
		t.Fatalf("expected rejected exit, got %d stderr=%s", code, stderr.String())
	}
	out := stdout.String()
	if !strings.HasPrefix(out, "ok=false ") || !strings.Contains(out, "bandwidth: ") || !strings.Contains(out, "out of range") {
		t.Fatalf("unexpected rejection summary: %s", out)
	}
}

func TestRunTimeoutIsFault(t *testing.T) {
	testlog.Start(t)
	silent, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer silent.Close()

	var stdout, stderr bytes.Buffer
	args := []string{"--destination", silent.LocalAddr().String(), "--frequency-hz", "1e9", "--timeout", "30ms", "--retries", "1"}
	if code := run(context.Background(), args, &stdout, &stderr); code != exitFault {
		t.Fatalf("expected fault exit, got %d", code)
	}
	if !strings.Contains(stderr.String(), "no acknowledgement after 2 attempts") {
		t.Fatalf("unexpected stderr: %s", stderr.String())
	}
}

func TestLoadClientConfigOverlay(t *testing.T) {
	testlog.Start(t)
	path := filepath.Join(t.TempDir(), "vrtctl.toml")
	content := `
destination = "radio.local:5000"
stream_id = 7
controllee_id = 42
ack_timeout = "750ms"
max_retries = 4
journal = "commands.db"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := loadClientConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Destination != "radio.local:5000" || cfg.StreamID == nil || *cfg.StreamID != 7 {
		t.Fatalf("unexpected destination/stream: %+v", cfg)
	}
	if cfg.ControlleeID == nil || *cfg.ControlleeID != 42 || cfg.ControllerID != nil {
		t.Fatalf("unexpected identifiers: %+v", cfg)
	}
	if cfg.Session.AckTimeout != 750*time.Millisecond || cfg.Session.MaxRetries != 4 {
		t.Fatalf("unexpected session: %+v", cfg.Session)
	}
	if cfg.JournalPath != "commands.db" {
		t.Fatalf("journal path not applied: %q", cfg.JournalPath)
	}
	if cfg.Session.Port != 4991 {
		t.Fatalf("port default lost: %d", cfg.Session.Port)
	}

	bad := filepath.Join(t.TempDir(), "bad.toml")
	if err := os.WriteFile(bad, []byte("destinaton = \"x\"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := loadClientConfig(bad); err == nil || !strings.Contains(err.Error(), "destinaton") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}
