package controllee

import (
	"errors"
	"testing"

	"github.com/danmuck/vrtctl/internal/protocol"
	"github.com/danmuck/vrtctl/internal/protocol/command"
	"github.com/danmuck/vrtctl/internal/protocol/schema"
	"github.com/danmuck/vrtctl/internal/testutil/testlog"
)

func newTestEndpoint(t *testing.T) *Endpoint {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	ep, err := NewEndpoint(cfg)
	if err != nil {
		t.Fatalf("new endpoint: %v", err)
	}
	return ep
}

func controlWire(t *testing.T, seq protocol.Sequence, cam schema.CAM, tuning command.Tuning) []byte {
	t.Helper()
	pkt, err := command.BuildControlPacket(command.ControlSpec{Sequence: seq, Tuning: tuning, CAM: cam, MessageID: 77})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	wire, err := pkt.Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}
	return wire
}

func handleOne(t *testing.T, ep *Endpoint, wire []byte) *command.AcknowledgePacket {
	t.Helper()
	replies, err := ep.Handle(wire)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(replies) != 1 {
		t.Fatalf("expected one reply, got %d", len(replies))
	}
	ack, err := command.Parse(replies[0])
	if err != nil {
		t.Fatalf("parse ack: %v", err)
	}
	return ack
}

func TestHandleAppliesInRangeFrequency(t *testing.T) {
	testlog.Start(t)
	ep := newTestEndpoint(t)

	ack := handleOne(t, ep, controlWire(t, 3, 0, command.Tuning{FrequencyHz: command.Hz(1.5e9)}))
	if ack.Kind() != command.AckExecution || ack.Sequence() != 3 || ack.MessageID != 77 {
		t.Fatalf("ack does not mirror request: kind=%s seq=%d msg=%d", ack.Kind(), ack.Sequence(), ack.MessageID)
	}
	if len(ack.Statuses) != 0 || !ack.CAM.Has(schema.CAMScheduledOrExecuted) {
		t.Fatalf("expected clean executed ack, cam=%s statuses=%+v", ack.CAM, ack.Statuses)
	}
	st := ep.State()
	if st.FrequencyHz == nil || *st.FrequencyHz != 1.5e9 || st.BandwidthHz != nil {
		t.Fatalf("unexpected state: %+v", st)
	}
	if st.Packets != 1 || st.Acks != 1 || st.LastSequence != 3 || st.LastMessageID != 77 {
		t.Fatalf("unexpected counters: %+v", st)
	}
}

func TestHandleOutOfRangeBandwidthIsAnError(t *testing.T) {
	testlog.Start(t)
	ep := newTestEndpoint(t)

	ack := handleOne(t, ep, controlWire(t, 1, 0, command.Tuning{BandwidthHz: command.Hz(1e9)}))
	errs := ack.Errors()
	if len(errs) != 1 || errs[0].Name != "bandwidth" {
		t.Fatalf("expected bandwidth error, got %+v", ack.Statuses)
	}
	want := schema.RespOutOfRange | schema.RespNotExecuted
	if errs[0].Response != want {
		t.Fatalf("response = %#x want %#x", uint32(errs[0].Response), uint32(want))
	}
	if !ack.CAM.Has(schema.CAMErrors) || ack.CAM.Has(schema.CAMScheduledOrExecuted) {
		t.Fatalf("unexpected ack cam: %s", ack.CAM)
	}
	if ep.State().BandwidthHz != nil {
		t.Fatalf("rejected bandwidth must not be applied")
	}
}

func TestHandlePartialExecution(t *testing.T) {
	testlog.Start(t)
	tuning := command.Tuning{BandwidthHz: command.Hz(1e9), FrequencyHz: command.Hz(915e6)}

	ep := newTestEndpoint(t)
	ack := handleOne(t, ep, controlWire(t, 2, 0, tuning))
	if !ack.CAM.Has(schema.CAMPartialAction) || !ack.CAM.Has(schema.CAMScheduledOrExecuted) {
		t.Fatalf("expected partial action, cam=%s", ack.CAM)
	}
	if st := ep.State(); st.FrequencyHz == nil || *st.FrequencyHz != 915e6 {
		t.Fatalf("in-range frequency should apply under partial permission: %+v", st)
	}

	strict := newTestEndpoint(t)
	cam := schema.CAMExecution | schema.CAMErrors | schema.CAMWarnings | schema.CAMActionExecute
	ack = handleOne(t, strict, controlWire(t, 2, cam, tuning))
	if ack.CAM.Has(schema.CAMScheduledOrExecuted) || ack.CAM.Has(schema.CAMPartialAction) {
		t.Fatalf("nothing should execute without partial permission, cam=%s", ack.CAM)
	}
	if len(ack.Errors()) != 1 || len(ack.Warnings()) != 1 || ack.Warnings()[0].Name != "frequency" {
		t.Fatalf("expected bandwidth error and frequency warning: %+v", ack.Statuses)
	}
	if strict.State().FrequencyHz != nil {
		t.Fatalf("frequency applied without partial permission")
	}
}

func TestHandleWarningsNeedRequest(t *testing.T) {
	testlog.Start(t)
	ep := newTestEndpoint(t)
	tuning := command.Tuning{BandwidthHz: command.Hz(1e9), FrequencyHz: command.Hz(915e6)}
	cam := schema.CAMExecution | schema.CAMErrors | schema.CAMActionExecute

	ack := handleOne(t, ep, controlWire(t, 4, cam, tuning))
	if len(ack.Warnings()) != 0 || ack.CAM.Has(schema.CAMWarnings) {
		t.Fatalf("warnings reported without being requested: %+v", ack.Statuses)
	}
	if len(ack.Errors()) != 1 {
		t.Fatalf("errors are always reported: %+v", ack.Statuses)
	}
}

func TestHandleDryRunLeavesStateAlone(t *testing.T) {
	testlog.Start(t)
	ep := newTestEndpoint(t)
	cam := schema.CAMValidation | schema.CAMWarnings | schema.CAMErrors | schema.CAMActionDryRun

	ack := handleOne(t, ep, controlWire(t, 5, cam, command.Tuning{BandwidthHz: command.Hz(1e9), FrequencyHz: command.Hz(1e8)}))
	if ack.Kind() != command.AckValidation || ack.CAM.Action() != schema.ActionDryRun {
		t.Fatalf("expected dry-run validation ack, cam=%s", ack.CAM)
	}
	errs := ack.Errors()
	if len(errs) != 1 || errs[0].Response != schema.RespOutOfRange {
		t.Fatalf("validation should report policy only: %+v", ack.Statuses)
	}
	if st := ep.State(); st.BandwidthHz != nil || st.FrequencyHz != nil {
		t.Fatalf("dry run changed state: %+v", st)
	}
}

func TestHandleNackOnlySuppressesCleanAck(t *testing.T) {
	testlog.Start(t)
	ep := newTestEndpoint(t)
	cam := schema.CAMExecution | schema.CAMNackOnly | schema.CAMErrors | schema.CAMActionExecute

	replies, err := ep.Handle(controlWire(t, 6, cam, command.Tuning{FrequencyHz: command.Hz(2.4e9)}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(replies) != 0 {
		t.Fatalf("clean nack-only request should get no ack, got %d", len(replies))
	}
	if st := ep.State(); st.FrequencyHz == nil || *st.FrequencyHz != 2.4e9 {
		t.Fatalf("nack-only request should still apply: %+v", st)
	}

	replies, err = ep.Handle(controlWire(t, 7, cam, command.Tuning{FrequencyHz: command.Hz(9e9)}))
	if err != nil || len(replies) != 1 {
		t.Fatalf("failed nack-only request should be acked: n=%d err=%v", len(replies), err)
	}
}

func TestHandleQueryStateEchoesAppliedValues(t *testing.T) {
	testlog.Start(t)
	ep := newTestEndpoint(t)
	cam := schema.CAMExecution | schema.CAMQueryState | schema.CAMErrors | schema.CAMActionExecute

	replies, err := ep.Handle(controlWire(t, 8, cam, command.Tuning{BandwidthHz: command.Hz(20e6), FrequencyHz: command.Hz(433e6)}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(replies) != 2 {
		t.Fatalf("expected execution and query acks, got %d", len(replies))
	}
	query, err := command.Parse(replies[1])
	if err != nil {
		t.Fatalf("parse query ack: %v", err)
	}
	if query.Kind() != command.AckQueryState || len(query.Echoed) != 2 {
		t.Fatalf("unexpected query ack: kind=%s echoed=%+v", query.Kind(), query.Echoed)
	}
	if query.Echoed[0].Bit != schema.BitBandwidth || query.Echoed[0].Hz != 20e6 || query.Echoed[1].Hz != 433e6 {
		t.Fatalf("echoed values out of order or wrong: %+v", query.Echoed)
	}
}

func TestHandleMalformedDatagram(t *testing.T) {
	testlog.Start(t)
	ep := newTestEndpoint(t)

	if _, err := ep.Handle([]byte{0x60, 0x00}); !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected truncated error, got %v", err)
	}
	ack := handleOne(t, ep, controlWire(t, 0, 0, command.Tuning{FrequencyHz: command.Hz(1e8)}))
	wire, err := ack.Serialize()
	if err != nil {
		t.Fatalf("serialize ack: %v", err)
	}
	if _, err := ep.Handle(wire); !errors.Is(err, protocol.ErrBadType) {
		t.Fatalf("ack fed to controllee should be refused, got %v", err)
	}
	if st := ep.State(); st.Malformed != 2 || st.Packets != 1 {
		t.Fatalf("unexpected counters: %+v", st)
	}
}

func TestConfigValidate(t *testing.T) {
	testlog.Start(t)
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	cases := map[string]func(*Config){
		"name":      func(c *Config) { c.Name = " " },
		"listen":    func(c *Config) { c.ListenAddr = "" },
		"bandwidth": func(c *Config) { c.Bandwidth = Range{Min: 10, Max: 1} },
		"frequency": func(c *Config) { c.Frequency.Min = -1 },
		"buffer":    func(c *Config) { c.ReceiveBuffer = 8 },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
	if _, err := NewEndpoint(Config{}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("new endpoint should validate: %v", err)
	}
}
