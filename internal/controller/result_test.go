package controller

import (
	"testing"

	"github.com/danmuck/vrtctl/internal/protocol/cif"
	"github.com/danmuck/vrtctl/internal/protocol/command"
	"github.com/danmuck/vrtctl/internal/protocol/schema"
	"github.com/danmuck/vrtctl/internal/testutil/testlog"
)

func request(t *testing.T) *command.ControlPacket {
	t.Helper()
	p, err := command.BuildControlPacket(command.ControlSpec{Tuning: command.Tuning{BandwidthHz: command.Hz(1e6), FrequencyHz: command.Hz(1e9)}})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return p
}

func TestInterpretWarningsDoNotReject(t *testing.T) {
	testlog.Start(t)

	ack := command.NewAck(request(t), command.AckExecution)
	ack.Flag(command.LevelWarning, schema.BitRFReferenceFrequency, schema.RespDistortion)
	res := interpret(ack)
	if !res.Accepted || len(res.Details) != 0 {
		t.Fatalf("warnings must not reject: %+v", res)
	}
	if len(res.Warnings) != 1 || res.Warnings[0] != "frequency: distortion" {
		t.Fatalf("warnings: %v", res.Warnings)
	}
}

func TestInterpretErrorFlagWithoutFields(t *testing.T) {
	testlog.Start(t)

	ack := command.NewAck(request(t), command.AckExecution)
	ack.CAM |= schema.CAMErrors
	res := interpret(ack)
	if res.Accepted || len(res.Details) != 1 {
		t.Fatalf("cam error flag alone must reject: %+v", res)
	}
}

func TestInterpretPartialAndApplied(t *testing.T) {
	testlog.Start(t)

	ack := command.NewAck(request(t), command.AckQueryState)
	ack.CAM |= schema.CAMPartialAction
	ack.Echo([]cif.Value{cif.Hz(schema.BitBandwidth, 1e6)})
	res := interpret(ack)
	if !res.Partial || res.Applied["bandwidth"] != 1e6 || res.Kind != "query-state" {
		t.Fatalf("unexpected result: %+v", res)
	}
}
