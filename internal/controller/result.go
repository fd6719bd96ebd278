package controller

import (
	"strings"
	"time"

	"github.com/danmuck/vrtctl/internal/protocol"
	"github.com/danmuck/vrtctl/internal/protocol/command"
	"github.com/danmuck/vrtctl/internal/protocol/schema"
)

// CommandRequest is one tuning request. At least one parameter must be set.
type CommandRequest struct {
	BandwidthHz *float64
	FrequencyHz *float64
	// DryRun asks the controllee to validate without applying.
	DryRun bool
}

func (r CommandRequest) tuning() command.Tuning {
	return command.Tuning{BandwidthHz: r.BandwidthHz, FrequencyHz: r.FrequencyHz}
}

// FieldResult is the controllee's verdict on one field.
type FieldResult struct {
	Field   string
	Level   string
	Reasons []string
}

func (f FieldResult) Detail() string {
	return f.Field + ": " + strings.Join(f.Reasons, ", ")
}

// AckResult is the interpreted acknowledgement of one command. A rejection is
// reported here, never as an error.
type AckResult struct {
	Accepted bool
	// Details holds one "field: reason" line per field flagged as an error.
	Details  []string
	Warnings []string
	Fields   []FieldResult
	// Applied carries values echoed by a query-state ack, keyed by field label.
	Applied   map[string]float64
	Kind      string
	Partial   bool
	Sequence  protocol.Sequence
	MessageID uint32
	Attempts  int
	Elapsed   time.Duration
}

// interpret maps an ack onto an AckResult. The command is accepted when no
// field carries an error response and the ack CAM does not report errors.
func interpret(ack *command.AcknowledgePacket) AckResult {
	res := AckResult{
		Kind:      ack.Kind().String(),
		Partial:   ack.CAM.Has(schema.CAMPartialAction),
		Sequence:  ack.Sequence(),
		MessageID: ack.MessageID,
	}
	for _, s := range ack.Statuses {
		fr := FieldResult{Field: s.Name, Level: s.Level.String(), Reasons: s.Reasons()}
		res.Fields = append(res.Fields, fr)
		if s.Level == command.LevelError {
			res.Details = append(res.Details, fr.Detail())
		} else {
			res.Warnings = append(res.Warnings, fr.Detail())
		}
	}
	if len(ack.Echoed) > 0 {
		res.Applied = make(map[string]float64, len(ack.Echoed))
		for _, v := range ack.Echoed {
			if !v.Skipped() {
				res.Applied[command.FieldLabel(v.Bit)] = v.Hz
			}
		}
	}
	res.Accepted = len(res.Details) == 0 && !ack.CAM.Has(schema.CAMErrors)
	if !res.Accepted && len(res.Details) == 0 {
		res.Details = []string{"endpoint reported errors without field detail"}
	}
	return res
}
