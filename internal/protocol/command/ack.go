package command

import (
	"fmt"
	"sort"

	"github.com/danmuck/vrtctl/internal/protocol"
	"github.com/danmuck/vrtctl/internal/protocol/cif"
	"github.com/danmuck/vrtctl/internal/protocol/frame"
	"github.com/danmuck/vrtctl/internal/protocol/schema"
)

// AckKind is the acknowledgement type, carried in the CAM of an ack packet.
type AckKind uint8

const (
	AckNone AckKind = iota
	AckValidation
	AckExecution
	AckQueryState
)

func (k AckKind) String() string {
	switch k {
	case AckValidation:
		return "validation"
	case AckExecution:
		return "execution"
	case AckQueryState:
		return "query-state"
	default:
		return "none"
	}
}

func (k AckKind) cam() schema.CAM {
	switch k {
	case AckValidation:
		return schema.CAMValidation
	case AckExecution:
		return schema.CAMExecution
	case AckQueryState:
		return schema.CAMQueryState
	default:
		return 0
	}
}

// Level separates warning indicators (WIF) from error indicators (EIF).
type Level uint8

const (
	LevelWarning Level = iota
	LevelError
)

func (l Level) String() string {
	if l == LevelError {
		return "error"
	}
	return "warning"
}

// FieldStatus is one flagged field of a validation or execution ack.
// Indicator is 0 for CIF0 fields and 1-3 for continuation words.
type FieldStatus struct {
	Indicator uint8
	Bit       uint8
	Name      string
	Level     Level
	Response  schema.Response
}

func (s FieldStatus) Reasons() []string {
	return s.Response.Reasons()
}

// AcknowledgePacket is a controllee's reply to a control packet.
type AcknowledgePacket struct {
	Prologue   frame.Prologue
	CAM        schema.CAM
	MessageID  uint32
	Controllee *Identifier
	Controller *Identifier
	// WIF and EIF hold indicator words 0-3; only those announced are non-zero.
	WIF      [4]uint32
	EIF      [4]uint32
	Statuses []FieldStatus
	// QueryCIF0 and Echoed carry the applied state in a query-state ack.
	QueryCIF0 uint32
	Echoed    []cif.Value
}

func (a *AcknowledgePacket) Sequence() protocol.Sequence {
	return a.Prologue.Header.Sequence
}

func (a *AcknowledgePacket) Kind() AckKind {
	switch {
	case a.CAM.Has(schema.CAMExecution):
		return AckExecution
	case a.CAM.Has(schema.CAMValidation):
		return AckValidation
	case a.CAM.Has(schema.CAMQueryState):
		return AckQueryState
	default:
		return AckNone
	}
}

// Errors lists error-level statuses; Warnings lists warning-level ones.
func (a *AcknowledgePacket) Errors() []FieldStatus {
	return a.byLevel(LevelError)
}

func (a *AcknowledgePacket) Warnings() []FieldStatus {
	return a.byLevel(LevelWarning)
}

func (a *AcknowledgePacket) byLevel(l Level) []FieldStatus {
	out := make([]FieldStatus, 0, len(a.Statuses))
	for _, s := range a.Statuses {
		if s.Level == l {
			out = append(out, s)
		}
	}
	return out
}

// Parse decodes an acknowledge packet. The datagram must be exactly the size
// its header declares.
func Parse(b []byte) (*AcknowledgePacket, error) {
	pro, off, err := frame.ReadPrologue(b, protocol.PacketTypeCommand)
	if err != nil {
		return nil, err
	}
	if !pro.Header.Ack {
		return nil, protocol.NewParseError(protocol.ErrBadType, 0, "control packet where acknowledge expected")
	}
	cam, msgID, controllee, controller, off, err := readCommon(b, off)
	if err != nil {
		return nil, err
	}
	a := &AcknowledgePacket{
		Prologue:   pro,
		CAM:        cam,
		MessageID:  msgID,
		Controllee: controllee,
		Controller: controller,
	}

	switch {
	case cam.Has(schema.CAMValidation) || cam.Has(schema.CAMExecution):
		off, err = a.readIndicators(b, off)
	case cam.Has(schema.CAMQueryState):
		off, err = a.readQuery(b, off)
	}
	if err != nil {
		return nil, err
	}
	if off != len(b) {
		return nil, protocol.NewParseError(protocol.ErrSizeMismatch, off, "%d bytes after ack body", len(b)-off)
	}
	return a, nil
}

type indicatorSet struct {
	flag  schema.CAM
	level Level
	words *[4]uint32
	label string
}

func (a *AcknowledgePacket) indicatorSets() []indicatorSet {
	return []indicatorSet{
		{flag: schema.CAMWarnings, level: LevelWarning, words: &a.WIF, label: "wif"},
		{flag: schema.CAMErrors, level: LevelError, words: &a.EIF, label: "eif"},
	}
}

// readIndicators walks WIF/EIF words then their response words. Every
// indicator bit maps to exactly one response word, so continuation words can
// be counted without knowing their field tables. Field attributes (CIF7)
// change that mapping and are refused, as are reserved WIF0/EIF0 bits.
func (a *AcknowledgePacket) readIndicators(b []byte, off int) (int, error) {
	sets := a.indicatorSets()
	for _, set := range sets {
		if !a.CAM.Has(set.flag) {
			continue
		}
		if len(b)-off < frame.WordLen {
			return off, protocol.NewParseError(protocol.ErrTruncated, off, "missing %s0 word", set.label)
		}
		w0 := protocol.U32(b[off:])
		if w0&(1<<schema.BitCIF7) != 0 {
			return off, protocol.NewParseError(protocol.ErrUnknownCifBit, off, "%s0 announces field attributes", set.label)
		}
		if w0&schema.ReservedMask != 0 {
			bits := schema.SetBits(w0 & schema.ReservedMask)
			return off, protocol.NewParseError(protocol.ErrUnknownCifBit, off, "reserved %s0 bit %d set", set.label, bits[0])
		}
		set.words[0] = w0
		off += frame.WordLen
		for _, bit := range schema.ContinuationBits(w0) {
			if len(b)-off < frame.WordLen {
				return off, protocol.NewParseError(protocol.ErrTruncated, off, "missing %s%d word", set.label, bit)
			}
			set.words[bit] = protocol.U32(b[off:])
			off += frame.WordLen
		}
	}

	for _, set := range sets {
		if !a.CAM.Has(set.flag) {
			continue
		}
		for idx := uint8(0); idx < 4; idx++ {
			for _, bit := range schema.SetBits(set.words[idx]) {
				name, ok := responseField(idx, bit)
				if !ok {
					continue
				}
				if len(b)-off < frame.WordLen {
					return off, protocol.NewParseError(protocol.ErrTruncated, off, "missing response word for %s", name)
				}
				a.Statuses = append(a.Statuses, FieldStatus{
					Indicator: idx,
					Bit:       bit,
					Name:      name,
					Level:     set.level,
					Response:  schema.Response(protocol.U32(b[off:])),
				})
				off += frame.WordLen
			}
		}
	}
	return off, nil
}

// responseField names the field behind an indicator bit and reports whether
// it has a response word.
func responseField(indicator, bit uint8) (string, bool) {
	if indicator != 0 {
		return fmt.Sprintf("cif%d_bit_%d", indicator, bit), true
	}
	f, ok := schema.Lookup(bit)
	if !ok || !f.HasResponse() {
		return "", false
	}
	return FieldLabel(bit), true
}

func (a *AcknowledgePacket) readQuery(b []byte, off int) (int, error) {
	if len(b)-off < frame.WordLen {
		return off, protocol.NewParseError(protocol.ErrTruncated, off, "missing cif0 word")
	}
	a.QueryCIF0 = protocol.U32(b[off:])
	off += frame.WordLen
	values, n, err := cif.DecodeFields(a.QueryCIF0, b[off:], off)
	if err != nil {
		return off, err
	}
	a.Echoed = values
	return off + n, nil
}

// NewAck starts an ack of kind for req, mirroring its stream id, sequence,
// message id, identifiers and timestamp.
func NewAck(req *ControlPacket, kind AckKind) *AcknowledgePacket {
	pro := req.Prologue
	pro.Header.Ack = true
	pro.Header.ClassID = false
	pro.Header.Cancel = false
	pro.Header.SizeWords = 0

	keep := idMask | schema.CAMPartialPermitted | schema.CAMWarningsPermitted | schema.CAMErrorsPermitted | schema.CAMNackOnly
	cam := req.CAM&keep | kind.cam()
	cam = cam.WithAction(req.CAM.Action())
	return &AcknowledgePacket{
		Prologue:   pro,
		CAM:        cam,
		MessageID:  req.MessageID,
		Controllee: req.Controllee,
		Controller: req.Controller,
	}
}

// Flag records a response for a CIF0 field. Repeated flags on the same field
// and level merge their response bits.
func (a *AcknowledgePacket) Flag(level Level, bit uint8, resp schema.Response) {
	for i := range a.Statuses {
		s := &a.Statuses[i]
		if s.Indicator == 0 && s.Bit == bit && s.Level == level {
			s.Response |= resp
			return
		}
	}
	a.Statuses = append(a.Statuses, FieldStatus{Bit: bit, Name: FieldLabel(bit), Level: level, Response: resp})
	if level == LevelError {
		a.EIF[0] |= 1 << bit
		a.CAM |= schema.CAMErrors
	} else {
		a.WIF[0] |= 1 << bit
		a.CAM |= schema.CAMWarnings
	}
}

// Echo sets the applied values returned by a query-state ack.
func (a *AcknowledgePacket) Echo(values []cif.Value) {
	a.Echoed = values
}

// Serialize writes the ack. Response words follow indicator bit order.
func (a *AcknowledgePacket) Serialize() ([]byte, error) {
	out := make([]byte, 0, 64)
	out = frame.AppendPrologue(out, a.Prologue)
	out = appendCommon(out, a.CAM, a.MessageID, a.Controllee, a.Controller)

	switch a.Kind() {
	case AckValidation, AckExecution:
		for _, set := range a.indicatorSets() {
			if !a.CAM.Has(set.flag) {
				continue
			}
			if set.words[1]|set.words[2]|set.words[3] != 0 {
				return nil, fmt.Errorf("%w: continuation indicators are not supported", protocol.ErrEncoding)
			}
			out = protocol.AppendU32(out, set.words[0])
		}
		for _, set := range a.indicatorSets() {
			if !a.CAM.Has(set.flag) {
				continue
			}
			for _, s := range a.sortedStatuses(set.level) {
				out = protocol.AppendU32(out, uint32(s.Response))
			}
		}
	case AckQueryState:
		cif0, fields, err := cif.EncodeFields(a.Echoed)
		if err != nil {
			return nil, err
		}
		a.QueryCIF0 = cif0
		out = protocol.AppendU32(out, cif0)
		out = append(out, fields...)
	}

	if err := frame.SetSize(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *AcknowledgePacket) sortedStatuses(l Level) []FieldStatus {
	out := a.byLevel(l)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Bit > out[j].Bit })
	return out
}
