package command

import (
	"fmt"
	"time"

	"github.com/danmuck/vrtctl/internal/protocol"
	"github.com/danmuck/vrtctl/internal/protocol/cif"
	"github.com/danmuck/vrtctl/internal/protocol/frame"
	"github.com/danmuck/vrtctl/internal/protocol/schema"
)

// DefaultCAM asks for an execution ack that may carry warnings and errors and
// permits partial application.
const DefaultCAM = schema.CAMPartialPermitted |
	schema.CAMWarningsPermitted |
	schema.CAMExecution |
	schema.CAMWarnings |
	schema.CAMErrors |
	schema.CAMActionExecute

// ackReportBits only have meaning in acknowledge packets.
const ackReportBits = schema.CAMPartialAction | schema.CAMScheduledOrExecuted

// ControlSpec is the input to BuildControlPacket.
type ControlSpec struct {
	Sequence protocol.Sequence
	// StreamID is optional; an unset stream id goes on the wire as 0.
	StreamID *uint32
	Tuning   Tuning
	// CAM carries the requested ack behaviour. Id bits are derived from
	// Controllee/Controller and report-only bits are cleared. Zero means DefaultCAM.
	CAM        schema.CAM
	MessageID  uint32
	Controllee *Identifier
	Controller *Identifier
	// Timestamp, when set, is sent as UTC seconds and real-time picoseconds.
	Timestamp time.Time
}

// ControlPacket is an outbound command. Fields are held in canonical order.
type ControlPacket struct {
	Prologue frame.Prologue
	// HasStream reports a caller-supplied stream id on a built packet. The
	// stream id word is always on the wire, so a parsed packet always has it,
	// 0 included.
	HasStream  bool
	CAM        schema.CAM
	MessageID  uint32
	Controllee *Identifier
	Controller *Identifier
	CIF0       uint32
	Fields     []cif.Value
}

func (p *ControlPacket) Sequence() protocol.Sequence {
	return p.Prologue.Header.Sequence
}

func (p *ControlPacket) StreamID() (uint32, bool) {
	return p.Prologue.StreamID, p.HasStream
}

// Field returns the requested value for a CIF0 bit.
func (p *ControlPacket) Field(bit uint8) (cif.Value, bool) {
	return cif.Get(p.Fields, bit)
}

// BuildControlPacket sets one CIF0 bit per requested parameter, derives the
// CAM id bits from the identifiers and computes the packet size. Values are
// encoded here so an unrepresentable value fails before anything is sent.
func BuildControlPacket(spec ControlSpec) (*ControlPacket, error) {
	if err := spec.Tuning.Validate(); err != nil {
		return nil, err
	}
	if !spec.Sequence.Valid() {
		return nil, fmt.Errorf("%w: sequence %d out of range", protocol.ErrInvalidRequest, spec.Sequence)
	}
	cam, err := controlCAM(spec)
	if err != nil {
		return nil, err
	}
	cif0, payload, err := cif.EncodeFields(spec.Tuning.Values())
	if err != nil {
		return nil, err
	}
	fields, _, err := cif.DecodeFields(cif0, payload, 0)
	if err != nil {
		return nil, err
	}

	p := &ControlPacket{
		Prologue: frame.Prologue{
			Header: frame.Header{
				Type:     protocol.PacketTypeCommand,
				Sequence: spec.Sequence,
			},
		},
		CAM:        cam,
		MessageID:  spec.MessageID,
		Controllee: spec.Controllee,
		Controller: spec.Controller,
		CIF0:       cif0,
		Fields:     fields,
	}
	if spec.StreamID != nil {
		p.Prologue.StreamID = *spec.StreamID
		p.HasStream = true
	}
	if !spec.Timestamp.IsZero() {
		p.Prologue.Header.TSI = frame.TSIUTC
		p.Prologue.Header.TSF = frame.TSFRealTime
		p.Prologue.Timestamp = frame.UTCTimestamp(spec.Timestamp)
	}
	words := p.SizeWords()
	if words > frame.MaxPacketWords {
		return nil, fmt.Errorf("%w: %d words", frame.ErrPacketTooLarge, words)
	}
	p.Prologue.Header.SizeWords = uint16(words)
	return p, nil
}

func controlCAM(spec ControlSpec) (schema.CAM, error) {
	cam := spec.CAM
	if cam == 0 {
		cam = DefaultCAM
	}
	cam &^= idMask | ackReportBits
	cam |= idCAM(spec.Controllee, spec.Controller)

	switch cam.Action() {
	case schema.ActionNone:
		cam = cam.WithAction(schema.ActionExecute)
	case schema.ActionDryRun:
		if cam.Has(schema.CAMExecution) {
			return 0, fmt.Errorf("%w: execution ack requested for a dry run", protocol.ErrInvalidRequest)
		}
	case schema.ActionExecute:
	default:
		return 0, fmt.Errorf("%w: reserved action mode", protocol.ErrInvalidRequest)
	}
	if len(cam.AckKinds()) == 0 {
		if cam.Action() == schema.ActionDryRun {
			cam |= schema.CAMValidation
		} else {
			cam |= schema.CAMExecution
		}
	}
	return cam, nil
}

// SizeWords is the full packet length in words, header included.
func (p *ControlPacket) SizeWords() int {
	n := p.Prologue.Header.PrologueWords() + 2 // CAM + message id
	if p.Controllee != nil {
		n += p.Controllee.words()
	}
	if p.Controller != nil {
		n += p.Controller.words()
	}
	return n + 1 + cif.Words(p.CIF0)
}

// Serialize writes the packet. The same packet always yields the same bytes.
func (p *ControlPacket) Serialize() ([]byte, error) {
	if len(p.Fields) == 0 {
		return nil, fmt.Errorf("%w: control packet carries no fields", protocol.ErrInvalidRequest)
	}
	cif0, fields, err := cif.EncodeFields(p.Fields)
	if err != nil {
		return nil, err
	}
	if cif0 != p.CIF0 {
		return nil, fmt.Errorf("%w: cif0 %08x does not match fields %08x", protocol.ErrEncoding, p.CIF0, cif0)
	}

	out := make([]byte, 0, p.SizeWords()*frame.WordLen)
	out = frame.AppendPrologue(out, p.Prologue)
	out = appendCommon(out, p.CAM, p.MessageID, p.Controllee, p.Controller)
	out = protocol.AppendU32(out, cif0)
	out = append(out, fields...)
	if err := frame.SetSize(out); err != nil {
		return nil, err
	}
	return out, nil
}

func appendCommon(dst []byte, cam schema.CAM, messageID uint32, controllee, controller *Identifier) []byte {
	dst = protocol.AppendU32(dst, uint32(cam))
	dst = protocol.AppendU32(dst, messageID)
	if controllee != nil {
		dst = controllee.append(dst)
	}
	if controller != nil {
		dst = controller.append(dst)
	}
	return dst
}

// ParseControl decodes a control packet, as received by a controllee.
func ParseControl(b []byte) (*ControlPacket, error) {
	pro, off, err := frame.ReadPrologue(b, protocol.PacketTypeCommand)
	if err != nil {
		return nil, err
	}
	if pro.Header.Ack {
		return nil, protocol.NewParseError(protocol.ErrBadType, 0, "acknowledge packet where control expected")
	}
	cam, msgID, controllee, controller, off, err := readCommon(b, off)
	if err != nil {
		return nil, err
	}
	if len(b)-off < frame.WordLen {
		return nil, protocol.NewParseError(protocol.ErrTruncated, off, "missing cif0 word")
	}
	cif0 := protocol.U32(b[off:])
	off += frame.WordLen
	fields, n, err := cif.DecodeFields(cif0, b[off:], off)
	if err != nil {
		return nil, err
	}
	off += n
	if off != len(b) {
		return nil, protocol.NewParseError(protocol.ErrSizeMismatch, off, "%d bytes after last field", len(b)-off)
	}
	return &ControlPacket{
		Prologue:   pro,
		HasStream:  true,
		CAM:        cam,
		MessageID:  msgID,
		Controllee: controllee,
		Controller: controller,
		CIF0:       cif0,
		Fields:     fields,
	}, nil
}

func readCommon(b []byte, off int) (schema.CAM, uint32, *Identifier, *Identifier, int, error) {
	if len(b)-off < 2*frame.WordLen {
		return 0, 0, nil, nil, off, protocol.NewParseError(protocol.ErrTruncated, off, "missing cam or message id")
	}
	cam := schema.CAM(protocol.U32(b[off:]))
	msgID := protocol.U32(b[off+frame.WordLen:])
	off += 2 * frame.WordLen
	controllee, controller, n, err := readIDs(cam, b[off:], off)
	if err != nil {
		return 0, 0, nil, nil, off, err
	}
	return cam, msgID, controllee, controller, off + n, nil
}
