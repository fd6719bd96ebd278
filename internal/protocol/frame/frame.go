package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/vrtctl/internal/protocol"
)

const (
	WordLen = 4
	// MaxPacketWords is the largest size the 16-bit header size field can declare.
	MaxPacketWords = 0xFFFF
	MaxPacketBytes = MaxPacketWords * WordLen

	bitClassID = 27
	bitAck     = 26
	bitCancel  = 24

	picosPerSecond = uint64(1_000_000_000_000)
)

var ErrPacketTooLarge = errors.New("frame: packet exceeds 16-bit word count")

// TSI is the integer-seconds timestamp kind (header bits 23-22).
type TSI uint8

const (
	TSINone TSI = iota
	TSIUTC
	TSIGPS
	TSIOther
)

// TSF is the fractional timestamp kind (header bits 21-20).
type TSF uint8

const (
	TSFNone TSF = iota
	TSFSampleCount
	TSFRealTime
	TSFFreeRunning
)

// Header is the first word of every VRT packet.
type Header struct {
	Type      protocol.PacketType
	ClassID   bool
	Ack       bool
	Cancel    bool
	TSI       TSI
	TSF       TSF
	Sequence  protocol.Sequence
	SizeWords uint16
}

// ClassID is the two-word class identifier (24-bit OUI, information and packet class codes).
type ClassID struct {
	OUI             uint32
	InformationCode uint16
	PacketCode      uint16
}

// Timestamp holds the integer and fractional timestamp words. Which of them are
// present is declared by the header TSI/TSF fields.
type Timestamp struct {
	Integer    uint32
	Fractional uint64
}

// UTCTimestamp converts t to UTC seconds and real-time picoseconds.
func UTCTimestamp(t time.Time) Timestamp {
	t = t.UTC()
	return Timestamp{
		Integer:    uint32(t.Unix()),
		Fractional: uint64(t.Nanosecond()) * 1000,
	}
}

// Time interprets a UTC/real-time timestamp. Fractional values past one second are clamped.
func (ts Timestamp) Time() time.Time {
	frac := ts.Fractional
	if frac >= picosPerSecond {
		frac = picosPerSecond - 1
	}
	return time.Unix(int64(ts.Integer), int64(frac/1000)).UTC()
}

// Prologue is everything ahead of the command payload.
type Prologue struct {
	Header    Header
	StreamID  uint32
	Class     ClassID
	Timestamp Timestamp
}

// PrologueWords is the prologue length implied by the header flags.
func (h Header) PrologueWords() int {
	n := 2 // header + stream id
	if h.ClassID {
		n += 2
	}
	if h.TSI != TSINone {
		n++
	}
	if h.TSF != TSFNone {
		n += 2
	}
	return n
}

func EncodeHeader(h Header) uint32 {
	w := uint32(h.Type&0xF) << 28
	if h.ClassID {
		w |= 1 << bitClassID
	}
	if h.Ack {
		w |= 1 << bitAck
	}
	if h.Cancel {
		w |= 1 << bitCancel
	}
	w |= uint32(h.TSI&0x3) << 22
	w |= uint32(h.TSF&0x3) << 20
	w |= uint32(h.Sequence%protocol.SequenceModulus) << 16
	w |= uint32(h.SizeWords)
	return w
}

func DecodeHeader(w uint32) Header {
	return Header{
		Type:      protocol.PacketType(w >> 28),
		ClassID:   w&(1<<bitClassID) != 0,
		Ack:       w&(1<<bitAck) != 0,
		Cancel:    w&(1<<bitCancel) != 0,
		TSI:       TSI((w >> 22) & 0x3),
		TSF:       TSF((w >> 20) & 0x3),
		Sequence:  protocol.Sequence((w >> 16) & 0xF),
		SizeWords: uint16(w),
	}
}

// AppendPrologue writes p to dst. The header is written as given; callers set
// SizeWords once the payload length is known (see SetSize).
func AppendPrologue(dst []byte, p Prologue) []byte {
	h := p.Header
	dst = protocol.AppendU32(dst, EncodeHeader(h))
	dst = protocol.AppendU32(dst, p.StreamID)
	if h.ClassID {
		dst = protocol.AppendU32(dst, p.Class.OUI&0x00FFFFFF)
		dst = protocol.AppendU32(dst, uint32(p.Class.InformationCode)<<16|uint32(p.Class.PacketCode))
	}
	if h.TSI != TSINone {
		dst = protocol.AppendU32(dst, p.Timestamp.Integer)
	}
	if h.TSF != TSFNone {
		dst = binary.BigEndian.AppendUint64(dst, p.Timestamp.Fractional)
	}
	return dst
}

// SetSize patches the header size field of a fully serialized packet.
func SetSize(packet []byte) error {
	if len(packet) < WordLen || len(packet)%WordLen != 0 {
		return fmt.Errorf("frame: packet length %d is not a whole number of words", len(packet))
	}
	words := len(packet) / WordLen
	if words > MaxPacketWords {
		return fmt.Errorf("%w: %d words", ErrPacketTooLarge, words)
	}
	w := protocol.U32(packet) &^ 0xFFFF
	protocol.PutU32(packet, w|uint32(words))
	return nil
}

// CheckDatagram validates the header of a received datagram against its
// length and the wanted packet type. It is cheap enough to run on every
// datagram the transport reads.
func CheckDatagram(b []byte, want protocol.PacketType) (Header, error) {
	if len(b) < WordLen {
		return Header{}, protocol.NewParseError(protocol.ErrTruncated, 0, "datagram of %d bytes has no header word", len(b))
	}
	h := DecodeHeader(protocol.U32(b))
	if h.Type != want {
		return h, protocol.NewParseError(protocol.ErrBadType, 0, "got %s want %s", h.Type, want)
	}
	declared := int(h.SizeWords) * WordLen
	switch {
	case len(b) < declared:
		return h, protocol.NewParseError(protocol.ErrTruncated, len(b), "header declares %d bytes", declared)
	case len(b) > declared || declared == 0:
		return h, protocol.NewParseError(protocol.ErrSizeMismatch, 0, "header declares %d bytes, datagram has %d", declared, len(b))
	}
	if int(h.SizeWords) < h.PrologueWords() {
		return h, protocol.NewParseError(protocol.ErrSizeMismatch, 0, "size %d words shorter than %d-word prologue", h.SizeWords, h.PrologueWords())
	}
	return h, nil
}

// ReadPrologue checks b and decodes the prologue. It returns the byte offset
// of the first payload word.
func ReadPrologue(b []byte, want protocol.PacketType) (Prologue, int, error) {
	h, err := CheckDatagram(b, want)
	if err != nil {
		return Prologue{}, 0, err
	}
	p := Prologue{Header: h}
	off := WordLen
	p.StreamID = protocol.U32(b[off:])
	off += WordLen
	if h.ClassID {
		p.Class.OUI = protocol.U32(b[off:]) & 0x00FFFFFF
		codes := protocol.U32(b[off+WordLen:])
		p.Class.InformationCode = uint16(codes >> 16)
		p.Class.PacketCode = uint16(codes)
		off += 2 * WordLen
	}
	if h.TSI != TSINone {
		p.Timestamp.Integer = protocol.U32(b[off:])
		off += WordLen
	}
	if h.TSF != TSFNone {
		p.Timestamp.Fractional = binary.BigEndian.Uint64(b[off:])
		off += 2 * WordLen
	}
	return p, off, nil
}
