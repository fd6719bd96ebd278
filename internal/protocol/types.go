package protocol

import "fmt"

// PacketType is the 4-bit VRT packet type in header bits 31-28.
type PacketType uint8

const (
	PacketTypeSignalData         PacketType = 0x0
	PacketTypeSignalDataStreamID PacketType = 0x1
	PacketTypeExtData            PacketType = 0x2
	PacketTypeExtDataStreamID    PacketType = 0x3
	PacketTypeContext            PacketType = 0x4
	PacketTypeExtContext         PacketType = 0x5
	PacketTypeCommand            PacketType = 0x6
	PacketTypeExtCommand         PacketType = 0x7
)

func (t PacketType) String() string {
	switch t {
	case PacketTypeSignalData, PacketTypeSignalDataStreamID:
		return "signal-data"
	case PacketTypeExtData, PacketTypeExtDataStreamID:
		return "ext-data"
	case PacketTypeContext:
		return "context"
	case PacketTypeExtContext:
		return "ext-context"
	case PacketTypeCommand:
		return "command"
	case PacketTypeExtCommand:
		return "ext-command"
	default:
		return fmt.Sprintf("reserved(0x%x)", uint8(t))
	}
}

// SequenceModulus is the wrap point of the 4-bit packet count.
const SequenceModulus = 16

// Sequence is the header packet count used to correlate a control packet with
// its acknowledgement. Valid values are 0-15.
type Sequence uint8

// Next returns the following sequence value, wrapping 15 to 0.
func (s Sequence) Next() Sequence {
	return (s%SequenceModulus + 1) % SequenceModulus
}

func (s Sequence) Valid() bool {
	return s < SequenceModulus
}
