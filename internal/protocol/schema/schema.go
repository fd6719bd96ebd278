package schema

import (
	"fmt"
	"math"
)

// Codec describes how the words behind a CIF0 bit are interpreted.
type Codec uint8

const (
	// CodecFlag bits carry no payload words.
	CodecFlag Codec = iota
	// CodecOpaque fields have a standard fixed width but are not interpreted here.
	CodecOpaque
	// CodecHz fields are 64-bit fixed point, radix 20, in Hz.
	CodecHz
	// CodecVariable fields have a self-described width this codec does not parse.
	CodecVariable
	// CodecContinuation bits announce a further indicator word (CIF1/2/3/7).
	CodecContinuation
)

func (c Codec) String() string {
	switch c {
	case CodecFlag:
		return "flag"
	case CodecOpaque:
		return "opaque"
	case CodecHz:
		return "hz"
	case CodecVariable:
		return "variable"
	case CodecContinuation:
		return "continuation"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// CIF0 bit positions used by the command client.
const (
	BitChangeIndicator      uint8 = 31
	BitBandwidth            uint8 = 29
	BitRFReferenceFrequency uint8 = 27
	BitGPSASCII             uint8 = 9
	BitContextAssociation   uint8 = 8
	BitCIF7                 uint8 = 7
	BitCIF3                 uint8 = 3
	BitCIF2                 uint8 = 2
	BitCIF1                 uint8 = 1
)

// hzLimit is the magnitude bound of a 44.20 fixed-point Hz field.
var hzLimit = math.Ldexp(1, 43)

// Field is one CIF0 table entry.
type Field struct {
	Bit   uint8
	Name  string
	Words int
	Codec Codec
	// Physical range checked on decoded CodecHz values.
	Min float64
	Max float64
}

// Mask is the CIF0 bit for f.
func (f Field) Mask() uint32 {
	return 1 << f.Bit
}

// Interpreted reports whether the codec reads values for f.
func (f Field) Interpreted() bool {
	return f.Codec == CodecHz
}

// Skippable reports whether f can be stepped over without interpreting it.
func (f Field) Skippable() bool {
	return f.Codec == CodecFlag || f.Codec == CodecOpaque
}

// HasResponse reports whether f gets a response word in a WIF/EIF ack.
func (f Field) HasResponse() bool {
	return f.Codec != CodecFlag && f.Codec != CodecContinuation
}

func (f Field) InRange(v float64) bool {
	return v >= f.Min && v <= f.Max
}

// cif0 is ordered by descending bit, which is the payload order.
var cif0 = []Field{
	{Bit: BitChangeIndicator, Name: "change_indicator", Codec: CodecFlag},
	{Bit: 30, Name: "reference_point_id", Words: 1, Codec: CodecOpaque},
	{Bit: BitBandwidth, Name: "bandwidth", Words: 2, Codec: CodecHz, Min: 0, Max: hzLimit},
	{Bit: 28, Name: "if_reference_frequency", Words: 2, Codec: CodecOpaque},
	{Bit: BitRFReferenceFrequency, Name: "rf_reference_frequency", Words: 2, Codec: CodecHz, Min: 0, Max: hzLimit},
	{Bit: 26, Name: "rf_reference_frequency_offset", Words: 2, Codec: CodecOpaque},
	{Bit: 25, Name: "if_band_offset", Words: 2, Codec: CodecOpaque},
	{Bit: 24, Name: "reference_level", Words: 1, Codec: CodecOpaque},
	{Bit: 23, Name: "gain", Words: 1, Codec: CodecOpaque},
	{Bit: 22, Name: "over_range_count", Words: 1, Codec: CodecOpaque},
	{Bit: 21, Name: "sample_rate", Words: 2, Codec: CodecOpaque},
	{Bit: 20, Name: "timestamp_adjustment", Words: 2, Codec: CodecOpaque},
	{Bit: 19, Name: "timestamp_calibration_time", Words: 1, Codec: CodecOpaque},
	{Bit: 18, Name: "temperature", Words: 1, Codec: CodecOpaque},
	{Bit: 17, Name: "device_identifier", Words: 2, Codec: CodecOpaque},
	{Bit: 16, Name: "state_event_indicators", Words: 1, Codec: CodecOpaque},
	{Bit: 15, Name: "data_payload_format", Words: 2, Codec: CodecOpaque},
	{Bit: 14, Name: "formatted_gps", Words: 11, Codec: CodecOpaque},
	{Bit: 13, Name: "formatted_ins", Words: 11, Codec: CodecOpaque},
	{Bit: 12, Name: "ecef_ephemeris", Words: 13, Codec: CodecOpaque},
	{Bit: 11, Name: "relative_ephemeris", Words: 13, Codec: CodecOpaque},
	{Bit: 10, Name: "ephemeris_reference_id", Words: 1, Codec: CodecOpaque},
	{Bit: BitGPSASCII, Name: "gps_ascii", Codec: CodecVariable},
	{Bit: BitContextAssociation, Name: "context_association_lists", Codec: CodecVariable},
	{Bit: BitCIF7, Name: "cif7_enable", Codec: CodecContinuation},
	{Bit: BitCIF3, Name: "cif3_enable", Codec: CodecContinuation},
	{Bit: BitCIF2, Name: "cif2_enable", Codec: CodecContinuation},
	{Bit: BitCIF1, Name: "cif1_enable", Codec: CodecContinuation},
}

var byBit = func() map[uint8]Field {
	m := make(map[uint8]Field, len(cif0))
	for _, f := range cif0 {
		m[f.Bit] = f
	}
	return m
}()

// ReservedMask covers CIF0 bits with no assigned meaning (6-4 and 0).
const ReservedMask uint32 = 1<<6 | 1<<5 | 1<<4 | 1<<0

// Lookup returns the table entry for bit. Reserved bits are not found.
func Lookup(bit uint8) (Field, bool) {
	f, ok := byBit[bit]
	return f, ok
}

// FieldByName finds an entry by its table name.
func FieldByName(name string) (Field, bool) {
	for _, f := range cif0 {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// CanonicalOrder returns a copy of the CIF0 table in payload order.
func CanonicalOrder() []Field {
	out := make([]Field, len(cif0))
	copy(out, cif0)
	return out
}

// SetBits lists the set bits of an indicator word, highest first.
func SetBits(word uint32) []uint8 {
	bits := make([]uint8, 0, 8)
	for bit := 31; bit >= 0; bit-- {
		if word&(1<<uint(bit)) != 0 {
			bits = append(bits, uint8(bit))
		}
	}
	return bits
}

// ContinuationBits returns the CIF1/2/3 enable bits set in word, ascending.
func ContinuationBits(word uint32) []uint8 {
	out := make([]uint8, 0, 3)
	for _, bit := range []uint8{BitCIF1, BitCIF2, BitCIF3} {
		if word&(1<<bit) != 0 {
			out = append(out, bit)
		}
	}
	return out
}
