package protocol

import (
	"encoding/binary"
	"math"
)

const (
	// FrequencyRadix is the fraction width of 64-bit Hz fields (bandwidth, RF reference).
	FrequencyRadix = 20
	// FrequencyIntBits is the integer width of 64-bit Hz fields, sign included.
	FrequencyIntBits = 44

	maxFixedPointBits = 64
)

// EncodeFixedPoint converts value to a two's-complement fixed-point number with
// intBits integer bits (sign included) and fracBits fraction bits, rounding to
// the nearest representable step. The result is sign-extended into 8 bytes,
// big-endian.
func EncodeFixedPoint(value float64, intBits, fracBits uint) ([8]byte, error) {
	var out [8]byte
	width := intBits + fracBits
	if intBits == 0 || width > maxFixedPointBits {
		return out, EncodingError{Value: value, Reason: "unsupported fixed-point format"}
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return out, EncodingError{Value: value, Reason: "not a finite number"}
	}

	scaled := math.Round(math.Ldexp(value, int(fracBits)))
	limit := math.Ldexp(1, int(width)-1)
	if scaled >= limit || scaled < -limit {
		return out, EncodingError{Value: value, Reason: "overflows fixed-point range"}
	}
	binary.BigEndian.PutUint64(out[:], uint64(int64(scaled)))
	return out, nil
}

// DecodeFixedPoint is the inverse of EncodeFixedPoint. Bits above the format
// width are ignored and the value is sign-extended from the top format bit.
func DecodeFixedPoint(b [8]byte, intBits, fracBits uint) float64 {
	width := intBits + fracBits
	raw := int64(binary.BigEndian.Uint64(b[:]))
	if width > 0 && width < maxFixedPointBits {
		shift := maxFixedPointBits - width
		raw = (raw << shift) >> shift
	}
	return math.Ldexp(float64(raw), -int(fracBits))
}

// FixedPointULP is the value of one least significant bit with fracBits fraction bits.
func FixedPointULP(fracBits uint) float64 {
	return math.Ldexp(1, -int(fracBits))
}

// AppendFixedPoint appends the encoding of value to dst.
func AppendFixedPoint(dst []byte, value float64, intBits, fracBits uint) ([]byte, error) {
	b, err := EncodeFixedPoint(value, intBits, fracBits)
	if err != nil {
		return dst, err
	}
	return append(dst, b[:]...), nil
}

// ReadFixedPoint decodes 8 bytes at the start of b. Callers check length.
func ReadFixedPoint(b []byte, intBits, fracBits uint) float64 {
	var buf [8]byte
	copy(buf[:], b[:8])
	return DecodeFixedPoint(buf, intBits, fracBits)
}

func EncodeU32(v uint32) [4]byte {
	var out [4]byte
	binary.BigEndian.PutUint32(out[:], v)
	return out
}

func DecodeU32(b [4]byte) uint32 {
	return binary.BigEndian.Uint32(b[:])
}

// AppendU32 appends v in network byte order.
func AppendU32(dst []byte, v uint32) []byte {
	return binary.BigEndian.AppendUint32(dst, v)
}

// U32 reads the word at the start of b. Callers check length.
func U32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// PutU32 writes v at the start of b.
func PutU32(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}
