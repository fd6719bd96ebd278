package cif

import (
	"fmt"
	"sort"

	"github.com/danmuck/vrtctl/internal/protocol"
	"github.com/danmuck/vrtctl/internal/protocol/schema"
)

const wordLen = 4

// Value is one present CIF0 field. Hz is set for interpreted fields, Raw holds
// the words of fields the codec steps over.
type Value struct {
	Bit        uint8
	Name       string
	Hz         float64
	Raw        []byte
	OutOfRange bool
}

// Hz builds an interpreted value for bit.
func Hz(bit uint8, hz float64) Value {
	f, _ := schema.Lookup(bit)
	return Value{Bit: bit, Name: f.Name, Hz: hz}
}

// Skipped reports whether v was stepped over rather than interpreted.
func (v Value) Skipped() bool {
	return v.Raw != nil
}

// EncodeFields serializes values in canonical bit order, whatever order they
// were given in, and returns the CIF0 word that declares them.
func EncodeFields(values []Value) (uint32, []byte, error) {
	ordered := make([]Value, len(values))
	copy(ordered, values)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Bit > ordered[j].Bit })

	var cif0 uint32
	size := 0
	for _, v := range ordered {
		f, ok := schema.Lookup(v.Bit)
		if !ok {
			return 0, nil, fmt.Errorf("%w: cif0 bit %d is reserved", protocol.ErrInvalidRequest, v.Bit)
		}
		if cif0&f.Mask() != 0 {
			return 0, nil, fmt.Errorf("%w: duplicate field %s", protocol.ErrInvalidRequest, f.Name)
		}
		cif0 |= f.Mask()
		size += f.Words * wordLen
	}

	out := make([]byte, 0, size)
	for _, v := range ordered {
		f, _ := schema.Lookup(v.Bit)
		switch {
		case f.Interpreted():
			var err error
			out, err = protocol.AppendFixedPoint(out, v.Hz, protocol.FrequencyIntBits, protocol.FrequencyRadix)
			if err != nil {
				return 0, nil, withField(err, f.Name)
			}
		case f.Codec == schema.CodecOpaque && len(v.Raw) == f.Words*wordLen:
			out = append(out, v.Raw...)
		case f.Codec == schema.CodecFlag:
		default:
			return 0, nil, protocol.EncodingError{Field: f.Name, Reason: "no encoder for " + f.Codec.String() + " field"}
		}
	}
	return cif0, out, nil
}

// DecodeFields reads the fields declared by cif0 from the start of b. It
// returns the values in canonical order and the number of bytes consumed;
// base is the offset of b in the packet, used in error reports.
//
// Fixed-width fields the codec does not interpret are skipped. Reserved bits,
// variable-width fields and indicator continuations fail with ErrUnknownCifBit
// because the field boundaries after them are unknown.
func DecodeFields(cif0 uint32, b []byte, base int) ([]Value, int, error) {
	if cif0&schema.ReservedMask != 0 {
		bits := schema.SetBits(cif0 & schema.ReservedMask)
		return nil, 0, protocol.NewParseError(protocol.ErrUnknownCifBit, base, "reserved cif0 bit %d set", bits[0])
	}
	values := make([]Value, 0, 2)
	off := 0
	for _, bit := range schema.SetBits(cif0) {
		f, _ := schema.Lookup(bit)
		if !f.Skippable() && !f.Interpreted() {
			return nil, 0, protocol.NewParseError(protocol.ErrUnknownCifBit, base+off, "cif0 bit %d (%s) has no fixed width", bit, f.Name)
		}
		n := f.Words * wordLen
		if len(b)-off < n {
			return nil, 0, protocol.NewParseError(protocol.ErrTruncated, base+off, "field %s needs %d bytes", f.Name, n)
		}
		if f.Codec == schema.CodecFlag {
			continue
		}
		v := Value{Bit: bit, Name: f.Name}
		if f.Interpreted() {
			v.Hz = protocol.ReadFixedPoint(b[off:], protocol.FrequencyIntBits, protocol.FrequencyRadix)
			v.OutOfRange = !f.InRange(v.Hz)
		} else {
			v.Raw = append([]byte{}, b[off:off+n]...)
		}
		values = append(values, v)
		off += n
	}
	return values, off, nil
}

// Get returns the value for bit, if present.
func Get(values []Value, bit uint8) (Value, bool) {
	for _, v := range values {
		if v.Bit == bit {
			return v, true
		}
	}
	return Value{}, false
}

// Words is the payload size in words of the fields declared by cif0. Unknown
// widths count as zero.
func Words(cif0 uint32) int {
	n := 0
	for _, bit := range schema.SetBits(cif0) {
		if f, ok := schema.Lookup(bit); ok {
			n += f.Words
		}
	}
	return n
}

func withField(err error, name string) error {
	if e, ok := err.(protocol.EncodingError); ok {
		e.Field = name
		return e
	}
	return fmt.Errorf("%s: %w", name, err)
}
