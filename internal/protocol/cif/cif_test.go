package cif

import (
	"errors"
	"math"
	"math/bits"
	"testing"

	"github.com/danmuck/vrtctl/internal/protocol"
	"github.com/danmuck/vrtctl/internal/protocol/schema"
	"github.com/danmuck/vrtctl/internal/testutil/testlog"
)

func TestEncodeFieldsUsesCanonicalOrder(t *testing.T) {
	testlog.Start(t)

	// Caller order: frequency first, bandwidth second.
	in := []Value{Hz(schema.BitRFReferenceFrequency, 2.4e9), Hz(schema.BitBandwidth, 20e6)}
	cif0, payload, err := EncodeFields(in)
	if err != nil {
		t.Fatalf("encode fields: %v", err)
	}
	if cif0 != 1<<29|1<<27 {
		t.Fatalf("cif0=%08x", cif0)
	}
	if bits.OnesCount32(cif0)*8 != len(payload) {
		t.Fatalf("payload length %d does not match %d set bits", len(payload), bits.OnesCount32(cif0))
	}
	var first [8]byte
	copy(first[:], payload[:8])
	if got := protocol.DecodeFixedPoint(first, protocol.FrequencyIntBits, protocol.FrequencyRadix); got != 20e6 {
		t.Fatalf("first field should be bandwidth, got %g", got)
	}

	out, n, err := DecodeFields(cif0, payload, 0)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if n != len(payload) || len(out) != 2 {
		t.Fatalf("decoded %d values from %d bytes", len(out), n)
	}
	if out[0].Name != "bandwidth" || out[1].Name != "rf_reference_frequency" {
		t.Fatalf("decode order: %+v", out)
	}
	if v, ok := Get(out, schema.BitRFReferenceFrequency); !ok || v.Hz != 2.4e9 || v.OutOfRange {
		t.Fatalf("rf value: %+v ok=%v", v, ok)
	}
}

func TestEncodeFieldsRejectsDuplicatesAndBadValues(t *testing.T) {
	testlog.Start(t)

	_, _, err := EncodeFields([]Value{Hz(schema.BitBandwidth, 1), Hz(schema.BitBandwidth, 2)})
	if !errors.Is(err, protocol.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for duplicate, got %v", err)
	}

	_, _, err = EncodeFields([]Value{Hz(schema.BitBandwidth, math.Inf(1))})
	var encErr protocol.EncodingError
	if !errors.As(err, &encErr) || encErr.Field != "bandwidth" {
		t.Fatalf("expected EncodingError for bandwidth, got %v", err)
	}

	_, _, err = EncodeFields([]Value{{Bit: 5}})
	if !errors.Is(err, protocol.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest for reserved bit, got %v", err)
	}
}

func TestDecodeFieldsSkipsOpaqueFixedWidth(t *testing.T) {
	testlog.Start(t)

	// gain (1 word, bit 23) then sample rate (2 words, bit 21) around an interpreted bandwidth.
	cif0 := uint32(1<<29 | 1<<23 | 1<<21)
	payload, _ := protocol.AppendFixedPoint(nil, 5e6, protocol.FrequencyIntBits, protocol.FrequencyRadix)
	payload = protocol.AppendU32(payload, 0x00010002)
	payload = append(payload, 1, 2, 3, 4, 5, 6, 7, 8)

	out, n, err := DecodeFields(cif0, payload, 0)
	if err != nil {
		t.Fatalf("decode fields: %v", err)
	}
	if n != 20 || len(out) != 3 {
		t.Fatalf("consumed=%d values=%d", n, len(out))
	}
	if out[0].Hz != 5e6 || out[0].Skipped() {
		t.Fatalf("bandwidth: %+v", out[0])
	}
	if !out[1].Skipped() || out[1].Name != "gain" || !out[2].Skipped() || len(out[2].Raw) != 8 {
		t.Fatalf("skipped fields: %+v", out[1:])
	}
	if Words(cif0) != 5 {
		t.Fatalf("words=%d", Words(cif0))
	}
}

func TestDecodeFieldsFailsOnUnwalkableBits(t *testing.T) {
	testlog.Start(t)

	payload := make([]byte, 64)
	cases := []struct {
		name string
		cif0 uint32
		want error
	}{
		{name: "reserved", cif0: 1 << 5, want: protocol.ErrUnknownCifBit},
		{name: "gps ascii", cif0: 1 << schema.BitGPSASCII, want: protocol.ErrUnknownCifBit},
		{name: "cif1 enable", cif0: 1<<schema.BitBandwidth | 1<<schema.BitCIF1, want: protocol.ErrUnknownCifBit},
		{name: "cif7 enable", cif0: 1 << schema.BitCIF7, want: protocol.ErrUnknownCifBit},
	}
	for _, tc := range cases {
		_, _, err := DecodeFields(tc.cif0, payload, 0)
		if !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}

	_, _, err := DecodeFields(1<<schema.BitBandwidth, payload[:4], 12)
	if !errors.Is(err, protocol.ErrTruncated) {
		t.Fatalf("expected ErrTruncated, got %v", err)
	}
	var pe protocol.ParseError
	if !errors.As(err, &pe) || pe.Offset != 12 {
		t.Fatalf("expected offset 12, got %+v", pe)
	}
}

func TestDecodeFieldsFlagsOutOfPhysicalRange(t *testing.T) {
	testlog.Start(t)

	payload, _ := protocol.AppendFixedPoint(nil, -10, protocol.FrequencyIntBits, protocol.FrequencyRadix)
	out, _, err := DecodeFields(1<<schema.BitBandwidth, payload, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out[0].OutOfRange {
		t.Fatalf("negative bandwidth should be flagged: %+v", out[0])
	}
}
