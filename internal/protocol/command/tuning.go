package command

import (
	"fmt"

	"github.com/danmuck/vrtctl/internal/protocol"
	"github.com/danmuck/vrtctl/internal/protocol/cif"
	"github.com/danmuck/vrtctl/internal/protocol/schema"
)

// Tuning is the set of parameters a command can change. Nil means "leave as is".
type Tuning struct {
	BandwidthHz *float64
	FrequencyHz *float64
}

// Hz returns a pointer to v for Tuning literals.
func Hz(v float64) *float64 {
	return &v
}

// Validate enforces that at least one parameter is requested. The client
// entry point and the packet builder both run it.
func (t Tuning) Validate() error {
	if t.BandwidthHz == nil && t.FrequencyHz == nil {
		return fmt.Errorf("%w: at least one of bandwidth or frequency is required", protocol.ErrInvalidRequest)
	}
	return nil
}

// ValidateTuning is Tuning.Validate for callers holding loose values.
func ValidateTuning(bandwidthHz, frequencyHz *float64) error {
	return Tuning{BandwidthHz: bandwidthHz, FrequencyHz: frequencyHz}.Validate()
}

// Values lists the requested parameters as CIF0 values. Order is not
// significant; the field codec sorts them.
func (t Tuning) Values() []cif.Value {
	out := make([]cif.Value, 0, 2)
	if t.FrequencyHz != nil {
		out = append(out, cif.Hz(schema.BitRFReferenceFrequency, *t.FrequencyHz))
	}
	if t.BandwidthHz != nil {
		out = append(out, cif.Hz(schema.BitBandwidth, *t.BandwidthHz))
	}
	return out
}

// FieldLabel is the short caller-facing name for a CIF0 bit.
func FieldLabel(bit uint8) string {
	switch bit {
	case schema.BitBandwidth:
		return "bandwidth"
	case schema.BitRFReferenceFrequency:
		return "frequency"
	}
	if f, ok := schema.Lookup(bit); ok {
		return f.Name
	}
	return fmt.Sprintf("cif0_bit_%d", bit)
}
