package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest = errors.New("protocol: invalid request")
	ErrEncoding       = errors.New("protocol: encoding error")
	ErrTruncated      = errors.New("protocol: truncated packet")
	ErrBadType        = errors.New("protocol: unexpected packet type")
	ErrSizeMismatch   = errors.New("protocol: packet size mismatch")
	ErrUnknownCifBit  = errors.New("protocol: unknown cif bit")
)

// ParseError reports a packet that could not be decoded. Kind is one of
// ErrTruncated, ErrBadType, ErrSizeMismatch or ErrUnknownCifBit.
type ParseError struct {
	Kind   error
	Offset int
	Reason string
}

func (e ParseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v (offset=%d)", e.Kind, e.Offset)
	}
	return fmt.Sprintf("%v (offset=%d): %s", e.Kind, e.Offset, e.Reason)
}

func (e ParseError) Unwrap() error {
	return e.Kind
}

// NewParseError builds a ParseError of kind at byte offset.
func NewParseError(kind error, offset int, format string, args ...any) error {
	return ParseError{Kind: kind, Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// IsParseError reports whether err is any of the parse fault kinds.
func IsParseError(err error) bool {
	var pe ParseError
	return errors.As(err, &pe)
}

// EncodingError reports a value that has no wire representation.
type EncodingError struct {
	Field  string
	Value  float64
	Reason string
}

func (e EncodingError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%v: value=%g: %s", ErrEncoding, e.Value, e.Reason)
	}
	return fmt.Sprintf("%v: field=%s value=%g: %s", ErrEncoding, e.Field, e.Value, e.Reason)
}

func (e EncodingError) Unwrap() error {
	return ErrEncoding
}
