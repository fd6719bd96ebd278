package main

import (
	"fmt"
	"strconv"
	"strings"
)

// optionalFloat is a float flag that remembers whether it was given.
type optionalFloat struct {
	v   float64
	set bool
}

func (f *optionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return err
	}
	f.v, f.set = v, true
	return nil
}

func (f *optionalFloat) String() string {
	if f == nil || !f.set {
		return ""
	}
	return strconv.FormatFloat(f.v, 'g', -1, 64)
}

func (f *optionalFloat) ptr() *float64 {
	if !f.set {
		return nil
	}
	v := f.v
	return &v
}

// optionalUint32 accepts decimal or 0x-prefixed values.
type optionalUint32 struct {
	v   uint32
	set bool
}

func (u *optionalUint32) Set(s string) error {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return fmt.Errorf("want a 32-bit unsigned value: %w", err)
	}
	u.v, u.set = uint32(v), true
	return nil
}

func (u *optionalUint32) String() string {
	if u == nil || !u.set {
		return ""
	}
	return strconv.FormatUint(uint64(u.v), 10)
}

func (u *optionalUint32) ptr() *uint32 {
	if !u.set {
		return nil
	}
	v := u.v
	return &v
}
