// Package validation provides capacity-bounded string fields for values
// received from the identity provider
package validation

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Field capacities in bytes
const (
	DeviceCodeMax      = 1024
	UserCodeMax        = 128
	VerificationURLMax = 1024
	AccessTokenMax     = 1024
	RefreshTokenMax    = 256
)

// ErrValueTooLong indicates a value does not fit its field capacity
var ErrValueTooLong = errors.New("value too long")

// LengthError reports a value that exceeded a field's capacity
type LengthError struct {
	Field string
	Len   int
	Max   int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("field %q: %d bytes exceeds capacity of %d", e.Field, e.Len, e.Max)
}

// Is reports ErrValueTooLong so callers can match with errors.Is
func (e *LengthError) Is(target error) bool {
	return target == ErrValueTooLong
}

// Bounded is a named string field with a fixed byte capacity.
// Set rejects oversize values instead of truncating them.
type Bounded struct {
	name  string
	max   int
	value string
}

// NewBounded creates an empty field with the given name and byte capacity
func NewBounded(name string, max int) Bounded {
	return Bounded{name: name, max: max}
}

// Set replaces the value. Values longer than the capacity are rejected with a
// *LengthError and the previous value is kept.
func (b *Bounded) Set(v string) error {
	if err := b.Check(v); err != nil {
		return err
	}
	b.value = v
	return nil
}

// Check reports whether v would fit without changing the field
func (b *Bounded) Check(v string) error {
	if len(v) > b.max {
		return &LengthError{Field: b.name, Len: len(v), Max: b.max}
	}
	return nil
}

// Truncate stores v cut down to the capacity, backing off to the last
// complete UTF-8 sequence. It reports whether anything was dropped.
func (b *Bounded) Truncate(v string) bool {
	if len(v) <= b.max {
		b.value = v
		return false
	}
	cut := b.max
	for cut > 0 && !utf8.RuneStart(v[cut]) {
		cut--
	}
	b.value = v[:cut]
	return true
}

// Clear empties the value
func (b *Bounded) Clear() {
	b.value = ""
}

// String returns the stored value
func (b Bounded) String() string {
	return b.value
}

// Len returns the stored length in bytes
func (b Bounded) Len() int {
	return len(b.value)
}

// Cap returns the capacity in bytes
func (b Bounded) Cap() int {
	return b.max
}

// Name returns the field name used in errors
func (b Bounded) Name() string {
	return b.name
}

// IsEmpty reports whether no value is stored
func (b Bounded) IsEmpty() bool {
	return b.value == ""
}
