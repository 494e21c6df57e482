// Package jsonutil provides unified JSON encoding helpers built on
// sonic's fastest configuration.
package jsonutil

import (
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

const (
	// DefaultJSONIndent is the indent used by MarshalIndent helpers.
	DefaultJSONIndent = "  "
	// DefaultJSONPrefix is the prefix used by MarshalIndent helpers.
	DefaultJSONPrefix = ""
	// MaxJSONSize bounds accepted documents (10MB).
	MaxJSONSize = 10 * 1024 * 1024
)

var (
	// ErrInvalidOutput indicates Unmarshal was given a nil destination.
	ErrInvalidOutput = errors.New("jsonutil: output must be a non-nil pointer")
	// ErrValueTooLarge indicates the document exceeds MaxJSONSize.
	ErrValueTooLarge = errors.New("jsonutil: value exceeds maximum size")
)

var sonicFast = sonic.ConfigFastest

// Marshal serializes a value to JSON with unified error handling.
func Marshal(v interface{}) ([]byte, error) {
	data, err := sonicFast.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("jsonutil.Marshal failed: %w", err)
	}
	return data, nil
}

// Unmarshal deserializes JSON data with unified error handling.
// Returns ErrInvalidOutput if v is nil.
// Returns ErrValueTooLarge if data exceeds MaxJSONSize.
func Unmarshal(data []byte, v interface{}) error {
	if v == nil {
		return ErrInvalidOutput
	}
	if len(data) > MaxJSONSize {
		return ErrValueTooLarge
	}
	if err := sonicFast.Unmarshal(data, v); err != nil {
		return fmt.Errorf("jsonutil.Unmarshal failed: %w", err)
	}
	return nil
}

// MarshalIndent serializes a value to indented JSON.
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	data, err := sonicFast.MarshalIndent(v, prefix, indent)
	if err != nil {
		return nil, fmt.Errorf("jsonutil.MarshalIndent failed: %w", err)
	}
	return data, nil
}
