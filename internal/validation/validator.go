// Package validation checks client-supplied keys and values before
// they enter the store. Trimmed from the teacher's Validator, which
// additionally validated tenant IDs and vector clocks — concepts this
// system does not have (see DESIGN.md).
package validation

import (
	"strings"
	"unicode"

	"github.com/distnode/ringkv/internal/errors"
)

const (
	// MaxKeySize bounds a key's length in bytes.
	MaxKeySize = 1024
	// MaxValueSize bounds a value's length in bytes.
	MaxValueSize = 10 * 1024 * 1024
)

// Validator checks keys and values against the configured size limits.
type Validator struct {
	maxKeySize   int
	maxValueSize int
}

// NewValidator builds a Validator with the default limits.
func NewValidator() *Validator {
	return &Validator{maxKeySize: MaxKeySize, maxValueSize: MaxValueSize}
}

// ValidateKey rejects empty keys, oversized keys, keys containing null
// bytes, or keys containing control characters other than tab/newline.
func (v *Validator) ValidateKey(key string) error {
	if key == "" {
		return errors.InvalidArgument("key cannot be empty")
	}
	if len(key) > v.maxKeySize {
		return errors.InvalidArgument("key exceeds maximum size")
	}
	if strings.Contains(key, "\x00") {
		return errors.InvalidArgument("key cannot contain null bytes")
	}
	for _, r := range key {
		if unicode.IsControl(r) && r != '\t' && r != '\n' {
			return errors.InvalidArgument("key cannot contain control characters")
		}
	}
	return nil
}

// ValidateValue rejects oversized values. An empty value is valid.
func (v *Validator) ValidateValue(value string) error {
	if len(value) > v.maxValueSize {
		return errors.InvalidArgument("value exceeds maximum size")
	}
	return nil
}
