package types

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Field limits from spec §6.
const (
	MaxContentChars   = 10_000
	MaxSourceChars    = 128
	MaxMetadataBytes  = 8 * 1024
)

// ErrInvalidInput is returned when a caller-supplied value violates a
// documented field limit.
var ErrInvalidInput = errors.New("invalid input")

// ValidateContent checks the content length limit (§6, boundary-tested at
// exactly 10,000 chars in §8).
func ValidateContent(content string) error {
	if content == "" {
		return fmt.Errorf("%w: content must not be empty", ErrInvalidInput)
	}
	if n := len([]rune(content)); n > MaxContentChars {
		return fmt.Errorf("%w: content length %d exceeds limit %d", ErrInvalidInput, n, MaxContentChars)
	}
	return nil
}

// ValidateSource checks the source tag length limit.
func ValidateSource(source string) error {
	if n := len([]rune(source)); n > MaxSourceChars {
		return fmt.Errorf("%w: source length %d exceeds limit %d", ErrInvalidInput, n, MaxSourceChars)
	}
	return nil
}

// ValidateMetadata checks the serialized metadata size limit.
func ValidateMetadata(metadata map[string]any) error {
	if len(metadata) == 0 {
		return nil
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("%w: metadata is not serializable: %v", ErrInvalidInput, err)
	}
	if len(encoded) > MaxMetadataBytes {
		return fmt.Errorf("%w: metadata size %d bytes exceeds limit %d", ErrInvalidInput, len(encoded), MaxMetadataBytes)
	}
	return nil
}
