package huff

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput indicates an unreadable or missing source, or an input
	// the engine refuses to process.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCorruptContainer indicates a container that is not a well-formed
	// artifact: bad magic, truncated sections, inconsistent sizes or a
	// checksum mismatch.
	ErrCorruptContainer = errors.New("corrupt container")
	// ErrUnsupportedVersion indicates a recognized container whose header
	// version or flags this build cannot decode.
	ErrUnsupportedVersion = errors.New("unsupported container version")
	// ErrInvariant indicates an internal tree or code table inconsistency.
	ErrInvariant = errors.New("internal invariant violation")
)

func corruptf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrCorruptContainer, fmt.Sprintf(format, args...))
}

func invariantf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvariant, fmt.Sprintf(format, args...))
}
