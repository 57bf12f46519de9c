// ABOUTME: Error kinds shared by every theme component
// ABOUTME: Callers wrap these sentinels with context and test them with errors.Is

package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation means required input was missing or malformed. Nothing was mutated.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound means a referenced package, installation, or file does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied covers ownership mismatches and path traversal attempts.
	ErrAccessDenied = errors.New("access denied")

	// ErrExtraction means an archive could not be unpacked. The package root has been removed.
	ErrExtraction = errors.New("extraction failed")

	// ErrIO means a filesystem read, write, or copy failed.
	ErrIO = errors.New("io failure")

	// ErrInvalidRequest means the request targets something that cannot be served, like a directory.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrConflict means another actor currently holds the resource.
	ErrConflict = errors.New("conflict")
)

// Wrap returns an error that matches kind under errors.Is and keeps cause in the chain.
func Wrap(kind error, msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", kind, msg)
	}
	return fmt.Errorf("%w: %s: %w", kind, msg, cause)
}

// New returns an error of the given kind with a formatted message.
func New(kind error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", kind, fmt.Sprintf(format, args...))
}
