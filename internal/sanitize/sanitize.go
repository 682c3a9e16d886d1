// Package sanitize validates identifiers, paths and glob patterns that
// arrive from config files, legacy records and HTTP requests before they
// are joined onto the project or artifact root.
package sanitize

import (
	"errors"
	"fmt"
	"regexp"
)

// MaxIdentifierLength bounds artifact logical ids and type names.
const MaxIdentifierLength = 128

// Validation errors.
var (
	// ErrPathTraversal indicates a path escapes its root or contains "..".
	ErrPathTraversal = errors.New("path contains directory traversal")

	// ErrAbsolutePath indicates an absolute path where a relative one was expected.
	ErrAbsolutePath = errors.New("absolute path not allowed")

	// ErrEmptyPath indicates an empty path was provided.
	ErrEmptyPath = errors.New("path cannot be empty")

	// ErrInvalidIdentifier indicates an identifier with characters outside
	// [A-Za-z0-9._-] or a leading separator.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidPattern indicates a glob pattern is malformed or dangerous.
	ErrInvalidPattern = errors.New("invalid or dangerous pattern")
)

// identifierPattern matches names safe to use as a single path segment.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateIdentifier checks that id is non-empty, at most
// MaxIdentifierLength bytes, and a single safe path segment. field names
// the value in the error.
func ValidateIdentifier(id, field string) error {
	switch {
	case id == "":
		return fmt.Errorf("%w: %s is empty", ErrInvalidIdentifier, field)
	case len(id) > MaxIdentifierLength:
		return fmt.Errorf("%w: %s longer than %d characters", ErrInvalidIdentifier, field, MaxIdentifierLength)
	case !identifierPattern.MatchString(id):
		return fmt.Errorf("%w: %s %q", ErrInvalidIdentifier, field, id)
	}
	return nil
}
