// Package constitution hashes and verifies the project's governance
// document. The hash recorded at intake must match the live file at every
// later gate; anything else fails closed.
package constitution

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultFile is the governance document name relative to the project root.
const DefaultFile = "CONSTITUTION.md"

// ErrNotFound is returned by Hash when the document does not exist.
var ErrNotFound = errors.New("governance document not found")

// Result is the outcome of Verify.
type Result struct {
	Valid    bool   `json:"valid"`
	Reason   string `json:"reason,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// Document locates the governance file of one project.
type Document struct {
	ProjectDir string
	File       string
}

// New returns a Document for file (DefaultFile when empty) under projectDir.
func New(projectDir, file string) Document {
	if file == "" {
		file = DefaultFile
	}
	return Document{ProjectDir: projectDir, File: file}
}

// Path is the absolute location of the document.
func (d Document) Path() string {
	if filepath.IsAbs(d.File) {
		return d.File
	}
	return filepath.Join(d.ProjectDir, d.File)
}

// Hash returns the hex SHA-256 of the document.
func (d Document) Hash() (string, error) {
	f, err := os.Open(d.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, d.File)
		}
		return "", fmt.Errorf("opening governance document: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing governance document: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify recomputes the live hash and compares it with recorded. An empty
// recorded hash means intake has not happened yet and always verifies.
func (d Document) Verify(recorded string) Result {
	if recorded == "" {
		return Result{Valid: true, Reason: "no governance hash recorded"}
	}
	actual, err := d.Hash()
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Result{Valid: false, Reason: fmt.Sprintf("%s is missing", d.File), Expected: recorded}
		}
		return Result{Valid: false, Reason: err.Error(), Expected: recorded}
	}
	if actual != recorded {
		return Result{
			Valid:    false,
			Reason:   fmt.Sprintf("%s changed since intake", d.File),
			Expected: recorded,
			Actual:   actual,
		}
	}
	return Result{Valid: true, Expected: recorded, Actual: actual}
}

// Hash is shorthand for New(projectDir, DefaultFile).Hash().
func Hash(projectDir string) (string, error) {
	return New(projectDir, "").Hash()
}

// Verify is shorthand for New(projectDir, DefaultFile).Verify(recorded).
func Verify(recorded, projectDir string) Result {
	return New(projectDir, "").Verify(recorded)
}
