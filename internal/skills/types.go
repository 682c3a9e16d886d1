// Package skills holds the per-role behaviour definitions reviewers and
// planners run with, and merges human-authored overrides over them.
package skills

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrInvalidDefinition indicates validation failure.
	ErrInvalidDefinition = errors.New("invalid skill definition")

	// ErrUnknownRole indicates neither a built-in nor an override exists.
	ErrUnknownRole = errors.New("unknown role")

	// ErrMalformedHeader indicates an override opened a header block it
	// never closed, or the header is not valid YAML.
	ErrMalformedHeader = errors.New("malformed override header")
)

// Role names a pipeline role.
type Role string

const (
	RoleArchitect Role = "architect"
	RoleBackend   Role = "backend"
	RoleFrontend  Role = "frontend"
	RoleDatabase  Role = "database"
	RoleDevOps    Role = "devops"
	RoleQA        Role = "qa"
	RoleSecurity  Role = "security"
	RoleReviewer  Role = "reviewer"
	RoleAuditor   Role = "auditor"
)

// Definition is the behaviour of one role.
type Definition struct {
	Role            Role     `json:"role" yaml:"role"`
	Description     string   `json:"description,omitempty" yaml:"description,omitempty"`
	SystemPrompt    string   `json:"system_prompt" yaml:"system_prompt"`
	RequiredOutputs []string `json:"required_outputs,omitempty" yaml:"required_outputs,omitempty"`
	Constraints     []string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Dependencies    []Role   `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
	// Source is "builtin", or the override file path when one was merged.
	Source string `json:"source" yaml:"-"`
}

// Validate validates the definition fields.
func (d *Definition) Validate() error {
	if d.Role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidDefinition)
	}
	if d.SystemPrompt == "" {
		return fmt.Errorf("%w: %s: system prompt is required", ErrInvalidDefinition, d.Role)
	}
	if len(d.SystemPrompt) > 50000 {
		return fmt.Errorf("%w: %s: system prompt must be <= 50000 characters", ErrInvalidDefinition, d.Role)
	}
	if slices.Contains(d.Dependencies, d.Role) {
		return fmt.Errorf("%w: %s depends on itself", ErrInvalidDefinition, d.Role)
	}
	return nil
}

// clone returns a deep copy so cached definitions cannot be mutated
// through a returned value.
func (d *Definition) clone() *Definition {
	c := *d
	c.RequiredOutputs = slices.Clone(d.RequiredOutputs)
	c.Constraints = slices.Clone(d.Constraints)
	c.Dependencies = slices.Clone(d.Dependencies)
	return &c
}
