package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// Loader resolves role definitions from built-ins plus override files in
// one directory (<dir>/<role>.md). Results are cached for the lifetime of
// the Loader; create a new Loader to pick up edited overrides.
type Loader struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	cache map[Role]*Definition
}

// NewLoader creates a loader reading overrides from dir. An empty dir
// disables overrides.
func NewLoader(dir string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		dir:    dir,
		logger: logger,
		cache:  make(map[Role]*Definition),
	}
}

// Load returns the merged definition for role.
func (l *Loader) Load(role Role) (*Definition, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if d, ok := l.cache[role]; ok {
		return d.clone(), nil
	}

	base, ok := Default(role)
	if !ok {
		base = &Definition{Role: role}
	}

	merged, err := l.applyOverride(role, base)
	if err != nil {
		return nil, err
	}
	if !ok && merged == base {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRole, role)
	}
	if err := merged.Validate(); err != nil {
		return nil, err
	}

	l.cache[role] = merged
	return merged.clone(), nil
}

// LoadAll resolves every role in roles.
func (l *Loader) LoadAll(roles []Role) (map[Role]*Definition, error) {
	out := make(map[Role]*Definition, len(roles))
	for _, r := range roles {
		d, err := l.Load(r)
		if err != nil {
			return nil, err
		}
		out[r] = d
	}
	return out, nil
}

// Cached reports how many roles are cached.
func (l *Loader) Cached() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.cache)
}

func (l *Loader) applyOverride(role Role, base *Definition) (*Definition, error) {
	if l.dir == "" {
		return base, nil
	}
	path := filepath.Join(l.dir, string(role)+".md")
	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return nil, fmt.Errorf("reading override %s: %w", path, err)
	}
	o, err := ParseOverride(content)
	if err != nil {
		return nil, fmt.Errorf("parsing override %s: %w", path, err)
	}
	merged := o.Apply(base)
	merged.Source = path
	l.logger.Debug("applied skill override",
		zap.String("role", string(role)),
		zap.String("path", path),
		zap.Bool("body_only", o.BodyOnly))
	return merged, nil
}
