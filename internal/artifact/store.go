// Package artifact is the content-addressed store for every document the
// pipeline produces or consumes.
//
// Each artifact is identified by (type, logical id, version). Bytes are
// hashed with SHA-256, written atomically under the store root, and indexed
// in manifest.json. Stored bytes never change: a revision is a new version
// with its own file.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fyrsmithlabs/quorum/internal/fsutil"
	"github.com/fyrsmithlabs/quorum/internal/sanitize"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const manifestFile = "manifest.json"

// Store persists artifacts under a root directory.
type Store struct {
	root   string
	logger *zap.Logger
	now    func() time.Time

	mu       sync.RWMutex
	manifest Manifest
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Open loads (or initialises) the store rooted at root.
func Open(root string, opts ...Option) (*Store, error) {
	s := &Store{
		root:     root,
		logger:   zap.NewNop(),
		now:      time.Now,
		manifest: Manifest{Version: manifestVersion},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root: %w", err)
	}

	err := fsutil.ReadJSON(filepath.Join(root, manifestFile), &s.manifest)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load manifest: %w", err)
	}
	return s, nil
}

// Root returns the store directory.
func (s *Store) Root() string {
	return s.root
}

// Store hashes content, assigns the next version for (typ, logicalID),
// writes the bytes and the manifest, and only then returns the entry.
func (s *Store) Store(ctx context.Context, typ Type, logicalID string, content []byte, phase string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: empty content for %s", ErrInvalidArtifact, typ)
	}
	if logicalID == "" {
		logicalID = string(typ)
	}
	if err := sanitize.ValidateIdentifier(logicalID, "logical id"); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	hash := HashBytes(content)
	version := s.nextVersionLocked(typ, logicalID)
	ext := ".md"
	if json.Valid(content) {
		ext = ".json"
	}
	rel := filepath.Join(string(typ), logicalID, fmt.Sprintf("v%04d-%s%s", version, hash[:12], ext))

	if err := fsutil.WriteFileAtomic(filepath.Join(s.root, rel), content, 0o444); err != nil {
		return nil, fmt.Errorf("write artifact %s: %w", rel, err)
	}

	entry := Entry{
		Ref: Ref{
			ID:        uuid.NewString(),
			Type:      typ,
			LogicalID: logicalID,
			Version:   version,
			Hash:      hash,
			Path:      filepath.ToSlash(rel),
		},
		Phase:     phase,
		Size:      int64(len(content)),
		CreatedAt: s.now().UTC(),
	}

	next := s.manifest
	next.Entries = append(append([]Entry(nil), s.manifest.Entries...), entry)
	if err := fsutil.WriteJSONAtomic(filepath.Join(s.root, manifestFile), next); err != nil {
		return nil, fmt.Errorf("write manifest: %w", err)
	}
	s.manifest = next

	s.logger.Debug("artifact stored",
		zap.String("ref", entry.Ref.String()),
		zap.String("hash", hash),
		zap.Int64("size", entry.Size),
		zap.String("phase", phase))
	return &entry, nil
}

// StoreStructured JSON-encodes value and stores it.
func (s *Store) StoreStructured(ctx context.Context, typ Type, logicalID string, value any, phase string) (*Entry, error) {
	content, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", typ, err)
	}
	return s.Store(ctx, typ, logicalID, content, phase)
}

// Fetch reads the bytes behind ref and recomputes their hash. A mismatch
// with ref.Hash, or with the manifest's record, is an *IntegrityError.
func (s *Store) Fetch(ctx context.Context, ref Ref) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := sanitize.ValidateRelative(ref.Path); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}

	s.mu.RLock()
	recorded, known := s.findLocked(ref)
	s.mu.RUnlock()

	content, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(ref.Path)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("read artifact %s: %w", ref, err)
	}

	actual := HashBytes(content)
	if actual != ref.Hash {
		return nil, &IntegrityError{Ref: ref, Expected: ref.Hash, Actual: actual}
	}
	if known && recorded.Hash != ref.Hash {
		return nil, &IntegrityError{Ref: ref, Expected: recorded.Hash, Actual: actual}
	}
	return content, nil
}

// FetchStructured fetches ref and decodes it as JSON into v.
func (s *Store) FetchStructured(ctx context.Context, ref Ref, v any) error {
	content, err := s.Fetch(ctx, ref)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("decode %s: %w", ref, err)
	}
	return nil
}

// Latest returns the highest version of (typ, logicalID).
func (s *Store) Latest(typ Type, logicalID string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Entry
	for i := range s.manifest.Entries {
		e := &s.manifest.Entries[i]
		if e.Type == typ && e.LogicalID == logicalID && (best == nil || e.Version > best.Version) {
			best = e
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, typ, logicalID)
	}
	out := *best
	return &out, nil
}

// List returns manifest entries of typ (all types when typ is empty),
// oldest first.
func (s *Store) List(typ Type) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, len(s.manifest.Entries))
	for _, e := range s.manifest.Entries {
		if typ == "" || e.Type == typ {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Verify re-hashes every manifest entry and returns the ones that fail.
func (s *Store) Verify(ctx context.Context) ([]error, error) {
	var failures []error
	for _, e := range s.List("") {
		if err := ctx.Err(); err != nil {
			return failures, err
		}
		if _, err := s.Fetch(ctx, e.Ref); err != nil {
			failures = append(failures, err)
		}
	}
	return failures, nil
}

func (s *Store) nextVersionLocked(typ Type, logicalID string) int {
	version := 0
	for _, e := range s.manifest.Entries {
		if e.Type == typ && e.LogicalID == logicalID && e.Version > version {
			version = e.Version
		}
	}
	return version + 1
}

func (s *Store) findLocked(ref Ref) (Entry, bool) {
	for _, e := range s.manifest.Entries {
		if e.Type == ref.Type && e.LogicalID == ref.LogicalID && e.Version == ref.Version {
			return e, true
		}
	}
	return Entry{}, false
}

// HashBytes returns the hex SHA-256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
