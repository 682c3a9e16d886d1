package artifact

import (
	"errors"
	"fmt"
	"time"
)

// Type tags what kind of work product an artifact holds.
type Type string

const (
	TypeMasterPlan      Type = "master_plan"
	TypeArchitecture    Type = "architecture"
	TypeRolePlan        Type = "role_plan"
	TypeQAValidation    Type = "qa_validation"
	TypeReviewReport    Type = "review_report"
	TypeAuditReport     Type = "audit_report"
	TypeRecoveryPlan    Type = "recovery_plan"
	TypeRepoSnapshot    Type = "repo_snapshot"
	TypePlanPacket      Type = "plan_packet"
	TypeConsensusPacket Type = "consensus_packet"
	TypeCheckResult     Type = "check_result"
	TypeChangeRequest   Type = "change_request"
)

// Ref points at stored bytes. Consumers hold refs, never raw content, and
// Fetch re-checks Hash on every read.
type Ref struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	LogicalID string `json:"logical_id"`
	Version   int    `json:"version"`
	Hash      string `json:"hash"`
	// Path is relative to the store root.
	Path string `json:"path"`
}

// String renders the ref as type/logical@vN.
func (r Ref) String() string {
	return fmt.Sprintf("%s/%s@v%d", r.Type, r.LogicalID, r.Version)
}

// Entry is one manifest row.
type Entry struct {
	Ref
	Phase     string    `json:"phase"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Manifest indexes every artifact in the store.
type Manifest struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

const manifestVersion = 1

var (
	// ErrIntegrity matches any *IntegrityError via errors.Is.
	ErrIntegrity = errors.New("artifact integrity check failed")

	// ErrNotFound is returned when no artifact matches a lookup.
	ErrNotFound = errors.New("artifact not found")

	// ErrInvalidArtifact is returned for empty content or a bad logical id.
	ErrInvalidArtifact = errors.New("invalid artifact")
)

// IntegrityError reports stored bytes whose hash no longer matches.
type IntegrityError struct {
	Ref      Ref
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity error: %s expected sha256 %s, got %s", e.Ref, e.Expected, e.Actual)
}

// Is makes errors.Is(err, ErrIntegrity) true.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrity
}
