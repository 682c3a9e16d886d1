// Package validate holds the cheap structural checks an artifact must pass
// before any reviewer sees it. Every validator is a pure function of the
// artifact type and its raw content.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
)

// ErrStructural matches *ValidationError.
var ErrStructural = errors.New("structural validation failed")

// Result separates blocking errors from advisory warnings.
type Result struct {
	Type     artifact.Type `json:"type"`
	Valid    bool          `json:"valid"`
	Errors   []string      `json:"errors,omitempty"`
	Warnings []string      `json:"warnings,omitempty"`
}

// Err returns a *ValidationError when the result is not valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &ValidationError{Type: r.Type, Errors: r.Errors}
}

// ValidationError is a structural failure: the artifact is missing
// required sections or is too short to review.
type ValidationError struct {
	Type   artifact.Type
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s incomplete: %s", e.Type, strings.Join(e.Errors, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrStructural }

// section is a required heading, matched by any of its alternatives.
type section struct {
	name string
	alts *regexp.Regexp
}

func req(name string, alternatives ...string) section {
	return section{
		name: name,
		alts: regexp.MustCompile(`(?im)^\s*(?:#{1,6}\s*|\*\*)?(?:\d+[.)]\s*)?(?:` + strings.Join(alternatives, "|") + `)\b`),
	}
}

// rules describes one artifact type.
type rules struct {
	minLength  int
	sections   []section
	references []*regexp.Regexp
	refHint    string
}

var fileRef = regexp.MustCompile(`[\w./-]+\.(?:go|ts|tsx|js|jsx|py|rs|java|rb|sql|json|ya?ml|toml|md|prisma)\b`)

var registry = map[artifact.Type]rules{
	artifact.TypeMasterPlan: {
		minLength: 400,
		sections: []section{
			req("overview", "overview", "summary", "goals?", "objectives?"),
			req("scope", "scope", "requirements", "features"),
			req("acceptance criteria", "acceptance criteria", "success criteria", "definition of done"),
			req("risks", "risks?", "assumptions", "constraints"),
		},
	},
	artifact.TypeArchitecture: {
		minLength: 600,
		sections: []section{
			req("components", "components?", "modules", "services", "system design"),
			req("data model", "data model", "schema", "entities", "data"),
			req("interfaces", "interfaces?", "api", "endpoints", "contracts"),
			req("deployment", "deployment", "infrastructure", "topology", "operations"),
		},
		references: []*regexp.Regexp{fileRef},
		refHint:    "no file or config references; ground the design in the repository snapshot",
	},
	artifact.TypeRolePlan: {
		minLength: 200,
		sections: []section{
			req("tasks", "tasks", "steps", "work items", "plan"),
			req("deliverables", "deliverables", "outputs", "files"),
		},
		references: []*regexp.Regexp{fileRef},
		refHint:    "no file references in role plan",
	},
	artifact.TypeQAValidation: {
		minLength: 200,
		sections: []section{
			req("results", "results", "test results", "verification", "findings"),
			req("criteria", "acceptance criteria", "criteria", "coverage"),
		},
	},
	artifact.TypeReviewReport: {
		minLength: 150,
		sections: []section{
			req("findings", "findings", "issues", "observations"),
			req("verdict", "verdict", "recommendation", "decision", "conclusion"),
		},
	},
	artifact.TypeRecoveryPlan: {
		minLength: 150,
		sections: []section{
			req("root cause", "root cause", "cause", "diagnosis"),
			req("fix", "fix", "remediation", "changes", "plan"),
		},
	},
}

// Completeness runs the registered validator for typ. Types without one
// pass, except that empty content always fails.
func Completeness(typ artifact.Type, content []byte) Result {
	res := Result{Type: typ, Valid: true}
	text := string(content)
	if strings.TrimSpace(text) == "" {
		res.fail("content is empty")
		return res
	}
	if typ == artifact.TypeAuditReport {
		return auditReport(text)
	}
	r, ok := registry[typ]
	if !ok {
		return res
	}
	if n := len(strings.TrimSpace(text)); n < r.minLength {
		res.fail(fmt.Sprintf("content too short: %d characters (minimum %d)", n, r.minLength))
	}
	for _, s := range r.sections {
		if !s.alts.MatchString(text) {
			res.fail("missing required section: " + s.name)
		}
	}
	for _, ref := range r.references {
		if !ref.MatchString(text) {
			res.Warnings = append(res.Warnings, r.refHint)
			break
		}
	}
	return res
}

// Registered reports whether typ has a structural validator.
func Registered(typ artifact.Type) bool {
	_, ok := registry[typ]
	return ok || typ == artifact.TypeAuditReport
}

func (r *Result) fail(msg string) {
	r.Valid = false
	r.Errors = append(r.Errors, msg)
}

// auditDoc is the JSON shape auditors are asked for.
type auditDoc struct {
	Findings  *[]json.RawMessage `json:"findings"`
	Status    *string            `json:"status"`
	RiskScore *float64           `json:"risk_score"`
}

var (
	auditMarkdownFindings = regexp.MustCompile(`(?i)\bfindings?\b`)
	auditMarkdownStatus   = regexp.MustCompile(`(?i)\b(?:status|verdict|overall)\b`)
	auditMarkdownRisk     = regexp.MustCompile(`(?i)\brisk(?:[\s_-]*(?:score|level))?\b`)
)

// auditReport validates JSON structurally and falls back to markdown
// keywords when the content is not JSON.
func auditReport(text string) Result {
	res := Result{Type: artifact.TypeAuditReport, Valid: true}

	var doc auditDoc
	if err := json.Unmarshal([]byte(extractJSON(text)), &doc); err == nil {
		if doc.Findings == nil {
			res.fail("audit report JSON has no findings array")
		}
		if doc.Status == nil || strings.TrimSpace(*doc.Status) == "" {
			res.fail("audit report JSON has no overall status")
		}
		if doc.RiskScore == nil {
			res.fail("audit report JSON has no numeric risk_score")
		}
		return res
	}

	res.Warnings = append(res.Warnings, "audit report is not JSON; validated as markdown")
	if !auditMarkdownFindings.MatchString(text) {
		res.fail("audit report has no findings section")
	}
	if !auditMarkdownStatus.MatchString(text) {
		res.fail("audit report has no overall status")
	}
	if !auditMarkdownRisk.MatchString(text) {
		res.fail("audit report has no risk assessment")
	}
	return res
}

// extractJSON unwraps a ```json fenced block when present.
func extractJSON(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, "```") {
		return t
	}
	t = strings.TrimPrefix(t, "```")
	if nl := strings.IndexByte(t, '\n'); nl >= 0 {
		t = t[nl+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(t), "```"))
}
