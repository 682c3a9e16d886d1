// Package changereq turns review and audit findings into change requests
// that re-enter the pipeline at the earliest phase owning the concern.
// Routing is a pure function of the finding: the same finding always lands
// on the same phase.
package changereq

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/quorum/internal/checks"
	"github.com/fyrsmithlabs/quorum/internal/phase"
)

// Category classifies a finding.
type Category string

const (
	CategoryIntegration Category = "integration"
	CategorySchema      Category = "schema"
	CategorySecurity    Category = "security"
	CategoryTests       Category = "tests"
	CategoryConfig      Category = "config"
	CategoryDeployment  Category = "deployment"
)

// ChangeType is the kind of rework a finding demands.
type ChangeType string

const (
	ChangeArchitecture ChangeType = "architecture"
	ChangeRequirement  ChangeType = "requirement"
	ChangeConfig       ChangeType = "config"
)

var categoryTypes = map[Category]ChangeType{
	CategoryIntegration: ChangeArchitecture,
	CategorySchema:      ChangeArchitecture,
	CategorySecurity:    ChangeRequirement,
	CategoryTests:       ChangeConfig,
	CategoryConfig:      ChangeConfig,
	CategoryDeployment:  ChangeConfig,
}

var typePhases = map[ChangeType]phase.Phase{
	ChangeArchitecture: phase.ConsensusArchitecture,
	ChangeRequirement:  phase.ConsensusMasterPlan,
	ChangeConfig:       phase.QAValidation,
}

// Finding is one problem raised by a reviewer, an audit or a failed check.
type Finding struct {
	Category    Category `json:"category"`
	Severity    string   `json:"severity,omitempty"`
	Description string   `json:"description"`
	Source      string   `json:"source,omitempty"`
}

// ChangeRequest is a routed finding.
type ChangeRequest struct {
	Finding Finding     `json:"finding"`
	Type    ChangeType  `json:"type"`
	Target  phase.Phase `json:"target"`
}

// Plan groups the requests raised at one gate with the phase the
// pipeline re-enters.
type Plan struct {
	Target   phase.Phase     `json:"target"`
	Requests []ChangeRequest `json:"requests"`
}

// TypeFor maps a category to its change type. Unknown categories are
// treated as requirement changes.
func TypeFor(c Category) ChangeType {
	if t, ok := categoryTypes[Category(strings.ToLower(strings.TrimSpace(string(c))))]; ok {
		return t
	}
	return ChangeRequirement
}

// PhaseFor maps a change type to the phase that owns it.
func PhaseFor(t ChangeType) phase.Phase {
	if p, ok := typePhases[t]; ok {
		return p
	}
	return phase.ConsensusMasterPlan
}

// Route classifies f and picks its re-entry phase.
func Route(f Finding) ChangeRequest {
	t := TypeFor(f.Category)
	return ChangeRequest{Finding: f, Type: t, Target: PhaseFor(t)}
}

// FromFindings routes every finding and targets the earliest phase among
// them. ok is false when findings is empty.
func FromFindings(findings []Finding) (plan Plan, ok bool) {
	if len(findings) == 0 {
		return Plan{}, false
	}
	plan.Requests = make([]ChangeRequest, len(findings))
	for i, f := range findings {
		cr := Route(f)
		plan.Requests[i] = cr
		if i == 0 || cr.Target.Before(plan.Target) {
			plan.Target = cr.Target
		}
	}
	return plan, true
}

// checkCategories maps failed checks onto finding categories.
var checkCategories = map[checks.Type]Category{
	checks.TypeBuild:       CategoryDeployment,
	checks.TypeTest:        CategoryTests,
	checks.TypeLint:        CategoryConfig,
	checks.TypeTypecheck:   CategoryConfig,
	checks.TypeMigration:   CategorySchema,
	checks.TypeStart:       CategoryDeployment,
	checks.TypeEnv:         CategoryConfig,
	checks.TypePlaceholder: CategoryTests,
	checks.TypeSecrets:     CategorySecurity,
}

// FromCheck converts a failed check into a finding. Passing and skipped
// checks return false.
func FromCheck(r *checks.Result) (Finding, bool) {
	if r == nil || r.Passed() {
		return Finding{}, false
	}
	cat, ok := checkCategories[r.Type]
	if !ok {
		cat = CategoryConfig
	}
	desc := fmt.Sprintf("%s check failed", r.Type)
	if r.StderrSummary != "" {
		desc += ": " + firstLine(r.StderrSummary)
	}
	return Finding{Category: cat, Severity: "high", Description: desc, Source: "check:" + string(r.Type)}, true
}

// FromBlockingIssues wraps reviewer objections as findings. They carry no
// category, so they route as requirement changes.
func FromBlockingIssues(source string, issues []string) []Finding {
	out := make([]Finding, 0, len(issues))
	for _, issue := range issues {
		if issue = strings.TrimSpace(issue); issue != "" {
			out = append(out, Finding{Severity: "blocking", Description: issue, Source: source})
		}
	}
	return out
}

type auditFinding struct {
	Category    string `json:"category"`
	Severity    string `json:"severity"`
	Description string `json:"description"`
	Title       string `json:"title"`
}

// FromAuditReport extracts the findings array of a JSON audit report.
// Findings at info or low severity are ignored. Markdown reports yield
// nothing.
func FromAuditReport(content []byte) []Finding {
	var doc struct {
		Findings []auditFinding `json:"findings"`
	}
	text := strings.TrimSpace(string(content))
	start, end := strings.IndexByte(text, '{'), strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), &doc); err != nil {
		return nil
	}
	var out []Finding
	for _, f := range doc.Findings {
		sev := strings.ToLower(strings.TrimSpace(f.Severity))
		if sev == "info" || sev == "low" {
			continue
		}
		desc := f.Description
		if desc == "" {
			desc = f.Title
		}
		out = append(out, Finding{
			Category:    Category(strings.ToLower(strings.TrimSpace(f.Category))),
			Severity:    sev,
			Description: desc,
			Source:      "audit",
		})
	}
	return out
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
