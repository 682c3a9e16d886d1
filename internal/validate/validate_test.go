package validate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
)

func pad(s string, n int) string {
	for len(s) < n {
		s += "\nDetail line describing the plan in enough depth for review."
	}
	return s
}

const masterPlan = `# Overview
Build an order service.

## Scope
Orders, payments.

## Acceptance Criteria
1. POST /orders returns 201.

## Risks
Payment provider latency.
`

func TestCompleteness_MasterPlan(t *testing.T) {
	res := Completeness(artifact.TypeMasterPlan, []byte(pad(masterPlan, 500)))
	assert.True(t, res.Valid, res.Errors)
	assert.Empty(t, res.Errors)
	assert.NoError(t, res.Err())
}

func TestCompleteness_MissingSectionsAndShort(t *testing.T) {
	res := Completeness(artifact.TypeMasterPlan, []byte("# Overview\nshort"))

	require.False(t, res.Valid)
	assert.Contains(t, strings.Join(res.Errors, "\n"), "content too short")
	assert.Contains(t, res.Errors, "missing required section: acceptance criteria")
	assert.Contains(t, res.Errors, "missing required section: risks")
	assert.NotContains(t, res.Errors, "missing required section: overview")
	assert.ErrorIs(t, res.Err(), ErrStructural)
}

func TestCompleteness_CaseInsensitiveAlternatives(t *testing.T) {
	doc := pad("OBJECTIVES\nx\n**Requirements**\ny\n2. Success Criteria\nz\n### assumptions\nw\n", 500)
	res := Completeness(artifact.TypeMasterPlan, []byte(doc))
	assert.True(t, res.Valid, res.Errors)
}

func TestCompleteness_ArchitectureReferenceWarning(t *testing.T) {
	doc := pad("# Components\n# Data Model\n# API\n# Deployment\n", 700)
	res := Completeness(artifact.TypeArchitecture, []byte(doc))
	assert.True(t, res.Valid, res.Errors)
	require.Len(t, res.Warnings, 1)

	res = Completeness(artifact.TypeArchitecture, []byte(doc+"\nSee internal/orders/service.go"))
	assert.Empty(t, res.Warnings)
}

func TestCompleteness_UnknownTypePasses(t *testing.T) {
	res := Completeness(artifact.Type("design_sketch"), []byte("anything"))
	assert.True(t, res.Valid)
	assert.False(t, Registered(artifact.Type("design_sketch")))
}

func TestCompleteness_EmptyAlwaysFails(t *testing.T) {
	for _, typ := range []artifact.Type{artifact.TypeMasterPlan, artifact.TypeAuditReport, "unknown"} {
		res := Completeness(typ, []byte("  \n\t"))
		assert.False(t, res.Valid, typ)
		assert.Equal(t, []string{"content is empty"}, res.Errors)
	}
}

func TestCompleteness_AuditReport(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		valid    bool
		warnings int
	}{
		{"valid json", `{"findings":[],"status":"pass","risk_score":0.2}`, true, 0},
		{"fenced json", "```json\n{\"findings\":[{\"category\":\"security\"}],\"status\":\"fail\",\"risk_score\":7}\n```", true, 0},
		{"json missing risk", `{"findings":[],"status":"pass"}`, false, 0},
		{"json findings not array", `{"findings":"none","status":"pass","risk_score":1}`, true, 1},
		{"json empty status", `{"findings":[],"status":"","risk_score":1}`, false, 0},
		{"markdown fallback", "# Audit\n## Findings\nnone\n## Overall Status\npass\n## Risk Score\nlow", true, 1},
		{"markdown missing risk", "# Audit\n## Findings\nnone\nStatus: pass", false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Completeness(artifact.TypeAuditReport, []byte(tt.content))
			assert.Equal(t, tt.valid, res.Valid, res.Errors)
			assert.Len(t, res.Warnings, tt.warnings)
		})
	}
}
