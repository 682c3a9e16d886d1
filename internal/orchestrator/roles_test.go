package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/skills"
	"github.com/fyrsmithlabs/quorum/internal/snapshot"
)

func TestPrimaryLanguage(t *testing.T) {
	assert.Equal(t, "", PrimaryLanguage(nil))
	assert.Equal(t, "go", PrimaryLanguage(&snapshot.Snapshot{Languages: map[string]int{"go": 12, "shell": 3}}))
	// Ties break alphabetically.
	assert.Equal(t, "python", PrimaryLanguage(&snapshot.Snapshot{Languages: map[string]int{"rust": 4, "python": 4}}))
}

func TestProjectType(t *testing.T) {
	tests := []struct {
		name string
		snap *snapshot.Snapshot
		want string
	}{
		{"nil", nil, ""},
		{"fullstack", &snapshot.Snapshot{Languages: map[string]int{"go": 10, "typescript": 8}}, "fullstack"},
		{"service with ports", &snapshot.Snapshot{Languages: map[string]int{"go": 10}, Ports: []int{8080}}, "service"},
		{"service with dockerfile", &snapshot.Snapshot{
			Languages:   map[string]int{"python": 3},
			ConfigFiles: []snapshot.ConfigFile{{Path: "Dockerfile", Kind: "dockerfile"}},
		}, "service"},
		{"data", &snapshot.Snapshot{Languages: map[string]int{"python": 3, "sql": 2}, HasMigrations: true}, "data"},
		{"infra", &snapshot.Snapshot{Languages: map[string]int{"shell": 2}, Ports: []int{443}}, "infra"},
		{"plain library", &snapshot.Snapshot{Languages: map[string]int{"rust": 5}}, ""},
		{"frontend only", &snapshot.Snapshot{Languages: map[string]int{"javascript": 5}}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ProjectType(tt.snap))
		})
	}
}

func TestInferRoles(t *testing.T) {
	roles := InferRoles(&snapshot.Snapshot{Languages: map[string]int{"go": 10, "typescript": 8}})
	assert.Equal(t, []skills.Role{
		skills.RoleArchitect, skills.RoleBackend, skills.RoleFrontend, skills.RoleDatabase,
		skills.RoleQA, skills.RoleSecurity, skills.RoleReviewer, skills.RoleAuditor,
	}, roles)

	// Nothing detected still yields the core roles plus backend.
	roles = InferRoles(nil)
	assert.Contains(t, roles, skills.RoleBackend)
	assert.Contains(t, roles, skills.RoleAuditor)
}

func TestOwnerRole(t *testing.T) {
	assert.Equal(t, skills.RoleQA, OwnerRole(artifact.TypeQAValidation))
	assert.Equal(t, skills.RoleAuditor, OwnerRole(artifact.TypeAuditReport))
	assert.Equal(t, skills.RoleArchitect, OwnerRole(artifact.Type("unknown")))
}
