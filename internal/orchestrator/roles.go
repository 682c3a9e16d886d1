package orchestrator

import (
	"sort"

	"github.com/fyrsmithlabs/quorum/internal/artifact"
	"github.com/fyrsmithlabs/quorum/internal/skills"
	"github.com/fyrsmithlabs/quorum/internal/snapshot"
)

var frontendLanguages = map[string]bool{
	"typescript": true,
	"javascript": true,
	"vue":        true,
	"svelte":     true,
}

// PrimaryLanguage returns the language with the most files, ties broken
// alphabetically. Empty when nothing was detected.
func PrimaryLanguage(snap *snapshot.Snapshot) string {
	if snap == nil || len(snap.Languages) == 0 {
		return ""
	}
	names := make([]string, 0, len(snap.Languages))
	for name := range snap.Languages {
		names = append(names, name)
	}
	sort.Strings(names)

	best := names[0]
	for _, name := range names[1:] {
		if snap.Languages[name] > snap.Languages[best] {
			best = name
		}
	}
	return best
}

// ProjectType guesses the project type from structural markers.
func ProjectType(snap *snapshot.Snapshot) string {
	if snap == nil {
		return ""
	}
	frontend, backend := false, false
	for lang := range snap.Languages {
		if frontendLanguages[lang] {
			frontend = true
		} else if lang != "sql" && lang != "shell" {
			backend = true
		}
	}
	deployable := snap.HasConfig("dockerfile") || snap.HasConfig("compose") || len(snap.Ports) > 0

	switch {
	case frontend && backend:
		return "fullstack"
	case backend && deployable:
		return "service"
	case backend && snap.HasMigrations:
		return "data"
	case !frontend && !backend && deployable:
		return "infra"
	}
	return ""
}

// InferRoles maps a snapshot to the active role set.
func InferRoles(snap *snapshot.Snapshot) []skills.Role {
	return skills.RolesFor(PrimaryLanguage(snap), ProjectType(snap))
}

// ownerRole is the role that authors each reviewed artifact.
var ownerRole = map[artifact.Type]skills.Role{
	artifact.TypeMasterPlan:   skills.RoleArchitect,
	artifact.TypeArchitecture: skills.RoleArchitect,
	artifact.TypeRolePlan:     skills.RoleArchitect,
	artifact.TypeQAValidation: skills.RoleQA,
	artifact.TypeReviewReport: skills.RoleReviewer,
	artifact.TypeAuditReport:  skills.RoleAuditor,
	artifact.TypeRecoveryPlan: skills.RoleDevOps,
}

// OwnerRole returns the role that authors typ, architect by default.
func OwnerRole(typ artifact.Type) skills.Role {
	if r, ok := ownerRole[typ]; ok {
		return r
	}
	return skills.RoleArchitect
}
