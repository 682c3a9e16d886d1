package skills

import (
	"slices"
	"strings"
)

// coreRoles take part in every pipeline.
var coreRoles = []Role{RoleArchitect, RoleQA, RoleReviewer, RoleSecurity, RoleAuditor}

// projectRoles adds delivery roles by declared project type.
var projectRoles = map[string][]Role{
	"api":       {RoleBackend, RoleDatabase},
	"service":   {RoleBackend, RoleDatabase, RoleDevOps},
	"backend":   {RoleBackend, RoleDatabase},
	"web":       {RoleFrontend},
	"frontend":  {RoleFrontend},
	"spa":       {RoleFrontend},
	"fullstack": {RoleBackend, RoleFrontend, RoleDatabase},
	"cli":       {RoleBackend},
	"library":   {RoleBackend},
	"infra":     {RoleDevOps},
	"data":      {RoleBackend, RoleDatabase},
}

// languageRoles is the fallback when the project type is unknown.
var languageRoles = map[string][]Role{
	"go":         {RoleBackend},
	"python":     {RoleBackend},
	"rust":       {RoleBackend},
	"java":       {RoleBackend},
	"kotlin":     {RoleBackend},
	"ruby":       {RoleBackend},
	"php":        {RoleBackend},
	"csharp":     {RoleBackend},
	"typescript": {RoleBackend, RoleFrontend},
	"javascript": {RoleFrontend},
	"vue":        {RoleFrontend},
	"svelte":     {RoleFrontend},
	"sql":        {RoleDatabase},
	"shell":      {RoleDevOps},
}

// roleOrder fixes the output order of RolesFor.
var roleOrder = []Role{
	RoleArchitect, RoleBackend, RoleFrontend, RoleDatabase, RoleDevOps,
	RoleQA, RoleSecurity, RoleReviewer, RoleAuditor,
}

// RolesFor returns the active roles for a project of the given language
// and type. Matching is case-insensitive; the result is deterministic.
func RolesFor(language, projectType string) []Role {
	language = strings.ToLower(strings.TrimSpace(language))
	projectType = strings.ToLower(strings.TrimSpace(projectType))

	extra, ok := projectRoles[projectType]
	if !ok {
		extra, ok = languageRoles[language]
	}
	if !ok {
		extra = []Role{RoleBackend}
	}

	set := make(map[Role]bool, len(coreRoles)+len(extra))
	for _, r := range coreRoles {
		set[r] = true
	}
	for _, r := range extra {
		set[r] = true
	}
	out := make([]Role, 0, len(set))
	for _, r := range roleOrder {
		if set[r] {
			out = append(out, r)
		}
	}
	return out
}

// HasRole reports whether role is in roles.
func HasRole(roles []Role, role Role) bool {
	return slices.Contains(roles, role)
}
