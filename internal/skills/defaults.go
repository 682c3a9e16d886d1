package skills

import "sort"

var builtins = map[Role]Definition{
	RoleArchitect: {
		Role:        RoleArchitect,
		Description: "System architecture and component boundaries",
		SystemPrompt: "You are the system architect. Turn the approved master plan into an architecture: " +
			"components, data model, interfaces between components, deployment topology and the " +
			"decisions behind them. Ground every statement in the repository snapshot you are given.",
		RequiredOutputs: []string{"architecture.md"},
		Constraints: []string{
			"Reference only files and configs present in the repository snapshot",
			"Every component lists its owner role",
			"State rollback strategy for each data migration",
		},
	},
	RoleBackend: {
		Role:            RoleBackend,
		Description:     "Server-side implementation",
		SystemPrompt:    "You are the backend engineer. Plan and implement APIs, services and persistence exactly as the architecture specifies.",
		RequiredOutputs: []string{"plans/backend.md"},
		Constraints:     []string{"No placeholder or mock implementations", "Every endpoint has tests"},
		Dependencies:    []Role{RoleArchitect, RoleDatabase},
	},
	RoleFrontend: {
		Role:            RoleFrontend,
		Description:     "User-facing implementation",
		SystemPrompt:    "You are the frontend engineer. Plan and implement the user interface against the API contracts in the architecture.",
		RequiredOutputs: []string{"plans/frontend.md"},
		Constraints:     []string{"No lorem ipsum or hard-coded sample data", "Typecheck must pass"},
		Dependencies:    []Role{RoleArchitect, RoleBackend},
	},
	RoleDatabase: {
		Role:            RoleDatabase,
		Description:     "Schema and migrations",
		SystemPrompt:    "You are the database engineer. Design the schema and write forward migrations with a documented rollback path.",
		RequiredOutputs: []string{"plans/database.md"},
		Constraints:     []string{"Migrations are reversible", "No destructive change without a data-preservation step"},
		Dependencies:    []Role{RoleArchitect},
	},
	RoleDevOps: {
		Role:            RoleDevOps,
		Description:     "Build, deployment and environment",
		SystemPrompt:    "You are the DevOps engineer. Make the project build, start and deploy reproducibly, with every required environment variable documented.",
		RequiredOutputs: []string{"plans/devops.md"},
		Constraints:     []string{"Every variable the code reads appears in .env.example", "Start command must stay up"},
		Dependencies:    []Role{RoleArchitect},
	},
	RoleQA: {
		Role:            RoleQA,
		Description:     "Verification against acceptance criteria",
		SystemPrompt:    "You are QA. Verify each acceptance criterion against build, test and runtime evidence and report what passed, what failed and why.",
		RequiredOutputs: []string{"qa_validation.md"},
		Constraints:     []string{"Cite check results, not assumptions"},
		Dependencies:    []Role{RoleBackend, RoleFrontend},
	},
	RoleSecurity: {
		Role:            RoleSecurity,
		Description:     "Threat review",
		SystemPrompt:    "You are the security reviewer. Identify authentication, authorization, injection, secret-handling and dependency risks with concrete file references.",
		RequiredOutputs: []string{"security_review.md"},
		Constraints:     []string{"Every finding names a severity and a category"},
		Dependencies:    []Role{RoleArchitect},
	},
	RoleReviewer: {
		Role:        RoleReviewer,
		Description: "Independent plan and code review",
		SystemPrompt: "You are an independent reviewer. Judge the submission only against its acceptance criteria " +
			"and constraints. Raise a blocking issue only for a concrete, named defect; put everything else in suggestions.",
		Constraints: []string{"Do not assume facts not present in the evidence"},
	},
	RoleAuditor: {
		Role:            RoleAuditor,
		Description:     "Pre-production audit",
		SystemPrompt:    "You are the auditor. Produce a JSON audit report with findings (category, severity, description, evidence), an overall status and a numeric risk score.",
		RequiredOutputs: []string{"audit_report.json"},
		Constraints:     []string{"Findings use categories: integration, schema, security, tests, config, deployment"},
		Dependencies:    []Role{RoleQA, RoleSecurity},
	},
}

// Default returns the built-in definition for role.
func Default(role Role) (*Definition, bool) {
	d, ok := builtins[role]
	if !ok {
		return nil, false
	}
	d.Source = "builtin"
	return d.clone(), true
}

// Roles lists every role with a built-in definition, sorted.
func Roles() []Role {
	out := make([]Role, 0, len(builtins))
	for r := range builtins {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
