package snapshot

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// configKinds maps recognised file names to a config kind.
var configKinds = map[string]string{
	"package.json":        "package.json",
	"tsconfig.json":       "tsconfig",
	"go.mod":              "go.mod",
	"Cargo.toml":          "cargo",
	"pyproject.toml":      "pyproject",
	"requirements.txt":    "requirements",
	"setup.cfg":           "setup.cfg",
	"Makefile":            "makefile",
	"Dockerfile":          "dockerfile",
	"docker-compose.yml":  "compose",
	"docker-compose.yaml": "compose",
	"compose.yml":         "compose",
	"compose.yaml":        "compose",
	".env.example":        "env-example",
	".golangci.yml":       "golangci",
	".golangci.yaml":      "golangci",
	".eslintrc.json":      "eslint",
	".eslintrc.js":        "eslint",
	".eslintrc.cjs":       "eslint",
	"eslint.config.js":    "eslint",
	"eslint.config.mjs":   "eslint",
	"alembic.ini":         "alembic",
	"schema.prisma":       "prisma",
	"CONSTITUTION.md":     "constitution",
}

// lockFiles maps lock files to the package manager that writes them.
// Order matters when several are present; earlier wins.
var lockFiles = []struct{ name, manager string }{
	{"pnpm-lock.yaml", "pnpm"},
	{"yarn.lock", "yarn"},
	{"bun.lockb", "bun"},
	{"package-lock.json", "npm"},
	{"go.sum", "go"},
	{"Cargo.lock", "cargo"},
	{"poetry.lock", "poetry"},
	{"uv.lock", "uv"},
	{"Pipfile.lock", "pipenv"},
}

var (
	exposeRe = regexp.MustCompile(`(?im)^\s*EXPOSE\s+(.+)$`)
	fromRe   = regexp.MustCompile(`(?im)^\s*FROM\s+(\S+)`)
	targetRe = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9_.-]*)\s*:([^=]|$)`)
	envVarRe = regexp.MustCompile(`^\s*(?:export\s+)?([A-Za-z_][A-Za-z0-9_]*)\s*=(.*)$`)
)

// extractor pulls key fields out of a config file. root is true for files
// at the project root; only those feed project-level facts.
type extractor func(content []byte, root bool, s *Snapshot) (map[string]string, error)

var extractors = map[string]extractor{
	"package.json": extractPackageJSON,
	"tsconfig":     extractTSConfig,
	"go.mod":       extractGoMod,
	"cargo":        extractCargo,
	"pyproject":    extractPyproject,
	"requirements": extractRequirements,
	"makefile":     extractMakefile,
	"dockerfile":   extractDockerfile,
	"compose":      extractCompose,
	"env-example":  extractEnvExample,
	"golangci":     lintMarker("golangci-lint"),
	"eslint":       lintMarker("eslint"),
	"alembic":      migrationMarker,
	"prisma":       migrationMarker,
}

func extractPackageJSON(content []byte, root bool, s *Snapshot) (map[string]string, error) {
	var pkg struct {
		Name            string            `json:"name"`
		Version         string            `json:"version"`
		PackageManager  string            `json:"packageManager"`
		Scripts         map[string]string `json:"scripts"`
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(content, &pkg); err != nil {
		return nil, err
	}
	fields := map[string]string{
		"name":    pkg.Name,
		"version": pkg.Version,
		"scripts": strconv.Itoa(len(pkg.Scripts)),
	}
	if !root {
		return fields, nil
	}

	if s.Scripts == nil {
		s.Scripts = map[string]string{}
	}
	for k, v := range pkg.Scripts {
		s.Scripts[k] = v
	}
	if pkg.PackageManager != "" {
		s.PackageManager = strings.SplitN(pkg.PackageManager, "@", 2)[0]
	}

	deps := func(name string) bool {
		_, a := pkg.Dependencies[name]
		_, b := pkg.DevDependencies[name]
		return a || b
	}
	for _, tool := range []string{"vitest", "jest", "mocha", "@playwright/test"} {
		if deps(tool) {
			s.TestTool = tool
			break
		}
	}
	for _, tool := range []string{"next", "vite", "webpack", "esbuild", "typescript"} {
		if deps(tool) {
			s.BuildTool = tool
			break
		}
	}
	if deps("eslint") && s.LintTool == "" {
		s.LintTool = "eslint"
	}
	if deps("typescript") {
		s.Typecheck = true
	}
	for _, orm := range []string{"prisma", "knex", "typeorm", "sequelize", "drizzle-kit"} {
		if deps(orm) {
			fields["orm"] = orm
			break
		}
	}
	return fields, nil
}

func extractTSConfig(_ []byte, root bool, s *Snapshot) (map[string]string, error) {
	if root {
		s.Typecheck = true
	}
	return nil, nil
}

func extractGoMod(content []byte, root bool, s *Snapshot) (map[string]string, error) {
	fields := map[string]string{}
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "module "):
			fields["module"] = strings.TrimSpace(strings.TrimPrefix(line, "module"))
		case strings.HasPrefix(line, "go "):
			fields["go"] = strings.TrimSpace(strings.TrimPrefix(line, "go"))
		}
	}
	if fields["module"] == "" {
		return nil, fmt.Errorf("go.mod has no module directive")
	}
	if root {
		if s.PackageManager == "" {
			s.PackageManager = "go"
		}
		s.BuildTool = firstNonEmpty(s.BuildTool, "go")
		s.TestTool = firstNonEmpty(s.TestTool, "go test")
		s.Typecheck = true
	}
	return fields, nil
}

func extractCargo(content []byte, root bool, s *Snapshot) (map[string]string, error) {
	var cargo struct {
		Package struct {
			Name    string `toml:"name"`
			Version string `toml:"version"`
			Edition string `toml:"edition"`
		} `toml:"package"`
		Workspace struct {
			Members []string `toml:"members"`
		} `toml:"workspace"`
	}
	if _, err := toml.Decode(string(content), &cargo); err != nil {
		return nil, err
	}
	fields := map[string]string{
		"name":    cargo.Package.Name,
		"version": cargo.Package.Version,
		"edition": cargo.Package.Edition,
	}
	if n := len(cargo.Workspace.Members); n > 0 {
		fields["workspace_members"] = strconv.Itoa(n)
	}
	if root {
		s.PackageManager = firstNonEmpty(s.PackageManager, "cargo")
		s.BuildTool = firstNonEmpty(s.BuildTool, "cargo")
		s.TestTool = firstNonEmpty(s.TestTool, "cargo test")
		s.LintTool = firstNonEmpty(s.LintTool, "clippy")
		s.Typecheck = true
	}
	return fields, nil
}

func extractPyproject(content []byte, root bool, s *Snapshot) (map[string]string, error) {
	var py struct {
		Project struct {
			Name           string   `toml:"name"`
			Version        string   `toml:"version"`
			RequiresPython string   `toml:"requires-python"`
			Dependencies   []string `toml:"dependencies"`
		} `toml:"project"`
		Tool map[string]toml.Primitive `toml:"tool"`
	}
	md, err := toml.Decode(string(content), &py)
	if err != nil {
		return nil, err
	}
	fields := map[string]string{
		"name":            py.Project.Name,
		"version":         py.Project.Version,
		"requires_python": py.Project.RequiresPython,
	}
	tools := make([]string, 0, len(py.Tool))
	for name := range py.Tool {
		tools = append(tools, name)
	}
	sort.Strings(tools)
	if len(tools) > 0 {
		fields["tools"] = strings.Join(tools, ",")
	}
	if !root {
		return fields, nil
	}

	hasTool := func(name string) bool { return md.IsDefined("tool", name) }
	switch {
	case hasTool("poetry"):
		s.PackageManager = firstNonEmpty(s.PackageManager, "poetry")
	case hasTool("uv"):
		s.PackageManager = firstNonEmpty(s.PackageManager, "uv")
	default:
		s.PackageManager = firstNonEmpty(s.PackageManager, "pip")
	}
	if hasTool("pytest") || dependsOn(py.Project.Dependencies, "pytest") {
		s.TestTool = firstNonEmpty(s.TestTool, "pytest")
	}
	if hasTool("ruff") {
		s.LintTool = firstNonEmpty(s.LintTool, "ruff")
	}
	if hasTool("mypy") {
		s.Typecheck = true
	}
	if dependsOn(py.Project.Dependencies, "alembic") {
		fields["orm"] = "alembic"
	}
	return fields, nil
}

func extractRequirements(content []byte, root bool, s *Snapshot) (map[string]string, error) {
	count := 0
	var names []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		count++
		names = append(names, line)
	}
	if root {
		s.PackageManager = firstNonEmpty(s.PackageManager, "pip")
		if dependsOn(names, "pytest") {
			s.TestTool = firstNonEmpty(s.TestTool, "pytest")
		}
	}
	return map[string]string{"packages": strconv.Itoa(count)}, nil
}

func extractMakefile(content []byte, root bool, s *Snapshot) (map[string]string, error) {
	var targets []string
	seen := map[string]bool{}
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "\t") || strings.HasPrefix(line, ".") {
			continue
		}
		if m := targetRe.FindStringSubmatch(line); m != nil && !seen[m[1]] {
			seen[m[1]] = true
			targets = append(targets, m[1])
		}
	}
	if root {
		s.MakeTargets = targets
	}
	return map[string]string{"targets": strings.Join(targets, ",")}, nil
}

func extractDockerfile(content []byte, root bool, s *Snapshot) (map[string]string, error) {
	fields := map[string]string{}
	if m := fromRe.FindSubmatch(content); m != nil {
		fields["base_image"] = string(m[1])
	}
	var exposed []string
	for _, m := range exposeRe.FindAllSubmatch(content, -1) {
		for _, tok := range strings.Fields(string(m[1])) {
			port := strings.SplitN(tok, "/", 2)[0]
			if p, err := strconv.Atoi(port); err == nil {
				exposed = append(exposed, port)
				s.Ports = append(s.Ports, p)
			}
		}
	}
	if len(exposed) > 0 {
		fields["expose"] = strings.Join(exposed, ",")
	}
	return fields, nil
}

func extractCompose(content []byte, _ bool, s *Snapshot) (map[string]string, error) {
	var compose struct {
		Services map[string]struct {
			Image string `yaml:"image"`
			Ports []any  `yaml:"ports"`
		} `yaml:"services"`
	}
	if err := yaml.Unmarshal(content, &compose); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(compose.Services))
	for name, svc := range compose.Services {
		names = append(names, name)
		for _, p := range svc.Ports {
			if port, ok := composeHostPort(p); ok {
				s.Ports = append(s.Ports, port)
			}
		}
	}
	sort.Strings(names)
	return map[string]string{"services": strings.Join(names, ",")}, nil
}

// composeHostPort reads the published port from short ("8080:80", "3000")
// or long ({published: 8080, target: 80}) port syntax.
func composeHostPort(v any) (int, bool) {
	switch p := v.(type) {
	case int:
		return p, true
	case string:
		parts := strings.Split(strings.SplitN(p, "/", 2)[0], ":")
		host := parts[0]
		if len(parts) >= 2 {
			host = parts[len(parts)-2]
		}
		n, err := strconv.Atoi(host)
		return n, err == nil
	case map[string]any:
		if pub, ok := p["published"]; ok {
			return composeHostPort(fmt.Sprint(pub))
		}
		if tgt, ok := p["target"]; ok {
			return composeHostPort(fmt.Sprint(tgt))
		}
	}
	return 0, false
}

func extractEnvExample(content []byte, root bool, s *Snapshot) (map[string]string, error) {
	vars := ParseEnvNames(content)
	names := make([]string, 0, len(vars))
	for _, v := range vars {
		names = append(names, v.Name)
		if v.Name == "PORT" {
			if p, err := strconv.Atoi(v.Value); err == nil {
				s.Ports = append(s.Ports, p)
			}
		}
	}
	if root {
		s.EnvExampleVars = names
	}
	return map[string]string{"vars": strconv.Itoa(len(names))}, nil
}

// EnvVar is one NAME=value line from an env file.
type EnvVar struct {
	Name  string
	Value string
}

// ParseEnvNames reads NAME=value lines, skipping comments and blanks.
// Surrounding quotes are stripped from values.
func ParseEnvNames(content []byte) []EnvVar {
	var out []EnvVar
	scanner := bufio.NewScanner(bytes.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m := envVarRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		val := strings.TrimSpace(m[2])
		if i := strings.Index(val, " #"); i >= 0 && !strings.HasPrefix(val, `"`) {
			val = strings.TrimSpace(val[:i])
		}
		val = strings.Trim(val, `"'`)
		out = append(out, EnvVar{Name: m[1], Value: val})
	}
	return out
}

func lintMarker(tool string) extractor {
	return func(_ []byte, root bool, s *Snapshot) (map[string]string, error) {
		if root {
			s.LintTool = firstNonEmpty(s.LintTool, tool)
		}
		return nil, nil
	}
}

func migrationMarker(_ []byte, _ bool, s *Snapshot) (map[string]string, error) {
	s.HasMigrations = true
	return nil, nil
}

func dependsOn(specs []string, name string) bool {
	for _, spec := range specs {
		spec = strings.ToLower(strings.TrimSpace(spec))
		if spec == name || strings.HasPrefix(spec, name+"=") || strings.HasPrefix(spec, name+">") ||
			strings.HasPrefix(spec, name+"<") || strings.HasPrefix(spec, name+"[") || strings.HasPrefix(spec, name+"~") ||
			strings.HasPrefix(spec, name+" ") {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// isMigrationDir reports directory names that hold schema migrations.
func isMigrationDir(rel string) bool {
	switch path.Base(rel) {
	case "migrations", "migration", "alembic", "db/migrate":
		return true
	}
	return strings.HasSuffix(rel, "db/migrate") || strings.HasSuffix(rel, "prisma/migrations")
}
