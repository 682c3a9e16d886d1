package checks

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fyrsmithlabs/quorum/internal/snapshot"
)

// EnvReport is the variable-level outcome of CheckEnv.
type EnvReport struct {
	Required []string `json:"required"`
	Missing  []string `json:"missing,omitempty"`
	Empty    []string `json:"empty,omitempty"`
}

// CheckEnv compares the variable names declared in examplePath with the
// ones set in envPath (both relative to root). A variable absent from the
// env file fails the check; one present with an empty value only warns.
// Without an example file there is nothing to require and the check skips.
func CheckEnv(root, examplePath, envPath string) (*Result, *EnvReport) {
	start := time.Now()
	res := &Result{
		Type:      TypeEnv,
		Command:   fmt.Sprintf("env-diff:%s..%s", examplePath, envPath),
		Timestamp: start.UTC(),
	}
	report := &EnvReport{}
	defer func() {
		res.Duration = time.Since(start)
		ChecksTotal.WithLabelValues(string(res.Type), string(res.Status)).Inc()
	}()

	example, err := os.ReadFile(filepath.Join(root, examplePath))
	if err != nil {
		res.Status = StatusSkip
		res.StderrSummary = fmt.Sprintf("no %s found", examplePath)
		return res, report
	}
	for _, v := range snapshot.ParseEnvNames(example) {
		report.Required = append(report.Required, v.Name)
	}
	if len(report.Required) == 0 {
		res.Status = StatusPass
		return res, report
	}

	actual := map[string]string{}
	if content, err := os.ReadFile(filepath.Join(root, envPath)); err == nil {
		for _, v := range snapshot.ParseEnvNames(content) {
			actual[v.Name] = v.Value
		}
	}

	for _, name := range report.Required {
		value, ok := actual[name]
		switch {
		case !ok:
			report.Missing = append(report.Missing, name)
		case strings.TrimSpace(value) == "":
			report.Empty = append(report.Empty, name)
			res.Warnings = append(res.Warnings, name+" is set but empty")
		}
	}

	if len(report.Missing) > 0 {
		res.Status = StatusFail
		res.ExitCode = 1
		res.StderrSummary = fmt.Sprintf("missing from %s: %s", envPath, strings.Join(report.Missing, ", "))
		return res, report
	}
	res.Status = StatusPass
	return res, report
}
