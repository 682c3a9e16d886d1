package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/fyrsmithlabs/quorum/internal/checks"
	"github.com/fyrsmithlabs/quorum/internal/orchestrator"
	"github.com/fyrsmithlabs/quorum/internal/phase"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("46")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// progressPrinter writes one line per progress update. Updates arrive from
// the executor goroutine and the governance watcher, so writes are
// serialised.
type progressPrinter struct {
	mu  sync.Mutex
	out io.Writer
}

func newProgressPrinter(out io.Writer) *progressPrinter {
	return &progressPrinter{out: out}
}

func (p *progressPrinter) Print(pr orchestrator.PhaseProgress) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, formatProgress(pr))
}

func (p *progressPrinter) Warn(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, warnStyle.Render("⚠ "+msg))
}

func formatProgress(pr orchestrator.PhaseProgress) string {
	var marker string
	switch pr.Status {
	case orchestrator.StatusCompleted:
		marker = okStyle.Render("✓")
	case orchestrator.StatusFailed:
		marker = errorStyle.Render("✗")
	case orchestrator.StatusSkipped:
		marker = dimStyle.Render("-")
	default:
		marker = warnStyle.Render("▶")
	}
	return fmt.Sprintf("%s %s %s %s",
		dimStyle.Render(fmt.Sprintf("[%3d%%]", pr.Percentage)),
		marker,
		valueStyle.Render(string(pr.Phase)),
		pr.Message)
}

func phaseStyle(p phase.Phase) lipgloss.Style {
	switch p {
	case phase.Done:
		return okStyle
	case phase.Stuck:
		return errorStyle
	default:
		return warnStyle
	}
}

// renderStatus renders a pipeline state for the terminal.
func renderStatus(st *orchestrator.PipelineState) string {
	var b strings.Builder
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(fmt.Sprintf("  %-18s", label)) + value + "\n")
	}

	b.WriteString(headerStyle.Render(" quorum pipeline ") + "\n")
	row("Run", valueStyle.Render(st.RunID))
	row("Phase", phaseStyle(st.Phase).Render(string(st.Phase))+dimStyle.Render(fmt.Sprintf("  (%d%%)", st.Percentage())))

	roles := make([]string, 0, len(st.Roles))
	for _, r := range st.Roles {
		roles = append(roles, string(r))
	}
	row("Roles", strings.Join(roles, ", "))
	row("Retries", formatPhaseCounts(st.Retries))
	row("Iterations", formatPhaseCounts(st.Iterations))
	row("Transitions", fmt.Sprintf("%d", len(st.History)))
	row("Change requests", fmt.Sprintf("%d", len(st.ChangeRequests)))
	if st.ConstitutionHash != "" {
		row("Governance", dimStyle.Render(shortHash(st.ConstitutionHash)))
	}
	row("Updated", dimStyle.Render(st.UpdatedAt.Format("2006-01-02 15:04:05 MST")))

	if f := st.LastFailure; f != nil {
		b.WriteString("\n" + errorStyle.Render("Last failure") + "\n")
		row("Phase", string(f.Phase))
		if f.Kind != "" {
			row("Kind", string(f.Kind))
		}
		row("Severity", string(f.Severity))
		row("Reason", f.Reason)
	}

	if len(st.Artifacts) > 0 {
		b.WriteString("\n" + labelStyle.Render("Artifacts") + "\n")
		keys := make([]string, 0, len(st.Artifacts))
		for k := range st.Artifacts {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			ref := st.Artifacts[k]
			b.WriteString(fmt.Sprintf("  %s %s\n", ref.String(), dimStyle.Render(shortHash(ref.Hash))))
		}
	}
	return b.String()
}

func formatPhaseCounts(counts map[phase.Phase]int) string {
	var parts []string
	for _, p := range phase.All() {
		if n := counts[p]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", p, n))
		}
	}
	if len(parts) == 0 {
		return dimStyle.Render("none")
	}
	return strings.Join(parts, ", ")
}

func renderCheck(res *checks.Result) string {
	var b strings.Builder
	status := okStyle.Render(strings.ToUpper(string(res.Status)))
	switch res.Status {
	case checks.StatusFail:
		status = errorStyle.Render("FAIL")
	case checks.StatusSkip:
		status = dimStyle.Render("SKIP")
	}
	b.WriteString(fmt.Sprintf("%s %s", status, valueStyle.Render(string(res.Type))))
	if res.Command != "" {
		b.WriteString(dimStyle.Render(fmt.Sprintf("  $ %s", res.Command)))
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("  (%s)", res.Duration.Round(time.Millisecond))) + "\n")

	if res.TimedOut {
		b.WriteString(errorStyle.Render("  timed out") + "\n")
	}
	if res.Rejected {
		b.WriteString(errorStyle.Render("  rejected by sandbox policy") + "\n")
	}
	for _, f := range res.Findings {
		b.WriteString(fmt.Sprintf("  %s:%d %s\n", f.Path, f.Line, dimStyle.Render(f.Pattern)))
	}
	for _, w := range res.Warnings {
		b.WriteString(warnStyle.Render("  ⚠ "+w) + "\n")
	}
	if res.StderrSummary != "" && res.Status == checks.StatusFail {
		b.WriteString(dimStyle.Render(indent(res.StderrSummary, "  | ")) + "\n")
	}
	return b.String()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func indent(s, prefix string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
