// Package monitor renders a live terminal dashboard of a pipeline served
// by the quorum status API.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/sparkline"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	qhttp "github.com/fyrsmithlabs/quorum/internal/http"
	"github.com/fyrsmithlabs/quorum/internal/phase"
)

const (
	sparklineWidth  = 30
	sparklineHeight = 3
	historySize     = 30
)

// Model represents the BubbleTea dashboard model
type Model struct {
	serverURL  string
	interval   time.Duration
	lastUpdate time.Time
	snapshot   Snapshot
	err        error
	quitting   bool
	now        func() time.Time

	pipelineProgress progress.Model
}

// Snapshot holds the latest status plus the history behind the sparklines.
type Snapshot struct {
	Status *qhttp.StatusResponse

	PercentHistory  []float64
	ArtifactHistory []float64
	RetryHistory    []float64
}

// Lipgloss styles (k9s-inspired color scheme)
var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("51")).
			Bold(true).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true).
			MarginTop(1)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("45"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("231")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	healthyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("46")).
			Bold(true)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	containerStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(1, 2)

	footerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			MarginTop(1)

	footerKeyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51")).
			Bold(true)

	sparklineStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("51"))
)

// NewModel creates a new dashboard model polling serverURL every interval.
func NewModel(serverURL string, interval time.Duration) Model {
	return Model{
		serverURL: serverURL,
		interval:  interval,
		now:       time.Now,
		pipelineProgress: progress.New(
			progress.WithGradient("#00ffff", "#00ff00"),
			progress.WithWidth(40),
		),
		snapshot: Snapshot{
			PercentHistory:  make([]float64, 0, historySize),
			ArtifactHistory: make([]float64, 0, historySize),
			RetryHistory:    make([]float64, 0, historySize),
		},
	}
}

// getStatusBadge summarises the pipeline in one colored word.
func getStatusBadge(st *qhttp.StatusResponse) string {
	switch {
	case st == nil:
		return dimStyle.Render("… WAITING")
	case st.Phase == string(phase.Done):
		return healthyStyle.Render("✓ DONE")
	case st.Phase == string(phase.Stuck):
		return errorStyle.Render("✗ STUCK")
	case st.LastFailure != nil:
		return warningStyle.Render("⚠ RETRYING")
	default:
		return healthyStyle.Render("● RUNNING")
	}
}

// phaseMarker renders one step of the chain relative to the current phase.
func phaseMarker(p phase.Phase, st *qhttp.StatusResponse) string {
	current := phase.Phase(st.Phase)
	if current == phase.Stuck {
		current = phase.Phase(st.StuckAt)
		if p == current {
			return errorStyle.Render("✗")
		}
	}
	switch {
	case current == phase.Done || p.Before(current):
		return healthyStyle.Render("✓")
	case p == current:
		return warningStyle.Render("▶")
	default:
		return dimStyle.Render("·")
	}
}

// appendToHistory appends a value to history, maintaining max size
func appendToHistory(history []float64, value float64) []float64 {
	history = append(history, value)
	if len(history) > historySize {
		history = history[1:]
	}
	return history
}

// createSparkline creates a sparkline chart from historical data
func createSparkline(data []float64) string {
	if len(data) == 0 {
		return dimStyle.Render(fmt.Sprintf("%*s", sparklineWidth, "no data"))
	}

	spark := sparkline.New(sparklineWidth, sparklineHeight)
	for _, v := range data {
		spark.Push(v)
	}

	return sparklineStyle.Render(spark.View())
}

// Message types
type tickMsg time.Time
type statusMsg qhttp.StatusResponse
type errMsg error

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tick(m.interval),
		fetchStatus(m.serverURL),
	)
}

// tick creates a tick command for auto-refresh
func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// fetchStatus polls the status API once.
func fetchStatus(serverURL string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		st, err := NewStatusClient(serverURL).Status(ctx)
		if err != nil {
			return errMsg(err)
		}
		return statusMsg(*st)
	}
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, fetchStatus(m.serverURL)
		}

	case tickMsg:
		return m, tea.Batch(
			tick(m.interval),
			fetchStatus(m.serverURL),
		)

	case statusMsg:
		st := qhttp.StatusResponse(msg)
		retries := 0
		for _, n := range st.Retries {
			retries += n
		}

		m.snapshot.Status = &st
		m.snapshot.PercentHistory = appendToHistory(m.snapshot.PercentHistory, float64(st.Percentage))
		m.snapshot.ArtifactHistory = appendToHistory(m.snapshot.ArtifactHistory, float64(st.Artifacts))
		m.snapshot.RetryHistory = appendToHistory(m.snapshot.RetryHistory, float64(retries))
		m.lastUpdate = m.now()
		m.err = nil
		return m, nil

	case errMsg:
		m.err = error(msg)
		return m, nil
	}

	return m, nil
}

// View renders the dashboard
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.err != nil && !errors.Is(m.err, ErrNoPipeline) {
		return m.renderError()
	}
	return m.renderDashboard()
}

func (m Model) renderError() string {
	header := headerStyle.Render("quorum Monitor")

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(errorStyle.Render("⚠ Cannot reach the quorum status server") + "\n\n")
	b.WriteString(dimStyle.Render("URL: ") + valueStyle.Render(m.serverURL) + "\n")
	b.WriteString(dimStyle.Render("Error: ") + errorStyle.Render(m.err.Error()) + "\n\n")
	b.WriteString(dimStyle.Render("Start it with: quorum serve") + "\n")
	b.WriteString(footerStyle.Render("[q] quit  [r] retry") + "\n")

	return containerStyle.Render(header + "\n" + b.String())
}

func (m Model) renderDashboard() string {
	var b strings.Builder
	st := m.snapshot.Status

	lastUpdateStr := "Never"
	if !m.lastUpdate.IsZero() {
		lastUpdateStr = m.lastUpdate.Format("3:04:05 PM")
	}

	b.WriteString(headerStyle.Render(" quorum Monitor ") + "\n")
	if st == nil {
		b.WriteString(getStatusBadge(nil) + "   " + dimStyle.Render(lastUpdateStr) + "\n")
		if errors.Is(m.err, ErrNoPipeline) {
			b.WriteString("\n" + dimStyle.Render("No pipeline has been started. Run: quorum run") + "\n")
		}
		b.WriteString("\n" + m.footer())
		return containerStyle.Render(b.String())
	}

	b.WriteString(fmt.Sprintf("%s   %s %s   %s %s   %s\n",
		getStatusBadge(st),
		dimStyle.Render("Run:"), valueStyle.Render(st.RunID),
		dimStyle.Render("Elapsed:"), valueStyle.Render(FormatElapsed(st.StartedAt, m.now())),
		dimStyle.Render(lastUpdateStr)))

	// Pipeline progress
	b.WriteString("\n" + sectionStyle.Render("┃ Pipeline") + "\n")
	b.WriteString(labelStyle.Render("  Phase: ") + valueStyle.Render(FormatPhase(st.Phase)) + "\n")
	b.WriteString(labelStyle.Render("  Progress: ") +
		m.pipelineProgress.ViewAs(float64(st.Percentage)/100) + "   " +
		createSparkline(m.snapshot.PercentHistory) + "\n")

	var chain []string
	for _, p := range phase.All() {
		if p == phase.Stuck {
			continue
		}
		chain = append(chain, phaseMarker(p, st)+" "+dimStyle.Render(FormatPhase(string(p))))
	}
	for i := 0; i < len(chain); i += 4 {
		end := min(i+4, len(chain))
		b.WriteString("  " + strings.Join(chain[i:end], "  ") + "\n")
	}

	// Gates
	order := make([]string, 0, len(phase.All()))
	for _, p := range phase.All() {
		order = append(order, string(p))
	}
	b.WriteString("\n" + sectionStyle.Render("┃ Gates") + "\n")
	b.WriteString(labelStyle.Render("  Retries: ") + valueStyle.Render(FormatCounts(st.Retries, order)) +
		"   " + createSparkline(m.snapshot.RetryHistory) + "\n")
	b.WriteString(labelStyle.Render("  Consensus iterations: ") + valueStyle.Render(FormatCounts(st.Iterations, order)) + "\n")
	b.WriteString(labelStyle.Render("  Change requests: ") + valueStyle.Render(fmt.Sprintf("%d", st.ChangeRequests)) + "\n")
	if f := st.LastFailure; f != nil {
		b.WriteString(labelStyle.Render("  Last failure: ") +
			errorStyle.Render(fmt.Sprintf("[%s] %s", f.Phase, f.Reason)) + "\n")
	}

	// Artifacts
	b.WriteString("\n" + sectionStyle.Render("┃ Artifacts") + "\n")
	b.WriteString(labelStyle.Render("  Recorded: ") + valueStyle.Render(fmt.Sprintf("%d", st.Artifacts)) +
		"   " + createSparkline(m.snapshot.ArtifactHistory) + "\n")
	b.WriteString(labelStyle.Render("  Roles: ") + valueStyle.Render(strings.Join(st.Roles, ", ")) + "\n")

	b.WriteString("\n" + m.footer())
	return containerStyle.Render(b.String())
}

func (m Model) footer() string {
	return footerKeyStyle.Render("[q]") + footerStyle.Render(" quit  ") +
		footerKeyStyle.Render("[r]") + footerStyle.Render(" refresh  ") +
		footerStyle.Render(fmt.Sprintf("Auto: %v", m.interval))
}
