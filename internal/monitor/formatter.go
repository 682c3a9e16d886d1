package monitor

import (
	"fmt"
	"strings"
	"time"
)

// FormatPercentage formats a ratio (0-1) as percentage
func FormatPercentage(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

// FormatDuration formats duration in seconds to "Xh Ym" or "Xm"
func FormatDuration(seconds int64) string {
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}

// FormatElapsed formats the time between start and now. A zero start is "-".
func FormatElapsed(start, now time.Time) string {
	if start.IsZero() || now.Before(start) {
		return "-"
	}
	return FormatDuration(int64(now.Sub(start).Seconds()))
}

// FormatPhase turns CONSENSUS_MASTER_PLAN into "Consensus Master Plan".
func FormatPhase(p string) string {
	if p == "" {
		return "-"
	}
	words := strings.Split(strings.ToLower(p), "_")
	for i, w := range words {
		switch w {
		case "qa":
			words[i] = "QA"
		case "":
		default:
			words[i] = strings.ToUpper(w[:1]) + w[1:]
		}
	}
	return strings.Join(words, " ")
}

// FormatCounts renders a phase-keyed counter map as "QA_VALIDATION=2, REVIEW=1"
// in phase order, skipping zero entries.
func FormatCounts(counts map[string]int, order []string) string {
	var parts []string
	for _, p := range order {
		if n := counts[p]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", p, n))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}
