package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatPercentage(t *testing.T) {
	tests := []struct {
		name     string
		ratio    float64
		expected string
	}{
		{"normal", 0.985, "98.5%"},
		{"zero", 0.0, "0.0%"},
		{"one", 1.0, "100.0%"},
		{"small", 0.012, "1.2%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatPercentage(tt.ratio))
		})
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		name     string
		seconds  int64
		expected string
	}{
		{"hours_and_minutes", 8100, "2h 15m"},
		{"only_hours", 7200, "2h 0m"},
		{"only_minutes", 900, "15m"},
		{"zero", 0, "0m"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDuration(tt.seconds))
		})
	}
}

func TestFormatElapsed(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, "1h 30m", FormatElapsed(now.Add(-90*time.Minute), now))
	assert.Equal(t, "-", FormatElapsed(time.Time{}, now))
	assert.Equal(t, "-", FormatElapsed(now.Add(time.Minute), now))
}

func TestFormatPhase(t *testing.T) {
	tests := []struct {
		in, expected string
	}{
		{"CONSENSUS_MASTER_PLAN", "Consensus Master Plan"},
		{"QA_VALIDATION", "QA Validation"},
		{"DONE", "Done"},
		{"", "-"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, FormatPhase(tt.in))
	}
}

func TestFormatCounts(t *testing.T) {
	order := []string{"QA_VALIDATION", "REVIEW", "AUDIT"}
	assert.Equal(t, "QA_VALIDATION=2, AUDIT=1", FormatCounts(map[string]int{"AUDIT": 1, "QA_VALIDATION": 2, "REVIEW": 0}, order))
	assert.Equal(t, "none", FormatCounts(nil, order))
}
