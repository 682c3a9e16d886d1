package consensus

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const evaluationInstructions = `Evaluate the proposal strictly against the acceptance criteria and constraints above.
- Judge only what is stated; do not assume facts that are not in the evidence.
- Raise a blocking issue only for a concrete defect that must be fixed before approval. Name it precisely.
- Put improvements that are not required into suggestions.
- Score your confidence that the proposal satisfies every acceptance criterion from 0 to 100.`

const responseFormat = `Respond with a single JSON object and nothing else:
{"approved": true|false, "conditional": true|false, "score": 0-100, "blocking_issues": ["..."], "suggestions": ["..."], "summary": "..."}`

// BuildPrompt renders the review prompt for packet. Every reviewer in a
// round receives exactly this text.
func BuildPrompt(packet *PlanPacket, content string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Review request: %s", packet.Meta.Phase)
	if packet.Meta.Role != "" {
		fmt.Fprintf(&b, " (submitted by %s)", packet.Meta.Role)
	}
	fmt.Fprintf(&b, "\nPacket %s, version %d\n", packet.Meta.ID, packet.Meta.Version)

	if packet.Summary != "" {
		b.WriteString("\n## Summary\n")
		b.WriteString(strings.TrimSpace(packet.Summary))
		b.WriteString("\n")
	}

	b.WriteString("\n## Acceptance criteria\n")
	for i, c := range packet.AcceptanceCriteria {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}

	if len(packet.Constraints) > 0 {
		b.WriteString("\n## Constraints\n")
		for _, c := range packet.Constraints {
			fmt.Fprintf(&b, "- [%s] %s\n", c.Type, c.Description)
		}
	}

	if len(packet.OpenQuestions) > 0 {
		b.WriteString("\n## Open questions\n")
		for _, q := range packet.OpenQuestions {
			fmt.Fprintf(&b, "- %s\n", q)
		}
	}

	if len(packet.Evidence) > 0 {
		b.WriteString("\n## Evidence\n")
		for _, ref := range packet.Evidence {
			fmt.Fprintf(&b, "- %s\n", ref.String())
		}
	}

	if content = strings.TrimSpace(content); content != "" {
		b.WriteString("\n## Proposal\n")
		b.WriteString(content)
		b.WriteString("\n")
	}

	b.WriteString("\n## Instructions\n")
	b.WriteString(evaluationInstructions)
	b.WriteString("\n\n")
	b.WriteString(responseFormat)
	b.WriteString("\n")
	return b.String()
}

// PromptHash is the hex SHA-256 of prompt, recorded on every vote.
func PromptHash(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// refinePrompt extends prompt with the previous iteration's blocking
// issues for the iterative mode.
func refinePrompt(prompt string, iteration int, previous *Review) string {
	if previous == nil || len(previous.BlockingIssues) == 0 {
		return prompt
	}
	var b strings.Builder
	b.WriteString(prompt)
	fmt.Fprintf(&b, "\n## Iteration %d\nThe previous review raised these blocking issues. Re-evaluate whether each is resolved:\n", iteration)
	for _, issue := range previous.BlockingIssues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	return b.String()
}
