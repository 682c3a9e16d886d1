package http

import (
	"time"

	"github.com/fyrsmithlabs/quorum/internal/orchestrator"
	"github.com/fyrsmithlabs/quorum/internal/phase"
)

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is the response body for GET /api/v1/status.
type StatusResponse struct {
	RunID          string                `json:"run_id"`
	Phase          string                `json:"phase"`
	StuckAt        string                `json:"stuck_at,omitempty"`
	Percentage     int                   `json:"percentage"`
	Roles          []string              `json:"roles"`
	Retries        map[string]int        `json:"retries"`
	Iterations     map[string]int        `json:"iterations"`
	Transitions    int                   `json:"transitions"`
	Artifacts      int                   `json:"artifacts"`
	ChangeRequests int                   `json:"change_requests"`
	LastFailure    *orchestrator.Failure `json:"last_failure,omitempty"`
	StartedAt      time.Time             `json:"started_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// VerifyResponse is the response body for GET /api/v1/verify.
type VerifyResponse struct {
	Status   string   `json:"status"` // "ok" or "corrupt"
	Checked  int      `json:"checked"`
	Failures []string `json:"failures"`
}

func statusFrom(st *orchestrator.PipelineState) StatusResponse {
	resp := StatusResponse{
		RunID:          st.RunID,
		Phase:          string(st.Phase),
		Percentage:     st.Percentage(),
		Roles:          make([]string, 0, len(st.Roles)),
		Retries:        make(map[string]int, len(st.Retries)),
		Iterations:     make(map[string]int, len(st.Iterations)),
		Transitions:    len(st.History),
		Artifacts:      len(st.Artifacts),
		ChangeRequests: len(st.ChangeRequests),
		LastFailure:    st.LastFailure,
		StartedAt:      st.StartedAt,
		UpdatedAt:      st.UpdatedAt,
	}
	if st.Phase == phase.Stuck && len(st.History) > 0 {
		resp.StuckAt = string(st.History[len(st.History)-1].From)
	}
	for _, r := range st.Roles {
		resp.Roles = append(resp.Roles, string(r))
	}
	for p, n := range st.Retries {
		resp.Retries[string(p)] = n
	}
	for p, n := range st.Iterations {
		resp.Iterations[string(p)] = n
	}
	return resp
}
