package daemon

import (
	"time"

	"github.com/majorcontext/tabclose/internal/tabs"
	"github.com/majorcontext/tabclose/internal/timer"
)

// StartRequest is sent to POST /v1/timer. TargetTime is informational; the
// caller has already resolved it into DurationMS.
type StartRequest struct {
	Mode       string `json:"mode"`
	DurationMS int64  `json:"duration_ms"`
	TargetTime string `json:"target_time,omitempty"`
}

// Duration returns the requested countdown.
func (r StartRequest) Duration() time.Duration {
	return time.Duration(r.DurationMS) * time.Millisecond
}

// StartResponse is returned from POST and DELETE /v1/timer.
type StartResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// StateResponse is returned from GET /v1/timer.
type StateResponse struct {
	Active      bool   `json:"active"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	Mode        string `json:"mode,omitempty"`
	RemainingMS int64  `json:"remaining_ms,omitempty"`
	TabID       int    `json:"tab_id,omitempty"`
}

// Remaining converts RemainingMS back to a duration.
func (r StateResponse) Remaining() time.Duration {
	return time.Duration(r.RemainingMS) * time.Millisecond
}

func stateResponse(st timer.State) StateResponse {
	if !st.Active {
		return StateResponse{}
	}
	return StateResponse{
		Active:      true,
		ExpiresAt:   st.ExpiresAt.Format(time.RFC3339),
		Mode:        string(st.Mode),
		RemainingMS: st.Remaining.Milliseconds(),
		TabID:       st.TabID,
	}
}

// OpenTabRequest is sent to POST /v1/tabs.
type OpenTabRequest struct {
	URL string `json:"url"`
}

// TabInfo is an element of the list returned by GET /v1/tabs.
type TabInfo = tabs.Tab

// HealthResponse is returned from GET /v1/health.
type HealthResponse struct {
	PID         int    `json:"pid"`
	StartedAt   string `json:"started_at"`
	TimerActive bool   `json:"timer_active"`
}
