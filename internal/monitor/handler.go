package monitor

import (
	"encoding/json"
	"net/http"

	"armrng/internal/report"
)

// Last returns the report of the most recent completed pass, or nil.
func (m *Monitor) Last() *report.Report {
	return m.last.Load()
}

// HealthHandler serves the last pass as JSON: 200 when it passed, 503 when
// it failed or no pass has completed yet.
func (m *Monitor) HealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		last := m.Last()
		if last == nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "pending"})
			return
		}

		status := "healthy"
		if !last.Passed() {
			status = "unhealthy"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"status":    status,
			"exit_code": last.ExitCode(),
			"report":    last,
		})
	})
}
