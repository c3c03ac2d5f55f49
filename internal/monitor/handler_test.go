package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getHealth(t *testing.T, m *Monitor) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	m.HealthHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthHandlerPending(t *testing.T) {
	m, _ := newMonitor(t, testConfig(), []Source{{Name: "fast", Raw: randomSource}})

	assert.Nil(t, m.Last())
	code, body := getHealth(t, m)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "pending", body["status"])
}

func TestHealthHandlerHealthy(t *testing.T) {
	m, _ := newMonitor(t, testConfig(), []Source{{Name: "fast", Raw: randomSource}})
	rep, err := m.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Same(t, rep, m.Last())

	code, body := getHealth(t, m)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, float64(0), body["exit_code"])
}

func TestHealthHandlerUnhealthy(t *testing.T) {
	m, _ := newMonitor(t, testConfig(), []Source{{Name: "stuck", Raw: stuckSource}})
	_, err := m.RunOnce(context.Background())
	require.NoError(t, err)

	code, body := getHealth(t, m)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body["status"])
	assert.Equal(t, float64(3), body["exit_code"])
}
