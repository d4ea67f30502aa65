package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-logr/logr/testr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealth(t *testing.T) {
	connected := false
	s := NewServer(testr.New(t), "", func() bool { return connected })

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"mqtt_disconnected"}`, rec.Body.String())

	connected = true
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	Commands.WithLabelValues("bot", "on", Result(nil)).Inc()
	Commands.WithLabelValues("bot", "on", Result(errors.New("x"))).Inc()

	ts := httptest.NewServer(NewServer(testr.New(t), "", nil).Handler())
	defer ts.Close()

	rsp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer rsp.Body.Close()
	body, err := io.ReadAll(rsp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `switchbot_mqtt_commands_total{action="on",device="bot",result="success"}`))
	assert.True(t, strings.Contains(string(body), `result="failure"`))
}
