package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupMetricsExposesResilienceMetrics(t *testing.T) {
	handler, m := setupMetrics()
	require.NotNil(t, handler)
	require.NotNil(t, m)

	m.ObserveFallback("classifyIntent")
	m.SetDeadLetterSize(3)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `negotiation_model_fallback_total{operation="classifyIntent"} 1`)
	assert.Contains(t, rr.Body.String(), "negotiation_dead_letter_entries 3")
	assert.Contains(t, rr.Body.String(), "go_goroutines")
}
