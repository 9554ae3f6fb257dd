package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.InboundMessages.Inc()
	m.Sends.WithLabelValues(ResultFailure).Add(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.InboundMessages))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Sends.WithLabelValues(ResultFailure)))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), "smsdesk_inbound_messages_total 1")
	assert.Contains(t, string(body), `smsdesk_sends_total{result="failure"} 2`)
}

func TestNew_IndependentRegistries(t *testing.T) {
	// Each instance registers on its own registry, so tests can build many
	a := New()
	b := New()
	a.Connections.Set(3)
	assert.Equal(t, float64(0), testutil.ToFloat64(b.Connections))
}
