package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveWebhook("checkout.session.completed", "processed")
		m.ObserveProviderCall("checkout.create", nil)
		m.ObserveQuotaRejection("FREEMIUM")
		m.ObserveGeneration("bullets", "ok")
		m.AddTokens("bullets", 10, 20)
		m.IncRateLimited()
		m.ObserveUsageReset(3)
	})
}

func TestCounters(t *testing.T) {
	m := New(nil)

	m.ObserveWebhook("customer.subscription.deleted", "processed")
	m.ObserveWebhook("customer.subscription.deleted", "processed")
	m.ObserveProviderCall("subscription.cancel", errors.New("boom"))
	m.AddTokens("resume", 100, 250)
	m.ObserveUsageReset(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.WebhookEventsTotal.WithLabelValues("customer.subscription.deleted", "processed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCallsTotal.WithLabelValues("subscription.cancel", "error")))
	assert.Equal(t, 250.0, testutil.ToFloat64(m.AITokensTotal.WithLabelValues("resume", "completion")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.UsageResetAccounts))
}

func TestHTTPMiddlewareAndHandler(t *testing.T) {
	m := New(nil)
	handler := HTTPMiddleware(m, func(*http.Request) string { return "/account/{userId}" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}),
	)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/account/u1", nil))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/account/{userId}", "403")))

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "careerpilot_http_requests_total")
}
