// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	WebhookEventsTotal    *prometheus.CounterVec
	ProviderCallsTotal    *prometheus.CounterVec
	QuotaRejectionsTotal  *prometheus.CounterVec
	GenerationsTotal      *prometheus.CounterVec
	AITokensTotal         *prometheus.CounterVec
	RateLimitedTotal      prometheus.Counter
	UsageResetsTotal      prometheus.Counter
	UsageResetAccounts    prometheus.Counter
}

// New registers every collector on registry. A nil registry gets a fresh one.
func New(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		registry: registry,
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careerpilot_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "careerpilot_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		WebhookEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careerpilot_webhook_events_total",
				Help: "Billing webhook events by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		ProviderCallsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careerpilot_billing_provider_calls_total",
				Help: "Calls to the billing provider by operation and status",
			},
			[]string{"operation", "status"},
		),
		QuotaRejectionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careerpilot_quota_rejections_total",
				Help: "Usage increments rejected because the tier quota was exhausted",
			},
			[]string{"tier"},
		),
		GenerationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careerpilot_generations_total",
				Help: "Generation requests by task and outcome",
			},
			[]string{"task", "outcome"},
		),
		AITokensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "careerpilot_ai_tokens_total",
				Help: "Tokens consumed by the AI provider",
			},
			[]string{"task", "kind"},
		),
		RateLimitedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "careerpilot_rate_limited_total",
			Help: "Requests rejected by the rate limiter",
		}),
		UsageResetsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "careerpilot_usage_resets_total",
			Help: "Completed scheduled usage cycle resets",
		}),
		UsageResetAccounts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "careerpilot_usage_reset_accounts_total",
			Help: "Accounts whose usage was reset by the scheduler",
		}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.WebhookEventsTotal,
		m.ProviderCallsTotal,
		m.QuotaRejectionsTotal,
		m.GenerationsTotal,
		m.AITokensTotal,
		m.RateLimitedTotal,
		m.UsageResetsTotal,
		m.UsageResetAccounts,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// The Observe/Inc helpers below accept a nil *Metrics so components can run unmetered in tests.

func (m *Metrics) ObserveWebhook(kind, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) ObserveProviderCall(operation string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ProviderCallsTotal.WithLabelValues(operation, status).Inc()
}

func (m *Metrics) ObserveQuotaRejection(tier string) {
	if m == nil {
		return
	}
	m.QuotaRejectionsTotal.WithLabelValues(tier).Inc()
}

func (m *Metrics) ObserveGeneration(task, outcome string) {
	if m == nil {
		return
	}
	m.GenerationsTotal.WithLabelValues(task, outcome).Inc()
}

func (m *Metrics) AddTokens(task string, prompt, completion int64) {
	if m == nil {
		return
	}
	m.AITokensTotal.WithLabelValues(task, "prompt").Add(float64(prompt))
	m.AITokensTotal.WithLabelValues(task, "completion").Add(float64(completion))
}

func (m *Metrics) IncRateLimited() {
	if m == nil {
		return
	}
	m.RateLimitedTotal.Inc()
}

func (m *Metrics) ObserveUsageReset(accounts int64) {
	if m == nil {
		return
	}
	m.UsageResetsTotal.Inc()
	m.UsageResetAccounts.Add(float64(accounts))
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMiddleware records request counts and latency. route maps a request to a
// low-cardinality label, usually the router's path template.
func HTTPMiddleware(m *Metrics, route func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if m == nil {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			label := route(r)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, label, strconv.Itoa(rw.statusCode)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, label).Observe(time.Since(start).Seconds())
		})
	}
}
