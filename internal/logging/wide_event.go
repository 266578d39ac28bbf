package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type contextKey string

const (
	contextKeyWideEvent contextKey = "wide_event"
	contextKeyTraceID   contextKey = "trace_id"

	TraceHeader = "X-Request-ID"
)

// WideEvent is one structured log entry for the whole lifecycle of a request.
// Handlers enrich it as the request flows through the ledger, billing and AI layers.
type WideEvent struct {
	TraceID   string
	EventType string
	Timestamp time.Time

	HTTPMethod     string
	HTTPPath       string
	HTTPRoute      string
	HTTPStatusCode int
	HTTPDuration   time.Duration
	RemoteAddr     string

	UserID string

	Task         string
	Tier         string
	UsageCount   int64
	WebhookEvent string
	WebhookKind  string
	WebhookState string

	Error          string
	ErrorKind      string
	PanicRecovered bool

	Metadata map[string]interface{}
}

func NewWideEvent(eventType string) *WideEvent {
	return &WideEvent{
		TraceID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now(),
		Metadata:  make(map[string]interface{}),
	}
}

func WithContext(ctx context.Context, event *WideEvent) context.Context {
	ctx = context.WithValue(ctx, contextKeyWideEvent, event)
	ctx = context.WithValue(ctx, contextKeyTraceID, event.TraceID)
	return ctx
}

func FromContext(ctx context.Context) *WideEvent {
	if event, ok := ctx.Value(contextKeyWideEvent).(*WideEvent); ok {
		return event
	}
	return nil
}

func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(contextKeyTraceID).(string); ok {
		return traceID
	}
	return ""
}

func EnrichRoute(ctx context.Context, route string) {
	if event := FromContext(ctx); event != nil {
		event.HTTPRoute = route
	}
}

func EnrichUser(ctx context.Context, userID string) {
	if event := FromContext(ctx); event != nil {
		event.UserID = userID
	}
}

func EnrichUsage(ctx context.Context, tier string, usageCount int64) {
	if event := FromContext(ctx); event != nil {
		event.Tier = tier
		event.UsageCount = usageCount
	}
}

func EnrichTask(ctx context.Context, task string) {
	if event := FromContext(ctx); event != nil {
		event.Task = task
	}
}

func EnrichWebhook(ctx context.Context, eventID, kind, status string) {
	if event := FromContext(ctx); event != nil {
		event.WebhookEvent = eventID
		event.WebhookKind = kind
		event.WebhookState = status
	}
}

func EnrichError(ctx context.Context, err error, kind string) {
	if event := FromContext(ctx); event != nil && err != nil {
		event.Error = err.Error()
		event.ErrorKind = kind
	}
}

func EnrichPanic(ctx context.Context) {
	if event := FromContext(ctx); event != nil {
		event.PanicRecovered = true
	}
}

func EnrichMetadata(ctx context.Context, key string, value interface{}) {
	if event := FromContext(ctx); event != nil {
		event.Metadata[key] = value
	}
}

// Emit writes the event. Server errors and panics log at error level, client errors at warn.
func Emit(ctx context.Context) {
	event := FromContext(ctx)
	if event == nil {
		return
	}

	var e *zerolog.Event
	switch {
	case event.PanicRecovered || event.HTTPStatusCode >= http.StatusInternalServerError:
		e = log.Error()
	case event.HTTPStatusCode >= http.StatusBadRequest:
		e = log.Warn()
	default:
		e = log.Info()
	}

	e = e.Str("trace_id", event.TraceID).
		Str("event_type", event.EventType).
		Time("started_at", event.Timestamp)

	if event.HTTPMethod != "" {
		e = e.Str("http_method", event.HTTPMethod)
	}
	if event.HTTPPath != "" {
		e = e.Str("http_path", event.HTTPPath)
	}
	if event.HTTPRoute != "" {
		e = e.Str("http_route", event.HTTPRoute)
	}
	if event.HTTPStatusCode != 0 {
		e = e.Int("http_status_code", event.HTTPStatusCode)
	}
	e = e.Int64("http_duration_ms", event.HTTPDuration.Milliseconds())
	if event.RemoteAddr != "" {
		e = e.Str("remote_addr", event.RemoteAddr)
	}
	if event.UserID != "" {
		e = e.Str("user_id", event.UserID)
	}
	if event.Task != "" {
		e = e.Str("task", event.Task)
	}
	if event.Tier != "" {
		e = e.Str("tier", event.Tier).Int64("usage_count", event.UsageCount)
	}
	if event.WebhookEvent != "" {
		e = e.Str("webhook_event_id", event.WebhookEvent).
			Str("webhook_kind", event.WebhookKind).
			Str("webhook_status", event.WebhookState)
	}
	if event.Error != "" {
		e = e.Str("error", event.Error).Str("error_kind", event.ErrorKind)
	}
	if event.PanicRecovered {
		e = e.Bool("panic_recovered", true)
	}
	if len(event.Metadata) > 0 {
		e = e.Fields(event.Metadata)
	}

	e.Msg("wide_event")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware starts a wide event per request and emits it once the handler returns.
// An incoming X-Request-ID is reused as the trace id.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		event := NewWideEvent("http.request")
		if id := r.Header.Get(TraceHeader); id != "" {
			event.TraceID = id
		}
		event.HTTPMethod = r.Method
		event.HTTPPath = r.URL.Path
		event.RemoteAddr = r.RemoteAddr

		ctx := WithContext(r.Context(), event)
		w.Header().Set(TraceHeader, event.TraceID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			event.HTTPStatusCode = rec.status
			event.HTTPDuration = time.Since(event.Timestamp)
			Emit(ctx)
		}()

		next.ServeHTTP(rec, r.WithContext(ctx))
	})
}
