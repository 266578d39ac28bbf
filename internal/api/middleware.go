package api

import (
	"net/http"
	"runtime/debug"

	"github.com/blagoySimandov/careerpilot/internal/auth"
	"github.com/blagoySimandov/careerpilot/internal/logging"
	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

const unmatchedRoute = "unmatched"

func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				logging.EnrichPanic(r.Context())
				log.Error().
					Interface("panic", err).
					Str("trace_id", logging.GetTraceID(r.Context())).
					Bytes("stack", debug.Stack()).
					Msg("Recovered from panic")
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{Code: "internal_error", Message: internalServerError})
			}
		}()

		next.ServeHTTP(w, r)
	})
}

func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", logging.TraceHeader},
		ExposedHeaders:   []string{logging.TraceHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// RouteMiddleware labels the wide event with the matched path template.
func RouteMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logging.EnrichRoute(r.Context(), routeTemplate(r))
		next.ServeHTTP(w, r)
	})
}

func UserEventMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, ok := auth.GetUserFromContext(r.Context()); ok {
			logging.EnrichUser(r.Context(), user.ID)
		}
		next.ServeHTTP(w, r)
	})
}

func routeTemplate(r *http.Request) string {
	route := mux.CurrentRoute(r)
	if route == nil {
		return unmatchedRoute
	}
	tmpl, err := route.GetPathTemplate()
	if err != nil {
		return unmatchedRoute
	}
	return tmpl
}
