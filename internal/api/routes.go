package api

import (
	"net/http"

	"github.com/blagoySimandov/careerpilot/internal/auth"
	"github.com/blagoySimandov/careerpilot/internal/logging"
	"github.com/blagoySimandov/careerpilot/internal/metrics"
	"github.com/blagoySimandov/careerpilot/internal/ratelimit"
	"github.com/gorilla/mux"
)

const generationRateScope = "generate"

type Dependencies struct {
	Accounts       *AccountHandler
	Billing        *BillingHandler
	Generation     *GenerationHandler
	Auth           *auth.Middleware
	Limiter        *ratelimit.Limiter
	Metrics        *metrics.Metrics
	AllowedOrigins []string
}

// SetupRoutes builds the HTTP surface. CORS, wide-event logging and panic recovery
// wrap the router so they also cover unmatched routes and preflight requests.
func SetupRoutes(deps Dependencies) http.Handler {
	r := mux.NewRouter()

	r.Use(RouteMiddleware)
	r.Use(metrics.HTTPMiddleware(deps.Metrics, routeTemplate))

	r.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("API is running"))
	}).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods("GET")
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler()).Methods("GET")
	}

	// Signature-verified instead of bearer-authenticated.
	r.HandleFunc("/billing/webhook", deps.Billing.HandleWebhook).Methods("POST")
	r.HandleFunc("/billing/plans", deps.Billing.ListPlans).Methods("GET")

	accounts := r.PathPrefix("/account").Subrouter()
	accounts.Use(deps.Auth.RequireAuth, UserEventMiddleware)
	accounts.HandleFunc("/{userId}", deps.Accounts.GetAccount).Methods("GET")
	accounts.HandleFunc("/{userId}/usage/increment", deps.Accounts.IncrementUsage).Methods("POST")
	accounts.HandleFunc("/{userId}/usage/reset", deps.Accounts.ResetUsage).Methods("POST")

	billingRoutes := r.PathPrefix("/billing").Subrouter()
	billingRoutes.Use(deps.Auth.RequireAuth, UserEventMiddleware)
	billingRoutes.HandleFunc("/checkout-session", deps.Billing.CreateCheckoutSession).Methods("POST")
	billingRoutes.HandleFunc("/verify-session", deps.Billing.VerifySession).Methods("POST")
	billingRoutes.HandleFunc("/cancel-subscription", deps.Billing.CancelSubscription).Methods("POST")

	r.Handle("/api/generate", deps.Auth.RequireAuth(http.HandlerFunc(deps.Generation.ListTasks))).Methods("GET")

	generate := r.PathPrefix("/api").Subrouter()
	generate.Use(deps.Auth.RequireAuth, UserEventMiddleware, ratelimit.Middleware(deps.Limiter, generationRateScope, deps.Metrics))
	generate.HandleFunc("/generate/{task}", deps.Generation.Generate).Methods("POST")
	generate.HandleFunc("/create-bullets", deps.Generation.CreateBullets).Methods("POST")

	var h http.Handler = r
	h = RecoveryMiddleware(h)
	h = logging.Middleware(h)
	h = CORSMiddleware(deps.AllowedOrigins)(h)
	return h
}
