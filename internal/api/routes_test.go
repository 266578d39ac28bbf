package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/blagoySimandov/careerpilot/internal/account"
	"github.com/blagoySimandov/careerpilot/internal/apperr"
	"github.com/blagoySimandov/careerpilot/internal/auth"
	"github.com/blagoySimandov/careerpilot/internal/billing"
	"github.com/blagoySimandov/careerpilot/internal/config"
	"github.com/blagoySimandov/careerpilot/internal/generation"
	"github.com/blagoySimandov/careerpilot/internal/metrics"
	"github.com/blagoySimandov/careerpilot/internal/models"
	"github.com/blagoySimandov/careerpilot/internal/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testOrigin = "http://localhost:5173"

type stubVerifier struct{}

func (stubVerifier) VerifyToken(token string) (*auth.User, error) {
	userID, ok := strings.CutPrefix(token, "token-")
	if !ok || userID == "" {
		return nil, errors.New("bad token")
	}
	return &auth.User{ID: userID, Email: userID + "@example.com"}, nil
}

type fakeBilling struct {
	checkoutReq  billing.CheckoutRequest
	cancelReq    billing.CancelRequest
	verifyCaller string
	verifyErr    error
	webhookErr   error
	webhookSeen  []byte
}

func (f *fakeBilling) Plans() []billing.Plan {
	return []billing.Plan{{Name: billing.PlanBasic, Tier: models.TierBasic, GenerationLimit: 5}}
}

func (f *fakeBilling) CreateCheckoutSession(ctx context.Context, req billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	f.checkoutReq = req
	return &billing.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil
}

func (f *fakeBilling) VerifySession(ctx context.Context, callerID, sessionID string) (*billing.SessionSummary, error) {
	f.verifyCaller = callerID
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &billing.SessionSummary{SessionID: sessionID, PaymentStatus: "paid", UserID: callerID, Tier: models.TierBasic}, nil
}

func (f *fakeBilling) HandleWebhookEvent(ctx context.Context, payload []byte, signatureHeader string) (billing.WebhookResult, error) {
	f.webhookSeen = payload
	if signatureHeader != "valid" {
		return billing.WebhookResult{}, apperr.InvalidSignature(errors.New("no match"))
	}
	if f.webhookErr != nil {
		return billing.WebhookResult{}, f.webhookErr
	}
	return billing.WebhookResult{EventID: "evt_1", Kind: billing.EventSubscriptionDeleted, Status: billing.WebhookProcessed}, nil
}

func (f *fakeBilling) CancelSubscription(ctx context.Context, req billing.CancelRequest) (*billing.CancelResult, error) {
	f.cancelReq = req
	return &billing.CancelResult{SubscriptionID: "sub_1", Status: "canceled"}, nil
}

type fakeGenerator struct {
	err   error
	panic bool
	task  generation.Task
	user  string
}

func (f *fakeGenerator) Generate(ctx context.Context, userID string, task generation.Task, jobDescription string) (*generation.Result, error) {
	if f.panic {
		panic("generator exploded")
	}
	f.task = task
	f.user = userID
	if f.err != nil {
		return nil, f.err
	}
	return &generation.Result{
		Task:    task,
		Content: "- Built things",
		Model:   "test-model",
		Usage:   generation.Usage{UsageCount: 1, Limit: 2, Tier: models.TierFreemium},
	}, nil
}

type testServer struct {
	handler   http.Handler
	billing   *fakeBilling
	generator *fakeGenerator
	metrics   *metrics.Metrics
}

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *testServer {
	t.Helper()
	ledger := account.NewLedger(account.NewMemoryStore(), config.LedgerConfig{StoreTimeout: time.Second, MaxIncrementRetries: 3})
	ts := &testServer{
		billing:   &fakeBilling{},
		generator: &fakeGenerator{},
		metrics:   metrics.New(nil),
	}
	ts.handler = SetupRoutes(Dependencies{
		Accounts:       NewAccountHandler(ledger),
		Billing:        NewBillingHandler(ts.billing),
		Generation:     NewGenerationHandler(ts.generator),
		Auth:           auth.NewMiddleware(stubVerifier{}),
		Limiter:        limiter,
		Metrics:        ts.metrics,
		AllowedOrigins: []string{testOrigin},
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestRootAndHealth(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "API is running", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = ts.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestAccountRoutesRequireMatchingSubject(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/account/u1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/account/u1", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.do(t, http.MethodGet, "/account/u2", "token-u1", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "forbidden", decode(t, rec)["code"])
}

func TestAccountUsageFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodGet, "/account/u1", "token-u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "u1", body["userId"])
	assert.Equal(t, "FREEMIUM", body["tier"])
	assert.Equal(t, float64(0), body["usageCount"])
	assert.Equal(t, "inactive", body["subscriptionStatus"])
	assert.Nil(t, body["billingSubscriptionId"])
	assert.Equal(t, float64(2), body["limit"])
	assert.Equal(t, true, body["created"])

	for want := 1; want <= 2; want++ {
		rec = ts.do(t, http.MethodPost, "/account/u1/usage/increment", "token-u1", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(want), decode(t, rec)["usageCount"])
	}

	rec = ts.do(t, http.MethodPost, "/account/u1/usage/increment", "token-u1", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
	body = decode(t, rec)
	assert.Equal(t, "quota_exceeded", body["code"])
	assert.Equal(t, float64(2), body["usageCount"])
	assert.Equal(t, float64(2), body["limit"])
	assert.Equal(t, "FREEMIUM", body["tier"])

	rec = ts.do(t, http.MethodPost, "/account/u1/usage/reset", "token-u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["success"])

	rec = ts.do(t, http.MethodGet, "/account/u1", "token-u1", nil)
	body = decode(t, rec)
	assert.Equal(t, float64(0), body["usageCount"])
	assert.Equal(t, false, body["created"])
}

func TestWebhookIsUnauthenticatedAndSignatureChecked(t *testing.T) {
	ts := newTestServer(t, nil)
	payload := `{"id":"evt_1","type":"customer.subscription.deleted"}`

	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "valid")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"received":true,"status":"processed"}`, rec.Body.String())
	assert.Equal(t, payload, string(ts.billing.webhookSeen))

	req = httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "forged")
	rec = httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_signature", decode(t, rec)["code"])
}

func TestWebhookRejectsOversizedBody(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/billing/webhook", strings.NewReader(strings.Repeat("x", maxWebhookBodyBytes+1)))
	req.Header.Set("Stripe-Signature", "valid")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, ts.billing.webhookSeen)
}

func TestCheckoutSession(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/billing/checkout-session", "token-u1", map[string]string{
		"planName": "Premium+", "priceRef": "price_pp", "userId": "u2",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/billing/checkout-session", "token-u1", map[string]string{
		"planName": "Premium+", "priceRef": "price_pp", "userId": "u1",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessionId":"cs_test_1","url":"https://checkout.example/cs_test_1"}`, rec.Body.String())
	assert.Equal(t, "u1@example.com", ts.billing.checkoutReq.UserEmail)
	assert.Equal(t, "Premium+", ts.billing.checkoutReq.PlanName)

	rec = ts.do(t, http.MethodPost, "/billing/checkout-session", "token-u1", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode(t, rec)["code"])
}

func TestVerifySession(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/billing/verify-session", "token-u1", map[string]string{"sessionId": "cs_1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "BASIC", decode(t, rec)["tier"])
	assert.Equal(t, "u1", ts.billing.verifyCaller)

	ts.billing.verifyErr = apperr.PaymentIncomplete("unpaid")
	rec = ts.do(t, http.MethodPost, "/billing/verify-session", "token-u1", map[string]string{"sessionId": "cs_1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "payment_incomplete", decode(t, rec)["code"])

	ts.billing.verifyErr = apperr.Forbidden("checkout session belongs to another user")
	rec = ts.do(t, http.MethodPost, "/billing/verify-session", "token-u2", map[string]string{"sessionId": "cs_1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "u2", ts.billing.verifyCaller)
	assert.NotContains(t, rec.Body.String(), "customerEmail")
}

func TestCancelSubscription(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/billing/cancel-subscription", "token-u1", map[string]string{"userId": "u9", "customerId": "cus_1"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, http.MethodPost, "/billing/cancel-subscription", "token-u1", map[string]string{"userId": "u1", "customerId": "cus_1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"subscriptionId":"sub_1","status":"canceled"}`, rec.Body.String())
	assert.Equal(t, "cus_1", ts.billing.cancelReq.CustomerID)
}

func TestPlansArePublic(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(t, http.MethodGet, "/billing/plans", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"BASIC"`)
}

func TestGenerationRoutes(t *testing.T) {
	ts := newTestServer(t, nil)

	rec := ts.do(t, http.MethodPost, "/api/create-bullets", "token-u1", map[string]string{"jobDescription": "Go engineer"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, generation.TaskBullets, ts.generator.task)
	assert.Equal(t, "u1", ts.generator.user)
	assert.Equal(t, "- Built things", decode(t, rec)["content"])

	rec = ts.do(t, http.MethodPost, "/api/generate/cover-letter", "token-u1", map[string]string{"jobDescription": "Go engineer"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, generation.TaskCoverLetter, ts.generator.task)

	rec = ts.do(t, http.MethodPost, "/api/generate/haiku", "token-u1", map[string]string{"jobDescription": "Go engineer"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/generate", "token-u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "interview-questions")

	rec = ts.do(t, http.MethodPost, "/api/create-bullets", "", map[string]string{"jobDescription": "Go engineer"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerationErrorsAreMapped(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.generator.err = &account.QuotaExceededError{UsageCount: 5, Limit: 5, Tier: models.TierBasic}
	rec := ts.do(t, http.MethodPost, "/api/create-bullets", "token-u1", map[string]string{"jobDescription": "x"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "BASIC", decode(t, rec)["tier"])

	ts.generator.err = apperr.Upstream("ai.generate", errors.New("api key leaked in message"))
	rec = ts.do(t, http.MethodPost, "/api/create-bullets", "token-u1", map[string]string{"jobDescription": "x"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "api key")

	ts.generator.err = errors.New("unclassified")
	rec = ts.do(t, http.MethodPost, "/api/create-bullets", "token-u1", map[string]string{"jobDescription": "x"})
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", decode(t, rec)["message"])
}

func TestPanicIsRecovered(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.generator.panic = true
	rec := ts.do(t, http.MethodPost, "/api/create-bullets", "token-u1", map[string]string{"jobDescription": "x"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal_error", decode(t, rec)["code"])
}

func TestGenerationIsRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ts := newTestServer(t, ratelimit.NewLimiter(rdb, 1, time.Minute))

	rec := ts.do(t, http.MethodPost, "/api/create-bullets", "token-u1", map[string]string{"jobDescription": "x"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/create-bullets", "token-u1", map[string]string{"jobDescription": "x"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec = ts.do(t, http.MethodPost, "/api/create-bullets", "token-u2", map[string]string{"jobDescription": "x"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/billing/checkout-session", nil)
	req.Header.Set("Origin", testOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	assert.Equal(t, testOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.do(t, http.MethodGet, "/account/u1", "token-u1", nil)

	rec := ts.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `careerpilot_http_requests_total{method="GET",route="/account/{userId}",status="200"} 1`)
}
