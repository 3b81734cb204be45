package stripewebhooks

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

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v75/webhook"
	"go.uber.org/zap"

	"storefront-billing/internal/domain/billing"
	"storefront-billing/internal/eventlog"
	stripeinfra "storefront-billing/internal/infra/stripe"
	"storefront-billing/internal/observability"
	"storefront-billing/internal/testutil"
)

const secret = "whsec_handler_test"

type fakeEngine struct {
	outcome billing.Outcome
	err     error
	calls   []string
}

func (f *fakeEngine) HandleEvent(_ context.Context, ev *billing.Event) (billing.Outcome, error) {
	f.calls = append(f.calls, ev.ID)
	return f.outcome, f.err
}

func newRouter(t *testing.T, engine *fakeEngine) (*gin.Engine, eventlog.Deduper) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	events := eventlog.NewDBDeduper(testutil.NewDB(t), time.Hour)
	h := NewHandler(Params{
		Verifier: stripeinfra.NewVerifier(secret, zap.NewNop()),
		Engine:   engine,
		Events:   events,
		Metrics:  observability.MustNewMetrics(prometheus.NewRegistry()),
		Log:      zap.NewNop(),
	})
	r := gin.New()
	r.POST("/webhooks/stripe", h.StripeWebhook)
	return r, events
}

func eventPayload(id, typ string) string {
	return `{"id":"` + id + `","object":"event","type":"` + typ + `","created":1700000000,` +
		`"data":{"object":{"id":"sub_1","object":"subscription","customer":"cus_1","status":"active"}}}`
}

func post(r http.Handler, payload, signingSecret string) *httptest.ResponseRecorder {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    signingSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func status(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["status"]
}

func TestStripeWebhook_Processed(t *testing.T) {
	engine := &fakeEngine{outcome: billing.OutcomeProcessed}
	r, events := newRouter(t, engine)

	w := post(r, eventPayload("evt_1", "customer.subscription.updated"), secret)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "received", status(t, w))
	assert.Equal(t, []string{"evt_1"}, engine.calls)

	seen, err := events.Seen(context.Background(), "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestStripeWebhook_Ignored(t *testing.T) {
	engine := &fakeEngine{outcome: billing.OutcomeIgnored}
	r, _ := newRouter(t, engine)

	w := post(r, eventPayload("evt_2", "foo.bar"), secret)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ignored", status(t, w))
}

func TestStripeWebhook_DuplicateSkipsEngine(t *testing.T) {
	engine := &fakeEngine{outcome: billing.OutcomeProcessed}
	r, _ := newRouter(t, engine)

	first := post(r, eventPayload("evt_3", "customer.subscription.updated"), secret)
	second := post(r, eventPayload("evt_3", "customer.subscription.updated"), secret)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "duplicate", status(t, second))
	assert.Len(t, engine.calls, 1)
}

func TestStripeWebhook_BadSignature(t *testing.T) {
	engine := &fakeEngine{outcome: billing.OutcomeProcessed}
	r, _ := newRouter(t, engine)

	w := post(r, eventPayload("evt_4", "customer.subscription.updated"), "whsec_wrong")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, engine.calls)
}

func TestStripeWebhook_MissingSignature(t *testing.T) {
	engine := &fakeEngine{outcome: billing.OutcomeProcessed}
	r, _ := newRouter(t, engine)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe",
		strings.NewReader(eventPayload("evt_5", "customer.subscription.updated")))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, engine.calls)
}

func TestStripeWebhook_EngineFailureIsRetryable(t *testing.T) {
	engine := &fakeEngine{err: errors.New("database is locked")}
	r, events := newRouter(t, engine)

	w := post(r, eventPayload("evt_6", "customer.subscription.updated"), secret)
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	seen, err := events.Seen(context.Background(), "evt_6")
	require.NoError(t, err)
	assert.False(t, seen, "failed events must stay eligible for redelivery")

	engine.err = nil
	engine.outcome = billing.OutcomeProcessed
	w = post(r, eventPayload("evt_6", "customer.subscription.updated"), secret)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, engine.calls, 2)
}

func TestStripeWebhook_MalformedFromEngine(t *testing.T) {
	engine := &fakeEngine{err: billing.ErrMalformedEvent}
	r, _ := newRouter(t, engine)

	w := post(r, eventPayload("evt_7", "customer.subscription.updated"), secret)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeWebhook_BodyTooLarge(t *testing.T) {
	engine := &fakeEngine{outcome: billing.OutcomeProcessed}
	r, _ := newRouter(t, engine)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe",
		bytes.NewReader(bytes.Repeat([]byte("x"), maxBodyBytes+1)))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, engine.calls)
}
