package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/forkfleet/forkfleet-backend/internal/payments"
	pkgerrors "github.com/forkfleet/forkfleet-backend/pkg/errors"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

type stubWebhookHandler struct {
	provider string
	payload  []byte
	headers  http.Header
	outcome  payments.WebhookOutcome
	err      error
}

func (s *stubWebhookHandler) HandleWebhook(ctx context.Context, provider string, headers http.Header, payload []byte) (payments.WebhookOutcome, error) {
	s.provider = provider
	s.payload = payload
	s.headers = headers
	return s.outcome, s.err
}

func webhookRequest(provider string, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments/"+provider, bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("provider", provider)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))
}

func TestPaymentWebhookForwardsRawPayload(t *testing.T) {
	svc := &stubWebhookHandler{outcome: payments.WebhookApplied}
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed"}`)
	rec := httptest.NewRecorder()

	PaymentWebhook(svc, logger.New(logger.Options{ServiceName: "test"}))(rec, webhookRequest("Stripe", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", rec.Code, rec.Body.String())
	}
	if svc.provider != "stripe" {
		t.Fatalf("expected normalized provider, got %q", svc.provider)
	}
	if !bytes.Equal(svc.payload, body) {
		t.Fatalf("payload was altered: %s", svc.payload)
	}
	if svc.headers.Get("Stripe-Signature") != "t=1,v1=abc" {
		t.Fatal("signature header not forwarded")
	}
	if !strings.Contains(rec.Body.String(), `"outcome":"applied"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestPaymentWebhookDuplicateIsSuccess(t *testing.T) {
	svc := &stubWebhookHandler{outcome: payments.WebhookDuplicate}
	rec := httptest.NewRecorder()

	PaymentWebhook(svc, nil)(rec, webhookRequest("square", []byte(`{}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "duplicate") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestPaymentWebhookBadSignature(t *testing.T) {
	svc := &stubWebhookHandler{err: pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")}
	rec := httptest.NewRecorder()

	PaymentWebhook(svc, nil)(rec, webhookRequest("stripe", []byte(`{}`)))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
}

func TestPaymentWebhookRejectsOversizedBody(t *testing.T) {
	svc := &stubWebhookHandler{outcome: payments.WebhookApplied}
	rec := httptest.NewRecorder()

	PaymentWebhook(svc, nil)(rec, webhookRequest("stripe", bytes.Repeat([]byte("a"), maxWebhookBytes+1)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", rec.Code)
	}
	if svc.provider != "" {
		t.Fatal("handler should not run for oversized payloads")
	}
}
