package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"
)

type testStripeService struct {
	events   []*stripe.Event
	replayed bool
	err      error
}

func (s *testStripeService) HandleEvent(_ context.Context, event *stripe.Event) (bool, error) {
	s.events = append(s.events, event)
	return s.replayed, s.err
}

type testStripeSecret string

func (s testStripeSecret) SigningSecret() string { return string(s) }

// stripeSignature builds the v1 scheme Stripe sends: an HMAC-SHA256 of
// "<timestamp>.<payload>".
func stripeSignature(secret string, payload []byte, at time.Time) string {
	ts := at.Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func stripeRequest(payload []byte, signature string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	return req
}

func TestStripeWebhookSuccess(t *testing.T) {
	secret := "whsec_stripe"
	svc := &testStripeService{}
	payload := []byte(`{"id":"evt_1","object":"event","api_version":"` + stripe.APIVersion + `","type":"payment_intent.succeeded","data":{"object":{"id":"pi_1"}}}`)

	resp := httptest.NewRecorder()
	handler := StripeWebhook(svc, testStripeSecret(secret), newTestGuard(), testLogger())
	handler(resp, stripeRequest(payload, stripeSignature(secret, payload, time.Now())))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if len(svc.events) != 1 || svc.events[0].ID != "evt_1" {
		t.Fatalf("expected service to receive evt_1, got %+v", svc.events)
	}
	if alreadyProcessedFlag(t, resp) {
		t.Fatal("first delivery must not report already_processed")
	}
}

func TestStripeWebhookMissingSignature(t *testing.T) {
	svc := &testStripeService{}
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{}}}`)

	resp := httptest.NewRecorder()
	handler := StripeWebhook(svc, testStripeSecret("whsec_stripe"), newTestGuard(), testLogger())
	handler(resp, stripeRequest(payload, ""))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if len(svc.events) != 0 {
		t.Fatal("service must not run without a signature")
	}
}

func TestStripeWebhookBadSignature(t *testing.T) {
	svc := &testStripeService{}
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{}}}`)

	resp := httptest.NewRecorder()
	handler := StripeWebhook(svc, testStripeSecret("whsec_stripe"), newTestGuard(), testLogger())
	handler(resp, stripeRequest(payload, stripeSignature("whsec_other", payload, time.Now())))

	if resp.Code == http.StatusOK {
		t.Fatal("expected an error response for a bad signature")
	}
	if len(svc.events) != 0 {
		t.Fatal("service must not run on a bad signature")
	}
}

func TestStripeWebhookStaleTimestamp(t *testing.T) {
	secret := "whsec_stripe"
	svc := &testStripeService{}
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{}}}`)

	resp := httptest.NewRecorder()
	handler := StripeWebhook(svc, testStripeSecret(secret), newTestGuard(), testLogger())
	handler(resp, stripeRequest(payload, stripeSignature(secret, payload, time.Now().Add(-time.Hour))))

	if resp.Code == http.StatusOK {
		t.Fatal("expected an error response outside the signature tolerance")
	}
}

func TestStripeWebhookReplayShortCircuits(t *testing.T) {
	secret := "whsec_stripe"
	svc := &testStripeService{}
	guard := newTestGuard()
	payload := []byte(`{"id":"evt_1","object":"event","api_version":"` + stripe.APIVersion + `","type":"charge.refunded","data":{"object":{"id":"ch_1"}}}`)
	handler := StripeWebhook(svc, testStripeSecret(secret), guard, testLogger())

	first := httptest.NewRecorder()
	handler(first, stripeRequest(payload, stripeSignature(secret, payload, time.Now())))
	if first.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler(second, stripeRequest(payload, stripeSignature(secret, payload, time.Now())))
	if second.Code != http.StatusOK {
		t.Fatalf("replay should answer 200, got %d", second.Code)
	}
	if len(svc.events) != 1 {
		t.Fatalf("replay must not reprocess, service ran %d times", len(svc.events))
	}
	if !alreadyProcessedFlag(t, second) {
		t.Fatal("replay response must report already_processed")
	}
}

func TestStripeWebhookFailureReleasesGuard(t *testing.T) {
	secret := "whsec_stripe"
	svc := &testStripeService{err: fmt.Errorf("downstream unavailable")}
	guard := newTestGuard()
	payload := []byte(`{"id":"evt_1","object":"event","api_version":"` + stripe.APIVersion + `","type":"payment_intent.succeeded","data":{"object":{}}}`)
	handler := StripeWebhook(svc, testStripeSecret(secret), guard, testLogger())

	resp := httptest.NewRecorder()
	handler(resp, stripeRequest(payload, stripeSignature(secret, payload, time.Now())))
	if resp.Code == http.StatusOK {
		t.Fatal("expected an error response")
	}
	if len(guard.deleted) != 1 || guard.deleted[0] != "evt_1" {
		t.Fatalf("expected guard release for evt_1, got %v", guard.deleted)
	}
}
