package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"
)

func hubSignature(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerifyHandshake(t *testing.T) {
	h := newEventHandlers(t)
	req := httptest.NewRequest(http.MethodGet,
		"/webhook/facebook?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=challenge-42", nil)
	rec := httptest.NewRecorder()
	h.HandleFacebookWebhook(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "challenge-42" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestWebhookVerifyWrongToken(t *testing.T) {
	h := newEventHandlers(t)
	req := httptest.NewRequest(http.MethodGet,
		"/webhook/facebook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=x", nil)
	rec := httptest.NewRecorder()
	h.HandleFacebookWebhook(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWebhookDeliveryBadSignature(t *testing.T) {
	h := newEventHandlers(t)
	body := []byte(`{"object":"page","entry":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/facebook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", "sha256=deadbeef")
	rec := httptest.NewRecorder()
	h.HandleFacebookWebhook(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWebhookDeliveryMissingSignatureHeader(t *testing.T) {
	h := newEventHandlers(t)
	body := []byte(`{"object":"page","entry":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/facebook", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.HandleFacebookWebhook(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestWebhookDeliveryAcknowledged(t *testing.T) {
	h := newEventHandlers(t)
	body := []byte(`{"object":"page","entry":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/webhook/facebook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", hubSignature("fb-app-secret", body))
	rec := httptest.NewRecorder()
	h.HandleFacebookWebhook(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Body.String() != "EVENT_RECEIVED" {
		t.Fatalf("body = %q", rec.Body.String())
	}
}

func TestWebhookDeliveryMalformedBodyStillAcknowledged(t *testing.T) {
	h := newEventHandlers(t)
	body := []byte("{not json")
	req := httptest.NewRequest(http.MethodPost, "/webhook/facebook", bytes.NewReader(body))
	req.Header.Set("X-Hub-Signature-256", hubSignature("fb-app-secret", body))
	rec := httptest.NewRecorder()
	h.HandleFacebookWebhook(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("retrying a malformed payload is pointless; must 200, got %d", rec.Code)
	}
}

func TestVerifyHubSignature(t *testing.T) {
	body := []byte("payload")
	if err := verifyHubSignature("secret", hubSignature("secret", body), body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := verifyHubSignature("secret", hubSignature("other", body), body); err == nil {
		t.Fatal("wrong secret accepted")
	}
	if err := verifyHubSignature("", hubSignature("secret", body), body); err == nil {
		t.Fatal("missing secret accepted")
	}
	if err := verifyHubSignature("secret", "bogus-header", body); err == nil {
		t.Fatal("malformed header accepted")
	}
}
