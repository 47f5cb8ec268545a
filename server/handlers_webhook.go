package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/onnwee/pagebridge/bridge"
	"github.com/onnwee/pagebridge/telemetry"
)

// HandleFacebookWebhook serves the Graph webhook endpoint. GET answers the
// subscription verification handshake; POST receives feed change batches.
// Valid deliveries are always acknowledged with 200 regardless of processing
// outcome, since the platform retries and eventually disables endpoints that
// keep failing.
func (h *Handlers) HandleFacebookWebhook(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleWebhookVerify(w, r)
	case http.MethodPost:
		h.handleWebhookDelivery(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handlers) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.cfg.FBVerifyToken || h.cfg.FBVerifyToken == "" {
		telemetry.LoggerWithCorr(r.Context()).Warn("webhook verification rejected",
			slog.String("mode", q.Get("hub.mode")))
		http.Error(w, "verification failed", http.StatusForbidden)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(q.Get("hub.challenge")))
}

func (h *Handlers) handleWebhookDelivery(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	if err := verifyHubSignature(h.cfg.FBAppSecret, r.Header.Get("X-Hub-Signature-256"), body); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("webhook signature rejected", slog.Any("err", err))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var note bridge.Notification
	if err := json.Unmarshal(body, &note); err != nil {
		// Acknowledge malformed payloads too; retrying won't fix them.
		telemetry.LoggerWithCorr(r.Context()).Warn("webhook payload undecodable", slog.Any("err", err))
		w.WriteHeader(http.StatusOK)
		return
	}

	ctx := telemetry.WithCorrelation(h.ctx, telemetry.GetCorrelation(r.Context()))
	go h.svc.MirrorComments(ctx, note)

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("EVENT_RECEIVED"))
}

// verifyHubSignature checks the sha256 payload signature Facebook sends with
// every delivery.
func verifyHubSignature(appSecret, header string, body []byte) error {
	if appSecret == "" {
		return errMissingSecret
	}
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return errBadSignatureHeader
	}
	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(sig)) {
		return errSignatureMismatch
	}
	return nil
}

var (
	errMissingSecret      = &webhookAuthError{"app secret not configured"}
	errBadSignatureHeader = &webhookAuthError{"missing or malformed X-Hub-Signature-256"}
	errSignatureMismatch  = &webhookAuthError{"signature mismatch"}
)

type webhookAuthError struct{ msg string }

func (e *webhookAuthError) Error() string { return e.msg }
