package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/onnwee/pagebridge/slackgw"
	"github.com/onnwee/pagebridge/telemetry"
)

// maxEventBody bounds inbound event payloads. Slack events are small; anything
// bigger is not ours.
const maxEventBody = 1 << 20

// HandleSlackEvents receives Events API deliveries. The endpoint verifies the
// request signature, answers URL verification challenges, and otherwise
// acknowledges immediately while the event is processed in the background.
// Slack retries on non-2xx, so processing failures never surface here.
func (h *Handlers) HandleSlackEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		http.Error(w, "read error", http.StatusBadRequest)
		return
	}

	if err := slackgw.VerifySignature(
		h.cfg.SlackSigningSecret,
		r.Header.Get("X-Slack-Request-Timestamp"),
		r.Header.Get("X-Slack-Signature"),
		body,
	); err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("slack signature rejected", slog.Any("err", err))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	cb, err := slackgw.DecodeCallback(body)
	if err != nil {
		http.Error(w, "bad payload", http.StatusBadRequest)
		return
	}

	if cb.Type == "url_verification" {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"challenge": cb.Challenge})
		return
	}

	if ev, ok := slackgw.ToInboundEvent(cb); ok {
		// Process after acknowledging; carry the correlation id into the
		// detached context so the event's logs stay linked to the delivery.
		ctx := telemetry.WithCorrelation(h.ctx, telemetry.GetCorrelation(r.Context()))
		go func() {
			if err := h.svc.HandleEvent(ctx, ev); err != nil {
				telemetry.LoggerWithCorr(ctx).Error("event handling failed", slog.Any("err", err))
			}
		}()
	}

	w.WriteHeader(http.StatusOK)
}
