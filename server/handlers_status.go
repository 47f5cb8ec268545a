package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HandleStatus reports operational counters: connected workspaces, bridged
// posts, and the most recent publish time.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := map[string]any{"time": time.Now().UTC().Format(time.RFC3339)}

	var workspaces, withUser, links, events int
	if err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM workspace_credentials WHERE page_access_token IS NOT NULL AND page_access_token <> ''").Scan(&workspaces); err != nil {
		http.Error(w, "status query failed", http.StatusInternalServerError)
		return
	}
	if err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM workspace_credentials WHERE user_token_status = 'allowed'").Scan(&withUser); err != nil {
		http.Error(w, "status query failed", http.StatusInternalServerError)
		return
	}
	if err := h.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM link_records").Scan(&links); err != nil {
		http.Error(w, "status query failed", http.StatusInternalServerError)
		return
	}
	if err := h.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM webhook_events").Scan(&events); err != nil {
		http.Error(w, "status query failed", http.StatusInternalServerError)
		return
	}
	status["connected_workspaces"] = workspaces
	status["workspaces_with_user_credential"] = withUser
	status["bridged_posts"] = links
	status["webhook_events_seen"] = events

	var lastPublish time.Time
	err := h.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(created_at), 'epoch'::timestamptz) FROM link_records").Scan(&lastPublish)
	if err == nil && lastPublish.Unix() > 0 {
		status["last_publish_at"] = lastPublish.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
