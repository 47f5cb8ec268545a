package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	dbpkg "github.com/onnwee/pagebridge/db"
	"github.com/onnwee/pagebridge/fbapi"
	"github.com/onnwee/pagebridge/telemetry"
)

const (
	// pageScopes are requested for the workspace-level page connection.
	pageScopes = "pages_show_list,pages_manage_posts,pages_read_engagement"
	// userScopes are requested for the optional attributed-posting credential.
	userScopes = "public_profile"
)

func (h *Handlers) newState(workspaceID, channelID, userID string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	st := hex.EncodeToString(b)
	h.addOAuthState(st, oauthState{
		workspaceID: workspaceID,
		channelID:   channelID,
		userID:      userID,
		expiry:      time.Now().Add(10 * time.Minute),
	})
	return st, nil
}

// HandlePageConnectStart begins the page connection flow for a workspace. The
// team parameter identifies the workspace; channel optionally names where the
// welcome message is posted after a successful connect.
func (h *Handlers) HandlePageConnectStart(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.ValidateFacebookReady(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	team := r.URL.Query().Get("team")
	if team == "" {
		http.Error(w, "missing team", http.StatusBadRequest)
		return
	}
	st, err := h.newState(team, r.URL.Query().Get("channel"), "")
	if err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	authURL, err := fbapi.LoginDialogURL(h.cfg.FBAppID, h.cfg.RedirectBase+"/auth/facebook/callback", pageScopes, st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandlePageConnectCallback completes the page connection: it exchanges the
// code, upgrades to a long-lived token, stores the first administered page's
// credential, subscribes the app to the page feed, and greets the channel.
func (h *Handlers) HandlePageConnectCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	stParam := r.URL.Query().Get("state")
	if code == "" || stParam == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	st, ok := h.takeOAuthState(stParam)
	if !ok {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("workspace", st.workspaceID), slog.String("component", "oauth"))

	tok, err := h.graph.ExchangeCode(ctx, h.cfg.FBAppID, h.cfg.FBAppSecret, h.cfg.RedirectBase+"/auth/facebook/callback", code)
	if err != nil {
		logger.Error("code exchange failed", slog.Any("err", err))
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}
	longTok, err := h.graph.ExchangeLongLived(ctx, h.cfg.FBAppID, h.cfg.FBAppSecret, tok.AccessToken)
	if err != nil {
		logger.Error("long-lived exchange failed", slog.Any("err", err))
		http.Error(w, "token upgrade failed", http.StatusBadGateway)
		return
	}
	pages, err := h.graph.ListPages(ctx, longTok.AccessToken)
	if err != nil {
		logger.Error("page listing failed", slog.Any("err", err))
		http.Error(w, "page listing failed", http.StatusBadGateway)
		return
	}
	if len(pages) == 0 {
		http.Error(w, "the connecting account administers no pages", http.StatusBadRequest)
		return
	}
	page := pages[0]

	if err := dbpkg.UpsertPageCredential(ctx, h.db, st.workspaceID, page.ID, page.AccessToken); err != nil {
		logger.Error("failed to store page credential", slog.Any("err", err))
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}
	if err := h.graph.SubscribeToFeed(ctx, page.ID, page.AccessToken); err != nil {
		// Publishing still works without the subscription; comments just won't
		// mirror until it succeeds.
		logger.Warn("feed subscription failed", slog.String("page", page.ID), slog.Any("err", err))
	}
	logger.Info("page connected", slog.String("page", page.ID), slog.String("page_name", page.Name))

	if st.channelID != "" {
		h.postWelcome(ctx, logger, st.workspaceID, st.channelID, page.Name)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"status": "ok", "page": page.Name}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}

// postWelcome announces the connection in the channel, with the configured
// welcome image when available.
func (h *Handlers) postWelcome(ctx context.Context, logger *slog.Logger, workspaceID, channelID, pageName string) {
	token, err := h.store.BotToken(ctx, workspaceID)
	if err != nil {
		logger.Warn("no bot token for welcome message", slog.Any("err", err))
		return
	}
	text := fmt.Sprintf("This channel is now connected to the %s Facebook page. Include %s in a message to publish it.", pageName, h.cfg.TriggerMarker)
	if h.cfg.WelcomeImagePath != "" {
		if data, err := os.ReadFile(h.cfg.WelcomeImagePath); err == nil {
			if err := h.slack.UploadFile(ctx, token, channelID, filepath.Base(h.cfg.WelcomeImagePath), text, data); err == nil {
				return
			} else {
				logger.Warn("welcome upload failed, falling back to text", slog.Any("err", err))
			}
		} else {
			logger.Warn("welcome image unreadable", slog.String("path", h.cfg.WelcomeImagePath), slog.Any("err", err))
		}
	}
	if err := h.slack.PostMessage(ctx, token, channelID, text); err != nil {
		logger.Warn("welcome message failed", slog.Any("err", err))
	}
}

// HandleUserConnectStart begins the optional user credential flow so posts can
// be attributed to the connecting person instead of the page.
func (h *Handlers) HandleUserConnectStart(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.ValidateFacebookReady(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	team := r.URL.Query().Get("team")
	user := r.URL.Query().Get("user")
	if team == "" || user == "" {
		http.Error(w, "missing team/user", http.StatusBadRequest)
		return
	}
	st, err := h.newState(team, "", user)
	if err != nil {
		http.Error(w, "state gen error", http.StatusInternalServerError)
		return
	}
	authURL, err := fbapi.LoginDialogURL(h.cfg.FBAppID, h.cfg.RedirectBase+"/auth/facebook/user/callback", userScopes, st)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, authURL, http.StatusFound)
}

// HandleUserConnectCallback stores the user-level credential after validating
// it with the app token. The stored credential starts in the allowed state and
// is demoted automatically when publishing rejects it.
func (h *Handlers) HandleUserConnectCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	stParam := r.URL.Query().Get("state")
	if code == "" || stParam == "" {
		http.Error(w, "missing code/state", http.StatusBadRequest)
		return
	}
	st, ok := h.takeOAuthState(stParam)
	if !ok {
		http.Error(w, "invalid state", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("workspace", st.workspaceID), slog.String("component", "oauth"))

	tok, err := h.graph.ExchangeCode(ctx, h.cfg.FBAppID, h.cfg.FBAppSecret, h.cfg.RedirectBase+"/auth/facebook/user/callback", code)
	if err != nil {
		logger.Error("code exchange failed", slog.Any("err", err))
		http.Error(w, "code exchange failed", http.StatusBadGateway)
		return
	}
	longTok, err := h.graph.ExchangeLongLived(ctx, h.cfg.FBAppID, h.cfg.FBAppSecret, tok.AccessToken)
	if err != nil {
		logger.Error("long-lived exchange failed", slog.Any("err", err))
		http.Error(w, "token upgrade failed", http.StatusBadGateway)
		return
	}
	info, err := h.graph.DebugToken(ctx, h.cfg.FBAppID, h.cfg.FBAppSecret, longTok.AccessToken)
	if err != nil {
		logger.Error("token inspection failed", slog.Any("err", err))
		http.Error(w, "token inspection failed", http.StatusBadGateway)
		return
	}
	if !info.IsValid {
		http.Error(w, "token reported invalid", http.StatusBadRequest)
		return
	}

	if err := dbpkg.UpsertUserCredential(ctx, h.db, st.workspaceID, st.userID, longTok.AccessToken, longTok.Expiry()); err != nil {
		logger.Error("failed to store user credential", slog.Any("err", err))
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}
	logger.Info("user credential connected", slog.String("user", st.userID))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]any{"status": "ok"}); err != nil {
		slog.Warn("failed to encode JSON response", slog.Any("err", err))
	}
}
