// Package server exposes the HTTP API handlers.
package server

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/onnwee/pagebridge/bridge"
	"github.com/onnwee/pagebridge/config"
	"github.com/onnwee/pagebridge/db"
	"github.com/onnwee/pagebridge/fbapi"
	"github.com/onnwee/pagebridge/slackgw"
)

const (
	// Maximum number of OAuth states to keep in memory
	maxOAuthStates = 10000
)

// oauthState tracks one pending OAuth round trip. The workspace and channel
// come from the start request and are restored on callback.
type oauthState struct {
	workspaceID string
	channelID   string
	userID      string
	expiry      time.Time
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	db         *sql.DB
	ctx        context.Context
	cfg        *config.Config
	svc        *bridge.Service
	graph      *fbapi.Client
	slack      *slackgw.Client
	store      *db.Store
	stateStore map[string]oauthState
	stateMu    sync.RWMutex
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(ctx context.Context, database *sql.DB, cfg *config.Config, svc *bridge.Service, graph *fbapi.Client, slack *slackgw.Client, store *db.Store) *Handlers {
	return &Handlers{
		db:         database,
		ctx:        ctx,
		cfg:        cfg,
		svc:        svc,
		graph:      graph,
		slack:      slack,
		store:      store,
		stateStore: make(map[string]oauthState),
	}
}

// cleanExpiredStates removes expired OAuth states from the store.
// This should be called with stateMu locked.
func (h *Handlers) cleanExpiredStates() {
	now := time.Now()
	for state, st := range h.stateStore {
		if now.After(st.expiry) {
			delete(h.stateStore, state)
		}
	}
}

// addOAuthState adds a new OAuth state to the store with cleanup if needed.
func (h *Handlers) addOAuthState(state string, st oauthState) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	// Clean expired states periodically to prevent unbounded growth
	if len(h.stateStore)%100 == 0 {
		h.cleanExpiredStates()
	}

	// If we're still over the limit after cleanup, refuse to add more.
	// A failed OAuth flow beats memory exhaustion.
	if len(h.stateStore) >= maxOAuthStates {
		return
	}

	h.stateStore[state] = st
}

// takeOAuthState validates and consumes a state, returning false when unknown
// or expired.
func (h *Handlers) takeOAuthState(state string) (oauthState, bool) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	st, ok := h.stateStore[state]
	if !ok {
		return oauthState{}, false
	}
	delete(h.stateStore, state)
	if time.Now().After(st.expiry) {
		return oauthState{}, false
	}
	return st, true
}
