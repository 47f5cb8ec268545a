package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// MockGraphServer is a test server that mocks Facebook Graph API responses.
type MockGraphServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
}

// NewMockGraphServer creates a new mock Graph API server. Unregistered paths
// return 404.
func NewMockGraphServer(t *testing.T) *MockGraphServer {
	t.Helper()
	m := &MockGraphServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockFeedResponse answers a page feed publish with the given post id.
func (m *MockGraphServer) MockFeedResponse(pageID, postID string) {
	m.Handlers["/"+pageID+"/feed"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": postID}) //nolint:errcheck // test mock response
	}
}

// MockFeedError answers a page feed publish with a Graph error envelope.
func (m *MockGraphServer) MockFeedError(pageID string, httpStatus, code int, message string) {
	m.Handlers["/"+pageID+"/feed"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"error": map[string]any{"message": message, "type": "OAuthException", "code": code},
		})
	}
}

// MockCommentResponse answers a comment publish with the given comment id.
func (m *MockGraphServer) MockCommentResponse(postID, commentID string) {
	m.Handlers["/"+postID+"/comments"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": commentID}) //nolint:errcheck // test mock response
	}
}

// MockTokenExchange answers the OAuth code exchange endpoint.
func (m *MockGraphServer) MockTokenExchange(accessToken string, expiresIn int) {
	m.Handlers["/oauth/access_token"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	}
}

// MockDebugToken answers /debug_token for the given user.
func (m *MockGraphServer) MockDebugToken(userID string, valid bool, scopes []string) {
	m.Handlers["/debug_token"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{ //nolint:errcheck // test mock response
			"data": map[string]any{"user_id": userID, "is_valid": valid, "scopes": scopes},
		})
	}
}

// MockPagesList answers /me/accounts with the given pages.
func (m *MockGraphServer) MockPagesList(pages []map[string]string) {
	m.Handlers["/me/accounts"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": pages}) //nolint:errcheck // test mock response
	}
}

// MockSubscribe answers the webhook subscription endpoint.
func (m *MockGraphServer) MockSubscribe(pageID string, success bool) {
	m.Handlers["/"+pageID+"/subscribed_apps"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": success}) //nolint:errcheck // test mock response
	}
}

// MockSlackServer is a test server that mocks Slack Web API responses and
// records the calls it receives.
type MockSlackServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
	Calls    []string
}

// NewMockSlackServer creates a new mock Slack Web API server. Unregistered
// methods answer ok:true so incidental notifications don't fail tests.
func NewMockSlackServer(t *testing.T) *MockSlackServer {
	t.Helper()
	m := &MockSlackServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Calls = append(m.Calls, r.URL.Path)
		if handler, ok := m.Handlers[r.URL.Path]; ok {
			handler(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true}) //nolint:errcheck // test mock response
	}))
	t.Cleanup(m.Close)
	return m
}

// MockMethodError makes a Web API method answer ok:false with the given error
// tag.
func (m *MockSlackServer) MockMethodError(method, reason string) {
	m.Handlers["/"+method] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": reason}) //nolint:errcheck // test mock response
	}
}
