package fbapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultDialogURL is where users are sent to grant the app access.
const DefaultDialogURL = "https://www.facebook.com/v19.0/dialog/oauth"

// LoginDialogURL constructs the user authorization URL for the OAuth code grant.
func LoginDialogURL(appID, redirectURI, scopes, state string) (string, error) {
	if appID == "" || redirectURI == "" {
		return "", errors.New("missing appID or redirectURI")
	}
	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("client_id", appID)
	v.Set("redirect_uri", redirectURI)
	if scopes != "" {
		v.Set("scope", strings.TrimSpace(strings.ReplaceAll(scopes, " ", ",")))
	}
	if state != "" {
		v.Set("state", state)
	}
	return DefaultDialogURL + "?" + v.Encode(), nil
}

// oauthConfig builds the oauth2 config against this client's endpoint so tests
// can point the token URL at a local server.
func (c *Client) oauthConfig(appID, appSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     appID,
		ClientSecret: appSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   DefaultDialogURL,
			TokenURL:  c.base() + "/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// ExchangeCode trades an authorization code for a short-lived user access token.
func (c *Client) ExchangeCode(ctx context.Context, appID, appSecret, redirectURI, code string) (*oauth2.Token, error) {
	if appID == "" || appSecret == "" || code == "" || redirectURI == "" {
		return nil, errors.New("missing required parameter for code exchange")
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http())
	tok, err := c.oauthConfig(appID, appSecret, redirectURI).Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("code exchange: %w", err)
	}
	return tok, nil
}

// LongLivedToken holds the result of a fb_exchange_token grant.
type LongLivedToken struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Expiry returns the absolute expiry, defaulting to +60 days when the platform
// omits expires_in (long-lived page tokens often carry no expiry).
func (t *LongLivedToken) Expiry() time.Time {
	if t.ExpiresIn <= 0 {
		return time.Now().Add(60 * 24 * time.Hour)
	}
	return time.Now().Add(time.Duration(t.ExpiresIn) * time.Second)
}

// ExchangeLongLived trades a short-lived token for a long-lived one.
func (c *Client) ExchangeLongLived(ctx context.Context, appID, appSecret, shortToken string) (*LongLivedToken, error) {
	if appID == "" || appSecret == "" || shortToken == "" {
		return nil, errors.New("missing appID/appSecret/token")
	}
	q := url.Values{}
	q.Set("grant_type", "fb_exchange_token")
	q.Set("client_id", appID)
	q.Set("client_secret", appSecret)
	q.Set("fb_exchange_token", shortToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/oauth/access_token?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var res LongLivedToken
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// TokenInfo is the inspection result for a user or page access token.
type TokenInfo struct {
	UserID    string
	AppID     string
	IsValid   bool
	Scopes    []string
	ExpiresAt time.Time
}

// DebugToken inspects a token using the app token (appID|appSecret).
func (c *Client) DebugToken(ctx context.Context, appID, appSecret, inputToken string) (*TokenInfo, error) {
	if inputToken == "" {
		return nil, errors.New("input token empty")
	}
	q := url.Values{}
	q.Set("input_token", inputToken)
	q.Set("access_token", appID+"|"+appSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/debug_token?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Data struct {
			UserID    string   `json:"user_id"`
			AppID     string   `json:"app_id"`
			IsValid   bool     `json:"is_valid"`
			Scopes    []string `json:"scopes"`
			ExpiresAt int64    `json:"expires_at"`
		} `json:"data"`
	}
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	info := &TokenInfo{
		UserID:  res.Data.UserID,
		AppID:   res.Data.AppID,
		IsValid: res.Data.IsValid,
		Scopes:  res.Data.Scopes,
	}
	if res.Data.ExpiresAt > 0 {
		info.ExpiresAt = time.Unix(res.Data.ExpiresAt, 0)
	}
	return info, nil
}

// Page is one entry from the user's managed pages list.
type Page struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

// ListPages returns the pages the user administers, each with its page access
// token.
func (c *Client) ListPages(ctx context.Context, userAccessToken string) ([]Page, error) {
	if userAccessToken == "" {
		return nil, errors.New("user token empty")
	}
	q := url.Values{}
	q.Set("access_token", userAccessToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/me/accounts?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var res struct {
		Data []Page `json:"data"`
	}
	if err := c.do(req, &res); err != nil {
		return nil, err
	}
	return res.Data, nil
}
