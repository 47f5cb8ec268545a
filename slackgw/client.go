// Package slackgw is the Slack side of the bridge: a minimal Web API client,
// request signature verification, event decoding, and the adapters that plug
// Slack into the bridge service.
package slackgw

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
)

// DefaultBaseURL is the production Web API root.
const DefaultBaseURL = "https://slack.com/api"

// TokenSource resolves the bot token for a workspace. Implementations fall
// back to a static token for single-workspace deployments.
type TokenSource interface {
	BotToken(ctx context.Context, workspaceID string) (string, error)
}

// StaticTokenSource returns the same token for every workspace.
type StaticTokenSource string

func (s StaticTokenSource) BotToken(context.Context, string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("no bot token configured")
	}
	return string(s), nil
}

// APIError is a Web API failure ("ok": false) with the platform's error tag.
type APIError struct {
	Method string
	Reason string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("slack %s failed: %s", e.Method, e.Reason)
}

// Client talks to the Slack Web API. The zero value uses the production
// endpoint and http.DefaultClient.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

func (c *Client) http() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return DefaultBaseURL
}

// callJSON posts a JSON body to a Web API method and decodes the "ok" envelope.
func (c *Client) callJSON(ctx context.Context, token, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return fmt.Errorf("slack %s: decode: %w", method, err)
	}
	if !envelope.OK {
		return &APIError{Method: method, Reason: envelope.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// PostEphemeral shows a message only to one user in a channel.
func (c *Client) PostEphemeral(ctx context.Context, token, channelID, userID, text string) error {
	payload := map[string]string{"channel": channelID, "user": userID, "text": text}
	return c.callJSON(ctx, token, "chat.postEphemeral", payload, nil)
}

// PostThreadReply posts a message into an existing thread.
func (c *Client) PostThreadReply(ctx context.Context, token, channelID, threadTS, text string) error {
	payload := map[string]string{"channel": channelID, "thread_ts": threadTS, "text": text}
	return c.callJSON(ctx, token, "chat.postMessage", payload, nil)
}

// PostMessage posts a top-level channel message.
func (c *Client) PostMessage(ctx context.Context, token, channelID, text string) error {
	payload := map[string]string{"channel": channelID, "text": text}
	return c.callJSON(ctx, token, "chat.postMessage", payload, nil)
}

// UploadFile uploads a file to a channel with an optional comment. Used for
// the welcome image after a page is connected.
func (c *Client) UploadFile(ctx context.Context, token, channelID, filename, comment string, data []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("channels", channelID); err != nil {
		return err
	}
	if comment != "" {
		if err := w.WriteField("initial_comment", comment); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+"/files.upload", &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	var envelope struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("slack files.upload: decode: %w", err)
	}
	if !envelope.OK {
		return &APIError{Method: "files.upload", Reason: envelope.Error}
	}
	return nil
}

// DownloadFile fetches a private file's bytes. Slack's url_private requires
// the bot token as a bearer credential.
func (c *Client) DownloadFile(ctx context.Context, token, fileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := c.http().Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download failed: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
