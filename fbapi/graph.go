// Package fbapi contains minimal helpers to interact with the Facebook Graph
// API for page publishing, commenting, and token management.
package fbapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/sync/errgroup"
)

// DefaultBaseURL is the production Graph API root including version.
const DefaultBaseURL = "https://graph.facebook.com/v19.0"

// APIError is the decoded Graph error envelope. Code carries the platform's
// numeric error (190 expired token, 506 duplicate post, ...).
type APIError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error (code=%d subcode=%d http=%d): %s", e.Code, e.Subcode, e.HTTPStatus, e.Message)
}

// Media is a file payload for photo uploads.
type Media struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Client talks to the Graph API. The zero value uses the production endpoint
// and http.DefaultClient.
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

// do executes the request and decodes the response into out (if non-nil).
// Error envelopes are returned as *APIError regardless of HTTP status, so
// callers can match on the platform code.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http().Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		envelope.Error.HTTPStatus = resp.StatusCode
		return envelope.Error
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Message: strings.TrimSpace(string(body)), HTTPStatus: resp.StatusCode}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) postMultipart(ctx context.Context, path string, fields map[string]string, m *Media, out any) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return err
		}
	}
	if m != nil {
		part, err := w.CreateFormFile("source", m.Filename)
		if err != nil {
			return err
		}
		if _, err := part.Write(m.Data); err != nil {
			return err
		}
	}
	if err := w.Close(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return c.do(req, out)
}

// PublishText creates a text-only post on the page feed and returns the post id.
func (c *Client) PublishText(ctx context.Context, pageID, accessToken, message string) (string, error) {
	if pageID == "" || accessToken == "" {
		return "", fmt.Errorf("pageID or accessToken empty")
	}
	form := url.Values{}
	form.Set("message", message)
	form.Set("access_token", accessToken)
	var res struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, "/"+pageID+"/feed", form, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

type photoResult struct {
	ID     string `json:"id"`
	PostID string `json:"post_id"`
}

// uploadPhoto pushes one image to the page. Published uploads create a visible
// photo post; unpublished uploads return a media id for later attachment.
func (c *Client) uploadPhoto(ctx context.Context, pageID, accessToken, caption string, m Media, published bool) (photoResult, error) {
	fields := map[string]string{
		"access_token": accessToken,
		"published":    "false",
	}
	if published {
		fields["published"] = "true"
		fields["caption"] = caption
	}
	var res photoResult
	err := c.postMultipart(ctx, "/"+pageID+"/photos", fields, &m, &res)
	return res, err
}

// PublishWithMedia posts the message with one or more images. A single image
// becomes a captioned photo post. Several images are uploaded unpublished
// (concurrently) and attached to one feed post so they render as a gallery.
func (c *Client) PublishWithMedia(ctx context.Context, pageID, accessToken, message string, media []Media) (string, error) {
	if pageID == "" || accessToken == "" {
		return "", fmt.Errorf("pageID or accessToken empty")
	}
	if len(media) == 0 {
		return c.PublishText(ctx, pageID, accessToken, message)
	}
	if len(media) == 1 {
		res, err := c.uploadPhoto(ctx, pageID, accessToken, message, media[0], true)
		if err != nil {
			return "", err
		}
		if res.PostID != "" {
			return res.PostID, nil
		}
		return res.ID, nil
	}

	ids := make([]string, len(media))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range media {
		g.Go(func() error {
			res, err := c.uploadPhoto(gctx, pageID, accessToken, "", m, false)
			if err != nil {
				return err
			}
			ids[i] = res.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	form := url.Values{}
	form.Set("message", message)
	form.Set("access_token", accessToken)
	for i, id := range ids {
		form.Set(fmt.Sprintf("attached_media[%d]", i), fmt.Sprintf(`{"media_fbid":%q}`, id))
	}
	var res struct {
		ID string `json:"id"`
	}
	if err := c.postForm(ctx, "/"+pageID+"/feed", form, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

// Comment adds a comment to a post, optionally with one image, and returns the
// comment id.
func (c *Client) Comment(ctx context.Context, accessToken, postID, message string, m *Media) (string, error) {
	if postID == "" || accessToken == "" {
		return "", fmt.Errorf("postID or accessToken empty")
	}
	var res struct {
		ID string `json:"id"`
	}
	if m == nil {
		form := url.Values{}
		form.Set("message", message)
		form.Set("access_token", accessToken)
		if err := c.postForm(ctx, "/"+postID+"/comments", form, &res); err != nil {
			return "", err
		}
		return res.ID, nil
	}
	fields := map[string]string{
		"message":      message,
		"access_token": accessToken,
	}
	if err := c.postMultipart(ctx, "/"+postID+"/comments", fields, m, &res); err != nil {
		return "", err
	}
	return res.ID, nil
}

// SubscribeToFeed subscribes the app to the page's feed webhook field so
// comment activity is delivered.
func (c *Client) SubscribeToFeed(ctx context.Context, pageID, pageAccessToken string) error {
	form := url.Values{}
	form.Set("subscribed_fields", "feed")
	form.Set("access_token", pageAccessToken)
	var res struct {
		Success bool `json:"success"`
	}
	if err := c.postForm(ctx, "/"+pageID+"/subscribed_apps", form, &res); err != nil {
		return err
	}
	if !res.Success {
		return fmt.Errorf("subscribe not confirmed for page %s", pageID)
	}
	return nil
}
