// Package oauth schedules background extension of long-lived user access
// tokens. Long-lived tokens expire after roughly sixty days; re-exchanging
// them before expiry keeps attributed posting working without asking the
// user to re-authorize.
package oauth

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/onnwee/pagebridge/db"
	"github.com/onnwee/pagebridge/fbapi"
)

// ExtendFunc re-exchanges a still-valid long-lived token for a fresh one and
// returns the new token with its absolute expiry.
type ExtendFunc func(ctx context.Context, token string) (string, time.Time, error)

// GraphExtender adapts the platform client's fb_exchange_token grant to an
// ExtendFunc.
func GraphExtender(graph *fbapi.Client, appID, appSecret string) ExtendFunc {
	return func(ctx context.Context, token string) (string, time.Time, error) {
		long, err := graph.ExchangeLongLived(ctx, appID, appSecret, token)
		if err != nil {
			return "", time.Time{}, err
		}
		return long.AccessToken, long.Expiry(), nil
	}
}

// StartUserTokenExtender launches a goroutine that periodically scans for
// allowed user credentials expiring within the window and re-exchanges their
// tokens. A token the platform refuses to extend is marked expired so the
// publish path stops attempting it and the owner is prompted to re-authorize.
//
// interval: how often to wake up and scan.
// window: extend when remaining lifetime <= window.
func StartUserTokenExtender(ctx context.Context, dbx *sql.DB, interval, window time.Duration, fn ExtendFunc) {
	if interval <= 0 {
		interval = time.Hour
	}
	if window <= 0 {
		window = 7 * 24 * time.Hour
	}
	// Randomize initial delay to spread load across instances.
	//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
	initialJitter := time.Duration(rand.Int63n(int64(interval / 2)))
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(initialJitter):
		}
		for {
			extendExpiring(ctx, dbx, window, fn)

			// Per-iteration jitter (±20% of interval) for scheduling diversity.
			jitterRange := int64(interval / 5)
			//nolint:gosec // G404: math/rand is sufficient for scheduling jitter, not used for security
			jitter := time.Duration(rand.Int63n(jitterRange*2) - jitterRange)
			nextSleep := interval + jitter
			if nextSleep < interval/2 {
				nextSleep = interval / 2
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(nextSleep):
			}
		}
	}()
}

func extendExpiring(ctx context.Context, dbx *sql.DB, window time.Duration, fn ExtendFunc) {
	creds, err := db.ListExpiringUserCredentials(ctx, dbx, time.Now().Add(window))
	if err != nil {
		slog.Warn("expiring credential scan failed", slog.Any("err", err))
		return
	}
	for _, cred := range creds {
		select {
		case <-ctx.Done():
			return
		default:
		}
		ctx2, cancel := context.WithTimeout(ctx, 15*time.Second)
		newToken, newExpiry, err := fn(ctx2, cred.UserAccessToken)
		cancel()
		if err != nil {
			var apiErr *fbapi.APIError
			if errors.As(err, &apiErr) && apiErr.Code == 190 {
				// Platform no longer honors the token. Demote so the publish
				// path falls back to the page tier until re-authorization.
				if markErr := db.MarkUserCredentialStatus(ctx, dbx, cred.WorkspaceID, cred.UserID, "expired"); markErr != nil {
					slog.Warn("credential demotion failed",
						slog.String("workspace_id", cred.WorkspaceID), slog.Any("err", markErr))
				} else {
					slog.Info("user token marked expired",
						slog.String("workspace_id", cred.WorkspaceID))
				}
				continue
			}
			slog.Warn("token extension failed",
				slog.String("workspace_id", cred.WorkspaceID), slog.Any("err", err))
			continue
		}
		if err := db.UpsertUserCredential(ctx, dbx, cred.WorkspaceID, cred.UserID, newToken, newExpiry); err != nil {
			slog.Warn("token persist failed",
				slog.String("workspace_id", cred.WorkspaceID), slog.Any("err", err))
			continue
		}
		slog.Info("user token extended",
			slog.String("workspace_id", cred.WorkspaceID),
			slog.Time("expires_at", newExpiry))
	}
}
