package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// WorkspaceCredential is one workspace's connection to the external page:
// the page-level access token plus, optionally, an individual user's token
// used for attributed posting. At most one row exists per workspace.
// Rows are never hard-deleted; re-authorization overwrites token state.
// Each token column carries its own encryption version: the three tokens are
// upserted independently, so a row can legitimately hold a plaintext token
// written before ENCRYPTION_KEY was set next to an encrypted one written
// after.
type WorkspaceCredential struct {
	WorkspaceID        string
	PageID             string
	PageAccessToken    string
	SlackBotToken      string
	UserID             string
	UserAccessToken    string
	UserTokenStatus    string // unset | allowed | rejected | expired
	UserTokenExpiresAt time.Time
	UpdatedAt          time.Time
}

// UpsertPageCredential stores or replaces the page-level credential for a workspace.
// Creates the row on first authorization; subsequent re-authorizations overwrite the token.
func UpsertPageCredential(ctx context.Context, dbx *sql.DB, workspaceID, pageID, pageToken string) error {
	stored, encVersion, err := encryptToken(pageToken)
	if err != nil {
		return err
	}
	q := `INSERT INTO workspace_credentials (workspace_id, page_id, page_access_token, page_token_version, updated_at)
		  VALUES ($1,$2,$3,$4,NOW())
		  ON CONFLICT(workspace_id) DO UPDATE SET
		    page_id=EXCLUDED.page_id,
		    page_access_token=EXCLUDED.page_access_token,
		    page_token_version=EXCLUDED.page_token_version,
		    updated_at=NOW()`
	_, err = dbx.ExecContext(ctx, q, workspaceID, pageID, stored, encVersion)
	return err
}

// UpsertUserCredential stores or replaces a workspace's user-level credential and
// resets its status to allowed (re-authorization clears expired/rejected).
func UpsertUserCredential(ctx context.Context, dbx *sql.DB, workspaceID, userID, token string, expiresAt time.Time) error {
	stored, encVersion, err := encryptToken(token)
	if err != nil {
		return err
	}
	q := `INSERT INTO workspace_credentials (workspace_id, user_id, user_access_token, user_token_status, user_token_expires_at, user_token_version, updated_at)
		  VALUES ($1,$2,$3,'allowed',$4,$5,NOW())
		  ON CONFLICT(workspace_id) DO UPDATE SET
		    user_id=EXCLUDED.user_id,
		    user_access_token=EXCLUDED.user_access_token,
		    user_token_status='allowed',
		    user_token_expires_at=EXCLUDED.user_token_expires_at,
		    user_token_version=EXCLUDED.user_token_version,
		    updated_at=NOW()`
	_, err = dbx.ExecContext(ctx, q, workspaceID, userID, stored, nullableTime(expiresAt), encVersion)
	return err
}

// UpsertSlackBotToken stores the chat bot token used to reply into the workspace.
func UpsertSlackBotToken(ctx context.Context, dbx *sql.DB, workspaceID, botToken string) error {
	stored, encVersion, err := encryptToken(botToken)
	if err != nil {
		return err
	}
	q := `INSERT INTO workspace_credentials (workspace_id, slack_bot_token, bot_token_version, updated_at)
		  VALUES ($1,$2,$3,NOW())
		  ON CONFLICT(workspace_id) DO UPDATE SET
		    slack_bot_token=EXCLUDED.slack_bot_token,
		    bot_token_version=EXCLUDED.bot_token_version,
		    updated_at=NOW()`
	_, err = dbx.ExecContext(ctx, q, workspaceID, stored, encVersion)
	return err
}

// MarkUserCredentialStatus updates the user token status for a workspace's user
// credential. Used by the publish orchestrator to demote tokens it has observed
// failing with an auth-class error, and by re-authorization to restore them.
func MarkUserCredentialStatus(ctx context.Context, dbx *sql.DB, workspaceID, userID, status string) error {
	switch status {
	case "unset", "allowed", "rejected", "expired":
	default:
		return fmt.Errorf("invalid user token status %q", status)
	}
	_, err := dbx.ExecContext(ctx,
		`UPDATE workspace_credentials SET user_token_status=$1, updated_at=NOW() WHERE workspace_id=$2 AND user_id=$3`,
		status, workspaceID, userID)
	return err
}

// GetWorkspaceCredential returns the credential row for a workspace, or nil when
// no row exists. Absence is a valid state (workspace not yet connected), distinct
// from a query error.
func GetWorkspaceCredential(ctx context.Context, dbx *sql.DB, workspaceID string) (*WorkspaceCredential, error) {
	return scanCredential(dbx.QueryRowContext(ctx, credentialQuery+` WHERE workspace_id=$1`, workspaceID))
}

// GetCredentialByPageID resolves the workspace connected to a given external page.
// Used by webhook ingestion, where only the page id is known.
func GetCredentialByPageID(ctx context.Context, dbx *sql.DB, pageID string) (*WorkspaceCredential, error) {
	return scanCredential(dbx.QueryRowContext(ctx, credentialQuery+` WHERE page_id=$1`, pageID))
}

const credentialQuery = `SELECT workspace_id, COALESCE(page_id,''), COALESCE(page_access_token,''),
	COALESCE(slack_bot_token,''), COALESCE(user_id,''), COALESCE(user_access_token,''),
	user_token_status, COALESCE(user_token_expires_at, 'epoch'::timestamptz),
	COALESCE(page_token_version,0), COALESCE(user_token_version,0), COALESCE(bot_token_version,0),
	COALESCE(updated_at, created_at)
	FROM workspace_credentials`

// ListExpiringUserCredentials returns workspaces whose allowed user token
// expires before the cutoff. Used by the background token extender.
func ListExpiringUserCredentials(ctx context.Context, dbx *sql.DB, cutoff time.Time) ([]WorkspaceCredential, error) {
	rows, err := dbx.QueryContext(ctx, credentialQuery+
		` WHERE user_token_status='allowed' AND COALESCE(user_access_token,'') <> '' AND user_token_expires_at <= $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WorkspaceCredential
	for rows.Next() {
		c, err := decodeCredential(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredential(row *sql.Row) (*WorkspaceCredential, error) {
	c, err := decodeCredential(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func decodeCredential(row rowScanner) (*WorkspaceCredential, error) {
	var c WorkspaceCredential
	var pageVersion, userVersion, botVersion int
	err := row.Scan(&c.WorkspaceID, &c.PageID, &c.PageAccessToken, &c.SlackBotToken,
		&c.UserID, &c.UserAccessToken, &c.UserTokenStatus, &c.UserTokenExpiresAt,
		&pageVersion, &userVersion, &botVersion, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if c.PageAccessToken, err = decryptToken(c.PageAccessToken, pageVersion); err != nil {
		return nil, fmt.Errorf("decrypt page token: %w", err)
	}
	if c.UserAccessToken, err = decryptToken(c.UserAccessToken, userVersion); err != nil {
		return nil, fmt.Errorf("decrypt user token: %w", err)
	}
	if c.SlackBotToken, err = decryptToken(c.SlackBotToken, botVersion); err != nil {
		return nil, fmt.Errorf("decrypt bot token: %w", err)
	}
	return &c, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
