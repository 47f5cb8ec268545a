package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/onnwee/pagebridge/bridge"
)

// Store adapts the database helpers to the bridge's store interfaces and the
// Slack gateway's token source. FallbackBotToken serves single-workspace
// deployments configured by environment instead of OAuth install.
type Store struct {
	DB               *sql.DB
	FallbackBotToken string
}

func toBridgeCredential(wc *WorkspaceCredential) *bridge.Credential {
	if wc == nil {
		return nil
	}
	return &bridge.Credential{
		WorkspaceID:     wc.WorkspaceID,
		PageID:          wc.PageID,
		PageAccessToken: wc.PageAccessToken,
		UserID:          wc.UserID,
		UserAccessToken: wc.UserAccessToken,
		UserStatus:      bridge.UserTokenStatus(wc.UserTokenStatus),
	}
}

func (s *Store) Credential(ctx context.Context, workspaceID string) (*bridge.Credential, error) {
	wc, err := GetWorkspaceCredential(ctx, s.DB, workspaceID)
	if err != nil {
		return nil, err
	}
	return toBridgeCredential(wc), nil
}

func (s *Store) CredentialByPageID(ctx context.Context, pageID string) (*bridge.Credential, error) {
	wc, err := GetCredentialByPageID(ctx, s.DB, pageID)
	if err != nil {
		return nil, err
	}
	return toBridgeCredential(wc), nil
}

func (s *Store) MarkUserStatus(ctx context.Context, workspaceID, userID string, status bridge.UserTokenStatus) error {
	return MarkUserCredentialStatus(ctx, s.DB, workspaceID, userID, string(status))
}

func (s *Store) RecordPublish(ctx context.Context, threadRootID, channelID, postID string) error {
	return RecordPublish(ctx, s.DB, threadRootID, channelID, postID)
}

func toBridgeLink(lr *LinkRecord) *bridge.LinkRecord {
	if lr == nil {
		return nil
	}
	return &bridge.LinkRecord{ThreadRootID: lr.ThreadRootID, ChannelID: lr.ChannelID, PostID: lr.PostID}
}

func (s *Store) FindByThreadRoot(ctx context.Context, threadRootID string) (*bridge.LinkRecord, error) {
	lr, err := FindLinkByThreadRoot(ctx, s.DB, threadRootID)
	if err != nil {
		return nil, err
	}
	return toBridgeLink(lr), nil
}

func (s *Store) FindByPostID(ctx context.Context, postID string) (*bridge.LinkRecord, error) {
	lr, err := FindLinkByPostID(ctx, s.DB, postID)
	if err != nil {
		return nil, err
	}
	return toBridgeLink(lr), nil
}

func (s *Store) MarkSeen(ctx context.Context, key string) (bool, error) {
	return MarkWebhookSeen(ctx, s.DB, key)
}

// BotToken resolves the workspace's stored bot token, falling back to the
// statically configured one. Implements the Slack gateway's TokenSource.
func (s *Store) BotToken(ctx context.Context, workspaceID string) (string, error) {
	wc, err := GetWorkspaceCredential(ctx, s.DB, workspaceID)
	if err != nil {
		return "", err
	}
	if wc != nil && wc.SlackBotToken != "" {
		return wc.SlackBotToken, nil
	}
	if s.FallbackBotToken != "" {
		return s.FallbackBotToken, nil
	}
	return "", fmt.Errorf("no bot token for workspace %s", workspaceID)
}
