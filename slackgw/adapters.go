package slackgw

import (
	"context"
	"fmt"

	"github.com/onnwee/pagebridge/bridge"
)

// Notifier sends bridge messages through the Web API, resolving the bot token
// per workspace. Implements bridge.Notifier.
type Notifier struct {
	Client *Client
	Tokens TokenSource
}

func (n *Notifier) SendEphemeral(ctx context.Context, workspaceID, channelID, userID, text string) error {
	token, err := n.Tokens.BotToken(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("resolve bot token: %w", err)
	}
	return n.Client.PostEphemeral(ctx, token, channelID, userID, text)
}

func (n *Notifier) SendThreadReply(ctx context.Context, workspaceID, channelID, threadRootID, text string) error {
	token, err := n.Tokens.BotToken(ctx, workspaceID)
	if err != nil {
		return fmt.Errorf("resolve bot token: %w", err)
	}
	return n.Client.PostThreadReply(ctx, token, channelID, threadRootID, text)
}

// Fetcher downloads message attachments with the workspace's bot token.
// Implements bridge.MediaFetcher.
type Fetcher struct {
	Client *Client
	Tokens TokenSource
}

func (f *Fetcher) Fetch(ctx context.Context, workspaceID string, att bridge.Attachment) ([]byte, error) {
	token, err := f.Tokens.BotToken(ctx, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("resolve bot token: %w", err)
	}
	return f.Client.DownloadFile(ctx, token, att.URL)
}
