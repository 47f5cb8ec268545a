package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/onnwee/pagebridge/telemetry"
)

// Notification is the decoded body of one webhook delivery. A single delivery
// batches changes for any number of pages.
type Notification struct {
	Object  string  `json:"object"`
	Entries []Entry `json:"entry"`
}

// Entry groups the changes for one page.
type Entry struct {
	PageID  string   `json:"id"`
	Time    int64    `json:"time"`
	Changes []Change `json:"changes"`
}

// Change is one feed activity item.
type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

// ChangeValue carries the activity detail. Only item=comment, verb=add is
// acted on; other shapes leave unused fields zero.
type ChangeValue struct {
	Item      string `json:"item"`
	Verb      string `json:"verb"`
	PostID    string `json:"post_id"`
	CommentID string `json:"comment_id"`
	Message   string `json:"message"`
	From      Actor  `json:"from"`
}

// Actor identifies who produced the activity.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// MirrorComments walks a webhook notification and posts each new third-party
// comment into its linked chat thread. Every change is processed independently:
// a failure on one never blocks the rest, and errors are logged, not returned,
// so the webhook endpoint can always acknowledge the delivery.
func (s *Service) MirrorComments(ctx context.Context, note Notification) {
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "bridge"))
	if note.Object != "page" {
		logger.Debug("ignoring webhook for non-page object", slog.String("object", note.Object))
		return
	}
	telemetry.WebhookBatches.Inc()
	for _, entry := range note.Entries {
		for _, change := range entry.Changes {
			s.mirrorComment(ctx, logger, entry.PageID, change)
		}
	}
}

func (s *Service) mirrorComment(ctx context.Context, logger *slog.Logger, pageID string, change Change) {
	v := change.Value
	if change.Field != "feed" || v.Item != "comment" || v.Verb != "add" {
		return
	}
	// The page's own comments come back through the webhook too; mirroring
	// them would echo our users' replies into their own thread. Post ids are
	// "<pageid>_<postid>", so the page is the actor whose id matches the
	// post's page prefix.
	if v.From.ID != "" && strings.HasPrefix(v.PostID, v.From.ID+"_") {
		logger.Debug("skipping page's own comment", slog.String("comment_id", v.CommentID))
		return
	}
	if v.CommentID == "" {
		return
	}
	// Sticker-only and media-only comments arrive with an empty message; there
	// is no text to mirror.
	if v.Message == "" {
		logger.Debug("skipping comment without text", slog.String("comment_id", v.CommentID))
		return
	}

	first, err := s.Seen.MarkSeen(ctx, v.CommentID)
	if err != nil {
		logger.Error("webhook dedup check failed", slog.String("comment_id", v.CommentID), slog.Any("err", err))
		return
	}
	if !first {
		logger.Debug("duplicate webhook delivery", slog.String("comment_id", v.CommentID))
		return
	}

	link, err := s.Links.FindByPostID(ctx, v.PostID)
	if err != nil {
		logger.Error("link lookup failed", slog.String("post_id", v.PostID), slog.Any("err", err))
		return
	}
	if link == nil {
		// Comment on a post this bridge never published (or published before
		// the link table existed). Nothing to mirror.
		logger.Debug("comment on unlinked post", slog.String("post_id", v.PostID))
		return
	}

	cred, err := s.Creds.CredentialByPageID(ctx, pageID)
	if err != nil || cred == nil {
		logger.Error("no workspace for page", slog.String("page_id", pageID), slog.Any("err", err))
		return
	}

	name := v.From.Name
	if name == "" {
		name = "someone"
	}
	text := fmt.Sprintf("comment from %s: %s", name, v.Message)
	if err := s.Notifier.SendThreadReply(ctx, cred.WorkspaceID, link.ChannelID, link.ThreadRootID, text); err != nil {
		logger.Error("failed to mirror comment into thread",
			slog.String("comment_id", v.CommentID),
			slog.String("thread", link.ThreadRootID),
			slog.Any("err", err))
		return
	}
	telemetry.CommentsMirrored.Inc()
	logger.Info("mirrored comment into thread",
		slog.String("comment_id", v.CommentID),
		slog.String("thread", link.ThreadRootID))
}
