package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/onnwee/pagebridge/telemetry"
)

// UserTokenStatus tags the workspace's user-level credential.
type UserTokenStatus string

const (
	StatusUnset    UserTokenStatus = "unset"
	StatusAllowed  UserTokenStatus = "allowed"
	StatusRejected UserTokenStatus = "rejected"
	StatusExpired  UserTokenStatus = "expired"
)

// Credential is the bridge's view of a workspace's external authorization.
type Credential struct {
	WorkspaceID     string
	PageID          string
	PageAccessToken string
	UserID          string
	UserAccessToken string
	UserStatus      UserTokenStatus
}

// LinkRecord associates a chat thread root with the external post it produced.
type LinkRecord struct {
	ThreadRootID string
	ChannelID    string
	PostID       string
}

// Media is a fetched attachment ready for upload.
type Media struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Publisher performs publish/comment operations against the external API with
// a given credential. It surfaces raw API errors uninterpreted; classification
// is the orchestrator's job.
type Publisher interface {
	PublishText(ctx context.Context, pageID, accessToken, message string) (string, error)
	PublishWithMedia(ctx context.Context, pageID, accessToken, message string, media []Media) (string, error)
	Comment(ctx context.Context, accessToken, postID, message string, media *Media) (string, error)
}

// CredentialStore reads and mutates per-workspace credential state. A nil
// credential (with nil error) means the workspace has not connected a page —
// a valid state, distinct from a lookup failure.
type CredentialStore interface {
	Credential(ctx context.Context, workspaceID string) (*Credential, error)
	CredentialByPageID(ctx context.Context, pageID string) (*Credential, error)
	MarkUserStatus(ctx context.Context, workspaceID, userID string, status UserTokenStatus) error
}

// LinkStore persists the chat-thread-to-post mapping.
type LinkStore interface {
	RecordPublish(ctx context.Context, threadRootID, channelID, postID string) error
	FindByThreadRoot(ctx context.Context, threadRootID string) (*LinkRecord, error)
	FindByPostID(ctx context.Context, postID string) (*LinkRecord, error)
}

// SeenStore deduplicates webhook deliveries. MarkSeen returns true only for the
// first observation of a key.
type SeenStore interface {
	MarkSeen(ctx context.Context, key string) (bool, error)
}

// Notifier sends replies back into the chat workspace.
type Notifier interface {
	SendEphemeral(ctx context.Context, workspaceID, channelID, userID, text string) error
	SendThreadReply(ctx context.Context, workspaceID, channelID, threadRootID, text string) error
}

// MediaFetcher downloads an attachment's bytes from the chat platform.
type MediaFetcher interface {
	Fetch(ctx context.Context, workspaceID string, att Attachment) ([]byte, error)
}

// Service is the bidirectional event bridge: it turns classified chat events
// into external posts/comments and webhook notifications into thread replies.
type Service struct {
	Creds     CredentialStore
	Links     LinkStore
	Seen      SeenStore
	Publisher Publisher
	Notifier  Notifier
	Fetcher   MediaFetcher

	Classifier Classifier
	Codes      CodeSets
	ImageTypes []string
	// AttemptTimeout bounds each publish attempt; a deadline hit is classified
	// as transient and never retried.
	AttemptTimeout time.Duration
}

// Human-readable failure messages sent to the chat user. Raw API error payloads
// are never forwarded.
const (
	msgTokenInvalid = "I couldn't post this to Facebook because I don't have valid permission to post to the page. The person who connected this workspace should connect it again."
	msgTokenExpired = "I couldn't post this to Facebook because the access token has expired. The person who connected this workspace needs to reconnect it to refresh the token."
	msgDuplicate    = "I couldn't post this to Facebook because it was identical to the previous post. Try posting something different, or delete the previous post."
)

// HandleEvent classifies one inbound chat event and runs the matching flow.
// Failures are per-event: they are logged or reported to the user, never
// propagated as fatal.
func (s *Service) HandleEvent(ctx context.Context, ev InboundEvent) error {
	kind := s.Classifier.Classify(ev)
	logger := telemetry.LoggerWithCorr(ctx).With(
		slog.String("workspace", ev.WorkspaceID),
		slog.String("channel", ev.ChannelID),
		slog.String("kind", kind.String()),
		slog.String("component", "bridge"))
	switch kind {
	case KindTrigger:
		return s.publishTrigger(ctx, logger, ev)
	case KindThreadReply:
		return s.publishReply(ctx, logger, ev)
	default:
		return nil
	}
}

// publishTrigger runs the credential-fallback machine for a new post.
func (s *Service) publishTrigger(ctx context.Context, logger *slog.Logger, ev InboundEvent) error {
	cred, err := s.Creds.Credential(ctx, ev.WorkspaceID)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	if cred == nil || cred.PageID == "" || cred.PageAccessToken == "" {
		logger.Debug("workspace has no page credential, dropping trigger")
		return nil
	}

	text := NormalizeText(ev.Text)
	media, err := s.fetchImages(ctx, ev)
	if err != nil {
		// All-or-nothing: a failed attachment fetch fails the whole publish
		// before any external side effect.
		logger.Warn("attachment fetch failed, dropping trigger", slog.Any("err", err))
		return nil
	}

	state := Begin(cred.UserID != "" && cred.UserAccessToken != "" && cred.UserStatus == StatusAllowed)
	demotion := CategoryUnknown // set when the user tier failed and we fell back
	start := time.Now()
	for !state.Terminal() {
		token := cred.PageAccessToken
		if state == StateAttemptUser {
			token = cred.UserAccessToken
		}
		postID, attemptErr := s.attemptPublish(ctx, cred.PageID, token, text, media)
		if attemptErr == nil {
			s.finishPublish(ctx, logger, ev, cred, state, demotion, postID)
			telemetry.PublishDuration.Observe(time.Since(start).Seconds())
			return nil
		}
		cat := s.Codes.Classify(attemptErr)
		next := Next(state, cat, cred.PageAccessToken != "")
		logger.Warn("publish attempt failed",
			slog.String("state", state.String()),
			slog.String("category", cat.String()),
			slog.String("next", next.String()),
			slog.Any("err", attemptErr))
		if state == StateAttemptUser && next == StateAttemptPage {
			demotion = cat
			telemetry.FallbackAttempts.Inc()
			state = next
			continue
		}
		telemetry.PostsFailed.Inc()
		s.notifyFailure(ctx, logger, ev, cat)
		return nil
	}
	return nil
}

// finishPublish records the single link record and, when the success followed a
// user-tier auth failure, persists the demoted credential status.
func (s *Service) finishPublish(ctx context.Context, logger *slog.Logger, ev InboundEvent, cred *Credential, state AttemptState, demotion ErrorCategory, postID string) {
	if demotion != CategoryUnknown {
		status := StatusExpired
		if demotion == CategoryInvalid {
			status = StatusRejected
		}
		if err := s.Creds.MarkUserStatus(ctx, ev.WorkspaceID, cred.UserID, status); err != nil {
			logger.Warn("failed to persist demoted user credential status", slog.Any("err", err))
		} else {
			logger.Info("user credential demoted", slog.String("status", string(status)))
		}
	}
	if err := s.Links.RecordPublish(ctx, ev.MessageID, ev.ChannelID, postID); err != nil {
		logger.Error("failed to record link for published post", slog.String("post_id", postID), slog.Any("err", err))
	}
	telemetry.PostsPublished.WithLabelValues(state.String()).Inc()
	logger.Info("published post", slog.String("post_id", postID), slog.String("tier", state.String()))
}

// publishReply mirrors a thread reply as a comment on the linked post. Comments
// always use the page credential (attributed to the page); there is no fallback
// tier and no retry.
func (s *Service) publishReply(ctx context.Context, logger *slog.Logger, ev InboundEvent) error {
	link, err := s.Links.FindByThreadRoot(ctx, ev.ThreadRootID)
	if err != nil {
		return fmt.Errorf("find link: %w", err)
	}
	if link == nil {
		logger.Debug("thread not bridged, ignoring reply")
		return nil
	}
	cred, err := s.Creds.Credential(ctx, ev.WorkspaceID)
	if err != nil {
		return fmt.Errorf("load credential: %w", err)
	}
	if cred == nil || cred.PageAccessToken == "" {
		logger.Debug("workspace has no page credential, dropping reply")
		return nil
	}

	text := NormalizeText(ev.Text)
	// Comments carry at most one attachment; extras are dropped.
	media, err := s.fetchFirstImage(ctx, ev)
	if err != nil {
		logger.Warn("attachment fetch failed, dropping reply", slog.Any("err", err))
		return nil
	}

	actx, cancel := s.attemptContext(ctx)
	defer cancel()
	commentID, err := s.Publisher.Comment(actx, cred.PageAccessToken, link.PostID, text, media)
	if err != nil {
		cat := s.Codes.Classify(err)
		logger.Warn("comment publish failed", slog.String("category", cat.String()), slog.Any("err", err))
		telemetry.RepliesFailed.Inc()
		s.notifyFailure(ctx, logger, ev, cat)
		return nil
	}
	telemetry.RepliesPublished.Inc()
	logger.Info("published comment", slog.String("post_id", link.PostID), slog.String("comment_id", commentID))
	return nil
}

func (s *Service) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.AttemptTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *Service) attemptPublish(ctx context.Context, pageID, token, text string, media []Media) (string, error) {
	actx, cancel := s.attemptContext(ctx)
	defer cancel()
	if len(media) == 0 {
		return s.Publisher.PublishText(actx, pageID, token, text)
	}
	return s.Publisher.PublishWithMedia(actx, pageID, token, text, media)
}

// notifyFailure sends the human-readable ephemeral message for terminal
// auth/duplicate failures. Transient and unknown failures are logged only.
func (s *Service) notifyFailure(ctx context.Context, logger *slog.Logger, ev InboundEvent, cat ErrorCategory) {
	var msg string
	switch cat {
	case CategoryInvalid:
		msg = msgTokenInvalid
	case CategoryExpired:
		msg = msgTokenExpired
	case CategoryDuplicate:
		msg = msgDuplicate
	default:
		return
	}
	if err := s.Notifier.SendEphemeral(ctx, ev.WorkspaceID, ev.ChannelID, ev.AuthorID, msg); err != nil {
		logger.Warn("failed to send failure notice", slog.Any("err", err))
	}
}
