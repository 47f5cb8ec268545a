package bridge

// Attachment describes a file attached to an inbound chat message. The bytes
// are fetched lazily (and concurrently) only when the message is published.
type Attachment struct {
	URL          string
	Name         string
	ByteSize     int64
	DeclaredType string // chat platform's file type tag, e.g. "jpeg"
}

// InboundEvent is a normalized chat message delivered by the platform gateway.
// It is transient: classified and acted on, never persisted.
type InboundEvent struct {
	WorkspaceID  string
	ChannelID    string
	ThreadRootID string // empty for top-level messages
	MessageID    string // becomes the thread root id once replies arrive
	AuthorID     string
	IsBot        bool
	Text         string
	Attachments  []Attachment
}

// EventKind is the classifier's verdict for an inbound event.
type EventKind int

const (
	// KindIgnore means the event produces no external side effect.
	KindIgnore EventKind = iota
	// KindTrigger means the event becomes a new external post.
	KindTrigger
	// KindThreadReply means the event becomes a comment on a linked post.
	KindThreadReply
)

func (k EventKind) String() string {
	switch k {
	case KindIgnore:
		return "ignore"
	case KindTrigger:
		return "trigger"
	case KindThreadReply:
		return "thread_reply"
	default:
		return "ignore"
	}
}
