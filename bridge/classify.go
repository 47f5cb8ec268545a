package bridge

import "strings"

// Classifier decides what an inbound chat event becomes. It is pure decision
// logic with no side effects.
type Classifier struct {
	// TriggerMarker is the token that turns a top-level message into a post
	// (default ":pizza:").
	TriggerMarker string
}

// Classify applies the precedence rules:
//  1. Bot-authored events are always ignored, including bot replies inside
//     threads (prevents echo loops with our own mirrored comments).
//  2. Any message inside a thread is a thread reply. A trigger marker inside a
//     thread reply does NOT start a new post; thread membership wins.
//  3. A top-level message containing the trigger marker starts a post.
//  4. Everything else is ignored.
func (c Classifier) Classify(ev InboundEvent) EventKind {
	if ev.IsBot {
		return KindIgnore
	}
	if ev.ThreadRootID != "" {
		return KindThreadReply
	}
	marker := c.TriggerMarker
	if marker == "" {
		marker = ":pizza:"
	}
	if strings.Contains(ev.Text, marker) {
		return KindTrigger
	}
	return KindIgnore
}
