package slackgw

import (
	"encoding/json"

	"github.com/onnwee/pagebridge/bridge"
)

// EventCallback is the outer envelope of an Events API delivery.
type EventCallback struct {
	Type      string          `json:"type"`
	Token     string          `json:"token"`
	TeamID    string          `json:"team_id"`
	Challenge string          `json:"challenge"`
	Event     json.RawMessage `json:"event"`
}

// MessageEvent is the inner "message" event payload.
type MessageEvent struct {
	Type     string `json:"type"`
	Subtype  string `json:"subtype"`
	Channel  string `json:"channel"`
	User     string `json:"user"`
	BotID    string `json:"bot_id"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
	Files    []File `json:"files"`
}

// File is a message attachment descriptor.
type File struct {
	Name       string `json:"name"`
	Filetype   string `json:"filetype"`
	Size       int64  `json:"size"`
	URLPrivate string `json:"url_private"`
}

// DecodeCallback parses a raw Events API request body.
func DecodeCallback(body []byte) (*EventCallback, error) {
	var cb EventCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, err
	}
	return &cb, nil
}

// ToInboundEvent converts an event callback into the bridge's normalized
// event. Returns false for anything that is not a plain or file-carrying
// message (edits, deletions, joins and the like have subtypes of their own
// and produce no bridge activity).
func ToInboundEvent(cb *EventCallback) (bridge.InboundEvent, bool) {
	if cb.Type != "event_callback" || len(cb.Event) == 0 {
		return bridge.InboundEvent{}, false
	}
	var msg MessageEvent
	if err := json.Unmarshal(cb.Event, &msg); err != nil {
		return bridge.InboundEvent{}, false
	}
	if msg.Type != "message" {
		return bridge.InboundEvent{}, false
	}
	switch msg.Subtype {
	case "", "file_share", "bot_message":
	default:
		return bridge.InboundEvent{}, false
	}
	ev := bridge.InboundEvent{
		WorkspaceID:  cb.TeamID,
		ChannelID:    msg.Channel,
		ThreadRootID: msg.ThreadTS,
		MessageID:    msg.TS,
		AuthorID:     msg.User,
		IsBot:        msg.BotID != "" || msg.Subtype == "bot_message",
		Text:         msg.Text,
	}
	// A message whose thread_ts equals its own ts is the thread root itself,
	// not a reply.
	if msg.ThreadTS == msg.TS {
		ev.ThreadRootID = ""
	}
	for _, f := range msg.Files {
		ev.Attachments = append(ev.Attachments, bridge.Attachment{
			URL:          f.URLPrivate,
			Name:         f.Name,
			ByteSize:     f.Size,
			DeclaredType: f.Filetype,
		})
	}
	return ev, true
}
