package slackgw

import (
	"encoding/json"
	"testing"
)

func callback(t *testing.T, event map[string]any) *EventCallback {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"type":    "event_callback",
		"team_id": "T1",
		"event":   event,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	cb, err := DecodeCallback(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return cb
}

func TestToInboundEventPlainMessage(t *testing.T) {
	cb := callback(t, map[string]any{
		"type": "message", "channel": "C1", "user": "U1",
		"text": "hello :pizza:", "ts": "111.222",
	})
	ev, ok := ToInboundEvent(cb)
	if !ok {
		t.Fatal("expected message to convert")
	}
	if ev.WorkspaceID != "T1" || ev.ChannelID != "C1" || ev.MessageID != "111.222" {
		t.Fatalf("event = %+v", ev)
	}
	if ev.IsBot || ev.ThreadRootID != "" {
		t.Fatalf("event = %+v", ev)
	}
}

func TestToInboundEventThreadReply(t *testing.T) {
	cb := callback(t, map[string]any{
		"type": "message", "channel": "C1", "user": "U1",
		"text": "reply", "ts": "111.333", "thread_ts": "111.222",
	})
	ev, ok := ToInboundEvent(cb)
	if !ok || ev.ThreadRootID != "111.222" {
		t.Fatalf("event = %+v ok=%v", ev, ok)
	}
}

func TestToInboundEventThreadRootNotReply(t *testing.T) {
	// Slack sets thread_ts on the root message once replies exist; it must
	// still classify as a top-level message.
	cb := callback(t, map[string]any{
		"type": "message", "channel": "C1", "user": "U1",
		"text": "root", "ts": "111.222", "thread_ts": "111.222",
	})
	ev, ok := ToInboundEvent(cb)
	if !ok || ev.ThreadRootID != "" {
		t.Fatalf("root message misread as reply: %+v", ev)
	}
}

func TestToInboundEventBot(t *testing.T) {
	cb := callback(t, map[string]any{
		"type": "message", "channel": "C1", "bot_id": "B1",
		"text": "from a bot", "ts": "1.2",
	})
	ev, ok := ToInboundEvent(cb)
	if !ok || !ev.IsBot {
		t.Fatalf("event = %+v ok=%v", ev, ok)
	}
}

func TestToInboundEventFiles(t *testing.T) {
	cb := callback(t, map[string]any{
		"type": "message", "subtype": "file_share", "channel": "C1", "user": "U1",
		"text": "pics :pizza:", "ts": "1.2",
		"files": []map[string]any{
			{"name": "a.png", "filetype": "png", "size": 1024, "url_private": "https://files.slack.example/a"},
		},
	})
	ev, ok := ToInboundEvent(cb)
	if !ok || len(ev.Attachments) != 1 {
		t.Fatalf("event = %+v ok=%v", ev, ok)
	}
	att := ev.Attachments[0]
	if att.DeclaredType != "png" || att.URL != "https://files.slack.example/a" || att.ByteSize != 1024 {
		t.Fatalf("attachment = %+v", att)
	}
}

func TestToInboundEventSkipsEditsAndDeletes(t *testing.T) {
	for _, subtype := range []string{"message_changed", "message_deleted", "channel_join"} {
		cb := callback(t, map[string]any{
			"type": "message", "subtype": subtype, "channel": "C1", "ts": "1.2",
		})
		if _, ok := ToInboundEvent(cb); ok {
			t.Fatalf("subtype %q must not convert", subtype)
		}
	}
}

func TestToInboundEventNonMessage(t *testing.T) {
	cb := callback(t, map[string]any{"type": "reaction_added"})
	if _, ok := ToInboundEvent(cb); ok {
		t.Fatal("non-message events must not convert")
	}
}

func TestDecodeCallbackChallenge(t *testing.T) {
	cb, err := DecodeCallback([]byte(`{"type":"url_verification","challenge":"abc"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cb.Type != "url_verification" || cb.Challenge != "abc" {
		t.Fatalf("cb = %+v", cb)
	}
	if _, ok := ToInboundEvent(cb); ok {
		t.Fatal("verification callback must not convert")
	}
}
