package bridge

import (
	"strings"

	emojilib "github.com/enescakir/emoji"
)

// NormalizeText prepares chat message text for the external platform: emoji
// shortcodes become Unicode (":pizza:" renders as the actual slice) and
// surrounding whitespace is trimmed. Shortcodes with no Unicode mapping pass
// through unchanged.
func NormalizeText(text string) string {
	return strings.TrimSpace(emojilib.Parse(text))
}
