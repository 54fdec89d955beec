package deadletter

import "regexp"

var (
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phoneRe = regexp.MustCompile(`\+?1?[-.\s]?\(?[0-9]{3}\)?[-.\s]?[0-9]{3}[-.\s]?[0-9]{4}`)
)

// ScrubContact replaces emails with [EMAIL] and phone numbers with [PHONE].
// Prices and vendor names are kept so exported entries stay debuggable.
func ScrubContact(text string) string {
	text = emailRe.ReplaceAllString(text, "[EMAIL]")
	text = phoneRe.ReplaceAllString(text, "[PHONE]")
	return text
}

// redactEntry returns a copy safe to ship outside the process.
// Only string inputs are scrubbed; the store keeps the raw value for replay.
func redactEntry(e Entry) Entry {
	if s, ok := e.Input.(string); ok {
		e.Input = ScrubContact(s)
	}
	e.Error = ScrubContact(e.Error)
	return e
}

func redactEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, e := range entries {
		out[i] = redactEntry(e)
	}
	return out
}
