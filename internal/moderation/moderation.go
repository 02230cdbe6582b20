package moderation

import (
	"regexp"

	"wagate/internal/event"
	"wagate/internal/session"
)

// Verdict is the moderation decision for a single event.
type Verdict int

const (
	Allow Verdict = iota
	// Strip: delete the original message (and optionally warn the sender).
	// Strip never blocks relay forwarding; both proceed independently.
	Strip
)

func (v Verdict) String() string {
	if v == Strip {
		return "strip"
	}
	return "allow"
}

var urlPattern = regexp.MustCompile(`(?i)https?://\S+`)

// Evaluate applies the link-sharing restriction.
//
// Strip only when the event is group-originated, the text carries a URL, and
// the sender is provably not an admin. An empty admin set (metadata fetch
// failed or degraded) yields Allow: the rule fails open, never closed, on
// absent authorization data.
func Evaluate(ev event.Event, gc session.GroupMetadata) Verdict {
	if !ev.IsGroup {
		return Allow
	}
	if len(gc.Admins) == 0 {
		return Allow
	}
	if !urlPattern.MatchString(ev.Text) {
		return Allow
	}
	if gc.IsAdmin(ev.Sender) {
		return Allow
	}
	return Strip
}

// HasURL reports whether text matches the link pattern.
func HasURL(text string) bool { return urlPattern.MatchString(text) }
