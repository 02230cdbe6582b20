package moderation

import (
	"strings"

	"wagate/internal/config"
	"wagate/internal/event"
	"wagate/internal/session"
)

// CannedReply is the local answer produced by a keyword override.
type CannedReply struct {
	Text     string
	Mentions []session.JID
}

type keywordRule struct {
	match     string // lowercased
	reply     string
	mentions  []session.JID
	groupOnly bool
}

// Overrides is the literal-text override layer evaluated before the policy
// relay. A hit short-circuits forwarding for that event; it does not replace
// the relay for anything else.
type Overrides struct {
	rules []keywordRule
}

func NewOverrides(rules []config.KeywordRule) *Overrides {
	o := &Overrides{}
	for _, r := range rules {
		m := strings.ToLower(strings.TrimSpace(r.Match))
		if m == "" || r.Reply == "" {
			continue
		}
		kr := keywordRule{match: m, reply: r.Reply, groupOnly: r.GroupOnly}
		for _, j := range r.Mentions {
			kr.mentions = append(kr.mentions, session.JID(j))
		}
		o.rules = append(o.rules, kr)
	}
	return o
}

func (o *Overrides) Len() int {
	if o == nil {
		return 0
	}
	return len(o.rules)
}

// Match returns the first matching rule's canned reply.
// Matching is case-insensitive substring, in rule order.
func (o *Overrides) Match(ev event.Event) (CannedReply, bool) {
	if o == nil || ev.Text == "" {
		return CannedReply{}, false
	}
	text := strings.ToLower(ev.Text)
	for _, r := range o.rules {
		if r.groupOnly && !ev.IsGroup {
			continue
		}
		if strings.Contains(text, r.match) {
			return CannedReply{Text: r.reply, Mentions: append([]session.JID(nil), r.mentions...)}, true
		}
	}
	return CannedReply{}, false
}
