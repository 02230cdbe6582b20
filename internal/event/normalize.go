package event

import (
	"context"

	"wagate/internal/session"
	logx "wagate/pkg/logx"
)

// Normalize converts a raw inbound payload into zero or one Event.
//
// Payloads with no body, and anything echoed from the session's own identity,
// produce nothing. Self-echo suppression is load-bearing: without it every
// reply the gateway sends would come back around as a fresh inbound event.
//
// Kind resolution order: sticker marker, then plain/extended text, then media
// caption. Payloads resolving to none of these are dropped.
func Normalize(raw session.RawMessage, self session.JID) (Event, bool) {
	if raw.FromMe || (!self.IsEmpty() && raw.Sender == self) {
		return Event{}, false
	}
	if !raw.HasBody {
		return Event{}, false
	}

	ev := Event{
		Origin:  raw.Chat,
		IsGroup: raw.Chat.IsGroup(),
		Sender:  raw.Sender,
		ID:      raw.ID,
	}
	if ev.Sender.IsEmpty() {
		// Individual chats carry no participant field; the chat is the sender.
		ev.Sender = raw.Chat
	}

	switch {
	case raw.HasSticker:
		ev.Kind = KindSticker
		ev.Text = raw.StickerText
	case raw.Conversation != "":
		ev.Kind = KindText
		ev.Text = raw.Conversation
	case raw.ExtendedText != "":
		ev.Kind = KindText
		ev.Text = raw.ExtendedText
	case raw.ImageCaption != "":
		ev.Kind = KindCaption
		ev.Text = raw.ImageCaption
		ev.Attachment = &AttachmentMeta{Media: "image"}
	case raw.VideoCaption != "":
		ev.Kind = KindCaption
		ev.Text = raw.VideoCaption
		ev.Attachment = &AttachmentMeta{Media: "video"}
	default:
		return Event{}, false
	}

	return ev, true
}

// NormalizeMembership converts a membership update into zero or one Event.
// Only joins are forwarded; pure departures produce nothing.
func NormalizeMembership(m session.MembershipEvent) (Event, bool) {
	if len(m.Joined) == 0 {
		return Event{}, false
	}
	return Event{
		Origin:  m.Chat,
		IsGroup: m.Chat.IsGroup(),
		Kind:    KindMembership,
		Joined:  append([]session.JID(nil), m.Joined...),
	}, true
}

// MetadataFetcher is the slice of the session client the normalizer needs.
type MetadataFetcher interface {
	GroupMetadata(ctx context.Context, chat session.JID) (session.GroupMetadata, error)
}

// FetchGroupContext resolves the group's participant/admin view on demand.
//
// Metadata is never cached across events. A failed fetch degrades to empty
// sets rather than aborting the event: "cannot prove the sender is a
// non-admin" must never become "delete confirmed-admin content".
func FetchGroupContext(ctx context.Context, f MetadataFetcher, ev Event, log logx.Logger) session.GroupMetadata {
	if !ev.IsGroup || f == nil {
		return session.GroupMetadata{}
	}
	md, err := f.GroupMetadata(ctx, ev.Origin)
	if err != nil {
		if !log.IsZero() {
			log.Warn("group metadata fetch failed; degrading to empty sets",
				logx.String("chat", ev.Origin.String()), logx.Err(err))
		}
		return session.GroupMetadata{}
	}
	return md
}
