package event

import "wagate/internal/session"

// Kind classifies a normalized inbound event.
type Kind string

const (
	KindText       Kind = "text"
	KindCaption    Kind = "caption"
	KindSticker    Kind = "sticker"
	KindMembership Kind = "membership"
)

// AttachmentMeta describes the media a caption rode in on.
type AttachmentMeta struct {
	Media string // "image" or "video"
}

// Event is the canonical inbound record produced by the normalizer.
// Immutable once constructed; one instance per inbound occurrence.
type Event struct {
	Origin  session.JID
	IsGroup bool
	Sender  session.JID
	Kind    Kind
	Text    string

	// ID is the originating message id, needed for moderation deletes.
	// Empty for membership events.
	ID session.MessageID

	// Joined is set only for membership events.
	Joined []session.JID

	Attachment *AttachmentMeta
}
