package session

import "strings"

// JID identifies a conversation or participant on the messaging network.
//
// Group chats carry the reserved group suffix; individual chats use the
// user suffix. The suffix is the only structural distinction the gateway
// relies on.
type JID string

const (
	// GroupSuffix marks group-type chat identifiers.
	GroupSuffix = "@g.us"
	// UserSuffix marks individual-user identifiers.
	UserSuffix = "@s.whatsapp.net"
)

func (j JID) IsGroup() bool { return strings.HasSuffix(string(j), GroupSuffix) }
func (j JID) IsEmpty() bool { return j == "" }
func (j JID) String() string { return string(j) }

// MessageID identifies a message within a chat.
type MessageID string

// ConnState is the connection lifecycle state reported by the client.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseReason qualifies a StateClosed lifecycle event.
type CloseReason int

const (
	ReasonNone CloseReason = iota
	// ReasonLoggedOut is terminal: credentials were invalidated server-side
	// and reconnecting is pointless until re-authentication.
	ReasonLoggedOut
	ReasonConnectionLost
	ReasonReplaced
	ReasonRestartRequired
)

func (r CloseReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonLoggedOut:
		return "logged-out"
	case ReasonConnectionLost:
		return "connection-lost"
	case ReasonReplaced:
		return "replaced"
	case ReasonRestartRequired:
		return "restart-required"
	default:
		return "unknown"
	}
}

// LifecycleEvent is emitted by the client whenever the connection state changes.
// QR, when non-empty, is a pairing payload the operator must scan to
// re-authenticate; the gateway only surfaces it.
type LifecycleEvent struct {
	State  ConnState
	Reason CloseReason
	QR     string
}

// RawMessage mirrors the heterogeneous inbound message shapes of the network.
// Exactly one of the body fields is usually set; the normalizer resolves which.
type RawMessage struct {
	Chat   JID
	Sender JID
	ID     MessageID
	FromMe bool

	// HasBody is false for protocol-level stubs (receipts, reactions to
	// deleted content, ...) that carry no message payload at all.
	HasBody bool

	Conversation string
	ExtendedText string
	ImageCaption string
	VideoCaption string

	HasSticker  bool
	StickerText string
}

// MembershipEvent reports participants joining or leaving a group.
type MembershipEvent struct {
	Chat   JID
	Joined []JID
	Left   []JID
}

// GroupMetadata is the point-in-time participant/admin view of a group.
// It is fetched on demand per event and never cached across events.
type GroupMetadata struct {
	Participants []JID
	Admins       []JID
}

func (g GroupMetadata) IsAdmin(j JID) bool {
	for _, a := range g.Admins {
		if a == j {
			return true
		}
	}
	return false
}

// Outgoing is a text message to publish, with optional participant mentions.
type Outgoing struct {
	Text     string
	Mentions []JID
}
