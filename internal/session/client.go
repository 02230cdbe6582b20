package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrLoggedOut reports a terminal logout: the session credentials were
// invalidated and re-authentication is required.
var ErrLoggedOut = errors.New("session logged out")

// ErrClosed reports an operation attempted through a superseded or dead
// session handle.
var ErrClosed = errors.New("session closed")

// Client is the session capability consumed by the gateway.
//
// Implementations own the transport and cryptography of the messaging
// network; the gateway only sees authenticated message objects. A Client
// instance is single-use: once its lifecycle reaches StateClosed it is
// discarded and a fresh instance is built by the connection supervisor.
type Client interface {
	// Connect establishes the session. Lifecycle events (including the
	// resulting Open or Closed state) are delivered on Lifecycle().
	Connect(ctx context.Context) error

	Lifecycle() <-chan LifecycleEvent
	Messages() <-chan RawMessage
	Memberships() <-chan MembershipEvent

	// CredentialUpdates emits credential blobs that MUST be persisted by
	// the consumer before they are considered acknowledged.
	CredentialUpdates() <-chan []byte

	GroupMetadata(ctx context.Context, chat JID) (GroupMetadata, error)
	AllGroups(ctx context.Context) ([]JID, error)

	Send(ctx context.Context, chat JID, msg Outgoing) error

	// Delete removes a message. Idempotent: deleting an already-deleted or
	// unknown message is not an error.
	Delete(ctx context.Context, chat JID, id MessageID, author JID) error

	// SelfJID is the session's own identity, used for self-echo suppression.
	SelfJID() JID

	Close() error
}

// Factory builds a fresh Client from externally supplied credentials.
// The connection supervisor calls it once per session generation.
type Factory func(ctx context.Context, creds []byte) (Client, error)

// ---- Driver registry ----
//
// Concrete transports register themselves at init time; the gateway binary
// selects one by config (session.driver). This keeps the transport out of
// the core while still letting cmd/gateway build a client by name.

var (
	driversMu sync.Mutex
	drivers   = map[string]Factory{}
)

func RegisterDriver(name string, f Factory) {
	driversMu.Lock()
	defer driversMu.Unlock()
	drivers[strings.ToLower(strings.TrimSpace(name))] = f
}

func DriverFactory(name string) (Factory, error) {
	driversMu.Lock()
	defer driversMu.Unlock()
	f, ok := drivers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		names := make([]string, 0, len(drivers))
		for n := range drivers {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unknown session driver %q (registered: %s)", name, strings.Join(names, ", "))
	}
	return f, nil
}
