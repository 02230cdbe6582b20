// Package sessiontest provides a scriptable in-memory session client for
// tests.
package sessiontest

import (
	"context"
	"sync"
	"sync/atomic"

	"wagate/internal/session"
)

type SendCall struct {
	Chat session.JID
	Msg  session.Outgoing
}

type DeleteCall struct {
	Chat   session.JID
	ID     session.MessageID
	Author session.JID
}

// Fake implements session.Client. Tests feed events through the exported
// channels and inspect recorded sends/deletes afterwards.
type Fake struct {
	Self session.JID

	LifecycleCh   chan session.LifecycleEvent
	MessagesCh    chan session.RawMessage
	MembershipsCh chan session.MembershipEvent
	CredsCh       chan []byte

	ConnectErr  error
	Groups      []session.JID
	GroupsErr   error
	Metadata    map[session.JID]session.GroupMetadata
	MetadataErr error

	// SendErr, when set, decides per-destination send failures.
	SendErr func(chat session.JID) error

	mu      sync.Mutex
	sends   []SendCall
	deletes []DeleteCall
	closed  bool
}

func New() *Fake {
	return &Fake{
		LifecycleCh:   make(chan session.LifecycleEvent, 16),
		MessagesCh:    make(chan session.RawMessage, 16),
		MembershipsCh: make(chan session.MembershipEvent, 16),
		CredsCh:       make(chan []byte, 16),
		Metadata:      map[session.JID]session.GroupMetadata{},
	}
}

// Handle wraps the fake in a live generation-tagged handle.
func Handle(f *Fake) *session.Handle {
	var live atomic.Uint64
	live.Store(1)
	return session.NewHandle(f, 1, &live)
}

func (f *Fake) Connect(ctx context.Context) error { return f.ConnectErr }

func (f *Fake) Lifecycle() <-chan session.LifecycleEvent { return f.LifecycleCh }
func (f *Fake) Messages() <-chan session.RawMessage { return f.MessagesCh }
func (f *Fake) Memberships() <-chan session.MembershipEvent { return f.MembershipsCh }
func (f *Fake) CredentialUpdates() <-chan []byte { return f.CredsCh }

func (f *Fake) GroupMetadata(ctx context.Context, chat session.JID) (session.GroupMetadata, error) {
	if f.MetadataErr != nil {
		return session.GroupMetadata{}, f.MetadataErr
	}
	return f.Metadata[chat], nil
}

func (f *Fake) AllGroups(ctx context.Context) ([]session.JID, error) {
	if f.GroupsErr != nil {
		return nil, f.GroupsErr
	}
	return append([]session.JID(nil), f.Groups...), nil
}

func (f *Fake) Send(ctx context.Context, chat session.JID, msg session.Outgoing) error {
	if f.SendErr != nil {
		if err := f.SendErr(chat); err != nil {
			return err
		}
	}
	f.mu.Lock()
	f.sends = append(f.sends, SendCall{Chat: chat, Msg: msg})
	f.mu.Unlock()
	return nil
}

func (f *Fake) Delete(ctx context.Context, chat session.JID, id session.MessageID, author session.JID) error {
	f.mu.Lock()
	f.deletes = append(f.deletes, DeleteCall{Chat: chat, ID: id, Author: author})
	f.mu.Unlock()
	return nil
}

func (f *Fake) SelfJID() session.JID { return f.Self }

func (f *Fake) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *Fake) Sends() []SendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SendCall(nil), f.sends...)
}

func (f *Fake) Deletes() []DeleteCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]DeleteCall(nil), f.deletes...)
}

func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
