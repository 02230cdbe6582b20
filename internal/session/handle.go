package session

import (
	"context"
	"sync/atomic"
)

// Handle is a generation-tagged view of a Client.
//
// The connection supervisor bumps the live generation whenever it replaces
// the session; operations issued through a superseded handle fail with
// ErrClosed instead of silently sending on a dead connection.
type Handle struct {
	c    Client
	gen  uint64
	live *atomic.Uint64
}

func NewHandle(c Client, gen uint64, live *atomic.Uint64) *Handle {
	return &Handle{c: c, gen: gen, live: live}
}

func (h *Handle) Generation() uint64 { return h.gen }

func (h *Handle) ok() bool {
	return h != nil && h.c != nil && h.live != nil && h.live.Load() == h.gen
}

func (h *Handle) SelfJID() JID {
	if h == nil || h.c == nil {
		return ""
	}
	return h.c.SelfJID()
}

func (h *Handle) GroupMetadata(ctx context.Context, chat JID) (GroupMetadata, error) {
	if !h.ok() {
		return GroupMetadata{}, ErrClosed
	}
	return h.c.GroupMetadata(ctx, chat)
}

func (h *Handle) AllGroups(ctx context.Context) ([]JID, error) {
	if !h.ok() {
		return nil, ErrClosed
	}
	return h.c.AllGroups(ctx)
}

func (h *Handle) Send(ctx context.Context, chat JID, msg Outgoing) error {
	if !h.ok() {
		return ErrClosed
	}
	return h.c.Send(ctx, chat, msg)
}

func (h *Handle) Delete(ctx context.Context, chat JID, id MessageID, author JID) error {
	if !h.ok() {
		return ErrClosed
	}
	return h.c.Delete(ctx, chat, id, author)
}

// Provider yields the current live handle, if any.
//
// The pipeline and broadcast scheduler resolve the handle per operation so a
// reconnect in progress is never interleaved with sends on a stale session.
type Provider interface {
	Current() (*Handle, bool)
}
