package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
)

func TestJIDIsGroup(t *testing.T) {
	t.Parallel()
	tests := []struct {
		jid  JID
		want bool
	}{
		{"12345-67890@g.us", true},
		{"916282995415@s.whatsapp.net", false},
		{"", false},
		{"broken", false},
	}
	for _, tt := range tests {
		if got := tt.jid.IsGroup(); got != tt.want {
			t.Errorf("IsGroup(%q) = %v, want %v", tt.jid, got, tt.want)
		}
	}
}

type nopClient struct{ Client }

func (nopClient) Send(ctx context.Context, chat JID, msg Outgoing) error { return nil }

func TestHandleGenerationInvalidation(t *testing.T) {
	t.Parallel()
	var live atomic.Uint64
	live.Store(1)

	h1 := NewHandle(nopClient{}, 1, &live)
	if err := h1.Send(context.Background(), "x@g.us", Outgoing{Text: "hi"}); err != nil {
		t.Fatalf("live handle send: %v", err)
	}

	// Supervisor replaces the session: generation 2 becomes live.
	live.Store(2)
	err := h1.Send(context.Background(), "x@g.us", Outgoing{Text: "hi"})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("stale handle send = %v, want ErrClosed", err)
	}

	h2 := NewHandle(nopClient{}, 2, &live)
	if err := h2.Send(context.Background(), "x@g.us", Outgoing{Text: "hi"}); err != nil {
		t.Fatalf("new handle send: %v", err)
	}
}

func TestDriverRegistry(t *testing.T) {
	t.Parallel()
	RegisterDriver("testdrv", func(ctx context.Context, creds []byte) (Client, error) {
		return nil, nil
	})
	if _, err := DriverFactory("TestDrv"); err != nil {
		t.Fatalf("DriverFactory: %v", err)
	}
	if _, err := DriverFactory("missing"); err == nil {
		t.Fatal("expected error for unregistered driver")
	}
}
