package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"wagate/internal/session"
	"wagate/internal/session/sessiontest"
	"wagate/internal/storage"
	logx "wagate/pkg/logx"
)

type memStore struct {
	mu    sync.Mutex
	blobs [][]byte
}

func (m *memStore) SaveCredentials(ctx context.Context, blob []byte) error {
	m.mu.Lock()
	m.blobs = append(m.blobs, append([]byte(nil), blob...))
	m.mu.Unlock()
	return nil
}

func (m *memStore) LoadCredentials(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.blobs) == 0 {
		return nil, storage.ErrNoCredentials
	}
	return m.blobs[len(m.blobs)-1], nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) saved() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}

func testConfig() Config {
	return Config{MinBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestLoggedOutIsTerminal(t *testing.T) {
	t.Parallel()
	f := sessiontest.New()
	f.LifecycleCh <- session.LifecycleEvent{State: session.StateOpen}
	f.LifecycleCh <- session.LifecycleEvent{State: session.StateClosed, Reason: session.ReasonLoggedOut}

	calls := 0
	factory := func(ctx context.Context, creds []byte) (session.Client, error) {
		calls++
		return f, nil
	}
	s := New(testConfig(), factory, &memStore{}, logx.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := s.Run(ctx)
	if !errors.Is(err, session.ErrLoggedOut) {
		t.Fatalf("Run = %v, want ErrLoggedOut", err)
	}
	if calls != 1 {
		t.Fatalf("factory calls = %d, want 1 (no reconnect after logout)", calls)
	}
	if !f.Closed() {
		t.Fatal("client must be closed on exit")
	}
	if _, ok := s.Current(); ok {
		t.Fatal("no handle may stay live after terminal logout")
	}
}

func TestNonTerminalCloseRebuildsSession(t *testing.T) {
	t.Parallel()
	first := sessiontest.New()
	first.LifecycleCh <- session.LifecycleEvent{State: session.StateOpen}
	first.LifecycleCh <- session.LifecycleEvent{State: session.StateClosed, Reason: session.ReasonConnectionLost}
	second := sessiontest.New()
	second.LifecycleCh <- session.LifecycleEvent{State: session.StateOpen}

	clients := []*sessiontest.Fake{first, second}
	calls := 0
	factory := func(ctx context.Context, creds []byte) (session.Client, error) {
		c := clients[calls%len(clients)]
		calls++
		return c, nil
	}
	s := New(testConfig(), factory, &memStore{}, logx.Nop())

	var mu sync.Mutex
	var handles []*session.Handle
	s.OnOpen(func(h *session.Handle) {
		mu.Lock()
		handles = append(handles, h)
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(handles)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for reconnect")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run after cancel = %v", err)
	}

	mu.Lock()
	h1, h2 := handles[0], handles[1]
	mu.Unlock()
	if h2.Generation() <= h1.Generation() {
		t.Fatalf("generation must increase: %d then %d", h1.Generation(), h2.Generation())
	}
	if !first.Closed() {
		t.Fatal("replaced client must be closed")
	}
	// The superseded handle fails cleanly instead of sending on a dead session.
	err := h1.Send(context.Background(), "x@g.us", session.Outgoing{Text: "late"})
	if !errors.Is(err, session.ErrClosed) {
		t.Fatalf("stale handle send = %v, want ErrClosed", err)
	}
}

func TestCredentialUpdatesPersistedBeforeAck(t *testing.T) {
	t.Parallel()
	f := sessiontest.New()
	f.LifecycleCh <- session.LifecycleEvent{State: session.StateOpen}
	f.CredsCh <- []byte(`{"creds":1}`)

	store := &memStore{}
	factory := func(ctx context.Context, creds []byte) (session.Client, error) { return f, nil }
	s := New(testConfig(), factory, store, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for store.saved() == 0 {
		select {
		case <-deadline:
			t.Fatal("credential blob never persisted")
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run after cancel = %v", err)
	}
}

func TestFactoryFailureRetries(t *testing.T) {
	t.Parallel()
	f := sessiontest.New()
	f.LifecycleCh <- session.LifecycleEvent{State: session.StateOpen}

	calls := 0
	factory := func(ctx context.Context, creds []byte) (session.Client, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("transport unavailable")
		}
		return f, nil
	}
	s := New(testConfig(), factory, &memStore{}, logx.Nop())

	opened := make(chan struct{}, 1)
	s.OnOpen(func(h *session.Handle) {
		select {
		case opened <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("session never opened after factory failure")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run after cancel = %v", err)
	}
	if calls < 2 {
		t.Fatalf("factory calls = %d, want >= 2", calls)
	}
}
