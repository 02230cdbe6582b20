package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"wagate/internal/session"
	"wagate/internal/storage"
	logx "wagate/pkg/logx"
)

// Config tunes the reconnect backoff.
type Config struct {
	MinBackoff   time.Duration // default 1s
	MaxBackoff   time.Duration // default 1m
	HealthyReset time.Duration // default 5m: sessions open this long reset backoff
}

func (c *Config) applyDefaults() {
	if c.MinBackoff <= 0 {
		c.MinBackoff = time.Second
	}
	if c.MaxBackoff < c.MinBackoff {
		c.MaxBackoff = time.Minute
	}
	if c.HealthyReset <= 0 {
		c.HealthyReset = 5 * time.Minute
	}
}

// Supervisor owns the session lifecycle.
//
// It holds exactly one live session at a time. On any non-terminal close the
// whole client is discarded and rebuilt from persisted credentials after a
// capped, jittered backoff; resuming a half-dead client in place is never
// attempted. A logout is terminal: Run returns session.ErrLoggedOut and the
// operator must re-authenticate.
type Supervisor struct {
	cfg     Config
	factory session.Factory
	store   storage.Store
	log     logx.Logger

	// liveGen is the generation of the handle currently allowed to touch the
	// network. Zero means none.
	liveGen atomic.Uint64
	gen     uint64
	cur     atomic.Pointer[session.Handle]

	onSession func(ctx context.Context, h *session.Handle, msgs <-chan session.RawMessage, mems <-chan session.MembershipEvent)
	onOpen    func(h *session.Handle)
}

func New(cfg Config, factory session.Factory, store storage.Store, log logx.Logger) *Supervisor {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Supervisor{cfg: cfg, factory: factory, store: store, log: log}
}

// OnSession installs the per-generation binding hook. It is invoked once per
// freshly built client, before Connect, with a context that is canceled when
// that session dies. Set before Run.
func (s *Supervisor) OnSession(fn func(ctx context.Context, h *session.Handle, msgs <-chan session.RawMessage, mems <-chan session.MembershipEvent)) {
	s.onSession = fn
}

// OnOpen fires every time a session reaches the open state. Set before Run.
func (s *Supervisor) OnOpen(fn func(h *session.Handle)) { s.onOpen = fn }

// Current returns the live generation-tagged handle, if any.
func (s *Supervisor) Current() (*session.Handle, bool) {
	h := s.cur.Load()
	if h == nil || s.liveGen.Load() != h.Generation() {
		return nil, false
	}
	return h, true
}

// Run drives the lifecycle state machine until ctx is canceled or the session
// is terminally logged out.
func (s *Supervisor) Run(ctx context.Context) error {
	backoff := s.cfg.MinBackoff
	for {
		if ctx.Err() != nil {
			return nil
		}

		openFor, err := s.runOnce(ctx)
		if errors.Is(err, session.ErrLoggedOut) {
			s.log.Error("session logged out; re-authentication required")
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			s.log.Warn("session ended", logx.Err(err))
		}

		if openFor >= s.cfg.HealthyReset {
			backoff = s.cfg.MinBackoff
		}
		wait := backoff
		// 20% jitter.
		if j := int64(wait) / 5; j > 0 {
			wait += time.Duration(time.Now().UnixNano() % (j + 1))
		}
		s.log.Info("rebuilding session", logx.Duration("backoff", wait))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
		backoff *= 2
		if backoff > s.cfg.MaxBackoff {
			backoff = s.cfg.MaxBackoff
		}
	}
}

// runOnce builds, binds and serves a single session generation.
// It returns how long the session was open, and why it ended.
func (s *Supervisor) runOnce(ctx context.Context) (time.Duration, error) {
	creds, err := s.store.LoadCredentials(ctx)
	if err != nil && !errors.Is(err, storage.ErrNoCredentials) {
		return 0, fmt.Errorf("load credentials: %w", err)
	}
	if errors.Is(err, storage.ErrNoCredentials) {
		s.log.Warn("no stored credentials; fresh pairing flow expected")
		creds = nil
	}

	client, err := s.factory(ctx, creds)
	if err != nil {
		return 0, fmt.Errorf("build session client: %w", err)
	}
	defer client.Close()

	s.gen++
	handle := session.NewHandle(client, s.gen, &s.liveGen)
	s.cur.Store(handle)
	s.liveGen.Store(s.gen)
	// Any in-flight operation on a previous handle now fails with ErrClosed.
	defer s.liveGen.Store(0)

	genCtx, genCancel := context.WithCancel(ctx)
	defer genCancel()
	if s.onSession != nil {
		s.onSession(genCtx, handle, client.Messages(), client.Memberships())
	}

	s.log.Info("connecting", logx.Uint64("gen", handle.Generation()))
	if err := client.Connect(ctx); err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}

	return s.serve(ctx, client, handle)
}

func (s *Supervisor) serve(ctx context.Context, client session.Client, handle *session.Handle) (time.Duration, error) {
	var openedAt time.Time
	openFor := func() time.Duration {
		if openedAt.IsZero() {
			return 0
		}
		return time.Since(openedAt)
	}

	lifecycle := client.Lifecycle()
	creds := client.CredentialUpdates()

	for {
		select {
		case <-ctx.Done():
			return openFor(), ctx.Err()

		case ev, ok := <-lifecycle:
			if !ok {
				return openFor(), errors.New("lifecycle stream closed")
			}
			if ev.QR != "" {
				s.log.Warn("pairing required; scan the QR payload to authenticate", logx.String("qr", ev.QR))
			}
			switch ev.State {
			case session.StateConnecting:
				s.log.Debug("session connecting")
			case session.StateOpen:
				openedAt = time.Now()
				s.log.Info("session open", logx.Uint64("gen", handle.Generation()))
				if s.onOpen != nil {
					s.onOpen(handle)
				}
			case session.StateClosed:
				if ev.Reason == session.ReasonLoggedOut {
					return openFor(), session.ErrLoggedOut
				}
				return openFor(), fmt.Errorf("connection closed: %s", ev.Reason)
			}

		case blob, ok := <-creds:
			if !ok {
				creds = nil
				continue
			}
			// Persist before the update counts as acknowledged; losing a blob
			// risks session invalidation requiring re-authentication.
			if err := s.store.SaveCredentials(ctx, blob); err != nil {
				s.log.Error("credential persistence failed", logx.Err(err), logx.Int("bytes", len(blob)))
			}
		}
	}
}
