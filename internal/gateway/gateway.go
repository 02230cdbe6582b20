package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"wagate/internal/broadcast"
	"wagate/internal/config"
	"wagate/internal/moderation"
	"wagate/internal/relay"
	rsup "wagate/internal/runtime/supervisor"
	"wagate/internal/session"
	"wagate/internal/storage"
	"wagate/internal/supervisor"
	logx "wagate/pkg/logx"
)

// App wires the connection supervisor, the inbound pipeline, the policy
// relay and the broadcast scheduler together.
type App struct {
	cfgm   *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store storage.Store
	conn  *supervisor.Supervisor
	relay *relay.Client
	bcast *broadcast.Service

	overrides  atomic.Pointer[moderation.Overrides]
	linkFilter atomic.Pointer[config.LinkFilterConfig]

	sup   *rsup.Supervisor
	lanes []chan func()

	readyOnce atomic.Bool
}

const (
	// Lane assignment hashes the origin chat, so chats that collide share a
	// lane and a slow relay call delays them together. Raise laneCount
	// before laneCapacity if lane-full drops show up under load.
	laneCount    = 8
	laneCapacity = 64
)

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "gateway"))
	cfgm.SetLogger(logSvc.Logger().With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, logSvc.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	factory, err := session.DriverFactory(cfg.Session.Driver)
	if err != nil {
		return nil, err
	}

	relayTimeout, err := config.ParseDurationOrDefault("relay.timeout", cfg.Relay.Timeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	relayClient := relay.New(relay.Config{
		BaseURL: cfg.Relay.BaseURL,
		Timeout: relayTimeout,
	}, logSvc.Logger().With(logx.String("comp", "relay")))

	conn := supervisor.New(supervisor.Config{}, factory, store,
		logSvc.Logger().With(logx.String("comp", "session")))

	bcast, err := broadcast.New(cfg.Broadcast, conn,
		logSvc.Logger().With(logx.String("comp", "broadcast")))
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgm:   cfgm,
		logSvc: logSvc,
		log:    log,
		store:  store,
		conn:   conn,
		relay:  relayClient,
		bcast:  bcast,
	}
	a.overrides.Store(moderation.NewOverrides(cfg.Moderation.Keywords))
	lf := cfg.Moderation.LinkFilter
	a.linkFilter.Store(&lf)

	conn.OnSession(a.bindSession)
	conn.OnOpen(func(h *session.Handle) { a.markReady() })

	return a, nil
}

// Run blocks until ctx is canceled or the session is terminally logged out.
func (a *App) Run(ctx context.Context) error {
	a.sup = rsup.New(ctx,
		rsup.WithLogger(a.log),
		rsup.WithCancelOnError(true),
	)
	sup := a.sup

	a.lanes = make([]chan func(), laneCount)
	for i := range a.lanes {
		i := i
		ch := make(chan func(), laneCapacity)
		a.lanes[i] = ch
		sup.Go0(fmt.Sprintf("lane.%d", i), func(ctx context.Context) {
			for {
				select {
				case <-ctx.Done():
					return
				case fn := <-ch:
					fn()
				}
			}
		})
	}

	if err := a.bcast.Start(sup.Context()); err != nil {
		sup.Cancel()
		return err
	}
	defer a.bcast.Stop()

	sup.GoRestart("config.watch", a.cfgm.Watch,
		rsup.WithRestartBackoff(250*time.Millisecond, 5*time.Second),
		rsup.WithStopOnCleanExit(true),
	)
	sup.Go0("config.reload", a.reloadLoop)
	sup.Go("connection", a.conn.Run)
	sup.Go0("watchdog", a.watchdogLoop)

	err := sup.Wait(ctx)
	a.notifyStopping()
	if errors.Is(err, context.Canceled) {
		// Shutdown signal: drain goroutines with a bounded grace period.
		dctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		err = sup.Stop(dctx)
		cancel()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			err = nil
		}
	}
	return err
}

func (a *App) Close() error {
	if a.store != nil {
		_ = a.store.Close()
	}
	return a.logSvc.Close()
}

// reloadLoop re-applies the hot-reloadable config sections on every commit.
// Session, storage and relay targets deliberately require a restart.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok || cfg == nil {
				return
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.overrides.Store(moderation.NewOverrides(cfg.Moderation.Keywords))
			lf := cfg.Moderation.LinkFilter
			a.linkFilter.Store(&lf)
			if err := a.bcast.Apply(cfg.Broadcast); err != nil {
				a.log.Warn("broadcast config reload failed", logx.Err(err))
			}
			a.log.Info("runtime config applied")
		}
	}
}

// bindSession attaches pipeline consumers to a fresh session generation.
// The context is canceled when that generation dies, so both loops exit
// before the next session's loops start.
func (a *App) bindSession(ctx context.Context, h *session.Handle, msgs <-chan session.RawMessage, mems <-chan session.MembershipEvent) {
	gen := h.Generation()
	a.sup.Go0(fmt.Sprintf("pipeline.messages.%d", gen), func(sctx context.Context) {
		for {
			select {
			case <-sctx.Done():
				return
			case <-ctx.Done():
				return
			case raw, ok := <-msgs:
				if !ok {
					return
				}
				a.dispatch(raw.Chat, func() { a.handleMessage(ctx, h, raw) })
			}
		}
	})
	a.sup.Go0(fmt.Sprintf("pipeline.memberships.%d", gen), func(sctx context.Context) {
		for {
			select {
			case <-sctx.Done():
				return
			case <-ctx.Done():
				return
			case m, ok := <-mems:
				if !ok {
					return
				}
				a.dispatch(m.Chat, func() { a.handleMembership(ctx, h, m) })
			}
		}
	})
}
