package gateway

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "wagate/pkg/logx"
)

// markReady tells systemd the gateway is up, once, after the first session
// reaches the open state. Outside systemd this is a no-op.
func (a *App) markReady() {
	if !a.readyOnce.CompareAndSwap(false, true) {
		return
	}
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		a.log.Warn("sd_notify READY failed", logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("sd_notify READY sent")
	}
}

func (a *App) notifyStopping() {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
}

// watchdogLoop pings the systemd watchdog at half the configured interval.
// Exits immediately when no watchdog is configured.
func (a *App) watchdogLoop(ctx context.Context) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		}
	}
}
