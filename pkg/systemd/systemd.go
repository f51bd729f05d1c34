// Package systemd reports the scheduler process's own readiness and
// liveness to systemd, using sd_notify. It does not manage other units.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// NotifyReady tells systemd the dispatcher has finished startup recovery
// and is ready to serve control-API calls. No-op outside a systemd unit
// with Type=notify (NOTIFY_SOCKET unset).
func NotifyReady() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	return err
}

// NotifyStopping tells systemd the process is shutting down.
func NotifyStopping() error {
	_, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	return err
}

// WatchdogInterval returns the interval at which NotifyWatchdog must be
// called to avoid systemd restarting the unit, or 0 if no watchdog is
// configured (WatchdogSec unset).
func WatchdogInterval() (time.Duration, error) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return 0, err
	}
	return interval, nil
}

// RunWatchdog pings the systemd watchdog at half the configured interval
// until ctx is cancelled. It is a no-op if no watchdog is configured.
func RunWatchdog(ctx context.Context) error {
	interval, err := WatchdogInterval()
	if err != nil || interval <= 0 {
		return err
	}
	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
				return err
			}
		}
	}
}
