package app

import (
	"context"

	"opsched/internal/config"
	"opsched/internal/dispatch"
	"opsched/internal/notifier"
	"opsched/internal/storage"
)

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	d := cfg.Dispatcher

	maxPoll, err := config.ParseDurationOrDefault("dispatcher.poll_interval", d.PollInterval, 60e9)
	if err != nil {
		return dispatch.Config{}, err
	}
	executeNowWait, err := config.ParseDurationOrDefault("dispatcher.execute_now_wait", d.ExecuteNowWait, 5e9)
	if err != nil {
		return dispatch.Config{}, err
	}
	shutdownGrace, err := config.ParseDurationOrDefault("dispatcher.shutdown_grace", d.ShutdownGrace, 30e9)
	if err != nil {
		return dispatch.Config{}, err
	}

	return dispatch.Config{
		Enabled:          d.Enabled == nil || *d.Enabled,
		SharedCookiePath: d.SharedCookiePath,
		MaxPoll:          maxPoll,
		ExecuteNowWait:   executeNowWait,
		ShutdownGrace:    shutdownGrace,
	}, nil
}

func mapNotifierConfig(nc *config.NotifierConfig) (notifier.Config, error) {
	retryBase, err := config.ParseDurationOrDefault("notifier.retry_base", nc.RetryBase, 500e6)
	if err != nil {
		return notifier.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationOrDefault("notifier.retry_max_delay", nc.RetryMaxDelay, 15e9)
	if err != nil {
		return notifier.Config{}, err
	}
	dedupWindow, err := config.ParseDurationOrDefault("notifier.dedup_window", nc.DedupWindow, 5*60e9)
	if err != nil {
		return notifier.Config{}, err
	}

	return notifier.Config{
		Enabled:         nc.Enabled,
		Workers:         nc.Workers,
		QueueSize:       nc.QueueSize,
		RatePerSec:      nc.RatePerSec,
		RetryMax:        nc.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedupWindow,
		DedupMaxEntries: nc.DedupMaxEntries,
		PersistDedup:    nc.PersistDedup,
	}, nil
}

func buildNotifierSender(nc *config.NotifierConfig) (notifier.Sender, error) {
	if !nc.Telegram.Enabled {
		return noopSender{}, nil
	}
	return notifier.NewTelegramSender(notifier.TelegramConfig{
		Token:    nc.Telegram.Token,
		ChatID:   nc.Telegram.ChatID,
		ThreadID: nc.Telegram.ThreadID,
	})
}

// noopSender is used when the notifier pipeline is enabled but no
// delivery backend (Telegram) is configured: alerts are accepted,
// deduplicated, and rate-limited, but never actually sent anywhere.
type noopSender struct{}

func (noopSender) SendText(ctx context.Context, text string) error {
	return nil
}

func mapStorageConfig(sc *config.StorageConfig) (storage.Config, error) {
	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 0)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      sc.Driver,
		Path:        sc.Path,
		BusyTimeout: busyTimeout,
	}, nil
}
