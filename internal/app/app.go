package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"opsched/internal/config"
	"opsched/internal/control"
	"opsched/internal/dispatch"
	"opsched/internal/eventbus"
	"opsched/internal/notifier"
	"opsched/internal/persistence"
	rtsup "opsched/internal/runtime/supervisor"
	"opsched/internal/storage"
	"opsched/internal/task"

	logx "opsched/pkg/logx"
)

// App wires every component together: config, logging, the task
// registry and its persistence, the license gate, the dispatcher, the
// control plane on top of it, and the notifier alert pipeline.
type App struct {
	cfgPath string
	cfgm    *config.ConfigManager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store storage.Store
	meta  *persistence.TaskMetaStore
	snap  *persistence.SnapshotStore

	reg   *task.Registry
	disp  *dispatch.Service
	ctrl  *control.Service
	notif *notifier.Service

	sup *rtsup.Supervisor
}

// NewApp loads cfgPath and constructs every component, but does not
// start the dispatcher, the notifier or the config watcher — call Start
// for that. The only goroutine it can start is pkg/logx's alert worker,
// when logging.alert.enabled is set.
func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logCfg := logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Alert: logx.AlertConfig{
			Enabled:    cfg.Logging.Alert.Enabled,
			MinLevel:   cfg.Logging.Alert.MinLevel,
			RatePerSec: cfg.Logging.Alert.RatePerSec,
		},
	}
	logSvc, log := logx.New(logCfg, nil)
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if cfg.Storage != nil {
		sc, err := mapStorageConfig(cfg.Storage)
		if err != nil {
			return nil, err
		}
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		store = st
	}

	if strings.TrimSpace(cfg.Persistence.TaskMetaDir) == "" {
		return nil, fmt.Errorf("persistence.task_meta_dir is required")
	}
	if strings.TrimSpace(cfg.Persistence.SnapshotDir) == "" {
		return nil, fmt.Errorf("persistence.snapshot_dir is required")
	}
	meta := persistence.NewTaskMetaStore(cfg.Persistence.TaskMetaDir)
	snap := persistence.NewSnapshotStore(cfg.Persistence.SnapshotDir)

	gate, err := buildLicenseGate(cfg)
	if err != nil {
		return nil, err
	}

	reg := task.NewRegistry(meta, buildAgentFactory(cfg))

	if err := loadSnapshotAtStartup(reg, snap, log); err != nil {
		log.Warn("snapshot load failed; starting with an empty registry", logx.Err(err))
	}

	dispCfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	disp := dispatch.New(dispCfg, reg, snap, log.With(logx.String("comp", "dispatch")), bus)

	var notifSvc *notifier.Service
	if cfg.Notifier != nil {
		ncfg, err := mapNotifierConfig(cfg.Notifier)
		if err != nil {
			return nil, err
		}
		sender, err := buildNotifierSender(cfg.Notifier)
		if err != nil {
			return nil, err
		}
		notifSvc = notifier.New(ncfg, sender, log.With(logx.String("comp", "notifier")), bus, store)
		logSvc.SetAlertSink(notifSvc)
	}

	ctrl := control.New(reg, gate, disp, snap, log.With(logx.String("comp", "control")), bus, nil)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		meta:    meta,
		snap:    snap,
		reg:     reg,
		disp:    disp,
		ctrl:    ctrl,
		notif:   notifSvc,
	}, nil
}

// Control exposes the control plane for callers embedding this module.
func (a *App) Control() *control.Service { return a.ctrl }

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(false))

	if a.notif != nil && a.notif.Enabled() {
		a.notif.Start(a.sup.Context())
	}
	if cfg := a.cfgm.Get(); cfg == nil || cfg.Dispatcher.Enabled == nil || *cfg.Dispatcher.Enabled {
		a.disp.Start(a.sup.Context())
	}

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started")
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	a.disp.Stop(ctx)
	if a.notif != nil {
		a.notif.Stop(ctx)
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.sup.Wait(ctx)

	a.log.Info("stopped")
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

func loadSnapshotAtStartup(reg *task.Registry, snap *persistence.SnapshotStore, log logx.Logger) error {
	s, err := snap.Load()
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	skipped := reg.LoadSnapshot(time.Now(), s)
	for _, taskID := range skipped {
		log.Warn("skipped task on snapshot load: agent reconstruction failed", logx.String("task_id", taskID))
	}
	return nil
}
