package config

import (
	"reflect"
	"sort"
	"strings"

	logx "opsched/pkg/logx"
)

// SummarizeConfigChange returns (1) a compact list of changed sections,
// (2) safe structured attrs for logging (never includes secrets like
// bot tokens), and (3) a list of agent entry names (the keys of the
// agents section) whose config changed.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field, []string) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Logging
	if oldCfg.Logging.Level != newCfg.Logging.Level ||
		oldCfg.Logging.Console != newCfg.Logging.Console ||
		oldCfg.Logging.File.Enabled != newCfg.Logging.File.Enabled ||
		strings.TrimSpace(oldCfg.Logging.File.Path) != strings.TrimSpace(newCfg.Logging.File.Path) ||
		oldCfg.Logging.Alert.Enabled != newCfg.Logging.Alert.Enabled ||
		oldCfg.Logging.Alert.MinLevel != newCfg.Logging.Alert.MinLevel ||
		oldCfg.Logging.Alert.RatePerSec != newCfg.Logging.Alert.RatePerSec {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logx.alert_enabled", newCfg.Logging.Alert.Enabled),
		)
	}

	// Dispatcher
	oD, nD := oldCfg.Dispatcher, newCfg.Dispatcher
	dispEnabledChanged := boolPtrNeq(oD.Enabled, nD.Enabled)
	if dispEnabledChanged ||
		strings.TrimSpace(oD.PollInterval) != strings.TrimSpace(nD.PollInterval) ||
		strings.TrimSpace(oD.MinInterval) != strings.TrimSpace(nD.MinInterval) ||
		oD.HistorySize != nD.HistorySize ||
		strings.TrimSpace(oD.Timezone) != strings.TrimSpace(nD.Timezone) {
		changed = append(changed, "dispatcher")
		attrs = append(attrs,
			logx.Bool("dispatcher.enabled_set", nD.Enabled != nil),
			logx.String("dispatcher.poll_interval", strings.TrimSpace(nD.PollInterval)),
			logx.String("dispatcher.min_interval", strings.TrimSpace(nD.MinInterval)),
			logx.Int("dispatcher.history_size", nD.HistorySize),
			logx.String("dispatcher.timezone", strings.TrimSpace(nD.Timezone)),
		)
	}

	// Persistence
	if !reflect.DeepEqual(oldCfg.Persistence, newCfg.Persistence) {
		changed = append(changed, "persistence")
		attrs = append(attrs,
			logx.String("persistence.task_meta_dir", newCfg.Persistence.TaskMetaDir),
			logx.String("persistence.snapshot_path", newCfg.Persistence.SnapshotDir),
			logx.String("persistence.save_debounce", strings.TrimSpace(newCfg.Persistence.SaveDebounce)),
		)
	}

	// License (never log a file path's contents, only whether it's set)
	oL, nL := oldCfg.License, newCfg.License
	if oL.Driver != nL.Driver || oL.MaxTasks != nL.MaxTasks ||
		strings.TrimSpace(oL.ForcedInterval) != strings.TrimSpace(nL.ForcedInterval) ||
		strings.TrimSpace(oL.ExpiresAt) != strings.TrimSpace(nL.ExpiresAt) ||
		(strings.TrimSpace(oL.FilePath) != "") != (strings.TrimSpace(nL.FilePath) != "") {
		changed = append(changed, "license")
		attrs = append(attrs,
			logx.String("license.driver", nL.Driver),
			logx.Int("license.max_tasks", nL.MaxTasks),
			logx.String("license.forced_interval", strings.TrimSpace(nL.ForcedInterval)),
			logx.Bool("license.expires_set", strings.TrimSpace(nL.ExpiresAt) != ""),
		)
	}

	// Notifier (async alert pipeline). Section may be nil (omitted, and
	// then no notifier is built); the summary compares nil as the fixed
	// section below.
	defN := &NotifierConfig{
		Enabled:         true,
		Workers:         2,
		QueueSize:       512,
		RatePerSec:      3,
		RetryMax:        3,
		RetryBase:       "500ms",
		RetryMaxDelay:   "10s",
		DedupWindow:     "1m",
		DedupMaxEntries: 2000,
		PersistDedup:    false,
	}
	oldN := oldCfg.Notifier
	newN := newCfg.Notifier
	if oldN == nil {
		oldN = defN
	}
	if newN == nil {
		newN = defN
	}
	if !reflect.DeepEqual(*oldN, *newN) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.queue_size", newN.QueueSize),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.Int("notifier.retry_max", newN.RetryMax),
			logx.Bool("notifier.persist_dedup", newN.PersistDedup),
			logx.Bool("notifier.telegram_enabled", newN.Telegram.Enabled),
		)
	}

	// Storage (step-history archive)
	oldS := oldCfg.Storage
	newS := newCfg.Storage
	// Nil means disabled.
	var oDriver, nDriver, oBusy, nBusy string
	var oPathSet, nPathSet bool
	if oldS != nil {
		oDriver = strings.TrimSpace(oldS.Driver)
		oBusy = strings.TrimSpace(oldS.BusyTimeout)
		oPathSet = strings.TrimSpace(oldS.Path) != ""
	}
	if newS != nil {
		nDriver = strings.TrimSpace(newS.Driver)
		nBusy = strings.TrimSpace(newS.BusyTimeout)
		nPathSet = strings.TrimSpace(newS.Path) != ""
	}
	if oDriver != nDriver || oBusy != nBusy || oPathSet != nPathSet {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", nDriver),
			logx.Bool("storage.path_set", nPathSet),
			logx.String("storage.busy_timeout", nBusy),
		)
	}

	// Agents (per-account-kind backend config; summarize only)
	agentChanged := diffAgents(oldCfg.Agents, newCfg.Agents)
	if len(agentChanged) > 0 {
		changed = append(changed, "agents")
		attrs = append(attrs,
			logx.Int("agents.changed_count", len(agentChanged)),
			logx.Int("agents.configured_count", len(newCfg.Agents)),
		)
	}

	sort.Strings(changed)
	return changed, attrs, agentChanged
}

func boolPtrNeq(a, b *bool) bool {
	if a == nil || b == nil {
		return (a == nil) != (b == nil)
	}
	return *a != *b
}

func diffAgents(oldM, newM map[string]AgentConfigRaw) []string {
	if oldM == nil {
		oldM = map[string]AgentConfigRaw{}
	}
	if newM == nil {
		newM = map[string]AgentConfigRaw{}
	}

	set := map[string]struct{}{}
	for k := range oldM {
		set[k] = struct{}{}
	}
	for k := range newM {
		set[k] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		o := oldM[name]
		n := newM[name]
		if o.Driver != n.Driver || o.CredentialsDir != n.CredentialsDir {
			out = append(out, name)
			continue
		}
		if canonicalHashJSON(o.Config) != canonicalHashJSON(n.Config) {
			out = append(out, name)
			continue
		}
	}
	sort.Strings(out)
	return out
}
