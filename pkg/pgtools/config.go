package pgtools

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// PortSetting is the config name of the PostgreSQL listen port.
const PortSetting = "port"

// ignoredSettings are read-only or preset parameters the server refuses to
// take from configuration.
var ignoredSettings = []string{
	"block_size", "data_checksums", "data_directory_mode",
	"debug_assertions", "integer_datetimes", "lc_collate",
	"lc_ctype", "max_function_args", "max_identifier_length",
	"max_index_keys", "segment_size", "server_encoding",
	"server_version", "server_version_num", "ssl_library",
	"wal_block_size", "wal_segment_size",
}

// restartSettings only take effect after a server restart.
var restartSettings = []string{
	"allow_system_table_mods", "archive_mode", "autovacuum_freeze_max_age",
	"autovacuum_max_workers", "autovacuum_multixact_freeze_max_age", "bonjour",
	"bonjour_name", "cluster_name", "config_file", "data_directory",
	"data_sync_retry", "dynamic_shared_memory_type", "event_source",
	"external_pid_file", "hba_file", "hot_standby", "huge_pages", "ident_file",
	"jit_provider", "listen_addresses", "logging_collector", "max_connections",
	"max_files_per_process", "max_locks_per_transaction",
	"max_logical_replication_workers", "max_pred_locks_per_transaction",
	"max_prepared_transactions", "max_replication_slots", "max_wal_senders",
	"max_worker_processes", "old_snapshot_threshold", "pg_stat_statements.max",
	"port", "primary_conninfo", "primary_slot_name", "recovery_target",
	"recovery_target_action", "recovery_target_inclusive",
	"recovery_target_lsn", "recovery_target_name", "recovery_target_time",
	"recovery_target_timeline", "recovery_target_xid", "restore_command",
	"shared_buffers", "shared_memory_type",
}

// Setting is one "name=value" entry of a configs list.
type Setting struct {
	Name  string
	Value string
}

// ParseSetting splits a "name=value" entry. Surrounding whitespace is
// trimmed from both parts. An entry without '=' has an empty value.
func ParseSetting(entry string) Setting {
	name, value, _ := strings.Cut(entry, "=")
	return Setting{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)}
}

// ParseSettings parses every entry of a configs list.
func ParseSettings(entries []string) []Setting {
	out := make([]Setting, 0, len(entries))
	for _, e := range entries {
		out = append(out, ParseSetting(e))
	}
	return out
}

// IsIgnored reports whether name can never be set.
func IsIgnored(name string) bool { return slices.Contains(ignoredSettings, name) }

// NeedsRestart reports whether changing name requires a server restart.
func NeedsRestart(name string) bool { return slices.Contains(restartSettings, name) }

// Settable filters entries down to the ones an instance of the given kind
// accepts. The monitor always listens on AutoFailoverPort so its port entry
// is dropped.
func Settable(entries []string, monitor bool) []Setting {
	var out []Setting
	for _, s := range ParseSettings(entries) {
		if IsIgnored(s.Name) {
			continue
		}
		if monitor && s.Name == PortSetting {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Port returns the PostgreSQL port set in entries, or DefaultPort.
func Port(entries []string) int {
	for _, s := range ParseSettings(entries) {
		if s.Name != PortSetting {
			continue
		}
		if p, err := strconv.Atoi(strings.Trim(s.Value, `'"`)); err == nil && p > 0 {
			return p
		}
	}
	return DefaultPort
}

// DefaultLogSettings are injected after user settings on every instance so
// that the csv log layout read by the log foreign tables is always in effect.
func DefaultLogSettings() []Setting {
	return []Setting{
		{Name: "log_truncate_on_rotation", Value: "true"},
		{Name: "logging_collector", Value: "on"},
		{Name: "log_directory", Value: "'log'"},
		{Name: "log_filename", Value: "'postgresql_%d'"},
		{Name: "log_line_prefix", Value: "'[%m][%r][%a][%u][%d][%x][%p]'"},
		{Name: "log_destination", Value: "'csvlog'"},
		{Name: "log_autovacuum_min_duration", Value: "-1"},
		{Name: "log_timezone", Value: "'Asia/Shanghai'"},
		{Name: "datestyle", Value: "'iso, ymd'"},
		{Name: "timezone", Value: "'Asia/Shanghai'"},
	}
}

// EnvName is the environment variable carrying a setting.
func (s Setting) EnvName() string { return ConfigPrefix + s.Name }

// HBAEnvName is the environment variable carrying host-based-access rule i.
func HBAEnvName(i int) string { return fmt.Sprintf("%s%d", HBAPrefix, i) }

// RestartMode tells ApplyConfig how to make new settings effective.
type RestartMode int

const (
	// Reload applies hot-settable parameters only.
	Reload RestartMode = iota
	// Restart restarts the server gracefully.
	Restart
	// Redeploy restarts the node and re-registers it with the monitor.
	// Needed when the port moves.
	Redeploy
)

// ConfigPlan is the result of comparing an old and a new configs list.
type ConfigPlan struct {
	// Settings are the settable new entries, in order.
	Settings []Setting
	// Mode is the strongest restart any changed entry needs.
	Mode RestartMode
}

// PortChanged reports whether the plan moves the listen port.
func (p ConfigPlan) PortChanged() bool { return p.Mode == Redeploy }

// PlanConfigUpdate works out what applying newEntries over oldEntries
// involves. A restart is needed only when a restart-listed name was present
// before with a different value.
func PlanConfigUpdate(oldEntries, newEntries []string, monitor bool) ConfigPlan {
	previous := map[string]string{}
	for _, s := range ParseSettings(oldEntries) {
		previous[s.Name] = s.Value
	}

	plan := ConfigPlan{Settings: Settable(newEntries, monitor)}
	for _, s := range plan.Settings {
		if !NeedsRestart(s.Name) {
			continue
		}
		old, ok := previous[s.Name]
		if !ok || old == s.Value {
			continue
		}
		if s.Name == PortSetting {
			plan.Mode = Redeploy
		} else if plan.Mode < Restart {
			plan.Mode = Restart
		}
	}
	return plan
}

// ApplyConfig injects settings into the running instance. Success output
// contains Success.
func ApplyConfig(settings []Setting, mode RestartMode) string {
	var b strings.Builder
	b.WriteString("pgtools -c")
	for _, s := range settings {
		fmt.Fprintf(&b, ` -e %s="%s"`, s.EnvName(), s.Value)
	}
	switch mode {
	case Redeploy:
		b.WriteString(" -d")
	case Restart:
		b.WriteString(" -r")
	}
	return b.String()
}
