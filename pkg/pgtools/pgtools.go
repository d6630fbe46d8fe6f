// Package pgtools builds the command lines understood by the pgtools binary
// shipped in every instance image, and the output texts that signal their
// success.
//
// pgtools exit codes are not used. Each caller compares the command output
// with the sentinel documented next to the command it runs.
package pgtools

import (
	"fmt"
	"strings"
)

// Output sentinels.
const (
	// InitFinished is printed by ReadyCheck once the instance is initialized.
	InitFinished = "init postgresql finish"
	// InstanceRunning is echoed back by InstanceCheck.
	InstanceRunning = "running success"
	// Success is contained in the output of configuration commands.
	Success = "SUCCESS"
	// StopFailed is contained in the output of a failed Stop.
	StopFailed = "stop auto_failover failed"
	// SwitchoverFailed is contained in the output of a failed Switchover.
	SwitchoverFailed = "switchover failed"
	// PasswordFailed is contained in psql output when authentication fails.
	PasswordFailed = "password authentication failed for user"
	// ConnectFailed is contained in pg_autoctl output when the monitor is
	// unreachable.
	ConnectFailed = "Failed to connect to"
	// KeepalivedRunning is contained in systemctl status of a healthy agent.
	KeepalivedRunning = "Active: active (running)"
	// AcceptingConnections is contained in pg_isready output of a live server.
	AcceptingConnections = "accepting connections"
)

// Environment variable prefixes read by the instance entrypoint.
const (
	ConfigPrefix = "PG_CONFIG_"
	HBAPrefix    = "PG_HBA_"
)

// Ports and paths inside the instance.
const (
	// AutoFailoverPort is the port of the pg_auto_failover monitor.
	AutoFailoverPort = 55555
	// DefaultPort is the PostgreSQL port when configs do not set one.
	DefaultPort = 5432
	// DatabaseDir is the PGDATA directory inside the container.
	DatabaseDir = "/var/lib/postgresql/data/pg_data"
	// RestoreLocal as a restore address means the data is already on the
	// instance.
	RestoreLocal = "local"
)

// Database users managed by the operator.
const (
	// AutoctlNodeUser authenticates nodes against the monitor.
	AutoctlNodeUser = "autoctl_node"
	// ReplicatorUser is used for streaming replication.
	ReplicatorUser = "pgautofailover_replicator"
)

// ReadyCheck prints InitFinished once the instance has joined the cluster.
func ReadyCheck() string { return "pgtools -a" }

// ReadyCheckArgs is ReadyCheck as an exec probe command.
func ReadyCheckArgs() []string { return []string{"pgtools", "-a"} }

// InstanceCheck echoes InstanceRunning once the container accepts commands.
func InstanceCheck() string { return "echo '" + InstanceRunning + "'" }

// Query runs sql on the local database, waiting for it to start.
func Query(sql string) string {
	return `pgtools -q "` + sql + `"`
}

// QueryNoWait runs sql on the local database without waiting for it.
func QueryNoWait(sql string) string {
	return `pgtools -w 0 -q "` + sql + `"`
}

// MonitorQuery runs sql on the pg_auto_failover monitor database.
func MonitorQuery(sql string) string {
	return `pgtools -w 0 -Q pg_auto_failover -q "` + sql + `"`
}

// ReadOnlyCheck prints "off" on a primary and "on" on a standby.
func ReadOnlyCheck() string { return QueryNoWait("show transaction_read_only") }

// Switchover asks the monitor to promote another node.
func Switchover() string { return "pgtools -o" }

// Drop removes the node from the monitor and deletes its data.
func Drop() string { return "pgtools -D" }

// Stop stops the node's pg_autoctl service.
func Stop() string { return "pgtools -R" }

// Pause deregisters the node and pauses the database service.
func Pause() string { return "pgtools -d -p pause" }

// Resume resumes a paused database service.
func Resume() string { return "pgtools -p resume" }

// SetReplicationQuorum sets the node's replication quorum. Success output
// contains Success.
func SetReplicationQuorum(quorum int) string {
	return fmt.Sprintf("pgtools -S 'node replication-quorum %d'", quorum)
}

// SetHBAs replaces the node's pg_hba.conf rules. Success output contains
// Success.
func SetHBAs(hbas []string) string {
	var b strings.Builder
	b.WriteString("pgtools -H")
	for i, hba := range hbas {
		fmt.Fprintf(&b, " -e %s%d='%s'", HBAPrefix, i, hba)
	}
	return b.String()
}

// SetS3 writes the S3 credentials profile of the backup tool.
func SetS3(endpoint, bucket, region, accessKey, secretKey string) string {
	env := []string{
		"S3_ENDPOINT=" + endpoint,
		"S3_BUCKET=" + bucket,
		"S3_REGION=" + region,
		"AWS_ACCESS_KEY_ID=" + accessKey,
		"AWS_SECRET_ACCESS_KEY=" + secretKey,
	}
	return "pgtools -v -e " + strings.Join(env, " -e ")
}

// S3ProfileUnsetCount prints how many fields of the aws profile are unset.
// A value of 4 means the profile was never written.
func S3ProfileUnsetCount() string {
	return "aws configure list | grep 'None' | wc -l"
}

// ShowArchiveCommand prints the archive_command setting.
func ShowArchiveCommand() string { return QueryNoWait("show archive_command;") }

// ArchiverStatus prints "last_archived_wal|last_archived_time".
func ArchiverStatus() string {
	return QueryNoWait("select last_archived_wal, last_archived_time from pg_stat_archiver limit 1;")
}

// PasswordProbe connects to host as user with password and selects 1. The
// output contains PasswordFailed when the password is stale.
func PasswordProbe(host, user, password string, port int) string {
	return fmt.Sprintf(`bash -c "PGPASSWORD=%s psql -h %s -d postgres -U %s -p %d -t -c 'select 1'"`,
		password, host, user, port)
}

// DisasterState prints row n (1-based) of "name|lsn|state" for nodes named
// node in the monitor state.
func DisasterState(node string, local bool, n int) string {
	localFlag := ""
	if local {
		localFlag = " --local"
	}
	return fmt.Sprintf("pg_autoctl show state%s --pgdata %s | grep %s | cut -d '|' -f 3,4,6 | tr -d ' ' | sed -n %dp",
		localFlag, DatabaseDir, node, n)
}

// IsReady probes host:port with pg_isready. The output contains
// AcceptingConnections when the server answers.
func IsReady(host string, port, timeoutSeconds int) string {
	return fmt.Sprintf("pg_isready -U postgres -t %d -h %s -p %d", timeoutSeconds, host, port)
}

// RemoveDatabaseDir deletes the data directory.
func RemoveDatabaseDir() string { return "rm -rf " + DatabaseDir }

// MoveIntoDatabaseDir moves a local directory into place as the data directory.
func MoveIntoDatabaseDir(path string) string {
	return "mv " + path + " " + DatabaseDir
}

// CopyIntoDatabaseDir copies a remote directory into place as the data
// directory with scp.
func CopyIntoDatabaseDir(user, password, host string, port int, path string) string {
	return fmt.Sprintf(`sshpass -p %s scp -P %d -o "StrictHostKeyChecking no" -r %s@%s:%s %s`,
		password, port, user, host, path, DatabaseDir)
}
