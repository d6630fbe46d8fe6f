package instance

import (
	"strings"

	corev1 "k8s.io/api/core/v1"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/pgtools"
)

// Environment variables read by the instance entrypoint.
const (
	EnvMode               = "PG_MODE"
	EnvNodePassword       = "AUTOCTL_NODE_PASSWORD"
	EnvReplicatorPassword = "AUTOCTL_REPLICATOR_PASSWORD"
	EnvExternalHostname   = "EXTERNAL_HOSTNAME"
	EnvMonitorHostname    = "MONITOR_HOSTNAME"
	EnvStreaming          = "PG_STREAMING"
	modeMonitor           = "monitor"
	modeReadWrite         = "readwrite"
	modeReadOnly          = "readonly"
	defaultStreaming      = pgv1alpha1.StreamingAsync
)

// Variable is one entry of an instance environment.
type Variable struct {
	Name  string
	Value string
}

// Hosts are the addresses an instance is wired with.
type Hosts struct {
	// Self is the address the instance announces to the monitor.
	Self string
	// Monitor is the address of the pg_auto_failover monitor. It is unused
	// for the monitor itself.
	Monitor string
}

// Environment builds the environment of one instance of role. Rules come
// first, then the settable configuration, then the log settings, so that
// the log settings win over anything a user configured. The role wiring
// comes last.
func Environment(cluster *pgv1alpha1.PostgreSQLCluster, role pgv1alpha1.InstanceRole, hosts Hosts) []Variable {
	spec := &cluster.Spec
	var vars []Variable

	for i, hba := range spec.HBAs(role) {
		vars = append(vars, Variable{Name: pgtools.HBAEnvName(i), Value: hba})
	}
	for _, s := range pgtools.Settable(spec.Configs(role), role == pgv1alpha1.RoleAutoFailover) {
		vars = append(vars, Variable{Name: s.EnvName(), Value: s.Value})
	}
	for _, s := range pgtools.DefaultLogSettings() {
		vars = append(vars, Variable{Name: s.EnvName(), Value: s.Value})
	}

	node := Variable{Name: EnvNodePassword, Value: cluster.Status.AutoctlNodePassword}
	self := Variable{Name: EnvExternalHostname, Value: hosts.Self}
	replicator := Variable{Name: EnvReplicatorPassword, Value: cluster.Status.ReplicatorPassword}
	monitor := Variable{Name: EnvMonitorHostname, Value: hosts.Monitor}

	switch role {
	case pgv1alpha1.RoleAutoFailover:
		vars = append(vars, Variable{Name: EnvMode, Value: modeMonitor}, node, self)
	case pgv1alpha1.RoleReadWrite:
		vars = append(vars, Variable{Name: EnvMode, Value: modeReadWrite}, node, self, replicator, monitor)
	case pgv1alpha1.RoleReadOnly:
		streaming := spec.PostgreSQL.ReadOnlyInstance.Streaming
		if streaming == "" {
			streaming = defaultStreaming
		}
		vars = append(vars, Variable{Name: EnvMode, Value: modeReadOnly}, node, self, replicator,
			Variable{Name: EnvStreaming, Value: string(streaming)}, monitor)
	}
	return vars
}

// EnvVars converts vars for a container spec.
func EnvVars(vars []Variable) []corev1.EnvVar {
	out := make([]corev1.EnvVar, 0, len(vars))
	for _, v := range vars {
		out = append(out, corev1.EnvVar{Name: v.Name, Value: v.Value})
	}
	return out
}

// EnvFile renders vars as a docker-compose env_file, one name=value per line.
func EnvFile(vars []Variable) []byte {
	var b strings.Builder
	for _, v := range vars {
		b.WriteString(v.Name)
		b.WriteByte('=')
		b.WriteString(v.Value)
		b.WriteByte('\n')
	}
	return []byte(b.String())
}
