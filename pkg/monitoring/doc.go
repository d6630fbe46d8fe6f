// Package monitoring provides Prometheus metrics and tracing helpers for the
// PostgreSQL operator. The gauges and counters complement the generic
// controller-runtime metrics with cluster state and remote command activity
// that the framework cannot know about.
//
// All metrics are named postgres_operator_<metric>_<unit> and are registered
// against controller-runtime's default Prometheus registry on import.
//
// Usage in controllers:
//
//	monitoring.SetClusterInfo(cluster.Name, cluster.Namespace, string(cluster.Status.Phase))
//	monitoring.SetClusterInstances(cluster.Name, cluster.Namespace, "readwrite", 2)
//	monitoring.RecordCorrection("role", err)
//
// Usage in the connection layer:
//
//	monitoring.RecordRemoteCommand("machine", err == nil, elapsed)
package monitoring
