// Package services exposes a PostgreSQLCluster to clients.
//
// On Kubernetes each declared service becomes a Service selecting the pods
// of a replication role. On machines the read-write machines run keepalived,
// which announces the main and read virtual IPs and balances them over the
// instances with LVS.
package services
