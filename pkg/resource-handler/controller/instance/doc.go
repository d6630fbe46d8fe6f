// Package instance creates, starts, stops and removes the instances of a
// PostgreSQLCluster.
//
// An instance runs either as a single-replica StatefulSet with its own
// headless Service, or as a docker-compose project on an SSH machine. Both
// backends receive the same environment: host-based-access rules, settable
// configuration, the fixed log settings and the role wiring that points an
// instance at the pg_auto_failover monitor.
package instance
