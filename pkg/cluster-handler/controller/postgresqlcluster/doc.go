// Package postgresqlcluster implements the controller for the PostgreSQLCluster
// resource.
//
// A cluster is one pg_auto_failover monitor, a read-write group that holds the
// primary and its synchronous standbys, and an optional read-only group of
// streaming standbys. Each group runs either as single-replica StatefulSets or
// as docker-compose deployments on SSH machines.
//
// The reconciler has four responsibilities:
//
//  1. Creation:
//     A new cluster is brought up group by group. The monitor must exist before
//     any PostgreSQL node because nodes register with it on start, and users
//     are created on the primary before the read-only group is added. Progress
//     is recorded in status.createPhase so an interrupted creation resumes at
//     the step that failed.
//
//  2. Updates:
//     The spec that was last applied is kept in an annotation. Each pass diffs
//     it against the live spec and runs one handler per changed field, in a
//     fixed order, before storing the new spec.
//
//  3. Corrections:
//     At most once per correction interval a best-effort pass relabels pod
//     roles, repairs drifted passwords and keepalived, samples disaster
//     recovery and archive state, and issues the server certificate.
//
//  4. Deletion:
//     A finalizer holds the resource until the instances are removed. Storage
//     is deleted only when spec.deletepvc is set.
package postgresqlcluster
