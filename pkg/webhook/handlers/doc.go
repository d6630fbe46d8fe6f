// Package handlers implements admission validation for PostgreSQLCluster.
//
// The validator rejects specs that the reconciler could never act on, such as
// a machine cluster without an autofailover machine or a switch between pod
// and machine mode. It reuses the spec's own validation so admission and
// reconciliation agree on what is permanent.
package handlers
