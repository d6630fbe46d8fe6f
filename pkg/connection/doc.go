// Package connection provides short-lived handles to the instances of a
// PostgreSQL cluster.
//
// An instance is either a Kubernetes pod, reached through the exec
// subresource for every command, or an SSH machine running the instance in
// docker-compose, reached through a shell session and an SFTP session that the
// handle owns. Both satisfy Connection. Handles are opened per operation and
// must be released with Close (or Connections.Close) before the operation
// returns.
package connection
