// Package cert issues and rotates TLS certificates stored in Kubernetes
// Secrets.
//
// A Rotator keeps two Secrets current: a root CA (never mounted into any
// pod) and a server certificate signed by it. The operator uses one Rotator
// for its own admission webhook and one per PostgreSQLCluster for the
// database server certificate.
//
// Lifecycle:
//   - Reconcile creates missing Secrets, replaces corrupt ones and renews
//     certificates within RotationThreshold of expiry. A server certificate
//     that no longer chains to the current CA or misses a requested DNS name
//     is reissued.
//   - Bootstrap runs Reconcile once at startup and optionally waits for the
//     kubelet to project the server certificate to disk.
//   - Start runs Reconcile periodically as a manager Runnable.
//
// Usage:
//
//	r := cert.NewRotator(client, recorder, cert.Options{
//	    Namespace:        "db",
//	    CASecretName:     "pg-ca",
//	    ServerSecretName: "pg-server-tls",
//	    CommonName:       "pg-primary.db.svc",
//	    DNSNames:         addresses,
//	    Owner:            cluster,
//	})
//	if err := r.Reconcile(ctx); err != nil {
//	    // handle error
//	}
package cert
