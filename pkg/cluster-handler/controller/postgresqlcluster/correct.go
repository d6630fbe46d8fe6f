package postgresqlcluster

import (
	"context"
	"errors"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/autofailover"
	"github.com/radondb/postgres-operator/pkg/cert"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/monitoring"
	"github.com/radondb/postgres-operator/pkg/pgtools"
	"github.com/radondb/postgres-operator/pkg/resource-handler/controller/instance"
	"github.com/radondb/postgres-operator/pkg/util/metadata"
	"github.com/radondb/postgres-operator/pkg/util/name"
)

// disasterRows bounds the remote nodes sampled from the monitor state.
const disasterRows = 9

// observed collects the status fields a correction pass refreshes.
type observed struct {
	disaster   map[string]pgv1alpha1.DisasterNodeState
	archive    *pgv1alpha1.ArchiveStatus
	serverCert string
}

// correctCluster runs one best-effort correction pass. Every step runs on
// its own: a failing step is logged and counted, and the next one runs.
// A disaster-recovery follower only refreshes its replication state.
func (r *PostgreSQLClusterReconciler) correctCluster(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
) {
	logger := log.FromContext(ctx).WithName("corrector")
	ctx = log.IntoContext(ctx, logger)

	lastRun := r.Options.clock().Now().Format(TimerLayout)
	obs := observed{
		disaster:   cluster.Status.DisasterBackupStatus,
		archive:    cluster.Status.Archive,
		serverCert: cluster.Status.ServerCertSecret,
	}

	r.correct(ctx, "disaster-status", func(ctx context.Context) error {
		states, err := r.disasterStatus(ctx, cluster)
		if err == nil {
			obs.disaster = states
		}
		return err
	})

	if !cluster.Spec.InDisasterBackup() {
		r.correct(ctx, "role", func(ctx context.Context) error {
			return r.correctRoles(ctx, cluster)
		})
		r.correct(ctx, "keepalived", func(ctx context.Context) error {
			return r.services().CorrectKeepalived(ctx, cluster)
		})
		r.correct(ctx, "password", func(ctx context.Context) error {
			return r.correctPasswords(ctx, cluster)
		})
		r.correct(ctx, "archive-status", func(ctx context.Context) error {
			archive, err := r.archiveStatus(ctx, cluster)
			if err == nil {
				obs.archive = archive
			}
			return err
		})
		r.correct(ctx, "s3-profile", func(ctx context.Context) error {
			return r.correctS3Profile(ctx, cluster)
		})
		r.correct(ctx, "tls", func(ctx context.Context) error {
			secret, err := r.issueServerCert(ctx, cluster)
			if err == nil {
				obs.serverCert = secret
			}
			return err
		})
	}

	err := r.patchStatus(ctx, cluster, func(c *pgv1alpha1.PostgreSQLCluster) {
		c.Status.TimerLastRun = lastRun
		c.Status.DisasterBackupStatus = obs.disaster
		c.Status.Archive = obs.archive
		c.Status.ServerCertSecret = obs.serverCert
	})
	if err != nil {
		logger.Error(err, "Failed to record correction results")
	}
}

func (r *PostgreSQLClusterReconciler) correct(ctx context.Context, step string, fn func(context.Context) error) {
	err := monitoring.InSpan(ctx, "Correct."+step, fn)
	monitoring.RecordCorrection(step, err)
	if err != nil {
		log.FromContext(ctx).Error(err, "Correction failed", "correction", step)
	}
}

// disasterStatus samples the replication state of the remote site nodes
// from the first read-write instance. An unreachable monitor yields an
// empty map, which clears the recorded state.
func (r *PostgreSQLClusterReconciler) disasterStatus(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
) (map[string]pgv1alpha1.DisasterNodeState, error) {
	conns, err := r.Connector.Group(ctx, cluster, pgv1alpha1.RoleReadWrite)
	if err != nil {
		return nil, err
	}
	defer connection.CloseAll(ctx, conns)
	if len(conns) == 0 {
		return nil, nil
	}

	node, local := cluster.Spec.DisasterNodeName(), cluster.Spec.InDisasterBackup()
	states := map[string]pgv1alpha1.DisasterNodeState{}
	for i := 1; i <= disasterRows; i++ {
		out := connection.ExecuteOrLog(ctx, conns[0], pgtools.DisasterState(node, local, i))
		if strings.Contains(out, pgtools.ConnectFailed) || out == connection.Failed {
			return nil, nil
		}
		fields := strings.Split(out, "|")
		if len(out) <= 10 || len(fields) < 3 {
			break
		}
		states[strings.TrimSpace(fields[0])] = pgv1alpha1.DisasterNodeState{
			LSN:   strings.TrimSpace(fields[1]),
			State: strings.TrimSpace(fields[2]),
		}
	}
	if len(states) == 0 {
		return nil, nil
	}
	return states, nil
}

// correctRoles relabels read-write pods with the role their server reports,
// so that Services selecting primary or standby follow a failover.
func (r *PostgreSQLClusterReconciler) correctRoles(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
) error {
	if cluster.Spec.MachineMode() {
		return nil
	}
	logger := log.FromContext(ctx)

	pods := &corev1.PodList{}
	if err := r.List(ctx, pods,
		client.InNamespace(cluster.Namespace),
		client.MatchingLabels(metadata.GetSelectorLabels(
			metadata.InstanceLabels(cluster.Name, cluster.Namespace, pgv1alpha1.RoleReadWrite))),
	); err != nil {
		return fmt.Errorf("failed to list read-write pods: %w", err)
	}

	var errs []error
	for i := range pods.Items {
		pod := &pods.Items[i]
		conn := connection.NewPodTarget(r.Connector.Exec, pgv1alpha1.RoleReadWrite,
			pod.Namespace, pod.Name, pod.Status.PodIP)

		var role string
		switch connection.ExecuteOrLog(ctx, conn, pgtools.ReadOnlyCheck()) {
		case "off":
			role = metadata.RolePrimary
		case "on":
			role = metadata.RoleStandby
		default:
			continue
		}
		if pod.Labels[metadata.LabelRole] == role {
			continue
		}

		logger.Info("Relabeling pod", "pod", pod.Name, "role", role)
		patch := client.MergeFrom(pod.DeepCopy())
		if pod.Labels == nil {
			pod.Labels = map[string]string{}
		}
		pod.Labels[metadata.LabelRole] = role
		if err := r.Patch(ctx, pod, patch); err != nil {
			errs = append(errs, fmt.Errorf("failed to relabel pod %s: %w", pod.Name, err))
		}
	}
	return errors.Join(errs...)
}

// correctPasswords resets the operator-managed passwords that no longer
// authenticate: autoctl_node on every monitor, the replicator on the
// primary.
func (r *PostgreSQLClusterReconciler) correctPasswords(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
) error {
	monitors, err := r.Connector.Group(ctx, cluster, pgv1alpha1.RoleAutoFailover)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, monitors)
	for _, conn := range monitors {
		instance.CorrectPassword(ctx, cluster, conn)
	}

	conns, err := r.Connector.Group(ctx, cluster, pgv1alpha1.RoleReadWrite)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, conns)
	primary, err := autofailover.Primary(ctx, conns, r.Options.Policies.Primary)
	if err != nil {
		return err
	}
	if primary == nil {
		log.FromContext(ctx).Info("No primary found, replicator password not checked")
		return nil
	}
	instance.CorrectPassword(ctx, cluster, primary)
	return nil
}

// archiveStatus reads pg_stat_archiver on the primary. It returns nil when
// archiving is not enabled.
func (r *PostgreSQLClusterReconciler) archiveStatus(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
) (*pgv1alpha1.ArchiveStatus, error) {
	if !cluster.Spec.ArchiveEnabled() {
		return nil, nil
	}
	conns, err := r.Connector.Group(ctx, cluster, pgv1alpha1.RoleReadWrite)
	if err != nil {
		return nil, err
	}
	defer connection.CloseAll(ctx, conns)
	primary, err := autofailover.Primary(ctx, conns, r.Options.Policies.Primary)
	if err != nil {
		return nil, err
	}
	if primary == nil {
		return cluster.Status.Archive, nil
	}

	wal, at, _ := strings.Cut(connection.ExecuteOrLog(ctx, primary, pgtools.ArchiverStatus()), "|")
	return &pgv1alpha1.ArchiveStatus{
		LastArchivedWAL:  strings.TrimSpace(wal),
		LastArchivedTime: strings.TrimSpace(at),
	}, nil
}

// correctS3Profile writes the S3 profile on instances that lost it while
// WAL is archived through barman.
func (r *PostgreSQLClusterReconciler) correctS3Profile(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
) error {
	s3 := cluster.Spec.S3
	if s3 == nil {
		return nil
	}
	logger := log.FromContext(ctx)

	conns, err := r.Connector.Group(ctx, cluster, pgv1alpha1.RoleReadWrite)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, conns)

	barman := false
	for _, conn := range conns {
		if strings.Contains(connection.ExecuteOrLog(ctx, conn, pgtools.ShowArchiveCommand()), "barman") {
			barman = true
			break
		}
	}
	if !barman {
		logger.V(1).Info("archive_command does not use barman, S3 profile not checked")
		return nil
	}

	for _, conn := range conns {
		if strings.TrimSpace(connection.ExecuteOrLog(ctx, conn, pgtools.S3ProfileUnsetCount())) != "4" {
			continue
		}
		logger.Info("Writing S3 profile", "instance", conn.Name())
		connection.ExecuteOrLog(ctx, conn, pgtools.SetS3(s3.Endpoint, s3.Bucket, s3.Region, s3.AccessKey, s3.SecretKey))
	}
	return nil
}

// issueServerCert issues the server certificate once and returns the name of
// its Secret.
func (r *PostgreSQLClusterReconciler) issueServerCert(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
) (string, error) {
	if cluster.Status.ServerCertSecret != "" {
		return cluster.Status.ServerCertSecret, nil
	}
	secret := name.ServerCertSecret(cluster.Name)
	rotator := cert.NewRotator(r.Client, r.Recorder, cert.Options{
		Namespace:        cluster.Namespace,
		CASecretName:     name.CASecret(cluster.Name),
		ServerSecretName: secret,
		CommonName:       fmt.Sprintf("%s.%s.svc", cluster.Name, cluster.Namespace),
		DNSNames:         serviceDNSNames(cluster),
		Owner:            cluster,
		ComponentName:    "PostgreSQL server",
	})
	if err := rotator.Reconcile(ctx); err != nil {
		return "", err
	}
	return secret, nil
}

// serviceDNSNames are the in-cluster names of the user Services.
func serviceDNSNames(cluster *pgv1alpha1.PostgreSQLCluster) []string {
	if cluster.Spec.MachineMode() {
		return nil
	}
	names := make([]string, 0, len(cluster.Spec.Services))
	for _, svc := range cluster.Spec.Services {
		names = append(names, fmt.Sprintf("%s.%s.svc", name.Service(cluster.Name, svc.Name), cluster.Namespace))
	}
	return names
}
