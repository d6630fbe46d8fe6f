package postgresqlcluster

import (
	"context"

	utilrand "k8s.io/apimachinery/pkg/util/rand"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/autofailover"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/monitoring"
)

// createCluster brings a new cluster up, resuming at status.createPhase.
// Each step records the phase it completed. A spec that fails validation is
// rejected before anything is provisioned.
func (r *PostgreSQLClusterReconciler) createCluster(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
) error {
	if cluster.Status.CreatePhase == "" {
		if err := cluster.Spec.ValidateCreate(); err != nil {
			return connection.Fatalf("invalid cluster spec: %w", err)
		}
		r.Recorder.Event(cluster, "Normal", "Creating", "Creating PostgreSQL cluster")
		err := r.patchStatus(ctx, cluster, func(c *pgv1alpha1.PostgreSQLCluster) {
			if c.Status.AutoctlNodePassword == "" {
				c.Status.AutoctlNodePassword = utilrand.String(passwordLength)
			}
			if c.Status.ReplicatorPassword == "" {
				c.Status.ReplicatorPassword = utilrand.String(passwordLength)
			}
			c.Status.CreatePhase = pgv1alpha1.CreatePhaseBegin
		})
		if err != nil {
			return err
		}
	}

	steps := []struct {
		from pgv1alpha1.CreatePhase
		to   pgv1alpha1.CreatePhase
		run  func(context.Context, *pgv1alpha1.PostgreSQLCluster) error
	}{
		{pgv1alpha1.CreatePhaseBegin, pgv1alpha1.CreatePhaseAddAutoFailover, r.createServices},
		{pgv1alpha1.CreatePhaseAddAutoFailover, pgv1alpha1.CreatePhaseAddReadWrite, r.createAutoFailover},
		{pgv1alpha1.CreatePhaseAddReadWrite, pgv1alpha1.CreatePhaseAddReadOnly, r.createReadWrite},
		{pgv1alpha1.CreatePhaseAddReadOnly, pgv1alpha1.CreatePhaseFinished, r.createReadOnly},
	}
	for _, step := range steps {
		if cluster.Status.CreatePhase != step.from {
			continue
		}
		if err := monitoring.InSpan(ctx, "Create."+string(step.to), func(ctx context.Context) error {
			return step.run(ctx, cluster)
		}); err != nil {
			return err
		}
		if err := r.setCreatePhase(ctx, cluster, step.to); err != nil {
			return err
		}
	}

	r.Recorder.Event(cluster, "Normal", "Created", "PostgreSQL cluster created")
	return nil
}

func (r *PostgreSQLClusterReconciler) createServices(ctx context.Context, cluster *pgv1alpha1.PostgreSQLCluster) error {
	return r.services().Create(ctx, cluster)
}

func (r *PostgreSQLClusterReconciler) createAutoFailover(ctx context.Context, cluster *pgv1alpha1.PostgreSQLCluster) error {
	conns, err := r.Connector.Group(ctx, cluster, pgv1alpha1.RoleAutoFailover)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, conns)

	if err := r.provisioner().Create(ctx, cluster, pgv1alpha1.RoleAutoFailover, 0, int32(len(conns)), conns, false); err != nil {
		return err
	}
	return autofailover.WaitInitialized(ctx, conns, r.Options.Policies)
}

func (r *PostgreSQLClusterReconciler) createReadWrite(ctx context.Context, cluster *pgv1alpha1.PostgreSQLCluster) error {
	return r.createGroup(ctx, cluster, pgv1alpha1.RoleReadWrite, 0, true)
}

func (r *PostgreSQLClusterReconciler) createReadOnly(ctx context.Context, cluster *pgv1alpha1.PostgreSQLCluster) error {
	return r.createGroup(ctx, cluster, pgv1alpha1.RoleReadOnly, 0, false)
}

// createGroup provisions replicas [from, end) of role.
func (r *PostgreSQLClusterReconciler) createGroup(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	role pgv1alpha1.InstanceRole,
	from int32,
	waitPrimary bool,
) error {
	conns, err := r.Connector.Group(ctx, cluster, role)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, conns)
	return r.provisioner().Create(ctx, cluster, role, from, int32(len(conns)), conns, waitPrimary)
}
