package postgresqlcluster

import (
	"context"
	"errors"

	"sigs.k8s.io/controller-runtime/pkg/log"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/connection"
)

// teardownOrder removes the monitor last so it can still report the primary
// while PostgreSQL instances are dropped.
var teardownOrder = []pgv1alpha1.InstanceRole{
	pgv1alpha1.RoleReadOnly,
	pgv1alpha1.RoleReadWrite,
	pgv1alpha1.RoleAutoFailover,
}

// deleteCluster removes the exposed services and, with spec.deletepvc, every
// instance together with its storage. Without it the workloads are left to
// garbage collection through their owner references and the claims are
// retained.
func (r *PostgreSQLClusterReconciler) deleteCluster(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
) error {
	logger := log.FromContext(ctx)
	logger.Info("Deleting PostgreSQL cluster", "deleteStorage", cluster.Spec.DeletePVC)

	var errs []error
	if cluster.Spec.DeletePVC {
		for _, role := range teardownOrder {
			if err := r.deleteGroup(ctx, cluster, role); err != nil {
				if connection.IsFatal(err) {
					return err
				}
				errs = append(errs, err)
			}
		}
	}
	if err := r.services().Delete(ctx, cluster); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *PostgreSQLClusterReconciler) deleteGroup(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	role pgv1alpha1.InstanceRole,
) error {
	conns, err := r.Connector.Group(ctx, cluster, role)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, conns)
	return r.provisioner().Delete(ctx, cluster, conns, true)
}
