package postgresqlcluster

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/autofailover"
	"github.com/radondb/postgres-operator/pkg/cluster-handler/diff"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/monitoring"
	"github.com/radondb/postgres-operator/pkg/pgtools"
	"github.com/radondb/postgres-operator/pkg/resource-handler/controller/instance"
)

// updateCluster converges a created cluster from the last applied spec to
// the current one, one change at a time. The current spec is recorded only
// once every change has been applied, so a failed change is retried on the
// next reconcile.
func (r *PostgreSQLClusterReconciler) updateCluster(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
) error {
	logger := log.FromContext(ctx)

	old, err := lastApplied(cluster)
	if err != nil {
		logger.Error(err, "Discarding unreadable last applied spec")
		return r.storeLastApplied(ctx, cluster)
	}
	if old == nil {
		return r.storeLastApplied(ctx, cluster)
	}

	changes := diff.Compute(old, &cluster.Spec)
	if len(changes) == 0 {
		return nil
	}
	if err := cluster.Spec.ValidateUpdate(old); err != nil {
		return connection.Fatalf("invalid spec update: %w", err)
	}

	for _, change := range changes {
		logger.Info("Applying spec change", "field", change.Field.String(), "kind", change.Kind)
		monitoring.RecordSpecChange(change.Field.String())
		err := monitoring.InSpan(ctx, "Update."+change.Field.String(), func(ctx context.Context) error {
			return r.applyChange(ctx, cluster, old, change)
		})
		if err != nil {
			return fmt.Errorf("failed to apply %s: %w", change.Field, err)
		}
	}

	r.Recorder.Eventf(cluster, "Normal", "Updated", "Applied %d spec changes", len(changes))
	return r.storeLastApplied(ctx, cluster)
}

func (r *PostgreSQLClusterReconciler) applyChange(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	old *pgv1alpha1.PostgreSQLClusterSpec,
	change diff.Change,
) error {
	switch change.Field {
	case diff.ReadWriteReplicas, diff.ReadOnlyReplicas:
		return r.updateReplicas(ctx, cluster, old, change.Field.Role())
	case diff.ReadWriteMachines, diff.ReadOnlyMachines:
		return r.updateMachines(ctx, cluster, old, change.Field.Role())
	case diff.Action:
		return r.updateAction(ctx, cluster, change)
	case diff.Services:
		return r.services().Refresh(ctx, cluster)
	case diff.AutoFailoverHBAs, diff.PostgreSQLHBAs:
		return r.updateHBAs(ctx, cluster, change.Field)
	case diff.Users:
		return r.updateUsers(ctx, cluster, old, change)
	case diff.Streaming:
		return r.updateStreaming(ctx, cluster, change)
	case diff.AutoFailoverTemplate, diff.ReadWriteTemplate, diff.ReadOnlyTemplate:
		return r.updateTemplate(ctx, cluster, change.Field.Role())
	case diff.AutoFailoverConfigs, diff.PostgreSQLConfigs:
		return r.updateConfigs(ctx, cluster, old, change.Field)
	}
	return nil
}

// updateReplicas scales a pod group. New replicas are created after the
// existing ones; removed replicas are dropped with their storage.
func (r *PostgreSQLClusterReconciler) updateReplicas(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	old *pgv1alpha1.PostgreSQLClusterSpec,
	role pgv1alpha1.InstanceRole,
) error {
	prev, cur := old.Replicas(role), cluster.Spec.Replicas(role)
	log.FromContext(ctx).Info("Scaling instances", "role", role, "from", prev, "to", cur)

	if cur > prev {
		return r.createGroup(ctx, cluster, role, prev, false)
	}
	return r.provisioner().Delete(ctx, cluster, r.Connector.Pods(cluster, role, cur, prev), true)
}

// updateMachines follows a changed machine list. Machines no longer listed
// are dropped with their data, then newly listed machines are provisioned
// wherever they appear in the list. The virtual IPs are reconfigured
// afterwards.
func (r *PostgreSQLClusterReconciler) updateMachines(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	old *pgv1alpha1.PostgreSQLClusterSpec,
	role pgv1alpha1.InstanceRole,
) error {
	prev, cur := old.Machines(role), cluster.Spec.Machines(role)

	if err := r.deleteMachines(ctx, cluster, role, missingFrom(prev, cur)); err != nil {
		return err
	}
	if err := r.createMachines(ctx, cluster, role, missingFrom(cur, prev)); err != nil {
		return err
	}
	return r.services().Refresh(ctx, cluster)
}

// missingFrom returns the addresses of list that other does not contain.
func missingFrom(list, other []string) []string {
	var out []string
	for _, m := range list {
		if !slices.Contains(other, m) {
			out = append(out, m)
		}
	}
	return out
}

func (r *PostgreSQLClusterReconciler) createMachines(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	role pgv1alpha1.InstanceRole,
	addresses []string,
) error {
	if len(addresses) == 0 {
		return nil
	}
	conns, err := r.Connector.Machines(ctx, role, addresses)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, conns)
	return r.provisioner().Create(ctx, cluster, role, 0, int32(len(conns)), conns, false)
}

func (r *PostgreSQLClusterReconciler) deleteMachines(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	role pgv1alpha1.InstanceRole,
	addresses []string,
) error {
	if len(addresses) == 0 {
		return nil
	}
	conns, err := r.Connector.Machines(ctx, role, addresses)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, conns)
	return r.provisioner().Delete(ctx, cluster, conns, true)
}

// updateAction starts or stops every instance. The monitor goes first so
// that it is up before the nodes reconnect and down before a stopping
// primary could be failed over.
func (r *PostgreSQLClusterReconciler) updateAction(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	change diff.Change,
) error {
	logger := log.FromContext(ctx)
	if change.Kind != diff.KindChange {
		logger.Error(nil, "Action can only be changed", "kind", change.Kind)
		return nil
	}

	start := cluster.Spec.Action != pgv1alpha1.ActionStop
	for _, role := range roles {
		if err := r.setGroupAction(ctx, cluster, role, start); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgreSQLClusterReconciler) setGroupAction(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	role pgv1alpha1.InstanceRole,
	start bool,
) error {
	conns, err := r.Connector.Group(ctx, cluster, role)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, conns)

	p := r.provisioner()
	for _, conn := range conns {
		p.SetAction(ctx, conn, start)
	}
	return nil
}

// hbaRoles are the groups whose pg_hba.conf a HBAs field controls.
func hbaRoles(field diff.Field) []pgv1alpha1.InstanceRole {
	if field == diff.AutoFailoverHBAs {
		return []pgv1alpha1.InstanceRole{pgv1alpha1.RoleAutoFailover}
	}
	return []pgv1alpha1.InstanceRole{pgv1alpha1.RoleReadWrite, pgv1alpha1.RoleReadOnly}
}

func (r *PostgreSQLClusterReconciler) updateHBAs(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	field diff.Field,
) error {
	groups := hbaRoles(field)
	cmd := pgtools.SetHBAs(cluster.Spec.HBAs(groups[0]))
	return r.runOnGroups(ctx, cluster, groups, cmd, "Failed to update HBAs")
}

// updateStreaming moves the read-only instances in or out of the
// replication quorum.
func (r *PostgreSQLClusterReconciler) updateStreaming(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	change diff.Change,
) error {
	if change.Kind != diff.KindChange {
		log.FromContext(ctx).Error(nil, "Streaming can only be changed", "kind", change.Kind)
		return nil
	}
	quorum := 0
	if cluster.Spec.PostgreSQL.ReadOnlyInstance.Streaming == pgv1alpha1.StreamingSync {
		quorum = 1
	}
	return r.runOnGroups(ctx, cluster, []pgv1alpha1.InstanceRole{pgv1alpha1.RoleReadOnly},
		pgtools.SetReplicationQuorum(quorum), "Failed to set replication quorum")
}

// runOnGroups runs cmd on every instance of roles and logs outputs that
// lack the success marker.
func (r *PostgreSQLClusterReconciler) runOnGroups(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	roles []pgv1alpha1.InstanceRole,
	cmd string,
	failure string,
) error {
	for _, role := range roles {
		if err := r.runOnGroup(ctx, cluster, role, cmd, failure); err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgreSQLClusterReconciler) runOnGroup(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	role pgv1alpha1.InstanceRole,
	cmd string,
	failure string,
) error {
	conns, err := r.Connector.Group(ctx, cluster, role)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, conns)

	logger := log.FromContext(ctx)
	for _, conn := range conns {
		if out := connection.ExecuteOrLog(ctx, conn, cmd); !strings.Contains(out, pgtools.Success) {
			logger.Error(nil, failure, "instance", conn.Name(), "command", cmd, "output", out)
		}
	}
	return nil
}

// updateUsers converges the database roles on the primary.
func (r *PostgreSQLClusterReconciler) updateUsers(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	old *pgv1alpha1.PostgreSQLClusterSpec,
	change diff.Change,
) error {
	conns, err := r.Connector.Group(ctx, cluster, pgv1alpha1.RoleReadWrite)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, conns)

	if change.Kind == diff.KindAdd {
		return r.provisioner().CreateUsers(ctx, conns, cluster.Spec.PostgreSQL.Users)
	}

	primary, err := autofailover.Primary(ctx, conns, r.Options.Policies.Primary)
	if err != nil {
		return err
	}
	if primary == nil {
		log.FromContext(ctx).Info("No primary found, users not updated")
		return nil
	}

	prev := old.PostgreSQL.Users
	cur := cluster.Spec.PostgreSQL.Users
	if change.Kind == diff.KindRemove {
		for _, u := range slices.Concat(prev.Admin, prev.Normal) {
			instance.DropUser(ctx, primary, u.Name)
		}
		return nil
	}
	reconcileUsers(ctx, primary, prev.Admin, cur.Admin, true)
	reconcileUsers(ctx, primary, prev.Normal, cur.Normal, false)
	return nil
}

// reconcileUsers changes passwords of kept users, drops users no longer
// listed and creates new ones.
func reconcileUsers(ctx context.Context, conn connection.Connection, prev, cur []pgv1alpha1.UserSpec, admin bool) {
	byName := func(users []pgv1alpha1.UserSpec, name string) (pgv1alpha1.UserSpec, bool) {
		i := slices.IndexFunc(users, func(u pgv1alpha1.UserSpec) bool { return u.Name == name })
		if i < 0 {
			return pgv1alpha1.UserSpec{}, false
		}
		return users[i], true
	}

	for _, u := range cur {
		if o, ok := byName(prev, u.Name); ok && o.Password != u.Password {
			instance.ChangePassword(ctx, conn, u.Name, u.Password)
		}
	}
	for _, o := range prev {
		if _, ok := byName(cur, o.Name); !ok {
			instance.DropUser(ctx, conn, o.Name)
		}
	}
	for _, u := range cur {
		if _, ok := byName(prev, u.Name); !ok {
			instance.CreateUser(ctx, conn, u, admin)
		}
	}
}

// updateTemplate redeploys every instance of a group on a changed pod
// template. Data is kept: the instances rejoin from their existing storage.
func (r *PostgreSQLClusterReconciler) updateTemplate(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	role pgv1alpha1.InstanceRole,
) error {
	conns, err := r.Connector.Group(ctx, cluster, role)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, conns)

	log.FromContext(ctx).Info("Redeploying instances", "role", role, "instances", len(conns))
	p := r.provisioner()
	if err := p.Delete(ctx, cluster, conns, false); err != nil {
		return err
	}
	if err := p.Create(ctx, cluster, role, 0, int32(len(conns)), conns, false); err != nil {
		return err
	}
	if role == pgv1alpha1.RoleAutoFailover {
		return autofailover.WaitInitialized(ctx, conns, r.Options.Policies)
	}
	return nil
}

// updateConfigs injects changed settings into the instances of the group.
// A primary is switched over before it is touched when it has a standby.
// A moved port redeploys the instances, waits for the cluster to settle and
// re-exposes the services on the new port.
func (r *PostgreSQLClusterReconciler) updateConfigs(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	old *pgv1alpha1.PostgreSQLClusterSpec,
	field diff.Field,
) error {
	logger := log.FromContext(ctx)

	monitorRole := field == diff.AutoFailoverConfigs
	groups := []pgv1alpha1.InstanceRole{pgv1alpha1.RoleReadWrite, pgv1alpha1.RoleReadOnly}
	if monitorRole {
		groups = []pgv1alpha1.InstanceRole{pgv1alpha1.RoleAutoFailover}
	}

	var conns connection.Connections
	defer func() { connection.CloseAll(ctx, conns) }()
	for _, role := range groups {
		group, err := r.Connector.Group(ctx, cluster, role)
		if err != nil {
			return err
		}
		conns = append(conns, group...)
	}
	if len(conns) == 0 {
		return nil
	}

	monitorConns, err := r.Connector.Group(ctx, cluster, pgv1alpha1.RoleAutoFailover)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, monitorConns)
	monitor := autofailover.NewMonitor(monitorConns, r.Options.Policies)

	role := groups[0]
	plan := pgtools.PlanConfigUpdate(old.Configs(role), cluster.Spec.Configs(role), monitorRole)
	cmd := pgtools.ApplyConfig(plan.Settings, plan.Mode)
	logger.Info("Updating configs", "command", cmd)

	haveStandby := cluster.Spec.Replicas(pgv1alpha1.RoleReadWrite) > 1
	for _, conn := range conns {
		if haveStandby && monitor.PrimaryHost(ctx) == conn.Host() {
			monitor.Switchover(ctx)
		}
		if out := connection.ExecuteOrLog(ctx, conn, cmd); !strings.Contains(out, pgtools.Success) {
			logger.Error(nil, "Failed to update configs", "instance", conn.Name(), "command", cmd, "output", out)
		}
	}

	if !plan.PortChanged() {
		return nil
	}
	if err := monitor.WaitHealthy(ctx); err != nil {
		return err
	}
	return r.services().Refresh(ctx, cluster)
}
