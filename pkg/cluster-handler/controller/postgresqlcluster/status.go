package postgresqlcluster

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/monitoring"
	"github.com/radondb/postgres-operator/pkg/util/metadata"
	"github.com/radondb/postgres-operator/pkg/util/status"
)

var roles = []pgv1alpha1.InstanceRole{
	pgv1alpha1.RoleAutoFailover,
	pgv1alpha1.RoleReadWrite,
	pgv1alpha1.RoleReadOnly,
}

// patchStatus applies mutate to cluster and merge-patches the status
// subresource with the difference.
func (r *PostgreSQLClusterReconciler) patchStatus(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	mutate func(*pgv1alpha1.PostgreSQLCluster),
) error {
	base := cluster.DeepCopy()
	mutate(cluster)
	if err := r.Status().Patch(ctx, cluster, client.MergeFrom(base)); err != nil {
		return fmt.Errorf("failed to patch status: %w", err)
	}
	return nil
}

func (r *PostgreSQLClusterReconciler) setCreatePhase(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	phase pgv1alpha1.CreatePhase,
) error {
	log.FromContext(ctx).Info("Creation phase", "phase", phase)
	return r.patchStatus(ctx, cluster, func(c *pgv1alpha1.PostgreSQLCluster) {
		c.Status.CreatePhase = phase
	})
}

// lastApplied decodes the spec stored by storeLastApplied. It returns nil
// when none was stored.
func lastApplied(cluster *pgv1alpha1.PostgreSQLCluster) (*pgv1alpha1.PostgreSQLClusterSpec, error) {
	raw, ok := cluster.Annotations[LastAppliedAnnotation]
	if !ok {
		return nil, nil
	}
	spec := &pgv1alpha1.PostgreSQLClusterSpec{}
	if err := json.Unmarshal([]byte(raw), spec); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", LastAppliedAnnotation, err)
	}
	return spec, nil
}

func (r *PostgreSQLClusterReconciler) storeLastApplied(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
) error {
	raw, err := json.Marshal(cluster.Spec)
	if err != nil {
		return fmt.Errorf("failed to encode spec: %w", err)
	}
	if cluster.Annotations[LastAppliedAnnotation] == string(raw) {
		return nil
	}
	base := cluster.DeepCopy()
	if cluster.Annotations == nil {
		cluster.Annotations = map[string]string{}
	}
	cluster.Annotations[LastAppliedAnnotation] = string(raw)
	if err := r.Patch(ctx, cluster, client.MergeFrom(base)); err != nil {
		return fmt.Errorf("failed to store last applied spec: %w", err)
	}
	return nil
}

// correctionDue reports whether the last correction pass is older than the
// correction interval. An unparsable timestamp is due.
func (r *PostgreSQLClusterReconciler) correctionDue(cluster *pgv1alpha1.PostgreSQLCluster) bool {
	if cluster.Status.TimerLastRun == "" {
		return true
	}
	now := r.Options.clock().Now()
	last, err := time.ParseInLocation(TimerLayout, cluster.Status.TimerLastRun, now.Location())
	if err != nil {
		return true
	}
	return now.Sub(last) >= r.Options.interval()
}

// updateStatus refreshes the phase and the ready instance count.
func (r *PostgreSQLClusterReconciler) updateStatus(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
) error {
	oldPhase := cluster.Status.Phase

	var ready, total int32
	for _, role := range roles {
		want := cluster.Spec.Replicas(role)
		got, err := r.readyInstances(ctx, cluster, role)
		if err != nil {
			return err
		}
		total += want
		ready += min(got, want)
		monitoring.SetClusterInstances(cluster.Name, cluster.Namespace, string(role), got)
	}
	phase := status.ComputePhase(ready, total)
	if cluster.Status.CreatePhase != pgv1alpha1.CreatePhaseFinished && phase == pgv1alpha1.PhaseHealthy {
		phase = pgv1alpha1.PhaseProgressing
	}

	err := r.patchStatus(ctx, cluster, func(c *pgv1alpha1.PostgreSQLCluster) {
		c.Status.ObservedGeneration = c.Generation
		c.Status.ReadyInstances = ready
		c.Status.Phase = phase
		if phase == pgv1alpha1.PhaseHealthy {
			status.SetReady(c, metav1.ConditionTrue, status.ReasonReconciled, "All instances are ready")
		} else {
			status.SetReady(c, metav1.ConditionFalse, status.ReasonCreating,
				fmt.Sprintf("%d of %d instances are ready", ready, total))
		}
	})
	if err != nil {
		return err
	}

	if oldPhase != phase {
		r.Recorder.Eventf(cluster, "Normal", "PhaseChange", "Transitioned from '%s' to '%s'", oldPhase, phase)
	}
	monitoring.SetClusterInfo(cluster.Name, cluster.Namespace, string(phase))
	return nil
}

// readyInstances counts the ready instances of a group. Machines have no
// readiness signal and count as ready once creation has finished.
func (r *PostgreSQLClusterReconciler) readyInstances(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	role pgv1alpha1.InstanceRole,
) (int32, error) {
	if cluster.Spec.MachineMode() {
		if cluster.Status.CreatePhase == pgv1alpha1.CreatePhaseFinished {
			return cluster.Spec.Replicas(role), nil
		}
		return 0, nil
	}

	list := &appsv1.StatefulSetList{}
	if err := r.List(ctx, list,
		client.InNamespace(cluster.Namespace),
		client.MatchingLabels(metadata.GetSelectorLabels(
			metadata.InstanceLabels(cluster.Name, cluster.Namespace, role))),
	); err != nil {
		return 0, fmt.Errorf("failed to list StatefulSets: %w", err)
	}
	var ready int32
	for _, sts := range list.Items {
		ready += sts.Status.ReadyReplicas
	}
	return ready, nil
}
