package instance

import (
	"context"
	"errors"
	"fmt"
	"strings"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/autofailover"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/pgtools"
	"github.com/radondb/postgres-operator/pkg/resource-handler/controller/storage"
)

// dropFailed is contained in the output of a failed Drop.
const dropFailed = "ERROR"

// Delete removes the instances behind conns. Without deleteStorage an
// instance is only stopped and its workload removed, keeping its data.
// With deleteStorage it is dropped from the monitor first, after a
// switchover when it is the primary, and its storage is removed last.
//
// Every step is attempted for every instance. Only storage removal failures
// are returned.
func (p *Provisioner) Delete(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	conns connection.Connections,
	deleteStorage bool,
) error {
	logger := log.FromContext(ctx)

	var monitor *autofailover.Monitor
	if deleteStorage && len(conns) > 0 {
		monitorConns, err := p.Connector.Group(ctx, cluster, pgv1alpha1.RoleAutoFailover)
		if err != nil {
			return err
		}
		defer connection.CloseAll(ctx, monitorConns)
		monitor = autofailover.NewMonitor(monitorConns, p.Policies)
	}

	var errs []error
	for _, conn := range conns {
		logger := logger.WithValues("instance", conn.Name(), "role", conn.Role())
		ctx := log.IntoContext(ctx, logger)

		if deleteStorage {
			if monitor.PrimaryHost(ctx) == conn.Host() {
				monitor.Switchover(ctx)
			}
			logger.Info("Dropping instance from monitor")
			if out := connection.ExecuteOrLog(ctx, conn, pgtools.Drop()); strings.Contains(out, dropFailed) {
				logger.Info("Cannot drop instance", "output", out)
			}
		} else {
			p.stop(ctx, conn)
		}

		switch c := conn.(type) {
		case *connection.MachineTarget:
			p.composeDown(ctx, c)
		case *connection.PodTarget:
			p.deleteWorkload(ctx, c)
		}

		if deleteStorage {
			if err := p.deleteStorage(ctx, cluster, conn); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// stop stops pg_autoctl on the instance. Failures are logged.
func (p *Provisioner) stop(ctx context.Context, conn connection.Connection) {
	logger := log.FromContext(ctx)
	logger.Info("Stopping instance")
	if out := connection.ExecuteOrLog(ctx, conn, pgtools.Stop()); strings.Contains(out, pgtools.StopFailed) {
		logger.Info("Cannot stop instance cleanly, stopping it anyway", "output", out)
	}
}

func (p *Provisioner) composeDown(ctx context.Context, m *connection.MachineTarget) {
	log.FromContext(ctx).Info("Removing instance from machine")
	_, _ = connection.RunHost(ctx, m, composeCommand(p.Connector.Layout, m.Role(), "down"), connection.LogAndContinue)
}

// deleteWorkload deletes the StatefulSet and headless Service of a pod.
// Failures are logged.
func (p *Provisioner) deleteWorkload(ctx context.Context, pod *connection.PodTarget) {
	logger := log.FromContext(ctx)
	stsName := statefulSetOf(pod.PodName)
	meta := metav1.ObjectMeta{Name: stsName, Namespace: pod.Namespace}

	for _, obj := range []client.Object{
		&appsv1.StatefulSet{ObjectMeta: meta},
		&corev1.Service{ObjectMeta: meta},
	} {
		if err := p.Client.Delete(ctx, obj); err != nil && !apierrors.IsNotFound(err) {
			logger.Error(err, "Failed to delete instance object", "name", stsName)
		}
	}
}

// deleteStorage removes the claims of a pod, or wipes the data directory of
// a machine.
func (p *Provisioner) deleteStorage(ctx context.Context, cluster *pgv1alpha1.PostgreSQLCluster, conn connection.Connection) error {
	switch c := conn.(type) {
	case *connection.PodTarget:
		return storage.DeleteClaims(ctx, p.Client, c.Namespace, c.PodName,
			cluster.Spec.Template(c.Role()).VolumeClaimTemplates)
	case *connection.MachineTarget:
		layout := p.Connector.Layout
		log.FromContext(ctx).Info("Wiping machine data directory", "path", layout.DataPath(c.Role()))
		p.composeDown(ctx, c)
		p.SetAction(ctx, c, false)
		if _, err := connection.RunHost(ctx, c, "rm -rf "+layout.DataPath(c.Role()), connection.Raise); err != nil {
			return fmt.Errorf("failed to wipe %s: %w", c.Host(), err)
		}
	}
	return nil
}

// statefulSetOf returns the StatefulSet of an instance pod.
func statefulSetOf(pod string) string {
	return strings.TrimSuffix(pod, "-0")
}
