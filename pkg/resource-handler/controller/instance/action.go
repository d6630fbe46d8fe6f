package instance

import (
	"context"

	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/radondb/postgres-operator/pkg/connection"
)

// SetAction starts or stops one instance. Stopping stops pg_autoctl first.
// Pods are scaled between one and zero replicas, machines run
// docker-compose start or stop. Failures are logged.
func (p *Provisioner) SetAction(ctx context.Context, conn connection.Connection, start bool) {
	logger := log.FromContext(ctx).WithValues("instance", conn.Name(), "start", start)
	ctx = log.IntoContext(ctx, logger)

	if !start {
		p.stop(ctx, conn)
	}

	switch c := conn.(type) {
	case *connection.PodTarget:
		replicas := int32(0)
		if start {
			replicas = 1
		}
		sts := &appsv1.StatefulSet{}
		key := client.ObjectKey{Namespace: c.Namespace, Name: statefulSetOf(c.PodName)}
		if err := p.Client.Get(ctx, key, sts); err != nil {
			logger.Error(err, "Failed to get StatefulSet", "statefulset", key.Name)
			return
		}
		patch := client.MergeFrom(sts.DeepCopy())
		sts.Spec.Replicas = ptr.To(replicas)
		logger.Info("Scaling StatefulSet", "statefulset", key.Name, "replicas", replicas)
		if err := p.Client.Patch(ctx, sts, patch); err != nil {
			logger.Error(err, "Failed to scale StatefulSet", "statefulset", key.Name)
		}
	case *connection.MachineTarget:
		verb := "stop"
		if start {
			verb = "start"
		}
		logger.Info("Running docker-compose " + verb)
		_, _ = connection.RunHost(ctx, c, composeCommand(p.Connector.Layout, c.Role(), verb), connection.LogAndContinue)
	}
}
