package services

import (
	"context"
	"errors"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/pgtools"
	"github.com/radondb/postgres-operator/pkg/util/metadata"
	"github.com/radondb/postgres-operator/pkg/util/name"
)

// PrimePortName marks the Service port whose target is the database port.
const PrimePortName = "prime"

// Manager creates and removes the exposed services of a cluster.
type Manager struct {
	Client    client.Client
	Scheme    *runtime.Scheme
	Connector *connection.Connector
}

// Create exposes every declared service.
func (m *Manager) Create(ctx context.Context, cluster *pgv1alpha1.PostgreSQLCluster) error {
	if cluster.Spec.MachineMode() {
		return m.createKeepalived(ctx, cluster)
	}
	for i := range cluster.Spec.Services {
		svc, err := BuildService(cluster, &cluster.Spec.Services[i], m.Scheme)
		if err != nil {
			return err
		}
		log.FromContext(ctx).Info("Creating service", "service", svc.Name)
		if err := m.Client.Create(ctx, svc); err != nil && !apierrors.IsAlreadyExists(err) {
			return fmt.Errorf("failed to create Service %s: %w", svc.Name, err)
		}
	}
	return nil
}

// Delete removes every exposed service. Failures are logged; only a failure
// to reach the machines is returned.
func (m *Manager) Delete(ctx context.Context, cluster *pgv1alpha1.PostgreSQLCluster) error {
	if cluster.Spec.MachineMode() {
		return m.deleteKeepalived(ctx, cluster)
	}

	logger := log.FromContext(ctx)
	list := &corev1.ServiceList{}
	if err := m.Client.List(ctx, list,
		client.InNamespace(cluster.Namespace),
		client.MatchingLabels(metadata.UserServiceLabels(cluster.Name, cluster.Namespace)),
	); err != nil {
		logger.Error(err, "Failed to list services")
		return nil
	}
	for i := range list.Items {
		svc := &list.Items[i]
		logger.Info("Deleting service", "service", svc.Name)
		if err := m.Client.Delete(ctx, svc); err != nil && !apierrors.IsNotFound(err) {
			logger.Error(err, "Failed to delete service", "service", svc.Name)
		}
	}
	return nil
}

// Refresh deletes and recreates the exposed services.
func (m *Manager) Refresh(ctx context.Context, cluster *pgv1alpha1.PostgreSQLCluster) error {
	return errors.Join(m.Delete(ctx, cluster), m.Create(ctx, cluster))
}

// BuildService creates the Service of one declared service. Ports named
// PrimePortName target the monitor port or the configured database port.
// An unknown selector is fatal.
func BuildService(
	cluster *pgv1alpha1.PostgreSQLCluster,
	spec *pgv1alpha1.ServiceSpec,
	scheme *runtime.Scheme,
) (*corev1.Service, error) {
	selector, ok := metadata.ServiceSelectorLabels(cluster.Name, cluster.Namespace, spec.Selector)
	if !ok {
		return nil, connection.Fatalf("service %s has unknown selector %q", spec.Name, spec.Selector)
	}

	target := pgtools.Port(cluster.Spec.PostgreSQL.Configs)
	if spec.Selector == pgv1alpha1.ServiceSelectorAutoFailover {
		target = pgtools.AutoFailoverPort
	}

	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name.Service(cluster.Name, spec.Name),
			Namespace: cluster.Namespace,
			Labels:    metadata.UserServiceLabels(cluster.Name, cluster.Namespace),
		},
		Spec: *spec.Spec.DeepCopy(),
	}
	for i := range svc.Spec.Ports {
		if svc.Spec.Ports[i].Name == PrimePortName {
			svc.Spec.Ports[i].TargetPort = intstr.FromInt32(int32(target))
		}
	}
	svc.Spec.Selector = selector

	if err := ctrl.SetControllerReference(cluster, svc, scheme); err != nil {
		return nil, fmt.Errorf("failed to set controller reference: %w", err)
	}
	return svc, nil
}
