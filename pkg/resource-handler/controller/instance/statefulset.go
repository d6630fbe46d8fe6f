package instance

import (
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/pgtools"
	"github.com/radondb/postgres-operator/pkg/resource-handler/controller/storage"
	"github.com/radondb/postgres-operator/pkg/util/metadata"
	"github.com/radondb/postgres-operator/pkg/util/name"
)

const (
	// EntrypointArg starts the pg_auto_failover node in the instance image.
	EntrypointArg = "auto_failover"

	readinessInitialDelaySeconds = 20
	readinessPeriodSeconds       = 5
)

// Image returns the image of the database container of a template, or "".
func Image(template *pgv1alpha1.InstanceTemplate) string {
	for _, c := range template.PodSpec.Containers {
		if c.Name == connection.ContainerName {
			return c.Image
		}
	}
	return ""
}

// podLabels are the labels of the StatefulSets and pods of role.
func podLabels(cluster *pgv1alpha1.PostgreSQLCluster, role pgv1alpha1.InstanceRole) map[string]string {
	return metadata.InstanceLabels(cluster.Name, cluster.Namespace, role)
}

// BuildHeadlessService creates the headless Service that gives replica i of
// role its stable DNS name.
func BuildHeadlessService(
	cluster *pgv1alpha1.PostgreSQLCluster,
	role pgv1alpha1.InstanceRole,
	i int32,
	scheme *runtime.Scheme,
) (*corev1.Service, error) {
	labels := podLabels(cluster, role)
	selector := metadata.GetSelectorLabels(labels)
	selector[appsv1.StatefulSetPodNameLabel] = name.Pod(cluster.Name, role, i)

	svc := &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name.StatefulSet(cluster.Name, role, i),
			Namespace: cluster.Namespace,
			Labels:    metadata.GetSelectorLabels(labels),
		},
		Spec: corev1.ServiceSpec{
			ClusterIP:                corev1.ClusterIPNone,
			Selector:                 selector,
			PublishNotReadyAddresses: true,
		},
	}

	if err := ctrl.SetControllerReference(cluster, svc, scheme); err != nil {
		return nil, fmt.Errorf("failed to set controller reference: %w", err)
	}
	return svc, nil
}

// BuildStatefulSet creates the single-replica StatefulSet of replica i of
// role. The database container gets the entrypoint argument, env and a
// readiness probe on the pgtools ready check. A stopped cluster gets zero
// replicas.
func BuildStatefulSet(
	cluster *pgv1alpha1.PostgreSQLCluster,
	role pgv1alpha1.InstanceRole,
	i int32,
	env []Variable,
	scheme *runtime.Scheme,
) (*appsv1.StatefulSet, error) {
	template := cluster.Spec.Template(role)
	stsName := name.StatefulSet(cluster.Name, role, i)
	labels := podLabels(cluster, role)

	podSpec := template.PodSpec.DeepCopy()
	podSpec.RestartPolicy = corev1.RestartPolicyAlways
	found := false
	for j := range podSpec.Containers {
		c := &podSpec.Containers[j]
		if c.Name != connection.ContainerName {
			continue
		}
		found = true
		c.Args = []string{EntrypointArg}
		c.Env = append(c.Env, EnvVars(env)...)
		c.ReadinessProbe = &corev1.Probe{
			ProbeHandler: corev1.ProbeHandler{
				Exec: &corev1.ExecAction{Command: pgtools.ReadyCheckArgs()},
			},
			InitialDelaySeconds: readinessInitialDelaySeconds,
			PeriodSeconds:       readinessPeriodSeconds,
		}
	}
	if !found {
		return nil, connection.Fatalf("%s podspec has no container named %q", role, connection.ContainerName)
	}

	replicas := int32(1)
	if cluster.Spec.Action == pgv1alpha1.ActionStop {
		replicas = 0
	}

	claims := make([]corev1.PersistentVolumeClaim, len(template.VolumeClaimTemplates))
	for j := range template.VolumeClaimTemplates {
		template.VolumeClaimTemplates[j].DeepCopyInto(&claims[j])
	}

	sts := &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:      stsName,
			Namespace: cluster.Namespace,
			Labels:    labels,
		},
		Spec: appsv1.StatefulSetSpec{
			ServiceName: stsName,
			Replicas:    ptr.To(replicas),
			Selector: &metav1.LabelSelector{
				MatchLabels: metadata.GetSelectorLabels(labels),
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{
					Labels: labels,
				},
				Spec: *podSpec,
			},
			VolumeClaimTemplates:                 claims,
			PersistentVolumeClaimRetentionPolicy: storage.RetentionPolicy(),
		},
	}

	if err := ctrl.SetControllerReference(cluster, sts, scheme); err != nil {
		return nil, fmt.Errorf("failed to set controller reference: %w", err)
	}
	return sts, nil
}
