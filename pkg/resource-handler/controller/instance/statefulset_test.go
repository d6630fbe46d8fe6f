package instance

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/util/metadata"
)

func TestBuildStatefulSet(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		action       pgv1alpha1.Action
		wantReplicas int32
	}{
		"started": {action: pgv1alpha1.ActionStart, wantReplicas: 1},
		"stopped": {action: pgv1alpha1.ActionStop, wantReplicas: 0},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cluster := podCluster()
			cluster.Spec.Action = tc.action
			env := []Variable{{Name: "PG_MODE", Value: "readwrite"}}

			sts, err := BuildStatefulSet(cluster, pgv1alpha1.RoleReadWrite, 1, env, testScheme(t))
			if err != nil {
				t.Fatalf("BuildStatefulSet() error = %v", err)
			}

			if sts.Name != "pg-postgresql-readwriteinstance-1" || sts.Spec.ServiceName != sts.Name {
				t.Errorf("name = %s, serviceName = %s", sts.Name, sts.Spec.ServiceName)
			}
			if got := *sts.Spec.Replicas; got != tc.wantReplicas {
				t.Errorf("replicas = %d, want %d", got, tc.wantReplicas)
			}
			if _, ok := sts.Spec.Selector.MatchLabels[metadata.LabelRole]; ok {
				t.Errorf("selector must not contain the role label")
			}
			if sts.Spec.Template.Spec.RestartPolicy != corev1.RestartPolicyAlways {
				t.Errorf("restartPolicy = %s", sts.Spec.Template.Spec.RestartPolicy)
			}
			if len(sts.Spec.VolumeClaimTemplates) != 1 || sts.Spec.VolumeClaimTemplates[0].Name != "data" {
				t.Errorf("volumeClaimTemplates = %v", sts.Spec.VolumeClaimTemplates)
			}
			if sts.Spec.PersistentVolumeClaimRetentionPolicy.WhenScaled != appsv1.RetainPersistentVolumeClaimRetentionPolicyType {
				t.Errorf("claims must be retained on scale down")
			}
			if len(sts.OwnerReferences) != 1 || sts.OwnerReferences[0].Name != "pg" {
				t.Errorf("ownerReferences = %v", sts.OwnerReferences)
			}

			sidecar, db := sts.Spec.Template.Spec.Containers[0], sts.Spec.Template.Spec.Containers[1]
			if sidecar.Args != nil || sidecar.Env != nil || sidecar.ReadinessProbe != nil {
				t.Errorf("sidecar was modified: %+v", sidecar)
			}
			if diff := cmp.Diff([]string{"auto_failover"}, db.Args); diff != "" {
				t.Errorf("args mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff([]corev1.EnvVar{{Name: "PG_MODE", Value: "readwrite"}}, db.Env); diff != "" {
				t.Errorf("env mismatch (-want +got):\n%s", diff)
			}
			probe := db.ReadinessProbe
			if probe == nil || probe.InitialDelaySeconds != 20 || probe.PeriodSeconds != 5 {
				t.Fatalf("readinessProbe = %+v", probe)
			}
			if diff := cmp.Diff([]string{"pgtools", "-a"}, probe.Exec.Command); diff != "" {
				t.Errorf("probe command mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildStatefulSet_DoesNotModifySpec(t *testing.T) {
	t.Parallel()

	cluster := podCluster()
	if _, err := BuildStatefulSet(cluster, pgv1alpha1.RoleReadOnly, 0, []Variable{{Name: "A", Value: "1"}}, testScheme(t)); err != nil {
		t.Fatalf("BuildStatefulSet() error = %v", err)
	}
	if c := cluster.Spec.PostgreSQL.ReadOnlyInstance.PodSpec.Containers[1]; c.Env != nil || c.Args != nil {
		t.Errorf("cluster podspec was modified: %+v", c)
	}
}

func TestBuildStatefulSet_NoDatabaseContainer(t *testing.T) {
	t.Parallel()

	cluster := podCluster()
	cluster.Spec.AutoFailover.PodSpec.Containers = []corev1.Container{{Name: "other"}}
	_, err := BuildStatefulSet(cluster, pgv1alpha1.RoleAutoFailover, 0, nil, testScheme(t))
	if !connection.IsFatal(err) {
		t.Errorf("BuildStatefulSet() error = %v, want fatal", err)
	}
}

func TestBuildHeadlessService(t *testing.T) {
	t.Parallel()

	svc, err := BuildHeadlessService(podCluster(), pgv1alpha1.RoleAutoFailover, 0, testScheme(t))
	if err != nil {
		t.Fatalf("BuildHeadlessService() error = %v", err)
	}
	if svc.Name != "pg-autofailover-0" {
		t.Errorf("name = %s", svc.Name)
	}
	if svc.Spec.ClusterIP != corev1.ClusterIPNone || !svc.Spec.PublishNotReadyAddresses {
		t.Errorf("spec = %+v", svc.Spec)
	}
	if got := svc.Spec.Selector[appsv1.StatefulSetPodNameLabel]; got != "pg-autofailover-0-0" {
		t.Errorf("pod-name selector = %q", got)
	}
	if got := svc.Spec.Selector[metadata.LabelSubnode]; got != metadata.SubnodeAutoFailover {
		t.Errorf("subnode selector = %q", got)
	}
}
