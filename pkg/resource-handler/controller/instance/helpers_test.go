package instance

import (
	"testing"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/connection/connectiontest"
	"github.com/radondb/postgres-operator/pkg/testutil"
	"github.com/radondb/postgres-operator/pkg/util/retry"
)

const testImage = "registry.local/radondb/postgres:13.4-1"

func testScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	s := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(s); err != nil {
		t.Fatalf("AddToScheme() error = %v", err)
	}
	if err := pgv1alpha1.AddToScheme(s); err != nil {
		t.Fatalf("AddToScheme() error = %v", err)
	}
	return s
}

func template() pgv1alpha1.InstanceTemplate {
	return pgv1alpha1.InstanceTemplate{
		PodSpec: corev1.PodSpec{
			Containers: []corev1.Container{
				{Name: "sidecar", Image: "busybox"},
				{Name: connection.ContainerName, Image: testImage},
			},
		},
		VolumeClaimTemplates: []corev1.PersistentVolumeClaim{{
			ObjectMeta: metav1.ObjectMeta{Name: "data"},
			Spec: corev1.PersistentVolumeClaimSpec{
				AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
				Resources: corev1.VolumeResourceRequirements{
					Requests: corev1.ResourceList{corev1.ResourceStorage: resource.MustParse("1Gi")},
				},
			},
		}},
	}
}

func podCluster() *pgv1alpha1.PostgreSQLCluster {
	return &pgv1alpha1.PostgreSQLCluster{
		ObjectMeta: metav1.ObjectMeta{Name: "pg", Namespace: "db", UID: "uid-1"},
		Spec: pgv1alpha1.PostgreSQLClusterSpec{
			Action: pgv1alpha1.ActionStart,
			AutoFailover: pgv1alpha1.AutoFailoverSpec{
				InstanceTemplate: template(),
				HBAs:             []string{"host all all 0.0.0.0/0 md5"},
				Configs:          []string{"port=6000", "max_connections=50"},
			},
			PostgreSQL: pgv1alpha1.PostgreSQLSpec{
				HBAs:    []string{"host all all 0.0.0.0/0 md5", "host replication all 0.0.0.0/0 md5"},
				Configs: []string{"port=5433", "shared_buffers=128MB", "log_directory=mine"},
				Users: &pgv1alpha1.UsersSpec{
					Admin:  []pgv1alpha1.UserSpec{{Name: "root", Password: "rootpw"}},
					Normal: []pgv1alpha1.UserSpec{{Name: "app", Password: "apppw"}},
				},
				ReadWriteInstance: pgv1alpha1.ReadWriteInstanceSpec{
					InstanceTemplate: template(),
					Replicas:         ptr.To(int32(2)),
				},
				ReadOnlyInstance: pgv1alpha1.ReadOnlyInstanceSpec{
					InstanceTemplate: template(),
					Replicas:         ptr.To(int32(1)),
					Streaming:        pgv1alpha1.StreamingSync,
				},
			},
		},
		Status: pgv1alpha1.PostgreSQLClusterStatus{
			AutoctlNodePassword: "nodepw",
			ReplicatorPassword:  "replpw",
		},
	}
}

func machineCluster() *pgv1alpha1.PostgreSQLCluster {
	c := podCluster()
	c.Spec.AutoFailover.Machines = []string{"root:pw:10.0.0.1:22"}
	c.Spec.PostgreSQL.ReadWriteInstance.Machines = []string{"root:pw:10.0.0.2:22", "root:pw:10.0.0.3:22"}
	c.Spec.PostgreSQL.ReadOnlyInstance.Machines = []string{"root:pw:10.0.0.4:22"}
	return c
}

type env struct {
	client      *testutil.FakeClient
	script      *connectiontest.Script
	dialer      *connectiontest.Dialer
	connector   *connection.Connector
	provisioner *Provisioner
}

func newEnv(t *testing.T, cfg *testutil.FailureConfig, objs ...client.Object) *env {
	t.Helper()
	scheme := testScheme(t)
	base := fake.NewClientBuilder().WithScheme(scheme).WithObjects(objs...).Build()
	c := testutil.NewFakeClientWithFailures(base, cfg)
	script := connectiontest.NewScript()
	dialer := connectiontest.NewDialer(script)
	policies := retry.Immediate()
	policies.InitReady.Attempts = 3
	policies.InstanceReady.Attempts = 3
	connector := &connection.Connector{
		Exec:    connectiontest.PodExecutor{Script: script},
		Dialer:  dialer,
		Connect: policies.Connect,
		Layout:  connection.DefaultMachineLayout(),
	}
	return &env{
		client:    c,
		script:    script,
		dialer:    dialer,
		connector: connector,
		provisioner: &Provisioner{
			Client:    c,
			Scheme:    scheme,
			Connector: connector,
			Policies:  policies,
		},
	}
}
