package services

import (
	"strings"
	"testing"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/connection/connectiontest"
	"github.com/radondb/postgres-operator/pkg/testutil"
	"github.com/radondb/postgres-operator/pkg/util/retry"
)

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

func primePort() corev1.ServicePort {
	return corev1.ServicePort{Name: PrimePortName, Port: 5432, TargetPort: intstr.FromInt32(5432)}
}

func podCluster() *pgv1alpha1.PostgreSQLCluster {
	return &pgv1alpha1.PostgreSQLCluster{
		ObjectMeta: metav1.ObjectMeta{Name: "pg", Namespace: "db", UID: "uid-1"},
		Spec: pgv1alpha1.PostgreSQLClusterSpec{
			PostgreSQL: pgv1alpha1.PostgreSQLSpec{
				Configs: []string{"port=5433"},
			},
			Services: []pgv1alpha1.ServiceSpec{
				{
					Name:      "rw",
					Selector:  pgv1alpha1.ServiceSelectorPrimary,
					VirtualIP: "10.0.0.100",
					Spec: corev1.ServiceSpec{
						Type: corev1.ServiceTypeNodePort,
						Ports: []corev1.ServicePort{
							primePort(),
							{Name: "metrics", Port: 9187, TargetPort: intstr.FromInt32(9187)},
						},
					},
				},
				{
					Name:      "ro",
					Selector:  pgv1alpha1.ServiceSelectorReadOnly,
					VirtualIP: "10.0.0.101",
					Spec:      corev1.ServiceSpec{Ports: []corev1.ServicePort{primePort()}},
				},
				{
					Name:     "monitor",
					Selector: pgv1alpha1.ServiceSelectorAutoFailover,
					Spec:     corev1.ServiceSpec{Ports: []corev1.ServicePort{primePort()}},
				},
			},
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
	client  *testutil.FakeClient
	script  *connectiontest.Script
	dialer  *connectiontest.Dialer
	manager *Manager
}

func newEnv(t *testing.T, cfg *testutil.FailureConfig, objs ...client.Object) *env {
	t.Helper()
	scheme := testScheme(t)
	base := fake.NewClientBuilder().WithScheme(scheme).WithObjects(objs...).Build()
	c := testutil.NewFakeClientWithFailures(base, cfg)
	script := connectiontest.NewScript()
	dialer := connectiontest.NewDialer(script)
	return &env{
		client: c,
		script: script,
		dialer: dialer,
		manager: &Manager{
			Client: c,
			Scheme: scheme,
			Connector: &connection.Connector{
				Exec:    connectiontest.PodExecutor{Script: script},
				Dialer:  dialer,
				Connect: retry.Immediate().Connect,
				Layout:  connection.DefaultMachineLayout(),
			},
		},
	}
}

// hostCommands drops the directory preparation run on connect.
func hostCommands(s *connectiontest.Script, host string) []string {
	var out []string
	for _, cmd := range s.Commands(host) {
		if !strings.HasPrefix(cmd, "mkdir") {
			out = append(out, cmd)
		}
	}
	return out
}
