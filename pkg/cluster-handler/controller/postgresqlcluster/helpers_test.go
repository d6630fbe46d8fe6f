package postgresqlcluster

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/record"
	clocktesting "k8s.io/utils/clock/testing"
	"k8s.io/utils/ptr"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/connection/connectiontest"
	"github.com/radondb/postgres-operator/pkg/pgtools"
	"github.com/radondb/postgres-operator/pkg/testutil"
	"github.com/radondb/postgres-operator/pkg/util/metadata"
	"github.com/radondb/postgres-operator/pkg/util/retry"
)

const testImage = "registry.local/radondb/postgres:13.4-1"

// Pod names of the fixture cluster.
const (
	monitorPod = "pg-autofailover-0-0"
	rw0Pod     = "pg-postgresql-readwriteinstance-0-0"
	rw1Pod     = "pg-postgresql-readwriteinstance-1-0"
	ro0Pod     = "pg-postgresql-readonlyinstance-0-0"
)

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

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
			Containers: []corev1.Container{{Name: connection.ContainerName, Image: testImage}},
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

// newCluster returns a pod-mode cluster with the finalizer in place and no
// creation progress.
func newCluster() *pgv1alpha1.PostgreSQLCluster {
	return &pgv1alpha1.PostgreSQLCluster{
		ObjectMeta: metav1.ObjectMeta{
			Name:       "pg",
			Namespace:  "db",
			Finalizers: []string{finalizerName},
		},
		Spec: pgv1alpha1.PostgreSQLClusterSpec{
			Action: pgv1alpha1.ActionStart,
			AutoFailover: pgv1alpha1.AutoFailoverSpec{
				InstanceTemplate: template(),
				HBAs:             []string{"host all all 0.0.0.0/0 md5"},
			},
			PostgreSQL: pgv1alpha1.PostgreSQLSpec{
				HBAs:    []string{"host all all 0.0.0.0/0 md5"},
				Configs: []string{"port=5433", "shared_buffers=128MB"},
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
			Services: []pgv1alpha1.ServiceSpec{{
				Name:     "rw",
				Selector: pgv1alpha1.ServiceSelectorPrimary,
				Spec: corev1.ServiceSpec{
					Ports: []corev1.ServicePort{{Name: "prime", Port: 5432}},
				},
			}},
		},
	}
}

// createdCluster returns newCluster after a completed creation, with the
// current spec recorded as last applied.
func createdCluster(t *testing.T) *pgv1alpha1.PostgreSQLCluster {
	t.Helper()
	c := newCluster()
	c.Status = pgv1alpha1.PostgreSQLClusterStatus{
		AutoctlNodePassword: "nodepw",
		ReplicatorPassword:  "replpw",
		CreatePhase:         pgv1alpha1.CreatePhaseFinished,
		TimerLastRun:        testNow.Format(TimerLayout),
	}
	setLastApplied(t, c, &c.Spec)
	return c
}

func setLastApplied(t *testing.T, c *pgv1alpha1.PostgreSQLCluster, spec *pgv1alpha1.PostgreSQLClusterSpec) {
	t.Helper()
	raw, err := json.Marshal(spec)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if c.Annotations == nil {
		c.Annotations = map[string]string{}
	}
	c.Annotations[LastAppliedAnnotation] = string(raw)
}

type env struct {
	client   *testutil.FakeClient
	script   *connectiontest.Script
	recorder *record.FakeRecorder
	clock    *clocktesting.FakePassiveClock
	r        *PostgreSQLClusterReconciler
}

func newEnv(t *testing.T, cfg *testutil.FailureConfig, objs ...client.Object) *env {
	t.Helper()
	scheme := testScheme(t)
	base := fake.NewClientBuilder().
		WithScheme(scheme).
		WithObjects(objs...).
		WithStatusSubresource(&pgv1alpha1.PostgreSQLCluster{}).
		Build()
	c := testutil.NewFakeClientWithFailures(base, cfg)
	script := connectiontest.NewScript()
	recorder := record.NewFakeRecorder(100)
	clk := clocktesting.NewFakePassiveClock(testNow)

	policies := retry.Immediate()
	policies.InitReady.Attempts = 3
	policies.InstanceReady.Attempts = 3
	policies.ClusterStatus.Attempts = 3

	return &env{
		client:   c,
		script:   script,
		recorder: recorder,
		clock:    clk,
		r: &PostgreSQLClusterReconciler{
			Client:   c,
			Scheme:   scheme,
			Recorder: recorder,
			Connector: &connection.Connector{
				Exec:    connectiontest.PodExecutor{Script: script},
				Dialer:  connectiontest.NewDialer(script),
				Connect: policies.Connect,
				Layout:  connection.DefaultMachineLayout(),
			},
			Options: Options{
				Policies:           policies,
				CorrectionInterval: time.Minute,
				Clock:              clk,
			},
		},
	}
}

// scriptHealthy answers the commands of a bring-up where rw0 is the primary.
func scriptHealthy(s *connectiontest.Script) {
	s.Reply("", pgtools.ReadyCheck(), pgtools.InitFinished).
		Reply("", pgtools.InstanceCheck(), pgtools.InstanceRunning).
		Reply(rw0Pod, pgtools.ReadOnlyCheck(), "off").
		Reply("", pgtools.ReadOnlyCheck(), "on").
		Reply("", "create user", pgtools.CreateRoleTag).
		Reply("", "pgtools -H", pgtools.Success).
		Reply("", "pgtools -S", pgtools.Success).
		Reply("", "pgtools -c", pgtools.Success)
}

func (e *env) reconcile(t *testing.T) (ctrl.Result, error) {
	t.Helper()
	return e.r.Reconcile(t.Context(), ctrl.Request{
		NamespacedName: types.NamespacedName{Name: "pg", Namespace: "db"},
	})
}

func (e *env) cluster(t *testing.T) *pgv1alpha1.PostgreSQLCluster {
	t.Helper()
	c := &pgv1alpha1.PostgreSQLCluster{}
	if err := e.client.Get(t.Context(), types.NamespacedName{Name: "pg", Namespace: "db"}, c); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	return c
}

// events drains the recorded events.
func (e *env) events() []string {
	var out []string
	for {
		select {
		case ev := <-e.recorder.Events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// statefulSet returns an instance StatefulSet reporting ready replicas.
func statefulSet(name string, ready int32) *appsv1.StatefulSet {
	role := pgv1alpha1.RoleReadWrite
	switch {
	case strings.Contains(name, "autofailover"):
		role = pgv1alpha1.RoleAutoFailover
	case strings.Contains(name, "readonly"):
		role = pgv1alpha1.RoleReadOnly
	}
	return &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: "db",
			Labels:    metadata.InstanceLabels("pg", "db", role),
		},
		Status: appsv1.StatefulSetStatus{ReadyReplicas: ready},
	}
}
