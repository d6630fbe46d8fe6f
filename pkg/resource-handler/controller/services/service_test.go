package services

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/intstr"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/testutil"
	"github.com/radondb/postgres-operator/pkg/util/metadata"
)

var errBoom = errors.New("boom")

func TestBuildService(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		index        int
		wantName     string
		wantTargets  []intstr.IntOrString
		wantSelector map[string]string
	}{
		"primary targets the database port": {
			index:       0,
			wantName:    "pg-rw",
			wantTargets: []intstr.IntOrString{intstr.FromInt32(5433), intstr.FromInt32(9187)},
			wantSelector: metadata.MergeLabels(metadata.BuildStandardLabels("pg", "db"), map[string]string{
				metadata.LabelNode:    metadata.NodePostgreSQL,
				metadata.LabelSubnode: metadata.SubnodeReadWrite,
				metadata.LabelRole:    metadata.RolePrimary,
			}),
		},
		"autofailover targets the monitor port": {
			index:       2,
			wantName:    "pg-monitor",
			wantTargets: []intstr.IntOrString{intstr.FromInt32(55555)},
			wantSelector: metadata.MergeLabels(metadata.BuildStandardLabels("pg", "db"), map[string]string{
				metadata.LabelNode:    metadata.NodeAutoFailover,
				metadata.LabelSubnode: metadata.SubnodeAutoFailover,
			}),
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cluster := podCluster()
			svc, err := BuildService(cluster, &cluster.Spec.Services[tc.index], testScheme(t))
			if err != nil {
				t.Fatalf("BuildService() error = %v", err)
			}
			if svc.Name != tc.wantName || svc.Namespace != "db" {
				t.Errorf("Service = %s/%s, want db/%s", svc.Namespace, svc.Name, tc.wantName)
			}
			var targets []intstr.IntOrString
			for _, p := range svc.Spec.Ports {
				targets = append(targets, p.TargetPort)
			}
			if diff := cmp.Diff(tc.wantTargets, targets); diff != "" {
				t.Errorf("target ports mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tc.wantSelector, svc.Spec.Selector); diff != "" {
				t.Errorf("selector mismatch (-want +got):\n%s", diff)
			}
			if svc.Labels[metadata.LabelNode] != metadata.NodeUserServices {
				t.Errorf("node label = %q, want %q", svc.Labels[metadata.LabelNode], metadata.NodeUserServices)
			}
			if len(svc.OwnerReferences) != 1 || svc.OwnerReferences[0].UID != types.UID("uid-1") {
				t.Errorf("OwnerReferences = %v, want the cluster", svc.OwnerReferences)
			}
		})
	}
}

func TestBuildService_DoesNotModifySpec(t *testing.T) {
	t.Parallel()
	cluster := podCluster()
	if _, err := BuildService(cluster, &cluster.Spec.Services[0], testScheme(t)); err != nil {
		t.Fatalf("BuildService() error = %v", err)
	}
	if got := cluster.Spec.Services[0].Spec.Ports[0].TargetPort; got != intstr.FromInt32(5432) {
		t.Errorf("spec target port = %v, want it untouched", got)
	}
}

func TestBuildService_UnknownSelector(t *testing.T) {
	t.Parallel()
	cluster := podCluster()
	cluster.Spec.Services[0].Selector = "anything"
	_, err := BuildService(cluster, &cluster.Spec.Services[0], testScheme(t))
	if !connection.IsFatal(err) {
		t.Errorf("BuildService() error = %v, want fatal", err)
	}
}

func TestManager_CreatePods(t *testing.T) {
	t.Parallel()

	existing := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "pg-ro", Namespace: "db"}}
	e := newEnv(t, nil, existing)
	if err := e.manager.Create(t.Context(), podCluster()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	want := []string{"Service/pg-rw", "Service/pg-monitor"}
	if diff := cmp.Diff(want, e.client.Created()); diff != "" {
		t.Errorf("created mismatch (-want +got):\n%s", diff)
	}
	if len(e.script.Calls()) != 0 {
		t.Errorf("ran commands %v, want none", e.script.Calls())
	}
}

func TestManager_CreatePodsFailure(t *testing.T) {
	t.Parallel()
	e := newEnv(t, &testutil.FailureConfig{OnCreate: testutil.FailOnObjectName("pg-ro", errBoom)})
	err := e.manager.Create(t.Context(), podCluster())
	if !errors.Is(err, errBoom) {
		t.Errorf("Create() error = %v, want %v", err, errBoom)
	}
}

func TestManager_DeletePods(t *testing.T) {
	t.Parallel()

	cluster := podCluster()
	labels := metadata.UserServiceLabels("pg", "db")
	objs := []*corev1.Service{
		{ObjectMeta: metav1.ObjectMeta{Name: "pg-rw", Namespace: "db", Labels: labels}},
		{ObjectMeta: metav1.ObjectMeta{Name: "pg-old", Namespace: "db", Labels: labels}},
		{ObjectMeta: metav1.ObjectMeta{Name: "pg-autofailover-0", Namespace: "db",
			Labels: metadata.BuildStandardLabels("pg", "db")}},
		{ObjectMeta: metav1.ObjectMeta{Name: "pg-rw", Namespace: "other", Labels: labels}},
	}

	tests := map[string]struct {
		cfg         *testutil.FailureConfig
		wantDeleted []string
	}{
		"deletes only user services": {
			wantDeleted: []string{"Service/pg-old", "Service/pg-rw"},
		},
		"delete failures are logged": {
			cfg:         &testutil.FailureConfig{OnDelete: testutil.FailOnObjectName("pg-old", errBoom)},
			wantDeleted: []string{"Service/pg-rw"},
		},
		"list failure is logged": {
			cfg: &testutil.FailureConfig{OnList: func(_ client.ObjectList) error { return errBoom }},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var init []client.Object
			for _, o := range objs {
				init = append(init, o.DeepCopy())
			}
			e := newEnv(t, tc.cfg, init...)
			if err := e.manager.Delete(t.Context(), cluster); err != nil {
				t.Fatalf("Delete() error = %v", err)
			}
			if diff := cmp.Diff(tc.wantDeleted, e.client.Deleted()); diff != "" {
				t.Errorf("deleted mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestManager_RefreshPods(t *testing.T) {
	t.Parallel()

	cluster := podCluster()
	stale := &corev1.Service{ObjectMeta: metav1.ObjectMeta{
		Name: "pg-rw", Namespace: "db", Labels: metadata.UserServiceLabels("pg", "db"),
	}}
	e := newEnv(t, nil, stale)
	if err := e.manager.Refresh(t.Context(), cluster); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if diff := cmp.Diff([]string{"Service/pg-rw"}, e.client.Deleted()); diff != "" {
		t.Errorf("deleted mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Service/pg-rw", "Service/pg-ro", "Service/pg-monitor"}, e.client.Created()); diff != "" {
		t.Errorf("created mismatch (-want +got):\n%s", diff)
	}

	got := &corev1.Service{}
	if err := e.client.Get(t.Context(), client.ObjectKey{Namespace: "db", Name: "pg-rw"}, got); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Spec.Type != corev1.ServiceTypeNodePort {
		t.Errorf("Type = %q, want %q", got.Spec.Type, corev1.ServiceTypeNodePort)
	}
}
