package testutil

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

func newScheme() *runtime.Scheme {
	s := runtime.NewScheme()
	_ = corev1.AddToScheme(s)
	_ = appsv1.AddToScheme(s)
	return s
}

func TestFakeClient_InjectsFailures(t *testing.T) {
	tests := map[string]struct {
		config *FailureConfig
		run    func(c client.Client) error
	}{
		"create by type": {
			config: &FailureConfig{OnCreate: FailOnType[*appsv1.StatefulSet](ErrInjected)},
			run: func(c client.Client) error {
				return c.Create(t.Context(), &appsv1.StatefulSet{ObjectMeta: metav1.ObjectMeta{Name: "a", Namespace: "db"}})
			},
		},
		"get by key name": {
			config: &FailureConfig{OnGet: FailOnKeyName("a", ErrInjected)},
			run: func(c client.Client) error {
				return c.Get(t.Context(), client.ObjectKey{Name: "a", Namespace: "db"}, &corev1.Service{})
			},
		},
		"delete by object name": {
			config: &FailureConfig{OnDelete: FailOnObjectName("a", ErrInjected)},
			run: func(c client.Client) error {
				return c.Delete(t.Context(), &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "a", Namespace: "db"}})
			},
		},
		"status patch": {
			config: &FailureConfig{OnStatusPatch: FailObjAfterNCalls(0, ErrInjected)},
			run: func(c client.Client) error {
				svc := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "a", Namespace: "db"}}
				return c.Status().Patch(t.Context(), svc, client.MergeFrom(svc.DeepCopy()))
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := NewFakeClientWithFailures(fake.NewClientBuilder().WithScheme(newScheme()).Build(), tc.config)
			if err := tc.run(c); !errors.Is(err, ErrInjected) {
				t.Errorf("got %v, want ErrInjected", err)
			}
		})
	}
}

func TestFakeClient_RecordsCreatesAndDeletes(t *testing.T) {
	c := NewFakeClientWithFailures(fake.NewClientBuilder().WithScheme(newScheme()).Build(), nil)

	svc := &corev1.Service{ObjectMeta: metav1.ObjectMeta{Name: "pg-primary", Namespace: "db"}}
	sts := &appsv1.StatefulSet{ObjectMeta: metav1.ObjectMeta{Name: "pg-autofailover-0", Namespace: "db"}}
	for _, obj := range []client.Object{svc, sts} {
		if err := c.Create(t.Context(), obj); err != nil {
			t.Fatalf("Create() = %v", err)
		}
	}
	if err := c.Delete(t.Context(), svc); err != nil {
		t.Fatalf("Delete() = %v", err)
	}

	if diff := cmp.Diff([]string{"Service/pg-primary", "StatefulSet/pg-autofailover-0"}, c.Created()); diff != "" {
		t.Errorf("Created() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Service/pg-primary"}, c.Deleted()); diff != "" {
		t.Errorf("Deleted() mismatch (-want +got):\n%s", diff)
	}
}
