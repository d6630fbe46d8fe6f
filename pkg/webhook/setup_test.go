package webhook

import (
	"net/http"
	"testing"

	"github.com/go-logr/logr"
	"github.com/google/go-cmp/cmp"
	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
	"sigs.k8s.io/controller-runtime/pkg/manager"
	"sigs.k8s.io/controller-runtime/pkg/webhook"

	postgresv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/cert"
)

// mockManager implements the parts of manager.Manager that Setup uses.
type mockManager struct {
	manager.Manager
	scheme *runtime.Scheme
	server *mockServer
}

func (m *mockManager) GetScheme() *runtime.Scheme       { return m.scheme }
func (m *mockManager) GetWebhookServer() webhook.Server { return m.server }
func (m *mockManager) GetLogger() logr.Logger           { return logr.Discard() }

type mockServer struct {
	webhook.Server
	paths []string
}

func (s *mockServer) Register(path string, _ http.Handler) { s.paths = append(s.paths, path) }

func TestSetup(t *testing.T) {
	t.Parallel()

	s := runtime.NewScheme()
	if err := postgresv1alpha1.AddToScheme(s); err != nil {
		t.Fatal(err)
	}
	mgr := &mockManager{scheme: s, server: &mockServer{}}

	if err := Setup(mgr); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if diff := cmp.Diff([]string{ValidatePath}, mgr.server.paths); diff != "" {
		t.Errorf("registered paths mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRotator(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	s := pkiScheme(t)
	if err := corev1.AddToScheme(s); err != nil {
		t.Fatal(err)
	}
	operator := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: "postgres-operator", Namespace: "ops", UID: "op-uid"},
	}
	cl := fake.NewClientBuilder().
		WithScheme(s).
		WithObjects(operator, validatingConfig(false, "vpostgresqlcluster.kb.io")).
		Build()

	rotator, err := NewRotator(ctx, cl, nil, Options{
		Namespace:          "ops",
		ServiceName:        "postgres-operator-webhook",
		CertDir:            t.TempDir(),
		OperatorDeployment: "postgres-operator",
	})
	if err != nil {
		t.Fatalf("NewRotator() error = %v", err)
	}

	wantDNS := []string{
		"postgres-operator-webhook.ops.svc",
		"postgres-operator-webhook.ops.svc.cluster.local",
	}
	if diff := cmp.Diff(wantDNS, rotator.Options.DNSNames); diff != "" {
		t.Errorf("DNSNames mismatch (-want +got):\n%s", diff)
	}
	if rotator.Options.Owner == nil || rotator.Options.Owner.GetUID() != operator.UID {
		t.Errorf("Owner = %v, want operator deployment", rotator.Options.Owner)
	}

	if err := rotator.Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	caSecret := &corev1.Secret{}
	if err := cl.Get(ctx, client.ObjectKey{Namespace: "ops", Name: CASecretName}, caSecret); err != nil {
		t.Fatalf("get CA secret: %v", err)
	}
	cfg := &admissionregistrationv1.ValidatingWebhookConfiguration{}
	if err := cl.Get(ctx, client.ObjectKey{Name: ValidatingWebhookName}, cfg); err != nil {
		t.Fatal(err)
	}
	if string(cfg.Webhooks[0].ClientConfig.CABundle) != string(caSecret.Data[cert.CACertKey]) {
		t.Error("webhook CABundle does not match the CA secret")
	}
}
