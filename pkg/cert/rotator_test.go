package cert

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/radondb/postgres-operator/pkg/testutil"
)

const (
	testNamespace        = "test-ns"
	testCASecretName     = "pg-ca"         //nolint:gosec // test constant
	testServerSecretName = "pg-server-tls" //nolint:gosec // test constant
)

func testOptions() Options {
	return Options{
		Namespace:        testNamespace,
		CASecretName:     testCASecretName,
		ServerSecretName: testServerSecretName,
		CommonName:       "pg",
		DNSNames:         []string{"pg-0.pg.test-ns", "pg-rw.test-ns.svc"},
	}
}

func testScheme(t *testing.T) *runtime.Scheme {
	t.Helper()
	s := runtime.NewScheme()
	if err := clientgoscheme.AddToScheme(s); err != nil {
		t.Fatalf("AddToScheme() error = %v", err)
	}
	return s
}

func caSecret(ca *CAArtifacts) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: testCASecretName, Namespace: testNamespace},
		Data:       map[string][]byte{CACertKey: ca.CertPEM, CAKeyKey: ca.KeyPEM},
	}
}

func serverSecret(certPEM []byte) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: testServerSecretName, Namespace: testNamespace},
		Type:       corev1.SecretTypeTLS,
		Data:       map[string][]byte{CertFileName: certPEM, KeyFileName: []byte("key")},
	}
}

func issue(t *testing.T, ca *CAArtifacts, names ...string) []byte {
	t.Helper()
	srv, err := GenerateServerCert(ca, ServerRequest{CommonName: "pg", DNSNames: names})
	if err != nil {
		t.Fatalf("GenerateServerCert() error = %v", err)
	}
	return srv.CertPEM
}

func TestRotator_Reconcile(t *testing.T) {
	t.Parallel()

	ca, err := GenerateCA(testCASecretName, "")
	if err != nil {
		t.Fatalf("GenerateCA() error = %v", err)
	}
	otherCA, err := GenerateCA("other", "")
	if err != nil {
		t.Fatalf("GenerateCA() error = %v", err)
	}
	opts := testOptions()
	validCert := issue(t, ca, opts.DNSNames...)

	tests := map[string]struct {
		existing    []client.Object
		wantCreated []string
		wantNewCert bool
		wantSameCA  bool
	}{
		"fresh install creates both secrets": {
			wantCreated: []string{"Secret/" + testCASecretName, "Secret/" + testServerSecretName},
			wantNewCert: true,
		},
		"valid secrets are left alone": {
			existing:   []client.Object{caSecret(ca), serverSecret(validCert)},
			wantSameCA: true,
		},
		"missing server secret is created": {
			existing:    []client.Object{caSecret(ca)},
			wantCreated: []string{"Secret/" + testServerSecretName},
			wantNewCert: true,
			wantSameCA:  true,
		},
		"cert signed by another CA is rotated": {
			existing:    []client.Object{caSecret(ca), serverSecret(issue(t, otherCA, opts.DNSNames...))},
			wantNewCert: true,
			wantSameCA:  true,
		},
		"cert missing a name is rotated": {
			existing:    []client.Object{caSecret(ca), serverSecret(issue(t, ca, "pg-0.pg.test-ns"))},
			wantNewCert: true,
			wantSameCA:  true,
		},
		"corrupt cert is rotated": {
			existing:    []client.Object{caSecret(ca), serverSecret([]byte("not pem"))},
			wantNewCert: true,
			wantSameCA:  true,
		},
		"corrupt CA is recreated": {
			existing: []client.Object{
				&corev1.Secret{
					ObjectMeta: metav1.ObjectMeta{Name: testCASecretName, Namespace: testNamespace},
					Data:       map[string][]byte{CACertKey: []byte("bad"), CAKeyKey: []byte("bad")},
				},
				serverSecret(validCert),
			},
			wantCreated: []string{"Secret/" + testCASecretName},
			wantNewCert: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ctx := t.Context()

			base := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(tc.existing...).Build()
			c := testutil.NewFakeClientWithFailures(base, nil)
			recorder := record.NewFakeRecorder(10)

			var hookBundle []byte
			o := testOptions()
			o.PostReconcileHook = func(_ context.Context, bundle []byte) error {
				hookBundle = bundle
				return nil
			}
			r := NewRotator(c, recorder, o)

			if err := r.Reconcile(ctx); err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}

			if got := c.Created(); len(got) != len(tc.wantCreated) {
				t.Errorf("Created() = %v, want %v", got, tc.wantCreated)
			}

			gotCA := &corev1.Secret{}
			if err := c.Get(ctx, types.NamespacedName{Name: testCASecretName, Namespace: testNamespace}, gotCA); err != nil {
				t.Fatalf("get CA secret: %v", err)
			}
			if !bytes.Equal(hookBundle, gotCA.Data[CACertKey]) {
				t.Error("hook did not receive the stored CA bundle")
			}
			if same := bytes.Equal(gotCA.Data[CACertKey], ca.CertPEM); same != tc.wantSameCA {
				t.Errorf("CA unchanged = %v, want %v", same, tc.wantSameCA)
			}

			gotServer := &corev1.Secret{}
			if err := c.Get(ctx, types.NamespacedName{Name: testServerSecretName, Namespace: testNamespace}, gotServer); err != nil {
				t.Fatalf("get server secret: %v", err)
			}
			storedCA, err := ParseCA(gotCA.Data[CACertKey], gotCA.Data[CAKeyKey])
			if err != nil {
				t.Fatalf("ParseCA() error = %v", err)
			}
			if reason := r.rotationReason(gotServer, storedCA); reason != "" {
				t.Errorf("server cert still needs rotation: %s", reason)
			}
			newCert := !bytes.Equal(gotServer.Data[CertFileName], validCert)
			if newCert != tc.wantNewCert {
				t.Errorf("server certificate replaced = %v, want %v", newCert, tc.wantNewCert)
			}
			if newCert && !bytes.Equal(gotServer.Data[CACertKey], gotCA.Data[CACertKey]) {
				t.Error("server secret does not carry the CA bundle")
			}
		})
	}
}

func TestRotator_Reconcile_Errors(t *testing.T) {
	t.Parallel()

	errBoom := errors.New("boom")

	tests := map[string]struct {
		config *testutil.FailureConfig
		hook   func(context.Context, []byte) error
	}{
		"CA get fails": {
			config: &testutil.FailureConfig{OnGet: testutil.FailOnKeyName(testCASecretName, errBoom)},
		},
		"CA create fails": {
			config: &testutil.FailureConfig{OnCreate: testutil.FailOnObjectName(testCASecretName, errBoom)},
		},
		"server get fails": {
			config: &testutil.FailureConfig{OnGet: testutil.FailOnKeyName(testServerSecretName, errBoom)},
		},
		"server create fails": {
			config: &testutil.FailureConfig{OnCreate: testutil.FailOnObjectName(testServerSecretName, errBoom)},
		},
		"hook fails": {
			hook: func(context.Context, []byte) error { return errBoom },
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			base := fake.NewClientBuilder().WithScheme(testScheme(t)).Build()
			o := testOptions()
			o.PostReconcileHook = tc.hook
			r := NewRotator(testutil.NewFakeClientWithFailures(base, tc.config), nil, o)

			err := r.Reconcile(t.Context())
			if !errors.Is(err, errBoom) {
				t.Errorf("Reconcile() error = %v, want %v", err, errBoom)
			}
		})
	}
}

func TestRotator_Owner(t *testing.T) {
	t.Parallel()
	ctx := t.Context()

	owner := &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{Name: "owner", Namespace: testNamespace, UID: "owner-uid"},
	}
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).WithObjects(owner).Build()
	recorder := record.NewFakeRecorder(10)
	o := testOptions()
	o.Owner = owner

	if err := NewRotator(c, recorder, o).Reconcile(ctx); err != nil {
		t.Fatalf("Reconcile() error = %v", err)
	}

	for _, name := range []string{testCASecretName, testServerSecretName} {
		s := &corev1.Secret{}
		if err := c.Get(ctx, types.NamespacedName{Name: name, Namespace: testNamespace}, s); err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		refs := s.GetOwnerReferences()
		if len(refs) != 1 || refs[0].UID != owner.UID || refs[0].Controller == nil || !*refs[0].Controller {
			t.Errorf("%s owner references = %v", name, refs)
		}
	}
	if len(recorder.Events) != 2 {
		t.Errorf("recorded %d events, want 2", len(recorder.Events))
	}
}

func TestRotator_Bootstrap_WaitForProjection(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	c := fake.NewClientBuilder().WithScheme(testScheme(t)).Build()
	o := testOptions()
	o.CertDir = dir
	o.WaitForProjection = true
	r := NewRotator(c, nil, o)

	ctx := t.Context()
	done := make(chan error, 1)
	go func() { done <- r.Bootstrap(ctx) }()

	// Simulate the kubelet projecting the Secret into the mounted directory.
	key := types.NamespacedName{Name: testServerSecretName, Namespace: testNamespace}
	for {
		s := &corev1.Secret{}
		if err := c.Get(ctx, key, s); err == nil {
			if err := os.WriteFile(filepath.Join(dir, CertFileName), s.Data[CertFileName], 0o600); err != nil {
				t.Fatalf("write projected cert: %v", err)
			}
			break
		}
		select {
		case err := <-done:
			t.Fatalf("Bootstrap() returned before projection: %v", err)
		case <-time.After(10 * time.Millisecond):
		}
	}

	if err := <-done; err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
}
