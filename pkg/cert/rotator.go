package cert

import (
	"context"
	"crypto/x509"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/tools/record"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Secret data keys.
const (
	CACertKey    = "ca.crt"
	CAKeyKey     = "ca.key"
	CertFileName = corev1.TLSCertKey
	KeyFileName  = corev1.TLSPrivateKeyKey

	// RotationThreshold is the buffer before expiry at which certs are rotated (30 days).
	RotationThreshold = 30 * 24 * time.Hour
)

// Options configures a Rotator.
type Options struct {
	Namespace        string
	CASecretName     string
	ServerSecretName string
	// CommonName of the server certificate. It is also a SAN.
	CommonName string
	// DNSNames are additional SANs of the server certificate.
	DNSNames []string

	// Owner becomes the controller owner of both Secrets when set.
	Owner client.Object

	// CertDir is where the server certificate is projected. Only used when
	// WaitForProjection is set.
	CertDir string
	// WaitForProjection makes Bootstrap wait until the projected certificate
	// matches the Secret.
	WaitForProjection bool

	// RotationInterval is how often Start reconciles. Defaults to 1 hour.
	RotationInterval time.Duration

	// ComponentName is used in event messages. Defaults to "server".
	ComponentName string
	Organization  string
	ExtKeyUsages  []x509.ExtKeyUsage

	// PostReconcileHook receives the CA bundle after both Secrets are current.
	PostReconcileHook func(ctx context.Context, caBundle []byte) error
}

func (o *Options) componentName() string {
	if o.ComponentName != "" {
		return o.ComponentName
	}
	return "server"
}

func (o *Options) request() ServerRequest {
	return ServerRequest{
		CommonName:   o.CommonName,
		DNSNames:     o.DNSNames,
		Organization: o.Organization,
		ExtKeyUsages: o.ExtKeyUsages,
	}
}

// Rotator keeps a CA Secret and a server certificate Secret current.
type Rotator struct {
	Client   client.Client
	Recorder record.EventRecorder
	Options  Options
}

// NewRotator creates a Rotator.
func NewRotator(c client.Client, recorder record.EventRecorder, opts Options) *Rotator {
	return &Rotator{Client: c, Recorder: recorder, Options: opts}
}

// Bootstrap reconciles once and, with WaitForProjection, waits until the
// certificate on disk matches the Secret.
func (r *Rotator) Bootstrap(ctx context.Context) error {
	log.FromContext(ctx).Info("Bootstrapping PKI", "secret", r.Options.ServerSecretName)

	if r.Options.WaitForProjection {
		if err := os.MkdirAll(r.Options.CertDir, 0o750); err != nil {
			return fmt.Errorf("failed to create cert directory: %w", err)
		}
	}
	certPEM, err := r.reconcile(ctx)
	if err != nil {
		return err
	}
	if r.Options.WaitForProjection {
		return r.waitForProjection(ctx, certPEM)
	}
	return nil
}

// Start runs the rotation loop until ctx is cancelled. It implements the
// controller-runtime Runnable interface.
func (r *Rotator) Start(ctx context.Context) error {
	logger := log.FromContext(ctx).WithName("pki-rotation")
	interval := r.Options.RotationInterval
	if interval == 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := r.Reconcile(ctx); err != nil {
				logger.Error(err, "Periodic PKI reconciliation failed")
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Reconcile ensures the CA and the server certificate are valid and runs the
// post-reconcile hook.
func (r *Rotator) Reconcile(ctx context.Context) error {
	_, err := r.reconcile(ctx)
	return err
}

func (r *Rotator) reconcile(ctx context.Context) ([]byte, error) {
	ca, err := r.ensureCA(ctx)
	if err != nil {
		return nil, err
	}
	certPEM, err := r.ensureServerCert(ctx, ca)
	if err != nil {
		return nil, err
	}
	if r.Options.PostReconcileHook != nil {
		if err := r.Options.PostReconcileHook(ctx, ca.CertPEM); err != nil {
			return nil, fmt.Errorf("post-reconcile hook failed: %w", err)
		}
	}
	return certPEM, nil
}

func (r *Rotator) ensureCA(ctx context.Context) (*CAArtifacts, error) {
	logger := log.FromContext(ctx)
	key := types.NamespacedName{Name: r.Options.CASecretName, Namespace: r.Options.Namespace}
	secret := &corev1.Secret{}

	if err := r.Client.Get(ctx, key, secret); err != nil {
		if !errors.IsNotFound(err) {
			return nil, fmt.Errorf("failed to get CA secret: %w", err)
		}
		return r.createCA(ctx)
	}

	artifacts, err := ParseCA(secret.Data[CACertKey], secret.Data[CAKeyKey])
	if err != nil {
		logger.Error(err, "CA secret is corrupt, recreating", "secret", key.Name)
		return r.replaceCA(ctx, secret)
	}
	if time.Until(artifacts.Cert.NotAfter) < RotationThreshold {
		logger.Info("CA is near expiry, rotating", "secret", key.Name)
		return r.replaceCA(ctx, secret)
	}
	return artifacts, nil
}

func (r *Rotator) replaceCA(ctx context.Context, secret *corev1.Secret) (*CAArtifacts, error) {
	if err := r.Client.Delete(ctx, secret); err != nil && !errors.IsNotFound(err) {
		return nil, fmt.Errorf("failed to delete CA secret: %w", err)
	}
	return r.createCA(ctx)
}

func (r *Rotator) createCA(ctx context.Context) (*CAArtifacts, error) {
	artifacts, err := GenerateCA(r.Options.CASecretName, r.Options.Organization)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA: %w", err)
	}
	secret := &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{Name: r.Options.CASecretName, Namespace: r.Options.Namespace},
		Data: map[string][]byte{
			CACertKey: artifacts.CertPEM,
			CAKeyKey:  artifacts.KeyPEM,
		},
	}
	if err := r.setOwner(secret); err != nil {
		return nil, err
	}
	if err := r.Client.Create(ctx, secret); err != nil {
		return nil, fmt.Errorf("failed to create CA secret: %w", err)
	}
	r.event(secret, "Generated", "Generated new %s CA certificate", r.Options.componentName())
	return artifacts, nil
}

func (r *Rotator) ensureServerCert(ctx context.Context, ca *CAArtifacts) ([]byte, error) {
	logger := log.FromContext(ctx)
	key := types.NamespacedName{Name: r.Options.ServerSecretName, Namespace: r.Options.Namespace}
	secret := &corev1.Secret{}

	if err := r.Client.Get(ctx, key, secret); err != nil {
		if !errors.IsNotFound(err) {
			return nil, fmt.Errorf("failed to get server cert secret: %w", err)
		}
		secret = &corev1.Secret{
			ObjectMeta: metav1.ObjectMeta{Name: key.Name, Namespace: key.Namespace},
			Type:       corev1.SecretTypeTLS,
		}
		if err := r.fillServerSecret(secret, ca); err != nil {
			return nil, err
		}
		if err := r.setOwner(secret); err != nil {
			return nil, err
		}
		if err := r.Client.Create(ctx, secret); err != nil {
			return nil, fmt.Errorf("failed to create server cert secret: %w", err)
		}
		r.event(secret, "Generated", "Generated new %s certificate", r.Options.componentName())
		return secret.Data[CertFileName], nil
	}

	if reason := r.rotationReason(secret, ca); reason != "" {
		logger.Info("Rotating server certificate", "secret", key.Name, "reason", reason)
		if err := r.fillServerSecret(secret, ca); err != nil {
			return nil, err
		}
		if err := r.Client.Update(ctx, secret); err != nil {
			return nil, fmt.Errorf("failed to update server cert secret: %w", err)
		}
		r.event(secret, "Rotated", "Rotated %s certificate: %s", r.Options.componentName(), reason)
	}
	return secret.Data[CertFileName], nil
}

// rotationReason returns why the server certificate in secret must be
// reissued, or "" when it is still good.
func (r *Rotator) rotationReason(secret *corev1.Secret, ca *CAArtifacts) string {
	cert, err := ParseCertificate(secret.Data[CertFileName])
	if err != nil {
		return "unparseable certificate"
	}
	if time.Until(cert.NotAfter) < RotationThreshold {
		return "near expiry"
	}
	if err := cert.CheckSignatureFrom(ca.Cert); err != nil {
		return "not signed by current CA"
	}
	for _, n := range r.Options.DNSNames {
		if !slices.Contains(cert.DNSNames, n) && cert.VerifyHostname(n) != nil {
			return "missing name " + n
		}
	}
	return ""
}

func (r *Rotator) fillServerSecret(secret *corev1.Secret, ca *CAArtifacts) error {
	srv, err := GenerateServerCert(ca, r.Options.request())
	if err != nil {
		return fmt.Errorf("failed to generate server cert: %w", err)
	}
	secret.Data = map[string][]byte{
		CertFileName: srv.CertPEM,
		KeyFileName:  srv.KeyPEM,
		CACertKey:    ca.CertPEM,
	}
	return nil
}

func (r *Rotator) waitForProjection(ctx context.Context, expected []byte) error {
	logger := log.FromContext(ctx)
	certPath := filepath.Join(r.Options.CertDir, CertFileName)
	return wait.PollUntilContextTimeout(ctx, 100*time.Millisecond, 2*time.Minute, true,
		func(context.Context) (bool, error) {
			onDisk, err := os.ReadFile(certPath) //nolint:gosec // path is from trusted config
			if err != nil {
				logger.V(1).Info("Waiting for certificate file", "path", certPath, "err", err)
				return false, nil
			}
			return string(onDisk) == string(expected), nil
		})
}

func (r *Rotator) setOwner(secret *corev1.Secret) error {
	if r.Options.Owner == nil {
		return nil
	}
	if err := controllerutil.SetControllerReference(r.Options.Owner, secret, r.Client.Scheme()); err != nil {
		return fmt.Errorf("failed to set controller reference: %w", err)
	}
	return nil
}

func (r *Rotator) event(secret *corev1.Secret, reason, format string, args ...any) {
	if r.Recorder == nil {
		return
	}
	object := client.Object(secret)
	if r.Options.Owner != nil {
		object = r.Options.Owner
	}
	r.Recorder.Eventf(object, corev1.EventTypeNormal, reason, format, args...)
}
