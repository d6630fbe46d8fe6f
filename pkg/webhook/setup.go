package webhook

import (
	"context"
	"fmt"

	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	postgresv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/cert"
	"github.com/radondb/postgres-operator/pkg/webhook/handlers"
)

// ValidatePath is the admission path of the PostgreSQLCluster validator.
const ValidatePath = "/validate-postgres-radondb-io-v1alpha1-postgresqlcluster"

// Options configures the operator-managed webhook certificates.
type Options struct {
	// Namespace is the operator's namespace.
	Namespace string
	// ServiceName is the Service fronting the webhook server.
	ServiceName string
	// CertDir is where the serving certificate is mounted.
	CertDir string
	// OperatorDeployment owns the certificate Secrets when it can be found.
	OperatorDeployment string
	// OperatorLabels locate the operator Deployment before falling back to its name.
	OperatorLabels map[string]string
}

// Setup registers the admission handlers with the manager's webhook server.
func Setup(mgr ctrl.Manager) error {
	logger := mgr.GetLogger().WithName("webhook-setup")
	logger.Info("Registering admission handlers", "path", ValidatePath)

	mgr.GetWebhookServer().Register(
		ValidatePath,
		admission.WithCustomValidator(
			mgr.GetScheme(),
			&postgresv1alpha1.PostgreSQLCluster{},
			handlers.NewPostgreSQLClusterValidator(),
		),
	)
	return nil
}

// NewRotator builds the rotator for the webhook serving certificate. The CA
// bundle is patched into the ValidatingWebhookConfiguration after every
// reconciliation.
func NewRotator(
	ctx context.Context,
	c client.Client,
	recorder record.EventRecorder,
	opts Options,
) (*cert.Rotator, error) {
	owner, err := FindOperatorDeployment(ctx, c, opts.Namespace, opts.OperatorLabels, opts.OperatorDeployment)
	if err != nil {
		return nil, err
	}

	svc := fmt.Sprintf("%s.%s.svc", opts.ServiceName, opts.Namespace)
	rotatorOpts := cert.Options{
		Namespace:         opts.Namespace,
		CASecretName:      CASecretName,
		ServerSecretName:  ServerSecretName,
		CommonName:        svc,
		DNSNames:          []string{svc, svc + ".cluster.local"},
		CertDir:           opts.CertDir,
		WaitForProjection: true,
		ComponentName:     "webhook",
	}
	if owner != nil {
		rotatorOpts.Owner = owner
	}
	rotator := cert.NewRotator(c, recorder, rotatorOpts)
	rotator.Options.PostReconcileHook = func(ctx context.Context, caBundle []byte) error {
		return PatchWebhookCABundle(ctx, rotator.Client, caBundle)
	}
	return rotator, nil
}
