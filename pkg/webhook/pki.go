package webhook

import (
	"context"
	"fmt"

	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	appsv1 "k8s.io/api/apps/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	// CASecretName stores the webhook CA certificate and key.
	CASecretName = "postgres-operator-ca-secret" //nolint:gosec // K8s resource name, not a credential

	// ServerSecretName stores the webhook serving certificate and key.
	ServerSecretName = "postgres-operator-webhook-certs" //nolint:gosec // K8s resource name, not a credential

	// ValidatingWebhookName is the name of the ValidatingWebhookConfiguration.
	ValidatingWebhookName = "postgres-operator-validating-webhook-configuration"

	// CertStrategyAnnotation marks how the webhook TLS certificates are managed.
	CertStrategyAnnotation = "postgres.radondb.io/cert-strategy"

	// CertStrategySelfSigned indicates the operator manages its own CA and server certs.
	CertStrategySelfSigned = "self-signed"

	// certFieldOwner is the SSA field manager for caBundle and the cert-strategy annotation.
	certFieldOwner = "postgres-operator-cert"
)

// PatchWebhookCABundle injects the CA bundle and cert-strategy annotation into
// the validating webhook configuration with Server-Side Apply. A dedicated
// field owner keeps a user's own apply from wiping caBundle.
func PatchWebhookCABundle(ctx context.Context, c client.Client, caBundle []byte) error {
	existing := &admissionregistrationv1.ValidatingWebhookConfiguration{}
	if err := c.Get(ctx, types.NamespacedName{Name: ValidatingWebhookName}, existing); err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to get validating webhook config: %w", err)
	}
	if len(existing.Webhooks) == 0 {
		return nil
	}

	patch := &admissionregistrationv1.ValidatingWebhookConfiguration{
		TypeMeta: metav1.TypeMeta{
			APIVersion: "admissionregistration.k8s.io/v1",
			Kind:       "ValidatingWebhookConfiguration",
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:        ValidatingWebhookName,
			Annotations: map[string]string{CertStrategyAnnotation: CertStrategySelfSigned},
		},
		Webhooks: make([]admissionregistrationv1.ValidatingWebhook, len(existing.Webhooks)),
	}
	for i, wh := range existing.Webhooks {
		patch.Webhooks[i] = admissionregistrationv1.ValidatingWebhook{
			Name:                    wh.Name,
			AdmissionReviewVersions: wh.AdmissionReviewVersions,
			SideEffects:             wh.SideEffects,
			ClientConfig: admissionregistrationv1.WebhookClientConfig{
				CABundle: caBundle,
				Service:  wh.ClientConfig.Service,
			},
		}
	}

	return c.Patch(ctx, patch, client.Apply, client.FieldOwner(certFieldOwner), client.ForceOwnership)
}

// HasCertAnnotation reports whether the validating webhook configuration was
// previously patched by the operator. Startup uses it to keep managing certs
// even when a projected volume survived a restart.
func HasCertAnnotation(ctx context.Context, c client.Client) bool {
	validating := &admissionregistrationv1.ValidatingWebhookConfiguration{}
	if err := c.Get(ctx, types.NamespacedName{Name: ValidatingWebhookName}, validating); err != nil {
		return false
	}
	return validating.Annotations[CertStrategyAnnotation] == CertStrategySelfSigned
}

// FindOperatorDeployment locates the operator's own Deployment, first by
// labels and then by name. It returns (nil, nil) when none is found.
func FindOperatorDeployment(
	ctx context.Context,
	c client.Client,
	namespace string,
	labels map[string]string,
	name string,
) (*appsv1.Deployment, error) {
	if len(labels) > 0 {
		list := &appsv1.DeploymentList{}
		if err := c.List(ctx, list, client.InNamespace(namespace), client.MatchingLabels(labels)); err != nil {
			return nil, fmt.Errorf("failed to list deployments by labels: %w", err)
		}
		if len(list.Items) > 1 {
			return nil, fmt.Errorf("found %d deployments matching operator labels", len(list.Items))
		}
		if len(list.Items) == 1 {
			return &list.Items[0], nil
		}
	}

	if name == "" {
		return nil, nil
	}
	dep := &appsv1.Deployment{}
	if err := c.Get(ctx, types.NamespacedName{Name: name, Namespace: namespace}, dep); err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get operator deployment by name: %w", err)
	}
	return dep, nil
}
