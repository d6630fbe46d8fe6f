// Package webhook wires the PostgreSQLCluster admission webhook into the
// controller-runtime manager.
//
// It has two concerns:
//
//  1. Certificates: when the operator manages its own PKI, NewRotator builds a
//     cert.Rotator that issues the webhook serving certificate and injects the
//     CA bundle into the ValidatingWebhookConfiguration.
//
//  2. Registration: Setup registers the validator from the handlers
//     subpackage under ValidatePath.
//
// Usage:
//
//	if err := webhook.Setup(mgr); err != nil {
//	    setupLog.Error(err, "unable to setup webhook")
//	    os.Exit(1)
//	}
package webhook
