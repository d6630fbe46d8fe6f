/*
Copyright 2025.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"crypto/tls"
	"flag"
	"os"
	"path/filepath"
	"time"

	// Import all Kubernetes client auth plugins (e.g. Azure, GCP, OIDC, etc.)
	_ "k8s.io/client-go/plugin/pkg/client/auth"

	admissionregistrationv1 "k8s.io/api/admissionregistration/v1"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/runtime"
	utilruntime "k8s.io/apimachinery/pkg/util/runtime"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/healthz"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/metrics/filters"
	metricsserver "sigs.k8s.io/controller-runtime/pkg/metrics/server"
	ctrlwebhook "sigs.k8s.io/controller-runtime/pkg/webhook"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/cluster-handler/controller/postgresqlcluster"
	"github.com/radondb/postgres-operator/pkg/connection"
	pgwebhook "github.com/radondb/postgres-operator/pkg/webhook"
)

var (
	scheme   = runtime.NewScheme()
	setupLog = ctrl.Log.WithName("setup")
)

func init() {
	utilruntime.Must(clientgoscheme.AddToScheme(scheme))
	utilruntime.Must(pgv1alpha1.AddToScheme(scheme))
	utilruntime.Must(admissionregistrationv1.AddToScheme(scheme))
	// +kubebuilder:scaffold:scheme
}

func main() {
	var metricsAddr string
	var enableLeaderElection bool
	var probeAddr string
	var secureMetrics bool
	var enableHTTP2 bool
	var tlsOpts []func(*tls.Config)

	// Webhook Flags
	var webhookEnabled bool
	var webhookCertDir string
	var webhookServiceNamespace string
	var webhookServiceName string
	var operatorDeployment string

	// Cluster handling
	var correctionInterval time.Duration
	var maxConcurrentReconciles int
	var sshTimeout time.Duration
	layout := connection.DefaultMachineLayout()
	policies := postgresqlcluster.DefaultOptions().Policies

	defaultNS := os.Getenv("POD_NAMESPACE")
	if defaultNS == "" {
		defaultNS = "postgres-operator-system"
	}

	// General Flags
	flag.StringVar(&metricsAddr, "metrics-bind-address", "0", "The address the metrics endpoint binds to.")
	flag.StringVar(&probeAddr, "health-probe-bind-address", ":8081", "The address the probe endpoint binds to.")
	flag.BoolVar(&enableLeaderElection, "leader-elect", false, "Enable leader election for controller manager.")
	flag.BoolVar(&secureMetrics, "metrics-secure", true, "If set, the metrics endpoint is served securely via HTTPS.")
	flag.BoolVar(&enableHTTP2, "enable-http2", false, "If set, HTTP/2 will be enabled for the metrics and webhook servers")

	// Webhook Flag Configuration
	flag.BoolVar(&webhookEnabled, "webhook-enable", true, "Enable the admission webhook server")
	flag.StringVar(&webhookCertDir, "webhook-cert-dir", "/var/run/secrets/webhook", "Directory to store/read webhook certificates")
	flag.StringVar(&webhookServiceNamespace, "webhook-service-namespace", defaultNS, "Namespace where the webhook service resides")
	flag.StringVar(&webhookServiceName, "webhook-service-name", "postgres-operator-webhook-service", "Name of the Kubernetes Service for the webhook")
	flag.StringVar(&operatorDeployment, "operator-deployment", "postgres-operator-controller-manager", "Name of the operator Deployment owning the webhook certificates")

	// Cluster Flag Configuration
	flag.DurationVar(&correctionInterval, "correction-interval", postgresqlcluster.DefaultCorrectionInterval, "Minimum time between two correction passes of a cluster")
	flag.IntVar(&maxConcurrentReconciles, "max-concurrent-reconciles", 1, "Clusters reconciled in parallel")
	flag.StringVar(&layout.AutoFailoverDataPath, "autofailover-data-path", layout.AutoFailoverDataPath, "Directory of the autofailover instance on machines")
	flag.StringVar(&layout.PostgreSQLDataPath, "postgresql-data-path", layout.PostgreSQLDataPath, "Directory of the PostgreSQL instance on machines")
	flag.DurationVar(&sshTimeout, "ssh-timeout", 10*time.Second, "Timeout of a single SSH dial")

	// Retry budgets
	flag.IntVar(&policies.Connect.Attempts, "ssh-connect-attempts", policies.Connect.Attempts, "Attempts to open a machine shell")
	flag.DurationVar(&policies.Connect.Interval, "ssh-connect-interval", policies.Connect.Interval, "Interval between machine shell attempts")
	flag.IntVar(&policies.InitReady.Attempts, "ready-attempts", policies.InitReady.Attempts, "Attempts waiting for an instance to initialize")
	flag.DurationVar(&policies.InitReady.Interval, "ready-interval", policies.InitReady.Interval, "Interval between initialization checks")
	flag.DurationVar(&policies.InitSettle, "ready-settle", policies.InitSettle, "Delay after instances are initialized")
	flag.IntVar(&policies.InstanceReady.Attempts, "running-attempts", policies.InstanceReady.Attempts, "Attempts waiting for an instance container to answer")
	flag.IntVar(&policies.ClusterStatus.Attempts, "cluster-status-attempts", policies.ClusterStatus.Attempts, "Attempts waiting for the monitor to report a settled cluster")
	flag.DurationVar(&policies.ClusterStatusSettle, "cluster-status-settle", policies.ClusterStatusSettle, "Delay before the cluster status is polled")

	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	ctrl.SetLogger(zap.New(zap.UseFlagOptions(&opts)))

	disableHTTP2 := func(c *tls.Config) {
		setupLog.Info("disabling http/2")
		c.NextProtos = []string{"http/1.1"}
	}
	if !enableHTTP2 {
		tlsOpts = append(tlsOpts, disableHTTP2)
	}

	metricsServerOptions := metricsserver.Options{
		BindAddress:   metricsAddr,
		SecureServing: secureMetrics,
		TLSOpts:       tlsOpts,
	}

	if secureMetrics {
		metricsServerOptions.FilterProvider = filters.WithAuthenticationAndAuthorization
	}

	mgr, err := ctrl.NewManager(ctrl.GetConfigOrDie(), ctrl.Options{
		Scheme:                 scheme,
		Metrics:                metricsServerOptions,
		HealthProbeBindAddress: probeAddr,
		LeaderElection:         enableLeaderElection,
		LeaderElectionID:       "postgres-operator.radondb.io",
		WebhookServer: ctrlwebhook.NewServer(ctrlwebhook.Options{
			Port:    9443,
			CertDir: webhookCertDir,
			TLSOpts: tlsOpts,
		}),
		Client: client.Options{
			// Secrets and the operator Deployment are read during certificate bootstrap.
			Cache: &client.CacheOptions{
				DisableFor: []client.Object{
					&corev1.Secret{},
					&appsv1.Deployment{},
					&admissionregistrationv1.ValidatingWebhookConfiguration{},
				},
			},
		},
	})
	if err != nil {
		setupLog.Error(err, "unable to start manager")
		os.Exit(1)
	}

	if webhookEnabled {
		if err := setupWebhookCerts(mgr, webhookCertDir, pgwebhook.Options{
			Namespace:          webhookServiceNamespace,
			ServiceName:        webhookServiceName,
			CertDir:            webhookCertDir,
			OperatorDeployment: operatorDeployment,
		}); err != nil {
			setupLog.Error(err, "unable to set up webhook certificates")
			os.Exit(1)
		}
	}

	exec, err := connection.NewSPDYExecutor(mgr.GetConfig())
	if err != nil {
		setupLog.Error(err, "unable to create pod executor")
		os.Exit(1)
	}

	options := postgresqlcluster.DefaultOptions()
	options.Policies = policies
	options.CorrectionInterval = correctionInterval

	if err = (&postgresqlcluster.PostgreSQLClusterReconciler{
		Client:   mgr.GetClient(),
		Scheme:   mgr.GetScheme(),
		Recorder: mgr.GetEventRecorderFor("postgres-operator"),
		Connector: &connection.Connector{
			Exec:    exec,
			Dialer:  connection.SSHDialer{Timeout: sshTimeout},
			Connect: policies.Connect,
			Layout:  layout,
		},
		Options: options,
	}).SetupWithManager(mgr, controller.Options{MaxConcurrentReconciles: maxConcurrentReconciles}); err != nil {
		setupLog.Error(err, "unable to create controller", "controller", "PostgreSQLCluster")
		os.Exit(1)
	}

	if webhookEnabled {
		if err := pgwebhook.Setup(mgr); err != nil {
			setupLog.Error(err, "unable to set up webhook")
			os.Exit(1)
		}
	}

	if err := mgr.AddHealthzCheck("healthz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up health check")
		os.Exit(1)
	}
	if err := mgr.AddReadyzCheck("readyz", healthz.Ping); err != nil {
		setupLog.Error(err, "unable to set up ready check")
		os.Exit(1)
	}

	setupLog.Info("starting manager")
	if err := mgr.Start(ctrl.SetupSignalHandler()); err != nil {
		setupLog.Error(err, "problem running manager")
		os.Exit(1)
	}
}

// setupWebhookCerts bootstraps the operator-managed serving certificate and
// registers its rotation loop. Certificates already on disk are left to
// their external manager unless the operator patched the webhook before.
func setupWebhookCerts(mgr ctrl.Manager, certDir string, opts pgwebhook.Options) error {
	// The manager client is not started yet.
	tmpClient, err := client.New(mgr.GetConfig(), client.Options{Scheme: scheme})
	if err != nil {
		return err
	}
	ctx := context.Background()

	if certsExist(certDir) && !pgwebhook.HasCertAnnotation(ctx, tmpClient) {
		setupLog.Info("webhook certificates found on disk; using external certificate management")
		return nil
	}
	setupLog.Info("enabling internal certificate rotation")

	rotator, err := pgwebhook.NewRotator(ctx, tmpClient, mgr.GetEventRecorderFor("postgres-operator-pki"), opts)
	if err != nil {
		return err
	}
	if err := rotator.Bootstrap(ctx); err != nil {
		return err
	}
	rotator.Client = mgr.GetClient()
	return mgr.Add(rotator)
}

func certsExist(dir string) bool {
	_, errCrt := os.Stat(filepath.Join(dir, "tls.crt"))
	_, errKey := os.Stat(filepath.Join(dir, "tls.key"))
	return !os.IsNotExist(errCrt) && !os.IsNotExist(errKey)
}
