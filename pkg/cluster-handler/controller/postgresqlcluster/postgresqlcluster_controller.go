package postgresqlcluster

import (
	"context"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/tools/record"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/controller"
	"sigs.k8s.io/controller-runtime/pkg/controller/controllerutil"
	"sigs.k8s.io/controller-runtime/pkg/log"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/monitoring"
	"github.com/radondb/postgres-operator/pkg/resource-handler/controller/instance"
	"github.com/radondb/postgres-operator/pkg/resource-handler/controller/services"
	"github.com/radondb/postgres-operator/pkg/util/status"
)

// PostgreSQLClusterReconciler reconciles a PostgreSQLCluster object.
type PostgreSQLClusterReconciler struct {
	client.Client
	Scheme    *runtime.Scheme
	Recorder  record.EventRecorder
	Connector *connection.Connector
	Options   Options
}

func (r *PostgreSQLClusterReconciler) provisioner() *instance.Provisioner {
	return &instance.Provisioner{
		Client:    r.Client,
		Scheme:    r.Scheme,
		Connector: r.Connector,
		Policies:  r.Options.Policies,
	}
}

func (r *PostgreSQLClusterReconciler) services() *services.Manager {
	return &services.Manager{Client: r.Client, Scheme: r.Scheme, Connector: r.Connector}
}

// Reconcile creates, updates, corrects or tears down a PostgreSQLCluster.
//
// +kubebuilder:rbac:groups=postgres.radondb.io,resources=postgresqlclusters,verbs=get;list;watch;update;patch
// +kubebuilder:rbac:groups=postgres.radondb.io,resources=postgresqlclusters/status,verbs=get;update;patch
// +kubebuilder:rbac:groups=postgres.radondb.io,resources=postgresqlclusters/finalizers,verbs=update
// +kubebuilder:rbac:groups=apps,resources=statefulsets,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=services;persistentvolumeclaims;secrets,verbs=get;list;watch;create;update;patch;delete
// +kubebuilder:rbac:groups="",resources=pods,verbs=get;list;watch;patch
// +kubebuilder:rbac:groups="",resources=pods/exec,verbs=create
// +kubebuilder:rbac:groups="",resources=events,verbs=create;patch
func (r *PostgreSQLClusterReconciler) Reconcile(
	ctx context.Context,
	req ctrl.Request,
) (ctrl.Result, error) {
	l := log.FromContext(ctx)

	cluster := &pgv1alpha1.PostgreSQLCluster{}
	if err := r.Get(ctx, req.NamespacedName, cluster); err != nil {
		if errors.IsNotFound(err) {
			return ctrl.Result{}, nil
		}
		return ctrl.Result{}, fmt.Errorf("failed to get PostgreSQLCluster: %w", err)
	}

	ctx, span := monitoring.StartReconcileSpan(ctx, "PostgreSQLCluster.Reconcile",
		cluster.Name, cluster.Namespace, "PostgreSQLCluster")
	defer span.End()

	if !cluster.DeletionTimestamp.IsZero() {
		return r.handleDelete(ctx, cluster)
	}

	if !controllerutil.ContainsFinalizer(cluster, finalizerName) {
		controllerutil.AddFinalizer(cluster, finalizerName)
		if err := r.Update(ctx, cluster); err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to add finalizer: %w", err)
		}
		return ctrl.Result{}, nil
	}

	if err := r.reconcileCluster(ctx, cluster); err != nil {
		monitoring.RecordSpanError(span, err)
		l.Error(err, "Failed to reconcile cluster")
		r.recordFailure(ctx, cluster, err)
		return ctrl.Result{}, err
	}

	if err := r.updateStatus(ctx, cluster); err != nil {
		l.Error(err, "Failed to update status")
		return ctrl.Result{}, err
	}

	return ctrl.Result{RequeueAfter: r.Options.interval()}, nil
}

func (r *PostgreSQLClusterReconciler) reconcileCluster(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
) error {
	if cluster.Status.CreatePhase != pgv1alpha1.CreatePhaseFinished {
		if err := r.createCluster(ctx, cluster); err != nil {
			return err
		}
		return r.storeLastApplied(ctx, cluster)
	}

	if err := r.updateCluster(ctx, cluster); err != nil {
		return err
	}

	if r.correctionDue(cluster) {
		r.correctCluster(ctx, cluster)
	}
	return nil
}

// recordFailure surfaces err on the Ready condition and as an event.
func (r *PostgreSQLClusterReconciler) recordFailure(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	err error,
) {
	reason := status.ReasonReconcileFail
	if connection.IsFatal(err) {
		reason = status.ReasonInvalidSpec
	}
	r.Recorder.Event(cluster, "Warning", reason, err.Error())

	if patchErr := r.patchStatus(ctx, cluster, func(c *pgv1alpha1.PostgreSQLCluster) {
		status.SetReady(c, metav1.ConditionFalse, reason, err.Error())
	}); patchErr != nil {
		log.FromContext(ctx).Error(patchErr, "Failed to record failure in status")
	}
}

func (r *PostgreSQLClusterReconciler) handleDelete(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
) (ctrl.Result, error) {
	if controllerutil.ContainsFinalizer(cluster, finalizerName) {
		if err := r.deleteCluster(ctx, cluster); err != nil {
			r.Recorder.Event(cluster, "Warning", "Cleanup", err.Error())
			return ctrl.Result{}, err
		}
		monitoring.DeleteCluster(cluster.Name, cluster.Namespace)
		controllerutil.RemoveFinalizer(cluster, finalizerName)
		if err := r.Update(ctx, cluster); err != nil {
			return ctrl.Result{}, fmt.Errorf("failed to remove finalizer: %w", err)
		}
	}
	return ctrl.Result{}, nil
}

// SetupWithManager sets up the controller with the Manager.
func (r *PostgreSQLClusterReconciler) SetupWithManager(
	mgr ctrl.Manager,
	opts ...controller.Options,
) error {
	controllerOpts := controller.Options{MaxConcurrentReconciles: 1}
	if len(opts) > 0 {
		controllerOpts = opts[0]
	}

	return ctrl.NewControllerManagedBy(mgr).
		For(&pgv1alpha1.PostgreSQLCluster{}).
		Owns(&appsv1.StatefulSet{}).
		Owns(&corev1.Service{}).
		WithOptions(controllerOpts).
		Complete(r)
}
