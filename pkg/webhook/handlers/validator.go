package handlers

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/webhook"
	"sigs.k8s.io/controller-runtime/pkg/webhook/admission"

	postgresv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
)

// +kubebuilder:webhook:path=/validate-postgres-radondb-io-v1alpha1-postgresqlcluster,mutating=false,failurePolicy=fail,sideEffects=None,groups=postgres.radondb.io,resources=postgresqlclusters,verbs=create;update,versions=v1alpha1,name=vpostgresqlcluster.kb.io,admissionReviewVersions=v1

// PostgreSQLClusterValidator validates Create and Update events for PostgreSQLClusters.
type PostgreSQLClusterValidator struct{}

var _ webhook.CustomValidator = &PostgreSQLClusterValidator{}

// NewPostgreSQLClusterValidator creates a new validator for PostgreSQLClusters.
func NewPostgreSQLClusterValidator() *PostgreSQLClusterValidator {
	return &PostgreSQLClusterValidator{}
}

func (v *PostgreSQLClusterValidator) ValidateCreate(
	_ context.Context,
	obj runtime.Object,
) (admission.Warnings, error) {
	cluster, err := asCluster(obj)
	if err != nil {
		return nil, err
	}
	if err := cluster.Spec.ValidateCreate(); err != nil {
		return nil, err
	}
	return warnings(cluster), nil
}

func (v *PostgreSQLClusterValidator) ValidateUpdate(
	_ context.Context,
	oldObj, newObj runtime.Object,
) (admission.Warnings, error) {
	oldCluster, err := asCluster(oldObj)
	if err != nil {
		return nil, err
	}
	cluster, err := asCluster(newObj)
	if err != nil {
		return nil, err
	}
	if err := cluster.Spec.ValidateUpdate(&oldCluster.Spec); err != nil {
		return nil, err
	}
	return warnings(cluster), nil
}

func (v *PostgreSQLClusterValidator) ValidateDelete(
	_ context.Context,
	_ runtime.Object,
) (admission.Warnings, error) {
	return nil, nil
}

func asCluster(obj runtime.Object) (*postgresv1alpha1.PostgreSQLCluster, error) {
	cluster, ok := obj.(*postgresv1alpha1.PostgreSQLCluster)
	if !ok {
		return nil, fmt.Errorf("expected PostgreSQLCluster, got %T", obj)
	}
	return cluster, nil
}

// warnings flags accepted specs that are likely mistakes.
func warnings(cluster *postgresv1alpha1.PostgreSQLCluster) admission.Warnings {
	var w admission.Warnings
	spec := &cluster.Spec

	if spec.DeletePVC {
		w = append(w, "spec.deletepvc is set: instance storage is removed when the cluster is deleted")
	}
	if spec.PostgreSQL.ReadOnlyInstance.Streaming == postgresv1alpha1.StreamingSync &&
		spec.Replicas(postgresv1alpha1.RoleReadOnly) == 0 {
		w = append(w, "spec.postgresql.readonlyinstance.streaming is sync but there are no readonly instances")
	}
	if spec.MachineMode() {
		for i, svc := range spec.Services {
			if svc.VirtualIP == "" {
				w = append(w, fmt.Sprintf("spec.services[%d] has no virtualIP and is ignored on machines", i))
			}
		}
	}
	if spec.PostgreSQL.Users != nil {
		for _, u := range append(append([]postgresv1alpha1.UserSpec{}, spec.PostgreSQL.Users.Admin...), spec.PostgreSQL.Users.Normal...) {
			if u.Password == "" {
				w = append(w, fmt.Sprintf("user %q has an empty password", u.Name))
			}
		}
	}
	return w
}
