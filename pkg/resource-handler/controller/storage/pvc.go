// Package storage manages the PersistentVolumeClaims created from the
// volumeClaimTemplates of instance StatefulSets.
package storage

import (
	"context"
	"errors"
	"fmt"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/radondb/postgres-operator/pkg/util/name"
)

// ClaimNames returns the names of the claims the StatefulSet controller
// creates for pod from templates.
func ClaimNames(templates []corev1.PersistentVolumeClaim, pod string) []string {
	names := make([]string, 0, len(templates))
	for _, t := range templates {
		names = append(names, name.PVC(t.Name, pod))
	}
	return names
}

// RetentionPolicy keeps claims when a StatefulSet is deleted or scaled
// down. Stopping a cluster scales instances to zero and must not lose data;
// claims are removed explicitly by DeleteClaims.
func RetentionPolicy() *appsv1.StatefulSetPersistentVolumeClaimRetentionPolicy {
	return &appsv1.StatefulSetPersistentVolumeClaimRetentionPolicy{
		WhenDeleted: appsv1.RetainPersistentVolumeClaimRetentionPolicyType,
		WhenScaled:  appsv1.RetainPersistentVolumeClaimRetentionPolicyType,
	}
}

// DeleteClaims deletes the claims of pod. Claims that are already gone are
// skipped; every other failure is returned after all deletions were tried.
func DeleteClaims(
	ctx context.Context,
	c client.Client,
	namespace, pod string,
	templates []corev1.PersistentVolumeClaim,
) error {
	logger := log.FromContext(ctx)

	var errs []error
	for _, claim := range ClaimNames(templates, pod) {
		pvc := &corev1.PersistentVolumeClaim{
			ObjectMeta: metav1.ObjectMeta{Name: claim, Namespace: namespace},
		}
		logger.Info("Deleting PersistentVolumeClaim", "pvc", claim)
		if err := c.Delete(ctx, pvc); err != nil && !apierrors.IsNotFound(err) {
			errs = append(errs, fmt.Errorf("failed to delete PVC %s: %w", claim, err))
		}
	}
	return errors.Join(errs...)
}
