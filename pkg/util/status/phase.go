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

// Package status provides utilities for managing and calculating the Phase
// and Status conditions of PostgreSQLCluster resources.
package status

import (
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
)

// ConditionReady reports whether the last reconcile pass succeeded.
const ConditionReady = "Ready"

// Condition reasons.
const (
	ReasonCreating      = "Creating"
	ReasonReconciled    = "Reconciled"
	ReasonInvalidSpec   = "InvalidSpec"
	ReasonReconcileFail = "ReconcileFailed"
)

// ComputePhase determines the phase of a cluster from the number of ready
// instances out of the expected total.
func ComputePhase(ready, total int32) pgv1alpha1.Phase {
	if total == 0 {
		return pgv1alpha1.PhaseInitializing
	}
	if ready >= total {
		return pgv1alpha1.PhaseHealthy
	}
	return pgv1alpha1.PhaseProgressing
}

// SetReady records the Ready condition. It reports whether the condition
// changed.
func SetReady(
	cluster *pgv1alpha1.PostgreSQLCluster,
	status metav1.ConditionStatus,
	reason, message string,
) bool {
	return meta.SetStatusCondition(&cluster.Status.Conditions, metav1.Condition{
		Type:               ConditionReady,
		Status:             status,
		Reason:             reason,
		Message:            message,
		ObservedGeneration: cluster.Generation,
	})
}
