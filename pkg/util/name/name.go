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

// Package name derives the names of the Kubernetes objects and DNS addresses
// that belong to a PostgreSQLCluster instance.
package name

import (
	"fmt"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
)

// StatefulSet returns the StatefulSet (and headless Service) name of
// replica i of role.
func StatefulSet(cluster string, role pgv1alpha1.InstanceRole, i int32) string {
	return fmt.Sprintf("%s-%s-%d", cluster, role.Path(), i)
}

// Pod returns the name of the only pod of replica i of role.
func Pod(cluster string, role pgv1alpha1.InstanceRole, i int32) string {
	return StatefulSet(cluster, role, i) + "-0"
}

// PodAddress returns the stable DNS name of replica i of role, served by the
// replica's headless Service.
func PodAddress(cluster, namespace string, role pgv1alpha1.InstanceRole, i int32) string {
	return fmt.Sprintf("%s.%s.%s.svc.cluster.local", Pod(cluster, role, i), StatefulSet(cluster, role, i), namespace)
}

// PVC returns the name of the claim created for pod from claim template claim.
func PVC(claim, pod string) string {
	return claim + "-" + pod
}

// Service returns the name of a user-defined Service.
func Service(cluster, service string) string {
	return cluster + "-" + service
}

// ServerCertSecret is the Secret holding the cluster's TLS server certificate.
func ServerCertSecret(cluster string) string {
	return cluster + "-server-tls"
}

// CASecret is the Secret holding the cluster's certificate authority.
func CASecret(cluster string) string {
	return cluster + "-ca"
}
