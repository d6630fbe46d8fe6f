package metadata

import (
	"maps"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
)

// Standard Kubernetes label keys following kubernetes.io conventions.
//
// See: https://kubernetes.io/docs/concepts/overview/working-with-objects/common-labels/
const (
	// LabelAppName is the standard label key for the application name.
	LabelAppName = "app.kubernetes.io/name"

	// LabelAppInstance is the standard label key for the unique instance name.
	LabelAppInstance = "app.kubernetes.io/instance"

	// LabelAppPartOf is the standard label key for the name of a higher level
	// application this one is part of.
	LabelAppPartOf = "app.kubernetes.io/part-of"

	// LabelAppManagedBy is the standard label key for the tool managing the
	// resource.
	LabelAppManagedBy = "app.kubernetes.io/managed-by"
)

const (
	// AppNamePostgreSQL is the fixed application name for all cluster resources.
	AppNamePostgreSQL = "postgresql"

	// PartOfRadonDB groups the resources under the RadonDB product.
	PartOfRadonDB = "radondb-postgres"

	// ManagedByOperator identifies the operator managing these resources.
	ManagedByOperator = "postgres-operator"
)

const (
	// LabelNamespace records the namespace of the owning cluster.
	LabelNamespace = "postgres.radondb.io/namespace"

	// LabelNode separates instances from user Services.
	LabelNode = "postgres.radondb.io/node"

	// LabelSubnode identifies the instance group.
	LabelSubnode = "postgres.radondb.io/subnode"

	// LabelRole is the replication role of an instance. It is kept current
	// by the periodic corrector on read-write pods.
	LabelRole = "postgres.radondb.io/role"
)

// Values of LabelNode.
const (
	NodeAutoFailover = "autofailover"
	NodePostgreSQL   = "postgresql"
	NodeUserServices = "user-services"
)

// Values of LabelSubnode.
const (
	SubnodeAutoFailover = "autofailover"
	SubnodeReadWrite    = "readwrite"
	SubnodeReadOnly     = "readonly"
)

// Values of LabelRole.
const (
	RolePrimary = "primary"
	RoleStandby = "standby"
)

// BuildStandardLabels returns the labels carried by every resource of a
// cluster.
func BuildStandardLabels(clusterName, namespace string) map[string]string {
	return map[string]string{
		LabelAppName:      AppNamePostgreSQL,
		LabelAppInstance:  clusterName,
		LabelAppPartOf:    PartOfRadonDB,
		LabelAppManagedBy: ManagedByOperator,
		LabelNamespace:    namespace,
	}
}

// InstanceLabels returns the labels of the instances of role. Read-only
// instances are always standbys; read-write instances get their role label
// from the periodic corrector.
func InstanceLabels(clusterName, namespace string, role pgv1alpha1.InstanceRole) map[string]string {
	labels := BuildStandardLabels(clusterName, namespace)
	switch role {
	case pgv1alpha1.RoleAutoFailover:
		labels[LabelNode] = NodeAutoFailover
		labels[LabelSubnode] = SubnodeAutoFailover
	case pgv1alpha1.RoleReadWrite:
		labels[LabelNode] = NodePostgreSQL
		labels[LabelSubnode] = SubnodeReadWrite
	case pgv1alpha1.RoleReadOnly:
		labels[LabelNode] = NodePostgreSQL
		labels[LabelSubnode] = SubnodeReadOnly
		labels[LabelRole] = RoleStandby
	}
	return labels
}

// UserServiceLabels returns the labels of the user-defined Services.
func UserServiceLabels(clusterName, namespace string) map[string]string {
	labels := BuildStandardLabels(clusterName, namespace)
	labels[LabelNode] = NodeUserServices
	return labels
}

// ServiceSelectorLabels returns the pod selector of a user Service. The
// second result is false for an unknown selector.
func ServiceSelectorLabels(
	clusterName, namespace string,
	selector pgv1alpha1.ServiceSelector,
) (map[string]string, bool) {
	labels := BuildStandardLabels(clusterName, namespace)
	switch selector {
	case pgv1alpha1.ServiceSelectorAutoFailover:
		labels[LabelNode] = NodeAutoFailover
		labels[LabelSubnode] = SubnodeAutoFailover
	case pgv1alpha1.ServiceSelectorPrimary:
		labels[LabelNode] = NodePostgreSQL
		labels[LabelSubnode] = SubnodeReadWrite
		labels[LabelRole] = RolePrimary
	case pgv1alpha1.ServiceSelectorStandby:
		labels[LabelNode] = NodePostgreSQL
		labels[LabelSubnode] = SubnodeReadWrite
		labels[LabelRole] = RoleStandby
	case pgv1alpha1.ServiceSelectorReadOnly:
		labels[LabelNode] = NodePostgreSQL
		labels[LabelSubnode] = SubnodeReadOnly
		labels[LabelRole] = RoleStandby
	case pgv1alpha1.ServiceSelectorStandbyReadOnly:
		labels[LabelNode] = NodePostgreSQL
		labels[LabelRole] = RoleStandby
	default:
		return nil, false
	}
	return labels, true
}

// selectorLabelsAllowList contains the keys that are allowed in StatefulSet
// label selectors. These must be stable identity labels, not mutable metadata.
var selectorLabelsAllowList = map[string]bool{
	LabelAppName:     true,
	LabelAppInstance: true,
	LabelNamespace:   true,
	LabelNode:        true,
	LabelSubnode:     true,
}

// GetSelectorLabels filters the provided labels map to return only those keys
// allowed in resource selectors (Identity Labels).
//
// The role label changes on failover, so it never takes part in a
// StatefulSet selector even though Services select on it.
func GetSelectorLabels(labels map[string]string) map[string]string {
	selectorLabels := make(map[string]string)
	for k, v := range labels {
		if selectorLabelsAllowList[k] {
			selectorLabels[k] = v
		}
	}
	return selectorLabels
}

// MergeLabels merges custom labels with standard labels.
//
// Note that standard labels take precedence over custom labels to prevent users
// from overriding critical operator-managed labels.
func MergeLabels(standardLabels, customLabels map[string]string) map[string]string {
	merged := make(map[string]string)

	// Copy custom labels first (if provided)
	maps.Copy(merged, customLabels)

	// Copy standard labels (overwriting any duplicates from custom)
	maps.Copy(merged, standardLabels)

	return merged
}
