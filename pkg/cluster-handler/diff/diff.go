// Package diff compares two snapshots of a PostgreSQLCluster spec and reports
// the watched fields that changed, in the order their handlers must run.
package diff

import (
	"k8s.io/apimachinery/pkg/api/equality"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
)

// Kind says how a field changed.
type Kind string

const (
	KindAdd    Kind = "add"
	KindChange Kind = "change"
	KindRemove Kind = "remove"
)

// Field is a watched spec field. Fields are declared in dispatch order.
type Field int

const (
	ReadWriteReplicas Field = iota
	ReadWriteMachines
	ReadOnlyReplicas
	ReadOnlyMachines
	Action
	Services
	AutoFailoverHBAs
	PostgreSQLHBAs
	Users
	Streaming
	AutoFailoverTemplate
	ReadWriteTemplate
	ReadOnlyTemplate
	AutoFailoverConfigs
	PostgreSQLConfigs

	numFields
)

var fieldNames = [numFields]string{
	ReadWriteReplicas:    "postgresql.readwriteinstance.replicas",
	ReadWriteMachines:    "postgresql.readwriteinstance.machines",
	ReadOnlyReplicas:     "postgresql.readonlyinstance.replicas",
	ReadOnlyMachines:     "postgresql.readonlyinstance.machines",
	Action:               "action",
	Services:             "services",
	AutoFailoverHBAs:     "autofailover.hbas",
	PostgreSQLHBAs:       "postgresql.hbas",
	Users:                "postgresql.users",
	Streaming:            "postgresql.readonlyinstance.streaming",
	AutoFailoverTemplate: "autofailover.podspec",
	ReadWriteTemplate:    "postgresql.readwriteinstance.podspec",
	ReadOnlyTemplate:     "postgresql.readonlyinstance.podspec",
	AutoFailoverConfigs:  "autofailover.configs",
	PostgreSQLConfigs:    "postgresql.configs",
}

// String returns the spec path of the field.
func (f Field) String() string {
	if f < 0 || f >= numFields {
		return "unknown"
	}
	return fieldNames[f]
}

// Role returns the instance group the field belongs to. Fields shared by
// both PostgreSQL groups report the read-write group.
func (f Field) Role() pgv1alpha1.InstanceRole {
	switch f {
	case AutoFailoverHBAs, AutoFailoverTemplate, AutoFailoverConfigs:
		return pgv1alpha1.RoleAutoFailover
	case ReadOnlyReplicas, ReadOnlyMachines, ReadOnlyTemplate, Streaming:
		return pgv1alpha1.RoleReadOnly
	default:
		return pgv1alpha1.RoleReadWrite
	}
}

// Change is one changed field.
type Change struct {
	Kind  Kind
	Field Field
}

// Compute returns the changes from old to cur in dispatch order. A nil
// snapshot yields no changes.
func Compute(old, cur *pgv1alpha1.PostgreSQLClusterSpec) []Change {
	if old == nil || cur == nil {
		return nil
	}
	var changes []Change
	for f := Field(0); f < numFields; f++ {
		if kind, changed := compare(f, old, cur); changed {
			changes = append(changes, Change{Kind: kind, Field: f})
		}
	}
	return changes
}

func compare(f Field, old, cur *pgv1alpha1.PostgreSQLClusterSpec) (Kind, bool) {
	switch f {
	case ReadWriteReplicas, ReadOnlyReplicas:
		if old.MachineMode() || cur.MachineMode() {
			return "", false
		}
		role := f.Role()
		return KindChange, old.Replicas(role) != cur.Replicas(role)
	case ReadWriteMachines, ReadOnlyMachines:
		role := f.Role()
		return sliceChange(old.Machines(role), cur.Machines(role))
	case Action:
		return valueChange(old.Action, cur.Action)
	case Services:
		return sliceChange(old.Services, cur.Services)
	case AutoFailoverHBAs:
		return sliceChange(old.AutoFailover.HBAs, cur.AutoFailover.HBAs)
	case PostgreSQLHBAs:
		return sliceChange(old.PostgreSQL.HBAs, cur.PostgreSQL.HBAs)
	case Users:
		o, n := old.PostgreSQL.Users, cur.PostgreSQL.Users
		switch {
		case o == nil && n == nil:
			return "", false
		case o == nil:
			return KindAdd, true
		case n == nil:
			return KindRemove, true
		}
		return KindChange, !equality.Semantic.DeepEqual(o, n)
	case Streaming:
		return valueChange(old.PostgreSQL.ReadOnlyInstance.Streaming, cur.PostgreSQL.ReadOnlyInstance.Streaming)
	case AutoFailoverTemplate, ReadWriteTemplate, ReadOnlyTemplate:
		role := f.Role()
		o, n := old.Template(role), cur.Template(role)
		changed := !equality.Semantic.DeepEqual(o.PodSpec, n.PodSpec) ||
			!equality.Semantic.DeepEqual(o.VolumeClaimTemplates, n.VolumeClaimTemplates)
		return KindChange, changed
	case AutoFailoverConfigs:
		return sliceChange(old.AutoFailover.Configs, cur.AutoFailover.Configs)
	case PostgreSQLConfigs:
		return sliceChange(old.PostgreSQL.Configs, cur.PostgreSQL.Configs)
	}
	return "", false
}

func sliceChange[T any](old, cur []T) (Kind, bool) {
	switch {
	case len(old) == 0 && len(cur) == 0:
		return "", false
	case len(old) == 0:
		return KindAdd, true
	case len(cur) == 0:
		return KindRemove, true
	}
	return KindChange, !equality.Semantic.DeepEqual(old, cur)
}

func valueChange[T comparable](old, cur T) (Kind, bool) {
	var zero T
	switch {
	case old == cur:
		return "", false
	case old == zero:
		return KindAdd, true
	case cur == zero:
		return KindRemove, true
	}
	return KindChange, true
}
