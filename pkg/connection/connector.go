package connection

import (
	"context"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/util/name"
	"github.com/radondb/postgres-operator/pkg/util/retry"
)

// Connector opens handles to the instances of a cluster.
type Connector struct {
	Exec   PodExecutor
	Dialer Dialer
	// Connect bounds opening a machine shell.
	Connect retry.Policy
	Layout  MachineLayout
}

// Group opens every instance of role. Machines are connected when the group
// lists machines; pods are addressed otherwise.
func (c *Connector) Group(ctx context.Context, cluster *pgv1alpha1.PostgreSQLCluster, role pgv1alpha1.InstanceRole) (Connections, error) {
	if machines := cluster.Spec.Machines(role); len(machines) > 0 {
		return c.Machines(ctx, role, machines)
	}
	return c.Pods(cluster, role, 0, cluster.Spec.Replicas(role)), nil
}

// Pods returns handles to replicas [from, to) of role. No session is opened.
func (c *Connector) Pods(cluster *pgv1alpha1.PostgreSQLCluster, role pgv1alpha1.InstanceRole, from, to int32) Connections {
	conns := make(Connections, 0, max(to-from, 0))
	for i := from; i < to; i++ {
		conns = append(conns, NewPodTarget(c.Exec, role, cluster.Namespace,
			name.Pod(cluster.Name, role, i),
			name.PodAddress(cluster.Name, cluster.Namespace, role, i)))
	}
	return conns
}

// Machines connects each address in order. On failure the handles opened so
// far are closed.
func (c *Connector) Machines(ctx context.Context, role pgv1alpha1.InstanceRole, addresses []string) (Connections, error) {
	conns := make(Connections, 0, len(addresses))
	for _, addr := range addresses {
		m, err := c.Machine(ctx, role, addr)
		if err != nil {
			_ = conns.Close()
			return nil, err
		}
		conns = append(conns, m)
	}
	return conns, nil
}

// Machine connects a single machine.
func (c *Connector) Machine(ctx context.Context, role pgv1alpha1.InstanceRole, address string) (*MachineTarget, error) {
	return ConnectMachine(ctx, c.Dialer, c.Connect, c.Layout, role, address)
}
