package instance

import (
	"context"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/autofailover"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/monitoring"
	"github.com/radondb/postgres-operator/pkg/pgtools"
	"github.com/radondb/postgres-operator/pkg/util/name"
	"github.com/radondb/postgres-operator/pkg/util/retry"
)

// Provisioner creates and removes instances.
type Provisioner struct {
	Client    client.Client
	Scheme    *runtime.Scheme
	Connector *connection.Connector
	Policies  retry.Policies
}

// Create provisions replicas [from, to) of role. conns are the handles of
// the whole group, indexed by replica. When waitPrimary is set, replica 0 of
// the read-write group is waited on and bootstrapped before the next
// replica is created.
func (p *Provisioner) Create(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	role pgv1alpha1.InstanceRole,
	from, to int32,
	conns connection.Connections,
	waitPrimary bool,
) error {
	logger := log.FromContext(ctx).WithValues("role", role)

	image := Image(cluster.Spec.Template(role))
	machineMode := cluster.Spec.MachineMode()
	monitorHost, err := p.monitorHost(cluster)
	if err != nil {
		return err
	}

	for i := from; i < to; i++ {
		if int(i) >= len(conns) {
			return connection.Fatalf("%s replica %d has no connection", role, i)
		}
		conn := conns[i]
		env := Environment(cluster, role, Hosts{Self: conn.Host(), Monitor: monitorHost})

		err := monitoring.InSpan(ctx, "Instance.Create", func(ctx context.Context) error {
			if machineMode {
				m, ok := conn.(*connection.MachineTarget)
				if !ok {
					return connection.Fatalf("%s replica %d is not a machine", role, i)
				}
				return p.launchMachine(ctx, m, image, env)
			}
			return p.launchPod(ctx, cluster, role, i, env)
		})
		if err != nil {
			return err
		}
		logger.Info("Created instance", "instance", conn.Name())

		if waitPrimary && role == pgv1alpha1.RoleReadWrite && i == 0 {
			if err := p.bootstrapPrimary(ctx, cluster, conn, image); err != nil {
				return err
			}
		}
	}
	return nil
}

// monitorHost is the address of the monitor instance.
func (p *Provisioner) monitorHost(cluster *pgv1alpha1.PostgreSQLCluster) (string, error) {
	machines := cluster.Spec.Machines(pgv1alpha1.RoleAutoFailover)
	if len(machines) == 0 {
		return name.PodAddress(cluster.Name, cluster.Namespace, pgv1alpha1.RoleAutoFailover, 0), nil
	}
	addr, err := connection.ParseMachineAddress(machines[0])
	if err != nil {
		return "", connection.Fatal(err)
	}
	return addr.Host, nil
}

func (p *Provisioner) launchPod(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	role pgv1alpha1.InstanceRole,
	i int32,
	env []Variable,
) error {
	svc, err := BuildHeadlessService(cluster, role, i, p.Scheme)
	if err != nil {
		return fmt.Errorf("failed to build headless Service: %w", err)
	}
	if err := p.Client.Create(ctx, svc); err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create headless Service %s: %w", svc.Name, err)
	}

	sts, err := BuildStatefulSet(cluster, role, i, env, p.Scheme)
	if err != nil {
		return err
	}
	if err := p.Client.Create(ctx, sts); err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("failed to create StatefulSet %s: %w", sts.Name, err)
	}
	return nil
}

func (p *Provisioner) launchMachine(ctx context.Context, m *connection.MachineTarget, image string, env []Variable) error {
	if image == "" {
		return connection.Fatalf("%s podspec has no image for container %q", m.Role(), connection.ContainerName)
	}
	layout := p.Connector.Layout
	if err := writeCompose(m, layout, image, env); err != nil {
		return err
	}
	_, err := connection.RunHost(ctx, m, composeCommand(layout, m.Role(), "up -d"), connection.Raise)
	return err
}

// bootstrapPrimary runs once the first read-write instance exists: either
// restore its data or wait for it and create the log tables and users.
func (p *Provisioner) bootstrapPrimary(
	ctx context.Context,
	cluster *pgv1alpha1.PostgreSQLCluster,
	conn connection.Connection,
	image string,
) error {
	if cluster.Spec.RestoreRequested() {
		return p.Restore(ctx, cluster, conn)
	}

	primary := connection.Connections{conn}
	if err := autofailover.WaitInitialized(ctx, primary, p.Policies); err != nil {
		return err
	}

	major, err := pgtools.MajorVersion(image)
	if err != nil {
		log.FromContext(ctx).Info("Cannot read major version from image, using default log table layout",
			"image", image, "error", err.Error())
	}
	CreateLogTables(ctx, conn, major)

	return p.CreateUsers(ctx, primary, cluster.Spec.PostgreSQL.Users)
}
