// Package autofailover talks to the pg_auto_failover monitor of a cluster
// and waits on the node states it reports.
package autofailover

import (
	"context"
	"fmt"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/pgtools"
	"github.com/radondb/postgres-operator/pkg/util/retry"
)

// Monitor issues queries against the monitor through its instance handles.
type Monitor struct {
	conns    connection.Connections
	policies retry.Policies
}

// NewMonitor wraps the open handles of the autofailover group.
func NewMonitor(conns connection.Connections, policies retry.Policies) *Monitor {
	return &Monitor{conns: conns, policies: policies}
}

// PrimaryHost returns the host of the node the monitor considers writable,
// or "" when no monitor answered.
func (m *Monitor) PrimaryHost(ctx context.Context) string {
	if len(m.conns) == 0 {
		return ""
	}
	return strings.TrimSpace(connection.ExecuteOrLog(ctx, m.conns[0], pgtools.MonitorQuery(pgtools.PrimaryHostSQL)))
}

// Switchover asks the monitor to promote a standby.
func (m *Monitor) Switchover(ctx context.Context) {
	logger := log.FromContext(ctx)
	for _, conn := range m.conns {
		logger.Info("Performing switchover", "monitor", conn.Name())
		out := connection.ExecuteOrLog(ctx, conn, pgtools.Switchover())
		if strings.Contains(out, pgtools.SwitchoverFailed) {
			logger.Info("Switchover failed", "monitor", conn.Name(), "output", out)
		}
	}
}

// WaitHealthy waits until the monitor reports exactly one primary and no
// node outside the primary, secondary, single, wait_primary and catchingup
// states. Running out of attempts is logged and ignored.
func (m *Monitor) WaitHealthy(ctx context.Context) error {
	if err := retry.Sleep(ctx, m.policies.ClusterStatusSettle); err != nil {
		return err
	}
	logger := log.FromContext(ctx)
	for _, conn := range m.conns {
		err := m.policies.ClusterStatus.Do(ctx, "wait cluster status", func(ctx context.Context) (bool, error) {
			if out := connection.ExecuteOrLog(ctx, conn, pgtools.MonitorQuery(pgtools.PrimaryCountSQL)); out != "1" {
				logger.V(1).Info("Monitor has no single primary", "output", out)
				return false, nil
			}
			if out := connection.ExecuteOrLog(ctx, conn, pgtools.MonitorQuery(pgtools.UnsettledCountSQL)); out != "0" {
				logger.V(1).Info("Monitor has unsettled nodes", "count", out)
				return false, nil
			}
			return true, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// WaitInitialized waits for every instance to finish initialization, then
// lets service endpoints settle.
func WaitInitialized(ctx context.Context, conns connection.Connections, policies retry.Policies) error {
	for _, conn := range conns {
		err := policies.InitReady.Do(ctx, "wait instance initialized "+conn.Name(), func(ctx context.Context) (bool, error) {
			return connection.ExecuteOrLog(ctx, conn, pgtools.ReadyCheck()) == pgtools.InitFinished, nil
		})
		if err != nil {
			return err
		}
	}
	return retry.Sleep(ctx, policies.InitSettle)
}

// WaitRunning waits for every instance container to accept commands.
func WaitRunning(ctx context.Context, conns connection.Connections, policies retry.Policies) error {
	for _, conn := range conns {
		err := policies.InstanceReady.Do(ctx, "wait instance running "+conn.Name(), func(ctx context.Context) (bool, error) {
			return connection.ExecuteOrLog(ctx, conn, pgtools.InstanceCheck()) == pgtools.InstanceRunning, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// IsPrimary reports whether conn accepts writes.
func IsPrimary(ctx context.Context, conn connection.Connection) bool {
	return connection.ExecuteOrLog(ctx, conn, pgtools.ReadOnlyCheck()) == "off"
}

// Primary returns the first handle in conns that accepts writes. Under a
// WarnAndContinue policy a missing primary yields a nil connection and no
// error.
func Primary(ctx context.Context, conns connection.Connections, policy retry.Policy) (connection.Connection, error) {
	var primary connection.Connection
	err := policy.Do(ctx, "find primary", func(ctx context.Context) (bool, error) {
		for _, conn := range conns {
			if IsPrimary(ctx, conn) {
				primary = conn
				return true, nil
			}
		}
		return false, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to find primary instance: %w", err)
	}
	return primary, nil
}
