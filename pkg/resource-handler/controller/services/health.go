package services

import (
	"context"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/pgtools"
)

// probeTimeouts are the pg_isready timeouts, in seconds, tried in turn
// before a virtual IP is declared unreachable.
var probeTimeouts = []int{1, 3, 6}

// CorrectKeepalived repairs the machine-mode services. A stopped keepalived
// on any read-write machine causes the services to be recreated. Otherwise
// missing virtual IP bindings are restored on every real server, and
// keepalived is restarted when the monitor can't reach a virtual IP.
func (m *Manager) CorrectKeepalived(ctx context.Context, cluster *pgv1alpha1.PostgreSQLCluster) error {
	if !cluster.Spec.MachineMode() {
		return nil
	}
	cfg, _, err := BuildKeepalivedConfig(cluster)
	if err != nil {
		return err
	}
	vips := cfg.VIPs()
	if len(vips) == 0 {
		return nil
	}
	logger := log.FromContext(ctx)

	rw, err := m.Connector.Group(ctx, cluster, pgv1alpha1.RoleReadWrite)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, rw)

	for _, machine := range machinesOf(rw) {
		status, err := connection.RunHost(ctx, machine, keepalivedStatus, connection.LogAndContinue)
		if err != nil {
			return err
		}
		if !strings.Contains(status, pgtools.KeepalivedRunning) {
			logger.Info("Keepalived is not running, recreating services", "machine", machine.Host())
			return m.Refresh(ctx, cluster)
		}
	}

	ro, err := m.Connector.Group(ctx, cluster, pgv1alpha1.RoleReadOnly)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, ro)

	for _, machine := range append(machinesOf(rw), machinesOf(ro)...) {
		addrs, err := connection.RunHost(ctx, machine, ShowAddresses(), connection.LogAndContinue)
		if err != nil {
			return err
		}
		missing := missingVIPs(addrs, vips)
		if len(missing) == 0 {
			continue
		}
		logger.Info("Restoring virtual IPs", "machine", machine.Host(), "vips", missing)
		if _, err := connection.RunHost(ctx, machine, SetNet(missing), connection.Raise); err != nil {
			return err
		}
	}

	monitor, err := m.Connector.Group(ctx, cluster, pgv1alpha1.RoleAutoFailover)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, monitor)
	if len(monitor) == 0 {
		return nil
	}

	for _, vip := range vips {
		if reachable(ctx, monitor[0], vip, cfg.Port) {
			continue
		}
		logger.Info("Virtual IP is unreachable, restarting keepalived", "vip", vip)
		var restartErr error
		for _, machine := range machinesOf(rw) {
			if _, err := connection.RunHost(ctx, machine, keepalivedStart, connection.LogAndContinue); err != nil {
				restartErr = err
				break
			}
		}
		return restartErr
	}
	return nil
}

func missingVIPs(addrs string, vips []string) []string {
	var missing []string
	for _, vip := range vips {
		if !strings.Contains(addrs, " "+vip+"/") {
			missing = append(missing, vip)
		}
	}
	return missing
}

func reachable(ctx context.Context, conn connection.Connection, vip string, port int) bool {
	for _, timeout := range probeTimeouts {
		out := connection.ExecuteOrLog(ctx, conn, pgtools.IsReady(vip, port, timeout))
		if strings.Contains(out, pgtools.AcceptingConnections) {
			return true
		}
	}
	return false
}
