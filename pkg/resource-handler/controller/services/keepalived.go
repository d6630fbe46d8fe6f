package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"text/template"

	"sigs.k8s.io/controller-runtime/pkg/log"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/connection"
	"github.com/radondb/postgres-operator/pkg/pgtools"
)

const (
	// KeepalivedConf is where the agent reads its configuration.
	KeepalivedConf = "/etc/keepalived/keepalived.conf"
	// Interface carries the virtual IPs.
	Interface = "eth0"

	keepalivedStart  = "systemctl restart keepalived.service"
	keepalivedStop   = "systemctl stop keepalived.service"
	keepalivedStatus = "systemctl status keepalived.service"
)

// VirtualServer balances one virtual IP over a set of instances.
type VirtualServer struct {
	VIP         string
	RealServers []string
	// Primary restricts the real servers to the writable instance.
	Primary bool
}

// KeepalivedConfig is the rendered input of the keepalived template.
type KeepalivedConfig struct {
	RouterID       int
	Interface      string
	Port           int
	VirtualServers []VirtualServer
}

// VIPs returns every announced virtual IP.
func (k KeepalivedConfig) VIPs() []string {
	vips := make([]string, 0, len(k.VirtualServers))
	for _, vs := range k.VirtualServers {
		vips = append(vips, vs.VIP)
	}
	return vips
}

var keepalivedTemplate = template.Must(template.New("keepalived").Parse(`global_defs {
    router_id postgres_{{ .RouterID }}
}

vrrp_instance VI_postgres_{{ .RouterID }} {
    state BACKUP
    nopreempt
    interface {{ .Interface }}
    virtual_router_id {{ .RouterID }}
    priority 100
    advert_int 1
    virtual_ipaddress {
{{- range .VirtualServers }}
        {{ .VIP }}
{{- end }}
    }
}
{{ range $vs := .VirtualServers }}
virtual_server {{ $vs.VIP }} {{ $.Port }} {
    delay_loop 3
    lb_algo rr
    lb_kind DR
    protocol TCP
{{- range $vs.RealServers }}

    real_server {{ . }} {{ $.Port }} {
        weight 1
{{- if $vs.Primary }}
        MISC_CHECK {
            misc_path "/bin/sh -c 'docker exec postgresql psql -h {{ . }} -p {{ $.Port }} -U postgres -tAc \"show transaction_read_only\" | grep -q off'"
            misc_timeout 5
        }
{{- else }}
        TCP_CHECK {
            connect_port {{ $.Port }}
            connect_timeout 3
        }
{{- end }}
    }
{{- end }}
}
{{ end }}`))

// BuildKeepalivedConfig maps the declared services of a machine cluster to
// virtual servers. Services without a virtual IP are skipped. Selectors that
// keepalived cannot serve are reported through invalid.
func BuildKeepalivedConfig(cluster *pgv1alpha1.PostgreSQLCluster) (cfg KeepalivedConfig, invalid []string, err error) {
	rw, err := machineHosts(cluster.Spec.Machines(pgv1alpha1.RoleReadWrite))
	if err != nil {
		return KeepalivedConfig{}, nil, err
	}
	ro, err := machineHosts(cluster.Spec.Machines(pgv1alpha1.RoleReadOnly))
	if err != nil {
		return KeepalivedConfig{}, nil, err
	}

	cfg = KeepalivedConfig{
		RouterID:  routerID(cluster.Namespace + "/" + cluster.Name),
		Interface: Interface,
		Port:      pgtools.Port(cluster.Spec.PostgreSQL.Configs),
	}
	for _, svc := range cluster.Spec.Services {
		if svc.VirtualIP == "" {
			continue
		}
		vs := VirtualServer{VIP: svc.VirtualIP}
		switch svc.Selector {
		case pgv1alpha1.ServiceSelectorPrimary:
			vs.RealServers = rw
			vs.Primary = true
		case pgv1alpha1.ServiceSelectorReadOnly:
			vs.RealServers = ro
		case pgv1alpha1.ServiceSelectorStandbyReadOnly:
			vs.RealServers = append(append([]string{}, rw...), ro...)
		default:
			invalid = append(invalid, svc.Name)
			continue
		}
		cfg.VirtualServers = append(cfg.VirtualServers, vs)
	}
	return cfg, invalid, nil
}

// Render writes the keepalived configuration file.
func (k KeepalivedConfig) Render() ([]byte, error) {
	var buf bytes.Buffer
	if err := keepalivedTemplate.Execute(&buf, k); err != nil {
		return nil, fmt.Errorf("failed to render keepalived config: %w", err)
	}
	return buf.Bytes(), nil
}

// SetNet binds the virtual IPs on the loopback device of a real server and
// suppresses ARP replies for them, as LVS direct routing requires.
func SetNet(vips []string) string {
	cmds := []string{
		"sysctl -w net.ipv4.conf.lo.arp_ignore=1",
		"sysctl -w net.ipv4.conf.lo.arp_announce=2",
		"sysctl -w net.ipv4.conf.all.arp_ignore=1",
		"sysctl -w net.ipv4.conf.all.arp_announce=2",
	}
	for _, vip := range vips {
		cmds = append(cmds, fmt.Sprintf(
			"(ip addr show dev lo | grep -q ' %[1]s/32' || ip addr add %[1]s/32 dev lo)", vip))
	}
	return strings.Join(cmds, "; ")
}

// ShowAddresses lists the addresses of every interface.
func ShowAddresses() string { return "ip addr show" }

func routerID(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32()%254) + 1
}

func machineHosts(addresses []string) ([]string, error) {
	hosts := make([]string, 0, len(addresses))
	for _, a := range addresses {
		addr, err := connection.ParseMachineAddress(a)
		if err != nil {
			return nil, connection.Fatal(err)
		}
		hosts = append(hosts, addr.Host)
	}
	return hosts, nil
}

func machinesOf(conns connection.Connections) []*connection.MachineTarget {
	var machines []*connection.MachineTarget
	for _, conn := range conns {
		if m, ok := conn.(*connection.MachineTarget); ok {
			machines = append(machines, m)
		}
	}
	return machines
}

// createKeepalived configures keepalived on the read-write machines and binds
// the virtual IPs on every real server.
func (m *Manager) createKeepalived(ctx context.Context, cluster *pgv1alpha1.PostgreSQLCluster) error {
	logger := log.FromContext(ctx)

	cfg, invalid, err := BuildKeepalivedConfig(cluster)
	if err != nil {
		return err
	}
	for _, svc := range invalid {
		logger.Error(errors.New("unsupported selector"), "Service can't be served by keepalived", "service", svc)
	}
	if len(cfg.VirtualServers) == 0 {
		return nil
	}
	data, err := cfg.Render()
	if err != nil {
		return connection.Fatal(err)
	}

	rw, err := m.Connector.Group(ctx, cluster, pgv1alpha1.RoleReadWrite)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, rw)

	for _, machine := range machinesOf(rw) {
		logger.Info("Configuring keepalived", "machine", machine.Host(), "vips", cfg.VIPs())
		if err := machine.Files().Put(KeepalivedConf, data); err != nil {
			return fmt.Errorf("failed to upload keepalived config to %s: %w", machine.Host(), err)
		}
		if _, err := connection.RunHost(ctx, machine, SetNet(cfg.VIPs()), connection.Raise); err != nil {
			return err
		}
		if _, err := connection.RunHost(ctx, machine, keepalivedStart, connection.Raise); err != nil {
			return err
		}
	}

	ro, err := m.Connector.Group(ctx, cluster, pgv1alpha1.RoleReadOnly)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, ro)

	for _, machine := range machinesOf(ro) {
		if _, err := connection.RunHost(ctx, machine, SetNet(cfg.VIPs()), connection.Raise); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) deleteKeepalived(ctx context.Context, cluster *pgv1alpha1.PostgreSQLCluster) error {
	conns, err := m.Connector.Group(ctx, cluster, pgv1alpha1.RoleReadWrite)
	if err != nil {
		return err
	}
	defer connection.CloseAll(ctx, conns)

	for _, machine := range machinesOf(conns) {
		log.FromContext(ctx).Info("Removing keepalived", "machine", machine.Host())
		if _, err := connection.RunHost(ctx, machine, "rm -f "+KeepalivedConf, connection.LogAndContinue); err != nil {
			return err
		}
		if _, err := connection.RunHost(ctx, machine, keepalivedStop, connection.LogAndContinue); err != nil {
			return err
		}
	}
	return nil
}
