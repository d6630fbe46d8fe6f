package connection

import (
	"context"
	"errors"
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
	"sync"

	"sigs.k8s.io/controller-runtime/pkg/log"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/util/retry"
)

// MachineAddress is a parsed "user:password:host:port" machine address.
// The password may itself contain colons.
type MachineAddress struct {
	User     string
	Password string
	Host     string
	Port     int
}

// ParseMachineAddress parses a machine address string.
func ParseMachineAddress(s string) (MachineAddress, error) {
	fields := strings.Split(s, ":")
	if len(fields) < 4 {
		return MachineAddress{}, fmt.Errorf("machine address must have the form user:password:host:port")
	}
	n := len(fields)
	port, err := strconv.Atoi(fields[n-1])
	if err != nil || port <= 0 || port > 65535 {
		return MachineAddress{}, fmt.Errorf("machine address has an invalid port %q", fields[n-1])
	}
	if fields[0] == "" || fields[n-2] == "" {
		return MachineAddress{}, fmt.Errorf("machine address must name a user and a host")
	}
	return MachineAddress{
		User:     fields[0],
		Password: strings.Join(fields[1:n-2], ":"),
		Host:     fields[n-2],
		Port:     port,
	}, nil
}

// HostPort returns host:port for dialing.
func (a MachineAddress) HostPort() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

// String omits the password.
func (a MachineAddress) String() string {
	return a.User + "@" + a.HostPort()
}

// Shell runs commands on a machine.
type Shell interface {
	Run(ctx context.Context, command string) (stdout, stderr string, exitCode int, err error)
	Close() error
}

// FileTransfer copies whole files to and from a machine.
type FileTransfer interface {
	Put(remotePath string, data []byte) error
	Get(remotePath string) ([]byte, error)
	Close() error
}

// Dialer opens the sessions of a machine.
type Dialer interface {
	DialShell(ctx context.Context, addr MachineAddress) (Shell, error)
	DialFileTransfer(ctx context.Context, addr MachineAddress) (FileTransfer, error)
}

// MachineLayout is the directory layout used on machines.
type MachineLayout struct {
	AutoFailoverDataPath string
	PostgreSQLDataPath   string
}

// DefaultMachineLayout returns the layout used when no flag overrides it.
func DefaultMachineLayout() MachineLayout {
	return MachineLayout{
		AutoFailoverDataPath: "/data/autofailover",
		PostgreSQLDataPath:   "/data/postgresql",
	}
}

// DataPath is the root directory of a role's instance on a machine.
func (l MachineLayout) DataPath(role pgv1alpha1.InstanceRole) string {
	if role == pgv1alpha1.RoleAutoFailover {
		return l.AutoFailoverDataPath
	}
	return l.PostgreSQLDataPath
}

// ComposeDir holds the docker-compose files of a role.
func (l MachineLayout) ComposeDir(role pgv1alpha1.InstanceRole) string {
	return path.Join(l.DataPath(role), "docker-compose")
}

// PGData is the host directory mounted as the database data directory.
func (l MachineLayout) PGData(role pgv1alpha1.InstanceRole) string {
	return path.Join(l.DataPath(role), "pgdata")
}

// MachineTarget is an instance running in docker-compose on an SSH machine.
// It owns its shell and file transfer sessions.
type MachineTarget struct {
	addr  MachineAddress
	role  pgv1alpha1.InstanceRole
	shell Shell
	files FileTransfer

	closeOnce sync.Once
	closeErr  error
}

var _ Connection = (*MachineTarget)(nil)

func (m *MachineTarget) Role() pgv1alpha1.InstanceRole { return m.role }
func (m *MachineTarget) Name() string                  { return m.addr.Host }
func (m *MachineTarget) Host() string                  { return m.addr.Host }
func (m *MachineTarget) backend() string               { return BackendMachine }

// Address returns the parsed machine address.
func (m *MachineTarget) Address() MachineAddress { return m.addr }

// Files returns the file transfer session.
func (m *MachineTarget) Files() FileTransfer { return m.files }

// Run executes command in the role's container with docker exec. The exit
// status is ignored.
func (m *MachineTarget) Run(ctx context.Context, command string) (string, error) {
	stdout, stderr, _, err := m.shell.Run(ctx, "docker exec "+m.role.ComposeService()+" "+command)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout) + strings.TrimSpace(stderr), nil
}

// Close closes both sessions once.
func (m *MachineTarget) Close() error {
	m.closeOnce.Do(func() {
		var errs []error
		if m.files != nil {
			errs = append(errs, m.files.Close())
		}
		if m.shell != nil {
			errs = append(errs, m.shell.Close())
		}
		if err := errors.Join(errs...); err != nil {
			m.closeErr = fmt.Errorf("failed to close machine %s: %w", m.addr.Host, err)
		}
	})
	return m.closeErr
}

// ConnectMachine opens a machine, retrying the shell session under policy,
// and prepares the compose directories of layout. Every failure is fatal.
func ConnectMachine(
	ctx context.Context,
	dialer Dialer,
	policy retry.Policy,
	layout MachineLayout,
	role pgv1alpha1.InstanceRole,
	address string,
) (*MachineTarget, error) {
	addr, err := ParseMachineAddress(address)
	if err != nil {
		return nil, Fatal(err)
	}
	logger := log.FromContext(ctx).WithValues("machine", addr.String())

	var shell Shell
	err = policy.Do(ctx, "connect "+addr.Host, func(ctx context.Context) (bool, error) {
		s, err := dialer.DialShell(ctx, addr)
		if err != nil {
			return false, err
		}
		shell = s
		return true, nil
	})
	if err != nil {
		return nil, Fatalf("ssh can't connect to machine %s: %w", addr, err)
	}

	files, err := dialer.DialFileTransfer(ctx, addr)
	if err != nil {
		_ = shell.Close()
		return nil, Fatalf("sftp can't connect to machine %s: %w", addr, err)
	}

	m := &MachineTarget{addr: addr, role: role, shell: shell, files: files}
	for _, dir := range []string{
		layout.ComposeDir(pgv1alpha1.RoleAutoFailover),
		layout.ComposeDir(pgv1alpha1.RoleReadWrite),
	} {
		if _, err := RunHost(ctx, m, "mkdir -p "+dir, Raise); err != nil {
			_ = m.Close()
			return nil, err
		}
	}
	logger.V(1).Info("Connected to machine", "role", role)
	return m, nil
}
