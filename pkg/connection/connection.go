package connection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/reconcile"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
	"github.com/radondb/postgres-operator/pkg/monitoring"
)

// Failed is the output returned in place of a command's output when the
// command could not be run under LogAndContinue.
const Failed = "failed"

// Backend names reported in metrics.
const (
	BackendPod     = "pod"
	BackendMachine = "machine"
)

// FaultPolicy selects how a failure to run a command is surfaced.
type FaultPolicy int

const (
	// LogAndContinue logs the failure and returns Failed as output.
	LogAndContinue FaultPolicy = iota
	// Raise returns a fatal error.
	Raise
)

// Connection is a handle to one instance. The only implementations are
// *PodTarget and *MachineTarget.
type Connection interface {
	// Role is the instance group the instance belongs to.
	Role() pgv1alpha1.InstanceRole
	// Name identifies the instance in logs: the pod name or the machine host.
	Name() string
	// Host is the address other instances and the coordinator know it by.
	Host() string
	// Run executes command inside the instance's database container and
	// returns stdout and stderr concatenated.
	Run(ctx context.Context, command string) (string, error)
	// Close releases every session owned by the handle. It is safe to call
	// more than once.
	Close() error

	backend() string
}

// Fatal marks err as permanent. The reconciler stops without requeueing.
func Fatal(err error) error {
	return reconcile.TerminalError(err)
}

// Fatalf is Fatal with fmt.Errorf formatting.
func Fatalf(format string, args ...any) error {
	return Fatal(fmt.Errorf(format, args...))
}

// IsFatal reports whether err is permanent.
func IsFatal(err error) bool {
	return errors.Is(err, reconcile.TerminalError(nil))
}

// Execute runs command on conn. Success or failure of the command itself is
// judged by the caller from the output text; only failing to run the command
// at all is handled here according to policy.
func Execute(ctx context.Context, conn Connection, command string, policy FaultPolicy) (string, error) {
	logger := log.FromContext(ctx).WithValues("instance", conn.Name(), "role", conn.Role())

	start := time.Now()
	out, err := conn.Run(ctx, command)
	monitoring.RecordRemoteCommand(conn.backend(), err == nil, time.Since(start))

	if err != nil {
		if policy == Raise {
			return "", Fatalf("instance %s failed to execute command: %w", conn.Name(), err)
		}
		logger.Error(err, "Failed to execute command", "command", command)
		return Failed, nil
	}
	logger.V(1).Info("Executed command", "command", command, "output", out)
	return out, nil
}

// ExecuteOrLog is Execute with LogAndContinue, for callers that only inspect
// the output. A failure is logged and yields Failed.
func ExecuteOrLog(ctx context.Context, conn Connection, command string) string {
	out, _ := Execute(ctx, conn, command, LogAndContinue)
	return out
}

// RunHost runs command directly on a machine, outside any container. Failing
// to reach the machine is fatal. A non-zero exit status is an error only
// under Raise, and that error is transient.
func RunHost(ctx context.Context, m *MachineTarget, command string, policy FaultPolicy) (string, error) {
	start := time.Now()
	stdout, stderr, code, err := m.shell.Run(ctx, command)
	monitoring.RecordRemoteCommand(BackendMachine, err == nil && code == 0, time.Since(start))

	if err != nil {
		return "", Fatalf("machine %s failed to run %q: %w", m.addr.Host, command, err)
	}
	if code != 0 && policy == Raise {
		return "", fmt.Errorf("machine %s: %q exited with status %d: %s", m.addr.Host, command, code, stderr)
	}
	log.FromContext(ctx).V(1).Info("Ran host command", "machine", m.addr.Host, "command", command, "exitCode", code)
	return strings.TrimSpace(stdout) + stderr, nil
}

// Connections is an ordered set of handles opened for one operation.
type Connections []Connection

// Close releases every handle and returns the joined errors.
func (c Connections) Close() error {
	var errs []error
	for _, conn := range c {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CloseAll closes conns and logs a failure to release them.
func CloseAll(ctx context.Context, conns Connections) {
	if err := conns.Close(); err != nil {
		log.FromContext(ctx).Error(err, "Failed to close connections")
	}
}
