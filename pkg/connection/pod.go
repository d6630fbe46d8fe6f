package connection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"
	utilexec "k8s.io/client-go/util/exec"

	pgv1alpha1 "github.com/radondb/postgres-operator/api/v1alpha1"
)

// ContainerName is the database container of every instance pod.
const ContainerName = "postgresql"

// PodExecutor runs a command in a pod container. A non-zero exit status of
// the command is not an error.
type PodExecutor interface {
	Exec(ctx context.Context, namespace, pod, container string, command []string) (stdout, stderr string, err error)
}

// PodTarget is an instance running as the single pod of a StatefulSet.
type PodTarget struct {
	PodName   string
	Namespace string
	Address   string
	role      pgv1alpha1.InstanceRole
	exec      PodExecutor
}

var _ Connection = (*PodTarget)(nil)

// NewPodTarget returns a handle to pod. address is the pod's stable DNS name.
func NewPodTarget(exec PodExecutor, role pgv1alpha1.InstanceRole, namespace, pod, address string) *PodTarget {
	return &PodTarget{PodName: pod, Namespace: namespace, Address: address, role: role, exec: exec}
}

func (p *PodTarget) Role() pgv1alpha1.InstanceRole { return p.role }
func (p *PodTarget) Name() string                  { return p.PodName }
func (p *PodTarget) Host() string                  { return p.Address }
func (p *PodTarget) Close() error                  { return nil }
func (p *PodTarget) backend() string               { return BackendPod }

// Run executes command through bash in the database container. Line breaks
// are removed from the combined output.
func (p *PodTarget) Run(ctx context.Context, command string) (string, error) {
	stdout, stderr, err := p.exec.Exec(ctx, p.Namespace, p.PodName, ContainerName, []string{"/bin/bash", "-c", command})
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(stdout+stderr, "\n", ""), nil
}

// SPDYExecutor implements PodExecutor with the pods/exec subresource.
type SPDYExecutor struct {
	Config    *rest.Config
	Clientset kubernetes.Interface
}

// NewSPDYExecutor builds an executor from a REST config.
func NewSPDYExecutor(cfg *rest.Config) (*SPDYExecutor, error) {
	cs, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return &SPDYExecutor{Config: cfg, Clientset: cs}, nil
}

func (e *SPDYExecutor) Exec(ctx context.Context, namespace, pod, container string, command []string) (string, string, error) {
	req := e.Clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Container: container,
			Command:   command,
			Stdout:    true,
			Stderr:    true,
		}, scheme.ParameterCodec)

	executor, err := remotecommand.NewSPDYExecutor(e.Config, "POST", req.URL())
	if err != nil {
		return "", "", fmt.Errorf("failed to create executor: %w", err)
	}

	var stdout, stderr bytes.Buffer
	if err := executor.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	}); err != nil {
		var exitErr utilexec.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), nil
		}
		return stdout.String(), stderr.String(), fmt.Errorf("exec in %s/%s: %w", namespace, pod, err)
	}
	return stdout.String(), stderr.String(), nil
}
