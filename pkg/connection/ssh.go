package connection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

// SSHDialer dials machines with password authentication. Host keys are not
// verified; machines are identified only by the address in the cluster spec.
type SSHDialer struct {
	Timeout time.Duration
}

var _ Dialer = SSHDialer{}

func (d SSHDialer) dial(ctx context.Context, addr MachineAddress) (*ssh.Client, error) {
	cfg := &ssh.ClientConfig{
		User:            addr.User,
		Auth:            []ssh.AuthMethod{ssh.Password(addr.Password)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         d.Timeout,
	}

	type result struct {
		client *ssh.Client
		err    error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := ssh.Dial("tcp", addr.HostPort(), cfg)
		ch <- result{c, err}
	}()

	select {
	case <-ctx.Done():
		go func() {
			if r := <-ch; r.client != nil {
				_ = r.client.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-ch:
		return r.client, r.err
	}
}

func (d SSHDialer) DialShell(ctx context.Context, addr MachineAddress) (Shell, error) {
	c, err := d.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	return &sshShell{client: c}, nil
}

func (d SSHDialer) DialFileTransfer(ctx context.Context, addr MachineAddress) (FileTransfer, error) {
	c, err := d.dial(ctx, addr)
	if err != nil {
		return nil, err
	}
	s, err := sftp.NewClient(c)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to start sftp subsystem: %w", err)
	}
	return &sftpTransfer{conn: c, client: s}, nil
}

type sshShell struct {
	client *ssh.Client
}

func (s *sshShell) Run(ctx context.Context, command string) (string, string, int, error) {
	session, err := s.client.NewSession()
	if err != nil {
		return "", "", -1, fmt.Errorf("failed to open ssh session: %w", err)
	}
	defer func() { _ = session.Close() }()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return "", "", -1, ctx.Err()
	case err = <-done:
	}

	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			return stdout.String(), stderr.String(), exitErr.ExitStatus(), nil
		}
		return stdout.String(), stderr.String(), -1, err
	}
	return stdout.String(), stderr.String(), 0, nil
}

func (s *sshShell) Close() error {
	return s.client.Close()
}

type sftpTransfer struct {
	conn   *ssh.Client
	client *sftp.Client
}

func (t *sftpTransfer) Put(remotePath string, data []byte) error {
	f, err := t.client.Create(remotePath)
	if err != nil {
		return fmt.Errorf("can't put file to remote %s: %w", remotePath, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("can't put file to remote %s: %w", remotePath, err)
	}
	return f.Close()
}

func (t *sftpTransfer) Get(remotePath string) ([]byte, error) {
	f, err := t.client.Open(remotePath)
	if err != nil {
		return nil, fmt.Errorf("can't get file from remote %s: %w", remotePath, err)
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

func (t *sftpTransfer) Close() error {
	return errors.Join(t.client.Close(), t.conn.Close())
}
