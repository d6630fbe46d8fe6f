// Package connectiontest provides scripted fakes for the pod and machine
// backends of package connection.
package connectiontest

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/radondb/postgres-operator/pkg/connection"
)

// ErrDial is returned by a FakeDialer dial that is configured to fail.
var ErrDial = errors.New("connectiontest: dial refused")

// Response is the scripted result of one command.
type Response struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
}

// Call records one command run against a target.
type Call struct {
	// Target is the pod name or machine host.
	Target  string
	Command string
}

type rule struct {
	target   string
	contains string
	left     int
	resp     Response
}

// Script answers commands with the first matching rule. Rules match on the
// target (empty matches any) and on a substring of the command.
type Script struct {
	mu      sync.Mutex
	rules   []*rule
	calls   []Call
	Default Response
}

// NewScript returns an empty script answering every command with empty output.
func NewScript() *Script {
	return &Script{}
}

// On answers every matching command with resp.
func (s *Script) On(target, contains string, resp Response) *Script {
	return s.OnN(target, contains, -1, resp)
}

// OnN answers the next n matching commands with resp. Later rules take over
// once it is used up.
func (s *Script) OnN(target, contains string, n int, resp Response) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, &rule{target: target, contains: contains, left: n, resp: resp})
	return s
}

// Reply is On with a stdout-only response.
func (s *Script) Reply(target, contains, stdout string) *Script {
	return s.On(target, contains, Response{Stdout: stdout})
}

func (s *Script) answer(target, command string) Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Target: target, Command: command})
	for _, r := range s.rules {
		if r.left == 0 {
			continue
		}
		if r.target != "" && r.target != target {
			continue
		}
		if !strings.Contains(command, r.contains) {
			continue
		}
		if r.left > 0 {
			r.left--
		}
		return r.resp
	}
	return s.Default
}

// Calls returns every recorded call in order.
func (s *Script) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Commands returns the commands run against target, in order. An empty
// target returns every command.
func (s *Script) Commands(target string) []string {
	var out []string
	for _, c := range s.Calls() {
		if target == "" || c.Target == target {
			out = append(out, c.Command)
		}
	}
	return out
}

// Count returns how many recorded commands contain substr.
func (s *Script) Count(substr string) int {
	n := 0
	for _, c := range s.Calls() {
		if strings.Contains(c.Command, substr) {
			n++
		}
	}
	return n
}

// Reset forgets the recorded calls.
func (s *Script) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// PodExecutor is a connection.PodExecutor answering from a Script. The
// recorded command is the bash script, without the "/bin/bash -c" prefix.
type PodExecutor struct {
	*Script
}

var _ connection.PodExecutor = PodExecutor{}

func (p PodExecutor) Exec(_ context.Context, _, pod, _ string, command []string) (string, string, error) {
	cmd := strings.Join(command, " ")
	if len(command) == 3 && command[0] == "/bin/bash" && command[1] == "-c" {
		cmd = command[2]
	}
	r := p.answer(pod, cmd)
	return r.Stdout, r.Stderr, r.Err
}

// Dialer is a connection.Dialer whose shells answer from a Script and whose
// file transfers store files in memory.
type Dialer struct {
	*Script

	mu sync.Mutex
	// FailShellDials makes that many DialShell calls fail first.
	FailShellDials int
	// FailFileTransfer makes every DialFileTransfer call fail.
	FailFileTransfer bool
	// Unreachable lists hosts whose shell dials always fail.
	Unreachable []string
	// CloseErr is returned by every shell Close.
	CloseErr   error
	shellDials int
	files      map[string]map[string][]byte
	open       int
}

var _ connection.Dialer = (*Dialer)(nil)

// NewDialer returns a dialer answering from script.
func NewDialer(script *Script) *Dialer {
	return &Dialer{Script: script, files: map[string]map[string][]byte{}}
}

func (d *Dialer) DialShell(_ context.Context, addr connection.MachineAddress) (connection.Shell, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shellDials++
	if d.FailShellDials > 0 {
		d.FailShellDials--
		return nil, ErrDial
	}
	if slices.Contains(d.Unreachable, addr.Host) {
		return nil, ErrDial
	}
	d.open++
	return &shell{d: d, host: addr.Host}, nil
}

func (d *Dialer) DialFileTransfer(_ context.Context, addr connection.MachineAddress) (connection.FileTransfer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailFileTransfer {
		return nil, ErrDial
	}
	if d.files[addr.Host] == nil {
		d.files[addr.Host] = map[string][]byte{}
	}
	d.open++
	return &files{d: d, host: addr.Host}, nil
}

// ShellDials returns how many shell dials were attempted.
func (d *Dialer) ShellDials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shellDials
}

// OpenSessions returns the number of sessions not yet closed.
func (d *Dialer) OpenSessions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

// File returns a file stored on host.
func (d *Dialer) File(host, path string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.files[host][path]
	return string(b), ok
}

func (d *Dialer) closed() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.open--
}

type shell struct {
	d    *Dialer
	host string
}

func (s *shell) Run(_ context.Context, command string) (string, string, int, error) {
	r := s.d.answer(s.host, command)
	return r.Stdout, r.Stderr, r.ExitCode, r.Err
}

func (s *shell) Close() error {
	s.d.closed()
	return s.d.CloseErr
}

type files struct {
	d    *Dialer
	host string
}

func (f *files) Put(path string, data []byte) error {
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	f.d.files[f.host][path] = append([]byte(nil), data...)
	return nil
}

func (f *files) Get(path string) ([]byte, error) {
	f.d.mu.Lock()
	defer f.d.mu.Unlock()
	b, ok := f.d.files[f.host][path]
	if !ok {
		return nil, errors.New("connectiontest: no such file " + path)
	}
	return b, nil
}

func (f *files) Close() error {
	f.d.closed()
	return nil
}
