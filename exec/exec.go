// Package exec runs host commands for the container runtime. Commands are
// argv vectors end to end; user-supplied data is never interpolated into a
// shell string.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/rudder-cd/rudder/domain"
)

// Result carries the outcome of one completed command
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Options tunes a single Run call
type Options struct {
	// Timeout overrides the executor default when non-zero
	Timeout time.Duration
	// Stdin is piped to the process when non-empty. Secrets travel this
	// way, never on the argument vector.
	Stdin string
}

// Executor runs one command on a host and reports its outcome. A non-zero
// exit code is returned as an error carrying stderr; hitting the deadline
// surfaces a TimeoutError.
type Executor interface {
	Run(ctx context.Context, host string, argv []string, opts Options) (*Result, error)
}

// LocalExecutor runs commands on the local host
type LocalExecutor struct {
	defaultTimeout time.Duration
}

func NewLocalExecutor(defaultTimeout time.Duration) *LocalExecutor {
	return &LocalExecutor{defaultTimeout: defaultTimeout}
}

func (e *LocalExecutor) Run(ctx context.Context, host string, argv []string, opts Options) (*Result, error) {
	if len(argv) == 0 {
		return nil, domain.NewValidationError("command cannot be empty")
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = e.defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Debug("Executing command",
		"layer", "exec",
		"command", argv[0],
		"args", argv[1:])

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if opts.Stdin != "" {
		cmd.Stdin = strings.NewReader(opts.Stdin)
	}

	err := cmd.Run()

	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() == context.DeadlineExceeded {
		slog.Error("Command timed out",
			"layer", "exec",
			"command", argv[0],
			"timeout", timeout)
		return result, &domain.TimeoutError{Operation: commandLabel(argv), Timeout: timeout}
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			slog.Error("Command failed",
				"layer", "exec",
				"command", argv[0],
				"exit_code", result.ExitCode,
				"stderr", strings.TrimSpace(result.Stderr))
			return result, fmt.Errorf("%s failed with exit code %d: %s",
				commandLabel(argv), result.ExitCode, strings.TrimSpace(result.Stderr))
		}
		return nil, fmt.Errorf("failed to run %s: %w", commandLabel(argv), err)
	}

	return result, nil
}

// commandLabel is a short human label for a command, the binary plus its
// first argument
func commandLabel(argv []string) string {
	if len(argv) > 1 {
		return argv[0] + " " + argv[1]
	}
	return argv[0]
}

// SSHExecutor runs commands on remote hosts by prefixing the argv vector
// with an ssh invocation. Host aliases resolve through the configured map;
// unknown names pass through as destinations. The empty host and "local"
// run locally.
type SSHExecutor struct {
	sshCommand string
	hosts      map[string]string
	local      *LocalExecutor
}

func NewSSHExecutor(sshCommand string, hosts map[string]string, defaultTimeout time.Duration) *SSHExecutor {
	return &SSHExecutor{
		sshCommand: sshCommand,
		hosts:      hosts,
		local:      NewLocalExecutor(defaultTimeout),
	}
}

func (e *SSHExecutor) Run(ctx context.Context, host string, argv []string, opts Options) (*Result, error) {
	if host == "" || host == "local" {
		return e.local.Run(ctx, "", argv, opts)
	}

	dest, ok := e.hosts[host]
	if !ok {
		dest = host
	}

	sshArgv := make([]string, 0, len(argv)+5)
	sshArgv = append(sshArgv, e.sshCommand, "-o", "BatchMode=yes", dest, "--")
	sshArgv = append(sshArgv, argv...)

	return e.local.Run(ctx, "", sshArgv, opts)
}
