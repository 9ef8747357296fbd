package exec

import (
	"context"
	"testing"
	"time"

	"github.com/rudder-cd/rudder/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalExecutor_Success(t *testing.T) {
	e := NewLocalExecutor(10 * time.Second)

	result, err := e.Run(context.Background(), "", []string{"echo", "hello"}, Options{})

	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello\n", result.Stdout)
	assert.Empty(t, result.Stderr)
}

func TestLocalExecutor_NonZeroExit(t *testing.T) {
	e := NewLocalExecutor(10 * time.Second)

	result, err := e.Run(context.Background(), "", []string{"false"}, Options{})

	require.Error(t, err)
	assert.Equal(t, 1, result.ExitCode)
	assert.Contains(t, err.Error(), "exit code 1")
}

func TestLocalExecutor_StderrCarriedInError(t *testing.T) {
	e := NewLocalExecutor(10 * time.Second)

	result, err := e.Run(context.Background(), "", []string{"sh", "-c", "echo broken >&2; exit 3"}, Options{})

	require.Error(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, err.Error(), "broken")
	assert.Contains(t, result.Stderr, "broken")
}

func TestLocalExecutor_Timeout(t *testing.T) {
	e := NewLocalExecutor(10 * time.Second)

	_, err := e.Run(context.Background(), "", []string{"sleep", "5"}, Options{Timeout: 50 * time.Millisecond})

	require.Error(t, err)
	var timeoutErr *domain.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
	assert.Equal(t, 50*time.Millisecond, timeoutErr.Timeout)
}

func TestLocalExecutor_Stdin(t *testing.T) {
	e := NewLocalExecutor(10 * time.Second)

	result, err := e.Run(context.Background(), "", []string{"cat"}, Options{Stdin: "secret-value"})

	require.NoError(t, err)
	assert.Equal(t, "secret-value", result.Stdout)
}

func TestLocalExecutor_EmptyCommand(t *testing.T) {
	e := NewLocalExecutor(10 * time.Second)

	_, err := e.Run(context.Background(), "", nil, Options{})

	require.Error(t, err)
	var validationErr *domain.ValidationError
	assert.ErrorAs(t, err, &validationErr)
}

func TestSSHExecutor_LocalPassthrough(t *testing.T) {
	e := NewSSHExecutor("ssh", map[string]string{}, 10*time.Second)

	result, err := e.Run(context.Background(), "local", []string{"echo", "local-run"}, Options{})

	require.NoError(t, err)
	assert.Equal(t, "local-run\n", result.Stdout)
}

func TestSSHExecutor_PrefixesRemoteCommand(t *testing.T) {
	// Substituting echo for ssh prints the constructed invocation
	e := NewSSHExecutor("echo", map[string]string{"web1": "deploy@10.0.0.5"}, 10*time.Second)

	result, err := e.Run(context.Background(), "web1", []string{"docker", "ps"}, Options{})

	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "-o BatchMode=yes deploy@10.0.0.5 -- docker ps")
}

func TestSSHExecutor_UnknownAliasPassesThrough(t *testing.T) {
	e := NewSSHExecutor("echo", map[string]string{}, 10*time.Second)

	result, err := e.Run(context.Background(), "bare-host", []string{"true"}, Options{})

	require.NoError(t, err)
	assert.Contains(t, result.Stdout, "bare-host -- true")
}
