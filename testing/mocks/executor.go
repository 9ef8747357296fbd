// Package mocks provides mock implementations for testing.
package mocks

import (
	"context"

	"github.com/rudder-cd/rudder/exec"
)

// ExecutorCall records one invocation of the mock executor
type ExecutorCall struct {
	Host string
	Argv []string
	Opts exec.Options
}

// MockExecutor implements exec.Executor for testing. Every call is recorded
// and the response comes from RunFunc.
type MockExecutor struct {
	RunFunc func(ctx context.Context, host string, argv []string, opts exec.Options) (*exec.Result, error)
	Calls   []ExecutorCall
}

func (m *MockExecutor) Run(ctx context.Context, host string, argv []string, opts exec.Options) (*exec.Result, error) {
	m.Calls = append(m.Calls, ExecutorCall{Host: host, Argv: argv, Opts: opts})
	if m.RunFunc != nil {
		return m.RunFunc(ctx, host, argv, opts)
	}
	return &exec.Result{}, nil
}
