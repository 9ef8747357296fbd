package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/rudder-cd/rudder/docker"
	"github.com/rudder-cd/rudder/domain"
)

// waitReady polls one container at the configured interval until it is
// running and, when it declares a probe, healthy. A container that exits
// with a non-zero code aborts the wait; anything else that fails to settle
// within the timeout surfaces a TimeoutError.
func (o *Orchestrator) waitReady(ctx context.Context, host, name string, timeout time.Duration) error {
	var fatal error
	backoff := retry.WithMaxDuration(timeout, retry.NewConstant(o.cfg.HealthInterval))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		fatal = nil
		state, err := o.runtime.InspectContainer(ctx, host, name)
		if err != nil {
			fatal = err
			return err
		}
		if !state.Running && state.ExitCode != 0 {
			fatal = fmt.Errorf("container %s exited with code %d during health wait", name, state.ExitCode)
			return fatal
		}
		if !state.Ready() {
			return retry.RetryableError(fmt.Errorf("container %s is %s", name, healthDetail(state)))
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if fatal != nil {
		return fatal
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &domain.TimeoutError{
		Operation: fmt.Sprintf("health wait for container %s", name),
		Timeout:   timeout,
	}
}

func healthDetail(state *docker.ContainerState) string {
	if state.Health != "" {
		return fmt.Sprintf("%s (health %s)", state.Status, state.Health)
	}
	return state.Status
}
