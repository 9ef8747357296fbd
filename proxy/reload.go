package proxy

import (
	"context"
	"fmt"
	"strings"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// Reloader makes the proxy re-read its routing table
type Reloader interface {
	Reload(ctx context.Context) error
}

// DockerReloader triggers proxy reloads by signalling its container
type DockerReloader struct {
	client    *client.Client
	container string
}

func NewDockerReloader(container string) (*DockerReloader, error) {
	container = strings.TrimSpace(container)
	if container == "" {
		return nil, fmt.Errorf("proxy container name required")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}
	return &DockerReloader{client: cli, container: container}, nil
}

func (r *DockerReloader) Reload(ctx context.Context) error {
	if err := r.client.ContainerKill(ctx, r.container, "HUP"); err != nil {
		if errdefs.IsNotFound(err) {
			return fmt.Errorf("proxy container %s not found", r.container)
		}
		return err
	}
	return nil
}

func (r *DockerReloader) Close() error {
	return r.client.Close()
}

// NopReloader is used when no proxy container is configured, such as in
// development mode where routes are only inspected.
type NopReloader struct{}

func (NopReloader) Reload(context.Context) error { return nil }
