// Package docker drives the container engine through its CLI on local or
// remote hosts. All engine state is read back by parsing the CLI's JSON
// output into runtime-owned structs.
package docker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/exec"
)

// Mount attaches a named volume to a container path
type Mount struct {
	Volume string
	Path   string
}

// PortBinding publishes a container port on the host
type PortBinding struct {
	HostPort      int
	ContainerPort int
}

// HealthCheck declares a container health probe
type HealthCheck struct {
	Cmd      string
	Interval time.Duration
	Timeout  time.Duration
	Retries  int
}

// ContainerSpec describes one container to run
type ContainerSpec struct {
	Name          string
	Image         string
	Network       string
	NetworkAlias  string
	Env           map[string]string
	Labels        map[string]string
	Volumes       []Mount
	Ports         []PortBinding
	RestartPolicy string
	Health        *HealthCheck
}

// ContainerState is the typed view of docker inspect output
type ContainerState struct {
	ID           string
	Name         string
	Image        string
	Running      bool
	Status       string
	Health       string // empty when no probe is declared
	ExitCode     int
	RestartCount int
	Labels       map[string]string
	// IPs maps network name to the container's address on it
	IPs map[string]string
}

// Ready reports whether the container counts as healthy for a health-wait:
// running, and if a probe is declared, the probe reports healthy.
func (s *ContainerState) Ready() bool {
	if !s.Running {
		return false
	}
	return s.Health == "" || s.Health == "healthy"
}

// ContainerSummary is one docker ps line
type ContainerSummary struct {
	ID     string
	Name   string
	Image  string
	State  string
	Labels map[string]string
}

// Runtime executes engine commands through an Executor
type Runtime struct {
	executor exec.Executor
	command  string
}

func NewRuntime(executor exec.Executor, command string) *Runtime {
	return &Runtime{
		executor: executor,
		command:  command,
	}
}

// run executes one engine command and returns its result
func (r *Runtime) run(ctx context.Context, host string, args []string, opts exec.Options) (*exec.Result, error) {
	argv := append([]string{r.command}, args...)
	return r.executor.Run(ctx, host, argv, opts)
}

// isNotFound matches the engine's missing-object errors across containers,
// networks and volumes
func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such") || strings.Contains(msg, "not found")
}

// EnsureNetwork creates the named network when absent and returns its
// subnet either way
func (r *Runtime) EnsureNetwork(ctx context.Context, host, name string) (string, error) {
	subnet, err := r.networkSubnet(ctx, host, name)
	if err == nil {
		return subnet, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return "", err
	}

	slog.Debug("Creating network",
		"layer", "docker",
		"operation", "network_create",
		"network", name,
		"host", host)

	if _, err := r.run(ctx, host, []string{"network", "create", name}, exec.Options{}); err != nil {
		return "", fmt.Errorf("failed to create network %s: %w", name, err)
	}
	return r.networkSubnet(ctx, host, name)
}

// networkInspect mirrors the fields of docker network inspect output that
// the runtime reads
type networkInspect struct {
	Name string `json:"Name"`
	IPAM struct {
		Config []struct {
			Subnet string `json:"Subnet"`
		} `json:"Config"`
	} `json:"IPAM"`
}

func (r *Runtime) networkSubnet(ctx context.Context, host, name string) (string, error) {
	result, err := r.run(ctx, host, []string{"network", "inspect", name}, exec.Options{})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("network %s: %w", name, domain.ErrNotFound)
		}
		return "", err
	}

	var networks []networkInspect
	if err := json.Unmarshal([]byte(result.Stdout), &networks); err != nil {
		return "", fmt.Errorf("failed to parse network inspect output: %w", err)
	}
	if len(networks) == 0 {
		return "", fmt.Errorf("network %s: %w", name, domain.ErrNotFound)
	}
	if len(networks[0].IPAM.Config) == 0 {
		return "", fmt.Errorf("network %s has no subnet configured", name)
	}
	return networks[0].IPAM.Config[0].Subnet, nil
}

// EnsureVolume creates the named volume when absent. Volumes are never
// removed by the runtime.
func (r *Runtime) EnsureVolume(ctx context.Context, host, name string) error {
	_, err := r.run(ctx, host, []string{"volume", "inspect", name}, exec.Options{})
	if err == nil {
		return nil
	}
	if !isNotFound(err) {
		return err
	}

	slog.Debug("Creating volume",
		"layer", "docker",
		"operation", "volume_create",
		"volume", name,
		"host", host)

	if _, err := r.run(ctx, host, []string{"volume", "create", name}, exec.Options{}); err != nil {
		return fmt.Errorf("failed to create volume %s: %w", name, err)
	}
	return nil
}

// RunContainer starts a detached container from the spec and returns the
// container ID
func (r *Runtime) RunContainer(ctx context.Context, host string, spec ContainerSpec) (string, error) {
	args := []string{"run", "-d", "--name", spec.Name}

	if spec.Network != "" {
		args = append(args, "--network", spec.Network)
		if spec.NetworkAlias != "" {
			args = append(args, "--network-alias", spec.NetworkAlias)
		}
	}
	if spec.RestartPolicy != "" {
		args = append(args, "--restart", spec.RestartPolicy)
	}
	for _, k := range sortedKeys(spec.Labels) {
		args = append(args, "--label", k+"="+spec.Labels[k])
	}
	for _, k := range sortedKeys(spec.Env) {
		args = append(args, "-e", k+"="+spec.Env[k])
	}
	for _, m := range spec.Volumes {
		args = append(args, "-v", m.Volume+":"+m.Path)
	}
	for _, p := range spec.Ports {
		args = append(args, "-p", fmt.Sprintf("%d:%d", p.HostPort, p.ContainerPort))
	}
	if spec.Health != nil {
		args = append(args,
			"--health-cmd", spec.Health.Cmd,
			"--health-interval", spec.Health.Interval.String(),
			"--health-timeout", spec.Health.Timeout.String(),
			"--health-retries", fmt.Sprintf("%d", spec.Health.Retries))
	}
	args = append(args, spec.Image)

	result, err := r.run(ctx, host, args, exec.Options{})
	if err != nil {
		slog.Error("Container start failed",
			"layer", "docker",
			"operation", "container_run",
			"container", spec.Name,
			"image", spec.Image,
			"error", err)
		return "", fmt.Errorf("failed to run container %s: %w", spec.Name, err)
	}
	return strings.TrimSpace(result.Stdout), nil
}

// StartContainer starts an existing stopped container
func (r *Runtime) StartContainer(ctx context.Context, host, name string) error {
	if _, err := r.run(ctx, host, []string{"start", name}, exec.Options{}); err != nil {
		return fmt.Errorf("failed to start container %s: %w", name, err)
	}
	return nil
}

// StopContainer stops a running container. Missing containers are not an
// error, so redeploys stay idempotent.
func (r *Runtime) StopContainer(ctx context.Context, host, name string) error {
	if _, err := r.run(ctx, host, []string{"stop", name}, exec.Options{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to stop container %s: %w", name, err)
	}
	return nil
}

// RemoveContainer removes a stopped container. Missing containers are not
// an error. The force flag is intentionally not supported here: forced
// removal is a gated operation, not a deploy step.
func (r *Runtime) RemoveContainer(ctx context.Context, host, name string) error {
	if _, err := r.run(ctx, host, []string{"rm", name}, exec.Options{}); err != nil {
		if isNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove container %s: %w", name, err)
	}
	return nil
}

// inspectContainer mirrors the docker inspect fields the runtime reads
type inspectContainer struct {
	ID    string `json:"Id"`
	Name  string `json:"Name"`
	State struct {
		Status   string `json:"Status"`
		Running  bool   `json:"Running"`
		ExitCode int    `json:"ExitCode"`
		Health   *struct {
			Status string `json:"Status"`
		} `json:"Health"`
	} `json:"State"`
	RestartCount int `json:"RestartCount"`
	Config       struct {
		Image  string            `json:"Image"`
		Labels map[string]string `json:"Labels"`
	} `json:"Config"`
	NetworkSettings struct {
		Networks map[string]struct {
			IPAddress string `json:"IPAddress"`
		} `json:"Networks"`
	} `json:"NetworkSettings"`
}

// InspectContainer returns the typed state of one container. A missing
// container reports domain.ErrNotFound.
func (r *Runtime) InspectContainer(ctx context.Context, host, name string) (*ContainerState, error) {
	result, err := r.run(ctx, host, []string{"inspect", name}, exec.Options{})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("container %s: %w", name, domain.ErrNotFound)
		}
		return nil, err
	}

	var inspected []inspectContainer
	if err := json.Unmarshal([]byte(result.Stdout), &inspected); err != nil {
		return nil, fmt.Errorf("failed to parse inspect output for %s: %w", name, err)
	}
	if len(inspected) == 0 {
		return nil, fmt.Errorf("container %s: %w", name, domain.ErrNotFound)
	}

	c := inspected[0]
	state := &ContainerState{
		ID:           c.ID,
		Name:         strings.TrimPrefix(c.Name, "/"),
		Image:        c.Config.Image,
		Running:      c.State.Running,
		Status:       c.State.Status,
		ExitCode:     c.State.ExitCode,
		RestartCount: c.RestartCount,
		Labels:       c.Config.Labels,
		IPs:          make(map[string]string),
	}
	if c.State.Health != nil {
		state.Health = c.State.Health.Status
	}
	for network, settings := range c.NetworkSettings.Networks {
		state.IPs[network] = settings.IPAddress
	}
	return state, nil
}

// ExecInContainer runs a command inside a running container. Stdin, when
// non-empty, is piped through.
func (r *Runtime) ExecInContainer(ctx context.Context, host, name string, argv []string, stdin string) (*exec.Result, error) {
	args := []string{"exec"}
	if stdin != "" {
		args = append(args, "-i")
	}
	args = append(args, name)
	args = append(args, argv...)

	result, err := r.run(ctx, host, args, exec.Options{Stdin: stdin})
	if err != nil {
		return result, fmt.Errorf("failed to exec in container %s: %w", name, err)
	}
	return result, nil
}

// PullImage pulls an image on the host
func (r *Runtime) PullImage(ctx context.Context, host, image string) error {
	slog.Debug("Pulling image",
		"layer", "docker",
		"operation", "image_pull",
		"image", image,
		"host", host)

	if _, err := r.run(ctx, host, []string{"pull", image}, exec.Options{}); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	return nil
}

// RegistryLogin authenticates the host's engine against a registry. The
// password travels on stdin, never on the argument vector.
func (r *Runtime) RegistryLogin(ctx context.Context, host, registry, username, password string) error {
	args := []string{"login", registry, "--username", username, "--password-stdin"}
	if _, err := r.run(ctx, host, args, exec.Options{Stdin: password}); err != nil {
		return fmt.Errorf("failed to log in to registry %s: %w", registry, err)
	}
	return nil
}

// psLine mirrors one line of docker ps --format json output
type psLine struct {
	ID     string `json:"ID"`
	Names  string `json:"Names"`
	Image  string `json:"Image"`
	State  string `json:"State"`
	Labels string `json:"Labels"`
}

// ListContainers returns all containers (running or not) whose name starts
// with the given prefix
func (r *Runtime) ListContainers(ctx context.Context, host, prefix string) ([]ContainerSummary, error) {
	args := []string{"ps", "-a", "--no-trunc", "--filter", "name=^" + prefix, "--format", "{{json .}}"}
	result, err := r.run(ctx, host, args, exec.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var containers []ContainerSummary
	for _, line := range strings.Split(strings.TrimSpace(result.Stdout), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		var parsed psLine
		if err := json.Unmarshal([]byte(line), &parsed); err != nil {
			slog.Error("Failed to parse container list line",
				"layer", "docker",
				"line", line,
				"error", err)
			continue
		}
		containers = append(containers, ContainerSummary{
			ID:     parsed.ID,
			Name:   parsed.Names,
			Image:  parsed.Image,
			State:  parsed.State,
			Labels: parseLabels(parsed.Labels),
		})
	}
	return containers, nil
}

// SignalContainer sends a signal to a running container
func (r *Runtime) SignalContainer(ctx context.Context, host, name, signal string) error {
	if _, err := r.run(ctx, host, []string{"kill", "--signal", signal, name}, exec.Options{}); err != nil {
		return fmt.Errorf("failed to signal container %s: %w", name, err)
	}
	return nil
}

// parseLabels converts docker ps's "k=v,k2=v2" label string to a map
func parseLabels(s string) map[string]string {
	labels := make(map[string]string)
	if s == "" {
		return labels
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		labels[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return labels
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
