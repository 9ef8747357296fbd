package domain

import (
	"time"
)

// ServiceName identifies one service of a project deployment
type ServiceName string

const (
	ServiceDB    ServiceName = "db"
	ServiceCache ServiceName = "cache"
	ServiceApp   ServiceName = "app"
)

// String implements the Stringer interface
func (n ServiceName) String() string {
	return string(n)
}

// ServiceStatus is the terminal per-service outcome of one deployment run
type ServiceStatus string

const (
	ServiceRunning ServiceStatus = "running"
	ServiceFailed  ServiceStatus = "failed"
	ServiceSkipped ServiceStatus = "skipped"
)

// String implements the Stringer interface
func (s ServiceStatus) String() string {
	return string(s)
}

// ServiceResult reports what happened to one service during a deployment
type ServiceResult struct {
	Name        ServiceName
	Status      ServiceStatus
	ContainerID *string
	ContainerIP *string
	Error       string
	Duration    time.Duration
}

// DeploymentResult is the transient outcome of one orchestrated deployment.
// It is returned to the caller and logged; only the durable outcome
// (container ids, slot status) is recorded in the registry.
type DeploymentResult struct {
	Success     bool
	Project     string
	Environment EnvironmentClass
	Slot        SlotName
	Services    []ServiceResult
	PublicURL   *string
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Duration is the total wall-clock time of the run
func (r *DeploymentResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// ServiceResultFor returns the result recorded for a service, nil if the
// stage never ran
func (r *DeploymentResult) ServiceResultFor(name ServiceName) *ServiceResult {
	for i := range r.Services {
		if r.Services[i].Name == name {
			return &r.Services[i]
		}
	}
	return nil
}

// PlannedAction is one step of a dry-run deployment plan
type PlannedAction struct {
	Stage       int
	Operation   OperationKind
	Description string
}

// DeploymentPlan is what a dry-run returns instead of executing anything
type DeploymentPlan struct {
	Project     string
	Environment EnvironmentClass
	Actions     []PlannedAction
}
