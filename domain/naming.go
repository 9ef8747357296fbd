package domain

import (
	"fmt"

	"github.com/gosimple/slug"
)

// Container, network and volume names are derived from the project name
// and environment. They are the idempotency anchor: redeploys find and
// replace containers by these exact names.

// SharedNetworkName is used when a deployment opts out of per-project
// network isolation
const SharedNetworkName = "rudder-shared"

// ResourcePrefix returns the name prefix shared by everything belonging to
// one (project, environment)
func ResourcePrefix(projectName string, env EnvironmentClass) string {
	return fmt.Sprintf("%s-%s", slug.Make(projectName), env)
}

// NetworkName returns the project-scoped network name
func NetworkName(projectName string, env EnvironmentClass) string {
	return ResourcePrefix(projectName, env) + "-net"
}

// DBContainerName returns the database container name
func DBContainerName(projectName string, env EnvironmentClass) string {
	return ResourcePrefix(projectName, env) + "-db"
}

// DBVolumeName returns the named volume holding database data. Volumes are
// never removed implicitly; only the gated volume-delete operation can.
func DBVolumeName(projectName string, env EnvironmentClass) string {
	return ResourcePrefix(projectName, env) + "-pgdata"
}

// CacheContainerName returns the cache container name
func CacheContainerName(projectName string, env EnvironmentClass) string {
	return ResourcePrefix(projectName, env) + "-cache"
}

// AppContainerName returns the application container name for one slot
func AppContainerName(projectName string, env EnvironmentClass, slot SlotName) string {
	return fmt.Sprintf("%s-%s", ResourcePrefix(projectName, env), slot)
}

// OperationTarget is the canonical target string used by protection rules
// and cooldown tracking
func OperationTarget(projectName string, env EnvironmentClass) string {
	return fmt.Sprintf("%s/%s", slug.Make(projectName), env)
}
