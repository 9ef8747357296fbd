package registry

import (
	"fmt"

	"github.com/rudder-cd/rudder/domain"
)

// PortRange is one contiguous reserved block of ports
type PortRange struct {
	Start int
	End   int
}

// Contains reports whether the port lies inside the block
func (r PortRange) Contains(port int) bool {
	return port >= r.Start && port <= r.End
}

// portRanges reserves a block per (role, environment class). Allocation
// scans the block ascending; a port outside every block is a validation
// issue.
var portRanges = map[domain.PortRole]map[domain.EnvironmentClass]PortRange{
	domain.PortRoleApp: {
		domain.EnvStaging:    {Start: 3000, End: 3499},
		domain.EnvPreview:    {Start: 3500, End: 3999},
		domain.EnvProduction: {Start: 4000, End: 4499},
	},
	domain.PortRoleDB: {
		domain.EnvStaging:    {Start: 5400, End: 5499},
		domain.EnvPreview:    {Start: 5500, End: 5599},
		domain.EnvProduction: {Start: 5600, End: 5699},
	},
	domain.PortRoleCache: {
		domain.EnvStaging:    {Start: 6300, End: 6399},
		domain.EnvPreview:    {Start: 6400, End: 6499},
		domain.EnvProduction: {Start: 6500, End: 6599},
	},
}

// RangeFor returns the reserved block for a role within an environment class
func RangeFor(role domain.PortRole, class domain.EnvironmentClass) (PortRange, error) {
	byClass, ok := portRanges[role]
	if !ok {
		return PortRange{}, fmt.Errorf("no port range reserved for role %s", role)
	}
	r, ok := byClass[class]
	if !ok {
		return PortRange{}, fmt.Errorf("no port range reserved for environment %s", class)
	}
	return r, nil
}
