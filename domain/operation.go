package domain

import "fmt"

// OperationKind names one operation the control plane can be asked to
// perform. The set is closed: the protection rule table covers every kind
// except the emergency bookkeeping pair, which is authorized by its own
// admin path.
type OperationKind string

const (
	// Read-only operations
	OpProjectList      OperationKind = "project-list"
	OpProjectShow      OperationKind = "project-show"
	OpSlotStatus       OperationKind = "slot-status"
	OpHistoryShow      OperationKind = "history-show"
	OpRegistryValidate OperationKind = "validate-registry"

	// Registry mutations
	OpProjectRegister OperationKind = "project-register"
	OpProjectArchive  OperationKind = "project-archive"
	OpProjectDelete   OperationKind = "project-delete"
	OpAllocatePort    OperationKind = "allocate-port"
	OpBindDomain      OperationKind = "bind-domain"
	OpRegistrySync    OperationKind = "sync-registry"
	OpBackupRecord    OperationKind = "backup-record"

	// Deployment and traffic operations
	OpDeploy   OperationKind = "deploy"
	OpPromote  OperationKind = "promote"
	OpRollback OperationKind = "rollback"

	// Container and data operations
	OpContainerStart   OperationKind = "container-start"
	OpContainerStop    OperationKind = "container-stop"
	OpContainerRestart OperationKind = "container-restart"
	OpContainerRemove  OperationKind = "container-remove"
	OpImagePull        OperationKind = "image-pull"
	OpNetworkCreate    OperationKind = "network-create"
	OpVolumeDelete     OperationKind = "volume-delete"
	OpDatabaseDrop     OperationKind = "database-drop"
	OpCacheFlush       OperationKind = "cache-flush"

	// Emergency mode bookkeeping (authorized by its own admin path, not
	// by the rule table)
	OpEmergencyOpen  OperationKind = "emergency-open"
	OpEmergencyClose OperationKind = "emergency-close"
)

// String implements the Stringer interface
func (k OperationKind) String() string {
	return string(k)
}

// DangerLevel classifies how destructive an operation is and therefore
// which gates it must pass before execution
type DangerLevel int

const (
	DangerUnknown DangerLevel = iota
	DangerSafe
	DangerLow
	DangerMedium
	DangerHigh
	DangerCritical
)

func (l DangerLevel) String() string {
	switch l {
	case DangerSafe:
		return "SAFE"
	case DangerLow:
		return "LOW"
	case DangerMedium:
		return "MEDIUM"
	case DangerHigh:
		return "HIGH"
	case DangerCritical:
		return "CRITICAL"
	case DangerUnknown:
		return "UNKNOWN"
	default:
		return "UNKNOWN"
	}
}

func ParseDangerLevel(s string) (DangerLevel, error) {
	switch s {
	case "SAFE":
		return DangerSafe, nil
	case "LOW":
		return DangerLow, nil
	case "MEDIUM":
		return DangerMedium, nil
	case "HIGH":
		return DangerHigh, nil
	case "CRITICAL":
		return DangerCritical, nil
	case "UNKNOWN":
		return DangerUnknown, nil
	default:
		return DangerUnknown, fmt.Errorf("invalid danger level: %q", s)
	}
}

// GateKind names one precondition a protected operation must satisfy
type GateKind string

const (
	GateBackupExists     GateKind = "backup_exists"
	GateUserConfirmation GateKind = "user_confirmation"
	GateCooldown         GateKind = "cooldown"
	GateAdminApproval    GateKind = "admin_approval"
)

// String implements the Stringer interface
func (g GateKind) String() string {
	return string(g)
}

// ConfirmRole is the role whose key must sign a ticket confirmation
type ConfirmRole string

const (
	ConfirmRoleUser  ConfirmRole = "user"
	ConfirmRoleAdmin ConfirmRole = "admin"
)

// String implements the Stringer interface
func (r ConfirmRole) String() string {
	return string(r)
}

func ParseConfirmRole(s string) (ConfirmRole, error) {
	switch ConfirmRole(s) {
	case ConfirmRoleUser:
		return ConfirmRoleUser, nil
	case ConfirmRoleAdmin:
		return ConfirmRoleAdmin, nil
	default:
		return "", fmt.Errorf("invalid confirm role: %q", s)
	}
}
