// Package protection gates dangerous operations behind confirmation,
// backup, cooldown and approval requirements, graded by a per-operation
// danger level.
package protection

import (
	"strings"

	"github.com/rudder-cd/rudder/domain"
)

// ruleSpec is the static classification of one operation kind. The gates an
// operation must pass derive from its effective level; the message explains
// the risk when the operation is gated or denied.
type ruleSpec struct {
	Level           domain.DangerLevel
	ProductionLevel domain.DangerLevel // zero means no escalation
	Message         string
}

var rules = map[domain.OperationKind]ruleSpec{
	// Read-only operations are always allowed
	domain.OpProjectList:      {Level: domain.DangerSafe},
	domain.OpProjectShow:      {Level: domain.DangerSafe},
	domain.OpSlotStatus:       {Level: domain.DangerSafe},
	domain.OpHistoryShow:      {Level: domain.DangerSafe},
	domain.OpRegistryValidate: {Level: domain.DangerSafe},

	domain.OpProjectRegister: {Level: domain.DangerLow},
	domain.OpAllocatePort:    {Level: domain.DangerLow},
	domain.OpBackupRecord:    {Level: domain.DangerLow},
	domain.OpImagePull:       {Level: domain.DangerLow},
	domain.OpNetworkCreate:   {Level: domain.DangerLow},
	domain.OpContainerStart:  {Level: domain.DangerLow},

	domain.OpBindDomain: {
		Level:           domain.DangerLow,
		ProductionLevel: domain.DangerMedium,
		Message:         "rebinding a production domain changes where live traffic can be routed",
	},
	domain.OpDeploy: {
		Level:           domain.DangerLow,
		ProductionLevel: domain.DangerMedium,
		Message:         "deploying to production stages a new release next to the live one",
	},
	domain.OpPromote: {
		Level:           domain.DangerLow,
		ProductionLevel: domain.DangerMedium,
		Message:         "promoting switches live production traffic to the new release",
	},
	domain.OpRollback: {
		Level:           domain.DangerLow,
		ProductionLevel: domain.DangerMedium,
		Message:         "rolling back switches live production traffic to the previous release",
	},

	domain.OpProjectArchive: {
		Level:   domain.DangerMedium,
		Message: "archiving a project stops it from being deployable",
	},
	domain.OpRegistrySync: {
		Level:   domain.DangerMedium,
		Message: "applying a sync starts and stops containers to match the registry",
	},
	domain.OpContainerStop: {
		Level:           domain.DangerMedium,
		ProductionLevel: domain.DangerHigh,
		Message:         "stopping a container interrupts whatever it is serving",
	},
	domain.OpContainerRestart: {
		Level:           domain.DangerMedium,
		ProductionLevel: domain.DangerHigh,
		Message:         "restarting a container drops its in-flight work",
	},
	domain.OpContainerRemove: {
		Level:           domain.DangerMedium,
		ProductionLevel: domain.DangerHigh,
		Message:         "removing a container discards its writable layer",
	},
	domain.OpCacheFlush: {
		Level:           domain.DangerMedium,
		ProductionLevel: domain.DangerHigh,
		Message:         "flushing the cache sends all traffic to the database until it refills",
	},

	domain.OpProjectDelete: {
		Level:           domain.DangerHigh,
		ProductionLevel: domain.DangerCritical,
		Message:         "deleting a project releases its ports and domains and cannot be undone",
	},
	domain.OpVolumeDelete: {
		Level:           domain.DangerHigh,
		ProductionLevel: domain.DangerCritical,
		Message:         "deleting a volume destroys its data permanently",
	},

	domain.OpDatabaseDrop: {
		Level:   domain.DangerCritical,
		Message: "dropping a database destroys all of its data permanently",
	},
}

// Classify returns the base danger level of an operation kind. Unknown
// kinds are an error: the rule table is closed and nothing executes
// unclassified.
func Classify(op domain.OperationKind) (domain.DangerLevel, error) {
	rule, ok := rules[op]
	if !ok {
		return domain.DangerUnknown, domain.NewValidationError("operation %q is not classified", string(op))
	}
	return rule.Level, nil
}

// EffectiveLevel applies the per-rule production escalation. Escalation
// never de-escalates: a rule whose production level is below its base level
// keeps the base level.
func EffectiveLevel(op domain.OperationKind, target string) (domain.DangerLevel, error) {
	rule, ok := rules[op]
	if !ok {
		return domain.DangerUnknown, domain.NewValidationError("operation %q is not classified", string(op))
	}
	level := rule.Level
	if IsProductionTarget(target) && rule.ProductionLevel > level {
		level = rule.ProductionLevel
	}
	return level, nil
}

// RuleFor returns the effective rule for an operation against a target:
// the escalated level, the gates that level requires, and the rule's risk
// message.
func RuleFor(op domain.OperationKind, target string) (domain.ProtectionRule, error) {
	rule, ok := rules[op]
	if !ok {
		return domain.ProtectionRule{}, domain.NewValidationError("operation %q is not classified", string(op))
	}
	level, err := EffectiveLevel(op, target)
	if err != nil {
		return domain.ProtectionRule{}, err
	}
	return domain.ProtectionRule{
		Operation:       op,
		Level:           level,
		ProductionLevel: rule.ProductionLevel,
		Requires:        GatesForLevel(level),
		Message:         rule.Message,
	}, nil
}

// GatesForLevel maps a danger level to the gates it must pass, in
// evaluation order
func GatesForLevel(level domain.DangerLevel) []domain.GateKind {
	switch level {
	case domain.DangerMedium:
		return []domain.GateKind{domain.GateUserConfirmation}
	case domain.DangerHigh:
		return []domain.GateKind{domain.GateBackupExists, domain.GateUserConfirmation, domain.GateCooldown}
	case domain.DangerCritical:
		return []domain.GateKind{domain.GateBackupExists, domain.GateCooldown, domain.GateAdminApproval}
	default:
		return nil
	}
}

// IsProductionTarget reports whether an operation target names a production
// environment, either by its environment segment ("shop/production") or by
// the conventional production name patterns resources carry
// ("shop-production-pgdata", "prod-cache").
func IsProductionTarget(target string) bool {
	t := strings.ToLower(strings.TrimSpace(target))
	return t == "production" ||
		strings.HasSuffix(t, "/production") ||
		strings.Contains(t, "/production/") ||
		strings.HasSuffix(t, "-production") ||
		strings.Contains(t, "-production-") ||
		strings.HasSuffix(t, "-prod") ||
		strings.Contains(t, "-prod-") ||
		strings.HasPrefix(t, "prod-")
}
