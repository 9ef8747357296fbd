package server

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rudder-cd/rudder/domain"
	"github.com/rudder-cd/rudder/orchestrator"
)

var validate = validator.New()

type registerProjectRequest struct {
	Actor   string `json:"actor"    validate:"required"`
	Name    string `json:"name"     validate:"required"`
	Type    string `json:"type"     validate:"required,oneof=nextjs node static"`
	GitRepo string `json:"git_repo" validate:"omitempty"`
}

func (r *registerProjectRequest) Validate() error { return validate.Struct(r) }

// actorRequest covers the mutations that need nothing but an acting
// identity, such as closing the emergency window.
type actorRequest struct {
	Actor string `json:"actor" validate:"required"`
}

func (r *actorRequest) Validate() error { return validate.Struct(r) }

type archiveProjectRequest struct {
	Actor    string `json:"actor"     validate:"required"`
	TicketID string `json:"ticket_id" validate:"omitempty,uuid4"`
}

func (r *archiveProjectRequest) Validate() error { return validate.Struct(r) }

type allocatePortRequest struct {
	Actor string `json:"actor" validate:"required"`
	Role  string `json:"role"  validate:"required,oneof=app db cache"`
}

func (r *allocatePortRequest) Validate() error { return validate.Struct(r) }

type bindDomainRequest struct {
	Actor    string `json:"actor"     validate:"required"`
	Domain   string `json:"domain"    validate:"required,fqdn"`
	TicketID string `json:"ticket_id" validate:"omitempty,uuid4"`
}

func (r *bindDomainRequest) Validate() error { return validate.Struct(r) }

// deployConfigPayload is the JSON shape of a deploy config. Env files are
// a caller-side concern: the CLI merges them before submitting, so the API
// only carries the resolved map.
type deployConfigPayload struct {
	Project       string            `json:"project"     validate:"required"`
	Environment   string            `json:"environment" validate:"required,oneof=staging production preview"`
	Image         string            `json:"image"       validate:"required"`
	Host          string            `json:"host"`
	SharedNetwork bool              `json:"shared_network"`
	AppPort       int               `json:"app_port"    validate:"omitempty,min=1,max=65535"`
	HealthCmd     string            `json:"health_cmd"`
	Database      *databasePayload  `json:"database"`
	Cache         *cachePayload     `json:"cache"`
	Registry      *registryPayload  `json:"registry"`
	Env           map[string]string `json:"env"`
}

type databasePayload struct {
	Image       string `json:"image"`
	Name        string `json:"name"`
	User        string `json:"user"`
	Password    string `json:"password"`
	PasswordEnv string `json:"password_env"`
}

type cachePayload struct {
	Image string `json:"image"`
}

type registryPayload struct {
	Server      string `json:"server"   validate:"required"`
	Username    string `json:"username" validate:"required"`
	Password    string `json:"password"`
	PasswordEnv string `json:"password_env"`
}

func (p *deployConfigPayload) toDeployConfig() *orchestrator.DeployConfig {
	cfg := &orchestrator.DeployConfig{
		Project:       p.Project,
		Environment:   domain.EnvironmentClass(p.Environment),
		Image:         p.Image,
		Host:          p.Host,
		SharedNetwork: p.SharedNetwork,
		AppPort:       p.AppPort,
		HealthCmd:     p.HealthCmd,
		Env:           p.Env,
	}
	if p.Database != nil {
		cfg.Database = &orchestrator.DatabaseService{
			Image:       p.Database.Image,
			Name:        p.Database.Name,
			User:        p.Database.User,
			Password:    p.Database.Password,
			PasswordEnv: p.Database.PasswordEnv,
		}
	}
	if p.Cache != nil {
		cfg.Cache = &orchestrator.CacheService{Image: p.Cache.Image}
	}
	if p.Registry != nil {
		cfg.Registry = &orchestrator.RegistryAuth{
			Server:      p.Registry.Server,
			Username:    p.Registry.Username,
			Password:    p.Registry.Password,
			PasswordEnv: p.Registry.PasswordEnv,
		}
	}
	return cfg
}

type deployRequest struct {
	Actor    string               `json:"actor"     validate:"required"`
	TicketID string               `json:"ticket_id" validate:"omitempty,uuid4"`
	DryRun   bool                 `json:"dry_run"`
	Config   *deployConfigPayload `json:"config"    validate:"required"`
}

func (r *deployRequest) Validate() error { return validate.Struct(r) }

type promoteRequest struct {
	Actor    string `json:"actor"     validate:"required"`
	Slot     string `json:"slot"      validate:"omitempty,oneof=blue green"`
	TicketID string `json:"ticket_id" validate:"omitempty,uuid4"`
}

func (r *promoteRequest) Validate() error { return validate.Struct(r) }

type rollbackRequest struct {
	Actor    string `json:"actor"     validate:"required"`
	TicketID string `json:"ticket_id" validate:"omitempty,uuid4"`
}

func (r *rollbackRequest) Validate() error { return validate.Struct(r) }

type authorizeRequest struct {
	Actor     string `json:"actor"     validate:"required"`
	Operation string `json:"operation" validate:"required"`
	Target    string `json:"target"    validate:"required"`
	Project   string `json:"project"   validate:"omitempty"`
	TicketID  string `json:"ticket_id" validate:"omitempty,uuid4"`
}

func (r *authorizeRequest) Validate() error { return validate.Struct(r) }

type confirmTicketRequest struct {
	Token string `json:"token" validate:"required"`
	Role  string `json:"role"  validate:"required,oneof=user admin"`
}

func (r *confirmTicketRequest) Validate() error { return validate.Struct(r) }

type emergencyOpenRequest struct {
	Actor           string `json:"actor"            validate:"required"`
	Reason          string `json:"reason"           validate:"required"`
	DurationMinutes int    `json:"duration_minutes" validate:"omitempty,min=1"`
	AdminToken      string `json:"admin_token"      validate:"required"`
}

func (r *emergencyOpenRequest) Validate() error { return validate.Struct(r) }

func (r *emergencyOpenRequest) duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

type syncRequest struct {
	Actor    string `json:"actor"     validate:"required"`
	Apply    bool   `json:"apply"`
	TicketID string `json:"ticket_id" validate:"omitempty,uuid4"`
}

func (r *syncRequest) Validate() error { return validate.Struct(r) }

type recordBackupRequest struct {
	Actor    string     `json:"actor"    validate:"required"`
	Project  string     `json:"project"  validate:"required"`
	Location string     `json:"location" validate:"required"`
	Verified *bool      `json:"verified"`
	TakenAt  *time.Time `json:"taken_at"`
}

func (r *recordBackupRequest) Validate() error { return validate.Struct(r) }

// parseTicketID turns an optional request ticket id into the pointer form
// the services take. Validation already guaranteed the format.
func parseTicketID(s string) *uuid.UUID {
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}
