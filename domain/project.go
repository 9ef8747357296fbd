// Package domain provides core domain types and entities for Rudder.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ProjectType represents the kind of application a project ships
type ProjectType string

const (
	ProjectTypeNextJS ProjectType = "nextjs"
	ProjectTypeNode   ProjectType = "node"
	ProjectTypeStatic ProjectType = "static"
)

// String implements the Stringer interface
func (t ProjectType) String() string {
	return string(t)
}

// IsValid checks if the ProjectType is valid
func (t ProjectType) IsValid() bool {
	switch t {
	case ProjectTypeNextJS, ProjectTypeNode, ProjectTypeStatic:
		return true
	default:
		return false
	}
}

// ParseProjectType parses a string into a ProjectType
func ParseProjectType(s string) (ProjectType, error) {
	projectType := ProjectType(s)
	if !projectType.IsValid() {
		return "", fmt.Errorf("invalid project type: %s", s)
	}
	return projectType, nil
}

type Project struct {
	ID        uuid.UUID
	Name      string
	Type      ProjectType
	GitRepo   *string // source repository, informational only
	Status    ProjectStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *Project) GitRepoStr() string {
	if p.GitRepo == nil {
		return ""
	}
	return *p.GitRepo
}

func NewProject(name string, projectType ProjectType, gitRepo *string) Project {
	return Project{
		ID:      uuid.New(),
		Name:    name,
		Type:    projectType,
		GitRepo: gitRepo,
		Status:  ProjectStatusActive,
	}
}
