package models

import "github.com/google/uuid"

// TopologySnapshot is the full topology reported by an external discovery
// provider. Dependencies and application members reference services by name.
type TopologySnapshot struct {
	Services     []SnapshotService     `json:"services"`
	Applications []SnapshotApplication `json:"applications"`
}

type SnapshotService struct {
	Service      string               `json:"service"`
	DisplayName  string               `json:"display_name"`
	Description  string               `json:"description"`
	Team         string               `json:"team"`
	Email        string               `json:"email"`
	Slack        string               `json:"slack"`
	Environment  string               `json:"environment"`
	Dependencies []SnapshotDependency `json:"dependencies"`
}

type SnapshotDependency struct {
	Target   string `json:"target"`
	Protocol string `json:"protocol"`
}

// SnapshotApplication carries the provider's own application id, which is
// kept as the application's id on import.
type SnapshotApplication struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Repository  *string   `json:"repository"`
	Services    []string  `json:"services"`
}
