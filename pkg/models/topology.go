package models

import "github.com/google/uuid"

// ServiceView is the read shape of a service: its scalar fields, the
// applications it belongs to and its outgoing dependency edges.
type ServiceView struct {
	ID             int64            `json:"id"`
	Service        string           `json:"service"`
	DisplayName    string           `json:"display_name"`
	Description    string           `json:"description"`
	Team           string           `json:"team"`
	Email          string           `json:"email"`
	Slack          string           `json:"slack"`
	Environment    string           `json:"environment"`
	IsManual       bool             `json:"is_manual"`
	CreatedBy      *string          `json:"created_by"`
	IsEditable     bool             `json:"is_editable"`
	ApplicationIDs []uuid.UUID      `json:"application_ids"`
	Dependencies   []DependencyView `json:"dependencies"`
}

// DependencyView is one outgoing edge of a ServiceView.
type DependencyView struct {
	ID                 int64  `json:"id"`
	DependsOnServiceID int64  `json:"depends_on_service_id"`
	Protocol           string `json:"protocol"`
}

// ApplicationView is the read shape of an application with its member service ids.
type ApplicationView struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Repository  *string   `json:"repository"`
	Services    []int64   `json:"services"`
}
