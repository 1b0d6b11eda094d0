package models

import (
	"time"

	"github.com/google/uuid"
)

// ManualProviderID is the source_provider_id stamped on user-authored services.
const ManualProviderID = "manual"

// Service is a node in a tenant's topology graph. A service is either
// user-authored (IsManual, editable) or imported from a topology provider
// (read-only). IsEditable always equals IsManual.
type Service struct {
	ID               int64     `db:"id"                 json:"id"`
	TenantID         uuid.UUID `db:"tenant_id"          json:"tenant_id"`
	Service          string    `db:"service"            json:"service"`
	DisplayName      string    `db:"display_name"       json:"display_name"`
	Description      string    `db:"description"        json:"description"`
	Team             string    `db:"team"               json:"team"`
	Email            string    `db:"email"              json:"email"`
	Slack            string    `db:"slack"              json:"slack"`
	Environment      string    `db:"environment"        json:"environment"`
	IsManual         bool      `db:"is_manual"          json:"is_manual"`
	SourceProviderID *string   `db:"source_provider_id" json:"source_provider_id,omitempty"`
	CreatedBy        *string   `db:"created_by"         json:"created_by,omitempty"`
	IsEditable       bool      `db:"is_editable"        json:"is_editable"`
	CreatedAt        time.Time `db:"created_at"         json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"         json:"updated_at"`
}

// Dependency is a directed edge: ServiceID depends on DependsOnServiceID.
// Edges are owned by the source service and are not unique per pair.
type Dependency struct {
	ID                 int64  `db:"id"                    json:"id"`
	ServiceID          int64  `db:"service_id"            json:"service_id"`
	DependsOnServiceID int64  `db:"depends_on_service_id" json:"depends_on_service_id"`
	Protocol           string `db:"protocol"              json:"protocol"`
}
