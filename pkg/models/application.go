package models

import (
	"time"

	"github.com/google/uuid"
)

// Application is a named grouping of services within a tenant.
type Application struct {
	ID          uuid.UUID `db:"id"          json:"id"`
	TenantID    uuid.UUID `db:"tenant_id"   json:"tenant_id"`
	Name        string    `db:"name"        json:"name"`
	Description string    `db:"description" json:"description"`
	Repository  *string   `db:"repository"  json:"repository,omitempty"`
	CreatedAt   time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"  json:"updated_at"`
}

// ServiceApplication links a service to an application it belongs to.
type ServiceApplication struct {
	ServiceID     int64     `db:"service_id"     json:"service_id"`
	ApplicationID uuid.UUID `db:"application_id" json:"application_id"`
}
