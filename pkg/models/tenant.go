// Package models contains shared data models used across the ServiceMap codebase.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Tenant represents an organization or team. Every other entity belongs to a tenant.
// ProviderOrgID is sent to the topology provider when syncing on the tenant's behalf.
type Tenant struct {
	ID            uuid.UUID `db:"id"              json:"id"`
	Name          string    `db:"name"            json:"name"`
	ProviderOrgID string    `db:"provider_org_id" json:"provider_org_id"`
	CreatedAt     time.Time `db:"created_at"      json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"      json:"updated_at"`
}
