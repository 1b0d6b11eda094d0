package topology

import (
	"github.com/google/uuid"
)

// TopologyFilter narrows GetTopology. Zero-valued fields do not filter.
type TopologyFilter struct {
	ProviderIDs []string
	// ServiceNames anchors the view on the first matching service (lowest id)
	// and its inbound dependents. ProviderIDs and Environment are ignored then.
	ServiceNames     []string
	Environment      string
	IncludeEmptyDeps bool
}

// ServiceInput is the user-supplied body of a manual service.
type ServiceInput struct {
	Service     string `json:"service"`
	DisplayName string `json:"display_name"`
	Description string `json:"description"`
	Team        string `json:"team"`
	Email       string `json:"email"`
	Slack       string `json:"slack"`
	Environment string `json:"environment"`
	// Dependencies maps target service name to protocol.
	Dependencies map[string]string `json:"dependencies"`
}

// ApplicationInput is the body of an application create or update.
// A non-nil ID is kept as the new application's id on create.
type ApplicationInput struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Repository  *string   `json:"repository"`
	Services    []int64   `json:"services"`
}

// ImportReport summarizes one ImportProviderTopology run.
type ImportReport struct {
	ProviderID           string   `json:"provider_id"`
	ServicesUpserted     int      `json:"services_upserted"`
	ServicesSkipped      []string `json:"services_skipped"`
	DependenciesCreated  int      `json:"dependencies_created"`
	UnresolvedTargets    []string `json:"unresolved_targets"`
	ApplicationsUpserted int      `json:"applications_upserted"`
	ApplicationsSkipped  []string `json:"applications_skipped"`
}

const defaultProtocol = "http"

func protocolOrDefault(p string) string {
	if p == "" {
		return defaultProtocol
	}
	return p
}
