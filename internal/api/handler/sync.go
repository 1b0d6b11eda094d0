package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/servicemap/internal/api/response"
	"github.com/kiranshivaraju/servicemap/internal/discovery"
	"github.com/kiranshivaraju/servicemap/internal/topology"
	"github.com/kiranshivaraju/servicemap/pkg/models"
)

// TopologyImporter applies a provider snapshot to a tenant's topology.
type TopologyImporter interface {
	ImportProviderTopology(ctx context.Context, tenantID uuid.UUID, providerID string, snap models.TopologySnapshot) (*topology.ImportReport, error)
}

// TenantGetter resolves the tenant record for provider scoping.
type TenantGetter interface {
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)
}

// NewSyncProviderHandler returns an http.HandlerFunc for
// POST /api/v1/providers/{providerID}/sync. It pulls the provider's snapshot
// scoped to the tenant's provider org and imports it in one transaction.
func NewSyncProviderHandler(tenants TenantGetter, client discovery.Client, importer TopologyImporter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r)
		if !ok {
			return
		}
		providerID := chi.URLParam(r, "providerID")
		if providerID == "" || providerID == models.ManualProviderID {
			response.Error(w, http.StatusBadRequest, "INVALID_PROVIDER",
				fmt.Sprintf("provider id %q cannot be synced", providerID), nil)
			return
		}

		tenant, err := tenants.GetTenant(r.Context(), tenantID)
		if err != nil {
			writeError(w, r, fmt.Errorf("get tenant: %w", err))
			return
		}

		snap, err := client.FetchTopology(r.Context(), tenant.ProviderOrgID)
		if err != nil {
			slog.Warn("provider fetch failed", "tenant_id", tenantID, "provider_id", providerID, "error", err)
			writeError(w, r, err)
			return
		}

		report, err := importer.ImportProviderTopology(r.Context(), tenantID, providerID, *snap)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, report)
	}
}
