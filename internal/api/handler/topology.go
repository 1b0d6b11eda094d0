package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/servicemap/internal/api/response"
	"github.com/kiranshivaraju/servicemap/internal/topology"
	"github.com/kiranshivaraju/servicemap/pkg/models"
)

// TopologyReader serves the graph read model.
type TopologyReader interface {
	GetTopology(ctx context.Context, tenantID uuid.UUID, filter topology.TopologyFilter) ([]models.ServiceView, error)
	GetService(ctx context.Context, tenantID uuid.UUID, serviceID int64) (*models.ServiceView, error)
}

// NewGetTopologyHandler returns an http.HandlerFunc for GET /api/v1/topology.
//
// Query parameters: provider_ids and services take comma-separated lists,
// environment an exact value, include_empty_deps a boolean.
func NewGetTopologyHandler(svc TopologyReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r)
		if !ok {
			return
		}

		q := r.URL.Query()
		filter := topology.TopologyFilter{
			ProviderIDs:  splitList(q.Get("provider_ids")),
			ServiceNames: splitList(q.Get("services")),
			Environment:  strings.TrimSpace(q.Get("environment")),
		}
		if raw := q.Get("include_empty_deps"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"include_empty_deps must be a boolean", nil)
				return
			}
			filter.IncludeEmptyDeps = v
		}

		views, err := svc.GetTopology(r.Context(), tenantID, filter)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.Collection(w, views, len(views))
	}
}

// NewGetServiceHandler returns an http.HandlerFunc for GET /api/v1/services/{id}.
func NewGetServiceHandler(svc TopologyReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tenantID, ok := requireTenant(w, r)
		if !ok {
			return
		}
		id, ok := pathServiceID(w, r, "id")
		if !ok {
			return
		}

		view, err := svc.GetService(r.Context(), tenantID, id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		response.JSON(w, view)
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
