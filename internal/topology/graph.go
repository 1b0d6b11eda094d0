package topology

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/servicemap/internal/cache"
	"github.com/kiranshivaraju/servicemap/internal/store"
	"github.com/kiranshivaraju/servicemap/pkg/models"
)

// GetTopology returns the tenant's service views selected by filter.
//
// With ServiceNames set the view is anchored on the first matching service
// and holds it plus every service with an edge pointing at it. Otherwise all
// tenant services matching ProviderIDs and Environment are candidates. Unless
// IncludeEmptyDeps is set, services without outgoing edges are dropped.
func (s *Service) GetTopology(ctx context.Context, tenantID uuid.UUID, filter TopologyFilter) ([]models.ServiceView, error) {
	hash := filterHash(filter)
	return cached(ctx, s, tenantID,
		func(version int64) string { return cache.TopologyViewKey(tenantID, version, hash) },
		func() ([]models.ServiceView, error) {
			var views []models.ServiceView
			err := s.read(ctx, "get_topology", func(tx store.Tx) error {
				var err error
				views, err = loadTopology(ctx, tx, tenantID, filter)
				return err
			})
			if err != nil {
				return nil, fmt.Errorf("get topology: %w", err)
			}
			return views, nil
		})
}

func loadTopology(ctx context.Context, tx store.Tx, tenantID uuid.UUID, filter TopologyFilter) ([]models.ServiceView, error) {
	var (
		candidates []*models.Service
		err        error
	)
	if len(filter.ServiceNames) > 0 {
		candidates, err = anchoredCandidates(ctx, tx, tenantID, filter.ServiceNames)
	} else {
		candidates, err = tx.ListServices(ctx, store.ServiceFilter{
			TenantID:    tenantID,
			ProviderIDs: filter.ProviderIDs,
			Environment: filter.Environment,
		})
	}
	if err != nil {
		return nil, err
	}

	views, err := buildServiceViews(ctx, tx, candidates)
	if err != nil {
		return nil, err
	}
	if filter.IncludeEmptyDeps {
		return views, nil
	}

	out := make([]models.ServiceView, 0, len(views))
	for _, v := range views {
		if len(v.Dependencies) > 0 {
			out = append(out, v)
		}
	}
	return out, nil
}

// anchoredCandidates returns the first service matching names followed by
// its distinct inbound dependents in id order.
func anchoredCandidates(ctx context.Context, tx store.Tx, tenantID uuid.UUID, names []string) ([]*models.Service, error) {
	anchor, err := tx.FirstServiceByNames(ctx, tenantID, names)
	if errors.Is(err, store.ErrNotFound) {
		return []*models.Service{}, nil
	}
	if err != nil {
		return nil, err
	}

	inbound, err := tx.ListDependents(ctx, tenantID, anchor.ID)
	if err != nil {
		return nil, err
	}

	seen := map[int64]bool{anchor.ID: true}
	var dependentIDs []int64
	for _, d := range inbound {
		if !seen[d.ServiceID] {
			seen[d.ServiceID] = true
			dependentIDs = append(dependentIDs, d.ServiceID)
		}
	}

	dependents, err := tx.ListServicesByIDs(ctx, tenantID, dependentIDs)
	if err != nil {
		return nil, err
	}
	return append([]*models.Service{anchor}, dependents...), nil
}

// GetService returns one service view.
func (s *Service) GetService(ctx context.Context, tenantID uuid.UUID, serviceID int64) (*models.ServiceView, error) {
	return cached(ctx, s, tenantID,
		func(version int64) string { return cache.ServiceViewKey(tenantID, version, serviceID) },
		func() (*models.ServiceView, error) {
			var view *models.ServiceView
			err := s.read(ctx, "get_service", func(tx store.Tx) error {
				svc, err := tx.GetService(ctx, tenantID, serviceID)
				if errors.Is(err, store.ErrNotFound) {
					return serviceNotFound(RefSource, "service with id %d not found", serviceID)
				}
				if err != nil {
					return err
				}
				view, err = serviceView(ctx, tx, svc)
				return err
			})
			if err != nil {
				return nil, err
			}
			return view, nil
		})
}
