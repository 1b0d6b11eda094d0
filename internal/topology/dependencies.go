package topology

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/servicemap/internal/store"
	"github.com/kiranshivaraju/servicemap/pkg/models"
)

// CreateDependency adds an edge serviceID -> targetID and returns the source
// service's view. Repeating the call adds another edge.
func (s *Service) CreateDependency(ctx context.Context, tenantID uuid.UUID, serviceID, targetID int64, protocol string) (*models.ServiceView, error) {
	var view *models.ServiceView
	err := s.write(ctx, tenantID, "create_dependency", func(tx store.Tx) error {
		source, err := tx.GetService(ctx, tenantID, serviceID)
		if errors.Is(err, store.ErrNotFound) {
			return serviceNotFound(RefSource, "service with id %d not found", serviceID)
		}
		if err != nil {
			return err
		}

		if _, err := tx.GetService(ctx, tenantID, targetID); errors.Is(err, store.ErrNotFound) {
			return serviceNotFound(RefTarget, "target service with id %d not found", targetID)
		} else if err != nil {
			return err
		}

		if !source.IsEditable {
			return newError(KindServiceNotEditable, "", "service %s is not editable", source.Service)
		}

		if err := tx.CreateDependency(ctx, &models.Dependency{
			ServiceID:          serviceID,
			DependsOnServiceID: targetID,
			Protocol:           protocolOrDefault(protocol),
		}); err != nil {
			return err
		}

		view, err = serviceView(ctx, tx, source)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("dependency created", "tenant_id", tenantID, "service_id", serviceID, "target_id", targetID)
	return view, nil
}

// DeleteDependency removes every edge serviceID -> targetID. Removing an edge
// that does not exist is not an error.
func (s *Service) DeleteDependency(ctx context.Context, tenantID uuid.UUID, serviceID, targetID int64) error {
	var removed int64
	err := s.write(ctx, tenantID, "delete_dependency", func(tx store.Tx) error {
		if _, err := editableService(ctx, tx, tenantID, serviceID, RefSource); err != nil {
			return err
		}
		var err error
		removed, err = tx.DeleteDependencies(ctx, serviceID, targetID)
		return err
	})
	if err != nil {
		return err
	}
	slog.Info("dependency deleted", "tenant_id", tenantID, "service_id", serviceID, "target_id", targetID, "edges", removed)
	return nil
}
