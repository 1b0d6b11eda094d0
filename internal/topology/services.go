package topology

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/servicemap/internal/store"
	"github.com/kiranshivaraju/servicemap/pkg/models"
)

// CreateManualService creates an editable service authored by createdBy,
// together with its outgoing dependencies. Every dependency target must
// name an existing service of the tenant.
func (s *Service) CreateManualService(ctx context.Context, tenantID uuid.UUID, in ServiceInput, createdBy string) (*models.ServiceView, error) {
	var view *models.ServiceView
	err := s.write(ctx, tenantID, "create_service", func(tx store.Tx) error {
		provider := models.ManualProviderID
		svc := &models.Service{
			TenantID:         tenantID,
			IsManual:         true,
			IsEditable:       true,
			SourceProviderID: &provider,
			CreatedBy:        &createdBy,
		}
		applyServiceInput(svc, in)

		if err := tx.CreateService(ctx, svc); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				return newError(KindServiceConflict, RefName, "service %s already exists", in.Service)
			}
			return err
		}
		if err := createNamedDependencies(ctx, tx, tenantID, svc.ID, in.Dependencies); err != nil {
			return err
		}

		var err error
		view, err = serviceView(ctx, tx, svc)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("manual service created", "tenant_id", tenantID, "service_id", view.ID, "created_by", createdBy)
	return view, nil
}

// UpdateManualService overwrites the scalar fields of an editable service and
// replaces all of its outgoing dependencies with those in the input.
func (s *Service) UpdateManualService(ctx context.Context, tenantID uuid.UUID, serviceID int64, in ServiceInput) (*models.ServiceView, error) {
	var view *models.ServiceView
	err := s.write(ctx, tenantID, "update_service", func(tx store.Tx) error {
		svc, err := editableService(ctx, tx, tenantID, serviceID, RefSource)
		if err != nil {
			return err
		}

		applyServiceInput(svc, in)
		if err := tx.UpdateService(ctx, svc); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				return newError(KindServiceConflict, RefName, "service %s already exists", in.Service)
			}
			return err
		}

		if err := tx.DeleteOutgoingDependencies(ctx, svc.ID); err != nil {
			return err
		}
		if err := createNamedDependencies(ctx, tx, tenantID, svc.ID, in.Dependencies); err != nil {
			return err
		}

		view, err = serviceView(ctx, tx, svc)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("manual service updated", "tenant_id", tenantID, "service_id", serviceID)
	return view, nil
}

// DeleteManualService deletes an editable service. Its edges in both
// directions and its application links go with it.
func (s *Service) DeleteManualService(ctx context.Context, tenantID uuid.UUID, serviceID int64) error {
	err := s.write(ctx, tenantID, "delete_service", func(tx store.Tx) error {
		if _, err := editableService(ctx, tx, tenantID, serviceID, RefSource); err != nil {
			return err
		}
		return tx.DeleteService(ctx, tenantID, serviceID)
	})
	if err != nil {
		return err
	}
	slog.Info("manual service deleted", "tenant_id", tenantID, "service_id", serviceID)
	return nil
}

func applyServiceInput(svc *models.Service, in ServiceInput) {
	svc.Service = in.Service
	svc.DisplayName = in.DisplayName
	svc.Description = in.Description
	svc.Team = in.Team
	svc.Email = in.Email
	svc.Slack = in.Slack
	svc.Environment = in.Environment
}

// editableService loads a tenant service and rejects provider-owned ones.
func editableService(ctx context.Context, tx store.Tx, tenantID uuid.UUID, serviceID int64, ref string) (*models.Service, error) {
	svc, err := tx.GetService(ctx, tenantID, serviceID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, serviceNotFound(ref, "service with id %d not found", serviceID)
	}
	if err != nil {
		return nil, err
	}
	if !svc.IsEditable {
		return nil, newError(KindServiceNotEditable, "", "service %s is not editable", svc.Service)
	}
	return svc, nil
}

// createNamedDependencies adds one edge from serviceID per entry of deps,
// resolving targets by name in sorted order.
func createNamedDependencies(ctx context.Context, tx store.Tx, tenantID uuid.UUID, serviceID int64, deps map[string]string) error {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		target, err := tx.GetServiceByName(ctx, tenantID, name)
		if errors.Is(err, store.ErrNotFound) {
			return serviceNotFound(RefTarget, "service %s not found", name)
		}
		if err != nil {
			return err
		}
		if err := tx.CreateDependency(ctx, &models.Dependency{
			ServiceID:          serviceID,
			DependsOnServiceID: target.ID,
			Protocol:           protocolOrDefault(deps[name]),
		}); err != nil {
			return err
		}
	}
	return nil
}
