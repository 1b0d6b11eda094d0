package topology

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/servicemap/internal/store"
	"github.com/kiranshivaraju/servicemap/pkg/models"
)

// ListApplications returns every application of the tenant with its member
// service ids. A stored application that cannot form a valid view aborts
// the whole list with KindApplicationParse.
func (s *Service) ListApplications(ctx context.Context, tenantID uuid.UUID) ([]models.ApplicationView, error) {
	var views []models.ApplicationView
	err := s.read(ctx, "list_applications", func(tx store.Tx) error {
		apps, err := tx.ListApplications(ctx, tenantID)
		if err != nil {
			return err
		}
		views, err = buildApplicationViews(ctx, tx, apps)
		return err
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// GetApplication returns one application view.
func (s *Service) GetApplication(ctx context.Context, tenantID, applicationID uuid.UUID) (*models.ApplicationView, error) {
	var view *models.ApplicationView
	err := s.read(ctx, "get_application", func(tx store.Tx) error {
		app, err := getApplication(ctx, tx, tenantID, applicationID)
		if err != nil {
			return err
		}
		view, err = applicationView(ctx, tx, app)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// CreateApplication creates an application with at least one member service.
// Every member must be a service of the tenant.
func (s *Service) CreateApplication(ctx context.Context, tenantID uuid.UUID, in ApplicationInput) (*models.ApplicationView, error) {
	var view *models.ApplicationView
	err := s.write(ctx, tenantID, "create_application", func(tx store.Tx) error {
		var err error
		view, err = createApplication(ctx, tx, tenantID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("application created", "tenant_id", tenantID, "application_id", view.ID, "services", len(view.Services))
	return view, nil
}

// UpdateApplication replaces the application's fields and membership set.
func (s *Service) UpdateApplication(ctx context.Context, tenantID, applicationID uuid.UUID, in ApplicationInput) (*models.ApplicationView, error) {
	var view *models.ApplicationView
	err := s.write(ctx, tenantID, "update_application", func(tx store.Tx) error {
		app, err := getApplication(ctx, tx, tenantID, applicationID)
		if err != nil {
			return err
		}
		view, err = updateApplication(ctx, tx, app, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	slog.Info("application updated", "tenant_id", tenantID, "application_id", applicationID, "services", len(view.Services))
	return view, nil
}

// UpsertApplication updates the application with in.ID when the tenant owns
// one and creates it with that id otherwise.
func (s *Service) UpsertApplication(ctx context.Context, tenantID uuid.UUID, in ApplicationInput) (*models.ApplicationView, error) {
	var view *models.ApplicationView
	err := s.write(ctx, tenantID, "upsert_application", func(tx store.Tx) error {
		var err error
		view, err = upsertApplication(ctx, tx, tenantID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// DeleteApplication removes the application and its membership links. Member
// services are kept.
func (s *Service) DeleteApplication(ctx context.Context, tenantID, applicationID uuid.UUID) error {
	err := s.write(ctx, tenantID, "delete_application", func(tx store.Tx) error {
		err := tx.DeleteApplication(ctx, tenantID, applicationID)
		if errors.Is(err, store.ErrNotFound) {
			return applicationNotFound(applicationID)
		}
		return err
	})
	if err != nil {
		return err
	}
	slog.Info("application deleted", "tenant_id", tenantID, "application_id", applicationID)
	return nil
}

// --- transaction bodies ---

func upsertApplication(ctx context.Context, tx store.Tx, tenantID uuid.UUID, in ApplicationInput) (*models.ApplicationView, error) {
	if in.ID != uuid.Nil {
		app, err := tx.GetApplication(ctx, tenantID, in.ID)
		switch {
		case err == nil:
			return updateApplication(ctx, tx, app, in)
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	return createApplication(ctx, tx, tenantID, in)
}

func createApplication(ctx context.Context, tx store.Tx, tenantID uuid.UUID, in ApplicationInput) (*models.ApplicationView, error) {
	members := uniqueIDs(in.Services)
	if len(members) == 0 {
		return nil, newError(KindInvalidApplicationData, "", "application must have at least one service")
	}
	if in.Name == "" {
		return nil, newError(KindInvalidApplicationData, "", "application name is required")
	}
	if err := requireTenantServices(ctx, tx, tenantID, members); err != nil {
		return nil, err
	}

	app := &models.Application{
		ID:          in.ID,
		TenantID:    tenantID,
		Name:        in.Name,
		Description: in.Description,
		Repository:  in.Repository,
	}
	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}

	if err := tx.CreateApplication(ctx, app); err != nil {
		if errors.Is(err, store.ErrDuplicateKey) {
			return nil, newError(KindApplicationConflict, "", "application id %s is already in use", app.ID)
		}
		return nil, err
	}
	if err := tx.AddServiceApplications(ctx, app.ID, members); err != nil {
		return nil, err
	}
	return applicationView(ctx, tx, app)
}

func updateApplication(ctx context.Context, tx store.Tx, app *models.Application, in ApplicationInput) (*models.ApplicationView, error) {
	if in.Name == "" {
		return nil, newError(KindInvalidApplicationData, "", "application name is required")
	}

	app.Name = in.Name
	app.Description = in.Description
	app.Repository = in.Repository
	if err := tx.UpdateApplication(ctx, app); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, applicationNotFound(app.ID)
		}
		return nil, err
	}

	members := uniqueIDs(in.Services)
	if err := tx.RemoveServiceApplicationsExcept(ctx, app.ID, members); err != nil {
		return nil, err
	}

	existing, err := tx.ListApplicationServiceIDs(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	linked := make(map[int64]bool, len(existing))
	for _, id := range existing {
		linked[id] = true
	}
	var added []int64
	for _, id := range members {
		if !linked[id] {
			added = append(added, id)
		}
	}

	if err := requireTenantServices(ctx, tx, app.TenantID, added); err != nil {
		return nil, err
	}
	if err := tx.AddServiceApplications(ctx, app.ID, added); err != nil {
		return nil, err
	}
	return applicationView(ctx, tx, app)
}

// requireTenantServices fails with KindServiceNotFound unless every id names
// a service owned by the tenant.
func requireTenantServices(ctx context.Context, tx store.Tx, tenantID uuid.UUID, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := tx.ResolveServiceIDs(ctx, tenantID, ids)
	if err != nil {
		return err
	}
	if len(found) != len(ids) {
		return serviceNotFound(RefMember, "one or more services not found")
	}
	return nil
}

func getApplication(ctx context.Context, tx store.Tx, tenantID, applicationID uuid.UUID) (*models.Application, error) {
	app, err := tx.GetApplication(ctx, tenantID, applicationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, applicationNotFound(applicationID)
	}
	return app, err
}

func applicationNotFound(id uuid.UUID) *Error {
	return newError(KindApplicationNotFound, "", "application with id %s not found", id)
}

// --- view assembly ---

func buildApplicationViews(ctx context.Context, tx store.Tx, apps []*models.Application) ([]models.ApplicationView, error) {
	views := make([]models.ApplicationView, 0, len(apps))
	if len(apps) == 0 {
		return views, nil
	}

	ids := make([]uuid.UUID, len(apps))
	for i, a := range apps {
		ids[i] = a.ID
	}
	members, err := tx.ApplicationServiceIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, a := range apps {
		v, err := toApplicationView(a, members[a.ID])
		if err != nil {
			slog.Error("failed to parse application", "application_id", a.ID, "error", err)
			return nil, err
		}
		views = append(views, v)
	}
	return views, nil
}

func applicationView(ctx context.Context, tx store.Tx, app *models.Application) (*models.ApplicationView, error) {
	views, err := buildApplicationViews(ctx, tx, []*models.Application{app})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

func toApplicationView(app *models.Application, services []int64) (models.ApplicationView, error) {
	if app.ID == uuid.Nil || app.Name == "" {
		return models.ApplicationView{}, &Error{
			Kind: KindApplicationParse,
			Msg:  fmt.Sprintf("failed to parse application with id %s", app.ID),
		}
	}
	if services == nil {
		services = []int64{}
	}
	return models.ApplicationView{
		ID:          app.ID,
		Name:        app.Name,
		Description: app.Description,
		Repository:  app.Repository,
		Services:    services,
	}, nil
}

// uniqueIDs drops repeated ids, keeping first-seen order.
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
