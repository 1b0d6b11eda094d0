package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiranshivaraju/servicemap/pkg/models"
)

// pgTx implements Tx on top of a pgx transaction.
type pgTx struct {
	q Querier
}

const serviceColumns = `id, tenant_id, service, display_name, description, team, email, slack, environment,
	is_manual, source_provider_id, created_by, is_editable, created_at, updated_at`

func scanService(row pgx.Row) (*models.Service, error) {
	var s models.Service
	err := row.Scan(&s.ID, &s.TenantID, &s.Service, &s.DisplayName, &s.Description, &s.Team,
		&s.Email, &s.Slack, &s.Environment, &s.IsManual, &s.SourceProviderID, &s.CreatedBy,
		&s.IsEditable, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func collectServices(rows pgx.Rows) ([]*models.Service, error) {
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// --- Services ---

func (t *pgTx) GetService(ctx context.Context, tenantID uuid.UUID, id int64) (*models.Service, error) {
	s, err := scanService(t.q.QueryRow(ctx,
		`SELECT `+serviceColumns+` FROM topology_services WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service: %w", err)
	}
	return s, nil
}

func (t *pgTx) GetServiceByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.Service, error) {
	s, err := scanService(t.q.QueryRow(ctx,
		`SELECT `+serviceColumns+` FROM topology_services WHERE tenant_id = $1 AND service = $2`, tenantID, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get service by name: %w", err)
	}
	return s, nil
}

func (t *pgTx) FirstServiceByNames(ctx context.Context, tenantID uuid.UUID, names []string) (*models.Service, error) {
	if len(names) == 0 {
		return nil, ErrNotFound
	}
	s, err := scanService(t.q.QueryRow(ctx,
		`SELECT `+serviceColumns+` FROM topology_services WHERE tenant_id = $1 AND service = ANY($2) ORDER BY id LIMIT 1`,
		tenantID, names))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("first service by names: %w", err)
	}
	return s, nil
}

func (t *pgTx) ListServices(ctx context.Context, filter ServiceFilter) ([]*models.Service, error) {
	conditions := []string{"tenant_id = $1"}
	args := []any{filter.TenantID}
	argIdx := 2

	if len(filter.ProviderIDs) > 0 {
		conditions = append(conditions, fmt.Sprintf("source_provider_id = ANY($%d)", argIdx))
		args = append(args, filter.ProviderIDs)
		argIdx++
	}
	if filter.Environment != "" {
		conditions = append(conditions, fmt.Sprintf("environment = $%d", argIdx))
		args = append(args, filter.Environment)
		argIdx++
	}

	query := `SELECT ` + serviceColumns + ` FROM topology_services WHERE ` +
		strings.Join(conditions, " AND ") + ` ORDER BY id`

	rows, err := t.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	return collectServices(rows)
}

func (t *pgTx) ListServicesByIDs(ctx context.Context, tenantID uuid.UUID, ids []int64) ([]*models.Service, error) {
	if len(ids) == 0 {
		return []*models.Service{}, nil
	}
	rows, err := t.q.Query(ctx,
		`SELECT `+serviceColumns+` FROM topology_services WHERE tenant_id = $1 AND id = ANY($2) ORDER BY id`,
		tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("list services by ids: %w", err)
	}
	return collectServices(rows)
}

func (t *pgTx) CreateService(ctx context.Context, svc *models.Service) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO topology_services (tenant_id, service, display_name, description, team, email, slack, environment,
		   is_manual, source_provider_id, created_by, is_editable)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`,
		svc.TenantID, svc.Service, svc.DisplayName, svc.Description, svc.Team, svc.Email, svc.Slack,
		svc.Environment, svc.IsManual, svc.SourceProviderID, svc.CreatedBy, svc.IsEditable,
	).Scan(&svc.ID, &svc.CreatedAt, &svc.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create service: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateService(ctx context.Context, svc *models.Service) error {
	err := t.q.QueryRow(ctx,
		`UPDATE topology_services SET service = $3, display_name = $4, description = $5, team = $6, email = $7,
		   slack = $8, environment = $9, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2
		 RETURNING updated_at`,
		svc.ID, svc.TenantID, svc.Service, svc.DisplayName, svc.Description, svc.Team, svc.Email,
		svc.Slack, svc.Environment,
	).Scan(&svc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update service: %w", err)
	}
	return nil
}

// UpsertProviderService inserts or refreshes a provider-owned service keyed by
// (tenant_id, service). A name already held by a manual service is left
// untouched and reported as ErrDuplicateKey.
func (t *pgTx) UpsertProviderService(ctx context.Context, svc *models.Service) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO topology_services (tenant_id, service, display_name, description, team, email, slack, environment,
		   is_manual, source_provider_id, created_by, is_editable)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, FALSE, $9, NULL, FALSE)
		 ON CONFLICT (tenant_id, service) DO UPDATE SET
		   display_name = EXCLUDED.display_name,
		   description = EXCLUDED.description,
		   team = EXCLUDED.team,
		   email = EXCLUDED.email,
		   slack = EXCLUDED.slack,
		   environment = EXCLUDED.environment,
		   source_provider_id = EXCLUDED.source_provider_id,
		   updated_at = NOW()
		 WHERE topology_services.is_manual = FALSE
		 RETURNING id, created_at, updated_at`,
		svc.TenantID, svc.Service, svc.DisplayName, svc.Description, svc.Team, svc.Email, svc.Slack,
		svc.Environment, svc.SourceProviderID,
	).Scan(&svc.ID, &svc.CreatedAt, &svc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("upsert provider service: %w", err)
	}
	svc.IsManual = false
	svc.IsEditable = false
	svc.CreatedBy = nil
	return nil
}

func (t *pgTx) DeleteService(ctx context.Context, tenantID uuid.UUID, id int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM topology_services WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete service: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Dependencies ---

func collectDependencies(rows pgx.Rows) ([]*models.Dependency, error) {
	defer rows.Close()

	var deps []*models.Dependency
	for rows.Next() {
		var d models.Dependency
		if err := rows.Scan(&d.ID, &d.ServiceID, &d.DependsOnServiceID, &d.Protocol); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}

// ListDependencies returns the outgoing edges of every service in serviceIDs.
func (t *pgTx) ListDependencies(ctx context.Context, serviceIDs []int64) ([]*models.Dependency, error) {
	if len(serviceIDs) == 0 {
		return []*models.Dependency{}, nil
	}
	rows, err := t.q.Query(ctx,
		`SELECT id, service_id, depends_on_service_id, protocol FROM topology_service_dependencies
		 WHERE service_id = ANY($1) ORDER BY id`, serviceIDs)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	return collectDependencies(rows)
}

// ListDependents returns the edges pointing at targetID from services of the tenant.
func (t *pgTx) ListDependents(ctx context.Context, tenantID uuid.UUID, targetID int64) ([]*models.Dependency, error) {
	rows, err := t.q.Query(ctx,
		`SELECT d.id, d.service_id, d.depends_on_service_id, d.protocol
		 FROM topology_service_dependencies d
		 JOIN topology_services s ON s.id = d.service_id
		 WHERE d.depends_on_service_id = $1 AND s.tenant_id = $2
		 ORDER BY d.id`, targetID, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list dependents: %w", err)
	}
	return collectDependencies(rows)
}

func (t *pgTx) CreateDependency(ctx context.Context, dep *models.Dependency) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO topology_service_dependencies (service_id, depends_on_service_id, protocol)
		 VALUES ($1, $2, $3) RETURNING id`,
		dep.ServiceID, dep.DependsOnServiceID, dep.Protocol,
	).Scan(&dep.ID)
	if err != nil {
		return fmt.Errorf("create dependency: %w", err)
	}
	return nil
}

// DeleteDependencies removes every edge serviceID -> targetID and returns how many went.
func (t *pgTx) DeleteDependencies(ctx context.Context, serviceID, targetID int64) (int64, error) {
	tag, err := t.q.Exec(ctx,
		`DELETE FROM topology_service_dependencies WHERE service_id = $1 AND depends_on_service_id = $2`,
		serviceID, targetID)
	if err != nil {
		return 0, fmt.Errorf("delete dependencies: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) DeleteOutgoingDependencies(ctx context.Context, serviceID int64) error {
	if _, err := t.q.Exec(ctx,
		`DELETE FROM topology_service_dependencies WHERE service_id = $1`, serviceID); err != nil {
		return fmt.Errorf("delete outgoing dependencies: %w", err)
	}
	return nil
}

// --- Applications ---

const applicationColumns = `id, tenant_id, name, description, repository, created_at, updated_at`

func scanApplication(row pgx.Row) (*models.Application, error) {
	var a models.Application
	if err := row.Scan(&a.ID, &a.TenantID, &a.Name, &a.Description, &a.Repository,
		&a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func (t *pgTx) ListApplications(ctx context.Context, tenantID uuid.UUID) ([]*models.Application, error) {
	rows, err := t.q.Query(ctx,
		`SELECT `+applicationColumns+` FROM topology_applications WHERE tenant_id = $1 ORDER BY created_at, id`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list applications: %w", err)
	}
	defer rows.Close()

	var apps []*models.Application
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		apps = append(apps, a)
	}
	return apps, rows.Err()
}

func (t *pgTx) GetApplication(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*models.Application, error) {
	a, err := scanApplication(t.q.QueryRow(ctx,
		`SELECT `+applicationColumns+` FROM topology_applications WHERE id = $1 AND tenant_id = $2`, id, tenantID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get application: %w", err)
	}
	return a, nil
}

func (t *pgTx) CreateApplication(ctx context.Context, app *models.Application) error {
	err := t.q.QueryRow(ctx,
		`INSERT INTO topology_applications (id, tenant_id, name, description, repository)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at`,
		app.ID, app.TenantID, app.Name, app.Description, app.Repository,
	).Scan(&app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

func (t *pgTx) UpdateApplication(ctx context.Context, app *models.Application) error {
	err := t.q.QueryRow(ctx,
		`UPDATE topology_applications SET name = $3, description = $4, repository = $5, updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2
		 RETURNING updated_at`,
		app.ID, app.TenantID, app.Name, app.Description, app.Repository,
	).Scan(&app.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteApplication(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM topology_applications WHERE id = $1 AND tenant_id = $2`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete application: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Service/application links ---

// ResolveServiceIDs returns the subset of ids that name services owned by the tenant.
func (t *pgTx) ResolveServiceIDs(ctx context.Context, tenantID uuid.UUID, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return []int64{}, nil
	}
	rows, err := t.q.Query(ctx,
		`SELECT id FROM topology_services WHERE tenant_id = $1 AND id = ANY($2) ORDER BY id`, tenantID, ids)
	if err != nil {
		return nil, fmt.Errorf("resolve service ids: %w", err)
	}
	return collectIDs(rows)
}

func (t *pgTx) ListApplicationServiceIDs(ctx context.Context, applicationID uuid.UUID) ([]int64, error) {
	rows, err := t.q.Query(ctx,
		`SELECT service_id FROM topology_service_applications WHERE application_id = $1 ORDER BY service_id`,
		applicationID)
	if err != nil {
		return nil, fmt.Errorf("list application service ids: %w", err)
	}
	return collectIDs(rows)
}

func (t *pgTx) AddServiceApplications(ctx context.Context, applicationID uuid.UUID, serviceIDs []int64) error {
	if len(serviceIDs) == 0 {
		return nil
	}
	_, err := t.q.Exec(ctx,
		`INSERT INTO topology_service_applications (service_id, application_id)
		 SELECT unnest($2::bigint[]), $1
		 ON CONFLICT DO NOTHING`, applicationID, serviceIDs)
	if err != nil {
		return fmt.Errorf("add service applications: %w", err)
	}
	return nil
}

// RemoveServiceApplicationsExcept drops every link of the application whose
// service is not in keep. An empty keep removes all links.
func (t *pgTx) RemoveServiceApplicationsExcept(ctx context.Context, applicationID uuid.UUID, keep []int64) error {
	if keep == nil {
		keep = []int64{}
	}
	_, err := t.q.Exec(ctx,
		`DELETE FROM topology_service_applications WHERE application_id = $1 AND NOT (service_id = ANY($2))`,
		applicationID, keep)
	if err != nil {
		return fmt.Errorf("remove service applications: %w", err)
	}
	return nil
}

func (t *pgTx) ServiceApplicationIDs(ctx context.Context, serviceIDs []int64) (map[int64][]uuid.UUID, error) {
	return AggregateIDs[int64, uuid.UUID](ctx, t.q, ServiceApplications, serviceIDs)
}

func (t *pgTx) ApplicationServiceIDs(ctx context.Context, applicationIDs []uuid.UUID) (map[uuid.UUID][]int64, error) {
	return AggregateIDs[uuid.UUID, int64](ctx, t.q, ApplicationServices, applicationIDs)
}

func collectIDs(rows pgx.Rows) ([]int64, error) {
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Compile-time check that pgTx implements Tx.
var _ Tx = (*pgTx)(nil)
