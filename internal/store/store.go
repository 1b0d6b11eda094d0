package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/servicemap/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// ErrNotConfigured is returned when a query is attempted without a live
// database handle.
var ErrNotConfigured = errors.New("store: no active database connection")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)
	GetTenant(ctx context.Context, id uuid.UUID) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	// InTx runs fn inside a read-write transaction. The transaction commits
	// only if fn returns nil; any error rolls back every write made through tx.
	InTx(ctx context.Context, fn func(tx Tx) error) error
	// InReadTx runs fn inside a read-only REPEATABLE READ transaction so that
	// all reads observe one snapshot.
	InReadTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the topology data access surface bound to a single transaction.
// Every lookup is tenant-scoped; rows of other tenants are reported as ErrNotFound.
type Tx interface {
	GetService(ctx context.Context, tenantID uuid.UUID, id int64) (*models.Service, error)
	GetServiceByName(ctx context.Context, tenantID uuid.UUID, name string) (*models.Service, error)
	FirstServiceByNames(ctx context.Context, tenantID uuid.UUID, names []string) (*models.Service, error)
	ListServices(ctx context.Context, filter ServiceFilter) ([]*models.Service, error)
	ListServicesByIDs(ctx context.Context, tenantID uuid.UUID, ids []int64) ([]*models.Service, error)
	CreateService(ctx context.Context, svc *models.Service) error
	UpdateService(ctx context.Context, svc *models.Service) error
	UpsertProviderService(ctx context.Context, svc *models.Service) error
	DeleteService(ctx context.Context, tenantID uuid.UUID, id int64) error

	ListDependencies(ctx context.Context, serviceIDs []int64) ([]*models.Dependency, error)
	ListDependents(ctx context.Context, tenantID uuid.UUID, targetID int64) ([]*models.Dependency, error)
	CreateDependency(ctx context.Context, dep *models.Dependency) error
	DeleteDependencies(ctx context.Context, serviceID, targetID int64) (int64, error)
	DeleteOutgoingDependencies(ctx context.Context, serviceID int64) error

	ListApplications(ctx context.Context, tenantID uuid.UUID) ([]*models.Application, error)
	GetApplication(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) (*models.Application, error)
	CreateApplication(ctx context.Context, app *models.Application) error
	UpdateApplication(ctx context.Context, app *models.Application) error
	DeleteApplication(ctx context.Context, tenantID uuid.UUID, id uuid.UUID) error

	ResolveServiceIDs(ctx context.Context, tenantID uuid.UUID, ids []int64) ([]int64, error)
	ListApplicationServiceIDs(ctx context.Context, applicationID uuid.UUID) ([]int64, error)
	AddServiceApplications(ctx context.Context, applicationID uuid.UUID, serviceIDs []int64) error
	RemoveServiceApplicationsExcept(ctx context.Context, applicationID uuid.UUID, keep []int64) error

	ServiceApplicationIDs(ctx context.Context, serviceIDs []int64) (map[int64][]uuid.UUID, error)
	ApplicationServiceIDs(ctx context.Context, applicationIDs []uuid.UUID) (map[uuid.UUID][]int64, error)
}

// ServiceFilter narrows ListServices. Zero-valued fields do not filter.
type ServiceFilter struct {
	TenantID    uuid.UUID
	ProviderIDs []string
	Environment string
}
