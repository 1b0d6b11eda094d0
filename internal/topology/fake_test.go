package topology

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/servicemap/internal/store"
	"github.com/kiranshivaraju/servicemap/pkg/models"
)

// --- in-memory store ---

var errReadOnly = errors.New("cannot execute write in a read-only transaction")

type link struct {
	serviceID     int64
	applicationID uuid.UUID
}

type memState struct {
	nextServiceID int64
	nextDepID     int64
	services      map[int64]models.Service
	deps          []models.Dependency
	apps          map[uuid.UUID]models.Application
	links         map[link]bool
}

func (s *memState) clone() *memState {
	c := &memState{
		nextServiceID: s.nextServiceID,
		nextDepID:     s.nextDepID,
		services:      make(map[int64]models.Service, len(s.services)),
		deps:          append([]models.Dependency(nil), s.deps...),
		apps:          make(map[uuid.UUID]models.Application, len(s.apps)),
		links:         make(map[link]bool, len(s.links)),
	}
	for k, v := range s.services {
		c.services[k] = v
	}
	for k, v := range s.apps {
		c.apps[k] = v
	}
	for k, v := range s.links {
		c.links[k] = v
	}
	return c
}

// memStore is a transactional in-memory store. Each transaction works on a
// copy of the state that replaces the committed state only when fn succeeds.
type memStore struct {
	mu        sync.Mutex
	state     *memState
	reads     int
	writes    int
	failWrite error
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		services: map[int64]models.Service{},
		apps:     map[uuid.UUID]models.Application{},
		links:    map[link]bool{},
	}}
}

func (m *memStore) Ping(_ context.Context) error { return nil }
func (m *memStore) GetDefaultTenant(_ context.Context) (*models.Tenant, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) GetTenant(_ context.Context, _ uuid.UUID) (*models.Tenant, error) {
	return nil, store.ErrNotFound
}
func (m *memStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}
func (m *memStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error  { return nil }
func (m *memStore) CreateAPIKey(_ context.Context, _ *models.APIKey) error     { return nil }
func (m *memStore) RevokeAPIKey(_ context.Context, _, _ uuid.UUID) error       { return nil }
func (m *memStore) ListAPIKeys(_ context.Context, _ uuid.UUID) ([]*models.APIKey, error) {
	return nil, nil
}

func (m *memStore) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.failWrite != nil {
		return m.failWrite
	}
	work := m.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) InReadTx(ctx context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	return fn(&memTx{s: m.state.clone(), readOnly: true})
}

// snapshot returns a copy of the committed state for assertions.
func (m *memStore) snapshot() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

type memTx struct {
	s        *memState
	readOnly bool
}

func (t *memTx) writable() error {
	if t.readOnly {
		return errReadOnly
	}
	return nil
}

func (t *memTx) sortedServices(keep func(models.Service) bool) []*models.Service {
	out := []*models.Service{}
	for _, svc := range t.s.services {
		if keep(svc) {
			svc := svc
			out = append(out, &svc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (t *memTx) GetService(_ context.Context, tenantID uuid.UUID, id int64) (*models.Service, error) {
	svc, ok := t.s.services[id]
	if !ok || svc.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &svc, nil
}

func (t *memTx) GetServiceByName(_ context.Context, tenantID uuid.UUID, name string) (*models.Service, error) {
	for _, svc := range t.s.services {
		if svc.TenantID == tenantID && svc.Service == name {
			svc := svc
			return &svc, nil
		}
	}
	return nil, store.ErrNotFound
}

func (t *memTx) FirstServiceByNames(_ context.Context, tenantID uuid.UUID, names []string) (*models.Service, error) {
	want := map[string]bool{}
	for _, n := range names {
		want[n] = true
	}
	found := t.sortedServices(func(s models.Service) bool { return s.TenantID == tenantID && want[s.Service] })
	if len(found) == 0 {
		return nil, store.ErrNotFound
	}
	return found[0], nil
}

func (t *memTx) ListServices(_ context.Context, f store.ServiceFilter) ([]*models.Service, error) {
	providers := map[string]bool{}
	for _, p := range f.ProviderIDs {
		providers[p] = true
	}
	return t.sortedServices(func(s models.Service) bool {
		if s.TenantID != f.TenantID {
			return false
		}
		if len(providers) > 0 && (s.SourceProviderID == nil || !providers[*s.SourceProviderID]) {
			return false
		}
		return f.Environment == "" || s.Environment == f.Environment
	}), nil
}

func (t *memTx) ListServicesByIDs(_ context.Context, tenantID uuid.UUID, ids []int64) ([]*models.Service, error) {
	want := map[int64]bool{}
	for _, id := range ids {
		want[id] = true
	}
	return t.sortedServices(func(s models.Service) bool { return s.TenantID == tenantID && want[s.ID] }), nil
}

func (t *memTx) nameTaken(tenantID uuid.UUID, name string, except int64) bool {
	for _, svc := range t.s.services {
		if svc.TenantID == tenantID && svc.Service == name && svc.ID != except {
			return true
		}
	}
	return false
}

func (t *memTx) CreateService(_ context.Context, svc *models.Service) error {
	if err := t.writable(); err != nil {
		return err
	}
	if t.nameTaken(svc.TenantID, svc.Service, 0) {
		return store.ErrDuplicateKey
	}
	if svc.IsEditable != svc.IsManual {
		return errors.New("check constraint violated: is_editable = is_manual")
	}
	t.s.nextServiceID++
	svc.ID = t.s.nextServiceID
	svc.CreatedAt = time.Now().UTC()
	svc.UpdatedAt = svc.CreatedAt
	t.s.services[svc.ID] = *svc
	return nil
}

func (t *memTx) UpdateService(_ context.Context, svc *models.Service) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.s.services[svc.ID]
	if !ok || cur.TenantID != svc.TenantID {
		return store.ErrNotFound
	}
	if t.nameTaken(svc.TenantID, svc.Service, svc.ID) {
		return store.ErrDuplicateKey
	}
	cur.Service = svc.Service
	cur.DisplayName = svc.DisplayName
	cur.Description = svc.Description
	cur.Team = svc.Team
	cur.Email = svc.Email
	cur.Slack = svc.Slack
	cur.Environment = svc.Environment
	cur.UpdatedAt = time.Now().UTC()
	t.s.services[svc.ID] = cur
	svc.UpdatedAt = cur.UpdatedAt
	return nil
}

func (t *memTx) UpsertProviderService(ctx context.Context, svc *models.Service) error {
	if err := t.writable(); err != nil {
		return err
	}
	svc.IsManual = false
	svc.IsEditable = false
	svc.CreatedBy = nil

	existing, err := t.GetServiceByName(ctx, svc.TenantID, svc.Service)
	if errors.Is(err, store.ErrNotFound) {
		return t.CreateService(ctx, svc)
	}
	if existing.IsManual {
		return store.ErrDuplicateKey
	}
	svc.ID = existing.ID
	svc.CreatedAt = existing.CreatedAt
	svc.UpdatedAt = time.Now().UTC()
	t.s.services[svc.ID] = *svc
	return nil
}

func (t *memTx) DeleteService(_ context.Context, tenantID uuid.UUID, id int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	svc, ok := t.s.services[id]
	if !ok || svc.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(t.s.services, id)
	kept := t.s.deps[:0:0]
	for _, d := range t.s.deps {
		if d.ServiceID != id && d.DependsOnServiceID != id {
			kept = append(kept, d)
		}
	}
	t.s.deps = kept
	for l := range t.s.links {
		if l.serviceID == id {
			delete(t.s.links, l)
		}
	}
	return nil
}

func (t *memTx) ListDependencies(_ context.Context, serviceIDs []int64) ([]*models.Dependency, error) {
	want := map[int64]bool{}
	for _, id := range serviceIDs {
		want[id] = true
	}
	out := []*models.Dependency{}
	for _, d := range t.s.deps {
		if want[d.ServiceID] {
			d := d
			out = append(out, &d)
		}
	}
	return out, nil
}

func (t *memTx) ListDependents(_ context.Context, tenantID uuid.UUID, targetID int64) ([]*models.Dependency, error) {
	out := []*models.Dependency{}
	for _, d := range t.s.deps {
		if d.DependsOnServiceID == targetID && t.s.services[d.ServiceID].TenantID == tenantID {
			d := d
			out = append(out, &d)
		}
	}
	return out, nil
}

func (t *memTx) CreateDependency(_ context.Context, dep *models.Dependency) error {
	if err := t.writable(); err != nil {
		return err
	}
	_, src := t.s.services[dep.ServiceID]
	_, dst := t.s.services[dep.DependsOnServiceID]
	if !src || !dst {
		return errors.New("foreign key violation")
	}
	t.s.nextDepID++
	dep.ID = t.s.nextDepID
	t.s.deps = append(t.s.deps, *dep)
	return nil
}

func (t *memTx) DeleteDependencies(_ context.Context, serviceID, targetID int64) (int64, error) {
	if err := t.writable(); err != nil {
		return 0, err
	}
	var n int64
	kept := t.s.deps[:0:0]
	for _, d := range t.s.deps {
		if d.ServiceID == serviceID && d.DependsOnServiceID == targetID {
			n++
			continue
		}
		kept = append(kept, d)
	}
	t.s.deps = kept
	return n, nil
}

func (t *memTx) DeleteOutgoingDependencies(_ context.Context, serviceID int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	kept := t.s.deps[:0:0]
	for _, d := range t.s.deps {
		if d.ServiceID != serviceID {
			kept = append(kept, d)
		}
	}
	t.s.deps = kept
	return nil
}

func (t *memTx) ListApplications(_ context.Context, tenantID uuid.UUID) ([]*models.Application, error) {
	out := []*models.Application{}
	for _, a := range t.s.apps {
		if a.TenantID == tenantID {
			a := a
			out = append(out, &a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (t *memTx) GetApplication(_ context.Context, tenantID, id uuid.UUID) (*models.Application, error) {
	a, ok := t.s.apps[id]
	if !ok || a.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	return &a, nil
}

func (t *memTx) CreateApplication(_ context.Context, app *models.Application) error {
	if err := t.writable(); err != nil {
		return err
	}
	if _, ok := t.s.apps[app.ID]; ok {
		return store.ErrDuplicateKey
	}
	app.CreatedAt = time.Now().UTC()
	app.UpdatedAt = app.CreatedAt
	t.s.apps[app.ID] = *app
	return nil
}

func (t *memTx) UpdateApplication(_ context.Context, app *models.Application) error {
	if err := t.writable(); err != nil {
		return err
	}
	cur, ok := t.s.apps[app.ID]
	if !ok || cur.TenantID != app.TenantID {
		return store.ErrNotFound
	}
	app.UpdatedAt = time.Now().UTC()
	t.s.apps[app.ID] = *app
	return nil
}

func (t *memTx) DeleteApplication(_ context.Context, tenantID, id uuid.UUID) error {
	if err := t.writable(); err != nil {
		return err
	}
	a, ok := t.s.apps[id]
	if !ok || a.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(t.s.apps, id)
	for l := range t.s.links {
		if l.applicationID == id {
			delete(t.s.links, l)
		}
	}
	return nil
}

func (t *memTx) ResolveServiceIDs(_ context.Context, tenantID uuid.UUID, ids []int64) ([]int64, error) {
	out := []int64{}
	for _, id := range ids {
		if svc, ok := t.s.services[id]; ok && svc.TenantID == tenantID {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (t *memTx) ListApplicationServiceIDs(_ context.Context, applicationID uuid.UUID) ([]int64, error) {
	out := []int64{}
	for l := range t.s.links {
		if l.applicationID == applicationID {
			out = append(out, l.serviceID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (t *memTx) AddServiceApplications(_ context.Context, applicationID uuid.UUID, serviceIDs []int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	for _, id := range serviceIDs {
		t.s.links[link{serviceID: id, applicationID: applicationID}] = true
	}
	return nil
}

func (t *memTx) RemoveServiceApplicationsExcept(_ context.Context, applicationID uuid.UUID, keep []int64) error {
	if err := t.writable(); err != nil {
		return err
	}
	k := map[int64]bool{}
	for _, id := range keep {
		k[id] = true
	}
	for l := range t.s.links {
		if l.applicationID == applicationID && !k[l.serviceID] {
			delete(t.s.links, l)
		}
	}
	return nil
}

func (t *memTx) ServiceApplicationIDs(_ context.Context, serviceIDs []int64) (map[int64][]uuid.UUID, error) {
	want := map[int64]bool{}
	for _, id := range serviceIDs {
		want[id] = true
	}
	out := map[int64][]uuid.UUID{}
	for l := range t.s.links {
		if want[l.serviceID] {
			out[l.serviceID] = append(out[l.serviceID], l.applicationID)
		}
	}
	for _, v := range out {
		sort.Slice(v, func(i, j int) bool { return v[i].String() < v[j].String() })
	}
	return out, nil
}

func (t *memTx) ApplicationServiceIDs(_ context.Context, applicationIDs []uuid.UUID) (map[uuid.UUID][]int64, error) {
	want := map[uuid.UUID]bool{}
	for _, id := range applicationIDs {
		want[id] = true
	}
	out := map[uuid.UUID][]int64{}
	for l := range t.s.links {
		if want[l.applicationID] {
			out[l.applicationID] = append(out[l.applicationID], l.serviceID)
		}
	}
	for _, v := range out {
		sort.Slice(v, func(i, j int) bool { return v[i] < v[j] })
	}
	return out, nil
}

var (
	_ store.Store = (*memStore)(nil)
	_ store.Tx    = (*memTx)(nil)
)

// --- in-memory cache ---

type memCache struct {
	mu       sync.Mutex
	data     map[string][]byte
	versions map[uuid.UUID]int64
	err      error
}

func newMemCache() *memCache {
	return &memCache{data: map[string][]byte{}, versions: map[uuid.UUID]int64{}}
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.data[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, false, c.err
	}
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Ping(_ context.Context) error { return c.err }

func (c *memCache) TopologyVersion(_ context.Context, tenantID uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	return c.versions[tenantID], nil
}

func (c *memCache) BumpTopologyVersion(_ context.Context, tenantID uuid.UUID) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.versions[tenantID]++
	return c.versions[tenantID], nil
}

func (c *memCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

// --- fixtures ---

// seedService inserts a service directly into committed state.
func seedService(t *testing.T, m *memStore, tenantID uuid.UUID, name string, manual bool) int64 {
	t.Helper()
	var id int64
	err := m.InTx(context.Background(), func(tx store.Tx) error {
		svc := &models.Service{TenantID: tenantID, Service: name, DisplayName: name, IsManual: manual, IsEditable: manual}
		if !manual {
			provider := "datadog"
			svc.SourceProviderID = &provider
		}
		if err := tx.CreateService(context.Background(), svc); err != nil {
			return err
		}
		id = svc.ID
		return nil
	})
	if err != nil {
		t.Fatalf("seed service %s: %v", name, err)
	}
	return id
}

func seedDependency(t *testing.T, m *memStore, from, to int64) {
	t.Helper()
	err := m.InTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateDependency(context.Background(), &models.Dependency{ServiceID: from, DependsOnServiceID: to, Protocol: "http"})
	})
	if err != nil {
		t.Fatalf("seed dependency %d->%d: %v", from, to, err)
	}
}

func viewNames(views []models.ServiceView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.Service
	}
	return out
}
