// Package topology implements the tenant-scoped service dependency graph:
// read views, application grouping, manual services, dependency edges and
// provider imports. Every operation runs in exactly one store transaction.
package topology

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/servicemap/internal/cache"
	"github.com/kiranshivaraju/servicemap/internal/store"
	"github.com/kiranshivaraju/servicemap/pkg/models"
)

// Service runs topology operations against a store. A nil cache or a zero
// TTL disables view caching.
type Service struct {
	store    store.Store
	cache    cache.Cache
	cacheTTL time.Duration
}

// NewService creates a new topology Service.
func NewService(st store.Store, ca cache.Cache, cacheTTL time.Duration) *Service {
	return &Service{
		store:    st,
		cache:    ca,
		cacheTTL: cacheTTL,
	}
}

// read runs fn in a read-only transaction and records metrics under op.
func (s *Service) read(ctx context.Context, op string, fn func(tx store.Tx) error) error {
	start := time.Now()
	err := s.store.InReadTx(ctx, fn)
	observe(op, start, err)
	return err
}

// write runs fn in a read-write transaction. On commit the tenant's cached
// views are invalidated.
func (s *Service) write(ctx context.Context, tenantID uuid.UUID, op string, fn func(tx store.Tx) error) error {
	start := time.Now()
	err := s.store.InTx(ctx, fn)
	observe(op, start, err)
	if err != nil {
		return err
	}
	s.invalidate(ctx, tenantID)
	return nil
}

func (s *Service) cachingEnabled() bool {
	return s.cache != nil && s.cacheTTL > 0
}

func (s *Service) invalidate(ctx context.Context, tenantID uuid.UUID) {
	if !s.cachingEnabled() {
		return
	}
	if _, err := s.cache.BumpTopologyVersion(ctx, tenantID); err != nil {
		slog.Warn("failed to bump topology version", "tenant_id", tenantID, "error", err)
	}
}

// cached serves a JSON-encoded value from the view cache when present and
// otherwise loads, stores and returns it. Cache errors never fail the read.
func cached[T any](ctx context.Context, s *Service, tenantID uuid.UUID, key func(version int64) string, load func() (T, error)) (T, error) {
	if !s.cachingEnabled() {
		return load()
	}

	version, err := s.cache.TopologyVersion(ctx, tenantID)
	if err != nil {
		slog.Warn("topology cache unavailable", "tenant_id", tenantID, "error", err)
		viewCacheTotal.WithLabelValues("error").Inc()
		return load()
	}
	k := key(version)

	if raw, ok, err := s.cache.Get(ctx, k); err == nil && ok {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			viewCacheTotal.WithLabelValues("hit").Inc()
			return v, nil
		}
	}
	viewCacheTotal.WithLabelValues("miss").Inc()

	v, err := load()
	if err != nil {
		return v, err
	}
	if raw, err := json.Marshal(v); err == nil {
		if err := s.cache.Set(ctx, k, raw, s.cacheTTL); err != nil {
			slog.Warn("failed to cache topology view", "key", k, "error", err)
		}
	}
	return v, nil
}

// filterHash is a stable digest of a TopologyFilter. Name and provider order
// do not change the result, so both lists are sorted first.
func filterHash(f TopologyFilter) string {
	providers := append([]string(nil), f.ProviderIDs...)
	names := append([]string(nil), f.ServiceNames...)
	sort.Strings(providers)
	sort.Strings(names)

	canonical := strings.Join([]string{
		"p=" + strings.Join(providers, ","),
		"s=" + strings.Join(names, ","),
		"e=" + f.Environment,
		"x=" + boolString(f.IncludeEmptyDeps),
	}, "|")
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:16]
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// --- view assembly ---

// buildServiceViews attaches outgoing edges and application membership to
// services using one batched query each. Order of services is preserved.
func buildServiceViews(ctx context.Context, tx store.Tx, services []*models.Service) ([]models.ServiceView, error) {
	views := make([]models.ServiceView, 0, len(services))
	if len(services) == 0 {
		return views, nil
	}

	ids := make([]int64, len(services))
	for i, svc := range services {
		ids[i] = svc.ID
	}

	deps, err := tx.ListDependencies(ctx, ids)
	if err != nil {
		return nil, err
	}
	edges := make(map[int64][]models.DependencyView, len(services))
	for _, d := range deps {
		edges[d.ServiceID] = append(edges[d.ServiceID], models.DependencyView{
			ID:                 d.ID,
			DependsOnServiceID: d.DependsOnServiceID,
			Protocol:           d.Protocol,
		})
	}

	appIDs, err := tx.ServiceApplicationIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, svc := range services {
		views = append(views, toServiceView(svc, appIDs[svc.ID], edges[svc.ID]))
	}
	return views, nil
}

func toServiceView(svc *models.Service, appIDs []uuid.UUID, deps []models.DependencyView) models.ServiceView {
	if appIDs == nil {
		appIDs = []uuid.UUID{}
	}
	if deps == nil {
		deps = []models.DependencyView{}
	}
	return models.ServiceView{
		ID:             svc.ID,
		Service:        svc.Service,
		DisplayName:    svc.DisplayName,
		Description:    svc.Description,
		Team:           svc.Team,
		Email:          svc.Email,
		Slack:          svc.Slack,
		Environment:    svc.Environment,
		IsManual:       svc.IsManual,
		CreatedBy:      svc.CreatedBy,
		IsEditable:     svc.IsEditable,
		ApplicationIDs: appIDs,
		Dependencies:   deps,
	}
}

// serviceView reloads a single service view inside tx.
func serviceView(ctx context.Context, tx store.Tx, svc *models.Service) (*models.ServiceView, error) {
	views, err := buildServiceViews(ctx, tx, []*models.Service{svc})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}
