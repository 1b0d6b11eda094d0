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

// ErrInvalidProvider is returned when an import names no provider or the
// reserved manual provider.
var ErrInvalidProvider = errors.New("invalid topology provider id")

// ImportProviderTopology merges a provider snapshot into the tenant's graph
// in one transaction.
//
// Snapshot services are upserted by name as provider-owned services; names
// held by manual services are skipped. Each imported service's outgoing edges
// are replaced by the snapshot's, skipping targets that do not resolve.
// Applications are upserted with the provider's id; members that do not
// resolve are dropped and applications left without members are skipped.
func (s *Service) ImportProviderTopology(ctx context.Context, tenantID uuid.UUID, providerID string, snap models.TopologySnapshot) (*ImportReport, error) {
	if providerID == "" || providerID == models.ManualProviderID {
		return nil, fmt.Errorf("%w: %q", ErrInvalidProvider, providerID)
	}

	var report *ImportReport
	err := s.write(ctx, tenantID, "import_provider_topology", func(tx store.Tx) error {
		report = &ImportReport{
			ProviderID:          providerID,
			ServicesSkipped:     []string{},
			UnresolvedTargets:   []string{},
			ApplicationsSkipped: []string{},
		}
		imp := &importer{tx: tx, tenantID: tenantID, providerID: providerID, report: report, ids: map[string]int64{}}

		if err := imp.services(ctx, snap.Services); err != nil {
			return err
		}
		if err := imp.dependencies(ctx, snap.Services); err != nil {
			return err
		}
		return imp.applications(ctx, snap.Applications)
	})
	if err != nil {
		return nil, err
	}

	importedServicesTotal.WithLabelValues(providerID).Add(float64(report.ServicesUpserted))
	slog.Info("provider topology imported",
		"tenant_id", tenantID,
		"provider_id", providerID,
		"services", report.ServicesUpserted,
		"services_skipped", len(report.ServicesSkipped),
		"dependencies", report.DependenciesCreated,
		"unresolved_targets", len(report.UnresolvedTargets),
		"applications", report.ApplicationsUpserted,
	)
	return report, nil
}

type importer struct {
	tx         store.Tx
	tenantID   uuid.UUID
	providerID string
	report     *ImportReport
	// ids holds the services written by this import, by name.
	ids map[string]int64
}

func (imp *importer) services(ctx context.Context, services []models.SnapshotService) error {
	for _, in := range services {
		if in.Service == "" {
			continue
		}
		if _, done := imp.ids[in.Service]; done {
			continue
		}

		provider := imp.providerID
		svc := &models.Service{
			TenantID:         imp.tenantID,
			Service:          in.Service,
			DisplayName:      in.DisplayName,
			Description:      in.Description,
			Team:             in.Team,
			Email:            in.Email,
			Slack:            in.Slack,
			Environment:      in.Environment,
			SourceProviderID: &provider,
		}
		err := imp.tx.UpsertProviderService(ctx, svc)
		if errors.Is(err, store.ErrDuplicateKey) {
			slog.Warn("skipping provider service owned by a manual service",
				"tenant_id", imp.tenantID, "provider_id", imp.providerID, "service", in.Service)
			imp.report.ServicesSkipped = append(imp.report.ServicesSkipped, in.Service)
			continue
		}
		if err != nil {
			return err
		}
		imp.ids[in.Service] = svc.ID
		imp.report.ServicesUpserted++
	}
	return nil
}

func (imp *importer) dependencies(ctx context.Context, services []models.SnapshotService) error {
	replaced := make(map[int64]bool, len(imp.ids))
	for _, in := range services {
		id, ok := imp.ids[in.Service]
		if !ok {
			continue
		}
		if !replaced[id] {
			if err := imp.tx.DeleteOutgoingDependencies(ctx, id); err != nil {
				return err
			}
			replaced[id] = true
		}

		for _, dep := range in.Dependencies {
			targetID, found, err := imp.resolve(ctx, dep.Target)
			if err != nil {
				return err
			}
			if !found {
				slog.Warn("skipping dependency on unknown service",
					"tenant_id", imp.tenantID, "provider_id", imp.providerID, "service", in.Service, "target", dep.Target)
				imp.report.UnresolvedTargets = append(imp.report.UnresolvedTargets, in.Service+"->"+dep.Target)
				continue
			}
			if err := imp.tx.CreateDependency(ctx, &models.Dependency{
				ServiceID:          id,
				DependsOnServiceID: targetID,
				Protocol:           protocolOrDefault(dep.Protocol),
			}); err != nil {
				return err
			}
			imp.report.DependenciesCreated++
		}
	}
	return nil
}

func (imp *importer) applications(ctx context.Context, apps []models.SnapshotApplication) error {
	for _, in := range apps {
		if in.ID == uuid.Nil || in.Name == "" {
			imp.skipApplication(in, "missing id or name")
			continue
		}

		members := make([]int64, 0, len(in.Services))
		for _, name := range in.Services {
			id, found, err := imp.resolve(ctx, name)
			if err != nil {
				return err
			}
			if found {
				members = append(members, id)
			}
		}
		if len(members) == 0 {
			imp.skipApplication(in, "no resolvable member services")
			continue
		}

		if _, err := upsertApplication(ctx, imp.tx, imp.tenantID, ApplicationInput{
			ID:          in.ID,
			Name:        in.Name,
			Description: in.Description,
			Repository:  in.Repository,
			Services:    members,
		}); err != nil {
			return fmt.Errorf("import application %s: %w", in.ID, err)
		}
		imp.report.ApplicationsUpserted++
	}
	return nil
}

func (imp *importer) skipApplication(in models.SnapshotApplication, reason string) {
	slog.Warn("skipping provider application",
		"tenant_id", imp.tenantID, "provider_id", imp.providerID, "application", in.Name, "reason", reason)
	label := in.Name
	if label == "" {
		label = in.ID.String()
	}
	imp.report.ApplicationsSkipped = append(imp.report.ApplicationsSkipped, label)
}

// resolve finds a service id by name, preferring services written by this import.
func (imp *importer) resolve(ctx context.Context, name string) (int64, bool, error) {
	if id, ok := imp.ids[name]; ok {
		return id, true, nil
	}
	svc, err := imp.tx.GetServiceByName(ctx, imp.tenantID, name)
	if errors.Is(err, store.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return svc.ID, true, nil
}
