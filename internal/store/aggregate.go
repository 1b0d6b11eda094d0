package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Relation names a one-to-many association column pair on a join table.
// Identifiers are compile-time constants, never caller input.
type Relation struct {
	Table       string
	KeyColumn   string
	ValueColumn string
}

var (
	// ServiceApplications groups application ids by service id.
	ServiceApplications = Relation{Table: "topology_service_applications", KeyColumn: "service_id", ValueColumn: "application_id"}
	// ApplicationServices groups service ids by application id.
	ApplicationServices = Relation{Table: "topology_service_applications", KeyColumn: "application_id", ValueColumn: "service_id"}
)

// AggregateIDs returns, for each key that has at least one associated row,
// the ordered sequence of associated values in a single grouped query.
// PostgreSQL arrays are decoded by pgx straight into []V, so callers always
// receive typed slices. Keys without rows are absent from the map.
func AggregateIDs[K comparable, V any](ctx context.Context, q Querier, rel Relation, keys []K) (map[K][]V, error) {
	if q == nil {
		return nil, ErrNotConfigured
	}

	result := make(map[K][]V, len(keys))
	if len(keys) == 0 {
		return result, nil
	}

	query := fmt.Sprintf(
		`SELECT %[2]s, array_agg(%[3]s ORDER BY %[3]s) FROM %[1]s WHERE %[2]s = ANY($1) GROUP BY %[2]s`,
		rel.Table, rel.KeyColumn, rel.ValueColumn)

	rows, err := q.Query(ctx, query, keys)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s.%s: %w", rel.Table, rel.ValueColumn, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key    K
			values []V
		)
		if err := rows.Scan(&key, &values); err != nil {
			return nil, fmt.Errorf("scan aggregate %s.%s: %w", rel.Table, rel.ValueColumn, err)
		}
		result[key] = values
	}
	return result, rows.Err()
}
